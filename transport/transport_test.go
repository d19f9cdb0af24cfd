package transport

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRetryPolicy_NextBackoffCapped(t *testing.T) {
	p := RetryPolicy{BackoffInitial: 100 * time.Millisecond, BackoffMax: 300 * time.Millisecond}
	assert.Equal(t, 100*time.Millisecond, p.NextBackoff(1))
	assert.Equal(t, 300*time.Millisecond, p.NextBackoff(2)) // 4x initial, capped
	assert.Equal(t, 300*time.Millisecond, p.NextBackoff(3))
}

func TestConnectWithRetry_SucceedsEventually(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    3,
		ConnectTimeout: 10 * time.Millisecond,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	}

	attempts := 0
	err := ConnectWithRetry(context.Background(), policy, func(ctx context.Context, attempt int, timeout time.Duration) error {
		attempts++
		if attempt < 3 {
			return assert.AnError
		}
		return nil
	})

	require.NoError(t, err)
	assert.Equal(t, 3, attempts)
}

func TestConnectWithRetry_ExhaustsAttempts(t *testing.T) {
	policy := RetryPolicy{
		MaxAttempts:    3,
		ConnectTimeout: 10 * time.Millisecond,
		BackoffInitial: time.Millisecond,
		BackoffMax:     time.Millisecond,
	}

	attempts := 0
	err := ConnectWithRetry(context.Background(), policy, func(ctx context.Context, attempt int, timeout time.Duration) error {
		attempts++
		return assert.AnError
	})

	assert.Error(t, err)
	assert.Equal(t, 3, attempts)
}
