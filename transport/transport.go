// Package transport abstracts the room connection used for networked
// presence (§4.G): connect/reconnect with bounded retry, reliable and
// unreliable send, per-peer events. The WebSocket-room variant lives in
// transport/wsroom; a WebRTC/Livekit variant would be a sibling package
// behind the same Transport interface (§9, "tagged variant behind a
// single capability set").
//
// Grounded on the server/sync_handler.go dial-and-reconcile loop
// (gorilla/websocket.Dialer.DialContext, per-peer backoff bookkeeping) and
// server/client.go's websocket timeout constants.
package transport

import (
	"context"
	"time"

	"github.com/coreworld/explorer/identity"
)

// Recipient selects who a Send targets (§4.G).
type Recipient struct {
	Broadcast bool
	Peer      identity.Address
	AuthServer bool
}

// BroadcastRecipient is the zero-friendly broadcast target.
var BroadcastRecipient = Recipient{Broadcast: true}

// PeerRecipient targets a single peer by address.
func PeerRecipient(addr identity.Address) Recipient {
	return Recipient{Peer: addr}
}

// EventKind tags the variant of a room Event.
type EventKind int

const (
	EventPeerJoined EventKind = iota
	EventPeerLeft
	EventDataReceived
	EventTrackPublished
	EventTrackUnpublished
	EventQualityChanged
)

// Quality levels reported by EventQualityChanged.
const (
	QualityGood = iota
	QualityDegraded
	QualityLost
)

// Event is a single room event delivered on the Transport's event channel.
type Event struct {
	Kind    EventKind
	Peer    identity.Address
	Data    []byte
	Track   string
	Quality int
}

// Transport is the capability set every room backend implements (§4.G).
type Transport interface {
	// Connect performs the handshake with bounded retry (§5: >=3
	// attempts, exponential backoff). Returns once connected or once all
	// attempts are exhausted, in which case the transport is dead.
	Connect(ctx context.Context) error

	// Send transmits bytes to the given recipient. Reliable sends are
	// at-least-once and in-order per peer; unreliable sends have neither
	// guarantee (used for positions and voice).
	Send(recipient Recipient, data []byte, reliable bool) error

	// Events returns the channel of room events. Closed when the
	// transport is closed or declared dead.
	Events() <-chan Event

	// Dead reports whether the transport has exhausted its retry budget
	// and will not reconnect on its own; the lifecycle owner must
	// recreate it.
	Dead() bool

	// Close releases the underlying connection.
	Close() error
}

// RetryPolicy configures Connect's bounded exponential backoff (§5,
// §7 "Transport connect failure").
type RetryPolicy struct {
	MaxAttempts      int
	ConnectTimeout   time.Duration
	ReadTimeout      time.Duration
	BackoffInitial   time.Duration
	BackoffMax       time.Duration
}

// DefaultRetryPolicy matches §5's stated defaults (5s connect, 30s
// read) and §4.G's ">=3 attempts". ConnectWithRetry scales the connect
// timeout up by the attempt number; ReadTimeout is not scaled.
var DefaultRetryPolicy = RetryPolicy{
	MaxAttempts:    3,
	ConnectTimeout: 5 * time.Second,
	ReadTimeout:    30 * time.Second,
	BackoffInitial: 250 * time.Millisecond,
	BackoffMax:     8 * time.Second,
}

// backoffMultiplier mirrors the syncTickState.backoffMultiplier:
// escalate the wait after repeated failures rather than retrying at a flat
// interval forever.
func backoffMultiplier(attempt int) int {
	switch {
	case attempt <= 1:
		return 1
	case attempt <= 2:
		return 4
	default:
		return 16
	}
}

// NextBackoff computes the delay before the given (1-indexed) retry attempt.
func (p RetryPolicy) NextBackoff(attempt int) time.Duration {
	d := p.BackoffInitial * time.Duration(backoffMultiplier(attempt))
	if d > p.BackoffMax {
		d = p.BackoffMax
	}
	return d
}

// ConnectWithRetry runs dial against policy's bounded exponential backoff,
// scaling per-attempt timeouts up as the sync ticker does for
// peers that have failed repeatedly. Returns the first successful dial's
// result, or the last error once attempts are exhausted.
func ConnectWithRetry(ctx context.Context, policy RetryPolicy, dial func(ctx context.Context, attempt int, timeout time.Duration) error) error {
	var lastErr error
	for attempt := 1; attempt <= policy.MaxAttempts; attempt++ {
		timeout := policy.ConnectTimeout * time.Duration(attempt)
		attemptCtx, cancel := context.WithTimeout(ctx, timeout)
		err := dial(attemptCtx, attempt, timeout)
		cancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if attempt == policy.MaxAttempts {
			break
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(policy.NextBackoff(attempt)):
		}
	}
	return lastErr
}
