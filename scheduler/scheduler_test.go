package scheduler

import (
	"context"
	"testing"
	"time"

	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/scene"
	"github.com/stretchr/testify/assert"
)

func TestPriority_ContainingSceneBeatsDistantScene(t *testing.T) {
	now := time.Now()
	near := &Entry{
		Scene:          newBareScene("near"),
		ContainsPlayer: true,
		ParcelDistance: 0,
		hasLastGrant:   true,
		lastGrant:      now,
	}
	far := &Entry{
		Scene:          newBareScene("far"),
		ContainsPlayer: false,
		ParcelDistance: 20,
		hasLastGrant:   true,
		lastGrant:      now,
	}

	assert.Greater(t, near.priority(now), far.priority(now))
}

func TestPriority_NeverRunSortsFirst(t *testing.T) {
	now := time.Now()
	fresh := &Entry{Scene: newBareScene("fresh")}
	stale := &Entry{Scene: newBareScene("stale"), hasLastGrant: true, lastGrant: now.Add(-time.Second)}

	assert.Greater(t, fresh.priority(now), stale.priority(now))
}

func newBareScene(id scene.ID) *scene.Context {
	return scene.NewContext(id, "bafy", scene.Parcel{}, map[scene.Parcel]struct{}{{}: {}}, nil, false, nil)
}

func TestSchedulerAddRemoveLen(t *testing.T) {
	s := New(10)
	assert.Equal(t, 0, s.Len())

	entry := &Entry{Scene: newBareScene("a")}
	s.Add(entry)
	assert.Equal(t, 1, s.Len())

	s.Remove("a")
	assert.Equal(t, 0, s.Len())
}

func TestRunFrame_NoEntriesReturnsZero(t *testing.T) {
	s := New(10)
	d := dispatch.New(nil)
	granted := s.RunFrame(context.Background(), d, 16*time.Millisecond)
	assert.Equal(t, 0, granted)
}
