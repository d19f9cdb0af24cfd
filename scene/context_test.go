package scene

import (
	"testing"

	"github.com/coreworld/explorer/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestContext() *Context {
	parcels := map[Parcel]struct{}{{X: 0, Y: 0}: {}}
	return NewContext("scene-1", "bafy...", Parcel{X: 0, Y: 0}, parcels, nil, false, nil)
}

func TestSpawnAndBevyEntity(t *testing.T) {
	c := newTestContext()
	id := crdt.NewEntityID(5, 0)

	_, ok := c.BevyEntity(id)
	assert.False(t, ok, "unspawned entity should not resolve")

	c.SpawnHandle(id, Handle(42))
	handle, ok := c.BevyEntity(id)
	require.True(t, ok)
	assert.Equal(t, Handle(42), handle)
}

func TestSetDead_AdvancesGenerationAndInvalidatesOldID(t *testing.T) {
	c := newTestContext()
	id := crdt.NewEntityID(5, 0)
	c.SpawnHandle(id, Handle(42))

	c.SetDead(id)

	_, ok := c.BevyEntity(id)
	assert.False(t, ok, "old generation must not resolve after death")

	dead := c.DrainDeathRow()
	assert.Contains(t, dead, id)

	// Draining again returns nothing until another death occurs.
	assert.Empty(t, c.DrainDeathRow())
}

func TestBlockedSet(t *testing.T) {
	c := newTestContext()
	assert.False(t, c.Blocked())

	c.Block(BlockedAwaitingContent)
	assert.True(t, c.Blocked())
	assert.Contains(t, c.BlockedReasons(), BlockedAwaitingContent)

	c.Block(BlockedPermissionPrompt)
	assert.Len(t, c.BlockedReasons(), 2)

	c.Unblock(BlockedAwaitingContent)
	assert.Equal(t, []BlockedReason{BlockedPermissionPrompt}, c.BlockedReasons())

	c.Unblock(BlockedPermissionPrompt)
	assert.False(t, c.Blocked())
}

func TestLogRingWrapsAndPreservesOrder(t *testing.T) {
	c := newTestContext()
	for i := 0; i < defaultLogRingCapacity+10; i++ {
		c.Log(LogInfo, "line")
	}
	snapshot := c.Logs()
	assert.Len(t, snapshot, defaultLogRingCapacity)
}

func TestUnparentedRoundTrip(t *testing.T) {
	c := newTestContext()
	id := crdt.NewEntityID(9, 0)

	c.MarkUnparented(id)
	pending := c.DrainUnparented()
	assert.Contains(t, pending, id)
	assert.Empty(t, c.DrainUnparented())
}

func TestTickAdvance(t *testing.T) {
	c := newTestContext()
	assert.Equal(t, uint32(0), c.TickNumber())

	c.AdvanceTick(100)
	assert.Equal(t, uint32(1), c.TickNumber())
	assert.Equal(t, uint32(100), c.LastUpdateFrame())
}
