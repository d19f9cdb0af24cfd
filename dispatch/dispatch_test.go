package dispatch

import (
	"testing"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeBackend is an in-memory renderer stand-in recording every call the
// dispatcher makes, for assertions without a real 3D engine.
type fakeBackend struct {
	nextHandle scene.Handle
	parentOf   map[scene.Handle]scene.Handle
	transforms map[scene.Handle]wire.Transform
	despawned  map[scene.Handle]bool
}

func newFakeBackend() *fakeBackend {
	return &fakeBackend{
		parentOf:   make(map[scene.Handle]scene.Handle),
		transforms: make(map[scene.Handle]wire.Transform),
		despawned:  make(map[scene.Handle]bool),
	}
}

func (b *fakeBackend) SpawnEntity(scene.ID, crdt.EntityID) scene.Handle {
	b.nextHandle++
	return b.nextHandle
}

func (b *fakeBackend) SetTransform(h scene.Handle, t wire.Transform) {
	b.transforms[h] = t
}

func (b *fakeBackend) SetParent(child, parent scene.Handle) {
	b.parentOf[child] = parent
}

func (b *fakeBackend) DespawnEntity(h scene.Handle) {
	b.despawned[h] = true
}

func newTestScene() *scene.Context {
	parcels := map[scene.Parcel]struct{}{{X: 0, Y: 0}: {}}
	ctx := scene.NewContext("scene-1", "bafy...", scene.Parcel{X: 0, Y: 0}, parcels, nil, false, nil)
	ctx.CRDT.Register(crdt.ComponentSpec{ID: TransformComponentID, Policy: crdt.PositionAny, Kind: crdt.KindLWW})
	// Scene root always has a handle so reparenting to root can resolve.
	ctx.SpawnHandle(crdt.EntityRoot, 1)
	return ctx
}

func buildTransformFrame(t *testing.T, entity crdt.EntityID, parent crdt.EntityID, timestamp uint32) []byte {
	transform := wire.IdentityTransform
	transform.Parent = parent
	data := transform.Encode()
	update := crdt.Update{
		Component: TransformComponentID,
		Kind:      crdt.KindLWW,
		Entity:    entity,
		Cell:      crdt.Cell{Timestamp: timestamp, Data: data},
	}
	return crdt.EncodeFrame([]crdt.Update{update})
}

func TestApplyInbound_SpawnsEntityAndParentsToRoot(t *testing.T) {
	ctx := newTestScene()
	backend := newFakeBackend()
	d := New(backend)

	entity := crdt.NewEntityID(10, 0)
	frame := buildTransformFrame(t, entity, crdt.EntityRoot, 1)

	d.ApplyInbound(ctx, frame)

	handle, ok := ctx.BevyEntity(entity)
	require.True(t, ok)
	assert.Contains(t, backend.transforms, handle)
}

func TestApplyInbound_MaterializesNotYetSpawnedParent(t *testing.T) {
	ctx := newTestScene()
	backend := newFakeBackend()
	d := New(backend)

	child := crdt.NewEntityID(20, 0)
	parent := crdt.NewEntityID(21, 0)
	frame := buildTransformFrame(t, child, parent, 1)

	d.ApplyInbound(ctx, frame)

	_, parentLive := ctx.BevyEntity(parent)
	assert.True(t, parentLive, "parent should be materialized as a placeholder")

	childHandle, _ := ctx.BevyEntity(child)
	parentHandle, _ := ctx.BevyEntity(parent)
	assert.Equal(t, parentHandle, backend.parentOf[childHandle])
}

func TestApplyInbound_CycleIsBrokenAndMembersUnparented(t *testing.T) {
	ctx := newTestScene()
	backend := newFakeBackend()
	d := New(backend)

	a := crdt.NewEntityID(30, 0)
	b := crdt.NewEntityID(31, 0)

	// a -> b
	d.ApplyInbound(ctx, buildTransformFrame(t, a, b, 1))
	// b -> a, closing the cycle
	d.ApplyInbound(ctx, buildTransformFrame(t, b, a, 1))

	pending := ctx.DrainUnparented()
	assert.NotEmpty(t, pending, "cycle members must be queued for a reparent retry")

	rootHandle, _ := ctx.BevyEntity(crdt.EntityRoot)
	aHandle, _ := ctx.BevyEntity(a)
	bHandle, _ := ctx.BevyEntity(b)
	assert.Equal(t, rootHandle, backend.parentOf[aHandle])
	assert.Equal(t, rootHandle, backend.parentOf[bHandle])
}

func TestApplyInbound_DeleteEntityCascadesAndDespawnsDescendants(t *testing.T) {
	ctx := newTestScene()
	backend := newFakeBackend()
	d := New(backend)

	parent := crdt.NewEntityID(512, 0)
	child := crdt.NewEntityID(513, 0)
	grandchild := crdt.NewEntityID(514, 0)

	d.ApplyInbound(ctx, buildTransformFrame(t, parent, crdt.EntityRoot, 1))
	d.ApplyInbound(ctx, buildTransformFrame(t, child, parent, 1))
	d.ApplyInbound(ctx, buildTransformFrame(t, grandchild, child, 1))

	parentHandle, ok := ctx.BevyEntity(parent)
	require.True(t, ok)
	childHandle, ok := ctx.BevyEntity(child)
	require.True(t, ok)
	grandchildHandle, ok := ctx.BevyEntity(grandchild)
	require.True(t, ok)

	d.ApplyInbound(ctx, crdt.EncodeDeleteEntity(parent))

	_, parentLive := ctx.BevyEntity(parent)
	_, childLive := ctx.BevyEntity(child)
	_, grandchildLive := ctx.BevyEntity(grandchild)
	assert.False(t, parentLive, "deleted entity must be dead")
	assert.False(t, childLive, "descendant must cascade-die")
	assert.False(t, grandchildLive, "transitive descendant must cascade-die")

	assert.True(t, backend.despawned[parentHandle])
	assert.True(t, backend.despawned[childHandle])
	assert.True(t, backend.despawned[grandchildHandle])
}

func TestEncodeOutbound_RoundTripsHostAuthoredUpdate(t *testing.T) {
	ctx := newTestScene()
	backend := newFakeBackend()
	d := New(backend)

	other := crdt.ComponentID(2)
	ctx.CRDT.Register(crdt.ComponentSpec{ID: other, Policy: crdt.PositionAny, Kind: crdt.KindLWW})
	ctx.CRDT.ForceUpdate(other, crdt.NewEntityID(1, 0), 1, []byte("host says hi"))

	out := d.EncodeOutbound(ctx)
	assert.NotEmpty(t, out)
}
