// Package dispatch applies CRDT updates decoded from a scene's script onto
// the renderer world, and serializes host-authored updates back to the
// script (§4.A, §4.F "Hierarchy resolution").
//
// Grounded on the sync/merkle.go pattern of folding a batch of
// incoming changes into a tree and then running a bounded-cost consistency
// pass once per batch (merkle.go recomputes hashes bottom-up after a
// batch; here the consistency pass is the cycle-safe parent relink).
package dispatch

import (
	"sync"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/wire"
)

// TransformComponentID is the well-known component id carrying the
// transform-and-parent record (§4.F).
const TransformComponentID crdt.ComponentID = 1

// Backend is the renderer-side surface the dispatcher drives. Its concrete
// implementation lives outside this module's scope (the 3D engine
// integration); dispatch only needs to spawn, reparent, transform, and
// despawn opaque handles.
type Backend interface {
	SpawnEntity(scene.ID, crdt.EntityID) scene.Handle
	SetTransform(scene.Handle, wire.Transform)
	SetParent(child, parent scene.Handle)
	DespawnEntity(scene.Handle)
}

// ComponentHandler inserts or removes a decoded component value on a
// renderer handle (§4.F "constructor from the value to a renderer-
// world component"). Registered for every LWW component type other than
// the transform-and-parent component, which the dispatcher handles
// directly since it also drives hierarchy resolution.
type ComponentHandler interface {
	Apply(handle scene.Handle, data []byte)
	Remove(handle scene.Handle)
}

// Dispatcher owns the parent-pointer index used by the cycle-safe relink
// pass (§4.F), keyed per scene since entity ids are only unique
// within a scene.
type Dispatcher struct {
	backend Backend

	mu       sync.Mutex
	parents  map[scene.ID]map[crdt.EntityID]crdt.EntityID
	changed  map[scene.ID]map[crdt.EntityID]struct{}
	handlers map[crdt.ComponentID]ComponentHandler
}

// New creates a Dispatcher driving the given renderer backend.
func New(backend Backend) *Dispatcher {
	return &Dispatcher{
		backend:  backend,
		parents:  make(map[scene.ID]map[crdt.EntityID]crdt.EntityID),
		changed:  make(map[scene.ID]map[crdt.EntityID]struct{}),
		handlers: make(map[crdt.ComponentID]ComponentHandler),
	}
}

// RegisterComponent binds a decoder/constructor pair to a non-transform
// LWW component id (§4.F). Must be called before any buffer
// referencing that component is dispatched.
func (d *Dispatcher) RegisterComponent(id crdt.ComponentID, handler ComponentHandler) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.handlers[id] = handler
}

func (d *Dispatcher) parentIndex(id scene.ID) map[crdt.EntityID]crdt.EntityID {
	idx, ok := d.parents[id]
	if !ok {
		idx = make(map[crdt.EntityID]crdt.EntityID)
		d.parents[id] = idx
	}
	return idx
}

func (d *Dispatcher) changedSet(id scene.ID) map[crdt.EntityID]struct{} {
	set, ok := d.changed[id]
	if !ok {
		set = make(map[crdt.EntityID]struct{})
		d.changed[id] = set
	}
	return set
}

// deleteEntity handles a script-issued DELETE_ENTITY message (§3 "deletion
// cascades to all descendants", §4.B "handle released when an entity is
// destroyed"): it walks the parent index for every entity whose recorded
// parent is root (directly or transitively), marks each dead on the scene
// side, and despawns its renderer handle if one was ever spawned.
func (d *Dispatcher) deleteEntity(ctx *scene.Context, root crdt.EntityID) {
	d.mu.Lock()
	defer d.mu.Unlock()

	idx := d.parentIndex(ctx.ID)
	changed := d.changedSet(ctx.ID)

	victims := []crdt.EntityID{root}
	seen := map[crdt.EntityID]struct{}{root: {}}
	for i := 0; i < len(victims); i++ {
		current := victims[i]
		for child, parent := range idx {
			if parent != current {
				continue
			}
			if _, already := seen[child]; already {
				continue
			}
			seen[child] = struct{}{}
			victims = append(victims, child)
		}
	}

	for _, id := range victims {
		if handle, live := ctx.BevyEntity(id); live && d.backend != nil {
			d.backend.DespawnEntity(handle)
		}
		ctx.SetDead(id)
		delete(idx, id)
		delete(changed, id)
	}
}

// ApplyInbound decodes a wire-format CRDT buffer produced by the scene's
// script this tick, applies it to the scene's store, then materializes any
// resulting transform/parent changes in the renderer and runs the
// cycle-safe relink pass (§4.A process_buffer, §4.F).
func (d *Dispatcher) ApplyInbound(ctx *scene.Context, frame []byte) {
	ctx.ApplyInboundBuffer(frame, func(id crdt.EntityID) {
		d.deleteEntity(ctx, id)
	})

	d.mu.Lock()
	defer d.mu.Unlock()

	anyReparented := false
	for _, update := range ctx.CRDT.TakeUpdatesForComponent(TransformComponentID) {
		if update.Kind != crdt.KindLWW {
			continue
		}
		if d.applyTransform(ctx, update) {
			anyReparented = true
		}
	}

	if anyReparented {
		d.relink(ctx)
	}

	d.applyGenericComponents(ctx)
}

// applyGenericComponents drives every registered non-transform LWW
// component's decoder/constructor (§4.F inbound paragraph): for each
// (entity, cell) updated since the last tick, remove the typed component
// if the cell is a tombstone, else decode and insert.
func (d *Dispatcher) applyGenericComponents(ctx *scene.Context) {
	for id, handler := range d.handlers {
		for _, update := range ctx.CRDT.TakeUpdatesForComponent(id) {
			if update.Kind != crdt.KindLWW {
				continue
			}
			handle, live := ctx.BevyEntity(update.Entity)
			if !live {
				continue
			}
			if update.Cell.Data == nil {
				handler.Remove(handle)
				continue
			}
			handler.Apply(handle, update.Cell.Data)
		}
	}
}

// applyTransform materializes a placeholder for a not-yet-spawned parent,
// rewrites a dead parent to scene root, spawns the entity itself if
// needed, and pushes the decoded transform to the renderer backend
// (§4.F first paragraph). Returns whether the entity's recorded
// parent target changed, which gates the relink pass.
func (d *Dispatcher) applyTransform(ctx *scene.Context, update crdt.Update) bool {
	entity := update.Entity
	if update.Cell.Data == nil {
		return false // tombstoned transform: entity death handles removal
	}
	transform, ok := wire.DecodeTransform(update.Cell.Data)
	if !ok {
		logger.CRDTWarnw("malformed transform payload", "entity_id", entity)
		return false
	}

	handle, live := ctx.BevyEntity(entity)
	if !live {
		handle = d.backend.SpawnEntity(ctx.ID, entity)
		ctx.SpawnHandle(entity, handle)
	}
	d.backend.SetTransform(handle, transform)

	target := transform.Parent
	if target != crdt.EntityRoot {
		if _, parentLive := ctx.BevyEntity(target); !parentLive {
			// Parent not yet materialized: spawn a placeholder now so the
			// transform application is never blocked on ordering
			// (§4.F "must not block transform application").
			placeholder := d.backend.SpawnEntity(ctx.ID, target)
			ctx.SpawnHandle(target, placeholder)
		}
	}

	idx := d.parentIndex(ctx.ID)
	previous, had := idx[entity]
	if had && previous == target {
		return false
	}
	idx[entity] = target
	d.changedSet(ctx.ID)[entity] = struct{}{}
	return true
}

// relink runs the cycle-safe parent walk (§4.F): for every entity
// whose recorded parent target changed this tick, walk parent pointers
// toward scene root. Entities that reach root are reparented to their
// recorded target; entities on a cycle are reparented to scene root
// instead and left in the unparented set for a retry next tick.
func (d *Dispatcher) relink(ctx *scene.Context) {
	idx := d.parentIndex(ctx.ID)
	changed := d.changed[ctx.ID]
	if len(changed) == 0 {
		return
	}
	delete(d.changed, ctx.ID)

	const (
		unknown = iota
		visiting
		valid
		invalid
	)
	state := make(map[crdt.EntityID]int)

	var walk func(id crdt.EntityID, path []crdt.EntityID) int
	walk = func(id crdt.EntityID, path []crdt.EntityID) int {
		if id == crdt.EntityRoot {
			return valid
		}
		switch state[id] {
		case valid:
			return valid
		case invalid:
			return invalid
		case visiting:
			return invalid // revisited a node already on this walk: cycle
		}

		state[id] = visiting
		path = append(path, id)

		parent, known := idx[id]
		if !known {
			state[id] = valid
			return valid
		}

		result := walk(parent, path)
		if result == invalid {
			for _, member := range path {
				idx[member] = crdt.EntityRoot
				ctx.MarkUnparented(member)
				if handle, live := ctx.BevyEntity(member); live {
					if root, rootLive := ctx.BevyEntity(crdt.EntityRoot); rootLive {
						d.backend.SetParent(handle, root)
					}
				}
				state[member] = invalid
			}
			return invalid
		}

		state[id] = valid
		return valid
	}

	for entity := range changed {
		if state[entity] == unknown {
			walk(entity, nil)
		}
		if state[entity] == valid {
			if handle, live := ctx.BevyEntity(entity); live {
				target := idx[entity]
				if target == crdt.EntityRoot {
					if root, rootLive := ctx.BevyEntity(crdt.EntityRoot); rootLive {
						d.backend.SetParent(handle, root)
					}
					continue
				}
				if parentHandle, parentLive := ctx.BevyEntity(target); parentLive {
					d.backend.SetParent(handle, parentHandle)
				}
			}
		}
	}
}

// EncodeOutbound serializes host-authored force_update writes accumulated
// on the scene's store since the last tick, ready to be queued into the
// script's inbound CRDT buffer (§4.A, §4.C worker loop).
func (d *Dispatcher) EncodeOutbound(ctx *scene.Context) []byte {
	updates := ctx.CRDT.TakeUpdates()
	if len(updates) == 0 {
		return nil
	}
	return crdt.EncodeFrame(updates)
}
