// Package scene implements the per-scene context: identity, parcel set,
// the entity index↔handle table, tick bookkeeping, the blocked-reason set,
// and the scene log ring buffer (§3 "Scene context", §4.B).
//
// Grounded on the sync/merkle.go group-tree idiom for bounded,
// mutex-guarded in-memory state with explicit dirty/liveness tracking,
// adapted from Merkle groups to the dense entity-handle array §4.B
// describes.
package scene

import "github.com/coreworld/explorer/crdt"

// handleSlot is one entry in the dense live_entities array (§3):
// a generation counter and the renderer handle it currently owns, if any.
type handleSlot struct {
	generation uint16
	handle     Handle
	live       bool
}

// Handle is an opaque renderer-side entity reference. The renderer backend
// defines its concrete representation; the scene package only threads it
// through spawn/dead bookkeeping.
type Handle uint64

// NoHandle is the zero value indicating no renderer entity is associated.
const NoHandle Handle = 0

// entityTable is the dense live_entities array plus the nascent/death_row/
// unparented tracking sets (§3).
type entityTable struct {
	slots     []handleSlot // indexed by crdt.EntityID.Index()
	nascent   map[crdt.EntityID]struct{}
	deathRow  map[crdt.EntityID]struct{}
	unparented map[crdt.EntityID]struct{}
}

func newEntityTable() *entityTable {
	return &entityTable{
		slots:      make([]handleSlot, 0, 64),
		nascent:    make(map[crdt.EntityID]struct{}),
		deathRow:   make(map[crdt.EntityID]struct{}),
		unparented: make(map[crdt.EntityID]struct{}),
	}
}

func (t *entityTable) ensureCapacity(index uint16) {
	for len(t.slots) <= int(index) {
		t.slots = append(t.slots, handleSlot{})
	}
}

// bevyEntity returns the renderer handle for id iff its generation matches
// the slot's current generation (§4.B bevy_entity).
func (t *entityTable) bevyEntity(id crdt.EntityID) (Handle, bool) {
	index := id.Index()
	if int(index) >= len(t.slots) {
		return NoHandle, false
	}
	slot := t.slots[index]
	if !slot.live || slot.generation != id.Generation() {
		return NoHandle, false
	}
	return slot.handle, true
}

// setDead advances the slot's generation and clears its handle (§4.B
// set_dead), cascading is the caller's responsibility (descendant lookup
// lives in the dispatch package's hierarchy index).
func (t *entityTable) setDead(id crdt.EntityID) {
	index := id.Index()
	if int(index) >= len(t.slots) {
		return
	}
	slot := &t.slots[index]
	if slot.generation != id.Generation() {
		return
	}
	slot.generation++
	slot.handle = NoHandle
	slot.live = false
	delete(t.nascent, id)
	delete(t.unparented, id)
	t.deathRow[id] = struct{}{}
}

// spawnHandle allocates index's slot at the requested generation and
// records the renderer handle produced for it (§4.B spawn_handle).
// The caller (dispatch package) is responsible for actually creating the
// default transform + container marker and parenting in the renderer;
// this only updates the scene-side bookkeeping.
func (t *entityTable) spawnHandle(id crdt.EntityID, handle Handle) {
	index := id.Index()
	t.ensureCapacity(index)
	t.slots[index] = handleSlot{generation: id.Generation(), handle: handle, live: true}
	t.nascent[id] = struct{}{}
}

// promoteNascent moves id from nascent to fully live, called by the next
// lifecycle sweep after spawn (§4.A "nascent→live on the next
// lifecycle sweep").
func (t *entityTable) promoteNascent(id crdt.EntityID) {
	delete(t.nascent, id)
}

// drainDeathRow returns and clears the set of entities that died since the
// last sweep, for the CRDT store's Clean pass.
func (t *entityTable) drainDeathRow() map[crdt.EntityID]struct{} {
	dead := t.deathRow
	t.deathRow = make(map[crdt.EntityID]struct{})
	return dead
}

// liveHandles returns every renderer handle currently live in the table,
// used when a scene is torn down wholesale rather than entity-by-entity
// (drain_death_row only ever holds ids that already went through set_dead,
// whose handles are already cleared).
func (t *entityTable) liveHandles() []Handle {
	var out []Handle
	for _, slot := range t.slots {
		if slot.live {
			out = append(out, slot.handle)
		}
	}
	return out
}

// markUnparented records id for a retried reparent attempt next tick
// (§4.F cycle handling).
func (t *entityTable) markUnparented(id crdt.EntityID) {
	t.unparented[id] = struct{}{}
}

// drainUnparented returns and clears entities awaiting a reparent retry.
func (t *entityTable) drainUnparented() map[crdt.EntityID]struct{} {
	pending := t.unparented
	t.unparented = make(map[crdt.EntityID]struct{})
	return pending
}
