// Package presence maintains the global address↔slot bimap and routes
// incoming peer messages to scene-local CRDT updates (§4.H
// "Presence / global CRDT").
package presence

import (
	"sync"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/identity"
)

// SlotTable is the address↔local-slot-entity bimap (§4.H). Slot
// indices are drawn from the entity index range crdt package reserves
// for foreign avatars; each slot's entity id uses generation 0 for as
// long as the same address holds it, bumping on reuse like any other
// scene entity.
type SlotTable struct {
	mu        sync.Mutex
	bySlot    map[crdt.EntityID]identity.Address
	byAddress map[identity.Address]crdt.EntityID
	nextIndex uint16
	generation map[uint16]uint16
}

// NewSlotTable creates an empty bimap.
func NewSlotTable() *SlotTable {
	return &SlotTable{
		bySlot:     make(map[crdt.EntityID]identity.Address),
		byAddress:  make(map[identity.Address]crdt.EntityID),
		nextIndex:  uint16(crdt.ForeignPlayerRangeStart),
		generation: make(map[uint16]uint16),
	}
}

// Lookup returns the existing slot for addr, if any.
func (t *SlotTable) Lookup(addr identity.Address) (crdt.EntityID, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.byAddress[addr]
	return id, ok
}

// Allocate assigns addr a new slot from the reserved range, or returns its
// existing slot if it already has one. ok is false if the range is
// exhausted (§4.H "if exhausted, drop").
func (t *SlotTable) Allocate(addr identity.Address) (id crdt.EntityID, ok bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	if existing, found := t.byAddress[addr]; found {
		return existing, true
	}

	limit := uint16(crdt.ForeignPlayerRangeEnd)
	for index := t.nextIndex; index < limit; index++ {
		if _, occupied := t.bySlot[crdt.NewEntityID(index, t.generation[index])]; !occupied {
			id := crdt.NewEntityID(index, t.generation[index])
			t.bySlot[id] = addr
			t.byAddress[addr] = id
			t.nextIndex = index + 1
			return id, true
		}
	}
	return 0, false
}

// Release frees addr's slot, bumping the index's generation so a stale
// reference to the old entity id cannot resolve to the next occupant.
func (t *SlotTable) Release(addr identity.Address) {
	t.mu.Lock()
	defer t.mu.Unlock()

	id, ok := t.byAddress[addr]
	if !ok {
		return
	}
	delete(t.byAddress, addr)
	delete(t.bySlot, id)
	t.generation[id.Index()]++
	if id.Index() < t.nextIndex {
		t.nextIndex = id.Index()
	}
}

// AddressFor returns the address occupying slot, if any.
func (t *SlotTable) AddressFor(slot crdt.EntityID) (identity.Address, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr, ok := t.bySlot[slot]
	return addr, ok
}
