package crdt

import (
	"sync"

	"github.com/coreworld/explorer/logger"
)

// Cell is a single LWW register value (§3 "CRDT LWW cell").
// Data == nil means tombstoned: the component is absent but the timestamp
// slot is occupied to prevent resurrection by late writes.
type Cell struct {
	Timestamp uint32
	Data      []byte
}

// lwwTable holds one LWW component's state across all entities, plus the
// set of entities written since the last TakeUpdates (§4.A
// take_updates), mirroring the group.dirty flag idiom in
// sync/merkle.go.
type lwwTable struct {
	cells   map[EntityID]Cell
	updated map[EntityID]struct{}
}

func newLWWTable() *lwwTable {
	return &lwwTable{
		cells:   make(map[EntityID]Cell),
		updated: make(map[EntityID]struct{}),
	}
}

// growTable holds one grow-only component's append log per entity.
type growTable struct {
	queues map[EntityID][][]byte
}

func newGrowTable() *growTable {
	return &growTable{queues: make(map[EntityID][][]byte)}
}

// ComponentSpec registers one component's position policy and CRDT kind
// (§3). The store consults this before every mutation (§4.A
// "Policy guards").
type ComponentSpec struct {
	ID     ComponentID
	Policy PositionPolicy
	Kind   CRDTKind
}

// Store is the per-scene CRDT state: one LWW or grow-only table per
// registered component (§3 "Store").
type Store struct {
	mu    sync.Mutex
	specs map[ComponentID]ComponentSpec
	lww   map[ComponentID]*lwwTable
	grow  map[ComponentID]*growTable
}

// NewStore creates an empty store. Components must be registered with
// Register before they can be used.
func NewStore() *Store {
	return &Store{
		specs: make(map[ComponentID]ComponentSpec),
		lww:   make(map[ComponentID]*lwwTable),
		grow:  make(map[ComponentID]*growTable),
	}
}

// Register declares a component's policy and kind. Call once per component
// id before any try_update/force_update referencing it.
func (s *Store) Register(spec ComponentSpec) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.specs[spec.ID] = spec
	switch spec.Kind {
	case KindLWW:
		if _, ok := s.lww[spec.ID]; !ok {
			s.lww[spec.ID] = newLWWTable()
		}
	case KindGrowOnly:
		if _, ok := s.grow[spec.ID]; !ok {
			s.grow[spec.ID] = newGrowTable()
		}
	}
}

// Spec returns the registered spec for a component, if any.
func (s *Store) Spec(id ComponentID) (ComponentSpec, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	spec, ok := s.specs[id]
	return spec, ok
}

// isRoot reports whether id is the scene root, used for position-policy
// checks.
func isRoot(id EntityID) bool {
	return id == EntityRoot
}

// checkPolicy applies §4.A's policy guards: position policy, kind
// match, caller must separately check liveness. Returns false (and logs)
// on violation.
func (s *Store) checkPolicy(id ComponentID, entity EntityID, kind CRDTKind) bool {
	spec, ok := s.specs[id]
	if !ok {
		return false
	}
	if spec.Kind != kind {
		logger.CRDTWarnw("component kind mismatch", "component_id", id, "want", spec.Kind, "got", kind)
		return false
	}
	switch spec.Policy {
	case PositionRootOnly:
		if !isRoot(entity) {
			logger.CRDTWarnw("component requires root entity", "component_id", id, "entity_id", entity)
			return false
		}
	case PositionEntityOnly:
		if isRoot(entity) {
			logger.CRDTWarnw("component forbidden on root entity", "component_id", id, "entity_id", entity)
			return false
		}
	}
	return true
}

// TryUpdate applies the LWW rule (§3, §4.A try_update): incoming
// (timestamp, data) replaces the current cell iff timestamp is strictly
// greater, or equal and data compares greater per compareData. Returns
// whether the store changed.
func (s *Store) TryUpdate(component ComponentID, entity EntityID, timestamp uint32, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkPolicy(component, entity, KindLWW) {
		return false
	}

	table := s.lww[component]
	current, exists := table.cells[entity]
	if exists {
		if timestamp < current.Timestamp {
			return false
		}
		if timestamp == current.Timestamp && compareData(data, current.Data) <= 0 {
			return false
		}
	}

	table.cells[entity] = Cell{Timestamp: timestamp, Data: data}
	table.updated[entity] = struct{}{}
	return true
}

// ForceUpdate bypasses the LWW comparison (§4.A force_update), used
// for host-authored updates whose authority is external to the scene
// script (raycast results, input state, camera lock, etc).
func (s *Store) ForceUpdate(component ComponentID, entity EntityID, timestamp uint32, data []byte) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkPolicy(component, entity, KindLWW) {
		return
	}

	table := s.lww[component]
	table.cells[entity] = Cell{Timestamp: timestamp, Data: data}
	table.updated[entity] = struct{}{}
}

// Append adds a grow-only log entry (§3 "CRDT grow-only log").
func (s *Store) Append(component ComponentID, entity EntityID, data []byte) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !s.checkPolicy(component, entity, KindGrowOnly) {
		return false
	}

	table := s.grow[component]
	table.queues[entity] = append(table.queues[entity], data)
	return true
}

// Get returns the current LWW cell for (component, entity), if any.
func (s *Store) Get(component ComponentID, entity EntityID) (Cell, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	table, ok := s.lww[component]
	if !ok {
		return Cell{}, false
	}
	cell, ok := table.cells[entity]
	return cell, ok
}

// Clean removes cells and queues belonging to dead entities (§4.A
// clean), called after a lifecycle sweep processes death_row.
func (s *Store) Clean(dead map[EntityID]struct{}) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, table := range s.lww {
		for id := range dead {
			delete(table.cells, id)
			delete(table.updated, id)
		}
	}
	for _, table := range s.grow {
		for id := range dead {
			delete(table.queues, id)
		}
	}
}

// Update is one decoded change as returned by TakeUpdates: either an LWW
// cell write (Data nil means delete) or a batch of grow-only appends.
type Update struct {
	Component ComponentID
	Kind      CRDTKind
	Entity    EntityID
	Cell      Cell     // valid when Kind == KindLWW
	Appended  [][]byte // valid when Kind == KindGrowOnly
}

// TakeUpdatesForComponent drains only the given component's dirty set,
// leaving every other component's pending updates untouched. Used by
// consumers (the dispatch package's hierarchy resolution) that only act on
// one well-known component and must not swallow updates other subsystems
// still need to read via TakeUpdates.
func (s *Store) TakeUpdatesForComponent(component ComponentID) []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []Update
	if table, ok := s.lww[component]; ok {
		for entity := range table.updated {
			updates = append(updates, Update{
				Component: component,
				Kind:      KindLWW,
				Entity:    entity,
				Cell:      table.cells[entity],
			})
		}
		table.updated = make(map[EntityID]struct{})
	}
	if table, ok := s.grow[component]; ok {
		for entity, queue := range table.queues {
			if len(queue) == 0 {
				continue
			}
			updates = append(updates, Update{
				Component: component,
				Kind:      KindGrowOnly,
				Entity:    entity,
				Appended:  queue,
			})
			delete(table.queues, entity)
		}
	}
	return updates
}

// TakeUpdates returns every cell/queue written since the last call and
// clears the "updated" markers (§4.A take_updates). This is the
// mechanism batching outbound diffs to workers and the dispatcher.
func (s *Store) TakeUpdates() []Update {
	s.mu.Lock()
	defer s.mu.Unlock()

	var updates []Update

	for compID, table := range s.lww {
		for entity := range table.updated {
			updates = append(updates, Update{
				Component: compID,
				Kind:      KindLWW,
				Entity:    entity,
				Cell:      table.cells[entity],
			})
		}
		table.updated = make(map[EntityID]struct{})
	}

	for compID, table := range s.grow {
		for entity, queue := range table.queues {
			if len(queue) == 0 {
				continue
			}
			updates = append(updates, Update{
				Component: compID,
				Kind:      KindGrowOnly,
				Entity:    entity,
				Appended:  queue,
			})
			delete(table.queues, entity)
		}
	}

	return updates
}
