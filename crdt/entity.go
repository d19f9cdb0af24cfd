// Package crdt implements the in-memory CRDT store carrying entity and
// component updates between each scene's script worker and the shared
// renderer world (§3, §4.A): a last-write-wins table per component and
// a grow-only log table per component.
//
// Grounded on the sync/merkle.go for the map+mutex, dirty-tracking
// idiom ("dirty" flags deferring expensive recomputation until asked for),
// adapted here from a Merkle group tree to the per-component LWW/grow-only
// tables §3 describes.
package crdt

import "bytes"

// EntityID is a 32-bit scene entity id: 16-bit index in the low bits,
// 16-bit generation in the high bits (§3 "Scene entity id"), so a
// generation-0 id equals its index. Reserved values are defined below.
type EntityID uint32

// Reserved entity ids (§3).
const (
	EntityRoot   EntityID = 0
	EntityPlayer EntityID = 1
	EntityCamera EntityID = 2

	// ForeignPlayerRangeStart begins the contiguous range reserved for
	// foreign avatars (§3, §4.H). The range is sized generously
	// since each connected peer needs exactly one slot for its lifetime
	// in the room.
	ForeignPlayerRangeStart EntityID = 1 << 10
	ForeignPlayerRangeEnd   EntityID = 1 << 15
)

// Index returns the 16-bit index component of the id.
func (e EntityID) Index() uint16 {
	return uint16(e)
}

// Generation returns the 16-bit generation component of the id.
func (e EntityID) Generation() uint16 {
	return uint16(e >> 16)
}

// NewEntityID builds an id from an index and generation.
func NewEntityID(index, generation uint16) EntityID {
	return EntityID(uint32(generation)<<16 | uint32(index))
}

// ComponentID is a stable 32-bit component type identifier (§3).
type ComponentID uint32

// PositionPolicy constrains which entities a component may attach to
// (§3 "fixed position policy").
type PositionPolicy int

const (
	PositionAny PositionPolicy = iota
	PositionRootOnly
	PositionEntityOnly
)

// CRDTKind selects a component's merge discipline (§3).
type CRDTKind int

const (
	KindLWW CRDTKind = iota
	KindGrowOnly
)

// compareData implements §3's LWW tie-break: absent data orders below
// present data; among present data, lexicographic byte comparison.
//
// This resolves §9's open question (tie-breaking is described
// inconsistently in the source: "lexicographic on serialized bytes" in
// some paths, "first-write wins" in others) by following §3's cell update
// rule verbatim, which is stated unambiguously as lexicographic-on-bytes
// with absent-below-present. See DESIGN.md.
func compareData(a, b []byte) int {
	aAbsent, bAbsent := a == nil, b == nil
	switch {
	case aAbsent && bAbsent:
		return 0
	case aAbsent:
		return -1
	case bAbsent:
		return 1
	default:
		return bytes.Compare(a, b)
	}
}
