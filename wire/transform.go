// Package wire implements the fixed binary layouts carried over the
// CRDT transport (§6 "Component payload encoding"): the
// transform-and-parent component's 44-byte little-endian record.
//
// Grounded on crdt/frame.go's own little-endian, fixed-field codec for the
// surrounding message envelope, and on the sync/content.go use of
// encoding/binary for fixed-width record encoding — no protobuf message is
// defined anywhere in the pack for a record this small and fixed-shape, so
// hand-rolled binary.LittleEndian encode/decode is used here rather than
// round-tripping through protobuf for four fields (see DESIGN.md).
package wire

import (
	"encoding/binary"
	"math"

	"github.com/coreworld/explorer/crdt"
)

// TransformSize is the wire size of one transform-and-parent record
// (§6): f32x3 translation, f32x4 rotation, f32x3 scale, u32 parent id.
const TransformSize = 3*4 + 4*4 + 3*4 + 4

// Transform is the decoded transform-and-parent LWW component value
// (§4.F "Hierarchy resolution").
type Transform struct {
	Translation [3]float32
	Rotation    [4]float32 // x, y, z, w
	Scale       [3]float32
	Parent      crdt.EntityID
}

// IdentityTransform is the default transform assigned to materialized
// placeholder entities (§4.F "materializes the parent as a
// placeholder (default transform, ...)").
var IdentityTransform = Transform{
	Rotation: [4]float32{0, 0, 0, 1},
	Scale:    [3]float32{1, 1, 1},
}

// DecodeTransform parses a 44-byte wire record, undoing the z/w sign flip
// the wire format applies to convert between left- and right-handed
// rotation conventions (§6).
func DecodeTransform(data []byte) (Transform, bool) {
	if len(data) != TransformSize {
		return Transform{}, false
	}
	var t Transform
	off := 0
	for i := 0; i < 3; i++ {
		t.Translation[i] = readF32(data[off:])
		off += 4
	}
	for i := 0; i < 4; i++ {
		t.Rotation[i] = readF32(data[off:])
		off += 4
	}
	t.Rotation[2] = -t.Rotation[2]
	t.Rotation[3] = -t.Rotation[3]
	for i := 0; i < 3; i++ {
		t.Scale[i] = readF32(data[off:])
		off += 4
	}
	t.Parent = crdt.EntityID(binary.LittleEndian.Uint32(data[off:]))
	return t, true
}

// Encode serializes t back to the 44-byte wire record, reapplying the
// z/w sign flip.
func (t Transform) Encode() []byte {
	buf := make([]byte, TransformSize)
	off := 0
	for i := 0; i < 3; i++ {
		writeF32(buf[off:], t.Translation[i])
		off += 4
	}
	rot := t.Rotation
	rot[2] = -rot[2]
	rot[3] = -rot[3]
	for i := 0; i < 4; i++ {
		writeF32(buf[off:], rot[i])
		off += 4
	}
	for i := 0; i < 3; i++ {
		writeF32(buf[off:], t.Scale[i])
		off += 4
	}
	binary.LittleEndian.PutUint32(buf[off:], uint32(t.Parent))
	return buf
}

func readF32(b []byte) float32 {
	return math.Float32frombits(binary.LittleEndian.Uint32(b))
}

func writeF32(b []byte, v float32) {
	binary.LittleEndian.PutUint32(b, math.Float32bits(v))
}
