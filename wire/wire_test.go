package wire

import (
	"testing"

	"github.com/coreworld/explorer/crdt"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTransformRoundTrip(t *testing.T) {
	original := Transform{
		Translation: [3]float32{1, 2, 3},
		Rotation:    [4]float32{0.1, 0.2, 0.3, 0.9},
		Scale:       [3]float32{1, 1, 1},
		Parent:      crdt.NewEntityID(7, 1),
	}

	data := original.Encode()
	assert.Len(t, data, TransformSize)

	decoded, ok := DecodeTransform(data)
	require.True(t, ok)
	assert.Equal(t, original, decoded)
}

func TestDecodeTransform_RejectsWrongSize(t *testing.T) {
	_, ok := DecodeTransform([]byte{1, 2, 3})
	assert.False(t, ok)
}

func TestPacketRoundTrip_Position(t *testing.T) {
	ts := uint32(42)
	original := Packet{
		Kind: PacketPosition,
		Position: Position{
			X: 1, Y: 2, Z: 3,
			QX: 0, QY: 0, QZ: 0, QW: 1,
			Index:     5,
			Timestamp: &ts,
		},
	}

	data := EncodePacket(original)
	decoded, err := DecodePacket(data)
	require.NoError(t, err)

	assert.Equal(t, PacketPosition, decoded.Kind)
	assert.Equal(t, original.Position.X, decoded.Position.X)
	assert.Equal(t, original.Position.Index, decoded.Position.Index)
	require.NotNil(t, decoded.Position.Timestamp)
	assert.Equal(t, *original.Position.Timestamp, *decoded.Position.Timestamp)
}

func TestPacketRoundTrip_OpaqueKind(t *testing.T) {
	original := Packet{Kind: PacketChat, Raw: []byte("hello")}

	data := EncodePacket(original)
	decoded, err := DecodePacket(data)
	require.NoError(t, err)

	assert.Equal(t, PacketChat, decoded.Kind)
	assert.Equal(t, original.Raw, decoded.Raw)
}
