// Packet is the peer wire format (§6 "Peer wire format"): a single
// protobuf message with a oneof over the message kinds peers exchange.
// Hand-encoded with protowire rather than protoc-generated code, since
// this module has no .proto build step; protowire is the same library
// the go.mod already pulls in for protobuf support.
package wire

import (
	"math"

	"github.com/coreworld/explorer/errors"
	"github.com/coreworld/explorer/internal/util"
	"google.golang.org/protobuf/encoding/protowire"
)

// PacketKind selects which oneof member a Packet carries.
type PacketKind int

const (
	PacketUnknown PacketKind = iota
	PacketPosition
	PacketChat
	PacketProfileRequest
	PacketProfileVersion
	PacketProfileResponse
	PacketScene
	PacketVoice
)

// Field numbers for the Packet oneof (§6).
const (
	fieldPosition        = 1
	fieldChat            = 2
	fieldProfileRequest  = 3
	fieldProfileVersion  = 4
	fieldProfileResponse = 5
	fieldScene           = 6
	fieldVoice           = 7
)

// Position is the avatar position sample carried inside a Packet
// (§6: "(x,y,z, qx,qy,qz,qw, index:u32) plus optional timestamp for
// movement-compressed transports").
type Position struct {
	X, Y, Z    float32
	QX, QY, QZ, QW float32
	Index      uint32
	Timestamp  *uint32 // nil when the transport doesn't movement-compress
}

const (
	posFieldX         = 1
	posFieldY         = 2
	posFieldZ         = 3
	posFieldQX        = 4
	posFieldQY        = 5
	posFieldQZ        = 6
	posFieldQW        = 7
	posFieldIndex     = 8
	posFieldTimestamp = 9
)

func encodePosition(p Position) []byte {
	var b []byte
	b = protowire.AppendTag(b, posFieldX, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.X))
	b = protowire.AppendTag(b, posFieldY, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.Y))
	b = protowire.AppendTag(b, posFieldZ, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.Z))
	b = protowire.AppendTag(b, posFieldQX, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.QX))
	b = protowire.AppendTag(b, posFieldQY, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.QY))
	b = protowire.AppendTag(b, posFieldQZ, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.QZ))
	b = protowire.AppendTag(b, posFieldQW, protowire.Fixed32Type)
	b = protowire.AppendFixed32(b, floatBits(p.QW))
	b = protowire.AppendTag(b, posFieldIndex, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(p.Index))
	if p.Timestamp != nil {
		b = protowire.AppendTag(b, posFieldTimestamp, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(*p.Timestamp))
	}
	return b
}

func decodePosition(data []byte) (Position, error) {
	var p Position
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return Position{}, errors.New("malformed position: bad tag")
		}
		data = data[n:]
		switch typ {
		case protowire.Fixed32Type:
			v, n := protowire.ConsumeFixed32(data)
			if n < 0 {
				return Position{}, errors.New("malformed position: bad fixed32")
			}
			data = data[n:]
			f := bitsToFloat(v)
			switch num {
			case posFieldX:
				p.X = f
			case posFieldY:
				p.Y = f
			case posFieldZ:
				p.Z = f
			case posFieldQX:
				p.QX = f
			case posFieldQY:
				p.QY = f
			case posFieldQZ:
				p.QZ = f
			case posFieldQW:
				p.QW = f
			}
		case protowire.VarintType:
			v, n := protowire.ConsumeVarint(data)
			if n < 0 {
				return Position{}, errors.New("malformed position: bad varint")
			}
			data = data[n:]
			switch num {
			case posFieldIndex:
				p.Index = uint32(v)
			case posFieldTimestamp:
				p.Timestamp = util.Ptr(uint32(v))
			}
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return Position{}, errors.New("malformed position: unknown field")
			}
			data = data[n:]
		}
	}
	return p, nil
}

// Packet wraps one oneof member. Kinds other than Position carry their
// payload as opaque bytes: their internal layout belongs to the
// profile-manager and chat/voice collaborators this module doesn't
// implement (out of scope per §1), so routing only needs to tell
// kinds apart and hand the bytes onward.
type Packet struct {
	Kind     PacketKind
	Position Position
	Raw      []byte
}

// EncodePacket serializes a Packet to its wire bytes.
func EncodePacket(p Packet) []byte {
	var b []byte
	switch p.Kind {
	case PacketPosition:
		body := encodePosition(p.Position)
		b = protowire.AppendTag(b, fieldPosition, protowire.BytesType)
		b = protowire.AppendBytes(b, body)
	case PacketChat:
		b = appendRaw(b, fieldChat, p.Raw)
	case PacketProfileRequest:
		b = appendRaw(b, fieldProfileRequest, p.Raw)
	case PacketProfileVersion:
		b = appendRaw(b, fieldProfileVersion, p.Raw)
	case PacketProfileResponse:
		b = appendRaw(b, fieldProfileResponse, p.Raw)
	case PacketScene:
		b = appendRaw(b, fieldScene, p.Raw)
	case PacketVoice:
		b = appendRaw(b, fieldVoice, p.Raw)
	}
	return b
}

func appendRaw(b []byte, field protowire.Number, raw []byte) []byte {
	b = protowire.AppendTag(b, field, protowire.BytesType)
	b = protowire.AppendBytes(b, raw)
	return b
}

// DecodePacket parses the oneof tag and dispatches to the matching
// decoder.
func DecodePacket(data []byte) (Packet, error) {
	num, typ, n := protowire.ConsumeTag(data)
	if n < 0 || typ != protowire.BytesType {
		return Packet{}, errors.New("malformed packet: expected length-delimited oneof member")
	}
	data = data[n:]
	body, n := protowire.ConsumeBytes(data)
	if n < 0 {
		return Packet{}, errors.New("malformed packet: bad length-delimited body")
	}

	switch num {
	case fieldPosition:
		pos, err := decodePosition(body)
		if err != nil {
			return Packet{}, err
		}
		return Packet{Kind: PacketPosition, Position: pos}, nil
	case fieldChat:
		return Packet{Kind: PacketChat, Raw: body}, nil
	case fieldProfileRequest:
		return Packet{Kind: PacketProfileRequest, Raw: body}, nil
	case fieldProfileVersion:
		return Packet{Kind: PacketProfileVersion, Raw: body}, nil
	case fieldProfileResponse:
		return Packet{Kind: PacketProfileResponse, Raw: body}, nil
	case fieldScene:
		return Packet{Kind: PacketScene, Raw: body}, nil
	case fieldVoice:
		return Packet{Kind: PacketVoice, Raw: body}, nil
	default:
		return Packet{}, errors.Newf("malformed packet: unknown oneof field %d", num)
	}
}

func floatBits(f float32) uint32 {
	return math.Float32bits(f)
}

func bitsToFloat(v uint32) float32 {
	return math.Float32frombits(v)
}
