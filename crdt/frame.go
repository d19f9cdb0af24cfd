package crdt

import (
	"encoding/binary"

	"github.com/coreworld/explorer/logger"
)

// Wire message types (§6 "Scene wire format"). Little-endian,
// each message prefixed by a u32 length (including the 8-byte header)
// and a u32 type.
const (
	msgPut          uint32 = 1
	msgDelete       uint32 = 2
	msgDeleteEntity uint32 = 3
	msgAppend       uint32 = 4
)

// frameHeaderSize is the length+type prefix every message carries.
const frameHeaderSize = 8

// ProcessBuffer parses a wire frame (§6) into put/delete/append/
// delete-entity messages and applies them to the store (§4.A
// process_buffer). When filter is true, unknown component ids are
// silently dropped (used inbound from untrusted scripts); when false they
// are still applied if registered, matching internal host-authored use.
//
// Malformed messages are logged and skipped; parsing continues with the
// remainder of the buffer (§7 "Malformed CRDT frame").
func (s *Store) ProcessBuffer(deleteEntity func(EntityID), buf []byte, filter bool) {
	for len(buf) > 0 {
		if len(buf) < frameHeaderSize {
			logger.CRDTWarnw("truncated frame header, dropping remainder", "remaining", len(buf))
			return
		}

		length := binary.LittleEndian.Uint32(buf[0:4])
		msgType := binary.LittleEndian.Uint32(buf[4:8])

		if length < frameHeaderSize || int(length) > len(buf) {
			logger.CRDTWarnw("malformed frame length, dropping remainder", "length", length, "available", len(buf))
			return
		}

		payload := buf[frameHeaderSize:length]
		buf = buf[length:]

		if !s.processMessage(msgType, payload, deleteEntity, filter) {
			logger.CRDTWarnw("dropping malformed or policy-violating message", "type", msgType)
		}
	}
}

func (s *Store) processMessage(msgType uint32, payload []byte, deleteEntity func(EntityID), filter bool) bool {
	switch msgType {
	case msgPut:
		entity, component, timestamp, data, ok := decodePutOrAppendPayload(payload)
		if !ok {
			return false
		}
		if filter {
			if _, known := s.Spec(component); !known {
				return true // silently dropped per spec, not a parse failure
			}
		}
		s.TryUpdate(component, entity, timestamp, data)
		return true

	case msgDelete:
		if len(payload) < 12 {
			return false
		}
		entity := EntityID(binary.LittleEndian.Uint32(payload[0:4]))
		component := ComponentID(binary.LittleEndian.Uint32(payload[4:8]))
		timestamp := binary.LittleEndian.Uint32(payload[8:12])
		if filter {
			if _, known := s.Spec(component); !known {
				return true
			}
		}
		s.TryUpdate(component, entity, timestamp, nil)
		return true

	case msgDeleteEntity:
		if len(payload) < 4 {
			return false
		}
		entity := EntityID(binary.LittleEndian.Uint32(payload[0:4]))
		if deleteEntity != nil {
			deleteEntity(entity)
		}
		return true

	case msgAppend:
		entity, component, _, data, ok := decodePutOrAppendPayload(payload)
		if !ok {
			return false
		}
		if filter {
			if _, known := s.Spec(component); !known {
				return true
			}
		}
		s.Append(component, entity, data)
		return true

	default:
		return false
	}
}

func decodePutOrAppendPayload(payload []byte) (entity EntityID, component ComponentID, timestamp uint32, data []byte, ok bool) {
	if len(payload) < 16 {
		return 0, 0, 0, nil, false
	}
	entity = EntityID(binary.LittleEndian.Uint32(payload[0:4]))
	component = ComponentID(binary.LittleEndian.Uint32(payload[4:8]))
	timestamp = binary.LittleEndian.Uint32(payload[8:12])
	dataLen := binary.LittleEndian.Uint32(payload[12:16])
	if len(payload) < 16+int(dataLen) {
		return 0, 0, 0, nil, false
	}
	data = payload[16 : 16+dataLen]
	return entity, component, timestamp, data, true
}

// EncodeDeleteEntity builds a standalone DELETE_ENTITY message (§6), used
// by the worker's outbound encoder and by tests exercising cascade
// deletion without a full update batch.
func EncodeDeleteEntity(entity EntityID) []byte {
	msg := make([]byte, frameHeaderSize+4)
	binary.LittleEndian.PutUint32(msg[0:4], uint32(len(msg)))
	binary.LittleEndian.PutUint32(msg[4:8], msgDeleteEntity)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(entity))
	return msg
}

// EncodeFrame serializes a set of updates into the wire format (§6),
// for either outbound host-authored diffs or test round-tripping.
func EncodeFrame(updates []Update) []byte {
	var buf []byte
	for _, u := range updates {
		switch u.Kind {
		case KindLWW:
			buf = append(buf, encodePutOrDelete(u)...)
		case KindGrowOnly:
			for _, data := range u.Appended {
				buf = append(buf, encodeAppend(u.Entity, u.Component, data)...)
			}
		}
	}
	return buf
}

func encodePutOrDelete(u Update) []byte {
	if u.Cell.Data == nil {
		msg := make([]byte, frameHeaderSize+12)
		binary.LittleEndian.PutUint32(msg[0:4], uint32(len(msg)))
		binary.LittleEndian.PutUint32(msg[4:8], msgDelete)
		binary.LittleEndian.PutUint32(msg[8:12], uint32(u.Entity))
		binary.LittleEndian.PutUint32(msg[12:16], uint32(u.Component))
		binary.LittleEndian.PutUint32(msg[16:20], u.Cell.Timestamp)
		return msg
	}
	return encodeDataMessage(msgPut, u.Entity, u.Component, u.Cell.Timestamp, u.Cell.Data)
}

func encodeAppend(entity EntityID, component ComponentID, data []byte) []byte {
	return encodeDataMessage(msgAppend, entity, component, 0, data)
}

func encodeDataMessage(msgType uint32, entity EntityID, component ComponentID, timestamp uint32, data []byte) []byte {
	total := frameHeaderSize + 16 + len(data)
	msg := make([]byte, total)
	binary.LittleEndian.PutUint32(msg[0:4], uint32(total))
	binary.LittleEndian.PutUint32(msg[4:8], msgType)
	binary.LittleEndian.PutUint32(msg[8:12], uint32(entity))
	binary.LittleEndian.PutUint32(msg[12:16], uint32(component))
	binary.LittleEndian.PutUint32(msg[16:20], timestamp)
	binary.LittleEndian.PutUint32(msg[20:24], uint32(len(data)))
	copy(msg[24:], data)
	return msg
}
