package presence

import (
	"encoding/binary"
	"testing"
	"time"

	"github.com/coreworld/explorer/identity"
	"github.com/coreworld/explorer/motion"
	"github.com/coreworld/explorer/wire"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func encodeVersion(v uint32) []byte {
	b := make([]byte, 4)
	binary.LittleEndian.PutUint32(b, v)
	return b
}

func encodeProfileResponse(v uint32, doc []byte) []byte {
	return append(encodeVersion(v), doc...)
}

func testAddress(b byte) identity.Address {
	var bytes [identity.AddressLength]byte
	bytes[0] = b
	addr, err := identity.FromBytes(bytes[:])
	if err != nil {
		panic(err)
	}
	return addr
}

func TestSlotTable_AllocateAndLookup(t *testing.T) {
	table := NewSlotTable()
	addr := testAddress(1)

	id, ok := table.Allocate(addr)
	require.True(t, ok)

	looked, found := table.Lookup(addr)
	assert.True(t, found)
	assert.Equal(t, id, looked)
}

func TestSlotTable_AllocateIsIdempotent(t *testing.T) {
	table := NewSlotTable()
	addr := testAddress(2)

	first, _ := table.Allocate(addr)
	second, _ := table.Allocate(addr)
	assert.Equal(t, first, second)
}

func TestSlotTable_ReleaseFreesSlotWithBumpedGeneration(t *testing.T) {
	table := NewSlotTable()
	addr := testAddress(3)

	id, _ := table.Allocate(addr)
	table.Release(addr)

	_, found := table.Lookup(addr)
	assert.False(t, found)

	other := testAddress(4)
	newID, _ := table.Allocate(other)
	if newID.Index() == id.Index() {
		assert.NotEqual(t, id.Generation(), newID.Generation())
	}
}

func TestHub_PositionBroadcastsAndFeedsMotion(t *testing.T) {
	var gotSample bool
	hub := New(func(addr identity.Address, pos motion.Vec3, rot motion.Quat, stamp uint32, hasStamp bool) {
		gotSample = true
	})

	ch := hub.Subscribe("scene-1")
	addr := testAddress(5)

	hub.HandlePacket(addr, "transport-1", wire.Packet{
		Kind: wire.PacketPosition,
		Position: wire.Position{
			X: 1, Y: 2, Z: 3,
			QW: 1,
		},
	}, time.Now())

	select {
	case update := <-ch:
		assert.Equal(t, TransformComponentID, update.Component)
	default:
		t.Fatal("expected a broadcast update")
	}
	assert.True(t, gotSample)
}

func TestHub_ChatPublishesTypedEventToSubscribers(t *testing.T) {
	hub := New(nil)
	events := hub.SubscribeEvents("ui")
	addr := testAddress(7)

	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketChat, Raw: []byte("hello")}, time.Now())

	select {
	case ev := <-events:
		assert.Equal(t, EventChat, ev.Kind)
		assert.Equal(t, addr, ev.Address)
		assert.Equal(t, []byte("hello"), ev.Raw)
	default:
		t.Fatal("expected a published chat event")
	}
}

func TestHub_ProfileVersionOnlyRequestsWhenVersionAdvances(t *testing.T) {
	hub := New(nil)
	events := hub.SubscribeEvents("profile-manager")
	addr := testAddress(8)

	// First contact: the record created for this packet has no cached
	// profile (version 0), so version 1 advances past it and is requested.
	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketProfileVersion, Raw: encodeVersion(1)}, time.Now())
	drainEvent(t, events, EventProfileVersion)
	drainEvent(t, events, EventProfileRequest)
	assertNoEvent(t, events)

	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketProfileResponse, Raw: encodeProfileResponse(1, []byte("doc-v1"))}, time.Now())
	drainEvent(t, events, EventProfileResponse)

	hub.mu.Lock()
	record := hub.records[addr]
	hub.mu.Unlock()
	require.NotNil(t, record)
	assert.Equal(t, uint32(1), record.ProfileVersion)
	assert.Equal(t, []byte("doc-v1"), record.Profile)

	// Same version announced again: no re-request.
	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketProfileVersion, Raw: encodeVersion(1)}, time.Now())
	drainEvent(t, events, EventProfileVersion)
	assertNoEvent(t, events)

	// Newer version announced: a request event is published.
	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketProfileVersion, Raw: encodeVersion(2)}, time.Now())
	drainEvent(t, events, EventProfileVersion)
	req := drainEvent(t, events, EventProfileRequest)
	assert.Equal(t, addr, req.Address)
}

func drainEvent(t *testing.T, ch <-chan Event, want EventKind) Event {
	t.Helper()
	select {
	case ev := <-ch:
		require.Equal(t, want, ev.Kind)
		return ev
	default:
		t.Fatalf("expected a %v event", want)
		return Event{}
	}
}

func assertNoEvent(t *testing.T, ch <-chan Event) {
	t.Helper()
	select {
	case ev := <-ch:
		t.Fatalf("expected no further event, got %v", ev.Kind)
	default:
	}
}

func TestHub_RemovePeerFreesSlot(t *testing.T) {
	hub := New(nil)
	addr := testAddress(6)

	hub.HandlePacket(addr, "t1", wire.Packet{Kind: wire.PacketChat, Raw: []byte("hi")}, time.Now())
	_, found := hub.slots.Lookup(addr)
	require.True(t, found)

	hub.RemovePeer(addr)
	_, found = hub.slots.Lookup(addr)
	assert.False(t, found)
}
