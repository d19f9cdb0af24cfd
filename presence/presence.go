package presence

import (
	"encoding/binary"
	"sync"
	"sync/atomic"
	"time"

	"golang.org/x/time/rate"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/identity"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/motion"
	"github.com/coreworld/explorer/wire"
)

// peerEventRate and peerEventBurst bound how often a single foreign
// player's non-position packets are accepted (§5 backpressure extends
// to misbehaving peers, not just full queues): a token bucket rather
// than the sliding-window ratelimit.Limiter the scheduler uses, since
// per-packet admission needs sub-second granularity.
const (
	peerEventRate  = 20 // events per second
	peerEventBurst = 40
)

// TransformComponentID mirrors dispatch.TransformComponentID. Presence
// writes to the same well-known component id the dispatcher's hierarchy
// resolution reads, so foreign avatars flow through the ordinary
// transform-and-parent path once broadcast into a scene's store.
const TransformComponentID crdt.ComponentID = 1

// Record is the foreign player record (§3 "Foreign player record").
type Record struct {
	Address        identity.Address
	SceneEntityID  crdt.EntityID
	TransportID    string
	LastSeen       time.Time
	ProfileVersion uint32
	Profile        []byte // cached profile document bytes, nil until fetched
}

// EventKind tags the typed, non-position peer events UI and the profile
// manager consume (§4.H "publish typed events").
type EventKind int

const (
	EventChat EventKind = iota
	EventProfileRequest
	EventProfileVersion
	EventProfileResponse
	EventScene
	EventVoice
)

// Event is a routed non-position peer message.
type Event struct {
	Kind    EventKind
	Address identity.Address
	Raw     []byte
}

// broadcastQueueSize bounds each scene subscriber's channel (§5
// "Backpressure": inbound broadcast channels are bounded and drop-oldest
// when full).
const broadcastQueueSize = 256

// subscriber is one scene's receiver, with a drop-oldest missed counter
// exposed to observability (§5).
type subscriber struct {
	ch     chan crdt.Update
	missed uint64
}

// eventQueueSize bounds each typed-event subscriber's channel, same
// drop-oldest backpressure policy as the CRDT broadcast (§5).
const eventQueueSize = 256

// eventSubscriber is one UI or profile-manager receiver of typed peer
// events (§4.H "published as typed events consumed by UI and
// profile-manager collaborators").
type eventSubscriber struct {
	ch     chan Event
	missed uint64
}

// MotionUpdate is called for every Position sample after it's converted,
// so the motion subsystem's extrapolation target can be refreshed
// (§4.H "also update an in-memory interpolation target for the
// motion subsystem (§4.I)").
type MotionUpdate func(addr identity.Address, pos motion.Vec3, rot motion.Quat, stamp uint32, hasStamp bool)

// Hub is the presence/global CRDT owner: the address↔slot bimap, the
// per-address record table, and the fan-out broadcast every live scene
// subscribes to (§4.H).
//
// Grounded on the sync package's broadcast-to-subscribers shape
// (a central owner fanning updates to per-consumer channels), adapted
// from content-sync broadcast to the bounded, drop-oldest foreign-player
// update channel §5 requires.
type Hub struct {
	mu          sync.Mutex
	slots       *SlotTable
	records     map[identity.Address]*Record
	subscribers map[string]*subscriber
	eventSubs   map[string]*eventSubscriber
	limiters    map[identity.Address]*rate.Limiter

	onMotion MotionUpdate

	droppedAllocations uint64
}

// New creates an empty Hub. onMotion may be nil if the caller doesn't
// need motion extrapolation wired in (e.g. tests).
func New(onMotion MotionUpdate) *Hub {
	return &Hub{
		slots:       NewSlotTable(),
		records:     make(map[identity.Address]*Record),
		subscribers: make(map[string]*subscriber),
		eventSubs:   make(map[string]*eventSubscriber),
		limiters:    make(map[identity.Address]*rate.Limiter),
		onMotion:    onMotion,
	}
}

// eventLimiter returns addr's token bucket, allocating one on first use.
func (h *Hub) eventLimiter(addr identity.Address) *rate.Limiter {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.limiters[addr]
	if !ok {
		l = rate.NewLimiter(rate.Limit(peerEventRate), peerEventBurst)
		h.limiters[addr] = l
	}
	return l
}

// Subscribe registers a scene as a broadcast receiver (§4.H "Scenes
// subscribe: each scene context keeps a receiver").
func (h *Hub) Subscribe(sceneID string) <-chan crdt.Update {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &subscriber{ch: make(chan crdt.Update, broadcastQueueSize)}
	h.subscribers[sceneID] = sub
	return sub.ch
}

// Unsubscribe removes a scene's receiver, called on scene teardown.
func (h *Hub) Unsubscribe(sceneID string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[sceneID]; ok {
		close(sub.ch)
		delete(h.subscribers, sceneID)
	}
}

// MissedCount returns how many broadcast updates a scene's subscriber has
// dropped due to a full queue.
func (h *Hub) MissedCount(sceneID string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.subscribers[sceneID]; ok {
		return atomic.LoadUint64(&sub.missed)
	}
	return 0
}

// SubscribeEvents registers a UI or profile-manager collaborator as a
// typed-event receiver (§4.H). name only needs to be unique among a
// Hub's current subscribers.
func (h *Hub) SubscribeEvents(name string) <-chan Event {
	h.mu.Lock()
	defer h.mu.Unlock()
	sub := &eventSubscriber{ch: make(chan Event, eventQueueSize)}
	h.eventSubs[name] = sub
	return sub.ch
}

// UnsubscribeEvents removes a previously registered typed-event receiver.
func (h *Hub) UnsubscribeEvents(name string) {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.eventSubs[name]; ok {
		close(sub.ch)
		delete(h.eventSubs, name)
	}
}

// MissedEventCount returns how many typed events a subscriber has dropped
// due to a full queue.
func (h *Hub) MissedEventCount(name string) uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	if sub, ok := h.eventSubs[name]; ok {
		return atomic.LoadUint64(&sub.missed)
	}
	return 0
}

func (h *Hub) broadcast(update crdt.Update) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.subscribers {
		select {
		case sub.ch <- update:
		default:
			// drop-oldest: pop one and retry once (§5 backpressure).
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- update:
			default:
				atomic.AddUint64(&sub.missed, 1)
			}
		}
	}
}

// HandlePacket routes one decoded peer packet from addr (§4.H).
func (h *Hub) HandlePacket(addr identity.Address, transportID string, pkt wire.Packet, now time.Time) {
	_, hasSlot := h.slots.Lookup(addr)
	if !hasSlot {
		if _, ok := h.slots.Allocate(addr); !ok {
			atomic.AddUint64(&h.droppedAllocations, 1)
			logger.PresenceInfow("foreign player slot range exhausted, dropping peer", "wallet", addr.String())
			return
		}
	}

	slot, _ := h.slots.Lookup(addr)

	h.mu.Lock()
	record, ok := h.records[addr]
	if !ok {
		record = &Record{Address: addr, SceneEntityID: slot, TransportID: transportID}
		h.records[addr] = record
	}
	record.LastSeen = now
	h.mu.Unlock()

	if pkt.Kind == wire.PacketPosition {
		h.handlePosition(addr, slot, pkt.Position, now)
		return
	}

	if !h.eventLimiter(addr).Allow() {
		logger.PresenceWarnw("dropping peer packet over rate limit", "wallet", addr.String(), "kind", pkt.Kind)
		return
	}

	switch pkt.Kind {
	case wire.PacketChat:
		h.publishEvent(Event{Kind: EventChat, Address: addr, Raw: pkt.Raw})
	case wire.PacketProfileRequest:
		h.publishEvent(Event{Kind: EventProfileRequest, Address: addr, Raw: pkt.Raw})
	case wire.PacketProfileVersion:
		h.handleProfileVersion(addr, pkt.Raw)
	case wire.PacketProfileResponse:
		h.handleProfileResponse(addr, pkt.Raw)
	case wire.PacketScene:
		h.publishEvent(Event{Kind: EventScene, Address: addr, Raw: pkt.Raw})
	case wire.PacketVoice:
		h.publishEvent(Event{Kind: EventVoice, Address: addr, Raw: pkt.Raw})
	}
}

func (h *Hub) handlePosition(addr identity.Address, slot crdt.EntityID, pos wire.Position, now time.Time) {
	transform := wire.Transform{
		Translation: [3]float32{pos.X, pos.Y, pos.Z},
		Rotation:    [4]float32{pos.QX, pos.QY, pos.QZ, pos.QW},
		Scale:       [3]float32{1, 1, 1},
		Parent:      crdt.EntityRoot,
	}

	update := crdt.Update{
		Component: TransformComponentID,
		Kind:      crdt.KindLWW,
		Entity:    slot,
		Cell:      crdt.Cell{Timestamp: uint32(now.UnixMilli()), Data: transform.Encode()},
	}
	h.broadcast(update)

	if h.onMotion != nil {
		h.onMotion(addr,
			motion.Vec3{X: pos.X, Y: pos.Y, Z: pos.Z},
			motion.Quat{X: pos.QX, Y: pos.QY, Z: pos.QZ, W: pos.QW},
			derefOr(pos.Timestamp, 0),
			pos.Timestamp != nil,
		)
	}
}

func derefOr(p *uint32, def uint32) uint32 {
	if p == nil {
		return def
	}
	return *p
}

// decodeProfileVersion reads the little-endian u32 version number a
// ProfileVersion packet's payload carries (§6 peer wire format style).
func decodeProfileVersion(raw []byte) (uint32, bool) {
	if len(raw) < 4 {
		return 0, false
	}
	return binary.LittleEndian.Uint32(raw[0:4]), true
}

// decodeProfileResponse reads a ProfileResponse payload's leading
// version number followed by the profile document bytes.
func decodeProfileResponse(raw []byte) (version uint32, doc []byte, ok bool) {
	if len(raw) < 4 {
		return 0, nil, false
	}
	return binary.LittleEndian.Uint32(raw[0:4]), raw[4:], true
}

// handleProfileVersion implements the foreign-player profile cache's
// re-request policy: announce the version to collaborators regardless,
// but only ask for the full document when it actually advances past
// what's cached, rather than on every announcement.
func (h *Hub) handleProfileVersion(addr identity.Address, raw []byte) {
	version, ok := decodeProfileVersion(raw)
	if !ok {
		logger.PresenceWarnw("malformed profile version packet", "wallet", addr.String())
		return
	}

	h.publishEvent(Event{Kind: EventProfileVersion, Address: addr, Raw: raw})

	h.mu.Lock()
	record, known := h.records[addr]
	stale := known && version > record.ProfileVersion
	h.mu.Unlock()
	if !stale {
		return
	}
	h.publishEvent(Event{Kind: EventProfileRequest, Address: addr})
}

// handleProfileResponse caches the received document against its
// version, discarding a response that's no newer than what's already
// cached (e.g. a duplicate delivery racing a newer announcement).
func (h *Hub) handleProfileResponse(addr identity.Address, raw []byte) {
	version, doc, ok := decodeProfileResponse(raw)
	if !ok {
		logger.PresenceWarnw("malformed profile response packet", "wallet", addr.String())
		return
	}

	h.mu.Lock()
	if record, known := h.records[addr]; known && version >= record.ProfileVersion {
		record.ProfileVersion = version
		record.Profile = doc
	}
	h.mu.Unlock()

	h.publishEvent(Event{Kind: EventProfileResponse, Address: addr, Raw: raw})
}

// publishEvent fans a typed (non-position) event out to every registered
// UI/profile-manager subscriber (§4.H), with the same bounded
// drop-oldest backpressure as the CRDT broadcast (§5).
func (h *Hub) publishEvent(ev Event) {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, sub := range h.eventSubs {
		select {
		case sub.ch <- ev:
		default:
			select {
			case <-sub.ch:
			default:
			}
			select {
			case sub.ch <- ev:
			default:
				atomic.AddUint64(&sub.missed, 1)
			}
		}
	}
}

// RemovePeer drops a disconnected peer's record and frees its slot
// (transport PeerLeft event).
func (h *Hub) RemovePeer(addr identity.Address) {
	h.mu.Lock()
	delete(h.records, addr)
	delete(h.limiters, addr)
	h.mu.Unlock()
	h.slots.Release(addr)
}
