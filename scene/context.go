package scene

import (
	"sync"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/logger"
)

// Parcel is a fixed-size world-coordinate cell (§10 glossary
// "Parcel"), the unit of scene placement.
type Parcel struct {
	X, Y int32
}

// Point is one vertex of a scene's ground-plane bounds polygon.
type Point struct {
	X, Y float32
}

// ID identifies a scene context: content-hash-addressed for parcel scenes,
// URN/ENS-keyed for portable scenes (§4.E).
type ID string

// Context is the per-scene state §3 describes: identity, parcel set,
// entity-id↔handle table, tick bookkeeping, blocked set, and log ring.
//
// Grounded on the sync/merkle.go Group type for the shape of
// mutex-guarded, map-backed per-unit state accumulating dirty markers
// between sweeps; adapted here to the dense entity array and
// nascent/death_row/unparented bookkeeping §4.B requires instead of
// merkle.go's content-hash tree.
type Context struct {
	ID         ID
	ContentHash string
	ParcelBase  Parcel
	Parcels     map[Parcel]struct{}
	Bounds      []Point
	IsPortable  bool
	Priority    float32

	mu              sync.Mutex
	tickNumber      uint32
	lastUpdateFrame uint32
	entities        *entityTable
	blocked         map[BlockedReason]struct{}
	logs            *logRing

	CRDT *crdt.Store
}

// NewContext creates an empty scene context for the given identity. sink
// may be nil if log lines evicted from the ring should simply be dropped.
func NewContext(id ID, contentHash string, base Parcel, parcels map[Parcel]struct{}, bounds []Point, portable bool, sink LogSink) *Context {
	return &Context{
		ID:          id,
		ContentHash: contentHash,
		ParcelBase:  base,
		Parcels:     parcels,
		Bounds:      bounds,
		IsPortable:  portable,
		entities:    newEntityTable(),
		blocked:     make(map[BlockedReason]struct{}),
		logs:        newLogRing(string(id), sink),
		CRDT:        crdt.NewStore(),
	}
}

// TickNumber returns the scene's own tick counter, incremented once per
// worker grant (§3 "tick_number").
func (c *Context) TickNumber() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.tickNumber
}

// AdvanceTick increments the tick counter and records the engine frame it
// ran on (§3 "last_update_frame"), called by the scheduler after a
// successful grant.
func (c *Context) AdvanceTick(frame uint32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.tickNumber++
	c.lastUpdateFrame = frame
}

// LastUpdateFrame returns the engine frame counter value at the scene's
// last tick grant, used by the scheduler's last-run penalty.
func (c *Context) LastUpdateFrame() uint32 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastUpdateFrame
}

// BevyEntity returns the renderer handle for id iff its generation is
// still current (§4.B bevy_entity).
func (c *Context) BevyEntity(id crdt.EntityID) (Handle, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entities.bevyEntity(id)
}

// SetDead advances id's generation, clears its handle, and records it on
// death_row for the next CRDT clean pass (§4.B set_dead). Cascading
// to descendants is the dispatch package's responsibility, since it owns
// the parent/child index.
func (c *Context) SetDead(id crdt.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities.setDead(id)
}

// SpawnHandle records a newly allocated renderer handle for id (§4.B
// spawn_handle). Creating the default transform, container marker, and
// parenting in the renderer is the dispatch package's job; this call only
// updates scene-side bookkeeping and marks id nascent.
func (c *Context) SpawnHandle(id crdt.EntityID, handle Handle) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities.spawnHandle(id, handle)
}

// PromoteNascent moves id out of the nascent set on the next lifecycle
// sweep (§4.A "nascent→live on the next lifecycle sweep").
func (c *Context) PromoteNascent(id crdt.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities.promoteNascent(id)
}

// DrainDeathRow returns and clears the entities that died since the last
// sweep, feeding the CRDT store's Clean pass.
func (c *Context) DrainDeathRow() map[crdt.EntityID]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entities.drainDeathRow()
}

// LiveHandles returns every renderer handle still live in the scene, used
// by the lifecycle manager to release every handle when a scene is torn
// down wholesale (§4.E step 3 "release handles"), since by then none
// of the surviving entities have been through SetDead.
func (c *Context) LiveHandles() []Handle {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entities.liveHandles()
}

// MarkUnparented queues id for a reparent retry next tick (§4.F cycle
// recovery).
func (c *Context) MarkUnparented(id crdt.EntityID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entities.markUnparented(id)
}

// DrainUnparented returns and clears entities awaiting a reparent retry.
func (c *Context) DrainUnparented() map[crdt.EntityID]struct{} {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.entities.drainUnparented()
}

// Block adds reason to the blocked set, withholding the scene from tick
// grants until Unblock clears it (§3 "blocked: set<reason>").
func (c *Context) Block(reason BlockedReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, already := c.blocked[reason]; !already {
		logger.LifecycleWarnw("scene blocked", "scene_id", c.ID, "reason", reason)
	}
	c.blocked[reason] = struct{}{}
}

// Unblock removes reason from the blocked set.
func (c *Context) Unblock(reason BlockedReason) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.blocked, reason)
}

// Blocked reports whether any reason currently withholds tick grants.
func (c *Context) Blocked() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.blocked) > 0
}

// BlockedReasons returns a snapshot of the current blocked set.
func (c *Context) BlockedReasons() []BlockedReason {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]BlockedReason, 0, len(c.blocked))
	for r := range c.blocked {
		out = append(out, r)
	}
	return out
}

// Log appends a console line to the scene's log ring (§3 "logs:
// ring_buffer").
func (c *Context) Log(level LogLevel, line string) {
	c.mu.Lock()
	tick := c.tickNumber
	c.mu.Unlock()
	c.logs.push(LogEntry{Level: level, Tick: tick, Line: line})
}

// Logs returns a chronological snapshot of the scene's recent console
// lines.
func (c *Context) Logs() []LogEntry {
	return c.logs.Snapshot()
}

// ApplyInboundBuffer decodes a wire-format CRDT buffer from the scene's
// script and applies it to the store (§4.A process_buffer). deleteEntity
// is invoked once per DELETE_ENTITY message in the buffer; the caller
// decides what deletion means beyond this scene's own bookkeeping — the
// dispatcher's Dispatcher.ApplyInbound cascades to descendants and
// releases renderer handles, while a nil deleteEntity just marks id dead
// with no further consequence (e.g. tests driving the CRDT store alone).
func (c *Context) ApplyInboundBuffer(buf []byte, deleteEntity func(crdt.EntityID)) {
	if deleteEntity == nil {
		deleteEntity = c.SetDead
	}
	c.CRDT.ProcessBuffer(deleteEntity, buf, true)
}
