// Package lifecycle resolves parcels to scene hashes, spawns and tears
// down scene contexts and their workers, and tracks whether the primary
// player is inside any loaded, ready scene (§4.E "Scene lifecycle").
//
// Grounded on the pulse/async worker pool lifecycle (spawn on
// demand, track by key, stop and drop on teardown), adapted here from a
// flat job set to the parcel-gated, distance-ranked scene set §4.E
// describes.
package lifecycle

import (
	"context"
	"sync"

	"github.com/coreworld/explorer/asset"
	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/scheduler"
	"github.com/coreworld/explorer/scriptworker"
)

// Manifest is a scene's entity manifest: metadata, content hash table, and
// main script hash (§4.E step 2). Manifest parsing itself is an
// external collaborator concern (§1 scopes the asset fetcher to
// "maps a hash to bytes"); this package only needs the fields required to
// spawn a worker.
type Manifest struct {
	ContentHash    string
	MainScriptHash string
	Metadata       map[string]string
	ParcelBase     scene.Parcel
	Parcels        []scene.Parcel
	Bounds         []scene.Point
}

// RealmResolver maps the desired parcel set to active scene hashes (spec
// §4.E "realm pointer table (parcel → active scene hash)").
type RealmResolver interface {
	Pointers(ctx context.Context, parcels []scene.Parcel) (map[scene.Parcel]string, error)
}

// ManifestResolver fetches a scene's manifest by content hash (§4.E
// step 2 "fetch the scene entity manifest").
type ManifestResolver interface {
	Resolve(ctx context.Context, contentHash string) (Manifest, error)
}

// OutOfWorldSink observes the "out of world" marker transition (spec
// §4.E step 4).
type OutOfWorldSink interface {
	SetOutOfWorld(bool)
}

// loadScene is one tracked live scene.
type loadScene struct {
	ctx     *scene.Context
	worker  *scriptworker.Worker
	engine  *scriptworker.Engine
	parcels map[scene.Parcel]struct{}
}

// PortableRequest is an active home/portable scene request, keyed outside
// the parcel grid (§4.E "Portable scenes bypass parcel gating and
// are keyed by a separate location (URN or ENS name)").
type PortableRequest struct {
	Location string // URN or ENS name
	Hash     string
}

// Manager drives the per-frame lifecycle update (§4.E).
type Manager struct {
	LoadDistance      int32 // parcels, Chebyshev radius
	UnloadHysteresis  int32 // extra parcels before despawn
	MemoryLimitPages  uint32

	Realm     RealmResolver
	Manifests ManifestResolver
	Assets    *asset.Fetcher
	Scheduler *scheduler.Scheduler
	Dispatch  *dispatch.Dispatcher
	OutOfWorld OutOfWorldSink

	mu        sync.Mutex
	loaded    map[scene.ID]*loadScene
	portable  map[string]*loadScene
}

// NewManager wires the lifecycle driver to its collaborators.
func NewManager(loadDistance, unloadHysteresis int32, memoryLimitPages uint32, realm RealmResolver, manifests ManifestResolver, assets *asset.Fetcher, sched *scheduler.Scheduler, disp *dispatch.Dispatcher, outOfWorld OutOfWorldSink) *Manager {
	return &Manager{
		LoadDistance:     loadDistance,
		UnloadHysteresis: unloadHysteresis,
		MemoryLimitPages: memoryLimitPages,
		Realm:            realm,
		Manifests:        manifests,
		Assets:           assets,
		Scheduler:        sched,
		Dispatch:         disp,
		OutOfWorld:       outOfWorld,
		loaded:           make(map[scene.ID]*loadScene),
		portable:         make(map[string]*loadScene),
	}
}

// chebyshev is the parcel-grid distance metric (§4.D uses parcel
// distance for the priority's distance term; the same metric bounds the
// desired set here).
func chebyshev(a, b scene.Parcel) int32 {
	dx := a.X - b.X
	if dx < 0 {
		dx = -dx
	}
	dy := a.Y - b.Y
	if dy < 0 {
		dy = -dy
	}
	if dx > dy {
		return dx
	}
	return dy
}

// desiredParcels enumerates every parcel within LoadDistance of player
// (§4.E step 1).
func (m *Manager) desiredParcels(player scene.Parcel) []scene.Parcel {
	out := make([]scene.Parcel, 0, (2*m.LoadDistance+1)*(2*m.LoadDistance+1))
	for dx := -m.LoadDistance; dx <= m.LoadDistance; dx++ {
		for dy := -m.LoadDistance; dy <= m.LoadDistance; dy++ {
			out = append(out, scene.Parcel{X: player.X + dx, Y: player.Y + dy})
		}
	}
	return out
}

// Update runs one lifecycle pass (§4.E, the full four-step
// algorithm). backend is the renderer surface used to release handles for
// scenes being torn down.
func (m *Manager) Update(ctx context.Context, player scene.Parcel, backend dispatch.Backend) error {
	desired := m.desiredParcels(player)
	pointers, err := m.Realm.Pointers(ctx, desired)
	if err != nil {
		return err
	}

	if err := m.spawnMissing(ctx, player, pointers); err != nil {
		return err
	}
	m.despawnOutOfRange(ctx, player, backend)
	m.publishOutOfWorld(player)
	return nil
}

// spawnMissing implements step 2: fetch manifest + script, build context,
// spawn worker for every hash in the desired set not currently loaded.
func (m *Manager) spawnMissing(ctx context.Context, player scene.Parcel, pointers map[scene.Parcel]string) error {
	seen := make(map[string]struct{})
	for parcel, hash := range pointers {
		if hash == "" {
			continue
		}
		if _, already := seen[hash]; already {
			continue
		}
		seen[hash] = struct{}{}

		m.mu.Lock()
		_, loaded := m.loaded[scene.ID(hash)]
		m.mu.Unlock()
		if loaded {
			continue
		}

		manifest, err := m.Manifests.Resolve(ctx, hash)
		if err != nil {
			logger.LifecycleWarnw("scene manifest resolve failed", "hash", hash, "error", err)
			continue
		}

		wasmBytes, err := m.Assets.Fetch(ctx, manifest.MainScriptHash)
		if err != nil {
			// §7 "Asset fetch failure": the fetcher itself already
			// exhausted its retry budget; the scene simply never spawns
			// this pass and is retried on the next lifecycle update.
			logger.LifecycleWarnw("scene script fetch failed", "hash", hash, "error", err)
			continue
		}

		if err := m.spawn(ctx, scene.ID(hash), manifest, wasmBytes, parcel, player); err != nil {
			logger.LifecycleWarnw("scene spawn failed", "hash", hash, "error", err)
		}
	}
	return nil
}

func (m *Manager) spawn(ctx context.Context, id scene.ID, manifest Manifest, wasmBytes []byte, parcel, player scene.Parcel) error {
	parcels := make(map[scene.Parcel]struct{}, len(manifest.Parcels))
	for _, p := range manifest.Parcels {
		parcels[p] = struct{}{}
	}
	if len(parcels) == 0 {
		parcels[manifest.ParcelBase] = struct{}{}
	}

	sceneCtx := scene.NewContext(id, manifest.ContentHash, manifest.ParcelBase, parcels, manifest.Bounds, false, nil)

	engine, err := scriptworker.New(ctx, wasmBytes, m.MemoryLimitPages)
	if err != nil {
		return err
	}
	worker := scriptworker.NewWorker(sceneCtx, engine)

	m.mu.Lock()
	m.loaded[id] = &loadScene{ctx: sceneCtx, worker: worker, engine: engine, parcels: parcels}
	m.mu.Unlock()

	m.Scheduler.Add(&scheduler.Entry{
		Scene:          sceneCtx,
		Worker:         worker,
		ParcelDistance: float32(chebyshev(parcel, player)),
		ContainsPlayer: containsParcel(parcels, player),
	})
	logger.LifecycleInfow("scene spawned", "scene_id", id)
	return nil
}

func containsParcel(parcels map[scene.Parcel]struct{}, p scene.Parcel) bool {
	_, ok := parcels[p]
	return ok
}

// despawnOutOfRange implements step 3: destroy any loaded, non-portable
// scene whose parcels all lie beyond LoadDistance+UnloadHysteresis.
func (m *Manager) despawnOutOfRange(ctx context.Context, player scene.Parcel, backend dispatch.Backend) {
	limit := m.LoadDistance + m.UnloadHysteresis

	m.mu.Lock()
	var toRemove []scene.ID
	for id, ls := range m.loaded {
		if ls.ctx.IsPortable {
			continue
		}
		if withinRange(ls.parcels, player, limit) {
			continue
		}
		toRemove = append(toRemove, id)
	}
	m.mu.Unlock()

	for _, id := range toRemove {
		m.destroy(ctx, id, backend)
	}
}

func withinRange(parcels map[scene.Parcel]struct{}, player scene.Parcel, limit int32) bool {
	for p := range parcels {
		if chebyshev(p, player) <= limit {
			return true
		}
	}
	return false
}

// destroy stops a scene's worker, releases every entity handle it still
// owns, and removes it from the scheduler and loaded set (§4.E step 3
// "signal worker to stop, release handles, remove from world"). Handles
// for entities the script already deleted were released by the
// dispatcher's cascade at delete time; this only needs to sweep what's
// still standing.
func (m *Manager) destroy(ctx context.Context, id scene.ID, backend dispatch.Backend) {
	m.mu.Lock()
	ls, ok := m.loaded[id]
	if ok {
		delete(m.loaded, id)
	}
	m.mu.Unlock()
	if !ok {
		return
	}

	m.Scheduler.Remove(id)
	if err := ls.worker.Stop(ctx); err != nil {
		logger.LifecycleWarnw("scene worker stop failed", "scene_id", id, "error", err)
	}

	if backend != nil {
		for _, handle := range ls.ctx.LiveHandles() {
			backend.DespawnEntity(handle)
		}
	}
	logger.LifecycleInfow("scene despawned", "scene_id", id)
}

// publishOutOfWorld implements step 4: while the player isn't inside any
// loaded scene, publish the out-of-world marker.
func (m *Manager) publishOutOfWorld(player scene.Parcel) {
	if m.OutOfWorld == nil {
		return
	}

	m.mu.Lock()
	inside := false
	for _, ls := range m.loaded {
		if containsParcel(ls.parcels, player) {
			inside = true
			break
		}
	}
	m.mu.Unlock()

	m.OutOfWorld.SetOutOfWorld(!inside)
}

// LoadPortable spawns a portable scene keyed by location rather than
// parcel membership (§4.E "Portable scenes bypass parcel gating").
func (m *Manager) LoadPortable(ctx context.Context, req PortableRequest) error {
	m.mu.Lock()
	_, already := m.portable[req.Location]
	m.mu.Unlock()
	if already {
		return nil
	}

	manifest, err := m.Manifests.Resolve(ctx, req.Hash)
	if err != nil {
		return err
	}
	wasmBytes, err := m.Assets.Fetch(ctx, manifest.MainScriptHash)
	if err != nil {
		return err
	}

	sceneCtx := scene.NewContext(scene.ID(req.Location), manifest.ContentHash, manifest.ParcelBase, nil, manifest.Bounds, true, nil)
	engine, err := scriptworker.New(ctx, wasmBytes, m.MemoryLimitPages)
	if err != nil {
		return err
	}
	worker := scriptworker.NewWorker(sceneCtx, engine)

	m.mu.Lock()
	ls := &loadScene{ctx: sceneCtx, worker: worker, engine: engine, parcels: nil}
	m.loaded[sceneCtx.ID] = ls
	m.portable[req.Location] = ls
	m.mu.Unlock()

	m.Scheduler.Add(&scheduler.Entry{Scene: sceneCtx, Worker: worker, ContainsPlayer: false})
	logger.LifecycleInfow("portable scene spawned", "location", req.Location)
	return nil
}

// UnloadPortable tears down a previously loaded portable scene.
func (m *Manager) UnloadPortable(ctx context.Context, location string, backend dispatch.Backend) {
	m.mu.Lock()
	ls, ok := m.portable[location]
	if ok {
		delete(m.portable, location)
	}
	m.mu.Unlock()
	if !ok {
		return
	}
	m.destroy(ctx, ls.ctx.ID, backend)
}

// Len reports how many scenes (parcel-gated and portable) are currently
// loaded.
func (m *Manager) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.loaded)
}
