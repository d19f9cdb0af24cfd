package lifecycle

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreworld/explorer/asset"
	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/internal/wasmtest"
	"github.com/coreworld/explorer/scene"
	"github.com/coreworld/explorer/scheduler"
)

// writeCache primes a fetcher's on-disk cache directly, standing in for a
// prior successful fetch so tests don't need a live content server.
func writeCache(dir, hash string, data []byte) error {
	return os.WriteFile(filepath.Join(dir, hash), data, 0o644)
}

type fakeRealm struct {
	hash string
}

func (f *fakeRealm) Pointers(ctx context.Context, parcels []scene.Parcel) (map[scene.Parcel]string, error) {
	out := make(map[scene.Parcel]string, len(parcels))
	for _, p := range parcels {
		if p == (scene.Parcel{}) {
			out[p] = f.hash
		}
	}
	return out, nil
}

type fakeManifests struct {
	manifest Manifest
}

func (f *fakeManifests) Resolve(ctx context.Context, contentHash string) (Manifest, error) {
	return f.manifest, nil
}

type fakeOutOfWorld struct {
	calls []bool
}

func (o *fakeOutOfWorld) SetOutOfWorld(v bool) { o.calls = append(o.calls, v) }

func newTestManager(t *testing.T, hash string) (*Manager, *fakeOutOfWorld) {
	t.Helper()
	fetcher := asset.NewFetcher("http://example.invalid", t.TempDir(), 0)

	manifest := Manifest{
		ContentHash:    hash,
		MainScriptHash: "script-hash",
		ParcelBase:     scene.Parcel{},
		Parcels:        []scene.Parcel{{}},
	}

	oow := &fakeOutOfWorld{}
	mgr := NewManager(1, 1, 0, &fakeRealm{hash: hash}, &fakeManifests{manifest: manifest}, fetcher, scheduler.New(60), dispatch.New(nil), oow)
	return mgr, oow
}

func TestDesiredParcels_CoversLoadDistanceSquare(t *testing.T) {
	mgr := &Manager{LoadDistance: 1}
	parcels := mgr.desiredParcels(scene.Parcel{X: 5, Y: 5})
	assert.Len(t, parcels, 9)
}

func TestChebyshev_MaxOfAxisDeltas(t *testing.T) {
	assert.Equal(t, int32(3), chebyshev(scene.Parcel{X: 0, Y: 0}, scene.Parcel{X: 3, Y: 1}))
	assert.Equal(t, int32(2), chebyshev(scene.Parcel{X: 0, Y: 0}, scene.Parcel{X: -1, Y: 2}))
}

func TestManager_SpawnMissingSkipsSceneWhenScriptFetchFails(t *testing.T) {
	// Manifests resolve, but the asset fetcher has no server to hit and no
	// cache entry, so spawnMissing must log-and-skip rather than error out
	// (§7 "Asset fetch failure").
	mgr, _ := newTestManager(t, "hash-1")
	err := mgr.spawnMissing(context.Background(), scene.Parcel{}, map[scene.Parcel]string{{}: "hash-1"})
	require.NoError(t, err)
	assert.Equal(t, 0, mgr.Len())
}

func TestManager_SpawnSucceedsWithCachedScript(t *testing.T) {
	dir := t.TempDir()
	fetcher := asset.NewFetcher("http://example.invalid", dir, 0)
	// Prime the cache directly so Fetch is served locally without network.
	require.NoError(t, writeCache(dir, "script-hash", wasmtest.Stub()))

	manifest := Manifest{ContentHash: "hash-1", MainScriptHash: "script-hash", ParcelBase: scene.Parcel{}, Parcels: []scene.Parcel{{}}}
	oow := &fakeOutOfWorld{}
	mgr := NewManager(1, 1, 0, &fakeRealm{hash: "hash-1"}, &fakeManifests{manifest: manifest}, fetcher, scheduler.New(60), dispatch.New(nil), oow)

	require.NoError(t, mgr.Update(context.Background(), scene.Parcel{}, nil))
	assert.Equal(t, 1, mgr.Len())
	assert.Equal(t, 1, mgr.Scheduler.Len())
	assert.Equal(t, []bool{false}, oow.calls, "player is inside the spawned scene's parcel")
}

func TestManager_DespawnsOutOfRangeNonPortableScene(t *testing.T) {
	dir := t.TempDir()
	fetcher := asset.NewFetcher("http://example.invalid", dir, 0)
	require.NoError(t, writeCache(dir, "script-hash", wasmtest.Stub()))

	manifest := Manifest{ContentHash: "hash-1", MainScriptHash: "script-hash", ParcelBase: scene.Parcel{}, Parcels: []scene.Parcel{{}}}
	mgr := NewManager(1, 1, 0, &fakeRealm{hash: "hash-1"}, &fakeManifests{manifest: manifest}, fetcher, scheduler.New(60), dispatch.New(nil), &fakeOutOfWorld{})

	require.NoError(t, mgr.Update(context.Background(), scene.Parcel{}, nil))
	require.Equal(t, 1, mgr.Len())

	// Player walks far away, beyond load distance + hysteresis (1+1=2).
	mgr.Realm = &fakeRealm{hash: ""}
	require.NoError(t, mgr.Update(context.Background(), scene.Parcel{X: 100, Y: 100}, nil))
	assert.Equal(t, 0, mgr.Len())
	assert.Equal(t, 0, mgr.Scheduler.Len())
}
