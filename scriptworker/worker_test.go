package scriptworker

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/coreworld/explorer/crdt"
	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/internal/wasmtest"
	"github.com/coreworld/explorer/scene"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	ctx := context.Background()
	e, err := New(ctx, wasmtest.Stub(), 0)
	require.NoError(t, err)
	t.Cleanup(func() { e.Close(ctx) })
	return e
}

func TestEngine_CallOnStartAndOnUpdateSucceed(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)

	require.NoError(t, e.CallOnStart(ctx))
	require.NoError(t, e.CallOnUpdate(ctx, 0.016))
	assert.False(t, e.Broken())
}

func TestEngine_DrainOutboundEmptyWhenScriptSendsNothing(t *testing.T) {
	e := newTestEngine(t)
	assert.Empty(t, e.DrainOutbound())
}

func TestEngine_QueueInboundDoesNotBreakTheIsolate(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	e.QueueInbound([]byte{0x01, 0x02, 0x03})
	require.NoError(t, e.CallOnUpdate(ctx, 0.016))
	assert.False(t, e.Broken())
}

func TestWorker_TickRunsOnStartOnceThenOnUpdateEachGrant(t *testing.T) {
	ctx := context.Background()
	e := newTestEngine(t)
	sceneCtx := scene.NewContext("scene-1", "hash", scene.Parcel{}, map[scene.Parcel]struct{}{{}: {}}, nil, false, nil)
	sceneCtx.CRDT.Register(crdt.ComponentSpec{ID: dispatch.TransformComponentID, Policy: crdt.PositionAny, Kind: crdt.KindLWW})
	w := NewWorker(sceneCtx, e)
	disp := dispatch.New(nil)

	require.True(t, w.Idle())
	require.NoError(t, w.Tick(ctx, 0.016, disp))
	require.NoError(t, w.Tick(ctx, 0.016, disp))
	assert.True(t, w.Idle())
	assert.False(t, w.Broken())
}
