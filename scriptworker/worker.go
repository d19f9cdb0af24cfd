package scriptworker

import (
	"context"
	"sync"

	"github.com/coreworld/explorer/dispatch"
	"github.com/coreworld/explorer/logger"
	"github.com/coreworld/explorer/scene"
)

// Worker owns one scene's Engine and runs its onStart/onUpdate loop under
// tick grants from the scheduler (§4.C, §4.D).
type Worker struct {
	ctx    *scene.Context
	engine *Engine

	mu      sync.Mutex
	started bool
	idle    bool
}

// NewWorker wraps an already-instantiated Engine for the given scene.
func NewWorker(sceneCtx *scene.Context, engine *Engine) *Worker {
	return &Worker{ctx: sceneCtx, engine: engine, idle: true}
}

// Idle reports whether the worker is between tick grants (§4.D: the
// scheduler only grants ticks to idle workers).
func (w *Worker) Idle() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.idle
}

// Broken reports whether the underlying isolate has faulted.
func (w *Worker) Broken() bool {
	return w.engine.Broken()
}

// Tick runs one grant: onStart on first call, then onUpdate(dt), then
// drains the script's outbound CRDT buffer through the dispatcher and
// refills the inbound queue with the world's updates since last tick
// (§4.C "Worker loop").
func (w *Worker) Tick(ctx context.Context, dtSeconds float32, disp *dispatch.Dispatcher) error {
	w.mu.Lock()
	w.idle = false
	w.mu.Unlock()
	defer func() {
		w.mu.Lock()
		w.idle = true
		w.mu.Unlock()
	}()

	if !w.started {
		if err := w.engine.CallOnStart(ctx); err != nil {
			logger.WorkerWarnw("scene onStart failed", "scene_id", w.ctx.ID, "error", err)
			return err
		}
		w.started = true
	}

	if err := w.engine.CallOnUpdate(ctx, dtSeconds); err != nil {
		logger.WorkerWarnw("scene onUpdate failed", "scene_id", w.ctx.ID, "error", err)
		return err
	}

	for _, frame := range w.engine.DrainOutbound() {
		disp.ApplyInbound(w.ctx, frame)
	}

	outbound := disp.EncodeOutbound(w.ctx)
	if len(outbound) > 0 {
		w.engine.QueueInbound(outbound)
	}

	return nil
}

// Stop marks the worker shutting down and releases its isolate (spec
// §4.C "Shutdown").
func (w *Worker) Stop(ctx context.Context) error {
	return w.engine.Close(ctx)
}
