// Package scriptworker runs one scene's compiled script in an isolated
// wazero WASM module instance (§4.C). The host exposes two byte-buffer
// operations to the guest: sending is crdt_send_to_renderer, and
// receiving is split into crdt_recv_from_renderer_len and
// crdt_recv_from_renderer_read.
//
// Grounded on the ats/wasm/engine.go for the shared-memory
// (ptr,len) calling convention and wasm_alloc/wasm_free protocol, and
// ats/wasi/runner.go for per-instance runtime creation and WASI
// instantiation (rather than engine.go's process-wide singleton, since
// each scene needs its own isolated, independently-shutdownable instance
// per §4.C "Shutdown... The isolate must be safely reclaimable").
package scriptworker

import (
	"context"
	"sync"

	"github.com/tetratelabs/wazero"
	"github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	"github.com/coreworld/explorer/errors"
)

// hostModuleName is the import namespace the compiled scene script calls
// into for the CRDT exchange (§4.C).
const hostModuleName = "explorer_host"

// Engine is a single scene's WASM isolate: one wazero runtime, one
// compiled module, one instance. Not safe for concurrent onUpdate calls —
// §4.C requires each worker be strictly sequential; the scheduler
// (§4.D) never issues two concurrent grants to the same worker, so
// Engine itself does not need to serialize calls beyond that guarantee.
type Engine struct {
	runtime  wazero.Runtime
	compiled wazero.CompiledModule
	mod      api.Module

	mu sync.Mutex

	// outbound holds frames the script handed to crdt_send_to_renderer
	// since the host last drained them.
	outbound [][]byte

	// inbound holds frames queued by the host for the script's next
	// crdt_recv_from_renderer call.
	inbound [][]byte

	broken bool
}

// New compiles and instantiates a scene script, wiring the CRDT exchange
// host functions before instantiation so the guest's start function (if
// any) can already call them.
func New(ctx context.Context, wasmBytes []byte, memoryLimitPages uint32) (*Engine, error) {
	runtimeCfg := wazero.NewRuntimeConfig()
	if memoryLimitPages > 0 {
		runtimeCfg = runtimeCfg.WithMemoryLimitPages(memoryLimitPages)
	}
	r := wazero.NewRuntimeWithConfig(ctx, runtimeCfg)

	if _, err := wasi_snapshot_preview1.Instantiate(ctx, r); err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "instantiate WASI")
	}

	e := &Engine{runtime: r}

	if _, err := r.NewHostModuleBuilder(hostModuleName).
		NewFunctionBuilder().WithFunc(e.hostCRDTSend).Export("crdt_send_to_renderer").
		NewFunctionBuilder().WithFunc(e.hostCRDTRecvLen).Export("crdt_recv_from_renderer_len").
		NewFunctionBuilder().WithFunc(e.hostCRDTRecvRead).Export("crdt_recv_from_renderer_read").
		Instantiate(ctx); err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "instantiate host module")
	}

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "compile scene script")
	}
	e.compiled = compiled

	mod, err := r.InstantiateModule(ctx, compiled, wazero.NewModuleConfig().WithName("scene"))
	if err != nil {
		r.Close(ctx)
		return nil, errors.Wrap(err, "instantiate scene script")
	}
	e.mod = mod

	return e, nil
}

// Close releases the isolate. Safe to call even if the script is mid-call;
// wazero's Close interrupts any in-flight call (§4.C "safely
// reclaimable from any suspension point").
func (e *Engine) Close(ctx context.Context) error {
	return e.runtime.Close(ctx)
}

// Broken reports whether a prior call marked this isolate unusable
// (§4.C "a panic inside the script or a fatal isolate error marks
// the scene broken=true").
func (e *Engine) Broken() bool {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.broken
}

// CallOnStart invokes the script's onStart() export once.
func (e *Engine) CallOnStart(ctx context.Context) error {
	return e.callVoidFn(ctx, "onStart")
}

// CallOnUpdate invokes the script's onUpdate(dt) export for one tick grant.
// dtSeconds is a float32 per the scene script ABI.
func (e *Engine) CallOnUpdate(ctx context.Context, dtSeconds float32) error {
	fn := e.mod.ExportedFunction("onUpdate")
	if fn == nil {
		return errors.New("scene script missing onUpdate export")
	}
	bits := api.EncodeF32(dtSeconds)
	if _, err := fn.Call(ctx, bits); err != nil {
		e.markBroken()
		return errors.Wrap(err, "call onUpdate")
	}
	return nil
}

func (e *Engine) callVoidFn(ctx context.Context, name string) error {
	fn := e.mod.ExportedFunction(name)
	if fn == nil {
		return nil // optional export
	}
	if _, err := fn.Call(ctx); err != nil {
		e.markBroken()
		return errors.Wrapf(err, "call %s", name)
	}
	return nil
}

func (e *Engine) markBroken() {
	e.mu.Lock()
	e.broken = true
	e.mu.Unlock()
}

// DrainOutbound returns and clears the frames the script has sent via
// crdt_send_to_renderer since the last drain.
func (e *Engine) DrainOutbound() [][]byte {
	e.mu.Lock()
	defer e.mu.Unlock()
	out := e.outbound
	e.outbound = nil
	return out
}

// QueueInbound appends a host-authored diff frame for the script's next
// crdt_recv_from_renderer call.
func (e *Engine) QueueInbound(frame []byte) {
	e.mu.Lock()
	e.inbound = append(e.inbound, frame)
	e.mu.Unlock()
}

// hostCRDTSend implements crdt_send_to_renderer(ptr, len): copies the
// script's outbound CRDT buffer out of guest memory, following the
// teacher's (ptr, len) shared-memory read pattern from ats/wasm/engine.go.
func (e *Engine) hostCRDTSend(ctx context.Context, mod api.Module, ptr, length uint32) {
	data, ok := mod.Memory().Read(ptr, length)
	if !ok {
		e.markBroken()
		return
	}
	buf := make([]byte, len(data))
	copy(buf, data)

	e.mu.Lock()
	e.outbound = append(e.outbound, buf)
	e.mu.Unlock()
}

// hostCRDTRecvLen implements crdt_recv_from_renderer_len() -> u32: returns
// the byte length of the next queued inbound frame (0 if none), so the
// guest can allocate a buffer of the right size before reading it.
func (e *Engine) hostCRDTRecvLen() uint32 {
	e.mu.Lock()
	defer e.mu.Unlock()
	if len(e.inbound) == 0 {
		return 0
	}
	return uint32(len(e.inbound[0]))
}

// hostCRDTRecvRead implements crdt_recv_from_renderer_read(ptr): writes
// the next queued inbound frame into guest memory at ptr (sized per the
// preceding _len call) and pops it from the queue.
func (e *Engine) hostCRDTRecvRead(ctx context.Context, mod api.Module, ptr uint32) {
	e.mu.Lock()
	if len(e.inbound) == 0 {
		e.mu.Unlock()
		return
	}
	frame := e.inbound[0]
	e.inbound = e.inbound[1:]
	e.mu.Unlock()

	if !mod.Memory().Write(ptr, frame) {
		e.markBroken()
	}
}
