package runtime

import (
	"context"
	"sync"

	"go.uber.org/zap"

	"github.com/wippyai/dss-runtime/capi"
	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/errors"
	"github.com/wippyai/dss-runtime/opendss"
)

// Options selects the backend for a session. Exactly one source must be set.
type Options struct {
	// LibPath loads a native engine shared library.
	LibPath string

	// WASM runs a WebAssembly build of the engine. Ctx bounds
	// instantiation and later wasm calls; context.Background() when nil.
	WASM []byte
	Ctx  context.Context

	// API injects a ready backend, such as an enginetest engine. The
	// runtime takes ownership and closes it.
	API engine.API
}

func (o Options) backend() (engine.API, error) {
	n := 0
	if o.LibPath != "" {
		n++
	}
	if len(o.WASM) > 0 {
		n++
	}
	if o.API != nil {
		n++
	}
	if n != 1 {
		return nil, errors.InvalidInput(errors.PhaseOpen,
			"options must select exactly one engine source (LibPath, WASM, or API)")
	}
	switch {
	case o.API != nil:
		return o.API, nil
	case o.LibPath != "":
		return capi.Open(o.LibPath)
	default:
		ctx := o.Ctx
		if ctx == nil {
			ctx = context.Background()
		}
		return capi.OpenWASM(ctx, o.WASM)
	}
}

// Runtime is one engine session: the backend, the prime engine, and a
// registry of the live actor engines created from it.
type Runtime struct {
	api    engine.API
	prime  *Engine
	actors *registry

	mu     sync.Mutex
	closed bool
}

// Open loads the selected backend and wraps its prime context. Open fails
// if the engine cannot start or register its result buffers.
func Open(opts Options) (*Runtime, error) {
	api, err := opts.backend()
	if err != nil {
		return nil, err
	}
	ctx, err := engine.Prime(api)
	if err != nil {
		_ = api.Close()
		return nil, err
	}
	r := &Runtime{
		api:    api,
		actors: newRegistry(),
	}
	r.prime = &Engine{rt: r, ctx: ctx, DSS: opendss.New(ctx)}
	Logger().Debug("runtime open", zap.Uint64("prime", uint64(ctx.Token())))
	return r, nil
}

// Prime returns the engine wrapping the prime context. It lives as long as
// the runtime; its Close is rejected.
func (r *Runtime) Prime() *Engine {
	return r.prime
}

// NewEngine creates an independent actor engine. The caller owns it and
// must Close it before closing the runtime.
func (r *Runtime) NewEngine() (*Engine, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.closed {
		return nil, errors.Disposed("runtime.NewEngine")
	}
	ctx, err := r.prime.ctx.NewChild()
	if err != nil {
		return nil, err
	}
	eng := &Engine{rt: r, ctx: ctx, DSS: opendss.New(ctx)}
	r.actors.add(ctx.Token(), eng)
	Logger().Debug("engine created", zap.Uint64("token", uint64(ctx.Token())))
	return eng, nil
}

// LiveEngines counts actor engines that have not been closed.
func (r *Runtime) LiveEngines() int {
	return r.actors.len()
}

// Close releases the backend. Actor engines still alive are logged and
// left to the engine process to reclaim; they are not disposed here, and
// using them afterwards fails.
func (r *Runtime) Close() error {
	r.mu.Lock()
	if r.closed {
		r.mu.Unlock()
		return nil
	}
	r.closed = true
	r.mu.Unlock()

	for _, tok := range r.actors.drain() {
		Logger().Warn("engine leaked at runtime close",
			zap.Uint64("token", uint64(tok)))
	}
	Logger().Debug("runtime closed", zap.Uint64("prime", uint64(r.prime.ctx.Token())))
	return r.api.Close()
}
