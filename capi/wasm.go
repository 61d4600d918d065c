package capi

import (
	"context"
	"math"
	"sync"

	"github.com/tetratelabs/wazero"
	wazeroapi "github.com/tetratelabs/wazero/api"
	"github.com/tetratelabs/wazero/imports/emscripten"
	"github.com/tetratelabs/wazero/imports/wasi_snapshot_preview1"

	dssruntime "github.com/wippyai/dss-runtime"
	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/errors"
)

// Module is a WebAssembly engine build instantiated under wazero. It
// implements engine.API over the module's 32-bit linear memory; scratch
// comes from the module's own exported allocator so engine and caller agree
// on every address.
//
// The usual emscripten builds are single-threaded: run one call at a time,
// or keep every context behind Synchronized.
type Module struct {
	ctx     context.Context
	runtime wazero.Runtime
	mod     wazeroapi.Module

	mu    sync.RWMutex
	funcs map[string]engine.NativeFunc

	malloc wazeroapi.Function
	free   wazeroapi.Function
}

var _ engine.API = (*Module)(nil)

// OpenWASM compiles and instantiates an engine WASM build. WASI and the
// emscripten environment are provided; the module's _initialize reactor
// entry runs before OpenWASM returns. The context governs instantiation and
// every later call through the module.
func OpenWASM(ctx context.Context, wasmBytes []byte) (*Module, error) {
	r := wazero.NewRuntimeWithConfig(ctx, wazero.NewRuntimeConfig())
	wasi_snapshot_preview1.MustInstantiate(ctx, r)

	compiled, err := r.CompileModule(ctx, wasmBytes)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("compile engine wasm", err)
	}
	if _, err := emscripten.InstantiateForModule(ctx, r, compiled); err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("instantiate emscripten environment", err)
	}

	cfg := wazero.NewModuleConfig().
		WithName("dss_capi").
		WithStartFunctions("_initialize")
	mod, err := r.InstantiateModule(ctx, compiled, cfg)
	if err != nil {
		_ = r.Close(ctx)
		return nil, errors.Load("instantiate engine wasm", err)
	}

	malloc := mod.ExportedFunction("malloc")
	free := mod.ExportedFunction("free")
	if malloc == nil || free == nil {
		_ = r.Close(ctx)
		return nil, errors.Load("engine wasm does not export malloc/free", nil)
	}
	return &Module{
		ctx:     ctx,
		runtime: r,
		mod:     mod,
		funcs:   make(map[string]engine.NativeFunc),
		malloc:  malloc,
		free:    free,
	}, nil
}

// Func resolves an exported function. WASM exports already follow the slot
// convention wazero uses, so the adapter is a direct call.
func (m *Module) Func(symbol string, shape engine.Shape) (engine.NativeFunc, error) {
	m.mu.RLock()
	fn, ok := m.funcs[symbol]
	m.mu.RUnlock()
	if ok {
		return fn, nil
	}

	f := m.mod.ExportedFunction(symbol)
	if f == nil {
		return nil, errors.SymbolNotFound(symbol, nil)
	}
	fn = func(args ...uint64) (uint64, error) {
		res, err := f.Call(m.ctx, args...)
		if err != nil {
			return 0, err
		}
		if len(res) == 0 {
			return 0, nil
		}
		return res[0], nil
	}

	m.mu.Lock()
	if cached, ok := m.funcs[symbol]; ok {
		fn = cached
	} else {
		m.funcs[symbol] = fn
	}
	m.mu.Unlock()
	return fn, nil
}

// Memory returns the module's linear memory view.
func (m *Module) Memory() dssruntime.Memory { return wasmMemory{mem: m.mod.Memory()} }

// Allocator returns the module's exported malloc/free pair.
func (m *Module) Allocator() dssruntime.Allocator { return &wasmAllocator{m: m} }

// Close tears the runtime down, releasing the module and its memory.
func (m *Module) Close() error {
	return m.runtime.Close(m.ctx)
}

// maxCString caps the scan for a missing terminator so a corrupt pointer
// cannot walk an entire address space.
const maxCString = 1 << 26

// wasmMemory adapts wazero linear memory. Addresses are 32-bit offsets; the
// slot convention's uint64 addresses must fit, and every access is bounds
// checked by wazero itself.
type wasmMemory struct {
	mem wazeroapi.Memory
}

var _ dssruntime.Memory = wasmMemory{}

func (wasmMemory) PtrSize() uint32 { return 4 }

func (w wasmMemory) off(addr uint64, what string) (uint32, error) {
	if addr == 0 {
		return 0, errors.NilPointer(errors.PhaseDecode, "null "+what)
	}
	if addr > math.MaxUint32 {
		return 0, errors.OutOfBounds(errors.PhaseDecode, what+" beyond 32-bit memory")
	}
	return uint32(addr), nil
}

func (w wasmMemory) ReadI32(addr uint64) (int32, error) {
	off, err := w.off(addr, "int32 address")
	if err != nil {
		return 0, err
	}
	v, ok := w.mem.ReadUint32Le(off)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, "int32 read outside linear memory")
	}
	return int32(v), nil
}

func (w wasmMemory) WriteI32(addr uint64, v int32) error {
	off, err := w.off(addr, "int32 address")
	if err != nil {
		return err
	}
	if !w.mem.WriteUint32Le(off, uint32(v)) {
		return errors.OutOfBounds(errors.PhaseEncode, "int32 write outside linear memory")
	}
	return nil
}

func (w wasmMemory) ReadPtr(addr uint64) (uint64, error) {
	off, err := w.off(addr, "pointer address")
	if err != nil {
		return 0, err
	}
	v, ok := w.mem.ReadUint32Le(off)
	if !ok {
		return 0, errors.OutOfBounds(errors.PhaseDecode, "pointer read outside linear memory")
	}
	return uint64(v), nil
}

func (w wasmMemory) WritePtr(addr, v uint64) error {
	off, err := w.off(addr, "pointer address")
	if err != nil {
		return err
	}
	if v > math.MaxUint32 {
		return errors.OutOfBounds(errors.PhaseEncode, "pointer value beyond 32-bit memory")
	}
	if !w.mem.WriteUint32Le(off, uint32(v)) {
		return errors.OutOfBounds(errors.PhaseEncode, "pointer write outside linear memory")
	}
	return nil
}

func (w wasmMemory) ReadBytes(addr uint64, n int) ([]byte, error) {
	off, err := w.off(addr, "byte buffer")
	if err != nil {
		return nil, err
	}
	view, ok := w.mem.Read(off, uint32(n))
	if !ok {
		return nil, errors.OutOfBounds(errors.PhaseDecode, "byte read outside linear memory")
	}
	out := make([]byte, n)
	copy(out, view)
	return out, nil
}

func (w wasmMemory) WriteBytes(addr uint64, data []byte) error {
	off, err := w.off(addr, "byte buffer")
	if err != nil {
		return err
	}
	if !w.mem.Write(off, data) {
		return errors.OutOfBounds(errors.PhaseEncode, "byte write outside linear memory")
	}
	return nil
}

func (w wasmMemory) ReadFloat64s(addr uint64, n int) ([]float64, error) {
	off, err := w.off(addr, "float64 buffer")
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		v, ok := w.mem.ReadFloat64Le(off + uint32(i)*8)
		if !ok {
			return nil, errors.OutOfBounds(errors.PhaseDecode, "float64 read outside linear memory")
		}
		out[i] = v
	}
	return out, nil
}

func (w wasmMemory) WriteFloat64s(addr uint64, values []float64) error {
	off, err := w.off(addr, "float64 buffer")
	if err != nil {
		return err
	}
	for i, v := range values {
		if !w.mem.WriteFloat64Le(off+uint32(i)*8, v) {
			return errors.OutOfBounds(errors.PhaseEncode, "float64 write outside linear memory")
		}
	}
	return nil
}

func (w wasmMemory) ReadInt32s(addr uint64, n int) ([]int32, error) {
	off, err := w.off(addr, "int32 buffer")
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		v, ok := w.mem.ReadUint32Le(off + uint32(i)*4)
		if !ok {
			return nil, errors.OutOfBounds(errors.PhaseDecode, "int32 read outside linear memory")
		}
		out[i] = int32(v)
	}
	return out, nil
}

func (w wasmMemory) ReadPtrs(addr uint64, n int) ([]uint64, error) {
	off, err := w.off(addr, "pointer array")
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		v, ok := w.mem.ReadUint32Le(off + uint32(i)*4)
		if !ok {
			return nil, errors.OutOfBounds(errors.PhaseDecode, "pointer read outside linear memory")
		}
		out[i] = uint64(v)
	}
	return out, nil
}

func (w wasmMemory) ReadCString(addr uint64) (string, error) {
	off, err := w.off(addr, "text pointer")
	if err != nil {
		return "", err
	}
	var buf []byte
	for n := uint32(0); n < maxCString; n++ {
		b, ok := w.mem.ReadByte(off + n)
		if !ok {
			return "", errors.OutOfBounds(errors.PhaseDecode, "text read outside linear memory")
		}
		if b == 0 {
			return string(buf), nil
		}
		buf = append(buf, b)
	}
	return "", errors.OutOfBounds(errors.PhaseDecode, "unterminated engine text")
}

// wasmAllocator routes scratch through the module's exported malloc/free.
type wasmAllocator struct {
	m *Module
}

var _ dssruntime.Allocator = (*wasmAllocator)(nil)

func (a *wasmAllocator) Alloc(size uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	res, err := a.m.malloc.Call(a.m.ctx, uint64(size))
	if err != nil {
		return 0, errors.New(errors.PhaseEncode, errors.KindAllocation).
			Cause(err).Detail("wasm malloc failed").Build()
	}
	if len(res) == 0 || res[0] == 0 {
		return 0, errors.AllocationFailed(size)
	}
	return res[0], nil
}

func (a *wasmAllocator) Free(addr uint64) {
	if addr != 0 {
		_, _ = a.m.free.Call(a.m.ctx, addr)
	}
}
