//go:build linux || darwin || freebsd

package capi

import (
	"fmt"
	"runtime"
	"sync"
	"unsafe"

	"github.com/ebitengine/purego"

	dssruntime "github.com/wippyai/dss-runtime"
	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/errors"
)

// Library is a native engine build loaded with dlopen. It implements
// engine.API over the process address space: addresses in call slots are raw
// pointers, and scratch memory comes from the C allocator so the engine can
// read it directly.
type Library struct {
	handle uintptr

	mu    sync.RWMutex
	funcs map[string]engine.NativeFunc

	malloc func(uintptr) uintptr
	free   func(uintptr)

	closeOnce sync.Once
	closeErr  error
}

var _ engine.API = (*Library)(nil)

// DefaultLibName returns the platform's conventional file name for the
// engine library.
func DefaultLibName() string {
	if runtime.GOOS == "darwin" {
		return "libdss_capi.dylib"
	}
	return "libdss_capi.so"
}

// Open loads the native engine library at path. An empty path loads
// DefaultLibName from the system search path.
func Open(path string) (*Library, error) {
	if path == "" {
		path = DefaultLibName()
	}
	handle, err := purego.Dlopen(path, purego.RTLD_NOW|purego.RTLD_GLOBAL)
	if err != nil {
		return nil, errors.Load(fmt.Sprintf("dlopen %s", path), err)
	}
	l := &Library{
		handle: handle,
		funcs:  make(map[string]engine.NativeFunc),
	}

	// Scratch passed into the engine must come from the allocator the engine
	// itself frees results with.
	mallocSym, err := purego.Dlsym(purego.RTLD_DEFAULT, "malloc")
	if err != nil {
		_ = purego.Dlclose(handle)
		return nil, errors.Load("resolve malloc", err)
	}
	freeSym, err := purego.Dlsym(purego.RTLD_DEFAULT, "free")
	if err != nil {
		_ = purego.Dlclose(handle)
		return nil, errors.Load("resolve free", err)
	}
	purego.RegisterFunc(&l.malloc, mallocSym)
	purego.RegisterFunc(&l.free, freeSym)
	return l, nil
}

// Func resolves symbol and adapts it to the slot calling convention for its
// shape. Bindings are cached; the same symbol resolves once.
func (l *Library) Func(symbol string, shape engine.Shape) (engine.NativeFunc, error) {
	l.mu.RLock()
	fn, ok := l.funcs[symbol]
	l.mu.RUnlock()
	if ok {
		return fn, nil
	}

	sym, err := purego.Dlsym(l.handle, symbol)
	if err != nil || sym == 0 {
		return nil, errors.SymbolNotFound(symbol, err)
	}
	fn, err = bind(sym, shape)
	if err != nil {
		return nil, errors.New(errors.PhaseOpen, errors.KindBadShape).
			Op(symbol).Cause(err).Detail("bind native symbol").Build()
	}

	l.mu.Lock()
	if cached, ok := l.funcs[symbol]; ok {
		fn = cached
	} else {
		l.funcs[symbol] = fn
	}
	l.mu.Unlock()
	return fn, nil
}

// Memory returns the process memory view.
func (l *Library) Memory() dssruntime.Memory { return processMemory{} }

// Allocator returns the C allocator.
func (l *Library) Allocator() dssruntime.Allocator { return &nativeAllocator{l: l} }

// Close unloads the library. Contexts created from it must not be used
// afterwards.
func (l *Library) Close() error {
	l.closeOnce.Do(func() {
		l.closeErr = purego.Dlclose(l.handle)
	})
	return l.closeErr
}

// shapeKey folds a Shape into a compact map key: return kind, then one rune
// per argument.
func shapeKey(s engine.Shape) string {
	letter := func(k engine.Kind) byte {
		switch k {
		case engine.KindVoid:
			return 'v'
		case engine.KindI32:
			return 'i'
		case engine.KindBool:
			return 'b'
		case engine.KindF64:
			return 'f'
		case engine.KindAddr:
			return 'a'
		}
		return '?'
	}
	key := make([]byte, 0, len(s.Args)+2)
	key = append(key, letter(s.Ret), ';')
	for _, a := range s.Args {
		key = append(key, letter(a))
	}
	return string(key)
}

// bind wraps a native symbol in the slot convention. The engine ABI uses a
// small closed set of shapes; anything else is a programming error surfaced
// at resolve time.
func bind(sym uintptr, shape engine.Shape) (engine.NativeFunc, error) {
	switch shapeKey(shape) {
	case "a;":
		var fn func() uintptr
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return uint64(fn()), nil
		}, nil
	case "a;a":
		var fn func(uintptr) uintptr
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return uint64(fn(uintptr(args[0]))), nil
		}, nil
	case "v;a":
		var fn func(uintptr)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]))
			return 0, nil
		}, nil
	case "v;ai":
		var fn func(uintptr, int32)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), engine.DecodeI32(args[1]))
			return 0, nil
		}, nil
	case "v;ab":
		var fn func(uintptr, uint16)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), uint16(args[1]))
			return 0, nil
		}, nil
	case "v;af":
		var fn func(uintptr, float64)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), engine.DecodeF64(args[1]))
			return 0, nil
		}, nil
	case "v;aa":
		var fn func(uintptr, uintptr)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), uintptr(args[1]))
			return 0, nil
		}, nil
	case "v;aai":
		var fn func(uintptr, uintptr, int32)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), uintptr(args[1]), engine.DecodeI32(args[2]))
			return 0, nil
		}, nil
	case "v;aaa":
		var fn func(uintptr, uintptr, uintptr)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), uintptr(args[1]), uintptr(args[2]))
			return 0, nil
		}, nil
	case "v;aaaaaaaaa":
		var fn func(uintptr, uintptr, uintptr, uintptr, uintptr,
			uintptr, uintptr, uintptr, uintptr)
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			fn(uintptr(args[0]), uintptr(args[1]), uintptr(args[2]),
				uintptr(args[3]), uintptr(args[4]), uintptr(args[5]),
				uintptr(args[6]), uintptr(args[7]), uintptr(args[8]))
			return 0, nil
		}, nil
	case "i;a":
		var fn func(uintptr) int32
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return engine.EncodeI32(fn(uintptr(args[0]))), nil
		}, nil
	case "i;aa":
		var fn func(uintptr, uintptr) int32
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return engine.EncodeI32(fn(uintptr(args[0]), uintptr(args[1]))), nil
		}, nil
	case "f;a":
		var fn func(uintptr) float64
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return engine.EncodeF64(fn(uintptr(args[0]))), nil
		}, nil
	case "b;a":
		var fn func(uintptr) uint16
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return uint64(fn(uintptr(args[0]))), nil
		}, nil
	case "b;ai":
		var fn func(uintptr, int32) uint16
		purego.RegisterFunc(&fn, sym)
		return func(args ...uint64) (uint64, error) {
			return uint64(fn(uintptr(args[0]), engine.DecodeI32(args[1]))), nil
		}, nil
	}
	return nil, fmt.Errorf("no native binding for shape %s", shape)
}

// processMemory implements the memory view over the process address space.
// The engine hands out real pointers here; there are no bounds to check
// beyond null, so reads trust the engine's counts.
type processMemory struct{}

var _ dssruntime.Memory = processMemory{}

func (processMemory) PtrSize() uint32 { return 8 }

func (processMemory) ReadI32(addr uint64) (int32, error) {
	if addr == 0 {
		return 0, errors.NilPointer(errors.PhaseDecode, "null int32 address")
	}
	return *(*int32)(unsafe.Pointer(uintptr(addr))), nil
}

func (processMemory) WriteI32(addr uint64, v int32) error {
	if addr == 0 {
		return errors.NilPointer(errors.PhaseEncode, "null int32 address")
	}
	*(*int32)(unsafe.Pointer(uintptr(addr))) = v
	return nil
}

func (processMemory) ReadPtr(addr uint64) (uint64, error) {
	if addr == 0 {
		return 0, errors.NilPointer(errors.PhaseDecode, "null pointer address")
	}
	return uint64(*(*uintptr)(unsafe.Pointer(uintptr(addr)))), nil
}

func (processMemory) WritePtr(addr, v uint64) error {
	if addr == 0 {
		return errors.NilPointer(errors.PhaseEncode, "null pointer address")
	}
	*(*uintptr)(unsafe.Pointer(uintptr(addr))) = uintptr(v)
	return nil
}

func (processMemory) ReadBytes(addr uint64, n int) ([]byte, error) {
	if addr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, "null byte buffer")
	}
	out := make([]byte, n)
	copy(out, unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n))
	return out, nil
}

func (processMemory) WriteBytes(addr uint64, data []byte) error {
	if addr == 0 {
		return errors.NilPointer(errors.PhaseEncode, "null byte buffer")
	}
	copy(unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), len(data)), data)
	return nil
}

func (processMemory) ReadFloat64s(addr uint64, n int) ([]float64, error) {
	if addr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, "null float64 buffer")
	}
	out := make([]float64, n)
	copy(out, unsafe.Slice((*float64)(unsafe.Pointer(uintptr(addr))), n))
	return out, nil
}

func (processMemory) WriteFloat64s(addr uint64, values []float64) error {
	if addr == 0 {
		return errors.NilPointer(errors.PhaseEncode, "null float64 buffer")
	}
	copy(unsafe.Slice((*float64)(unsafe.Pointer(uintptr(addr))), len(values)), values)
	return nil
}

func (processMemory) ReadInt32s(addr uint64, n int) ([]int32, error) {
	if addr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, "null int32 buffer")
	}
	out := make([]int32, n)
	copy(out, unsafe.Slice((*int32)(unsafe.Pointer(uintptr(addr))), n))
	return out, nil
}

func (processMemory) ReadPtrs(addr uint64, n int) ([]uint64, error) {
	if addr == 0 {
		return nil, errors.NilPointer(errors.PhaseDecode, "null pointer array")
	}
	raw := unsafe.Slice((*uintptr)(unsafe.Pointer(uintptr(addr))), n)
	out := make([]uint64, n)
	for i, p := range raw {
		out[i] = uint64(p)
	}
	return out, nil
}

func (processMemory) ReadCString(addr uint64) (string, error) {
	if addr == 0 {
		return "", errors.NilPointer(errors.PhaseDecode, "null text pointer")
	}
	p := uintptr(addr)
	for n := 0; n < maxCString; n++ {
		if *(*byte)(unsafe.Pointer(p + uintptr(n))) == 0 {
			out := make([]byte, n)
			copy(out, unsafe.Slice((*byte)(unsafe.Pointer(p)), n))
			return string(out), nil
		}
	}
	return "", errors.OutOfBounds(errors.PhaseDecode, "unterminated engine text")
}

// nativeAllocator allocates scratch with the C allocator.
type nativeAllocator struct {
	l *Library
}

var _ dssruntime.Allocator = (*nativeAllocator)(nil)

func (a *nativeAllocator) Alloc(size uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	p := a.l.malloc(uintptr(size))
	if p == 0 {
		return 0, errors.AllocationFailed(size)
	}
	return uint64(p), nil
}

func (a *nativeAllocator) Free(addr uint64) {
	if addr != 0 {
		a.l.free(uintptr(addr))
	}
}
