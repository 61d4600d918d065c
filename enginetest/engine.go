package enginetest

import (
	"encoding/binary"
	"fmt"
	"sync"

	dssruntime "github.com/wippyai/dss-runtime"
	"github.com/wippyai/dss-runtime/engine"
	"github.com/wippyai/dss-runtime/errors"
)

// Engine is a deterministic in-memory engine implementing engine.API. It
// simulates the full per-context protocol: error flags and result buffers
// live in a flat byte arena and are read and written through the same Memory
// interface the real backends expose, so the interop core runs unmodified
// against it.
//
// The simulation covers enough of the command language and the bound domain
// symbols to make circuits observable: object definition, solving with
// deterministic voltages, per-class iteration, meters, monitors, and so on.
// Register replaces or adds single symbols for tests that need exact control
// over buffer contents.
type Engine struct {
	mu        sync.Mutex
	mem       *arena
	contexts  map[uint64]*contextState
	prime     uint64
	overrides map[string]Handler
	live      map[uint64]struct{} // outstanding scratch allocations
	closed    bool
}

// Handler implements one native symbol. Handlers run with the engine lock
// held and receive the raw argument slots; use the Ctl helpers to touch
// engine state. Valid only inside the handler call.
type Handler func(ctl *Ctl, args []uint64) (uint64, error)

var (
	_ engine.API           = (*Engine)(nil)
	_ dssruntime.Memory    = (*engineMemory)(nil)
	_ dssruntime.Allocator = (*engineAllocator)(nil)
)

// New creates a fresh simulated engine with its prime context allocated.
func New() *Engine {
	e := &Engine{
		mem:       newArena(),
		contexts:  make(map[uint64]*contextState),
		overrides: make(map[string]Handler),
		live:      make(map[uint64]struct{}),
	}
	e.prime = e.newContext()
	return e
}

// Register installs or replaces the implementation of one symbol. Unknown
// symbols become resolvable once registered, which lets tests define
// synthetic operations.
func (e *Engine) Register(symbol string, h Handler) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.overrides[symbol] = h
}

// OutstandingAllocs reports scratch allocations that have not been freed.
// The marshaling layer should leave this at zero between calls.
func (e *Engine) OutstandingAllocs() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return len(e.live)
}

// PrimeToken returns the token of the engine's default context.
func (e *Engine) PrimeToken() uint64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.prime
}

// Func resolves a symbol to a callable. Resolution fails for symbols the
// simulation does not implement, matching a dlsym miss on the real library.
func (e *Engine) Func(symbol string, shape engine.Shape) (engine.NativeFunc, error) {
	e.mu.Lock()
	_, known := symbols[symbol]
	_, overridden := e.overrides[symbol]
	e.mu.Unlock()
	if !known && !overridden {
		return nil, errors.SymbolNotFound(symbol, nil)
	}

	want := len(shape.Args)
	return func(args ...uint64) (uint64, error) {
		e.mu.Lock()
		defer e.mu.Unlock()
		if e.closed {
			return 0, fmt.Errorf("engine is closed")
		}
		if len(args) != want {
			return 0, fmt.Errorf("%s: got %d args, shape %s wants %d",
				symbol, len(args), shape, want)
		}
		if h, ok := e.overrides[symbol]; ok {
			return h(&Ctl{e: e}, args)
		}
		return e.dispatch(symbol, args)
	}, nil
}

// Memory returns the arena view. Safe for concurrent use.
func (e *Engine) Memory() dssruntime.Memory { return &engineMemory{e: e} }

// Allocator returns the arena allocator. Safe for concurrent use.
func (e *Engine) Allocator() dssruntime.Allocator { return &engineAllocator{e: e} }

// Close shuts the simulation down; later calls through resolved functions
// fail.
func (e *Engine) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.closed = true
	return nil
}

// ctx returns the state for a live token, nil otherwise.
func (e *Engine) ctx(tok uint64) *contextState {
	c := e.contexts[tok]
	if c == nil || c.disposed {
		return nil
	}
	return c
}

// newContext allocates a context: a token (itself an arena address), the
// error flag cell, and the four result buffer count cells and data slots.
func (e *Engine) newContext() uint64 {
	tok := e.mem.alloc(16)
	c := &contextState{
		tok:      tok,
		errFlag:  e.mem.alloc(4),
		allowDir: true,
	}
	for i := range c.grDat {
		c.grDat[i] = e.mem.alloc(8)
		c.grCnt[i] = e.mem.alloc(4)
	}
	e.contexts[tok] = c
	return tok
}

// arena is the simulated engine's address space: a bump allocator over one
// growing byte slice. Addresses are base plus offset and stay stable as the
// slice grows.
type arena struct {
	base uint64
	buf  []byte
}

const arenaBase = 0x10000

func newArena() *arena {
	return &arena{base: arenaBase}
}

func (a *arena) alloc(size uint32) uint64 {
	if size == 0 {
		size = 1
	}
	// Keep every block 8-byte aligned.
	pad := (8 - len(a.buf)%8) % 8
	a.buf = append(a.buf, make([]byte, pad+int(size))...)
	return a.base + uint64(len(a.buf)-int(size))
}

func (a *arena) slice(addr uint64, n int) ([]byte, error) {
	if addr < a.base || n < 0 {
		return nil, errors.OutOfBounds(errors.PhaseDecode,
			fmt.Sprintf("address %#x outside arena", addr))
	}
	off := int(addr - a.base)
	if off+n > len(a.buf) {
		return nil, errors.OutOfBounds(errors.PhaseDecode,
			fmt.Sprintf("read of %d bytes at %#x past arena end", n, addr))
	}
	return a.buf[off : off+n], nil
}

func (a *arena) writeI32(addr uint64, v int32) {
	b, err := a.slice(addr, 4)
	if err != nil {
		return
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
}

func (a *arena) readI32(addr uint64) (int32, error) {
	b, err := a.slice(addr, 4)
	if err != nil {
		return 0, err
	}
	return int32(binary.LittleEndian.Uint32(b)), nil
}

func (a *arena) writePtr(addr, v uint64) {
	b, err := a.slice(addr, 8)
	if err != nil {
		return
	}
	binary.LittleEndian.PutUint64(b, v)
}

func (a *arena) writeF64(addr uint64, v float64) {
	b, err := a.slice(addr, 8)
	if err != nil {
		return
	}
	binary.LittleEndian.PutUint64(b, engine.EncodeF64(v))
}

// cstring materializes s as a null-terminated string and returns its address.
func (a *arena) cstring(s string) uint64 {
	addr := a.alloc(uint32(len(s) + 1))
	b, _ := a.slice(addr, len(s)+1)
	copy(b, s)
	b[len(s)] = 0
	return addr
}

// engineMemory adapts the arena to the Memory interface under the engine
// lock.
type engineMemory struct {
	e *Engine
}

func (m *engineMemory) PtrSize() uint32 { return 8 }

func (m *engineMemory) ReadI32(addr uint64) (int32, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	return m.e.mem.readI32(addr)
}

func (m *engineMemory) WriteI32(addr uint64, v int32) error {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, 4)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint32(b, uint32(v))
	return nil
}

func (m *engineMemory) ReadPtr(addr uint64) (uint64, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, 8)
	if err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint64(b), nil
}

func (m *engineMemory) WritePtr(addr, v uint64) error {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, 8)
	if err != nil {
		return err
	}
	binary.LittleEndian.PutUint64(b, v)
	return nil
}

func (m *engineMemory) ReadBytes(addr uint64, n int) ([]byte, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, n)
	if err != nil {
		return nil, err
	}
	out := make([]byte, n)
	copy(out, b)
	return out, nil
}

func (m *engineMemory) WriteBytes(addr uint64, data []byte) error {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, len(data))
	if err != nil {
		return err
	}
	copy(b, data)
	return nil
}

func (m *engineMemory) ReadFloat64s(addr uint64, n int) ([]float64, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, n*8)
	if err != nil {
		return nil, err
	}
	out := make([]float64, n)
	for i := range out {
		out[i] = engine.DecodeF64(binary.LittleEndian.Uint64(b[i*8:]))
	}
	return out, nil
}

func (m *engineMemory) WriteFloat64s(addr uint64, values []float64) error {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, len(values)*8)
	if err != nil {
		return err
	}
	for i, v := range values {
		binary.LittleEndian.PutUint64(b[i*8:], engine.EncodeF64(v))
	}
	return nil
}

func (m *engineMemory) ReadInt32s(addr uint64, n int) ([]int32, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, n*4)
	if err != nil {
		return nil, err
	}
	out := make([]int32, n)
	for i := range out {
		out[i] = int32(binary.LittleEndian.Uint32(b[i*4:]))
	}
	return out, nil
}

func (m *engineMemory) ReadPtrs(addr uint64, n int) ([]uint64, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	b, err := m.e.mem.slice(addr, n*8)
	if err != nil {
		return nil, err
	}
	out := make([]uint64, n)
	for i := range out {
		out[i] = binary.LittleEndian.Uint64(b[i*8:])
	}
	return out, nil
}

func (m *engineMemory) ReadCString(addr uint64) (string, error) {
	m.e.mu.Lock()
	defer m.e.mu.Unlock()
	a := m.e.mem
	if addr < a.base {
		return "", errors.NilPointer(errors.PhaseDecode,
			fmt.Sprintf("text address %#x outside arena", addr))
	}
	off := int(addr - a.base)
	for i := off; i < len(a.buf); i++ {
		if a.buf[i] == 0 {
			return string(a.buf[off:i]), nil
		}
	}
	return "", errors.OutOfBounds(errors.PhaseDecode,
		fmt.Sprintf("unterminated text at %#x", addr))
}

// engineAllocator adapts the arena to the Allocator interface and tracks
// outstanding blocks so tests can assert the marshaling layer frees its
// scratch.
type engineAllocator struct {
	e *Engine
}

func (al *engineAllocator) Alloc(size uint32) (uint64, error) {
	al.e.mu.Lock()
	defer al.e.mu.Unlock()
	if al.e.closed {
		return 0, fmt.Errorf("engine is closed")
	}
	addr := al.e.mem.alloc(size)
	al.e.live[addr] = struct{}{}
	return addr, nil
}

func (al *engineAllocator) Free(addr uint64) {
	al.e.mu.Lock()
	defer al.e.mu.Unlock()
	delete(al.e.live, addr)
}

// Ctl is the handler-side control surface: helpers for writing result
// buffers, raising engine errors, and materializing text. Only valid while
// the handler owns the engine lock.
type Ctl struct {
	e *Engine
}

// Fail sets the context's error flag and description, exactly as a failing
// engine call would.
func (c *Ctl) Fail(tok uint64, code int32, desc string) {
	ctx := c.e.ctx(tok)
	if ctx == nil {
		return
	}
	c.e.mem.writeI32(ctx.errFlag, code)
	ctx.errDesc = desc
}

// SetFloats points the context's float result buffer at a fresh block
// holding vals.
func (c *Ctl) SetFloats(tok uint64, vals []float64) {
	c.setBuffer(tok, grFloat, 8, func(addr uint64) {
		for i, v := range vals {
			c.e.mem.writeF64(addr+uint64(i)*8, v)
		}
	}, len(vals))
}

// SetInts points the context's integer result buffer at a fresh block
// holding vals.
func (c *Ctl) SetInts(tok uint64, vals []int32) {
	c.setBuffer(tok, grInt, 4, func(addr uint64) {
		for i, v := range vals {
			c.e.mem.writeI32(addr+uint64(i)*4, v)
		}
	}, len(vals))
}

// SetBytes points the context's byte result buffer at a fresh block holding
// data.
func (c *Ctl) SetBytes(tok uint64, data []byte) {
	c.setBuffer(tok, grByte, 1, func(addr uint64) {
		b, _ := c.e.mem.slice(addr, len(data))
		copy(b, data)
	}, len(data))
}

// SetComplexes writes pairs into the float result buffer. No values writes
// the engine's empty marker: a single zero with a count of one.
func (c *Ctl) SetComplexes(tok uint64, vals []complex128) {
	if len(vals) == 0 {
		c.SetFloats(tok, []float64{0})
		return
	}
	flat := make([]float64, 0, len(vals)*2)
	for _, v := range vals {
		flat = append(flat, real(v), imag(v))
	}
	c.SetFloats(tok, flat)
}

// CString materializes s in the arena and returns its address.
func (c *Ctl) CString(s string) uint64 {
	return c.e.mem.cstring(s)
}

// SetRawFloatBuffer points the float result buffer cells directly, without
// any validity checks. Tests use it to present malformed engine output:
// negative counts, null data pointers.
func (c *Ctl) SetRawFloatBuffer(tok uint64, count int32, dataAddr uint64) {
	ctx := c.e.ctx(tok)
	if ctx == nil {
		return
	}
	c.e.mem.writePtr(ctx.grDat[grFloat], dataAddr)
	c.e.mem.writeI32(ctx.grCnt[grFloat], count)
}

// WriteStrings fills a text out-parameter pair: a pointer array for pp and
// the count in the first element of the dims block.
func (c *Ctl) WriteStrings(pp, dims uint64, vals []string) {
	block := c.e.mem.alloc(uint32(len(vals) * 8))
	for i, s := range vals {
		c.e.mem.writePtr(block+uint64(i)*8, c.e.mem.cstring(s))
	}
	c.e.mem.writePtr(pp, block)
	c.e.mem.writeI32(dims, int32(len(vals)))
}

const (
	grText = iota
	grFloat
	grInt
	grByte
)

func (c *Ctl) setBuffer(tok uint64, cat int, elem uint32, fill func(addr uint64), n int) {
	ctx := c.e.ctx(tok)
	if ctx == nil {
		return
	}
	addr := c.e.mem.alloc(uint32(n) * elem)
	fill(addr)
	c.e.mem.writePtr(ctx.grDat[cat], addr)
	c.e.mem.writeI32(ctx.grCnt[cat], int32(n))
}
