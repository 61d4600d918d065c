package engine

import (
	"fmt"
	"sync/atomic"

	"go.uber.org/zap"

	"github.com/wippyai/dss-runtime/errors"
)

// Token is the engine's opaque identifier for one independent instance of
// engine state. It is an address-sized value and means nothing to callers.
type Token uint64

const (
	stateActive int32 = iota
	stateDisposed
)

// Context is one engine instance: the token plus the per-instance addresses
// captured at registration (the error flag and the four result buffer
// count/data pairs). Every domain operation is routed through a Context.
//
// A Context is NOT safe for concurrent use. It may be moved to another
// goroutine and used exclusively there; to share one across goroutines, wrap
// it in Synchronized. Result buffers are only valid until the next call on
// the same context, which is why every accessor copies before returning.
type Context struct {
	api   API
	tok   Token
	prime bool
	state atomic.Int32

	// Captured once at construction. errFlag holds an int32; the dat slots
	// each hold a pointer the engine repoints at the current result buffer;
	// the cnt cells hold the current element count per category.
	errFlag                uint64
	datText, datFloat      uint64
	datInt, datByte        uint64
	cntText, cntFloat      uint64
	cntInt, cntByte        uint64
}

// NewContext wraps a raw engine token. It performs the one-time registration
// protocol: the start call, the error-flag address fetch, and the result
// buffer pointer query. Any failure returns a context creation error and no
// Context.
func NewContext(api API, tok Token, prime bool) (*Context, error) {
	if tok == 0 {
		return nil, errors.ContextCreation("engine returned a null context token", nil)
	}
	c := &Context{api: api, tok: tok, prime: prime}

	start, err := api.Func(symStart, Sig(KindBool, KindAddr, KindI32))
	if err != nil {
		return nil, errors.ContextCreation("resolve start", err)
	}
	ok, err := start(uint64(tok), EncodeI32(0))
	if err != nil {
		return nil, errors.ContextCreation("start call failed", err)
	}
	if !DecodeBool(ok) {
		return nil, errors.ContextCreation("engine rejected the start call", nil)
	}

	errPtr, err := api.Func(symErrorNumber, Sig(KindAddr, KindAddr))
	if err != nil {
		return nil, errors.ContextCreation("resolve error flag accessor", err)
	}
	flag, err := errPtr(uint64(tok))
	if err != nil {
		return nil, errors.ContextCreation("error flag query failed", err)
	}
	if flag == 0 {
		return nil, errors.ContextCreation("engine returned a null error flag address", nil)
	}
	c.errFlag = flag

	if err := c.register(); err != nil {
		return nil, err
	}

	Logger().Debug("context registered",
		zap.Uint64("token", uint64(tok)),
		zap.Bool("prime", prime))
	return c, nil
}

// register performs the result buffer pointer query: the engine fills eight
// pointer-sized out-parameters, in engine order data text/float/int/byte
// then count text/float/int/byte.
func (c *Context) register() error {
	mem := c.api.Memory()
	alloc := c.api.Allocator()
	ps := uint64(mem.PtrSize())

	block, err := alloc.Alloc(uint32(8 * ps))
	if err != nil {
		return errors.ContextCreation("allocate registration block", err)
	}
	defer alloc.Free(block)
	if err := mem.WriteBytes(block, make([]byte, 8*ps)); err != nil {
		return errors.ContextCreation("clear registration block", err)
	}

	shape := Sig(KindVoid,
		KindAddr, KindAddr, KindAddr, KindAddr, KindAddr,
		KindAddr, KindAddr, KindAddr, KindAddr)
	reg, err := c.api.Func(symGRPointers, shape)
	if err != nil {
		return errors.ContextCreation("resolve result buffer registration", err)
	}
	args := make([]uint64, 0, 9)
	args = append(args, uint64(c.tok))
	for i := uint64(0); i < 8; i++ {
		args = append(args, block+i*ps)
	}
	if _, err := reg(args...); err != nil {
		return errors.ContextCreation("result buffer registration failed", err)
	}

	out := make([]uint64, 8)
	for i := range out {
		v, err := mem.ReadPtr(block + uint64(i)*ps)
		if err != nil {
			return errors.ContextCreation("read registration block", err)
		}
		if v == 0 {
			return errors.ContextCreation(
				fmt.Sprintf("registration slot %d is null", i), nil)
		}
		out[i] = v
	}
	c.datText, c.datFloat, c.datInt, c.datByte = out[0], out[1], out[2], out[3]
	c.cntText, c.cntFloat, c.cntInt, c.cntByte = out[4], out[5], out[6], out[7]
	return nil
}

// Prime fetches the engine's default context and wraps it. The returned
// context cannot be disposed; it lives as long as the loaded engine.
func Prime(api API) (*Context, error) {
	fn, err := api.Func(symGetPrime, Sig(KindAddr))
	if err != nil {
		return nil, errors.ContextCreation("resolve prime accessor", err)
	}
	tok, err := fn()
	if err != nil {
		return nil, errors.ContextCreation("prime query failed", err)
	}
	return NewContext(api, Token(tok), true)
}

// NewChild asks the engine for a brand-new independent context. The request
// is routed through this context, which must still be active; the child
// shares nothing with it beyond the loaded engine code.
func (c *Context) NewChild() (*Context, error) {
	if c.state.Load() != stateActive {
		return nil, errors.Disposed("NewChild")
	}
	fn, err := c.api.Func(symNew, Sig(KindAddr))
	if err != nil {
		return nil, errors.ContextCreation("resolve context allocator", err)
	}
	tok, err := fn()
	if err != nil {
		return nil, errors.ContextCreation("context allocation failed", err)
	}
	if tok == 0 {
		return nil, errors.ContextCreation("engine could not allocate a context", nil)
	}
	child, err := NewContext(c.api, Token(tok), false)
	if err != nil {
		// Registration failed on a live token; release it so it does not leak.
		if dispose, derr := c.api.Func(symDispose, Sig(KindVoid, KindAddr)); derr == nil {
			_, _ = dispose(tok)
		}
		return nil, err
	}
	return child, nil
}

// Dispose releases the engine-side resources behind an actor context. It is
// rejected for the prime context and for a context already disposed; the
// disposal call reaches the engine at most once.
func (c *Context) Dispose() error {
	if c.prime {
		return errors.PrimeDispose()
	}
	if !c.state.CompareAndSwap(stateActive, stateDisposed) {
		return errors.DoubleDispose()
	}
	fn, err := c.api.Func(symDispose, Sig(KindVoid, KindAddr))
	if err != nil {
		return fmt.Errorf("resolve dispose: %w", err)
	}
	if _, err := fn(uint64(c.tok)); err != nil {
		return fmt.Errorf("dispose context: %w", err)
	}
	Logger().Debug("context disposed", zap.Uint64("token", uint64(c.tok)))
	return nil
}

// Token returns the raw engine token.
func (c *Context) Token() Token { return c.tok }

// IsPrime reports whether this is the engine's default context.
func (c *Context) IsPrime() bool { return c.prime }

// Active reports whether the context can still route operations.
func (c *Context) Active() bool { return c.state.Load() == stateActive }

// Check reads the context's error flag. A zero flag means success. A nonzero
// flag yields the engine's numeric code and description; reading clears the
// flag, so each engine error is observable exactly once. The call primitives
// run Check after every operation; call it directly only when driving raw
// symbols by hand.
func (c *Context) Check() error { return c.check("") }

func (c *Context) check(op string) error {
	mem := c.api.Memory()
	code, err := mem.ReadI32(c.errFlag)
	if err != nil {
		return fmt.Errorf("read error flag: %w", err)
	}
	if code == 0 {
		return nil
	}

	// The description accessor is only meaningful before the flag is cleared.
	desc := ""
	if fn, ferr := c.api.Func(symErrorDesc, Sig(KindAddr, KindAddr)); ferr == nil {
		if addr, cerr := fn(uint64(c.tok)); cerr == nil && addr != 0 {
			if s, rerr := mem.ReadCString(addr); rerr == nil {
				desc = s
			}
		}
	}
	if err := mem.WriteI32(c.errFlag, 0); err != nil {
		return fmt.Errorf("clear error flag: %w", err)
	}
	return errors.EngineReported(op, code, desc)
}
