package engine

import (
	"fmt"

	"github.com/wippyai/dss-runtime/errors"
)

type argKind uint8

const (
	argI32 argKind = iota
	argBool
	argF64
	argStr
	argFloats
	argStrs
	argAddr // raw engine address, used internally for out-parameters
)

// Arg is one operation argument. Build them with I32, Bool, F64, Str, Floats
// and Strs. Array arguments expand to an (address, count) pair on the wire;
// the backing copies live in engine-reachable scratch for the full duration
// of the native call and are released afterwards.
type Arg struct {
	kind   argKind
	i      int32
	f      float64
	b      bool
	s      string
	floats []float64
	strs   []string
	addr   uint64
}

func I32(v int32) Arg        { return Arg{kind: argI32, i: v} }
func Bool(v bool) Arg        { return Arg{kind: argBool, b: v} }
func F64(v float64) Arg      { return Arg{kind: argF64, f: v} }
func Str(v string) Arg       { return Arg{kind: argStr, s: v} }
func Floats(v []float64) Arg { return Arg{kind: argFloats, floats: v} }
func Strs(v []string) Arg    { return Arg{kind: argStrs, strs: v} }

func addrArg(a uint64) Arg { return Arg{kind: argAddr, addr: a} }

// scratch tracks engine-side allocations made while encoding one call's
// inputs. Everything stays alive until free runs, after the native call
// has returned.
type scratch struct {
	api   API
	addrs []uint64
}

func (s *scratch) alloc(size uint32) (uint64, error) {
	if size == 0 {
		size = 1
	}
	addr, err := s.api.Allocator().Alloc(size)
	if err != nil {
		return 0, err
	}
	s.addrs = append(s.addrs, addr)
	return addr, nil
}

func (s *scratch) allocZeroed(size uint32) (uint64, error) {
	addr, err := s.alloc(size)
	if err != nil {
		return 0, err
	}
	if err := s.api.Memory().WriteBytes(addr, make([]byte, size)); err != nil {
		return 0, err
	}
	return addr, nil
}

func (s *scratch) free() {
	for _, a := range s.addrs {
		s.api.Allocator().Free(a)
	}
	s.addrs = nil
}

// cstring copies v into engine-reachable memory with a null terminator.
func (s *scratch) cstring(v string) (uint64, error) {
	buf := make([]byte, len(v)+1)
	copy(buf, v)
	addr, err := s.alloc(uint32(len(buf)))
	if err != nil {
		return 0, err
	}
	if err := s.api.Memory().WriteBytes(addr, buf); err != nil {
		return 0, err
	}
	return addr, nil
}

// cstrings builds null-terminated copies of every element plus the
// contiguous pointer array the engine expects for text input. Both outlive
// the native call that consumes them.
func (s *scratch) cstrings(vs []string) (uint64, error) {
	mem := s.api.Memory()
	ps := uint64(mem.PtrSize())
	block, err := s.alloc(uint32(uint64(len(vs)) * ps))
	if err != nil {
		return 0, err
	}
	for i, v := range vs {
		p, err := s.cstring(v)
		if err != nil {
			return 0, err
		}
		if err := mem.WritePtr(block+uint64(i)*ps, p); err != nil {
			return 0, err
		}
	}
	return block, nil
}

func (s *scratch) floats(vs []float64) (uint64, error) {
	addr, err := s.alloc(uint32(len(vs) * 8))
	if err != nil {
		return 0, err
	}
	if err := s.api.Memory().WriteFloat64s(addr, vs); err != nil {
		return 0, err
	}
	return addr, nil
}

// invoke routes one operation through the context: encode inputs, resolve
// the symbol, call, then consume the error flag. The uint64 result is only
// meaningful for non-void return kinds.
func (c *Context) invoke(op Op, ret Kind, args []Arg) (uint64, error) {
	if c.state.Load() != stateActive {
		return 0, errors.Disposed(op.Name)
	}

	sc := scratch{api: c.api}
	defer sc.free()

	shape := Shape{Ret: ret, Args: make([]Kind, 0, len(args)+3)}
	slots := make([]uint64, 0, len(args)+3)
	shape.Args = append(shape.Args, KindAddr)
	slots = append(slots, uint64(c.tok))

	for _, a := range args {
		switch a.kind {
		case argI32:
			shape.Args = append(shape.Args, KindI32)
			slots = append(slots, EncodeI32(a.i))
		case argBool:
			shape.Args = append(shape.Args, KindBool)
			slots = append(slots, EncodeBool(a.b))
		case argF64:
			shape.Args = append(shape.Args, KindF64)
			slots = append(slots, EncodeF64(a.f))
		case argStr:
			addr, err := sc.cstring(a.s)
			if err != nil {
				return 0, encodeErr(op, err)
			}
			shape.Args = append(shape.Args, KindAddr)
			slots = append(slots, addr)
		case argFloats:
			addr, err := sc.floats(a.floats)
			if err != nil {
				return 0, encodeErr(op, err)
			}
			shape.Args = append(shape.Args, KindAddr, KindI32)
			slots = append(slots, addr, EncodeI32(int32(len(a.floats))))
		case argStrs:
			addr, err := sc.cstrings(a.strs)
			if err != nil {
				return 0, encodeErr(op, err)
			}
			shape.Args = append(shape.Args, KindAddr, KindI32)
			slots = append(slots, addr, EncodeI32(int32(len(a.strs))))
		case argAddr:
			shape.Args = append(shape.Args, KindAddr)
			slots = append(slots, a.addr)
		}
	}

	fn, err := c.api.Func(op.Symbol, shape)
	if err != nil {
		return 0, err
	}
	out, err := fn(slots...)
	if err != nil {
		return 0, errors.CallFailed(op.Name, err)
	}
	if err := c.check(op.Name); err != nil {
		return 0, err
	}
	return out, nil
}

// CallVoid invokes an operation with no result.
func (c *Context) CallVoid(op Op, args ...Arg) error {
	_, err := c.invoke(op, KindVoid, args)
	return err
}

// CallI32 invokes an operation returning a 32-bit integer.
func (c *Context) CallI32(op Op, args ...Arg) (int32, error) {
	out, err := c.invoke(op, KindI32, args)
	if err != nil {
		return 0, err
	}
	return DecodeI32(out), nil
}

// CallBool invokes an operation returning the engine's 16-bit boolean.
func (c *Context) CallBool(op Op, args ...Arg) (bool, error) {
	out, err := c.invoke(op, KindBool, args)
	if err != nil {
		return false, err
	}
	return DecodeBool(out), nil
}

// CallF64 invokes an operation returning a 64-bit float.
func (c *Context) CallF64(op Op, args ...Arg) (float64, error) {
	out, err := c.invoke(op, KindF64, args)
	if err != nil {
		return 0, err
	}
	return DecodeF64(out), nil
}

// CallString invokes an operation returning engine-owned text and copies it
// out. A null result decodes as the empty string.
func (c *Context) CallString(op Op, args ...Arg) (string, error) {
	out, err := c.invoke(op, KindAddr, args)
	if err != nil {
		return "", err
	}
	if out == 0 {
		return "", nil
	}
	s, err := c.api.Memory().ReadCString(out)
	if err != nil {
		return "", decodeErr(op, err)
	}
	return s, nil
}

// CallFloats invokes an operation that refreshes the float result buffer,
// then snapshots the buffer into a fresh slice.
func (c *Context) CallFloats(op Op, args ...Arg) ([]float64, error) {
	if _, err := c.invoke(op, KindVoid, args); err != nil {
		return nil, err
	}
	n, buf, err := c.buffer(op, c.cntFloat, c.datFloat)
	if err != nil || n == 0 {
		return nil, err
	}
	vals, err := c.api.Memory().ReadFloat64s(buf, n)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	return vals, nil
}

// CallInts invokes an operation that refreshes the integer result buffer,
// then snapshots the buffer into a fresh slice.
func (c *Context) CallInts(op Op, args ...Arg) ([]int32, error) {
	if _, err := c.invoke(op, KindVoid, args); err != nil {
		return nil, err
	}
	n, buf, err := c.buffer(op, c.cntInt, c.datInt)
	if err != nil || n == 0 {
		return nil, err
	}
	vals, err := c.api.Memory().ReadInt32s(buf, n)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	return vals, nil
}

// CallBytes invokes an operation that refreshes the byte result buffer, then
// snapshots the buffer. The result is an opaque packed record stream.
func (c *Context) CallBytes(op Op, args ...Arg) ([]byte, error) {
	if _, err := c.invoke(op, KindVoid, args); err != nil {
		return nil, err
	}
	n, buf, err := c.buffer(op, c.cntByte, c.datByte)
	if err != nil || n == 0 {
		return nil, err
	}
	vals, err := c.api.Memory().ReadBytes(buf, n)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	return vals, nil
}

// CallComplexes invokes a float-buffer operation and decodes the buffer as
// complex pairs, element 2i the real part and 2i+1 the imaginary part. A
// count of exactly 1 is the engine's empty marker and decodes to no values;
// any other odd count is a decode error.
func (c *Context) CallComplexes(op Op, args ...Arg) ([]complex128, error) {
	floats, err := c.CallFloats(op, args...)
	if err != nil {
		return nil, err
	}
	n := len(floats)
	if n == 1 {
		return nil, nil
	}
	if n%2 != 0 {
		return nil, errors.OddCount(op.Name, n)
	}
	out := make([]complex128, n/2)
	for i := range out {
		out[i] = complex(floats[2*i], floats[2*i+1])
	}
	return out, nil
}

// CallComplex invokes a float-buffer operation that must yield exactly one
// complex value, i.e. a float count of exactly 2. Anything else is a decode
// error rather than a blind read of the first two elements.
func (c *Context) CallComplex(op Op, args ...Arg) (complex128, error) {
	floats, err := c.CallFloats(op, args...)
	if err != nil {
		return 0, err
	}
	if len(floats) != 2 {
		return 0, errors.BadCount(op.Name, len(floats), 2)
	}
	return complex(floats[0], floats[1]), nil
}

// CallStrings invokes an operation returning an array of text values. Text
// arrays travel through a dedicated pair of out-parameters rather than the
// shared result buffers: a pointer slot the engine points at its text
// pointer array, and a four-int32 dims block whose first element is the
// count. Every element is copied out in engine order.
func (c *Context) CallStrings(op Op, args ...Arg) ([]string, error) {
	mem := c.api.Memory()
	sc := scratch{api: c.api}
	defer sc.free()

	pp, err := sc.allocZeroed(mem.PtrSize())
	if err != nil {
		return nil, encodeErr(op, err)
	}
	dims, err := sc.allocZeroed(16)
	if err != nil {
		return nil, encodeErr(op, err)
	}

	full := make([]Arg, 0, len(args)+2)
	full = append(full, args...)
	full = append(full, addrArg(pp), addrArg(dims))
	if _, err := c.invoke(op, KindVoid, full); err != nil {
		return nil, err
	}

	n, err := mem.ReadI32(dims)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	if n < 0 {
		return nil, errors.InvalidData(errors.PhaseDecode, op.Name,
			fmt.Sprintf("negative result count %d", n))
	}
	if n == 0 {
		return nil, nil
	}
	data, err := mem.ReadPtr(pp)
	if err != nil {
		return nil, decodeErr(op, err)
	}
	if data == 0 {
		return nil, errors.New(errors.PhaseDecode, errors.KindNilPointer).
			Op(op.Name).Detail("null text array with count %d", n).Build()
	}
	ptrs, err := mem.ReadPtrs(data, int(n))
	if err != nil {
		return nil, decodeErr(op, err)
	}
	out := make([]string, n)
	for i, p := range ptrs {
		if p == 0 {
			continue
		}
		s, err := mem.ReadCString(p)
		if err != nil {
			return nil, decodeErr(op, err)
		}
		out[i] = s
	}
	return out, nil
}

// Enums invokes an integer-array operation and validates every element
// through decode, typically an enum's FromInt32 constructor. One rejected
// element fails the whole decode.
func Enums[E ~int32](c *Context, op Op, decode func(int32) (E, error), args ...Arg) ([]E, error) {
	raw, err := c.CallInts(op, args...)
	if err != nil {
		return nil, err
	}
	out := make([]E, len(raw))
	for i, v := range raw {
		e, err := decode(v)
		if err != nil {
			return nil, err
		}
		out[i] = e
	}
	return out, nil
}

// buffer reads one result buffer's count cell and current data pointer.
func (c *Context) buffer(op Op, cntAddr, datAddr uint64) (int, uint64, error) {
	mem := c.api.Memory()
	n, err := mem.ReadI32(cntAddr)
	if err != nil {
		return 0, 0, decodeErr(op, err)
	}
	if n < 0 {
		return 0, 0, errors.InvalidData(errors.PhaseDecode, op.Name,
			fmt.Sprintf("negative result count %d", n))
	}
	if n == 0 {
		return 0, 0, nil
	}
	buf, err := mem.ReadPtr(datAddr)
	if err != nil {
		return 0, 0, decodeErr(op, err)
	}
	if buf == 0 {
		return 0, 0, errors.New(errors.PhaseDecode, errors.KindNilPointer).
			Op(op.Name).Detail("null data pointer with count %d", n).Build()
	}
	return int(n), buf, nil
}

func encodeErr(op Op, err error) error {
	return errors.New(errors.PhaseEncode, errors.KindAllocation).
		Op(op.Name).Cause(err).Detail("encode arguments").Build()
}

func decodeErr(op Op, err error) error {
	return errors.New(errors.PhaseDecode, errors.KindInvalidData).
		Op(op.Name).Cause(err).Detail("read result").Build()
}
