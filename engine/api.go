package engine

import (
	"math"
	"strings"

	dssruntime "github.com/wippyai/dss-runtime"
)

// Kind identifies a value category in a native signature.
type Kind uint8

const (
	KindVoid Kind = iota // no value, return position only
	KindI32              // 32-bit signed integer
	KindBool             // 16-bit 0/1 field
	KindF64              // IEEE-754 double
	KindAddr             // engine address, pointer-sized on the engine side
)

func (k Kind) String() string {
	switch k {
	case KindVoid:
		return "void"
	case KindI32:
		return "i32"
	case KindBool:
		return "bool"
	case KindF64:
		return "f64"
	case KindAddr:
		return "addr"
	}
	return "unknown"
}

// Shape describes a native function signature. The engine context token, when
// a function takes one, appears explicitly as a leading KindAddr argument.
type Shape struct {
	Args []Kind
	Ret  Kind
}

// Sig builds a Shape from a return kind and argument kinds.
func Sig(ret Kind, args ...Kind) Shape {
	return Shape{Ret: ret, Args: args}
}

func (s Shape) String() string {
	parts := make([]string, len(s.Args))
	for i, a := range s.Args {
		parts[i] = a.String()
	}
	return s.Ret.String() + "(" + strings.Join(parts, ", ") + ")"
}

// NativeFunc invokes one engine function. Arguments and the result travel in
// uint64 slots: f64 as raw IEEE-754 bits, i32 zero-extended from its 32-bit
// pattern, bool as 0/1 in the low 16 bits, addresses verbatim. The error is
// only set when the backend itself fails (a WASM trap, a closed library);
// engine-reported errors travel through the error flag instead.
type NativeFunc func(args ...uint64) (uint64, error)

// API is one loaded engine: a resolver from symbol names to callable
// functions plus access to engine-reachable memory. Implementations are the
// native shared library, the WASM build, and the in-memory test engine.
//
// Func resolves and caches; resolving the same symbol twice returns the same
// binding. Implementations are safe for concurrent use.
type API interface {
	Func(symbol string, shape Shape) (NativeFunc, error)
	Memory() dssruntime.Memory
	Allocator() dssruntime.Allocator
	Close() error
}

// Op names one engine operation: a public name for diagnostics and the
// native symbol that implements it. Domain packages declare a table of these
// and invoke them through the Context call primitives, which derive the
// native shape from the arguments and result category.
type Op struct {
	Name   string
	Symbol string
}

// Slot conversion helpers shared by the call core and the backends.

// EncodeF64 packs a float64 into a slot.
func EncodeF64(v float64) uint64 { return math.Float64bits(v) }

// DecodeF64 unpacks a slot written by EncodeF64.
func DecodeF64(slot uint64) float64 { return math.Float64frombits(slot) }

// EncodeI32 packs an int32 into a slot, zero-extending its bit pattern.
func EncodeI32(v int32) uint64 { return uint64(uint32(v)) }

// DecodeI32 unpacks a slot written by EncodeI32.
func DecodeI32(slot uint64) int32 { return int32(uint32(slot)) }

// EncodeBool packs a bool into a slot as the engine's 16-bit 0/1 field.
func EncodeBool(v bool) uint64 {
	if v {
		return 1
	}
	return 0
}

// DecodeBool unpacks a 16-bit 0/1 slot.
func DecodeBool(slot uint64) bool { return uint16(slot) != 0 }

// Per-context protocol symbols. Domain operations carry their own symbols in
// Op descriptors; these are the fixed set the context machinery itself needs.
const (
	symNew         = "ctx_New"
	symDispose     = "ctx_Dispose"
	symGetPrime    = "ctx_Get_Prime"
	symStart       = "ctx_DSS_Start"
	symGRPointers  = "ctx_DSS_GetGRPointers"
	symErrorNumber = "ctx_Error_Get_NumberPtr"
	symErrorDesc   = "ctx_Error_Get_Description"
)
