// Package engine provides the low-level interop core for the DSS engine.
//
// The engine is an opaque native library exposing a flat C symbol table.
// Every function is keyed by a (domain, operation) pair and takes an opaque
// context token as its first argument. This package wraps that boundary:
// context handles, the error-flag protocol, the result buffer protocol, and
// the typed marshaling primitives everything else is built on.
//
// # Architecture
//
// The package provides three main pieces:
//
//	API      - one loaded engine backend: symbol resolution plus memory access
//	Context  - one engine instance: token, cached addresses, call primitives
//	Op       - a named operation descriptor invoked through a Context
//
// # Contexts
//
// Constructing a Context performs the one-time registration protocol against
// the engine: a start call, an error-flag address fetch, and a query that
// returns the addresses of the four result buffer (count, data) pairs for
// floats, 32-bit integers, bytes, and text pointers. Those addresses are
// cached for the life of the context.
//
// The prime context is the engine's own default instance: fetched with
// Prime, never disposed. Additional contexts come from NewChild and must be
// disposed exactly once; their state is fully independent, down to separate
// result buffers and error flags.
//
// # Call Protocol
//
// Every operation follows the same sequence: encode inputs into
// engine-reachable scratch, call the native function, consume the error flag
// with check, then snapshot any result buffer into a fresh Go slice. The
// error flag is cleared by reading it, so each engine error is observed
// exactly once, by the call that caused it.
//
// Result buffers are engine-owned scratch, overwritten by the next call on
// the same context. Nothing returned by the Call primitives aliases them.
//
// # Shapes
//
// Native signatures are described by Shape values over a five-kind alphabet
// (void, i32, 16-bit bool, f64, address). Backends resolve a (symbol, shape)
// pair once and cache the binding; arguments travel in uint64 slots using
// the conversions in EncodeF64, EncodeI32 and EncodeBool.
//
// # Thread Safety
//
// API implementations are safe for concurrent use. Context is NOT: confine
// each context to one goroutine, or share it through Synchronized.
// Independent contexts may run fully in parallel.
//
// Most users should use the runtime and opendss packages for a simpler API.
// This package is for advanced use cases requiring direct control.
package engine
