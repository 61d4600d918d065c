// Package dssruntime provides Go bindings for the AltDSS/OpenDSS engine
// through its context-aware C API.
//
// The engine itself (power flow solving, script parsing, device models) is an
// opaque native library. This module is the interop layer on top of it:
// creating and disposing independent engine contexts, copying variable-length
// results out of engine-owned scratch buffers, translating the engine's
// out-of-band error flag into Go errors, and defining the contract for
// running several contexts in parallel.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	dssruntime/          Root package with core Memory and Allocator interfaces
//	├── runtime/         High-level API for opening the engine and managing contexts
//	├── engine/          Context handles, error channel, result buffers, marshaling
//	├── capi/            Engine backends: native shared library (purego) and WASM build (wazero)
//	├── opendss/         Typed wrappers over the engine's domain objects
//	├── enginetest/      Deterministic in-memory engine for tests and demos
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Open the engine and solve a circuit:
//
//	rt, err := runtime.Open(runtime.Options{LibPath: "libdss_capi.so"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	dss := rt.Prime()
//	if err := dss.Text.Command("redirect ieee13.dss"); err != nil {
//	    log.Fatal(err)
//	}
//	if err := dss.Solution.Solve(); err != nil {
//	    log.Fatal(err)
//	}
//	volts, err := dss.Circuit.AllBusVmagPu()
//
// # Contexts
//
// The engine keeps one implicit default instance (the prime context) plus any
// number of explicitly created ones. Each context has fully independent state:
// its own circuit, its own result buffers, its own error flag. Additional
// contexts come from NewEngine and must be closed exactly once:
//
//	worker, err := rt.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer worker.Close()
//
// # Thread Safety
//
// Runtime is safe for concurrent use. A context (and every opendss wrapper
// built on one) is NOT thread-safe: confine each context to a single
// goroutine for its whole life, or share it through engine.Synchronized.
// Independent contexts impose no ordering on each other and may run fully in
// parallel, one goroutine each.
//
// # Result Buffers
//
// Variable-length results come back through engine-owned scratch buffers that
// are overwritten by the next call on the same context. Every accessor in
// this library copies the buffer into a fresh Go slice before returning, so
// returned values are always safe to retain.
package dssruntime
