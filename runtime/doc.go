// Package runtime manages engine sessions: one backend, one prime engine,
// and any number of independent actor engines.
//
// # Quick Start
//
//	rt, err := runtime.Open(runtime.Options{LibPath: "libdss_capi.so"})
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer rt.Close()
//
//	dss := rt.Prime()
//	if err := dss.Text.Command("new circuit.feeder basekv=13.8"); err != nil {
//	    log.Fatal(err)
//	}
//
// # Backends
//
// Options selects exactly one engine source:
//
//	Options{LibPath: "..."}        - native shared library
//	Options{WASM: bytes, Ctx: ctx} - WebAssembly engine build
//	Options{API: backend}          - injected backend (enginetest)
//
// # Prime and Actors
//
// The prime engine is created during Open and lives for the whole session;
// closing it is rejected. Actor engines come from NewEngine, carry fully
// independent circuit state, and must be closed exactly once:
//
//	eng, err := rt.NewEngine()
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer eng.Close()
//
// Actors left open are logged when the runtime closes; they are never
// force-disposed.
//
// # Thread Safety
//
// Runtime is safe for concurrent use: goroutines may create and close
// engines freely. An individual Engine is not; give each goroutine its own
// actor, or share one through engine.NewSynchronized.
package runtime
