// Package capi loads real engine builds behind the engine.API interface.
//
// Two backends are provided:
//
//   - Open loads the native shared library (libdss_capi.so / .dylib) through
//     dlopen and binds symbols per call shape. Engine memory is process
//     memory, and scratch comes from the C allocator, so the backend works
//     against any release of the library without cgo.
//
//   - OpenWASM instantiates an emscripten WebAssembly build under wazero.
//     Engine memory is the module's 32-bit linear memory and scratch comes
//     from the module's exported malloc/free. The same call core runs
//     unchanged; only pointer width differs.
//
// Both backends resolve lazily and cache bindings, and both are safe for
// concurrent use. Pick one at open time; everything above capi is backend
// agnostic.
package capi
