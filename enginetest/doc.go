// Package enginetest provides a deterministic in-memory engine for tests.
//
// The simulation implements engine.API over a flat byte arena, so backend
// memory, allocation, result buffers, and the error flag protocol all behave
// exactly as they do against a real library, without loading one. It
// understands a working subset of the command language (new, edit, set,
// solve, clear, calcvoltagebases) and the bound per-class operations, and
// produces deterministic solutions: the same script always yields the same
// voltages, powers, and meter totals.
//
// Tests that need exact control over a symbol can replace it:
//
//	eng := enginetest.New()
//	eng.Register("ctx_Loads_Get_ZIPV_GR", func(ctl *enginetest.Ctl, args []uint64) (uint64, error) {
//	    ctl.SetFloats(args[0], []float64{0.7, 0.3})
//	    return 0, nil
//	})
//
// Handlers run with the engine lock held and see the raw call slots;
// args[0] is the context token for every symbol except ctx_New and
// ctx_Get_Prime.
package enginetest
