// Package opendss is the typed surface over an engine context: each engine
// family (Text, Circuit, Solution, element classes) becomes a struct with
// plain Go methods, and every method is one engine call.
//
// Build a DSS around a context and drive it:
//
//	dss := opendss.New(ctx)
//	if err := dss.Text.Command("new circuit.feeder basekv=13.8"); err != nil {
//		return err
//	}
//	mags, err := dss.Circuit.AllBusVmagPu()
//
// Methods return copies, never views into engine memory, so results stay
// valid after later calls. Engine-reported failures come back as *errors.Error
// with the engine's own code and message. Enum-valued reads (solution mode,
// load model, transformer core, monitor mode) validate the raw discriminant
// and reject values the engine should never produce.
//
// A DSS is bound to one context and follows its threading rule: one
// goroutine at a time. Wrap the context in engine.NewSynchronized and build
// the DSS inside Do when several goroutines share it.
package opendss
