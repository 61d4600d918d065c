// Package errors provides structured error types for the dss-runtime library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error
// category). The Error type includes rich context: the operation name, the
// engine's numeric error code where one exists, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseDecode, errors.KindBadCount).
//		Op("Circuit.TotalPower").
//		Detail("scalar complex needs a count of 2, engine reported %d", n).
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.EngineReported("Text.Command", 289, "Invalid bus name")
//	err := errors.InvalidEnum("Transformers.CoreType", 9, "CoreType")
//
// The four public error families map onto Phase/Kind pairs and can be
// tested with the Is* predicates:
//
//	errors.IsEngineReported(err)  // the engine set its error flag
//	errors.IsMarshaling(err)      // a result buffer did not match the decode
//	errors.IsLifecycle(err)       // use of a disposed or protected context
//	errors.IsContextCreation(err) // the engine could not allocate a context
//
// All errors implement the standard error interface and support errors.Is/As.
package errors
