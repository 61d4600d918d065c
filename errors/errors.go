package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseOpen      Phase = "open"      // library loading and symbol resolution
	PhaseContext   Phase = "context"   // context creation and registration
	PhaseCall      Phase = "call"      // native call execution
	PhaseEncode    Phase = "encode"    // Go to engine
	PhaseDecode    Phase = "decode"    // engine to Go
	PhaseLifecycle Phase = "lifecycle" // handle state machine
)

// Kind categorizes the error
type Kind string

const (
	KindEngineReported Kind = "engine_reported"
	KindCallFailed     Kind = "call_failed"
	KindBadCount       Kind = "bad_count"
	KindInvalidEnum    Kind = "invalid_enum"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindNilPointer     Kind = "nil_pointer"
	KindInvalidData    Kind = "invalid_data"
	KindBadShape       Kind = "bad_shape"
	KindDisposed       Kind = "disposed"
	KindDoubleDispose  Kind = "double_dispose"
	KindPrimeDispose   Kind = "prime_dispose"
	KindCreation       Kind = "creation"
	KindAllocation     Kind = "allocation"
	KindNotFound       Kind = "not_found"
	KindUnsupported    Kind = "unsupported"
	KindInvalidInput   Kind = "invalid_input"
)

// Error is the structured error type used throughout the library
type Error struct {
	Value  any
	Cause  error
	Phase  Phase
	Kind   Kind
	Op     string // operation or native symbol name
	Code   int32  // engine-reported error number, 0 if none
	Detail string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if e.Op != "" {
		b.WriteString(" at ")
		b.WriteString(e.Op)
	}

	if e.Code != 0 {
		fmt.Fprintf(&b, ": engine code %d", e.Code)
	}

	if e.Detail != "" {
		if e.Code != 0 {
			b.WriteString(" - ")
		} else {
			b.WriteString(": ")
		}
		b.WriteString(e.Detail)
	}

	if e.Cause != nil {
		b.WriteString(" (caused by: ")
		b.WriteString(e.Cause.Error())
		b.WriteByte(')')
	}

	return b.String()
}

// Unwrap returns the underlying error
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is reports whether target matches this error
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Phase == t.Phase && e.Kind == t.Kind
	}
	return false
}

// Builder provides structured error construction
type Builder struct {
	err Error
}

// New creates a new error builder
func New(phase Phase, kind Kind) *Builder {
	return &Builder{
		err: Error{
			Phase: phase,
			Kind:  kind,
		},
	}
}

// Op sets the operation or symbol name
func (b *Builder) Op(op string) *Builder {
	b.err.Op = op
	return b
}

// Code sets the engine-reported error number
func (b *Builder) Code(code int32) *Builder {
	b.err.Code = code
	return b
}

// Value sets the offending value
func (b *Builder) Value(v any) *Builder {
	b.err.Value = v
	return b
}

// Cause sets the underlying error
func (b *Builder) Cause(err error) *Builder {
	b.err.Cause = err
	return b
}

// Detail sets the human-readable detail message
func (b *Builder) Detail(msg string, args ...any) *Builder {
	if len(args) > 0 {
		b.err.Detail = fmt.Sprintf(msg, args...)
	} else {
		b.err.Detail = msg
	}
	return b
}

// Build returns the constructed error
func (b *Builder) Build() *Error {
	return &b.err
}

// Convenience constructors for common error patterns

// EngineReported creates an error carrying the engine's own error flag state.
// The description is the engine's text, captured before the flag was cleared.
func EngineReported(op string, code int32, description string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindEngineReported,
		Op:     op,
		Code:   code,
		Detail: description,
	}
}

// CallFailed creates an error for a native call the backend could not
// complete (a WASM trap, a closed library). Engine-reported errors use
// EngineReported instead.
func CallFailed(op string, cause error) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindCallFailed,
		Op:     op,
		Detail: "native call failed",
		Cause:  cause,
	}
}

// BadCount creates an error for a result buffer count that does not fit the
// requested decode
func BadCount(op string, got, want int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindBadCount,
		Op:     op,
		Detail: fmt.Sprintf("result count %d, need %d", got, want),
		Value:  got,
	}
}

// OddCount creates an error for a complex decode over an odd float count
func OddCount(op string, got int) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindBadCount,
		Op:     op,
		Detail: fmt.Sprintf("complex pairs need an even count, engine reported %d", got),
		Value:  got,
	}
}

// InvalidEnum creates an error for a raw discriminant outside the known set
func InvalidEnum(op string, value any, enumType string) *Error {
	return &Error{
		Phase:  PhaseDecode,
		Kind:   KindInvalidEnum,
		Op:     op,
		Detail: fmt.Sprintf("value %v is not a known %s", value, enumType),
		Value:  value,
	}
}

// OutOfBounds creates an error for a memory read beyond a valid region
func OutOfBounds(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Detail: detail,
	}
}

// NilPointer creates an error for a null engine pointer where data was expected
func NilPointer(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNilPointer,
		Detail: what,
	}
}

// InvalidData creates an invalid data error
func InvalidData(phase Phase, op, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidData,
		Op:     op,
		Detail: detail,
	}
}

// BadShape creates an error for a dispatcher argument/shape mismatch
func BadShape(op, detail string) *Error {
	return &Error{
		Phase:  PhaseCall,
		Kind:   KindBadShape,
		Op:     op,
		Detail: detail,
	}
}

// Disposed creates an error for an operation on a disposed context
func Disposed(op string) *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDisposed,
		Op:     op,
		Detail: "context is disposed",
	}
}

// DoubleDispose creates an error for a second disposal of the same context
func DoubleDispose() *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindDoubleDispose,
		Detail: "context already disposed",
	}
}

// PrimeDispose creates an error for an attempt to dispose the prime context
func PrimeDispose() *Error {
	return &Error{
		Phase:  PhaseLifecycle,
		Kind:   KindPrimeDispose,
		Detail: "the prime context cannot be disposed",
	}
}

// ContextCreation creates an error for a failed engine context allocation
func ContextCreation(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseContext,
		Kind:   KindCreation,
		Detail: detail,
		Cause:  cause,
	}
}

// AllocationFailed creates a scratch allocation failure error
func AllocationFailed(size uint32) *Error {
	return &Error{
		Phase:  PhaseEncode,
		Kind:   KindAllocation,
		Detail: fmt.Sprintf("failed to allocate %d bytes", size),
	}
}

// SymbolNotFound creates an error for an unresolvable native symbol
func SymbolNotFound(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindNotFound,
		Op:     symbol,
		Detail: "symbol not found",
		Cause:  cause,
	}
}

// Unsupported creates an unsupported operation or platform error
func Unsupported(what string) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindUnsupported,
		Detail: what,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseOpen,
		Kind:   KindInvalidData,
		Detail: detail,
		Cause:  cause,
	}
}

// InvalidInput creates an invalid input error
func InvalidInput(phase Phase, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindInvalidInput,
		Detail: detail,
	}
}

// Wrap wraps an existing error with additional context
func Wrap(phase Phase, kind Kind, cause error, detail string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   kind,
		Detail: detail,
		Cause:  cause,
	}
}

// Taxonomy predicates. Each checks the whole unwrap chain.

// IsEngineReported reports whether err carries an engine-reported error
func IsEngineReported(err error) bool {
	e := find(err)
	return e != nil && e.Kind == KindEngineReported
}

// IsMarshaling reports whether err came from encode or decode of a result
// buffer or input value
func IsMarshaling(err error) bool {
	e := find(err)
	return e != nil && (e.Phase == PhaseDecode || e.Phase == PhaseEncode)
}

// IsLifecycle reports whether err came from the context state machine
func IsLifecycle(err error) bool {
	e := find(err)
	return e != nil && e.Phase == PhaseLifecycle
}

// IsContextCreation reports whether err came from a failed context allocation
func IsContextCreation(err error) bool {
	e := find(err)
	return e != nil && e.Phase == PhaseContext
}

func find(err error) *Error {
	for err != nil {
		if e, ok := err.(*Error); ok {
			return e
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return nil
		}
		err = u.Unwrap()
	}
	return nil
}
