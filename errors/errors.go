package errors

import (
	"fmt"
	"strings"
)

// Phase indicates where in processing the error occurred
type Phase string

const (
	PhaseRegister Phase = "register" // type and function registration
	PhaseLayout   Phase = "layout"   // struct offset computation
	PhaseResolve  Phase = "resolve"  // symbol lookup
	PhaseTarget   Phase = "target"   // call target selection
	PhaseMarshal  Phase = "marshal"  // primitive write/read
	PhaseInvoke   Phase = "invoke"   // native call
	PhaseLoad     Phase = "load"     // library loading
	PhaseConfig   Phase = "config"   // call script parsing
)

// Kind categorizes the error
type Kind string

const (
	KindNotFound       Kind = "not_found"
	KindOutOfBounds    Kind = "out_of_bounds"
	KindTypeMismatch   Kind = "type_mismatch"
	KindInvalidInput   Kind = "invalid_input"
	KindLayout         Kind = "layout"
	KindResolution     Kind = "resolution"
	KindInvocation     Kind = "invocation"
	KindUnsupported    Kind = "unsupported"
	KindNotInitialized Kind = "not_initialized"
	KindInvalidData    Kind = "invalid_data"
)

// Error is the structured error type used throughout the bridge
type Error struct {
	Value      any
	Cause      error
	Phase      Phase
	Kind       Kind
	GoType     string
	NativeType string
	Detail     string
	Path       []string
}

// Error implements the error interface
func (e *Error) Error() string {
	var b strings.Builder

	b.WriteByte('[')
	b.WriteString(string(e.Phase))
	b.WriteString("] ")
	b.WriteString(string(e.Kind))

	if len(e.Path) > 0 {
		b.WriteString(" at ")
		b.WriteString(strings.Join(e.Path, "."))
	}

	hasTypes := e.GoType != "" || e.NativeType != ""
	if hasTypes {
		b.WriteString(": ")
		switch {
		case e.GoType != "" && e.NativeType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
			b.WriteString(", native type ")
			b.WriteString(e.NativeType)
		case e.GoType != "":
			b.WriteString("Go type ")
			b.WriteString(e.GoType)
		default:
			b.WriteString("native type ")
			b.WriteString(e.NativeType)
		}
	}

	if e.Detail != "" {
		if hasTypes {
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

// Path sets the field path
func (b *Builder) Path(path ...string) *Builder {
	b.err.Path = path
	return b
}

// GoType sets the Go type name
func (b *Builder) GoType(t string) *Builder {
	b.err.GoType = t
	return b
}

// NativeType sets the native type name
func (b *Builder) NativeType(t string) *Builder {
	b.err.NativeType = t
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

// HasKind reports whether err is an *Error of the given kind anywhere in its chain.
func HasKind(err error, kind Kind) bool {
	for err != nil {
		if e, ok := err.(*Error); ok && e.Kind == kind {
			return true
		}
		u, ok := err.(interface{ Unwrap() error })
		if !ok {
			return false
		}
		err = u.Unwrap()
	}
	return false
}

// TypeMismatch creates a type mismatch error
func TypeMismatch(phase Phase, path []string, goType, nativeType string) *Error {
	return &Error{
		Phase:      phase,
		Kind:       KindTypeMismatch,
		Path:       path,
		GoType:     goType,
		NativeType: nativeType,
	}
}

// OutOfBounds creates an out of bounds error
func OutOfBounds(phase Phase, path []string, index, length int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindOutOfBounds,
		Path:   path,
		Detail: fmt.Sprintf("index %d out of bounds (length %d)", index, length),
		Value:  index,
	}
}

// UnknownTypeCode creates a not-found error for an unregistered type code
func UnknownTypeCode(phase Phase, code uint32, tableLen int) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("type code %d is not registered (table has %d entries)", code, tableLen),
		Value:  code,
	}
}

// Unsupported creates an unsupported operation error
func Unsupported(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindUnsupported,
		Detail: what,
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

// NotInitialized creates a not-initialized error
func NotInitialized(phase Phase, what string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotInitialized,
		Detail: fmt.Sprintf("%s not initialized", what),
	}
}

// NotFound creates a not-found error
func NotFound(phase Phase, what, name string) *Error {
	return &Error{
		Phase:  phase,
		Kind:   KindNotFound,
		Detail: fmt.Sprintf("%s %q not found", what, name),
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

// Resolution creates a symbol resolution error
func Resolution(symbol string, cause error) *Error {
	return &Error{
		Phase:  PhaseResolve,
		Kind:   KindResolution,
		Path:   []string{symbol},
		Detail: fmt.Sprintf("resolve symbol %q", symbol),
		Cause:  cause,
	}
}

// Layout creates a struct layout computation error
func Layout(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLayout,
		Kind:   KindLayout,
		Detail: detail,
		Cause:  cause,
	}
}

// Invocation creates a native call error
func Invocation(function string, cause error) *Error {
	return &Error{
		Phase:  PhaseInvoke,
		Kind:   KindInvocation,
		Path:   []string{function},
		Detail: "native call failed",
		Cause:  cause,
	}
}

// Load creates a library loading error
func Load(detail string, cause error) *Error {
	return &Error{
		Phase:  PhaseLoad,
		Kind:   KindResolution,
		Detail: detail,
		Cause:  cause,
	}
}

// ParseFailed creates a call script parsing error
func ParseFailed(what string, cause error) *Error {
	return &Error{
		Phase:  PhaseConfig,
		Kind:   KindInvalidData,
		Detail: fmt.Sprintf("parse %s", what),
		Cause:  cause,
	}
}
