// Package errors provides structured error types for the ffi-bridge library.
//
// Errors are categorized by Phase (where the error occurred) and Kind (error category).
// The Error type carries the function or struct path, the Go and native type names
// involved, and a cause chain.
//
// Use the Builder for structured error construction:
//
//	err := errors.New(errors.PhaseMarshal, errors.KindTypeMismatch).
//		Path("fn_b", "arg0").
//		GoType("uint32").
//		NativeType("u16").
//		Detail("width 4 does not match slot width 2").
//		Build()
//
// Or use convenience constructors for common patterns:
//
//	err := errors.NotFound(errors.PhaseTarget, "function", "fn_b")
//	err := errors.OutOfBounds(errors.PhaseMarshal, path, 4, 4)
//
// All errors implement the standard error interface and support errors.Is/As.
// The flat boundary in package host treats every Kind except KindResolution
// as a caller-contract violation.
package errors
