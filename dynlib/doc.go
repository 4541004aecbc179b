// Package dynlib loads shared libraries with purego and calls their exports
// through libffi, without cgo.
//
// Open binds a library with dlopen; Resolve looks symbols up with dlsym.
// Prepare describes a resolved signature to libffi (scalars as libffi's
// builtin types, structs as FFI_TYPE_STRUCT element lists) and prepares an
// ffi_cif for it, so structs are passed and returned by value under the
// platform ABI. Every struct type is checked with ffi_get_struct_offsets
// against the offsets the registry computed before a call is prepared.
//
// Layout exposes the same ffi_get_struct_offsets query as a layout primitive.
// Library implements it too, so a registry created on a Library lays structs
// out with libffi by default.
//
// The libffi binding loads libffi.so.8 (libffi.8.dylib on darwin) when the
// package is initialized and panics if it is missing.
package dynlib
