// Package ffibridge lets a host with no native type system call arbitrary
// native functions by describing types at runtime and pushing primitive
// values through a narrow, stable boundary.
//
// # Architecture Overview
//
// The library is organized into several packages with distinct responsibilities:
//
//	ffibridge/           Root package with the collaborator interfaces
//	├── types/           Type codes, scalar table, struct arena
//	├── layout/          Native struct layout and offset flattening
//	├── bridge/          Registry, call sessions, marshalling, invocation
//	├── dynlib/          Shared-library backend (purego)
//	├── wasmlib/         WebAssembly module backend (wazero)
//	├── host/            Flat process-wide entry points for interpreters
//	└── errors/          Structured error types for debugging
//
// # Quick Start
//
// Describe a struct, register a function, fill arguments leaf by leaf, call:
//
//	lib, err := dynlib.Open("./libtest.so")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer lib.Close(ctx)
//
//	reg := bridge.New(lib)
//	pair, _ := reg.BuildStruct([]types.Code{types.CodeU32, types.CodeU16})
//	_ = reg.BuildFunction("swap_pair", []types.Code{pair}, pair)
//
//	s, _ := reg.SetTarget("swap_pair")
//	_ = bridge.Write[uint32](s, 7)
//	_ = bridge.Write[uint16](s, 9)
//	_ = s.Call(ctx)
//	a, _ := bridge.Read[uint32](s)
//
// Values are written and read in depth-first field order. The bridge checks
// that each primitive's width matches the slot it lands in, but cannot check
// that the described signature matches the native function.
//
// # Thread Safety
//
// Registry is safe for concurrent use. Each Session has its own lock, so
// separate sessions may be driven from separate goroutines. The flat entry
// points in package host share one active session and expect a single
// caller thread.
//
// # Memory Model
//
// Type and struct tables grow for the life of a Registry and are never
// freed. Their size is bounded by the number of distinct types a host
// registers, not by the number of calls.
package ffibridge
