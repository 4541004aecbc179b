// Package wasmlib serves WebAssembly module exports as bridge functions,
// running them in-process under wazero.
//
// A core wasm function only traffics in i32, i64, f32 and f64 values, so a
// signature is lowered leaf by leaf before it is called:
//
//	u8 u16 u32 i8 i16 i32  -> i32
//	u64 i64 pointer        -> i64
//	f32                    -> f32
//	f64                    -> f64
//
// A struct argument contributes one wasm parameter per flattened leaf, in
// leaf order. A struct result is returned as multiple values, one per leaf.
// Prepare checks the lowered signature against the export's declared type
// and reports a type mismatch instead of calling a function that would trap.
//
// Calls into one Library are serialized; wazero module instances are not
// safe for concurrent use.
package wasmlib
