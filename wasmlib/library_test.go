package wasmlib_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
	"github.com/wippyai/ffi-bridge/wasmlib"
)

const (
	i32 byte = 0x7f
	i64 byte = 0x7e
	f64 byte = 0x7c

	opLocalGet byte = 0x20
	opI32Const byte = 0x41
	opI32Sub   byte = 0x6b
	opI64Add   byte = 0x7c
	opF64Add   byte = 0xa0
	opEnd      byte = 0x0b
)

type export struct {
	name    string
	params  []byte
	results []byte
	body    []byte
}

func uleb(buf []byte, v uint32) []byte {
	for {
		b := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			buf = append(buf, b|0x80)
			continue
		}
		return append(buf, b)
	}
}

func section(out []byte, id byte, body []byte) []byte {
	out = append(out, id)
	out = uleb(out, uint32(len(body)))
	return append(out, body...)
}

// module encodes a core wasm module with one type and one function per
// export, no imports and no memory.
func module(exports ...export) []byte {
	out := []byte{0x00, 'a', 's', 'm', 0x01, 0x00, 0x00, 0x00}
	n := uint32(len(exports))

	typeSec := uleb(nil, n)
	for _, e := range exports {
		typeSec = append(typeSec, 0x60)
		typeSec = uleb(typeSec, uint32(len(e.params)))
		typeSec = append(typeSec, e.params...)
		typeSec = uleb(typeSec, uint32(len(e.results)))
		typeSec = append(typeSec, e.results...)
	}
	out = section(out, 1, typeSec)

	funcSec := uleb(nil, n)
	for i := range exports {
		funcSec = uleb(funcSec, uint32(i))
	}
	out = section(out, 3, funcSec)

	exportSec := uleb(nil, n)
	for i, e := range exports {
		exportSec = uleb(exportSec, uint32(len(e.name)))
		exportSec = append(exportSec, e.name...)
		exportSec = append(exportSec, 0x00)
		exportSec = uleb(exportSec, uint32(i))
	}
	out = section(out, 7, exportSec)

	codeSec := uleb(nil, n)
	for _, e := range exports {
		body := append([]byte{0x00}, e.body...)
		body = append(body, opEnd)
		codeSec = uleb(codeSec, uint32(len(body)))
		codeSec = append(codeSec, body...)
	}
	return section(out, 10, codeSec)
}

func testModule() []byte {
	return module(
		export{
			name:    "swap",
			params:  []byte{i32, i32, i32, i32},
			results: []byte{i32, i32, i32, i32},
			body:    []byte{opLocalGet, 2, opLocalGet, 3, opLocalGet, 0, opLocalGet, 1},
		},
		export{
			name:    "add_f64",
			params:  []byte{f64, f64},
			results: []byte{f64},
			body:    []byte{opLocalGet, 0, opLocalGet, 1, opF64Add},
		},
		export{
			name:    "add_i64",
			params:  []byte{i64, i64},
			results: []byte{i64},
			body:    []byte{opLocalGet, 0, opLocalGet, 1, opI64Add},
		},
		export{
			name:    "negate",
			params:  []byte{i32},
			results: []byte{i32},
			body:    []byte{opI32Const, 0, opLocalGet, 0, opI32Sub},
		},
		export{
			name: "noop",
		},
	)
}

func openTest(t *testing.T) *wasmlib.Library {
	t.Helper()
	lib, err := wasmlib.Open(context.Background(), testModule())
	require.NoError(t, err)
	t.Cleanup(func() { _ = lib.Close(context.Background()) })
	return lib
}

func TestExports(t *testing.T) {
	lib := openTest(t)
	assert.Equal(t, []string{"add_f64", "add_i64", "negate", "noop", "swap"}, lib.Exports())
}

func TestOpenInvalidModule(t *testing.T) {
	_, err := wasmlib.Open(context.Background(), []byte("not wasm"))
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindResolution))
}

func TestResolveMissingExport(t *testing.T) {
	reg := bridge.New(openTest(t))

	err := reg.BuildFunction("missing", nil, types.CodeVoid)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindResolution))
}

func TestStructSwap(t *testing.T) {
	ctx := context.Background()
	reg := bridge.New(openTest(t))

	structA, err := reg.BuildStruct([]types.Code{types.CodeU32, types.CodeU16, types.CodeU32, types.CodeU16})
	require.NoError(t, err)
	require.NoError(t, reg.BuildFunction("swap", []types.Code{structA}, structA))

	s, err := reg.SetTarget("swap")
	require.NoError(t, err)

	require.NoError(t, bridge.Write[uint32](s, 100))
	require.NoError(t, bridge.Write[uint16](s, 7))
	require.NoError(t, bridge.Write[uint32](s, 200))
	require.NoError(t, bridge.Write[uint16](s, 9))
	require.NoError(t, s.Call(ctx))

	a, err := bridge.Read[uint32](s)
	require.NoError(t, err)
	b, err := bridge.Read[uint16](s)
	require.NoError(t, err)
	c, err := bridge.Read[uint32](s)
	require.NoError(t, err)
	d, err := bridge.Read[uint16](s)
	require.NoError(t, err)

	assert.Equal(t, uint32(200), a)
	assert.Equal(t, uint16(9), b)
	assert.Equal(t, uint32(100), c)
	assert.Equal(t, uint16(7), d)
}

func TestScalarCalls(t *testing.T) {
	ctx := context.Background()
	reg := bridge.New(openTest(t))

	require.NoError(t, reg.BuildFunction("add_f64", []types.Code{types.CodeF64, types.CodeF64}, types.CodeF64))
	require.NoError(t, reg.BuildFunction("add_i64", []types.Code{types.CodeI64, types.CodePointer}, types.CodeI64))

	s, err := reg.SetTarget("add_f64")
	require.NoError(t, err)
	require.NoError(t, bridge.Write(s, 1.25))
	require.NoError(t, bridge.Write(s, 2.5))
	require.NoError(t, s.Call(ctx))
	sum, err := bridge.Read[float64](s)
	require.NoError(t, err)
	assert.Equal(t, 3.75, sum)

	s, err = reg.SetTarget("add_i64")
	require.NoError(t, err)
	require.NoError(t, bridge.Write[int64](s, -10))
	require.NoError(t, bridge.Write[uintptr](s, 4))
	require.NoError(t, s.Call(ctx))
	got, err := bridge.Read[int64](s)
	require.NoError(t, err)
	assert.Equal(t, int64(-6), got)
}

func TestNarrowIntegers(t *testing.T) {
	ctx := context.Background()
	reg := bridge.New(openTest(t))

	require.NoError(t, reg.BuildFunction("negate", []types.Code{types.CodeI8}, types.CodeI8))
	s, err := reg.SetTarget("negate")
	require.NoError(t, err)
	require.NoError(t, bridge.Write[int8](s, -5))
	require.NoError(t, s.Call(ctx))
	signed, err := bridge.Read[int8](s)
	require.NoError(t, err)
	assert.Equal(t, int8(5), signed)

	require.NoError(t, reg.BuildFunction("negate", []types.Code{types.CodeU8}, types.CodeU8))
	s, err = reg.SetTarget("negate")
	require.NoError(t, err)
	require.NoError(t, bridge.Write[uint8](s, 5))
	require.NoError(t, s.Call(ctx))
	unsigned, err := bridge.Read[uint8](s)
	require.NoError(t, err)
	assert.Equal(t, uint8(251), unsigned)
}

func TestVoidFunction(t *testing.T) {
	reg := bridge.New(openTest(t))
	require.NoError(t, reg.BuildFunction("noop", nil, types.CodeVoid))

	s, err := reg.SetTarget("noop")
	require.NoError(t, err)
	require.NoError(t, s.Call(context.Background()))
	assert.Empty(t, s.ReadLocations())
}

func TestSignatureMismatch(t *testing.T) {
	reg := bridge.New(openTest(t))
	require.NoError(t, reg.BuildFunction("add_f64", []types.Code{types.CodeI32, types.CodeI32}, types.CodeF64))

	s, err := reg.SetTarget("add_f64")
	require.NoError(t, err)
	require.NoError(t, bridge.Write[int32](s, 1))
	require.NoError(t, bridge.Write[int32](s, 2))

	err = s.Call(context.Background())
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindTypeMismatch))
}

func TestCallAfterClose(t *testing.T) {
	ctx := context.Background()
	lib, err := wasmlib.Open(ctx, testModule())
	require.NoError(t, err)

	reg := bridge.New(lib)
	require.NoError(t, reg.BuildFunction("negate", []types.Code{types.CodeI32}, types.CodeI32))
	s, err := reg.SetTarget("negate")
	require.NoError(t, err)

	require.NoError(t, lib.Close(ctx))
	require.NoError(t, lib.Close(ctx))

	require.NoError(t, bridge.Write[int32](s, 1))
	err = s.Call(ctx)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindNotInitialized))

	_, err = lib.Resolve("negate")
	assert.True(t, errors.HasKind(err, errors.KindResolution))
}
