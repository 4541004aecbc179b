package bridge_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wippyai/ffi-bridge/bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/internal/nativetest"
	"github.com/wippyai/ffi-bridge/layout"
	"github.com/wippyai/ffi-bridge/types"
)

func newRegistry(t *testing.T) (*bridge.Registry, *nativetest.Library) {
	t.Helper()
	lib := nativetest.New().
		Define("identity", nativetest.Identity).
		Define("concat", nativetest.Concat).
		Define("fn_b", nativetest.SwapStructA).
		Define("add_i32", nativetest.AddI32)
	return bridge.New(lib), lib
}

func TestBuildStruct(t *testing.T) {
	reg, _ := newRegistry(t)

	code, err := reg.BuildStruct([]types.Code{types.CodeI32, types.CodeI16, types.CodeI32, types.CodeI16})
	require.NoError(t, err)
	assert.Equal(t, types.FirstStructCode, code)

	l, err := reg.Describe(code)
	require.NoError(t, err)
	require.Len(t, l.Offsets, 4)
	require.Len(t, l.Fields, 4)

	var sum uint32
	for i, f := range l.Fields {
		sum += f.Info.Size
		if i > 0 {
			assert.Greater(t, l.Offsets[i], l.Offsets[i-1], "offsets must increase")
		}
	}
	assert.LessOrEqual(t, sum, l.Info.Size)

	offs, isStruct, err := reg.FlattenOffsets(code)
	require.NoError(t, err)
	assert.True(t, isStruct)
	assert.Equal(t, l.Offsets, offs)
}

func TestBuildStructUnknownCode(t *testing.T) {
	reg, _ := newRegistry(t)

	_, err := reg.BuildStruct([]types.Code{types.CodeI32, types.FirstStructCode})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))
	assert.Equal(t, int(types.FirstStructCode), reg.TypeCount(), "failed build must not register")
}

func TestBuildStructRejectsVoid(t *testing.T) {
	reg, _ := newRegistry(t)

	_, err := reg.BuildStruct([]types.Code{types.CodeVoid})
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

type failingLayout struct{}

func (failingLayout) StructLayout([]types.Info) ([]uint32, types.Info, error) {
	return nil, types.Info{}, assert.AnError
}

func TestBuildStructLayoutFailure(t *testing.T) {
	reg := bridge.New(nativetest.New(), bridge.WithLayout(failingLayout{}))

	_, err := reg.BuildStruct([]types.Code{types.CodeU8})
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindLayout))
	assert.ErrorIs(t, err, assert.AnError)
}

// layoutLibrary is a loader that lays out its own structs.
type layoutLibrary struct {
	*nativetest.Library
	failingLayout
}

func TestBuildStructUsesLoaderLayout(t *testing.T) {
	reg := bridge.New(layoutLibrary{Library: nativetest.New()})
	_, err := reg.BuildStruct([]types.Code{types.CodeU8})
	assert.True(t, errors.HasKind(err, errors.KindLayout), "got %v", err)

	reg = bridge.New(layoutLibrary{Library: nativetest.New()}, bridge.WithLayout(layout.Native{}))
	code, err := reg.BuildStruct([]types.Code{types.CodeU8})
	require.NoError(t, err)
	assert.Equal(t, types.FirstStructCode, code)
}

func TestBuildStructNoDeduplication(t *testing.T) {
	reg, _ := newRegistry(t)
	shape := []types.Code{types.CodeU8, types.CodeF64}

	a, err := reg.BuildStruct(shape)
	require.NoError(t, err)
	b, err := reg.BuildStruct(shape)
	require.NoError(t, err)

	assert.NotEqual(t, a, b)
	assert.Equal(t, a+1, b)
}

func TestBuildStructNested(t *testing.T) {
	reg, _ := newRegistry(t)

	inner, err := reg.BuildStruct([]types.Code{types.CodeI16, types.CodeI32})
	require.NoError(t, err)
	outer, err := reg.BuildStruct([]types.Code{types.CodeI32, inner, types.CodeI16})
	require.NoError(t, err)

	innerL, _ := reg.Describe(inner)
	outerL, _ := reg.Describe(outer)

	offs, ok, err := reg.FlattenOffsets(outer)
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, []uint32{
		outerL.Offsets[0],
		outerL.Offsets[1] + innerL.Offsets[0],
		outerL.Offsets[1] + innerL.Offsets[1],
		outerL.Offsets[2],
	}, offs)

	_, ok, err = reg.FlattenOffsets(types.CodeI32)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestBuildFunction(t *testing.T) {
	reg, _ := newRegistry(t)

	require.NoError(t, reg.BuildFunction("add_i32", []types.Code{types.CodeI32, types.CodeI32}, types.CodeI32))

	fn, ok := reg.Function("add_i32")
	require.True(t, ok)
	assert.Equal(t, "add_i32", fn.Name)
	assert.Len(t, fn.Args, 2)
	assert.Equal(t, types.KindI32, fn.Return.Kind())
	assert.Equal(t, "(i32, i32) -> i32", fn.Signature().String())
	assert.Equal(t, []string{"add_i32"}, reg.Functions())
}

func TestBuildFunctionResolutionFailure(t *testing.T) {
	reg, _ := newRegistry(t)

	err := reg.BuildFunction("does_not_exist", nil, types.CodeVoid)
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindResolution))

	_, ok := reg.Function("does_not_exist")
	assert.False(t, ok)
}

func TestBuildFunctionContractViolations(t *testing.T) {
	reg, _ := newRegistry(t)

	err := reg.BuildFunction("identity", []types.Code{99}, types.CodeI32)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))

	err = reg.BuildFunction("identity", []types.Code{types.CodeI32}, 99)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))

	err = reg.BuildFunction("identity", []types.Code{types.CodeVoid}, types.CodeVoid)
	assert.True(t, errors.HasKind(err, errors.KindInvalidInput))
}

func TestBuildFunctionNilLoader(t *testing.T) {
	reg := bridge.New(nil)
	err := reg.BuildFunction("anything", nil, types.CodeVoid)
	assert.True(t, errors.HasKind(err, errors.KindNotInitialized))
}

func TestBuildFunctionLastWins(t *testing.T) {
	reg, _ := newRegistry(t)

	require.NoError(t, reg.BuildFunction("identity", []types.Code{types.CodeU8}, types.CodeU8))
	require.NoError(t, reg.BuildFunction("identity", []types.Code{types.CodeF64}, types.CodeF64))

	fn, ok := reg.Function("identity")
	require.True(t, ok)
	assert.Equal(t, types.KindF64, fn.Return.Kind())
}

func TestSetTargetUnknown(t *testing.T) {
	reg, _ := newRegistry(t)

	_, err := reg.SetTarget("nope")
	require.Error(t, err)
	assert.True(t, errors.HasKind(err, errors.KindNotFound))
	assert.ErrorIs(t, err, &errors.Error{Phase: errors.PhaseTarget, Kind: errors.KindNotFound})
}

func TestSetTargetPadding(t *testing.T) {
	reg, _ := newRegistry(t)

	quad, err := reg.BuildStruct([]types.Code{types.CodeI32, types.CodeI16, types.CodeI32, types.CodeI16})
	require.NoError(t, err)
	empty, err := reg.BuildStruct(nil)
	require.NoError(t, err)

	args := []types.Code{types.CodeU8, quad, types.CodeF64, empty, types.CodeU16}
	require.NoError(t, reg.BuildFunction("concat", args, types.CodeVoid))

	s, err := reg.SetTarget("concat")
	require.NoError(t, err)

	locs := s.ArgumentLocations()
	require.Len(t, locs, len(args))

	var want uint32
	for i, code := range args {
		l, err := reg.Describe(code)
		require.NoError(t, err)

		assert.Equal(t, want, locs[i], "argument %d base", i)
		assert.Zero(t, locs[i]%8, "argument %d must start on an 8-byte boundary", i)
		if i+1 < len(locs) {
			assert.LessOrEqual(t, locs[i]+l.Info.Size, want+layout.SlotSize(l.Info.Size))
		}
		want += layout.SlotSize(l.Info.Size)
	}
	assert.Equal(t, int(want), s.ArgumentSize())
	assert.Equal(t, 0, s.ReturnSize())
	assert.Empty(t, s.ReadLocations(), "void has nothing to read")

	quadOffs, _, _ := reg.FlattenOffsets(quad)
	wl := s.WriteLocations()
	require.Len(t, wl, 1+4+1+0+1)
	assert.Equal(t, locs[0], wl[0])
	for i, off := range quadOffs {
		assert.Equal(t, locs[1]+off, wl[1+i], "struct leaf %d translated by its base", i)
	}
	assert.Equal(t, locs[2], wl[5])
	assert.Equal(t, locs[4], wl[6])

	assert.Equal(t, []types.Kind{
		types.KindU8,
		types.KindI32, types.KindI16, types.KindI32, types.KindI16,
		types.KindF64,
		types.KindU16,
	}, s.WriteKinds())
}

func TestSetTargetReplacesSession(t *testing.T) {
	reg, _ := newRegistry(t)
	require.NoError(t, reg.BuildFunction("add_i32", []types.Code{types.CodeI32, types.CodeI32}, types.CodeI32))

	first, err := reg.SetTarget("add_i32")
	require.NoError(t, err)
	require.NoError(t, bridge.Write[int32](first, 1))

	second, err := reg.SetTarget("add_i32")
	require.NoError(t, err)
	assert.Equal(t, 0, second.WriteIndex())
	assert.Equal(t, 0, second.ReadIndex())
	assert.Equal(t, 1, first.WriteIndex(), "sessions are independent")
}
