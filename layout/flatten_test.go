package layout

import (
	"slices"
	"testing"

	"github.com/wippyai/ffi-bridge/types"
)

// build registers a struct of the given descriptors using the Native layout.
func build(t *testing.T, table *types.Table, children ...types.Descriptor) types.Descriptor {
	t.Helper()
	fields := make([]types.Info, len(children))
	for i, c := range children {
		fields[i] = table.Info(c)
	}
	offs, info, err := Native{}.StructLayout(fields)
	if err != nil {
		t.Fatal(err)
	}
	code := table.AddStruct(types.Struct{Children: children, Offsets: offs, Info: info})
	d, err := table.Resolve(code)
	if err != nil {
		t.Fatal(err)
	}
	return d
}

func scalar(k types.Kind) types.Descriptor {
	return types.Scalar(k)
}

func structOffsets(t *testing.T, table *types.Table, d types.Descriptor) []uint32 {
	t.Helper()
	idx, _ := d.StructIndex()
	s, ok := table.Struct(idx)
	if !ok {
		t.Fatal("struct not found")
	}
	return s.Offsets
}

func TestFlattenScalar(t *testing.T) {
	table := types.NewTable()
	if _, ok := FlattenOffsets(table, scalar(types.KindI32)); ok {
		t.Error("scalar should not flatten")
	}
}

func TestFlattenScalarsOnly(t *testing.T) {
	table := types.NewTable()
	d := build(t, table, scalar(types.KindI32), scalar(types.KindI16), scalar(types.KindI32), scalar(types.KindI16))

	got, ok := FlattenOffsets(table, d)
	if !ok {
		t.Fatal("struct should flatten")
	}
	want := structOffsets(t, table, d)
	if !slices.Equal(got, want) {
		t.Errorf("got %v, want immediate offsets %v", got, want)
	}
}

func TestFlattenNested(t *testing.T) {
	table := types.NewTable()
	inner := build(t, table, scalar(types.KindI16), scalar(types.KindI32))
	outer := build(t, table, scalar(types.KindI32), inner, scalar(types.KindI16))

	innerOffs := structOffsets(t, table, inner)
	outerOffs := structOffsets(t, table, outer)

	leaves, ok := Flatten(table, outer)
	if !ok {
		t.Fatal("struct should flatten")
	}

	want := []types.Leaf{
		{Offset: outerOffs[0], Kind: types.KindI32},
		{Offset: outerOffs[1] + innerOffs[0], Kind: types.KindI16},
		{Offset: outerOffs[1] + innerOffs[1], Kind: types.KindI32},
		{Offset: outerOffs[2], Kind: types.KindI16},
	}
	if !slices.Equal(leaves, want) {
		t.Errorf("got %v, want %v", leaves, want)
	}
}

func TestFlattenDeeplyNested(t *testing.T) {
	table := types.NewTable()
	c := build(t, table, scalar(types.KindU8), scalar(types.KindU64))
	b := build(t, table, c, scalar(types.KindU16))
	a := build(t, table, scalar(types.KindU32), b, c)

	offs, ok := FlattenOffsets(table, a)
	if !ok {
		t.Fatal("struct should flatten")
	}
	if len(offs) != 6 {
		t.Fatalf("leaf count: got %d, want 6 (%v)", len(offs), offs)
	}
	for i := 1; i < len(offs); i++ {
		if offs[i] <= offs[i-1] {
			t.Errorf("offsets not strictly increasing: %v", offs)
		}
	}

	aOffs := structOffsets(t, table, a)
	bOffs := structOffsets(t, table, b)
	cOffs := structOffsets(t, table, c)
	if offs[2] != aOffs[1]+bOffs[0]+cOffs[1] {
		t.Errorf("b.c.u64 offset: got %d", offs[2])
	}
	if offs[5] != aOffs[2]+cOffs[1] {
		t.Errorf("c.u64 offset: got %d", offs[5])
	}
}

func TestFlattenEmpty(t *testing.T) {
	table := types.NewTable()
	empty := build(t, table)

	offs, ok := FlattenOffsets(table, empty)
	if !ok {
		t.Fatal("empty struct is still a struct")
	}
	if len(offs) != 0 {
		t.Errorf("got %v, want no leaves", offs)
	}

	holder := build(t, table, scalar(types.KindI32), empty, scalar(types.KindI32))
	leaves, _ := Flatten(table, holder)
	if len(leaves) != 2 {
		t.Fatalf("empty nested struct should contribute no leaf, got %v", leaves)
	}
	if leaves[0].Kind != types.KindI32 || leaves[1].Kind != types.KindI32 {
		t.Errorf("unexpected kinds %v", leaves)
	}
}

func TestFlattenLeadingNested(t *testing.T) {
	table := types.NewTable()
	inner := build(t, table, scalar(types.KindF32), scalar(types.KindF32))
	outer := build(t, table, inner, scalar(types.KindF64))

	leaves, _ := Flatten(table, outer)
	want := []types.Kind{types.KindF32, types.KindF32, types.KindF64}
	if len(leaves) != len(want) {
		t.Fatalf("got %v", leaves)
	}
	for i, k := range want {
		if leaves[i].Kind != k {
			t.Errorf("leaf %d kind: got %s, want %s", i, leaves[i].Kind, k)
		}
	}
	if leaves[0].Offset != 0 || leaves[1].Offset != 4 {
		t.Errorf("inner offsets: got %d, %d", leaves[0].Offset, leaves[1].Offset)
	}
}

func TestSchedule(t *testing.T) {
	table := types.NewTable()

	if got := Schedule(table, scalar(types.KindVoid)); len(got) != 0 {
		t.Errorf("void: got %v", got)
	}
	got := Schedule(table, scalar(types.KindF64))
	if len(got) != 1 || got[0] != (types.Leaf{Offset: 0, Kind: types.KindF64}) {
		t.Errorf("scalar: got %v", got)
	}

	d := build(t, table, scalar(types.KindU8), scalar(types.KindU8))
	if got := Schedule(table, d); len(got) != 2 || got[1].Offset != 1 {
		t.Errorf("struct: got %v", got)
	}
}
