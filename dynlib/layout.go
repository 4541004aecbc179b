//go:build (darwin || freebsd || linux) && (amd64 || arm64)

package dynlib

import (
	"fmt"

	"github.com/jupiterrider/ffi"

	"github.com/wippyai/ffi-bridge/types"
)

// Layout computes struct layouts with libffi's ffi_get_struct_offsets for the
// default ABI. Each field is described to libffi by its size and alignment
// alone: a scalar when one matches, otherwise a struct of alignment-wide
// integers that occupies the same bytes.
type Layout struct{}

// StructLayout implements ffibridge.LayoutPrimitive.
func (Layout) StructLayout(fields []types.Info) ([]uint32, types.Info, error) {
	if len(fields) == 0 {
		return []uint32{}, types.Info{Size: 0, Align: 1}, nil
	}

	elems := make([]*ffi.Type, len(fields))
	for i, f := range fields {
		t, err := opaqueType(f)
		if err != nil {
			return nil, types.Info{}, fmt.Errorf("field %d: %w", i, err)
		}
		elems[i] = t
	}

	st := ffi.NewType(elems...)
	raw := make([]uint64, len(fields))
	if status := ffi.GetStructOffsets(ffi.DefaultAbi, &st, &raw[0]); status != ffi.OK {
		return nil, types.Info{}, fmt.Errorf("ffi_get_struct_offsets: %s", status)
	}

	offsets := make([]uint32, len(raw))
	for i, off := range raw {
		offsets[i] = uint32(off)
	}
	return offsets, types.Info{Size: uint32(st.Size), Align: uint32(st.Alignment)}, nil
}

// unitTypes holds one unsigned integer type per power-of-two width.
var unitTypes = map[uint32]*ffi.Type{
	1: &ffi.TypeUint8,
	2: &ffi.TypeUint16,
	4: &ffi.TypeUint32,
	8: &ffi.TypeUint64,
}

func opaqueType(f types.Info) (*ffi.Type, error) {
	unit, ok := unitTypes[f.Align]
	if !ok {
		return nil, fmt.Errorf("alignment %d has no libffi integer type", f.Align)
	}
	if f.Size == 0 {
		return nil, fmt.Errorf("zero-size field cannot be described to libffi")
	}
	if f.Size%f.Align != 0 {
		return nil, fmt.Errorf("size %d is not a multiple of alignment %d", f.Size, f.Align)
	}
	if f.Size == f.Align {
		return unit, nil
	}

	elems := make([]*ffi.Type, f.Size/f.Align)
	for i := range elems {
		elems[i] = unit
	}
	t := ffi.NewType(elems...)
	return &t, nil
}
