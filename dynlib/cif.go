//go:build (darwin || freebsd || linux) && (amd64 || arm64)

package dynlib

import (
	"context"
	"fmt"
	"unsafe"

	"github.com/jupiterrider/ffi"

	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// retSlot is the width of libffi's ffi_arg. Integral results narrower than it
// are widened to a full slot, so the return buffer is never smaller.
const retSlot = 8

var scalarTypes = [...]*ffi.Type{
	types.KindVoid:    &ffi.TypeVoid,
	types.KindU8:      &ffi.TypeUint8,
	types.KindU16:     &ffi.TypeUint16,
	types.KindU32:     &ffi.TypeUint32,
	types.KindU64:     &ffi.TypeUint64,
	types.KindI8:      &ffi.TypeSint8,
	types.KindI16:     &ffi.TypeSint16,
	types.KindI32:     &ffi.TypeSint32,
	types.KindI64:     &ffi.TypeSint64,
	types.KindF32:     &ffi.TypeFloat,
	types.KindF64:     &ffi.TypeDouble,
	types.KindPointer: &ffi.TypePointer,
}

// ffiType describes l to libffi. Struct types are checked against the
// offsets the registry computed, so a call never disagrees with the leaf
// schedule used to fill its buffers.
func ffiType(l types.Layout) (*ffi.Type, error) {
	if l.Kind != types.KindStruct {
		if int(l.Kind) >= len(scalarTypes) || scalarTypes[l.Kind] == nil {
			return nil, errors.Unsupported(errors.PhaseInvoke, "libffi type for "+l.Kind.String())
		}
		return scalarTypes[l.Kind], nil
	}
	if len(l.Fields) == 0 {
		return nil, errors.Unsupported(errors.PhaseInvoke, "empty struct by value")
	}
	if len(l.Offsets) != len(l.Fields) {
		return nil, errors.Layout("struct layout", fmt.Errorf("%d offsets for %d fields", len(l.Offsets), len(l.Fields)))
	}

	elems := make([]*ffi.Type, len(l.Fields))
	for i, f := range l.Fields {
		t, err := ffiType(f)
		if err != nil {
			return nil, err
		}
		elems[i] = t
	}
	t := ffi.NewType(elems...)

	offsets := make([]uint64, len(elems))
	if st := ffi.GetStructOffsets(ffi.DefaultAbi, &t, &offsets[0]); st != ffi.OK {
		return nil, errors.Layout("ffi_get_struct_offsets", fmt.Errorf("%s", st))
	}
	for i, off := range offsets {
		if off != uint64(l.Offsets[i]) {
			return nil, errors.Layout("struct layout disagrees with libffi",
				fmt.Errorf("field %d: libffi offset %d, registry offset %d", i, off, l.Offsets[i]))
		}
	}
	if t.Size != uint64(l.Info.Size) || uint32(t.Alignment) != l.Info.Align {
		return nil, errors.Layout("struct layout disagrees with libffi",
			fmt.Errorf("libffi size %d align %d, registry size %d align %d", t.Size, t.Alignment, l.Info.Size, l.Info.Align))
	}
	return &t, nil
}

// callable is a prepared ffi_cif bound to one symbol. The type tree and the
// argument type slice are referenced from cif and must stay reachable.
type callable struct {
	cif     ffi.Cif
	ret     *ffi.Type
	name    string
	args    []*ffi.Type
	addr    uintptr
	retSize uint32
}

func newCallable(name string, addr uintptr, params []types.Layout, result types.Layout) (*callable, error) {
	c := &callable{name: name, addr: addr, args: make([]*ffi.Type, len(params))}
	for i, p := range params {
		t, err := ffiType(p)
		if err != nil {
			return nil, err
		}
		c.args[i] = t
	}

	rt, err := ffiType(result)
	if err != nil {
		return nil, err
	}
	c.ret = rt
	if result.Kind != types.KindVoid {
		c.retSize = result.Info.Size
	}

	if st := ffi.PrepCif(&c.cif, ffi.DefaultAbi, uint32(len(c.args)), c.ret, c.args...); st != ffi.OK {
		return nil, errors.New(errors.PhaseInvoke, errors.KindUnsupported).
			Path(name).
			Detail("ffi_prep_cif: %s", st).
			Build()
	}
	return c, nil
}

func (c *callable) Call(_ context.Context, ret unsafe.Pointer, args []unsafe.Pointer) error {
	if len(args) != len(c.args) {
		return fmt.Errorf("%s: got %d arguments, want %d", c.name, len(args), len(c.args))
	}
	for i, p := range args {
		if p == nil {
			return fmt.Errorf("%s: argument %d is nil", c.name, i)
		}
	}

	if c.retSize == 0 {
		ffi.Call(&c.cif, c.addr, nil, args...)
		return nil
	}
	if ret == nil {
		return fmt.Errorf("%s: nil result buffer", c.name)
	}

	scratch := make([]byte, max(c.retSize, retSlot))
	ffi.Call(&c.cif, c.addr, unsafe.Pointer(unsafe.SliceData(scratch)), args...)
	copy(unsafe.Slice((*byte)(ret), c.retSize), scratch)
	return nil
}
