package layout

import (
	"fmt"
	"math"

	"github.com/wippyai/ffi-bridge/types"
)

// Native lays fields out with C natural alignment. Registries fall back to
// it when neither WithLayout nor the loader supplies a layout primitive, as
// for WebAssembly modules and in-process test libraries. Unlike libffi it
// accepts zero-size fields.
type Native struct{}

// StructLayout returns the immediate offset of each field plus the aggregate
// size and alignment.
func (Native) StructLayout(fields []types.Info) ([]uint32, types.Info, error) {
	if len(fields) == 0 {
		return []uint32{}, types.Info{Size: 0, Align: 1}, nil
	}

	offsets := make([]uint32, len(fields))
	maxAlign := uint32(1)
	offset := uint32(0)

	for i, f := range fields {
		if f.Align == 0 || f.Align&(f.Align-1) != 0 {
			return nil, types.Info{}, fmt.Errorf("field %d: alignment %d is not a power of two", i, f.Align)
		}

		offset = AlignTo(offset, f.Align)
		offsets[i] = offset

		if f.Align > maxAlign {
			maxAlign = f.Align
		}

		next, ok := safeAdd(offset, f.Size)
		if !ok {
			return nil, types.Info{}, fmt.Errorf("field %d: struct size overflows", i)
		}
		offset = next
	}

	if offset > math.MaxUint32-maxAlign {
		return nil, types.Info{}, fmt.Errorf("struct size overflows")
	}
	totalSize := AlignTo(offset, maxAlign)

	return offsets, types.Info{Size: totalSize, Align: maxAlign}, nil
}

// AlignTo rounds offset up to a multiple of align, a power of two.
func AlignTo(offset, align uint32) uint32 {
	if align == 0 {
		return offset
	}
	return (offset + align - 1) &^ (align - 1)
}

// SlotSize rounds size up to the 8-byte argument slot used by call sessions.
func SlotSize(size uint32) uint32 {
	return AlignTo(size, 8)
}

func safeAdd(a, b uint32) (uint32, bool) {
	if a > math.MaxUint32-b {
		return 0, false
	}
	return a + b, true
}
