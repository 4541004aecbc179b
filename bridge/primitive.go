package bridge

import (
	"fmt"
	"strconv"
	"unsafe"

	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/types"
)

// Primitive is any scalar Go type that can fill one leaf.
type Primitive interface {
	~uint8 | ~uint16 | ~uint32 | ~uint64 |
		~int8 | ~int16 | ~int32 | ~int64 |
		~float32 | ~float64 | ~uintptr
}

// Write stores v at the next argument leaf and advances the write cursor.
// The store is a byte copy, so native layouts that leave the slot misaligned
// for T are fine. The width of T must equal the leaf's scalar width; the kind
// itself is not checked.
func Write[T Primitive](s *Session, v T) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	off, err := s.slot(s.writeLeaves, s.writeIdx, len(s.writeBuf), "write", unsafe.Sizeof(v), v)
	if err != nil {
		return err
	}

	copy(s.writeBuf[off:], unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)))
	s.writeIdx++
	return nil
}

// Read loads the next result leaf and advances the read cursor.
func Read[T Primitive](s *Session) (T, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var v T
	off, err := s.slot(s.readLeaves, s.readIdx, len(s.readBuf), "read", unsafe.Sizeof(v), v)
	if err != nil {
		return v, err
	}

	copy(unsafe.Slice((*byte)(unsafe.Pointer(&v)), unsafe.Sizeof(v)), s.readBuf[off:])
	s.readIdx++
	return v, nil
}

func (s *Session) slot(leaves []types.Leaf, idx, bufLen int, op string, width uintptr, v any) (int, error) {
	path := []string{s.fn.Name, op + strconv.Itoa(idx)}

	if idx >= len(leaves) {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, path, idx, len(leaves))
	}

	leaf := leaves[idx]
	if want := leaf.Kind.Info().Size; uintptr(want) != width {
		err := errors.TypeMismatch(errors.PhaseMarshal, path, fmt.Sprintf("%T", v), leaf.Kind.String())
		err.Detail = fmt.Sprintf("%d-byte value does not fit %d-byte slot", width, want)
		return 0, err
	}

	off := int(leaf.Offset)
	if off+int(width) > bufLen {
		return 0, errors.OutOfBounds(errors.PhaseMarshal, path, off+int(width), bufLen)
	}
	return off, nil
}
