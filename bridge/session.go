package bridge

import (
	"context"
	"sync"
	"unsafe"

	"go.uber.org/zap"

	ffibridge "github.com/wippyai/ffi-bridge"
	"github.com/wippyai/ffi-bridge/errors"
	"github.com/wippyai/ffi-bridge/layout"
	"github.com/wippyai/ffi-bridge/types"
)

// Session is a call target: a function bound to freshly sized argument and
// return buffers, their leaf schedules, and the write/read cursors.
//
// Write locations are absolute offsets into the argument buffer; read
// locations are offsets into the return buffer.
type Session struct {
	fn     *Function
	caller ffibridge.CallInterface
	log    *zap.Logger

	argLocations []uint32
	writeBuf     []byte
	writeLeaves  []types.Leaf
	readBuf      []byte
	readLeaves   []types.Leaf

	writeIdx int
	readIdx  int
	mu       sync.Mutex
}

func newSession(fn *Function, caller ffibridge.CallInterface, log *zap.Logger) *Session {
	sig := fn.sig
	s := &Session{
		fn:           fn,
		caller:       caller,
		log:          log,
		argLocations: make([]uint32, len(sig.Params)),
	}

	var size uint32
	for i, p := range sig.Params {
		base := size
		s.argLocations[i] = base
		for _, l := range p.Leaves {
			s.writeLeaves = append(s.writeLeaves, types.Leaf{Offset: base + l.Offset, Kind: l.Kind})
		}
		size += layout.SlotSize(p.Type.Info.Size)
	}
	s.writeBuf = make([]byte, size)

	s.readBuf = make([]byte, sig.Result.Type.Info.Size)
	s.readLeaves = sig.Result.Leaves

	return s
}

// Function returns the function this session targets.
func (s *Session) Function() *Function {
	return s.fn
}

// Reset rewinds both cursors. Buffer contents are kept.
func (s *Session) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.writeIdx = 0
	s.readIdx = 0
}

// WriteIndex returns the index of the next leaf to write.
func (s *Session) WriteIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.writeIdx
}

// ReadIndex returns the index of the next leaf to read.
func (s *Session) ReadIndex() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.readIdx
}

// WriteKinds returns the scalar kind of every argument leaf, in write order.
func (s *Session) WriteKinds() []types.Kind {
	return leafKinds(s.writeLeaves)
}

// ReadKinds returns the scalar kind of every result leaf, in read order.
func (s *Session) ReadKinds() []types.Kind {
	return leafKinds(s.readLeaves)
}

// WriteLocations returns the absolute argument-buffer offset of every leaf.
func (s *Session) WriteLocations() []uint32 {
	return leafOffsets(s.writeLeaves)
}

// ReadLocations returns the return-buffer offset of every result leaf.
func (s *Session) ReadLocations() []uint32 {
	return leafOffsets(s.readLeaves)
}

// ArgumentLocations returns the base offset of each declared argument.
func (s *Session) ArgumentLocations() []uint32 {
	out := make([]uint32, len(s.argLocations))
	copy(out, s.argLocations)
	return out
}

// ArgumentSize returns the size of the padded argument buffer.
func (s *Session) ArgumentSize() int {
	return len(s.writeBuf)
}

// ReturnSize returns the size of the return buffer.
func (s *Session) ReturnSize() int {
	return len(s.readBuf)
}

func leafKinds(leaves []types.Leaf) []types.Kind {
	out := make([]types.Kind, len(leaves))
	for i, l := range leaves {
		out[i] = l.Kind
	}
	return out
}

func leafOffsets(leaves []types.Leaf) []uint32 {
	out := make([]uint32, len(leaves))
	for i, l := range leaves {
		out[i] = l.Offset
	}
	return out
}

// Call invokes the target function with the current argument buffer and
// writes the result into the return buffer. On success both cursors are
// rewound, so results read from the first leaf and the session can be
// refilled for another call.
func (s *Session) Call(ctx context.Context) error {
	if s == nil || s.fn == nil {
		return errors.NotInitialized(errors.PhaseInvoke, "call target")
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	callable, err := s.fn.prepare(s.caller)
	if err != nil {
		return err
	}

	base := unsafe.Pointer(unsafe.SliceData(s.writeBuf))
	args := make([]unsafe.Pointer, len(s.argLocations))
	for i, loc := range s.argLocations {
		args[i] = unsafe.Add(base, loc)
	}
	ret := unsafe.Pointer(unsafe.SliceData(s.readBuf))

	if err := callable.Call(ctx, ret, args); err != nil {
		return errors.Invocation(s.fn.Name, err)
	}

	s.log.Debug("native call complete",
		zap.String("name", s.fn.Name),
		zap.Int("written", s.writeIdx),
		zap.Int("args", len(args)))

	s.writeIdx = 0
	s.readIdx = 0
	return nil
}
