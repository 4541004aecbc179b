package ffibridge

import (
	"context"
	"strings"
	"unsafe"

	"github.com/wippyai/ffi-bridge/types"
)

// Symbol is a resolved callable exported by a library.
type Symbol interface {
	Name() string
}

// Loader resolves symbol names against a loaded library.
type Loader interface {
	Resolve(name string) (Symbol, error)
}

// CallInterface prepares a symbol for invocation with a given signature.
// Implementations own all calling-convention logic.
type CallInterface interface {
	Prepare(sym Symbol, sig *Signature) (Callable, error)
}

// Callable invokes a prepared function. args holds one pointer per declared
// argument; a struct argument's pointer addresses the whole struct. The
// result is written to ret, which is sized exactly to the return type.
type Callable interface {
	Call(ctx context.Context, ret unsafe.Pointer, args []unsafe.Pointer) error
}

// Library is a loader that can also call what it resolves.
type Library interface {
	Loader
	CallInterface
	Close(ctx context.Context) error
}

// LayoutPrimitive computes per-field offsets and the aggregate size and
// alignment of a struct whose fields have the given layouts.
type LayoutPrimitive interface {
	StructLayout(fields []types.Info) (offsets []uint32, info types.Info, err error)
}

// Param is one resolved argument or result type.
type Param struct {
	Type types.Layout
	// Leaves is the flattened scalar schedule, offsets relative to the
	// start of this value. Void has no leaves.
	Leaves []types.Leaf
}

// Signature is a fully resolved function type.
type Signature struct {
	Params []Param
	Result Param
}

func (s *Signature) String() string {
	var b strings.Builder
	b.WriteByte('(')
	for i, p := range s.Params {
		if i > 0 {
			b.WriteString(", ")
		}
		writeLayout(&b, p.Type)
	}
	b.WriteString(") -> ")
	writeLayout(&b, s.Result.Type)
	return b.String()
}

func writeLayout(b *strings.Builder, l types.Layout) {
	if l.Kind != types.KindStruct {
		b.WriteString(l.Kind.String())
		return
	}
	b.WriteByte('{')
	for i, f := range l.Fields {
		if i > 0 {
			b.WriteString(", ")
		}
		writeLayout(b, f)
	}
	b.WriteByte('}')
}
