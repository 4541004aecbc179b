package types

import (
	"github.com/wippyai/ffi-bridge/errors"
)

// Table maintains the type index space and the struct arena. Both grow
// monotonically; entries are never removed or mutated.
//
// Table is not safe for concurrent use; the owning registry serializes access.
type Table struct {
	types   []Descriptor
	structs []Struct
}

// NewTable creates a table pre-seeded with the scalar codes 0..11.
func NewTable() *Table {
	t := &Table{types: make([]Descriptor, 0, 32)}
	for k := KindVoid; k <= KindPointer; k++ {
		t.types = append(t.types, Scalar(k))
	}
	return t
}

// Len returns the number of registered type codes.
func (t *Table) Len() int {
	return len(t.types)
}

// StructCount returns the number of structs in the arena.
func (t *Table) StructCount() int {
	return len(t.structs)
}

// Resolve returns the descriptor registered under code.
func (t *Table) Resolve(code Code) (Descriptor, error) {
	if int(code) >= len(t.types) {
		return Descriptor{}, errors.UnknownTypeCode(errors.PhaseRegister, uint32(code), len(t.types))
	}
	return t.types[code], nil
}

// ResolveAll resolves codes in order.
func (t *Table) ResolveAll(codes []Code) ([]Descriptor, error) {
	out := make([]Descriptor, len(codes))
	for i, c := range codes {
		d, err := t.Resolve(c)
		if err != nil {
			return nil, err
		}
		out[i] = d
	}
	return out, nil
}

// AddStruct appends s to the arena and registers a new type code for it.
func (t *Table) AddStruct(s Struct) Code {
	idx := StructIndex(len(t.structs))
	t.structs = append(t.structs, s)
	code := Code(len(t.types))
	t.types = append(t.types, StructRef(idx))
	return code
}

// Struct returns the struct stored at idx.
func (t *Table) Struct(idx StructIndex) (Struct, bool) {
	if int(idx) >= len(t.structs) {
		return Struct{}, false
	}
	return t.structs[idx], true
}

// Info returns the size and alignment of d.
func (t *Table) Info(d Descriptor) Info {
	if idx, ok := d.StructIndex(); ok {
		return t.structs[idx].Info
	}
	return d.Kind().Info()
}

// Layout resolves d into a self-contained tree.
func (t *Table) Layout(d Descriptor) Layout {
	idx, ok := d.StructIndex()
	if !ok {
		return Layout{Kind: d.Kind(), Info: d.Kind().Info()}
	}
	s := t.structs[idx]
	fields := make([]Layout, len(s.Children))
	for i, c := range s.Children {
		fields[i] = t.Layout(c)
	}
	return Layout{
		Kind:    KindStruct,
		Info:    s.Info,
		Fields:  fields,
		Offsets: s.Offsets,
	}
}
