// Package types holds the bridge's type registry: the fixed scalar table,
// struct descriptors, and the index-addressed arena that owns them.
//
// Type codes are small integers handed to the host. Codes 0..11 are the
// scalar kinds; struct codes are assigned sequentially after them. A struct
// refers to its children by Descriptor value and to nested structs by arena
// index, so no descriptor ever points into storage that may relocate.
package types

import (
	"fmt"
	"unsafe"
)

// Code is an opaque type identifier handed to the host.
type Code uint32

// Fixed scalar codes, pre-assigned at table construction.
const (
	CodeVoid Code = iota
	CodeU8
	CodeU16
	CodeU32
	CodeU64
	CodeI8
	CodeI16
	CodeI32
	CodeI64
	CodeF32
	CodeF64
	CodePointer

	// FirstStructCode is the code assigned to the first built struct.
	FirstStructCode
)

// Kind identifies a scalar type, or KindStruct for aggregates.
type Kind uint8

const (
	KindVoid Kind = iota
	KindU8
	KindU16
	KindU32
	KindU64
	KindI8
	KindI16
	KindI32
	KindI64
	KindF32
	KindF64
	KindPointer
	KindStruct
)

var kindNames = [...]string{
	KindVoid:    "void",
	KindU8:      "u8",
	KindU16:     "u16",
	KindU32:     "u32",
	KindU64:     "u64",
	KindI8:      "i8",
	KindI16:     "i16",
	KindI32:     "i32",
	KindI64:     "i64",
	KindF32:     "f32",
	KindF64:     "f64",
	KindPointer: "pointer",
	KindStruct:  "struct",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("kind(%d)", uint8(k))
}

// ParseKind returns the scalar kind for a name such as "u16" or "pointer".
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if n == name && Kind(k) != KindStruct {
			return Kind(k), true
		}
	}
	return 0, false
}

// IsScalar reports whether k is a scalar kind (including void).
func (k Kind) IsScalar() bool {
	return k <= KindPointer
}

// Info is the native size and alignment of a type.
type Info struct {
	Size  uint32
	Align uint32
}

// alignOf reports the alignment T receives as a struct field, which on some
// 32-bit platforms is smaller than its size.
func alignOf[T any]() uint32 {
	var s struct {
		_ byte
		v T
	}
	return uint32(unsafe.Offsetof(s.v))
}

var scalarInfo = [...]Info{
	KindVoid:    {Size: 0, Align: 1},
	KindU8:      {Size: 1, Align: alignOf[uint8]()},
	KindU16:     {Size: 2, Align: alignOf[uint16]()},
	KindU32:     {Size: 4, Align: alignOf[uint32]()},
	KindU64:     {Size: 8, Align: alignOf[uint64]()},
	KindI8:      {Size: 1, Align: alignOf[int8]()},
	KindI16:     {Size: 2, Align: alignOf[int16]()},
	KindI32:     {Size: 4, Align: alignOf[int32]()},
	KindI64:     {Size: 8, Align: alignOf[int64]()},
	KindF32:     {Size: 4, Align: alignOf[float32]()},
	KindF64:     {Size: 8, Align: alignOf[float64]()},
	KindPointer: {Size: uint32(unsafe.Sizeof(uintptr(0))), Align: alignOf[uintptr]()},
}

// Info returns the native size and alignment of a scalar kind.
// It panics for KindStruct, whose layout lives on the struct descriptor.
func (k Kind) Info() Info {
	if !k.IsScalar() {
		panic(fmt.Sprintf("types: Info called on non-scalar kind %s", k))
	}
	return scalarInfo[k]
}

// StructIndex addresses a struct in the arena.
type StructIndex uint32

// Descriptor is a tagged variant: a scalar kind, or a struct arena index.
// Descriptors are immutable values.
type Descriptor struct {
	kind  Kind
	index StructIndex
}

// Scalar returns the descriptor for a scalar kind.
func Scalar(k Kind) Descriptor {
	return Descriptor{kind: k}
}

// StructRef returns the descriptor for the struct at idx.
func StructRef(idx StructIndex) Descriptor {
	return Descriptor{kind: KindStruct, index: idx}
}

// Kind returns the scalar kind, or KindStruct.
func (d Descriptor) Kind() Kind {
	return d.kind
}

// IsStruct reports whether d refers to a struct.
func (d Descriptor) IsStruct() bool {
	return d.kind == KindStruct
}

// StructIndex returns the arena index of a struct descriptor.
func (d Descriptor) StructIndex() (StructIndex, bool) {
	return d.index, d.kind == KindStruct
}

func (d Descriptor) String() string {
	if d.IsStruct() {
		return fmt.Sprintf("struct#%d", d.index)
	}
	return d.kind.String()
}

// Struct is an aggregate descriptor. Offsets, Size and Align are computed
// exactly once, before the struct is added to a Table, and never change.
type Struct struct {
	// Children in declared field order.
	Children []Descriptor
	// Offsets holds the immediate byte offset of each child.
	Offsets []uint32
	Info    Info
}

// Leaf is one scalar slot of a flattened type: its byte offset relative to the
// start of the enclosing value and its scalar kind.
type Leaf struct {
	Offset uint32
	Kind   Kind
}

// Layout is a fully resolved type tree. It is what call backends receive, so
// they never need access to the Table.
type Layout struct {
	Kind    Kind
	Info    Info
	Fields  []Layout
	Offsets []uint32
}
