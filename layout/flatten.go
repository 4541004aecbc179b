package layout

import (
	"slices"

	"github.com/wippyai/ffi-bridge/types"
)

// FlattenOffsets expands a struct descriptor into the absolute byte offset of
// every scalar leaf, depth-first, in declared field order. It returns false
// for scalar descriptors; callers then use a single offset of 0.
func FlattenOffsets(t *types.Table, d types.Descriptor) ([]uint32, bool) {
	leaves, ok := Flatten(t, d)
	if !ok {
		return nil, false
	}
	offsets := make([]uint32, len(leaves))
	for i, l := range leaves {
		offsets[i] = l.Offset
	}
	return offsets, true
}

type splice struct {
	leaves []types.Leaf
	at     int
	drop   bool
}

// Flatten is FlattenOffsets with the scalar kind of each leaf.
//
// The struct's immediate offsets seed the result. Each struct child is
// flattened recursively; its first leaf coincides with the child's own slot,
// so the remaining leaves are translated by the child's offset and spliced in
// right after that slot. Splices are applied in reverse child order so the
// insertion points stay valid. An empty nested struct has no leaves and its
// slot is dropped.
func Flatten(t *types.Table, d types.Descriptor) ([]types.Leaf, bool) {
	idx, ok := d.StructIndex()
	if !ok {
		return nil, false
	}
	s, ok := t.Struct(idx)
	if !ok {
		return nil, false
	}

	leaves := make([]types.Leaf, len(s.Children))
	for i, c := range s.Children {
		leaves[i] = types.Leaf{Offset: s.Offsets[i], Kind: c.Kind()}
	}

	var splices []splice
	for i, c := range s.Children {
		nested, ok := Flatten(t, c)
		if !ok {
			continue
		}
		if len(nested) == 0 {
			splices = append(splices, splice{at: i, drop: true})
			continue
		}

		base := s.Offsets[i]
		leaves[i] = types.Leaf{Offset: base + nested[0].Offset, Kind: nested[0].Kind}

		rest := make([]types.Leaf, len(nested)-1)
		for j, l := range nested[1:] {
			rest[j] = types.Leaf{Offset: base + l.Offset, Kind: l.Kind}
		}
		splices = append(splices, splice{at: i, leaves: rest})
	}

	for i := len(splices) - 1; i >= 0; i-- {
		sp := splices[i]
		if sp.drop {
			leaves = slices.Delete(leaves, sp.at, sp.at+1)
			continue
		}
		leaves = slices.Insert(leaves, sp.at+1, sp.leaves...)
	}

	return leaves, true
}

// Schedule returns the leaf schedule for any descriptor: the flattened leaves
// of a struct, a single leaf at offset 0 for a scalar, and nothing for void.
func Schedule(t *types.Table, d types.Descriptor) []types.Leaf {
	if leaves, ok := Flatten(t, d); ok {
		return leaves
	}
	if d.Kind() == types.KindVoid {
		return nil
	}
	return []types.Leaf{{Offset: 0, Kind: d.Kind()}}
}
