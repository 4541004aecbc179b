// Package layout computes native struct layouts and flattens nested structs
// into leaf schedules.
//
// # Layout Rules
//
// Shared libraries are laid out by libffi (dynlib.Layout). Native is the
// fallback and follows C natural alignment for structs of scalars:
//   - Scalars: size and in-struct alignment as the host compiler uses them
//   - Structs: fields laid out sequentially, each aligned to its own alignment
//   - Aggregate alignment is the largest field alignment; size is padded to it
//   - An empty struct has size 0 and alignment 1
//
// # Flattening
//
// FlattenOffsets expands a struct's immediate per-field offsets into one
// absolute offset per scalar leaf, depth-first, in declared field order. The
// sequential writer and reader consume this schedule.
package layout
