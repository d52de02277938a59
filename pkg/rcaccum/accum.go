// Package rcaccum describes the accumulator payload a row carries
// alongside its key columns: a fixed-size byte range the row
// container zero-initializes on newRow and otherwise never
// interprets, handing it to the accumulator's own callbacks for
// update/combine/finalize/spill. This mirrors the teacher's
// FunctionV2 aggregate callback group (pkg/plan/function-v2.go:
// _stateSize/_init/_update/_combine/_finalize) and AggrObject
// (pkg/compute/aggregate_types.go), generalized from a single
// concrete aggregate function to an arbitrary caller-supplied
// Descriptor so the row container never needs to know what kind of
// aggregate state it's hosting.
package rcaccum

import "unsafe"

// SpillKind tells the container how to move accumulator state across
// the serialize/deserialize boundary used by spill-to-disk and by
// hash-table growth (rehash into a wider row layout).
type SpillKind int

const (
	// SpillInline means the accumulator's payload bytes are self
	// contained and can be copied verbatim; this is the common case
	// (running sums, counts, min/max of a fixed-width type).
	SpillInline SpillKind = iota
	// SpillExternal means the payload holds a pointer into
	// out-of-row memory (e.g. a distinct-value set) that must be
	// serialized through the descriptor's Extract/Restore callbacks
	// rather than copied byte-for-byte.
	SpillExternal
)

// Descriptor is one accumulator's shape and callback group. A
// Container is built with one Descriptor per aggregate column; the
// row layout packs each accumulator's PayloadSize bytes, aligned to
// Alignment, after the key columns (spec.md §2.3/§4.1).
type Descriptor struct {
	Name string

	// PayloadSize is the number of bytes this accumulator needs in
	// the row, analogous to the teacher's _stateSize().
	PayloadSize int
	// Alignment is the required alignment of the payload's start
	// offset within the row; must be a power of two.
	Alignment int

	// UsesExternalMemory is true when Update/Combine may allocate
	// memory outside the row (e.g. a growable list accumulator) that
	// Destroy must release and that Spill must exist for.
	UsesExternalMemory bool
	Spill              SpillKind

	// Init zero- or sentinel-initializes a payload (e.g. min
	// accumulators seed +Inf). Called once per row, lazily before that
	// row's first Update or Combine rather than by newRow, mirroring the
	// teacher's aggrInit.
	Init func(payload unsafe.Pointer)

	// Update folds one input row's column value into payload,
	// mirroring the teacher's aggrSimpleUpdate(vectors, inputData,
	// count, payload, idx) collapsed to a single row at a time since
	// the row container processes rows individually rather than in
	// vectorized batches.
	Update func(payload unsafe.Pointer, input []byte, inputIsNull bool)

	// Combine merges src's payload into dst's payload, mirroring the
	// teacher's aggrCombine. Used when two partial aggregates for the
	// same group must be merged (parallel partial aggregation,
	// spill-partition merge).
	Combine func(dst, src unsafe.Pointer)

	// Finalize produces the externally visible result bytes for one
	// payload, mirroring the teacher's aggrFinalize. The returned
	// slice's lifetime is the caller's responsibility; Finalize must
	// not retain it.
	Finalize func(payload unsafe.Pointer) []byte

	// Destroy releases any UsesExternalMemory allocations. Called
	// when a row is erased or the container is cleared. Nil for
	// payloads with no external memory.
	Destroy func(payload unsafe.Pointer)

	// ExtractSpill serializes payload to bytes for SpillExternal
	// accumulators; RestoreSpill is its inverse. Both are nil for
	// SpillInline accumulators, where the row container copies the
	// payload bytes directly.
	ExtractSpill func(payload unsafe.Pointer) []byte
	RestoreSpill func(payload unsafe.Pointer, data []byte)
}

// Set is an ordered group of accumulator descriptors, one per
// aggregate column in a container, mirroring
// compute.CreateAggrObjects's slice-of-AggrObject shape.
type Set []Descriptor

// TotalSize returns the sum of each descriptor's PayloadSize once each
// has been aligned up to its own Alignment — the raw byte count the
// row layout planner reserves for the whole accumulator region,
// before adding any padding the region itself needs against the
// columns that follow it.
func (s Set) TotalSize() int {
	total := 0
	for _, d := range s {
		total = alignUp(total, d.Alignment) + d.PayloadSize
	}
	return total
}

// MaxAlignment returns the largest Alignment across all descriptors,
// zero for an empty set.
func (s Set) MaxAlignment() int {
	max := 0
	for _, d := range s {
		if d.Alignment > max {
			max = d.Alignment
		}
	}
	return max
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}
