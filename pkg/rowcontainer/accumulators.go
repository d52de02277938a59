package rowcontainer

import (
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

// Accumulator lifecycle glue: the row container's job for an
// accumulator column is limited to sizing/placing its payload
// (PlanLayout) and destroying it on erase/clear (store.go's
// releaseRowResources) — spec.md §9's design note that destroy-in-
// place and spill-extract are "the only places the container reaches
// into aggregate state." Everything else (Init/Update/Combine/
// Finalize) is driven by the aggregation executor holding a row
// address and a column index; these methods are the narrow surface
// that lets it do so without reaching past the container into raw
// layout offsets itself.

// AccumulatorPointer returns the address of accumulator i's payload
// within row.
func (c *Container) AccumulatorPointer(row unsafe.Pointer, i int) unsafe.Pointer {
	return rcmem.Add(row, c.layout.AccumOffset(i))
}

// AccumulatorInitialized reports whether accumulator i's payload in
// row has had Init called on it yet.
func (c *Container) AccumulatorInitialized(row unsafe.Pointer, i int) bool {
	return bitGet(row, c.layout.AccumInitOffsets[i])
}

// AccumulatorIsNull reports whether accumulator i has produced no
// value yet for row (no Update call has landed since the payload was
// last (re)initialized); an executor implementing NULL-on-empty-group
// semantics checks this before calling Finalize. Any Update call
// clears the bit, including one whose input is null, so a group that
// saw only null inputs is not reported as null here.
func (c *Container) AccumulatorIsNull(row unsafe.Pointer, i int) bool {
	return bitGet(row, c.layout.AccumNullOffsets[i])
}

// UpdateAccumulator lazily initializes accumulator i's payload in row
// on first use, then folds one input value into it, mirroring the
// teacher's aggrInit-then-aggrUpdate sequencing.
func (c *Container) UpdateAccumulator(row unsafe.Pointer, i int, input []byte, inputIsNull bool) {
	acc := c.layout.Accumulators[i]
	payload := c.AccumulatorPointer(row, i)
	if !c.AccumulatorInitialized(row, i) {
		if acc.Init != nil {
			acc.Init(payload)
		}
		bitSet(row, c.layout.AccumInitOffsets[i], true)
		bitSet(row, c.layout.AccumNullOffsets[i], true)
	}
	if acc.Update != nil {
		acc.Update(payload, input, inputIsNull)
		bitSet(row, c.layout.AccumNullOffsets[i], false)
	}
}

// CombineAccumulator merges src row's accumulator i into dst row's,
// initializing dst's payload first if this is dst's first contribution.
func (c *Container) CombineAccumulator(dst, src unsafe.Pointer, i int) {
	acc := c.layout.Accumulators[i]
	dstPayload := c.AccumulatorPointer(dst, i)
	if !c.AccumulatorInitialized(dst, i) {
		if acc.Init != nil {
			acc.Init(dstPayload)
		}
		bitSet(dst, c.layout.AccumInitOffsets[i], true)
		bitSet(dst, c.layout.AccumNullOffsets[i], true)
	}
	if c.AccumulatorIsNull(src, i) {
		return
	}
	if acc.Combine != nil {
		acc.Combine(dstPayload, c.AccumulatorPointer(src, i))
	}
	bitSet(dst, c.layout.AccumNullOffsets[i], false)
}

// FinalizeAccumulator produces accumulator i's externally visible
// result for row, or (nil, true) if it never received a contribution.
func (c *Container) FinalizeAccumulator(row unsafe.Pointer, i int) ([]byte, bool) {
	if c.AccumulatorIsNull(row, i) {
		return nil, true
	}
	acc := c.layout.Accumulators[i]
	if acc.Finalize == nil {
		return nil, false
	}
	return acc.Finalize(c.AccumulatorPointer(row, i)), false
}

// SpillAccumulator and RestoreAccumulator move one accumulator's
// payload across the serialize/deserialize boundary spec.md §4.3
// describes for spill-to-disk: SpillInline accumulators copy payload
// bytes verbatim; SpillExternal ones go through the descriptor's own
// Extract/RestoreSpill callbacks.
func (c *Container) SpillAccumulator(row unsafe.Pointer, i int) []byte {
	acc := c.layout.Accumulators[i]
	payload := c.AccumulatorPointer(row, i)
	if acc.Spill == 0 /* SpillInline */ || acc.ExtractSpill == nil {
		return append([]byte(nil), rcmem.ToSlice(payload, acc.PayloadSize)...)
	}
	return acc.ExtractSpill(payload)
}

func (c *Container) RestoreAccumulator(row unsafe.Pointer, i int, data []byte) {
	acc := c.layout.Accumulators[i]
	payload := c.AccumulatorPointer(row, i)
	bitSet(row, c.layout.AccumInitOffsets[i], true)
	bitSet(row, c.layout.AccumNullOffsets[i], data == nil)
	if acc.Spill == 0 /* SpillInline */ || acc.RestoreSpill == nil {
		rcmem.Copy(payload, rcmem.BytesPointer(data), len(data))
		return
	}
	acc.RestoreSpill(payload, data)
}
