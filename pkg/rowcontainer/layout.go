package rowcontainer

import (
	"fmt"

	"github.com/daviszhen/rowcontainer/pkg/rcaccum"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// varDescriptorSize/varDescriptorAlign is the on-row footprint of a
// variable-width or complex column: a uint32 logical size followed by
// an unsafe.Pointer into the string allocator (rcheap.Descriptor,
// flattened into the row rather than boxed), mirroring the teacher's
// TupleDataLayout choice of "pointer to the actual data" for
// non-constant internal types (pkg/compute/join_layout.go) but sized
// to also carry the length inline so extract doesn't need a second
// indirection through the heap just to learn how many bytes to read.
const (
	varDescriptorSize  = 16
	varDescriptorAlign = 8
	pointerSize        = rctype.PointerSize
)

func fieldWidth(k rctype.Kind) int {
	if k.IsConstant() {
		return rctype.FixedWidthOf(k)
	}
	return varDescriptorSize
}

func fieldAlign(k rctype.Kind) int {
	if k.IsConstant() {
		return rctype.AlignmentOf(k)
	}
	return varDescriptorAlign
}

// Layout is the immutable output of planning a row's on-arena shape
// from a schema and accumulator set, mirroring the teacher's
// TupleDataLayout (pkg/compute/join_layout.go) generalized with
// null-bitmap packing, a free-list/next-row pointer region, and a
// conditional row-size tracker instead of TupleDataLayout's always-
// present bitmap/heap-offset fields.
type Layout struct {
	KeyKinds          []rctype.Kind
	NullableKeys      bool
	Accumulators      rcaccum.Set
	DependentKinds    []rctype.Kind
	HasNext           bool
	HasProbedFlag     bool
	HasNormalizedKeys bool

	// Offsets holds one byte offset per column in declaration order:
	// keys, then accumulators, then dependents.
	Offsets []int

	KeyNullOffsets        []int // bit offset per key, -1 if NullableKeys is false
	AccumNullOffsets      []int // null-bit offset per accumulator
	AccumInitOffsets      []int // initialized-bit offset per accumulator
	DependentNullOffsets  []int // bit offset per dependent field

	FlagOffset       int // byte offset where the flag-byte region starts
	FlagBytes        int
	ProbedFlagOffset int // bit offset; -1 if !HasProbedFlag
	FreeFlagOffset   int // bit offset; always present

	RowSizeOffset int // byte offset of the uint32 row-size tracker; 0 if not needed
	NextOffset    int // byte offset of the next-row pointer; 0 if !HasNext

	FixedRowSize              int
	Alignment                 int
	OriginalNormalizedKeySize int
}

func alignUp(v, align int) int {
	if align <= 1 {
		return v
	}
	return (v + align - 1) &^ (align - 1)
}

func isPowerOfTwo(x int) bool { return x > 0 && x&(x-1) == 0 }

// PlanLayout walks keys, then the accumulator-flag region, then
// dependents, recording each field's byte offset and null-bit offset,
// per the algorithm spec.md §4.1 describes. It is pure: identical
// inputs always produce a byte-identical Layout.
func PlanLayout(
	keyKinds []rctype.Kind,
	nullableKeys bool,
	accumulators rcaccum.Set,
	dependentKinds []rctype.Kind,
	hasNext bool,
	hasProbedFlag bool,
	hasNormalizedKeys bool,
) (*Layout, error) {
	for i, acc := range accumulators {
		if !isPowerOfTwo(acc.Alignment) {
			return nil, fmt.Errorf("%w: accumulator %d (%s) alignment %d is not a power of two",
				ErrInvalidLayout, i, acc.Name, acc.Alignment)
		}
	}

	l := &Layout{
		KeyKinds:          append([]rctype.Kind(nil), keyKinds...),
		NullableKeys:      nullableKeys,
		Accumulators:      accumulators,
		DependentKinds:    append([]rctype.Kind(nil), dependentKinds...),
		HasNext:           hasNext,
		HasProbedFlag:     hasProbedFlag,
		HasNormalizedKeys: hasNormalizedKeys,
	}

	// 1. key fields.
	offset := 0
	for _, k := range keyKinds {
		l.Offsets = append(l.Offsets, offset)
		offset += fieldWidth(k)
	}

	// 2. padding to at least pointer size, so the free-list next
	// pointer can overlay the row's first bytes while it's free.
	if offset < pointerSize {
		offset = pointerSize
	}

	// 3./4. flag-bit region.
	bitPos := 0
	if nullableKeys {
		for range keyKinds {
			l.KeyNullOffsets = append(l.KeyNullOffsets, bitPos)
			bitPos++
		}
	} else {
		for range keyKinds {
			l.KeyNullOffsets = append(l.KeyNullOffsets, -1)
		}
	}

	if len(accumulators) > 0 {
		bitPos = alignUp(bitPos, 8)
	}
	for range accumulators {
		l.AccumNullOffsets = append(l.AccumNullOffsets, bitPos)
		bitPos++
		l.AccumInitOffsets = append(l.AccumInitOffsets, bitPos)
		bitPos++
	}

	for range dependentKinds {
		l.DependentNullOffsets = append(l.DependentNullOffsets, bitPos)
		bitPos++
	}

	l.ProbedFlagOffset = -1
	if hasProbedFlag {
		l.ProbedFlagOffset = bitPos
		bitPos++
	}
	l.FreeFlagOffset = bitPos
	bitPos++

	l.FlagBytes = (bitPos + 7) / 8

	// Flag-bit positions are recorded as absolute bit offsets from the
	// row address, so a null test is a single byte load plus mask
	// against offset/8 without the caller needing to know where the
	// flag region starts.
	l.FlagOffset = offset
	flagsBitBase := offset * 8
	for i, b := range l.KeyNullOffsets {
		if b >= 0 {
			l.KeyNullOffsets[i] = flagsBitBase + b
		}
	}
	for i := range l.AccumNullOffsets {
		l.AccumNullOffsets[i] += flagsBitBase
		l.AccumInitOffsets[i] += flagsBitBase
	}
	for i := range l.DependentNullOffsets {
		l.DependentNullOffsets[i] += flagsBitBase
	}
	if l.ProbedFlagOffset >= 0 {
		l.ProbedFlagOffset += flagsBitBase
	}
	l.FreeFlagOffset += flagsBitBase

	offset += l.FlagBytes

	// 5. accumulator payloads, each aligned to its own alignment.
	for _, acc := range accumulators {
		offset = alignUp(offset, acc.Alignment)
		l.Offsets = append(l.Offsets, offset)
		offset += acc.PayloadSize
	}

	// 6. dependent fields.
	needsTracker := false
	for _, k := range keyKinds {
		if !k.IsConstant() {
			needsTracker = true
		}
	}
	for _, acc := range accumulators {
		if acc.UsesExternalMemory {
			needsTracker = true
		}
	}
	for _, k := range dependentKinds {
		offset = alignUp(offset, fieldAlign(k))
		l.Offsets = append(l.Offsets, offset)
		offset += fieldWidth(k)
		if !k.IsConstant() {
			needsTracker = true
		}
	}

	// 7. optional row-size tracker.
	if needsTracker {
		offset = alignUp(offset, 4)
		l.RowSizeOffset = offset
		offset += 4
	}

	// 8. optional next-row pointer.
	if hasNext {
		offset = alignUp(offset, pointerSize)
		l.NextOffset = offset
		offset += pointerSize
	}

	alignment := pointerSize
	if m := accumulators.MaxAlignment(); m > alignment {
		alignment = m
	}
	l.Alignment = alignment
	l.FixedRowSize = alignUp(offset, alignment)

	if hasNormalizedKeys {
		l.OriginalNormalizedKeySize = 8
	}

	return l, nil
}

// KeyOffset returns the byte offset of key column i.
func (l *Layout) KeyOffset(i int) int { return l.Offsets[i] }

// AccumOffset returns the byte offset of accumulator i's payload.
func (l *Layout) AccumOffset(i int) int { return l.Offsets[len(l.KeyKinds)+i] }

// DependentOffset returns the byte offset of dependent column i.
func (l *Layout) DependentOffset(i int) int {
	return l.Offsets[len(l.KeyKinds)+len(l.Accumulators)+i]
}
