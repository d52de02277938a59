package rowcontainer

import (
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcarena"
	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

// RowContainerIterator walks live rows across a container's slab
// ranges in insertion order, per spec.md §4.6: it tracks
// allocationIndex, rowBegin, endOfRun, rowNumber, normalizedKeysLeft,
// and normalizedKeySize, shrinking its stride from
// fixedRowSize+originalNormalizedKeySize to fixedRowSize once the
// leading segment of normalized-key rows is exhausted.
//
// Each slab's recorded Len covers exactly the bytes bump-allocated
// into it (rcarena.SlabArena never leaves a used-but-unaccounted
// tail), so advancing row-by-row always lands exactly on rowBegin ==
// endOfRun at a slab's last row, which is what triggers the hop to
// the next range.
type RowContainerIterator struct {
	ranges []rcarena.Range

	fixedRowSize              int
	originalNormalizedKeySize int

	allocationIndex int
	rowBegin        unsafe.Pointer
	endOfRun        unsafe.Pointer
	rowNumber       int
	normalizedKeysLeft int
	normalizedKeySize   int
}

func newRowContainerIterator(ranges []rcarena.Range, fixedRowSize, originalNormalizedKeySize, numRowsWithNormalizedKey int) *RowContainerIterator {
	it := &RowContainerIterator{
		ranges:                    ranges,
		fixedRowSize:              fixedRowSize,
		originalNormalizedKeySize: originalNormalizedKeySize,
		normalizedKeysLeft:        numRowsWithNormalizedKey,
	}
	if len(ranges) > 0 {
		it.rowBegin = ranges[0].Start
		it.endOfRun = rcmem.Add(ranges[0].Start, ranges[0].Len)
	}
	it.updateStride()
	return it
}

func (it *RowContainerIterator) updateStride() {
	if it.normalizedKeysLeft > 0 {
		it.normalizedKeySize = it.originalNormalizedKeySize
	} else {
		it.normalizedKeySize = 0
	}
}

func (it *RowContainerIterator) stride() int { return it.fixedRowSize + it.normalizedKeySize }

// Row returns the current row's payload address: rowBegin is the raw
// slab position where a normalized-key prefix (if any) starts, so the
// address a caller actually stores/hashes/compares against is offset
// past that prefix, matching what Store.NewRow hands back. Undefined
// once Done().
func (it *RowContainerIterator) Row() unsafe.Pointer {
	return rcmem.Add(it.rowBegin, it.normalizedKeySize)
}

// RowNumber is the 0-based insertion-order ordinal of the current row.
func (it *RowContainerIterator) RowNumber() int { return it.rowNumber }

// Done reports whether the iterator has walked past the last range.
func (it *RowContainerIterator) Done() bool { return it.allocationIndex >= len(it.ranges) }

// Advance moves the iterator forward by n rows, hopping across slab
// boundaries and shrinking stride when the normalized-key segment is
// exhausted, exactly one row at a time so each row's own (possibly
// different) stride is respected.
func (it *RowContainerIterator) Advance(n int) {
	for i := 0; i < n; i++ {
		if it.Done() {
			return
		}
		it.rowBegin = rcmem.Add(it.rowBegin, it.stride())
		it.rowNumber++
		if it.normalizedKeysLeft > 0 {
			it.normalizedKeysLeft--
		}
		if uintptr(it.rowBegin) >= uintptr(it.endOfRun) {
			it.allocationIndex++
			if it.allocationIndex < len(it.ranges) {
				r := it.ranges[it.allocationIndex]
				it.rowBegin = r.Start
				it.endOfRun = rcmem.Add(r.Start, r.Len)
			}
		}
		it.updateStride()
	}
}
