package rowcontainer

import (
	"github.com/axiomhq/hyperloglog"

	"github.com/daviszhen/rowcontainer/pkg/rcheap"
)

// ColumnStats tracks per-column running counts, byte totals, and a
// lazily invalidated min/max size, per spec.md §4.5. The approximate
// distinct-value count is a domain addition backed by
// axiomhq/hyperloglog (grounded on matrixorigin-matrixone's use of the
// same library for cardinality-style aggregates), additive to the
// spec: it never participates in nullCount/nonNullCount/sumBytes
// invariants and, like min/max, reports "unknown" once any value is
// removed. An explicit Reset gives it a fresh, empty and valid sketch,
// while min/max stay "unknown" until the next value is observed.
type ColumnStats struct {
	nullCount    int64
	nonNullCount int64
	sumBytes     int64
	minBytes     int64
	maxBytes     int64
	sizeValid    bool

	sketch      *hyperloglog.Sketch
	sketchValid bool
}

// NewColumnStats returns a freshly reset ColumnStats with an empty
// distinct-value sketch.
func NewColumnStats() *ColumnStats {
	return &ColumnStats{sketch: hyperloglog.New(), sketchValid: true}
}

// ObserveNull records a null cell.
func (s *ColumnStats) ObserveNull() {
	s.nullCount++
}

// ObserveValue records one non-null cell of the given byte size,
// updating the running sum and the lazily maintained min/max, and
// feeding the distinct-value sketch when raw is provided (variable-
// width values only; fixed-width callers may pass nil to skip NDV
// tracking, since sumBytes already captures everything needed for
// spec.md's stats invariant on those columns).
func (s *ColumnStats) ObserveValue(size int, raw []byte) {
	s.nonNullCount++
	s.sumBytes += int64(size)
	if s.sizeValid {
		if int64(size) < s.minBytes {
			s.minBytes = int64(size)
		}
		if int64(size) > s.maxBytes {
			s.maxBytes = int64(size)
		}
	} else {
		s.minBytes, s.maxBytes = int64(size), int64(size)
		s.sizeValid = true
	}
	if raw != nil && s.sketchValid {
		s.sketch.Insert(raw)
	}
}

// RemoveNull undoes ObserveNull, for erasing a row whose column value
// was null.
func (s *ColumnStats) RemoveNull() {
	s.nullCount--
}

// RemoveValue undoes ObserveValue for an erased or overwritten-to-null
// cell. min/max cannot be maintained under removal without a rescan,
// so they are invalidated exactly as spec.md §4.5 requires.
func (s *ColumnStats) RemoveValue(size int) {
	s.nonNullCount--
	s.sumBytes -= int64(size)
	s.sizeValid = false
	// The sketch is a probabilistic set summary with no supported
	// delete; invalidate NDV on any removal rather than report a
	// number that silently drifts high.
	s.sketchValid = false
}

// NullCount, NonNullCount, SumBytes are unconditionally accurate
// running totals.
func (s *ColumnStats) NullCount() int64    { return s.nullCount }
func (s *ColumnStats) NonNullCount() int64 { return s.nonNullCount }
func (s *ColumnStats) SumBytes() int64     { return s.sumBytes }

// MinBytes and MaxBytes report ok=false ("unknown") once invalidated
// by a removal or an explicit Reset.
func (s *ColumnStats) MinBytes() (v int64, ok bool) { return s.minBytes, s.sizeValid }
func (s *ColumnStats) MaxBytes() (v int64, ok bool) { return s.maxBytes, s.sizeValid }

// NDV reports the approximate distinct-value count, or ok=false once
// invalidated by any removal.
func (s *ColumnStats) NDV() (v uint64, ok bool) {
	if !s.sketchValid {
		return 0, false
	}
	return s.sketch.Estimate(), true
}

// Reset restores a ColumnStats to its post-construction state, as
// happens when clear() releases a container's rows.
func (s *ColumnStats) Reset() {
	*s = ColumnStats{sketch: hyperloglog.New(), sketchValid: true}
}

// Merge combines other's counts into s: counts and byte totals sum,
// min/max are taken across both (unless either side is already
// invalid), and the two sketches are unioned, per spec.md §4.5's
// merge operator.
func (s *ColumnStats) Merge(other *ColumnStats) {
	s.nullCount += other.nullCount
	s.nonNullCount += other.nonNullCount
	s.sumBytes += other.sumBytes

	if s.sizeValid && other.sizeValid {
		if other.minBytes < s.minBytes {
			s.minBytes = other.minBytes
		}
		if other.maxBytes > s.maxBytes {
			s.maxBytes = other.maxBytes
		}
	} else {
		s.sizeValid = false
	}

	if s.sketchValid && other.sketchValid {
		if err := s.sketch.Merge(other.sketch); err != nil {
			s.sketchValid = false
		}
	} else {
		s.sketchValid = false
	}
}

// heapAwareSample lets a caller feed ObserveValue the raw bytes of an
// out-of-line value without forcing every call site to know about
// rcheap directly.
func heapAwareSample(heap rcheap.Heap, d rcheap.Descriptor) []byte {
	if b, ok := heap.Contiguous(d); ok {
		return b
	}
	return nil
}
