package rowcontainer

import (
	"fmt"
	"unsafe"

	"github.com/RoaringBitmap/roaring"
	"golang.org/x/exp/slices"

	"github.com/daviszhen/rowcontainer/pkg/rcarena"
	"github.com/daviszhen/rowcontainer/pkg/rcheap"
	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

// Store owns row allocation, recycling, and lifecycle for one
// container: it drives an rcarena.Arena for row bytes and an
// rcheap.Heap for variable-width payloads, and threads a free list
// through freed rows exactly as spec.md §4.2 describes, mirroring the
// teacher's TupleDataCollection/RowDataCollection block-and-freelist
// pattern (pkg/compute/join_collection.go) generalized to an
// arbitrary Layout instead of one fixed join-build shape.
type Store struct {
	layout *Layout
	arena  rcarena.Arena
	heap   rcheap.Heap

	frozen bool

	numRows                  int
	numFreeRows              int
	freeListHead             unsafe.Pointer
	numRowsWithNormalizedKey int
	normalizedKeyBudget      int

	nextOrdinal uint32
	ordinals    map[unsafe.Pointer]uint32
	live        *roaring.Bitmap
}

func NewStore(layout *Layout, arena rcarena.Arena, heap rcheap.Heap) *Store {
	return &Store{
		layout:              layout,
		arena:               arena,
		heap:                heap,
		normalizedKeyBudget: -1, // -1 means "no explicit budget": always allocate a prefix while HasNormalizedKeys
		ordinals:            make(map[unsafe.Pointer]uint32),
		live:                roaring.New(),
	}
}

// SetNormalizedKeyBudget bounds how many rows may carry a normalized-
// key prefix; once numRowsWithNormalizedKey reaches n, later newRow
// calls stop allocating one, resolving spec.md §9's open question in
// favor of an explicit, caller-driven cutover.
func (s *Store) SetNormalizedKeyBudget(n int) {
	s.normalizedKeyBudget = n
}

func (s *Store) wantsNormalizedKey() bool {
	if !s.layout.HasNormalizedKeys {
		return false
	}
	if s.normalizedKeyBudget < 0 {
		return true
	}
	return s.numRowsWithNormalizedKey < s.normalizedKeyBudget
}

// NewRow allocates or recycles one row, per spec.md §4.2's newRow.
func (s *Store) NewRow() (unsafe.Pointer, error) {
	if s.frozen {
		return nil, fmt.Errorf("newRow: %w", ErrFrozenContainer)
	}

	if s.freeListHead != nil {
		row := s.freeListHead
		s.freeListHead = rcmem.Load[unsafe.Pointer](row)
		s.numFreeRows--
		// EraseRows already released this row's variable-width bytes
		// and accumulators, and the free-list link now overlays its
		// first bytes, so the row is zeroed rather than released again.
		rcmem.Memset(row, 0, s.layout.FixedRowSize)
		s.initializeRow(row, false)
		s.numRows++
		s.markLive(row)
		return row, nil
	}

	prefix := 0
	if s.wantsNormalizedKey() {
		prefix = s.layout.OriginalNormalizedKeySize
	}
	block := s.arena.AllocRow(s.layout.FixedRowSize+prefix, s.layout.Alignment)
	row := rcmem.Add(block, prefix)
	if prefix > 0 {
		s.numRowsWithNormalizedKey++
	}
	s.initializeRow(row, false)
	s.numRows++
	s.markFresh(row)
	return row, nil
}

func (s *Store) markFresh(row unsafe.Pointer) {
	ord := s.nextOrdinal
	s.nextOrdinal++
	s.ordinals[row] = ord
	s.live.Add(ord)
}

func (s *Store) markLive(row unsafe.Pointer) {
	if ord, ok := s.ordinals[row]; ok {
		s.live.Add(ord)
	}
}

// initializeRow implements spec.md §4.2's initializeRow: on reuse it
// first frees variable-width fields and destroys accumulators, then
// always zeroes the flag-byte region and the row-size tracker and
// clears the free bit.
func (s *Store) initializeRow(row unsafe.Pointer, reuse bool) {
	l := s.layout
	if reuse {
		s.releaseRowResources(row)
		rcmem.Memset(row, 0, l.FixedRowSize)
	}
	rcmem.Memset(row, 0, l.FlagBytes)
	if l.RowSizeOffset != 0 {
		rcmem.Store(rcmem.Add(row, l.RowSizeOffset), uint32(0))
	}
	bitSet(row, l.FreeFlagOffset, false)
}

func (s *Store) releaseRowResources(row unsafe.Pointer) {
	l := s.layout
	for i, k := range l.KeyKinds {
		if !k.IsConstant() {
			freeVar(row, l.KeyOffset(i), s.heap)
		}
	}
	for i, k := range l.DependentKinds {
		if !k.IsConstant() {
			freeVar(row, l.DependentOffset(i), s.heap)
		}
	}
	for i, acc := range l.Accumulators {
		if acc.UsesExternalMemory && acc.Destroy != nil && bitGet(row, l.AccumInitOffsets[i]) {
			acc.Destroy(rcmem.Add(row, l.AccumOffset(i)))
		}
	}
}

// EraseRows implements spec.md §4.2's eraseRows: checks the free bit
// is clear (a double free returns ErrDoubleFree), frees variable-width
// backing bytes, destroys accumulators, sets the free bit, and pushes
// the row onto the free list.
func (s *Store) EraseRows(rows []unsafe.Pointer) error {
	if s.frozen {
		return fmt.Errorf("eraseRows: %w", ErrFrozenContainer)
	}
	for _, row := range rows {
		if bitGet(row, s.layout.FreeFlagOffset) {
			return fmt.Errorf("eraseRows: %w", ErrDoubleFree)
		}
		s.releaseRowResources(row)
		bitSet(row, s.layout.FreeFlagOffset, true)
		rcmem.Store(row, s.freeListHead)
		s.freeListHead = row
		s.numRows--
		s.numFreeRows++
		if ord, ok := s.ordinals[row]; ok {
			s.live.Remove(ord)
		}
	}
	return nil
}

// Clear implements spec.md §4.2's clear: if any accumulator uses
// external memory, every live row is destroyed first, then the arena
// and string allocator are released and counters reset.
func (s *Store) Clear(liveRows []unsafe.Pointer) {
	usesExternal := false
	for _, acc := range s.layout.Accumulators {
		if acc.UsesExternalMemory {
			usesExternal = true
			break
		}
	}
	if usesExternal {
		for _, row := range liveRows {
			s.releaseRowResources(row)
		}
	}
	s.arena.Release()
	s.numRows = 0
	s.numFreeRows = 0
	s.freeListHead = nil
	s.numRowsWithNormalizedKey = 0
	s.nextOrdinal = 0
	s.ordinals = make(map[unsafe.Pointer]uint32)
	s.live = roaring.New()
}

// FindRows implements spec.md §4.2's findRows: candidates are checked
// against the sorted slab ranges, and (the RoaringBitmap domain
// addition) against the live-row ordinal set, so a freed row's stale
// address is rejected in O(1) instead of only by range containment.
// It compacts candidates in place, keeping only the valid addresses,
// and returns the new length.
func (s *Store) FindRows(candidates []unsafe.Pointer) int {
	ranges := s.arena.Ranges()
	n := 0
	for _, addr := range candidates {
		if !rcarena.FindRange(ranges, addr) {
			continue
		}
		ord, ok := s.ordinals[addr]
		if !ok || !s.live.Contains(ord) {
			continue
		}
		candidates[n] = addr
		n++
	}
	return n
}

// Freeze flips the store to immutable, per spec.md §5: called when
// the container's createRowPartitions runs.
func (s *Store) Freeze() { s.frozen = true }

func (s *Store) Frozen() bool { return s.frozen }

func (s *Store) NumRows() int                  { return s.numRows }
func (s *Store) NumFreeRows() int              { return s.numFreeRows }
func (s *Store) NumRowsWithNormalizedKey() int { return s.numRowsWithNormalizedKey }

// Ranges exposes the arena's live allocation ranges, sorted by start
// address, for the partitioned-enumeration iterator to hop across.
func (s *Store) Ranges() []rcarena.Range {
	ranges := s.arena.Ranges()
	slices.SortFunc(ranges, func(a, b rcarena.Range) int {
		as, bs := uintptr(a.Start), uintptr(b.Start)
		switch {
		case as < bs:
			return -1
		case as > bs:
			return 1
		default:
			return 0
		}
	})
	return ranges
}
