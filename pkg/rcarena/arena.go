// Package rcarena is the reference implementation of the "backing row
// arena" spec.md §1 lists as an external collaborator: a
// bump-allocating allocator that returns aligned fixed-size slabs and
// exposes a range iterator over them. The row container's Row Store
// (pkg/rowcontainer/store.go) is written against the small Arena
// interface below, not against this concrete type, so a caller with
// its own paged buffer-pool arena (as the teacher's
// pkg/compute/join_tuple.go TupleDataAllocator/RowDataBlock is, atop
// a real buffer manager) can substitute one without touching the row
// container.
package rcarena

import (
	"fmt"
	"sort"
	"sync"
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

// DefaultSlabBytes is the size of one backing allocation, chosen the
// same way the teacher's storage.BLOCK_SIZE is: large enough that
// per-row cells amortize the allocation's own bookkeeping, small
// enough that a half-used slab isn't a large waste when the container
// is cleared early.
const DefaultSlabBytes = 2 << 20 // 2 MiB

// Range is a half-open [Start, Start+Len) byte range backed by one
// slab allocation. The top boundary is exclusive: spec.md's open
// question on findRows' boundary behavior is resolved here as
// exclusive-top, matching ordinary Go slice/range conventions.
type Range struct {
	Start unsafe.Pointer
	Len   int
}

func (r Range) end() unsafe.Pointer { return rcmem.Add(r.Start, r.Len) }

func (r Range) contains(addr unsafe.Pointer) bool {
	return uintptr(addr) >= uintptr(r.Start) && uintptr(addr) < uintptr(r.end())
}

// Arena is what the row container's Row Store depends on. AllocRow
// must return memory aligned to align and sized exactly rowSize; the
// implementation may round up its underlying allocation, but every
// returned pointer must itself satisfy the alignment contract spec.md
// §3 places on every row address.
type Arena interface {
	AllocRow(rowSize, align int) unsafe.Pointer
	// Ranges returns the set of live backing allocations, sorted by
	// Start, for address-validation (findRows) and for the row
	// iterator to hop between slabs.
	Ranges() []Range
	Release()
}

type slab struct {
	base unsafe.Pointer
	cap  int
	used int
}

// SlabArena is the default Arena: a bump allocator over malloc'd
// blocks of DefaultSlabBytes (or bigger, for a single row wider than
// that), exactly mirroring the teacher's RowDataBlock/TupleDataBlock
// "allocate a block, bump an offset, start a new block when full"
// pattern, generalized to arbitrary alignment. Backing memory is
// obtained from malloc (via rcmem), not the Go heap: rows must be
// addressable by a single raw, non-moving pointer for their entire
// lifetime, including while referenced from a free list or a
// hash-join build chain.
type SlabArena struct {
	mu        sync.Mutex
	slabBytes int
	slabs     []*slab
	released  bool
}

func NewSlabArena(slabBytes int) *SlabArena {
	if slabBytes <= 0 {
		slabBytes = DefaultSlabBytes
	}
	return &SlabArena{slabBytes: slabBytes}
}

func (a *SlabArena) AllocRow(rowSize, align int) unsafe.Pointer {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.released {
		panic("rcarena: AllocRow after Release")
	}
	if !rcmem.IsPowerOfTwo(align) {
		panic(fmt.Sprintf("rcarena: alignment %d is not a power of two", align))
	}

	if len(a.slabs) > 0 {
		s := a.slabs[len(a.slabs)-1]
		if ptr, ok := a.tryBump(s, rowSize, align); ok {
			return ptr
		}
	}

	need := a.slabBytes
	if rowSize+align > need {
		need = rowSize + align
	}
	s := a.newSlab(need)
	a.slabs = append(a.slabs, s)
	ptr, ok := a.tryBump(s, rowSize, align)
	if !ok {
		panic("rcarena: fresh slab cannot satisfy allocation")
	}
	return ptr
}

func (a *SlabArena) tryBump(s *slab, rowSize, align int) (unsafe.Pointer, bool) {
	aligned := rcmem.AlignUp(s.used, align)
	if aligned+rowSize > s.cap {
		return nil, false
	}
	s.used = aligned + rowSize
	return rcmem.Add(s.base, aligned), true
}

func (a *SlabArena) newSlab(size int) *slab {
	base := rcmem.Malloc(size)
	if base == nil {
		panic("rcarena: out of memory")
	}
	rcmem.Memset(base, 0, size)
	return &slab{base: base, cap: size}
}

func (a *SlabArena) Ranges() []Range {
	a.mu.Lock()
	defer a.mu.Unlock()
	ranges := make([]Range, 0, len(a.slabs))
	for _, s := range a.slabs {
		ranges = append(ranges, Range{Start: s.base, Len: s.used})
	}
	sort.Slice(ranges, func(i, j int) bool {
		return uintptr(ranges[i].Start) < uintptr(ranges[j].Start)
	})
	return ranges
}

func (a *SlabArena) Release() {
	a.mu.Lock()
	defer a.mu.Unlock()
	for _, s := range a.slabs {
		rcmem.Free(s.base)
	}
	a.slabs = nil
	a.released = true
}

// FindRange reports whether addr falls within any range in ranges,
// using binary search over the (pre-sorted) range starts the way
// spec.md §4.2 describes for findRows. The top of each range is
// treated as exclusive.
func FindRange(ranges []Range, addr unsafe.Pointer) bool {
	target := uintptr(addr)
	i := sort.Search(len(ranges), func(i int) bool { return uintptr(ranges[i].Start) > target })
	if i == 0 {
		return false
	}
	return ranges[i-1].contains(addr)
}
