// Package rcheap is the reference implementation of the "variable-
// width string allocator" spec.md §1 treats as an external
// collaborator: a multi-piece arena whose fragments carry headers
// linking them together, consumed by the row container's Typed Value
// I/O (pkg/rowcontainer/typeio.go) through the small Heap interface
// below via CopyMultipart and a streaming reader/writer, exactly as
// spec.md §4.3 describes. There is no teacher file that implements
// this directly — the teacher's StringScatterOp (pkg/chunk/scatter.go)
// only ever copies into a heap location it is handed, it never owns
// fragmentation or reuse — so the allocator and fragment-header format
// here are original, built from spec.md §3/§4.3's description using
// the teacher's raw-pointer idiom (rcmem, itself grounded on
// pkg/util/mem.go and pkg/util/pointer_op.go).
package rcheap

import (
	"io"
	"unsafe"
)

// Descriptor is what Typed Value I/O stores at a column's offset for
// an out-of-line variable-width value: a logical size and a pointer
// to the first fragment header. A zero-value Descriptor denotes the
// empty string without any heap allocation.
type Descriptor struct {
	Size int
	Ptr  unsafe.Pointer
}

// Heap is the string-allocator interface the row container depends
// on. Implementations must guarantee that bytes referenced by a
// returned Descriptor remain valid until Release(d) is called.
type Heap interface {
	// CopyMultipart copies src into the heap, splitting it across
	// fragments if a single backing block can't hold it contiguously,
	// and returns the descriptor to store in the row.
	CopyMultipart(src []byte) Descriptor
	// Reserve allocates n contiguous-or-fragmented bytes for the
	// Container Serde to write into directly, returning the
	// descriptor and a writer positioned at its start.
	Reserve(n int) (Descriptor, io.Writer)
	// Contiguous returns a direct, zero-copy view of d's bytes when
	// they live in a single fragment (the common case for short-ish
	// strings), and false when the value is fragmented and must be
	// read via Reader.
	Contiguous(d Descriptor) ([]byte, bool)
	// Reader streams d's logical bytes in order, reassembling
	// fragments transparently.
	Reader(d Descriptor) io.Reader
	// Release returns d's fragments to the free list for reuse.
	Release(d Descriptor)
	// RetainedBytes is the total capacity of fragments currently
	// referenced by live descriptors.
	RetainedBytes() uint64
	// FreeBytes is the total capacity of fragments sitting in the
	// free list, eligible for reuse by a future CopyMultipart/Reserve.
	FreeBytes() uint64
}
