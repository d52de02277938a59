package rcheap

import (
	"io"
	"sync"
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rcmem"
)

// DefaultBlockBytes is the size of one backing block the arena heap
// carves fragments from, mirroring rcarena's slab sizing rationale.
const DefaultBlockBytes = 1 << 20 // 1 MiB

// fragment header, stored immediately before a fragment's payload
// bytes:
//
//	dataLen  uint32  logical bytes of payload actually used
//	capacity uint32  total payload bytes available (>= dataLen; a
//	                 reused free-list fragment can be larger than the
//	                 value currently stored in it)
//	next     unsafe.Pointer  next fragment, nil if this is the last
//
// A Descriptor is "fully contiguous" exactly when its first fragment's
// dataLen equals the descriptor's total Size (i.e. next == nil and the
// whole value fit in one fragment) — spec.md §4.3's "first fragment
// header indicates the string is fully contiguous" check.
type fragHeader struct {
	dataLen  uint32
	capacity uint32
	next     unsafe.Pointer
}

const fragHeaderSize = 24 // dataLen 4 + capacity 4 + next 8 = 16 bytes of fields, 24 reserved

// ArenaHeap is the default Heap: malloc'd blocks bump-allocate new
// fragments; freed fragments are pushed onto a free list bucketed by
// capacity class and reused by later allocations of matching size,
// the way spec.md scenario D requires ("freed fragments reused"
// rather than the retained total growing by the full freed-then-
// reallocated size).
type ArenaHeap struct {
	mu        sync.Mutex
	blockSize int
	cur       unsafe.Pointer
	curCap    int
	curUsed   int
	blocks    []unsafe.Pointer

	freeList map[int][]unsafe.Pointer // bucket (power-of-two capacity) -> stack of fragment headers

	retained uint64
	free     uint64
}

func NewArenaHeap(blockSize int) *ArenaHeap {
	if blockSize <= 0 {
		blockSize = DefaultBlockBytes
	}
	return &ArenaHeap{
		blockSize: blockSize,
		freeList:  make(map[int][]unsafe.Pointer),
	}
}

func bucketOf(capacity int) int {
	b := 1
	for b < capacity {
		b <<= 1
	}
	return b
}

// allocFragment returns a fragment header pointer with payload
// capacity >= need, either popped from the free list or freshly
// carved from the current block.
func (h *ArenaHeap) allocFragment(need int) unsafe.Pointer {
	bucket := bucketOf(need)
	if stack := h.freeList[bucket]; len(stack) > 0 {
		frag := stack[len(stack)-1]
		hdr := rcmem.Load[fragHeader](frag)
		if int(hdr.capacity) >= need {
			h.freeList[bucket] = stack[:len(stack)-1]
			// A reused fragment may have been linked into an earlier
			// chain; it starts out unlinked again.
			hdr.dataLen = 0
			hdr.next = nil
			rcmem.Store(frag, hdr)
			h.free -= uint64(hdr.capacity)
			h.retained += uint64(hdr.capacity)
			return frag
		}
	}

	total := fragHeaderSize + need
	if h.cur == nil || h.curUsed+total > h.curCap {
		blockCap := h.blockSize
		if total > blockCap {
			blockCap = total
		}
		h.cur = rcmem.Malloc(blockCap)
		h.curCap = blockCap
		h.curUsed = 0
		h.blocks = append(h.blocks, h.cur)
	}
	frag := rcmem.Add(h.cur, h.curUsed)
	h.curUsed += total
	rcmem.Store(frag, fragHeader{capacity: uint32(need)})
	h.retained += uint64(need)
	return frag
}

func payloadOf(frag unsafe.Pointer) unsafe.Pointer {
	return rcmem.Add(frag, fragHeaderSize)
}

// CopyMultipart implements Heap.
func (h *ArenaHeap) CopyMultipart(src []byte) Descriptor {
	h.mu.Lock()
	defer h.mu.Unlock()

	if len(src) == 0 {
		return Descriptor{}
	}

	// One fragment is enough unless a single value is larger than a
	// whole block; that's the only case spec.md's "may be fragmented
	// across a separately managed backing allocator" forces a split.
	if len(src) <= h.blockSize-fragHeaderSize {
		frag := h.allocFragment(len(src))
		hdr := rcmem.Load[fragHeader](frag)
		hdr.dataLen = uint32(len(src))
		rcmem.Store(frag, hdr)
		rcmem.Copy(payloadOf(frag), rcmem.BytesPointer(src), len(src))
		return Descriptor{Size: len(src), Ptr: frag}
	}

	first := unsafe.Pointer(nil)
	var prev unsafe.Pointer
	remaining := src
	for len(remaining) > 0 {
		chunk := h.blockSize - fragHeaderSize
		if chunk > len(remaining) {
			chunk = len(remaining)
		}
		frag := h.allocFragment(chunk)
		hdr := rcmem.Load[fragHeader](frag)
		hdr.dataLen = uint32(chunk)
		rcmem.Store(frag, hdr)
		rcmem.Copy(payloadOf(frag), rcmem.BytesPointer(remaining[:chunk]), chunk)
		if first == nil {
			first = frag
		} else {
			ph := rcmem.Load[fragHeader](prev)
			ph.next = frag
			rcmem.Store(prev, ph)
		}
		prev = frag
		remaining = remaining[chunk:]
	}
	return Descriptor{Size: len(src), Ptr: first}
}

// Reserve implements Heap.
func (h *ArenaHeap) Reserve(n int) (Descriptor, io.Writer) {
	d := h.CopyMultipart(make([]byte, n))
	return d, &heapWriter{h: h, d: d}
}

type heapWriter struct {
	h   *ArenaHeap
	d   Descriptor
	off int
}

func (w *heapWriter) Write(p []byte) (int, error) {
	w.h.mu.Lock()
	defer w.h.mu.Unlock()
	frag := w.d.Ptr
	off := w.off
	for len(p) > 0 && frag != nil {
		hdr := rcmem.Load[fragHeader](frag)
		avail := int(hdr.dataLen) - off
		if avail <= 0 {
			frag = hdr.next
			off = 0
			continue
		}
		n := avail
		if n > len(p) {
			n = len(p)
		}
		rcmem.Copy(rcmem.Add(payloadOf(frag), off), rcmem.BytesPointer(p[:n]), n)
		p = p[n:]
		off += n
		w.off += n
	}
	if len(p) > 0 {
		return w.off, io.ErrShortWrite
	}
	return w.off, nil
}

// Contiguous implements Heap.
func (h *ArenaHeap) Contiguous(d Descriptor) ([]byte, bool) {
	if d.Ptr == nil {
		return nil, true
	}
	hdr := rcmem.Load[fragHeader](d.Ptr)
	if hdr.next != nil || int(hdr.dataLen) != d.Size {
		return nil, false
	}
	return rcmem.ToSlice(payloadOf(d.Ptr), int(hdr.dataLen)), true
}

// Reader implements Heap.
func (h *ArenaHeap) Reader(d Descriptor) io.Reader {
	if b, ok := h.Contiguous(d); ok {
		return bytesReader(b)
	}
	return &fragReader{next: d.Ptr}
}

type fragReader struct {
	next unsafe.Pointer
	off  int
}

func (r *fragReader) Read(p []byte) (int, error) {
	for r.next != nil {
		hdr := rcmem.Load[fragHeader](r.next)
		avail := int(hdr.dataLen) - r.off
		if avail <= 0 {
			r.next = hdr.next
			r.off = 0
			continue
		}
		n := avail
		if n > len(p) {
			n = len(p)
		}
		copy(p, rcmem.ToSlice(rcmem.Add(payloadOf(r.next), r.off), n))
		r.off += n
		if r.off >= int(hdr.dataLen) {
			r.next = hdr.next
			r.off = 0
		}
		return n, nil
	}
	return 0, io.EOF
}

func bytesReader(b []byte) io.Reader { return &plainReader{b: b} }

type plainReader struct {
	b   []byte
	off int
}

func (r *plainReader) Read(p []byte) (int, error) {
	if r.off >= len(r.b) {
		return 0, io.EOF
	}
	n := copy(p, r.b[r.off:])
	r.off += n
	return n, nil
}

// Release implements Heap: every fragment in d's chain is pushed back
// onto the free list bucket matching its capacity.
func (h *ArenaHeap) Release(d Descriptor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	frag := d.Ptr
	for frag != nil {
		hdr := rcmem.Load[fragHeader](frag)
		bucket := bucketOf(int(hdr.capacity))
		h.freeList[bucket] = append(h.freeList[bucket], frag)
		h.retained -= uint64(hdr.capacity)
		h.free += uint64(hdr.capacity)
		frag = hdr.next
	}
}

func (h *ArenaHeap) RetainedBytes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.retained
}

func (h *ArenaHeap) FreeBytes() uint64 {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.free
}

// Close releases all backing blocks. Safe to call once, after which
// the heap must not be used again.
func (h *ArenaHeap) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for _, b := range h.blocks {
		rcmem.Free(b)
	}
	h.blocks = nil
	h.cur = nil
	h.freeList = nil
	h.retained = 0
	h.free = 0
}
