// Package rcmem provides the raw-memory primitives the row container
// needs to hand out stable, single-address-referenceable rows: a thin
// cgo wrapper around malloc/free plus typed load/store and pointer
// arithmetic over unsafe.Pointer. This mirrors the teacher's
// pkg/util (mem.go, pointer_op.go) almost exactly — a packed row
// store fundamentally needs raw addresses, not slice-backed memory
// the Go GC can move or that carries per-slice bounds metadata.
package rcmem

import (
	"bytes"
	"unsafe"
)

//#include <stdlib.h>
//#include <string.h>
import "C"

func Malloc(sz int) unsafe.Pointer {
	if sz <= 0 {
		return nil
	}
	return C.malloc(C.size_t(sz))
}

func Free(ptr unsafe.Pointer) {
	if ptr != nil {
		C.free(ptr)
	}
}

func Memset(ptr unsafe.Pointer, val byte, sz int) {
	if sz > 0 {
		C.memset(ptr, C.int(val), C.size_t(sz))
	}
}

func Memmove(dst, src unsafe.Pointer, sz int) {
	if sz > 0 {
		C.memmove(dst, src, C.size_t(sz))
	}
}

func Load[T any](ptr unsafe.Pointer) T {
	return *(*T)(ptr)
}

func Store[T any](ptr unsafe.Pointer, val T) {
	*(*T)(ptr) = val
}

func Add(base unsafe.Pointer, offset int) unsafe.Pointer {
	return unsafe.Add(base, offset)
}

func Sub(a, b unsafe.Pointer) int {
	return int(uintptr(a) - uintptr(b))
}

func ToSlice(base unsafe.Pointer, n int) []byte {
	if n == 0 {
		return nil
	}
	return unsafe.Slice((*byte)(base), n)
}

// BytesPointer returns a pointer to b's backing array, or nil for an
// empty slice. Callers must not retain the pointer past b's lifetime.
func BytesPointer(b []byte) unsafe.Pointer {
	if len(b) == 0 {
		return nil
	}
	return unsafe.Pointer(&b[0])
}

func Copy(dst, src unsafe.Pointer, n int) {
	if n == 0 {
		return
	}
	copy(ToSlice(dst, n), ToSlice(src, n))
}

func Compare(a, b unsafe.Pointer, n int) int {
	return bytes.Compare(ToSlice(a, n), ToSlice(b, n))
}

// AlignUp rounds value up to the next multiple of align, which must
// be a power of two.
func AlignUp(value, align int) int {
	return (value + align - 1) &^ (align - 1)
}

// IsPowerOfTwo reports whether x is a power of two (x > 0).
func IsPowerOfTwo(x int) bool {
	return x > 0 && x&(x-1) == 0
}

// EntryCount returns the number of bytes needed to hold cnt bits.
func EntryCount(cnt int) int {
	return (cnt + 7) / 8
}
