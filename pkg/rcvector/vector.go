// Package rcvector is the row container's view of the "typed scalar
// value and vector subsystem" that spec.md §1 declares out of scope:
// decoded column batches (flat vectors with a null mask) feeding
// stores, and the selection-vector index list used to address a
// subset of a batch. The row container only ever consumes
// DecodedVector through this narrow interface; a real engine's
// vectorized executor would own a far richer vector representation
// (dictionary/constant/sequence formats, unified-format flattening,
// SIMD kernels) the way the teacher's pkg/chunk does.
package rcvector

import (
	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// DecodedVector is a flattened, random-accessible view of one decoded
// column batch: for every logical row index it can report nullness
// and produce the raw bytes of the value. Implementations own their
// own backing storage and null representation; the row container
// never mutates a DecodedVector.
type DecodedVector interface {
	Kind() rctype.Kind
	Len() int
	IsNull(idx int) bool
	// FixedBytes returns a view of the fixed-width in-memory
	// representation of the value at idx. Only valid for kinds where
	// rctype.Kind.IsConstant() is true.
	FixedBytes(idx int) []byte
	// VarBytes returns the logical byte content of a variable-width
	// value at idx (already reassembled if the source vector has its
	// own indirection). For a Row/Array/Map column it returns the
	// value's element stream: one entry per field/item/key-value pair,
	// each written by rowcontainer's Container Serde
	// (containerSerde.AppendElement) rather than a single opaque blob
	// -- the row container has no nested-vector accessor of its own,
	// so the producer of a complex-typed DecodedVector is responsible
	// for flattening it into this encoding up front.
	VarBytes(idx int) []byte
}

// WritableVector is the output side of Typed Value I/O's extract
// path: a DecodedVector that can also be populated, implemented by
// FlatVector for tests and for callers without their own vector
// engine to write extracted column data into.
type WritableVector interface {
	DecodedVector
	SetNull(idx int, isNull bool)
	SetFixedBytes(idx int, b []byte)
	SetVarBytes(idx int, b []byte)
}

// SelectVector is an optional index list addressing a subset, in
// order, of a DecodedVector or of row addresses. A nil SelectVector
// means "every index 0..n-1 in order", mirroring the teacher's
// SelectVector.Invalid()/GetIndex() convention of treating an empty
// selection as the identity mapping.
type SelectVector struct {
	sel []int
}

func NewSelectVector(indices []int) *SelectVector {
	return &SelectVector{sel: indices}
}

// Identity builds a SelectVector equivalent to "no selection" over n
// entries; callers that always want a concrete index list (rather
// than branching on nil) can use this.
func Identity(n int) *SelectVector {
	idx := make([]int, n)
	for i := range idx {
		idx[i] = i
	}
	return &SelectVector{sel: idx}
}

func (sv *SelectVector) Len() int {
	if sv == nil {
		return 0
	}
	return len(sv.sel)
}

// Index returns the underlying index for logical position i. A nil
// SelectVector (or one with no entries) passes i through unchanged.
func (sv *SelectVector) Index(i int) int {
	if sv == nil || len(sv.sel) == 0 {
		return i
	}
	return sv.sel[i]
}
