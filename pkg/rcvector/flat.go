package rcvector

import (
	"encoding/binary"
	"math"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// FlatVector is a reference DecodedVector: one contiguous null
// bitmap plus one slice per row of either fixed-width bytes or
// variable-width bytes. It exists so the row container's tests (and
// any caller without its own vector engine) have a concrete decoded
// batch to store from and extract into, the same role the teacher's
// chunk.Vector plays for pkg/compute's join/sort operators.
type FlatVector struct {
	kind   rctype.Kind
	nulls  []bool
	fixed  [][]byte
	varied [][]byte
}

func NewFlatVector(kind rctype.Kind, n int) *FlatVector {
	v := &FlatVector{kind: kind, nulls: make([]bool, n)}
	if kind.IsConstant() {
		v.fixed = make([][]byte, n)
	} else {
		v.varied = make([][]byte, n)
	}
	return v
}

func (v *FlatVector) Kind() rctype.Kind { return v.kind }
func (v *FlatVector) Len() int          { return len(v.nulls) }
func (v *FlatVector) IsNull(idx int) bool {
	return v.nulls[idx]
}

func (v *FlatVector) SetNull(idx int, isNull bool) {
	v.nulls[idx] = isNull
}

func (v *FlatVector) FixedBytes(idx int) []byte {
	return v.fixed[idx]
}

func (v *FlatVector) VarBytes(idx int) []byte {
	return v.varied[idx]
}

// SetFixedBytes and SetVarBytes make FlatVector a WritableVector: the
// extract side of Typed Value I/O writes column data back out through
// these, the mirror image of FixedBytes/VarBytes on the store side.
func (v *FlatVector) SetFixedBytes(idx int, b []byte) {
	v.fixed[idx] = append([]byte(nil), b...)
}

func (v *FlatVector) SetVarBytes(idx int, b []byte) {
	v.varied[idx] = append([]byte(nil), b...)
}

// SetInt64/SetFloat64/SetBool etc. are small encoding helpers for
// tests; production callers with their own vector engine would
// instead adapt their native representation to FixedBytes/VarBytes
// directly.

func (v *FlatVector) SetInt64(idx int, x int64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, uint64(x))
	v.fixed[idx] = buf
}

func (v *FlatVector) SetInt32(idx int, x int32) {
	buf := make([]byte, 4)
	binary.LittleEndian.PutUint32(buf, uint32(x))
	v.fixed[idx] = buf
}

func (v *FlatVector) SetFloat64(idx int, x float64) {
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, math.Float64bits(x))
	v.fixed[idx] = buf
}

func (v *FlatVector) SetBool(idx int, x bool) {
	b := byte(0)
	if x {
		b = 1
	}
	v.fixed[idx] = []byte{b}
}

func (v *FlatVector) SetString(idx int, s string) {
	v.varied[idx] = []byte(s)
}
