package rowcontainer

import (
	"bytes"
	"encoding/binary"
	"math"
	"unsafe"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// CompareFlags controls three-way compare's null handling and
// direction, per spec.md §4.4.
type CompareFlags struct {
	NullsFirst  bool
	Descending  bool
	NullAsValue bool
}

func nullSign(flags CompareFlags, nullIsLeft bool) int {
	sign := 1
	if flags.NullsFirst {
		sign = -1
	}
	if !nullIsLeft {
		sign = -sign
	}
	if flags.Descending {
		sign = -sign
	}
	return sign
}

// CompareColumn implements compare(leftRow, rightRow, column, flags)
// for one column, dispatching by kind and applying the requested null
// policy.
func (c *Container) CompareColumn(
	left, right unsafe.Pointer,
	colType rctype.ColumnType,
	offset, nullBitOffset int,
	nullable bool,
	flags CompareFlags,
) (int, error) {
	kind := colType.Kind
	if kind.IsComplex() && !flags.NullAsValue {
		return 0, ErrUnsupportedCompareFlags
	}

	leftNull := nullable && bitGet(left, nullBitOffset)
	rightNull := nullable && bitGet(right, nullBitOffset)
	if leftNull && rightNull {
		return 0, nil
	}
	if leftNull {
		return nullSign(flags, true), nil
	}
	if rightNull {
		return nullSign(flags, false), nil
	}

	var cmp int
	switch {
	case colType.Comparator != nil:
		cmp = colType.Comparator.Compare(columnBytes(left, offset, kind, c.heap), columnBytes(right, offset, kind, c.heap))
	case kind == rctype.Unknown:
		cmp = 0
	case kind.IsConstant():
		cmp = compareFixed(kind, extractFixed(left, offset, kind), extractFixed(right, offset, kind))
	case kind.IsComplex():
		var err error
		cmp, err = defaultContainerSerde.Compare(extractVar(left, offset, c.heap), extractVar(right, offset, c.heap), kind, colType.Children, flags)
		if err != nil {
			return 0, err
		}
	default:
		cmp = bytes.Compare(extractVar(left, offset, c.heap), extractVar(right, offset, c.heap))
	}
	if flags.Descending {
		cmp = -cmp
	}
	return cmp, nil
}

// compareFixed compares two fixed-width values of the same kind,
// interpreting the raw bytes according to kind rather than doing a
// byte-for-byte compare, so signed integers and floats order
// correctly regardless of their little-endian byte pattern.
func compareFixed(kind rctype.Kind, a, b []byte) int {
	switch kind {
	case rctype.Bool:
		return int(a[0]) - int(b[0])
	case rctype.Int8:
		return sign(int64(int8(a[0])) - int64(int8(b[0])))
	case rctype.Int16:
		return sign(int64(int16(binary.LittleEndian.Uint16(a))) - int64(int16(binary.LittleEndian.Uint16(b))))
	case rctype.Int32, rctype.Date:
		return sign(int64(int32(binary.LittleEndian.Uint32(a))) - int64(int32(binary.LittleEndian.Uint32(b))))
	case rctype.Int64:
		av, bv := int64(binary.LittleEndian.Uint64(a)), int64(binary.LittleEndian.Uint64(b))
		return signCmp64(av, bv)
	case rctype.Uint8:
		return int(a[0]) - int(b[0])
	case rctype.Uint16:
		return sign(int64(binary.LittleEndian.Uint16(a)) - int64(binary.LittleEndian.Uint16(b)))
	case rctype.Uint32:
		return sign(int64(binary.LittleEndian.Uint32(a)) - int64(binary.LittleEndian.Uint32(b)))
	case rctype.Uint64:
		av, bv := binary.LittleEndian.Uint64(a), binary.LittleEndian.Uint64(b)
		switch {
		case av < bv:
			return -1
		case av > bv:
			return 1
		default:
			return 0
		}
	case rctype.Float32:
		return compareFloat64(float64(math.Float32frombits(binary.LittleEndian.Uint32(a))),
			float64(math.Float32frombits(binary.LittleEndian.Uint32(b))))
	case rctype.Float64:
		return compareFloat64(math.Float64frombits(binary.LittleEndian.Uint64(a)),
			math.Float64frombits(binary.LittleEndian.Uint64(b)))
	case rctype.Decimal, rctype.Interval:
		return compare128(a, b)
	default:
		return bytes.Compare(a, b)
	}
}

func sign(d int64) int {
	return signCmp64(d, 0)
}

func signCmp64(a, b int64) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compareFloat64 implements a total order over floats, including
// NaN, per spec.md §4.4: all NaN bit patterns are equal to each
// other and sort after every non-NaN value; +0.0 == -0.0.
func compareFloat64(a, b float64) int {
	aNaN, bNaN := math.IsNaN(a), math.IsNaN(b)
	switch {
	case aNaN && bNaN:
		return 0
	case aNaN:
		return 1
	case bNaN:
		return -1
	case a < b:
		return -1
	case a > b:
		return 1
	default:
		return 0
	}
}

// compare128 interprets a and b as little-endian 128-bit signed
// integers (low 8 bytes, then high 8 bytes), the layout used for
// Decimal and Interval payloads.
func compare128(a, b []byte) int {
	aHigh := int64(binary.LittleEndian.Uint64(a[8:16]))
	bHigh := int64(binary.LittleEndian.Uint64(b[8:16]))
	if aHigh != bHigh {
		return signCmp64(aHigh, bHigh)
	}
	aLow := binary.LittleEndian.Uint64(a[0:8])
	bLow := binary.LittleEndian.Uint64(b[0:8])
	switch {
	case aLow < bLow:
		return -1
	case aLow > bLow:
		return 1
	default:
		return 0
	}
}

// RowComparator composes per-column compares over an ordered key
// list, for sort operators, per spec.md §4.4. Container.CompareColumn
// does not itself guarantee a stable order across ties; a caller
// needing stability supplies its own tiebreaker column.
type RowComparator struct {
	container *Container
	columns   []compareColumnSpec
}

type compareColumnSpec struct {
	colType       rctype.ColumnType
	offset        int
	nullBitOffset int
	nullable      bool
	flags         CompareFlags
}

func (c *Container) NewRowComparator() *RowComparator {
	return &RowComparator{container: c}
}

func (rc *RowComparator) AddColumn(colType rctype.ColumnType, offset, nullBitOffset int, nullable bool, flags CompareFlags) {
	rc.columns = append(rc.columns, compareColumnSpec{colType, offset, nullBitOffset, nullable, flags})
}

func (rc *RowComparator) Compare(left, right unsafe.Pointer) (int, error) {
	for _, spec := range rc.columns {
		cmp, err := rc.container.CompareColumn(left, right, spec.colType, spec.offset, spec.nullBitOffset, spec.nullable, spec.flags)
		if err != nil {
			return 0, err
		}
		if cmp != 0 {
			return cmp, nil
		}
	}
	return 0, nil
}
