// Package rctype is the closed kind enumeration the row container
// dispatches on. It stands in for the "typed scalar value and vector
// subsystem" that spec.md treats as an external collaborator: a real
// query engine would own a much richer logical type system (decimal
// precision/scale, nested struct shapes, collation), but the row
// container only ever needs a column's physical storage kind.
package rctype

import "fmt"

// Kind is the physical storage kind of a column. It is a small closed
// enumeration so that per-column dispatch can be a table lookup or a
// switch instead of a virtual call per row.
type Kind int

const (
	Invalid Kind = iota
	Bool
	Int8
	Int16
	Int32
	Int64
	Uint8
	Uint16
	Uint32
	Uint64
	Float32
	Float64
	Date
	Decimal
	Interval
	Varchar
	Varbinary
	Row
	Array
	Map
	Unknown
)

var kindNames = map[Kind]string{
	Invalid:   "INVALID",
	Bool:      "BOOL",
	Int8:      "TINYINT",
	Int16:     "SMALLINT",
	Int32:     "INT",
	Int64:     "BIGINT",
	Uint8:     "UTINYINT",
	Uint16:    "USMALLINT",
	Uint32:    "UINT",
	Uint64:    "UBIGINT",
	Float32:   "FLOAT",
	Float64:   "DOUBLE",
	Date:      "DATE",
	Decimal:   "DECIMAL",
	Interval:  "INTERVAL",
	Varchar:   "VARCHAR",
	Varbinary: "VARBINARY",
	Row:       "ROW",
	Array:     "ARRAY",
	Map:       "MAP",
	Unknown:   "UNKNOWN",
}

func (k Kind) String() string {
	if s, ok := kindNames[k]; ok {
		return s
	}
	panic(fmt.Sprintf("rctype: unhandled kind %d", int(k)))
}

// fixedWidths holds the in-row byte width of every kind whose storage
// is a constant number of bytes. Variable-width kinds (Varchar,
// Varbinary, Row, Array, Map) are not in this table: their in-row
// representation is a descriptor whose width the row layout planner
// chooses uniformly for all of them rather than per kind.
var fixedWidths = map[Kind]int{
	Bool:     1,
	Int8:     1,
	Int16:    2,
	Int32:    4,
	Int64:    8,
	Uint8:    1,
	Uint16:   2,
	Uint32:   4,
	Uint64:   8,
	Float32:  4,
	Float64:  8,
	Date:     4, // days since epoch, int32
	Decimal:  16,
	Interval: 16,
	Unknown:  0,
}

// PointerSize is the width of a pointer, which FixedWidthOf and
// AlignmentOf report for variable-width and complex kinds.
const PointerSize = 8

// FixedWidthOf returns the number of bytes a value of a fixed-width
// kind k occupies directly in the row. For variable-width kinds it
// returns PointerSize; the row layout planner does not use it for
// them and reserves its own wider descriptor slot instead.
func FixedWidthOf(k Kind) int {
	if w, ok := fixedWidths[k]; ok {
		return w
	}
	return PointerSize
}

// IsConstant reports whether every row's storage for this kind is the
// same fixed number of bytes.
func (k Kind) IsConstant() bool {
	_, ok := fixedWidths[k]
	return ok
}

// IsVarchar reports whether k is one of the variable-width string
// kinds whose small values can be inlined.
func (k Kind) IsVarchar() bool {
	return k == Varchar || k == Varbinary
}

// IsComplex reports whether k is a nested kind serialized through the
// Container Serde rather than stored as a flat scalar.
func (k Kind) IsComplex() bool {
	return k == Row || k == Array || k == Map
}

// IsFloat reports whether k needs NaN-aware hashing/compare.
func (k Kind) IsFloat() bool {
	return k == Float32 || k == Float64
}

// AlignmentOf returns the natural alignment of a fixed-width kind. For
// variable-width and complex kinds this is PointerSize.
func AlignmentOf(k Kind) int {
	switch k {
	case Bool, Int8, Uint8:
		return 1
	case Int16, Uint16:
		return 2
	case Int32, Uint32, Date, Float32:
		return 4
	default:
		return 8
	}
}
