package rctype

// CustomComparator is the bounded escape hatch spec.md §9 describes
// for types that need non-default hashing and comparison (e.g. a
// collated string, or a value whose byte layout isn't safe to compare
// lexicographically). A column whose Kind is Varchar/Varbinary/Row/
// Array/Map may optionally carry one; when present, Hash & Compare
// dispatch to it instead of the default per-kind behavior.
type CustomComparator interface {
	// Hash returns a hash of the raw bytes of a stored value.
	Hash(data []byte) uint64
	// Compare returns <0, 0, >0 comparing two raw byte encodings of
	// values of this type, independent of null handling (the row
	// container handles nulls itself before ever calling Compare).
	Compare(a, b []byte) int
}

// ColumnType fully describes one column for layout and dispatch
// purposes: its storage Kind, an optional custom comparator, and for
// a complex Kind (Row/Array/Map) the element types nested inside it —
// one entry for Array's element type, two for Map's [key, value], or
// one per field for Row — so the Container Serde has enough type
// information to walk a complex value structurally instead of
// treating it as an opaque byte string.
type ColumnType struct {
	Kind       Kind
	Comparator CustomComparator
	Children   []ColumnType
}

func Fixed(k Kind) ColumnType { return ColumnType{Kind: k} }

func WithComparator(k Kind, cmp CustomComparator) ColumnType {
	return ColumnType{Kind: k, Comparator: cmp}
}

// ArrayOf describes an Array column whose elements have type elem.
func ArrayOf(elem ColumnType) ColumnType {
	return ColumnType{Kind: Array, Children: []ColumnType{elem}}
}

// MapOf describes a Map column with the given key and value types.
func MapOf(key, value ColumnType) ColumnType {
	return ColumnType{Kind: Map, Children: []ColumnType{key, value}}
}

// RowOf describes a Row (struct) column with the given field types in
// declaration order.
func RowOf(fields ...ColumnType) ColumnType {
	return ColumnType{Kind: Row, Children: append([]ColumnType(nil), fields...)}
}
