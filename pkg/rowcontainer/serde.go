package rowcontainer

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

// ContainerSerdeOptions is the one behavioral knob a complex value's
// wire encoding carries alongside its bytes, mirroring Velox's
// ContainerRowSerdeOptions{isKey}: a ROW/ARRAY/MAP being stored as
// (part of) a grouping or join key needs a different null-ordering
// convention inside its nested elements than one stored as a plain
// dependent column. Serialize records IsKey in a one-byte header;
// Compare and Hash skip that header without reading it, so keys and
// dependents order and hash their nested elements the same way.
type ContainerSerdeOptions struct {
	IsKey bool
}

// containerSerde is the collaborator spec.md §4.3/§4.4 calls out
// separately from the VARCHAR/VARBINARY path for ROW/ARRAY/MAP
// values: unlike a plain variable-width value, a complex value's
// bytes have internal structure -- a sequence of independently
// nullable child elements -- that storing, hashing, and comparing
// need to walk instead of treating as one opaque blob. This mirrors
// Velox's ContainerRowSerde::serialize/compare/hash
// (_examples/original_source/velox/exec/RowContainer.cpp,
// storeComplexType/compareComplexType/hashTyped), generalized here to
// a self-contained byte encoding since the row container's DecodedVector
// (pkg/rcvector) has no nested-vector accessor of its own: a
// producer building a Row/Array/Map column hands VarBytes(idx) as the
// already-flattened element stream this type reads and writes, rather
// than the container walking a child DecodedVector directly.
type containerSerde struct{}

var defaultContainerSerde containerSerde

// Serialize wraps a complex value's element stream with its
// ContainerSerdeOptions header, the on-disk/on-heap form storeColumn
// persists via storeVar. body is expected to already be encoded as a
// sequence of elements via AppendElement; Serialize does not itself
// decompose a value into elements since it never sees a child
// DecodedVector.
func (containerSerde) Serialize(body []byte, opts ContainerSerdeOptions) []byte {
	out := make([]byte, 1, 1+len(body))
	if opts.IsKey {
		out[0] = 1
	}
	return append(out, body...)
}

// Deserialize is Serialize's inverse.
func (containerSerde) Deserialize(data []byte) (ContainerSerdeOptions, []byte) {
	if len(data) == 0 {
		return ContainerSerdeOptions{}, nil
	}
	return ContainerSerdeOptions{IsKey: data[0] != 0}, data[1:]
}

// AppendElement appends one child element to a complex value's body
// in the wire format Compare/Hash later walk: a presence byte, and
// when present a 4-byte little-endian length followed by the raw
// child bytes. A null element carries no length or payload, matching
// how a null field of a Row or a null entry of an Array/Map contributes
// nothing but its own null bit to the encoding.
func (containerSerde) AppendElement(body []byte, isNull bool, data []byte) []byte {
	if isNull {
		return append(body, 0)
	}
	body = append(body, 1)
	var szBuf [4]byte
	binary.LittleEndian.PutUint32(szBuf[:], uint32(len(data)))
	body = append(body, szBuf[:]...)
	return append(body, data...)
}

// nextElement reads one AppendElement-encoded element off the front
// of body, returning whether it was null, its payload (nil if null),
// and the remaining bytes.
func (containerSerde) nextElement(body []byte) (isNull bool, data, rest []byte, err error) {
	if len(body) == 0 {
		return false, nil, nil, fmt.Errorf("containerSerde: truncated element stream")
	}
	tag := body[0]
	body = body[1:]
	if tag == 0 {
		return true, nil, body, nil
	}
	if len(body) < 4 {
		return false, nil, nil, fmt.Errorf("containerSerde: truncated element length")
	}
	n := binary.LittleEndian.Uint32(body[:4])
	body = body[4:]
	if uint64(len(body)) < uint64(n) {
		return false, nil, nil, fmt.Errorf("containerSerde: truncated element payload")
	}
	return false, body[:n], body[n:], nil
}

// childType returns the ColumnType governing element i of a complex
// value with the given child list: Row addresses fields by position,
// Array repeats its single element type, Map alternates key/value.
// An empty children list (a caller that didn't supply nested type
// metadata) yields the zero ColumnType, under which Compare/Hash fall
// back to an untyped byte compare/xxhash of that element's payload.
func childType(kind rctype.Kind, children []rctype.ColumnType, i int) rctype.ColumnType {
	if len(children) == 0 {
		return rctype.ColumnType{}
	}
	switch kind {
	case rctype.Array:
		return children[0]
	case rctype.Map:
		return children[i%2]
	default: // Row
		if i < len(children) {
			return children[i]
		}
		return rctype.ColumnType{}
	}
}

// Compare walks two complex values element by element, recursing into
// nested complex children and applying the same kind-aware scalar
// compare CompareColumn uses for flat columns, instead of the
// byte-for-byte compare a plain variable-width column gets. Element
// count mismatches (e.g. two Arrays of different length) order the
// shorter value first once every shared element compares equal,
// matching how Velox's ContainerRowSerde::compare treats a length
// difference as the final tiebreaker.
//
// Compare returns the ascending-order sign (NullsFirst is honored, but
// Descending is not applied here); every caller -- CompareColumn,
// CompareToVector, and Compare's own direct callers in tests -- applies
// Descending itself exactly once, the same way the flat-column compare
// path does. Applying it a second time down here would cancel out the
// flip for the length/null tiebreak cases while leaving element-value
// tiebreaks flipped only once, an inconsistency this keeps out.
func (s containerSerde) Compare(left, right []byte, kind rctype.Kind, children []rctype.ColumnType, flags CompareFlags) (int, error) {
	_, lBody := s.Deserialize(left)
	_, rBody := s.Deserialize(right)
	return s.compareBodies(lBody, rBody, kind, children, flags)
}

// CompareRowToElementStream compares a stored complex value (still
// carrying its ContainerSerdeOptions header, as extractVar returns it)
// against a bare element stream from a not-yet-stored DecodedVector
// (as CompareToVector's decoded.VarBytes(idx) provides it, with no
// header of its own since it was never passed through Serialize).
func (s containerSerde) CompareRowToElementStream(rowData, vecBody []byte, kind rctype.Kind, children []rctype.ColumnType, flags CompareFlags) (int, error) {
	_, lBody := s.Deserialize(rowData)
	return s.compareBodies(lBody, vecBody, kind, children, flags)
}

func (s containerSerde) compareBodies(lBody, rBody []byte, kind rctype.Kind, children []rctype.ColumnType, flags CompareFlags) (int, error) {
	i := 0
	for {
		lDone := len(lBody) == 0
		rDone := len(rBody) == 0
		if lDone || rDone {
			switch {
			case lDone && rDone:
				return 0, nil
			case lDone:
				return lengthSign(flags, true), nil
			default:
				return lengthSign(flags, false), nil
			}
		}
		lNull, lData, lRest, err := s.nextElement(lBody)
		if err != nil {
			return 0, err
		}
		rNull, rData, rRest, err := s.nextElement(rBody)
		if err != nil {
			return 0, err
		}
		if lNull || rNull {
			switch {
			case lNull && rNull:
				// equal, move on
			case lNull:
				return elementNullSign(flags, true), nil
			default:
				return elementNullSign(flags, false), nil
			}
		} else {
			ct := childType(kind, children, i)
			cmp, err := s.compareElement(lData, rData, ct, flags)
			if err != nil {
				return 0, err
			}
			if cmp != 0 {
				return cmp, nil
			}
		}
		lBody, rBody = lRest, rRest
		i++
	}
}

// lengthSign resolves the final tiebreak when every shared element of
// two complex values compares equal but one has fewer elements: the
// shorter value sorts first, the same "prefix sorts before" rule
// lexicographic string comparison uses. Ascending-order sign only --
// see the Compare doc comment for why Descending is applied once by
// the caller instead of down here.
func lengthSign(flags CompareFlags, leftShorter bool) int {
	if leftShorter {
		return -1
	}
	return 1
}

// elementNullSign is nullSign without the Descending flip, for the
// same reason lengthSign omits it: a nested element tiebreak inside
// compareBodies must not apply Descending twice once the caller applies
// it to the whole result.
func elementNullSign(flags CompareFlags, nullIsLeft bool) int {
	sign := 1
	if flags.NullsFirst {
		sign = -1
	}
	if !nullIsLeft {
		sign = -sign
	}
	return sign
}

func (s containerSerde) compareElement(a, b []byte, ct rctype.ColumnType, flags CompareFlags) (int, error) {
	switch {
	case ct.Comparator != nil:
		return ct.Comparator.Compare(a, b), nil
	case ct.Kind.IsComplex():
		return s.Compare(a, b, ct.Kind, ct.Children, flags)
	case ct.Kind.IsConstant():
		return compareFixed(ct.Kind, a, b), nil
	default:
		return bytes.Compare(a, b), nil
	}
}

// Hash folds a complex value's elements into one hash, recursing into
// nested complex children and using the same kind-aware scalar hash
// hashOne uses for flat columns (NaN-canonicalizing float hash,
// splitMix64 for other fixed kinds), instead of xxhash over the whole
// opaque blob.
func (s containerSerde) Hash(data []byte, kind rctype.Kind, children []rctype.ColumnType) (uint64, error) {
	_, body := s.Deserialize(data)
	var h uint64
	i := 0
	for len(body) > 0 {
		isNull, elem, rest, err := s.nextElement(body)
		if err != nil {
			return 0, err
		}
		var eh uint64
		if isNull {
			eh = NullHash
		} else {
			ct := childType(kind, children, i)
			eh = s.hashElement(elem, ct)
		}
		h = mix(h, eh)
		body = rest
		i++
	}
	return h, nil
}

func (s containerSerde) hashElement(data []byte, ct rctype.ColumnType) uint64 {
	switch {
	case ct.Comparator != nil:
		return ct.Comparator.Hash(data)
	case ct.Kind.IsComplex():
		h, err := s.Hash(data, ct.Kind, ct.Children)
		if err != nil {
			return hashVar(data)
		}
		return h
	case ct.Kind.IsConstant():
		return hashFixed(ct.Kind, data)
	default:
		return hashVar(data)
	}
}
