package rowcontainer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
	"github.com/daviszhen/rowcontainer/pkg/rcvector"
)

func encodeInt32Elements(vals []int32, nulls []bool) []byte {
	var body []byte
	for i, v := range vals {
		if nulls != nil && nulls[i] {
			body = defaultContainerSerde.AppendElement(body, true, nil)
			continue
		}
		body = defaultContainerSerde.AppendElement(body, false, int32Bytes(v))
	}
	return body
}

func int32Bytes(v int32) []byte {
	f := rcvector.NewFlatVector(rctype.Int32, 1)
	f.SetInt32(0, v)
	return f.FixedBytes(0)
}

// TestContainerSerdeArrayCompareIsElementwise establishes that an
// Array column compares structurally element by element rather than
// as one opaque byte string: two arrays whose raw wire encodings sort
// oppositely under a plain byte compare must still order by their
// decoded Int32 elements.
func TestContainerSerdeArrayCompareIsElementwise(t *testing.T) {
	arrType := rctype.ArrayOf(rctype.Fixed(rctype.Int32))

	small := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{9}, nil), ContainerSerdeOptions{})
	large := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{256}, nil), ContainerSerdeOptions{})

	// Little-endian byte 9 sorts after byte 0 of 256's low byte, so a
	// bytes.Compare over the raw payload would call these the wrong
	// way around; the serde must recognize the payload as one Int32
	// element and compare 9 < 256 numerically.
	cmp, err := defaultContainerSerde.Compare(small, large, arrType.Kind, arrType.Children, CompareFlags{})
	require.NoError(t, err)
	require.Less(t, cmp, 0, "array compare must be numeric per-element, not a raw byte compare")
}

// TestContainerSerdeArrayLengthTiebreak matches Velox's
// ContainerRowSerde::compare treatment of a length difference: once
// every shared element compares equal, the shorter array sorts first.
func TestContainerSerdeArrayLengthTiebreak(t *testing.T) {
	arrType := rctype.ArrayOf(rctype.Fixed(rctype.Int32))

	short := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{1}, nil), ContainerSerdeOptions{})
	long := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{1, 2}, nil), ContainerSerdeOptions{})

	cmp, err := defaultContainerSerde.Compare(short, long, arrType.Kind, arrType.Children, CompareFlags{})
	require.NoError(t, err)
	require.Less(t, cmp, 0)

	cmp, err = defaultContainerSerde.Compare(long, short, arrType.Kind, arrType.Children, CompareFlags{})
	require.NoError(t, err)
	require.Greater(t, cmp, 0)
}

// TestContainerSerdeNullElement exercises a null array element,
// checked against NullsFirst the same way a top-level null column is.
func TestContainerSerdeNullElement(t *testing.T) {
	arrType := rctype.ArrayOf(rctype.Fixed(rctype.Int32))

	withNull := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{0, 5}, []bool{true, false}), ContainerSerdeOptions{})
	withVal := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{1, 5}, []bool{false, false}), ContainerSerdeOptions{})

	cmp, err := defaultContainerSerde.Compare(withNull, withVal, arrType.Kind, arrType.Children, CompareFlags{})
	require.NoError(t, err)
	require.Greater(t, cmp, 0, "default null-as-greater ordering applies inside a complex value's elements")

	cmp, err = defaultContainerSerde.Compare(withNull, withVal, arrType.Kind, arrType.Children, CompareFlags{NullsFirst: true})
	require.NoError(t, err)
	require.Less(t, cmp, 0)
}

// TestContainerSerdeHashDeterministicAndStructural checks that two
// equal Array values hash equal, and that swapping the order of two
// elements changes the hash.
func TestContainerSerdeHashDeterministicAndStructural(t *testing.T) {
	arrType := rctype.ArrayOf(rctype.Fixed(rctype.Int32))

	a := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{1, 2}, nil), ContainerSerdeOptions{})
	b := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{1, 2}, nil), ContainerSerdeOptions{})
	c := defaultContainerSerde.Serialize(encodeInt32Elements([]int32{2, 1}, nil), ContainerSerdeOptions{})

	ha, err := defaultContainerSerde.Hash(a, arrType.Kind, arrType.Children)
	require.NoError(t, err)
	hb, err := defaultContainerSerde.Hash(b, arrType.Kind, arrType.Children)
	require.NoError(t, err)
	hc, err := defaultContainerSerde.Hash(c, arrType.Kind, arrType.Children)
	require.NoError(t, err)

	require.Equal(t, ha, hb, "identical arrays must hash identically")
	require.NotEqual(t, ha, hc, "element order must affect the hash")
}

// TestContainerRowColumnRoundTripsThroughSerde is Container-level: a
// Row column stored via StoreOne must come back out through
// ExtractColumn with the same element stream, and two equal Row
// values must compare equal and hash equal through the public
// Container API, exercising the Container Serde end to end rather
// than only its package-internal functions.
func TestContainerRowColumnRoundTripsThroughSerde(t *testing.T) {
	rowType := rctype.RowOf(rctype.Fixed(rctype.Int32), rctype.Fixed(rctype.Int32))
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rowType},
	})

	body := encodeInt32Elements([]int32{3, 4}, nil)
	src := rcvector.NewFlatVector(rctype.Row, 1)
	src.SetVarBytes(0, body)

	row, err := c.NewRow()
	require.NoError(t, err)
	require.NoError(t, c.StoreOne(0, src, 0, row))

	dst := rcvector.NewFlatVector(rctype.Row, 1)
	require.NoError(t, c.ExtractColumn([]unsafe.Pointer{row}, 0, dst))
	require.Equal(t, body, dst.VarBytes(0), "extract must return the same element stream that was stored")

	row2, err := c.NewRow()
	require.NoError(t, err)
	src2 := rcvector.NewFlatVector(rctype.Row, 1)
	src2.SetVarBytes(0, encodeInt32Elements([]int32{3, 4}, nil))
	require.NoError(t, c.StoreOne(0, src2, 0, row2))

	cmp, err := c.Compare(row, row2, 0, CompareFlags{NullAsValue: true})
	require.NoError(t, err)
	require.Equal(t, 0, cmp)

	h1 := make([]uint64, 1)
	h2 := make([]uint64, 1)
	c.Hash(0, []unsafe.Pointer{row}, false, h1)
	c.Hash(0, []unsafe.Pointer{row2}, false, h2)
	require.Equal(t, h1[0], h2[0])
}
