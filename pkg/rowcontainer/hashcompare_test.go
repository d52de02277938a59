package rowcontainer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
	"github.com/daviszhen/rowcontainer/pkg/rcvector"
)

// TestHashDeterminismAndCombine is Testable Property 6: hashing the
// same row twice yields the same value, and combine=true folds a
// second column's hash into the first's rather than overwriting it.
func TestHashDeterminismAndCombine(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rctype.Fixed(rctype.Int32), rctype.Fixed(rctype.Int32)},
	})

	row, err := c.NewRow()
	require.NoError(t, err)
	v0 := rcvector.NewFlatVector(rctype.Int32, 1)
	v0.SetInt32(0, 7)
	require.NoError(t, c.StoreOne(0, v0, 0, row))
	v1 := rcvector.NewFlatVector(rctype.Int32, 1)
	v1.SetInt32(0, 9)
	require.NoError(t, c.StoreOne(1, v1, 0, row))

	rows := []unsafe.Pointer{row}
	h1 := make([]uint64, 1)
	h2 := make([]uint64, 1)
	c.Hash(0, rows, false, h1)
	c.Hash(0, rows, false, h2)
	require.Equal(t, h1[0], h2[0], "hashing the same row twice must be deterministic")

	combined := make([]uint64, 1)
	c.Hash(0, rows, false, combined)
	c.Hash(1, rows, true, combined)
	require.NotEqual(t, h1[0], combined[0], "combining a second column must change the accumulated hash")
}

// TestCompareTotality is Testable Property 7: reflexive, antisymmetric,
// and transitive across a set of distinct rows.
func TestCompareTotality(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rctype.Fixed(rctype.Int32)},
	})

	vals := []int32{5, 1, 3, 1, 9}
	rows := make([]unsafe.Pointer, len(vals))
	for i, v := range vals {
		row, err := c.NewRow()
		require.NoError(t, err)
		vec := rcvector.NewFlatVector(rctype.Int32, 1)
		vec.SetInt32(0, v)
		require.NoError(t, c.StoreOne(0, vec, 0, row))
		rows[i] = row
	}

	for i := range rows {
		cmp, err := c.Compare(rows[i], rows[i], 0, CompareFlags{})
		require.NoError(t, err)
		require.Equal(t, 0, cmp, "reflexive")
	}

	for i := range rows {
		for j := range rows {
			cij, err := c.Compare(rows[i], rows[j], 0, CompareFlags{})
			require.NoError(t, err)
			cji, err := c.Compare(rows[j], rows[i], 0, CompareFlags{})
			require.NoError(t, err)
			require.Equal(t, sign(int64(cij)), -sign(int64(cji)), "antisymmetric for i=%d j=%d", i, j)
		}
	}

	for i := range rows {
		for j := range rows {
			for k := range rows {
				cij, _ := c.Compare(rows[i], rows[j], 0, CompareFlags{})
				cjk, _ := c.Compare(rows[j], rows[k], 0, CompareFlags{})
				cik, _ := c.Compare(rows[i], rows[k], 0, CompareFlags{})
				if cij <= 0 && cjk <= 0 {
					require.LessOrEqual(t, cik, 0, "transitive for i=%d j=%d k=%d", i, j, k)
				}
			}
		}
	}
}

// TestCompareDescendingNegatesOrder exercises the Descending flag.
func TestCompareDescendingNegatesOrder(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rctype.Fixed(rctype.Int32)},
	})

	rowLow, err := c.NewRow()
	require.NoError(t, err)
	vLow := rcvector.NewFlatVector(rctype.Int32, 1)
	vLow.SetInt32(0, 1)
	require.NoError(t, c.StoreOne(0, vLow, 0, rowLow))

	rowHigh, err := c.NewRow()
	require.NoError(t, err)
	vHigh := rcvector.NewFlatVector(rctype.Int32, 1)
	vHigh.SetInt32(0, 2)
	require.NoError(t, c.StoreOne(0, vHigh, 0, rowHigh))

	asc, err := c.Compare(rowLow, rowHigh, 0, CompareFlags{})
	require.NoError(t, err)
	require.Less(t, asc, 0)

	desc, err := c.Compare(rowLow, rowHigh, 0, CompareFlags{Descending: true})
	require.NoError(t, err)
	require.Greater(t, desc, 0)
}

// TestCompareNullsFirstAndLast exercises NullsFirst against nullable
// keys.
func TestCompareNullsFirstAndLast(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes:     []rctype.ColumnType{rctype.Fixed(rctype.Int32)},
		NullableKeys: true,
	})

	rowNull, err := c.NewRow()
	require.NoError(t, err)
	vNull := rcvector.NewFlatVector(rctype.Int32, 1)
	vNull.SetNull(0, true)
	require.NoError(t, c.StoreOne(0, vNull, 0, rowNull))

	rowVal, err := c.NewRow()
	require.NoError(t, err)
	vVal := rcvector.NewFlatVector(rctype.Int32, 1)
	vVal.SetInt32(0, 1)
	require.NoError(t, c.StoreOne(0, vVal, 0, rowVal))

	nullsLast, err := c.Compare(rowNull, rowVal, 0, CompareFlags{})
	require.NoError(t, err)
	require.Greater(t, nullsLast, 0, "default treats null as greater than any value")

	nullsFirst, err := c.Compare(rowNull, rowVal, 0, CompareFlags{NullsFirst: true})
	require.NoError(t, err)
	require.Less(t, nullsFirst, 0)
}
