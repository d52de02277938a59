package rowcontainer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowcontainer/pkg/rctype"
	"github.com/daviszhen/rowcontainer/pkg/rcvector"
)

// TestListPartitionRowsUnionCoversEveryRowExactlyOnce is Testable
// Property 8: the union over all partition ids returns each live row
// exactly once, and each partition's own rows come back in insertion
// order.
func TestListPartitionRowsUnionCoversEveryRowExactlyOnce(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rctype.Fixed(rctype.Int32)},
	})

	const n = 137
	rows := make([]unsafe.Pointer, n)
	for i := 0; i < n; i++ {
		row, err := c.NewRow()
		require.NoError(t, err)
		vec := rcvector.NewFlatVector(rctype.Int32, 1)
		vec.SetInt32(0, int32(i))
		require.NoError(t, c.StoreOne(0, vec, 0, row))
		rows[i] = row
	}

	partitions := c.CreateRowPartitions()
	ids := make([]byte, n)
	for i := range ids {
		ids[i] = byte(i % 5)
	}
	require.NoError(t, partitions.AppendPartitions(ids))

	seenCount := make(map[unsafe.Pointer]int)
	for p := byte(0); p < 5; p++ {
		it := c.NewIterator()
		out := make([]unsafe.Pointer, 16)
		var perPartition []unsafe.Pointer
		for {
			got := c.ListPartitionRows(it, partitions, p, out)
			if got == 0 {
				break
			}
			perPartition = append(perPartition, out[:got]...)
		}
		var expected []unsafe.Pointer
		for i, row := range rows {
			if byte(i%5) == p {
				expected = append(expected, row)
			}
		}
		require.Equal(t, expected, perPartition, "partition %d must preserve insertion order", p)
		for _, row := range perPartition {
			seenCount[row]++
		}
	}

	require.Len(t, seenCount, n)
	for _, row := range rows {
		require.Equal(t, 1, seenCount[row], "every row must appear in exactly one partition's output")
	}
}

// TestListPartitionRowsScenarioECounts pins the exact Scenario E
// numeric expectations: 1000 rows partitioned by i%4, draining
// partition 2 in bounded batches yields exactly 250 rows total.
func TestListPartitionRowsScenarioECounts(t *testing.T) {
	c := newTestContainer(t, Params{
		KeyTypes: []rctype.ColumnType{rctype.Fixed(rctype.Int32)},
	})

	const n = 1000
	for i := 0; i < n; i++ {
		row, err := c.NewRow()
		require.NoError(t, err)
		vec := rcvector.NewFlatVector(rctype.Int32, 1)
		vec.SetInt32(0, int32(i))
		require.NoError(t, c.StoreOne(0, vec, 0, row))
	}

	partitions := c.CreateRowPartitions()
	ids := make([]byte, n)
	for i := range ids {
		ids[i] = byte(i % 4)
	}
	require.NoError(t, partitions.AppendPartitions(ids))

	it := c.NewIterator()
	out := make([]unsafe.Pointer, 100)
	total := 0
	batches := 0
	for {
		got := c.ListPartitionRows(it, partitions, 2, out)
		if got == 0 {
			break
		}
		total += got
		batches++
	}
	require.Equal(t, 250, total)
	require.Equal(t, 3, batches)
}
