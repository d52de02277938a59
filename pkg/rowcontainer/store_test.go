package rowcontainer

import (
	"testing"
	"unsafe"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowcontainer/pkg/rcarena"
	"github.com/daviszhen/rowcontainer/pkg/rcheap"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	layout, err := PlanLayout(
		[]rctype.Kind{rctype.Int64},
		false,
		nil,
		nil,
		false,
		false,
		false,
	)
	require.NoError(t, err)
	arena := rcarena.NewSlabArena(4096)
	heap := rcheap.NewArenaHeap(4096)
	return NewStore(layout, arena, heap)
}

func TestStoreFreeListRoundTrip(t *testing.T) {
	s := newTestStore(t)

	rows := make([]unsafe.Pointer, 5)
	for i := range rows {
		row, err := s.NewRow()
		require.NoError(t, err)
		rows[i] = row
	}
	require.Equal(t, 5, s.NumRows())
	require.Equal(t, 0, s.NumFreeRows())

	require.NoError(t, s.EraseRows([]unsafe.Pointer{rows[1], rows[3]}))
	require.Equal(t, 3, s.NumRows())
	require.Equal(t, 2, s.NumFreeRows())
	require.True(t, bitGet(rows[1], s.layout.FreeFlagOffset))
	require.True(t, bitGet(rows[3], s.layout.FreeFlagOffset))

	reused1, err := s.NewRow()
	require.NoError(t, err)
	reused2, err := s.NewRow()
	require.NoError(t, err)
	require.Equal(t, 5, s.NumRows())
	require.Equal(t, 0, s.NumFreeRows())
	require.False(t, bitGet(reused1, s.layout.FreeFlagOffset))
	require.False(t, bitGet(reused2, s.layout.FreeFlagOffset))

	require.Contains(t, []unsafe.Pointer{rows[1], rows[3]}, reused1)
	require.Contains(t, []unsafe.Pointer{rows[1], rows[3]}, reused2)
}

func TestStoreEraseTwiceReturnsDoubleFree(t *testing.T) {
	s := newTestStore(t)

	row, err := s.NewRow()
	require.NoError(t, err)
	require.NoError(t, s.EraseRows([]unsafe.Pointer{row}))
	err = s.EraseRows([]unsafe.Pointer{row})
	require.ErrorIs(t, err, ErrDoubleFree)
}

func TestStoreNewRowAfterFreezeFails(t *testing.T) {
	s := newTestStore(t)
	s.Freeze()
	_, err := s.NewRow()
	require.ErrorIs(t, err, ErrFrozenContainer)
}

func TestStoreEraseAfterFreezeFails(t *testing.T) {
	s := newTestStore(t)
	row, err := s.NewRow()
	require.NoError(t, err)
	s.Freeze()
	err = s.EraseRows([]unsafe.Pointer{row})
	require.ErrorIs(t, err, ErrFrozenContainer)
}

func TestStoreFindRowsRejectsStaleAndForeignAddresses(t *testing.T) {
	s := newTestStore(t)

	rows := make([]unsafe.Pointer, 4)
	for i := range rows {
		row, err := s.NewRow()
		require.NoError(t, err)
		rows[i] = row
	}
	require.NoError(t, s.EraseRows([]unsafe.Pointer{rows[2]}))

	var foreign int64 = 42
	candidates := []unsafe.Pointer{rows[0], rows[2], rows[1], unsafe.Pointer(&foreign), rows[3]}
	n := s.FindRows(candidates)
	require.Equal(t, 3, n)
	require.ElementsMatch(t, []unsafe.Pointer{rows[0], rows[1], rows[3]}, candidates[:n])
}

func TestStoreClearResetsCounters(t *testing.T) {
	s := newTestStore(t)
	for i := 0; i < 10; i++ {
		_, err := s.NewRow()
		require.NoError(t, err)
	}
	require.NoError(t, s.EraseRows([]unsafe.Pointer{}))
	s.Clear(nil)
	require.Equal(t, 0, s.NumRows())
	require.Equal(t, 0, s.NumFreeRows())
	require.Equal(t, 0, s.NumRowsWithNormalizedKey())

	row, err := s.NewRow()
	require.NoError(t, err)
	require.Equal(t, 1, s.NumRows())
	require.NotNil(t, row)
}
