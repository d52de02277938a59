package rowcontainer

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestColumnStatsNullAndSizeInvariant(t *testing.T) {
	s := NewColumnStats()
	s.ObserveValue(4, nil)
	s.ObserveNull()
	s.ObserveValue(10, nil)
	s.ObserveNull()
	s.ObserveValue(6, nil)

	require.EqualValues(t, 2, s.NullCount())
	require.EqualValues(t, 3, s.NonNullCount())
	require.EqualValues(t, 20, s.SumBytes())

	minV, ok := s.MinBytes()
	require.True(t, ok)
	require.EqualValues(t, 4, minV)
	maxV, ok := s.MaxBytes()
	require.True(t, ok)
	require.EqualValues(t, 10, maxV)
}

func TestColumnStatsRemoveInvalidatesMinMaxAndNDV(t *testing.T) {
	s := NewColumnStats()
	s.ObserveValue(4, []byte("aaaa"))
	s.ObserveValue(8, []byte("bbbbbbbb"))

	_, ok := s.NDV()
	require.True(t, ok)

	s.RemoveValue(4)
	require.EqualValues(t, 1, s.NonNullCount())
	require.EqualValues(t, 8, s.SumBytes())

	_, sizeOK := s.MinBytes()
	require.False(t, sizeOK, "min/max must be invalidated on any removal")
	_, ndvOK := s.NDV()
	require.False(t, ndvOK, "NDV must be invalidated on any removal")
}

func TestColumnStatsResetRestoresFreshState(t *testing.T) {
	s := NewColumnStats()
	s.ObserveValue(4, nil)
	s.ObserveNull()
	s.RemoveValue(4)

	s.Reset()
	require.EqualValues(t, 0, s.NullCount())
	require.EqualValues(t, 0, s.NonNullCount())
	require.EqualValues(t, 0, s.SumBytes())
	_, sizeOK := s.MinBytes()
	require.False(t, sizeOK)
	_, ndvOK := s.NDV()
	require.True(t, ndvOK, "a freshly reset sketch is valid, just empty")
}

func TestColumnStatsMergeSumsCountsAndUnionsRange(t *testing.T) {
	a := NewColumnStats()
	a.ObserveValue(4, nil)
	a.ObserveNull()

	b := NewColumnStats()
	b.ObserveValue(20, nil)
	b.ObserveValue(2, nil)

	a.Merge(b)

	require.EqualValues(t, 1, a.NullCount())
	require.EqualValues(t, 3, a.NonNullCount())
	require.EqualValues(t, 26, a.SumBytes())

	minV, ok := a.MinBytes()
	require.True(t, ok)
	require.EqualValues(t, 2, minV)
	maxV, ok := a.MaxBytes()
	require.True(t, ok)
	require.EqualValues(t, 20, maxV)
}

func TestColumnStatsMergeInvalidSizeStaysInvalid(t *testing.T) {
	a := NewColumnStats()
	a.ObserveValue(4, nil)
	a.RemoveValue(4)

	b := NewColumnStats()
	b.ObserveValue(2, nil)

	a.Merge(b)

	_, ok := a.MinBytes()
	require.False(t, ok, "merging with an already-invalid side must stay invalid")
}
