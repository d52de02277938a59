package rowcontainer

import (
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/daviszhen/rowcontainer/pkg/rcaccum"
	"github.com/daviszhen/rowcontainer/pkg/rctype"
)

func TestPlanLayoutDeterministic(t *testing.T) {
	keys := []rctype.Kind{rctype.Int32, rctype.Varchar}
	l1, err := PlanLayout(keys, true, nil, nil, false, false, true)
	require.NoError(t, err)
	l2, err := PlanLayout(keys, true, nil, nil, false, false, true)
	require.NoError(t, err)
	require.Equal(t, l1, l2)
}

func TestPlanLayoutAlignment(t *testing.T) {
	keys := []rctype.Kind{rctype.Int8}
	accs := rcaccum.Set{{Name: "sum", PayloadSize: 8, Alignment: 8}}
	l, err := PlanLayout(keys, false, accs, nil, false, false, false)
	require.NoError(t, err)
	require.True(t, isPowerOfTwo(l.Alignment))
	require.Equal(t, 0, l.AccumOffset(0)%accs[0].Alignment)
	require.Equal(t, 0, l.FixedRowSize%l.Alignment)
}

func TestPlanLayoutRejectsBadAccumulatorAlignment(t *testing.T) {
	accs := rcaccum.Set{{Name: "bad", PayloadSize: 4, Alignment: 3}}
	_, err := PlanLayout(nil, false, accs, nil, false, false, false)
	require.ErrorIs(t, err, ErrInvalidLayout)
}

func TestPlanLayoutFlagBitsDistinct(t *testing.T) {
	keys := []rctype.Kind{rctype.Int32, rctype.Int64}
	accs := rcaccum.Set{{Name: "cnt", PayloadSize: 8, Alignment: 8}}
	deps := []rctype.Kind{rctype.Int32}
	l, err := PlanLayout(keys, true, accs, deps, true, true, false)
	require.NoError(t, err)

	seen := map[int]bool{}
	add := func(bit int) {
		require.False(t, seen[bit], "bit %d reused", bit)
		seen[bit] = true
	}
	for _, b := range l.KeyNullOffsets {
		add(b)
	}
	for _, b := range l.AccumNullOffsets {
		add(b)
	}
	for _, b := range l.AccumInitOffsets {
		add(b)
	}
	for _, b := range l.DependentNullOffsets {
		add(b)
	}
	add(l.ProbedFlagOffset)
	add(l.FreeFlagOffset)
}

func TestPlanLayoutNormalizedKeySize(t *testing.T) {
	l, err := PlanLayout([]rctype.Kind{rctype.Int32}, false, nil, nil, false, false, true)
	require.NoError(t, err)
	require.Equal(t, 8, l.OriginalNormalizedKeySize)

	l2, err := PlanLayout([]rctype.Kind{rctype.Int32}, false, nil, nil, false, false, false)
	require.NoError(t, err)
	require.Equal(t, 0, l2.OriginalNormalizedKeySize)
}

func TestPlanLayoutRowSizeTrackerPresenceFollowsVariability(t *testing.T) {
	fixed, err := PlanLayout([]rctype.Kind{rctype.Int32}, false, nil, nil, false, false, false)
	require.NoError(t, err)
	require.Equal(t, 0, fixed.RowSizeOffset)

	varying, err := PlanLayout([]rctype.Kind{rctype.Varchar}, false, nil, nil, false, false, false)
	require.NoError(t, err)
	require.NotZero(t, varying.RowSizeOffset)
}
