package spin

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Riqtu/hohma-sync/go/internal/models"
)

func TestPickElimination_NoItems(t *testing.T) {
	e := NewEngine()
	_, err := e.PickElimination(0, 0)
	assert.ErrorIs(t, err, ErrNoItems)
	_, err = e.PickElimination(-1, 0)
	assert.ErrorIs(t, err, ErrNoItems)
}

func TestPickElimination_TargetInsidePickedSlot(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(1))
	for n := 1; n <= 12; n++ {
		for i := 0; i < 50; i++ {
			pick, err := e.PickElimination(n, float64(i)*17.3)
			require.NoError(t, err)
			require.GreaterOrEqual(t, pick.Index, 0)
			require.Less(t, pick.Index, n)

			anglePer := 360.0 / float64(n)
			lo := float64(pick.Index) * anglePer
			assert.GreaterOrEqual(t, pick.TargetAngle, lo)
			assert.Less(t, pick.TargetAngle, lo+anglePer)
		}
	}
}

func TestPickElimination_DeltaIncludesFullRotations(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(7))
	for i := 0; i < 100; i++ {
		pick, err := e.PickElimination(8, float64(i)*91.0)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, pick.Delta, 360.0*ExtraRotations)
		assert.Less(t, pick.Delta, 360.0*(ExtraRotations+1))
	}
}

func TestPickElimination_FinalRotationLandsOnTarget(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(42))
	for _, start := range []float64{0, 123.4, -321, 7200.5} {
		pick, err := e.PickElimination(6, start)
		require.NoError(t, err)

		// the wheel turns clockwise; landing angle is the negated rotation
		landing := math.Mod(360-math.Mod(pick.Rotation, 360), 360)
		assert.InDelta(t, pick.TargetAngle, landing, 1e-6, "start %v", start)
	}
}

func TestPickElimination_RoughlyUniform(t *testing.T) {
	e := NewEngineWithSource(rand.NewSource(99))
	const n = 5
	const trials = 20000
	counts := make([]int, n)
	for i := 0; i < trials; i++ {
		pick, err := e.PickElimination(n, 0)
		require.NoError(t, err)
		counts[pick.Index]++
	}
	expected := float64(trials) / n
	for idx, c := range counts {
		assert.InDelta(t, expected, float64(c), expected*0.1, "index %d", idx)
	}
}

func TestApplyElimination(t *testing.T) {
	items := []models.Item{{ID: "a"}, {ID: "b"}, {ID: "c"}}
	eliminated := []models.Item{{ID: "z", Eliminated: true}}

	active, out, outcome, err := ApplyElimination(1, items, eliminated)
	require.NoError(t, err)

	assert.Equal(t, "b", outcome.Eliminated.ID)
	assert.False(t, outcome.Completed)
	require.Len(t, active, 2)
	assert.Equal(t, "a", active[0].ID)
	assert.Equal(t, "c", active[1].ID)
	require.Len(t, out, 2)
	assert.Equal(t, "b", out[0].ID, "newest elimination sits first")
	assert.True(t, out[0].Eliminated)

	// inputs untouched
	assert.Len(t, items, 3)
	assert.False(t, items[1].Eliminated)
	assert.Len(t, eliminated, 1)
}

func TestApplyElimination_LastTwoProducesWinner(t *testing.T) {
	items := []models.Item{{ID: "a"}, {ID: "b"}}

	active, out, outcome, err := ApplyElimination(0, items, nil)
	require.NoError(t, err)

	assert.True(t, outcome.Completed)
	require.NotNil(t, outcome.Winner)
	assert.Equal(t, "b", outcome.Winner.ID)
	require.Len(t, active, 1)
	assert.True(t, active[0].Winner)
	assert.Len(t, out, 1)
}

func TestApplyElimination_IndexOutOfRange(t *testing.T) {
	_, _, _, err := ApplyElimination(3, []models.Item{{ID: "a"}}, nil)
	assert.Error(t, err)
}

func TestItemDict_NeutralDefaults(t *testing.T) {
	dict := ItemDict(models.Item{ID: "s1", Label: "Dune"})

	assert.Equal(t, "s1", dict["id"])
	assert.Equal(t, "Dune", dict["label"])
	// every optional key is present with an explicit neutral value so the
	// receiving side never sees an absent field
	for _, key := range []string{"description", "pattern", "poster", "genre", "rating", "year", "labelColor", "wheelId", "userId"} {
		v, ok := dict[key]
		require.True(t, ok, key)
		assert.Equal(t, "", v, key)
	}
	assert.Equal(t, false, dict["eliminated"])
	assert.Equal(t, false, dict["winner"])
	assert.Equal(t, false, dict["labelHidden"])
}
