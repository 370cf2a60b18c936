package services

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/mat"
)

func unitVector(dims, hot int) []float64 {
	x := make([]float64, dims)
	x[hot] = 1
	return x
}

func TestLinUCBModel_FreshModelScoresUniformly(t *testing.T) {
	m := NewLinUCBModel(26, 0.01)

	// With A = (1+λ)·I and b = 0, θ = 0 and every unit vector has
	// width 1/√(1+λ).
	ucb, base, width, err := m.Score(unitVector(26, 3), 1.0, 0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.0, base)
	assert.InDelta(t, 1/math.Sqrt(1.01), width, 1e-12)
	assert.InDelta(t, 1/math.Sqrt(1.01), ucb, 1e-12)

	ucb2, _, _, err := m.Score(unitVector(26, 17), 1.0, 0.01)
	require.NoError(t, err)
	assert.InDelta(t, ucb, ucb2, 1e-12)
}

func TestLinUCBModel_UpdateShiftsPreference(t *testing.T) {
	m := NewLinUCBModel(26, 0.01)
	x := unitVector(26, 5)

	require.NoError(t, m.Update(x, 2.0))

	ucbLiked, baseLiked, widthLiked, err := m.Score(x, 1.0, 0.01)
	require.NoError(t, err)
	_, baseOther, widthOther, err := m.Score(unitVector(26, 6), 1.0, 0.01)
	require.NoError(t, err)

	assert.Greater(t, baseLiked, baseOther, "positive reward should raise the expected reward")
	assert.Less(t, widthLiked, widthOther, "observed direction should have a tighter confidence width")
	assert.Greater(t, ucbLiked, 0.0)

	// A negative reward pushes the estimate below zero.
	m2 := NewLinUCBModel(26, 0.01)
	require.NoError(t, m2.Update(x, -1.0))
	_, baseDisliked, _, err := m2.Score(x, 1.0, 0.01)
	require.NoError(t, err)
	assert.Negative(t, baseDisliked)
}

func TestLinUCBModel_ReplayMatchesIncremental(t *testing.T) {
	incremental := NewLinUCBModel(26, 0.01)
	observations := []struct {
		hot    int
		reward float64
	}{
		{0, 2.0}, {5, 1.0}, {13, -1.0}, {0, 2.0}, {21, 0.0}, {5, -1.0}, {8, 1.0},
	}
	for _, obs := range observations {
		require.NoError(t, incremental.Update(unitVector(26, obs.hot), obs.reward))
	}

	replayed := NewLinUCBModel(26, 0.01)
	for _, obs := range observations {
		require.NoError(t, replayed.Update(unitVector(26, obs.hot), obs.reward))
	}

	thetaA, err := incremental.Theta(0.01)
	require.NoError(t, err)
	thetaB, err := replayed.Theta(0.01)
	require.NoError(t, err)
	for i := range thetaA {
		assert.InDelta(t, thetaA[i], thetaB[i], 1e-9)
	}

	for hot := 0; hot < 26; hot++ {
		a, _, _, err := incremental.Score(unitVector(26, hot), 0.7, 0.01)
		require.NoError(t, err)
		b, _, _, err := replayed.Score(unitVector(26, hot), 0.7, 0.01)
		require.NoError(t, err)
		assert.InDelta(t, a, b, 1e-9)
	}
}

func TestLinUCBModel_DimensionMismatch(t *testing.T) {
	m := NewLinUCBModel(26, 0.01)
	assert.Error(t, m.Update(make([]float64, 10), 1.0))
	_, _, _, err := m.Score(make([]float64, 27), 1.0, 0.01)
	assert.Error(t, err)
}

func TestLinUCBModel_RegularizationLadder(t *testing.T) {
	m := NewLinUCBModel(4, 0.01)
	// Zero out A so the first inversion attempt fails.
	m.a = mat.NewDense(4, 4, nil)

	t.Run("ridge retry succeeds", func(t *testing.T) {
		_, _, width, err := m.Score(unitVector(4, 0), 1.0, 0.01)
		require.NoError(t, err)
		// (A + 0.01·I)⁻¹ has 100 on the diagonal, so width = 10.
		assert.InDelta(t, 10.0, width, 1e-9)
	})

	t.Run("no ridge available", func(t *testing.T) {
		m2 := NewLinUCBModel(4, 0)
		m2.a = mat.NewDense(4, 4, nil)
		_, _, _, err := m2.Score(unitVector(4, 0), 1.0, 0)
		assert.ErrorIs(t, err, ErrSingularModel)
	})
}

func TestLinUCBModel_ThetaNorm(t *testing.T) {
	m := NewLinUCBModel(26, 0.01)
	norm, err := m.ThetaNorm(0.01)
	require.NoError(t, err)
	assert.Equal(t, 0.0, norm)

	require.NoError(t, m.Update(unitVector(26, 2), 2.0))
	norm, err = m.ThetaNorm(0.01)
	require.NoError(t, err)
	// One observation of reward 2 on a unit vector: θ = 2/2.01 on that slot.
	assert.InDelta(t, 2.0/2.01, norm, 1e-9)
	assert.False(t, math.IsNaN(norm))
}

func TestLinUCBModel_AppliedCount(t *testing.T) {
	m := NewLinUCBModel(26, 0.01)
	assert.Equal(t, 0, m.Applied())
	require.NoError(t, m.Update(unitVector(26, 0), 1.0))
	require.NoError(t, m.Update(unitVector(26, 1), 1.0))
	assert.Equal(t, 2, m.Applied())
	assert.Equal(t, 26, m.Dims())
}
