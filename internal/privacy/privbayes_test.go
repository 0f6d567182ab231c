package privacy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/tabsynth/pkg/errors"
)

func TestCalculateKReturnsFallbackWhenUsefulEnough(t *testing.T) {
	// 10 attributes, 100000 rows: usefulness at k=3 is 100000*0.1/(7*64) > 4
	assert.Equal(t, 3, CalculateK(10, 100000, 4, 0.1, logrus.New()))
}

func TestCalculateKSolvesUsefulness(t *testing.T) {
	// usefulness(k) = 900 / ((10-k) * 2^(k+3)) crosses 4 near k = 1.77
	k := CalculateK(10, 900, 4, 1.0, logrus.New())
	assert.Equal(t, 2, k)
	assert.Less(t, Usefulness(float64(k), 10, 900, 4, 1.0), 4.0)
	assert.Greater(t, Usefulness(float64(k-1), 10, 900, 4, 1.0), 4.0)
}

func TestCalculateKFallsBackSilently(t *testing.T) {
	// epsilon 0 makes usefulness identically zero; no root exists.
	assert.Equal(t, 3, CalculateK(6, 50, 4, 0, nil))
}

func TestUsefulnessAtFullDegree(t *testing.T) {
	assert.Equal(t, 4.0, Usefulness(5, 5, 1000, 4, 0.1))
	assert.InDelta(t, 1000*0.1/(3*math.Pow(2, 5)), Usefulness(2, 5, 1000, 4, 0.1), 1e-12)
}

func TestSensitivity(t *testing.T) {
	n := 1000.0
	binary := math.Log(n)/n + (n-1)/n*math.Log(n/(n-1))
	general := 2/n*math.Log((n+1)/2) + (n-1)/n*math.Log((n+1)/(n-1))

	assert.InDelta(t, binary, Sensitivity(1000, true), 1e-15)
	assert.InDelta(t, general, Sensitivity(1000, false), 1e-15)
	assert.Greater(t, Sensitivity(10, false), Sensitivity(1000, false))

	assert.Equal(t, Sensitivity(1000, true), CandidateSensitivity(1000, 2, []int{5, 7}))
	assert.Equal(t, Sensitivity(1000, true), CandidateSensitivity(1000, 5, []int{2}))
	assert.Equal(t, Sensitivity(1000, false), CandidateSensitivity(1000, 5, []int{2, 2}))
}

func TestDeltaAndScales(t *testing.T) {
	assert.InDelta(t, 4*0.01/0.5, Delta(5, 0.01, 0.5), 1e-15)
	assert.InDelta(t, 2*3/(100*0.1), LaplaceScale(2, 5, 100, 0.1), 1e-12)
	assert.Equal(t, 0.0, LaplaceScale(2, 5, 100, 0))
	assert.InDelta(t, (2.0/100)/(0.1/4), AttributeNoiseScale(100, 4, 0.1), 1e-12)
}

func TestExponentialProbabilities(t *testing.T) {
	scores := []float64{0.1, 0.5, 0.3}
	deltas := []float64{0.05, 0.05, 0.1}

	p, err := ExponentialProbabilities(1, scores, deltas)
	require.NoError(t, err)
	assert.InDelta(t, 1, floats.Sum(p), 1e-12)

	e := []float64{math.Exp(0.1 / 0.1), math.Exp(0.5 / 0.1), math.Exp(0.3 / 0.2)}
	total := floats.Sum(e)
	for i := range e {
		assert.InDelta(t, e[i]/total, p[i], 1e-12)
	}
}

func TestExponentialProbabilitiesStableForHugeScores(t *testing.T) {
	p, err := ExponentialProbabilities(1, []float64{1e6, 1e6 - 1}, []float64{1e-3, 1e-3})
	require.NoError(t, err)
	assert.False(t, math.IsNaN(p[0]))
	assert.InDelta(t, 1, p[0], 1e-9)
}

func TestExponentialProbabilitiesValidation(t *testing.T) {
	_, err := ExponentialProbabilities(0, []float64{1}, []float64{1})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypePrivacy, errors.GetType(err))

	_, err = ExponentialProbabilities(1, []float64{1, 2}, []float64{1})
	assert.Error(t, err)

	_, err = ExponentialProbabilities(1, nil, nil)
	assert.Error(t, err)
}

func TestExponentialMechanismPrefersHighScores(t *testing.T) {
	em := NewExponentialMechanism(rand.New(rand.NewSource(1)))
	counts := make([]int, 2)
	for i := 0; i < 2000; i++ {
		idx, err := em.Select(1, []float64{1, 0}, []float64{0.1, 0.1})
		require.NoError(t, err)
		counts[idx]++
	}
	assert.Greater(t, counts[0], counts[1]*50)
}
