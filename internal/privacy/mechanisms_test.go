package privacy

import (
	"math"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gonum.org/v1/gonum/stat"
)

func TestLaplaceMechanismDistribution(t *testing.T) {
	lm := NewLaplaceMechanism(rand.New(rand.NewSource(11)))
	assert.Equal(t, "laplace", lm.GetName())

	samples := lm.AddNoise(make([]float64, 50000), 2)
	mean := stat.Mean(samples, nil)
	variance := stat.Variance(samples, nil)

	assert.InDelta(t, 0, mean, 0.05)
	// Var(Laplace(0, b)) = 2b^2
	assert.InDelta(t, 8, variance, 0.4)
}

func TestLaplaceMechanismReproducible(t *testing.T) {
	a := NewLaplaceMechanism(rand.New(rand.NewSource(5))).AddNoise([]float64{1, 2, 3}, 0.5)
	b := NewLaplaceMechanism(rand.New(rand.NewSource(5))).AddNoise([]float64{1, 2, 3}, 0.5)
	assert.Equal(t, a, b)
}

func TestLaplaceMechanismZeroScale(t *testing.T) {
	lm := NewLaplaceMechanism(nil)
	values := []float64{0.2, 0.8}
	noisy := lm.AddNoise(values, 0)
	assert.Equal(t, values, noisy)

	assert.Equal(t, 0.0, lm.Sample(math.Inf(1)))
	assert.Equal(t, 0.0, lm.CalculateNoiseScale(1, 0))
	assert.Equal(t, 0.5, lm.CalculateNoiseScale(1, 2))
}

func TestBudgetLedger(t *testing.T) {
	ledger := NewBudgetLedger()
	ledger.Spend("attribute_distributions", "laplace", 0.1, 100)
	ledger.Spend("network_structure", "exponential", 0.1, 100)
	ledger.Spend("conditional_distributions", "laplace", 0.1, 100)
	ledger.Spend("ignored", "laplace", 0, 100)

	require.Len(t, ledger.Transactions(), 3)
	assert.InDelta(t, 0.3, ledger.Total(), 1e-12)
	assert.InDelta(t, 0.1, ledger.SpentBy("network_structure"), 1e-12)
	assert.NotEmpty(t, ledger.Transactions()[0].ID)
}
