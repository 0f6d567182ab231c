package cpt

import (
	"math/rand"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

func testDataset(n int, seed int64) *models.EncodedDataset {
	rng := rand.New(rand.NewSource(seed))
	a := make([]int, n)
	b := make([]int, n)
	c := make([]int, n)
	for i := 0; i < n; i++ {
		a[i] = rng.Intn(3)
		b[i] = a[i] % 2
		c[i] = (a[i] + b[i] + rng.Intn(2)) % 4
	}
	return &models.EncodedDataset{
		Attributes:    []string{"a", "b", "c"},
		Columns:       [][]int{a, b, c},
		Cardinalities: []int{3, 2, 4},
	}
}

func testNetwork() models.BayesianNetwork {
	return models.BayesianNetwork{
		{Child: "b", Parents: []string{"a"}},
		{Child: "c", Parents: []string{"b", "a"}},
	}
}

func assertDistribution(t *testing.T, dist []float64) {
	t.Helper()
	sum := 0.0
	for _, p := range dist {
		assert.GreaterOrEqual(t, p, 0.0)
		sum += p
	}
	assert.InDelta(t, 1.0, sum, 1e-9)
}

func TestConstructRejectsEmptyNetwork(t *testing.T) {
	_, err := NewBuilder(logrus.New()).Construct(rand.New(rand.NewSource(1)), nil, testDataset(10, 1), 0.1)
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrInsufficientAttributes)
}

func TestConstructCoversEveryParentCombination(t *testing.T) {
	// 20 rows cannot cover every (b, a) pair; the table must still be complete.
	encoded := testDataset(20, 2)

	tables, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(3)), testNetwork(), encoded, 0.5)
	require.NoError(t, err)
	require.Len(t, tables, 3)

	root := tables["a"]
	require.True(t, root.IsRoot())
	assert.Len(t, root.Root(), 3)
	assertDistribution(t, root.Root())

	b := tables["b"]
	assert.Equal(t, []int{3}, b.ParentCardinalities)
	assert.Len(t, b.Distributions, 3)

	c := tables["c"]
	assert.Equal(t, []int{2, 3}, c.ParentCardinalities)
	assert.Equal(t, 4, c.ChildCardinality)
	require.Len(t, c.Distributions, 6)
	for _, dist := range append(b.Distributions, c.Distributions...) {
		assertDistribution(t, dist)
	}
}

func TestConstructWithoutNoiseMatchesEmpiricalConditionals(t *testing.T) {
	encoded := testDataset(3000, 4)

	tables, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(5)), testNetwork(), encoded, 0)
	require.NoError(t, err)

	// b = a mod 2 exactly.
	b := tables["b"]
	for a := 0; a < 3; a++ {
		dist, ok := b.Lookup([]int{a})
		require.True(t, ok)
		assert.InDelta(t, 1.0, dist[a%2], 1e-9)
	}

	counts := make([]float64, 3)
	for _, v := range encoded.Columns[0] {
		counts[v]++
	}
	for i, p := range tables["a"].Root() {
		assert.InDelta(t, counts[i]/3000, p, 1e-9)
	}

	// Unobserved combinations, such as b=1 with a=0, fall back to uniform.
	dist, ok := tables["c"].Lookup([]int{1, 0})
	require.True(t, ok)
	for _, p := range dist {
		assert.InDelta(t, 0.25, p, 1e-9)
	}
}

func TestConstructLargeEpsilonIsNearlyNoiseless(t *testing.T) {
	encoded := testDataset(5000, 6)

	exact, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(7)), testNetwork(), encoded, 0)
	require.NoError(t, err)
	noisy, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(7)), testNetwork(), encoded, 1e6)
	require.NoError(t, err)

	for name, table := range exact {
		for p, dist := range table.Distributions {
			for i, want := range dist {
				assert.InDelta(t, want, noisy[name].Distributions[p][i], 1e-3, "%s[%d][%d]", name, p, i)
			}
		}
	}
}

func TestConstructNoiseIsScaledToCounts(t *testing.T) {
	// With n=10000 and epsilon=1 the Laplace scale is 2e-4 per count, so
	// well-populated slices should barely move.
	encoded := testDataset(10000, 11)

	exact, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(12)), testNetwork(), encoded, 0)
	require.NoError(t, err)
	noisy, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(12)), testNetwork(), encoded, 1)
	require.NoError(t, err)

	assert.InDeltaSlice(t, exact["a"].Root(), noisy["a"].Root(), 1e-5)

	for a := 0; a < 3; a++ {
		want, ok := exact["b"].Lookup([]int{a})
		require.True(t, ok)
		got, ok := noisy["b"].Lookup([]int{a})
		require.True(t, ok)
		assert.InDeltaSlice(t, want, got, 1e-5, "b | a=%d", a)
	}

	// b = a mod 2, so these are the only observed (b, a) parents of c.
	for _, parents := range [][]int{{0, 0}, {1, 1}, {0, 2}} {
		want, ok := exact["c"].Lookup(parents)
		require.True(t, ok)
		got, ok := noisy["c"].Lookup(parents)
		require.True(t, ok)
		assert.InDeltaSlice(t, want, got, 1e-5, "c | %v", parents)
	}
}

func TestConstructTinyEpsilonApproachesUniform(t *testing.T) {
	encoded := testDataset(200, 8)

	const runs = 400
	mean := make([]float64, 3)
	for seed := int64(0); seed < runs; seed++ {
		tables, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(seed)), testNetwork(), encoded, 1e-6)
		require.NoError(t, err)
		for i, p := range tables["a"].Root() {
			mean[i] += p / runs
		}
	}
	for _, p := range mean {
		assert.InDelta(t, 1.0/3, p, 0.08)
	}
}

func TestConstructIsReproducible(t *testing.T) {
	encoded := testDataset(500, 9)

	first, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(10)), testNetwork(), encoded, 0.2)
	require.NoError(t, err)
	second, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(10)), testNetwork(), encoded, 0.2)
	require.NoError(t, err)

	assert.Equal(t, first, second)
}

func TestConstructRejectsUnknownAttribute(t *testing.T) {
	network := models.BayesianNetwork{{Child: "z", Parents: []string{"a"}}}
	_, err := NewBuilder(nil).Construct(rand.New(rand.NewSource(1)), network, testDataset(10, 1), 0.1)
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
}

func TestMarginalSumsOverDroppedAttributes(t *testing.T) {
	table := &jointTable{
		attrs: []int{0, 1},
		dims:  []int{2, 3},
		cells: []float64{1, 2, 3, 4, 5, 6},
	}

	m := table.marginal([]int{1})
	assert.Equal(t, []float64{5, 7, 9}, m.cells)

	swapped := table.marginal([]int{1, 0})
	assert.Equal(t, []int{3, 2}, swapped.dims)
	assert.Equal(t, []float64{1, 4, 2, 5, 3, 6}, swapped.cells)
}
