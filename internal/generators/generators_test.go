package generators

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// testDescription describes b as an exact copy of a, a unique integer id and a
// float score with missing values.
func testDescription() *models.DatasetDescription {
	xy := []models.BinValue{models.StringBin("x"), models.StringBin("y")}
	return &models.DatasetDescription{
		Meta: models.Meta{
			NumTuples:         100,
			NumAttributes:     4,
			NumAttributesInBN: 2,
			AllAttributes:     []string{"id", "a", "b", "score"},
			CandidateKeys:     []string{"id"},
			AttributesInBN:    []string{"a", "b"},
		},
		AttributeDescription: map[string]*models.AttributeDescription{
			"id": {
				Name: "id", DataType: models.DataTypeInteger, IsCandidateKey: true,
				Min: 1, Max: 1000,
				DistributionBins:          []models.BinValue{models.NumberBin(1), models.NumberBin(500.5)},
				DistributionProbabilities: []float64{0.5, 0.5},
			},
			"a": {
				Name: "a", DataType: models.DataTypeString, IsCategorical: true,
				Min: 1, Max: 1,
				DistributionBins:          xy,
				DistributionProbabilities: []float64{0.5, 0.5},
			},
			"b": {
				Name: "b", DataType: models.DataTypeString, IsCategorical: true,
				Min: 1, Max: 1,
				DistributionBins:          xy,
				DistributionProbabilities: []float64{0.5, 0.5},
			},
			"score": {
				Name: "score", DataType: models.DataTypeFloat,
				Min: 0, Max: 10, MissingRate: 0.1,
				DistributionBins:          []models.BinValue{models.NumberBin(0), models.NumberBin(5)},
				DistributionProbabilities: []float64{0.2, 0.8},
			},
		},
		BayesianNetwork: models.BayesianNetwork{{Child: "b", Parents: []string{"a"}}},
		ConditionalProbabilities: map[string]*models.ConditionalTable{
			"a": models.NewRootTable([]float64{0.5, 0.5}),
			"b": {
				ParentCardinalities: []int{2},
				ChildCardinality:    2,
				Distributions:       [][]float64{{1, 0}, {0, 1}},
			},
		},
	}
}

func generate(t *testing.T, mode string, n int, seed int64, desc *models.DatasetDescription) *models.Table {
	t.Helper()
	generator, err := NewFactory(logrus.New()).CreateGenerator(mode)
	require.NoError(t, err)

	result, err := generator.Generate(context.Background(), &models.GenerationRequest{
		Mode:        mode,
		NumTuples:   n,
		Seed:        seed,
		Description: desc,
	})
	require.NoError(t, err)
	assert.Equal(t, mode, result.Mode)
	assert.NotEmpty(t, result.ID)
	require.Equal(t, n, result.Table.NumRows())
	return result.Table
}

func column(t *testing.T, table *models.Table, name string) *models.Column {
	t.Helper()
	c, ok := table.Column(name)
	require.True(t, ok, "column %q", name)
	return c
}

func TestFactoryModes(t *testing.T) {
	factory := NewGeneratorFactory()
	assert.Equal(t, []string{constants.ModeCorrelated, constants.ModeIndependent, constants.ModeRandom},
		factory.GetAvailableGenerators())
	assert.True(t, factory.IsSupported(constants.ModeCorrelated))

	_, err := factory.CreateGenerator("timegan")
	require.Error(t, err)
	assert.ErrorIs(t, err, errors.ErrGeneratorNotFound)

	assert.Error(t, factory.RegisterGenerator("", nil))
}

func TestCorrelatedGeneratorFollowsNetwork(t *testing.T) {
	table := generate(t, constants.ModeCorrelated, 500, 1, testDescription())

	assert.Equal(t, []string{"id", "a", "b", "score"}, table.Names())

	a := column(t, table, "a")
	b := column(t, table, "b")
	for i := range a.Values {
		assert.Equal(t, a.Values[i], b.Values[i], "row %d", i)
	}
	assert.True(t, *a.IsCategorical)

	seen := make(map[string]bool)
	for _, v := range column(t, table, "id").Values {
		assert.False(t, seen[v.Raw], "duplicate id %s", v.Raw)
		seen[v.Raw] = true
	}

	nulls := 0
	for _, v := range column(t, table, "score").Values {
		if v.Null {
			nulls++
			continue
		}
		x, err := strconv.ParseFloat(v.Raw, 64)
		require.NoError(t, err)
		assert.GreaterOrEqual(t, x, 0.0)
		assert.LessOrEqual(t, x, 10.0)
	}
	assert.InDelta(t, 50, nulls, 25)
}

func TestGenerationIsReproducible(t *testing.T) {
	for _, mode := range []string{constants.ModeRandom, constants.ModeIndependent, constants.ModeCorrelated} {
		first := generate(t, mode, 200, 42, testDescription())
		second := generate(t, mode, 200, 42, testDescription())
		assert.Equal(t, first, second, mode)
	}
}

func TestIndependentGeneratorBreaksCorrelation(t *testing.T) {
	table := generate(t, constants.ModeIndependent, 2000, 3, testDescription())

	a := column(t, table, "a")
	b := column(t, table, "b")
	mismatches := 0
	for i := range a.Values {
		if a.Values[i] != b.Values[i] {
			mismatches++
		}
	}
	assert.InDelta(t, 1000, mismatches, 150)
}

func TestRandomGeneratorHasNoMissingValues(t *testing.T) {
	table := generate(t, constants.ModeRandom, 1000, 4, testDescription())

	score := column(t, table, "score")
	assert.Zero(t, score.NullCount())

	high := 0
	for _, v := range score.Values {
		x, err := strconv.ParseFloat(v.Raw, 64)
		require.NoError(t, err)
		if x >= 5 {
			high++
		}
	}
	// Uniform over the two bins, not the described 0.2/0.8 split.
	assert.InDelta(t, 500, high, 100)
}

func TestCorrelatedGeneratorRequiresNetwork(t *testing.T) {
	desc := testDescription()
	desc.BayesianNetwork = nil
	desc.ConditionalProbabilities = nil

	generator := NewCorrelatedGenerator(nil)
	_, err := generator.Generate(context.Background(), &models.GenerationRequest{NumTuples: 10, Description: desc})
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeGeneration, errors.GetType(err))
}

func TestGeneratorValidatesRequest(t *testing.T) {
	generator := NewIndependentGenerator(nil)

	tests := []struct {
		name string
		req  *models.GenerationRequest
	}{
		{"nil request", nil},
		{"zero rows", &models.GenerationRequest{NumTuples: 0, Description: testDescription()}},
		{"too many rows", &models.GenerationRequest{NumTuples: constants.MaxGenerationSize + 1, Description: testDescription()}},
		{"no description", &models.GenerationRequest{NumTuples: 5}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := generator.ValidateRequest(tt.req)
			require.Error(t, err)
			assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))
		})
	}
}

func TestGeneratorHonoursCancellation(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := NewCorrelatedGenerator(nil).Generate(ctx, &models.GenerationRequest{NumTuples: 10, Description: testDescription()})
	require.Error(t, err)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestSamplerFallsBackToMarginal(t *testing.T) {
	desc := testDescription()
	// Every root draw lands on index 2, which b's table does not cover.
	desc.ConditionalProbabilities["a"] = models.NewRootTable([]float64{0, 0, 1})
	desc.AttributeDescription["b"].DistributionProbabilities = []float64{1, 0}

	encoded, err := NewSampler(nil).GenerateEncoded(context.Background(), rand.New(rand.NewSource(1)), 50, desc)
	require.NoError(t, err)

	for i := range encoded["a"] {
		assert.Equal(t, 2, encoded["a"][i])
		assert.Equal(t, 0, encoded["b"][i])
	}
}
