package inspect

import (
	"context"
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/internal/describer"
	"github.com/inferloop/tabsynth/internal/generators"
	"github.com/inferloop/tabsynth/pkg/models"
)

func values(raw ...string) []models.Value {
	out := make([]models.Value, len(raw))
	for i, r := range raw {
		out[i] = models.StringValue(r)
	}
	return out
}

func singleColumn(name string, dt models.DataType, raw ...string) *models.Table {
	return &models.Table{Columns: []models.Column{{Name: name, DataType: dt, Values: values(raw...)}}}
}

func describeOne(attr *models.AttributeDescription) *models.DatasetDescription {
	return &models.DatasetDescription{
		Meta: models.Meta{
			NumAttributes:                  1,
			AllAttributes:                  []string{attr.Name},
			CandidateKeys:                  []string{},
			NonCategoricalStringAttributes: []string{},
			AttributesInBN:                 []string{attr.Name},
		},
		AttributeDescription: map[string]*models.AttributeDescription{attr.Name: attr},
	}
}

func TestCompareCategoricalAttribute(t *testing.T) {
	desc := describeOne(&models.AttributeDescription{
		Name:                      "color",
		DataType:                  models.DataTypeString,
		IsCategorical:             true,
		DistributionBins:          []models.BinValue{models.StringBin("red"), models.StringBin("blue")},
		DistributionProbabilities: []float64{0.5, 0.5},
	})
	private := singleColumn("color", models.DataTypeString, "red", "red", "blue", "blue")
	synthetic := &models.Table{Columns: []models.Column{{
		Name:     "color",
		DataType: models.DataTypeString,
		Values:   append(values("red", "red", "red"), models.NullValue()),
	}}}

	cmp, err := NewInspector(nil).CompareAttribute("color", private, synthetic, desc)
	require.NoError(t, err)

	assert.Equal(t, KindCategorical, cmp.Kind)
	assert.InDelta(t, 0.5, cmp.TotalVariation, 1e-12)
	assert.Greater(t, cmp.KLDivergence, 0.0)
	assert.Equal(t, 0.0, cmp.PrivateMissingRate)
	assert.Equal(t, 0.25, cmp.SyntheticMissingRate)
}

func TestCompareNumericalAttribute(t *testing.T) {
	desc := describeOne(&models.AttributeDescription{
		Name:                      "age",
		DataType:                  models.DataTypeInteger,
		Min:                       0,
		Max:                       20,
		DistributionBins:          []models.BinValue{models.NumberBin(0), models.NumberBin(10)},
		DistributionProbabilities: []float64{0.5, 0.5},
	})
	private := singleColumn("age", models.DataTypeInteger, "1", "2", "3", "4")

	same, err := NewInspector(nil).CompareAttribute("age", private,
		singleColumn("age", models.DataTypeInteger, "4", "3", "2", "1"), desc)
	require.NoError(t, err)
	assert.Equal(t, KindNumerical, same.Kind)
	assert.Equal(t, 0.0, same.KolmogorovSmirnov)

	shifted, err := NewInspector(nil).CompareAttribute("age", private,
		singleColumn("age", models.DataTypeInteger, "11", "12", "13", "14"), desc)
	require.NoError(t, err)
	assert.Equal(t, 1.0, shifted.KolmogorovSmirnov)
}

func TestCompareAttributeErrors(t *testing.T) {
	desc := describeOne(&models.AttributeDescription{
		Name:                      "age",
		DataType:                  models.DataTypeInteger,
		DistributionBins:          []models.BinValue{models.NumberBin(0)},
		DistributionProbabilities: []float64{1},
	})
	table := singleColumn("age", models.DataTypeInteger, "1")

	_, err := NewInspector(nil).CompareAttribute("height", table, table, desc)
	assert.Error(t, err)

	_, err = NewInspector(nil).CompareAttribute("age", table, singleColumn("other", models.DataTypeInteger, "1"), desc)
	assert.Error(t, err)

	_, err = NewInspector(nil).CompareAttribute("age", table, singleColumn("age", models.DataTypeInteger, "abc"), desc)
	assert.Error(t, err)
}

func TestKolmogorovSmirnovEmptySamples(t *testing.T) {
	assert.Equal(t, 0.0, kolmogorovSmirnov(nil, nil))
	assert.Equal(t, 1.0, kolmogorovSmirnov([]float64{1}, nil))
}

// surveyTable has a unique id, a free-text note, a correlated pair A/B and a float score.
func surveyTable(n int, seed int64) *models.Table {
	rng := rand.New(rand.NewSource(seed))
	cols := make([][]models.Value, 5)
	for i := 0; i < n; i++ {
		a := rng.Intn(2)
		b := a
		if rng.Float64() < 0.1 {
			b = 1 - a
		}
		cols[0] = append(cols[0], models.StringValue(strconv.Itoa(i)))
		cols[1] = append(cols[1], models.StringValue("note"+strconv.Itoa(rng.Intn(40))))
		cols[2] = append(cols[2], models.StringValue([]string{"x", "y"}[a]))
		cols[3] = append(cols[3], models.StringValue(strconv.Itoa(b)))
		cols[4] = append(cols[4], models.StringValue(strconv.FormatFloat(rng.Float64()*50, 'f', 2, 64)))
	}
	cols[4][n-1] = cols[4][0]
	return &models.Table{Columns: []models.Column{
		{Name: "id", DataType: models.DataTypeInteger, Values: cols[0]},
		{Name: "note", DataType: models.DataTypeString, Values: cols[1]},
		{Name: "A", DataType: models.DataTypeString, Values: cols[2]},
		{Name: "B", DataType: models.DataTypeInteger, Values: cols[3]},
		{Name: "score", DataType: models.DataTypeFloat, Values: cols[4]},
	}}
}

func TestReportOnNoiselessSynthesis(t *testing.T) {
	private := surveyTable(2000, 1)

	cfg := describer.DefaultConfig()
	cfg.CategoryThreshold = 10
	cfg.Epsilon = 0
	cfg.K = 1
	d, err := describer.New(cfg, nil, nil)
	require.NoError(t, err)
	described, err := d.DescribeCorrelated(context.Background(), private)
	require.NoError(t, err)

	generated, err := generators.NewCorrelatedGenerator(nil).Generate(context.Background(), &models.GenerationRequest{
		NumTuples:   2000,
		Seed:        2,
		Description: described.Description,
	})
	require.NoError(t, err)

	report, err := NewInspector(nil).Report(context.Background(), private, generated.Table, described.Description)
	require.NoError(t, err)

	assert.ElementsMatch(t, []string{"id", "note"}, report.Skipped)
	require.Len(t, report.Attributes, 3)
	for _, cmp := range report.Attributes {
		switch cmp.Kind {
		case KindCategorical:
			assert.Less(t, cmp.TotalVariation, 0.05, cmp.Attribute)
		case KindNumerical:
			assert.Less(t, cmp.KolmogorovSmirnov, 0.1, cmp.Attribute)
		}
	}

	privateAB, ok := report.PrivateMI.At("A", "B")
	require.True(t, ok)
	syntheticAB, _ := report.SyntheticMI.At("A", "B")
	assert.Greater(t, privateAB, 0.3)
	assert.InDelta(t, privateAB, syntheticAB, 0.05)
	assert.Less(t, report.MaxMIDifference, 0.1)

	for i := range report.PrivateMI.Attributes {
		assert.InDelta(t, 1.0, report.PrivateMI.Values[i][i], 1e-9)
		for j := range report.PrivateMI.Attributes {
			assert.Equal(t, report.PrivateMI.Values[i][j], report.PrivateMI.Values[j][i])
		}
	}
}

func TestReportRejectsInvalidDescription(t *testing.T) {
	table := singleColumn("a", models.DataTypeInteger, "1")
	_, err := NewInspector(nil).Report(context.Background(), table, table, &models.DatasetDescription{})
	assert.Error(t, err)
}
