package models

import (
	"encoding/json"
	stderrors "errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/inferloop/tabsynth/pkg/errors"
)

func TestTableValidate(t *testing.T) {
	table := &Table{Columns: []Column{
		{Name: "age", DataType: DataTypeInteger, Values: []Value{StringValue("1"), NullValue()}},
		{Name: "sex", DataType: DataTypeString, Values: []Value{StringValue("F")}},
	}}

	err := table.Validate()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrColumnLengthMismatch))

	table.Columns[1].Values = append(table.Columns[1].Values, StringValue("M"))
	assert.NoError(t, table.Validate())
	assert.Equal(t, 2, table.NumRows())
	assert.Equal(t, 1, table.Columns[0].NullCount())

	table.Columns[1].DataType = "Text"
	err = table.Validate()
	require.Error(t, err)
	assert.True(t, stderrors.Is(err, errors.ErrUnknownDataType))
}

func TestValueJSON(t *testing.T) {
	var values []Value
	require.NoError(t, json.Unmarshal([]byte(`["a", 3.5, null, true]`), &values))
	assert.Equal(t, []Value{StringValue("a"), StringValue("3.5"), NullValue(), StringValue("true")}, values)

	data, err := json.Marshal(values[:3])
	require.NoError(t, err)
	assert.JSONEq(t, `["a","3.5",null]`, string(data))
}

func TestEdgeJSON(t *testing.T) {
	bn := BayesianNetwork{
		{Child: "b", Parents: []string{"a"}},
		{Child: "c", Parents: []string{"b", "a"}},
	}
	data, err := json.Marshal(bn)
	require.NoError(t, err)
	assert.JSONEq(t, `[["b",["a"]],["c",["b","a"]]]`, string(data))

	var decoded BayesianNetwork
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, bn, decoded)

	assert.Equal(t, "a", decoded.Root())
	assert.Equal(t, 2, decoded.Degree())
	assert.Equal(t, []string{"a", "b", "c"}, decoded.SamplingOrder())

	assert.Error(t, json.Unmarshal([]byte(`[["b"]]`), &decoded))
}

func TestBayesianNetworkValidate(t *testing.T) {
	valid := BayesianNetwork{{Child: "b", Parents: []string{"a"}}, {Child: "c", Parents: []string{"a", "b"}}}
	assert.NoError(t, valid.Validate())

	outOfOrder := BayesianNetwork{{Child: "b", Parents: []string{"a"}}, {Child: "c", Parents: []string{"d"}}}
	assert.Error(t, outOfOrder.Validate())

	repeated := BayesianNetwork{{Child: "b", Parents: []string{"a"}}, {Child: "a", Parents: []string{"b"}}}
	assert.Error(t, repeated.Validate())
}

func TestConditionalTableJSON(t *testing.T) {
	table := &ConditionalTable{
		ParentCardinalities: []int{2, 3},
		ChildCardinality:    2,
		Distributions: [][]float64{
			{0.1, 0.9}, {0.2, 0.8}, {0.3, 0.7},
			{0.4, 0.6}, {0.5, 0.5}, {0.6, 0.4},
		},
	}

	data, err := json.Marshal(table)
	require.NoError(t, err)

	var keyed map[string][]float64
	require.NoError(t, json.Unmarshal(data, &keyed))
	assert.Len(t, keyed, 6)
	assert.Equal(t, []float64{0.3, 0.7}, keyed["[0, 2]"])
	assert.Equal(t, []float64{0.4, 0.6}, keyed["[1, 0]"])

	var decoded ConditionalTable
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, *table, decoded)

	dist, ok := decoded.Lookup([]int{1, 2})
	require.True(t, ok)
	assert.Equal(t, []float64{0.6, 0.4}, dist)

	_, ok = decoded.Lookup([]int{2, 0})
	assert.False(t, ok)
}

func TestConditionalTableRootJSON(t *testing.T) {
	var decoded ConditionalTable
	require.NoError(t, json.Unmarshal([]byte(`[0.25, 0.75]`), &decoded))
	assert.True(t, decoded.IsRoot())
	assert.Equal(t, []float64{0.25, 0.75}, decoded.Root())

	data, err := json.Marshal(decoded)
	require.NoError(t, err)
	assert.JSONEq(t, `[0.25, 0.75]`, string(data))
}

func TestConditionalTableRejectsIncompleteProduct(t *testing.T) {
	var decoded ConditionalTable
	err := json.Unmarshal([]byte(`{"[0]": [1.0, 0.0], "[2]": [0.5, 0.5]}`), &decoded)
	assert.Error(t, err)

	err = json.Unmarshal([]byte(`{"[0]": [1.0, 0.0], "[1]": [0.5]}`), &decoded)
	assert.Error(t, err)
}

func TestBinValueJSON(t *testing.T) {
	var bins []BinValue
	require.NoError(t, json.Unmarshal([]byte(`[1.5, "x", 3]`), &bins))
	assert.Equal(t, []BinValue{NumberBin(1.5), StringBin("x"), NumberBin(3)}, bins)
	assert.Equal(t, "1.5", bins[0].String())
}

func TestDatasetDescriptionValidate(t *testing.T) {
	desc := &DatasetDescription{
		Meta: Meta{AllAttributes: []string{"a", "b"}, AttributesInBN: []string{"a", "b"}},
		AttributeDescription: map[string]*AttributeDescription{
			"a": {Name: "a", DataType: DataTypeString, IsCategorical: true,
				DistributionBins:          []BinValue{StringBin("x"), StringBin("y")},
				DistributionProbabilities: []float64{0.5, 0.5}},
			"b": {Name: "b", DataType: DataTypeInteger, IsCategorical: true,
				DistributionBins:          []BinValue{NumberBin(0), NumberBin(1)},
				DistributionProbabilities: []float64{0.3, 0.7}},
		},
		BayesianNetwork: BayesianNetwork{{Child: "b", Parents: []string{"a"}}},
		ConditionalProbabilities: map[string]*ConditionalTable{
			"a": NewRootTable([]float64{0.5, 0.5}),
			"b": {ParentCardinalities: []int{2}, ChildCardinality: 2,
				Distributions: [][]float64{{0.2, 0.8}, {0.4, 0.6}}},
		},
	}
	require.NoError(t, desc.Validate())

	desc.AttributeDescription["b"].DistributionProbabilities = []float64{1}
	err := desc.Validate()
	require.Error(t, err)
	assert.Equal(t, errors.ErrorTypeValidation, errors.GetType(err))

	desc.AttributeDescription["b"].DistributionProbabilities = []float64{0.3, 0.7}
	delete(desc.ConditionalProbabilities, "b")
	assert.Error(t, desc.Validate())
}

func TestValidateDescriptionID(t *testing.T) {
	for _, id := range []string{"adult", "3f2b6c1e-8a4d-4f0e-9c7a-1d2e3f4a5b6c", "census_2020.v1"} {
		assert.NoError(t, ValidateDescriptionID(id), id)
	}
	for _, id := range []string{"", "../etc/passwd", "a/b", ".hidden", "with space"} {
		assert.Error(t, ValidateDescriptionID(id), id)
	}
}
