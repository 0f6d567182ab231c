package models

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"regexp"
	"strconv"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// BinValue is a histogram left edge or a categorical value. Categorical string and
// datetime bins keep their raw text; every other bin is numeric.
type BinValue struct {
	Num      float64
	Str      string
	IsString bool
}

// NumberBin returns a numeric bin.
func NumberBin(v float64) BinValue {
	return BinValue{Num: v}
}

// StringBin returns a textual bin.
func StringBin(s string) BinValue {
	return BinValue{Str: s, IsString: true}
}

// String renders the bin for logs and CSV output.
func (b BinValue) String() string {
	if b.IsString {
		return b.Str
	}
	return strconv.FormatFloat(b.Num, 'f', -1, 64)
}

// MarshalJSON writes a JSON string or number.
func (b BinValue) MarshalJSON() ([]byte, error) {
	if b.IsString {
		return json.Marshal(b.Str)
	}
	return json.Marshal(b.Num)
}

// UnmarshalJSON reads a JSON string or number.
func (b *BinValue) UnmarshalJSON(data []byte) error {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		var s string
		if err := json.Unmarshal(trimmed, &s); err != nil {
			return err
		}
		*b = StringBin(s)
		return nil
	}
	var v float64
	if err := json.Unmarshal(trimmed, &v); err != nil {
		return fmt.Errorf("bin value must be a number or a string: %w", err)
	}
	*b = NumberBin(v)
	return nil
}

// AttributeDescription is the serialized form of a modeled attribute.
type AttributeDescription struct {
	Name                      string     `json:"name"`
	DataType                  DataType   `json:"data_type"`
	IsCategorical             bool       `json:"is_categorical"`
	IsCandidateKey            bool       `json:"is_candidate_key"`
	Min                       float64    `json:"min"`
	Max                       float64    `json:"max"`
	MissingRate               float64    `json:"missing_rate"`
	DistributionBins          []BinValue `json:"distribution_bins"`
	DistributionProbabilities []float64  `json:"distribution_probabilities"`
}

// Cardinality is the number of bin indices the attribute encodes to, counting the
// missing-value slot only when missing values were observed.
func (a *AttributeDescription) Cardinality() int {
	if a.MissingRate > 0 {
		return len(a.DistributionBins) + 1
	}
	return len(a.DistributionBins)
}

// Validate checks the distribution invariants.
func (a *AttributeDescription) Validate() error {
	if !a.DataType.IsValid() {
		return errors.NewValidationError(errors.CodeUnknownDataType,
			fmt.Sprintf("attribute %q has unknown data type %q", a.Name, a.DataType)).
			WithCause(errors.ErrUnknownDataType)
	}
	if len(a.DistributionBins) != len(a.DistributionProbabilities) {
		return invalidDescription(fmt.Sprintf("attribute %q has %d bins and %d probabilities",
			a.Name, len(a.DistributionBins), len(a.DistributionProbabilities)))
	}
	if a.MissingRate < 0 || a.MissingRate > 1 {
		return invalidDescription(fmt.Sprintf("attribute %q has missing rate %v", a.Name, a.MissingRate))
	}
	sum := 0.0
	for _, p := range a.DistributionProbabilities {
		if p < 0 || math.IsNaN(p) {
			return invalidDescription(fmt.Sprintf("attribute %q has a negative probability", a.Name))
		}
		sum += p
	}
	if len(a.DistributionProbabilities) > 0 && math.Abs(sum-1) > 1e-6 {
		return invalidDescription(fmt.Sprintf("attribute %q probabilities sum to %v", a.Name, sum))
	}
	return nil
}

// Meta summarizes the described dataset.
type Meta struct {
	NumTuples                      int      `json:"num_tuples"`
	NumAttributes                  int      `json:"num_attributes"`
	NumAttributesInBN              int      `json:"num_attributes_in_BN"`
	AllAttributes                  []string `json:"all_attributes"`
	CandidateKeys                  []string `json:"candidate_keys"`
	NonCategoricalStringAttributes []string `json:"non_categorical_string_attributes"`
	AttributesInBN                 []string `json:"attributes_in_BN"`
}

// DatasetDescription is everything needed to synthesize data without the source rows.
type DatasetDescription struct {
	Meta                     Meta                             `json:"meta"`
	AttributeDescription     map[string]*AttributeDescription `json:"attribute_description"`
	BayesianNetwork          BayesianNetwork                  `json:"bayesian_network,omitempty"`
	ConditionalProbabilities map[string]*ConditionalTable     `json:"conditional_probabilities,omitempty"`
}

// HasNetwork reports whether the description was built in correlated mode.
func (d *DatasetDescription) HasNetwork() bool {
	return len(d.BayesianNetwork) > 0
}

// Attribute returns the description of a named attribute.
func (d *DatasetDescription) Attribute(name string) (*AttributeDescription, bool) {
	a, ok := d.AttributeDescription[name]
	return a, ok
}

// Validate checks that the description is self-contained and internally consistent.
func (d *DatasetDescription) Validate() error {
	if len(d.Meta.AllAttributes) == 0 {
		return invalidDescription("description lists no attributes")
	}
	for _, name := range d.Meta.AllAttributes {
		attr, ok := d.AttributeDescription[name]
		if !ok || attr == nil {
			return invalidDescription(fmt.Sprintf("attribute %q has no description", name))
		}
		if err := attr.Validate(); err != nil {
			return err
		}
	}

	if !d.HasNetwork() {
		return nil
	}
	if err := d.BayesianNetwork.Validate(); err != nil {
		return err
	}

	root := d.BayesianNetwork.Root()
	rootTable, ok := d.ConditionalProbabilities[root]
	if !ok || rootTable == nil || !rootTable.IsRoot() {
		return invalidDescription(fmt.Sprintf("root %q has no marginal distribution", root))
	}
	if err := d.checkKnown(root); err != nil {
		return err
	}

	for _, edge := range d.BayesianNetwork {
		if err := d.checkKnown(edge.Child); err != nil {
			return err
		}
		table, ok := d.ConditionalProbabilities[edge.Child]
		if !ok || table == nil {
			return invalidDescription(fmt.Sprintf("attribute %q has no conditional distribution", edge.Child))
		}
		if len(table.ParentCardinalities) != len(edge.Parents) {
			return invalidDescription(fmt.Sprintf("conditional distribution of %q has %d parents, network lists %d",
				edge.Child, len(table.ParentCardinalities), len(edge.Parents)))
		}
		if len(table.Distributions) != table.NumParentCombinations() {
			return invalidDescription(fmt.Sprintf("conditional distribution of %q is incomplete", edge.Child))
		}
	}

	return nil
}

func (d *DatasetDescription) checkKnown(name string) error {
	if _, ok := d.AttributeDescription[name]; !ok {
		return invalidDescription(fmt.Sprintf("network references unknown attribute %q", name))
	}
	return nil
}

func invalidDescription(msg string) error {
	return errors.NewValidationError(errors.CodeInvalidDescription, "invalid dataset description").
		WithDetails(msg).
		WithCause(errors.ErrInvalidDescription)
}

var descriptionIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._-]{0,127}$`)

// ValidateDescriptionID rejects ids that are unsafe as file names, keys or object names.
func ValidateDescriptionID(id string) error {
	if !descriptionIDPattern.MatchString(id) {
		return errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("invalid description id %q", id)).
			WithCause(errors.ErrInvalidInputData)
	}
	return nil
}
