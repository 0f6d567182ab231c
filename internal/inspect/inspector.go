package inspect

import (
	"context"
	"fmt"
	"math"
	"sort"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/stat"

	"github.com/inferloop/tabsynth/internal/attribute"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Comparison kinds
const (
	KindCategorical = "categorical"
	KindNumerical   = "numerical"
)

// AttributeComparison measures how closely one synthetic column follows its private
// counterpart. Categorical attributes are compared by value frequencies, numerical
// ones by their empirical CDFs.
type AttributeComparison struct {
	Attribute            string  `json:"attribute"`
	Kind                 string  `json:"kind"`
	TotalVariation       float64 `json:"total_variation,omitempty"`
	KLDivergence         float64 `json:"kl_divergence,omitempty"`
	KolmogorovSmirnov    float64 `json:"kolmogorov_smirnov,omitempty"`
	PrivateMissingRate   float64 `json:"private_missing_rate"`
	SyntheticMissingRate float64 `json:"synthetic_missing_rate"`
}

// MutualInformationMatrix holds normalized pairwise mutual information in [0, 1].
type MutualInformationMatrix struct {
	Attributes []string    `json:"attributes"`
	Values     [][]float64 `json:"values"`
}

// At returns the entry for a pair of attribute names.
func (m *MutualInformationMatrix) At(a, b string) (float64, bool) {
	i, j := indexOf(m.Attributes, a), indexOf(m.Attributes, b)
	if i < 0 || j < 0 {
		return 0, false
	}
	return m.Values[i][j], true
}

// Report is the full private versus synthetic comparison.
type Report struct {
	Attributes  []*AttributeComparison   `json:"attributes"`
	Skipped     []string                 `json:"skipped"`
	PrivateMI   *MutualInformationMatrix `json:"private_mutual_information"`
	SyntheticMI *MutualInformationMatrix `json:"synthetic_mutual_information"`

	// MaxMIDifference is the largest absolute gap between the two matrices.
	MaxMIDifference float64 `json:"max_mutual_information_difference"`
}

// Inspector compares a private table with a table synthesized from its description.
type Inspector struct {
	logger *logrus.Logger
}

// NewInspector creates an inspector
func NewInspector(logger *logrus.Logger) *Inspector {
	if logger == nil {
		logger = logrus.New()
	}
	return &Inspector{logger: logger}
}

// Comparable reports whether the attribute takes part in comparisons. Candidate keys
// and free-text strings carry no distribution worth comparing.
func Comparable(desc *models.AttributeDescription) bool {
	if desc.IsCandidateKey {
		return false
	}
	return desc.IsCategorical || desc.DataType != models.DataTypeString
}

// CompareAttribute compares one attribute of the two tables.
func (in *Inspector) CompareAttribute(name string, private, synthetic *models.Table, desc *models.DatasetDescription) (*AttributeComparison, error) {
	attrDesc, ok := desc.Attribute(name)
	if !ok {
		return nil, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("attribute %q is not described", name)).WithCause(errors.ErrInvalidDescription)
	}
	privCol, err := column(private, name, "private")
	if err != nil {
		return nil, err
	}
	synCol, err := column(synthetic, name, "synthetic")
	if err != nil {
		return nil, err
	}

	cmp := &AttributeComparison{
		Attribute:            name,
		PrivateMissingRate:   missingRate(privCol),
		SyntheticMissingRate: missingRate(synCol),
	}

	if attrDesc.IsCategorical {
		cmp.Kind = KindCategorical
		p, q := frequencies(privCol, synCol)
		cmp.TotalVariation = mathutil.TotalVariation(p, q)
		cmp.KLDivergence = mathutil.KLDivergence(p, q)
		return cmp, nil
	}

	attr, err := attribute.FromDescription(attrDesc)
	if err != nil {
		return nil, err
	}
	x, err := axis(attr, privCol)
	if err != nil {
		return nil, err
	}
	y, err := axis(attr, synCol)
	if err != nil {
		return nil, err
	}
	cmp.Kind = KindNumerical
	cmp.KolmogorovSmirnov = kolmogorovSmirnov(x, y)
	return cmp, nil
}

// PairwiseMutualInformation computes the normalized mutual information of every
// pair of the named attributes, encoding values with the description's bins.
func PairwiseMutualInformation(table *models.Table, names []string, desc *models.DatasetDescription) (*MutualInformationMatrix, error) {
	codes := make([][]int, len(names))
	for i, name := range names {
		attrDesc, ok := desc.Attribute(name)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("attribute %q is not described", name)).WithCause(errors.ErrInvalidDescription)
		}
		col, err := column(table, name, "input")
		if err != nil {
			return nil, err
		}
		attr, err := attribute.FromDescription(attrDesc)
		if err != nil {
			return nil, err
		}
		if codes[i], err = attr.Encode(col.Values); err != nil {
			return nil, err
		}
	}

	m := &MutualInformationMatrix{
		Attributes: append([]string(nil), names...),
		Values:     make([][]float64, len(names)),
	}
	for i := range names {
		m.Values[i] = make([]float64, len(names))
	}
	for i := range names {
		m.Values[i][i] = mathutil.NormalizedMutualInformation(codes[i], codes[i])
		for j := i + 1; j < len(names); j++ {
			v := mathutil.NormalizedMutualInformation(codes[i], codes[j])
			m.Values[i][j], m.Values[j][i] = v, v
		}
	}
	return m, nil
}

// Report compares every comparable attribute and both mutual information matrices.
func (in *Inspector) Report(ctx context.Context, private, synthetic *models.Table, desc *models.DatasetDescription) (*Report, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}

	report := &Report{Skipped: []string{}}
	var names []string
	for _, name := range desc.Meta.AllAttributes {
		attrDesc, _ := desc.Attribute(name)
		if !Comparable(attrDesc) {
			report.Skipped = append(report.Skipped, name)
			continue
		}
		names = append(names, name)
	}

	for _, name := range names {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		cmp, err := in.CompareAttribute(name, private, synthetic, desc)
		if err != nil {
			return nil, err
		}
		report.Attributes = append(report.Attributes, cmp)
	}

	g, _ := errgroup.WithContext(ctx)
	g.Go(func() error {
		m, err := PairwiseMutualInformation(private, names, desc)
		report.PrivateMI = m
		return err
	})
	g.Go(func() error {
		m, err := PairwiseMutualInformation(synthetic, names, desc)
		report.SyntheticMI = m
		return err
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	for i := range names {
		for j := range names {
			d := math.Abs(report.PrivateMI.Values[i][j] - report.SyntheticMI.Values[i][j])
			report.MaxMIDifference = math.Max(report.MaxMIDifference, d)
		}
	}

	in.logger.WithFields(logrus.Fields{
		"compared":          len(report.Attributes),
		"skipped":           len(report.Skipped),
		"max_mi_difference": report.MaxMIDifference,
	}).Info("Inspection completed")

	return report, nil
}

func column(table *models.Table, name, which string) (*models.Column, error) {
	c, ok := table.Column(name)
	if !ok {
		return nil, errors.NewValidationError(errors.CodeMissingField,
			fmt.Sprintf("%s table has no column %q", which, name)).WithCause(errors.ErrInvalidInputData)
	}
	return c, nil
}

func missingRate(c *models.Column) float64 {
	if len(c.Values) == 0 {
		return 0
	}
	return float64(c.NullCount()) / float64(len(c.Values))
}

// frequencies returns normalized value frequencies of both columns over the union
// of their present values, in sorted value order.
func frequencies(private, synthetic *models.Column) ([]float64, []float64) {
	index := make(map[string]int)
	for _, c := range []*models.Column{private, synthetic} {
		for _, v := range c.Values {
			if !v.Null {
				index[v.Raw] = 0
			}
		}
	}
	keys := make([]string, 0, len(index))
	for k := range index {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		index[k] = i
	}

	count := func(c *models.Column) []float64 {
		out := make([]float64, len(keys))
		for _, v := range c.Values {
			if !v.Null {
				out[index[v.Raw]]++
			}
		}
		return mathutil.Normalize(out)
	}
	return count(private), count(synthetic)
}

func axis(attr *attribute.Attribute, c *models.Column) ([]float64, error) {
	out := make([]float64, 0, len(c.Values))
	for i, v := range c.Values {
		if v.Null {
			continue
		}
		x, err := attr.AxisValue(v.Raw)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidValue,
				fmt.Sprintf("attribute %q row %d: %v", attr.Name, i, err)).WithCause(errors.ErrInvalidInputData)
		}
		out = append(out, x)
	}
	sort.Float64s(out)
	return out, nil
}

// kolmogorovSmirnov expects sorted samples. An empty sample is maximally distant
// from a non-empty one.
func kolmogorovSmirnov(x, y []float64) float64 {
	switch {
	case len(x) == 0 && len(y) == 0:
		return 0
	case len(x) == 0 || len(y) == 0:
		return 1
	}
	return stat.KolmogorovSmirnov(x, nil, y, nil)
}

func indexOf(names []string, name string) int {
	for i, n := range names {
		if n == name {
			return i
		}
	}
	return -1
}
