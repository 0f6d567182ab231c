package describer

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/internal/cpt"
	"github.com/inferloop/tabsynth/internal/network"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/privacy"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Config holds the parameters of one description run.
type Config struct {
	HistogramSize     attribute.HistogramSize
	CategoryThreshold int
	Epsilon           float64
	K                 int
	Seed              int64
	Workers           int

	// Per-attribute overrides of the inferred flags. Column flags take precedence.
	Categorical   map[string]bool
	CandidateKeys map[string]bool
}

// DefaultConfig returns the documented defaults.
func DefaultConfig() Config {
	return Config{
		HistogramSize:     attribute.FixedHistogram(20),
		CategoryThreshold: constants.DefaultCategoryThreshold,
		Epsilon:           constants.DefaultEpsilon,
		K:                 constants.DefaultDegree,
		Seed:              constants.DefaultSeed,
	}
}

// Validate rejects parameters the pipeline cannot run with.
func (c Config) Validate() error {
	if c.Epsilon < 0 {
		return errors.NewConfigurationError(errors.CodeInvalidEpsilon,
			fmt.Sprintf("epsilon must be non-negative, got %v", c.Epsilon)).
			WithCause(errors.ErrInvalidConfiguration)
	}
	if c.K < 0 {
		return errors.NewConfigurationError(errors.CodeInvalidDegree,
			fmt.Sprintf("k must be non-negative, got %d", c.K)).
			WithCause(errors.ErrInvalidConfiguration)
	}
	if c.CategoryThreshold < 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("category threshold must be non-negative, got %d", c.CategoryThreshold)).
			WithCause(errors.ErrInvalidConfiguration)
	}
	if c.HistogramSize.Bins <= 0 && c.HistogramSize.Rule == "" {
		return errors.NewConfigurationError(errors.CodeInvalidHistogramSize,
			"histogram size must be a positive bin count or a binning rule").
			WithCause(errors.ErrInvalidConfiguration)
	}
	return nil
}

// Result is a finished description with the budget spent to produce it.
type Result struct {
	Description *models.DatasetDescription
	Ledger      *privacy.BudgetLedger
}

// Describer turns a typed table into a dataset description.
type Describer struct {
	config  Config
	logger  *logrus.Logger
	metrics *metrics.PrometheusMetrics
}

// New creates a describer. A nil collector disables metrics.
func New(config Config, logger *logrus.Logger, collector *metrics.PrometheusMetrics) (*Describer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if logger == nil {
		logger = logrus.New()
	}
	return &Describer{config: config, logger: logger, metrics: collector}, nil
}

// Describe dispatches on mode.
func (d *Describer) Describe(ctx context.Context, mode string, table *models.Table) (*Result, error) {
	switch mode {
	case constants.ModeRandom:
		return d.DescribeRandom(ctx, table)
	case constants.ModeIndependent:
		return d.DescribeIndependent(ctx, table)
	case constants.ModeCorrelated:
		return d.DescribeCorrelated(ctx, table)
	default:
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("unknown mode %q", mode)).
			WithCause(errors.ErrInvalidConfiguration)
	}
}

// DescribeRandom records only the domains: every distribution is uniform and no
// values are missing. No privacy budget is spent.
func (d *Describer) DescribeRandom(ctx context.Context, table *models.Table) (result *Result, err error) {
	defer d.observe(constants.ModeRandom, time.Now(), &err)

	run, err := d.prepare(ctx, table)
	if err != nil {
		return nil, err
	}
	for _, attr := range run.attributes {
		attr.Uniform()
	}
	return run.result(), nil
}

// DescribeIndependent records a noisy histogram per attribute.
func (d *Describer) DescribeIndependent(ctx context.Context, table *models.Table) (result *Result, err error) {
	defer d.observe(constants.ModeIndependent, time.Now(), &err)

	run, err := d.prepare(ctx, table)
	if err != nil {
		return nil, err
	}
	d.injectNoise(run)
	return run.result(), nil
}

// DescribeCorrelated additionally learns a Bayesian network over the eligible
// attributes and its noisy conditional distributions.
func (d *Describer) DescribeCorrelated(ctx context.Context, table *models.Table) (result *Result, err error) {
	defer d.observe(constants.ModeCorrelated, time.Now(), &err)

	run, err := d.prepare(ctx, table)
	if err != nil {
		return nil, err
	}
	if len(run.meta.AttributesInBN) < 2 {
		return nil, errors.NewConfigurationError(errors.CodeInsufficientAttributes,
			fmt.Sprintf("constructing a Bayesian network needs at least 2 eligible attributes, got %d",
				len(run.meta.AttributesInBN))).
			WithDetails("candidate keys and non-categorical strings are excluded").
			WithCause(errors.ErrInsufficientAttributes)
	}
	d.injectNoise(run)

	encoded := run.encode()
	bn, err := network.NewBuilder(d.config.Workers, d.logger).GreedyBayes(ctx, run.rng, encoded, d.config.K, d.config.Epsilon)
	if err != nil {
		return nil, err
	}
	run.spend(d, constants.PurposeNetworkStructure, "exponential", d.config.Epsilon)

	tables, err := cpt.NewBuilder(d.logger).Construct(run.rng, bn, encoded, d.config.Epsilon)
	if err != nil {
		return nil, err
	}
	run.spend(d, constants.PurposeConditionalDistributions, "laplace", d.config.Epsilon)

	d.metrics.SetNetworkEdges(len(bn))

	result = run.result()
	result.Description.BayesianNetwork = bn
	result.Description.ConditionalProbabilities = tables
	return result, nil
}

func (d *Describer) injectNoise(run *describeRun) {
	for _, attr := range run.attributes {
		attr.InjectLaplaceNoise(run.rng, d.config.Epsilon, run.meta.NumAttributesInBN)
	}
	run.spend(d, constants.PurposeAttributeDistributions, "laplace", d.config.Epsilon)
}

func (d *Describer) observe(mode string, start time.Time, err *error) {
	duration := time.Since(start)
	d.metrics.RecordDescribe(mode, *err, duration)

	fields := logrus.Fields{"mode": mode, "duration": duration}
	if *err != nil {
		fields["error"] = (*err).Error()
		d.logger.WithFields(fields).Error("Dataset description failed")
		return
	}
	d.logger.WithFields(fields).Info("Described dataset")
}

// describeRun is the state of one description: parsed attributes in column order.
type describeRun struct {
	rng        *rand.Rand
	ledger     *privacy.BudgetLedger
	meta       models.Meta
	attributes []*attribute.Attribute
	byName     map[string]*attribute.Attribute
}

// prepare parses every column, derives the meta information and infers each
// attribute's domain and noiseless distribution.
func (d *Describer) prepare(ctx context.Context, table *models.Table) (*describeRun, error) {
	if table == nil {
		return nil, errors.NewValidationError(errors.CodeMissingField, "input table is required").
			WithCause(errors.ErrInvalidInputData)
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if table.NumRows() == 0 {
		return nil, errors.NewValidationError(errors.CodeInvalidInput, "input table has no rows").
			WithCause(errors.ErrInvalidInputData)
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	run := &describeRun{
		rng:    rand.New(rand.NewSource(d.config.Seed)),
		ledger: privacy.NewBudgetLedger(),
		byName: make(map[string]*attribute.Attribute, len(table.Columns)),
		meta: models.Meta{
			NumTuples:                      table.NumRows(),
			NumAttributes:                  len(table.Columns),
			AllAttributes:                  table.Names(),
			CandidateKeys:                  []string{},
			NonCategoricalStringAttributes: []string{},
			AttributesInBN:                 []string{},
		},
	}

	for i := range table.Columns {
		column := &table.Columns[i]
		isCategorical := d.isCategorical(column)
		isCandidateKey := d.isCandidateKey(column)

		attr, err := attribute.New(*column, isCategorical, isCandidateKey, d.config.HistogramSize)
		if err != nil {
			return nil, err
		}
		run.attributes = append(run.attributes, attr)
		run.byName[attr.Name] = attr

		nonCategoricalString := !isCategorical && attr.Kind == attribute.KindString
		if isCandidateKey {
			run.meta.CandidateKeys = append(run.meta.CandidateKeys, attr.Name)
		}
		if nonCategoricalString {
			run.meta.NonCategoricalStringAttributes = append(run.meta.NonCategoricalStringAttributes, attr.Name)
		}
		if !isCandidateKey && !nonCategoricalString {
			run.meta.AttributesInBN = append(run.meta.AttributesInBN, attr.Name)
		}
	}
	run.meta.NumAttributesInBN = len(run.meta.AttributesInBN)

	for _, attr := range run.attributes {
		attr.InferDomain()
		attr.InferDistribution()
	}

	d.logger.WithFields(logrus.Fields{
		"tuples":             run.meta.NumTuples,
		"attributes":         run.meta.NumAttributes,
		"attributes_in_bn":   run.meta.NumAttributesInBN,
		"candidate_keys":     len(run.meta.CandidateKeys),
		"histogram":          d.config.HistogramSize.String(),
		"category_threshold": d.config.CategoryThreshold,
	}).Debug("Modeled attributes")

	return run, nil
}

// isCategorical applies the column flag, then the configured override, then
// the distinct-value threshold.
func (d *Describer) isCategorical(column *models.Column) bool {
	if column.IsCategorical != nil {
		return *column.IsCategorical
	}
	if v, ok := d.config.Categorical[column.Name]; ok {
		return v
	}
	distinct := make(map[string]struct{})
	for _, v := range column.Values {
		if v.Null {
			continue
		}
		distinct[v.Raw] = struct{}{}
		if len(distinct) > d.config.CategoryThreshold {
			return false
		}
	}
	return true
}

// isCandidateKey applies the column flag, then the configured override, then
// requires every value to be present and unique.
func (d *Describer) isCandidateKey(column *models.Column) bool {
	if column.IsCandidateKey != nil {
		return *column.IsCandidateKey
	}
	if v, ok := d.config.CandidateKeys[column.Name]; ok {
		return v
	}
	if len(column.Values) == 0 {
		return false
	}
	seen := make(map[string]struct{}, len(column.Values))
	for _, v := range column.Values {
		if v.Null {
			return false
		}
		if _, dup := seen[v.Raw]; dup {
			return false
		}
		seen[v.Raw] = struct{}{}
	}
	return true
}

func (r *describeRun) spend(d *Describer, purpose, mechanism string, epsilon float64) {
	r.ledger.Spend(purpose, mechanism, epsilon, r.meta.NumTuples)
	d.metrics.AddEpsilonSpent(purpose, epsilon)
}

// encode builds the bin-index matrix of the network attributes.
func (r *describeRun) encode() *models.EncodedDataset {
	encoded := &models.EncodedDataset{
		Attributes:    append([]string(nil), r.meta.AttributesInBN...),
		Columns:       make([][]int, 0, len(r.meta.AttributesInBN)),
		Cardinalities: make([]int, 0, len(r.meta.AttributesInBN)),
	}
	for _, name := range r.meta.AttributesInBN {
		attr := r.byName[name]
		encoded.Columns = append(encoded.Columns, attr.EncodeValuesIntoBinIndices())
		encoded.Cardinalities = append(encoded.Cardinalities, attr.Cardinality())
	}
	return encoded
}

func (r *describeRun) result() *Result {
	desc := &models.DatasetDescription{
		Meta:                 r.meta,
		AttributeDescription: make(map[string]*models.AttributeDescription, len(r.attributes)),
	}
	for _, attr := range r.attributes {
		desc.AttributeDescription[attr.Name] = attr.ToDescription()
	}
	return &Result{Description: desc, Ledger: r.ledger}
}
