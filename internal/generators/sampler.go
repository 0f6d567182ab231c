package generators

import (
	"context"
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/attribute"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Sampler draws bin indices from a description and decodes them into rows.
type Sampler struct {
	logger *logrus.Logger
}

// NewSampler creates a sampler
func NewSampler(logger *logrus.Logger) *Sampler {
	if logger == nil {
		logger = logrus.New()
	}
	return &Sampler{logger: logger}
}

// GenerateEncoded samples n rows of bin indices for every network attribute, visiting
// attributes in network order so that parents are always drawn first.
func (s *Sampler) GenerateEncoded(ctx context.Context, rng *rand.Rand, n int, desc *models.DatasetDescription) (map[string][]int, error) {
	if !desc.HasNetwork() {
		return nil, errors.NewGenerationError(errors.CodeMissingNetwork,
			"description has no Bayesian network; use independent mode")
	}

	network := desc.BayesianNetwork
	root := network.Root()
	rootTable, ok := desc.ConditionalProbabilities[root]
	if !ok || !rootTable.IsRoot() {
		return nil, errors.NewValidationError(errors.CodeInvalidDescription,
			fmt.Sprintf("missing root distribution for %q", root)).
			WithCause(errors.ErrInvalidDescription)
	}

	encoded := make(map[string][]int, len(network)+1)
	encoded[root] = mathutil.SampleCategorical(rng, rootTable.Root(), n)

	for _, edge := range network {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationCancelled, "generation cancelled")
		}

		table, ok := desc.ConditionalProbabilities[edge.Child]
		if !ok || table.IsRoot() {
			return nil, errors.NewValidationError(errors.CodeInvalidDescription,
				fmt.Sprintf("missing conditional distribution for %q", edge.Child)).
				WithCause(errors.ErrInvalidDescription)
		}
		info, ok := desc.Attribute(edge.Child)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidDescription,
				fmt.Sprintf("attribute %q is not described", edge.Child)).
				WithCause(errors.ErrInvalidDescription)
		}

		parents := make([][]int, len(edge.Parents))
		for i, p := range edge.Parents {
			parents[i] = encoded[p]
		}
		encoded[edge.Child] = s.sampleChild(rng, n, table, parents, info.DistributionProbabilities)
	}

	return encoded, nil
}

// sampleChild groups rows by parent combination and draws each group from its
// conditional distribution. Rows whose combination has no entry fall back to the
// unconditioned marginal.
func (s *Sampler) sampleChild(rng *rand.Rand, n int, table *models.ConditionalTable, parents [][]int, marginal []float64) []int {
	groups := make([][]int, table.NumParentCombinations())
	var orphans []int

	instance := make([]int, len(parents))
	for row := 0; row < n; row++ {
		for i, column := range parents {
			instance[i] = column[row]
		}
		idx, ok := table.Index(instance)
		if !ok || idx >= len(table.Distributions) {
			orphans = append(orphans, row)
			continue
		}
		groups[idx] = append(groups[idx], row)
	}

	out := make([]int, n)
	for idx, rows := range groups {
		if len(rows) == 0 {
			continue
		}
		draws := mathutil.SampleCategorical(rng, table.Distributions[idx], len(rows))
		for i, row := range rows {
			out[row] = draws[i]
		}
	}

	if len(orphans) > 0 {
		s.logger.WithFields(logrus.Fields{
			"rows": len(orphans),
		}).Debug("Sampling rows without a parent combination from the marginal")
		draws := mathutil.SampleCategorical(rng, marginal, len(orphans))
		for i, row := range orphans {
			out[row] = draws[i]
		}
	}
	return out
}

// Decode turns sampled indices into a table ordered like the described attributes.
// Attributes without sampled indices are candidate keys, which get unique values,
// or are drawn independently from their own marginal.
func (s *Sampler) Decode(ctx context.Context, rng *rand.Rand, n int, desc *models.DatasetDescription, encoded map[string][]int) (*models.Table, error) {
	table := &models.Table{Columns: make([]models.Column, 0, len(desc.Meta.AllAttributes))}

	for _, name := range desc.Meta.AllAttributes {
		if err := ctx.Err(); err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationCancelled, "generation cancelled")
		}

		info, ok := desc.Attribute(name)
		if !ok {
			return nil, errors.NewValidationError(errors.CodeInvalidDescription,
				fmt.Sprintf("attribute %q is not described", name)).
				WithCause(errors.ErrInvalidDescription)
		}
		attr, err := attribute.FromDescription(info)
		if err != nil {
			return nil, err
		}

		var values []models.Value
		if indices, ok := encoded[name]; ok {
			values = attr.DecodeBinIndices(rng, indices)
		} else if attr.IsCandidateKey {
			values, err = attr.GenerateCandidateKey(rng, n)
			if err != nil {
				return nil, err
			}
		} else {
			values = attr.DecodeBinIndices(rng, attr.SampleBinIndices(rng, n))
		}

		table.Columns = append(table.Columns, models.Column{
			Name:           name,
			DataType:       attr.Kind.DataType(),
			IsCategorical:  models.Bool(attr.IsCategorical),
			IsCandidateKey: models.Bool(attr.IsCandidateKey),
			Values:         values,
		})
	}

	return table, nil
}
