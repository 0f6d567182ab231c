package generators

import (
	"context"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/models"
)

// RandomGenerator draws every attribute uniformly over its domain and never emits
// missing values. Candidate keys still get unique values.
type RandomGenerator struct {
	baseGenerator
}

// NewRandomGenerator creates a random-mode generator
func NewRandomGenerator(logger *logrus.Logger) *RandomGenerator {
	return &RandomGenerator{baseGenerator: newBaseGenerator(constants.ModeRandom, logger)}
}

// GetName returns a human-readable name for the generator
func (g *RandomGenerator) GetName() string {
	return "Random Generator"
}

// GetDescription returns a description of the generator
func (g *RandomGenerator) GetDescription() string {
	return "Samples each attribute uniformly over its described domain, ignoring learned distributions"
}

// Generate synthesizes a table with uniform marginals
func (g *RandomGenerator) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	return g.run(ctx, req, func(ctx context.Context, rng *rand.Rand, req *models.GenerationRequest) (*models.Table, error) {
		desc := req.Description
		encoded := make(map[string][]int)
		for _, name := range desc.Meta.AllAttributes {
			info, ok := desc.Attribute(name)
			if !ok || info.IsCandidateKey {
				continue
			}
			attr, err := attribute.FromDescription(info)
			if err != nil {
				return nil, err
			}
			attr.Uniform()
			encoded[name] = attr.SampleBinIndices(rng, req.NumTuples)
		}
		return g.sampler.Decode(ctx, rng, req.NumTuples, desc, encoded)
	})
}

// IndependentGenerator draws every attribute from its own noisy marginal.
type IndependentGenerator struct {
	baseGenerator
}

// NewIndependentGenerator creates an independent-attribute-mode generator
func NewIndependentGenerator(logger *logrus.Logger) *IndependentGenerator {
	return &IndependentGenerator{baseGenerator: newBaseGenerator(constants.ModeIndependent, logger)}
}

// GetName returns a human-readable name for the generator
func (g *IndependentGenerator) GetName() string {
	return "Independent Attribute Generator"
}

// GetDescription returns a description of the generator
func (g *IndependentGenerator) GetDescription() string {
	return "Samples each attribute independently from its differentially private histogram"
}

// Generate synthesizes a table whose columns are mutually independent
func (g *IndependentGenerator) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	return g.run(ctx, req, func(ctx context.Context, rng *rand.Rand, req *models.GenerationRequest) (*models.Table, error) {
		return g.sampler.Decode(ctx, rng, req.NumTuples, req.Description, nil)
	})
}

// CorrelatedGenerator samples network attributes from the Bayesian network and
// the remaining attributes independently.
type CorrelatedGenerator struct {
	baseGenerator
}

// NewCorrelatedGenerator creates a correlated-attribute-mode generator
func NewCorrelatedGenerator(logger *logrus.Logger) *CorrelatedGenerator {
	return &CorrelatedGenerator{baseGenerator: newBaseGenerator(constants.ModeCorrelated, logger)}
}

// GetName returns a human-readable name for the generator
func (g *CorrelatedGenerator) GetName() string {
	return "Correlated Attribute Generator"
}

// GetDescription returns a description of the generator
func (g *CorrelatedGenerator) GetDescription() string {
	return "Samples attributes in Bayesian network order from noisy conditional distributions"
}

// Generate synthesizes a table that preserves the learned attribute correlations
func (g *CorrelatedGenerator) Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error) {
	return g.run(ctx, req, func(ctx context.Context, rng *rand.Rand, req *models.GenerationRequest) (*models.Table, error) {
		encoded, err := g.sampler.GenerateEncoded(ctx, rng, req.NumTuples, req.Description)
		if err != nil {
			return nil, err
		}
		return g.sampler.Decode(ctx, rng, req.NumTuples, req.Description, encoded)
	})
}
