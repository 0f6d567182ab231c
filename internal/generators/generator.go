package generators

import (
	"context"
	"fmt"
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// sampleFunc produces the synthetic table for one request.
type sampleFunc func(ctx context.Context, rng *rand.Rand, req *models.GenerationRequest) (*models.Table, error)

// baseGenerator carries the request handling shared by every mode.
type baseGenerator struct {
	logger  *logrus.Logger
	sampler *Sampler
	mode    string
}

func newBaseGenerator(mode string, logger *logrus.Logger) baseGenerator {
	if logger == nil {
		logger = logrus.New()
	}
	return baseGenerator{
		logger:  logger,
		sampler: NewSampler(logger),
		mode:    mode,
	}
}

// GetType returns the generation mode
func (g *baseGenerator) GetType() string {
	return g.mode
}

// ValidateRequest checks the row count and the attached description
func (g *baseGenerator) ValidateRequest(req *models.GenerationRequest) error {
	if req == nil {
		return errors.NewValidationError(errors.CodeMissingField, "generation request is required")
	}
	if req.NumTuples <= 0 {
		return errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("number of tuples must be positive, got %d", req.NumTuples))
	}
	if req.NumTuples > constants.MaxGenerationSize {
		return errors.NewValidationError(errors.CodeOutOfRange,
			fmt.Sprintf("number of tuples must not exceed %d", constants.MaxGenerationSize))
	}
	if req.Description == nil {
		return errors.NewValidationError(errors.CodeMissingField, "dataset description is required")
	}
	return req.Description.Validate()
}

// Close is a no-op; generators hold no resources between requests
func (g *baseGenerator) Close() error {
	return nil
}

// run validates req, seeds a generator from req.Seed and wraps the sampled table in a result.
func (g *baseGenerator) run(ctx context.Context, req *models.GenerationRequest, sample sampleFunc) (*models.GenerationResult, error) {
	if err := g.ValidateRequest(req); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeGeneration, errors.CodeGenerationCancelled, "generation cancelled")
	}

	id := req.ID
	if id == "" {
		id = uuid.New().String()
	}

	start := time.Now()
	rng := rand.New(rand.NewSource(req.Seed))
	table, err := sample(ctx, rng, req)
	if err != nil {
		g.logger.WithFields(logrus.Fields{
			"request_id": id,
			"mode":       g.mode,
			"error":      err.Error(),
		}).Error("Generation failed")
		return nil, err
	}
	duration := time.Since(start)

	g.logger.WithFields(logrus.Fields{
		"request_id": id,
		"mode":       g.mode,
		"rows":       req.NumTuples,
		"attributes": len(table.Columns),
		"duration":   duration,
	}).Info("Generated synthetic dataset")

	return &models.GenerationResult{
		ID:          id,
		Mode:        g.mode,
		Table:       table,
		GeneratedAt: start,
		Duration:    duration,
	}, nil
}
