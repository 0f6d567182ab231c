package generators

import (
	"context"
	"time"

	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/models"
)

// DefaultMode picks correlated generation for descriptions carrying a network
// and independent generation otherwise.
func DefaultMode(desc *models.DatasetDescription) string {
	if desc != nil && len(desc.BayesianNetwork) > 0 {
		return constants.ModeCorrelated
	}
	return constants.ModeIndependent
}

// Run creates the generator for req.Mode, filling the mode in from the
// description when empty, and records the run on collector. A nil collector
// disables metrics.
func (f *Factory) Run(ctx context.Context, req *models.GenerationRequest, collector *metrics.PrometheusMetrics) (*models.GenerationResult, error) {
	if req.Mode == "" {
		req.Mode = DefaultMode(req.Description)
	}

	generator, err := f.CreateGenerator(req.Mode)
	if err != nil {
		return nil, err
	}
	defer generator.Close()

	done := collector.GenerationStarted()
	defer done()

	start := time.Now()
	result, err := generator.Generate(ctx, req)
	rows := 0
	if err == nil {
		rows = result.Table.NumRows()
	}
	collector.RecordGeneration(req.Mode, rows, err, time.Since(start))

	return result, err
}
