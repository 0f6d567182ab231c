package interfaces

import (
	"context"

	"github.com/inferloop/tabsynth/pkg/models"
)

// Generator synthesizes a table from a dataset description
type Generator interface {
	// GetType returns the generation mode this generator implements
	GetType() string

	// GetName returns a human-readable name for the generator
	GetName() string

	// GetDescription returns a description of the generator
	GetDescription() string

	// ValidateRequest checks that the request can be served by this generator
	ValidateRequest(req *models.GenerationRequest) error

	// Generate synthesizes req.NumTuples rows from req.Description
	Generate(ctx context.Context, req *models.GenerationRequest) (*models.GenerationResult, error)

	// Close cleans up resources
	Close() error
}

// GeneratorFactory creates generator instances
type GeneratorFactory interface {
	// CreateGenerator creates a new generator instance
	CreateGenerator(mode string) (Generator, error)

	// GetAvailableGenerators returns all available generation modes
	GetAvailableGenerators() []string

	// RegisterGenerator registers a new generation mode
	RegisterGenerator(mode string, createFunc GeneratorCreateFunc) error

	// IsSupported checks if a generation mode is supported
	IsSupported(mode string) bool
}

// GeneratorCreateFunc is a function that creates a generator instance
type GeneratorCreateFunc func() Generator
