package generators

import (
	"fmt"
	"sort"
	"sync"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
)

// Factory implements the GeneratorFactory interface
type Factory struct {
	creators map[string]interfaces.GeneratorCreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

var _ interfaces.GeneratorFactory = (*Factory)(nil)

// NewGeneratorFactory creates a new generator factory with default logger
func NewGeneratorFactory() *Factory {
	return NewFactory(nil)
}

// NewFactory creates a new generator factory
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]interfaces.GeneratorCreateFunc),
		logger:   logger,
	}

	// Register default generation modes
	factory.registerDefaults()

	return factory
}

// CreateGenerator creates a new generator instance
func (f *Factory) CreateGenerator(mode string) (interfaces.Generator, error) {
	f.mu.RLock()
	createFunc, exists := f.creators[mode]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewGenerationError(errors.CodeGeneratorNotFound,
			fmt.Sprintf("Generation mode '%s' is not supported", mode)).
			WithCause(errors.ErrGeneratorNotFound)
	}

	generator := createFunc()
	if generator == nil {
		return nil, errors.NewGenerationError(errors.CodeGenerationFailed,
			fmt.Sprintf("Failed to create %s generator", mode))
	}

	f.logger.WithFields(logrus.Fields{
		"mode": mode,
	}).Debug("Created generator instance")

	return generator, nil
}

// GetAvailableGenerators returns all available generation modes in sorted order
func (f *Factory) GetAvailableGenerators() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	modes := make([]string, 0, len(f.creators))
	for mode := range f.creators {
		modes = append(modes, mode)
	}
	sort.Strings(modes)

	return modes
}

// RegisterGenerator registers a new generation mode
func (f *Factory) RegisterGenerator(mode string, createFunc interfaces.GeneratorCreateFunc) error {
	if mode == "" {
		return errors.NewValidationError(errors.CodeMissingField, "Generation mode cannot be empty")
	}

	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "Generator create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[mode] = createFunc

	f.logger.WithFields(logrus.Fields{
		"mode": mode,
	}).Debug("Registered generation mode")

	return nil
}

// IsSupported checks if a generation mode is supported
func (f *Factory) IsSupported(mode string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[mode]
	return exists
}

// registerDefaults registers the built-in generation modes
func (f *Factory) registerDefaults() {
	f.RegisterGenerator(constants.ModeRandom, func() interfaces.Generator {
		return NewRandomGenerator(f.logger)
	})

	f.RegisterGenerator(constants.ModeIndependent, func() interfaces.Generator {
		return NewIndependentGenerator(f.logger)
	})

	f.RegisterGenerator(constants.ModeCorrelated, func() interfaces.Generator {
		return NewCorrelatedGenerator(f.logger)
	})
}
