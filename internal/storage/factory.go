package storage

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/observability/metrics"
	filestore "github.com/inferloop/tabsynth/internal/storage/implementations/file"
	pgstore "github.com/inferloop/tabsynth/internal/storage/implementations/postgres"
	redisstore "github.com/inferloop/tabsynth/internal/storage/implementations/redis"
	s3store "github.com/inferloop/tabsynth/internal/storage/implementations/s3"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/interfaces"
)

// Config selects a backend and carries the settings of every backend.
// Only the section named by Backend is read.
type Config struct {
	Backend  string                      `json:"backend" mapstructure:"backend"`
	File     filestore.FileStorageConfig `json:"file" mapstructure:"file"`
	Redis    redisstore.RedisConfig      `json:"redis" mapstructure:"redis"`
	S3       s3store.S3Config            `json:"s3" mapstructure:"s3"`
	Postgres pgstore.PostgresConfig      `json:"postgres" mapstructure:"postgres"`
}

// DefaultConfig returns a file-backed configuration
func DefaultConfig() *Config {
	return &Config{
		Backend: constants.StorageTypeFile,
		File: filestore.FileStorageConfig{
			BasePath:   constants.DefaultStorageDir,
			CreateDirs: true,
		},
		Redis: redisstore.RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: constants.DefaultKeyPrefix,
			PoolSize:  10,
		},
		S3: s3store.S3Config{
			Region:     "us-east-1",
			Prefix:     constants.DefaultS3Prefix,
			Timeout:    constants.DefaultStorageTimeout,
			MaxRetries: 3,
		},
		Postgres: pgstore.PostgresConfig{
			Host:           "localhost",
			Port:           5432,
			SSLMode:        "prefer",
			Table:          constants.DefaultPostgresTable,
			MaxConnections: 10,
		},
	}
}

// CreateFunc builds an unconnected store from its configuration
type CreateFunc func(config *Config, logger *logrus.Logger) (interfaces.DescriptionStore, error)

// Factory maps backend names to store constructors
type Factory struct {
	creators map[string]CreateFunc
	mu       sync.RWMutex
	logger   *logrus.Logger
}

// NewFactory creates a factory with the built-in backends registered
func NewFactory(logger *logrus.Logger) *Factory {
	if logger == nil {
		logger = logrus.New()
	}

	factory := &Factory{
		creators: make(map[string]CreateFunc),
		logger:   logger,
	}

	factory.registerDefaults()

	return factory
}

// CreateStore builds the store named by config.Backend without connecting it
func (f *Factory) CreateStore(config *Config) (interfaces.DescriptionStore, error) {
	if config == nil {
		return nil, errors.NewConfigurationError(errors.CodeInvalidConfig, "storage config cannot be nil")
	}

	f.mu.RLock()
	createFunc, exists := f.creators[config.Backend]
	f.mu.RUnlock()

	if !exists {
		return nil, errors.NewConfigurationError(errors.CodeUnsupportedType,
			fmt.Sprintf("storage backend '%s' is not supported", config.Backend))
	}

	store, err := createFunc(config, f.logger)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"backend": config.Backend,
	}).Debug("Created description store")

	return store, nil
}

// GetSupportedTypes returns the registered backend names in lexical order
func (f *Factory) GetSupportedTypes() []string {
	f.mu.RLock()
	defer f.mu.RUnlock()

	types := make([]string, 0, len(f.creators))
	for storageType := range f.creators {
		types = append(types, storageType)
	}
	sort.Strings(types)

	return types
}

// RegisterStorage registers a new backend, replacing any previous one of that name
func (f *Factory) RegisterStorage(storageType string, createFunc CreateFunc) error {
	if storageType == "" {
		return errors.NewValidationError(errors.CodeInvalidInput, "storage type cannot be empty")
	}

	if createFunc == nil {
		return errors.NewValidationError(errors.CodeInvalidInput, "storage create function cannot be nil")
	}

	f.mu.Lock()
	defer f.mu.Unlock()

	f.creators[storageType] = createFunc
	return nil
}

// IsSupported checks if a backend is registered
func (f *Factory) IsSupported(storageType string) bool {
	f.mu.RLock()
	defer f.mu.RUnlock()

	_, exists := f.creators[storageType]
	return exists
}

func (f *Factory) registerDefaults() {
	f.RegisterStorage(constants.StorageTypeFile, func(config *Config, logger *logrus.Logger) (interfaces.DescriptionStore, error) {
		fileConfig := config.File
		return filestore.NewFileStorage(&fileConfig, logger)
	})

	f.RegisterStorage(constants.StorageTypeRedis, func(config *Config, logger *logrus.Logger) (interfaces.DescriptionStore, error) {
		redisConfig := config.Redis
		return redisstore.NewRedisStorage(&redisConfig, logger)
	})

	f.RegisterStorage(constants.StorageTypeS3, func(config *Config, logger *logrus.Logger) (interfaces.DescriptionStore, error) {
		s3Config := config.S3
		return s3store.NewS3Storage(&s3Config, logger)
	})

	f.RegisterStorage(constants.StorageTypePostgres, func(config *Config, logger *logrus.Logger) (interfaces.DescriptionStore, error) {
		pgConfig := config.Postgres
		return pgstore.NewPostgresStorage(&pgConfig, logger)
	})
}

// NewStore creates, connects and instruments the configured store. A nil
// metrics collector disables instrumentation.
func NewStore(ctx context.Context, config *Config, logger *logrus.Logger, m *metrics.PrometheusMetrics) (interfaces.DescriptionStore, error) {
	factory := NewFactory(logger)

	store, err := factory.CreateStore(config)
	if err != nil {
		return nil, err
	}

	if err := store.Connect(ctx); err != nil {
		return nil, err
	}

	return Instrument(store, config.Backend, m), nil
}

// NewID returns a fresh description id
func NewID() string {
	return uuid.NewString()
}
