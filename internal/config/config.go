package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/viper"

	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/internal/describer"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/server"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Config is the full application configuration
type Config struct {
	Synthesis SynthesisConfig          `mapstructure:"synthesis"`
	Storage   storage.Config           `mapstructure:"storage"`
	Server    server.Config            `mapstructure:"server"`
	Metrics   metrics.PrometheusConfig `mapstructure:"metrics"`
	Log       LogConfig                `mapstructure:"log"`
}

// SynthesisConfig holds the describe defaults
type SynthesisConfig struct {
	// HistogramBins is a bin count or one of auto, fd, sturges, sqrt, rice.
	HistogramBins     string   `mapstructure:"histogram_bins"`
	CategoryThreshold int      `mapstructure:"category_threshold"`
	Epsilon           float64  `mapstructure:"epsilon"`
	K                 int      `mapstructure:"k"`
	Seed              int64    `mapstructure:"seed"`
	Workers           int      `mapstructure:"workers"`
	NullValues        []string `mapstructure:"null_values"`
}

// LogConfig selects the logrus level and formatter
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// Default returns the configuration used when no file or environment overrides it
func Default() *Config {
	return &Config{
		Synthesis: SynthesisConfig{
			HistogramBins:     constants.DefaultHistogramBins,
			CategoryThreshold: constants.DefaultCategoryThreshold,
			Epsilon:           constants.DefaultEpsilon,
			K:                 constants.DefaultDegree,
			Seed:              constants.DefaultSeed,
		},
		Storage: *storage.DefaultConfig(),
		Server:  *server.DefaultConfig(),
		Metrics: *metrics.DefaultPrometheusConfig(),
		Log: LogConfig{
			Level:  constants.DefaultLogLevel,
			Format: constants.DefaultLogFormat,
		},
	}
}

// Load reads cfgFile, or tabsynth.yaml from the working directory or
// $HOME/.tabsynth when cfgFile is empty, then applies TABSYNTH_* environment
// overrides. A missing default file is not an error; a missing explicit one is.
func Load(cfgFile string) (*Config, error) {
	config := Default()
	v := viper.New()

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		v.AddConfigPath(".")
		if home, err := os.UserHomeDir(); err == nil {
			v.AddConfigPath(filepath.Join(home, ".tabsynth"))
		}
		v.SetConfigName(constants.AppName)
		v.SetConfigType("yaml")
	}

	v.SetEnvPrefix(constants.EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v, config)

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
				"error reading config file")
		}
	}

	if err := v.Unmarshal(config); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeConfiguration, errors.CodeInvalidConfig,
			"error unmarshaling config")
	}

	if err := config.Validate(); err != nil {
		return nil, err
	}

	return config, nil
}

// setDefaults registers every scalar key so AutomaticEnv can override it
func setDefaults(v *viper.Viper, c *Config) {
	v.SetDefault("synthesis.histogram_bins", c.Synthesis.HistogramBins)
	v.SetDefault("synthesis.category_threshold", c.Synthesis.CategoryThreshold)
	v.SetDefault("synthesis.epsilon", c.Synthesis.Epsilon)
	v.SetDefault("synthesis.k", c.Synthesis.K)
	v.SetDefault("synthesis.seed", c.Synthesis.Seed)
	v.SetDefault("synthesis.workers", c.Synthesis.Workers)

	v.SetDefault("storage.backend", c.Storage.Backend)
	v.SetDefault("storage.file.base_path", c.Storage.File.BasePath)
	v.SetDefault("storage.file.create_dirs", c.Storage.File.CreateDirs)
	v.SetDefault("storage.redis.addr", c.Storage.Redis.Addr)
	v.SetDefault("storage.redis.password", c.Storage.Redis.Password)
	v.SetDefault("storage.redis.key_prefix", c.Storage.Redis.KeyPrefix)
	v.SetDefault("storage.redis.ttl", c.Storage.Redis.TTL)
	v.SetDefault("storage.s3.region", c.Storage.S3.Region)
	v.SetDefault("storage.s3.bucket", c.Storage.S3.Bucket)
	v.SetDefault("storage.s3.endpoint", c.Storage.S3.Endpoint)
	v.SetDefault("storage.s3.access_key_id", c.Storage.S3.AccessKeyID)
	v.SetDefault("storage.s3.secret_access_key", c.Storage.S3.SecretAccessKey)
	v.SetDefault("storage.s3.prefix", c.Storage.S3.Prefix)
	v.SetDefault("storage.postgres.dsn", c.Storage.Postgres.DSN)
	v.SetDefault("storage.postgres.host", c.Storage.Postgres.Host)
	v.SetDefault("storage.postgres.port", c.Storage.Postgres.Port)
	v.SetDefault("storage.postgres.database", c.Storage.Postgres.Database)
	v.SetDefault("storage.postgres.username", c.Storage.Postgres.Username)
	v.SetDefault("storage.postgres.password", c.Storage.Postgres.Password)
	v.SetDefault("storage.postgres.table", c.Storage.Postgres.Table)

	v.SetDefault("server.host", c.Server.Host)
	v.SetDefault("server.port", c.Server.Port)
	v.SetDefault("server.read_timeout", c.Server.ReadTimeout)
	v.SetDefault("server.write_timeout", c.Server.WriteTimeout)
	v.SetDefault("server.enable_cors", c.Server.EnableCORS)
	v.SetDefault("server.max_rows", c.Server.MaxRows)

	v.SetDefault("metrics.enabled", c.Metrics.Enabled)

	v.SetDefault("log.level", c.Log.Level)
	v.SetDefault("log.format", c.Log.Format)
}

// Validate checks every section
func (c *Config) Validate() error {
	if _, err := c.DescriberConfig(); err != nil {
		return err
	}

	if c.Synthesis.Workers < 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("workers must be non-negative, got %d", c.Synthesis.Workers))
	}

	if !storage.NewFactory(nil).IsSupported(c.Storage.Backend) {
		return errors.NewConfigurationError(errors.CodeUnsupportedType,
			fmt.Sprintf("storage backend '%s' is not supported", c.Storage.Backend))
	}

	if err := c.Server.Validate(); err != nil {
		return err
	}

	if _, err := logrus.ParseLevel(c.Log.Level); err != nil {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("invalid log level %q", c.Log.Level))
	}

	switch c.Log.Format {
	case constants.LogFormatJSON, constants.LogFormatText:
	default:
		return errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("invalid log format %q", c.Log.Format))
	}

	return nil
}

// DescriberConfig converts the synthesis section into a validated describer configuration
func (c *Config) DescriberConfig() (describer.Config, error) {
	size, err := attribute.ParseHistogramSize(c.Synthesis.HistogramBins)
	if err != nil {
		return describer.Config{}, err
	}

	config := describer.DefaultConfig()
	config.HistogramSize = size
	config.CategoryThreshold = c.Synthesis.CategoryThreshold
	config.Epsilon = c.Synthesis.Epsilon
	config.K = c.Synthesis.K
	config.Seed = c.Synthesis.Seed
	config.Workers = c.Synthesis.Workers

	if err := config.Validate(); err != nil {
		return describer.Config{}, err
	}
	return config, nil
}

// NewLogger builds a logger from the log section
func NewLogger(c LogConfig) *logrus.Logger {
	logger := logrus.New()

	level, err := logrus.ParseLevel(c.Level)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)

	if c.Format == constants.LogFormatJSON {
		logger.SetFormatter(&logrus.JSONFormatter{})
	} else {
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp: true,
		})
	}

	return logger
}
