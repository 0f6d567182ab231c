package server

import (
	"fmt"
	"time"

	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Config contains the HTTP server settings
type Config struct {
	Host            string        `json:"host" mapstructure:"host"`
	Port            int           `json:"port" mapstructure:"port"`
	ReadTimeout     time.Duration `json:"read_timeout" mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `json:"write_timeout" mapstructure:"write_timeout"`
	IdleTimeout     time.Duration `json:"idle_timeout" mapstructure:"idle_timeout"`
	ShutdownTimeout time.Duration `json:"shutdown_timeout" mapstructure:"shutdown_timeout"`
	EnableCORS      bool          `json:"enable_cors" mapstructure:"enable_cors"`
	MaxRequestSize  int64         `json:"max_request_size" mapstructure:"max_request_size"`
	// MaxRows caps the rows a single generate call may request.
	MaxRows int `json:"max_rows" mapstructure:"max_rows"`
}

// DefaultConfig returns the default server configuration
func DefaultConfig() *Config {
	return &Config{
		Host:            constants.DefaultHost,
		Port:            constants.DefaultPort,
		ReadTimeout:     constants.DefaultReadTimeout,
		WriteTimeout:    constants.DefaultWriteTimeout,
		IdleTimeout:     constants.DefaultIdleTimeout,
		ShutdownTimeout: constants.DefaultShutdownTimeout,
		EnableCORS:      false,
		MaxRequestSize:  constants.MaxRequestSize,
		MaxRows:         constants.MaxGenerationSize,
	}
}

// Validate validates the server configuration
func (c *Config) Validate() error {
	if c.Port < 1 || c.Port > 65535 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, fmt.Sprintf("invalid port: %d", c.Port))
	}

	if c.ReadTimeout <= 0 || c.WriteTimeout <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "read and write timeouts must be positive")
	}

	if c.MaxRequestSize <= 0 {
		return errors.NewConfigurationError(errors.CodeInvalidConfig, "max request size must be positive")
	}

	if c.MaxRows <= 0 || c.MaxRows > constants.MaxGenerationSize {
		return errors.NewConfigurationError(errors.CodeInvalidConfig,
			fmt.Sprintf("max rows must be between 1 and %d", constants.MaxGenerationSize))
	}

	return nil
}

// GetAddress returns the server address
func (c *Config) GetAddress() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}
