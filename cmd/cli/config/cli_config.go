package config

import (
	"context"
	"io"

	"github.com/sirupsen/logrus"

	appconfig "github.com/inferloop/tabsynth/internal/config"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/pkg/interfaces"
)

// CLIConfig carries the persistent flags and the configuration they resolve to.
// App and Logger are set by Load.
type CLIConfig struct {
	ConfigFile string
	Verbose    bool
	LogLevel   string

	App    *appconfig.Config
	Logger *logrus.Logger
}

// Load reads the configuration file and environment, applies the flag
// overrides and builds a logger writing to w.
func (c *CLIConfig) Load(w io.Writer) error {
	app, err := appconfig.Load(c.ConfigFile)
	if err != nil {
		return err
	}

	if c.LogLevel != "" {
		app.Log.Level = c.LogLevel
	}
	if c.Verbose {
		app.Log.Level = logrus.DebugLevel.String()
	}
	if err := app.Validate(); err != nil {
		return err
	}

	c.App = app
	c.Logger = appconfig.NewLogger(app.Log)
	if w != nil {
		c.Logger.SetOutput(w)
	}

	c.Logger.WithField("backend", app.Storage.Backend).Debug("Configuration loaded")
	return nil
}

// Store connects to the configured description store
func (c *CLIConfig) Store(ctx context.Context) (interfaces.DescriptionStore, error) {
	return storage.NewStore(ctx, &c.App.Storage, c.Logger, nil)
}
