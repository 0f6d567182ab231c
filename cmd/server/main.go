package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/config"
	"github.com/inferloop/tabsynth/internal/observability/metrics"
	"github.com/inferloop/tabsynth/internal/server"
	"github.com/inferloop/tabsynth/internal/storage"
)

func main() {
	flags, err := ParseFlags(os.Args[1:])
	if err != nil {
		os.Exit(2)
	}

	if flags.Version {
		info := GetBuildInfo()
		fmt.Printf("Version: %s\n", info.Version)
		fmt.Printf("Git Commit: %s\n", info.GitCommit)
		fmt.Printf("Build Date: %s\n", info.BuildDate)
		fmt.Printf("Go Version: %s\n", info.GoVersion)
		fmt.Printf("Platform: %s\n", info.Platform)
		return
	}

	if err := run(flags); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(flags *Flags) error {
	cfg, err := config.Load(flags.ConfigFile)
	if err != nil {
		return err
	}
	applyFlags(cfg, flags)
	if err := cfg.Validate(); err != nil {
		return err
	}

	logger := config.NewLogger(cfg.Log)
	logger.WithFields(logrus.Fields{
		"version":   Version,
		"commit":    GitCommit,
		"buildDate": BuildDate,
	}).Info("Starting tabsynth server")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	var collector *metrics.PrometheusMetrics
	if cfg.Metrics.Enabled {
		collector, err = metrics.NewPrometheusMetrics(&cfg.Metrics, logger)
		if err != nil {
			return err
		}
	}

	store, err := storage.NewStore(ctx, &cfg.Storage, logger, collector)
	if err != nil {
		return err
	}
	defer store.Close()

	describerConfig, err := cfg.DescriberConfig()
	if err != nil {
		return err
	}

	handlers := server.NewHandlers(store, describerConfig, cfg.Server.MaxRows, collector, logger)
	srv, err := server.NewServer(&cfg.Server, handlers, collector, logger)
	if err != nil {
		return err
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Start()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
		logger.Info("Shutdown signal received")
	}

	return srv.Stop(context.Background())
}

func applyFlags(cfg *config.Config, flags *Flags) {
	if flags.Host != "" {
		cfg.Server.Host = flags.Host
	}
	if flags.Port != 0 {
		cfg.Server.Port = flags.Port
	}
	if flags.LogLevel != "" {
		cfg.Log.Level = flags.LogLevel
	}
	if flags.LogFormat != "" {
		cfg.Log.Format = flags.LogFormat
	}
	if flags.Storage != "" {
		cfg.Storage.Backend = flags.Storage
	}
}
