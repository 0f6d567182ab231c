package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/cmd/cli/commands"
	"github.com/inferloop/tabsynth/cmd/cli/config"
	"github.com/inferloop/tabsynth/pkg/constants"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)

	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cfg := &config.CLIConfig{}

	rootCmd := &cobra.Command{
		Use:   "tabsynth",
		Short: "Differentially private synthetic tabular data",
		Long: `A command-line interface for describing private CSV datasets with
differential privacy, generating synthetic rows from the descriptions and
comparing synthetic data with its source.`,
		Version:       constants.AppVersion,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return cfg.Load(cmd.ErrOrStderr())
		},
	}

	// Global flags
	rootCmd.PersistentFlags().StringVar(&cfg.ConfigFile, "config", "", "config file (default is ./tabsynth.yaml or $HOME/.tabsynth/tabsynth.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&cfg.Verbose, "verbose", "v", false, "verbose output")
	rootCmd.PersistentFlags().StringVar(&cfg.LogLevel, "log-level", "", "log level (debug, info, warn, error)")

	rootCmd.AddCommand(commands.NewDescribeCmd(cfg))
	rootCmd.AddCommand(commands.NewGenerateCmd(cfg))
	rootCmd.AddCommand(commands.NewInspectCmd(cfg))

	return rootCmd
}
