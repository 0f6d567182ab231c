package main

import (
	"flag"
	"fmt"
	"os"
)

// Flags are the command-line overrides applied on top of the config file
type Flags struct {
	ConfigFile string
	Host       string
	Port       int
	LogLevel   string
	LogFormat  string
	Storage    string
	Version    bool
}

// ParseFlags parses args. Zero values leave the loaded configuration untouched.
func ParseFlags(args []string) (*Flags, error) {
	flags := &Flags{}
	fs := flag.NewFlagSet("tabsynth-server", flag.ContinueOnError)

	fs.StringVar(&flags.ConfigFile, "config", "", "Path to configuration file")
	fs.StringVar(&flags.Host, "host", "", "Server host")
	fs.IntVar(&flags.Port, "port", 0, "Server port")
	fs.StringVar(&flags.LogLevel, "log-level", "", "Log level (debug, info, warn, error)")
	fs.StringVar(&flags.LogFormat, "log-format", "", "Log format (json, text)")
	fs.StringVar(&flags.Storage, "storage", "", "Storage backend (file, redis, s3, postgres)")
	fs.BoolVar(&flags.Version, "version", false, "Show version information")

	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "Usage: %s [options]\n", os.Args[0])
		fmt.Fprintf(fs.Output(), "\nDifferentially private tabular synthesis API server\n\n")
		fmt.Fprintf(fs.Output(), "Options:\n")
		fs.PrintDefaults()
	}

	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	return flags, nil
}
