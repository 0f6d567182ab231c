package commands

import (
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/cmd/cli/config"
	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/describer"
	"github.com/inferloop/tabsynth/internal/storage"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

type DescribeOptions struct {
	Input             string
	Output            string
	Mode              string
	Epsilon           float64
	K                 int
	HistogramBins     string
	CategoryThreshold int
	Seed              int64
	Categorical       []string
	CandidateKeys     []string
	Types             map[string]string
	NullValues        []string
	Delimiter         string
	Store             bool
	ID                string
}

func NewDescribeCmd(cfg *config.CLIConfig) *cobra.Command {
	opts := &DescribeOptions{}

	cmd := &cobra.Command{
		Use:   "describe",
		Short: "Describe a private CSV dataset",
		Long: `Build a differentially private description of a CSV dataset. In correlated
mode the description holds a Bayesian network and its noisy conditional
distributions; in independent mode only noisy per-attribute histograms;
in random mode only the attribute domains.`,
		Example: `  # Describe with a degree-2 network and a total budget of 1.0
  tabsynth describe --input adult.csv --epsilon 1 --k 2 --output adult.json

  # Force attribute types and keep the description in the configured store
  tabsynth describe --input adult.csv --type age=Integer --categorical education --store --id adult`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDescribe(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.Input, "input", "i", "", "Private CSV file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", stdio, "Description file (- for stdout)")
	cmd.Flags().StringVarP(&opts.Mode, "mode", "m", constants.ModeCorrelated, "Description mode (random, independent, correlated)")
	cmd.Flags().Float64Var(&opts.Epsilon, "epsilon", constants.DefaultEpsilon, "Privacy budget, 0 disables noise")
	cmd.Flags().IntVar(&opts.K, "k", constants.DefaultDegree, "Maximum parents per attribute, 0 picks one from the budget")
	cmd.Flags().StringVar(&opts.HistogramBins, "histogram-bins", constants.DefaultHistogramBins, "Bin count or rule (auto, fd, sturges, sqrt, rice)")
	cmd.Flags().IntVar(&opts.CategoryThreshold, "category-threshold", constants.DefaultCategoryThreshold, "Domain size below which attributes are categorical")
	cmd.Flags().Int64Var(&opts.Seed, "seed", constants.DefaultSeed, "Random seed")
	cmd.Flags().StringSliceVar(&opts.Categorical, "categorical", nil, "Attributes to treat as categorical")
	cmd.Flags().StringSliceVar(&opts.CandidateKeys, "candidate-key", nil, "Attributes to treat as candidate keys")
	cmd.Flags().StringToStringVar(&opts.Types, "type", nil, "Attribute data types, e.g. age=Integer")
	cmd.Flags().StringSliceVar(&opts.NullValues, "null-values", nil, "Extra cell values read as missing")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV delimiter (default ,)")
	cmd.Flags().BoolVar(&opts.Store, "store", false, "Save the description in the configured store")
	cmd.Flags().StringVar(&opts.ID, "id", "", "Store id (default is a new UUID)")

	cmd.MarkFlagRequired("input")

	return cmd
}

func runDescribe(cmd *cobra.Command, cfg *config.CLIConfig, opts *DescribeOptions) error {
	ctx := cmd.Context()
	logger := cfg.Logger

	if opts.ID != "" && !opts.Store {
		return errors.NewValidationError(errors.CodeInvalidInput, "--id requires --store")
	}

	describerConfig, err := describeConfig(cmd, cfg, opts)
	if err != nil {
		return err
	}

	readOpts, err := opts.readOptions(cfg.App.Synthesis.NullValues)
	if err != nil {
		return err
	}

	table, err := dataset.ReadCSVFile(ctx, opts.Input, readOpts)
	if err != nil {
		return err
	}

	logger.WithFields(logrus.Fields{
		"input":      opts.Input,
		"rows":       table.NumRows(),
		"attributes": len(table.Columns),
		"mode":       opts.Mode,
	}).Info("Describing dataset")

	d, err := describer.New(describerConfig, logger, nil)
	if err != nil {
		return err
	}

	result, err := d.Describe(ctx, opts.Mode, table)
	if err != nil {
		return err
	}

	if err := writeJSON(cmd, opts.Output, result.Description); err != nil {
		return err
	}

	for _, tx := range result.Ledger.Transactions() {
		logger.WithFields(logrus.Fields{
			"purpose":   tx.Purpose,
			"mechanism": tx.Mechanism,
			"epsilon":   tx.EpsilonUsed,
		}).Debug("Budget spent")
	}

	if opts.Store {
		id := opts.ID
		if id == "" {
			id = storage.NewID()
		} else if err := models.ValidateDescriptionID(id); err != nil {
			return err
		}

		store, err := cfg.Store(ctx)
		if err != nil {
			return err
		}
		defer store.Close()

		if err := store.Save(ctx, id, result.Description); err != nil {
			return err
		}
		fmt.Fprintf(cmd.ErrOrStderr(), "Stored description %s\n", id)
	}

	fmt.Fprintf(cmd.ErrOrStderr(), "Described %d rows and %d attributes (%s mode, epsilon spent %g)\n",
		result.Description.Meta.NumTuples, result.Description.Meta.NumAttributes, opts.Mode, result.Ledger.Total())

	return nil
}

// describeConfig starts from the configuration file and applies the flags the user set
func describeConfig(cmd *cobra.Command, cfg *config.CLIConfig, opts *DescribeOptions) (describer.Config, error) {
	c, err := cfg.App.DescriberConfig()
	if err != nil {
		return c, err
	}

	flags := cmd.Flags()
	if flags.Changed("epsilon") {
		c.Epsilon = opts.Epsilon
	}
	if flags.Changed("k") {
		c.K = opts.K
	}
	if flags.Changed("category-threshold") {
		c.CategoryThreshold = opts.CategoryThreshold
	}
	if flags.Changed("seed") {
		c.Seed = opts.Seed
	}
	if flags.Changed("histogram-bins") {
		size, err := attribute.ParseHistogramSize(opts.HistogramBins)
		if err != nil {
			return c, err
		}
		c.HistogramSize = size
	}
	c.Categorical = flagSet(opts.Categorical)
	c.CandidateKeys = flagSet(opts.CandidateKeys)

	return c, c.Validate()
}

func (opts *DescribeOptions) readOptions(nullValues []string) (dataset.ReadOptions, error) {
	delimiter, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return dataset.ReadOptions{}, err
	}

	readOpts := dataset.ReadOptions{
		Delimiter:  delimiter,
		NullValues: append(append([]string(nil), nullValues...), opts.NullValues...),
	}

	if len(opts.Types) > 0 {
		readOpts.DataTypes = make(map[string]models.DataType, len(opts.Types))
		for name, typ := range opts.Types {
			dataType, err := models.ParseDataType(typ)
			if err != nil {
				return dataset.ReadOptions{}, err
			}
			readOpts.DataTypes[name] = dataType
		}
	}

	return readOpts, nil
}
