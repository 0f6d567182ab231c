package commands

import (
	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/cmd/cli/config"
	"github.com/inferloop/tabsynth/internal/dataset"
	"github.com/inferloop/tabsynth/internal/inspect"
	"github.com/inferloop/tabsynth/pkg/models"
)

type InspectOptions struct {
	Private     string
	Synthetic   string
	Description string
	Output      string
	NullValues  []string
	Delimiter   string
}

func NewInspectCmd(cfg *config.CLIConfig) *cobra.Command {
	opts := &InspectOptions{}

	cmd := &cobra.Command{
		Use:   "inspect",
		Short: "Compare synthetic data with its private source",
		Long: `Compare every comparable attribute of a synthetic CSV with the private CSV
it was described from, and report the pairwise mutual information of both.
Both files are read with the data types recorded in the description.`,
		Example: `  tabsynth inspect --private adult.csv --synthetic synthetic.csv --description adult.json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInspect(cmd, cfg, opts)
		},
	}

	cmd.Flags().StringVar(&opts.Private, "private", "", "Private CSV file")
	cmd.Flags().StringVar(&opts.Synthetic, "synthetic", "", "Synthetic CSV file")
	cmd.Flags().StringVarP(&opts.Description, "description", "d", "", "Description file")
	cmd.Flags().StringVarP(&opts.Output, "output", "o", stdio, "Report file (- for stdout)")
	cmd.Flags().StringSliceVar(&opts.NullValues, "null-values", nil, "Extra cell values read as missing")
	cmd.Flags().StringVar(&opts.Delimiter, "delimiter", "", "CSV delimiter (default ,)")

	cmd.MarkFlagRequired("private")
	cmd.MarkFlagRequired("synthetic")
	cmd.MarkFlagRequired("description")

	return cmd
}

func runInspect(cmd *cobra.Command, cfg *config.CLIConfig, opts *InspectOptions) error {
	ctx := cmd.Context()

	desc, err := readDescription(opts.Description)
	if err != nil {
		return err
	}

	delimiter, err := parseDelimiter(opts.Delimiter)
	if err != nil {
		return err
	}

	readOpts := dataset.ReadOptions{
		Delimiter:  delimiter,
		NullValues: append(append([]string(nil), cfg.App.Synthesis.NullValues...), opts.NullValues...),
		DataTypes:  make(map[string]models.DataType, len(desc.AttributeDescription)),
	}
	for name, attr := range desc.AttributeDescription {
		readOpts.DataTypes[name] = attr.DataType
	}

	private, err := dataset.ReadCSVFile(ctx, opts.Private, readOpts)
	if err != nil {
		return err
	}
	synthetic, err := dataset.ReadCSVFile(ctx, opts.Synthetic, readOpts)
	if err != nil {
		return err
	}

	report, err := inspect.NewInspector(cfg.Logger).Report(ctx, private, synthetic, desc)
	if err != nil {
		return err
	}

	return writeJSON(cmd, opts.Output, report)
}
