package commands

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

const stdio = "-"

// writeJSON writes v to path, or to the command's stdout for "-"
func writeJSON(cmd *cobra.Command, path string, v interface{}) error {
	data, err := json.MarshalIndent(v, "", "    ")
	if err != nil {
		return fmt.Errorf("failed to encode output: %w", err)
	}
	data = append(data, '\n')

	if path == "" || path == stdio {
		_, err := cmd.OutOrStdout().Write(data)
		return err
	}
	if err := os.WriteFile(path, data, 0644); err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to write %s", path))
	}
	return nil
}

// readDescription loads and validates a description JSON file
func readDescription(path string) (*models.DatasetDescription, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeReadFailed,
			fmt.Sprintf("failed to read %s", path))
	}

	var desc models.DatasetDescription
	if err := json.Unmarshal(data, &desc); err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidDescription,
			fmt.Sprintf("%s is not a dataset description", path))
	}
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	return &desc, nil
}

// parseDelimiter accepts a single character or the escape \t
func parseDelimiter(s string) (rune, error) {
	if s == "" {
		return 0, nil
	}
	if s == `\t` {
		return '\t', nil
	}
	r := []rune(s)
	if len(r) != 1 {
		return 0, errors.NewValidationError(errors.CodeInvalidInput,
			fmt.Sprintf("delimiter must be a single character, got %q", s))
	}
	return r[0], nil
}

func flagSet(names []string) map[string]bool {
	if len(names) == 0 {
		return nil
	}
	m := make(map[string]bool, len(names))
	for _, name := range names {
		m[name] = true
	}
	return m
}
