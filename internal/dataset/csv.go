package dataset

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/inferloop/tabsynth/internal/attribute"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// ReadOptions controls how a CSV file becomes a typed table.
type ReadOptions struct {
	Delimiter rune
	// NullValues are recognized in addition to the defaults.
	NullValues []string

	// Per-attribute overrides. Attributes without an entry are inferred.
	DataTypes     map[string]models.DataType
	Categorical   map[string]bool
	CandidateKeys map[string]bool
}

// WriteOptions controls CSV output.
type WriteOptions struct {
	Delimiter rune
	NullValue string
}

// ReadCSV reads a header row followed by records. Cells matching a null marker
// become missing values; every other cell keeps its trimmed text.
func ReadCSV(ctx context.Context, r io.Reader, opts ReadOptions) (*models.Table, error) {
	reader := csv.NewReader(r)
	if opts.Delimiter != 0 {
		reader.Comma = opts.Delimiter
	}
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err == io.EOF {
		return nil, errors.NewValidationError(errors.CodeInvalidFormat, "CSV input is empty").
			WithCause(errors.ErrInvalidInputData)
	}
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat, "failed to read CSV header")
	}

	nulls := nullSet(opts.NullValues)
	columns := make([]models.Column, len(header))
	for i, name := range header {
		columns[i].Name = strings.TrimSpace(name)
	}

	for row := 1; ; row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return nil, err
			}
		}

		record, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeInvalidFormat,
				fmt.Sprintf("failed to read CSV record %d", row))
		}

		for i, cell := range record {
			cell = strings.TrimSpace(cell)
			if _, isNull := nulls[cell]; isNull {
				columns[i].Values = append(columns[i].Values, models.NullValue())
			} else {
				columns[i].Values = append(columns[i].Values, models.StringValue(cell))
			}
		}
	}

	for i := range columns {
		c := &columns[i]
		if dt, ok := opts.DataTypes[c.Name]; ok {
			c.DataType = dt
		} else {
			c.DataType = InferDataType(c.Values)
		}
		if v, ok := opts.Categorical[c.Name]; ok {
			c.IsCategorical = models.Bool(v)
		}
		if v, ok := opts.CandidateKeys[c.Name]; ok {
			c.IsCandidateKey = models.Bool(v)
		}
	}

	table := &models.Table{Columns: columns}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	return table, nil
}

// ReadCSVFile reads a typed table from path.
func ReadCSVFile(ctx context.Context, path string, opts ReadOptions) (*models.Table, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, errors.WrapError(err, errors.ErrorTypeValidation, errors.CodeReadFailed,
			fmt.Sprintf("failed to open %s", path))
	}
	defer f.Close()

	return ReadCSV(ctx, f, opts)
}

// WriteCSV writes the table with a header row. Missing values become opts.NullValue.
func WriteCSV(ctx context.Context, w io.Writer, table *models.Table, opts WriteOptions) error {
	writer := csv.NewWriter(w)
	if opts.Delimiter != 0 {
		writer.Comma = opts.Delimiter
	}

	if err := writer.Write(table.Names()); err != nil {
		return fmt.Errorf("failed to write CSV headers: %w", err)
	}

	record := make([]string, len(table.Columns))
	for row := 0; row < table.NumRows(); row++ {
		if row%1024 == 0 {
			if err := ctx.Err(); err != nil {
				return err
			}
		}
		for i, c := range table.Columns {
			if c.Values[row].Null {
				record[i] = opts.NullValue
			} else {
				record[i] = c.Values[row].Raw
			}
		}
		if err := writer.Write(record); err != nil {
			return fmt.Errorf("failed to write CSV row: %w", err)
		}
	}

	writer.Flush()
	return writer.Error()
}

// WriteCSVFile writes the table to path, creating parent directories.
func WriteCSVFile(ctx context.Context, path string, table *models.Table, opts WriteOptions) error {
	if dir := filepath.Dir(path); dir != "" {
		if err := os.MkdirAll(dir, 0755); err != nil {
			return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
				fmt.Sprintf("failed to create %s", dir))
		}
	}

	f, err := os.Create(path)
	if err != nil {
		return errors.WrapError(err, errors.ErrorTypeStorage, errors.CodeWriteFailed,
			fmt.Sprintf("failed to create %s", path))
	}
	if err := WriteCSV(ctx, f, table, opts); err != nil {
		f.Close()
		return err
	}
	return f.Close()
}

// InferDataType picks the narrowest type every present value parses as:
// Integer, Float, DateTime, SocialSecurityNumber, then String.
func InferDataType(values []models.Value) models.DataType {
	present := make([]string, 0, len(values))
	for _, v := range values {
		if !v.Null {
			present = append(present, v.Raw)
		}
	}
	if len(present) == 0 {
		return models.DataTypeString
	}

	switch {
	case all(present, func(s string) bool { _, err := attribute.ParseInteger(s); return err == nil }):
		return models.DataTypeInteger
	case all(present, func(s string) bool { _, err := attribute.ParseFloat(s); return err == nil }):
		return models.DataTypeFloat
	case all(present, isDateTime):
		return models.DataTypeDateTime
	case all(present, func(s string) bool { _, err := attribute.ParseSSN(s); return err == nil }):
		return models.DataTypeSocialSecurityNumber
	default:
		return models.DataTypeString
	}
}

// calendarWords are categorical values rather than date times.
var calendarWords = map[string]bool{
	"mon": true, "monday": true, "tue": true, "tuesday": true, "wed": true, "wednesday": true,
	"thu": true, "thursday": true, "fri": true, "friday": true, "sat": true, "saturday": true,
	"sun": true, "sunday": true,
	"jan": true, "january": true, "feb": true, "february": true, "mar": true, "march": true,
	"apr": true, "april": true, "may": true, "jun": true, "june": true, "jul": true, "july": true,
	"aug": true, "august": true, "sep": true, "sept": true, "september": true, "oct": true,
	"october": true, "nov": true, "november": true, "dec": true, "december": true,
}

func isDateTime(s string) bool {
	if calendarWords[strings.ToLower(strings.TrimSpace(s))] {
		return false
	}
	_, err := attribute.ParseDateTime(s)
	return err == nil
}

func all(values []string, pred func(string) bool) bool {
	for _, v := range values {
		if !pred(v) {
			return false
		}
	}
	return true
}

func nullSet(extra []string) map[string]struct{} {
	set := make(map[string]struct{}, len(constants.DefaultNullValues)+len(extra))
	for _, v := range constants.DefaultNullValues {
		set[v] = struct{}{}
	}
	for _, v := range extra {
		set[strings.TrimSpace(v)] = struct{}{}
	}
	return set
}
