package models

import (
	"encoding/json"
	"fmt"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// DataType is the declared type of a column.
type DataType string

const (
	DataTypeInteger              DataType = "Integer"
	DataTypeFloat                DataType = "Float"
	DataTypeString               DataType = "String"
	DataTypeDateTime             DataType = "DateTime"
	DataTypeSocialSecurityNumber DataType = "SocialSecurityNumber"
)

// DataTypes lists every supported data type in declaration order.
var DataTypes = []DataType{
	DataTypeInteger,
	DataTypeFloat,
	DataTypeString,
	DataTypeDateTime,
	DataTypeSocialSecurityNumber,
}

// IsValid reports whether d is one of the supported data types.
func (d DataType) IsValid() bool {
	for _, t := range DataTypes {
		if d == t {
			return true
		}
	}
	return false
}

// IsNumerical reports whether values of d are modeled on a numeric axis.
func (d DataType) IsNumerical() bool {
	return d == DataTypeInteger || d == DataTypeFloat || d == DataTypeSocialSecurityNumber
}

// ParseDataType converts a name such as "Integer" into a DataType.
func ParseDataType(s string) (DataType, error) {
	d := DataType(s)
	if !d.IsValid() {
		return "", errors.NewValidationError(errors.CodeUnknownDataType, fmt.Sprintf("unknown data type %q", s)).
			WithCause(errors.ErrUnknownDataType)
	}
	return d, nil
}

// Value is a single raw cell. Null marks a missing value.
type Value struct {
	Raw  string
	Null bool
}

// NullValue returns the missing marker.
func NullValue() Value {
	return Value{Null: true}
}

// StringValue wraps a present raw value.
func StringValue(s string) Value {
	return Value{Raw: s}
}

// MarshalJSON encodes a value as a JSON string, or null when missing.
func (v Value) MarshalJSON() ([]byte, error) {
	if v.Null {
		return []byte("null"), nil
	}
	return json.Marshal(v.Raw)
}

// UnmarshalJSON accepts strings, numbers, booleans and null.
func (v *Value) UnmarshalJSON(data []byte) error {
	if string(data) == "null" {
		*v = NullValue()
		return nil
	}
	var s string
	if err := json.Unmarshal(data, &s); err == nil {
		*v = StringValue(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err == nil {
		*v = StringValue(n.String())
		return nil
	}
	var b bool
	if err := json.Unmarshal(data, &b); err != nil {
		return fmt.Errorf("cell value must be a string, number, boolean or null: %s", string(data))
	}
	*v = StringValue(fmt.Sprintf("%t", b))
	return nil
}

// Column is a typed column of raw values. Nil flags are inferred.
type Column struct {
	Name           string   `json:"name"`
	DataType       DataType `json:"data_type"`
	IsCategorical  *bool    `json:"is_categorical,omitempty"`
	IsCandidateKey *bool    `json:"is_candidate_key,omitempty"`
	Values         []Value  `json:"values"`
}

// NullCount returns the number of missing values in the column.
func (c *Column) NullCount() int {
	count := 0
	for _, v := range c.Values {
		if v.Null {
			count++
		}
	}
	return count
}

// Table is an ordered set of equally long columns.
type Table struct {
	Columns []Column `json:"columns"`
}

// NumRows returns the number of rows.
func (t *Table) NumRows() int {
	if len(t.Columns) == 0 {
		return 0
	}
	return len(t.Columns[0].Values)
}

// Names returns the column names in order.
func (t *Table) Names() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Column looks a column up by name.
func (t *Table) Column(name string) (*Column, bool) {
	for i := range t.Columns {
		if t.Columns[i].Name == name {
			return &t.Columns[i], true
		}
	}
	return nil, false
}

// Validate checks names, data types and column lengths.
func (t *Table) Validate() error {
	if len(t.Columns) == 0 {
		return errors.NewValidationError(errors.CodeMissingField, "table has no columns").
			WithCause(errors.ErrInvalidInputData)
	}

	seen := make(map[string]bool, len(t.Columns))
	rows := t.NumRows()
	for _, c := range t.Columns {
		if c.Name == "" {
			return errors.NewValidationError(errors.CodeMissingField, "column name cannot be empty").
				WithCause(errors.ErrInvalidInputData)
		}
		if seen[c.Name] {
			return errors.NewValidationError(errors.CodeInvalidInput, fmt.Sprintf("duplicate column %q", c.Name)).
				WithCause(errors.ErrInvalidInputData)
		}
		seen[c.Name] = true

		if !c.DataType.IsValid() {
			return errors.NewValidationError(errors.CodeUnknownDataType,
				fmt.Sprintf("column %q has unknown data type %q", c.Name, c.DataType)).
				WithCause(errors.ErrUnknownDataType)
		}
		if len(c.Values) != rows {
			return errors.NewValidationError(errors.CodeLengthMismatch,
				fmt.Sprintf("column %q has %d values, expected %d", c.Name, len(c.Values), rows)).
				WithCause(errors.ErrColumnLengthMismatch)
		}
	}

	return nil
}

// Bool returns a pointer to b, for the optional column flags.
func Bool(b bool) *bool {
	return &b
}
