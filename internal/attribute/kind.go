package attribute

import (
	"fmt"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// Kind is the closed set of attribute kinds. Every kind-dependent behaviour
// switches on it exhaustively.
type Kind int

const (
	KindInteger Kind = iota
	KindFloat
	KindString
	KindDateTime
	KindSocialSecurityNumber
)

// KindOf maps a declared data type to its kind.
func KindOf(dataType models.DataType) (Kind, error) {
	switch dataType {
	case models.DataTypeInteger:
		return KindInteger, nil
	case models.DataTypeFloat:
		return KindFloat, nil
	case models.DataTypeString:
		return KindString, nil
	case models.DataTypeDateTime:
		return KindDateTime, nil
	case models.DataTypeSocialSecurityNumber:
		return KindSocialSecurityNumber, nil
	default:
		return 0, errors.NewValidationError(errors.CodeUnknownDataType,
			fmt.Sprintf("unknown data type %q", dataType)).
			WithCause(errors.ErrUnknownDataType)
	}
}

// DataType returns the declared data type of the kind.
func (k Kind) DataType() models.DataType {
	switch k {
	case KindInteger:
		return models.DataTypeInteger
	case KindFloat:
		return models.DataTypeFloat
	case KindString:
		return models.DataTypeString
	case KindDateTime:
		return models.DataTypeDateTime
	case KindSocialSecurityNumber:
		return models.DataTypeSocialSecurityNumber
	default:
		return ""
	}
}

// String implements fmt.Stringer
func (k Kind) String() string {
	return string(k.DataType())
}

// IsNumerical reports whether values of the kind live on a numeric axis.
func (k Kind) IsNumerical() bool {
	switch k {
	case KindInteger, KindFloat, KindSocialSecurityNumber:
		return true
	default:
		return false
	}
}

// hasTextBins reports whether categorical bins of the kind keep the raw text.
func (k Kind) hasTextBins() bool {
	return k == KindString || k == KindDateTime
}
