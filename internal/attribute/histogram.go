package attribute

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"gonum.org/v1/gonum/floats"

	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
)

// Adaptive bin-count rules accepted in place of a fixed histogram size.
const (
	RuleAuto    = "auto"
	RuleFD      = "fd"
	RuleSturges = "sturges"
	RuleSqrt    = "sqrt"
	RuleRice    = "rice"
)

// HistogramSize is either a fixed bin count or an adaptive rule.
type HistogramSize struct {
	Bins int
	Rule string
}

// FixedHistogram returns a fixed bin count.
func FixedHistogram(bins int) HistogramSize {
	return HistogramSize{Bins: bins}
}

// ParseHistogramSize accepts a positive integer or one of the adaptive rules.
func ParseHistogramSize(s string) (HistogramSize, error) {
	s = strings.TrimSpace(strings.ToLower(s))
	if n, err := strconv.Atoi(s); err == nil {
		if n < 1 {
			return HistogramSize{}, errors.NewConfigurationError(errors.CodeInvalidHistogramSize,
				fmt.Sprintf("histogram size must be positive, got %d", n))
		}
		return FixedHistogram(n), nil
	}

	switch s {
	case RuleAuto, RuleFD, RuleSturges, RuleSqrt, RuleRice:
		return HistogramSize{Rule: s}, nil
	default:
		return HistogramSize{}, errors.NewConfigurationError(errors.CodeInvalidHistogramSize,
			fmt.Sprintf("histogram size %q is neither a number nor one of auto, fd, sturges, sqrt, rice", s))
	}
}

// String renders the size the way ParseHistogramSize reads it.
func (h HistogramSize) String() string {
	if h.Rule != "" {
		return h.Rule
	}
	return strconv.Itoa(h.Bins)
}

// Resolve returns the number of bins to use for values.
func (h HistogramSize) Resolve(values []float64) int {
	if h.Rule == "" {
		if h.Bins < 1 {
			return 1
		}
		return h.Bins
	}

	n := float64(len(values))
	if n < 2 {
		return 1
	}

	sturges := int(math.Ceil(math.Log2(n))) + 1
	var bins int
	switch h.Rule {
	case RuleSqrt:
		bins = int(math.Ceil(math.Sqrt(n)))
	case RuleSturges:
		bins = sturges
	case RuleRice:
		bins = int(math.Ceil(2 * math.Cbrt(n)))
	case RuleFD:
		bins = freedmanDiaconis(values, sturges)
	case RuleAuto:
		bins = freedmanDiaconis(values, sturges)
		if sturges > bins {
			bins = sturges
		}
	default:
		bins = sturges
	}

	if bins < 1 {
		return 1
	}
	return bins
}

// freedmanDiaconis falls back when the interquartile range is zero.
func freedmanDiaconis(values []float64, fallback int) int {
	iqr := mathutil.Quantile(0.75, values) - mathutil.Quantile(0.25, values)
	if iqr <= 0 {
		return fallback
	}
	width := 2 * iqr / math.Cbrt(float64(len(values)))
	span := floats.Max(values) - floats.Min(values)
	return int(math.Ceil(span / width))
}
