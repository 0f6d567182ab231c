package attribute

import (
	"fmt"
	"math"
	"math/rand"
	"strconv"
	"strings"
	"time"

	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

const (
	ssnSpace       = 1_000_000_000
	letters        = "abcdefghijklmnopqrstuvwxyz"
	minPrefixChars = 1
)

// GenerateCandidateKey returns n distinct values spread over the attribute's domain.
func (a *Attribute) GenerateCandidateKey(rng *rand.Rand, n int) ([]models.Value, error) {
	if a.Kind == KindSocialSecurityNumber && n >= ssnSpace {
		return nil, errors.NewConfigurationError(errors.CodeCandidateKeyExhausted,
			fmt.Sprintf("cannot generate %d unique social security numbers", n))
	}

	out := make([]models.Value, n)
	switch a.Kind {
	case KindInteger:
		start := int64(math.Floor(a.Min))
		for i := range out {
			out[i] = models.StringValue(strconv.FormatInt(start+int64(i), 10))
		}

	case KindFloat:
		step := (a.Max - a.Min) / float64(n)
		if step <= 0 {
			step = 1
		}
		for i := range out {
			out[i] = models.StringValue(strconv.FormatFloat(a.Min+float64(i)*step, 'f', -1, 64))
		}

	case KindDateTime:
		step := (a.Max - a.Min) / float64(n)
		if step < 1 {
			step = 1
		}
		start := int64(math.Floor(a.Min))
		for i := range out {
			ts := start + int64(math.Floor(float64(i)*step))
			out[i] = models.StringValue(time.Unix(ts, 0).UTC().Format(time.RFC3339))
		}

	case KindSocialSecurityNumber:
		// Valid numbers lie in [1, ssnSpace).
		step := 0.0
		if n > 1 {
			step = float64(ssnSpace-2) / float64(n-1)
		}
		for i, j := range rng.Perm(n) {
			out[i] = models.StringValue(FormatSSN(1 + int64(math.Floor(float64(j)*step))))
		}

	case KindString:
		lo, hi := int(a.Min), int(a.Max)
		if lo < minPrefixChars {
			lo = minPrefixChars
		}
		if hi < lo {
			hi = lo
		}
		length := lo + rng.Intn(hi-lo+1)
		for i := range out {
			out[i] = models.StringValue(randomString(rng, length) + strconv.Itoa(i))
		}

	default:
		return nil, errors.NewValidationError(errors.CodeUnknownDataType,
			fmt.Sprintf("attribute %q has unsupported kind %d", a.Name, a.Kind))
	}

	return out, nil
}

// randomString returns length random lowercase letters.
func randomString(rng *rand.Rand, length int) string {
	if length <= 0 {
		return ""
	}
	var b strings.Builder
	b.Grow(length)
	for i := 0; i < length; i++ {
		b.WriteByte(letters[rng.Intn(len(letters))])
	}
	return b.String()
}
