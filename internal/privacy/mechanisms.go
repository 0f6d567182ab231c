package privacy

import (
	"fmt"
	"math"
	"math/rand"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/distuv"

	"github.com/inferloop/tabsynth/pkg/errors"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
)

// LaplaceMechanism draws Laplace noise from a caller supplied source so that runs
// with the same seed reproduce the same noise.
type LaplaceMechanism struct {
	randSource *rand.Rand
}

// ExponentialMechanism picks one candidate with probability proportional to
// exp(score / (2 * delta)).
type ExponentialMechanism struct {
	randSource *rand.Rand
}

// NewLaplaceMechanism creates a new Laplace mechanism
func NewLaplaceMechanism(randSource *rand.Rand) *LaplaceMechanism {
	if randSource == nil {
		randSource = rand.New(rand.NewSource(42))
	}

	return &LaplaceMechanism{
		randSource: randSource,
	}
}

// GetName returns the mechanism name
func (lm *LaplaceMechanism) GetName() string {
	return "laplace"
}

// CalculateNoiseScale returns b = sensitivity / epsilon.
func (lm *LaplaceMechanism) CalculateNoiseScale(sensitivity, epsilon float64) float64 {
	if epsilon <= 0 {
		return 0
	}
	return sensitivity / epsilon
}

// Sample draws one value from Laplace(0, scale). A non-positive scale yields 0.
func (lm *LaplaceMechanism) Sample(scale float64) float64 {
	if scale <= 0 || math.IsInf(scale, 0) || math.IsNaN(scale) {
		return 0
	}

	u := lm.randSource.Float64()
	for u == 0 {
		u = lm.randSource.Float64()
	}

	return distuv.Laplace{Mu: 0, Scale: scale}.Quantile(u)
}

// AddNoise returns a copy of values with independent Laplace(0, scale) noise added to
// every element.
func (lm *LaplaceMechanism) AddNoise(values []float64, scale float64) []float64 {
	result := make([]float64, len(values))
	copy(result, values)
	if scale <= 0 {
		return result
	}

	for i := range result {
		result[i] += lm.Sample(scale)
	}
	return result
}

// NewExponentialMechanism creates a new exponential mechanism
func NewExponentialMechanism(randSource *rand.Rand) *ExponentialMechanism {
	if randSource == nil {
		randSource = rand.New(rand.NewSource(42))
	}

	return &ExponentialMechanism{
		randSource: randSource,
	}
}

// GetName returns the mechanism name
func (em *ExponentialMechanism) GetName() string {
	return "exponential"
}

// Select draws the index of one candidate.
func (em *ExponentialMechanism) Select(epsilon float64, scores, deltas []float64) (int, error) {
	probabilities, err := ExponentialProbabilities(epsilon, scores, deltas)
	if err != nil {
		return 0, err
	}
	return mathutil.SampleCategorical(em.randSource, probabilities, 1)[0], nil
}

// ExponentialProbabilities turns candidate scores into selection probabilities
// exp(score_i / (2 * delta_i)), normalized. Scores are shifted by their maximum
// before exponentiation.
func ExponentialProbabilities(epsilon float64, scores, deltas []float64) ([]float64, error) {
	if epsilon <= 0 {
		return nil, errors.NewPrivacyError(errors.CodeInvalidEpsilon,
			fmt.Sprintf("epsilon must be positive for the exponential mechanism, got %f", epsilon))
	}
	if len(scores) == 0 {
		return nil, errors.NewPrivacyError(errors.CodeInvalidScores, "no candidates to select from")
	}
	if len(scores) != len(deltas) {
		return nil, errors.NewPrivacyError(errors.CodeInvalidScores,
			fmt.Sprintf("got %d scores and %d deltas", len(scores), len(deltas)))
	}

	exponents := make([]float64, len(scores))
	for i, score := range scores {
		if deltas[i] <= 0 {
			return nil, errors.NewPrivacyError(errors.CodeInvalidScores,
				fmt.Sprintf("delta %d must be positive, got %f", i, deltas[i]))
		}
		exponents[i] = score / (2 * deltas[i])
	}

	maxExponent := floats.Max(exponents)
	probabilities := make([]float64, len(exponents))
	for i, e := range exponents {
		probabilities[i] = math.Exp(e - maxExponent)
	}

	floats.Scale(1/floats.Sum(probabilities), probabilities)
	return probabilities, nil
}
