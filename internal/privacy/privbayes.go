package privacy

import (
	"math"

	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/optimize"

	"github.com/inferloop/tabsynth/pkg/constants"
)

// degreeTolerance is how far from zero the solved usefulness residual may be.
const degreeTolerance = 1e-3

// Usefulness is the PrivBayes usefulness measure n*epsilon / ((d-k) * 2^(k+3)) of a
// network with degree k over d attributes. At k == d it is defined as the target.
func Usefulness(k float64, numAttributes, numTuples int, target, epsilon float64) float64 {
	d := float64(numAttributes)
	if k == d {
		return target
	}
	return float64(numTuples) * epsilon / ((d - k) * math.Pow(2, k+3))
}

// CalculateK picks the largest network degree whose usefulness still meets the
// target. Whenever the equation cannot be solved the fallback degree is used.
func CalculateK(numAttributes, numTuples int, targetUsefulness, epsilon float64, logger *logrus.Logger) int {
	if logger == nil {
		logger = logrus.New()
	}

	fallback := constants.FallbackDegree
	if Usefulness(float64(fallback), numAttributes, numTuples, 0, epsilon) > targetUsefulness {
		return fallback
	}

	residual := func(x []float64) float64 {
		r := Usefulness(x[0], numAttributes, numTuples, targetUsefulness, epsilon) - targetUsefulness
		return r * r
	}

	result, err := optimize.Minimize(optimize.Problem{Func: residual},
		[]float64{float64(numAttributes / 2)}, nil, &optimize.NelderMead{})
	if err != nil || result == nil {
		logger.WithError(err).Debug("Network degree solve failed, using fallback")
		return fallback
	}

	x := result.X[0]
	if math.IsNaN(x) || math.IsInf(x, 0) || math.IsNaN(result.F) || math.Sqrt(result.F) > degreeTolerance {
		logger.WithFields(logrus.Fields{
			"solution": x,
			"residual": result.F,
		}).Debug("Network degree solve did not converge, using fallback")
		return fallback
	}

	k := int(math.Ceil(x))
	if k < 1 || k > numAttributes {
		logger.WithField("k", k).Debug("Network degree out of range, using fallback")
		return fallback
	}
	return k
}

// Sensitivity is the sensitivity of mutual information between a child and its
// parent set over numTuples rows (PrivBayes Lemma 1). The binary form applies when
// the child or its single parent is binary.
func Sensitivity(numTuples int, binary bool) float64 {
	if numTuples < 2 {
		return math.Log(2)
	}

	n := float64(numTuples)
	if binary {
		return math.Log(n)/n + (n-1)/n*math.Log(n/(n-1))
	}
	return 2/n*math.Log((n+1)/2) + (n-1)/n*math.Log((n+1)/(n-1))
}

// CandidateSensitivity classifies a candidate as binary and returns its sensitivity.
func CandidateSensitivity(numTuples, childCardinality int, parentCardinalities []int) float64 {
	binary := childCardinality == 2 || (len(parentCardinalities) == 1 && parentCardinalities[0] == 2)
	return Sensitivity(numTuples, binary)
}

// Delta scales a score sensitivity by the number of greedy selection rounds.
func Delta(numAttributes int, sensitivity, epsilon float64) float64 {
	return float64(numAttributes-1) * sensitivity / epsilon
}

// LaplaceScale is the noise scale for a joint distribution of k+1 attributes.
func LaplaceScale(k, numAttributes, numTuples int, epsilon float64) float64 {
	if epsilon <= 0 || numTuples == 0 {
		return 0
	}
	return 2 * float64(numAttributes-k) / (float64(numTuples) * epsilon)
}

// AttributeNoiseScale is the noise scale for one attribute's marginal when epsilon is
// split evenly across numAttributes marginals.
func AttributeNoiseScale(numTuples, numAttributes int, epsilon float64) float64 {
	if epsilon <= 0 || numTuples == 0 {
		return 0
	}
	if numAttributes < 1 {
		numAttributes = 1
	}
	return (2 / float64(numTuples)) / (epsilon / float64(numAttributes))
}
