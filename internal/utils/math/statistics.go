package math

import (
	"math"
	"math/rand"
	"sort"

	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat"
)

// Normalize clips negative frequencies to zero and rescales them to sum to one.
// An all-zero input becomes the uniform distribution.
func Normalize(frequencies []float64) []float64 {
	out := make([]float64, len(frequencies))
	if len(frequencies) == 0 {
		return out
	}

	total := 0.0
	for i, f := range frequencies {
		if f > 0 && !math.IsNaN(f) {
			out[i] = f
			total += f
		}
	}

	if total <= 0 || math.IsInf(total, 0) {
		uniform := 1 / float64(len(out))
		for i := range out {
			out[i] = uniform
		}
		return out
	}

	floats.Scale(1/total, out)
	return out
}

// SampleCategorical draws n indices from the distribution p.
func SampleCategorical(rng *rand.Rand, p []float64, n int) []int {
	out := make([]int, n)
	if len(p) == 0 || n == 0 {
		return out
	}

	cumulative := make([]float64, len(p))
	floats.CumSum(cumulative, p)
	total := cumulative[len(cumulative)-1]

	last := len(p) - 1
	for last > 0 && p[last] <= 0 {
		last--
	}

	for i := range out {
		x := rng.Float64() * total
		idx := sort.Search(len(cumulative), func(j int) bool { return cumulative[j] > x })
		if idx > last {
			idx = last
		}
		out[i] = idx
	}
	return out
}

// Frequencies returns the relative frequency of each code in [0, size).
// Codes outside that range are ignored.
func Frequencies(codes []int, size int) []float64 {
	counts := make([]float64, size)
	for _, c := range codes {
		if c >= 0 && c < size {
			counts[c]++
		}
	}
	if len(codes) > 0 {
		floats.Scale(1/float64(len(codes)), counts)
	}
	return counts
}

// JointCodes combines several code columns into one mixed-radix code per row.
// The last column varies fastest.
func JointCodes(columns [][]int, cardinalities []int) []int {
	if len(columns) == 0 {
		return nil
	}
	out := make([]int, len(columns[0]))
	for c, column := range columns {
		radix := cardinalities[c]
		for row, v := range column {
			out[row] = out[row]*radix + v
		}
	}
	return out
}

// Entropy returns the natural-log entropy of a set of counts.
func Entropy(counts []float64) float64 {
	p := Normalize(counts)
	return stat.Entropy(p)
}

// MutualInformation returns I(X;Y) in nats for two equally long code columns.
func MutualInformation(x, y []int) float64 {
	hx, hy, hxy := entropies(x, y)
	mi := hx + hy - hxy
	if mi < 0 {
		return 0
	}
	return mi
}

// NormalizedMutualInformation scales I(X;Y) by the arithmetic mean of H(X) and H(Y).
// Two constant columns are perfectly dependent.
func NormalizedMutualInformation(x, y []int) float64 {
	hx, hy, hxy := entropies(x, y)
	if hx == 0 && hy == 0 {
		return 1
	}
	mi := hx + hy - hxy
	if mi < 0 {
		mi = 0
	}
	return mi / ((hx + hy) / 2)
}

func entropies(x, y []int) (hx, hy, hxy float64) {
	if len(x) == 0 || len(x) != len(y) {
		return 0, 0, 0
	}

	xCounts := make(map[int]float64)
	yCounts := make(map[int]float64)
	joint := make(map[[2]int]float64)
	for i := range x {
		xCounts[x[i]]++
		yCounts[y[i]]++
		joint[[2]int{x[i], y[i]}]++
	}

	return stat.Entropy(probabilities(xCounts)), stat.Entropy(probabilities(yCounts)), stat.Entropy(probabilities(joint))
}

func probabilities[K comparable](counts map[K]float64) []float64 {
	p := make([]float64, 0, len(counts))
	total := 0.0
	for _, c := range counts {
		p = append(p, c)
		total += c
	}
	sort.Float64s(p)
	floats.Scale(1/total, p)
	return p
}

// TotalVariation returns half the L1 distance between two distributions.
func TotalVariation(p, q []float64) float64 {
	n := len(p)
	if len(q) > n {
		n = len(q)
	}
	sum := 0.0
	for i := 0; i < n; i++ {
		var a, b float64
		if i < len(p) {
			a = p[i]
		}
		if i < len(q) {
			b = q[i]
		}
		sum += math.Abs(a - b)
	}
	return sum / 2
}

// KLDivergence returns D(p || q) in nats. q is smoothed so that empty bins do not
// make the divergence infinite.
func KLDivergence(p, q []float64) float64 {
	if len(p) != len(q) || len(p) == 0 {
		return 0
	}
	const smoothing = 1e-9
	smoothed := make([]float64, len(q))
	for i, v := range q {
		smoothed[i] = v + smoothing
	}
	return stat.KullbackLeibler(Normalize(p), Normalize(smoothed))
}

// Mean calculates the arithmetic mean of a slice of float64 values
func Mean(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	return stat.Mean(values, nil)
}

// Quantile returns the empirical p-quantile of values.
func Quantile(p float64, values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)
	return stat.Quantile(p, stat.Empirical, sorted, nil)
}
