package attribute

import (
	"fmt"
	"math"
	"math/rand"
	"sort"
	"strconv"
	"time"

	"gonum.org/v1/gonum/floats"

	"github.com/inferloop/tabsynth/internal/privacy"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// firstEdgeNudge widens the first histogram bin so that the minimum falls inside it.
const firstEdgeNudge = 0.001

// Attribute models one column: its domain, its binned distribution and the
// bijection between raw values and bin indices. Index len(Bins) stands for a
// missing value.
type Attribute struct {
	Name           string
	Kind           Kind
	IsCategorical  bool
	IsCandidateKey bool
	Min            float64
	Max            float64
	MissingRate    float64
	Bins           []models.BinValue
	Probabilities  []float64

	histogram HistogramSize
	numTuples int
	axis      []float64
	raw       []string
	missing   []bool
	lookup    map[string]int
}

// New parses a column. The domain is not known until InferDomain is called.
func New(column models.Column, isCategorical, isCandidateKey bool, histogram HistogramSize) (*Attribute, error) {
	kind, err := KindOf(column.DataType)
	if err != nil {
		return nil, err
	}

	a := &Attribute{
		Name:           column.Name,
		Kind:           kind,
		IsCategorical:  isCategorical,
		IsCandidateKey: isCandidateKey,
		histogram:      histogram,
		numTuples:      len(column.Values),
		axis:           make([]float64, len(column.Values)),
		raw:            make([]string, len(column.Values)),
		missing:        make([]bool, len(column.Values)),
	}

	missing := 0
	for i, v := range column.Values {
		if v.Null {
			a.missing[i] = true
			missing++
			continue
		}
		x, err := axisValue(kind, v.Raw)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidValue,
				fmt.Sprintf("attribute %q is declared %s", column.Name, kind)).
				WithDetails(fmt.Sprintf("row %d: %v", i, err)).
				WithCause(errors.ErrInvalidInputData)
		}
		a.axis[i] = x
		a.raw[i] = v.Raw
	}
	if a.numTuples > 0 {
		a.MissingRate = float64(missing) / float64(a.numTuples)
	}

	return a, nil
}

// FromDescription rebuilds an attribute from its serialized form.
func FromDescription(desc *models.AttributeDescription) (*Attribute, error) {
	if err := desc.Validate(); err != nil {
		return nil, err
	}
	kind, err := KindOf(desc.DataType)
	if err != nil {
		return nil, err
	}

	a := &Attribute{
		Name:           desc.Name,
		Kind:           kind,
		IsCategorical:  desc.IsCategorical,
		IsCandidateKey: desc.IsCandidateKey,
		Min:            desc.Min,
		Max:            desc.Max,
		MissingRate:    desc.MissingRate,
		Bins:           append([]models.BinValue(nil), desc.DistributionBins...),
		Probabilities:  append([]float64(nil), desc.DistributionProbabilities...),
		histogram:      FixedHistogram(len(desc.DistributionBins)),
	}
	a.buildLookup()
	return a, nil
}

// ToDescription serializes the attribute.
func (a *Attribute) ToDescription() *models.AttributeDescription {
	return &models.AttributeDescription{
		Name:                      a.Name,
		DataType:                  a.Kind.DataType(),
		IsCategorical:             a.IsCategorical,
		IsCandidateKey:            a.IsCandidateKey,
		Min:                       a.Min,
		Max:                       a.Max,
		MissingRate:               a.MissingRate,
		DistributionBins:          append([]models.BinValue(nil), a.Bins...),
		DistributionProbabilities: append([]float64(nil), a.Probabilities...),
	}
}

// NumTuples returns the number of parsed rows.
func (a *Attribute) NumTuples() int {
	return a.numTuples
}

// Cardinality is the number of indices EncodeValuesIntoBinIndices can emit.
func (a *Attribute) Cardinality() int {
	if a.MissingRate > 0 {
		return len(a.Bins) + 1
	}
	return len(a.Bins)
}

// MissingIndex is the sentinel bin index of a missing value.
func (a *Attribute) MissingIndex() int {
	return len(a.Bins)
}

// InferDomain sets min, max and bins from the present values and resets the
// distribution to uniform.
func (a *Attribute) InferDomain() {
	present := make([]float64, 0, len(a.axis))
	var texts []string
	for i, x := range a.axis {
		if a.missing[i] {
			continue
		}
		present = append(present, x)
		texts = append(texts, a.raw[i])
	}

	if len(present) == 0 {
		a.Min, a.Max = 0, 0
		a.Bins = []models.BinValue{}
		a.Probabilities = []float64{}
		a.buildLookup()
		return
	}

	a.Min = floats.Min(present)
	a.Max = floats.Max(present)

	switch {
	case a.IsCategorical && a.Kind.hasTextBins():
		a.Bins = distinctTextBins(texts)
	case a.IsCategorical:
		a.Bins = distinctNumberBins(present)
	default:
		a.Bins = histogramEdges(a.Min, a.Max, a.histogram.Resolve(present))
	}

	a.Probabilities = uniform(len(a.Bins))
	a.buildLookup()
}

// Uniform resets the distribution to uniform with no missing values.
func (a *Attribute) Uniform() {
	a.Probabilities = uniform(len(a.Bins))
	a.MissingRate = 0
}

// InferDistribution sets the probabilities to the relative bin frequencies of
// the present values. Empty bins keep probability zero.
func (a *Attribute) InferDistribution() {
	counts := make([]float64, len(a.Bins))
	for i := range a.axis {
		if a.missing[i] {
			continue
		}
		if idx := a.encodeOne(a.axis[i], a.raw[i]); idx < len(counts) {
			counts[idx]++
		}
	}
	a.Probabilities = mathutil.Normalize(counts)
}

// InjectLaplaceNoise perturbs the distribution with epsilon split evenly over
// numAttributesInNetwork marginals. Epsilon zero leaves it untouched.
func (a *Attribute) InjectLaplaceNoise(rng *rand.Rand, epsilon float64, numAttributesInNetwork int) {
	if epsilon <= 0 || len(a.Probabilities) == 0 {
		return
	}
	scale := privacy.AttributeNoiseScale(a.numTuples, numAttributesInNetwork, epsilon)
	noisy := privacy.NewLaplaceMechanism(rng).AddNoise(a.Probabilities, scale)
	a.Probabilities = mathutil.Normalize(noisy)
}

// EncodeValuesIntoBinIndices encodes the parsed column.
func (a *Attribute) EncodeValuesIntoBinIndices() []int {
	out := make([]int, len(a.axis))
	for i := range a.axis {
		if a.missing[i] {
			out[i] = a.MissingIndex()
			continue
		}
		out[i] = a.encodeOne(a.axis[i], a.raw[i])
	}
	return out
}

// Encode parses and encodes raw values against the attribute's current bins.
func (a *Attribute) Encode(values []models.Value) ([]int, error) {
	out := make([]int, len(values))
	for i, v := range values {
		if v.Null {
			out[i] = a.MissingIndex()
			continue
		}
		x, err := axisValue(a.Kind, v.Raw)
		if err != nil {
			return nil, errors.NewValidationError(errors.CodeInvalidValue,
				fmt.Sprintf("attribute %q is declared %s", a.Name, a.Kind)).
				WithDetails(fmt.Sprintf("row %d: %v", i, err)).
				WithCause(errors.ErrInvalidInputData)
		}
		out[i] = a.encodeOne(x, v.Raw)
	}
	return out, nil
}

// AxisValue places a raw value on the attribute's numeric axis.
func (a *Attribute) AxisValue(raw string) (float64, error) {
	return axisValue(a.Kind, raw)
}

func (a *Attribute) encodeOne(x float64, raw string) int {
	if len(a.Bins) == 0 {
		return a.MissingIndex()
	}

	if a.IsCategorical {
		var key string
		if a.Kind.hasTextBins() {
			key = binKey(models.StringBin(raw))
		} else {
			key = binKey(models.NumberBin(x))
		}
		if idx, ok := a.lookup[key]; ok {
			return idx
		}
		return a.MissingIndex()
	}

	idx := sort.Search(len(a.Bins), func(i int) bool { return a.Bins[i].Num > x }) - 1
	if idx < 0 {
		return 0
	}
	if idx >= len(a.Bins) {
		return len(a.Bins) - 1
	}
	return idx
}

// SampleBinIndices draws n indices from the attribute's own distribution, emitting
// the missing index at the attribute's missing rate.
func (a *Attribute) SampleBinIndices(rng *rand.Rand, n int) []int {
	if len(a.Probabilities) == 0 {
		out := make([]int, n)
		for i := range out {
			out[i] = a.MissingIndex()
		}
		return out
	}

	out := mathutil.SampleCategorical(rng, a.Probabilities, n)
	if a.MissingRate > 0 {
		for i := range out {
			if rng.Float64() < a.MissingRate {
				out[i] = a.MissingIndex()
			}
		}
	}
	return out
}

// DecodeBinIndices maps bin indices back to raw values. Categorical bins decode
// to their value; histogram bins decode to a uniform draw inside the bin.
func (a *Attribute) DecodeBinIndices(rng *rand.Rand, indices []int) []models.Value {
	out := make([]models.Value, len(indices))
	for i, idx := range indices {
		if idx < 0 || idx >= len(a.Bins) {
			out[i] = models.NullValue()
			continue
		}
		if a.IsCategorical {
			out[i] = models.StringValue(a.formatCategorical(a.Bins[idx]))
			continue
		}

		lo, hi := a.binBounds(idx)
		x := lo + rng.Float64()*(hi-lo)
		out[i] = models.StringValue(a.formatContinuous(rng, clamp(x, a.Min, a.Max)))
	}
	return out
}

func (a *Attribute) binBounds(idx int) (float64, float64) {
	lo := a.Bins[idx].Num
	if idx+1 < len(a.Bins) {
		return lo, a.Bins[idx+1].Num
	}
	if len(a.Bins) >= 2 {
		return lo, 2*a.Bins[len(a.Bins)-1].Num - a.Bins[len(a.Bins)-2].Num
	}
	return lo, a.Max
}

func (a *Attribute) formatCategorical(bin models.BinValue) string {
	if bin.IsString {
		return bin.Str
	}
	return a.formatNumber(bin.Num)
}

func (a *Attribute) formatContinuous(rng *rand.Rand, x float64) string {
	if a.Kind == KindString {
		return randomString(rng, int(math.Round(x)))
	}
	return a.formatNumber(x)
}

func (a *Attribute) formatNumber(x float64) string {
	switch a.Kind {
	case KindInteger:
		return strconv.FormatInt(int64(math.Round(x)), 10)
	case KindFloat:
		return strconv.FormatFloat(x, 'f', -1, 64)
	case KindDateTime:
		return time.Unix(int64(math.Floor(x)), 0).UTC().Format(time.RFC3339)
	case KindSocialSecurityNumber:
		return FormatSSN(int64(math.Round(x)))
	case KindString:
		return strconv.Itoa(int(math.Round(x)))
	default:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
}

func (a *Attribute) buildLookup() {
	a.lookup = make(map[string]int, len(a.Bins))
	if !a.IsCategorical {
		return
	}
	for i, b := range a.Bins {
		a.lookup[binKey(b)] = i
	}
}

func binKey(b models.BinValue) string {
	if b.IsString {
		return "s:" + b.Str
	}
	return "n:" + strconv.FormatFloat(b.Num, 'g', -1, 64)
}

func distinctTextBins(values []string) []models.BinValue {
	seen := make(map[string]bool)
	distinct := make([]string, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Strings(distinct)

	bins := make([]models.BinValue, len(distinct))
	for i, v := range distinct {
		bins[i] = models.StringBin(v)
	}
	return bins
}

func distinctNumberBins(values []float64) []models.BinValue {
	seen := make(map[float64]bool)
	distinct := make([]float64, 0)
	for _, v := range values {
		if !seen[v] {
			seen[v] = true
			distinct = append(distinct, v)
		}
	}
	sort.Float64s(distinct)

	bins := make([]models.BinValue, len(distinct))
	for i, v := range distinct {
		bins[i] = models.NumberBin(v)
	}
	return bins
}

// histogramEdges returns the left edges of size equal-width bins over [lo, hi].
func histogramEdges(lo, hi float64, size int) []models.BinValue {
	if hi == lo {
		lo -= 0.5
		hi += 0.5
	}
	width := (hi - lo) / float64(size)

	bins := make([]models.BinValue, size)
	for i := range bins {
		bins[i] = models.NumberBin(lo + float64(i)*width)
	}
	bins[0] = models.NumberBin(bins[0].Num - firstEdgeNudge*width)
	return bins
}

func uniform(n int) []float64 {
	p := make([]float64, n)
	for i := range p {
		p[i] = 1 / float64(n)
	}
	return p
}

func clamp(x, lo, hi float64) float64 {
	if x < lo {
		return lo
	}
	if x > hi {
		return hi
	}
	return x
}
