package cpt

import (
	"fmt"
	"math/rand"

	"github.com/sirupsen/logrus"

	"github.com/inferloop/tabsynth/internal/privacy"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// jointTable is a dense joint distribution over attrs. Cells are stored row-major
// with the last attribute varying fastest.
type jointTable struct {
	attrs []int
	dims  []int
	cells []float64
}

// Builder computes noisy conditional distributions for a learned network.
type Builder struct {
	logger *logrus.Logger
}

// NewBuilder creates a conditional table builder
func NewBuilder(logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	return &Builder{logger: logger}
}

// Construct returns one table per network attribute: a marginal for the root and
// P(child | parents) for every edge. The root and the first k children share one
// noisy joint table; every later child gets its own.
func (b *Builder) Construct(rng *rand.Rand, network models.BayesianNetwork, encoded *models.EncodedDataset, epsilon float64) (map[string]*models.ConditionalTable, error) {
	if len(network) == 0 {
		return nil, errors.NewConfigurationError(errors.CodeInsufficientAttributes,
			"cannot build conditional distributions for an empty network").
			WithCause(errors.ErrInsufficientAttributes)
	}
	if err := network.Validate(); err != nil {
		return nil, err
	}

	index := func(name string) (int, error) {
		i := encoded.Index(name)
		if i < 0 {
			return 0, errors.NewValidationError(errors.CodeInvalidInput,
				fmt.Sprintf("network attribute %q is not encoded", name))
		}
		return i, nil
	}

	k := network.Degree()
	laplace := privacy.NewLaplaceMechanism(rng)

	root, err := index(network.Root())
	if err != nil {
		return nil, err
	}
	shared := []int{root}
	for _, edge := range network[:k] {
		child, err := index(edge.Child)
		if err != nil {
			return nil, err
		}
		shared = append(shared, child)
	}
	sharedTable := noisyJoint(laplace, shared, encoded, k, epsilon)

	tables := make(map[string]*models.ConditionalTable, len(network)+1)
	rootMarginal := sharedTable.marginal([]int{root})
	tables[network.Root()] = models.NewRootTable(mathutil.Normalize(rootMarginal.cells))

	for i, edge := range network {
		attrs := make([]int, 0, len(edge.Parents)+1)
		for _, p := range edge.Parents {
			idx, err := index(p)
			if err != nil {
				return nil, err
			}
			attrs = append(attrs, idx)
		}
		child, err := index(edge.Child)
		if err != nil {
			return nil, err
		}
		attrs = append(attrs, child)

		var joint *jointTable
		if i < k {
			joint = sharedTable.marginal(attrs)
		} else {
			joint = noisyJoint(laplace, attrs, encoded, k, epsilon)
		}
		tables[edge.Child] = joint.conditional()
	}

	b.logger.WithFields(logrus.Fields{
		"tables":  len(tables),
		"degree":  k,
		"epsilon": epsilon,
	}).Debug("Constructed conditional distributions")

	return tables, nil
}

// noisyJoint counts the joint occurrences of attrs over every tuple of the full
// Cartesian product and adds Laplace noise to the raw counts. Slices are
// normalised only after noise is applied.
func noisyJoint(laplace *privacy.LaplaceMechanism, attrs []int, encoded *models.EncodedDataset, k int, epsilon float64) *jointTable {
	dims := make([]int, len(attrs))
	size := 1
	for i, a := range attrs {
		dims[i] = encoded.Cardinalities[a]
		size *= dims[i]
	}
	table := &jointTable{attrs: attrs, dims: dims, cells: make([]float64, size)}

	numTuples := encoded.NumTuples()
	for row := 0; row < numTuples; row++ {
		idx := 0
		for i, a := range attrs {
			idx = idx*dims[i] + encoded.Columns[a][row]
		}
		table.cells[idx]++
	}

	if epsilon > 0 {
		scale := privacy.LaplaceScale(k, encoded.NumAttributes(), numTuples, epsilon)
		table.cells = laplace.AddNoise(table.cells, scale)
		for i, c := range table.cells {
			if c < 0 {
				table.cells[i] = 0
			}
		}
	}
	return table
}

// marginal sums the table down to keep, in the order given.
func (t *jointTable) marginal(keep []int) *jointTable {
	positions := make([]int, len(keep))
	dims := make([]int, len(keep))
	size := 1
	for i, a := range keep {
		positions[i] = -1
		for j, b := range t.attrs {
			if a == b {
				positions[i] = j
			}
		}
		dims[i] = t.dims[positions[i]]
		size *= dims[i]
	}

	out := &jointTable{attrs: keep, dims: dims, cells: make([]float64, size)}
	sub := make([]int, len(t.dims))
	for _, v := range t.cells {
		target := 0
		for i, p := range positions {
			target = target*dims[i] + sub[p]
		}
		out.cells[target] += v
		increment(sub, t.dims)
	}
	return out
}

// conditional normalizes every slice of the last attribute. Because the child
// varies fastest, each parent combination owns a contiguous run of cells.
func (t *jointTable) conditional() *models.ConditionalTable {
	childCard := t.dims[len(t.dims)-1]
	parentDims := append([]int(nil), t.dims[:len(t.dims)-1]...)

	table := &models.ConditionalTable{
		ParentCardinalities: parentDims,
		ChildCardinality:    childCard,
	}
	combinations := table.NumParentCombinations()
	table.Distributions = make([][]float64, combinations)
	for p := 0; p < combinations; p++ {
		table.Distributions[p] = mathutil.Normalize(t.cells[p*childCard : (p+1)*childCard])
	}
	return table
}

// increment advances a row-major subscript by one.
func increment(sub, dims []int) {
	for i := len(sub) - 1; i >= 0; i-- {
		sub[i]++
		if sub[i] < dims[i] {
			return
		}
		sub[i] = 0
	}
}
