package network

import (
	"context"
	"fmt"
	"math/rand"
	"runtime"
	"sync"

	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
	"gonum.org/v1/gonum/floats"
	"gonum.org/v1/gonum/stat/combin"

	"github.com/inferloop/tabsynth/internal/privacy"
	mathutil "github.com/inferloop/tabsynth/internal/utils/math"
	"github.com/inferloop/tabsynth/pkg/constants"
	"github.com/inferloop/tabsynth/pkg/errors"
	"github.com/inferloop/tabsynth/pkg/models"
)

// State is the lifecycle of a network under construction.
type State int

const (
	StateEmpty State = iota
	StateGrowing
	StateComplete
)

// String implements fmt.Stringer
func (s State) String() string {
	switch s {
	case StateEmpty:
		return "empty"
	case StateGrowing:
		return "growing"
	case StateComplete:
		return "complete"
	default:
		return "unknown"
	}
}

// Builder learns a Bayesian network with the PrivBayes greedy algorithm.
type Builder struct {
	logger  *logrus.Logger
	workers int

	mu    sync.RWMutex
	state State
}

// candidate is a child attribute with one proposed parent set, as column indices.
type candidate struct {
	child   int
	parents []int
}

// NewBuilder creates a network builder scoring candidates on up to workers goroutines.
func NewBuilder(workers int, logger *logrus.Logger) *Builder {
	if logger == nil {
		logger = logrus.New()
	}
	if workers < 1 {
		workers = runtime.GOMAXPROCS(0)
	}

	return &Builder{
		logger:  logger,
		workers: workers,
		state:   StateEmpty,
	}
}

// State returns the state of the most recent build.
func (b *Builder) State() State {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.state
}

func (b *Builder) setState(s State) {
	b.mu.Lock()
	b.state = s
	b.mu.Unlock()
}

// GreedyBayes builds a network of degree k over the encoded attributes. A k of zero
// derives the degree from the usefulness target. Epsilon zero selects the best
// candidate deterministically; otherwise selection goes through the exponential
// mechanism. All randomness comes from rng.
func (b *Builder) GreedyBayes(ctx context.Context, rng *rand.Rand, encoded *models.EncodedDataset, k int, epsilon float64) (models.BayesianNetwork, error) {
	numAttributes := encoded.NumAttributes()
	if numAttributes < 2 {
		return nil, errors.NewConfigurationError(errors.CodeInsufficientAttributes,
			fmt.Sprintf("correlated attribute mode needs at least 2 attributes in the network, got %d", numAttributes)).
			WithCause(errors.ErrInsufficientAttributes)
	}
	if k < 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidDegree,
			fmt.Sprintf("network degree must be non-negative, got %d", k))
	}
	if epsilon < 0 {
		return nil, errors.NewConfigurationError(errors.CodeInvalidEpsilon,
			fmt.Sprintf("epsilon must be non-negative, got %f", epsilon))
	}

	numTuples := encoded.NumTuples()
	if k == 0 {
		k = privacy.CalculateK(numAttributes, numTuples, constants.DefaultTargetUsefulness, epsilon, b.logger)
	}

	b.setState(StateEmpty)
	selector := privacy.NewExponentialMechanism(rng)

	root := rng.Intn(numAttributes)
	b.logger.WithFields(logrus.Fields{
		"root":       encoded.Attributes[root],
		"degree":     k,
		"attributes": numAttributes,
	}).Info("Adding ROOT to the Bayesian network")

	placed := []int{root}
	rest := make([]int, 0, numAttributes-1)
	for i := 0; i < numAttributes; i++ {
		if i != root {
			rest = append(rest, i)
		}
	}

	network := make(models.BayesianNetwork, 0, numAttributes-1)
	b.setState(StateGrowing)
	for len(rest) > 0 {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		candidates, scores, err := b.scoreCandidates(ctx, encoded, placed, rest, k)
		if err != nil {
			return nil, err
		}

		var chosen int
		if epsilon > 0 {
			deltas := make([]float64, len(candidates))
			for i, c := range candidates {
				sensitivity := privacy.CandidateSensitivity(numTuples,
					encoded.Cardinalities[c.child], cardinalities(encoded, c.parents))
				deltas[i] = privacy.Delta(numAttributes, sensitivity, epsilon)
			}
			chosen, err = selector.Select(epsilon, scores, deltas)
			if err != nil {
				return nil, err
			}
		} else {
			chosen = floats.MaxIdx(scores)
		}

		best := candidates[chosen]
		edge := models.Edge{Child: encoded.Attributes[best.child], Parents: names(encoded, best.parents)}
		network = append(network, edge)

		b.logger.WithFields(logrus.Fields{
			"child":   edge.Child,
			"parents": edge.Parents,
			"score":   scores[chosen],
		}).Debug("Added edge to the Bayesian network")

		placed = append(placed, best.child)
		rest = remove(rest, best.child)
	}

	b.setState(StateComplete)
	return network, nil
}

// scoreCandidates enumerates every (child, parent set) pair and scores it by mutual
// information. Results are ordered by child, then split point, then combination.
func (b *Builder) scoreCandidates(ctx context.Context, encoded *models.EncodedDataset, placed, rest []int, k int) ([]candidate, []float64, error) {
	numParents := k
	if len(placed) < numParents {
		numParents = len(placed)
	}

	type task struct {
		child int
		split int
	}
	tasks := make([]task, 0)
	for _, child := range rest {
		for split := 0; split <= len(placed)-numParents; split++ {
			tasks = append(tasks, task{child: child, split: split})
		}
	}

	candidateSets := make([][]candidate, len(tasks))
	scoreSets := make([][]float64, len(tasks))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.workers)
	for i, t := range tasks {
		i, t := i, t
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			candidateSets[i], scoreSets[i] = scoreSplit(encoded, t.child, placed, numParents, t.split)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, nil, err
	}

	var candidates []candidate
	var scores []float64
	for i := range tasks {
		candidates = append(candidates, candidateSets[i]...)
		scores = append(scores, scoreSets[i]...)
	}
	if len(candidates) == 0 {
		return nil, nil, errors.NewInternalError("no parent set candidates to score")
	}
	return candidates, scores, nil
}

// scoreSplit builds the parent sets that contain placed[split] and numParents-1
// attributes placed after it.
func scoreSplit(encoded *models.EncodedDataset, child int, placed []int, numParents, split int) ([]candidate, []float64) {
	if split+numParents-1 >= len(placed) {
		return nil, nil
	}

	tail := placed[split+1:]
	combinations := combin.Combinations(len(tail), numParents-1)

	candidates := make([]candidate, 0, len(combinations))
	scores := make([]float64, 0, len(combinations))
	for _, combination := range combinations {
		parents := make([]int, 0, numParents)
		for _, c := range combination {
			parents = append(parents, tail[c])
		}
		parents = append(parents, placed[split])

		candidates = append(candidates, candidate{child: child, parents: parents})
		scores = append(scores, mutualInformation(encoded, child, parents))
	}
	return candidates, scores
}

// mutualInformation scores a child against the joint of its parents.
func mutualInformation(encoded *models.EncodedDataset, child int, parents []int) float64 {
	columns := make([][]int, len(parents))
	for i, p := range parents {
		columns[i] = encoded.Columns[p]
	}
	joint := mathutil.JointCodes(columns, cardinalities(encoded, parents))
	return mathutil.MutualInformation(encoded.Columns[child], joint)
}

func cardinalities(encoded *models.EncodedDataset, indices []int) []int {
	out := make([]int, len(indices))
	for i, idx := range indices {
		out[i] = encoded.Cardinalities[idx]
	}
	return out
}

func names(encoded *models.EncodedDataset, indices []int) []string {
	out := make([]string, len(indices))
	for i, idx := range indices {
		out[i] = encoded.Attributes[idx]
	}
	return out
}

func remove(values []int, target int) []int {
	out := values[:0]
	for _, v := range values {
		if v != target {
			out = append(out, v)
		}
	}
	return out
}
