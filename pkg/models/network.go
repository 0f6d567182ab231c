package models

import (
	"encoding/json"
	"fmt"

	"github.com/inferloop/tabsynth/pkg/errors"
)

// Edge attaches a child attribute to its parents. It is serialized as [child, [parents...]].
type Edge struct {
	Child   string
	Parents []string
}

// MarshalJSON encodes the edge as a two element array.
func (e Edge) MarshalJSON() ([]byte, error) {
	parents := e.Parents
	if parents == nil {
		parents = []string{}
	}
	return json.Marshal([]interface{}{e.Child, parents})
}

// UnmarshalJSON decodes [child, [parents...]].
func (e *Edge) UnmarshalJSON(data []byte) error {
	var raw []json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	if len(raw) != 2 {
		return fmt.Errorf("network edge must have 2 elements, got %d", len(raw))
	}
	if err := json.Unmarshal(raw[0], &e.Child); err != nil {
		return fmt.Errorf("network edge child: %w", err)
	}
	if err := json.Unmarshal(raw[1], &e.Parents); err != nil {
		return fmt.Errorf("network edge parents: %w", err)
	}
	return nil
}

// BayesianNetwork is an ordered edge list; edge order is a valid topological order.
type BayesianNetwork []Edge

// Root returns the attribute every other attribute descends from.
func (bn BayesianNetwork) Root() string {
	if len(bn) == 0 || len(bn[0].Parents) == 0 {
		return ""
	}
	return bn[0].Parents[0]
}

// Degree returns the parent set size of the last edge, which is the network's k.
func (bn BayesianNetwork) Degree() int {
	if len(bn) == 0 {
		return 0
	}
	return len(bn[len(bn)-1].Parents)
}

// SamplingOrder returns the root followed by every child in edge order.
func (bn BayesianNetwork) SamplingOrder() []string {
	if len(bn) == 0 {
		return nil
	}
	order := make([]string, 0, len(bn)+1)
	order = append(order, bn.Root())
	for _, e := range bn {
		order = append(order, e.Child)
	}
	return order
}

// Validate checks that each child appears once and only after all of its parents.
func (bn BayesianNetwork) Validate() error {
	if len(bn) == 0 {
		return nil
	}
	placed := map[string]bool{bn.Root(): true}
	for i, e := range bn {
		if len(e.Parents) == 0 {
			return invalidNetwork(fmt.Sprintf("edge %d (%s) has no parents", i, e.Child))
		}
		if placed[e.Child] {
			return invalidNetwork(fmt.Sprintf("attribute %q appears twice", e.Child))
		}
		for _, p := range e.Parents {
			if !placed[p] {
				return invalidNetwork(fmt.Sprintf("parent %q of %q is not placed before it", p, e.Child))
			}
		}
		placed[e.Child] = true
	}
	return nil
}

func invalidNetwork(msg string) error {
	return errors.NewValidationError(errors.CodeInvalidDescription, "invalid bayesian network").
		WithDetails(msg).
		WithCause(errors.ErrInvalidDescription)
}
