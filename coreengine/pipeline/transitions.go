package pipeline

import (
	"context"
	"sort"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
)

// TransitionFunc reads the just-exited stage and produces the next stage's
// entry inputs.
type TransitionFunc func(ctx context.Context, from Stage) (EntryInputs, error)

// =============================================================================
// TRANSITION TABLE
// =============================================================================

type edgeKey struct {
	from    string
	outcome bool
}

// TransitionTable maps (stage, outcome) to the next stage name.
// Lookups never insert; a missing pair is a ConfigurationError.
type TransitionTable struct {
	edges map[edgeKey]string
}

// NewTransitionTable creates an empty table.
func NewTransitionTable() *TransitionTable {
	return &TransitionTable{edges: make(map[edgeKey]string)}
}

// Add defines or replaces the edge (from, outcome) -> to.
func (t *TransitionTable) Add(from string, outcome bool, to string) {
	t.edges[edgeKey{from, outcome}] = to
}

// Next returns the stage that follows from on outcome.
func (t *TransitionTable) Next(from string, outcome bool) (string, error) {
	to, ok := t.edges[edgeKey{from, outcome}]
	if !ok {
		return "", NewMissingEdgeError(from, outcome)
	}
	return to, nil
}

// Has reports whether (from, outcome) is defined.
func (t *TransitionTable) Has(from string, outcome bool) bool {
	_, ok := t.edges[edgeKey{from, outcome}]
	return ok
}

// Len returns the number of edges.
func (t *TransitionTable) Len() int { return len(t.edges) }

// Edges returns every edge sorted by source, pass before fail.
func (t *TransitionTable) Edges() []config.Edge {
	out := make([]config.Edge, 0, len(t.edges))
	for k, to := range t.edges {
		out = append(out, config.Edge{From: k.from, Outcome: k.outcome, To: to})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].From != out[j].From {
			return out[i].From < out[j].From
		}
		return out[i].Outcome && !out[j].Outcome
	})
	return out
}

// =============================================================================
// TRANSITION-FUNCTION REGISTRY
// =============================================================================

type funcKey struct {
	from string
	to   string
}

// FuncRegistry maps (from, to) edges to marshaling functions.
type FuncRegistry struct {
	funcs map[funcKey]TransitionFunc
}

// NewFuncRegistry creates an empty registry.
func NewFuncRegistry() *FuncRegistry {
	return &FuncRegistry{funcs: make(map[funcKey]TransitionFunc)}
}

// Add registers or replaces the function for from -> to.
func (r *FuncRegistry) Add(from, to string, fn TransitionFunc) {
	r.funcs[funcKey{from, to}] = fn
}

// Lookup returns the function for from -> to.
func (r *FuncRegistry) Lookup(from, to string) (TransitionFunc, error) {
	fn, ok := r.funcs[funcKey{from, to}]
	if !ok {
		return nil, NewMissingTransitionFuncError(from, to)
	}
	return fn, nil
}

// Has reports whether a function is registered for from -> to.
func (r *FuncRegistry) Has(from, to string) bool {
	_, ok := r.funcs[funcKey{from, to}]
	return ok
}

// Len returns the number of registered functions.
func (r *FuncRegistry) Len() int { return len(r.funcs) }
