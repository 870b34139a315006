package pipeline

import (
	"errors"
	"sort"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
)

// =============================================================================
// BUILDER
// =============================================================================

// Builder assembles a Pipeline. Definition errors are collected and returned
// together by Build.
type Builder struct {
	name   string
	entry  string
	stages map[string]Stage
	order  []string
	table  *TransitionTable
	funcs  *FuncRegistry
	errs   []error
}

// NewBuilder creates a builder for a pipeline called name.
func NewBuilder(name string) *Builder {
	return &Builder{
		name:   name,
		entry:  Start,
		stages: make(map[string]Stage),
		table:  NewTransitionTable(),
		funcs:  NewFuncRegistry(),
	}
}

// Entry sets the default entry stage.
func (b *Builder) Entry(name string) *Builder {
	if name == "" {
		b.errs = append(b.errs, newInvalidDefinitionError("entry stage name cannot be empty"))
		return b
	}
	b.entry = name
	return b
}

// AddStage registers stage under name. Registering End is optional; when it
// is registered its Enter hook runs on arrival.
func (b *Builder) AddStage(name string, stage Stage) *Builder {
	switch {
	case name == "":
		b.errs = append(b.errs, newInvalidDefinitionError("stage name cannot be empty"))
	case stage == nil:
		b.errs = append(b.errs, newInvalidDefinitionError("stage '%s' is nil", name))
	case b.stages[name] != nil:
		b.errs = append(b.errs, newInvalidDefinitionError("duplicate stage '%s'", name))
	default:
		b.stages[name] = stage
		b.order = append(b.order, name)
	}
	return b
}

// AddTransition defines the edge (from, outcome) -> to. A later call for the
// same pair replaces the earlier one.
func (b *Builder) AddTransition(from string, outcome bool, to string) *Builder {
	if from == "" || to == "" {
		b.errs = append(b.errs, newInvalidDefinitionError("transition endpoints cannot be empty (%q -> %q)", from, to))
		return b
	}
	b.table.Add(from, outcome, to)
	return b
}

// AddTransitionFunc registers the marshaling function for from -> to.
func (b *Builder) AddTransitionFunc(from, to string, fn TransitionFunc) *Builder {
	if fn == nil {
		b.errs = append(b.errs, newInvalidDefinitionError("transition function %s -> %s is nil", from, to))
		return b
	}
	b.funcs.Add(from, to, fn)
	return b
}

// ApplySpec copies the entry stage and every edge of spec into the builder.
// Stages and transition functions are still registered by the caller.
func (b *Builder) ApplySpec(spec *config.PipelineSpec) *Builder {
	if spec == nil {
		return b
	}
	if err := spec.Validate(); err != nil {
		b.errs = append(b.errs, newInvalidDefinitionError("%v", err))
		return b
	}
	b.entry = spec.EntryStage()
	for _, e := range spec.Edges() {
		b.table.Add(e.From, e.Outcome, e.To)
	}
	return b
}

// Build returns the assembled pipeline, or every definition error joined.
// Missing edges and functions are not build errors; see Pipeline.Check.
func (b *Builder) Build() (*Pipeline, error) {
	if b.name == "" {
		b.errs = append(b.errs, newInvalidDefinitionError("pipeline name cannot be empty"))
	}
	if len(b.errs) > 0 {
		return nil, errors.Join(b.errs...)
	}

	stages := make(map[string]Stage, len(b.stages))
	for k, v := range b.stages {
		stages[k] = v
	}
	return &Pipeline{
		name:   b.name,
		entry:  b.entry,
		stages: stages,
		order:  append([]string(nil), b.order...),
		table:  b.table,
		funcs:  b.funcs,
	}, nil
}

// =============================================================================
// PIPELINE
// =============================================================================

// Pipeline is an immutable stage topology.
type Pipeline struct {
	name   string
	entry  string
	stages map[string]Stage
	order  []string
	table  *TransitionTable
	funcs  *FuncRegistry
}

// Name returns the pipeline name.
func (p *Pipeline) Name() string { return p.name }

// Entry returns the default entry stage name.
func (p *Pipeline) Entry() string { return p.entry }

// Stages returns registered stage names in registration order.
func (p *Pipeline) Stages() []string {
	return append([]string(nil), p.order...)
}

// Lookup returns the stage registered under name.
func (p *Pipeline) Lookup(name string) (Stage, bool) {
	s, ok := p.stages[name]
	return s, ok
}

// Stage returns the stage registered under name or a ConfigurationError.
func (p *Pipeline) Stage(name string) (Stage, error) {
	s, ok := p.stages[name]
	if !ok {
		return nil, NewUnknownStageError(name)
	}
	return s, nil
}

// Next returns the stage that follows from on outcome.
func (p *Pipeline) Next(from string, outcome bool) (string, error) {
	return p.table.Next(from, outcome)
}

// TransitionFunc returns the marshaling function for from -> to.
func (p *Pipeline) TransitionFunc(from, to string) (TransitionFunc, error) {
	return p.funcs.Lookup(from, to)
}

// Edges returns every transition edge.
func (p *Pipeline) Edges() []config.Edge {
	return p.table.Edges()
}

// Check reports topology defects without failing. The engine does not call
// it; the same defects surface as errors when the affected edge is taken.
func (p *Pipeline) Check() []*ConfigurationError {
	var issues []*ConfigurationError

	if _, ok := p.stages[p.entry]; !ok {
		issues = append(issues, NewUnknownStageError(p.entry))
	}

	names := make([]string, 0, len(p.stages))
	for n := range p.stages {
		if n != End {
			names = append(names, n)
		}
	}
	sort.Strings(names)

	for _, n := range names {
		for _, outcome := range []bool{true, false} {
			if !p.table.Has(n, outcome) {
				issues = append(issues, NewMissingEdgeError(n, outcome))
			}
		}
	}

	for _, e := range p.table.Edges() {
		if _, ok := p.stages[e.From]; !ok && e.From != End {
			issues = append(issues, NewUnknownStageError(e.From))
		}
		if _, ok := p.stages[e.To]; !ok && e.To != End {
			issues = append(issues, NewUnknownStageError(e.To))
		}
		if !p.funcs.Has(e.From, e.To) {
			issues = append(issues, NewMissingTransitionFuncError(e.From, e.To))
		}
	}

	if !p.reachesEnd(p.entry) {
		issues = append(issues, &ConfigurationError{Kind: KindNoTerminalPath, Stage: p.entry})
	}
	return dedupe(issues)
}

// reachesEnd walks the transition table breadth-first from start.
func (p *Pipeline) reachesEnd(start string) bool {
	seen := map[string]bool{start: true}
	queue := []string{start}
	for len(queue) > 0 {
		cur := queue[0]
		queue = queue[1:]
		if cur == End {
			return true
		}
		for _, outcome := range []bool{true, false} {
			next, err := p.table.Next(cur, outcome)
			if err != nil || seen[next] {
				continue
			}
			seen[next] = true
			queue = append(queue, next)
		}
	}
	return false
}

func dedupe(issues []*ConfigurationError) []*ConfigurationError {
	seen := make(map[string]bool, len(issues))
	out := issues[:0]
	for _, i := range issues {
		msg := i.Error()
		if seen[msg] {
			continue
		}
		seen[msg] = true
		out = append(out, i)
	}
	return out
}
