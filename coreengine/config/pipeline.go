package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Reserved stage names.
const (
	// EndStage is the terminal stage name. Reaching it stops a run.
	EndStage = "end"
	// StartStage is the default entry stage name.
	StartStage = "start"
)

// PipelineSpec is a declarative stage topology.
//
// Stages lists the stage names a host must register. Each transition gives the
// next stage for a pass and a fail outcome. An empty Pass or Fail leaves that
// edge undefined; taking it at runtime is a configuration error.
//
// Roles maps a stage to the roles allocated on every transition into it,
// in order. Only member, reviewer and chair can be allocated this way; the
// leader is picked when the run starts.
type PipelineSpec struct {
	Name        string              `yaml:"name" json:"name" mapstructure:"name"`
	Entry       string              `yaml:"entry,omitempty" json:"entry,omitempty" mapstructure:"entry"`
	Stages      []string            `yaml:"stages" json:"stages" mapstructure:"stages"`
	Transitions []TransitionSpec    `yaml:"transitions" json:"transitions" mapstructure:"transitions"`
	Roles       map[string][]string `yaml:"roles,omitempty" json:"roles,omitempty" mapstructure:"roles"`
}

// AllocatableRoles are the roles a PipelineSpec may allocate on a transition.
var AllocatableRoles = []string{"member", "reviewer", "chair"}

// TransitionSpec holds the outgoing edges of one stage.
type TransitionSpec struct {
	From string `yaml:"from" json:"from" mapstructure:"from"`
	Pass string `yaml:"pass,omitempty" json:"pass,omitempty" mapstructure:"pass"`
	Fail string `yaml:"fail,omitempty" json:"fail,omitempty" mapstructure:"fail"`
}

// Edge is one (from, outcome) -> to entry of a topology.
type Edge struct {
	From    string
	Outcome bool
	To      string
}

// EntryStage returns the configured entry stage, defaulting to StartStage.
func (p *PipelineSpec) EntryStage() string {
	if p.Entry == "" {
		return StartStage
	}
	return p.Entry
}

// Edges returns every defined edge in declaration order, pass before fail.
func (p *PipelineSpec) Edges() []Edge {
	edges := make([]Edge, 0, 2*len(p.Transitions))
	for _, t := range p.Transitions {
		if t.Pass != "" {
			edges = append(edges, Edge{From: t.From, Outcome: true, To: t.Pass})
		}
		if t.Fail != "" {
			edges = append(edges, Edge{From: t.From, Outcome: false, To: t.Fail})
		}
	}
	return edges
}

// Validate checks names and references. It does not require every stage to
// have both edges.
func (p *PipelineSpec) Validate() error {
	if p.Name == "" {
		return fmt.Errorf("PipelineSpec.Name is required")
	}
	if len(p.Stages) == 0 {
		return fmt.Errorf("pipeline '%s' declares no stages", p.Name)
	}

	names := make(map[string]bool, len(p.Stages))
	for _, s := range p.Stages {
		if s == "" {
			return fmt.Errorf("pipeline '%s' has an empty stage name", p.Name)
		}
		if names[s] {
			return fmt.Errorf("duplicate stage name: %s", s)
		}
		names[s] = true
	}

	if !names[p.EntryStage()] {
		return fmt.Errorf("entry stage '%s' is not declared", p.EntryStage())
	}

	validTargets := make(map[string]bool, len(names)+1)
	for n := range names {
		validTargets[n] = true
	}
	validTargets[EndStage] = true

	seen := make(map[string]bool, len(p.Transitions))
	for _, t := range p.Transitions {
		if !names[t.From] {
			return fmt.Errorf("transition from unknown stage '%s'", t.From)
		}
		if seen[t.From] {
			return fmt.Errorf("duplicate transitions for stage '%s'", t.From)
		}
		seen[t.From] = true

		if t.Pass != "" && !validTargets[t.Pass] {
			return fmt.Errorf("stage '%s' pass routes to unknown target '%s'", t.From, t.Pass)
		}
		if t.Fail != "" && !validTargets[t.Fail] {
			return fmt.Errorf("stage '%s' fail routes to unknown target '%s'", t.From, t.Fail)
		}
	}

	for stage, roles := range p.Roles {
		if !names[stage] {
			return fmt.Errorf("roles for unknown stage '%s'", stage)
		}
		dup := make(map[string]bool, len(roles))
		for _, r := range roles {
			if !allocatable(r) {
				return fmt.Errorf("stage '%s' cannot allocate role '%s'", stage, r)
			}
			if dup[r] {
				return fmt.Errorf("stage '%s' allocates role '%s' twice", stage, r)
			}
			dup[r] = true
		}
	}
	return nil
}

func allocatable(role string) bool {
	for _, r := range AllocatableRoles {
		if r == role {
			return true
		}
	}
	return false
}

// LoadPipelineSpec reads and validates a YAML pipeline topology.
func LoadPipelineSpec(path string) (*PipelineSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read pipeline spec: %w", err)
	}

	var spec PipelineSpec
	if err := yaml.Unmarshal(data, &spec); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	if err := spec.Validate(); err != nil {
		return nil, fmt.Errorf("invalid pipeline spec: %w", err)
	}
	return &spec, nil
}
