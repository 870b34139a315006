// Package pipeline defines the stage contract and the stage topology driven by
// the engine: the stage registry, the transition table and the
// transition-function registry.
package pipeline

import (
	"context"
	"sync/atomic"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
)

// End is the reserved terminal stage name.
const End = config.EndStage

// Start is the default entry stage name.
const Start = config.StartStage

// Stage is a pluggable unit of work.
//
// The engine calls Enter once when the stage becomes current, Execute once per
// cycle, and Exit to finalize the stage and obtain its pass/fail outcome.
// Stage-internal state is reached only through the transition function
// registered for the edge being taken.
type Stage interface {
	Enter(ctx context.Context, params EnterParams) error
	Execute(ctx context.Context) error
	Exit(ctx context.Context) (bool, error)
}

// EnterParams is handed to Stage.Enter.
type EnterParams struct {
	Step int
	Stop *StopFlag
	EntryInputs
}

// EntryInputs are the participants and payload a stage receives on entry.
// Profiles, Roles and Models are parallel slices.
type EntryInputs struct {
	Profiles []agents.Participant `json:"profiles,omitempty"`
	Roles    []agents.Role        `json:"roles,omitempty"`
	Models   []string             `json:"models,omitempty"`
	Extra    Inputs               `json:"extra,omitempty"`
}

// ParticipantPKs returns the primary keys of Profiles.
func (in EntryInputs) ParticipantPKs() []string {
	pks := make([]string, len(in.Profiles))
	for i, p := range in.Profiles {
		pks[i] = p.PK
	}
	return pks
}

// StopFlag is the cooperative stop signal shared by the engine and every stage.
// Stages are expected to poll Stopped and end their work early.
type StopFlag struct {
	stopped atomic.Bool
}

// Stopped reports whether a stop was requested. A nil flag is never stopped.
func (f *StopFlag) Stopped() bool {
	return f != nil && f.stopped.Load()
}

// Set requests a stop.
func (f *StopFlag) Set() { f.stopped.Store(true) }

// Reset clears the flag.
func (f *StopFlag) Reset() { f.stopped.Store(false) }
