package pipeline

import (
	"context"
	"sync"
)

// ParticipantSource is implemented by stages that expose the participants
// they were entered with.
type ParticipantSource interface {
	Participants() EntryInputs
}

// OutputSource is implemented by stages that expose produced artifacts.
type OutputSource interface {
	Outputs() Inputs
}

// NoInputs hands nothing to the next stage.
func NoInputs(context.Context, Stage) (EntryInputs, error) {
	return EntryInputs{}, nil
}

// ForwardParticipants hands the exited stage's participants to the next stage.
func ForwardParticipants(_ context.Context, from Stage) (EntryInputs, error) {
	if ps, ok := from.(ParticipantSource); ok {
		in := ps.Participants()
		in.Extra = nil
		return in, nil
	}
	return EntryInputs{}, nil
}

// ForwardAll hands over participants and produced outputs.
func ForwardAll(ctx context.Context, from Stage) (EntryInputs, error) {
	in, err := ForwardParticipants(ctx, from)
	if err != nil {
		return in, err
	}
	if src, ok := from.(OutputSource); ok {
		in.Extra = src.Outputs()
	}
	return in, nil
}

// =============================================================================
// SCRIPTED STAGE
// =============================================================================

// ScriptedStage is a Stage whose exit outcomes follow a script. It records
// every lifecycle call and is used for dry runs and tests.
type ScriptedStage struct {
	// Outcomes are returned by successive Exit calls.
	Outcomes []bool
	// Default is returned once Outcomes is exhausted.
	Default bool
	// Work, when set, runs inside Execute.
	Work func(ctx context.Context, s *ScriptedStage) error
	// Output is exposed through Outputs.
	Output Inputs

	EnterErr   error
	ExecuteErr error
	ExitErr    error

	mu         sync.Mutex
	entries    []EnterParams
	executions int
	exits      int
}

// NewScriptedStage creates a stage whose exits return outcomes in order.
func NewScriptedStage(outcomes ...bool) *ScriptedStage {
	return &ScriptedStage{Outcomes: outcomes}
}

func (s *ScriptedStage) Enter(_ context.Context, params EnterParams) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries = append(s.entries, params)
	return s.EnterErr
}

func (s *ScriptedStage) Execute(ctx context.Context) error {
	s.mu.Lock()
	s.executions++
	work := s.Work
	s.mu.Unlock()

	if s.ExecuteErr != nil {
		return s.ExecuteErr
	}
	if work != nil {
		return work(ctx, s)
	}
	return nil
}

func (s *ScriptedStage) Exit(context.Context) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.ExitErr != nil {
		return false, s.ExitErr
	}
	outcome := s.Default
	if s.exits < len(s.Outcomes) {
		outcome = s.Outcomes[s.exits]
	}
	s.exits++
	return outcome, nil
}

// Entries returns every EnterParams received, oldest first.
func (s *ScriptedStage) Entries() []EnterParams {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]EnterParams(nil), s.entries...)
}

// LastEntry returns the most recent EnterParams.
func (s *ScriptedStage) LastEntry() (EnterParams, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.entries) == 0 {
		return EnterParams{}, false
	}
	return s.entries[len(s.entries)-1], true
}

// Executions returns the number of Execute calls.
func (s *ScriptedStage) Executions() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.executions
}

// Exits returns the number of Exit calls.
func (s *ScriptedStage) Exits() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exits
}

// Participants returns the inputs of the most recent entry.
func (s *ScriptedStage) Participants() EntryInputs {
	last, _ := s.LastEntry()
	return last.EntryInputs
}

// Outputs returns Output.
func (s *ScriptedStage) Outputs() Inputs {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.Output
}
