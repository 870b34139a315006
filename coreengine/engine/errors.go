package engine

import (
	"errors"
	"fmt"
)

// ErrStageExecution is matched by every *StageError.
var ErrStageExecution = errors.New("stage execution failed")

// ErrNotStarted is returned by Transition before Start or after the run reached end.
var ErrNotStarted = errors.New("engine has no current stage")

// ErrStopped is returned by Run when the stop flag was set between cycles.
var ErrStopped = errors.New("run stopped")

// Phase names the stage lifecycle call that failed.
type Phase string

const (
	PhaseEnter    Phase = "enter"
	PhaseExecute  Phase = "execute"
	PhaseExit     Phase = "exit"
	PhaseTransfer Phase = "transfer"
)

// StageError wraps an error surfaced by a stage. The engine does not
// interpret Err.
type StageError struct {
	Stage string
	Phase Phase
	Step  int
	Err   error
}

// NewStageError creates a StageError.
func NewStageError(stage string, phase Phase, step int, err error) *StageError {
	return &StageError{Stage: stage, Phase: phase, Step: step, Err: err}
}

func (e *StageError) Error() string {
	return fmt.Sprintf("stage '%s' %s failed at step %d: %v", e.Stage, e.Phase, e.Step, e.Err)
}

func (e *StageError) Unwrap() error { return e.Err }

// Is reports whether target is ErrStageExecution.
func (e *StageError) Is(target error) bool {
	return target == ErrStageExecution
}
