package pipeline

import (
	"errors"
	"fmt"
)

// ErrConfiguration matches every *ConfigurationError via errors.Is.
var ErrConfiguration = errors.New("configuration error")

// ErrorKind classifies a ConfigurationError.
type ErrorKind string

const (
	KindUnknownStage          ErrorKind = "unknown_stage"
	KindMissingEdge           ErrorKind = "missing_edge"
	KindMissingTransitionFunc ErrorKind = "missing_transition_func"
	KindNoTerminalPath        ErrorKind = "no_terminal_path"
	KindInvalidDefinition     ErrorKind = "invalid_definition"
)

// ConfigurationError reports a defect in the stage topology. The message names
// the stage or edge so the table or registry can be fixed.
type ConfigurationError struct {
	Kind    ErrorKind
	Stage   string
	Target  string
	Outcome bool
	Detail  string
}

func (e *ConfigurationError) Error() string {
	switch e.Kind {
	case KindUnknownStage:
		return fmt.Sprintf("stage '%s' is not registered", e.Stage)
	case KindMissingEdge:
		return fmt.Sprintf("no transition from stage '%s' on outcome %t", e.Stage, e.Outcome)
	case KindMissingTransitionFunc:
		return fmt.Sprintf("no transition function from '%s' to '%s'", e.Stage, e.Target)
	case KindNoTerminalPath:
		return fmt.Sprintf("no path from stage '%s' to '%s'", e.Stage, End)
	default:
		return fmt.Sprintf("invalid pipeline definition: %s", e.Detail)
	}
}

// Is makes errors.Is(err, ErrConfiguration) succeed.
func (e *ConfigurationError) Is(target error) bool {
	return target == ErrConfiguration
}

// NewUnknownStageError creates a ConfigurationError for an unregistered stage.
func NewUnknownStageError(stage string) *ConfigurationError {
	return &ConfigurationError{Kind: KindUnknownStage, Stage: stage}
}

// NewMissingEdgeError creates a ConfigurationError for an undefined (stage, outcome) pair.
func NewMissingEdgeError(stage string, outcome bool) *ConfigurationError {
	return &ConfigurationError{Kind: KindMissingEdge, Stage: stage, Outcome: outcome}
}

// NewMissingTransitionFuncError creates a ConfigurationError for an edge without a marshaling function.
func NewMissingTransitionFuncError(from, to string) *ConfigurationError {
	return &ConfigurationError{Kind: KindMissingTransitionFunc, Stage: from, Target: to}
}

func newInvalidDefinitionError(format string, args ...any) *ConfigurationError {
	return &ConfigurationError{Kind: KindInvalidDefinition, Detail: fmt.Sprintf(format, args...)}
}
