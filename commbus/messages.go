// Package commbus is the in-process message bus between the engine and its observers.
//
// Categories:
//   - EVENT: Fire-and-forget, fan-out to subscribers
//   - QUERY: Request-response, single handler
//   - COMMAND: Single handler, error returned to the sender
package commbus

// =============================================================================
// MESSAGE CATEGORIES
// =============================================================================

// MessageCategory represents message routing categories.
type MessageCategory string

const (
	MessageCategoryEvent   MessageCategory = "event"
	MessageCategoryQuery   MessageCategory = "query"
	MessageCategoryCommand MessageCategory = "command"
)

// =============================================================================
// RUN LIFECYCLE EVENTS
// =============================================================================

// RunStarted is emitted after the leader is allocated and the entry stage entered.
type RunStarted struct {
	RunID    string `json:"run_id"`
	RunName  string `json:"run_name"`
	Task     string `json:"task"`
	Entry    string `json:"entry"`
	LeaderPK string `json:"leader_pk"`
}

// Category implements the Message interface.
func (m *RunStarted) Category() string { return string(MessageCategoryEvent) }

// RunCompleted is emitted when the engine reaches the end stage.
type RunCompleted struct {
	RunID      string `json:"run_id"`
	Steps      int    `json:"steps"`
	DurationMS int    `json:"duration_ms"`
}

// Category implements the Message interface.
func (m *RunCompleted) Category() string { return string(MessageCategoryEvent) }

// RunFailed is emitted when a run aborts with an error or is stopped.
type RunFailed struct {
	RunID string `json:"run_id"`
	Stage string `json:"stage"`
	Step  int    `json:"step"`
	Error string `json:"error"`
}

// Category implements the Message interface.
func (m *RunFailed) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// STAGE EVENTS
// =============================================================================

// AgentsAllocated is emitted after participants are tagged with a role.
type AgentsAllocated struct {
	RunID          string   `json:"run_id"`
	Role           string   `json:"role"`
	ParticipantPKs []string `json:"participant_pks"`
}

// Category implements the Message interface.
func (m *AgentsAllocated) Category() string { return string(MessageCategoryEvent) }

// StageEntered is emitted after a stage accepted its entry inputs.
type StageEntered struct {
	RunID          string   `json:"run_id"`
	Stage          string   `json:"stage"`
	Step           int      `json:"step"`
	ParticipantPKs []string `json:"participant_pks,omitempty"`
}

// Category implements the Message interface.
func (m *StageEntered) Category() string { return string(MessageCategoryEvent) }

// StageExecuted is emitted after each execute cycle.
type StageExecuted struct {
	RunID      string  `json:"run_id"`
	Stage      string  `json:"stage"`
	Step       int     `json:"step"`
	DurationMS int     `json:"duration_ms"`
	Error      *string `json:"error,omitempty"`
}

// Category implements the Message interface.
func (m *StageExecuted) Category() string { return string(MessageCategoryEvent) }

// StageTransition is emitted when the engine follows a transition edge.
type StageTransition struct {
	RunID   string `json:"run_id"`
	From    string `json:"from"`
	To      string `json:"to"`
	Outcome bool   `json:"outcome"`
	Step    int    `json:"step"`
}

// Category implements the Message interface.
func (m *StageTransition) Category() string { return string(MessageCategoryEvent) }

// =============================================================================
// QUERIES
// =============================================================================

// GetRunStatus asks the engine for its current position.
type GetRunStatus struct{}

// Category implements the Message interface.
func (m *GetRunStatus) Category() string { return string(MessageCategoryQuery) }

// IsQuery implements the Query interface.
func (m *GetRunStatus) IsQuery() {}

// RunStatus is the response to GetRunStatus.
type RunStatus struct {
	RunID       string `json:"run_id"`
	RunName     string `json:"run_name"`
	Stage       string `json:"stage"`
	Step        int    `json:"step"`
	State       string `json:"state"`
	LastOutcome *bool  `json:"last_outcome,omitempty"`
	Stopped     bool   `json:"stopped"`
}

// =============================================================================
// COMMANDS
// =============================================================================

// StopRun asks the engine to halt at the next cycle boundary.
type StopRun struct {
	Reason string `json:"reason,omitempty"`
}

// Category implements the Message interface.
func (m *StopRun) Category() string { return string(MessageCategoryCommand) }

// =============================================================================
// MESSAGE TYPE REGISTRY
// =============================================================================

// GetMessageType returns the routing key for a message.
func GetMessageType(msg Message) string {
	if typed, ok := msg.(TypedMessage); ok {
		return typed.MessageType()
	}

	switch msg.(type) {
	case *RunStarted:
		return "RunStarted"
	case *RunCompleted:
		return "RunCompleted"
	case *RunFailed:
		return "RunFailed"
	case *AgentsAllocated:
		return "AgentsAllocated"
	case *StageEntered:
		return "StageEntered"
	case *StageExecuted:
		return "StageExecuted"
	case *StageTransition:
		return "StageTransition"
	case *GetRunStatus:
		return "GetRunStatus"
	case *StopRun:
		return "StopRun"
	default:
		return "Unknown"
	}
}

// RunEventTypes lists every event the engine publishes during a run.
var RunEventTypes = []string{
	"RunStarted",
	"AgentsAllocated",
	"StageEntered",
	"StageExecuted",
	"StageTransition",
	"RunCompleted",
	"RunFailed",
}
