package artifacts

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// EventKind classifies a run event.
type EventKind string

const (
	EventRunStarted      EventKind = "run_started"
	EventAgentsAllocated EventKind = "agents_allocated"
	EventStageEntered    EventKind = "stage_entered"
	EventStageExecuted   EventKind = "stage_executed"
	EventTransition      EventKind = "transition"
	EventRunCompleted    EventKind = "run_completed"
	EventRunFailed       EventKind = "run_failed"
)

// Event is one entry of the run event log.
type Event struct {
	ID           string    `json:"id"`
	Run          string    `json:"run"`
	Seq          int       `json:"seq"`
	Step         int       `json:"step"`
	Kind         EventKind `json:"kind"`
	Stage        string    `json:"stage,omitempty"`
	Target       string    `json:"target,omitempty"`
	Outcome      *bool     `json:"outcome,omitempty"`
	Participants []string  `json:"participants,omitempty"`
	Message      string    `json:"message,omitempty"`
	CreatedAtMs  int64     `json:"created_at_ms"`
}

// EventLog is the append-only, run-scoped event log.
type EventLog struct {
	backend store.Backend

	mu  sync.Mutex
	run string
}

// NewEventLog creates an event log over backend.
func NewEventLog(backend store.Backend) *EventLog {
	return &EventLog{backend: backend, run: DefaultRunName}
}

// SetRunName scopes the log to run.
func (l *EventLog) SetRunName(run string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if run == "" {
		run = DefaultRunName
	}
	l.run = run
}

// RunName returns the current run scope.
func (l *EventLog) RunName() string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.run
}

func (l *EventLog) table() *store.Table[Event] {
	return store.NewTable[Event](l.backend, store.RunBucket(l.run, string(KindEvent)))
}

// Append assigns the event its ID, run, sequence number and timestamp and
// stores it. Sequence numbers start at 1 and come from the bucket length, so
// appending never reads earlier events.
func (l *EventLog) Append(ctx context.Context, e Event) (Event, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.table()
	n, err := t.Len(ctx)
	if err != nil {
		return Event{}, fmt.Errorf("failed to count events: %w", err)
	}

	e.ID = uuid.NewString()
	e.Run = l.run
	e.Seq = n + 1
	if e.CreatedAtMs == 0 {
		e.CreatedAtMs = time.Now().UnixMilli()
	}
	if err := t.Put(ctx, seqKey(e.Seq), e); err != nil {
		return Event{}, err
	}
	return e, nil
}

// Events returns the current run's events in sequence order.
func (l *EventLog) Events(ctx context.Context) ([]Event, error) {
	l.mu.Lock()
	t := l.table()
	l.mu.Unlock()

	events, err := t.List(ctx)
	if err != nil {
		return nil, err
	}
	sort.Slice(events, func(i, j int) bool { return events[i].Seq < events[j].Seq })
	return events, nil
}

// Dump returns the current run's events in sequence order.
func (l *EventLog) Dump(ctx context.Context) ([]Event, error) {
	return l.Events(ctx)
}

// Restore replaces the current run's events.
func (l *EventLog) Restore(ctx context.Context, events []Event) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	t := l.table()
	if err := t.Clear(ctx); err != nil {
		return err
	}
	for _, e := range events {
		if err := t.Put(ctx, seqKey(e.Seq), e); err != nil {
			return err
		}
	}
	return nil
}

// seqKey zero-pads so that key order matches sequence order.
func seqKey(seq int) string {
	return fmt.Sprintf("%010d", seq)
}
