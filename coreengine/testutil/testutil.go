// Package testutil provides shared test utilities and mocks.
//
// Everything here runs in-process: the Redis helpers start a miniredis
// server, and the pipeline helpers build topologies of scripted stages.
package testutil

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// =============================================================================
// MOCK LLM PROVIDER
// =============================================================================

// MockLLMProvider answers Generate calls from canned responses.
// Configure responses by prompt substring or use DefaultResponse.
type MockLLMProvider struct {
	// Responses maps prompt substrings to responses.
	// Longest matching substring wins.
	Responses map[string]string

	// DefaultResponse is returned when nothing matches.
	DefaultResponse string

	// Delay simulates LLM latency.
	Delay time.Duration

	// Error causes Generate to return this error.
	Error error

	// GenerateFunc, if set, replaces the canned responses.
	GenerateFunc func(ctx context.Context, model, prompt string, options map[string]any) (string, error)

	calls []LLMCall
	mu    sync.Mutex
}

// LLMCall records a single LLM call for assertion.
type LLMCall struct {
	Model   string
	Prompt  string
	Options map[string]any
}

// NewMockLLMProvider creates a MockLLMProvider that scores everything 80.
func NewMockLLMProvider() *MockLLMProvider {
	return &MockLLMProvider{
		Responses:       make(map[string]string),
		DefaultResponse: "Overall Score=80. Dimension Scores=[8, 8, 8, 8, 8, 8, 8, 8, 8, 8]",
	}
}

// Generate returns the configured response for prompt.
func (m *MockLLMProvider) Generate(ctx context.Context, model, prompt string, options map[string]any) (string, error) {
	m.mu.Lock()
	m.calls = append(m.calls, LLMCall{Model: model, Prompt: prompt, Options: options})
	customFunc := m.GenerateFunc
	delay, err := m.Delay, m.Error
	m.mu.Unlock()

	if customFunc != nil {
		return customFunc(ctx, model, prompt, options)
	}

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return "", ctx.Err()
		}
	}
	if err != nil {
		return "", err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	best, response := -1, m.DefaultResponse
	for key, r := range m.Responses {
		if strings.Contains(prompt, key) && len(key) > best {
			best, response = len(key), r
		}
	}
	return response, nil
}

// WithResponse adds a substring-matched response.
func (m *MockLLMProvider) WithResponse(substring, response string) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Responses[substring] = response
	return m
}

// WithError configures the mock to return an error.
func (m *MockLLMProvider) WithError(err error) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Error = err
	return m
}

// WithDelay adds latency simulation.
func (m *MockLLMProvider) WithDelay(d time.Duration) *MockLLMProvider {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Delay = d
	return m
}

// Calls returns every recorded call.
func (m *MockLLMProvider) Calls() []LLMCall {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]LLMCall(nil), m.calls...)
}

// CallCount returns the number of calls.
func (m *MockLLMProvider) CallCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.calls)
}

// Reset clears call history.
func (m *MockLLMProvider) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls = nil
}

// =============================================================================
// TEST LOGGER
// =============================================================================

// TestLogger captures log calls per level.
type TestLogger struct {
	root   *TestLogger
	fields []any

	logs []LogEntry
	mu   sync.Mutex
}

// LogEntry represents a captured log entry.
type LogEntry struct {
	Level   string
	Message string
	Fields  map[string]any
}

// NewTestLogger creates a TestLogger.
func NewTestLogger() *TestLogger {
	return &TestLogger{}
}

func (l *TestLogger) Debug(msg string, kv ...any) { l.log("debug", msg, kv) }
func (l *TestLogger) Info(msg string, kv ...any)  { l.log("info", msg, kv) }
func (l *TestLogger) Warn(msg string, kv ...any)  { l.log("warn", msg, kv) }
func (l *TestLogger) Error(msg string, kv ...any) { l.log("error", msg, kv) }

// Bind returns a child that records into the same buffer with extra fields.
func (l *TestLogger) Bind(fields ...any) observability.Logger {
	return &TestLogger{
		root:   l.rootLogger(),
		fields: append(append([]any(nil), l.fields...), fields...),
	}
}

func (l *TestLogger) rootLogger() *TestLogger {
	if l.root != nil {
		return l.root
	}
	return l
}

func (l *TestLogger) log(level, msg string, kv []any) {
	all := append(append([]any(nil), l.fields...), kv...)
	fields := make(map[string]any, len(all)/2)
	for i := 0; i+1 < len(all); i += 2 {
		if key, ok := all[i].(string); ok {
			fields[key] = all[i+1]
		}
	}

	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.logs = append(root.logs, LogEntry{Level: level, Message: msg, Fields: fields})
}

// Logs returns captured logs.
func (l *TestLogger) Logs() []LogEntry {
	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()
	return append([]LogEntry(nil), root.logs...)
}

// HasLog checks if a message was logged at level.
func (l *TestLogger) HasLog(level, message string) bool {
	for _, e := range l.Logs() {
		if e.Level == level && e.Message == message {
			return true
		}
	}
	return false
}

// Count returns how many times message was logged at any level.
func (l *TestLogger) Count(message string) int {
	n := 0
	for _, e := range l.Logs() {
		if e.Message == message {
			n++
		}
	}
	return n
}

// Clear removes all captured logs.
func (l *TestLogger) Clear() {
	root := l.rootLogger()
	root.mu.Lock()
	defer root.mu.Unlock()
	root.logs = nil
}

// =============================================================================
// STORAGE / DIRECTORY HELPERS
// =============================================================================

// NewRedisBackend starts a miniredis server for the test and returns a
// backend over it.
func NewRedisBackend(t testing.TB) (*store.RedisBackend, *miniredis.Miniredis) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("failed to start miniredis: %v", err)
	}
	t.Cleanup(mr.Close)

	backend, err := store.NewRedisBackend(&redis.Options{Addr: mr.Addr()}, "test")
	if err != nil {
		t.Fatalf("failed to create redis backend: %v", err)
	}
	t.Cleanup(func() { _ = backend.Close() })
	return backend, mr
}

// SampleParticipants returns a small directory population with distinct bios.
func SampleParticipants() []agents.Participant {
	return []agents.Participant{
		{PK: "p1", Name: "Ada", Bio: "graph neural networks and molecule generation"},
		{PK: "p2", Name: "Ben", Bio: "reinforcement learning for robotics"},
		{PK: "p3", Name: "Cy", Bio: "large language models and retrieval augmented generation"},
		{PK: "p4", Name: "Dee", Bio: "state space models for long sequence modeling"},
		{PK: "p5", Name: "Eve", Bio: "language models, alignment and evaluation"},
	}
}

// SeedDirectory stores participants in dir.
func SeedDirectory(ctx context.Context, dir agents.Directory, participants []agents.Participant) error {
	for _, p := range participants {
		if err := dir.Put(ctx, p); err != nil {
			return fmt.Errorf("failed to seed %s: %w", p.PK, err)
		}
	}
	return nil
}

// AssertExclusiveRoles returns an error naming the first participant tagged
// as a candidate for more than one role.
func AssertExclusiveRoles(ctx context.Context, dir agents.Directory) error {
	all, err := dir.Dump(ctx, false)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.Role == agents.RoleUnassigned {
			continue
		}
		n := 0
		for _, r := range agents.Roles {
			if p.CandidateFor(r) {
				n++
			}
		}
		if n != 1 {
			return fmt.Errorf("participant %s is a candidate for %d roles", p.PK, n)
		}
	}
	return nil
}

// =============================================================================
// PIPELINE HELPERS
// =============================================================================

// LinearPipeline builds stages in order, each passing to the next on both
// outcomes, the last one passing to end. Every edge forwards participants.
func LinearPipeline(name string, stages ...string) (*pipeline.Pipeline, map[string]*pipeline.ScriptedStage, error) {
	if len(stages) == 0 {
		stages = []string{pipeline.Start, "review"}
	}
	b := pipeline.NewBuilder(name).Entry(stages[0])
	scripted := make(map[string]*pipeline.ScriptedStage, len(stages))
	for i, s := range stages {
		st := pipeline.NewScriptedStage()
		scripted[s] = st
		next := pipeline.End
		if i+1 < len(stages) {
			next = stages[i+1]
		}
		b.AddStage(s, st).
			AddTransition(s, true, next).
			AddTransition(s, false, next).
			AddTransitionFunc(s, next, pipeline.ForwardParticipants)
	}
	p, err := b.Build()
	return p, scripted, err
}
