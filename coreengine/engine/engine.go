// Package engine provides the orchestration engine that drives a run through
// the stages of a pipeline.
//
// A run starts by allocating one leader against the task text and entering
// the entry stage. Each cycle then executes the current stage, increments the
// step counter and transitions: the stage exits with a pass/fail outcome, the
// transition table names the next stage, and the transition function
// registered for that edge marshals the entry inputs of the next stage. The
// run ends when the current stage is "end".
package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jeeves-cluster-organization/researchtown/commbus"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// Run states reported by Status.
const (
	StateIdle      = "idle"
	StateRunning   = "running"
	StateCompleted = "completed"
	StateFailed    = "failed"
	StateStopped   = "stopped"
)

// Dependencies are the collaborators injected at construction.
type Dependencies struct {
	Config    *config.Config
	Directory agents.Directory
	Artifacts *artifacts.ArtifactStore
	Progress  *artifacts.ProgressStore
	Events    *artifacts.EventLog

	// Bus is optional. When set, the engine publishes lifecycle events and
	// answers GetRunStatus and StopRun.
	Bus commbus.CommBus

	// RunName scopes the progress store and event log.
	RunName string

	// LeaderPK, when set, names the leader of every run instead of matching
	// one against the task.
	LeaderPK string
	Logger   observability.Logger
}

// DependenciesFor wires every store over one backend, using the matching
// strategy from cfg.
func DependenciesFor(cfg *config.Config, backend store.Backend) (Dependencies, error) {
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	matcher, err := agents.NewMatcher(cfg.Matching.Strategy, cfg.Matching.EmbeddingDim)
	if err != nil {
		return Dependencies{}, err
	}
	return Dependencies{
		Config:    cfg,
		Directory: agents.NewDirectory(backend, matcher),
		Artifacts: artifacts.NewArtifactStore(backend),
		Progress:  artifacts.NewProgressStore(backend),
		Events:    artifacts.NewEventLog(backend),
	}, nil
}

// Engine drives one run at a time over a built pipeline.
type Engine struct {
	pipeline  *pipeline.Pipeline
	cfg       *config.Config
	allocator *agents.Allocator
	dir       agents.Directory
	artifacts *artifacts.ArtifactStore
	progress  *artifacts.ProgressStore
	events    *artifacts.EventLog
	bus       commbus.CommBus
	logger    observability.Logger
	stop      *pipeline.StopFlag

	mu          sync.Mutex
	runID       string
	runName     string
	leaderPK    string
	baseLLM     string
	step        int
	current     pipeline.Stage
	currentName string
	lastOutcome *bool
	state       string
}

// New creates an engine. It resets role availability across the directory
// and scopes the run stores to deps.RunName.
func New(ctx context.Context, p *pipeline.Pipeline, deps Dependencies) (*Engine, error) {
	if p == nil {
		return nil, errors.New("pipeline is required")
	}
	if deps.Directory == nil || deps.Artifacts == nil || deps.Progress == nil || deps.Events == nil {
		return nil, errors.New("directory, artifact, progress and event stores are required")
	}
	cfg := deps.Config
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	runName := deps.RunName
	if runName == "" {
		runName = artifacts.DefaultRunName
	}
	logger := observability.OrNop(deps.Logger).Bind("pipeline", p.Name(), "run_name", runName)

	e := &Engine{
		pipeline:  p,
		cfg:       cfg,
		allocator: agents.NewAllocator(deps.Directory, logger),
		dir:       deps.Directory,
		artifacts: deps.Artifacts,
		progress:  deps.Progress,
		events:    deps.Events,
		bus:       deps.Bus,
		logger:    logger,
		stop:      &pipeline.StopFlag{},
		runName:   runName,
		leaderPK:  deps.LeaderPK,
		baseLLM:   cfg.BaseLLM,
		state:     StateIdle,
	}
	e.progress.SetRunName(runName)
	e.events.SetRunName(runName)

	if err := e.dir.ResetRoleAvailability(ctx); err != nil {
		return nil, fmt.Errorf("failed to reset role availability: %w", err)
	}

	if e.bus != nil {
		if err := e.registerHandlers(); err != nil {
			return nil, err
		}
	}

	logger.Info("engine_created", "stages", p.Stages(), "entry", p.Entry(), "base_llm", cfg.BaseLLM)
	return e, nil
}

// Close releases the bus handlers registered by New.
func (e *Engine) Close() {
	if e.bus != nil {
		e.bus.UnregisterHandler("GetRunStatus")
		e.bus.UnregisterHandler("StopRun")
	}
}

// Allocator returns the allocator bound to the engine's directory.
// Stages and transition functions use it for role specializations.
func (e *Engine) Allocator() *agents.Allocator { return e.allocator }

// Progress returns the run-scoped progress store.
func (e *Engine) Progress() *artifacts.ProgressStore { return e.progress }

// Config returns the injected configuration.
func (e *Engine) Config() *config.Config { return e.cfg }

// =============================================================================
// RUN LIFECYCLE
// =============================================================================

// Start resets the run context, allocates one leader against task and enters
// entry with that leader. An empty entry uses the pipeline's entry stage.
func (e *Engine) Start(ctx context.Context, task, entry string) error {
	if entry == "" {
		entry = e.pipeline.Entry()
	}
	stage, err := e.pipeline.Stage(entry)
	if err != nil {
		return err
	}

	e.mu.Lock()
	e.runID = uuid.NewString()
	e.step = 0
	e.lastOutcome = nil
	e.current = nil
	e.currentName = ""
	e.state = StateRunning
	runID := e.runID
	e.mu.Unlock()
	e.stop.Reset()

	e.logger.Info("engine_run_starting", "run_id", runID, "entry", entry)

	leaders, err := e.pickLeader(ctx, task)
	if err != nil {
		return err
	}
	if err := e.record(ctx, artifacts.Event{
		Kind:         artifacts.EventAgentsAllocated,
		Stage:        entry,
		Participants: pks(leaders),
		Message:      string(agents.RoleLeader),
	}, &commbus.AgentsAllocated{RunID: runID, Role: string(agents.RoleLeader), ParticipantPKs: pks(leaders)}); err != nil {
		return err
	}

	in := pipeline.EntryInputs{
		Profiles: leaders,
		Roles:    []agents.Role{agents.RoleLeader},
		Models:   []string{e.BaseLLM()},
	}
	if err := e.enter(ctx, entry, stage, in); err != nil {
		return err
	}

	return e.record(ctx, artifacts.Event{
		Kind:         artifacts.EventRunStarted,
		Stage:        entry,
		Participants: pks(leaders),
		Message:      task,
	}, &commbus.RunStarted{RunID: runID, RunName: e.runName, Task: task, Entry: entry, LeaderPK: leaders[0].PK})
}

// pickLeader tags the configured leader, or the participant best matching
// task when none is configured.
func (e *Engine) pickLeader(ctx context.Context, task string) ([]agents.Participant, error) {
	if e.leaderPK == "" {
		return e.allocator.FindAgents(ctx, agents.AnyParticipant, task, 1, agents.RoleLeader)
	}
	found, err := e.dir.Get(ctx, agents.ByPK(e.leaderPK))
	if err != nil {
		return nil, fmt.Errorf("failed to query directory: %w", err)
	}
	if len(found) == 0 {
		return nil, agents.NewAllocationError(agents.RoleLeader, e.leaderPK, 1, 0, fmt.Errorf("participant %s not found", e.leaderPK))
	}
	leader, err := e.allocator.SetLeader(ctx, found[0])
	if err != nil {
		return nil, err
	}
	return []agents.Participant{leader}, nil
}

// Run starts a run from the pipeline's entry stage and cycles until the
// current stage is end.
//
// There is no iteration cap: a topology without a path to end runs until ctx
// is cancelled or Stop is called. Every error aborts the run.
//
// Stages only observe the stop flag; they are never forced to end. Run goes
// further than that and checks the flag itself between cycles: once it is
// set, the cycle in progress finishes and Run returns ErrStopped instead of
// executing the next stage.
func (e *Engine) Run(ctx context.Context, task string) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "engine.run")
	span.SetAttributes(attribute.String("pipeline", e.pipeline.Name()))
	startTime := time.Now()
	defer func() {
		e.finish(ctx, startTime, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := e.Start(ctx, task, ""); err != nil {
		return err
	}
	return e.cycle(ctx)
}

// Resume continues a run from its current stage, typically after Load. The
// current stage is executed without being entered again, then the engine
// cycles until end exactly like Run. Stages that build state in Enter start
// from their zero state, because checkpoints do not carry stage internals.
//
// Returns nil when the run already reached end and ErrNotStarted when no
// stage is bound.
func (e *Engine) Resume(ctx context.Context) (err error) {
	e.mu.Lock()
	name, stage, runID, step := e.currentName, e.current, e.runID, e.step
	e.mu.Unlock()
	if name == pipeline.End {
		return nil
	}
	if stage == nil {
		return ErrNotStarted
	}

	ctx, span := observability.Tracer().Start(ctx, "engine.resume")
	span.SetAttributes(attribute.String("pipeline", e.pipeline.Name()), attribute.String("stage", name))
	startTime := time.Now()
	defer func() {
		e.finish(ctx, startTime, err)
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	e.mu.Lock()
	e.state = StateRunning
	e.mu.Unlock()
	e.stop.Reset()
	e.logger.Info("engine_run_resuming", "run_id", runID, "stage", name, "step", step)

	return e.cycle(ctx)
}

// cycle executes and transitions until the current stage is end.
func (e *Engine) cycle(ctx context.Context) error {
	for e.CurrentStage() != pipeline.End {
		if err := ctx.Err(); err != nil {
			e.logger.Info("engine_run_cancelled", "stage", e.CurrentStage(), "reason", err.Error())
			return err
		}
		if e.stop.Stopped() {
			return ErrStopped
		}

		if err := e.execute(ctx); err != nil {
			return err
		}

		e.mu.Lock()
		e.step++
		e.mu.Unlock()

		if err := e.Transition(ctx); err != nil {
			return err
		}
	}
	return nil
}

// Transition exits the current stage, follows the edge for its outcome and
// enters the next stage with the inputs produced by the edge's transition
// function. Reaching an unregistered end stage clears the current stage.
func (e *Engine) Transition(ctx context.Context) (err error) {
	e.mu.Lock()
	from, stage, step := e.currentName, e.current, e.step
	e.mu.Unlock()
	if stage == nil {
		return ErrNotStarted
	}

	ctx, span := observability.Tracer().Start(ctx, "engine.transition")
	span.SetAttributes(attribute.String("from", from), attribute.Int("step", step))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	outcome, err := stage.Exit(ctx)
	if err != nil {
		return NewStageError(from, PhaseExit, step, err)
	}

	next, err := e.pipeline.Next(from, outcome)
	if err != nil {
		return err
	}
	fn, err := e.pipeline.TransitionFunc(from, next)
	if err != nil {
		return err
	}
	in, err := fn(ctx, stage)
	if err != nil {
		return NewStageError(from, PhaseTransfer, step, err)
	}
	if len(in.Models) == 0 && len(in.Profiles) > 0 {
		in.Models = e.baseModels(len(in.Profiles))
	}

	span.SetAttributes(attribute.String("to", next), attribute.Bool("outcome", outcome))
	observability.RecordTransition(from, next, outcome)
	e.logger.Info("engine_transition", "from", from, "to", next, "outcome", outcome, "step", step)

	e.mu.Lock()
	e.lastOutcome = &outcome
	runID := e.runID
	e.mu.Unlock()

	if err := e.record(ctx, artifacts.Event{
		Kind:    artifacts.EventTransition,
		Stage:   from,
		Target:  next,
		Outcome: &outcome,
	}, &commbus.StageTransition{RunID: runID, From: from, To: next, Outcome: outcome, Step: step}); err != nil {
		return err
	}

	nextStage, ok := e.pipeline.Lookup(next)
	if !ok {
		if next != pipeline.End {
			return pipeline.NewUnknownStageError(next)
		}
		e.mu.Lock()
		e.current = nil
		e.currentName = pipeline.End
		e.mu.Unlock()
		return nil
	}
	return e.enter(ctx, next, nextStage, in)
}

// Stop sets the cooperative stop flag handed to every stage. Stages decide
// for themselves how to react; Run and Resume additionally enforce it at the
// next cycle boundary by returning ErrStopped.
func (e *Engine) Stop() {
	e.stop.Set()
	e.logger.Info("engine_stop_requested")
}

// =============================================================================
// ACCESSORS
// =============================================================================

// CurrentStage returns the name of the current stage, or "" before Start.
func (e *Engine) CurrentStage() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.currentName
}

// Step returns the number of completed stage cycles in this run.
func (e *Engine) Step() int {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.step
}

// RunID returns the identifier of the current run.
func (e *Engine) RunID() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.runID
}

// BaseLLM returns the model identifier handed to stages.
func (e *Engine) BaseLLM() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.baseLLM
}

// StopFlag returns the flag shared with stages.
func (e *Engine) StopFlag() *pipeline.StopFlag { return e.stop }

// Status returns a snapshot of the run position.
func (e *Engine) Status() commbus.RunStatus {
	e.mu.Lock()
	defer e.mu.Unlock()
	var last *bool
	if e.lastOutcome != nil {
		v := *e.lastOutcome
		last = &v
	}
	return commbus.RunStatus{
		RunID:       e.runID,
		RunName:     e.runName,
		Stage:       e.currentName,
		Step:        e.step,
		State:       e.state,
		LastOutcome: last,
		Stopped:     e.stop.Stopped(),
	}
}

// =============================================================================
// INTERNAL HELPERS
// =============================================================================

func (e *Engine) enter(ctx context.Context, name string, stage pipeline.Stage, in pipeline.EntryInputs) (err error) {
	e.mu.Lock()
	e.current = stage
	e.currentName = name
	step, runID := e.step, e.runID
	e.mu.Unlock()

	ctx, span := observability.Tracer().Start(ctx, "engine.enter")
	span.SetAttributes(attribute.String("stage", name), attribute.Int("step", step))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	if err := stage.Enter(ctx, pipeline.EnterParams{Step: step, Stop: e.stop, EntryInputs: in}); err != nil {
		return NewStageError(name, PhaseEnter, step, err)
	}

	e.logger.Info("engine_stage_entered", "stage", name, "step", step, "participants", len(in.Profiles))
	return e.record(ctx, artifacts.Event{
		Kind:         artifacts.EventStageEntered,
		Stage:        name,
		Participants: in.ParticipantPKs(),
	}, &commbus.StageEntered{RunID: runID, Stage: name, Step: step, ParticipantPKs: in.ParticipantPKs()})
}

func (e *Engine) execute(ctx context.Context) (err error) {
	e.mu.Lock()
	name, stage, step, runID := e.currentName, e.current, e.step, e.runID
	e.mu.Unlock()
	if stage == nil {
		return ErrNotStarted
	}

	ctx, span := observability.Tracer().Start(ctx, "engine.execute")
	span.SetAttributes(attribute.String("stage", name), attribute.Int("step", step))
	startTime := time.Now()

	execErr := stage.Execute(ctx)

	durationMS := int(time.Since(startTime).Milliseconds())
	status := "success"
	var errText *string
	if execErr != nil {
		status = "error"
		msg := execErr.Error()
		errText = &msg
		span.RecordError(execErr)
		span.SetStatus(codes.Error, msg)
	}
	span.End()
	observability.RecordStageExecution(name, status, durationMS)

	if execErr != nil {
		e.logger.Error("engine_stage_failed", "stage", name, "step", step, "error", execErr.Error())
		return NewStageError(name, PhaseExecute, step, execErr)
	}

	e.logger.Debug("engine_stage_executed", "stage", name, "step", step, "duration_ms", durationMS)
	return e.record(ctx, artifacts.Event{
		Kind:  artifacts.EventStageExecuted,
		Stage: name,
	}, &commbus.StageExecuted{RunID: runID, Stage: name, Step: step, DurationMS: durationMS, Error: errText})
}

// finish records the run outcome. Event log failures here are logged only,
// so the run error is the one returned.
func (e *Engine) finish(ctx context.Context, startTime time.Time, runErr error) {
	durationMS := int(time.Since(startTime).Milliseconds())

	e.mu.Lock()
	runID, stage, step := e.runID, e.currentName, e.step
	switch {
	case runErr == nil:
		e.state = StateCompleted
	case errors.Is(runErr, ErrStopped) || errors.Is(runErr, context.Canceled):
		e.state = StateStopped
	default:
		e.state = StateFailed
	}
	state := e.state
	e.mu.Unlock()

	observability.RecordRun(e.pipeline.Name(), state, durationMS)

	var err error
	if runErr == nil {
		e.logger.Info("engine_run_completed", "run_id", runID, "steps", step, "duration_ms", durationMS)
		err = e.record(ctx, artifacts.Event{Kind: artifacts.EventRunCompleted, Stage: stage},
			&commbus.RunCompleted{RunID: runID, Steps: step, DurationMS: durationMS})
	} else {
		e.logger.Error("engine_run_failed", "run_id", runID, "stage", stage, "step", step, "error", runErr.Error())
		err = e.record(context.WithoutCancel(ctx), artifacts.Event{Kind: artifacts.EventRunFailed, Stage: stage, Message: runErr.Error()},
			&commbus.RunFailed{RunID: runID, Stage: stage, Step: step, Error: runErr.Error()})
	}
	if err != nil {
		e.logger.Warn("engine_event_record_failed", "error", err.Error())
	}
}

// record appends ev to the event log and publishes msg on the bus.
// Bus failures are logged; event log failures are returned.
func (e *Engine) record(ctx context.Context, ev artifacts.Event, msg commbus.Message) error {
	ev.Step = e.Step()
	if _, err := e.events.Append(ctx, ev); err != nil {
		return fmt.Errorf("failed to record %s event: %w", ev.Kind, err)
	}
	if e.bus != nil && msg != nil {
		if err := e.bus.Publish(ctx, msg); err != nil {
			e.logger.Warn("engine_publish_failed", "type", commbus.GetMessageType(msg), "error", err.Error())
		}
	}
	return nil
}

func (e *Engine) baseModels(n int) []string {
	model := e.BaseLLM()
	models := make([]string, n)
	for i := range models {
		models[i] = model
	}
	return models
}

func (e *Engine) registerHandlers() error {
	if err := e.bus.RegisterHandler("GetRunStatus", func(ctx context.Context, _ commbus.Message) (any, error) {
		s := e.Status()
		return &s, nil
	}); err != nil {
		return fmt.Errorf("failed to register status handler: %w", err)
	}
	if err := e.bus.RegisterHandler("StopRun", func(ctx context.Context, msg commbus.Message) (any, error) {
		if cmd, ok := msg.(*commbus.StopRun); ok && cmd.Reason != "" {
			e.logger.Info("engine_stop_command", "reason", cmd.Reason)
		}
		e.Stop()
		return nil, nil
	}); err != nil {
		e.bus.UnregisterHandler("GetRunStatus")
		return fmt.Errorf("failed to register stop handler: %w", err)
	}
	return nil
}

func pks(ps []agents.Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.PK
	}
	return out
}
