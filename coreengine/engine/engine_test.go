package engine

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/researchtown/commbus"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/testutil"
)

// =============================================================================
// TEST HELPERS
// =============================================================================

type harness struct {
	engine *Engine
	deps   Dependencies
	logger *testutil.TestLogger
}

func newHarness(t *testing.T, p *pipeline.Pipeline, backend store.Backend, bus commbus.CommBus) *harness {
	t.Helper()
	ctx := context.Background()
	if backend == nil {
		backend = store.NewMemoryBackend()
	}

	deps, err := DependenciesFor(config.DefaultConfig(), backend)
	require.NoError(t, err)
	require.NoError(t, testutil.SeedDirectory(ctx, deps.Directory, testutil.SampleParticipants()))

	logger := testutil.NewTestLogger()
	deps.Logger = logger
	deps.Bus = bus
	deps.RunName = "test-run"

	e, err := New(ctx, p, deps)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	return &harness{engine: e, deps: deps, logger: logger}
}

// reviewPipeline builds the two-stage topology
// start -(true)-> review, start -(false)-> end, review -(any)-> end.
func reviewPipeline(t *testing.T, start, review pipeline.Stage) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.NewBuilder("review-flow").
		AddStage(pipeline.Start, start).
		AddStage("review", review).
		AddTransition(pipeline.Start, true, "review").
		AddTransition(pipeline.Start, false, pipeline.End).
		AddTransition("review", true, pipeline.End).
		AddTransition("review", false, pipeline.End).
		AddTransitionFunc(pipeline.Start, "review", pipeline.ForwardParticipants).
		AddTransitionFunc(pipeline.Start, pipeline.End, pipeline.NoInputs).
		AddTransitionFunc("review", pipeline.End, pipeline.NoInputs).
		Build()
	require.NoError(t, err)
	return p
}

func eventKinds(t *testing.T, log *artifacts.EventLog) []artifacts.EventKind {
	t.Helper()
	events, err := log.Events(context.Background())
	require.NoError(t, err)
	kinds := make([]artifacts.EventKind, len(events))
	for i, e := range events {
		kinds[i] = e.Kind
	}
	return kinds
}

// =============================================================================
// CONSTRUCTION
// =============================================================================

func TestNew_ResetsRoleAvailability(t *testing.T) {
	ctx := context.Background()
	backend := store.NewMemoryBackend()
	deps, err := DependenciesFor(nil, backend)
	require.NoError(t, err)
	require.NoError(t, testutil.SeedDirectory(ctx, deps.Directory, testutil.SampleParticipants()))
	require.NoError(t, deps.Directory.SetRole(ctx, "p1", agents.RoleChair))

	_, err = New(ctx, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), deps)
	require.NoError(t, err)

	chairs, err := deps.Directory.Get(ctx, agents.Condition{Candidate: agents.RoleChair})
	require.NoError(t, err)
	for _, p := range chairs {
		assert.Equal(t, agents.RoleUnassigned, p.Role)
	}
}

func TestNew_Validation(t *testing.T) {
	ctx := context.Background()
	deps, err := DependenciesFor(nil, store.NewMemoryBackend())
	require.NoError(t, err)

	_, err = New(ctx, nil, deps)
	assert.Error(t, err)

	_, err = New(ctx, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), Dependencies{})
	assert.Error(t, err)

	bad := deps
	bad.Config = &config.Config{}
	_, err = New(ctx, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), bad)
	assert.ErrorContains(t, err, "invalid configuration")
}

func TestDependenciesFor_UnknownStrategy(t *testing.T) {
	cfg := config.DefaultConfig()
	cfg.Matching.Strategy = "telepathy"
	_, err := DependenciesFor(cfg, store.NewMemoryBackend())
	assert.Error(t, err)
}

// =============================================================================
// RUN
// =============================================================================

func TestRun_TwoStageScenario(t *testing.T) {
	start := pipeline.NewScriptedStage(true)
	review := pipeline.NewScriptedStage(false)
	h := newHarness(t, reviewPipeline(t, start, review), nil, nil)

	require.NoError(t, h.engine.Run(context.Background(), "language models for retrieval"))

	assert.Equal(t, 1, start.Executions())
	assert.Equal(t, 1, review.Executions())
	assert.Equal(t, 1, start.Exits())
	assert.Equal(t, 1, review.Exits())
	assert.Equal(t, 2, h.engine.Step())
	assert.Equal(t, pipeline.End, h.engine.CurrentStage())
	assert.Equal(t, StateCompleted, h.engine.Status().State)
	assert.Equal(t, 2, h.logger.Count("engine_transition"))
}

func TestRun_LeaderHandOff(t *testing.T) {
	ctx := context.Background()
	start := pipeline.NewScriptedStage(true)
	review := pipeline.NewScriptedStage(true)
	h := newHarness(t, reviewPipeline(t, start, review), nil, nil)

	require.NoError(t, h.engine.Run(ctx, "language models alignment evaluation"))

	entry, ok := start.LastEntry()
	require.True(t, ok)
	assert.Equal(t, 0, entry.Step)
	assert.NotNil(t, entry.Stop)
	require.Len(t, entry.Profiles, 1)
	assert.Equal(t, "p5", entry.Profiles[0].PK)
	assert.Equal(t, []agents.Role{agents.RoleLeader}, entry.Roles)
	assert.Equal(t, []string{"gpt-4o-mini"}, entry.Models)

	reviewEntry, ok := review.LastEntry()
	require.True(t, ok)
	assert.Equal(t, 1, reviewEntry.Step)
	assert.Equal(t, []string{"p5"}, reviewEntry.ParticipantPKs())

	leaders, err := h.deps.Directory.Get(ctx, agents.ByPK("p5"))
	require.NoError(t, err)
	assert.Equal(t, agents.RoleLeader, leaders[0].Role)
	assert.NoError(t, testutil.AssertExclusiveRoles(ctx, h.deps.Directory))
}

func TestRun_FailOutcomeEndsImmediately(t *testing.T) {
	start := pipeline.NewScriptedStage(false)
	review := pipeline.NewScriptedStage()
	h := newHarness(t, reviewPipeline(t, start, review), nil, nil)

	require.NoError(t, h.engine.Run(context.Background(), "task"))
	assert.Equal(t, 1, start.Executions())
	assert.Zero(t, review.Executions())
	assert.Equal(t, 1, h.engine.Step())
}

func TestRun_EventLogOrder(t *testing.T) {
	h := newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(true), pipeline.NewScriptedStage(true)), nil, nil)
	require.NoError(t, h.engine.Run(context.Background(), "task"))

	assert.Equal(t, []artifacts.EventKind{
		artifacts.EventAgentsAllocated,
		artifacts.EventStageEntered,
		artifacts.EventRunStarted,
		artifacts.EventStageExecuted,
		artifacts.EventTransition,
		artifacts.EventStageEntered,
		artifacts.EventStageExecuted,
		artifacts.EventTransition,
		artifacts.EventRunCompleted,
	}, eventKinds(t, h.deps.Events))

	events, err := h.deps.Events.Events(context.Background())
	require.NoError(t, err)
	for i, e := range events {
		assert.Equal(t, i+1, e.Seq)
		assert.Equal(t, "test-run", e.Run)
	}
	transition := events[4]
	assert.Equal(t, pipeline.Start, transition.Stage)
	assert.Equal(t, "review", transition.Target)
	require.NotNil(t, transition.Outcome)
	assert.True(t, *transition.Outcome)
}

func TestRun_FillsBaseModelForProfiles(t *testing.T) {
	ctx := context.Background()
	start := pipeline.NewScriptedStage(true)
	review := pipeline.NewScriptedStage()
	var h *harness

	p, err := pipeline.NewBuilder("members").
		AddStage(pipeline.Start, start).
		AddStage("review", review).
		AddTransition(pipeline.Start, true, "review").
		AddTransition("review", false, pipeline.End).
		AddTransitionFunc(pipeline.Start, "review", func(ctx context.Context, from pipeline.Stage) (pipeline.EntryInputs, error) {
			leader := from.(*pipeline.ScriptedStage).Participants().Profiles[0]
			members, err := h.engine.Allocator().FindMembers(ctx, leader, 2)
			if err != nil {
				return pipeline.EntryInputs{}, err
			}
			return pipeline.EntryInputs{
				Profiles: members,
				Roles:    []agents.Role{agents.RoleMember, agents.RoleMember},
			}, nil
		}).
		AddTransitionFunc("review", pipeline.End, pipeline.NoInputs).
		Build()
	require.NoError(t, err)
	h = newHarness(t, p, nil, nil)

	require.NoError(t, h.engine.Run(ctx, "language models"))

	entry, _ := review.LastEntry()
	assert.Len(t, entry.Profiles, 2)
	assert.Equal(t, []string{"gpt-4o-mini", "gpt-4o-mini"}, entry.Models)
	assert.NoError(t, testutil.AssertExclusiveRoles(ctx, h.deps.Directory))
}

// =============================================================================
// ERRORS
// =============================================================================

func TestStart_UnknownEntry(t *testing.T) {
	h := newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), nil, nil)

	err := h.engine.Start(context.Background(), "task", "nope")
	require.Error(t, err)
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
	assert.Contains(t, err.Error(), "nope")
}

func TestRun_MissingEdge(t *testing.T) {
	p, err := pipeline.NewBuilder("missing-edge").
		AddStage(pipeline.Start, pipeline.NewScriptedStage(false)).
		AddTransition(pipeline.Start, true, pipeline.End).
		AddTransitionFunc(pipeline.Start, pipeline.End, pipeline.NoInputs).
		Build()
	require.NoError(t, err)
	h := newHarness(t, p, nil, nil)

	err = h.engine.Run(context.Background(), "task")

	var cfgErr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, pipeline.KindMissingEdge, cfgErr.Kind)
	assert.Equal(t, "no transition from stage 'start' on outcome false", err.Error())
	assert.Equal(t, StateFailed, h.engine.Status().State)
	assert.Contains(t, eventKinds(t, h.deps.Events), artifacts.EventRunFailed)
}

func TestRun_MissingTransitionFunc(t *testing.T) {
	p, err := pipeline.NewBuilder("missing-func").
		AddStage(pipeline.Start, pipeline.NewScriptedStage(true)).
		AddStage("review", pipeline.NewScriptedStage()).
		AddTransition(pipeline.Start, true, "review").
		Build()
	require.NoError(t, err)
	h := newHarness(t, p, nil, nil)

	err = h.engine.Run(context.Background(), "task")

	var cfgErr *pipeline.ConfigurationError
	require.ErrorAs(t, err, &cfgErr)
	assert.Equal(t, pipeline.KindMissingTransitionFunc, cfgErr.Kind)
	assert.Contains(t, err.Error(), "'start' to 'review'")
}

func TestRun_UnregisteredTarget(t *testing.T) {
	p, err := pipeline.NewBuilder("ghost").
		AddStage(pipeline.Start, pipeline.NewScriptedStage(true)).
		AddTransition(pipeline.Start, true, "ghost").
		AddTransitionFunc(pipeline.Start, "ghost", pipeline.NoInputs).
		Build()
	require.NoError(t, err)
	h := newHarness(t, p, nil, nil)

	err = h.engine.Run(context.Background(), "task")
	assert.ErrorIs(t, err, pipeline.ErrConfiguration)
	assert.Contains(t, err.Error(), "ghost")
}

func TestRun_AllocationError(t *testing.T) {
	ctx := context.Background()
	deps, err := DependenciesFor(nil, store.NewMemoryBackend())
	require.NoError(t, err)
	e, err := New(ctx, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), deps)
	require.NoError(t, err)

	err = e.Run(ctx, "task")
	assert.ErrorIs(t, err, agents.ErrAllocation)

	var allocErr *agents.AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, agents.RoleLeader, allocErr.Role)
	assert.Equal(t, 1, allocErr.Requested)
}

func TestRun_StageErrors(t *testing.T) {
	boom := errors.New("boom")
	tests := []struct {
		name  string
		stage *pipeline.ScriptedStage
		phase Phase
	}{
		{"enter", &pipeline.ScriptedStage{EnterErr: boom}, PhaseEnter},
		{"execute", &pipeline.ScriptedStage{ExecuteErr: boom}, PhaseExecute},
		{"exit", &pipeline.ScriptedStage{ExitErr: boom}, PhaseExit},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, reviewPipeline(t, tt.stage, pipeline.NewScriptedStage()), nil, nil)

			err := h.engine.Run(context.Background(), "task")
			assert.ErrorIs(t, err, ErrStageExecution)
			assert.ErrorIs(t, err, boom)

			var stageErr *StageError
			require.ErrorAs(t, err, &stageErr)
			assert.Equal(t, pipeline.Start, stageErr.Stage)
			assert.Equal(t, tt.phase, stageErr.Phase)
		})
	}
}

func TestRun_TransferError(t *testing.T) {
	p, err := pipeline.NewBuilder("transfer").
		AddStage(pipeline.Start, pipeline.NewScriptedStage(true)).
		AddTransition(pipeline.Start, true, pipeline.End).
		AddTransitionFunc(pipeline.Start, pipeline.End, func(context.Context, pipeline.Stage) (pipeline.EntryInputs, error) {
			return pipeline.EntryInputs{}, errors.New("no proposal")
		}).
		Build()
	require.NoError(t, err)
	h := newHarness(t, p, nil, nil)

	err = h.engine.Run(context.Background(), "task")
	var stageErr *StageError
	require.ErrorAs(t, err, &stageErr)
	assert.Equal(t, PhaseTransfer, stageErr.Phase)
	assert.Equal(t, "stage 'start' transfer failed at step 1: no proposal", err.Error())
}

func TestTransition_BeforeStart(t *testing.T) {
	h := newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), nil, nil)
	assert.ErrorIs(t, h.engine.Transition(context.Background()), ErrNotStarted)
}

func TestStartAndTransition_Manual(t *testing.T) {
	ctx := context.Background()
	start := pipeline.NewScriptedStage(true)
	review := pipeline.NewScriptedStage()
	h := newHarness(t, reviewPipeline(t, start, review), nil, nil)

	require.NoError(t, h.engine.Start(ctx, "task", ""))
	assert.Equal(t, pipeline.Start, h.engine.CurrentStage())
	require.NoError(t, h.engine.Transition(ctx))
	assert.Equal(t, "review", h.engine.CurrentStage())
	require.NoError(t, h.engine.Transition(ctx))
	assert.Equal(t, pipeline.End, h.engine.CurrentStage())
	assert.ErrorIs(t, h.engine.Transition(ctx), ErrNotStarted)
}

// =============================================================================
// NON-TERMINATION / STOP
// =============================================================================

// cyclicPipeline loops start -> start forever.
func cyclicPipeline(t *testing.T, stage pipeline.Stage) *pipeline.Pipeline {
	t.Helper()
	p, err := pipeline.NewBuilder("cycle").
		AddStage(pipeline.Start, stage).
		AddTransition(pipeline.Start, true, pipeline.Start).
		AddTransition(pipeline.Start, false, pipeline.Start).
		AddTransitionFunc(pipeline.Start, pipeline.Start, pipeline.ForwardParticipants).
		Build()
	require.NoError(t, err)
	return p
}

func TestRun_NoTerminalPathLoopsUntilCancelled(t *testing.T) {
	const stepCap = 50
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	stage := pipeline.NewScriptedStage()
	stage.Work = func(ctx context.Context, s *pipeline.ScriptedStage) error {
		if s.Executions() >= stepCap {
			cancel()
		}
		return nil
	}
	p := cyclicPipeline(t, stage)
	require.NotEmpty(t, p.Check())
	h := newHarness(t, p, nil, nil)

	err := h.engine.Run(ctx, "task")
	assert.ErrorIs(t, err, context.Canceled)
	assert.Equal(t, stepCap, stage.Executions())
	assert.Equal(t, stepCap, h.engine.Step())
	assert.Equal(t, pipeline.Start, h.engine.CurrentStage())
	assert.Equal(t, StateStopped, h.engine.Status().State)
}

func TestRun_StopFlag(t *testing.T) {
	stage := pipeline.NewScriptedStage()
	var h *harness
	var observed atomic.Bool
	stage.Work = func(ctx context.Context, s *pipeline.ScriptedStage) error {
		entry, _ := s.LastEntry()
		if entry.Stop.Stopped() {
			observed.Store(true)
		}
		if s.Executions() == 3 {
			h.engine.Stop()
		}
		return nil
	}
	h = newHarness(t, cyclicPipeline(t, stage), nil, nil)

	err := h.engine.Run(context.Background(), "task")
	assert.ErrorIs(t, err, ErrStopped)
	assert.Equal(t, 3, stage.Executions())
	assert.False(t, observed.Load())
	assert.True(t, h.engine.StopFlag().Stopped())
}

// =============================================================================
// BUS
// =============================================================================

func TestRun_PublishesOnBus(t *testing.T) {
	ctx := context.Background()
	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	var transitions, completed int32
	bus.Subscribe("StageTransition", func(context.Context, commbus.Message) (any, error) {
		atomic.AddInt32(&transitions, 1)
		return nil, nil
	})
	bus.Subscribe("RunCompleted", func(context.Context, commbus.Message) (any, error) {
		atomic.AddInt32(&completed, 1)
		return nil, nil
	})

	h := newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(true), pipeline.NewScriptedStage()), nil, bus)
	require.NoError(t, h.engine.Run(ctx, "task"))

	assert.Equal(t, int32(2), atomic.LoadInt32(&transitions))
	assert.Equal(t, int32(1), atomic.LoadInt32(&completed))

	result, err := bus.QuerySync(ctx, &commbus.GetRunStatus{})
	require.NoError(t, err)
	status := result.(*commbus.RunStatus)
	assert.Equal(t, pipeline.End, status.Stage)
	assert.Equal(t, 2, status.Step)
	assert.Equal(t, StateCompleted, status.State)
	require.NotNil(t, status.LastOutcome)
	assert.False(t, *status.LastOutcome)
}

func TestStopRunCommand(t *testing.T) {
	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	h := newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), nil, bus)

	require.NoError(t, bus.Send(context.Background(), &commbus.StopRun{Reason: "operator"}))
	assert.True(t, h.engine.StopFlag().Stopped())
	assert.True(t, h.logger.HasLog("info", "engine_stop_command"))
}

func TestNew_DuplicateEngineOnBus(t *testing.T) {
	bus := commbus.NewInMemoryCommBus(time.Second, nil)
	newHarness(t, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), nil, bus)

	deps, err := DependenciesFor(nil, store.NewMemoryBackend())
	require.NoError(t, err)
	deps.Bus = bus
	_, err = New(context.Background(), reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), deps)
	assert.Error(t, err)
}

// =============================================================================
// ROLE ALLOCATION
// =============================================================================

func TestRun_AllocatesRolesOnTransitions(t *testing.T) {
	ctx := context.Background()
	deps, err := DependenciesFor(config.DefaultConfig(), store.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, testutil.SeedDirectory(ctx, deps.Directory, testutil.SampleParticipants()))
	deps.LeaderPK = "p1"

	alloc := agents.NewAllocator(deps.Directory, nil)
	start := pipeline.NewScriptedStage(true)
	ideation := pipeline.NewScriptedStage(true)
	ideation.Output = pipeline.Inputs{pipeline.AbstractKey: "state space models for robotics"}
	review := pipeline.NewScriptedStage(true)

	p, err := pipeline.NewBuilder("lab").
		AddStage(pipeline.Start, start).
		AddStage("ideation", ideation).
		AddStage("review", review).
		AddTransition(pipeline.Start, true, "ideation").
		AddTransition("ideation", true, "review").
		AddTransition("review", true, pipeline.End).
		AddTransitionFunc(pipeline.Start, "ideation", pipeline.Allocate(alloc,
			pipeline.Allocation{Role: agents.RoleMember, Num: 1})).
		AddTransitionFunc("ideation", "review", pipeline.Allocate(alloc,
			pipeline.Allocation{Role: agents.RoleReviewer, Num: 2},
			pipeline.Allocation{Role: agents.RoleChair, Num: 1})).
		AddTransitionFunc("review", pipeline.End, pipeline.NoInputs).
		Build()
	require.NoError(t, err)

	e, err := New(ctx, p, deps)
	require.NoError(t, err)
	t.Cleanup(e.Close)
	require.NoError(t, e.Run(ctx, "an unrelated task"))

	ideationEntry, ok := ideation.LastEntry()
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p3"}, ideationEntry.ParticipantPKs(), "member matched against the leader's bio")
	assert.Equal(t, []agents.Role{agents.RoleLeader, agents.RoleMember}, ideationEntry.Roles)

	reviewEntry, ok := review.LastEntry()
	require.True(t, ok)
	assert.Equal(t, []string{"p1", "p3", "p4", "p2", "p5"}, reviewEntry.ParticipantPKs())
	assert.Equal(t, []agents.Role{
		agents.RoleLeader, agents.RoleMember, agents.RoleReviewer, agents.RoleReviewer, agents.RoleChair,
	}, reviewEntry.Roles)
	assert.Len(t, reviewEntry.Models, 5)

	all, err := deps.Directory.Dump(ctx, false)
	require.NoError(t, err)
	tags := map[agents.Role]int{}
	for _, pt := range all {
		tags[pt.Role]++
	}
	assert.Equal(t, map[agents.Role]int{
		agents.RoleLeader:   1,
		agents.RoleMember:   1,
		agents.RoleReviewer: 2,
		agents.RoleChair:    1,
	}, tags)
	assert.NoError(t, testutil.AssertExclusiveRoles(ctx, deps.Directory))
}

func TestRun_ConfiguredLeader(t *testing.T) {
	ctx := context.Background()
	start := pipeline.NewScriptedStage(false)
	deps, err := DependenciesFor(config.DefaultConfig(), store.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, testutil.SeedDirectory(ctx, deps.Directory, testutil.SampleParticipants()))
	deps.LeaderPK = "p2"

	e, err := New(ctx, reviewPipeline(t, start, pipeline.NewScriptedStage()), deps)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	require.NoError(t, e.Run(ctx, "language models alignment evaluation"))
	entry, ok := start.LastEntry()
	require.True(t, ok)
	assert.Equal(t, []string{"p2"}, entry.ParticipantPKs(), "the configured leader wins over the best task match")

	leaders, err := deps.Directory.Get(ctx, agents.ByPK("p2"))
	require.NoError(t, err)
	assert.Equal(t, agents.RoleLeader, leaders[0].Role)
}

func TestRun_ConfiguredLeaderMissing(t *testing.T) {
	ctx := context.Background()
	deps, err := DependenciesFor(config.DefaultConfig(), store.NewMemoryBackend())
	require.NoError(t, err)
	require.NoError(t, testutil.SeedDirectory(ctx, deps.Directory, testutil.SampleParticipants()))
	deps.LeaderPK = "ghost"

	e, err := New(ctx, reviewPipeline(t, pipeline.NewScriptedStage(), pipeline.NewScriptedStage()), deps)
	require.NoError(t, err)
	t.Cleanup(e.Close)

	err = e.Run(ctx, "task")
	var allocErr *agents.AllocationError
	require.ErrorAs(t, err, &allocErr)
	assert.Equal(t, agents.RoleLeader, allocErr.Role)
	assert.Contains(t, err.Error(), "ghost")
}
