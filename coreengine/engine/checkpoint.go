package engine

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/pipeline"
)

// Checkpoint file names, one per store plus the run context.
const (
	ParticipantsFile = "participants.json"
	ArtifactsFile    = "artifacts.json"
	ProgressFile     = "progress.json"
	EventsFile       = "events.json"
	RunFile          = "run.json"
)

// RunContext is the run state persisted next to the store dumps.
type RunContext struct {
	RunID       string `json:"run_id"`
	RunName     string `json:"run_name"`
	Pipeline    string `json:"pipeline"`
	Step        int    `json:"step"`
	BaseLLM     string `json:"base_llm"`
	Stage       string `json:"stage"`
	State       string `json:"state"`
	LastOutcome *bool  `json:"last_outcome,omitempty"`
}

// RunContext returns the current run context.
func (e *Engine) RunContext() RunContext {
	e.mu.Lock()
	defer e.mu.Unlock()
	return RunContext{
		RunID:       e.runID,
		RunName:     e.runName,
		Pipeline:    e.pipeline.Name(),
		Step:        e.step,
		BaseLLM:     e.baseLLM,
		Stage:       e.currentName,
		State:       e.state,
		LastOutcome: e.lastOutcome,
	}
}

// Save writes every store and the run context into dir, creating it if
// needed. Each file is synced before Save moves on; the checkpoint as a whole
// is not atomic.
func (e *Engine) Save(ctx context.Context, dir string, withEmbed bool) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return fmt.Errorf("failed to create checkpoint dir: %w", err)
	}

	participants, err := e.dir.Dump(ctx, withEmbed)
	if err != nil {
		return fmt.Errorf("failed to dump participants: %w", err)
	}
	papers, err := e.artifacts.Dump(ctx, withEmbed)
	if err != nil {
		return fmt.Errorf("failed to dump artifacts: %w", err)
	}
	progress, err := e.progress.Dump(ctx)
	if err != nil {
		return fmt.Errorf("failed to dump progress: %w", err)
	}
	events, err := e.events.Dump(ctx)
	if err != nil {
		return fmt.Errorf("failed to dump events: %w", err)
	}

	files := []struct {
		name string
		v    any
	}{
		{ParticipantsFile, participants},
		{ArtifactsFile, papers},
		{ProgressFile, progress},
		{EventsFile, events},
		{RunFile, e.RunContext()},
	}
	for _, f := range files {
		if err := writeJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}

	e.logger.Info("engine_checkpoint_saved", "dir", dir, "participants", len(participants), "events", len(events), "with_embed", withEmbed)
	return nil
}

// Load restores every store and the run context from a checkpoint written by
// Save. The current stage is re-bound by name without calling Enter; stage
// internal state is not part of a checkpoint.
func (e *Engine) Load(ctx context.Context, dir string) error {
	var rc RunContext
	if err := readJSON(filepath.Join(dir, RunFile), &rc); err != nil {
		return err
	}

	var stage pipeline.Stage
	if rc.Stage != "" && rc.Stage != pipeline.End {
		s, err := e.pipeline.Stage(rc.Stage)
		if err != nil {
			return err
		}
		stage = s
	}

	var cp Checkpoint
	if err := readStores(dir, &cp); err != nil {
		return err
	}

	runName := rc.RunName
	if runName == "" {
		runName = artifacts.DefaultRunName
	}
	e.progress.SetRunName(runName)
	e.events.SetRunName(runName)

	if err := e.dir.Restore(ctx, cp.Participants); err != nil {
		return fmt.Errorf("failed to restore participants: %w", err)
	}
	if err := e.artifacts.Restore(ctx, cp.Papers); err != nil {
		return fmt.Errorf("failed to restore artifacts: %w", err)
	}
	if err := e.progress.Restore(ctx, &cp.Progress); err != nil {
		return fmt.Errorf("failed to restore progress: %w", err)
	}
	if err := e.events.Restore(ctx, cp.Events); err != nil {
		return fmt.Errorf("failed to restore events: %w", err)
	}

	e.mu.Lock()
	e.runID = rc.RunID
	e.runName = runName
	e.step = rc.Step
	if rc.BaseLLM != "" {
		e.baseLLM = rc.BaseLLM
	}
	e.current = stage
	e.currentName = rc.Stage
	e.lastOutcome = rc.LastOutcome
	e.state = rc.State
	if e.state == "" || e.state == StateRunning {
		e.state = StateIdle
	}
	e.mu.Unlock()
	e.stop.Reset()

	e.logger.Info("engine_checkpoint_loaded", "dir", dir, "run_id", rc.RunID, "step", rc.Step, "stage", rc.Stage)
	return nil
}

// Checkpoint is the decoded content of a checkpoint dir.
type Checkpoint struct {
	Run          RunContext
	Participants []agents.Participant
	Papers       []artifacts.Paper
	Progress     artifacts.ProgressSnapshot
	Events       []artifacts.Event
}

// ReadCheckpoint decodes a checkpoint written by Save without touching any
// store.
func ReadCheckpoint(dir string) (*Checkpoint, error) {
	cp := &Checkpoint{}
	if err := readJSON(filepath.Join(dir, RunFile), &cp.Run); err != nil {
		return nil, err
	}
	if err := readStores(dir, cp); err != nil {
		return nil, err
	}
	return cp, nil
}

func readStores(dir string, cp *Checkpoint) error {
	files := []struct {
		name string
		v    any
	}{
		{ParticipantsFile, &cp.Participants},
		{ArtifactsFile, &cp.Papers},
		{ProgressFile, &cp.Progress},
		{EventsFile, &cp.Events},
	}
	for _, f := range files {
		if err := readJSON(filepath.Join(dir, f.name), f.v); err != nil {
			return err
		}
	}
	return nil
}

func writeJSON(path string, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode %s: %w", filepath.Base(path), err)
	}

	tmp := path + ".tmp"
	f, err := os.Create(tmp)
	if err != nil {
		return fmt.Errorf("failed to create %s: %w", filepath.Base(path), err)
	}
	if _, err := f.Write(data); err != nil {
		f.Close()
		return fmt.Errorf("failed to write %s: %w", filepath.Base(path), err)
	}
	if err := f.Sync(); err != nil {
		f.Close()
		return fmt.Errorf("failed to sync %s: %w", filepath.Base(path), err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("failed to close %s: %w", filepath.Base(path), err)
	}
	return os.Rename(tmp, path)
}

func readJSON(path string, v any) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filepath.Base(path), err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		return fmt.Errorf("failed to decode %s: %w", filepath.Base(path), err)
	}
	return nil
}
