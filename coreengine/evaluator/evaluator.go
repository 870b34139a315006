// Package evaluator scores work artifacts with a language model.
//
// Each Evaluate* call builds a prompt from the artifact and its context,
// issues one Generate call and parses "Overall Score=<n>. Dimension
// Scores=[...]" from the response. Calls are stateless; PipelineEval fans the
// per-artifact calls out concurrently.
package evaluator

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/config"
	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
)

// LLMProvider is the interface for LLM providers.
type LLMProvider interface {
	Generate(ctx context.Context, model string, prompt string, options map[string]any) (string, error)
}

// Evaluator scores artifacts through an LLMProvider.
type Evaluator struct {
	llm    LLMProvider
	model  string
	cfg    config.EvaluatorConfig
	logger observability.Logger
}

// New creates an Evaluator. The model is cfg.Evaluator.Model, falling back
// to cfg.BaseLLM.
func New(llm LLMProvider, cfg *config.Config, logger observability.Logger) (*Evaluator, error) {
	if llm == nil {
		return nil, errors.New("llm provider is required")
	}
	if cfg == nil {
		cfg = config.DefaultConfig()
	}
	model := cfg.EvaluatorModel()
	if model == "" {
		return nil, errors.New("evaluator model is required")
	}
	return &Evaluator{
		llm:    llm,
		model:  model,
		cfg:    cfg.Evaluator,
		logger: observability.OrNop(logger).Bind("component", "evaluator", "model", model),
	}, nil
}

// Model returns the model identifier used for every call.
func (e *Evaluator) Model() string { return e.model }

// EvaluateInsight scores a single insight.
func (e *Evaluator) EvaluateInsight(ctx context.Context, insight artifacts.Insight) (Output, error) {
	return e.evaluate(ctx, KindInsight, insight.PK,
		section{"Insight", insight},
	)
}

// EvaluateIdea scores an idea against the insights it was drawn from.
func (e *Evaluator) EvaluateIdea(ctx context.Context, insights []artifacts.Insight, idea artifacts.Idea) (Output, error) {
	return e.evaluate(ctx, KindIdea, idea.PK,
		section{"Insights", insights},
		section{"Idea", idea},
	)
}

// EvaluateProposal scores a proposal written from idea.
func (e *Evaluator) EvaluateProposal(ctx context.Context, insights []artifacts.Insight, idea artifacts.Idea, proposal artifacts.Proposal) (Output, error) {
	return e.evaluate(ctx, KindProposal, proposal.PK,
		section{"Insights", insights},
		section{"Idea", idea},
		section{"Proposal", proposal},
	)
}

// EvaluateReview scores one review of proposal.
func (e *Evaluator) EvaluateReview(ctx context.Context, insights []artifacts.Insight, idea artifacts.Idea, proposal artifacts.Proposal, review artifacts.Review) (Output, error) {
	return e.evaluate(ctx, KindReview, review.PK,
		section{"Insights", insights},
		section{"Idea", idea},
		section{"Proposal", proposal},
		section{"Review", review},
	)
}

// EvaluateRebuttal scores the rebuttal to review.
func (e *Evaluator) EvaluateRebuttal(ctx context.Context, insights []artifacts.Insight, idea artifacts.Idea, proposal artifacts.Proposal, review artifacts.Review, rebuttal artifacts.Rebuttal) (Output, error) {
	return e.evaluate(ctx, KindRebuttal, rebuttal.PK,
		section{"Insights", insights},
		section{"Idea", idea},
		section{"Proposal", proposal},
		section{"Review", review},
		section{"Rebuttal", rebuttal},
	)
}

// EvaluateMetaReview scores the meta-review given every review and rebuttal.
func (e *Evaluator) EvaluateMetaReview(ctx context.Context, insights []artifacts.Insight, idea artifacts.Idea, proposal artifacts.Proposal, reviews []artifacts.Review, rebuttals []artifacts.Rebuttal, meta artifacts.MetaReview) (Output, error) {
	return e.evaluate(ctx, KindMetaReview, meta.PK,
		section{"Insights", insights},
		section{"Idea", idea},
		section{"Proposal", proposal},
		section{"Reviews", reviews},
		section{"Rebuttals", rebuttals},
		section{"Meta-review", meta},
	)
}

func (e *Evaluator) evaluate(ctx context.Context, kind, pk string, sections ...section) (out Output, err error) {
	ctx, span := observability.Tracer().Start(ctx, "evaluator.evaluate")
	span.SetAttributes(
		attribute.String("kind", kind),
		attribute.String("model", e.model),
	)
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordEvaluation(kind, status)
		span.End()
	}()

	prompt, err := buildPrompt(kind, sections...)
	if err != nil {
		return Output{}, err
	}

	startTime := time.Now()
	raw, err := e.llm.Generate(ctx, e.model, prompt, map[string]any{
		"temperature": e.cfg.Temperature,
		"max_tokens":  e.cfg.MaxTokens,
	})
	durationMS := int(time.Since(startTime).Milliseconds())
	if err != nil {
		observability.RecordLLMCall(e.model, "error", durationMS)
		e.logger.Warn("evaluation_llm_failed", "kind", kind, "pk", pk, "error", err.Error())
		return Output{}, fmt.Errorf("%s %s: %w", kind, pk, err)
	}
	observability.RecordLLMCall(e.model, "success", durationMS)

	out, err = ParseOutput(raw, e.cfg.DimensionCount)
	if err != nil {
		e.logger.Warn("evaluation_parse_failed", "kind", kind, "pk", pk, "error", err.Error())
		return Output{}, fmt.Errorf("%s %s: %w", kind, pk, err)
	}
	out.PK = pk
	out.Kind = kind

	e.logger.Debug("evaluation_completed", "kind", kind, "pk", pk, "overall_score", out.OverallScore, "duration_ms", durationMS)
	return out, nil
}
