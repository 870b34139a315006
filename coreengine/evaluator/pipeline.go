package evaluator

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/artifacts"
)

// PipelineInput is every artifact of one proposal's lifecycle.
type PipelineInput struct {
	Insights   []artifacts.Insight
	Idea       artifacts.Idea
	Proposal   artifacts.Proposal
	Reviews    []artifacts.Review
	Rebuttals  []artifacts.Rebuttal
	MetaReview artifacts.MetaReview
}

// PipelineResult holds one Output per evaluated artifact. Slices follow the
// order of the corresponding input slices.
type PipelineResult struct {
	Insights   []Output `json:"insights"`
	Idea       Output   `json:"idea"`
	Proposal   Output   `json:"proposal"`
	Reviews    []Output `json:"reviews"`
	Rebuttals  []Output `json:"rebuttals"`
	MetaReview Output   `json:"meta_review"`
}

// PipelineEval scores every artifact in in. Calls run concurrently, at most
// MaxConcurrency at a time. Rebuttals are paired with reviews by position;
// extra entries on either side are not scored as rebuttals. The first error
// cancels the remaining calls.
func (e *Evaluator) PipelineEval(ctx context.Context, in PipelineInput) (*PipelineResult, error) {
	rebuttals := len(in.Rebuttals)
	if len(in.Reviews) < rebuttals {
		rebuttals = len(in.Reviews)
	}
	res := &PipelineResult{
		Insights:  make([]Output, len(in.Insights)),
		Reviews:   make([]Output, len(in.Reviews)),
		Rebuttals: make([]Output, rebuttals),
	}

	g, gctx := errgroup.WithContext(ctx)
	if e.cfg.MaxConcurrency > 0 {
		g.SetLimit(e.cfg.MaxConcurrency)
	}

	for i, insight := range in.Insights {
		g.Go(func() error {
			out, err := e.EvaluateInsight(gctx, insight)
			res.Insights[i] = out
			return err
		})
	}
	g.Go(func() error {
		out, err := e.EvaluateIdea(gctx, in.Insights, in.Idea)
		res.Idea = out
		return err
	})
	g.Go(func() error {
		out, err := e.EvaluateProposal(gctx, in.Insights, in.Idea, in.Proposal)
		res.Proposal = out
		return err
	})
	for i, review := range in.Reviews {
		g.Go(func() error {
			out, err := e.EvaluateReview(gctx, in.Insights, in.Idea, in.Proposal, review)
			res.Reviews[i] = out
			return err
		})
	}
	for i := 0; i < rebuttals; i++ {
		review, rebuttal := in.Reviews[i], in.Rebuttals[i]
		g.Go(func() error {
			out, err := e.EvaluateRebuttal(gctx, in.Insights, in.Idea, in.Proposal, review, rebuttal)
			res.Rebuttals[i] = out
			return err
		})
	}
	g.Go(func() error {
		out, err := e.EvaluateMetaReview(gctx, in.Insights, in.Idea, in.Proposal, in.Reviews, in.Rebuttals, in.MetaReview)
		res.MetaReview = out
		return err
	})

	if err := g.Wait(); err != nil {
		return nil, err
	}
	return res, nil
}

// EvaluateProposalRecords loads one proposal's artifacts from the progress
// store and runs PipelineEval over them. The idea is the first stored idea.
func (e *Evaluator) EvaluateProposalRecords(ctx context.Context, progress *artifacts.ProgressStore, proposalPK string) (*PipelineResult, error) {
	var (
		in  PipelineInput
		err error
	)
	if in.Proposal, err = progress.Proposal(ctx, proposalPK); err != nil {
		return nil, err
	}
	if in.Insights, err = progress.Insights(ctx); err != nil {
		return nil, err
	}
	ideas, err := progress.Ideas(ctx)
	if err != nil {
		return nil, err
	}
	if len(ideas) > 0 {
		in.Idea = ideas[0]
	}
	if in.Reviews, err = progress.Reviews(ctx, proposalPK); err != nil {
		return nil, err
	}
	if in.Rebuttals, err = progress.Rebuttals(ctx, proposalPK); err != nil {
		return nil, err
	}
	metas, err := progress.MetaReviews(ctx, proposalPK)
	if err != nil {
		return nil, err
	}
	if len(metas) > 0 {
		in.MetaReview = metas[0]
	}
	return e.PipelineEval(ctx, in)
}
