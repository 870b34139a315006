package artifacts

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// DefaultRunName scopes stores that were never given a run name.
const DefaultRunName = "default"

// ProgressStore holds the artifacts produced during one named run.
// Changing the run name switches every read and write to that run's buckets.
type ProgressStore struct {
	backend store.Backend

	mu  sync.RWMutex
	run string
}

// ProgressSnapshot is the serialized content of a ProgressStore.
type ProgressSnapshot struct {
	Insights    []Insight    `json:"insights"`
	Ideas       []Idea       `json:"ideas"`
	Proposals   []Proposal   `json:"proposals"`
	Reviews     []Review     `json:"reviews"`
	Rebuttals   []Rebuttal   `json:"rebuttals"`
	MetaReviews []MetaReview `json:"meta_reviews"`
}

// NewProgressStore creates a progress store over backend.
func NewProgressStore(backend store.Backend) *ProgressStore {
	return &ProgressStore{backend: backend, run: DefaultRunName}
}

// SetRunName scopes the store to run.
func (s *ProgressStore) SetRunName(run string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if run == "" {
		run = DefaultRunName
	}
	s.run = run
}

// RunName returns the current run scope.
func (s *ProgressStore) RunName() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.run
}

func progressTable[T any](s *ProgressStore, kind Kind) *store.Table[T] {
	return store.NewTable[T](s.backend, store.RunBucket(s.RunName(), string(kind)))
}

// =============================================================================
// ADD
// =============================================================================

// AddInsight stores an insight and returns its primary key.
func (s *ProgressStore) AddInsight(ctx context.Context, v Insight) (string, error) {
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[Insight](s, KindInsight), v.PK, v)
}

// AddIdea stores an idea and returns its primary key.
func (s *ProgressStore) AddIdea(ctx context.Context, v Idea) (string, error) {
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[Idea](s, KindIdea), v.PK, v)
}

// AddProposal stores a proposal and returns its primary key.
func (s *ProgressStore) AddProposal(ctx context.Context, v Proposal) (string, error) {
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[Proposal](s, KindProposal), v.PK, v)
}

// AddReview stores a review and returns its primary key.
func (s *ProgressStore) AddReview(ctx context.Context, v Review) (string, error) {
	if err := s.requireProposal(ctx, "review", v.ProposalPK); err != nil {
		return "", err
	}
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[Review](s, KindReview), v.PK, v)
}

// AddRebuttal stores a rebuttal and returns its primary key.
func (s *ProgressStore) AddRebuttal(ctx context.Context, v Rebuttal) (string, error) {
	if err := s.requireProposal(ctx, "rebuttal", v.ProposalPK); err != nil {
		return "", err
	}
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[Rebuttal](s, KindRebuttal), v.PK, v)
}

// AddMetaReview stores a meta-review and returns its primary key.
func (s *ProgressStore) AddMetaReview(ctx context.Context, v MetaReview) (string, error) {
	if err := s.requireProposal(ctx, "meta-review", v.ProposalPK); err != nil {
		return "", err
	}
	v.PK = newPK(v.PK)
	return v.PK, addOnce(ctx, progressTable[MetaReview](s, KindMetaReview), v.PK, v)
}

// requireProposal checks that pk names a proposal stored in the current run.
func (s *ProgressStore) requireProposal(ctx context.Context, what, pk string) error {
	if pk == "" {
		return fmt.Errorf("%s must reference a proposal", what)
	}
	_, err := progressTable[Proposal](s, KindProposal).Get(ctx, pk)
	if store.IsNotFound(err) {
		return fmt.Errorf("%s references %w %s", what, ErrUnknownProposal, pk)
	}
	return err
}

// =============================================================================
// READ
// =============================================================================

func (s *ProgressStore) Insights(ctx context.Context) ([]Insight, error) {
	return progressTable[Insight](s, KindInsight).List(ctx)
}

func (s *ProgressStore) Ideas(ctx context.Context) ([]Idea, error) {
	return progressTable[Idea](s, KindIdea).List(ctx)
}

func (s *ProgressStore) Proposals(ctx context.Context) ([]Proposal, error) {
	return progressTable[Proposal](s, KindProposal).List(ctx)
}

// Proposal returns one proposal by primary key.
func (s *ProgressStore) Proposal(ctx context.Context, pk string) (Proposal, error) {
	return progressTable[Proposal](s, KindProposal).Get(ctx, pk)
}

// Reviews returns the reviews of proposalPK, or every review when empty.
func (s *ProgressStore) Reviews(ctx context.Context, proposalPK string) ([]Review, error) {
	return progressTable[Review](s, KindReview).Filter(ctx, func(r Review) bool {
		return proposalPK == "" || r.ProposalPK == proposalPK
	})
}

// Rebuttals returns the rebuttals of proposalPK, or every rebuttal when empty.
func (s *ProgressStore) Rebuttals(ctx context.Context, proposalPK string) ([]Rebuttal, error) {
	return progressTable[Rebuttal](s, KindRebuttal).Filter(ctx, func(r Rebuttal) bool {
		return proposalPK == "" || r.ProposalPK == proposalPK
	})
}

// MetaReviews returns the meta-reviews of proposalPK, or all when empty.
func (s *ProgressStore) MetaReviews(ctx context.Context, proposalPK string) ([]MetaReview, error) {
	return progressTable[MetaReview](s, KindMetaReview).Filter(ctx, func(m MetaReview) bool {
		return proposalPK == "" || m.ProposalPK == proposalPK
	})
}

// Counts returns the number of records per kind in the current run.
func (s *ProgressStore) Counts(ctx context.Context) (map[Kind]int, error) {
	out := make(map[Kind]int, len(ProgressKinds))
	for _, k := range ProgressKinds {
		raw, err := s.backend.List(ctx, store.RunBucket(s.RunName(), string(k)))
		if err != nil {
			return nil, err
		}
		out[k] = len(raw)
	}
	return out, nil
}

// =============================================================================
// DUMP / RESTORE
// =============================================================================

// Dump returns every record of the current run.
func (s *ProgressStore) Dump(ctx context.Context) (*ProgressSnapshot, error) {
	var (
		snap ProgressSnapshot
		err  error
	)
	if snap.Insights, err = s.Insights(ctx); err != nil {
		return nil, err
	}
	if snap.Ideas, err = s.Ideas(ctx); err != nil {
		return nil, err
	}
	if snap.Proposals, err = s.Proposals(ctx); err != nil {
		return nil, err
	}
	if snap.Reviews, err = s.Reviews(ctx, ""); err != nil {
		return nil, err
	}
	if snap.Rebuttals, err = s.Rebuttals(ctx, ""); err != nil {
		return nil, err
	}
	if snap.MetaReviews, err = s.MetaReviews(ctx, ""); err != nil {
		return nil, err
	}
	return &snap, nil
}

// Restore replaces the current run's records with snap.
func (s *ProgressStore) Restore(ctx context.Context, snap *ProgressSnapshot) error {
	if snap == nil {
		snap = &ProgressSnapshot{}
	}
	if err := restoreKind(ctx, progressTable[Insight](s, KindInsight), snap.Insights, func(v Insight) string { return v.PK }); err != nil {
		return err
	}
	if err := restoreKind(ctx, progressTable[Idea](s, KindIdea), snap.Ideas, func(v Idea) string { return v.PK }); err != nil {
		return err
	}
	if err := restoreKind(ctx, progressTable[Proposal](s, KindProposal), snap.Proposals, func(v Proposal) string { return v.PK }); err != nil {
		return err
	}
	if err := restoreKind(ctx, progressTable[Review](s, KindReview), snap.Reviews, func(v Review) string { return v.PK }); err != nil {
		return err
	}
	if err := restoreKind(ctx, progressTable[Rebuttal](s, KindRebuttal), snap.Rebuttals, func(v Rebuttal) string { return v.PK }); err != nil {
		return err
	}
	return restoreKind(ctx, progressTable[MetaReview](s, KindMetaReview), snap.MetaReviews, func(v MetaReview) string { return v.PK })
}

func restoreKind[T any](ctx context.Context, t *store.Table[T], items []T, key func(T) string) error {
	if err := t.Clear(ctx); err != nil {
		return err
	}
	for _, v := range items {
		if err := t.Put(ctx, key(v), v); err != nil {
			return err
		}
	}
	return nil
}
