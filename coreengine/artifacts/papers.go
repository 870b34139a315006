package artifacts

import (
	"context"
	"fmt"

	"github.com/google/uuid"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// PapersBucket is the store bucket holding papers.
const PapersBucket = "papers"

// ArtifactStore holds reference papers. It is shared across runs.
type ArtifactStore struct {
	papers *store.Table[Paper]
}

// NewArtifactStore creates a paper store over backend.
func NewArtifactStore(backend store.Backend) *ArtifactStore {
	return &ArtifactStore{papers: store.NewTable[Paper](backend, PapersBucket)}
}

// AddPaper stores p, assigning a primary key when empty, and returns the key.
func (s *ArtifactStore) AddPaper(ctx context.Context, p Paper) (string, error) {
	p.PK = newPK(p.PK)
	if err := addOnce(ctx, s.papers, p.PK, p); err != nil {
		return "", err
	}
	return p.PK, nil
}

// Paper returns the paper with primary key pk.
func (s *ArtifactStore) Paper(ctx context.Context, pk string) (Paper, error) {
	return s.papers.Get(ctx, pk)
}

// Papers returns every paper ordered by primary key.
func (s *ArtifactStore) Papers(ctx context.Context) ([]Paper, error) {
	return s.papers.List(ctx)
}

// Dump returns every paper; embeddings are dropped unless withEmbed.
func (s *ArtifactStore) Dump(ctx context.Context, withEmbed bool) ([]Paper, error) {
	papers, err := s.papers.List(ctx)
	if err != nil {
		return nil, err
	}
	if !withEmbed {
		for i := range papers {
			papers[i].Embedding = nil
		}
	}
	return papers, nil
}

// Restore replaces the store contents.
func (s *ArtifactStore) Restore(ctx context.Context, papers []Paper) error {
	if err := s.papers.Clear(ctx); err != nil {
		return err
	}
	for _, p := range papers {
		if err := s.papers.Put(ctx, p.PK, p); err != nil {
			return err
		}
	}
	return nil
}

func newPK(pk string) string {
	if pk == "" {
		return uuid.NewString()
	}
	return pk
}

// addOnce writes v unless pk is already present.
func addOnce[T any](ctx context.Context, t *store.Table[T], pk string, v T) error {
	_, err := t.Get(ctx, pk)
	if err == nil {
		return fmt.Errorf("%w: %s/%s", ErrExists, t.Bucket(), pk)
	}
	if !store.IsNotFound(err) {
		return err
	}
	return t.Put(ctx, pk, v)
}
