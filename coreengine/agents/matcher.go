package agents

import (
	"context"
	"fmt"
	"hash/fnv"
	"math"
	"sort"
	"strings"
	"unicode"
)

// Matcher ranks candidates against a free-text query and returns the best num.
// It must fail with ErrInsufficientCandidates when len(candidates) < num.
type Matcher interface {
	Match(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error)
}

// MatcherFunc adapts a function to the Matcher interface.
type MatcherFunc func(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error)

func (f MatcherFunc) Match(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error) {
	return f(ctx, query, candidates, num)
}

// Matching strategies accepted by NewMatcher.
const (
	StrategyLexical   = "lexical"
	StrategyEmbedding = "embedding"
)

// NewMatcher returns the matcher for a configured strategy.
func NewMatcher(strategy string, dim int) (Matcher, error) {
	switch strings.ToLower(strategy) {
	case "", StrategyLexical:
		return LexicalMatcher{}, nil
	case StrategyEmbedding:
		return EmbeddingMatcher{Embedder: HashingEmbedder{Dim: dim}}, nil
	default:
		return nil, fmt.Errorf("unknown matching strategy %q", strategy)
	}
}

// scored is a candidate with its relevance score.
type scored struct {
	p     Participant
	score float64
}

// topN sorts by descending score, breaking ties by primary key.
func topN(items []scored, num int) []Participant {
	sort.SliceStable(items, func(i, j int) bool {
		if items[i].score != items[j].score {
			return items[i].score > items[j].score
		}
		return items[i].p.PK < items[j].p.PK
	})
	out := make([]Participant, 0, num)
	for _, it := range items[:num] {
		out = append(out, it.p)
	}
	return out
}

func checkCount(candidates []Participant, num int) error {
	if num < 0 {
		return fmt.Errorf("negative match count %d", num)
	}
	if len(candidates) < num {
		return fmt.Errorf("%w: want %d, have %d", ErrInsufficientCandidates, num, len(candidates))
	}
	return nil
}

// =============================================================================
// LEXICAL MATCHER
// =============================================================================

// LexicalMatcher scores candidates by the number of distinct query terms that
// appear in their biography.
type LexicalMatcher struct{}

func (LexicalMatcher) Match(_ context.Context, query string, candidates []Participant, num int) ([]Participant, error) {
	if err := checkCount(candidates, num); err != nil {
		return nil, err
	}

	terms := termSet(query)
	items := make([]scored, len(candidates))
	for i, c := range candidates {
		overlap := 0
		for t := range termSet(c.Bio) {
			if _, ok := terms[t]; ok {
				overlap++
			}
		}
		items[i] = scored{p: c, score: float64(overlap)}
	}
	return topN(items, num), nil
}

// tokenize lowercases text and splits it on anything that is not a letter or digit.
func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func termSet(text string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, t := range tokenize(text) {
		out[t] = struct{}{}
	}
	return out
}

// =============================================================================
// EMBEDDING MATCHER
// =============================================================================

// Embedder turns text into a vector.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// EmbeddingMatcher ranks candidates by cosine similarity between the query
// embedding and each candidate's stored embedding. Candidates without a
// stored embedding are embedded from their biography.
type EmbeddingMatcher struct {
	Embedder Embedder
}

func (m EmbeddingMatcher) Match(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error) {
	if err := checkCount(candidates, num); err != nil {
		return nil, err
	}

	q, err := m.Embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to embed query: %w", err)
	}

	items := make([]scored, len(candidates))
	for i, c := range candidates {
		vec := c.Embedding
		if len(vec) == 0 {
			vec, err = m.Embedder.Embed(ctx, c.Bio)
			if err != nil {
				return nil, fmt.Errorf("failed to embed participant %s: %w", c.PK, err)
			}
		}
		items[i] = scored{p: c, score: Cosine(q, vec)}
	}
	return topN(items, num), nil
}

// Cosine returns the cosine similarity of a and b, or 0 when either is empty,
// zero or the lengths differ.
func Cosine(a, b []float32) float64 {
	if len(a) == 0 || len(a) != len(b) {
		return 0
	}
	var dot, na, nb float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		na += float64(a[i]) * float64(a[i])
		nb += float64(b[i]) * float64(b[i])
	}
	if na == 0 || nb == 0 {
		return 0
	}
	return dot / (math.Sqrt(na) * math.Sqrt(nb))
}

// HashingEmbedder builds bag-of-words vectors by hashing terms into Dim buckets.
type HashingEmbedder struct {
	Dim int
}

// DefaultEmbeddingDim is used when HashingEmbedder.Dim is not positive.
const DefaultEmbeddingDim = 256

func (h HashingEmbedder) Embed(_ context.Context, text string) ([]float32, error) {
	dim := h.Dim
	if dim <= 0 {
		dim = DefaultEmbeddingDim
	}

	vec := make([]float32, dim)
	for _, t := range tokenize(text) {
		hasher := fnv.New32a()
		hasher.Write([]byte(t))
		vec[hasher.Sum32()%uint32(dim)]++
	}

	var norm float64
	for _, v := range vec {
		norm += float64(v) * float64(v)
	}
	if norm > 0 {
		n := float32(math.Sqrt(norm))
		for i := range vec {
			vec[i] /= n
		}
	}
	return vec, nil
}
