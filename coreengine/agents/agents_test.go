package agents

import (
	"context"
	"errors"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

var seedParticipants = []Participant{
	{PK: "r1", Name: "Ada", Bio: "graph neural networks and molecule generation"},
	{PK: "r2", Name: "Ben", Bio: "reinforcement learning for robotics"},
	{PK: "r3", Name: "Cy", Bio: "large language models and retrieval augmented generation"},
	{PK: "r4", Name: "Dee", Bio: "state space models for long sequence modeling"},
	{PK: "r5", Name: "Eve", Bio: "language models, alignment and evaluation"},
}

func newTestDirectory(t *testing.T, backend store.Backend) *ParticipantDirectory {
	t.Helper()
	if backend == nil {
		backend = store.NewMemoryBackend()
	}
	dir := NewDirectory(backend, nil)
	for _, p := range seedParticipants {
		require.NoError(t, dir.Put(context.Background(), p))
	}
	return dir
}

// assertExclusive checks that every participant is a candidate for exactly
// one role, or for all of them when unassigned.
func assertExclusive(t *testing.T, dir Directory) {
	t.Helper()
	all, err := dir.Dump(context.Background(), false)
	require.NoError(t, err)
	for _, p := range all {
		flags := 0
		for _, r := range Roles {
			if p.CandidateFor(r) {
				flags++
			}
		}
		if p.Role == RoleUnassigned {
			assert.Equal(t, len(Roles), flags, p.PK)
		} else {
			assert.Equal(t, 1, flags, p.PK)
		}
	}
}

// =============================================================================
// ROLE / CONDITION TESTS
// =============================================================================

func TestRoleFromString(t *testing.T) {
	tests := []struct {
		in      string
		want    Role
		wantErr bool
	}{
		{"leader", RoleLeader, false},
		{" Reviewer ", RoleReviewer, false},
		{"CHAIR", RoleChair, false},
		{"member", RoleMember, false},
		{"", RoleUnassigned, false},
		{"boss", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := RoleFromString(tt.in)
			if tt.wantErr {
				require.Error(t, err)
				assert.Contains(t, err.Error(), "invalid role")
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParticipant_CandidateFlags(t *testing.T) {
	unassigned := Participant{PK: "a", Role: RoleUnassigned}
	assert.True(t, unassigned.IsLeaderCandidate())
	assert.True(t, unassigned.IsMemberCandidate())
	assert.True(t, unassigned.IsReviewerCandidate())
	assert.True(t, unassigned.IsChairCandidate())

	reviewer := Participant{PK: "b", Role: RoleReviewer}
	assert.False(t, reviewer.IsLeaderCandidate())
	assert.False(t, reviewer.IsMemberCandidate())
	assert.True(t, reviewer.IsReviewerCandidate())
	assert.False(t, reviewer.IsChairCandidate())
}

func TestCondition_Matches(t *testing.T) {
	leader := Participant{PK: "a", Role: RoleLeader}
	free := Participant{PK: "b", Role: RoleUnassigned}

	assert.True(t, AnyParticipant.Matches(leader))
	assert.True(t, ByPK("a").Matches(leader))
	assert.False(t, ByPK("a").Matches(free))
	assert.False(t, CandidatesFor(RoleMember).Matches(leader))
	assert.True(t, CandidatesFor(RoleMember).Matches(free))
	assert.True(t, CandidatesFor(RoleLeader).Matches(leader))
}

// =============================================================================
// MATCHER TESTS
// =============================================================================

func TestLexicalMatcher_RanksByOverlap(t *testing.T) {
	got, err := LexicalMatcher{}.Match(context.Background(), "language models evaluation", seedParticipants, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "r5", got[0].PK)
	assert.Equal(t, "r3", got[1].PK)
}

func TestLexicalMatcher_TieBreaksByPK(t *testing.T) {
	got, err := LexicalMatcher{}.Match(context.Background(), "nothing relevant here", seedParticipants, 3)
	require.NoError(t, err)
	assert.Equal(t, []string{"r1", "r2", "r3"}, pks(got))
}

func TestLexicalMatcher_Insufficient(t *testing.T) {
	_, err := LexicalMatcher{}.Match(context.Background(), "q", seedParticipants[:1], 2)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrInsufficientCandidates))
}

func TestEmbeddingMatcher(t *testing.T) {
	m, err := NewMatcher(StrategyEmbedding, 64)
	require.NoError(t, err)

	got, err := m.Match(context.Background(), "reinforcement learning robotics", seedParticipants, 1)
	require.NoError(t, err)
	assert.Equal(t, "r2", got[0].PK)
}

func TestNewMatcher_Unknown(t *testing.T) {
	_, err := NewMatcher("bm25", 0)
	require.Error(t, err)
}

func TestCosine(t *testing.T) {
	assert.InDelta(t, 1.0, Cosine([]float32{1, 2}, []float32{2, 4}), 1e-9)
	assert.InDelta(t, 0.0, Cosine([]float32{1, 0}, []float32{0, 1}), 1e-9)
	assert.Zero(t, Cosine(nil, nil))
	assert.Zero(t, Cosine([]float32{1}, []float32{1, 2}))
	assert.Zero(t, Cosine([]float32{0, 0}, []float32{1, 1}))
}

func TestHashingEmbedder_Normalized(t *testing.T) {
	vec, err := HashingEmbedder{}.Embed(context.Background(), "a b c a")
	require.NoError(t, err)
	assert.Len(t, vec, DefaultEmbeddingDim)
	assert.InDelta(t, 1.0, Cosine(vec, vec), 1e-6)
}

// =============================================================================
// DIRECTORY TESTS
// =============================================================================

func TestDirectory_GetByCondition(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	require.NoError(t, dir.SetRole(ctx, "r1", RoleLeader))

	all, err := dir.Get(ctx, AnyParticipant)
	require.NoError(t, err)
	assert.Len(t, all, 5)

	members, err := dir.Get(ctx, CandidatesFor(RoleMember))
	require.NoError(t, err)
	assert.Equal(t, []string{"r2", "r3", "r4", "r5"}, pks(members))

	one, err := dir.Get(ctx, ByPK("r1"))
	require.NoError(t, err)
	require.Len(t, one, 1)
	assert.Equal(t, RoleLeader, one[0].Role)

	none, err := dir.Get(ctx, ByPK("missing"))
	require.NoError(t, err)
	assert.Empty(t, none)
}

func TestDirectory_SetRoleErrors(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)

	err := dir.SetRole(ctx, "missing", RoleLeader)
	require.Error(t, err)
	assert.True(t, store.IsNotFound(err))

	err = dir.SetRole(ctx, "r1", Role("boss"))
	require.Error(t, err)
}

func TestDirectory_PutRejectsEmptyPK(t *testing.T) {
	dir := NewDirectory(store.NewMemoryBackend(), nil)
	require.Error(t, dir.Put(context.Background(), Participant{}))
}

func TestDirectory_ResetRoleAvailability(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	require.NoError(t, dir.SetRole(ctx, "r1", RoleLeader))
	require.NoError(t, dir.SetRole(ctx, "r2", RoleChair))

	require.NoError(t, dir.ResetRoleAvailability(ctx))

	all, err := dir.Dump(ctx, false)
	require.NoError(t, err)
	for _, p := range all {
		assert.Equal(t, RoleUnassigned, p.Role, p.PK)
	}
}

func TestDirectory_DumpRestore(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	require.NoError(t, dir.Put(ctx, Participant{PK: "r6", Bio: "x", Embedding: []float32{0.1, 0.2}}))
	require.NoError(t, dir.SetRole(ctx, "r3", RoleReviewer))

	withEmbed, err := dir.Dump(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, []float32{0.1, 0.2}, withEmbed[5].Embedding)

	without, err := dir.Dump(ctx, false)
	require.NoError(t, err)
	assert.Nil(t, without[5].Embedding)

	restored := NewDirectory(store.NewMemoryBackend(), nil)
	require.NoError(t, restored.Restore(ctx, withEmbed))

	got, err := restored.Dump(ctx, true)
	require.NoError(t, err)
	assert.Equal(t, withEmbed, got)
}

func TestDirectory_RedisBackend(t *testing.T) {
	mr := miniredis.RunT(t)
	backend, err := store.NewRedisBackend(&redis.Options{Addr: mr.Addr()}, "agents-test")
	require.NoError(t, err)
	t.Cleanup(func() { backend.Close() })

	ctx := context.Background()
	dir := newTestDirectory(t, backend)
	require.NoError(t, dir.SetRole(ctx, "r4", RoleMember))

	got, err := dir.Get(ctx, ByPK("r4"))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, RoleMember, got[0].Role)
	assert.True(t, mr.Exists(store.BucketKey("agents-test", ParticipantsBucket)))
}

// =============================================================================
// ALLOCATOR TESTS
// =============================================================================

func TestFindAgents_ReturnsExactlyNum(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newTestDirectory(t, nil), nil)

	for num := 0; num <= len(seedParticipants); num++ {
		require.NoError(t, alloc.Directory().ResetRoleAvailability(ctx))
		got, err := alloc.FindAgents(ctx, AnyParticipant, "language", num, RoleMember)
		require.NoError(t, err)
		assert.Len(t, got, num)
	}
}

func TestFindAgents_InsufficientCandidates(t *testing.T) {
	ctx := context.Background()
	alloc := NewAllocator(newTestDirectory(t, nil), nil)

	_, err := alloc.FindAgents(ctx, AnyParticipant, "q", 6, RoleReviewer)
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrAllocation))

	var allocErr *AllocationError
	require.True(t, errors.As(err, &allocErr))
	assert.Equal(t, 6, allocErr.Requested)
	assert.Equal(t, 5, allocErr.Available)
	assert.Equal(t, RoleReviewer, allocErr.Role)
	assert.Contains(t, err.Error(), "cannot allocate 6 reviewer")
}

func TestFindAgents_MatcherShortfall(t *testing.T) {
	ctx := context.Background()
	short := MatcherFunc(func(_ context.Context, _ string, c []Participant, num int) ([]Participant, error) {
		return c[:num-1], nil
	})
	dir := NewDirectory(store.NewMemoryBackend(), short)
	for _, p := range seedParticipants {
		require.NoError(t, dir.Put(ctx, p))
	}

	_, err := NewAllocator(dir, nil).FindAgents(ctx, AnyParticipant, "q", 2, RoleMember)
	assert.True(t, errors.Is(err, ErrAllocation))
}

func TestFindAgents_TagsAndPersists(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	alloc := NewAllocator(dir, nil)

	got, err := alloc.FindAgents(ctx, AnyParticipant, "state space sequence", 1, RoleLeader)
	require.NoError(t, err)
	assert.Equal(t, "r4", got[0].PK)
	assert.Equal(t, RoleLeader, got[0].Role)

	stored, err := dir.Get(ctx, ByPK("r4"))
	require.NoError(t, err)
	assert.Equal(t, RoleLeader, stored[0].Role)
	assertExclusive(t, dir)
}

// failingRoleDirectory records SetRole calls and refuses to tag failPK.
type failingRoleDirectory struct {
	Directory
	failPK string
	calls  []string
}

func (d *failingRoleDirectory) SetRole(ctx context.Context, pk string, role Role) error {
	d.calls = append(d.calls, pk+"="+role.String())
	if pk == d.failPK && role != RoleUnassigned {
		return errors.New("write refused")
	}
	return d.Directory.SetRole(ctx, pk, role)
}

func TestFindAgents_RevertsPartialTags(t *testing.T) {
	ctx := context.Background()
	inOrder := MatcherFunc(func(_ context.Context, _ string, c []Participant, num int) ([]Participant, error) {
		return c[:num], nil
	})
	dir := NewDirectory(store.NewMemoryBackend(), inOrder)
	for _, p := range seedParticipants {
		require.NoError(t, dir.Put(ctx, p))
	}
	require.NoError(t, dir.SetRole(ctx, "r2", RoleReviewer))
	failing := &failingRoleDirectory{Directory: dir, failPK: "r3"}

	_, err := NewAllocator(failing, nil).FindAgents(ctx, CandidatesFor(RoleReviewer), "q", 3, RoleReviewer)
	require.ErrorContains(t, err, "write refused")
	assert.ErrorContains(t, err, "r3")
	assert.Equal(t, []string{
		"r1=reviewer", "r2=reviewer", "r3=reviewer",
		"r1=unassigned", "r2=reviewer",
	}, failing.calls)

	stored, err := dir.Dump(ctx, false)
	require.NoError(t, err)
	roles := map[string]Role{}
	for _, p := range stored {
		roles[p.PK] = p.Role
	}
	assert.Equal(t, map[string]Role{
		"r1": RoleUnassigned, "r2": RoleReviewer, "r3": RoleUnassigned,
		"r4": RoleUnassigned, "r5": RoleUnassigned,
	}, roles)
}

func TestSpecializations_RoleExclusivity(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	alloc := NewAllocator(dir, nil)

	leader, err := alloc.FindAgents(ctx, AnyParticipant, "language models", 1, RoleLeader)
	require.NoError(t, err)

	members, err := alloc.FindMembers(ctx, leader[0], 2)
	require.NoError(t, err)
	assert.NotContains(t, pks(members), leader[0].PK)
	assertExclusive(t, dir)

	reviewers, err := alloc.FindReviewers(ctx, "graph molecule generation", 1)
	require.NoError(t, err)
	assertExclusive(t, dir)

	chair, err := alloc.FindChair(ctx, "robotics")
	require.NoError(t, err)
	assertExclusive(t, dir)

	seen := map[string]Role{leader[0].PK: RoleLeader, chair.PK: RoleChair}
	for _, m := range members {
		seen[m.PK] = RoleMember
	}
	for _, r := range reviewers {
		seen[r.PK] = RoleReviewer
	}
	assert.Len(t, seen, 5)

	// A leader cannot be drafted as chair without a reset.
	_, err = alloc.FindChair(ctx, "anything")
	require.NoError(t, err)
	_, err = alloc.FindAgents(ctx, CandidatesFor(RoleChair), "x", 2, RoleChair)
	assert.True(t, errors.Is(err, ErrAllocation))
}

func TestSetLeader(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	alloc := NewAllocator(dir, nil)
	require.NoError(t, dir.SetRole(ctx, "r2", RoleReviewer))

	leader, err := alloc.SetLeader(ctx, seedParticipants[1])
	require.NoError(t, err)
	assert.Equal(t, "r2", leader.PK)
	assert.Equal(t, RoleLeader, leader.Role)
	assertExclusive(t, dir)

	_, err = alloc.SetLeader(ctx, Participant{PK: "ghost"})
	assert.True(t, errors.Is(err, ErrAllocation))
}

func TestFindAgents_ReallocationIsRoleIdempotent(t *testing.T) {
	ctx := context.Background()
	dir := newTestDirectory(t, nil)
	alloc := NewAllocator(dir, nil)

	first, err := alloc.FindReviewers(ctx, "language models", 2)
	require.NoError(t, err)
	second, err := alloc.FindReviewers(ctx, "language models", 2)
	require.NoError(t, err)

	assert.Equal(t, pks(first), pks(second))
	assertExclusive(t, dir)
}

func pks(ps []Participant) []string {
	out := make([]string, len(ps))
	for i, p := range ps {
		out[i] = p.PK
	}
	return out
}
