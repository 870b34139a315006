package agents

import (
	"context"
	"errors"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/observability"
)

// Allocator selects participants from a Directory and tags them with a role.
// It is the only component that mutates role tags.
type Allocator struct {
	dir    Directory
	logger observability.Logger
}

// NewAllocator creates an allocator over dir.
func NewAllocator(dir Directory, logger observability.Logger) *Allocator {
	return &Allocator{dir: dir, logger: observability.OrNop(logger)}
}

// Directory returns the directory the allocator mutates.
func (a *Allocator) Directory() Directory { return a.dir }

// FindAgents retrieves the participants matching cond, ranks them against
// query, tags the best num with role and persists the tag.
//
// Returns exactly num participants, or an *AllocationError when fewer than
// num candidates satisfy cond. When persisting a tag fails, tags already
// written by this call are reverted before the error is returned.
func (a *Allocator) FindAgents(ctx context.Context, cond Condition, query string, num int, role Role) (selected []Participant, err error) {
	ctx, span := observability.Tracer().Start(ctx, "agents.find_agents")
	span.SetAttributes(
		attribute.String("role", role.String()),
		attribute.Int("num", num),
	)
	defer func() {
		status := "success"
		if err != nil {
			status = "error"
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		observability.RecordAllocation(role.String(), status)
		span.End()
	}()

	if !role.Valid() {
		return nil, fmt.Errorf("invalid role %q", role)
	}
	if num < 0 {
		return nil, NewAllocationError(role, query, num, 0, fmt.Errorf("negative count"))
	}

	candidates, err := a.dir.Get(ctx, cond)
	if err != nil {
		return nil, fmt.Errorf("failed to query directory: %w", err)
	}
	if len(candidates) < num {
		a.logger.Warn("allocation_insufficient_candidates",
			"role", role.String(),
			"requested", num,
			"available", len(candidates),
		)
		return nil, NewAllocationError(role, query, num, len(candidates), nil)
	}

	selected, err = a.dir.Match(ctx, query, candidates, num)
	if err != nil {
		if errors.Is(err, ErrInsufficientCandidates) {
			return nil, NewAllocationError(role, query, num, len(candidates), err)
		}
		return nil, fmt.Errorf("failed to match participants: %w", err)
	}
	if len(selected) != num {
		return nil, NewAllocationError(role, query, num, len(selected), nil)
	}

	pks := make([]string, len(selected))
	for i := range selected {
		if err := a.dir.SetRole(ctx, selected[i].PK, role); err != nil {
			a.untag(ctx, selected[:i])
			return nil, fmt.Errorf("failed to tag participant %s: %w", selected[i].PK, err)
		}
		pks[i] = selected[i].PK
	}
	for i := range selected {
		selected[i].Role = role
	}

	a.logger.Info("allocation_completed",
		"role", role.String(),
		"requested", num,
		"candidates", len(candidates),
		"selected", pks,
	)
	return selected, nil
}

// untag restores the previous role of participants tagged before a failed
// SetRole. Restore failures are logged; the original error is what the caller
// sees.
func (a *Allocator) untag(ctx context.Context, tagged []Participant) {
	for _, p := range tagged {
		if err := a.dir.SetRole(ctx, p.PK, p.Role); err != nil {
			a.logger.Error("allocation_untag_failed", "pk", p.PK, "role", p.Role.String(), "error", err.Error())
		}
	}
}

// SetLeader re-tags an explicitly chosen participant as leader.
func (a *Allocator) SetLeader(ctx context.Context, leader Participant) (Participant, error) {
	selected, err := a.FindAgents(ctx, ByPK(leader.PK), leader.Bio, 1, RoleLeader)
	if err != nil {
		return Participant{}, err
	}
	return selected[0], nil
}

// FindMembers selects memberNum members matched against the leader's biography.
func (a *Allocator) FindMembers(ctx context.Context, leader Participant, memberNum int) ([]Participant, error) {
	return a.FindAgents(ctx, CandidatesFor(RoleMember), leader.Bio, memberNum, RoleMember)
}

// FindReviewers selects reviewerNum reviewers matched against a submission abstract.
func (a *Allocator) FindReviewers(ctx context.Context, abstract string, reviewerNum int) ([]Participant, error) {
	return a.FindAgents(ctx, CandidatesFor(RoleReviewer), abstract, reviewerNum, RoleReviewer)
}

// FindChair selects one chair matched against a submission abstract.
func (a *Allocator) FindChair(ctx context.Context, abstract string) (Participant, error) {
	selected, err := a.FindAgents(ctx, CandidatesFor(RoleChair), abstract, 1, RoleChair)
	if err != nil {
		return Participant{}, err
	}
	return selected[0], nil
}
