package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/agents"
)

// AbstractKey is the output/extra key holding the proposal abstract that
// reviewer and chair allocation match against.
const AbstractKey = "abstract"

// Allocation asks for Num participants tagged with Role.
type Allocation struct {
	Role agents.Role
	Num  int
}

// Allocate returns a TransitionFunc that forwards the exited stage's
// participants and outputs, then allocates every entry of plan in order and
// appends the selected participants.
//
// Members are matched against the leader's biography. Reviewers and the chair
// are matched against the abstract found under AbstractKey in the exited
// stage's outputs, falling back to the leader's biography when no abstract
// was produced. Participants already forwarded with a planned role are
// replaced by the new selection, so a loop back into the stage re-allocates
// instead of accumulating. Models are left empty for the engine to fill.
func Allocate(alloc *agents.Allocator, plan ...Allocation) TransitionFunc {
	return func(ctx context.Context, from Stage) (EntryInputs, error) {
		if alloc == nil {
			return EntryInputs{}, errors.New("allocating transition has no allocator")
		}
		in, err := ForwardAll(ctx, from)
		if err != nil {
			return in, err
		}

		leader, ok := leaderOf(in)
		if !ok {
			return in, errors.New("no leader among forwarded participants")
		}
		abstract := leader.Bio
		if v, ok := in.Extra.StringValue(AbstractKey); ok && v != "" {
			abstract = v
		}

		out := dropRoles(in, plan)
		for _, a := range plan {
			var selected []agents.Participant
			switch a.Role {
			case agents.RoleMember:
				selected, err = alloc.FindMembers(ctx, leader, a.Num)
			case agents.RoleReviewer:
				selected, err = alloc.FindReviewers(ctx, abstract, a.Num)
			case agents.RoleChair:
				var chair agents.Participant
				if chair, err = alloc.FindChair(ctx, abstract); err == nil {
					selected = []agents.Participant{chair}
				}
			default:
				return EntryInputs{}, fmt.Errorf("cannot allocate role %q on a transition", a.Role)
			}
			if err != nil {
				return EntryInputs{}, err
			}
			for _, p := range selected {
				out.Profiles = append(out.Profiles, p)
				out.Roles = append(out.Roles, a.Role)
			}
		}
		return out, nil
	}
}

// leaderOf returns the first forwarded participant in the leader role.
func leaderOf(in EntryInputs) (agents.Participant, bool) {
	for i, p := range in.Profiles {
		role := p.Role
		if i < len(in.Roles) {
			role = in.Roles[i]
		}
		if role == agents.RoleLeader {
			return p, true
		}
	}
	return agents.Participant{}, false
}

// dropRoles removes forwarded participants whose role is part of plan and
// clears the models.
func dropRoles(in EntryInputs, plan []Allocation) EntryInputs {
	planned := make(map[agents.Role]bool, len(plan))
	for _, a := range plan {
		planned[a.Role] = true
	}
	out := EntryInputs{Extra: in.Extra}
	for i, p := range in.Profiles {
		role := p.Role
		if i < len(in.Roles) {
			role = in.Roles[i]
		}
		if planned[role] {
			continue
		}
		out.Profiles = append(out.Profiles, p)
		out.Roles = append(out.Roles, role)
	}
	return out
}
