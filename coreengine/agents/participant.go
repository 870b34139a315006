// Package agents provides the participant directory and role-based allocation.
//
// Each participant carries exactly one Role tag. RoleUnassigned marks a
// participant available for any role; the allocator moves participants from
// that state into exactly one specific role. Role exclusivity is structural:
// a participant has one Role field, never independent flags.
package agents

import (
	"fmt"
	"strings"
)

// =============================================================================
// ROLE
// =============================================================================

// Role is the closed set of role tags a participant can carry.
type Role string

const (
	// RoleUnassigned marks a participant that is a candidate for every role.
	RoleUnassigned Role = "unassigned"
	RoleLeader     Role = "leader"
	RoleMember     Role = "member"
	RoleReviewer   Role = "reviewer"
	RoleChair      Role = "chair"
)

// Roles lists the four assignable roles in allocation order.
var Roles = []Role{RoleLeader, RoleMember, RoleReviewer, RoleChair}

// RoleFromString parses a role name.
func RoleFromString(value string) (Role, error) {
	normalized := strings.ToLower(strings.TrimSpace(value))
	switch normalized {
	case "", "unassigned":
		return RoleUnassigned, nil
	case "leader":
		return RoleLeader, nil
	case "member":
		return RoleMember, nil
	case "reviewer":
		return RoleReviewer, nil
	case "chair":
		return RoleChair, nil
	default:
		return "", fmt.Errorf("invalid role '%s'. Must be one of: unassigned, leader, member, reviewer, chair", value)
	}
}

// String returns the role name.
func (r Role) String() string {
	if r == "" {
		return string(RoleUnassigned)
	}
	return string(r)
}

// Valid reports whether r is one of the known role tags.
func (r Role) Valid() bool {
	switch r {
	case RoleUnassigned, RoleLeader, RoleMember, RoleReviewer, RoleChair:
		return true
	}
	return false
}

// =============================================================================
// PARTICIPANT
// =============================================================================

// Participant is a directory-tracked actor with a biography and one role tag.
type Participant struct {
	PK        string    `json:"pk"`
	Name      string    `json:"name"`
	Bio       string    `json:"bio"`
	Role      Role      `json:"role"`
	Embedding []float32 `json:"embedding,omitempty"`
}

// CandidateFor reports whether p may be selected for role r.
// Unassigned participants are candidates for every role.
func (p Participant) CandidateFor(r Role) bool {
	return p.Role == RoleUnassigned || p.Role == "" || p.Role == r
}

func (p Participant) IsLeaderCandidate() bool   { return p.CandidateFor(RoleLeader) }
func (p Participant) IsMemberCandidate() bool   { return p.CandidateFor(RoleMember) }
func (p Participant) IsReviewerCandidate() bool { return p.CandidateFor(RoleReviewer) }
func (p Participant) IsChairCandidate() bool    { return p.CandidateFor(RoleChair) }

// WithoutEmbedding returns a copy of p with the embedding dropped.
func (p Participant) WithoutEmbedding() Participant {
	p.Embedding = nil
	return p
}

// =============================================================================
// CONDITION
// =============================================================================

// Condition is an exact-match predicate over directory records.
// Zero fields do not constrain the result.
type Condition struct {
	// PK restricts the result to one participant.
	PK string
	// Candidate restricts the result to participants available for this role.
	Candidate Role
}

// Matches reports whether p satisfies c.
func (c Condition) Matches(p Participant) bool {
	if c.PK != "" && p.PK != c.PK {
		return false
	}
	if c.Candidate != "" && c.Candidate != RoleUnassigned && !p.CandidateFor(c.Candidate) {
		return false
	}
	return true
}

// AnyParticipant matches every record in the directory.
var AnyParticipant = Condition{}

// CandidatesFor matches participants available for role r.
func CandidatesFor(r Role) Condition {
	return Condition{Candidate: r}
}

// ByPK matches the participant with the given primary key.
func ByPK(pk string) Condition {
	return Condition{PK: pk}
}
