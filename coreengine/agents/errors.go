package agents

import (
	"errors"
	"fmt"
)

// ErrAllocation matches every *AllocationError via errors.Is.
var ErrAllocation = errors.New("allocation error")

// ErrInsufficientCandidates is returned by a Matcher asked for more
// participants than it was given.
var ErrInsufficientCandidates = errors.New("insufficient candidates")

// AllocationError is raised when the directory cannot supply the requested
// number of participants for a role.
type AllocationError struct {
	Role      Role
	Query     string
	Requested int
	Available int
	Cause     error
}

func (e *AllocationError) Error() string {
	msg := fmt.Sprintf("cannot allocate %d %s participant(s): %d candidate(s) available", e.Requested, e.Role, e.Available)
	if e.Cause != nil {
		return fmt.Sprintf("%s: %v", msg, e.Cause)
	}
	return msg
}

func (e *AllocationError) Unwrap() error {
	return e.Cause
}

// Is makes errors.Is(err, ErrAllocation) succeed.
func (e *AllocationError) Is(target error) bool {
	return target == ErrAllocation
}

// NewAllocationError creates a new AllocationError.
func NewAllocationError(role Role, query string, requested, available int, cause error) *AllocationError {
	return &AllocationError{
		Role:      role,
		Query:     query,
		Requested: requested,
		Available: available,
		Cause:     cause,
	}
}
