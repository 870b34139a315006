package agents

import (
	"context"
	"fmt"
	"sync"

	"github.com/jeeves-cluster-organization/researchtown/coreengine/store"
)

// ParticipantsBucket is the store bucket holding participant records.
const ParticipantsBucket = "participants"

// Directory is the queryable store of participant profiles.
type Directory interface {
	// Get returns every participant satisfying cond, ordered by primary key.
	Get(ctx context.Context, cond Condition) ([]Participant, error)
	// Match ranks candidates against query and returns exactly num of them.
	Match(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error)
	// SetRole replaces the role tag of one participant.
	SetRole(ctx context.Context, pk string, role Role) error
	// Put inserts or replaces a participant.
	Put(ctx context.Context, p Participant) error
	// ResetRoleAvailability marks every participant unassigned.
	ResetRoleAvailability(ctx context.Context) error
	// Dump returns every participant ordered by primary key.
	Dump(ctx context.Context, withEmbed bool) ([]Participant, error)
	// Restore replaces the directory contents.
	Restore(ctx context.Context, participants []Participant) error
}

// ParticipantDirectory implements Directory over a store.Backend.
type ParticipantDirectory struct {
	table   *store.Table[Participant]
	matcher Matcher
	mu      sync.Mutex
}

// NewDirectory creates a directory over backend. A nil matcher selects LexicalMatcher.
func NewDirectory(backend store.Backend, matcher Matcher) *ParticipantDirectory {
	if matcher == nil {
		matcher = LexicalMatcher{}
	}
	return &ParticipantDirectory{
		table:   store.NewTable[Participant](backend, ParticipantsBucket),
		matcher: matcher,
	}
}

func (d *ParticipantDirectory) Get(ctx context.Context, cond Condition) ([]Participant, error) {
	if cond.PK != "" {
		p, err := d.table.Get(ctx, cond.PK)
		if store.IsNotFound(err) {
			return []Participant{}, nil
		}
		if err != nil {
			return nil, err
		}
		if !cond.Matches(p) {
			return []Participant{}, nil
		}
		return []Participant{p}, nil
	}
	return d.table.Filter(ctx, cond.Matches)
}

func (d *ParticipantDirectory) Match(ctx context.Context, query string, candidates []Participant, num int) ([]Participant, error) {
	return d.matcher.Match(ctx, query, candidates, num)
}

func (d *ParticipantDirectory) SetRole(ctx context.Context, pk string, role Role) error {
	if !role.Valid() {
		return fmt.Errorf("invalid role %q", role)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	p, err := d.table.Get(ctx, pk)
	if err != nil {
		return fmt.Errorf("participant %s: %w", pk, err)
	}
	p.Role = role
	return d.table.Put(ctx, pk, p)
}

func (d *ParticipantDirectory) Put(ctx context.Context, p Participant) error {
	if p.PK == "" {
		return fmt.Errorf("participant primary key cannot be empty")
	}
	if p.Role == "" {
		p.Role = RoleUnassigned
	}
	if !p.Role.Valid() {
		return fmt.Errorf("invalid role %q", p.Role)
	}

	d.mu.Lock()
	defer d.mu.Unlock()
	return d.table.Put(ctx, p.PK, p)
}

func (d *ParticipantDirectory) ResetRoleAvailability(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	all, err := d.table.List(ctx)
	if err != nil {
		return err
	}
	for _, p := range all {
		if p.Role == RoleUnassigned {
			continue
		}
		p.Role = RoleUnassigned
		if err := d.table.Put(ctx, p.PK, p); err != nil {
			return err
		}
	}
	return nil
}

func (d *ParticipantDirectory) Dump(ctx context.Context, withEmbed bool) ([]Participant, error) {
	all, err := d.table.List(ctx)
	if err != nil {
		return nil, err
	}
	if !withEmbed {
		for i := range all {
			all[i] = all[i].WithoutEmbedding()
		}
	}
	return all, nil
}

func (d *ParticipantDirectory) Restore(ctx context.Context, participants []Participant) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if err := d.table.Clear(ctx); err != nil {
		return err
	}
	for _, p := range participants {
		if p.Role == "" {
			p.Role = RoleUnassigned
		}
		if err := d.table.Put(ctx, p.PK, p); err != nil {
			return err
		}
	}
	return nil
}
