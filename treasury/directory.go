package treasury

import (
	"context"
	"time"
)

// =============================================================================
// EXTERNAL COLLABORATORS - member directory and clock
// =============================================================================

// MemberDirectory is the boundary to the roster subsystem. The treasury
// references members by id and never mutates identity fields.
//
// GetMember returns (nil, nil) when the member does not exist; the
// engine maps that to a NotFoundError so storage implementations do not
// need to know the error taxonomy.
type MemberDirectory interface {
	GetMember(ctx context.Context, id string) (*Member, error)

	// ListMembers returns members whose lifecycle status is in statuses.
	// An empty filter returns everyone.
	ListMembers(ctx context.Context, statuses ...LifecycleStatus) ([]Member, error)
}

// Clock supplies the current date. Injected so debt calculation and
// tenure banding are deterministic in tests.
type Clock interface {
	Today() time.Time
}

// SystemClock is the production clock.
type SystemClock struct{}

func (SystemClock) Today() time.Time { return time.Now().UTC() }

// FixedClock always returns the wrapped time.
type FixedClock time.Time

func (c FixedClock) Today() time.Time { return time.Time(c) }
