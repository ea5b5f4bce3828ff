/*
store.go - Persistence interfaces for treasury records

PURPOSE:
  Defines the interface between the rules engine and the database.
  Different implementations can use SQLite or in-memory storage.

KEY INTERFACES:
  Store:   per-entity persistence (pricing, cycles, status, payments,
           events, allocations, movements)
  TxStore: Store plus WithTx for atomic multi-record effects

IMMUTABILITY CONTRACT:
  DuesPayment, BenefitPayment and FinancialMovement are insert-only:
  the interface has no update or delete methods for them.
  Cycles, status records, events and allocations are mutable state and
  use Save* upserts.

ATOMIC UNITS:
  Every multi-record effect in the engine (payment + movement, event +
  allocation fan-out, sale + allocation mutation + movement) runs inside
  WithTx. Implementations must make the whole unit visible at once, and
  must serialize writers so allocation counter updates cannot race.

IMPLEMENTATIONS:
  - store/sqlite:        production SQLite
  - treasury/store:      in-memory, for tests and development
*/
package treasury

import (
	"context"
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// STORE - per-entity persistence
// =============================================================================

// Store handles persistence of treasury records. Get* methods return
// (nil, nil) when the record does not exist.
type Store interface {
	// Pricing configuration (singleton record).
	GetPricing(ctx context.Context) (*PricingConfig, error)
	SavePricing(ctx context.Context, cfg PricingConfig) error

	// Dues cycles, keyed by year.
	GetCycle(ctx context.Context, year int) (*DuesCycle, error)
	ActiveCycle(ctx context.Context) (*DuesCycle, error)
	ListCycles(ctx context.Context) ([]DuesCycle, error)
	SaveCycle(ctx context.Context, c DuesCycle) error
	// DeactivateCyclesExcept clears the active flag on every cycle other
	// than the given year.
	DeactivateCyclesExcept(ctx context.Context, year int) error

	// Per-member dues status, created lazily.
	GetDuesStatus(ctx context.Context, memberID string) (*DuesStatus, error)
	SaveDuesStatus(ctx context.Context, st DuesStatus) error

	// Dues payments. Insert-only; InsertDuesPayment fails if the
	// (member, month, year) period is already paid.
	InsertDuesPayment(ctx context.Context, p DuesPayment) error
	GetDuesPayment(ctx context.Context, memberID string, month, year int) (*DuesPayment, error)
	ListDuesPayments(ctx context.Context, memberID string, year int) ([]DuesPayment, error)

	// Benefit events.
	InsertEvent(ctx context.Context, ev BenefitEvent) error
	GetEvent(ctx context.Context, id string) (*BenefitEvent, error)
	ListEvents(ctx context.Context) ([]BenefitEvent, error)
	SaveEvent(ctx context.Context, ev BenefitEvent) error

	// Card allocations.
	InsertAllocation(ctx context.Context, a CardAllocation) error
	GetAllocation(ctx context.Context, id string) (*CardAllocation, error)
	ListAllocationsByEvent(ctx context.Context, eventID string) ([]CardAllocation, error)
	ListAllocationsByMember(ctx context.Context, memberID string) ([]CardAllocation, error)
	SaveAllocation(ctx context.Context, a CardAllocation) error

	// Benefit payments. Insert-only.
	InsertBenefitPayment(ctx context.Context, p BenefitPayment) error
	ListBenefitPayments(ctx context.Context, allocationID string) ([]BenefitPayment, error)

	// Financial movements. Insert-only; this is the audit trail.
	InsertMovement(ctx context.Context, m FinancialMovement) error
	ListMovements(ctx context.Context, f MovementFilter) ([]FinancialMovement, error)
	SumMovements(ctx context.Context, dir MovementDirection) (decimal.Decimal, error)
}

// TxStore wraps Store with transaction support.
type TxStore interface {
	Store

	// WithTx executes fn within a transaction. If fn returns an error
	// the transaction is rolled back; otherwise it is committed.
	// Implementations serialize concurrent WithTx calls.
	WithTx(ctx context.Context, fn func(Store) error) error
}

// MovementFilter narrows ListMovements. Nil fields match everything.
type MovementFilter struct {
	Direction *MovementDirection
	Category  *MovementCategory
	From      *time.Time
	To        *time.Time
}
