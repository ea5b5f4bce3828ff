/*
cycle.go - Annual dues cycle state machine

STATES:
  Active and Closed are independent booleans; the meaningful shapes are
  ACTIVE {active, !closed}, CLOSED {!active, closed} and INACTIVE
  {!active, !closed} (created but never activated, or displaced by
  another cycle's activation).

TRANSITIONS:
  activate: sets active on this cycle and clears it everywhere else.
            No precondition; re-activation is idempotent.
  close:    fails with ErrAlreadyClosed when already closed; otherwise
            stamps ClosedAt and clears active.
  reopen:   clears closed/ClosedAt. Does NOT restore active; the
            operator re-activates explicitly if desired.

  A closed cycle's year rejects new dues payments (enforced by the
  payment recorder, see dues.go).
*/
package treasury

import (
	"context"
	"strconv"
	"time"

	"github.com/shopspring/decimal"
)

// CycleInput describes a cycle to create. Zero dates default to the
// calendar year bounds; zero prices snapshot the current configuration.
type CycleInput struct {
	Year         int
	StartDate    time.Time
	EndDate      time.Time
	Activate     bool
	RegularPrice decimal.Decimal
	StudentPrice decimal.Decimal
	Notes        string
}

// CreateCycle creates the dues cycle for a year. At most one cycle per
// year; activating the new cycle deactivates every other cycle in the
// same atomic unit.
func (e *Engine) CreateCycle(ctx context.Context, in CycleInput) (*DuesCycle, error) {
	if in.Year < 1900 || in.Year > 3000 {
		return nil, ErrInvalidPeriod
	}

	existing, err := e.store.GetCycle(ctx, in.Year)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return nil, ErrCycleExists
	}

	regular, student := in.RegularPrice, in.StudentPrice
	if regular.IsZero() || student.IsZero() {
		cfg, err := e.GetPricing(ctx)
		if err != nil {
			return nil, err
		}
		if regular.IsZero() {
			regular = cfg.RegularPrice
		}
		if student.IsZero() {
			student = cfg.StudentPrice
		}
	}
	if !regular.IsPositive() || !student.IsPositive() {
		return nil, ErrInvalidAmount
	}

	start, end := in.StartDate, in.EndDate
	if start.IsZero() {
		start = time.Date(in.Year, time.January, 1, 0, 0, 0, 0, time.UTC)
	}
	if end.IsZero() {
		end = time.Date(in.Year, time.December, 31, 0, 0, 0, 0, time.UTC)
	}

	cycle := DuesCycle{
		Year:         in.Year,
		StartDate:    start,
		EndDate:      end,
		Active:       in.Activate,
		RegularPrice: regular,
		StudentPrice: student,
		Notes:        in.Notes,
		CreatedAt:    e.clock.Today(),
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if in.Activate {
			if err := s.DeactivateCyclesExcept(ctx, in.Year); err != nil {
				return err
			}
		}
		return s.SaveCycle(ctx, cycle)
	})
	if err != nil {
		return nil, err
	}
	return &cycle, nil
}

// ActivateCycle marks the cycle active and forces every other cycle
// inactive, leaving exactly one active cycle. Idempotent.
func (e *Engine) ActivateCycle(ctx context.Context, year int) (*DuesCycle, error) {
	var out *DuesCycle
	err := e.store.WithTx(ctx, func(s Store) error {
		cycle, err := s.GetCycle(ctx, year)
		if err != nil {
			return err
		}
		if cycle == nil {
			return &NotFoundError{Kind: "cycle", ID: yearID(year)}
		}
		if err := s.DeactivateCyclesExcept(ctx, year); err != nil {
			return err
		}
		cycle.Active = true
		if err := s.SaveCycle(ctx, *cycle); err != nil {
			return err
		}
		out = cycle
		return nil
	})
	return out, err
}

// CloseCycle closes the cycle: no further dues payments are accepted
// for its year until reopened.
func (e *Engine) CloseCycle(ctx context.Context, year int, actor string) (*DuesCycle, error) {
	var out *DuesCycle
	err := e.store.WithTx(ctx, func(s Store) error {
		cycle, err := s.GetCycle(ctx, year)
		if err != nil {
			return err
		}
		if cycle == nil {
			return &NotFoundError{Kind: "cycle", ID: yearID(year)}
		}
		if cycle.Closed {
			return ErrAlreadyClosed
		}
		now := e.clock.Today()
		cycle.Closed = true
		cycle.Active = false
		cycle.ClosedAt = &now
		cycle.ClosedBy = actor
		if err := s.SaveCycle(ctx, *cycle); err != nil {
			return err
		}
		out = cycle
		return nil
	})
	return out, err
}

// ReopenCycle clears the closed state. The cycle comes back INACTIVE.
func (e *Engine) ReopenCycle(ctx context.Context, year int) (*DuesCycle, error) {
	var out *DuesCycle
	err := e.store.WithTx(ctx, func(s Store) error {
		cycle, err := s.GetCycle(ctx, year)
		if err != nil {
			return err
		}
		if cycle == nil {
			return &NotFoundError{Kind: "cycle", ID: yearID(year)}
		}
		cycle.Closed = false
		cycle.ClosedAt = nil
		cycle.ClosedBy = ""
		if err := s.SaveCycle(ctx, *cycle); err != nil {
			return err
		}
		out = cycle
		return nil
	})
	return out, err
}

// GetCycle returns the cycle for a year.
func (e *Engine) GetCycle(ctx context.Context, year int) (*DuesCycle, error) {
	cycle, err := e.store.GetCycle(ctx, year)
	if err != nil {
		return nil, err
	}
	if cycle == nil {
		return nil, &NotFoundError{Kind: "cycle", ID: yearID(year)}
	}
	return cycle, nil
}

// ListCycles returns all cycles, newest year first.
func (e *Engine) ListCycles(ctx context.Context) ([]DuesCycle, error) {
	return e.store.ListCycles(ctx)
}

func yearID(year int) string {
	return strconv.Itoa(year)
}
