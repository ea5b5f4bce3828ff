/*
dues.go - Dues payment recorder and per-member status operations

PURPOSE:
  Records monthly dues payments and maintains the lazily-created
  per-member status record (student pricing, dues deactivation).

RECORDER PRECONDITIONS (checked in order, first failure wins):
  1. month in 1..12                       -> ErrInvalidPeriod
  2. amount > 0                           -> ErrInvalidAmount
  3. member exists                        -> NotFoundError
  4. eligibility holds                    -> IneligibleError
  5. cycle for the year is not closed     -> ErrCycleClosed
  6. no payment for (member, month, year) -> DuplicatePaymentError

EFFECT (one atomic unit):
  insert DuesPayment + insert one income/dues FinancialMovement
  referencing it. Both writes land or neither does.

  The amount is NOT validated against the resolved price: partial and
  adjusted payments are accepted on purpose (see DESIGN.md).
*/
package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// DuesPaymentInput carries a payment to record. PaidOn defaults to
// today.
type DuesPaymentInput struct {
	MemberID string
	Month    int
	Year     int
	Amount   decimal.Decimal
	PaidOn   time.Time
	Method   string
	Receipt  string
	Note     string
	Actor    string
}

// RecordDuesPayment validates and records one monthly dues payment,
// writing the paired ledger movement in the same atomic unit.
func (e *Engine) RecordDuesPayment(ctx context.Context, in DuesPaymentInput) (*DuesPayment, error) {
	if in.Month < 1 || in.Month > 12 {
		return nil, ErrInvalidPeriod
	}
	if !in.Amount.IsPositive() {
		return nil, ErrInvalidAmount
	}

	m, err := e.member(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}

	st, err := e.store.GetDuesStatus(ctx, in.MemberID)
	if err != nil {
		return nil, err
	}
	if elig := evaluateEligibility(*m, st, e.clock.Today()); !elig.Eligible {
		return nil, &IneligibleError{MemberID: in.MemberID, Category: elig.Category, Reason: elig.Reason}
	}

	cycle, err := e.store.GetCycle(ctx, in.Year)
	if err != nil {
		return nil, err
	}
	if cycle != nil && cycle.Closed {
		return nil, ErrCycleClosed
	}

	if existing, err := e.store.GetDuesPayment(ctx, in.MemberID, in.Month, in.Year); err != nil {
		return nil, err
	} else if existing != nil {
		return nil, &DuplicatePaymentError{
			MemberID:   in.MemberID,
			Month:      in.Month,
			Year:       in.Year,
			ExistingID: existing.ID,
		}
	}

	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = e.clock.Today()
	}

	payment := DuesPayment{
		ID:        uuid.NewString(),
		MemberID:  in.MemberID,
		Month:     in.Month,
		Year:      in.Year,
		Amount:    in.Amount,
		PaidOn:    paidOn,
		Method:    in.Method,
		Receipt:   in.Receipt,
		Note:      in.Note,
		CreatedAt: e.clock.Today(),
		CreatedBy: in.Actor,
	}

	movement := FinancialMovement{
		ID:            uuid.NewString(),
		Direction:     Income,
		Category:      CategoryDues,
		Amount:        in.Amount,
		Description:   fmt.Sprintf("Dues %s %d - %s", MonthName(in.Month), in.Year, m.Name),
		Date:          paidOn,
		DuesPaymentID: payment.ID,
		Receipt:       in.Receipt,
		CreatedAt:     e.clock.Today(),
		CreatedBy:     in.Actor,
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.InsertDuesPayment(ctx, payment); err != nil {
			return err
		}
		return s.InsertMovement(ctx, movement)
	})
	if err != nil {
		return nil, err
	}
	return &payment, nil
}

// ListMemberDuesPayments returns the member's payments for a year.
func (e *Engine) ListMemberDuesPayments(ctx context.Context, memberID string, year int) ([]DuesPayment, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return nil, err
	}
	return e.store.ListDuesPayments(ctx, memberID, year)
}

// =============================================================================
// DUES STATUS - student flag and dues deactivation
// =============================================================================

// GetDuesStatus returns the member's status record; a member without one
// gets the zero-value (regular, active) status.
func (e *Engine) GetDuesStatus(ctx context.Context, memberID string) (DuesStatus, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return DuesStatus{}, err
	}
	st, err := e.store.GetDuesStatus(ctx, memberID)
	if err != nil {
		return DuesStatus{}, err
	}
	if st == nil {
		return DuesStatus{MemberID: memberID}, nil
	}
	return *st, nil
}

// StudentStatusInput carries the metadata for enabling student pricing.
type StudentStatusInput struct {
	Since time.Time
	Note  string
}

// SetStudentStatus toggles student pricing. Enabling records the
// activation date and supporting note; disabling clears them.
func (e *Engine) SetStudentStatus(ctx context.Context, memberID string, active bool, in StudentStatusInput) (*DuesStatus, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return nil, err
	}

	var out *DuesStatus
	err := e.store.WithTx(ctx, func(s Store) error {
		st, err := s.GetDuesStatus(ctx, memberID)
		if err != nil {
			return err
		}
		if st == nil {
			st = &DuesStatus{MemberID: memberID}
		}
		if active {
			since := in.Since
			if since.IsZero() {
				since = e.clock.Today()
			}
			st.Student = true
			st.StudentSince = &since
			st.StudentNote = in.Note
		} else {
			st.Student = false
			st.StudentSince = nil
			st.StudentNote = ""
		}
		st.UpdatedAt = e.clock.Today()
		if err := s.SaveDuesStatus(ctx, *st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}

// SetDuesDeactivation toggles the dues deactivation flag. A deactivated
// member never appears in debtor lists and cannot record payments.
func (e *Engine) SetDuesDeactivation(ctx context.Context, memberID string, active bool, reason, actor string) (*DuesStatus, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return nil, err
	}

	var out *DuesStatus
	err := e.store.WithTx(ctx, func(s Store) error {
		st, err := s.GetDuesStatus(ctx, memberID)
		if err != nil {
			return err
		}
		if st == nil {
			st = &DuesStatus{MemberID: memberID}
		}
		if active {
			now := e.clock.Today()
			st.Deactivated = true
			st.DeactivationReason = reason
			st.DeactivatedAt = &now
			st.DeactivatedBy = actor
		} else {
			st.Deactivated = false
			st.DeactivationReason = ""
			st.DeactivatedAt = nil
			st.DeactivatedBy = ""
		}
		st.UpdatedAt = e.clock.Today()
		if err := s.SaveDuesStatus(ctx, *st); err != nil {
			return err
		}
		out = st
		return nil
	})
	return out, err
}
