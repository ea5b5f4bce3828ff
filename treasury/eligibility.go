/*
eligibility.go - Eligibility and pricing resolver

PURPOSE:
  The single source of truth for "may this member be charged dues" and
  "at what price". Every write path in the engine goes through these
  functions; the rules are never re-derived ad hoc.

EVALUATION ORDER (first match wins):
  1. DuesStatus.Deactivated           -> not eligible, "deactivated"
  2. Lifecycle resigned/suspended/
     expelled/deceased                -> not eligible, "blocked"
  3. Tenure category >= 20 years      -> not eligible, "exempt-tenure"
  4. Lifecycle martyr                 -> not eligible, "exempt-martyr"
  5. Otherwise                        -> eligible, "active"

  Deactivation outranks everything, including student pricing: a
  deactivated member owes nothing regardless of student status.
*/
package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// EligibilityCategory tags the outcome of the eligibility check.
type EligibilityCategory string

const (
	EligibilityActive       EligibilityCategory = "active"
	EligibilityDeactivated  EligibilityCategory = "deactivated"
	EligibilityBlocked      EligibilityCategory = "blocked"
	EligibilityExemptTenure EligibilityCategory = "exempt-tenure"
	EligibilityExemptMartyr EligibilityCategory = "exempt-martyr"
)

// Eligibility is the tagged result of CanPayDues.
type Eligibility struct {
	Eligible bool
	Category EligibilityCategory
	Reason   string
}

// CanPayDues evaluates whether the member may be charged monthly dues.
func (e *Engine) CanPayDues(ctx context.Context, memberID string) (Eligibility, error) {
	m, err := e.member(ctx, memberID)
	if err != nil {
		return Eligibility{}, err
	}
	st, err := e.store.GetDuesStatus(ctx, memberID)
	if err != nil {
		return Eligibility{}, err
	}
	return evaluateEligibility(*m, st, e.clock.Today()), nil
}

// evaluateEligibility is the pure rule; st may be nil when no status
// record exists yet.
func evaluateEligibility(m Member, st *DuesStatus, today time.Time) Eligibility {
	if st != nil && st.Deactivated {
		reason := st.DeactivationReason
		if reason == "" {
			reason = "no reason recorded"
		}
		return Eligibility{
			Category: EligibilityDeactivated,
			Reason:   fmt.Sprintf("dues deactivated: %s", reason),
		}
	}

	switch m.Status {
	case StatusResigned, StatusSuspended, StatusExpelled, StatusDeceased:
		return Eligibility{
			Category: EligibilityBlocked,
			Reason:   fmt.Sprintf("lifecycle status %q", m.Status),
		}
	}

	if cat := TenureCategoryAt(m.JoinDate, today); cat.ExemptFromDues() {
		return Eligibility{
			Category: EligibilityExemptTenure,
			Reason:   fmt.Sprintf("exempt by tenure: %s", cat),
		}
	}

	if m.Status == StatusMartyr {
		return Eligibility{
			Category: EligibilityExemptMartyr,
			Reason:   "exempt: martyr",
		}
	}

	return Eligibility{Eligible: true, Category: EligibilityActive}
}

// ResolveDuesPrice returns the monthly price the member would be
// charged: the student price when the student flag is set, otherwise
// the regular price. Checked independently of eligibility.
func (e *Engine) ResolveDuesPrice(ctx context.Context, memberID string) (decimal.Decimal, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return decimal.Zero, err
	}
	st, err := e.store.GetDuesStatus(ctx, memberID)
	if err != nil {
		return decimal.Zero, err
	}
	regular, student, err := e.currentPrices(ctx)
	if err != nil {
		return decimal.Zero, err
	}
	if st != nil && st.Student {
		return student, nil
	}
	return regular, nil
}

// currentPrices resolves (regular, student) from the active cycle's
// snapshot when a cycle is active, else from the configuration record,
// else from the built-in defaults.
func (e *Engine) currentPrices(ctx context.Context) (decimal.Decimal, decimal.Decimal, error) {
	if cycle, err := e.store.ActiveCycle(ctx); err != nil {
		return decimal.Zero, decimal.Zero, err
	} else if cycle != nil {
		return cycle.RegularPrice, cycle.StudentPrice, nil
	}
	cfg, err := e.store.GetPricing(ctx)
	if err != nil {
		return decimal.Zero, decimal.Zero, err
	}
	if cfg != nil {
		return cfg.RegularPrice, cfg.StudentPrice, nil
	}
	return DefaultRegularPrice, DefaultStudentPrice, nil
}
