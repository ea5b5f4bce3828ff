/*
debt.go - Dues debt calculation

POLICY:
  The current month counts as already due, not future: in June, months
  January through June are owed. A past (or not-yet-started) year is
  treated as fully elapsed, twelve months.

  Ineligible members carry zero debt and an empty pending list; this is
  a calculation outcome, not an error.
*/
package treasury

import (
	"context"

	"github.com/shopspring/decimal"
)

// MemberDebt is the debt picture for one member and year.
type MemberDebt struct {
	Member        Member
	Year          int
	Price         decimal.Decimal
	PendingMonths []int
	Total         decimal.Decimal
}

// ComputeDebt calculates the member's dues debt for a year. Year 0
// means the current year.
func (e *Engine) ComputeDebt(ctx context.Context, memberID string, year int) (MemberDebt, error) {
	m, err := e.member(ctx, memberID)
	if err != nil {
		return MemberDebt{}, err
	}
	return e.computeDebt(ctx, *m, year)
}

func (e *Engine) computeDebt(ctx context.Context, m Member, year int) (MemberDebt, error) {
	today := e.clock.Today()
	if year == 0 {
		year = today.Year()
	}

	debt := MemberDebt{Member: m, Year: year, Total: decimal.Zero}

	st, err := e.store.GetDuesStatus(ctx, m.ID)
	if err != nil {
		return MemberDebt{}, err
	}
	if elig := evaluateEligibility(m, st, today); !elig.Eligible {
		return debt, nil
	}

	price, err := e.ResolveDuesPrice(ctx, m.ID)
	if err != nil {
		return MemberDebt{}, err
	}
	debt.Price = price

	payments, err := e.store.ListDuesPayments(ctx, m.ID, year)
	if err != nil {
		return MemberDebt{}, err
	}
	paid := make(map[int]bool, len(payments))
	for _, p := range payments {
		paid[p.Month] = true
	}

	currentMonth := 12
	if year == today.Year() {
		currentMonth = int(today.Month())
	}

	for month := 1; month <= currentMonth; month++ {
		if !paid[month] {
			debt.PendingMonths = append(debt.PendingMonths, month)
		}
	}
	debt.Total = price.Mul(decimal.NewFromInt(int64(len(debt.PendingMonths))))
	return debt, nil
}

// ListDebtors returns every active or inactive member owing dues for
// the year, with their resolved price and pending months. Exempt,
// blocked and deactivated members are skipped.
func (e *Engine) ListDebtors(ctx context.Context, year int) ([]MemberDebt, error) {
	members, err := e.members.ListMembers(ctx, StatusActive, StatusInactive)
	if err != nil {
		return nil, err
	}

	var debtors []MemberDebt
	for _, m := range members {
		debt, err := e.computeDebt(ctx, m, year)
		if err != nil {
			return nil, err
		}
		if debt.Total.IsPositive() {
			debtors = append(debtors, debt)
		}
	}
	return debtors, nil
}
