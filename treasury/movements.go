package treasury

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// FINANCIAL MOVEMENT LEDGER - read-only from the outside
// =============================================================================
// Every write path into the ledger lives in dues.go and benefit.go;
// there is no standalone "create movement" operation, so every
// movement stays traceable to exactly one payment.

// ListMovements returns ledger lines matching the filter, newest first.
func (e *Engine) ListMovements(ctx context.Context, f MovementFilter) ([]FinancialMovement, error) {
	return e.store.ListMovements(ctx, f)
}

// BalanceSummary is the company balance derived from the ledger.
type BalanceSummary struct {
	Income  decimal.Decimal
	Expense decimal.Decimal
	Balance decimal.Decimal
}

// Balance computes total income minus total expense over the whole
// ledger.
func (e *Engine) Balance(ctx context.Context) (BalanceSummary, error) {
	income, err := e.store.SumMovements(ctx, Income)
	if err != nil {
		return BalanceSummary{}, err
	}
	expense, err := e.store.SumMovements(ctx, Expense)
	if err != nil {
		return BalanceSummary{}, err
	}
	return BalanceSummary{
		Income:  income,
		Expense: expense,
		Balance: income.Sub(expense),
	}, nil
}
