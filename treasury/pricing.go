package treasury

import (
	"context"

	"github.com/shopspring/decimal"
)

// =============================================================================
// PRICING CONFIGURATION - get/replace with cascade into the active cycle
// =============================================================================

// GetPricing returns the configuration record, or the built-in defaults
// when no administrator has written one yet.
func (e *Engine) GetPricing(ctx context.Context) (PricingConfig, error) {
	cfg, err := e.store.GetPricing(ctx)
	if err != nil {
		return PricingConfig{}, err
	}
	if cfg == nil {
		return PricingConfig{
			RegularPrice: DefaultRegularPrice,
			StudentPrice: DefaultStudentPrice,
		}, nil
	}
	return *cfg, nil
}

// UpdatePricing replaces the configuration and mirrors the new prices
// onto the active cycle's snapshot, if one exists, within the same
// atomic unit. Historical (non-active) cycles keep their snapshots.
// Returns the saved configuration and whether a cycle was updated.
func (e *Engine) UpdatePricing(ctx context.Context, regular, student decimal.Decimal, actor string) (PricingConfig, bool, error) {
	if !regular.IsPositive() || !student.IsPositive() {
		return PricingConfig{}, false, ErrInvalidAmount
	}

	cfg := PricingConfig{
		RegularPrice: regular,
		StudentPrice: student,
		UpdatedAt:    e.clock.Today(),
		UpdatedBy:    actor,
	}

	cycleUpdated := false
	err := e.store.WithTx(ctx, func(s Store) error {
		if err := s.SavePricing(ctx, cfg); err != nil {
			return err
		}
		cycle, err := s.ActiveCycle(ctx)
		if err != nil {
			return err
		}
		if cycle == nil {
			return nil
		}
		cycle.RegularPrice = regular
		cycle.StudentPrice = student
		cycleUpdated = true
		return s.SaveCycle(ctx, *cycle)
	})
	if err != nil {
		return PricingConfig{}, false, err
	}
	return cfg, cycleUpdated, nil
}
