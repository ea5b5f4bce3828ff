/*
benefit.go - Benefit events, card allocation and sale arithmetic

FAN-OUT:
  Creating an event allocates cards to every active/inactive member in
  one atomic unit: quota by tenure band, TotalDue = quota x card price,
  state pending. Partial fan-out is never observable.

SALES:
  Normal sales are capped by Available = Allocated - Sold - Released.
  Extra sales are uncapped and priced independently. Both kinds add to
  TotalPaid; the state becomes complete as soon as TotalPaid >= TotalDue
  even if sellable cards remain (paying the full amount settles the
  obligation).

RELEASES:
  Releasing cards shrinks the obligation: TotalDue drops by
  count x card price and the release is logged in the allocation's
  append-only history. When no cards remain, the allocation ends as
  complete (fully paid) or released (still owing on nothing sellable).

  Sale and release both read counters and then mutate them; the store
  serializes writers so two concurrent sales cannot oversubscribe.
*/
package treasury

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// EventInput describes a benefit event to create. Zero quotas fall back
// to the company defaults.
type EventInput struct {
	Name           string
	Description    string
	EventDate      time.Time
	Quotas         *CardQuotas
	CardPrice      decimal.Decimal
	ExtraCardPrice decimal.Decimal
	Actor          string
}

// CreateEvent creates the event and fans out one CardAllocation per
// active/inactive member, all within one atomic unit.
func (e *Engine) CreateEvent(ctx context.Context, in EventInput) (*BenefitEvent, []CardAllocation, error) {
	if !in.CardPrice.IsPositive() || !in.ExtraCardPrice.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	quotas := DefaultCardQuotas
	if in.Quotas != nil {
		quotas = *in.Quotas
	}
	if quotas.Volunteer < 0 || quotas.HonoraryCompany < 0 ||
		quotas.HonoraryCorps < 0 || quotas.Distinguished < 0 {
		return nil, nil, ErrInvalidAmount
	}

	members, err := e.members.ListMembers(ctx, StatusActive, StatusInactive)
	if err != nil {
		return nil, nil, err
	}

	now := e.clock.Today()
	event := BenefitEvent{
		ID:             uuid.NewString(),
		Name:           in.Name,
		Description:    in.Description,
		EventDate:      in.EventDate,
		Quotas:         quotas,
		CardPrice:      in.CardPrice,
		ExtraCardPrice: in.ExtraCardPrice,
		CreatedAt:      now,
		CreatedBy:      in.Actor,
	}

	allocations := make([]CardAllocation, 0, len(members))
	for _, m := range members {
		quota := quotas.For(TenureCategoryAt(m.JoinDate, now))
		state := PaymentPending
		if quota == 0 {
			// Nothing due and nothing to sell; must not block closure.
			state = PaymentComplete
		}
		allocations = append(allocations, CardAllocation{
			ID:        uuid.NewString(),
			EventID:   event.ID,
			MemberID:  m.ID,
			Allocated: quota,
			TotalDue:  in.CardPrice.Mul(decimal.NewFromInt(int64(quota))),
			TotalPaid: decimal.Zero,
			State:     state,
			CreatedAt: now,
		})
	}

	err = e.store.WithTx(ctx, func(s Store) error {
		if err := s.InsertEvent(ctx, event); err != nil {
			return err
		}
		for _, a := range allocations {
			if err := s.InsertAllocation(ctx, a); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &event, allocations, nil
}

// SaleInput carries one card sale against an allocation.
type SaleInput struct {
	AllocationID string
	Kind         SaleKind
	Cards        int
	Amount       decimal.Decimal
	PaidOn       time.Time
	Method       string
	Receipt      string
	Note         string
	Actor        string
}

// RecordSale records a normal or extra card sale: mutates the
// allocation counters, inserts the BenefitPayment row and the paired
// income movement, all atomically. Nothing is written on rejection.
func (e *Engine) RecordSale(ctx context.Context, in SaleInput) (*BenefitPayment, *CardAllocation, error) {
	if in.Cards <= 0 || !in.Amount.IsPositive() {
		return nil, nil, ErrInvalidAmount
	}
	if in.Kind != SaleNormal && in.Kind != SaleExtra {
		return nil, nil, fmt.Errorf("unknown sale kind %q", in.Kind)
	}

	paidOn := in.PaidOn
	if paidOn.IsZero() {
		paidOn = e.clock.Today()
	}

	// Resolve the display name up front; directory reads must not run
	// inside the storage transaction.
	memberName := ""
	if alloc, err := e.store.GetAllocation(ctx, in.AllocationID); err == nil && alloc != nil {
		if m, err := e.members.GetMember(ctx, alloc.MemberID); err == nil && m != nil {
			memberName = m.Name
		}
	}

	var (
		payment BenefitPayment
		updated *CardAllocation
	)
	err := e.store.WithTx(ctx, func(s Store) error {
		alloc, err := s.GetAllocation(ctx, in.AllocationID)
		if err != nil {
			return err
		}
		if alloc == nil {
			return &NotFoundError{Kind: "allocation", ID: in.AllocationID}
		}

		switch in.Kind {
		case SaleNormal:
			if in.Cards > alloc.Available() {
				return &InsufficientCardsError{
					AllocationID: alloc.ID,
					Available:    alloc.Available(),
					Requested:    in.Cards,
				}
			}
			alloc.Sold += in.Cards
		case SaleExtra:
			alloc.ExtraSold += in.Cards
		}

		alloc.TotalPaid = alloc.TotalPaid.Add(in.Amount)
		switch {
		case alloc.TotalPaid.GreaterThanOrEqual(alloc.TotalDue):
			// Fully paid settles the obligation even with cards unsold.
			alloc.State = PaymentComplete
		case alloc.TotalPaid.IsPositive():
			alloc.State = PaymentPartial
		}

		event, err := s.GetEvent(ctx, alloc.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return &NotFoundError{Kind: "event", ID: alloc.EventID}
		}

		payment = BenefitPayment{
			ID:           uuid.NewString(),
			AllocationID: alloc.ID,
			Kind:         in.Kind,
			Cards:        in.Cards,
			Amount:       in.Amount,
			PaidOn:       paidOn,
			Method:       in.Method,
			Receipt:      in.Receipt,
			Note:         in.Note,
			CreatedAt:    e.clock.Today(),
			CreatedBy:    in.Actor,
		}

		category := CategoryBenefit
		kindLabel := "normal"
		if in.Kind == SaleExtra {
			category = CategoryBenefitExtra
			kindLabel = "extra"
		}
		if memberName == "" {
			memberName = alloc.MemberID
		}
		movement := FinancialMovement{
			ID:               uuid.NewString(),
			Direction:        Income,
			Category:         category,
			Amount:           in.Amount,
			Description:      fmt.Sprintf("Benefit %s - %s (%s, %d cards)", event.Name, memberName, kindLabel, in.Cards),
			Date:             paidOn,
			BenefitPaymentID: payment.ID,
			Receipt:          in.Receipt,
			CreatedAt:        e.clock.Today(),
			CreatedBy:        in.Actor,
		}

		if err := s.SaveAllocation(ctx, *alloc); err != nil {
			return err
		}
		if err := s.InsertBenefitPayment(ctx, payment); err != nil {
			return err
		}
		if err := s.InsertMovement(ctx, movement); err != nil {
			return err
		}
		updated = alloc
		return nil
	})
	if err != nil {
		return nil, nil, err
	}
	return &payment, updated, nil
}

// ReleaseInput carries a card release.
type ReleaseInput struct {
	AllocationID string
	Count        int
	Reason       string
	Actor        string
}

// ReleaseCards returns unsellable cards: the obligation shrinks by
// count x card price and the release is appended to the allocation's
// history.
func (e *Engine) ReleaseCards(ctx context.Context, in ReleaseInput) (*CardAllocation, error) {
	if in.Count <= 0 {
		return nil, ErrInvalidAmount
	}

	var updated *CardAllocation
	err := e.store.WithTx(ctx, func(s Store) error {
		alloc, err := s.GetAllocation(ctx, in.AllocationID)
		if err != nil {
			return err
		}
		if alloc == nil {
			return &NotFoundError{Kind: "allocation", ID: in.AllocationID}
		}
		if in.Count > alloc.Available() {
			return &InsufficientCardsError{
				AllocationID: alloc.ID,
				Available:    alloc.Available(),
				Requested:    in.Count,
			}
		}

		event, err := s.GetEvent(ctx, alloc.EventID)
		if err != nil {
			return err
		}
		if event == nil {
			return &NotFoundError{Kind: "event", ID: alloc.EventID}
		}

		alloc.Released += in.Count
		released := event.CardPrice.Mul(decimal.NewFromInt(int64(in.Count)))
		alloc.TotalDue = alloc.TotalDue.Sub(released)

		if alloc.Available() == 0 {
			if alloc.TotalPaid.GreaterThanOrEqual(alloc.TotalDue) {
				alloc.State = PaymentComplete
			} else {
				alloc.State = PaymentReleased
			}
		} else if alloc.TotalPaid.GreaterThanOrEqual(alloc.TotalDue) && alloc.TotalPaid.IsPositive() {
			alloc.State = PaymentComplete
		}

		alloc.Releases = append(alloc.Releases, CardRelease{
			At:     e.clock.Today(),
			Count:  in.Count,
			Reason: in.Reason,
			Actor:  in.Actor,
		})

		if err := s.SaveAllocation(ctx, *alloc); err != nil {
			return err
		}
		updated = alloc
		return nil
	})
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// CloseEvent closes the event. Rejected while any allocation is still
// pending or partial.
func (e *Engine) CloseEvent(ctx context.Context, eventID string) (*BenefitEvent, error) {
	var out *BenefitEvent
	err := e.store.WithTx(ctx, func(s Store) error {
		event, err := s.GetEvent(ctx, eventID)
		if err != nil {
			return err
		}
		if event == nil {
			return &NotFoundError{Kind: "event", ID: eventID}
		}
		if event.Closed {
			return ErrAlreadyClosed
		}

		allocations, err := s.ListAllocationsByEvent(ctx, eventID)
		if err != nil {
			return err
		}
		owing := 0
		total := decimal.Zero
		for i := range allocations {
			if allocations[i].State.Outstanding() {
				owing++
				total = total.Add(allocations[i].Outstanding())
			}
		}
		if owing > 0 {
			return &OutstandingDebtError{EventID: eventID, Allocations: owing, Total: total}
		}

		now := e.clock.Today()
		event.Closed = true
		event.ClosedAt = &now
		if err := s.SaveEvent(ctx, *event); err != nil {
			return err
		}
		out = event
		return nil
	})
	return out, err
}

// GetEvent returns one event.
func (e *Engine) GetEvent(ctx context.Context, eventID string) (*BenefitEvent, error) {
	event, err := e.store.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event == nil {
		return nil, &NotFoundError{Kind: "event", ID: eventID}
	}
	return event, nil
}

// ListEvents returns all events, newest first.
func (e *Engine) ListEvents(ctx context.Context) ([]BenefitEvent, error) {
	return e.store.ListEvents(ctx)
}

// GetAllocation returns one allocation.
func (e *Engine) GetAllocation(ctx context.Context, id string) (*CardAllocation, error) {
	alloc, err := e.store.GetAllocation(ctx, id)
	if err != nil {
		return nil, err
	}
	if alloc == nil {
		return nil, &NotFoundError{Kind: "allocation", ID: id}
	}
	return alloc, nil
}

// ListEventAllocations returns an event's allocations.
func (e *Engine) ListEventAllocations(ctx context.Context, eventID string) ([]CardAllocation, error) {
	if _, err := e.GetEvent(ctx, eventID); err != nil {
		return nil, err
	}
	return e.store.ListAllocationsByEvent(ctx, eventID)
}

// ListMemberAllocations returns all of a member's allocations across
// events, oldest first.
func (e *Engine) ListMemberAllocations(ctx context.Context, memberID string) ([]CardAllocation, error) {
	if _, err := e.member(ctx, memberID); err != nil {
		return nil, err
	}
	return e.store.ListAllocationsByMember(ctx, memberID)
}

// ListAllocationPayments returns the sale history for an allocation.
func (e *Engine) ListAllocationPayments(ctx context.Context, allocationID string) ([]BenefitPayment, error) {
	if _, err := e.GetAllocation(ctx, allocationID); err != nil {
		return nil, err
	}
	return e.store.ListBenefitPayments(ctx, allocationID)
}

// =============================================================================
// EVENT REPORTING - debtors and statistics
// =============================================================================

// AllocationDebt is one still-owing allocation in an event debtor list.
type AllocationDebt struct {
	Allocation  CardAllocation
	Outstanding decimal.Decimal
}

// ListEventDebtors returns the event's allocations with money still
// owing.
func (e *Engine) ListEventDebtors(ctx context.Context, eventID string) ([]AllocationDebt, error) {
	allocations, err := e.ListEventAllocations(ctx, eventID)
	if err != nil {
		return nil, err
	}
	var debtors []AllocationDebt
	for i := range allocations {
		if out := allocations[i].Outstanding(); out.IsPositive() {
			debtors = append(debtors, AllocationDebt{Allocation: allocations[i], Outstanding: out})
		}
	}
	return debtors, nil
}

// EventStats is the aggregate picture of an event used by the treasury
// dashboard.
type EventStats struct {
	Event BenefitEvent

	Allocations    int
	CardsAllocated int
	CardsSold      int
	CardsExtraSold int
	CardsReleased  int

	Expected    decimal.Decimal
	Collected   decimal.Decimal
	Outstanding decimal.Decimal
	// CollectedPct is Collected / Expected in percent, zero when
	// nothing was expected.
	CollectedPct decimal.Decimal

	States   map[PaymentState]int
	CanClose bool
}

// GetEventStats aggregates an event's allocations.
func (e *Engine) GetEventStats(ctx context.Context, eventID string) (*EventStats, error) {
	event, err := e.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	allocations, err := e.store.ListAllocationsByEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}

	stats := &EventStats{
		Event:       *event,
		Allocations: len(allocations),
		Expected:    decimal.Zero,
		Collected:   decimal.Zero,
		Outstanding: decimal.Zero,
		States: map[PaymentState]int{
			PaymentPending:  0,
			PaymentPartial:  0,
			PaymentComplete: 0,
			PaymentReleased: 0,
		},
		CanClose: true,
	}
	for i := range allocations {
		a := &allocations[i]
		stats.CardsAllocated += a.Allocated
		stats.CardsSold += a.Sold
		stats.CardsExtraSold += a.ExtraSold
		stats.CardsReleased += a.Released
		stats.Expected = stats.Expected.Add(a.TotalDue)
		stats.Collected = stats.Collected.Add(a.TotalPaid)
		stats.Outstanding = stats.Outstanding.Add(a.Outstanding())
		stats.States[a.State]++
		if a.State.Outstanding() {
			stats.CanClose = false
		}
	}
	if stats.Expected.IsPositive() {
		stats.CollectedPct = stats.Collected.
			Div(stats.Expected).
			Mul(decimal.NewFromInt(100)).
			Round(2)
	}
	return stats, nil
}
