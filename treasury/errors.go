/*
errors.go - Centralized error types for the treasury engine

PURPOSE:
  All validation happens before any write; every failure here is raised
  prior to mutation and the surrounding atomic unit rolls back anything
  already staged. The presentation layer translates these kinds into
  user-facing responses; the engine itself never logs or messages.

ERROR CATEGORIES:
  1. Lookup errors   - referenced member/cycle/event/allocation missing
  2. Business errors - eligibility, duplicate period, card availability
  3. State errors    - writes against closed cycles/events

USAGE:
  if errors.Is(err, treasury.ErrDuplicatePayment) { ... }

  var insuf *treasury.InsufficientCardsError
  if errors.As(err, &insuf) { ... insuf.Available ... }
*/
package treasury

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// =============================================================================
// SENTINEL ERRORS - Use with errors.Is()
// =============================================================================

var (
	// ErrNotFound is returned when a referenced member, cycle, event or
	// allocation does not exist.
	ErrNotFound = errors.New("not found")

	// ErrDuplicatePayment is returned when a dues payment already exists
	// for the (member, month, year) period. The period is unique
	// regardless of amount.
	ErrDuplicatePayment = errors.New("duplicate payment for period")

	// ErrIneligible is returned when the eligibility check fails for a
	// member (deactivated, blocked lifecycle state, or exempt).
	ErrIneligible = errors.New("member not eligible for dues")

	// ErrCycleClosed is returned when a payment is attempted against a
	// closed dues cycle.
	ErrCycleClosed = errors.New("dues cycle is closed")

	// ErrCycleExists is returned when creating a cycle for a year that
	// already has one.
	ErrCycleExists = errors.New("dues cycle already exists for year")

	// ErrInsufficientCards is returned when a normal sale or a release
	// exceeds the allocation's available cards.
	ErrInsufficientCards = errors.New("insufficient cards available")

	// ErrAlreadyClosed is returned on closing an already-closed cycle or
	// event.
	ErrAlreadyClosed = errors.New("already closed")

	// ErrOutstandingDebt is returned when an event cannot close because
	// allocations are still pending or partial.
	ErrOutstandingDebt = errors.New("outstanding debt")

	// ErrInvalidAmount is returned for non-positive monetary or
	// card-count input.
	ErrInvalidAmount = errors.New("invalid amount")

	// ErrInvalidPeriod is returned for an out-of-range month or year.
	ErrInvalidPeriod = errors.New("invalid period")
)

// =============================================================================
// STRUCTURED ERRORS - Carry additional context
// =============================================================================

// NotFoundError identifies which record was missing.
type NotFoundError struct {
	Kind string // "member", "cycle", "event", "allocation"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

func (e *NotFoundError) Unwrap() error { return ErrNotFound }

// DuplicatePaymentError reports the period that was already paid.
type DuplicatePaymentError struct {
	MemberID   string
	Month      int
	Year       int
	ExistingID string
}

func (e *DuplicatePaymentError) Error() string {
	return fmt.Sprintf("dues for %d/%d already paid by member %s (payment %s)",
		e.Month, e.Year, e.MemberID, e.ExistingID)
}

func (e *DuplicatePaymentError) Unwrap() error { return ErrDuplicatePayment }

// IneligibleError carries the eligibility category and human reason.
type IneligibleError struct {
	MemberID string
	Category EligibilityCategory
	Reason   string
}

func (e *IneligibleError) Error() string {
	return fmt.Sprintf("member %s cannot pay dues (%s): %s",
		e.MemberID, e.Category, e.Reason)
}

func (e *IneligibleError) Unwrap() error { return ErrIneligible }

// InsufficientCardsError reports availability at the time of the
// rejected sale or release.
type InsufficientCardsError struct {
	AllocationID string
	Available    int
	Requested    int
}

func (e *InsufficientCardsError) Error() string {
	return fmt.Sprintf("allocation %s has %d cards available, requested %d",
		e.AllocationID, e.Available, e.Requested)
}

func (e *InsufficientCardsError) Unwrap() error { return ErrInsufficientCards }

// OutstandingDebtError reports how many allocations block event closure.
type OutstandingDebtError struct {
	EventID     string
	Allocations int
	Total       decimal.Decimal
}

func (e *OutstandingDebtError) Error() string {
	return fmt.Sprintf("event %s has %d allocations with outstanding debt (total %s)",
		e.EventID, e.Allocations, e.Total)
}

func (e *OutstandingDebtError) Unwrap() error { return ErrOutstandingDebt }

// =============================================================================
// ERROR HELPERS
// =============================================================================

// IsNotFound reports whether the error indicates a missing record.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// IsClientError reports whether the error is due to invalid caller input
// or a business-rule rejection, as opposed to a storage failure.
func IsClientError(err error) bool {
	return errors.Is(err, ErrDuplicatePayment) ||
		errors.Is(err, ErrIneligible) ||
		errors.Is(err, ErrCycleClosed) ||
		errors.Is(err, ErrCycleExists) ||
		errors.Is(err, ErrInsufficientCards) ||
		errors.Is(err, ErrAlreadyClosed) ||
		errors.Is(err, ErrOutstandingDebt) ||
		errors.Is(err, ErrInvalidAmount) ||
		errors.Is(err, ErrInvalidPeriod)
}
