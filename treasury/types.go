/*
Package treasury implements the treasury ledger engine for a volunteer
fire company.

PURPOSE:
  This package contains the business rules and record types for the
  treasury subsystem: monthly dues cycles, per-member exemption state,
  benefit-card allocation and sale, and the append-only financial
  ledger those operations generate.

KEY CONCEPTS IN THIS FILE (types.go):
  - PricingConfig:      the single canonical dues price record
  - DuesCycle:          one calendar year's dues period with a price snapshot
  - DuesStatus:         per-member override flags (student, deactivated)
  - DuesPayment:        one immutable row per (member, month, year)
  - BenefitEvent:       a fundraising event with per-tenure card quotas
  - CardAllocation:     per-member, per-event card counters and balance
  - BenefitPayment:     one row per card sale (normal or extra)
  - FinancialMovement:  one immutable ledger line, traceable to a payment

DESIGN PRINCIPLES:
  1. Immutability: payments and movements are never edited; corrections
     go through compensating entries
  2. Precision: decimal.Decimal for every monetary amount
  3. Single source of truth: eligibility and pricing are resolved by the
     engine, never re-derived ad hoc by callers

SEE ALSO:
  - eligibility.go: who may be charged dues, and at what price
  - benefit.go:     allocation fan-out and sale arithmetic
  - store.go:       persistence interfaces
*/
package treasury

import (
	"time"

	"github.com/shopspring/decimal"
)

// =============================================================================
// MEMBER DIRECTORY VIEW (owned by the roster subsystem, referenced by id)
// =============================================================================

// LifecycleStatus is the member's roster state. The treasury never mutates
// it; it only reads it for eligibility decisions.
type LifecycleStatus string

const (
	StatusActive    LifecycleStatus = "active"
	StatusInactive  LifecycleStatus = "inactive"
	StatusResigned  LifecycleStatus = "resigned"
	StatusSuspended LifecycleStatus = "suspended"
	StatusExpelled  LifecycleStatus = "expelled"
	StatusMartyr    LifecycleStatus = "martyr"
	StatusDeceased  LifecycleStatus = "deceased"
)

// Member is the read-only directory view the engine consumes.
type Member struct {
	ID       string
	Name     string
	JoinDate time.Time
	Status   LifecycleStatus
}

// =============================================================================
// TENURE CATEGORY - banded years of service
// =============================================================================

// TenureCategory classifies a member by years since joining. It drives
// both dues exemption (every band above volunteer is exempt) and
// benefit-card quota lookup.
type TenureCategory string

const (
	TenureVolunteer       TenureCategory = "volunteer"        // < 20 years
	TenureHonoraryCompany TenureCategory = "honorary-company" // 20-24 years
	TenureHonoraryCorps   TenureCategory = "honorary-corps"   // 25-49 years
	TenureDistinguished   TenureCategory = "distinguished"    // 50+ years
)

// TenureCategoryAt computes the category from the join date. Years of
// service are measured in elapsed days over 365.25 so leap years do not
// shift the band boundaries.
func TenureCategoryAt(joinDate, at time.Time) TenureCategory {
	if joinDate.IsZero() || at.Before(joinDate) {
		return TenureVolunteer
	}
	years := at.Sub(joinDate).Hours() / 24 / 365.25
	switch {
	case years >= 50:
		return TenureDistinguished
	case years >= 25:
		return TenureHonoraryCorps
	case years >= 20:
		return TenureHonoraryCompany
	default:
		return TenureVolunteer
	}
}

// ExemptFromDues reports whether the category carries an automatic dues
// exemption (honorary and distinguished members owe nothing).
func (c TenureCategory) ExemptFromDues() bool {
	return c != TenureVolunteer
}

// =============================================================================
// PRICING CONFIGURATION - singleton price record
// =============================================================================

// Default monthly dues prices, used until an administrator writes the
// configuration record.
var (
	DefaultRegularPrice = decimal.NewFromInt(5000)
	DefaultStudentPrice = decimal.NewFromInt(3000)
)

// PricingConfig is the single canonical current dues price. Writes go
// through Engine.UpdatePricing, which also mirrors the prices onto the
// active cycle's snapshot so readers never see a mismatch.
type PricingConfig struct {
	RegularPrice decimal.Decimal
	StudentPrice decimal.Decimal
	UpdatedAt    time.Time
	UpdatedBy    string
}

// =============================================================================
// ANNUAL DUES CYCLE
// =============================================================================

// DuesCycle is one calendar year's dues period. It keeps an independent
// price snapshot so historical cycles are not retroactively repriced
// when the configuration changes.
//
// Active and Closed are independent booleans; the meaningful
// combinations are ACTIVE {true,false}, CLOSED {false,true} and
// INACTIVE {false,false}. At most one cycle is active at a time.
type DuesCycle struct {
	Year         int
	StartDate    time.Time
	EndDate      time.Time
	Active       bool
	Closed       bool
	RegularPrice decimal.Decimal
	StudentPrice decimal.Decimal
	Notes        string
	CreatedAt    time.Time
	ClosedAt     *time.Time
	ClosedBy     string
}

// =============================================================================
// MEMBER DUES STATUS - per-member override flags, created lazily
// =============================================================================

// DuesStatus holds the two independent per-member overrides. Deactivation
// takes precedence over student pricing: a deactivated member owes
// nothing regardless of student status.
type DuesStatus struct {
	MemberID string

	// Student pricing
	Student      bool
	StudentSince *time.Time
	StudentNote  string

	// Dues deactivation (member never appears as a debtor)
	Deactivated        bool
	DeactivationReason string
	DeactivatedAt      *time.Time
	DeactivatedBy      string

	UpdatedAt time.Time
}

// =============================================================================
// DUES PAYMENT - one immutable row per (member, month, year)
// =============================================================================

// DuesPayment records one monthly dues payment. Unique per
// (MemberID, Month, Year); immutable after creation.
type DuesPayment struct {
	ID       string
	MemberID string
	Month    int // 1-12
	Year     int
	Amount   decimal.Decimal
	PaidOn   time.Time
	Method   string
	Receipt  string
	Note     string

	CreatedAt time.Time
	CreatedBy string
}

// =============================================================================
// BENEFIT EVENT + CARD ALLOCATION
// =============================================================================

// CardQuotas holds the per-tenure-band card counts for an event.
type CardQuotas struct {
	Volunteer       int
	HonoraryCompany int
	HonoraryCorps   int
	Distinguished   int
}

// DefaultCardQuotas mirrors the company's customary assignment.
var DefaultCardQuotas = CardQuotas{
	Volunteer:       5,
	HonoraryCompany: 3,
	HonoraryCorps:   3,
	Distinguished:   2,
}

// For returns the quota for a tenure category.
func (q CardQuotas) For(c TenureCategory) int {
	switch c {
	case TenureDistinguished:
		return q.Distinguished
	case TenureHonoraryCorps:
		return q.HonoraryCorps
	case TenureHonoraryCompany:
		return q.HonoraryCompany
	default:
		return q.Volunteer
	}
}

// BenefitEvent is a fundraising event. Creating one fans out a
// CardAllocation to every active/inactive member.
type BenefitEvent struct {
	ID             string
	Name           string
	Description    string
	EventDate      time.Time
	Quotas         CardQuotas
	CardPrice      decimal.Decimal
	ExtraCardPrice decimal.Decimal
	Closed         bool

	CreatedAt time.Time
	CreatedBy string
	ClosedAt  *time.Time
}

// PaymentState is the settlement state of a card allocation.
type PaymentState string

const (
	PaymentPending  PaymentState = "pending"
	PaymentPartial  PaymentState = "partial"
	PaymentComplete PaymentState = "complete"
	PaymentReleased PaymentState = "released"
)

// Outstanding reports whether the state still blocks event closure.
func (s PaymentState) Outstanding() bool {
	return s == PaymentPending || s == PaymentPartial
}

// CardRelease is one entry in an allocation's append-only release
// history.
type CardRelease struct {
	At     time.Time `json:"at"`
	Count  int       `json:"count"`
	Reason string    `json:"reason"`
	Actor  string    `json:"actor"`
}

// CardAllocation is the per-member, per-event record of assigned cards
// and the resulting balance. Counter invariant:
// Allocated - Sold - Released >= 0 at all times.
type CardAllocation struct {
	ID       string
	EventID  string
	MemberID string

	Allocated int
	Sold      int
	ExtraSold int
	Released  int

	TotalDue  decimal.Decimal
	TotalPaid decimal.Decimal
	State     PaymentState

	// Releases is an ordered, append-only log local to the allocation.
	Releases []CardRelease

	CreatedAt time.Time
}

// Available returns the cards the member can still sell at the normal
// price.
func (a *CardAllocation) Available() int {
	return a.Allocated - a.Sold - a.Released
}

// Outstanding returns the remaining balance owed. Clamped at zero:
// uncapped extra sales can push TotalPaid past TotalDue, and the
// reported balance must never go negative.
func (a *CardAllocation) Outstanding() decimal.Decimal {
	pending := a.TotalDue.Sub(a.TotalPaid)
	if pending.IsNegative() {
		return decimal.Zero
	}
	return pending
}

// TotalCardsSold returns normal plus extra sales.
func (a *CardAllocation) TotalCardsSold() int {
	return a.Sold + a.ExtraSold
}

// =============================================================================
// BENEFIT PAYMENT - one row per sale transaction
// =============================================================================

// SaleKind distinguishes sales of allocated cards from uncapped extra
// sales.
type SaleKind string

const (
	SaleNormal SaleKind = "normal"
	SaleExtra  SaleKind = "extra"
)

// BenefitPayment records one sale transaction against an allocation.
// Immutable after creation.
type BenefitPayment struct {
	ID           string
	AllocationID string
	Kind         SaleKind
	Cards        int
	Amount       decimal.Decimal
	PaidOn       time.Time
	Method       string
	Receipt      string
	Note         string

	CreatedAt time.Time
	CreatedBy string
}

// =============================================================================
// FINANCIAL MOVEMENT - append-only audit ledger
// =============================================================================

type MovementDirection string

const (
	Income  MovementDirection = "income"
	Expense MovementDirection = "expense"
)

type MovementCategory string

const (
	CategoryDues         MovementCategory = "dues"
	CategoryBenefit      MovementCategory = "benefit"
	CategoryBenefitExtra MovementCategory = "benefit-extra"
	CategoryDonation     MovementCategory = "donation"
	CategoryFine         MovementCategory = "fine"
	CategoryOtherIncome  MovementCategory = "other-income"

	CategoryOperational  MovementCategory = "operational-expense"
	CategoryEquipment    MovementCategory = "equipment-expense"
	CategoryOtherExpense MovementCategory = "other-expense"
)

// FinancialMovement is one immutable ledger line. Every movement written
// by the engine carries a back-reference to exactly one of
// DuesPaymentID / BenefitPaymentID; there is no standalone write path.
type FinancialMovement struct {
	ID          string
	Direction   MovementDirection
	Category    MovementCategory
	Amount      decimal.Decimal
	Description string
	Date        time.Time

	DuesPaymentID    string
	BenefitPaymentID string
	Receipt          string

	CreatedAt time.Time
	CreatedBy string
}

// monthNames is indexed 1-12 for movement descriptions.
var monthNames = [...]string{"", "January", "February", "March", "April",
	"May", "June", "July", "August", "September", "October", "November",
	"December"}

// MonthName returns the English month name for 1-12, or an empty string.
func MonthName(m int) string {
	if m < 1 || m > 12 {
		return ""
	}
	return monthNames[m]
}
