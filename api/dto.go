/*
dto.go - Data Transfer Objects for API requests and responses

PURPOSE:
  Defines the JSON structures for API communication. These types decouple
  the internal domain model from the external API contract, allowing:
  - Field renaming without breaking clients
  - API-specific validation
  - Version evolution

NAMING CONVENTION:
  - *DTO: Response types returned to clients
  - *Request: Request body types from clients

MONEY:
  Monetary amounts cross the wire as decimal strings ("5000" or
  "1250.50"), never as floats. Handlers parse them with
  decimal.NewFromString.

DATES:
  Calendar dates use "2006-01-02"; timestamps use RFC3339.

VALIDATION:
  Validation is done in handlers and the engine, not in DTOs. DTOs are
  pure data carriers.

SEE ALSO:
  - handlers.go: Uses these types
  - treasury/types.go: Domain records these map from
*/
package api

import (
	"time"

	"github.com/brigade/treasury-engine/treasury"
)

const dateLayout = "2006-01-02"

// ErrorResponse is the JSON error envelope.
type ErrorResponse struct {
	Error   string `json:"error"`
	Details string `json:"details,omitempty"`
}

// =============================================================================
// MEMBERS
// =============================================================================

// MemberDTO represents a roster member in API responses.
type MemberDTO struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinDate string `json:"join_date"`
	Status   string `json:"status"`
	Tenure   string `json:"tenure"`
}

// UpsertMemberRequest creates or updates a roster row.
type UpsertMemberRequest struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	JoinDate string `json:"join_date"`
	Status   string `json:"status"`
}

func toMemberDTO(m treasury.Member, now time.Time) MemberDTO {
	return MemberDTO{
		ID:       m.ID,
		Name:     m.Name,
		JoinDate: m.JoinDate.Format(dateLayout),
		Status:   string(m.Status),
		Tenure:   string(treasury.TenureCategoryAt(m.JoinDate, now)),
	}
}

// =============================================================================
// PRICING
// =============================================================================

// PricingDTO is the current dues price configuration.
type PricingDTO struct {
	RegularPrice string `json:"regular_price"`
	StudentPrice string `json:"student_price"`
	UpdatedAt    string `json:"updated_at,omitempty"`
	UpdatedBy    string `json:"updated_by,omitempty"`
}

// UpdatePricingRequest changes the canonical dues prices.
type UpdatePricingRequest struct {
	RegularPrice string `json:"regular_price"`
	StudentPrice string `json:"student_price"`
	Actor        string `json:"actor"`
}

// UpdatePricingResponse reports whether the active cycle snapshot was
// updated along with the configuration.
type UpdatePricingResponse struct {
	Pricing      PricingDTO `json:"pricing"`
	CycleUpdated bool       `json:"cycle_updated"`
}

func toPricingDTO(cfg treasury.PricingConfig) PricingDTO {
	dto := PricingDTO{
		RegularPrice: cfg.RegularPrice.String(),
		StudentPrice: cfg.StudentPrice.String(),
		UpdatedBy:    cfg.UpdatedBy,
	}
	if !cfg.UpdatedAt.IsZero() {
		dto.UpdatedAt = cfg.UpdatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DUES CYCLES
// =============================================================================

// CycleDTO represents a dues cycle in API responses.
type CycleDTO struct {
	Year         int    `json:"year"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	Active       bool   `json:"active"`
	Closed       bool   `json:"closed"`
	RegularPrice string `json:"regular_price"`
	StudentPrice string `json:"student_price"`
	Notes        string `json:"notes,omitempty"`
	CreatedAt    string `json:"created_at,omitempty"`
	ClosedAt     string `json:"closed_at,omitempty"`
	ClosedBy     string `json:"closed_by,omitempty"`
}

// CreateCycleRequest creates the dues cycle for a year. Empty prices
// snapshot the current configuration; empty dates default to the
// calendar year bounds.
type CreateCycleRequest struct {
	Year         int    `json:"year"`
	StartDate    string `json:"start_date,omitempty"`
	EndDate      string `json:"end_date,omitempty"`
	Activate     bool   `json:"activate"`
	RegularPrice string `json:"regular_price,omitempty"`
	StudentPrice string `json:"student_price,omitempty"`
	Notes        string `json:"notes,omitempty"`
}

// CloseCycleRequest carries the closing actor.
type CloseCycleRequest struct {
	Actor string `json:"actor"`
}

func toCycleDTO(c treasury.DuesCycle) CycleDTO {
	dto := CycleDTO{
		Year:         c.Year,
		StartDate:    c.StartDate.Format(dateLayout),
		EndDate:      c.EndDate.Format(dateLayout),
		Active:       c.Active,
		Closed:       c.Closed,
		RegularPrice: c.RegularPrice.String(),
		StudentPrice: c.StudentPrice.String(),
		Notes:        c.Notes,
		ClosedBy:     c.ClosedBy,
	}
	if !c.CreatedAt.IsZero() {
		dto.CreatedAt = c.CreatedAt.Format(time.RFC3339)
	}
	if c.ClosedAt != nil {
		dto.ClosedAt = c.ClosedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DUES STATUS + ELIGIBILITY
// =============================================================================

// DuesStatusDTO represents the per-member override flags.
type DuesStatusDTO struct {
	MemberID           string `json:"member_id"`
	Student            bool   `json:"student"`
	StudentSince       string `json:"student_since,omitempty"`
	StudentNote        string `json:"student_note,omitempty"`
	Deactivated        bool   `json:"deactivated"`
	DeactivationReason string `json:"deactivation_reason,omitempty"`
	DeactivatedAt      string `json:"deactivated_at,omitempty"`
	DeactivatedBy      string `json:"deactivated_by,omitempty"`
}

// StudentStatusRequest toggles student pricing.
type StudentStatusRequest struct {
	Active bool   `json:"active"`
	Since  string `json:"since,omitempty"`
	Note   string `json:"note,omitempty"`
}

// DuesDeactivationRequest toggles the dues deactivation flag.
type DuesDeactivationRequest struct {
	Active bool   `json:"active"`
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// EligibilityDTO is the result of the dues eligibility check.
type EligibilityDTO struct {
	MemberID string `json:"member_id"`
	Eligible bool   `json:"eligible"`
	Category string `json:"category"`
	Reason   string `json:"reason,omitempty"`
	Price    string `json:"price,omitempty"`
}

func toDuesStatusDTO(st treasury.DuesStatus) DuesStatusDTO {
	dto := DuesStatusDTO{
		MemberID:           st.MemberID,
		Student:            st.Student,
		StudentNote:        st.StudentNote,
		Deactivated:        st.Deactivated,
		DeactivationReason: st.DeactivationReason,
		DeactivatedBy:      st.DeactivatedBy,
	}
	if st.StudentSince != nil {
		dto.StudentSince = st.StudentSince.Format(dateLayout)
	}
	if st.DeactivatedAt != nil {
		dto.DeactivatedAt = st.DeactivatedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// DUES PAYMENTS + DEBT
// =============================================================================

// DuesPaymentDTO represents one monthly dues payment.
type DuesPaymentDTO struct {
	ID       string `json:"id"`
	MemberID string `json:"member_id"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
	Amount   string `json:"amount"`
	PaidOn   string `json:"paid_on"`
	Method   string `json:"method,omitempty"`
	Receipt  string `json:"receipt,omitempty"`
	Note     string `json:"note,omitempty"`
}

// RecordDuesPaymentRequest records one monthly dues payment.
type RecordDuesPaymentRequest struct {
	MemberID string `json:"member_id"`
	Month    int    `json:"month"`
	Year     int    `json:"year"`
	Amount   string `json:"amount"`
	PaidOn   string `json:"paid_on,omitempty"`
	Method   string `json:"method,omitempty"`
	Receipt  string `json:"receipt,omitempty"`
	Note     string `json:"note,omitempty"`
	Actor    string `json:"actor,omitempty"`
}

// MemberDebtDTO is the debt picture for one member and year.
type MemberDebtDTO struct {
	Member        MemberDTO `json:"member"`
	Year          int       `json:"year"`
	Price         string    `json:"price"`
	PendingMonths []int     `json:"pending_months"`
	Total         string    `json:"total"`
}

func toDuesPaymentDTO(p treasury.DuesPayment) DuesPaymentDTO {
	return DuesPaymentDTO{
		ID:       p.ID,
		MemberID: p.MemberID,
		Month:    p.Month,
		Year:     p.Year,
		Amount:   p.Amount.String(),
		PaidOn:   p.PaidOn.Format(dateLayout),
		Method:   p.Method,
		Receipt:  p.Receipt,
		Note:     p.Note,
	}
}

func toMemberDebtDTO(d treasury.MemberDebt, now time.Time) MemberDebtDTO {
	months := d.PendingMonths
	if months == nil {
		months = []int{}
	}
	return MemberDebtDTO{
		Member:        toMemberDTO(d.Member, now),
		Year:          d.Year,
		Price:         d.Price.String(),
		PendingMonths: months,
		Total:         d.Total.String(),
	}
}

// =============================================================================
// BENEFIT EVENTS
// =============================================================================

// QuotasDTO is the per-tenure-band card quota set.
type QuotasDTO struct {
	Volunteer       int `json:"volunteer"`
	HonoraryCompany int `json:"honorary_company"`
	HonoraryCorps   int `json:"honorary_corps"`
	Distinguished   int `json:"distinguished"`
}

// EventDTO represents a benefit event.
type EventDTO struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description,omitempty"`
	EventDate      string    `json:"event_date"`
	Quotas         QuotasDTO `json:"quotas"`
	CardPrice      string    `json:"card_price"`
	ExtraCardPrice string    `json:"extra_card_price"`
	Closed         bool      `json:"closed"`
	CreatedAt      string    `json:"created_at,omitempty"`
	ClosedAt       string    `json:"closed_at,omitempty"`
}

// CreateEventRequest creates a benefit event and fans out allocations.
// A missing quotas object falls back to the company defaults.
type CreateEventRequest struct {
	Name           string     `json:"name"`
	Description    string     `json:"description,omitempty"`
	EventDate      string     `json:"event_date"`
	Quotas         *QuotasDTO `json:"quotas,omitempty"`
	CardPrice      string     `json:"card_price"`
	ExtraCardPrice string     `json:"extra_card_price"`
	Actor          string     `json:"actor,omitempty"`
}

// CreateEventResponse returns the event plus its fan-out size.
type CreateEventResponse struct {
	Event       EventDTO `json:"event"`
	Allocations int      `json:"allocations"`
}

func toEventDTO(ev treasury.BenefitEvent) EventDTO {
	dto := EventDTO{
		ID:          ev.ID,
		Name:        ev.Name,
		Description: ev.Description,
		EventDate:   ev.EventDate.Format(dateLayout),
		Quotas: QuotasDTO{
			Volunteer:       ev.Quotas.Volunteer,
			HonoraryCompany: ev.Quotas.HonoraryCompany,
			HonoraryCorps:   ev.Quotas.HonoraryCorps,
			Distinguished:   ev.Quotas.Distinguished,
		},
		CardPrice:      ev.CardPrice.String(),
		ExtraCardPrice: ev.ExtraCardPrice.String(),
		Closed:         ev.Closed,
	}
	if !ev.CreatedAt.IsZero() {
		dto.CreatedAt = ev.CreatedAt.Format(time.RFC3339)
	}
	if ev.ClosedAt != nil {
		dto.ClosedAt = ev.ClosedAt.Format(time.RFC3339)
	}
	return dto
}

// =============================================================================
// CARD ALLOCATIONS + SALES
// =============================================================================

// ReleaseDTO is one entry in an allocation's release history.
type ReleaseDTO struct {
	At     string `json:"at"`
	Count  int    `json:"count"`
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// AllocationDTO represents a card allocation with derived figures.
type AllocationDTO struct {
	ID        string `json:"id"`
	EventID   string `json:"event_id"`
	MemberID  string `json:"member_id"`
	Allocated int    `json:"allocated"`
	Sold      int    `json:"sold"`
	ExtraSold int    `json:"extra_sold"`
	Released  int    `json:"released"`
	Available int    `json:"available"`

	TotalDue    string `json:"total_due"`
	TotalPaid   string `json:"total_paid"`
	Outstanding string `json:"outstanding"`
	State       string `json:"state"`

	Releases []ReleaseDTO `json:"releases"`
}

// RecordSaleRequest records a card sale against an allocation.
type RecordSaleRequest struct {
	Kind    string `json:"kind"`
	Cards   int    `json:"cards"`
	Amount  string `json:"amount"`
	PaidOn  string `json:"paid_on,omitempty"`
	Method  string `json:"method,omitempty"`
	Receipt string `json:"receipt,omitempty"`
	Note    string `json:"note,omitempty"`
	Actor   string `json:"actor,omitempty"`
}

// RecordSaleResponse returns the payment row and the updated allocation.
type RecordSaleResponse struct {
	Payment    BenefitPaymentDTO `json:"payment"`
	Allocation AllocationDTO     `json:"allocation"`
}

// ReleaseCardsRequest returns unsellable cards.
type ReleaseCardsRequest struct {
	Count  int    `json:"count"`
	Reason string `json:"reason,omitempty"`
	Actor  string `json:"actor,omitempty"`
}

// BenefitPaymentDTO represents one sale transaction.
type BenefitPaymentDTO struct {
	ID           string `json:"id"`
	AllocationID string `json:"allocation_id"`
	Kind         string `json:"kind"`
	Cards        int    `json:"cards"`
	Amount       string `json:"amount"`
	PaidOn       string `json:"paid_on"`
	Method       string `json:"method,omitempty"`
	Receipt      string `json:"receipt,omitempty"`
	Note         string `json:"note,omitempty"`
}

// AllocationDebtDTO is one still-owing allocation in a debtor list.
type AllocationDebtDTO struct {
	Allocation  AllocationDTO `json:"allocation"`
	Outstanding string        `json:"outstanding"`
}

// EventStatsDTO is the aggregate picture of an event.
type EventStatsDTO struct {
	Event EventDTO `json:"event"`

	Allocations    int `json:"allocations"`
	CardsAllocated int `json:"cards_allocated"`
	CardsSold      int `json:"cards_sold"`
	CardsExtraSold int `json:"cards_extra_sold"`
	CardsReleased  int `json:"cards_released"`

	Expected     string `json:"expected"`
	Collected    string `json:"collected"`
	Outstanding  string `json:"outstanding"`
	CollectedPct string `json:"collected_pct"`

	States   map[string]int `json:"states"`
	CanClose bool           `json:"can_close"`
}

func toAllocationDTO(a treasury.CardAllocation) AllocationDTO {
	releases := make([]ReleaseDTO, len(a.Releases))
	for i, r := range a.Releases {
		releases[i] = ReleaseDTO{
			At:     r.At.Format(time.RFC3339),
			Count:  r.Count,
			Reason: r.Reason,
			Actor:  r.Actor,
		}
	}
	return AllocationDTO{
		ID:          a.ID,
		EventID:     a.EventID,
		MemberID:    a.MemberID,
		Allocated:   a.Allocated,
		Sold:        a.Sold,
		ExtraSold:   a.ExtraSold,
		Released:    a.Released,
		Available:   a.Available(),
		TotalDue:    a.TotalDue.String(),
		TotalPaid:   a.TotalPaid.String(),
		Outstanding: a.Outstanding().String(),
		State:       string(a.State),
		Releases:    releases,
	}
}

func toBenefitPaymentDTO(p treasury.BenefitPayment) BenefitPaymentDTO {
	return BenefitPaymentDTO{
		ID:           p.ID,
		AllocationID: p.AllocationID,
		Kind:         string(p.Kind),
		Cards:        p.Cards,
		Amount:       p.Amount.String(),
		PaidOn:       p.PaidOn.Format(dateLayout),
		Method:       p.Method,
		Receipt:      p.Receipt,
		Note:         p.Note,
	}
}

func toEventStatsDTO(s treasury.EventStats) EventStatsDTO {
	states := make(map[string]int, len(s.States))
	for state, n := range s.States {
		states[string(state)] = n
	}
	return EventStatsDTO{
		Event:          toEventDTO(s.Event),
		Allocations:    s.Allocations,
		CardsAllocated: s.CardsAllocated,
		CardsSold:      s.CardsSold,
		CardsExtraSold: s.CardsExtraSold,
		CardsReleased:  s.CardsReleased,
		Expected:       s.Expected.String(),
		Collected:      s.Collected.String(),
		Outstanding:    s.Outstanding.String(),
		CollectedPct:   s.CollectedPct.String(),
		States:         states,
		CanClose:       s.CanClose,
	}
}

// =============================================================================
// LEDGER
// =============================================================================

// MovementDTO represents one ledger line.
type MovementDTO struct {
	ID          string `json:"id"`
	Direction   string `json:"direction"`
	Category    string `json:"category"`
	Amount      string `json:"amount"`
	Description string `json:"description,omitempty"`
	Date        string `json:"date"`

	DuesPaymentID    string `json:"dues_payment_id,omitempty"`
	BenefitPaymentID string `json:"benefit_payment_id,omitempty"`
	Receipt          string `json:"receipt,omitempty"`
}

// BalanceDTO is the company balance derived from the ledger.
type BalanceDTO struct {
	Income  string `json:"income"`
	Expense string `json:"expense"`
	Balance string `json:"balance"`
}

func toMovementDTO(m treasury.FinancialMovement) MovementDTO {
	return MovementDTO{
		ID:               m.ID,
		Direction:        string(m.Direction),
		Category:         string(m.Category),
		Amount:           m.Amount.String(),
		Description:      m.Description,
		Date:             m.Date.Format(dateLayout),
		DuesPaymentID:    m.DuesPaymentID,
		BenefitPaymentID: m.BenefitPaymentID,
		Receipt:          m.Receipt,
	}
}
