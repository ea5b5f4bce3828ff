/*
handlers.go - HTTP API handlers for the treasury engine

PURPOSE:
  Exposes the treasury engine via REST API. Handles HTTP
  request/response, JSON serialization, and delegates to domain logic.

ENDPOINTS:
  Members:
    GET    /api/members                      List roster
    POST   /api/members                      Create/update roster row
    GET    /api/members/{id}                 Get member
    GET    /api/members/{id}/eligibility     Dues eligibility + price
    GET    /api/members/{id}/dues-status     Override flags
    PUT    /api/members/{id}/student         Toggle student pricing
    PUT    /api/members/{id}/dues-deactivation Toggle deactivation
    GET    /api/members/{id}/debt            Debt for a year
    GET    /api/members/{id}/dues-payments   Payments for a year
    GET    /api/members/{id}/allocations     Card allocations

  Pricing:
    GET    /api/pricing                      Current prices
    PUT    /api/pricing                      Update prices (cascades)

  Cycles:
    GET    /api/cycles                       List cycles
    POST   /api/cycles                       Create cycle
    GET    /api/cycles/{year}                Get cycle
    POST   /api/cycles/{year}/activate       Make cycle active
    POST   /api/cycles/{year}/close          Close cycle
    POST   /api/cycles/{year}/reopen         Reopen cycle

  Dues:
    POST   /api/dues/payments                Record monthly payment
    GET    /api/dues/debtors                 Debtor list for a year

  Events:
    GET    /api/events                       List events
    POST   /api/events                       Create event + fan-out
    GET    /api/events/{id}                  Get event
    GET    /api/events/{id}/allocations      Allocations
    GET    /api/events/{id}/debtors          Still-owing allocations
    GET    /api/events/{id}/stats            Aggregate stats
    POST   /api/events/{id}/close            Close event

  Allocations:
    GET    /api/allocations/{id}             Get allocation
    GET    /api/allocations/{id}/payments    Sale history
    POST   /api/allocations/{id}/sales       Record card sale
    POST   /api/allocations/{id}/releases    Release cards

  Ledger:
    GET    /api/movements                    Filterable ledger lines
    GET    /api/treasury/balance             Income/expense/balance

ERROR HANDLING:
  Errors are returned as JSON with appropriate HTTP status:
  - 400: Validation errors, ineligibility, insufficient cards
  - 404: Record not found
  - 409: Duplicate period, closed cycle/event, outstanding debt
  - 500: Internal errors

SECURITY NOTE:
  Currently NO authentication or authorization. All endpoints are
  public. Put this behind the company's reverse proxy.

SEE ALSO:
  - dto.go: Request/response data structures
  - server.go: Router setup and middleware
*/
package api

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// HANDLER CONTEXT
// =============================================================================

// MemberRegistry is the directory plus the write path used by the
// roster sync endpoint.
type MemberRegistry interface {
	treasury.MemberDirectory
	UpsertMember(ctx context.Context, m treasury.Member) error
}

// Handler holds all dependencies for HTTP handlers.
type Handler struct {
	Engine  *treasury.Engine
	Members MemberRegistry
}

// NewHandler creates a new handler.
func NewHandler(engine *treasury.Engine, members MemberRegistry) *Handler {
	return &Handler{Engine: engine, Members: members}
}

// =============================================================================
// MEMBER HANDLERS
// =============================================================================

// ListMembers returns the roster, optionally filtered by status.
// GET /api/members?status=active&status=inactive
func (h *Handler) ListMembers(w http.ResponseWriter, r *http.Request) {
	var statuses []treasury.LifecycleStatus
	for _, s := range r.URL.Query()["status"] {
		statuses = append(statuses, treasury.LifecycleStatus(s))
	}

	members, err := h.Members.ListMembers(r.Context(), statuses...)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list members", err)
		return
	}

	now := time.Now()
	dtos := make([]MemberDTO, len(members))
	for i, m := range members {
		dtos[i] = toMemberDTO(m, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// UpsertMember creates or updates a roster row.
// POST /api/members
func (h *Handler) UpsertMember(w http.ResponseWriter, r *http.Request) {
	var req UpsertMemberRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.ID == "" || req.Name == "" {
		writeError(w, http.StatusBadRequest, "id and name are required", nil)
		return
	}
	joinDate, err := time.Parse(dateLayout, req.JoinDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid join_date (want YYYY-MM-DD)", err)
		return
	}
	status := treasury.LifecycleStatus(req.Status)
	if status == "" {
		status = treasury.StatusActive
	}

	m := treasury.Member{ID: req.ID, Name: req.Name, JoinDate: joinDate, Status: status}
	if err := h.Members.UpsertMember(r.Context(), m); err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to save member", err)
		return
	}
	writeJSON(w, http.StatusCreated, toMemberDTO(m, time.Now()))
}

// GetMember returns a single roster row.
// GET /api/members/{id}
func (h *Handler) GetMember(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	m, err := h.Members.GetMember(r.Context(), id)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load member", err)
		return
	}
	if m == nil {
		writeError(w, http.StatusNotFound, "Member not found", nil)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDTO(*m, time.Now()))
}

// GetEligibility returns the dues eligibility verdict, with the
// resolved price when eligible.
// GET /api/members/{id}/eligibility
func (h *Handler) GetEligibility(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	elig, err := h.Engine.CanPayDues(r.Context(), id)
	if err != nil {
		writeEngineError(w, err)
		return
	}

	dto := EligibilityDTO{
		MemberID: id,
		Eligible: elig.Eligible,
		Category: string(elig.Category),
		Reason:   elig.Reason,
	}
	if elig.Eligible {
		price, err := h.Engine.ResolveDuesPrice(r.Context(), id)
		if err != nil {
			writeEngineError(w, err)
			return
		}
		dto.Price = price.String()
	}
	writeJSON(w, http.StatusOK, dto)
}

// GetDuesStatus returns the member's override flags.
// GET /api/members/{id}/dues-status
func (h *Handler) GetDuesStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.Engine.GetDuesStatus(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuesStatusDTO(st))
}

// SetStudentStatus toggles student pricing.
// PUT /api/members/{id}/student
func (h *Handler) SetStudentStatus(w http.ResponseWriter, r *http.Request) {
	var req StudentStatusRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	var since time.Time
	if req.Since != "" {
		var err error
		if since, err = time.Parse(dateLayout, req.Since); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid since date (want YYYY-MM-DD)", err)
			return
		}
	}

	st, err := h.Engine.SetStudentStatus(r.Context(), chi.URLParam(r, "id"),
		req.Active, treasury.StudentStatusInput{Since: since, Note: req.Note})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuesStatusDTO(*st))
}

// SetDuesDeactivation toggles the dues deactivation flag.
// PUT /api/members/{id}/dues-deactivation
func (h *Handler) SetDuesDeactivation(w http.ResponseWriter, r *http.Request) {
	var req DuesDeactivationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	st, err := h.Engine.SetDuesDeactivation(r.Context(), chi.URLParam(r, "id"),
		req.Active, req.Reason, req.Actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toDuesStatusDTO(*st))
}

// GetMemberDebt returns the member's dues debt for a year.
// GET /api/members/{id}/debt?year=2025
func (h *Handler) GetMemberDebt(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearQuery(w, r)
	if !ok {
		return
	}
	debt, err := h.Engine.ComputeDebt(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toMemberDebtDTO(debt, time.Now()))
}

// ListMemberDuesPayments returns the member's payments for a year.
// GET /api/members/{id}/dues-payments?year=2025
func (h *Handler) ListMemberDuesPayments(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearQuery(w, r)
	if !ok {
		return
	}
	if year == 0 {
		year = time.Now().Year()
	}

	payments, err := h.Engine.ListMemberDuesPayments(r.Context(), chi.URLParam(r, "id"), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]DuesPaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toDuesPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListMemberAllocations returns all card allocations of a member.
// GET /api/members/{id}/allocations
func (h *Handler) ListMemberAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.Engine.ListMemberAllocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]AllocationDTO, len(allocations))
	for i, a := range allocations {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// PRICING HANDLERS
// =============================================================================

// GetPricing returns the current dues prices.
// GET /api/pricing
func (h *Handler) GetPricing(w http.ResponseWriter, r *http.Request) {
	cfg, err := h.Engine.GetPricing(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to load pricing", err)
		return
	}
	writeJSON(w, http.StatusOK, toPricingDTO(cfg))
}

// UpdatePricing changes the dues prices, cascading onto the active
// cycle's snapshot.
// PUT /api/pricing
func (h *Handler) UpdatePricing(w http.ResponseWriter, r *http.Request) {
	var req UpdatePricingRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	regular, ok := parseAmount(w, req.RegularPrice, "regular_price")
	if !ok {
		return
	}
	student, ok := parseAmount(w, req.StudentPrice, "student_price")
	if !ok {
		return
	}

	cfg, cycleUpdated, err := h.Engine.UpdatePricing(r.Context(), regular, student, req.Actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, UpdatePricingResponse{
		Pricing:      toPricingDTO(cfg),
		CycleUpdated: cycleUpdated,
	})
}

// =============================================================================
// CYCLE HANDLERS
// =============================================================================

// ListCycles returns all dues cycles, newest year first.
// GET /api/cycles
func (h *Handler) ListCycles(w http.ResponseWriter, r *http.Request) {
	cycles, err := h.Engine.ListCycles(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list cycles", err)
		return
	}
	dtos := make([]CycleDTO, len(cycles))
	for i, c := range cycles {
		dtos[i] = toCycleDTO(c)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateCycle creates the dues cycle for a year.
// POST /api/cycles
func (h *Handler) CreateCycle(w http.ResponseWriter, r *http.Request) {
	var req CreateCycleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	in := treasury.CycleInput{
		Year:     req.Year,
		Activate: req.Activate,
		Notes:    req.Notes,
	}
	var err error
	if req.StartDate != "" {
		if in.StartDate, err = time.Parse(dateLayout, req.StartDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid start_date (want YYYY-MM-DD)", err)
			return
		}
	}
	if req.EndDate != "" {
		if in.EndDate, err = time.Parse(dateLayout, req.EndDate); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid end_date (want YYYY-MM-DD)", err)
			return
		}
	}
	if req.RegularPrice != "" {
		var ok bool
		if in.RegularPrice, ok = parseAmount(w, req.RegularPrice, "regular_price"); !ok {
			return
		}
	}
	if req.StudentPrice != "" {
		var ok bool
		if in.StudentPrice, ok = parseAmount(w, req.StudentPrice, "student_price"); !ok {
			return
		}
	}

	cycle, err := h.Engine.CreateCycle(r.Context(), in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toCycleDTO(*cycle))
}

// GetCycle returns the cycle for a year.
// GET /api/cycles/{year}
func (h *Handler) GetCycle(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}
	cycle, err := h.Engine.GetCycle(r.Context(), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// ActivateCycle makes the cycle the single active one.
// POST /api/cycles/{year}/activate
func (h *Handler) ActivateCycle(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}
	cycle, err := h.Engine.ActivateCycle(r.Context(), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// CloseCycle closes the cycle for new payments.
// POST /api/cycles/{year}/close
func (h *Handler) CloseCycle(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}
	var req CloseCycleRequest
	if r.ContentLength > 0 {
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid request body", err)
			return
		}
	}
	cycle, err := h.Engine.CloseCycle(r.Context(), year, req.Actor)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// ReopenCycle clears the closed flag.
// POST /api/cycles/{year}/reopen
func (h *Handler) ReopenCycle(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearParam(w, r)
	if !ok {
		return
	}
	cycle, err := h.Engine.ReopenCycle(r.Context(), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toCycleDTO(*cycle))
}

// =============================================================================
// DUES HANDLERS
// =============================================================================

// RecordDuesPayment records one monthly dues payment.
// POST /api/dues/payments
func (h *Handler) RecordDuesPayment(w http.ResponseWriter, r *http.Request) {
	var req RecordDuesPaymentRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	in := treasury.DuesPaymentInput{
		MemberID: req.MemberID,
		Month:    req.Month,
		Year:     req.Year,
		Amount:   amount,
		Method:   req.Method,
		Receipt:  req.Receipt,
		Note:     req.Note,
		Actor:    req.Actor,
	}
	if req.PaidOn != "" {
		var err error
		if in.PaidOn, err = time.Parse(dateLayout, req.PaidOn); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_on date (want YYYY-MM-DD)", err)
			return
		}
	}

	payment, err := h.Engine.RecordDuesPayment(r.Context(), in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, toDuesPaymentDTO(*payment))
}

// ListDebtors returns every member owing dues for a year.
// GET /api/dues/debtors?year=2025
func (h *Handler) ListDebtors(w http.ResponseWriter, r *http.Request) {
	year, ok := parseYearQuery(w, r)
	if !ok {
		return
	}
	debtors, err := h.Engine.ListDebtors(r.Context(), year)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	now := time.Now()
	dtos := make([]MemberDebtDTO, len(debtors))
	for i, d := range debtors {
		dtos[i] = toMemberDebtDTO(d, now)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// =============================================================================
// EVENT HANDLERS
// =============================================================================

// ListEvents returns all benefit events, newest first.
// GET /api/events
func (h *Handler) ListEvents(w http.ResponseWriter, r *http.Request) {
	events, err := h.Engine.ListEvents(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list events", err)
		return
	}
	dtos := make([]EventDTO, len(events))
	for i, ev := range events {
		dtos[i] = toEventDTO(ev)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// CreateEvent creates a benefit event and fans out allocations to the
// whole roster.
// POST /api/events
func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req CreateEventRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	if req.Name == "" {
		writeError(w, http.StatusBadRequest, "name is required", nil)
		return
	}
	eventDate, err := time.Parse(dateLayout, req.EventDate)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid event_date (want YYYY-MM-DD)", err)
		return
	}
	cardPrice, ok := parseAmount(w, req.CardPrice, "card_price")
	if !ok {
		return
	}
	extraPrice, ok := parseAmount(w, req.ExtraCardPrice, "extra_card_price")
	if !ok {
		return
	}

	in := treasury.EventInput{
		Name:           req.Name,
		Description:    req.Description,
		EventDate:      eventDate,
		CardPrice:      cardPrice,
		ExtraCardPrice: extraPrice,
		Actor:          req.Actor,
	}
	if req.Quotas != nil {
		in.Quotas = &treasury.CardQuotas{
			Volunteer:       req.Quotas.Volunteer,
			HonoraryCompany: req.Quotas.HonoraryCompany,
			HonoraryCorps:   req.Quotas.HonoraryCorps,
			Distinguished:   req.Quotas.Distinguished,
		}
	}

	event, allocations, err := h.Engine.CreateEvent(r.Context(), in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, CreateEventResponse{
		Event:       toEventDTO(*event),
		Allocations: len(allocations),
	})
}

// GetEvent returns a single event.
// GET /api/events/{id}
func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Engine.GetEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*event))
}

// ListEventAllocations returns the event's allocations.
// GET /api/events/{id}/allocations
func (h *Handler) ListEventAllocations(w http.ResponseWriter, r *http.Request) {
	allocations, err := h.Engine.ListEventAllocations(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]AllocationDTO, len(allocations))
	for i, a := range allocations {
		dtos[i] = toAllocationDTO(a)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// ListEventDebtors returns allocations with money still owing.
// GET /api/events/{id}/debtors
func (h *Handler) ListEventDebtors(w http.ResponseWriter, r *http.Request) {
	debtors, err := h.Engine.ListEventDebtors(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]AllocationDebtDTO, len(debtors))
	for i, d := range debtors {
		dtos[i] = AllocationDebtDTO{
			Allocation:  toAllocationDTO(d.Allocation),
			Outstanding: d.Outstanding.String(),
		}
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetEventStats returns the aggregate event picture.
// GET /api/events/{id}/stats
func (h *Handler) GetEventStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Engine.GetEventStats(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventStatsDTO(*stats))
}

// CloseEvent closes the event; fails while any allocation is pending or
// partial.
// POST /api/events/{id}/close
func (h *Handler) CloseEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.Engine.CloseEvent(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toEventDTO(*event))
}

// =============================================================================
// ALLOCATION HANDLERS
// =============================================================================

// GetAllocation returns a single allocation with derived figures.
// GET /api/allocations/{id}
func (h *Handler) GetAllocation(w http.ResponseWriter, r *http.Request) {
	alloc, err := h.Engine.GetAllocation(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*alloc))
}

// ListAllocationPayments returns the allocation's sale history.
// GET /api/allocations/{id}/payments
func (h *Handler) ListAllocationPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.Engine.ListAllocationPayments(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		writeEngineError(w, err)
		return
	}
	dtos := make([]BenefitPaymentDTO, len(payments))
	for i, p := range payments {
		dtos[i] = toBenefitPaymentDTO(p)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// RecordSale records a normal or extra card sale.
// POST /api/allocations/{id}/sales
func (h *Handler) RecordSale(w http.ResponseWriter, r *http.Request) {
	var req RecordSaleRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}
	amount, ok := parseAmount(w, req.Amount, "amount")
	if !ok {
		return
	}

	kind := treasury.SaleKind(req.Kind)
	if kind == "" {
		kind = treasury.SaleNormal
	}

	in := treasury.SaleInput{
		AllocationID: chi.URLParam(r, "id"),
		Kind:         kind,
		Cards:        req.Cards,
		Amount:       amount,
		Method:       req.Method,
		Receipt:      req.Receipt,
		Note:         req.Note,
		Actor:        req.Actor,
	}
	if req.PaidOn != "" {
		var err error
		if in.PaidOn, err = time.Parse(dateLayout, req.PaidOn); err != nil {
			writeError(w, http.StatusBadRequest, "Invalid paid_on date (want YYYY-MM-DD)", err)
			return
		}
	}

	payment, alloc, err := h.Engine.RecordSale(r.Context(), in)
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, RecordSaleResponse{
		Payment:    toBenefitPaymentDTO(*payment),
		Allocation: toAllocationDTO(*alloc),
	})
}

// ReleaseCards returns unsellable cards, shrinking the obligation.
// POST /api/allocations/{id}/releases
func (h *Handler) ReleaseCards(w http.ResponseWriter, r *http.Request) {
	var req ReleaseCardsRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "Invalid request body", err)
		return
	}

	alloc, err := h.Engine.ReleaseCards(r.Context(), treasury.ReleaseInput{
		AllocationID: chi.URLParam(r, "id"),
		Count:        req.Count,
		Reason:       req.Reason,
		Actor:        req.Actor,
	})
	if err != nil {
		writeEngineError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, toAllocationDTO(*alloc))
}

// =============================================================================
// LEDGER HANDLERS
// =============================================================================

// ListMovements returns ledger lines, filterable by direction, category
// and date range.
// GET /api/movements?direction=income&category=dues&from=2025-01-01&to=2025-12-31
func (h *Handler) ListMovements(w http.ResponseWriter, r *http.Request) {
	var f treasury.MovementFilter
	q := r.URL.Query()
	if v := q.Get("direction"); v != "" {
		dir := treasury.MovementDirection(v)
		f.Direction = &dir
	}
	if v := q.Get("category"); v != "" {
		cat := treasury.MovementCategory(v)
		f.Category = &cat
	}
	if v := q.Get("from"); v != "" {
		from, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid from date (want YYYY-MM-DD)", err)
			return
		}
		f.From = &from
	}
	if v := q.Get("to"); v != "" {
		to, err := time.Parse(dateLayout, v)
		if err != nil {
			writeError(w, http.StatusBadRequest, "Invalid to date (want YYYY-MM-DD)", err)
			return
		}
		// Inclusive end of day
		to = to.Add(24*time.Hour - time.Second)
		f.To = &to
	}

	movements, err := h.Engine.ListMovements(r.Context(), f)
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to list movements", err)
		return
	}
	dtos := make([]MovementDTO, len(movements))
	for i, m := range movements {
		dtos[i] = toMovementDTO(m)
	}
	writeJSON(w, http.StatusOK, dtos)
}

// GetBalance returns total income, total expense and the balance.
// GET /api/treasury/balance
func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	summary, err := h.Engine.Balance(r.Context())
	if err != nil {
		writeError(w, http.StatusInternalServerError, "Failed to compute balance", err)
		return
	}
	writeJSON(w, http.StatusOK, BalanceDTO{
		Income:  summary.Income.String(),
		Expense: summary.Expense.String(),
		Balance: summary.Balance.String(),
	})
}

// =============================================================================
// HELPERS
// =============================================================================

func writeJSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

func writeError(w http.ResponseWriter, status int, message string, err error) {
	resp := ErrorResponse{Error: message}
	if err != nil {
		resp.Details = err.Error()
	}
	writeJSON(w, status, resp)
}

// writeEngineError translates engine errors into HTTP status codes:
// missing records are 404, state-machine conflicts are 409, rule and
// input rejections are 400, everything else is 500.
func writeEngineError(w http.ResponseWriter, err error) {
	switch {
	case treasury.IsNotFound(err):
		writeError(w, http.StatusNotFound, "Not found", err)
	case errors.Is(err, treasury.ErrDuplicatePayment),
		errors.Is(err, treasury.ErrCycleClosed),
		errors.Is(err, treasury.ErrCycleExists),
		errors.Is(err, treasury.ErrAlreadyClosed),
		errors.Is(err, treasury.ErrOutstandingDebt):
		writeError(w, http.StatusConflict, "Conflict", err)
	case treasury.IsClientError(err):
		writeError(w, http.StatusBadRequest, "Invalid request", err)
	default:
		writeError(w, http.StatusInternalServerError, "Internal error", err)
	}
}

func parseAmount(w http.ResponseWriter, raw, field string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid "+field+" (want decimal string)", err)
		return decimal.Decimal{}, false
	}
	return d, true
}

func parseYearParam(w http.ResponseWriter, r *http.Request) (int, bool) {
	year, err := strconv.Atoi(chi.URLParam(r, "year"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}

// parseYearQuery reads ?year=; absent means zero (the engine treats
// zero as the current year).
func parseYearQuery(w http.ResponseWriter, r *http.Request) (int, bool) {
	raw := r.URL.Query().Get("year")
	if raw == "" {
		return 0, true
	}
	year, err := strconv.Atoi(raw)
	if err != nil {
		writeError(w, http.StatusBadRequest, "Invalid year", err)
		return 0, false
	}
	return year, true
}
