// Package store provides in-memory implementations of the treasury
// persistence interfaces, for tests and development.
package store

import (
	"context"
	"sort"
	"sync"

	"github.com/shopspring/decimal"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// MEMORY STORE - treasury.TxStore backed by maps
// =============================================================================

type Memory struct {
	mu sync.RWMutex
	s  state
}

type duesKey struct {
	MemberID string
	Month    int
	Year     int
}

type state struct {
	pricing         *treasury.PricingConfig
	cycles          map[int]treasury.DuesCycle
	statuses        map[string]treasury.DuesStatus
	duesPayments    map[duesKey]treasury.DuesPayment
	events          map[string]treasury.BenefitEvent
	allocations     map[string]treasury.CardAllocation
	benefitPayments []treasury.BenefitPayment
	movements       []treasury.FinancialMovement
}

func newState() state {
	return state{
		cycles:       make(map[int]treasury.DuesCycle),
		statuses:     make(map[string]treasury.DuesStatus),
		duesPayments: make(map[duesKey]treasury.DuesPayment),
		events:       make(map[string]treasury.BenefitEvent),
		allocations:  make(map[string]treasury.CardAllocation),
	}
}

func NewMemory() *Memory {
	return &Memory{s: newState()}
}

var _ treasury.TxStore = (*Memory)(nil)

// clone deep-copies the state for WithTx snapshot/rollback.
func (st state) clone() state {
	out := newState()
	if st.pricing != nil {
		p := *st.pricing
		out.pricing = &p
	}
	for k, v := range st.cycles {
		out.cycles[k] = v
	}
	for k, v := range st.statuses {
		out.statuses[k] = v
	}
	for k, v := range st.duesPayments {
		out.duesPayments[k] = v
	}
	for k, v := range st.events {
		out.events[k] = v
	}
	for k, v := range st.allocations {
		v.Releases = append([]treasury.CardRelease(nil), v.Releases...)
		out.allocations[k] = v
	}
	out.benefitPayments = append([]treasury.BenefitPayment(nil), st.benefitPayments...)
	out.movements = append([]treasury.FinancialMovement(nil), st.movements...)
	return out
}

// -----------------------------------------------------------------------------
// Pricing
// -----------------------------------------------------------------------------

func (m *Memory) GetPricing(_ context.Context) (*treasury.PricingConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.s.pricing == nil {
		return nil, nil
	}
	cfg := *m.s.pricing
	return &cfg, nil
}

func (m *Memory) SavePricing(_ context.Context, cfg treasury.PricingConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.pricing = &cfg
	return nil
}

// -----------------------------------------------------------------------------
// Cycles
// -----------------------------------------------------------------------------

func (m *Memory) GetCycle(_ context.Context, year int) (*treasury.DuesCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.s.cycles[year]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (m *Memory) ActiveCycle(_ context.Context) (*treasury.DuesCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.s.cycles {
		if c.Active {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (m *Memory) ListCycles(_ context.Context) ([]treasury.DuesCycle, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]treasury.DuesCycle, 0, len(m.s.cycles))
	for _, c := range m.s.cycles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (m *Memory) SaveCycle(_ context.Context, c treasury.DuesCycle) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.cycles[c.Year] = c
	return nil
}

func (m *Memory) DeactivateCyclesExcept(_ context.Context, year int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for y, c := range m.s.cycles {
		if y != year && c.Active {
			c.Active = false
			m.s.cycles[y] = c
		}
	}
	return nil
}

// -----------------------------------------------------------------------------
// Dues status
// -----------------------------------------------------------------------------

func (m *Memory) GetDuesStatus(_ context.Context, memberID string) (*treasury.DuesStatus, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	st, ok := m.s.statuses[memberID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (m *Memory) SaveDuesStatus(_ context.Context, st treasury.DuesStatus) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.statuses[st.MemberID] = st
	return nil
}

// -----------------------------------------------------------------------------
// Dues payments
// -----------------------------------------------------------------------------

func (m *Memory) InsertDuesPayment(_ context.Context, p treasury.DuesPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := duesKey{MemberID: p.MemberID, Month: p.Month, Year: p.Year}
	if existing, ok := m.s.duesPayments[k]; ok {
		return &treasury.DuplicatePaymentError{
			MemberID:   p.MemberID,
			Month:      p.Month,
			Year:       p.Year,
			ExistingID: existing.ID,
		}
	}
	m.s.duesPayments[k] = p
	return nil
}

func (m *Memory) GetDuesPayment(_ context.Context, memberID string, month, year int) (*treasury.DuesPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	p, ok := m.s.duesPayments[duesKey{MemberID: memberID, Month: month, Year: year}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (m *Memory) ListDuesPayments(_ context.Context, memberID string, year int) ([]treasury.DuesPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []treasury.DuesPayment
	for k, p := range m.s.duesPayments {
		if k.MemberID == memberID && k.Year == year {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

// -----------------------------------------------------------------------------
// Benefit events
// -----------------------------------------------------------------------------

func (m *Memory) InsertEvent(_ context.Context, ev treasury.BenefitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.events[ev.ID] = ev
	return nil
}

func (m *Memory) GetEvent(_ context.Context, id string) (*treasury.BenefitEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ev, ok := m.s.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (m *Memory) ListEvents(_ context.Context) ([]treasury.BenefitEvent, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]treasury.BenefitEvent, 0, len(m.s.events))
	for _, ev := range m.s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.After(out[j].EventDate) })
	return out, nil
}

func (m *Memory) SaveEvent(_ context.Context, ev treasury.BenefitEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.events[ev.ID] = ev
	return nil
}

// -----------------------------------------------------------------------------
// Card allocations
// -----------------------------------------------------------------------------

func (m *Memory) InsertAllocation(_ context.Context, a treasury.CardAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.allocations[a.ID] = a
	return nil
}

func (m *Memory) GetAllocation(_ context.Context, id string) (*treasury.CardAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.s.allocations[id]
	if !ok {
		return nil, nil
	}
	a.Releases = append([]treasury.CardRelease(nil), a.Releases...)
	return &a, nil
}

func (m *Memory) ListAllocationsByEvent(_ context.Context, eventID string) ([]treasury.CardAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []treasury.CardAllocation
	for _, a := range m.s.allocations {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (m *Memory) ListAllocationsByMember(_ context.Context, memberID string) ([]treasury.CardAllocation, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []treasury.CardAllocation
	for _, a := range m.s.allocations {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (m *Memory) SaveAllocation(_ context.Context, a treasury.CardAllocation) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.allocations[a.ID] = a
	return nil
}

// -----------------------------------------------------------------------------
// Benefit payments
// -----------------------------------------------------------------------------

func (m *Memory) InsertBenefitPayment(_ context.Context, p treasury.BenefitPayment) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.benefitPayments = append(m.s.benefitPayments, p)
	return nil
}

func (m *Memory) ListBenefitPayments(_ context.Context, allocationID string) ([]treasury.BenefitPayment, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []treasury.BenefitPayment
	for _, p := range m.s.benefitPayments {
		if p.AllocationID == allocationID {
			out = append(out, p)
		}
	}
	return out, nil
}

// -----------------------------------------------------------------------------
// Financial movements
// -----------------------------------------------------------------------------

func (m *Memory) InsertMovement(_ context.Context, mv treasury.FinancialMovement) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.s.movements = append(m.s.movements, mv)
	return nil
}

func (m *Memory) ListMovements(_ context.Context, f treasury.MovementFilter) ([]treasury.FinancialMovement, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []treasury.FinancialMovement
	for _, mv := range m.s.movements {
		if matchesFilter(mv, f) {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func matchesFilter(mv treasury.FinancialMovement, f treasury.MovementFilter) bool {
	if f.Direction != nil && mv.Direction != *f.Direction {
		return false
	}
	if f.Category != nil && mv.Category != *f.Category {
		return false
	}
	if f.From != nil && mv.Date.Before(*f.From) {
		return false
	}
	if f.To != nil && mv.Date.After(*f.To) {
		return false
	}
	return true
}

func (m *Memory) SumMovements(_ context.Context, dir treasury.MovementDirection) (decimal.Decimal, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	total := decimal.Zero
	for _, mv := range m.s.movements {
		if mv.Direction == dir {
			total = total.Add(mv.Amount)
		}
	}
	return total, nil
}

// -----------------------------------------------------------------------------
// Transactions
// -----------------------------------------------------------------------------

// WithTx simulates a transaction with snapshot + rollback on error.
// The mutex is held for the whole unit, which also serializes
// concurrent sale/release mutations against the same allocation.
func (m *Memory) WithTx(_ context.Context, fn func(treasury.Store) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	snapshot := m.s.clone()
	if err := fn(&txView{parent: m}); err != nil {
		m.s = snapshot
		return err
	}
	return nil
}

// txView gives fn unlocked access to the parent state; the parent's
// mutex is already held by WithTx.
type txView struct {
	parent *Memory
}

var _ treasury.Store = (*txView)(nil)

func (tv *txView) GetPricing(context.Context) (*treasury.PricingConfig, error) {
	if tv.parent.s.pricing == nil {
		return nil, nil
	}
	cfg := *tv.parent.s.pricing
	return &cfg, nil
}

func (tv *txView) SavePricing(_ context.Context, cfg treasury.PricingConfig) error {
	tv.parent.s.pricing = &cfg
	return nil
}

func (tv *txView) GetCycle(_ context.Context, year int) (*treasury.DuesCycle, error) {
	c, ok := tv.parent.s.cycles[year]
	if !ok {
		return nil, nil
	}
	return &c, nil
}

func (tv *txView) ActiveCycle(context.Context) (*treasury.DuesCycle, error) {
	for _, c := range tv.parent.s.cycles {
		if c.Active {
			cc := c
			return &cc, nil
		}
	}
	return nil, nil
}

func (tv *txView) ListCycles(context.Context) ([]treasury.DuesCycle, error) {
	out := make([]treasury.DuesCycle, 0, len(tv.parent.s.cycles))
	for _, c := range tv.parent.s.cycles {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Year > out[j].Year })
	return out, nil
}

func (tv *txView) SaveCycle(_ context.Context, c treasury.DuesCycle) error {
	tv.parent.s.cycles[c.Year] = c
	return nil
}

func (tv *txView) DeactivateCyclesExcept(_ context.Context, year int) error {
	for y, c := range tv.parent.s.cycles {
		if y != year && c.Active {
			c.Active = false
			tv.parent.s.cycles[y] = c
		}
	}
	return nil
}

func (tv *txView) GetDuesStatus(_ context.Context, memberID string) (*treasury.DuesStatus, error) {
	st, ok := tv.parent.s.statuses[memberID]
	if !ok {
		return nil, nil
	}
	return &st, nil
}

func (tv *txView) SaveDuesStatus(_ context.Context, st treasury.DuesStatus) error {
	tv.parent.s.statuses[st.MemberID] = st
	return nil
}

func (tv *txView) InsertDuesPayment(_ context.Context, p treasury.DuesPayment) error {
	k := duesKey{MemberID: p.MemberID, Month: p.Month, Year: p.Year}
	if existing, ok := tv.parent.s.duesPayments[k]; ok {
		return &treasury.DuplicatePaymentError{
			MemberID:   p.MemberID,
			Month:      p.Month,
			Year:       p.Year,
			ExistingID: existing.ID,
		}
	}
	tv.parent.s.duesPayments[k] = p
	return nil
}

func (tv *txView) GetDuesPayment(_ context.Context, memberID string, month, year int) (*treasury.DuesPayment, error) {
	p, ok := tv.parent.s.duesPayments[duesKey{MemberID: memberID, Month: month, Year: year}]
	if !ok {
		return nil, nil
	}
	return &p, nil
}

func (tv *txView) ListDuesPayments(_ context.Context, memberID string, year int) ([]treasury.DuesPayment, error) {
	var out []treasury.DuesPayment
	for k, p := range tv.parent.s.duesPayments {
		if k.MemberID == memberID && k.Year == year {
			out = append(out, p)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Month < out[j].Month })
	return out, nil
}

func (tv *txView) InsertEvent(_ context.Context, ev treasury.BenefitEvent) error {
	tv.parent.s.events[ev.ID] = ev
	return nil
}

func (tv *txView) GetEvent(_ context.Context, id string) (*treasury.BenefitEvent, error) {
	ev, ok := tv.parent.s.events[id]
	if !ok {
		return nil, nil
	}
	return &ev, nil
}

func (tv *txView) ListEvents(context.Context) ([]treasury.BenefitEvent, error) {
	out := make([]treasury.BenefitEvent, 0, len(tv.parent.s.events))
	for _, ev := range tv.parent.s.events {
		out = append(out, ev)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].EventDate.After(out[j].EventDate) })
	return out, nil
}

func (tv *txView) SaveEvent(_ context.Context, ev treasury.BenefitEvent) error {
	tv.parent.s.events[ev.ID] = ev
	return nil
}

func (tv *txView) InsertAllocation(_ context.Context, a treasury.CardAllocation) error {
	tv.parent.s.allocations[a.ID] = a
	return nil
}

func (tv *txView) GetAllocation(_ context.Context, id string) (*treasury.CardAllocation, error) {
	a, ok := tv.parent.s.allocations[id]
	if !ok {
		return nil, nil
	}
	a.Releases = append([]treasury.CardRelease(nil), a.Releases...)
	return &a, nil
}

func (tv *txView) ListAllocationsByEvent(_ context.Context, eventID string) ([]treasury.CardAllocation, error) {
	var out []treasury.CardAllocation
	for _, a := range tv.parent.s.allocations {
		if a.EventID == eventID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MemberID < out[j].MemberID })
	return out, nil
}

func (tv *txView) ListAllocationsByMember(_ context.Context, memberID string) ([]treasury.CardAllocation, error) {
	var out []treasury.CardAllocation
	for _, a := range tv.parent.s.allocations {
		if a.MemberID == memberID {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (tv *txView) SaveAllocation(_ context.Context, a treasury.CardAllocation) error {
	tv.parent.s.allocations[a.ID] = a
	return nil
}

func (tv *txView) InsertBenefitPayment(_ context.Context, p treasury.BenefitPayment) error {
	tv.parent.s.benefitPayments = append(tv.parent.s.benefitPayments, p)
	return nil
}

func (tv *txView) ListBenefitPayments(_ context.Context, allocationID string) ([]treasury.BenefitPayment, error) {
	var out []treasury.BenefitPayment
	for _, p := range tv.parent.s.benefitPayments {
		if p.AllocationID == allocationID {
			out = append(out, p)
		}
	}
	return out, nil
}

func (tv *txView) InsertMovement(_ context.Context, mv treasury.FinancialMovement) error {
	tv.parent.s.movements = append(tv.parent.s.movements, mv)
	return nil
}

func (tv *txView) ListMovements(_ context.Context, f treasury.MovementFilter) ([]treasury.FinancialMovement, error) {
	var out []treasury.FinancialMovement
	for _, mv := range tv.parent.s.movements {
		if matchesFilter(mv, f) {
			out = append(out, mv)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Date.After(out[j].Date) })
	return out, nil
}

func (tv *txView) SumMovements(_ context.Context, dir treasury.MovementDirection) (decimal.Decimal, error) {
	total := decimal.Zero
	for _, mv := range tv.parent.s.movements {
		if mv.Direction == dir {
			total = total.Add(mv.Amount)
		}
	}
	return total, nil
}

// =============================================================================
// MEMORY DIRECTORY - treasury.MemberDirectory backed by a map
// =============================================================================

type MemoryDirectory struct {
	mu      sync.RWMutex
	members map[string]treasury.Member
}

func NewMemoryDirectory() *MemoryDirectory {
	return &MemoryDirectory{members: make(map[string]treasury.Member)}
}

var _ treasury.MemberDirectory = (*MemoryDirectory)(nil)

// Put adds or replaces a member record.
func (d *MemoryDirectory) Put(m treasury.Member) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.members[m.ID] = m
}

// SetStatus updates a member's lifecycle status.
func (d *MemoryDirectory) SetStatus(id string, status treasury.LifecycleStatus) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if m, ok := d.members[id]; ok {
		m.Status = status
		d.members[id] = m
	}
}

func (d *MemoryDirectory) GetMember(_ context.Context, id string) (*treasury.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	m, ok := d.members[id]
	if !ok {
		return nil, nil
	}
	return &m, nil
}

func (d *MemoryDirectory) ListMembers(_ context.Context, statuses ...treasury.LifecycleStatus) ([]treasury.Member, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	var out []treasury.Member
	for _, m := range d.members {
		if len(statuses) == 0 {
			out = append(out, m)
			continue
		}
		for _, s := range statuses {
			if m.Status == s {
				out = append(out, m)
				break
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].JoinDate.Equal(out[j].JoinDate) {
			return out[i].ID < out[j].ID
		}
		return out[i].JoinDate.Before(out[j].JoinDate)
	})
	return out, nil
}
