package sqlite

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// TEST SETUP
// =============================================================================

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func d(v int64) decimal.Decimal { return decimal.NewFromInt(v) }

var testDay = time.Date(2025, time.June, 15, 0, 0, 0, 0, time.UTC)

// =============================================================================
// PRICING
// =============================================================================

func TestPricing_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	cfg, err := s.GetPricing(ctx)
	require.NoError(t, err)
	assert.Nil(t, cfg, "unset pricing reads back as nil")

	want := treasury.PricingConfig{
		RegularPrice: d(5000),
		StudentPrice: d(3000),
		UpdatedAt:    testDay,
		UpdatedBy:    "treasurer",
	}
	require.NoError(t, s.SavePricing(ctx, want))

	got, err := s.GetPricing(ctx)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.RegularPrice.Equal(want.RegularPrice))
	assert.True(t, got.StudentPrice.Equal(want.StudentPrice))
	assert.Equal(t, want.UpdatedAt, got.UpdatedAt)
	assert.Equal(t, "treasurer", got.UpdatedBy)

	// Singleton row: a second save overwrites, never duplicates.
	want.RegularPrice = d(6000)
	require.NoError(t, s.SavePricing(ctx, want))
	got, err = s.GetPricing(ctx)
	require.NoError(t, err)
	assert.True(t, got.RegularPrice.Equal(d(6000)))
}

// =============================================================================
// DUES CYCLES
// =============================================================================

func TestCycles_RoundTripAndActive(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	closedAt := testDay
	cycle := treasury.DuesCycle{
		Year:         2025,
		StartDate:    time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC),
		EndDate:      time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC),
		Active:       true,
		RegularPrice: d(5000),
		StudentPrice: d(3000),
		Notes:        "standard year",
		CreatedAt:    testDay,
	}
	require.NoError(t, s.SaveCycle(ctx, cycle))

	got, err := s.GetCycle(ctx, 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, cycle.StartDate, got.StartDate)
	assert.Equal(t, "standard year", got.Notes)
	assert.Nil(t, got.ClosedAt)

	active, err := s.ActiveCycle(ctx)
	require.NoError(t, err)
	require.NotNil(t, active)
	assert.Equal(t, 2025, active.Year)

	// Close it via upsert and check the nullable column survives.
	cycle.Active = false
	cycle.Closed = true
	cycle.ClosedAt = &closedAt
	cycle.ClosedBy = "treasurer"
	require.NoError(t, s.SaveCycle(ctx, cycle))

	got, err = s.GetCycle(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, got.Closed)
	require.NotNil(t, got.ClosedAt)
	assert.Equal(t, closedAt, *got.ClosedAt)

	active, err = s.ActiveCycle(ctx)
	require.NoError(t, err)
	assert.Nil(t, active)
}

func TestCycles_DeactivateExcept(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, year := range []int{2024, 2025} {
		require.NoError(t, s.SaveCycle(ctx, treasury.DuesCycle{
			Year: year, StartDate: testDay, EndDate: testDay, Active: true,
			RegularPrice: d(5000), StudentPrice: d(3000), CreatedAt: testDay,
		}))
	}

	require.NoError(t, s.DeactivateCyclesExcept(ctx, 2025))

	old, err := s.GetCycle(ctx, 2024)
	require.NoError(t, err)
	assert.False(t, old.Active)

	current, err := s.GetCycle(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, current.Active)
}

// =============================================================================
// DUES STATUS
// =============================================================================

func TestDuesStatus_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	got, err := s.GetDuesStatus(ctx, "m1")
	require.NoError(t, err)
	assert.Nil(t, got, "missing status reads back as nil")

	since := testDay
	st := treasury.DuesStatus{
		MemberID:     "m1",
		Student:      true,
		StudentSince: &since,
		StudentNote:  "university",
		UpdatedAt:    testDay,
	}
	require.NoError(t, s.SaveDuesStatus(ctx, st))

	got, err = s.GetDuesStatus(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Student)
	require.NotNil(t, got.StudentSince)
	assert.Equal(t, since, *got.StudentSince)
	assert.Nil(t, got.DeactivatedAt)
}

// =============================================================================
// DUES PAYMENTS - uniqueness enforced by the database
// =============================================================================

func TestDuesPayments_UniquePeriod(t *testing.T) {
	// GIVEN: A payment for (m1, June, 2025)
	// WHEN: A second row lands on the same period
	// THEN: The UNIQUE index rejects it as a DuplicatePaymentError

	s := newTestStore(t)
	ctx := context.Background()

	p := treasury.DuesPayment{
		ID: "p1", MemberID: "m1", Month: 6, Year: 2025,
		Amount: d(5000), PaidOn: testDay, CreatedAt: testDay,
	}
	require.NoError(t, s.InsertDuesPayment(ctx, p))

	p2 := p
	p2.ID = "p2"
	err := s.InsertDuesPayment(ctx, p2)
	require.Error(t, err)

	var dup *treasury.DuplicatePaymentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, "m1", dup.MemberID)
	assert.Equal(t, 6, dup.Month)
	assert.ErrorIs(t, err, treasury.ErrDuplicatePayment)

	// Different period on the same member is fine.
	p3 := p
	p3.ID = "p3"
	p3.Month = 7
	assert.NoError(t, s.InsertDuesPayment(ctx, p3))
}

func TestDuesPayments_ListByYearOrderedByMonth(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for i, month := range []int{5, 1, 3} {
		require.NoError(t, s.InsertDuesPayment(ctx, treasury.DuesPayment{
			ID: string(rune('a' + i)), MemberID: "m1", Month: month, Year: 2025,
			Amount: d(5000), PaidOn: testDay, CreatedAt: testDay,
		}))
	}
	require.NoError(t, s.InsertDuesPayment(ctx, treasury.DuesPayment{
		ID: "other-year", MemberID: "m1", Month: 1, Year: 2024,
		Amount: d(5000), PaidOn: testDay, CreatedAt: testDay,
	}))

	payments, err := s.ListDuesPayments(ctx, "m1", 2025)
	require.NoError(t, err)
	require.Len(t, payments, 3)
	assert.Equal(t, 1, payments[0].Month)
	assert.Equal(t, 3, payments[1].Month)
	assert.Equal(t, 5, payments[2].Month)

	got, err := s.GetDuesPayment(ctx, "m1", 3, 2025)
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.True(t, got.Amount.Equal(d(5000)))
}

// =============================================================================
// EVENTS + ALLOCATIONS - JSON columns survive the round trip
// =============================================================================

func TestEventAndAllocation_RoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	ev := treasury.BenefitEvent{
		ID:        "ev1",
		Name:      "Annual Dinner",
		EventDate: testDay,
		Quotas: treasury.CardQuotas{
			Volunteer: 5, HonoraryCompany: 3, HonoraryCorps: 3, Distinguished: 2,
		},
		CardPrice:      d(1000),
		ExtraCardPrice: d(800),
		CreatedAt:      testDay,
		CreatedBy:      "treasurer",
	}
	require.NoError(t, s.InsertEvent(ctx, ev))

	gotEv, err := s.GetEvent(ctx, "ev1")
	require.NoError(t, err)
	require.NotNil(t, gotEv)
	assert.Equal(t, ev.Quotas, gotEv.Quotas)
	assert.True(t, gotEv.CardPrice.Equal(d(1000)))

	a := treasury.CardAllocation{
		ID: "a1", EventID: "ev1", MemberID: "m1",
		Allocated: 5, TotalDue: d(5000), TotalPaid: decimal.Zero,
		State: treasury.PaymentPending, CreatedAt: testDay,
	}
	require.NoError(t, s.InsertAllocation(ctx, a))

	// Mutate counters and append a release, then read back.
	a.Sold = 2
	a.Released = 1
	a.TotalDue = d(4000)
	a.TotalPaid = d(2000)
	a.State = treasury.PaymentPartial
	a.Releases = append(a.Releases, treasury.CardRelease{
		At: testDay, Count: 1, Reason: "damaged", Actor: "treasurer",
	})
	require.NoError(t, s.SaveAllocation(ctx, a))

	got, err := s.GetAllocation(ctx, "a1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, 2, got.Sold)
	assert.Equal(t, 2, got.Available())
	assert.True(t, got.TotalDue.Equal(d(4000)))
	require.Len(t, got.Releases, 1)
	assert.Equal(t, "damaged", got.Releases[0].Reason)
	assert.Equal(t, testDay, got.Releases[0].At)
}

func TestAllocations_ListByEventAndMember(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, a := range []treasury.CardAllocation{
		{ID: "a1", EventID: "ev1", MemberID: "m1", Allocated: 5,
			TotalDue: d(5000), TotalPaid: decimal.Zero,
			State: treasury.PaymentPending, CreatedAt: testDay},
		{ID: "a2", EventID: "ev1", MemberID: "m2", Allocated: 3,
			TotalDue: d(3000), TotalPaid: decimal.Zero,
			State: treasury.PaymentPending, CreatedAt: testDay},
		{ID: "a3", EventID: "ev2", MemberID: "m1", Allocated: 5,
			TotalDue: d(5000), TotalPaid: decimal.Zero,
			State: treasury.PaymentPending, CreatedAt: testDay.AddDate(0, 1, 0)},
	} {
		require.NoError(t, s.InsertAllocation(ctx, a))
	}

	byEvent, err := s.ListAllocationsByEvent(ctx, "ev1")
	require.NoError(t, err)
	assert.Len(t, byEvent, 2)

	byMember, err := s.ListAllocationsByMember(ctx, "m1")
	require.NoError(t, err)
	require.Len(t, byMember, 2)
	assert.Equal(t, "a1", byMember[0].ID, "oldest first")
	assert.Equal(t, "a3", byMember[1].ID)
}

// =============================================================================
// MOVEMENTS - decimal sums and filters
// =============================================================================

func TestMovements_FilterAndSum(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seed := []treasury.FinancialMovement{
		{ID: "mv1", Direction: treasury.Income, Category: treasury.CategoryDues,
			Amount: decimal.RequireFromString("5000.50"), Date: testDay, CreatedAt: testDay},
		{ID: "mv2", Direction: treasury.Income, Category: treasury.CategoryBenefit,
			Amount: d(2000), Date: testDay.AddDate(0, 0, 1), CreatedAt: testDay},
		{ID: "mv3", Direction: treasury.Expense, Category: treasury.CategoryOperational,
			Amount: decimal.RequireFromString("999.25"), Date: testDay, CreatedAt: testDay},
	}
	for _, m := range seed {
		require.NoError(t, s.InsertMovement(ctx, m))
	}

	all, err := s.ListMovements(ctx, treasury.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, all, 3)

	income := treasury.Income
	byDirection, err := s.ListMovements(ctx, treasury.MovementFilter{Direction: &income})
	require.NoError(t, err)
	assert.Len(t, byDirection, 2)

	dues := treasury.CategoryDues
	byCategory, err := s.ListMovements(ctx, treasury.MovementFilter{Category: &dues})
	require.NoError(t, err)
	require.Len(t, byCategory, 1)
	assert.True(t, byCategory[0].Amount.Equal(decimal.RequireFromString("5000.50")),
		"fractional amounts survive the TEXT column")

	from := testDay.AddDate(0, 0, 1)
	byDate, err := s.ListMovements(ctx, treasury.MovementFilter{From: &from})
	require.NoError(t, err)
	require.Len(t, byDate, 1)
	assert.Equal(t, "mv2", byDate[0].ID)

	totalIncome, err := s.SumMovements(ctx, treasury.Income)
	require.NoError(t, err)
	assert.True(t, totalIncome.Equal(decimal.RequireFromString("7000.50")))

	totalExpense, err := s.SumMovements(ctx, treasury.Expense)
	require.NoError(t, err)
	assert.True(t, totalExpense.Equal(decimal.RequireFromString("999.25")))
}

// =============================================================================
// TRANSACTIONS
// =============================================================================

func TestWithTx_CommitAndRollback(t *testing.T) {
	// GIVEN: A transactional unit inserting two rows
	// WHEN: fn succeeds / fails
	// THEN: Both rows land / neither does

	s := newTestStore(t)
	ctx := context.Background()

	err := s.WithTx(ctx, func(tx treasury.Store) error {
		if err := tx.InsertDuesPayment(ctx, treasury.DuesPayment{
			ID: "p1", MemberID: "m1", Month: 1, Year: 2025,
			Amount: d(5000), PaidOn: testDay, CreatedAt: testDay,
		}); err != nil {
			return err
		}
		return tx.InsertMovement(ctx, treasury.FinancialMovement{
			ID: "mv1", Direction: treasury.Income, Category: treasury.CategoryDues,
			Amount: d(5000), Date: testDay, DuesPaymentID: "p1", CreatedAt: testDay,
		})
	})
	require.NoError(t, err)

	boom := errors.New("boom")
	err = s.WithTx(ctx, func(tx treasury.Store) error {
		if err := tx.InsertDuesPayment(ctx, treasury.DuesPayment{
			ID: "p2", MemberID: "m1", Month: 2, Year: 2025,
			Amount: d(5000), PaidOn: testDay, CreatedAt: testDay,
		}); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	payments, err := s.ListDuesPayments(ctx, "m1", 2025)
	require.NoError(t, err)
	require.Len(t, payments, 1, "the rolled-back payment is gone")
	assert.Equal(t, "p1", payments[0].ID)

	movements, err := s.ListMovements(ctx, treasury.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

// =============================================================================
// MEMBER DIRECTORY
// =============================================================================

func TestMembers_UpsertAndFilter(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	members := []treasury.Member{
		{ID: "m1", Name: "Older", JoinDate: testDay.AddDate(-30, 0, 0), Status: treasury.StatusActive},
		{ID: "m2", Name: "Newer", JoinDate: testDay.AddDate(-5, 0, 0), Status: treasury.StatusInactive},
		{ID: "m3", Name: "Gone", JoinDate: testDay.AddDate(-10, 0, 0), Status: treasury.StatusResigned},
	}
	for _, m := range members {
		require.NoError(t, s.UpsertMember(ctx, m))
	}

	got, err := s.GetMember(ctx, "m1")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, "Older", got.Name)

	missing, err := s.GetMember(ctx, "ghost")
	require.NoError(t, err)
	assert.Nil(t, missing, "missing member is nil, not an error")

	eligible, err := s.ListMembers(ctx, treasury.StatusActive, treasury.StatusInactive)
	require.NoError(t, err)
	require.Len(t, eligible, 2)
	assert.Equal(t, "m1", eligible[0].ID, "oldest join date first")

	all, err := s.ListMembers(ctx)
	require.NoError(t, err)
	assert.Len(t, all, 3)

	// Upsert overwrites in place.
	require.NoError(t, s.UpsertMember(ctx, treasury.Member{
		ID: "m2", Name: "Renamed", JoinDate: testDay.AddDate(-5, 0, 0),
		Status: treasury.StatusActive,
	}))
	got, err = s.GetMember(ctx, "m2")
	require.NoError(t, err)
	assert.Equal(t, "Renamed", got.Name)
	assert.Equal(t, treasury.StatusActive, got.Status)
}

// =============================================================================
// ENGINE OVER SQLITE - the full stack against a real database
// =============================================================================

func TestEngine_FullFlowOverSQLite(t *testing.T) {
	// GIVEN: The engine wired to a SQLite store doubling as the directory
	// WHEN: A cycle, a dues payment and a benefit sale go through
	// THEN: The ledger balances

	s := newTestStore(t)
	ctx := context.Background()
	engine := treasury.NewEngine(s, s, treasury.FixedClock(testDay))

	require.NoError(t, s.UpsertMember(ctx, treasury.Member{
		ID: "m1", Name: "Volunteer", JoinDate: testDay.AddDate(-5, 0, 0),
		Status: treasury.StatusActive,
	}))

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)

	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 6, Year: 2025, Amount: d(5000),
	})
	require.NoError(t, err)

	_, allocations, err := engine.CreateEvent(ctx, treasury.EventInput{
		Name: "Annual Dinner", EventDate: testDay,
		CardPrice: d(1000), ExtraCardPrice: d(800),
	})
	require.NoError(t, err)
	require.Len(t, allocations, 1)

	_, _, err = engine.RecordSale(ctx, treasury.SaleInput{
		AllocationID: allocations[0].ID, Kind: treasury.SaleNormal,
		Cards: 2, Amount: d(2000),
	})
	require.NoError(t, err)

	balance, err := engine.Balance(ctx)
	require.NoError(t, err)
	assert.True(t, balance.Income.Equal(d(7000)))
	assert.True(t, balance.Expense.IsZero())
	assert.True(t, balance.Balance.Equal(d(7000)))
}
