package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// DEBT CALCULATION
// =============================================================================

func TestComputeDebt_MidYear_CurrentMonthCounts(t *testing.T) {
	// GIVEN: June 15, an active cycle priced at 6000, no payments
	// WHEN: Debt is computed for the current year
	// THEN: January through June are pending, total 36000

	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{
		Year:         2025,
		Activate:     true,
		RegularPrice: dec(6000),
		StudentPrice: dec(3500),
	})
	require.NoError(t, err)

	debt, err := engine.ComputeDebt(ctx, "m1", 0)
	require.NoError(t, err)
	assert.Equal(t, 2025, debt.Year, "year 0 means the current year")
	assert.Equal(t, []int{1, 2, 3, 4, 5, 6}, debt.PendingMonths)
	assert.True(t, debt.Total.Equal(dec(36000)), "got %s", debt.Total)
}

func TestComputeDebt_PaidMonthsExcluded(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	for _, month := range []int{1, 2, 4} {
		_, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
			MemberID: "m1", Month: month, Year: 2025, Amount: dec(5000),
		})
		require.NoError(t, err)
	}

	debt, err := engine.ComputeDebt(ctx, "m1", 2025)
	require.NoError(t, err)
	assert.Equal(t, []int{3, 5, 6}, debt.PendingMonths)
	assert.True(t, debt.Total.Equal(dec(15000)))
}

func TestComputeDebt_PastYear_AllTwelveMonths(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusActive))

	debt, err := engine.ComputeDebt(context.Background(), "m1", 2024)
	require.NoError(t, err)
	assert.Len(t, debt.PendingMonths, 12)
	assert.True(t, debt.Total.Equal(dec(60000)))
}

func TestComputeDebt_FutureYear_TreatedAsFullyElapsed(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusActive))

	debt, err := engine.ComputeDebt(context.Background(), "m1", 2026)
	require.NoError(t, err)
	assert.Len(t, debt.PendingMonths, 12)
}

func TestComputeDebt_IneligibleMember_ZeroDebt(t *testing.T) {
	// Ineligibility yields zero debt, not an error.
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 30, treasury.StatusActive)) // exempt by tenure

	debt, err := engine.ComputeDebt(context.Background(), "m1", 2025)
	require.NoError(t, err)
	assert.Empty(t, debt.PendingMonths)
	assert.True(t, debt.Total.IsZero())
}

func TestComputeDebt_StudentPrice(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.SetStudentStatus(ctx, "m1", true, treasury.StudentStatusInput{})
	require.NoError(t, err)

	debt, err := engine.ComputeDebt(ctx, "m1", 2025)
	require.NoError(t, err)
	assert.True(t, debt.Price.Equal(treasury.DefaultStudentPrice))
	assert.True(t, debt.Total.Equal(dec(18000)), "6 months x 3000")
}

func TestComputeDebt_UnknownMember(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.ComputeDebt(context.Background(), "ghost", 2025)
	assert.True(t, treasury.IsNotFound(err))
}

// =============================================================================
// DEBTOR LISTS
// =============================================================================

func TestListDebtors_SkipsExemptAndSettled(t *testing.T) {
	// GIVEN: An owing volunteer, a fully paid volunteer, an exempt
	//        honorary and a resigned member
	// WHEN: Debtors are listed
	// THEN: Only the owing volunteer appears

	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("owing", 5, treasury.StatusActive))
	dir.Put(member("paid", 6, treasury.StatusActive))
	dir.Put(member("honorary", 30, treasury.StatusActive))
	dir.Put(member("gone", 5, treasury.StatusResigned))

	for month := 1; month <= 6; month++ {
		_, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
			MemberID: "paid", Month: month, Year: 2025, Amount: dec(5000),
		})
		require.NoError(t, err)
	}

	debtors, err := engine.ListDebtors(ctx, 2025)
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.Equal(t, "owing", debtors[0].Member.ID)
	assert.True(t, debtors[0].Total.Equal(dec(30000)))
}

func TestListDebtors_IncludesInactiveMembers(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusInactive))

	debtors, err := engine.ListDebtors(context.Background(), 2025)
	require.NoError(t, err)
	require.Len(t, debtors, 1)
	assert.Equal(t, "m1", debtors[0].Member.ID)
}

func TestListDebtors_DeactivatedMemberNeverAppears(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.SetDuesDeactivation(ctx, "m1", true, "hardship", "treasurer")
	require.NoError(t, err)

	debtors, err := engine.ListDebtors(ctx, 2025)
	require.NoError(t, err)
	assert.Empty(t, debtors)
}
