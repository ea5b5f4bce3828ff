package treasury_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// PAYMENT RECORDING
// =============================================================================

func TestRecordDuesPayment_WritesPaymentAndMovement(t *testing.T) {
	// GIVEN: An eligible volunteer
	// WHEN: June dues are recorded
	// THEN: The payment and exactly one income/dues movement referencing
	//       it land together

	engine, mem, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	payment, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1",
		Month:    6,
		Year:     2025,
		Amount:   dec(5000),
		Method:   "cash",
		Receipt:  "R-001",
		Actor:    "treasurer",
	})
	require.NoError(t, err)
	assert.NotEmpty(t, payment.ID)
	assert.Equal(t, today, payment.PaidOn, "PaidOn defaults to today")

	movements, err := mem.ListMovements(ctx, treasury.MovementFilter{})
	require.NoError(t, err)
	require.Len(t, movements, 1)
	mv := movements[0]
	assert.Equal(t, treasury.Income, mv.Direction)
	assert.Equal(t, treasury.CategoryDues, mv.Category)
	assert.True(t, mv.Amount.Equal(dec(5000)))
	assert.Equal(t, payment.ID, mv.DuesPaymentID)
	assert.Contains(t, mv.Description, "June 2025")
	assert.Contains(t, mv.Description, "Member m1")
}

func TestRecordDuesPayment_DuplicatePeriod_Rejected(t *testing.T) {
	// The period is unique regardless of amount.
	engine, mem, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	first, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 3, Year: 2025, Amount: dec(5000),
	})
	require.NoError(t, err)

	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 3, Year: 2025, Amount: dec(9999),
	})
	require.Error(t, err)

	var dup *treasury.DuplicatePaymentError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, first.ID, dup.ExistingID)
	assert.ErrorIs(t, err, treasury.ErrDuplicatePayment)

	// The rejected attempt wrote nothing.
	movements, err := mem.ListMovements(ctx, treasury.MovementFilter{})
	require.NoError(t, err)
	assert.Len(t, movements, 1)
}

func TestRecordDuesPayment_SameMonthDifferentYear_Allowed(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 3, Year: 2024, Amount: dec(5000),
	})
	require.NoError(t, err)

	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 3, Year: 2025, Amount: dec(5000),
	})
	assert.NoError(t, err)
}

func TestRecordDuesPayment_ValidationOrder(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	// Month out of range
	_, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 13, Year: 2025, Amount: dec(5000),
	})
	assert.ErrorIs(t, err, treasury.ErrInvalidPeriod)

	// Non-positive amount
	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 6, Year: 2025, Amount: dec(0),
	})
	assert.ErrorIs(t, err, treasury.ErrInvalidAmount)

	// Unknown member
	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "ghost", Month: 6, Year: 2025, Amount: dec(5000),
	})
	assert.True(t, treasury.IsNotFound(err))
}

func TestRecordDuesPayment_IneligibleMember_Rejected(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 30, treasury.StatusActive)) // exempt by tenure

	_, err := engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 6, Year: 2025, Amount: dec(5000),
	})
	require.Error(t, err)

	var inel *treasury.IneligibleError
	require.ErrorAs(t, err, &inel)
	assert.Equal(t, treasury.EligibilityExemptTenure, inel.Category)
}

func TestRecordDuesPayment_ClosedCycle_Rejected(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2024})
	require.NoError(t, err)
	_, err = engine.CloseCycle(ctx, 2024, "treasurer")
	require.NoError(t, err)

	_, err = engine.RecordDuesPayment(ctx, treasury.DuesPaymentInput{
		MemberID: "m1", Month: 2, Year: 2024, Amount: dec(5000),
	})
	assert.ErrorIs(t, err, treasury.ErrCycleClosed)
}

func TestRecordDuesPayment_NoCycleForYear_Accepted(t *testing.T) {
	// A year without any cycle record still accepts payments; only an
	// explicitly closed cycle blocks them.
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusActive))

	_, err := engine.RecordDuesPayment(context.Background(), treasury.DuesPaymentInput{
		MemberID: "m1", Month: 1, Year: 2019, Amount: dec(5000),
	})
	assert.NoError(t, err)
}

func TestRecordDuesPayment_ArbitraryAmountAccepted(t *testing.T) {
	// Partial and adjusted amounts are recorded as-is; the amount is
	// not validated against the resolved price.
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusActive))

	payment, err := engine.RecordDuesPayment(context.Background(), treasury.DuesPaymentInput{
		MemberID: "m1", Month: 6, Year: 2025, Amount: dec(123),
	})
	require.NoError(t, err)
	assert.True(t, payment.Amount.Equal(dec(123)))
}

// =============================================================================
// STATUS FLAGS
// =============================================================================

func TestGetDuesStatus_LazyZeroValue(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	dir.Put(member("m1", 5, treasury.StatusActive))

	st, err := engine.GetDuesStatus(context.Background(), "m1")
	require.NoError(t, err)
	assert.Equal(t, "m1", st.MemberID)
	assert.False(t, st.Student)
	assert.False(t, st.Deactivated)
}

func TestSetStudentStatus_Toggle(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	st, err := engine.SetStudentStatus(ctx, "m1", true, treasury.StudentStatusInput{Note: "university"})
	require.NoError(t, err)
	assert.True(t, st.Student)
	require.NotNil(t, st.StudentSince)
	assert.Equal(t, today, *st.StudentSince, "since defaults to today")
	assert.Equal(t, "university", st.StudentNote)

	st, err = engine.SetStudentStatus(ctx, "m1", false, treasury.StudentStatusInput{})
	require.NoError(t, err)
	assert.False(t, st.Student)
	assert.Nil(t, st.StudentSince)
	assert.Empty(t, st.StudentNote)
}

func TestSetDuesDeactivation_Toggle(t *testing.T) {
	engine, _, dir := newTestEngine(t)
	ctx := context.Background()
	dir.Put(member("m1", 5, treasury.StatusActive))

	st, err := engine.SetDuesDeactivation(ctx, "m1", true, "long illness", "treasurer")
	require.NoError(t, err)
	assert.True(t, st.Deactivated)
	assert.Equal(t, "long illness", st.DeactivationReason)
	assert.Equal(t, "treasurer", st.DeactivatedBy)
	require.NotNil(t, st.DeactivatedAt)

	// Reactivation clears the audit fields.
	st, err = engine.SetDuesDeactivation(ctx, "m1", false, "", "")
	require.NoError(t, err)
	assert.False(t, st.Deactivated)
	assert.Empty(t, st.DeactivationReason)
	assert.Nil(t, st.DeactivatedAt)
}

func TestSetStudentStatus_UnknownMember(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.SetStudentStatus(context.Background(), "ghost", true, treasury.StudentStatusInput{})
	assert.True(t, treasury.IsNotFound(err))
}
