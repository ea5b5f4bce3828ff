package treasury_test

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/brigade/treasury-engine/treasury"
)

// =============================================================================
// CYCLE CREATION
// =============================================================================

func TestCreateCycle_DefaultsDatesAndPrices(t *testing.T) {
	// GIVEN: No explicit dates or prices
	// WHEN: The 2025 cycle is created
	// THEN: Dates default to the calendar year and prices snapshot the
	//       current configuration

	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, _, err := engine.UpdatePricing(ctx, dec(6000), dec(3500), "treasurer")
	require.NoError(t, err)

	cycle, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)

	assert.Equal(t, time.Date(2025, time.January, 1, 0, 0, 0, 0, time.UTC), cycle.StartDate)
	assert.Equal(t, time.Date(2025, time.December, 31, 0, 0, 0, 0, time.UTC), cycle.EndDate)
	assert.True(t, cycle.RegularPrice.Equal(dec(6000)))
	assert.True(t, cycle.StudentPrice.Equal(dec(3500)))
	assert.True(t, cycle.Active)
	assert.False(t, cycle.Closed)
}

func TestCreateCycle_DuplicateYear_Rejected(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025})
	require.NoError(t, err)

	_, err = engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025})
	assert.ErrorIs(t, err, treasury.ErrCycleExists)
}

func TestCreateCycle_YearOutOfRange(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.CreateCycle(context.Background(), treasury.CycleInput{Year: 1500})
	assert.ErrorIs(t, err, treasury.ErrInvalidPeriod)
}

func TestCreateCycle_ActivateDeactivatesOthers(t *testing.T) {
	// At most one cycle is active at a time.
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2024, Activate: true})
	require.NoError(t, err)
	_, err = engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)

	old, err := engine.GetCycle(ctx, 2024)
	require.NoError(t, err)
	assert.False(t, old.Active)

	current, err := engine.GetCycle(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, current.Active)
}

func TestCreateCycle_WithoutActivate_OthersUntouched(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2024, Activate: true})
	require.NoError(t, err)
	_, err = engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025})
	require.NoError(t, err)

	old, err := engine.GetCycle(ctx, 2024)
	require.NoError(t, err)
	assert.True(t, old.Active)
}

// =============================================================================
// LIFECYCLE TRANSITIONS
// =============================================================================

func TestActivateCycle_SwitchesActive(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2024, Activate: true})
	require.NoError(t, err)
	_, err = engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025})
	require.NoError(t, err)

	cycle, err := engine.ActivateCycle(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, cycle.Active)

	old, err := engine.GetCycle(ctx, 2024)
	require.NoError(t, err)
	assert.False(t, old.Active)
}

func TestActivateCycle_Idempotent(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)

	cycle, err := engine.ActivateCycle(ctx, 2025)
	require.NoError(t, err)
	assert.True(t, cycle.Active)
}

func TestActivateCycle_MissingYear(t *testing.T) {
	engine, _, _ := newTestEngine(t)

	_, err := engine.ActivateCycle(context.Background(), 2030)
	assert.True(t, treasury.IsNotFound(err))
}

func TestCloseCycle_StampsAndDeactivates(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)

	cycle, err := engine.CloseCycle(ctx, 2025, "treasurer")
	require.NoError(t, err)
	assert.True(t, cycle.Closed)
	assert.False(t, cycle.Active, "closing also deactivates")
	assert.Equal(t, "treasurer", cycle.ClosedBy)
	require.NotNil(t, cycle.ClosedAt)
	assert.Equal(t, today, *cycle.ClosedAt)
}

func TestCloseCycle_AlreadyClosed(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025})
	require.NoError(t, err)
	_, err = engine.CloseCycle(ctx, 2025, "treasurer")
	require.NoError(t, err)

	_, err = engine.CloseCycle(ctx, 2025, "treasurer")
	assert.ErrorIs(t, err, treasury.ErrAlreadyClosed)
}

func TestReopenCycle_ComesBackInactive(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: 2025, Activate: true})
	require.NoError(t, err)
	_, err = engine.CloseCycle(ctx, 2025, "treasurer")
	require.NoError(t, err)

	cycle, err := engine.ReopenCycle(ctx, 2025)
	require.NoError(t, err)
	assert.False(t, cycle.Closed)
	assert.Nil(t, cycle.ClosedAt)
	assert.Empty(t, cycle.ClosedBy)
	assert.False(t, cycle.Active, "reopening does not re-activate")
}

func TestListCycles_NewestFirst(t *testing.T) {
	engine, _, _ := newTestEngine(t)
	ctx := context.Background()

	for _, year := range []int{2023, 2025, 2024} {
		_, err := engine.CreateCycle(ctx, treasury.CycleInput{Year: year})
		require.NoError(t, err)
	}

	cycles, err := engine.ListCycles(ctx)
	require.NoError(t, err)
	require.Len(t, cycles, 3)
	assert.Equal(t, 2025, cycles[0].Year)
	assert.Equal(t, 2024, cycles[1].Year)
	assert.Equal(t, 2023, cycles[2].Year)
}
