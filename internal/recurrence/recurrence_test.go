package recurrence

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func day(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func TestExpandDaily(t *testing.T) {
	dates, err := Expand(day(2025, 1, 1), PatternDaily, 1, day(2025, 1, 4))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2025, 1, 1), day(2025, 1, 2), day(2025, 1, 3), day(2025, 1, 4),
	}, dates)
}

func TestExpandBiweekly(t *testing.T) {
	dates, err := Expand(day(2025, 1, 6), PatternWeekly, 2, day(2025, 2, 10))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2025, 1, 6), day(2025, 1, 20), day(2025, 2, 3),
	}, dates)
}

func TestExpandCustomStepsWeeks(t *testing.T) {
	dates, err := Expand(day(2025, 3, 3), PatternCustom, 3, day(2025, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2025, 3, 3), day(2025, 3, 24), day(2025, 4, 14),
	}, dates)
}

func TestExpandMonthlyClampsShortMonths(t *testing.T) {
	dates, err := Expand(day(2025, 1, 31), PatternMonthly, 1, day(2025, 4, 30))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 31), day(2025, 4, 30),
	}, dates)
}

func TestExpandMonthlyAnchorDoesNotDrift(t *testing.T) {
	// After clamping into February the series returns to the 31st, because
	// every step is computed from the seed rather than the previous date.
	dates, err := Expand(day(2024, 12, 31), PatternMonthly, 1, day(2025, 3, 31))
	require.NoError(t, err)
	assert.Equal(t, []time.Time{
		day(2024, 12, 31), day(2025, 1, 31), day(2025, 2, 28), day(2025, 3, 31),
	}, dates)
}

func TestExpandSingleOccurrence(t *testing.T) {
	seed := day(2025, 5, 10)
	dates, err := Expand(seed, PatternWeekly, 1, seed)
	require.NoError(t, err)
	assert.Equal(t, []time.Time{seed}, dates)
}

func TestExpandValidation(t *testing.T) {
	_, err := Expand(day(2025, 1, 1), Pattern("yearly"), 1, day(2025, 2, 1))
	assert.ErrorContains(t, err, "unknown recurrence pattern")

	_, err = Expand(day(2025, 1, 1), PatternDaily, 0, day(2025, 2, 1))
	assert.ErrorContains(t, err, "between 1 and 52")

	_, err = Expand(day(2025, 1, 1), PatternDaily, 53, day(2025, 2, 1))
	assert.ErrorContains(t, err, "between 1 and 52")

	_, err = Expand(day(2025, 2, 1), PatternDaily, 1, day(2025, 1, 1))
	assert.ErrorContains(t, err, "precedes")
}

func TestExpandCapsOccurrences(t *testing.T) {
	_, err := Expand(day(2020, 1, 1), PatternDaily, 1, day(2030, 1, 1))
	assert.ErrorContains(t, err, "occurrences")
}
