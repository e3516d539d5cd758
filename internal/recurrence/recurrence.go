// Package recurrence expands recurring unavailability seeds into concrete dates.
package recurrence

import (
	"fmt"
	"time"
)

// Pattern enumerates supported recurrence step rules.
type Pattern string

const (
	PatternDaily   Pattern = "daily"
	PatternWeekly  Pattern = "weekly"
	PatternMonthly Pattern = "monthly"
	PatternCustom  Pattern = "custom"
)

// MaxOccurrences bounds expansion so that pathological interval/end-date
// combinations fail fast instead of producing unbounded rows.
const MaxOccurrences = 520

// Valid reports whether p is a known pattern.
func (p Pattern) Valid() bool {
	switch p {
	case PatternDaily, PatternWeekly, PatternMonthly, PatternCustom:
		return true
	}
	return false
}

// Expand generates the ordered list of concrete dates for a recurring rule,
// starting at seed (inclusive) and ending at endDate (inclusive).
//
// daily steps interval days; weekly and custom step interval weeks; monthly
// steps interval calendar months rolling the year, clamping a day-of-month
// that does not exist in the target month to that month's last day.
func Expand(seed time.Time, pattern Pattern, interval int, endDate time.Time) ([]time.Time, error) {
	if !pattern.Valid() {
		return nil, fmt.Errorf("unknown recurrence pattern %q", pattern)
	}
	if interval < 1 || interval > 52 {
		return nil, fmt.Errorf("recurrence interval must be between 1 and 52")
	}
	seed = dateOnly(seed)
	endDate = dateOnly(endDate)
	if endDate.Before(seed) {
		return nil, fmt.Errorf("recurrence end date precedes the start date")
	}

	var dates []time.Time
	current := seed
	for !current.After(endDate) {
		dates = append(dates, current)
		if len(dates) > MaxOccurrences {
			return nil, fmt.Errorf("recurrence expands beyond %d occurrences", MaxOccurrences)
		}
		next, err := step(current, seed, len(dates), pattern, interval)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return dates, nil
}

func step(current, seed time.Time, produced int, pattern Pattern, interval int) (time.Time, error) {
	switch pattern {
	case PatternDaily:
		return current.AddDate(0, 0, interval), nil
	case PatternWeekly, PatternCustom:
		return current.AddDate(0, 0, 7*interval), nil
	case PatternMonthly:
		return addMonthsClamped(seed, produced*interval), nil
	default:
		return time.Time{}, fmt.Errorf("unknown recurrence pattern %q", pattern)
	}
}

// addMonthsClamped adds months to the seed keeping the seed's day-of-month,
// clamping to the last day when the target month is shorter. Months are
// always computed from the seed so clamping never drifts the anchor day.
func addMonthsClamped(seed time.Time, months int) time.Time {
	year, month := seed.Year(), int(seed.Month())+months
	for month > 12 {
		month -= 12
		year++
	}
	day := seed.Day()
	if last := daysInMonth(year, time.Month(month)); day > last {
		day = last
	}
	return time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
}

func daysInMonth(year int, month time.Month) int {
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

func dateOnly(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
