package timeslot

import (
	"database/sql/driver"
	"fmt"
	"regexp"
	"time"
)

var timePattern = regexp.MustCompile(`^([01]\d|2[0-3]):([0-5]\d)$`)

// TimeOfDay is a wall-clock minute within a day, mapped to HH:MM strings in
// JSON and to TIME columns in Postgres.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// Parse converts an HH:MM 24-hour string into a TimeOfDay.
func Parse(value string) (TimeOfDay, error) {
	m := timePattern.FindStringSubmatch(value)
	if m == nil {
		return TimeOfDay{}, fmt.Errorf("invalid time %q, expected HH:MM in 24-hour format", value)
	}
	var t TimeOfDay
	fmt.Sscanf(m[1], "%d", &t.Hour)
	fmt.Sscanf(m[2], "%d", &t.Minute)
	return t, nil
}

// MustParse parses value and panics on failure. Intended for tests and constants.
func MustParse(value string) TimeOfDay {
	t, err := Parse(value)
	if err != nil {
		panic(err)
	}
	return t
}

// String renders the canonical HH:MM form.
func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes elapsed since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

// Before reports whether t is strictly earlier than other.
func (t TimeOfDay) Before(other TimeOfDay) bool {
	return t.Minutes() < other.Minutes()
}

// After reports whether t is strictly later than other.
func (t TimeOfDay) After(other TimeOfDay) bool {
	return t.Minutes() > other.Minutes()
}

// MarshalJSON encodes the time as an HH:MM string.
func (t TimeOfDay) MarshalJSON() ([]byte, error) {
	return []byte(`"` + t.String() + `"`), nil
}

// UnmarshalJSON decodes an HH:MM string.
func (t *TimeOfDay) UnmarshalJSON(data []byte) error {
	if len(data) < 2 || data[0] != '"' || data[len(data)-1] != '"' {
		return fmt.Errorf("invalid time literal %s", data)
	}
	parsed, err := Parse(string(data[1 : len(data)-1]))
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Value implements driver.Valuer storing HH:MM:SS for TIME columns.
func (t TimeOfDay) Value() (driver.Value, error) {
	return fmt.Sprintf("%02d:%02d:00", t.Hour, t.Minute), nil
}

// Scan implements sql.Scanner accepting TIME column representations.
func (t *TimeOfDay) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		*t = TimeOfDay{}
		return nil
	case time.Time:
		t.Hour, t.Minute = v.Hour(), v.Minute()
		return nil
	case []byte:
		return t.scanString(string(v))
	case string:
		return t.scanString(v)
	default:
		return fmt.Errorf("cannot scan %T into TimeOfDay", src)
	}
}

func (t *TimeOfDay) scanString(value string) error {
	if len(value) > 5 {
		value = value[:5]
	}
	parsed, err := Parse(value)
	if err != nil {
		return err
	}
	*t = parsed
	return nil
}

// Overlaps reports whether [aStart, aEnd) intersects [bStart, bEnd).
// Slots that merely touch at an edge do not overlap.
func Overlaps(aStart, aEnd, bStart, bEnd TimeOfDay) bool {
	return aStart.Minutes() < bEnd.Minutes() && aEnd.Minutes() > bStart.Minutes()
}

// Covers reports whether the [start, end] window fully contains [reqStart, reqEnd].
func Covers(start, end, reqStart, reqEnd TimeOfDay) bool {
	return start.Minutes() <= reqStart.Minutes() && end.Minutes() >= reqEnd.Minutes()
}

// DateWithinRange reports whether d falls inside the optional [start, end]
// date bounds, comparing calendar days only.
func DateWithinRange(d time.Time, start, end *time.Time) bool {
	day := truncateDay(d)
	if start != nil && day.Before(truncateDay(*start)) {
		return false
	}
	if end != nil && day.After(truncateDay(*end)) {
		return false
	}
	return true
}

// SameDay reports whether two instants fall on the same calendar day in UTC.
func SameDay(a, b time.Time) bool {
	return truncateDay(a).Equal(truncateDay(b))
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
