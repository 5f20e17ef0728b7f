// Package timeutil provides reporting-day utilities for the learning engine.
// Streaks and daily goals are counted in calendar days of a single reporting zone,
// and leagues run in ISO weeks that start on Monday.
package timeutil

import (
	"math"
	"time"
)

// zone is the reporting zone. Set it once at startup via SetZone.
var zone = time.UTC

// SetZone sets the reporting zone. A nil location resets it to UTC.
func SetZone(loc *time.Location) {
	if loc == nil {
		loc = time.UTC
	}
	zone = loc
}

// Zone returns the current reporting zone.
func Zone() *time.Location {
	return zone
}

// LoadZone loads a named location, falling back to UTC.
func LoadZone(name string) *time.Location {
	if name == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(name)
	if err != nil {
		return time.UTC
	}
	return loc
}

// ══════════════════════════════════════════════════════════════════════════════
// CLOCK
// ══════════════════════════════════════════════════════════════════════════════

// Clock abstracts the current time so time-dependent code can be tested.
type Clock interface {
	Now() time.Time
}

// SystemClock returns the wall-clock time.
type SystemClock struct{}

// Now implements Clock.
func (SystemClock) Now() time.Time { return time.Now().UTC() }

// FixedClock always returns the same instant. Advance moves it forward.
type FixedClock struct {
	T time.Time
}

// NewFixedClock creates a FixedClock at t.
func NewFixedClock(t time.Time) *FixedClock {
	return &FixedClock{T: t}
}

// Now implements Clock.
func (c *FixedClock) Now() time.Time { return c.T }

// Advance moves the clock forward by d.
func (c *FixedClock) Advance(d time.Duration) { c.T = c.T.Add(d) }

// ══════════════════════════════════════════════════════════════════════════════
// CALENDAR DAYS
// ══════════════════════════════════════════════════════════════════════════════

// Date creates a calendar date value (midnight UTC).
func Date(year int, month time.Month, day int) time.Time {
	return time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
}

// DateOf returns the calendar date of t in the reporting zone, encoded as midnight UTC.
// Two instants on the same reporting day always produce equal values.
func DateOf(t time.Time) time.Time {
	local := t.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, time.UTC)
}

// StartOfDay returns the start of the reporting day containing t.
func StartOfDay(t time.Time) time.Time {
	local := t.In(zone)
	return time.Date(local.Year(), local.Month(), local.Day(), 0, 0, 0, 0, zone)
}

// EndOfDay returns the last nanosecond of the reporting day containing t.
func EndOfDay(t time.Time) time.Time {
	return StartOfDay(t).AddDate(0, 0, 1).Add(-time.Nanosecond)
}

// StartOfWeek returns Monday 00:00 of the ISO week containing t.
func StartOfWeek(t time.Time) time.Time {
	local := t.In(zone)
	weekday := int(local.Weekday())
	if weekday == 0 {
		weekday = 7 // Sunday
	}
	return StartOfDay(local.AddDate(0, 0, -(weekday - 1)))
}

// WeekStartDate returns the Monday of the ISO week containing t as a calendar date.
func WeekStartDate(t time.Time) time.Time {
	return DateOf(StartOfWeek(t))
}

// ISOWeek returns the ISO year and week number of t in the reporting zone.
func ISOWeek(t time.Time) (year, week int) {
	return t.In(zone).ISOWeek()
}

// IsSameDay checks if two instants fall on the same reporting day.
func IsSameDay(t1, t2 time.Time) bool {
	return DateOf(t1).Equal(DateOf(t2))
}

// IsConsecutiveDay checks if t2 is the reporting day after t1.
func IsConsecutiveDay(t1, t2 time.Time) bool {
	return DateOf(t1).AddDate(0, 0, 1).Equal(DateOf(t2))
}

// DaysBetween returns the absolute number of calendar days between two instants.
func DaysBetween(t1, t2 time.Time) int {
	d := DateOf(t2).Sub(DateOf(t1))
	days := int(math.Round(d.Hours() / 24))
	if days < 0 {
		days = -days
	}
	return days
}

// CeilDays returns ceil(d / 24h), floored at zero.
func CeilDays(d time.Duration) int {
	if d <= 0 {
		return 0
	}
	day := 24 * time.Hour
	n := int(d / day)
	if d%day != 0 {
		n++
	}
	return n
}

// FormatDateStr formats a calendar date as YYYY-MM-DD.
func FormatDateStr(t time.Time) string {
	return t.Format("2006-01-02")
}

// ParseDate parses a YYYY-MM-DD calendar date.
func ParseDate(value string) (time.Time, error) {
	return time.ParseInLocation("2006-01-02", value, time.UTC)
}
