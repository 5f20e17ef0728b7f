package timeutil

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestDateOf_UsesReportingZone(t *testing.T) {
	defer SetZone(time.UTC)
	SetZone(time.FixedZone("UTC+5", 5*60*60))

	// 21:30 UTC is already the next day at UTC+5.
	ts := time.Date(2024, 3, 10, 21, 30, 0, 0, time.UTC)
	assert.Equal(t, Date(2024, 3, 11), DateOf(ts))
}

func TestStartOfWeek_Monday(t *testing.T) {
	sunday := time.Date(2024, 3, 17, 15, 0, 0, 0, time.UTC)
	monday := time.Date(2024, 3, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, monday, StartOfWeek(sunday))
	assert.Equal(t, monday, StartOfWeek(monday))
	assert.Equal(t, Date(2024, 3, 11), WeekStartDate(sunday))
}

func TestIsConsecutiveDay(t *testing.T) {
	a := time.Date(2024, 2, 28, 23, 0, 0, 0, time.UTC)
	b := time.Date(2024, 2, 29, 1, 0, 0, 0, time.UTC)
	assert.True(t, IsConsecutiveDay(a, b))
	assert.False(t, IsConsecutiveDay(b, a))
	assert.False(t, IsSameDay(a, b))
	assert.Equal(t, 1, DaysBetween(a, b))
	assert.Equal(t, 1, DaysBetween(b, a))
}

func TestCeilDays(t *testing.T) {
	assert.Equal(t, 0, CeilDays(-time.Hour))
	assert.Equal(t, 0, CeilDays(0))
	assert.Equal(t, 1, CeilDays(time.Minute))
	assert.Equal(t, 1, CeilDays(24*time.Hour))
	assert.Equal(t, 2, CeilDays(24*time.Hour+time.Second))
}

func TestFixedClock(t *testing.T) {
	c := NewFixedClock(Date(2024, 1, 1))
	c.Advance(90 * time.Minute)
	assert.Equal(t, time.Date(2024, 1, 1, 1, 30, 0, 0, time.UTC), c.Now())
}

func TestParseDate(t *testing.T) {
	d, err := ParseDate("2024-05-06")
	assert.NoError(t, err)
	assert.Equal(t, "2024-05-06", FormatDateStr(d))
}
