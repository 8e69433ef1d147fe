package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestCalendarForWeekday(t *testing.T) {
	// 2180-05-02 falls on a Tuesday.
	d := CalendarFor(time.Date(2180, 5, 2, 6, 0, 0, 0, time.UTC))

	assert.Equal(t, 5, d.Month)
	assert.Equal(t, 2180, d.Year)
	assert.Equal(t, 2, d.WeekdayNumber)
	assert.Equal(t, "Tuesday", d.WeekdayName)
	assert.Equal(t, "May", d.MonthName)
	assert.False(t, d.IsWeekend)
}

func TestCalendarForWeekend(t *testing.T) {
	sat := CalendarFor(time.Date(2024, 6, 1, 12, 30, 0, 0, time.UTC))
	assert.Equal(t, 6, sat.WeekdayNumber)
	assert.True(t, sat.IsWeekend)

	sun := CalendarFor(time.Date(2024, 6, 2, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 7, sun.WeekdayNumber)
	assert.Equal(t, "Sunday", sun.WeekdayName)
	assert.True(t, sun.IsWeekend)

	mon := CalendarFor(time.Date(2024, 6, 3, 0, 0, 0, 0, time.UTC))
	assert.Equal(t, 1, mon.WeekdayNumber)
	assert.False(t, mon.IsWeekend)
}

func TestCalendarForKeepsExactTimestamp(t *testing.T) {
	ts := time.Date(2180, 5, 2, 6, 15, 33, 0, time.UTC)
	d := CalendarFor(ts)
	assert.True(t, d.EventDate.Equal(ts))
}
