package warehouse

import "time"

// CalendarFor derives the date-dimension attributes for one observed event
// timestamp. Weekday numbering is ISO style: Monday=1 .. Sunday=7.
func CalendarFor(t time.Time) DateRow {
	wd := int(t.Weekday())
	if wd == 0 {
		wd = 7
	}
	return DateRow{
		EventDate:     t,
		Month:         int(t.Month()),
		Year:          t.Year(),
		WeekdayNumber: wd,
		WeekdayName:   t.Weekday().String(),
		MonthName:     t.Month().String(),
		IsWeekend:     wd >= 6,
	}
}
