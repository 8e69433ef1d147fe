package warehouse

import "time"

// Interval is a possibly open time interval. A nil bound means the source
// did not record that side; it is treated as unbounded until the row is
// written, at which point Bounds substitutes the sentinel dates.
type Interval struct {
	Start *time.Time
	End   *time.Time
}

// Contains reports whether t falls inside the interval, bounds inclusive.
// Open sides always contain.
func (iv Interval) Contains(t time.Time) bool {
	if iv.Start != nil && t.Before(*iv.Start) {
		return false
	}
	if iv.End != nil && t.After(*iv.End) {
		return false
	}
	return true
}

// Bounds resolves the interval to storage values, substituting the far-past
// and far-future sentinels for open sides. Sentinels exist only at this
// boundary; in-memory logic keeps the open representation.
func (iv Interval) Bounds() (time.Time, time.Time) {
	start, end := SentinelPast, SentinelFuture
	if iv.Start != nil {
		start = *iv.Start
	}
	if iv.End != nil {
		end = *iv.End
	}
	return start, end
}
