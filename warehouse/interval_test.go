package warehouse

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func ts(s string) time.Time {
	t, err := time.Parse("2006-01-02 15:04", s)
	if err != nil {
		panic(err)
	}
	return t.UTC()
}

func TestIntervalContainsInclusiveBounds(t *testing.T) {
	start := ts("2180-05-01 10:30")
	end := ts("2180-05-04 09:00")
	iv := Interval{Start: &start, End: &end}

	assert.True(t, iv.Contains(start))
	assert.True(t, iv.Contains(end))
	assert.True(t, iv.Contains(ts("2180-05-02 06:00")))
	assert.False(t, iv.Contains(start.Add(-time.Second)))
	assert.False(t, iv.Contains(end.Add(time.Second)))
}

func TestIntervalOpenSidesContain(t *testing.T) {
	start := ts("2175-03-02 09:00")

	openEnd := Interval{Start: &start}
	assert.True(t, openEnd.Contains(ts("2199-01-01 00:00")))
	assert.False(t, openEnd.Contains(ts("2175-03-02 08:59")))

	fullyOpen := Interval{}
	assert.True(t, fullyOpen.Contains(SentinelPast))
	assert.True(t, fullyOpen.Contains(SentinelFuture))
}

func TestIntervalBoundsSubstituteSentinels(t *testing.T) {
	start := ts("2180-05-01 10:30")

	lo, hi := Interval{Start: &start}.Bounds()
	assert.Equal(t, start, lo)
	assert.Equal(t, SentinelFuture, hi)

	lo, hi = Interval{}.Bounds()
	assert.Equal(t, SentinelPast, lo)
	assert.Equal(t, SentinelFuture, hi)

	// A fully specified interval passes through untouched.
	end := ts("2180-05-04 09:00")
	lo, hi = Interval{Start: &start, End: &end}.Bounds()
	assert.Equal(t, start, lo)
	assert.Equal(t, end, hi)
}

func TestProviderStayStay(t *testing.T) {
	in := ts("2180-05-01 10:30")
	out := ts("2180-05-04 09:00")
	p := ProviderStay{ProviderID: 1, SubjectID: 101, In: in, Out: out}

	assert.True(t, p.Stay().Contains(ts("2180-05-02 00:00")))
	assert.False(t, p.Stay().Contains(ts("2180-05-05 00:00")))
}
