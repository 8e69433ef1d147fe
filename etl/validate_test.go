package etl

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestReportClean(t *testing.T) {
	rep := &Report{GeneratedAt: time.Now()}
	rep.add("orphans:patient", 0, 0)
	rep.add("rowcount_diff:dim_patients", 0, 0)
	assert.True(t, rep.Clean())

	rep.add("orphans:junk", 3, 0)
	assert.False(t, rep.Clean())
	assert.False(t, rep.Checks[2].Pass)
}

func TestReportStringMarksFailures(t *testing.T) {
	rep := &Report{GeneratedAt: time.Now()}
	rep.add("fact_vs_aggregate", 10, 10)
	rep.add("orphans:date", 2, 0)

	s := rep.String()
	assert.Contains(t, s, "fact_vs_aggregate")
	assert.Contains(t, s, "FAIL")
	// One line per check plus the two header lines.
	assert.Equal(t, 4, len(strings.Split(strings.TrimRight(s, "\n"), "\n")))
}
