package warehouse

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func strp(s string) *string { return &s }

func TestJunkKeyEqualNullSafe(t *testing.T) {
	assert.True(t, JunkKey{SourceType: SourceLab}.Equal(JunkKey{SourceType: SourceLab}))
	assert.True(t,
		JunkKey{SourceType: SourceLab, ValueUOM: strp("mEq/L"), CareUnit: strp("MICU")}.
			Equal(JunkKey{SourceType: SourceLab, ValueUOM: strp("mEq/L"), CareUnit: strp("MICU")}))

	// Absent vs present never compares equal.
	assert.False(t,
		JunkKey{SourceType: SourceLab, ValueUOM: strp("mEq/L")}.
			Equal(JunkKey{SourceType: SourceLab}))
	assert.False(t,
		JunkKey{SourceType: SourceLab}.
			Equal(JunkKey{SourceType: SourceLab, CareUnit: strp("MICU")}))

	// An absent field is not the same as an empty string.
	assert.False(t,
		JunkKey{SourceType: SourceOMR, ValueUOM: strp("")}.
			Equal(JunkKey{SourceType: SourceOMR}))

	assert.False(t, JunkKey{SourceType: SourceLab}.Equal(JunkKey{SourceType: SourceDiagnosis}))
}

func TestJunkKeyCacheKeyDistinguishesAbsence(t *testing.T) {
	keys := []JunkKey{
		{SourceType: SourceLab},
		{SourceType: SourceLab, ValueUOM: strp("")},
		{SourceType: SourceLab, ValueUOM: strp("mEq/L")},
		{SourceType: SourceLab, CareUnit: strp("mEq/L")},
		{SourceType: SourceLab, ValueUOM: strp("mEq/L"), CareUnit: strp("MICU")},
		{SourceType: SourceDiagnosis},
	}
	seen := make(map[string]bool)
	for _, k := range keys {
		ck := k.CacheKey()
		assert.False(t, seen[ck], "cache key collision for %+v", k)
		seen[ck] = true
	}
}
