package etl

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMatchesAnyCaseInsensitiveSubstring(t *testing.T) {
	assert.True(t, matchesAny("Sodium", labConceptKeywords))
	assert.True(t, matchesAny("SODIUM, WHOLE BLOOD", labConceptKeywords))
	assert.True(t, matchesAny("Free Calcium", labConceptKeywords))
	assert.True(t, matchesAny("Anion Gap", labConceptKeywords))
	// Substring match: "ph" also selects pH-adjacent items.
	assert.True(t, matchesAny("pH", labConceptKeywords))

	assert.False(t, matchesAny("Hematocrit", labConceptKeywords))
	assert.False(t, matchesAny("White Blood Cells", labConceptKeywords))
}

func TestMatchesAnyDiagnosisTitles(t *testing.T) {
	assert.True(t, matchesAny("Hyposmolality and/or hyponatremia", diagnosisConceptKeywords))
	assert.True(t, matchesAny("Acidosis", diagnosisConceptKeywords))
	assert.True(t, matchesAny("Fluid overload, unspecified", diagnosisConceptKeywords))
	assert.False(t, matchesAny("Unspecified essential hypertension", diagnosisConceptKeywords))
}

func TestNormalizeName(t *testing.T) {
	assert.Equal(t, "sodium", normalizeName("  Sodium "))
	assert.Equal(t, "anion gap", normalizeName("Anion Gap"))
	assert.Equal(t, "", normalizeName("   "))
}

func TestConceptIndexResolution(t *testing.T) {
	ix := &conceptIndex{
		labByCode:  map[int64]int64{50983: 1},
		diagByCode: map[string]int64{"2761": 2},
		labByName:  map[string]int64{"sodium": 1},
		unknownID:  3,
	}

	if id := ix.labConcept(50983); assert.NotNil(t, id) {
		assert.Equal(t, int64(1), *id)
	}
	assert.Nil(t, ix.labConcept(51221))

	if id := ix.diagnosisConcept("2761"); assert.NotNil(t, id) {
		assert.Equal(t, int64(2), *id)
	}
	assert.Nil(t, ix.diagnosisConcept("4019"))

	if id := ix.labConceptByName(" SODIUM "); assert.NotNil(t, id) {
		assert.Equal(t, int64(1), *id)
	}
	assert.Nil(t, ix.labConceptByName("Blood Pressure"))
}
