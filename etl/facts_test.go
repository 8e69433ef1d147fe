package etl

import (
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseNumericStrictDecimal(t *testing.T) {
	for _, s := range []string{"140", "4.9", "-2.5", "+7", "0.001", "007"} {
		v := parseNumeric(s)
		if assert.NotNil(t, v, "expected %q to parse", s) {
			assert.InDelta(t, mustFloat(s), *v, 1e-9)
		}
	}
}

func TestParseNumericRejectsLooseText(t *testing.T) {
	for _, s := range []string{"", "120/80", "1,200", "1.2.3", "1e5", " 140", "140 ", "NEG", ">500", "140 mEq/L", "."} {
		assert.Nil(t, parseNumeric(s), "expected %q to stay unparsed", s)
	}
}

func mustFloat(s string) float64 {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		panic(err)
	}
	return v
}
