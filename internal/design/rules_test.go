package design

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestLookupExactMatch(t *testing.T) {
	r, ok := Lookup("brand", "shapes")
	assert.True(t, ok)
	assert.Equal(t, "shapes", r.Pattern)
	assert.NotEmpty(t, r.Guidelines)
}

func TestLookupFallsBackToThemeGradient(t *testing.T) {
	r, ok := Lookup("brand", "confetti")
	assert.True(t, ok)
	assert.Equal(t, "gradient", r.Pattern)
}

func TestLookupUnknownThemeFails(t *testing.T) {
	_, ok := Lookup("neon", "gradient")
	assert.False(t, ok)
}
