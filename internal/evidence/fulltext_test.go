package evidence

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAsciiFold(t *testing.T) {
	assert.Equal(t, "cafe resume", asciiFold("Café Résumé"))
	assert.Equal(t, "naive", asciiFold("naïve"))
}

func TestEdgeNGrams(t *testing.T) {
	grams := edgeNGrams("brand", 3)
	assert.Equal(t, []string{"bra", "bran", "brand"}, grams)
}

func TestEdgeNGramsShorterThanN(t *testing.T) {
	assert.Equal(t, []string{"ab"}, edgeNGrams("ab", 3))
}

func TestFullTextScorePartialMatch(t *testing.T) {
	// "bra" should partially match "brand guidelines" via edge-3-grams on the name.
	score := fullTextScore("bra", "brand guidelines", "")
	assert.Greater(t, score, 0.0)
}

func TestFullTextScoreAccentInsensitive(t *testing.T) {
	score := fullTextScore("resume", "Résumé 2026", "")
	assert.Greater(t, score, 0.0)
}

func TestFullTextScoreBodyMatch(t *testing.T) {
	score := fullTextScore("quarterly revenue", "slide-3", "Our quarterly revenue grew 12% year over year.")
	assert.Greater(t, score, 0.0)
}

func TestFullTextScoreNoMatch(t *testing.T) {
	score := fullTextScore("nonexistent topic zzz", "brand guidelines", "unrelated content entirely")
	assert.Zero(t, score)
}
