package evidence

import (
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// asciiFold lowercases and strips diacritics via NFD decomposition plus
// combining-mark removal (§4.3 "an analyzer that lowercases, removes
// accents (ASCII fold)").
func asciiFold(s string) string {
	decomposed := norm.NFD.String(strings.ToLower(s))
	var sb strings.Builder
	for _, r := range decomposed {
		if unicode.Is(unicode.Mn, r) {
			continue
		}
		sb.WriteRune(r)
	}
	return sb.String()
}

// wordTokens splits on non-alphanumeric runs.
func wordTokens(s string) []string {
	return strings.FieldsFunc(s, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

const edgeGramSize = 3

// edgeNGrams produces edge n-grams (prefixes of length >= n) for partial
// word matching, per §4.3 "tokenizes both word-level and edge-3-gram on
// the name field to catch partial matches".
func edgeNGrams(word string, n int) []string {
	runes := []rune(word)
	if len(runes) < n {
		return []string{word}
	}
	grams := make([]string, 0, len(runes)-n+1)
	for i := n; i <= len(runes); i++ {
		grams = append(grams, string(runes[:i]))
	}
	return grams
}

// analyze projects a field into the token set used for full-text scoring:
// folded words plus their edge-3-grams.
func analyze(s string) map[string]int {
	folded := asciiFold(s)
	tokens := make(map[string]int)
	for _, w := range wordTokens(folded) {
		tokens[w]++
		for _, g := range edgeNGrams(w, edgeGramSize) {
			tokens[g]++
		}
	}
	return tokens
}

// fullTextScore scores a chunk's name field against a query using token
// overlap — the §4.3 fallback when no embedder is configured. The text
// body is also searched directly for exact substring matches, since the
// name-only ngram index would otherwise miss content matches entirely
// (§8 scenario S2 requires a query to find a chunk by its body text).
func fullTextScore(query, name, text string) float64 {
	queryTokens := analyze(query)
	nameTokens := analyze(name)

	overlap := 0.0
	for tok, qCount := range queryTokens {
		if nCount, ok := nameTokens[tok]; ok {
			overlap += float64(min(qCount, nCount))
		}
	}

	foldedQuery := asciiFold(query)
	foldedText := asciiFold(text)
	if foldedQuery != "" && strings.Contains(foldedText, foldedQuery) {
		overlap += float64(len(wordTokens(foldedQuery))) * 2
	} else {
		for _, w := range wordTokens(foldedQuery) {
			if len(w) >= edgeGramSize && strings.Contains(foldedText, w) {
				overlap += 1
			}
		}
	}

	return overlap
}

func min(a, b int) int {
	if a < b {
		return a
	}
	return b
}
