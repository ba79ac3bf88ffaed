package search

import (
	"strings"
	"unicode"
)

// minTokenLength drops noise tokens ("a", "is", "to") from vectors and
// scoring without a stop-word list.
const minTokenLength = 3

// BuildSearchVector normalizes an issue's text into the token string
// stored alongside it: title, body and label names lowercased,
// punctuation collapsed to spaces, tokens shorter than three characters
// dropped, remainder joined by single spaces. Pure; the sync engine
// calls it on every upsert so stored vectors are never stale.
func BuildSearchVector(title, body string, labels []string) string {
	var parts []string
	parts = append(parts, title, body)
	parts = append(parts, labels...)

	tokens := Tokenize(strings.Join(parts, " "))
	return strings.Join(tokens, " ")
}

// Tokenize lowercases text, treats any non-alphanumeric rune as a
// separator and drops tokens shorter than minTokenLength.
func Tokenize(text string) []string {
	normalized := strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			return unicode.ToLower(r)
		}
		return ' '
	}, text)

	var tokens []string
	for _, token := range strings.Fields(normalized) {
		if len(token) >= minTokenLength {
			tokens = append(tokens, token)
		}
	}
	return tokens
}
