package search

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestExtractTechnicalKeywordsBasics(t *testing.T) {
	keywords := ExtractTechnicalKeywords(
		"My TypeScript app throws an Error: undefined is not a function after the webpack upgrade")

	assert.Contains(t, keywords, "typescript")
	assert.Contains(t, keywords, "error")
	assert.Contains(t, keywords, "undefined")
	assert.Contains(t, keywords, "webpack")
}

func TestExtractTechnicalKeywordsLowercaseAndDeduped(t *testing.T) {
	keywords := ExtractTechnicalKeywords("Error ERROR error ErRoR in Python and PYTHON")

	assert.Equal(t, 1, count(keywords, "error"))
	assert.Equal(t, 1, count(keywords, "python"))
	for _, keyword := range keywords {
		assert.Equal(t, strings.ToLower(keyword), keyword)
	}
}

func TestExtractTechnicalKeywordsCap(t *testing.T) {
	text := "typescript javascript python golang rust java kotlin ruby php react vue angular error crash panic"
	keywords := ExtractTechnicalKeywords(text)

	assert.LessOrEqual(t, len(keywords), 10)
	assert.Len(t, keywords, 10)
}

func TestExtractTechnicalKeywordsCategoryOrder(t *testing.T) {
	// error vocabulary comes after languages regardless of text order
	keywords := ExtractTechnicalKeywords("a crash in my python script")
	assert.Equal(t, []string{"python", "crash"}, keywords)
}

func TestExtractTechnicalKeywordsCodeSpans(t *testing.T) {
	keywords := ExtractTechnicalKeywords("It blows up in `HandleRequest` when `ctx.Done()` fires")

	assert.Contains(t, keywords, "handlerequest")
	assert.Contains(t, keywords, "ctx.done()")
}

func TestExtractTechnicalKeywordsCodeSpanLengthBounds(t *testing.T) {
	short := "`ab`"                                          // 2 chars, too short
	long := "`" + strings.Repeat("x", 50) + "`"              // 50 chars, too long
	edge := "`" + strings.Repeat("y", 49) + "`"              // 49 chars, kept
	keywords := ExtractTechnicalKeywords(short + " " + long + " " + edge)

	assert.NotContains(t, keywords, "ab")
	assert.NotContains(t, keywords, strings.Repeat("x", 50))
	assert.Contains(t, keywords, strings.Repeat("y", 49))
}

func TestExtractTechnicalKeywordsWordBoundaries(t *testing.T) {
	// "gobug" must not match "bug", "classy" must not match "class"
	keywords := ExtractTechnicalKeywords("the gobug tool is classy")
	assert.Empty(t, keywords)
}

func TestExtractTechnicalKeywordsEmpty(t *testing.T) {
	assert.Empty(t, ExtractTechnicalKeywords(""))
	assert.Empty(t, ExtractTechnicalKeywords("nothing technical here at all"))
}

func count(list []string, want string) int {
	n := 0
	for _, item := range list {
		if item == want {
			n++
		}
	}
	return n
}
