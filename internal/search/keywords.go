package search

import (
	"context"
	"regexp"
	"strings"

	"github.com/romlind/issuescout/internal/models"
)

// maxKeywords caps how many keywords a chat message turns into
const maxKeywords = 10

// Category vocabularies scanned in order; earlier categories win the
// insertion-order slots under the cap.
var keywordCategories = [][]string{
	// languages and frameworks
	{"typescript", "javascript", "python", "golang", "rust", "java", "kotlin",
		"ruby", "php", "react", "vue", "angular", "svelte", "node", "django",
		"flask", "rails", "spring", "express", "nextjs", "docker", "kubernetes"},
	// error and bug vocabulary
	{"error", "exception", "crash", "panic", "bug", "failure", "timeout",
		"deadlock", "leak", "regression", "segfault", "stacktrace"},
	// language constructs
	{"async", "await", "promise", "callback", "closure", "generic",
		"interface", "pointer", "goroutine", "mutex", "channel", "decorator"},
	// common runtime values
	{"null", "undefined", "nil", "nan", "void", "false", "true"},
	// build tooling
	{"webpack", "vite", "babel", "eslint", "npm", "yarn", "pnpm", "maven",
		"gradle", "cargo", "cmake", "bazel", "makefile"},
}

var categoryPatterns = compileCategoryPatterns()

func compileCategoryPatterns() [][]*regexp.Regexp {
	patterns := make([][]*regexp.Regexp, len(keywordCategories))
	for i, category := range keywordCategories {
		patterns[i] = make([]*regexp.Regexp, len(category))
		for j, word := range category {
			patterns[i][j] = regexp.MustCompile(`(?i)\b` + regexp.QuoteMeta(word) + `\b`)
		}
	}
	return patterns
}

// Inline code spans: back-tick delimited, 3 to 49 characters, kept
// verbatim apart from lowercasing.
var codeSpanPattern = regexp.MustCompile("`([^`]{3,49})`")

// ExtractTechnicalKeywords reduces free-form chat text to a short
// technical query: category vocabulary hits in category order, then
// inline code spans, deduplicated, lowercased and capped at ten.
func ExtractTechnicalKeywords(text string) []string {
	var keywords []string
	seen := make(map[string]bool)

	add := func(keyword string) {
		keyword = strings.ToLower(strings.TrimSpace(keyword))
		if keyword == "" || seen[keyword] || len(keywords) >= maxKeywords {
			return
		}
		seen[keyword] = true
		keywords = append(keywords, keyword)
	}

	for i, patterns := range categoryPatterns {
		for j, pattern := range patterns {
			if pattern.MatchString(text) {
				add(keywordCategories[i][j])
			}
		}
	}

	for _, match := range codeSpanPattern.FindAllStringSubmatch(text, -1) {
		add(match[1])
	}

	return keywords
}

// SearchByMessageContent turns a chat message into a query and runs it
// across the configured repositories. A message with no technical
// keywords yields no results and no error.
func (c *Coordinator) SearchByMessageContent(ctx context.Context, text string, opts MultiOptions) []models.SearchResult {
	keywords := ExtractTechnicalKeywords(text)
	if len(keywords) == 0 {
		return nil
	}
	opts.Query = strings.Join(keywords, " ")
	return c.SearchAcrossRepositories(ctx, opts)
}
