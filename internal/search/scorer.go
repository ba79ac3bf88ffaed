package search

import (
	"strings"
	"time"
	"unicode/utf8"

	"github.com/romlind/issuescout/internal/models"
)

// Per-token weights for the single-repository scorer
const (
	titleWeight  = 0.5
	bodyWeight   = 0.3
	labelWeight  = 0.2
	vectorWeight = 0.1
)

// Location weights and boosts for the multi-repository scorer
const (
	weightedTitle  = 1.0
	weightedBody   = 0.7
	weightedLabels = 0.6

	recencyBoostMax    = 0.1
	recencyWindowDays  = 365
	openStateBoost     = 0.1
	popularityBoostMax = 0.1
	popularityCap      = 10
)

// Score computes the single-repository relevance of an issue for a
// query: per token +0.5 for a title substring match, +0.3 body, +0.2
// any label, +0.1 search-vector, summed and divided by the token count.
// The result is deliberately not clamped and can exceed 1.0 when every
// token hits every field; the caller clamps before using it in ranking
// boosts. An empty query or an issue with no search vector scores 0 —
// unindexed issues are never ranked.
func Score(issue *models.Issue, query string) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 || issue.SearchVector == "" {
		return 0
	}

	title := strings.ToLower(issue.Title)
	body := strings.ToLower(issue.Body)

	var sum float64
	for _, token := range tokens {
		if strings.Contains(title, token) {
			sum += titleWeight
		}
		if strings.Contains(body, token) {
			sum += bodyWeight
		}
		if labelMatches(issue.Labels, token) {
			sum += labelWeight
		}
		if strings.Contains(issue.SearchVector, token) {
			sum += vectorWeight
		}
	}

	return sum / float64(len(tokens))
}

// MatchOptions selects which locations of an issue participate in
// weighted scoring and match reporting. Comments carries locally synced
// comment text; a token found there matches at the body location's
// weight.
type MatchOptions struct {
	IncludeBody bool
	Comments    []string
}

// ScoreWeighted computes the multi-repository relevance of an issue.
// Each token contributes the weight of its best matching location
// (title 1.0, body 0.7, labels 0.6), averaged over the tokens. Body
// text only participates when opts.IncludeBody is set; comment text in
// opts.Comments matches at the body weight. Small boosts are added for
// recent updates (up to +0.1 decaying linearly over a year), open state
// (+0.1) and engagement (up to +0.1 for ten or more reactions). The
// total is clamped to 1.0.
func ScoreWeighted(issue *models.Issue, query string, now time.Time, opts MatchOptions) float64 {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return 0
	}

	title := strings.ToLower(issue.Title)
	body := strings.ToLower(issue.Body)

	var sum float64
	for _, token := range tokens {
		switch {
		case strings.Contains(title, token):
			sum += weightedTitle
		case opts.IncludeBody && strings.Contains(body, token):
			sum += weightedBody
		case commentMatches(opts.Comments, token):
			sum += weightedBody
		case labelMatches(issue.Labels, token):
			sum += weightedLabels
		}
	}

	score := sum / float64(len(tokens))
	score += recencyBoost(issue.UpdatedAt, now)
	if issue.State == "open" {
		score += openStateBoost
	}
	score += popularityBoost(issue.Reactions)

	if score > 1.0 {
		score = 1.0
	}
	return score
}

func recencyBoost(updatedAt, now time.Time) float64 {
	days := now.Sub(updatedAt).Hours() / 24
	if days < 0 {
		days = 0
	}
	if days >= recencyWindowDays {
		return 0
	}
	return recencyBoostMax * (1 - days/recencyWindowDays)
}

func popularityBoost(reactions int) float64 {
	if reactions <= 0 {
		return 0
	}
	if reactions > popularityCap {
		reactions = popularityCap
	}
	return popularityBoostMax * float64(reactions) / float64(popularityCap)
}

func commentMatches(comments []string, token string) bool {
	for _, comment := range comments {
		if strings.Contains(strings.ToLower(comment), token) {
			return true
		}
	}
	return false
}

func labelMatches(labels []models.Label, token string) bool {
	for _, label := range labels {
		if strings.Contains(strings.ToLower(label.Name), token) {
			return true
		}
	}
	return false
}

// Snippet context window around the first matching token
const (
	snippetBefore = 50
	snippetAfter  = 100
)

// MatchDetails reports which field of the issue matched the query best
// (the one hit by the most tokens, title winning ties) and a snippet of
// that field's text around the first matching token. The locations
// considered follow opts the same way ScoreWeighted does; comment
// matches report as the body field.
func MatchDetails(issue *models.Issue, query string, opts MatchOptions) (field, snippet string) {
	tokens := strings.Fields(strings.ToLower(query))
	if len(tokens) == 0 {
		return "", ""
	}

	title := strings.ToLower(issue.Title)
	body := strings.ToLower(issue.Body)

	var titleHits, bodyHits, labelHits int
	for _, token := range tokens {
		if strings.Contains(title, token) {
			titleHits++
		}
		switch {
		case opts.IncludeBody && strings.Contains(body, token):
			bodyHits++
		case commentMatches(opts.Comments, token):
			bodyHits++
		}
		if labelMatches(issue.Labels, token) {
			labelHits++
		}
	}

	switch {
	case titleHits >= bodyHits && titleHits >= labelHits && titleHits > 0:
		return models.MatchFieldTitle, extractSnippet(issue.Title, tokens)
	case bodyHits >= labelHits && bodyHits > 0:
		if opts.IncludeBody {
			if s := extractSnippet(issue.Body, tokens); s != "" {
				return models.MatchFieldBody, s
			}
		}
		for _, comment := range opts.Comments {
			if s := extractSnippet(comment, tokens); s != "" {
				return models.MatchFieldBody, s
			}
		}
		return models.MatchFieldBody, ""
	case labelHits > 0:
		names := make([]string, len(issue.Labels))
		for i, label := range issue.Labels {
			names[i] = label.Name
		}
		return models.MatchFieldLabels, strings.Join(names, ", ")
	}
	return "", ""
}

// extractSnippet cuts a window around the first token occurrence in
// text: 50 characters of leading context, 100 trailing, with ellipses
// marking truncation. Window bounds snap outward to rune boundaries so
// multi-byte text is never cut mid-rune.
func extractSnippet(text string, tokens []string) string {
	lower := strings.ToLower(text)
	pos := -1
	for _, token := range tokens {
		if idx := strings.Index(lower, token); idx >= 0 && (pos < 0 || idx < pos) {
			pos = idx
		}
	}
	if pos < 0 {
		return ""
	}

	start := pos - snippetBefore
	if start < 0 {
		start = 0
	}
	for start > 0 && !utf8.RuneStart(text[start]) {
		start--
	}
	end := pos + snippetAfter
	if end > len(text) {
		end = len(text)
	}
	for end < len(text) && !utf8.RuneStart(text[end]) {
		end++
	}

	snippet := text[start:end]
	if start > 0 {
		snippet = "..." + snippet
	}
	if end < len(text) {
		snippet += "..."
	}
	return snippet
}
