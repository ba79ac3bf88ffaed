package search

import (
	"context"
	"sort"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/models"
	"github.com/romlind/issuescout/internal/tasks"
)

// Per-repository searches run with the caller's threshold lowered by
// this factor so local under-filtering cannot starve the global
// ranking; the final cut uses the caller's threshold.
const perRepoThresholdFactor = 0.8

// Two scores closer than this are considered ties and ordered by
// repository priority instead of rounding noise.
const tieBreakBand = 0.1

// MultiOptions controls a multi-repository search
type MultiOptions struct {
	Query        string
	Repositories []string // explicit targets; empty means all enabled
	State        string
	Limit        int
	MinRelevance float64
	UseCache     bool

	// IncludeBody lets issue bodies participate in the weighted
	// re-scoring and snippets; without it matching is restricted to
	// titles and labels.
	IncludeBody bool
	// IncludeComments folds locally synced comment text into matching
	// at the body location's weight.
	IncludeComments bool
}

// RepositorySearcher is the per-repository search the coordinator fans
// out to. *Service satisfies it; tests substitute fakes.
type RepositorySearcher interface {
	Search(ctx context.Context, repository, query string, opts Options) ([]*models.Issue, error)
}

// Coordinator fans a query out across configured repositories, merges
// the per-repository results and re-ranks them.
type Coordinator struct {
	store  *db.DB
	single RepositorySearcher
	runner *tasks.Runner
	log    zerolog.Logger
	now    func() time.Time
}

// NewCoordinator creates a multi-repository search coordinator. The
// task runner receives telemetry writes; it may be nil to disable them.
func NewCoordinator(store *db.DB, single RepositorySearcher, runner *tasks.Runner, log zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:  store,
		single: single,
		runner: runner,
		log:    log,
		now:    time.Now,
	}
}

// SearchAcrossRepositories runs the query against every target
// repository concurrently and returns one merged, ranked list. A
// failing repository is logged and contributes zero results; the
// operation itself never fails because one source did. Results are
// ordered by score descending, with repository priority breaking ties
// whenever two scores differ by less than 0.1.
func (c *Coordinator) SearchAcrossRepositories(ctx context.Context, opts MultiOptions) []models.SearchResult {
	started := c.now()

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	targets := c.resolveTargets(ctx, opts.Repositories)
	if len(targets) == 0 {
		return nil
	}

	perRepo := make([][]models.SearchResult, len(targets))
	threshold := opts.MinRelevance * perRepoThresholdFactor

	g, gctx := errgroup.WithContext(ctx)
	for i, target := range targets {
		i, target := i, target
		g.Go(func() error {
			results, err := c.searchOne(gctx, target, opts.Query, threshold, opts)
			if err != nil {
				// partial-failure tolerance: log and move on
				c.log.Warn().Err(err).Str("repository", target.FullName).Msg("repository search failed")
				return nil
			}
			perRepo[i] = results
			return nil
		})
	}
	// goroutines never return errors; Wait is a pure barrier
	_ = g.Wait()

	var merged []models.SearchResult
	for _, results := range perRepo {
		merged = append(merged, results...)
	}

	sortMerged(merged)

	if len(merged) > opts.Limit {
		merged = merged[:opts.Limit]
	}

	if c.runner != nil {
		ev := &models.SearchEvent{
			Query:        opts.Query,
			Repositories: len(targets),
			Results:      len(merged),
			Duration:     c.now().Sub(started),
		}
		c.runner.Enqueue(func(taskCtx context.Context) error {
			return c.store.RecordSearchEvent(taskCtx, ev)
		})
	}

	return merged
}

// resolveTargets maps the explicit repository list to configs, or loads
// every enabled config when the list is empty. Unknown or disabled
// explicit targets are logged and skipped.
func (c *Coordinator) resolveTargets(ctx context.Context, repositories []string) []*models.RepositoryConfig {
	if len(repositories) == 0 {
		configs, err := c.store.ListRepositoryConfigs(ctx, true)
		if err != nil {
			c.log.Error().Err(err).Msg("failed to list enabled repositories")
			return nil
		}
		return configs
	}

	var targets []*models.RepositoryConfig
	for _, repository := range repositories {
		cfg, err := c.store.GetRepositoryConfig(ctx, repository)
		if err != nil {
			c.log.Warn().Err(err).Str("repository", repository).Msg("failed to resolve repository")
			continue
		}
		if cfg == nil || !cfg.Enabled {
			c.log.Warn().Str("repository", repository).Msg("repository not configured or disabled, skipping")
			continue
		}
		targets = append(targets, cfg)
	}
	return targets
}

// searchOne fetches one repository's candidates through the
// single-repository search and re-scores them with the weighted scorer.
func (c *Coordinator) searchOne(ctx context.Context, target *models.RepositoryConfig, query string, threshold float64, opts MultiOptions) ([]models.SearchResult, error) {
	issues, err := c.single.Search(ctx, target.FullName, query, Options{
		// fetch generously; the global merge applies the real limit
		Limit:        opts.Limit * 2,
		State:        opts.State,
		MinRelevance: threshold,
		UseCache:     opts.UseCache,
	})
	if err != nil {
		return nil, err
	}

	match := MatchOptions{IncludeBody: opts.IncludeBody}
	var comments map[int64][]string
	if opts.IncludeComments && len(issues) > 0 {
		ids := make([]int64, len(issues))
		for i, issue := range issues {
			ids[i] = issue.ID
		}
		comments, err = c.store.GetCommentBodies(ctx, ids)
		if err != nil {
			// comment text is an enrichment, not a correctness dependency
			c.log.Warn().Err(err).Str("repository", target.FullName).Msg("failed to load comment text, matching without it")
		}
	}

	now := c.now()
	var results []models.SearchResult
	for _, issue := range issues {
		match.Comments = comments[issue.ID]
		score := ScoreWeighted(issue, query, now, match)
		if score == 0 || score < opts.MinRelevance {
			continue
		}
		field, snippet := MatchDetails(issue, query, match)
		issue.RelevanceScore = score
		results = append(results, models.SearchResult{
			Issue:        issue,
			Repository:   target.FullName,
			Priority:     target.Priority,
			Score:        score,
			MatchedField: field,
			Snippet:      snippet,
		})
	}
	return results, nil
}

// sortMerged orders results by score descending, breaking near-ties
// (difference under 0.1) by repository priority descending. The sort is
// stable so identical inputs always produce identical output.
func sortMerged(results []models.SearchResult) {
	sort.SliceStable(results, func(i, j int) bool {
		di := results[i].Score - results[j].Score
		if di < tieBreakBand && di > -tieBreakBand {
			if results[i].Priority != results[j].Priority {
				return results[i].Priority > results[j].Priority
			}
			return results[i].Score > results[j].Score
		}
		return results[i].Score > results[j].Score
	})
}
