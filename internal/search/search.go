package search

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/models"
)

// ConfigError reports a caller mistake: a malformed, unknown or
// disabled repository target. Distinguish it from runtime faults with
// errors.As.
type ConfigError struct {
	Repository string
	Reason     string
}

func (e *ConfigError) Error() string {
	return fmt.Sprintf("repository %q: %s", e.Repository, e.Reason)
}

// Options controls a single-repository search
type Options struct {
	Limit        int
	State        string
	MinRelevance float64
	UseCache     bool
	CacheTTL     time.Duration
}

const defaultLimit = 20

// Service performs single-repository searches against the local store.
type Service struct {
	store *db.DB
	cache *Cache
	log   zerolog.Logger
}

// NewService creates a single-repository search service
func NewService(store *db.DB, cache *Cache, log zerolog.Logger) *Service {
	return &Service{store: store, cache: cache, log: log}
}

// Search scores the locally stored issues of one repository against the
// query and returns them sorted strictly descending by relevance.
// Ties keep the store's retrieval order; repository priority only
// matters at the multi-repository layer. Results below MinRelevance are
// dropped and the output is truncated to Limit.
func (s *Service) Search(ctx context.Context, repository, query string, opts Options) ([]*models.Issue, error) {
	cfg, err := s.store.GetRepositoryConfig(ctx, repository)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve repository %s: %w", repository, err)
	}
	if cfg == nil {
		return nil, &ConfigError{Repository: repository, Reason: "not configured"}
	}
	if !cfg.Enabled {
		return nil, &ConfigError{Repository: repository, Reason: "disabled"}
	}

	if opts.Limit <= 0 {
		opts.Limit = defaultLimit
	}

	cacheKey := repository + "\x00" + query
	if opts.UseCache {
		if ids, ok := s.cache.Get(ctx, cacheKey); ok {
			return s.resolveCached(ctx, ids, query)
		}
	}

	candidates, err := s.store.ListIssues(ctx, cfg.ID, opts.State)
	if err != nil {
		return nil, fmt.Errorf("failed to load candidates for %s: %w", repository, err)
	}

	var results []*models.Issue
	for _, issue := range candidates {
		score := Score(issue, query)
		if score < opts.MinRelevance || score == 0 {
			continue
		}
		issue.RelevanceScore = score
		results = append(results, issue)
	}

	// stable keeps the store's retrieval order for equal scores
	sort.SliceStable(results, func(i, j int) bool {
		return results[i].RelevanceScore > results[j].RelevanceScore
	})

	if len(results) > opts.Limit {
		results = results[:opts.Limit]
	}

	if opts.UseCache && len(results) > 0 {
		ids := make([]int64, len(results))
		for i, issue := range results {
			ids[i] = issue.ID
		}
		s.cache.Put(ctx, cacheKey, ids, opts.CacheTTL)
	}

	return results, nil
}

// ClearCache wipes locally mirrored issues, comments, cached query
// results, telemetry and sync metadata. Backs the product's "reset"
// action; repository configuration survives.
func (s *Service) ClearCache(ctx context.Context) error {
	s.cache.Clear()
	if err := s.store.ClearData(ctx); err != nil {
		return fmt.Errorf("failed to clear local data: %w", err)
	}
	return nil
}

// resolveCached maps cached issue IDs back to rows, keeping the cached
// order. IDs whose row has disappeared are dropped silently. Scores are
// recomputed since they are never persisted.
func (s *Service) resolveCached(ctx context.Context, ids []int64, query string) ([]*models.Issue, error) {
	issues, err := s.store.GetIssuesByIDs(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve cached results: %w", err)
	}
	for _, issue := range issues {
		issue.RelevanceScore = Score(issue, query)
	}
	return issues, nil
}
