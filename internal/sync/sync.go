package sync

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"

	"github.com/romlind/issuescout/internal/api"
	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/models"
	"github.com/romlind/issuescout/internal/search"
)

// RemoteClient is the slice of the tracker API the engine needs.
// *api.GitHubClient satisfies it; tests substitute fakes.
type RemoteClient interface {
	ListIssuesPage(ctx context.Context, owner, name string, opts api.IssuePageOptions) ([]*github.Issue, error)
	GetIssueComments(ctx context.Context, owner, name string, issueNumber int) ([]*github.IssueComment, error)
	CreateIssue(ctx context.Context, owner, name, title, body string, labels []string) (*github.Issue, error)
}

// Options selects one page of remote issues. Fetching further pages is
// the caller's job: invoke Sync again with the next Page.
type Options struct {
	State     string
	Sort      string
	Direction string
	PerPage   int
	Page      int

	// OnProgress, when set, is called after every processed record
	OnProgress func(processed, total int)
}

// Result reports what one page sync did
type Result struct {
	Fetched int // records on the page, pull requests included
	Synced  int // issues upserted
	Skipped int // pull requests skipped
}

// Engine fetches remote issues, enriches them with search vectors and
// upserts them into the local store. It is the only writer of issue,
// comment and sync-metadata rows.
type Engine struct {
	store  *db.DB
	client RemoteClient
	log    zerolog.Logger
}

// New creates a sync engine
func New(store *db.DB, client RemoteClient, log zerolog.Logger) *Engine {
	return &Engine{store: store, client: client, log: log}
}

// Sync fetches one page of issues for the repository, skips pull
// requests, rebuilds each kept record's search vector and upserts it.
// On success sync metadata goes back to idle with counts taken from the
// actual row counts. On a mid-page error the metadata records the
// failure and the error is returned; rows already upserted stay —
// upserts are idempotent, so retrying is safe.
func (e *Engine) Sync(ctx context.Context, cfg *models.RepositoryConfig, opts Options) (*Result, error) {
	if err := e.setStatus(ctx, cfg.FullName, models.SyncStatusSyncing, ""); err != nil {
		return nil, err
	}

	result, err := e.syncPage(ctx, cfg, opts)
	if err != nil {
		if metaErr := e.setStatus(ctx, cfg.FullName, models.SyncStatusError, err.Error()); metaErr != nil {
			e.log.Error().Err(metaErr).Str("repository", cfg.FullName).Msg("failed to record sync error")
		}
		return nil, err
	}

	if err := e.finishSync(ctx, cfg); err != nil {
		return nil, err
	}

	e.log.Info().
		Str("repository", cfg.FullName).
		Int("fetched", result.Fetched).
		Int("synced", result.Synced).
		Int("skipped", result.Skipped).
		Msg("sync page complete")

	return result, nil
}

func (e *Engine) syncPage(ctx context.Context, cfg *models.RepositoryConfig, opts Options) (*Result, error) {
	issues, err := e.client.ListIssuesPage(ctx, cfg.Owner, cfg.Name, api.IssuePageOptions{
		State:     opts.State,
		Sort:      opts.Sort,
		Direction: opts.Direction,
		PerPage:   opts.PerPage,
		Page:      opts.Page,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to fetch issues for %s: %w", cfg.FullName, err)
	}

	result := &Result{Fetched: len(issues)}
	total := len(issues)

	for i, remote := range issues {
		if remote.IsPullRequest() {
			result.Skipped++
			reportProgress(opts.OnProgress, i+1, total)
			continue
		}

		if err := e.upsertIssue(ctx, cfg, remote); err != nil {
			return nil, fmt.Errorf("issue #%d: %w", remote.GetNumber(), err)
		}
		result.Synced++
		reportProgress(opts.OnProgress, i+1, total)
	}

	return result, nil
}

func reportProgress(fn func(processed, total int), processed, total int) {
	if fn != nil {
		fn(processed, total)
	}
}

// upsertIssue writes one remote issue and its related rows. The search
// vector is rebuilt here on every upsert, so a changed title, body or
// label set can never leave a stale vector behind.
func (e *Engine) upsertIssue(ctx context.Context, cfg *models.RepositoryConfig, remote *github.Issue) error {
	if remote.User != nil {
		if err := e.store.SaveUser(ctx, api.ConvertGitHubUser(remote.User)); err != nil {
			return fmt.Errorf("failed to save user: %w", err)
		}
	}

	issue := api.ConvertGitHubIssue(remote, cfg.ID)

	labelNames := make([]string, len(issue.Labels))
	for i, label := range issue.Labels {
		labelNames[i] = label.Name
	}
	issue.SearchVector = search.BuildSearchVector(issue.Title, issue.Body, labelNames)

	if err := e.store.SaveIssue(ctx, issue); err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}

	for _, label := range issue.Labels {
		if err := e.store.SaveLabel(ctx, &label); err != nil {
			return fmt.Errorf("failed to save label %s: %w", label.Name, err)
		}
		if err := e.store.SaveIssueLabel(ctx, issue.ID, label.ID); err != nil {
			return fmt.Errorf("failed to save issue-label relationship: %w", err)
		}
	}

	return nil
}

// SyncAll repeatedly fetches pages until the remote runs out. A
// convenience wrapper over the page-at-a-time contract.
func (e *Engine) SyncAll(ctx context.Context, cfg *models.RepositoryConfig, opts Options) (*Result, error) {
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}

	total := &Result{}
	for page := 1; ; page++ {
		opts.Page = page
		result, err := e.Sync(ctx, cfg, opts)
		if err != nil {
			return total, err
		}
		total.Fetched += result.Fetched
		total.Synced += result.Synced
		total.Skipped += result.Skipped

		if result.Fetched < opts.PerPage {
			return total, nil
		}
	}
}

// SyncComments fetches all comments for one issue on demand. Comments
// are deliberately not part of the bulk page sync.
func (e *Engine) SyncComments(ctx context.Context, cfg *models.RepositoryConfig, issueNumber int) (int, error) {
	issue, err := e.store.GetIssueByNumber(ctx, cfg.ID, issueNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to resolve issue #%d: %w", issueNumber, err)
	}
	if issue == nil {
		return 0, fmt.Errorf("issue #%d not synced locally", issueNumber)
	}

	comments, err := e.client.GetIssueComments(ctx, cfg.Owner, cfg.Name, issueNumber)
	if err != nil {
		return 0, fmt.Errorf("failed to fetch comments for #%d: %w", issueNumber, err)
	}

	for _, remote := range comments {
		if remote.User != nil {
			if err := e.store.SaveUser(ctx, api.ConvertGitHubUser(remote.User)); err != nil {
				return 0, fmt.Errorf("failed to save user: %w", err)
			}
		}
		if err := e.store.SaveComment(ctx, api.ConvertGitHubComment(remote, issue.ID, issueNumber)); err != nil {
			return 0, fmt.Errorf("failed to save comment: %w", err)
		}
	}

	if err := e.finishSync(ctx, cfg); err != nil {
		return len(comments), err
	}

	return len(comments), nil
}

// CreateIssue creates an issue remotely and mirrors it into the local
// store so it is searchable immediately. Pure pass-through otherwise.
func (e *Engine) CreateIssue(ctx context.Context, cfg *models.RepositoryConfig, title, body string, labels []string) (*models.Issue, error) {
	remote, err := e.client.CreateIssue(ctx, cfg.Owner, cfg.Name, title, body, labels)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue in %s: %w", cfg.FullName, err)
	}

	if err := e.upsertIssue(ctx, cfg, remote); err != nil {
		return nil, fmt.Errorf("issue created remotely but local mirror failed: %w", err)
	}

	issue, err := e.store.GetIssueByNumber(ctx, cfg.ID, remote.GetNumber())
	if err != nil {
		return nil, fmt.Errorf("failed to reload created issue: %w", err)
	}
	return issue, nil
}

// Status returns the sync record for a repository
func (e *Engine) Status(ctx context.Context, repository string) (*models.SyncMetadata, error) {
	return e.store.GetSyncMetadata(ctx, repository)
}

// setStatus transitions the metadata state machine, preserving the
// previous counts and last-sync time.
func (e *Engine) setStatus(ctx context.Context, repository, status, errorMessage string) error {
	meta, err := e.store.GetSyncMetadata(ctx, repository)
	if err != nil {
		return fmt.Errorf("failed to load sync metadata: %w", err)
	}
	meta.Status = status
	meta.ErrorMessage = errorMessage
	if err := e.store.SaveSyncMetadata(ctx, meta); err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}
	return nil
}

// finishSync records an idle status with counts taken from the actual
// rows, never a cumulative counter.
func (e *Engine) finishSync(ctx context.Context, cfg *models.RepositoryConfig) error {
	issueCount, err := e.store.CountIssues(ctx, cfg.ID)
	if err != nil {
		return err
	}
	commentCount, err := e.store.CountComments(ctx, cfg.ID)
	if err != nil {
		return err
	}

	meta := &models.SyncMetadata{
		Repository:    cfg.FullName,
		Status:        models.SyncStatusIdle,
		LastSyncTime:  time.Now(),
		TotalIssues:   issueCount,
		TotalComments: commentCount,
	}
	if err := e.store.SaveSyncMetadata(ctx, meta); err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}
	return nil
}

// ParseRepositoryString parses a repository string in the format "owner/name"
func ParseRepositoryString(repoStr string) (string, string, error) {
	parts := strings.Split(repoStr, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("invalid repository format, expected 'owner/name', got '%s'", repoStr)
	}
	return parts[0], parts[1], nil
}
