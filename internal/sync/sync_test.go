package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/google/go-github/v57/github"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romlind/issuescout/internal/api"
	"github.com/romlind/issuescout/internal/db"
	"github.com/romlind/issuescout/internal/models"
)

type fakeRemote struct {
	pages    map[int][]*github.Issue
	comments map[int][]*github.IssueComment
	listErr  error
	nextNum  int
}

func (f *fakeRemote) ListIssuesPage(ctx context.Context, owner, name string, opts api.IssuePageOptions) ([]*github.Issue, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.pages[opts.Page], nil
}

func (f *fakeRemote) GetIssueComments(ctx context.Context, owner, name string, issueNumber int) ([]*github.IssueComment, error) {
	return f.comments[issueNumber], nil
}

func (f *fakeRemote) CreateIssue(ctx context.Context, owner, name, title, body string, labels []string) (*github.Issue, error) {
	f.nextNum++
	issue := remoteIssue(int64(9000+f.nextNum), f.nextNum, title, body, "open")
	for i, label := range labels {
		issue.Labels = append(issue.Labels, &github.Label{
			ID:    github.Int64(int64(500 + i)),
			Name:  github.String(label),
			Color: github.String("ededed"),
		})
	}
	return issue, nil
}

func remoteIssue(id int64, number int, title, body, state string) *github.Issue {
	now := github.Timestamp{Time: time.Now()}
	return &github.Issue{
		ID:        github.Int64(id),
		Number:    github.Int(number),
		Title:     github.String(title),
		Body:      github.String(body),
		State:     github.String(state),
		CreatedAt: &now,
		UpdatedAt: &now,
		User: &github.User{
			ID:    github.Int64(7),
			Login: github.String("alice"),
		},
	}
}

func remotePullRequest(id int64, number int, title string) *github.Issue {
	issue := remoteIssue(id, number, title, "", "open")
	issue.PullRequestLinks = &github.PullRequestLinks{
		URL: github.String("https://example.invalid/pulls/1"),
	}
	return issue
}

func setupEngine(t *testing.T, remote RemoteClient) (*Engine, *db.DB, *models.RepositoryConfig) {
	t.Helper()
	ctx := context.Background()

	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })
	require.NoError(t, store.Initialize())

	cfg := &models.RepositoryConfig{Owner: "acme", Name: "app", FullName: "acme/app", Enabled: true}
	require.NoError(t, store.UpsertRepositoryConfig(ctx, cfg))
	cfg, err = store.GetRepositoryConfig(ctx, "acme/app")
	require.NoError(t, err)

	return New(store, remote, zerolog.Nop()), store, cfg
}

func TestSyncUpsertsAndEnriches(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {
				remoteIssue(1, 1, "Timeout in fetch layer", "requests hang forever", "open"),
				remotePullRequest(2, 2, "Refactor fetch layer"),
				remoteIssue(3, 3, "Crash on startup", "", "closed"),
			},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	var progress int
	result, err := engine.Sync(ctx, cfg, Options{Page: 1, OnProgress: func(processed, total int) {
		progress++
		assert.Equal(t, 3, total)
	}})
	require.NoError(t, err)

	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 2, result.Synced)
	assert.Equal(t, 1, result.Skipped, "pull requests are skipped")
	assert.Equal(t, 3, progress, "progress is reported after every record")

	issues, err := store.ListIssues(ctx, cfg.ID, "all")
	require.NoError(t, err)
	require.Len(t, issues, 2)
	for _, issue := range issues {
		assert.NotEmpty(t, issue.SearchVector, "vectors are built at ingestion time")
	}

	meta, err := engine.Status(ctx, cfg.FullName)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, meta.Status)
	assert.Equal(t, 2, meta.TotalIssues)
	assert.False(t, meta.LastSyncTime.IsZero())
}

func TestSyncIdempotent(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {
				remoteIssue(1, 1, "Timeout in fetch layer", "", "open"),
				remoteIssue(2, 2, "Crash on startup", "", "open"),
			},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	_, err := engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	first, err := store.CountIssues(ctx, cfg.ID)
	require.NoError(t, err)

	_, err = engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	second, err := store.CountIssues(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, first, second, "re-syncing identical data adds no rows")

	meta, err := engine.Status(ctx, cfg.FullName)
	require.NoError(t, err)
	assert.Equal(t, second, meta.TotalIssues, "counts reflect actual rows, not a cumulative counter")
}

func TestSyncVectorRebuiltOnUpdate(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {remoteIssue(1, 1, "Timeout in fetch layer", "", "open")},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	_, err := engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	remote.pages[1] = []*github.Issue{remoteIssue(1, 1, "Renamed completely", "", "open")}
	_, err = engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	issue, err := store.GetIssueByNumber(ctx, cfg.ID, 1)
	require.NoError(t, err)
	require.NotNil(t, issue)
	assert.Contains(t, issue.SearchVector, "renamed")
	assert.NotContains(t, issue.SearchVector, "timeout", "stale vectors are never kept")
}

func TestSyncErrorKeepsRowsAndRecordsStatus(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {remoteIssue(1, 1, "Timeout in fetch layer", "", "open")},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	_, err := engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	remote.listErr = errors.New("503 upstream unavailable")
	_, err = engine.Sync(ctx, cfg, Options{Page: 1})
	require.Error(t, err)

	meta, err := engine.Status(ctx, cfg.FullName)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusError, meta.Status)
	assert.Contains(t, meta.ErrorMessage, "503")

	count, err := store.CountIssues(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count, "a failed sync never rolls back previously synced rows")
}

func TestSyncAllPaginates(t *testing.T) {
	ctx := context.Background()
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {
				remoteIssue(1, 1, "first", "", "open"),
				remoteIssue(2, 2, "second", "", "open"),
			},
			2: {remoteIssue(3, 3, "third", "", "open")},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	result, err := engine.SyncAll(ctx, cfg, Options{PerPage: 2})
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Synced)

	count, err := store.CountIssues(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, count)
}

func TestSyncCommentsLazy(t *testing.T) {
	ctx := context.Background()
	now := github.Timestamp{Time: time.Now()}
	remote := &fakeRemote{
		pages: map[int][]*github.Issue{
			1: {remoteIssue(1, 1, "Timeout in fetch layer", "", "open")},
		},
		comments: map[int][]*github.IssueComment{
			1: {
				{
					ID:        github.Int64(100),
					Body:      github.String("same here on linux"),
					CreatedAt: &now,
					UpdatedAt: &now,
					User:      &github.User{ID: github.Int64(8), Login: github.String("bob")},
				},
			},
		},
	}
	engine, store, cfg := setupEngine(t, remote)

	_, err := engine.Sync(ctx, cfg, Options{Page: 1})
	require.NoError(t, err)

	// bulk sync does not pull comments
	count, err := store.CountComments(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Zero(t, count)

	synced, err := engine.SyncComments(ctx, cfg, 1)
	require.NoError(t, err)
	assert.Equal(t, 1, synced)

	count, err = store.CountComments(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)

	meta, err := engine.Status(ctx, cfg.FullName)
	require.NoError(t, err)
	assert.Equal(t, 1, meta.TotalComments)
}

func TestSyncCommentsUnknownIssue(t *testing.T) {
	engine, _, cfg := setupEngine(t, &fakeRemote{})

	_, err := engine.SyncComments(context.Background(), cfg, 42)
	require.Error(t, err)
}

func TestCreateIssuePassThrough(t *testing.T) {
	ctx := context.Background()
	engine, store, cfg := setupEngine(t, &fakeRemote{})

	issue, err := engine.CreateIssue(ctx, cfg, "Crash when saving", "stack trace attached", []string{"bug"})
	require.NoError(t, err)
	require.NotNil(t, issue)

	assert.Equal(t, "Crash when saving", issue.Title)
	assert.NotEmpty(t, issue.SearchVector, "created issues are searchable immediately")
	require.Len(t, issue.Labels, 1)
	assert.Equal(t, "bug", issue.Labels[0].Name)

	count, err := store.CountIssues(ctx, cfg.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, count)
}

func TestStatusFreshRepository(t *testing.T) {
	engine, _, cfg := setupEngine(t, &fakeRemote{})

	meta, err := engine.Status(context.Background(), cfg.FullName)
	require.NoError(t, err)
	assert.Equal(t, models.SyncStatusIdle, meta.Status)
	assert.Zero(t, meta.TotalIssues)
}

func TestParseRepositoryString(t *testing.T) {
	owner, name, err := ParseRepositoryString("acme/app")
	require.NoError(t, err)
	assert.Equal(t, "acme", owner)
	assert.Equal(t, "app", name)

	for _, bad := range []string{"", "acme", "acme/", "/app", "a/b/c"} {
		_, _, err := ParseRepositoryString(bad)
		assert.Error(t, err, bad)
	}
}
