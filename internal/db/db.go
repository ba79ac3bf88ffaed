package db

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	_ "github.com/mattn/go-sqlite3"
	"github.com/romlind/issuescout/internal/models"
)

// DB is the local persisted store. It owns every table; the sync engine
// is the only writer of issue/comment/metadata rows and the search layer
// is the only writer of cache rows.
type DB struct {
	*sql.DB
}

// New opens the SQLite store at the given path
func New(dbPath string) (*DB, error) {
	db, err := sql.Open("sqlite3", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	// single connection: SQLite wants one writer, and it keeps
	// in-memory databases coherent across the pool
	db.SetMaxOpenConns(1)

	// WAL lets concurrent searches read while a sync writes
	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA foreign_keys=ON"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("failed to enable foreign keys: %w", err)
	}

	return &DB{DB: db}, nil
}

// Initialize creates the schema if it doesn't exist
func (db *DB) Initialize() error {
	schema := `
	CREATE TABLE IF NOT EXISTS repositories (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		owner TEXT NOT NULL,
		name TEXT NOT NULL,
		full_name TEXT NOT NULL UNIQUE,
		token TEXT NOT NULL DEFAULT '',
		priority INTEGER NOT NULL DEFAULT 0,
		enabled BOOLEAN NOT NULL DEFAULT 1
	);

	CREATE TABLE IF NOT EXISTS users (
		id INTEGER PRIMARY KEY,
		login TEXT NOT NULL UNIQUE,
		avatar_url TEXT
	);

	CREATE TABLE IF NOT EXISTS issues (
		id INTEGER PRIMARY KEY,
		number INTEGER NOT NULL,
		title TEXT NOT NULL,
		body TEXT,
		state TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		closed_at TIMESTAMP,
		user_id INTEGER,
		assignee_id INTEGER,
		repository_id INTEGER NOT NULL,
		is_pull_request BOOLEAN NOT NULL DEFAULT 0,
		comment_count INTEGER NOT NULL DEFAULT 0,
		reactions INTEGER NOT NULL DEFAULT 0,
		search_vector TEXT NOT NULL DEFAULT '',
		FOREIGN KEY (repository_id) REFERENCES repositories(id),
		UNIQUE(repository_id, number)
	);
	CREATE INDEX IF NOT EXISTS idx_issues_repo_state ON issues(repository_id, state);

	CREATE TABLE IF NOT EXISTS comments (
		id INTEGER PRIMARY KEY,
		issue_id INTEGER NOT NULL,
		issue_number INTEGER NOT NULL,
		user_id INTEGER,
		body TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		updated_at TIMESTAMP NOT NULL,
		FOREIGN KEY (issue_id) REFERENCES issues(id)
	);

	CREATE TABLE IF NOT EXISTS labels (
		id INTEGER PRIMARY KEY,
		name TEXT NOT NULL,
		color TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS issue_labels (
		issue_id INTEGER NOT NULL,
		label_id INTEGER NOT NULL,
		PRIMARY KEY (issue_id, label_id),
		FOREIGN KEY (issue_id) REFERENCES issues(id),
		FOREIGN KEY (label_id) REFERENCES labels(id)
	);

	CREATE TABLE IF NOT EXISTS search_cache (
		query TEXT PRIMARY KEY,
		issue_ids TEXT NOT NULL,
		created_at TIMESTAMP NOT NULL,
		expires_at TIMESTAMP NOT NULL
	);

	CREATE TABLE IF NOT EXISTS sync_metadata (
		repository TEXT PRIMARY KEY,
		status TEXT NOT NULL DEFAULT 'idle',
		last_sync_time TIMESTAMP,
		total_issues INTEGER NOT NULL DEFAULT 0,
		total_comments INTEGER NOT NULL DEFAULT 0,
		error_message TEXT NOT NULL DEFAULT ''
	);

	CREATE TABLE IF NOT EXISTS search_events (
		id INTEGER PRIMARY KEY AUTOINCREMENT,
		query TEXT NOT NULL,
		repositories INTEGER NOT NULL,
		results INTEGER NOT NULL,
		duration_ms INTEGER NOT NULL,
		created_at TIMESTAMP NOT NULL
	);
	`

	_, err := db.Exec(schema)
	if err != nil {
		return fmt.Errorf("failed to create schema: %w", err)
	}

	return nil
}

// UpsertRepositoryConfig adds or updates a configured search target
func (db *DB) UpsertRepositoryConfig(ctx context.Context, cfg *models.RepositoryConfig) error {
	query := `
	INSERT INTO repositories (owner, name, full_name, token, priority, enabled)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(full_name) DO UPDATE SET
		owner = excluded.owner,
		name = excluded.name,
		token = excluded.token,
		priority = excluded.priority,
		enabled = excluded.enabled
	`

	_, err := db.ExecContext(ctx, query, cfg.Owner, cfg.Name, cfg.FullName, cfg.Token, cfg.Priority, cfg.Enabled)
	if err != nil {
		return fmt.Errorf("failed to save repository config: %w", err)
	}

	return nil
}

// GetRepositoryConfig gets a configured repository by full name.
// Returns nil without error when the repository is not configured.
func (db *DB) GetRepositoryConfig(ctx context.Context, fullName string) (*models.RepositoryConfig, error) {
	query := `SELECT id, owner, name, full_name, token, priority, enabled FROM repositories WHERE full_name = ?`

	var cfg models.RepositoryConfig
	err := db.QueryRowContext(ctx, query, fullName).Scan(
		&cfg.ID, &cfg.Owner, &cfg.Name, &cfg.FullName, &cfg.Token, &cfg.Priority, &cfg.Enabled)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to get repository config: %w", err)
	}

	return &cfg, nil
}

// ListRepositoryConfigs lists configured repositories, optionally only
// the enabled ones, ordered by priority descending.
func (db *DB) ListRepositoryConfigs(ctx context.Context, enabledOnly bool) ([]*models.RepositoryConfig, error) {
	query := `SELECT id, owner, name, full_name, token, priority, enabled FROM repositories`
	if enabledOnly {
		query += ` WHERE enabled = 1`
	}
	query += ` ORDER BY priority DESC, full_name`

	rows, err := db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list repository configs: %w", err)
	}
	defer rows.Close()

	var configs []*models.RepositoryConfig
	for rows.Next() {
		var cfg models.RepositoryConfig
		if err := rows.Scan(&cfg.ID, &cfg.Owner, &cfg.Name, &cfg.FullName, &cfg.Token, &cfg.Priority, &cfg.Enabled); err != nil {
			return nil, fmt.Errorf("failed to scan repository config: %w", err)
		}
		configs = append(configs, &cfg)
	}

	return configs, rows.Err()
}

// SaveUser saves a user to the database
func (db *DB) SaveUser(ctx context.Context, user *models.User) error {
	query := `
	INSERT INTO users (id, login, avatar_url)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		login = excluded.login,
		avatar_url = excluded.avatar_url
	`

	_, err := db.ExecContext(ctx, query, user.ID, user.Login, user.AvatarURL)
	if err != nil {
		return fmt.Errorf("failed to save user: %w", err)
	}

	return nil
}

// SaveIssue upserts an issue row, including its search vector. Upserts
// are keyed by (repository_id, number) so retried syncs are idempotent.
func (db *DB) SaveIssue(ctx context.Context, issue *models.Issue) error {
	query := `
	INSERT INTO issues (id, number, title, body, state, created_at, updated_at, closed_at,
		user_id, assignee_id, repository_id, is_pull_request, comment_count, reactions, search_vector)
	VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(repository_id, number) DO UPDATE SET
		title = excluded.title,
		body = excluded.body,
		state = excluded.state,
		updated_at = excluded.updated_at,
		closed_at = excluded.closed_at,
		user_id = excluded.user_id,
		assignee_id = excluded.assignee_id,
		is_pull_request = excluded.is_pull_request,
		comment_count = excluded.comment_count,
		reactions = excluded.reactions,
		search_vector = excluded.search_vector
	`

	_, err := db.ExecContext(ctx, query,
		issue.ID,
		issue.Number,
		issue.Title,
		issue.Body,
		issue.State,
		issue.CreatedAt,
		issue.UpdatedAt,
		issue.ClosedAt,
		issue.UserID,
		issue.AssigneeID,
		issue.RepositoryID,
		issue.IsPullRequest,
		issue.CommentCount,
		issue.Reactions,
		issue.SearchVector,
	)
	if err != nil {
		return fmt.Errorf("failed to save issue: %w", err)
	}

	return nil
}

// SaveComment saves a comment to the database
func (db *DB) SaveComment(ctx context.Context, comment *models.Comment) error {
	query := `
	INSERT INTO comments (id, issue_id, issue_number, user_id, body, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		body = excluded.body,
		updated_at = excluded.updated_at
	`

	_, err := db.ExecContext(ctx, query,
		comment.ID,
		comment.IssueID,
		comment.IssueNumber,
		comment.UserID,
		comment.Body,
		comment.CreatedAt,
		comment.UpdatedAt,
	)
	if err != nil {
		return fmt.Errorf("failed to save comment: %w", err)
	}

	return nil
}

// SaveLabel saves a label to the database
func (db *DB) SaveLabel(ctx context.Context, label *models.Label) error {
	query := `
	INSERT INTO labels (id, name, color)
	VALUES (?, ?, ?)
	ON CONFLICT(id) DO UPDATE SET
		name = excluded.name,
		color = excluded.color
	`

	_, err := db.ExecContext(ctx, query, label.ID, label.Name, label.Color)
	if err != nil {
		return fmt.Errorf("failed to save label: %w", err)
	}

	return nil
}

// SaveIssueLabel saves an issue-label relationship
func (db *DB) SaveIssueLabel(ctx context.Context, issueID, labelID int64) error {
	query := `
	INSERT INTO issue_labels (issue_id, label_id)
	VALUES (?, ?)
	ON CONFLICT(issue_id, label_id) DO NOTHING
	`

	_, err := db.ExecContext(ctx, query, issueID, labelID)
	if err != nil {
		return fmt.Errorf("failed to save issue-label relationship: %w", err)
	}

	return nil
}

// ListIssues loads the issues for a repository, filtered by state
// ("open", "closed" or "all"), labels attached. Pull requests are
// excluded; retrieval order is most recently updated first and is the
// tie-break order for equal search scores.
func (db *DB) ListIssues(ctx context.Context, repositoryID int64, state string) ([]*models.Issue, error) {
	query := `
	SELECT id, number, title, body, state, created_at, updated_at, closed_at,
		user_id, assignee_id, repository_id, is_pull_request, comment_count, reactions, search_vector
	FROM issues
	WHERE repository_id = ? AND is_pull_request = 0`
	args := []interface{}{repositoryID}

	if state != "" && state != "all" {
		query += ` AND state = ?`
		args = append(args, state)
	}
	query += ` ORDER BY updated_at DESC`

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}

	if err := db.attachLabels(ctx, issues); err != nil {
		return nil, err
	}

	return issues, nil
}

// GetIssuesByIDs resolves issue IDs to rows, preserving the input order.
// IDs with no local row are dropped silently.
func (db *DB) GetIssuesByIDs(ctx context.Context, ids []int64) ([]*models.Issue, error) {
	if len(ids) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(ids))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}

	query := fmt.Sprintf(`
	SELECT id, number, title, body, state, created_at, updated_at, closed_at,
		user_id, assignee_id, repository_id, is_pull_request, comment_count, reactions, search_vector
	FROM issues WHERE id IN (%s)`, placeholders)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to get issues by ids: %w", err)
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}

	if err := db.attachLabels(ctx, issues); err != nil {
		return nil, err
	}

	byID := make(map[int64]*models.Issue, len(issues))
	for _, issue := range issues {
		byID[issue.ID] = issue
	}

	ordered := make([]*models.Issue, 0, len(ids))
	for _, id := range ids {
		if issue, ok := byID[id]; ok {
			ordered = append(ordered, issue)
		}
	}

	return ordered, nil
}

// GetCommentBodies loads the comment text for a batch of issues, keyed
// by issue ID and ordered oldest first within each issue.
func (db *DB) GetCommentBodies(ctx context.Context, issueIDs []int64) (map[int64][]string, error) {
	if len(issueIDs) == 0 {
		return nil, nil
	}

	placeholders := strings.Repeat("?,", len(issueIDs))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(issueIDs))
	for i, id := range issueIDs {
		args[i] = id
	}

	query := fmt.Sprintf(
		`SELECT issue_id, body FROM comments WHERE issue_id IN (%s) ORDER BY created_at`, placeholders)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to load comment bodies: %w", err)
	}
	defer rows.Close()

	bodies := make(map[int64][]string)
	for rows.Next() {
		var issueID int64
		var body string
		if err := rows.Scan(&issueID, &body); err != nil {
			return nil, fmt.Errorf("failed to scan comment body: %w", err)
		}
		bodies[issueID] = append(bodies[issueID], body)
	}

	return bodies, rows.Err()
}

// GetIssueByNumber gets one issue by its per-repository sequence
// number. Returns nil without error when absent.
func (db *DB) GetIssueByNumber(ctx context.Context, repositoryID int64, number int) (*models.Issue, error) {
	rows, err := db.QueryContext(ctx, `
	SELECT id, number, title, body, state, created_at, updated_at, closed_at,
		user_id, assignee_id, repository_id, is_pull_request, comment_count, reactions, search_vector
	FROM issues WHERE repository_id = ? AND number = ?`, repositoryID, number)
	if err != nil {
		return nil, fmt.Errorf("failed to get issue #%d: %w", number, err)
	}
	defer rows.Close()

	issues, err := scanIssues(rows)
	if err != nil {
		return nil, err
	}
	if len(issues) == 0 {
		return nil, nil
	}
	if err := db.attachLabels(ctx, issues); err != nil {
		return nil, err
	}
	return issues[0], nil
}

// CountIssues counts non-PR issue rows for a repository
func (db *DB) CountIssues(ctx context.Context, repositoryID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM issues WHERE repository_id = ? AND is_pull_request = 0`,
		repositoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count issues: %w", err)
	}
	return count, nil
}

// CountComments counts comment rows for a repository's issues
func (db *DB) CountComments(ctx context.Context, repositoryID int64) (int, error) {
	var count int
	err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM comments WHERE issue_id IN (SELECT id FROM issues WHERE repository_id = ?)`,
		repositoryID).Scan(&count)
	if err != nil {
		return 0, fmt.Errorf("failed to count comments: %w", err)
	}
	return count, nil
}

func scanIssues(rows *sql.Rows) ([]*models.Issue, error) {
	var issues []*models.Issue
	for rows.Next() {
		var issue models.Issue
		var closedAt sql.NullTime
		if err := rows.Scan(
			&issue.ID, &issue.Number, &issue.Title, &issue.Body, &issue.State,
			&issue.CreatedAt, &issue.UpdatedAt, &closedAt,
			&issue.UserID, &issue.AssigneeID, &issue.RepositoryID, &issue.IsPullRequest,
			&issue.CommentCount, &issue.Reactions, &issue.SearchVector,
		); err != nil {
			return nil, fmt.Errorf("failed to scan issue: %w", err)
		}
		if closedAt.Valid {
			t := closedAt.Time
			issue.ClosedAt = &t
		}
		issues = append(issues, &issue)
	}
	return issues, rows.Err()
}

// attachLabels loads labels for a batch of issues in one query
func (db *DB) attachLabels(ctx context.Context, issues []*models.Issue) error {
	if len(issues) == 0 {
		return nil
	}

	placeholders := strings.Repeat("?,", len(issues))
	placeholders = placeholders[:len(placeholders)-1]
	args := make([]interface{}, len(issues))
	byID := make(map[int64]*models.Issue, len(issues))
	for i, issue := range issues {
		args[i] = issue.ID
		byID[issue.ID] = issue
	}

	query := fmt.Sprintf(`
	SELECT il.issue_id, l.id, l.name, l.color
	FROM issue_labels il JOIN labels l ON l.id = il.label_id
	WHERE il.issue_id IN (%s)`, placeholders)

	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to load labels: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var issueID int64
		var label models.Label
		if err := rows.Scan(&issueID, &label.ID, &label.Name, &label.Color); err != nil {
			return fmt.Errorf("failed to scan label: %w", err)
		}
		if issue, ok := byID[issueID]; ok {
			issue.Labels = append(issue.Labels, label)
		}
	}

	return rows.Err()
}

// GetCacheEntry reads a cache row for the exact query string. Returns
// nil without error on a miss; expiry is the caller's concern.
func (db *DB) GetCacheEntry(ctx context.Context, query string) (*models.SearchCacheEntry, error) {
	row := db.QueryRowContext(ctx,
		`SELECT query, issue_ids, created_at, expires_at FROM search_cache WHERE query = ?`, query)

	var entry models.SearchCacheEntry
	var idsJSON string
	err := row.Scan(&entry.Query, &idsJSON, &entry.CreatedAt, &entry.ExpiresAt)
	if err != nil {
		if err == sql.ErrNoRows {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read cache entry: %w", err)
	}

	if err := json.Unmarshal([]byte(idsJSON), &entry.IssueIDs); err != nil {
		return nil, fmt.Errorf("failed to decode cached issue ids: %w", err)
	}

	return &entry, nil
}

// PutCacheEntry overwrites the cache row for the entry's query string
func (db *DB) PutCacheEntry(ctx context.Context, entry *models.SearchCacheEntry) error {
	idsJSON, err := json.Marshal(entry.IssueIDs)
	if err != nil {
		return fmt.Errorf("failed to encode issue ids: %w", err)
	}

	query := `
	INSERT INTO search_cache (query, issue_ids, created_at, expires_at)
	VALUES (?, ?, ?, ?)
	ON CONFLICT(query) DO UPDATE SET
		issue_ids = excluded.issue_ids,
		created_at = excluded.created_at,
		expires_at = excluded.expires_at
	`

	if _, err := db.ExecContext(ctx, query, entry.Query, string(idsJSON), entry.CreatedAt, entry.ExpiresAt); err != nil {
		return fmt.Errorf("failed to write cache entry: %w", err)
	}

	return nil
}

// GetSyncMetadata gets the sync record for a repository. Returns an
// idle zero record when none exists yet.
func (db *DB) GetSyncMetadata(ctx context.Context, repository string) (*models.SyncMetadata, error) {
	row := db.QueryRowContext(ctx,
		`SELECT repository, status, last_sync_time, total_issues, total_comments, error_message
		 FROM sync_metadata WHERE repository = ?`, repository)

	var meta models.SyncMetadata
	var lastSync sql.NullTime
	err := row.Scan(&meta.Repository, &meta.Status, &lastSync, &meta.TotalIssues, &meta.TotalComments, &meta.ErrorMessage)
	if err != nil {
		if err == sql.ErrNoRows {
			return &models.SyncMetadata{Repository: repository, Status: models.SyncStatusIdle}, nil
		}
		return nil, fmt.Errorf("failed to get sync metadata: %w", err)
	}
	if lastSync.Valid {
		meta.LastSyncTime = lastSync.Time
	}

	return &meta, nil
}

// SaveSyncMetadata upserts the sync record for a repository
func (db *DB) SaveSyncMetadata(ctx context.Context, meta *models.SyncMetadata) error {
	query := `
	INSERT INTO sync_metadata (repository, status, last_sync_time, total_issues, total_comments, error_message)
	VALUES (?, ?, ?, ?, ?, ?)
	ON CONFLICT(repository) DO UPDATE SET
		status = excluded.status,
		last_sync_time = excluded.last_sync_time,
		total_issues = excluded.total_issues,
		total_comments = excluded.total_comments,
		error_message = excluded.error_message
	`

	var lastSync interface{}
	if !meta.LastSyncTime.IsZero() {
		lastSync = meta.LastSyncTime
	}

	_, err := db.ExecContext(ctx, query, meta.Repository, meta.Status, lastSync,
		meta.TotalIssues, meta.TotalComments, meta.ErrorMessage)
	if err != nil {
		return fmt.Errorf("failed to save sync metadata: %w", err)
	}

	return nil
}

// RecordSearchEvent appends a search telemetry row
func (db *DB) RecordSearchEvent(ctx context.Context, ev *models.SearchEvent) error {
	_, err := db.ExecContext(ctx,
		`INSERT INTO search_events (query, repositories, results, duration_ms, created_at)
		 VALUES (?, ?, ?, ?, ?)`,
		ev.Query, ev.Repositories, ev.Results, ev.Duration.Milliseconds(), time.Now())
	if err != nil {
		return fmt.Errorf("failed to record search event: %w", err)
	}
	return nil
}

// CountSearchEvents counts recorded telemetry rows
func (db *DB) CountSearchEvents(ctx context.Context) (int, error) {
	var count int
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM search_events`).Scan(&count); err != nil {
		return 0, fmt.Errorf("failed to count search events: %w", err)
	}
	return count, nil
}

// ClearData wipes issues, comments, cache entries, telemetry and sync
// metadata. Repository configs are kept.
func (db *DB) ClearData(ctx context.Context) error {
	stmts := []string{
		`DELETE FROM issue_labels`,
		`DELETE FROM comments`,
		`DELETE FROM issues`,
		`DELETE FROM search_cache`,
		`DELETE FROM sync_metadata`,
		`DELETE FROM search_events`,
	}
	for _, stmt := range stmts {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to clear data: %w", err)
		}
	}
	return nil
}

// Close closes the database connection
func (db *DB) Close() error {
	return db.DB.Close()
}
