package models

import (
	"time"
)

// RepositoryConfig is a configured search target.
type RepositoryConfig struct {
	ID       int64
	Owner    string
	Name     string
	FullName string
	Token    string
	Priority int
	Enabled  bool
}

// User represents a remote user identity
type User struct {
	ID        int64
	Login     string
	AvatarURL string
}

// Issue represents an issue mirrored from the remote tracker.
// SearchVector is rebuilt on every upsert; RelevanceScore is computed
// per query and never persisted.
type Issue struct {
	ID            int64
	Number        int
	Title         string
	Body          string
	State         string
	CreatedAt     time.Time
	UpdatedAt     time.Time
	ClosedAt      *time.Time
	UserID        int64
	AssigneeID    int64
	RepositoryID  int64
	IsPullRequest bool
	CommentCount  int
	Reactions     int
	SearchVector  string
	Labels        []Label

	RelevanceScore float64
}

// Comment represents an issue comment, fetched lazily per issue
type Comment struct {
	ID          int64
	IssueID     int64
	IssueNumber int
	UserID      int64
	Body        string
	CreatedAt   time.Time
	UpdatedAt   time.Time
}

// Label represents an issue label
type Label struct {
	ID    int64
	Name  string
	Color string
}

// Sync status values for SyncMetadata
const (
	SyncStatusIdle    = "idle"
	SyncStatusSyncing = "syncing"
	SyncStatusError   = "error"
)

// SyncMetadata tracks the sync state for a repository
type SyncMetadata struct {
	Repository    string
	Status        string
	LastSyncTime  time.Time
	TotalIssues   int
	TotalComments int
	ErrorMessage  string
}

// SearchCacheEntry maps an exact query string to an ordered list of
// issue IDs. Entries past ExpiresAt are treated as absent.
type SearchCacheEntry struct {
	Query     string
	IssueIDs  []int64
	CreatedAt time.Time
	ExpiresAt time.Time
}

// Matched-field names reported by the multi-repository search
const (
	MatchFieldTitle  = "title"
	MatchFieldBody   = "body"
	MatchFieldLabels = "labels"
)

// SearchResult is one ranked hit from a multi-repository search.
type SearchResult struct {
	Issue        *Issue
	Repository   string
	Priority     int
	Score        float64
	MatchedField string
	Snippet      string
}

// Discussion is a discussion thread collected over GraphQL. Discussions
// are passed through to callers and are not scored or cached.
type Discussion struct {
	ID        int64
	Number    int
	Title     string
	Body      string
	URL       string
	Author    string
	CreatedAt time.Time
	Comments  []DiscussionComment
}

// DiscussionComment is a reply within a discussion thread
type DiscussionComment struct {
	ID        int64
	Author    string
	Body      string
	CreatedAt time.Time
}

// SearchEvent is a telemetry record written after a multi-repository
// search completes.
type SearchEvent struct {
	ID           int64
	Query        string
	Repositories int
	Results      int
	Duration     time.Duration
	CreatedAt    time.Time
}
