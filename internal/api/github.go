package api

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/go-github/v57/github"
	"github.com/romlind/issuescout/internal/models"
	"golang.org/x/oauth2"
)

// RateLimitError reports that the remote API refused a request because
// the rate limit was exhausted.
type RateLimitError struct {
	ResetTime time.Time
}

func (e *RateLimitError) Error() string {
	return fmt.Sprintf("rate limit exceeded, resets at %s", e.ResetTime.Format(time.RFC3339))
}

// IssuePageOptions selects one page of issues from the remote tracker.
// Pagination across pages is the caller's responsibility.
type IssuePageOptions struct {
	State     string // "open", "closed" or "all"
	Sort      string // "created", "updated", "comments"
	Direction string // "asc" or "desc"
	PerPage   int
	Page      int
}

// GitHubClient wraps the GitHub REST API
type GitHubClient struct {
	client *github.Client
}

// NewGitHubClient creates a client. An empty token falls back to
// unauthenticated rate limits.
func NewGitHubClient(token string) *GitHubClient {
	var tc *http.Client

	if token != "" {
		ts := oauth2.StaticTokenSource(
			&oauth2.Token{AccessToken: token},
		)
		tc = oauth2.NewClient(context.Background(), ts)
	}

	client := github.NewClient(tc)
	return &GitHubClient{client: client}
}

// newRetryBackoff builds the retry policy for transient failures
func newRetryBackoff(ctx context.Context) backoff.BackOff {
	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = 500 * time.Millisecond
	policy.MaxElapsedTime = 30 * time.Second
	return backoff.WithContext(backoff.WithMaxRetries(policy, 3), ctx)
}

// classifyError converts API failures so retries only happen on
// transient ones. Rate-limit errors are surfaced as RateLimitError and
// not retried here; client-side 4xx responses are permanent.
func classifyError(err error, resp *github.Response) error {
	if err == nil {
		return nil
	}
	if rl, ok := err.(*github.RateLimitError); ok {
		return backoff.Permanent(&RateLimitError{ResetTime: rl.Rate.Reset.Time})
	}
	if resp != nil && resp.StatusCode >= 400 && resp.StatusCode < 500 && resp.StatusCode != http.StatusTooManyRequests {
		return backoff.Permanent(err)
	}
	return err
}

// GetRepository gets a repository by owner and name
func (c *GitHubClient) GetRepository(ctx context.Context, owner, name string) (*models.RepositoryConfig, error) {
	var repo *github.Repository
	op := func() error {
		var resp *github.Response
		var err error
		repo, resp, err = c.client.Repositories.Get(ctx, owner, name)
		return classifyError(err, resp)
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to get repository: %w", err)
	}

	return &models.RepositoryConfig{
		Owner:    repo.GetOwner().GetLogin(),
		Name:     repo.GetName(),
		FullName: repo.GetFullName(),
		Enabled:  true,
	}, nil
}

// ListIssuesPage fetches a single page of issues for the given filters
func (c *GitHubClient) ListIssuesPage(ctx context.Context, owner, name string, opts IssuePageOptions) ([]*github.Issue, error) {
	if opts.PerPage <= 0 {
		opts.PerPage = 100
	}
	if opts.Page <= 0 {
		opts.Page = 1
	}
	if opts.State == "" {
		opts.State = "all"
	}

	listOpts := &github.IssueListByRepoOptions{
		State:     opts.State,
		Sort:      opts.Sort,
		Direction: opts.Direction,
		ListOptions: github.ListOptions{
			PerPage: opts.PerPage,
			Page:    opts.Page,
		},
	}

	var issues []*github.Issue
	op := func() error {
		var resp *github.Response
		var err error
		issues, resp, err = c.client.Issues.ListByRepo(ctx, owner, name, listOpts)
		return classifyError(err, resp)
	}
	if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
		return nil, fmt.Errorf("failed to list issues: %w", err)
	}

	return issues, nil
}

// GetIssueComments gets all comments for an issue
func (c *GitHubClient) GetIssueComments(ctx context.Context, owner, name string, issueNumber int) ([]*github.IssueComment, error) {
	var allComments []*github.IssueComment
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{
			PerPage: 100,
		},
	}

	for {
		var comments []*github.IssueComment
		var resp *github.Response
		op := func() error {
			var err error
			comments, resp, err = c.client.Issues.ListComments(ctx, owner, name, issueNumber, opts)
			return classifyError(err, resp)
		}
		if err := backoff.Retry(op, newRetryBackoff(ctx)); err != nil {
			return nil, fmt.Errorf("failed to list comments: %w", err)
		}

		allComments = append(allComments, comments...)

		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	return allComments, nil
}

// CreateIssue creates an issue on the remote tracker. Issue creation is
// a pass-through; the caller upserts the returned record locally.
func (c *GitHubClient) CreateIssue(ctx context.Context, owner, name, title, body string, labels []string) (*github.Issue, error) {
	req := &github.IssueRequest{
		Title: &title,
		Body:  &body,
	}
	if len(labels) > 0 {
		req.Labels = &labels
	}

	issue, resp, err := c.client.Issues.Create(ctx, owner, name, req)
	if err != nil {
		return nil, fmt.Errorf("failed to create issue: %w", classifyError(err, resp))
	}

	return issue, nil
}

// ConvertGitHubUser converts a GitHub user to our model
func ConvertGitHubUser(user *github.User) *models.User {
	if user == nil {
		return nil
	}

	return &models.User{
		ID:        user.GetID(),
		Login:     user.GetLogin(),
		AvatarURL: user.GetAvatarURL(),
	}
}

// ConvertGitHubIssue converts a GitHub issue to our model. The search
// vector is left empty; enrichment happens in the sync engine.
func ConvertGitHubIssue(issue *github.Issue, repositoryID int64) *models.Issue {
	var closedAt *time.Time
	if issue.ClosedAt != nil {
		t := issue.ClosedAt.Time
		closedAt = &t
	}

	var userID int64
	if issue.User != nil {
		userID = issue.User.GetID()
	}
	var assigneeID int64
	if issue.Assignee != nil {
		assigneeID = issue.Assignee.GetID()
	}

	var reactions int
	if issue.Reactions != nil {
		reactions = issue.Reactions.GetTotalCount()
	}

	converted := &models.Issue{
		ID:            issue.GetID(),
		Number:        issue.GetNumber(),
		Title:         issue.GetTitle(),
		Body:          issue.GetBody(),
		State:         issue.GetState(),
		CreatedAt:     issue.GetCreatedAt().Time,
		UpdatedAt:     issue.GetUpdatedAt().Time,
		ClosedAt:      closedAt,
		UserID:        userID,
		AssigneeID:    assigneeID,
		RepositoryID:  repositoryID,
		IsPullRequest: issue.IsPullRequest(),
		CommentCount:  issue.GetComments(),
		Reactions:     reactions,
	}

	for _, label := range issue.Labels {
		converted.Labels = append(converted.Labels, models.Label{
			ID:    label.GetID(),
			Name:  label.GetName(),
			Color: label.GetColor(),
		})
	}

	return converted
}

// ConvertGitHubComment converts a GitHub comment to our model
func ConvertGitHubComment(comment *github.IssueComment, issueID int64, issueNumber int) *models.Comment {
	var userID int64
	if comment.User != nil {
		userID = comment.User.GetID()
	}

	return &models.Comment{
		ID:          comment.GetID(),
		IssueID:     issueID,
		IssueNumber: issueNumber,
		UserID:      userID,
		Body:        comment.GetBody(),
		CreatedAt:   comment.GetCreatedAt().Time,
		UpdatedAt:   comment.GetUpdatedAt().Time,
	}
}
