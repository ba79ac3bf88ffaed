package api

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"github.com/shurcooL/githubv4"
	"github.com/romlind/issuescout/internal/models"
	"golang.org/x/oauth2"
)

// GraphQLClient wraps the GitHub GraphQL API. It exists only for the
// discussions collector; discussions are passed through to callers
// without being scored or cached.
type GraphQLClient struct {
	client *githubv4.Client
}

// NewGraphQLClient creates a new GraphQL client
func NewGraphQLClient(token string) *GraphQLClient {
	src := oauth2.StaticTokenSource(
		&oauth2.Token{AccessToken: token},
	)
	httpClient := oauth2.NewClient(context.Background(), src)
	client := githubv4.NewClient(httpClient)
	return &GraphQLClient{client: client}
}

type discussionActor struct {
	Login githubv4.String
}

type discussionComment struct {
	ID        githubv4.ID
	Body      githubv4.String
	CreatedAt githubv4.DateTime
	Author    discussionActor
}

type discussionNode struct {
	ID        githubv4.ID
	Number    githubv4.Int
	Title     githubv4.String
	Body      githubv4.String
	URL       githubv4.URI
	CreatedAt githubv4.DateTime
	Author    discussionActor
	Comments  struct {
		Nodes []discussionComment
	} `graphql:"comments(first: 50)"`
}

// convertID converts a GraphQL node ID to int64. Composite string IDs
// are hashed; our models expect numeric identifiers.
func convertID(id githubv4.ID) int64 {
	idStr := fmt.Sprintf("%v", id)
	idInt, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		var hash int64
		for _, c := range idStr {
			hash = 31*hash + int64(c)
		}
		return hash
	}
	return idInt
}

func convertDateTime(dt githubv4.DateTime) time.Time {
	return dt.Time
}

// GetDiscussions collects up to limit discussion threads for a
// repository, newest first, with their first page of comments.
func (c *GraphQLClient) GetDiscussions(ctx context.Context, owner, name string, limit int) ([]*models.Discussion, error) {
	if limit <= 0 {
		limit = 50
	}

	var all []*models.Discussion
	var endCursor *githubv4.String

	for len(all) < limit {
		var query struct {
			Repository struct {
				Discussions struct {
					Nodes    []discussionNode
					PageInfo struct {
						EndCursor   githubv4.String
						HasNextPage githubv4.Boolean
					}
				} `graphql:"discussions(first: $perPage, after: $endCursor, orderBy: {field: CREATED_AT, direction: DESC})"`
			} `graphql:"repository(owner: $owner, name: $name)"`
		}

		perPage := limit - len(all)
		if perPage > 50 {
			perPage = 50
		}

		variables := map[string]interface{}{
			"owner":     githubv4.String(owner),
			"name":      githubv4.String(name),
			"perPage":   githubv4.Int(perPage),
			"endCursor": endCursor,
		}

		if err := c.client.Query(ctx, &query, variables); err != nil {
			return nil, fmt.Errorf("failed to query discussions: %w", err)
		}

		for _, node := range query.Repository.Discussions.Nodes {
			discussion := &models.Discussion{
				ID:        convertID(node.ID),
				Number:    int(node.Number),
				Title:     string(node.Title),
				Body:      string(node.Body),
				URL:       node.URL.String(),
				Author:    string(node.Author.Login),
				CreatedAt: convertDateTime(node.CreatedAt),
			}
			for _, comment := range node.Comments.Nodes {
				discussion.Comments = append(discussion.Comments, models.DiscussionComment{
					ID:        convertID(comment.ID),
					Author:    string(comment.Author.Login),
					Body:      string(comment.Body),
					CreatedAt: convertDateTime(comment.CreatedAt),
				})
			}
			all = append(all, discussion)
		}

		if !bool(query.Repository.Discussions.PageInfo.HasNextPage) {
			break
		}
		cursor := query.Repository.Discussions.PageInfo.EndCursor
		endCursor = &cursor
	}

	if len(all) > limit {
		all = all[:limit]
	}

	return all, nil
}
