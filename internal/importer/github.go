// Package importer backfills the tracker event log from GitHub. It lists a
// repository's issues and pull requests, converts each to the equivalent
// domain events, and appends them through the event store.
package importer

import (
	"context"
	"net/http"
	"time"

	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"
	"golang.org/x/time/rate"
)

const listPageSize = 100

// GitHub is the slice of the GitHub API the importer needs. Satisfied by
// *Client; tests substitute fabricated values.
type GitHub interface {
	ListIssues(ctx context.Context, owner, repo string, since time.Time) ([]*github.Issue, error)
	ListComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error)
	ListCommentReactions(ctx context.Context, owner, repo string, commentID int64) ([]*github.Reaction, error)
	GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error)
}

// Client wraps the GitHub REST API with token auth and request pacing.
type Client struct {
	gh      *github.Client
	limiter *rate.Limiter
}

// NewClient creates a GitHub client. An empty token yields an unauthenticated
// client with GitHub's lower rate limits.
func NewClient(token string) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}
	return &Client{
		gh: github.NewClient(hc),
		// Stay well under the 5000 req/h authenticated ceiling.
		limiter: rate.NewLimiter(rate.Every(time.Second), 1),
	}
}

func (c *Client) wait(ctx context.Context) error {
	if c.limiter == nil {
		return nil
	}
	return c.limiter.Wait(ctx)
}

// ListIssues returns all issues and pull requests for a repository,
// optionally only those updated since a given time.
func (c *Client) ListIssues(ctx context.Context, owner, repo string, since time.Time) ([]*github.Issue, error) {
	opts := &github.IssueListByRepoOptions{
		State:       "all",
		Sort:        "created",
		Direction:   "asc",
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}
	if !since.IsZero() {
		opts.Since = since
	}

	var all []*github.Issue
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		issues, resp, err := c.gh.Issues.ListByRepo(ctx, owner, repo, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, issues...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListComments returns all comments for one issue or pull request.
func (c *Client) ListComments(ctx context.Context, owner, repo string, number int) ([]*github.IssueComment, error) {
	opts := &github.IssueListCommentsOptions{
		ListOptions: github.ListOptions{PerPage: listPageSize},
	}

	var all []*github.IssueComment
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		comments, resp, err := c.gh.Issues.ListComments(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, comments...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// ListCommentReactions returns the actor-level reactions on one comment.
func (c *Client) ListCommentReactions(ctx context.Context, owner, repo string, commentID int64) ([]*github.Reaction, error) {
	opts := &github.ListOptions{PerPage: listPageSize}

	var all []*github.Reaction
	for {
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		reactions, resp, err := c.gh.Reactions.ListIssueCommentReactions(ctx, owner, repo, commentID, opts)
		if err != nil {
			return nil, err
		}
		all = append(all, reactions...)
		if resp.NextPage == 0 {
			return all, nil
		}
		opts.Page = resp.NextPage
	}
}

// GetPullRequest returns pull request details (branches, merge state) the
// issues listing does not carry.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*github.PullRequest, error) {
	if err := c.wait(ctx); err != nil {
		return nil, err
	}
	pr, _, err := c.gh.PullRequests.Get(ctx, owner, repo, number)
	return pr, err
}
