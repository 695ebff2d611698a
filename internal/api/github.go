// Package api talks to the GitHub REST API: a conditional issue-list
// fetch driven by ETag validators, and a repository-owner lookup used to
// decorate notifications.
package api

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/codeGROOVE-dev/retry"
	"github.com/google/go-github/v57/github"
	"golang.org/x/oauth2"

	"github.com/issueping/issueping/internal/models"
)

const (
	userAgent = "issueping"

	// perPage keeps the page small: the merge engine only ever promotes
	// the newest surviving candidate, but the page must be deep enough
	// that a burst of bot issues or PRs can't mask a real one.
	perPage = 10

	requestTimeout = 30 * time.Second

	// Owner info is decoration only, so a short retry budget is enough.
	ownerInfoRetries  = 3
	ownerInfoMaxDelay = 10 * time.Second
)

// Client wraps an authenticated go-github client.
type Client struct {
	gh *github.Client
}

// NewClient creates a GitHub client. With an empty token requests go out
// unauthenticated, which GitHub rate-limits aggressively; the config
// layer enforces a slower poll interval for that case.
func NewClient(token string) *Client {
	var hc *http.Client
	if token != "" {
		ts := oauth2.StaticTokenSource(&oauth2.Token{AccessToken: token})
		hc = oauth2.NewClient(context.Background(), ts)
	}

	gh := github.NewClient(hc)
	gh.UserAgent = userAgent
	return &Client{gh: gh}
}

// FetchIssues lists the repository's newest issues, sorted by creation
// time descending. When validator is non-empty it is sent as
// If-None-Match; a 304 reply is a valid outcome reported via
// FetchResult.NotModified, not an error. Any other non-2xx status is an
// error carrying the status text.
func (c *Client) FetchIssues(ctx context.Context, owner, repo, validator string) (*models.FetchResult, error) {
	ctx, cancel := context.WithTimeout(ctx, requestTimeout)
	defer cancel()

	u := fmt.Sprintf("repos/%s/%s/issues?sort=created&direction=desc&per_page=%d", owner, repo, perPage)
	req, err := c.gh.NewRequest(http.MethodGet, u, nil)
	if err != nil {
		return nil, fmt.Errorf("build issues request: %w", err)
	}
	if validator != "" {
		req.Header.Set("If-None-Match", validator)
	}

	var raw []*github.Issue
	resp, err := c.gh.Do(ctx, req, &raw)
	if resp != nil && resp.StatusCode == http.StatusNotModified {
		return &models.FetchResult{NotModified: true}, nil
	}
	if err != nil {
		if resp != nil {
			return nil, fmt.Errorf("github API error: %s", resp.Status)
		}
		return nil, fmt.Errorf("fetch issues: %w", err)
	}

	issues := make([]models.Issue, 0, len(raw))
	for _, is := range raw {
		issues = append(issues, convertIssue(is))
	}
	return &models.FetchResult{
		Issues: issues,
		ETag:   resp.Header.Get("ETag"),
	}, nil
}

// OwnerInfo looks up the repository owner's avatar and profile URL.
// Unlike the per-tick issue fetch, this call retries with backoff: it
// runs once per repository change and a transient failure would leave
// every subsequent notification without an icon.
func (c *Client) OwnerInfo(ctx context.Context, owner, repo string) (*models.OwnerInfo, error) {
	var r *github.Repository
	err := retry.Do(func() error {
		rctx, cancel := context.WithTimeout(ctx, requestTimeout)
		defer cancel()

		var retryErr error
		r, _, retryErr = c.gh.Repositories.Get(rctx, owner, repo)
		return retryErr
	},
		retry.Attempts(ownerInfoRetries),
		retry.DelayType(retry.BackOffDelay),
		retry.MaxDelay(ownerInfoMaxDelay),
		retry.OnRetry(func(n uint, err error) {
			slog.Warn("[API] Repository lookup retry", "attempt", n+1, "owner", owner, "repo", repo, "error", err)
		}),
		retry.Context(ctx),
	)
	if err != nil {
		return nil, fmt.Errorf("get repository %s/%s: %w", owner, repo, err)
	}

	o := r.GetOwner()
	return &models.OwnerInfo{
		Login:     o.GetLogin(),
		AvatarURL: o.GetAvatarURL(),
		HTMLURL:   o.GetHTMLURL(),
	}, nil
}

func convertIssue(is *github.Issue) models.Issue {
	labels := make([]models.Label, 0, len(is.Labels))
	for _, l := range is.Labels {
		labels = append(labels, models.Label{Name: l.GetName(), Color: l.GetColor()})
	}

	return models.Issue{
		ID:            is.GetID(),
		Number:        is.GetNumber(),
		Title:         is.GetTitle(),
		Body:          is.GetBody(),
		HTMLURL:       is.GetHTMLURL(),
		RepositoryURL: is.GetRepositoryURL(),
		CreatedAt:     is.GetCreatedAt().Time,
		Author: models.Author{
			Login: is.GetUser().GetLogin(),
			Type:  is.GetUser().GetType(),
		},
		Labels:        labels,
		IsPullRequest: is.IsPullRequest(),
	}
}
