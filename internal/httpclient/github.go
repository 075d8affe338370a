package httpclient

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-resty/resty/v2"
)

// GitHub client defaults.
const (
	GitHubBaseURL   = "https://api.github.com/"
	GitHubAccept    = "application/vnd.github.v3+json"
	GitHubUserAgent = "HttpClientFactory-Sample"
)

// Issue is the subset of a GitHub issue the docs endpoint returns.
type Issue struct {
	URL     string    `json:"html_url"`
	Title   string    `json:"title"`
	Created time.Time `json:"created_at"`
}

// GitHub is a typed client for the GitHub REST API.
type GitHub struct {
	rc *resty.Client
}

// NewGitHub layers the GitHub API defaults over c. Base URL and headers
// already configured on c are kept.
func NewGitHub(c *Client) *GitHub {
	rc := c.Resty()
	if rc.BaseURL == "" {
		rc.SetBaseURL(GitHubBaseURL)
	}
	if rc.Header.Get("Accept") == "" {
		rc.SetHeader("Accept", GitHubAccept)
	}
	if rc.Header.Get("User-Agent") == "" {
		rc.SetHeader("User-Agent", GitHubUserAgent)
	}
	return &GitHub{rc: rc}
}

// ListIssues returns the open issues of owner/repo, newest first.
func (g *GitHub) ListIssues(ctx context.Context, owner, repo string) ([]Issue, error) {
	var issues []Issue
	resp, err := g.rc.R().
		SetContext(ctx).
		SetPathParams(map[string]string{"owner": owner, "repo": repo}).
		SetQueryParams(map[string]string{
			"state":     "open",
			"sort":      "created",
			"direction": "desc",
		}).
		ForceContentType("application/json").
		SetResult(&issues).
		Get("/repos/{owner}/{repo}/issues")
	if err != nil {
		return nil, fmt.Errorf("list issues %s/%s: %w", owner, repo, err)
	}
	if resp.IsError() {
		return nil, &StatusError{
			Method: http.MethodGet,
			URL:    resp.Request.URL,
			Status: resp.StatusCode(),
			Body:   resp.String(),
		}
	}
	if issues == nil {
		issues = []Issue{}
	}
	return issues, nil
}
