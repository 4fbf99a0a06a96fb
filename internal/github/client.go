package github

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"
)

// rawHosts is the allow-list for raw-content URLs supplied by the API.
var rawHosts = map[string]bool{
	"raw.githubusercontent.com":     true,
	"api.github.com":                true,
	"objects.githubusercontent.com": true,
}

// Client talks to the GitHub REST API for one token. It is constructed per
// user (or per demo request) and injected, never shared as a singleton.
type Client struct {
	baseURL string
	token   string
	client  *http.Client
}

func NewClient(baseURL, token string, timeout time.Duration) *Client {
	return &Client{
		baseURL: baseURL,
		token:   token,
		client:  &http.Client{Timeout: timeout},
	}
}

// WithHTTPClient swaps the underlying transport, for tests.
func (c *Client) WithHTTPClient(hc *http.Client) *Client {
	c.client = hc
	return c
}

type listCommitEntry struct {
	SHA    string `json:"sha"`
	Commit struct {
		Message string `json:"message"`
		Author  struct {
			Date time.Time `json:"date"`
		} `json:"author"`
	} `json:"commit"`
}

type commitDetailResponse struct {
	listCommitEntry
	Files []struct {
		Filename  string `json:"filename"`
		Status    string `json:"status"`
		Additions int    `json:"additions"`
		Deletions int    `json:"deletions"`
		Patch     string `json:"patch"`
		RawURL    string `json:"raw_url"`
	} `json:"files"`
}

// ListCommits returns the commits on a branch within [since, until], newest
// first per the API's default ordering. A single round trip, no retries.
func (c *Client) ListCommits(ctx context.Context, repo Repo, since, until time.Time) ([]Commit, error) {
	q := url.Values{}
	q.Set("since", since.Format(time.RFC3339))
	q.Set("until", until.Format(time.RFC3339))
	if repo.Branch != "" {
		q.Set("sha", repo.Branch)
	}
	q.Set("per_page", "50")

	endpoint := fmt.Sprintf("%s/repos/%s/commits?%s", c.baseURL, repo.FullName, q.Encode())
	var entries []listCommitEntry
	if err := c.getJSON(ctx, endpoint, &entries); err != nil {
		return nil, err
	}

	commits := make([]Commit, 0, len(entries))
	for _, e := range entries {
		commits = append(commits, Commit{
			SHA:        e.SHA,
			Message:    e.Commit.Message,
			AuthoredAt: e.Commit.Author.Date,
		})
	}
	return commits, nil
}

// GetCommitDetail fetches one commit with its full file list and patches.
func (c *Client) GetCommitDetail(ctx context.Context, repo Repo, sha string) (*Commit, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/commits/%s", c.baseURL, repo.FullName, sha)
	var detail commitDetailResponse
	if err := c.getJSON(ctx, endpoint, &detail); err != nil {
		return nil, err
	}

	commit := Commit{
		SHA:        detail.SHA,
		Message:    detail.Commit.Message,
		AuthoredAt: detail.Commit.Author.Date,
	}
	for _, f := range detail.Files {
		commit.Files = append(commit.Files, CommitFile{
			Path:      f.Filename,
			Status:    f.Status,
			Additions: f.Additions,
			Deletions: f.Deletions,
			Patch:     f.Patch,
			RawURL:    f.RawURL,
		})
	}
	return &commit, nil
}

// GetFileContent fetches the raw text of a file at a ref via the contents API.
func (c *Client) GetFileContent(ctx context.Context, repo Repo, path, ref string) (string, error) {
	endpoint := fmt.Sprintf("%s/repos/%s/contents/%s", c.baseURL, repo.FullName, url.PathEscape(path))
	if ref != "" {
		endpoint += "?ref=" + url.QueryEscape(ref)
	}
	return c.getRaw(ctx, endpoint)
}

// GetRawContent fetches a raw_url reported by the API. Hosts outside the
// allow-list are rejected before any request is made.
func (c *Client) GetRawContent(ctx context.Context, rawURL string) (string, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", fmt.Errorf("github: invalid raw url: %w", err)
	}
	if u.Scheme != "https" || !rawHosts[u.Hostname()] {
		return "", fmt.Errorf("github: raw url host %q not allowed", u.Hostname())
	}
	return c.getRaw(ctx, rawURL)
}

func (c *Client) getJSON(ctx context.Context, endpoint string, out any) error {
	body, err := c.get(ctx, endpoint, "application/vnd.github+json")
	if err != nil {
		return err
	}
	if err := json.Unmarshal(body, out); err != nil {
		return fmt.Errorf("github: decoding %s: %w", endpoint, err)
	}
	return nil
}

func (c *Client) getRaw(ctx context.Context, endpoint string) (string, error) {
	body, err := c.get(ctx, endpoint, "application/vnd.github.raw+json")
	if err != nil {
		return "", err
	}
	return string(body), nil
}

func (c *Client) get(ctx context.Context, endpoint, accept string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("github: creating request: %w", err)
	}
	req.Header.Set("Accept", accept)
	req.Header.Set("X-GitHub-Api-Version", "2022-11-28")
	if c.token != "" {
		req.Header.Set("Authorization", "Bearer "+c.token)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("github: request failed: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("github: reading response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, URL: endpoint, Message: apiMessage(body)}
	}
	return body, nil
}

func apiMessage(body []byte) string {
	var payload struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(body, &payload); err != nil {
		return ""
	}
	return payload.Message
}
