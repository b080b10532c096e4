package gitlab

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"
)

// State is a commit status outcome.
type State string

const (
	StateSuccess State = "success"
	StateFailed  State = "failed"
)

// Client talks to the GitLab REST API (v4) with a private token.
type Client struct {
	baseURL string
	token   string
	http    *http.Client
	logger  *slog.Logger
}

// NewClient builds a client for the GitLab instance at baseURL
// (e.g. "https://gitlab.example.com").
func NewClient(baseURL, token string, logger *slog.Logger) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		token:   token,
		http:    &http.Client{Timeout: 30 * time.Second},
		logger:  logger,
	}
}

// PostStatus attaches a commit status for the pushed SHA, named after the
// grading step, with a short description such as "grade: 3/5".
func (c *Client) PostStatus(ctx context.Context, hook *PushEvent, state State, step, description string) error {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%d/statuses/%s", c.baseURL, hook.ProjectID, hook.CheckoutSHA)
	form := url.Values{}
	form.Set("state", string(state))
	form.Set("ref", hook.BranchName())
	form.Set("name", step)
	form.Set("description", description)
	c.logger.Debug("posting status", "target", hook.Desc(), "state", state, "step", step)
	return c.postForm(ctx, endpoint, form)
}

// PostComment adds a comment with the full Markdown report on the pushed commit.
func (c *Client) PostComment(ctx context.Context, hook *PushEvent, note string) error {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%d/repository/commits/%s/comments", c.baseURL, hook.ProjectID, hook.CheckoutSHA)
	form := url.Values{}
	form.Set("note", note)
	c.logger.Debug("posting comment", "target", hook.Desc())
	return c.postForm(ctx, endpoint, form)
}

// DownloadArchive fetches the repository archive at the pushed SHA and
// writes it to dest.
func (c *Client) DownloadArchive(ctx context.Context, hook *PushEvent, dest string) error {
	endpoint := fmt.Sprintf("%s/api/v4/projects/%d/repository/archive.zip?sha=%s",
		c.baseURL, hook.ProjectID, url.QueryEscape(hook.CheckoutSHA))
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("fetching archive for %s: %w", hook.Desc(), err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("fetching archive for %s: %s", hook.Desc(), resp.Status)
	}
	f, err := os.Create(dest)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, resp.Body); err != nil {
		f.Close()
		return fmt.Errorf("writing archive %s: %w", dest, err)
	}
	return f.Close()
}

func (c *Client) postForm(ctx context.Context, endpoint string, form url.Values) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return err
	}
	req.Header.Set("PRIVATE-TOKEN", c.token)
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("posting to %s: %w", endpoint, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode >= 300 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("posting to %s: %s: %s", endpoint, resp.Status, strings.TrimSpace(string(body)))
	}
	return nil
}
