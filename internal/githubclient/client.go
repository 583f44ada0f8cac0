// Package githubclient is a thin façade over the GitHub REST API. Every
// method resolves an installation token for the target repository through
// the token cache before issuing the request, so callers never handle
// credentials themselves.
package githubclient

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/stackdraft/internal/githubapp"
	"github.com/stackdraft/pkg/models"
)

// maxStatusDescription is GitHub's hard cap on commit status descriptions.
const maxStatusDescription = 140

// ValidationError reports a request rejected locally before any network
// call was made.
type ValidationError struct {
	Reason string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid request: %s", e.Reason)
}

// PullRequestParams describes the draft PR the client should open.
type PullRequestParams struct {
	Title string
	Body  string
	Head  string
	Base  string
	Draft bool
}

// PullRequest is the subset of the created PR the orchestrator needs.
type PullRequest struct {
	Number  int
	HTMLURL string
}

// Client issues authenticated GitHub calls for any repository the app is
// installed on. It applies a shared rate limiter and a bounded per-call
// timeout; it never retries.
type Client struct {
	tokens     *githubapp.TokenCache
	baseURL    string
	httpClient *http.Client
	limiter    *rate.Limiter
	timeout    time.Duration
	log        zerolog.Logger
}

// Option configures a Client.
type Option func(*Client)

// WithBaseURL points the client at a non-default API endpoint.
func WithBaseURL(u string) Option {
	return func(c *Client) { c.baseURL = u }
}

// WithHTTPClient overrides the underlying HTTP client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithTimeout bounds each outbound call. Zero disables the bound.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// New creates a Client backed by the given token cache.
func New(tokens *githubapp.TokenCache, log zerolog.Logger, opts ...Option) *Client {
	c := &Client{
		tokens: tokens,
		// Well under GitHub's 5000/hour budget; this only smooths bursts.
		limiter: rate.NewLimiter(rate.Limit(10), 20),
		timeout: 30 * time.Second,
		log:     log.With().Str("component", "github_client").Logger(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// forRepo waits on the limiter, resolves a token for owner/repo, and
// returns an authenticated go-github client plus a deadline-bounded
// context. The caller must invoke cancel.
func (c *Client) forRepo(ctx context.Context, owner, repo string) (*github.Client, context.Context, context.CancelFunc, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, nil, nil, err
	}

	token, err := c.tokens.Token(ctx, owner, repo)
	if err != nil {
		return nil, nil, nil, err
	}

	client := github.NewClient(c.httpClient).WithAuthToken(token)
	if c.baseURL != "" {
		if u, err := url.Parse(c.baseURL); err == nil {
			client.BaseURL = u
		}
	}

	cancel := context.CancelFunc(func() {})
	if c.timeout > 0 {
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
	}
	return client, ctx, cancel, nil
}

// GetRef returns the commit SHA a branch head points at.
func (c *Client) GetRef(ctx context.Context, owner, repo, branch string) (string, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	defer cancel()

	ref, _, err := gh.Git.GetRef(ctx, owner, repo, "heads/"+branch)
	if err != nil {
		return "", fmt.Errorf("getting ref heads/%s: %w", branch, err)
	}
	return ref.GetObject().GetSHA(), nil
}

// CreateRef creates a new branch pointing at the given SHA.
func (c *Client) CreateRef(ctx context.Context, owner, repo, branch, sha string) error {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return err
	}
	defer cancel()

	_, _, err = gh.Git.CreateRef(ctx, owner, repo, github.CreateRef{
		Ref: "refs/heads/" + branch,
		SHA: sha,
	})
	if err != nil {
		return fmt.Errorf("creating ref refs/heads/%s: %w", branch, err)
	}
	return nil
}

// GetFileSHA returns the blob SHA of path on ref, or "" when the file does
// not exist there. Only the 404 is translated; every other error
// propagates.
func (c *Client) GetFileSHA(ctx context.Context, owner, repo, path, ref string) (string, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return "", err
	}
	defer cancel()

	content, _, resp, err := gh.Repositories.GetContents(ctx, owner, repo, path,
		&github.RepositoryContentGetOptions{Ref: ref})
	if err != nil {
		if resp != nil && resp.StatusCode == http.StatusNotFound {
			return "", nil
		}
		var errResp *github.ErrorResponse
		if errors.As(err, &errResp) && errResp.Response != nil && errResp.Response.StatusCode == http.StatusNotFound {
			return "", nil
		}
		return "", fmt.Errorf("getting contents of %s: %w", path, err)
	}
	if content == nil {
		// Path resolved to a directory listing.
		return "", nil
	}
	return content.GetSHA(), nil
}

// CreateOrUpdateFile commits one file to branch. When sha is non-empty the
// existing blob is replaced; otherwise the file is created.
func (c *Client) CreateOrUpdateFile(ctx context.Context, owner, repo, path, branch, message string, content []byte, sha string) error {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return err
	}
	defer cancel()

	opts := &github.RepositoryContentFileOptions{
		Message: github.Ptr(message),
		Content: content,
		Branch:  github.Ptr(branch),
	}
	if sha != "" {
		opts.SHA = github.Ptr(sha)
		if _, _, err := gh.Repositories.UpdateFile(ctx, owner, repo, path, opts); err != nil {
			return fmt.Errorf("updating %s on %s: %w", path, branch, err)
		}
		return nil
	}
	if _, _, err := gh.Repositories.CreateFile(ctx, owner, repo, path, opts); err != nil {
		return fmt.Errorf("creating %s on %s: %w", path, branch, err)
	}
	return nil
}

// CreatePullRequest opens a PR (draft when requested) and returns its
// number and URL.
func (c *Client) CreatePullRequest(ctx context.Context, owner, repo string, params PullRequestParams) (*PullRequest, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	defer cancel()

	pr, _, err := gh.PullRequests.Create(ctx, owner, repo, &github.NewPullRequest{
		Title: github.Ptr(params.Title),
		Body:  github.Ptr(params.Body),
		Head:  github.Ptr(params.Head),
		Base:  github.Ptr(params.Base),
		Draft: github.Ptr(params.Draft),
	})
	if err != nil {
		return nil, fmt.Errorf("creating pull request %s -> %s: %w", params.Head, params.Base, err)
	}
	return &PullRequest{Number: pr.GetNumber(), HTMLURL: pr.GetHTMLURL()}, nil
}

// GetPullRequest fetches head/base details for an existing PR. Needed on
// the comment-edited path, where the webhook payload only carries the
// issue number.
func (c *Client) GetPullRequest(ctx context.Context, owner, repo string, number int) (*models.WorkflowRun, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	defer cancel()

	pr, _, err := gh.PullRequests.Get(ctx, owner, repo, number)
	if err != nil {
		return nil, fmt.Errorf("getting pull request #%d: %w", number, err)
	}
	return &models.WorkflowRun{
		PRNumber:   number,
		HeadBranch: pr.GetHead().GetRef(),
		BaseBranch: pr.GetBase().GetRef(),
	}, nil
}

// CreateIssueComment posts a comment on a PR (issues and PRs share the
// comment endpoint) and returns the comment ID.
func (c *Client) CreateIssueComment(ctx context.Context, owner, repo string, number int, body string) (int64, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return 0, err
	}
	defer cancel()

	comment, _, err := gh.Issues.CreateComment(ctx, owner, repo, number, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return 0, fmt.Errorf("creating comment on #%d: %w", number, err)
	}
	return comment.GetID(), nil
}

// UpdateIssueComment rewrites an existing comment body.
func (c *Client) UpdateIssueComment(ctx context.Context, owner, repo string, commentID int64, body string) error {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return err
	}
	defer cancel()

	_, _, err = gh.Issues.EditComment(ctx, owner, repo, commentID, &github.IssueComment{
		Body: github.Ptr(body),
	})
	if err != nil {
		return fmt.Errorf("updating comment %d: %w", commentID, err)
	}
	return nil
}

// SetCommitStatus reports workflow progress on the PR's head commit. The
// SHA and state are validated locally; the description is truncated to
// GitHub's 140-character cap before submission.
func (c *Client) SetCommitStatus(ctx context.Context, owner, repo, sha, state, description, targetURL string) error {
	if len(sha) < 7 {
		return &ValidationError{Reason: fmt.Sprintf("commit sha %q is shorter than 7 characters", sha)}
	}
	switch state {
	case "pending", "success", "error", "failure":
	default:
		return &ValidationError{Reason: fmt.Sprintf("unknown status state %q", state)}
	}

	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return err
	}
	defer cancel()

	status := &github.RepoStatus{
		State:       github.Ptr(state),
		Description: github.Ptr(TruncateDescription(description)),
		Context:     github.Ptr("stackdraft/analysis"),
	}
	if targetURL != "" {
		status.TargetURL = github.Ptr(targetURL)
	}
	if _, _, err := gh.Repositories.CreateStatus(ctx, owner, repo, sha, *status); err != nil {
		return fmt.Errorf("setting commit status on %s: %w", sha, err)
	}
	return nil
}

// ListPullRequestFiles returns every file changed by the PR.
func (c *Client) ListPullRequestFiles(ctx context.Context, owner, repo string, number int) ([]models.ChangedFile, error) {
	gh, ctx, cancel, err := c.forRepo(ctx, owner, repo)
	if err != nil {
		return nil, err
	}
	defer cancel()

	var files []models.ChangedFile
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := gh.PullRequests.ListFiles(ctx, owner, repo, number, opts)
		if err != nil {
			return nil, fmt.Errorf("listing files of #%d: %w", number, err)
		}
		for _, f := range page {
			files = append(files, models.ChangedFile{
				Path:      f.GetFilename(),
				Status:    f.GetStatus(),
				Additions: f.GetAdditions(),
				Deletions: f.GetDeletions(),
				Patch:     f.GetPatch(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}
	return files, nil
}

// TruncateDescription enforces GitHub's 140-character status description
// limit, ending truncated text with an ellipsis.
func TruncateDescription(s string) string {
	if len(s) <= maxStatusDescription {
		return s
	}
	return s[:maxStatusDescription-3] + "..."
}
