package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/go-github/v84/github"
	"github.com/rs/zerolog"
)

// installationListTTL bounds how long a fetched installation list is reused
// when several repositories resolve back to back.
const installationListTTL = 10 * time.Minute

// Installation is the slice of the provider's installation record we care
// about: the ID we exchange for tokens and the account it is bound to.
type Installation struct {
	ID           int64
	AccountLogin string
	AccountType  string
}

// Resolver maps a repository to the installation that grants the app access
// to it. Matching the account login alone is not enough — an app can be
// installed on an org without being granted a specific private repository —
// so a name match is always confirmed by an authenticated read probe.
type Resolver struct {
	creds      *Credentials
	baseURL    string
	httpClient *http.Client
	pinnedID   int64
	log        zerolog.Logger
	now        func() time.Time

	mu            sync.Mutex
	installations []Installation
	fetchedAt     time.Time
	repoInstalls  map[string]int64 // owner/repo (lowercased) -> installation ID, never invalidated
}

// ResolverOption configures a Resolver.
type ResolverOption func(*Resolver)

// WithBaseURL points the resolver at a non-default API endpoint. Used by
// tests and GitHub Enterprise deployments. The URL must end with a slash.
func WithBaseURL(u string) ResolverOption {
	return func(r *Resolver) { r.baseURL = u }
}

// WithHTTPClient overrides the HTTP client used for API calls.
func WithHTTPClient(c *http.Client) ResolverOption {
	return func(r *Resolver) { r.httpClient = c }
}

// WithPinnedInstallation skips discovery entirely and uses the given
// installation ID for every repository.
func WithPinnedInstallation(id int64) ResolverOption {
	return func(r *Resolver) { r.pinnedID = id }
}

// NewResolver creates a resolver backed by the given app credentials.
func NewResolver(creds *Credentials, log zerolog.Logger, opts ...ResolverOption) *Resolver {
	r := &Resolver{
		creds:        creds,
		log:          log.With().Str("component", "installation_resolver").Logger(),
		now:          time.Now,
		repoInstalls: make(map[string]int64),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// RepoKey is the canonical cache key for a repository.
func RepoKey(owner, repo string) string {
	return strings.ToLower(owner + "/" + repo)
}

// ListInstallations returns every installation of the app, authenticated
// with a fresh signed assertion. Results are cached for a bounded window.
func (r *Resolver) ListInstallations(ctx context.Context) ([]Installation, error) {
	r.mu.Lock()
	if r.installations != nil && r.now().Sub(r.fetchedAt) < installationListTTL {
		cached := r.installations
		r.mu.Unlock()
		return cached, nil
	}
	r.mu.Unlock()

	assertion, err := r.creds.Sign()
	if err != nil {
		return nil, err
	}
	client := r.newClient(assertion.Token)

	var all []Installation
	opts := &github.ListOptions{PerPage: 100}
	for {
		page, resp, err := client.Apps.ListInstallations(ctx, opts)
		if err != nil {
			return nil, fmt.Errorf("listing installations: %w", err)
		}
		for _, inst := range page {
			all = append(all, Installation{
				ID:           inst.GetID(),
				AccountLogin: inst.GetAccount().GetLogin(),
				AccountType:  inst.GetAccount().GetType(),
			})
		}
		if resp.NextPage == 0 {
			break
		}
		opts.Page = resp.NextPage
	}

	r.mu.Lock()
	r.installations = all
	r.fetchedAt = r.now()
	r.mu.Unlock()

	r.log.Debug().Int("count", len(all)).Msg("fetched app installations")
	return all, nil
}

// ResolveForRepo finds the installation ID that grants access to
// owner/repo. The two-stage check (cheap login match, then an authenticated
// repository read) avoids false positives. The result is cached for the
// process lifetime; installations are assumed stable.
func (r *Resolver) ResolveForRepo(ctx context.Context, owner, repo string) (int64, error) {
	if r.pinnedID != 0 {
		return r.pinnedID, nil
	}

	key := RepoKey(owner, repo)
	r.mu.Lock()
	if id, ok := r.repoInstalls[key]; ok {
		r.mu.Unlock()
		return id, nil
	}
	r.mu.Unlock()

	installations, err := r.ListInstallations(ctx)
	if err != nil {
		return 0, err
	}

	for _, inst := range installations {
		if !strings.EqualFold(inst.AccountLogin, owner) {
			continue
		}
		token, _, err := r.MintToken(ctx, inst.ID)
		if err != nil {
			r.log.Warn().Err(err).Int64("installation_id", inst.ID).Msg("could not mint probe token")
			continue
		}
		if _, _, err := r.newClient(token).Repositories.Get(ctx, owner, repo); err != nil {
			r.log.Debug().Err(err).Int64("installation_id", inst.ID).
				Str("repo", key).Msg("access probe failed")
			continue
		}

		r.mu.Lock()
		r.repoInstalls[key] = inst.ID
		r.mu.Unlock()
		return inst.ID, nil
	}

	return 0, &NotInstalledError{Owner: owner, Repo: repo}
}

// MintToken exchanges the app credential for an installation-scoped bearer
// token. Every call mints a fresh token; caching is the TokenCache's job.
func (r *Resolver) MintToken(ctx context.Context, installationID int64) (string, time.Time, error) {
	assertion, err := r.creds.Sign()
	if err != nil {
		return "", time.Time{}, err
	}
	client := r.newClient(assertion.Token)

	tok, _, err := client.Apps.CreateInstallationToken(ctx, installationID, &github.InstallationTokenOptions{})
	if err != nil {
		return "", time.Time{}, fmt.Errorf("minting installation token: %w", err)
	}
	return tok.GetToken(), tok.GetExpiresAt().Time, nil
}

func (r *Resolver) newClient(token string) *github.Client {
	client := github.NewClient(r.httpClient).WithAuthToken(token)
	if r.baseURL != "" {
		if u, err := url.Parse(r.baseURL); err == nil {
			client.BaseURL = u
		}
	}
	return client
}
