package githubapp

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// tokenExpiryBuffer is how long before expiry a cached token stops being
// trusted. Installation tokens live an hour; refreshing five minutes early
// keeps a token valid for the whole of any in-flight workflow.
const tokenExpiryBuffer = 5 * time.Minute

type cachedToken struct {
	token     string
	expiresAt time.Time
}

// TokenCache hands out installation tokens keyed by repository. Cache hits
// cost no network calls, which is the main latency and quota optimization
// of the whole authentication layer.
//
// There is deliberately no single-flight deduplication: two goroutines
// racing on a cold key may both mint a token. GitHub allows multiple live
// installation tokens, so this is an inefficiency, not a correctness bug.
type TokenCache struct {
	resolver *Resolver
	log      zerolog.Logger
	now      func() time.Time

	mu     sync.Mutex
	tokens map[string]cachedToken
}

// NewTokenCache creates an empty cache backed by the given resolver.
func NewTokenCache(resolver *Resolver, log zerolog.Logger) *TokenCache {
	return &TokenCache{
		resolver: resolver,
		log:      log.With().Str("component", "token_cache").Logger(),
		now:      time.Now,
		tokens:   make(map[string]cachedToken),
	}
}

// Token returns a bearer token valid for owner/repo. A cached token is
// reused while it has more than tokenExpiryBuffer of life left; otherwise
// the installation is resolved and a fresh token minted and stored.
func (tc *TokenCache) Token(ctx context.Context, owner, repo string) (string, error) {
	key := RepoKey(owner, repo)

	tc.mu.Lock()
	if cached, ok := tc.tokens[key]; ok && tc.now().Add(tokenExpiryBuffer).Before(cached.expiresAt) {
		tc.mu.Unlock()
		return cached.token, nil
	}
	tc.mu.Unlock()

	installationID, err := tc.resolver.ResolveForRepo(ctx, owner, repo)
	if err != nil {
		return "", err
	}

	token, expiresAt, err := tc.resolver.MintToken(ctx, installationID)
	if err != nil {
		return "", err
	}

	tc.mu.Lock()
	tc.tokens[key] = cachedToken{token: token, expiresAt: expiresAt}
	tc.mu.Unlock()

	tc.log.Debug().Str("repo", key).Time("expires_at", expiresAt).Msg("minted installation token")
	return token, nil
}
