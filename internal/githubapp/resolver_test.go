package githubapp

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeGitHub is a minimal stand-in for the app-auth endpoints the resolver
// touches: installation listing, token minting, and the repository probe.
type fakeGitHub struct {
	installations   string // JSON array served for GET /app/installations
	probeOK         map[string]bool
	probeAllowToken string // when set, probes succeed only with this bearer token
	listCalls       atomic.Int64
	mintCalls       atomic.Int64
	probeCalls      atomic.Int64
}

func (f *fakeGitHub) server(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("GET /app/installations", func(w http.ResponseWriter, r *http.Request) {
		f.listCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, f.installations)
	})
	mux.HandleFunc("POST /app/installations/{id}/access_tokens", func(w http.ResponseWriter, r *http.Request) {
		f.mintCalls.Add(1)
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		expires := time.Now().Add(time.Hour).UTC().Format(time.RFC3339)
		fmt.Fprintf(w, `{"token":"ghs_inst%s","expires_at":%q}`, r.PathValue("id"), expires)
	})
	mux.HandleFunc("GET /repos/{owner}/{repo}", func(w http.ResponseWriter, r *http.Request) {
		f.probeCalls.Add(1)
		key := r.PathValue("owner") + "/" + r.PathValue("repo")
		if f.probeAllowToken != "" && r.Header.Get("Authorization") != "Bearer "+f.probeAllowToken {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		if !f.probeOK[key] {
			http.Error(w, `{"message":"Not Found"}`, http.StatusNotFound)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"full_name":%q}`, key)
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func newTestResolver(t *testing.T, fake *fakeGitHub, opts ...ResolverOption) *Resolver {
	t.Helper()
	pemStr, _ := testKeyPEM(t)
	creds, err := LoadCredentials("12345", pemStr, "")
	require.NoError(t, err)
	srv := fake.server(t)
	opts = append([]ResolverOption{WithBaseURL(srv.URL + "/")}, opts...)
	return NewResolver(creds, zerolog.Nop(), opts...)
}

func TestResolveForRepo(t *testing.T) {
	t.Run("MatchAndProbePass", func(t *testing.T) {
		fake := &fakeGitHub{
			installations: `[{"id":11,"account":{"login":"Acme","type":"Organization"}}]`,
			probeOK:       map[string]bool{"acme/widgets": true},
		}
		r := newTestResolver(t, fake)

		id, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, int64(11), id)
	})

	t.Run("LoginMatchIsCaseInsensitive", func(t *testing.T) {
		fake := &fakeGitHub{
			installations: `[{"id":11,"account":{"login":"ACME","type":"Organization"}}]`,
			probeOK:       map[string]bool{"acme/widgets": true},
		}
		r := newTestResolver(t, fake)

		id, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, int64(11), id)
	})

	t.Run("NoLoginMatch", func(t *testing.T) {
		fake := &fakeGitHub{
			installations: `[{"id":11,"account":{"login":"someoneelse","type":"User"}}]`,
		}
		r := newTestResolver(t, fake)

		_, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		var notInstalled *NotInstalledError
		require.ErrorAs(t, err, &notInstalled)
		assert.Equal(t, "acme", notInstalled.Owner)
		assert.Equal(t, int64(0), fake.probeCalls.Load(), "no probe without a login match")
	})

	t.Run("LoginMatchButProbeFails", func(t *testing.T) {
		fake := &fakeGitHub{
			installations: `[{"id":11,"account":{"login":"acme","type":"Organization"}}]`,
			probeOK:       map[string]bool{}, // installed on the org, repo not granted
		}
		r := newTestResolver(t, fake)

		_, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		var notInstalled *NotInstalledError
		require.ErrorAs(t, err, &notInstalled)
		assert.Equal(t, int64(1), fake.probeCalls.Load())
	})

	t.Run("FirstPassingInstallationWins", func(t *testing.T) {
		// Two installations match on login; only the second one's token can
		// read the repository. The resolver must keep probing past the first.
		fake := &fakeGitHub{
			installations: `[
				{"id":11,"account":{"login":"acme","type":"Organization"}},
				{"id":22,"account":{"login":"acme","type":"Organization"}}
			]`,
			probeOK:         map[string]bool{"acme/widgets": true},
			probeAllowToken: "ghs_inst22",
		}
		r := newTestResolver(t, fake)

		id, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		assert.Equal(t, int64(22), id)
		assert.Equal(t, int64(2), fake.probeCalls.Load())
	})

	t.Run("ResolutionIsCachedForProcessLifetime", func(t *testing.T) {
		fake := &fakeGitHub{
			installations: `[{"id":11,"account":{"login":"acme","type":"Organization"}}]`,
			probeOK:       map[string]bool{"acme/widgets": true},
		}
		r := newTestResolver(t, fake)

		_, err := r.ResolveForRepo(context.Background(), "acme", "widgets")
		require.NoError(t, err)
		_, err = r.ResolveForRepo(context.Background(), "ACME", "Widgets")
		require.NoError(t, err)

		assert.Equal(t, int64(1), fake.probeCalls.Load(), "second resolve must hit the repo mapping")
	})

	t.Run("PinnedInstallationSkipsDiscovery", func(t *testing.T) {
		fake := &fakeGitHub{installations: `[]`}
		r := newTestResolver(t, fake, WithPinnedInstallation(777))

		id, err := r.ResolveForRepo(context.Background(), "anyone", "anything")
		require.NoError(t, err)
		assert.Equal(t, int64(777), id)
		assert.Equal(t, int64(0), fake.listCalls.Load())
	})
}

func TestListInstallationsTTL(t *testing.T) {
	fake := &fakeGitHub{
		installations: `[{"id":11,"account":{"login":"acme","type":"Organization"}}]`,
	}
	r := newTestResolver(t, fake)

	base := time.Date(2026, 3, 14, 12, 0, 0, 0, time.UTC)
	current := base
	r.now = func() time.Time { return current }

	_, err := r.ListInstallations(context.Background())
	require.NoError(t, err)
	_, err = r.ListInstallations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(1), fake.listCalls.Load(), "second list within TTL must be served from cache")

	current = base.Add(installationListTTL + time.Second)
	_, err = r.ListInstallations(context.Background())
	require.NoError(t, err)
	assert.Equal(t, int64(2), fake.listCalls.Load(), "stale list must be refetched")
}
