package api

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/stackdraft/internal/orchestrator"
)

type fakeOrchestrator struct {
	prOpened      []orchestrator.PullRequestOpened
	commentEdited []orchestrator.CommentEdited
	result        orchestrator.Result
	err           error
}

func (f *fakeOrchestrator) HandlePullRequestOpened(_ context.Context, ev orchestrator.PullRequestOpened) (orchestrator.Result, error) {
	f.prOpened = append(f.prOpened, ev)
	return f.result, f.err
}

func (f *fakeOrchestrator) HandleCommentEdited(_ context.Context, ev orchestrator.CommentEdited) (orchestrator.Result, error) {
	f.commentEdited = append(f.commentEdited, ev)
	return f.result, f.err
}

func postWebhook(t *testing.T, s *Server, event string, body string, secret string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("X-GitHub-Event", event)
	req.Header.Set("X-GitHub-Delivery", "d-1")
	if secret != "" {
		mac := hmac.New(sha256.New, []byte(secret))
		mac.Write([]byte(body))
		req.Header.Set("X-Hub-Signature-256", "sha256="+hex.EncodeToString(mac.Sum(nil)))
	}
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

const prOpenedPayload = `{
	"action": "opened",
	"repository": {"name": "widgets", "owner": {"login": "acme"}},
	"pull_request": {
		"number": 42,
		"head": {"ref": "feature-x", "sha": "abc1234def"},
		"base": {"ref": "main"}
	}
}`

const commentEditedPayload = `{
	"action": "edited",
	"repository": {"name": "widgets", "owner": {"login": "acme"}},
	"issue": {"number": 42, "pull_request": {"url": "https://api.github.com/repos/acme/widgets/pulls/42"}},
	"comment": {"id": 7, "body": "- [x] **Analyze and create new PR**"}
}`

func TestHealthHandler(t *testing.T) {
	s := NewServer("127.0.0.1", 0, "", &fakeOrchestrator{}, zerolog.Nop())

	req := httptest.NewRequest(http.MethodGet, "/health", nil)
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "ok", body["status"])
	assert.NotEmpty(t, body["timestamp"])
}

func TestWebhookDispatch(t *testing.T) {
	t.Run("PullRequestOpened", func(t *testing.T) {
		orch := &fakeOrchestrator{result: orchestrator.Result{Message: "awaiting choice"}}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		rec := postWebhook(t, s, "pull_request", prOpenedPayload, "")
		require.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, orch.prOpened, 1)
		ev := orch.prOpened[0]
		assert.Equal(t, "acme", ev.Owner)
		assert.Equal(t, "widgets", ev.Repo)
		assert.Equal(t, 42, ev.Number)
		assert.Equal(t, "feature-x", ev.HeadBranch)
		assert.Equal(t, "abc1234def", ev.HeadSHA)
	})

	t.Run("PullRequestNonOpenedActionIsAcked", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		payload := strings.Replace(prOpenedPayload, `"opened"`, `"synchronize"`, 1)
		rec := postWebhook(t, s, "pull_request", payload, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), ackMessage)
		assert.Empty(t, orch.prOpened)
	})

	t.Run("CommentEdited", func(t *testing.T) {
		orch := &fakeOrchestrator{result: orchestrator.Result{Message: "done"}}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		rec := postWebhook(t, s, "issue_comment", commentEditedPayload, "")
		require.Equal(t, http.StatusOK, rec.Code)

		require.Len(t, orch.commentEdited, 1)
		ev := orch.commentEdited[0]
		assert.Equal(t, 42, ev.PRNumber)
		assert.Equal(t, int64(7), ev.CommentID)
		assert.Contains(t, ev.Body, "Analyze and create new PR")
	})

	t.Run("CommentOnPlainIssueIsAcked", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		payload := `{
			"action": "edited",
			"repository": {"name": "widgets", "owner": {"login": "acme"}},
			"issue": {"number": 42},
			"comment": {"id": 7, "body": "- [x] **Analyze and create new PR**"}
		}`

		rec := postWebhook(t, s, "issue_comment", payload, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), ackMessage)
		assert.Empty(t, orch.commentEdited)
	})

	t.Run("UnknownEventIsAcked", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		rec := postWebhook(t, s, "push", `{"ref":"refs/heads/main"}`, "")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Contains(t, rec.Body.String(), ackMessage)
		assert.Empty(t, orch.prOpened)
		assert.Empty(t, orch.commentEdited)
	})

	t.Run("HandlerErrorBecomes500", func(t *testing.T) {
		orch := &fakeOrchestrator{err: assert.AnError}
		s := NewServer("127.0.0.1", 0, "", orch, zerolog.Nop())

		rec := postWebhook(t, s, "pull_request", prOpenedPayload, "")
		require.Equal(t, http.StatusInternalServerError, rec.Code)
		assert.Contains(t, rec.Body.String(), `"success":false`)
	})
}

func TestWebhookSignature(t *testing.T) {
	t.Run("ValidSignatureAccepted", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "s3cret", orch, zerolog.Nop())

		rec := postWebhook(t, s, "pull_request", prOpenedPayload, "s3cret")
		require.Equal(t, http.StatusOK, rec.Code)
		assert.Len(t, orch.prOpened, 1)
	})

	t.Run("BadSignatureRejected", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "s3cret", orch, zerolog.Nop())

		rec := postWebhook(t, s, "pull_request", prOpenedPayload, "wrong-secret")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, orch.prOpened)
	})

	t.Run("MissingSignatureRejected", func(t *testing.T) {
		orch := &fakeOrchestrator{}
		s := NewServer("127.0.0.1", 0, "s3cret", orch, zerolog.Nop())

		rec := postWebhook(t, s, "pull_request", prOpenedPayload, "")
		require.Equal(t, http.StatusUnauthorized, rec.Code)
		assert.Empty(t, orch.prOpened)
	})
}
