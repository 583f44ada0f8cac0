package webhookutils

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetHeaderCaseInsensitive(t *testing.T) {
	headers := http.Header{}
	headers.Set("X-GitHub-Event", "pull_request") // stored as X-Github-Event

	v, ok := GetHeaderCaseInsensitive(headers, "X-GitHub-Event")
	assert.True(t, ok)
	assert.Equal(t, "pull_request", v)

	v, ok = GetHeaderCaseInsensitive(headers, "x-github-event")
	assert.True(t, ok)
	assert.Equal(t, "pull_request", v)

	_, ok = GetHeaderCaseInsensitive(headers, "X-GitHub-Delivery")
	assert.False(t, ok)
}
