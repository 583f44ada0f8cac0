package webhookutils

import (
	"net/http"
	"strings"
)

// GetHeaderCaseInsensitive retrieves a header value using case-insensitive
// key matching. Go's HTTP library canonicalizes header keys (e.g.
// X-GitHub-Event arrives as X-Github-Event), so exact string matches on the
// delivery headers GitHub documents can fail.
func GetHeaderCaseInsensitive(headers http.Header, key string) (string, bool) {
	keyLower := strings.ToLower(key)
	for k, v := range headers {
		if strings.ToLower(k) == keyLower && len(v) > 0 {
			return v[0], true
		}
	}
	return "", false
}
