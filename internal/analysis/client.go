// Package analysis talks to the external file-analysis service. The
// service is opaque to us: we hand it the PR's changed files and get back
// a list of files to create or update.
package analysis

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/stackdraft/pkg/models"
)

// APIError is any non-2xx or malformed response from the analysis service.
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	if e.StatusCode == 0 {
		return fmt.Sprintf("analysis api: malformed response: %s", e.Body)
	}
	return fmt.Sprintf("analysis api: status %d: %s", e.StatusCode, e.Body)
}

type analyzeRequest struct {
	ChangedFiles []models.ChangedFile `json:"changedFiles"`
}

type analyzeResponse struct {
	AnalysisID    string                    `json:"analysisId"`
	FilesToCreate []models.AnalysisArtifact `json:"filesToCreate"`
	Timestamp     string                    `json:"timestamp"`
}

// Client calls the analysis service.
type Client struct {
	baseURL    string
	httpClient *http.Client
	timeout    time.Duration
	log        zerolog.Logger
}

// NewClient creates a Client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL:    strings.TrimRight(baseURL, "/"),
		httpClient: &http.Client{},
		timeout:    timeout,
		log:        log.With().Str("component", "analysis_client").Logger(),
	}
}

// AnalyzeFiles submits the changed-file list and returns the artifacts the
// service wants written. An empty artifact list is a valid outcome and
// means there is nothing to generate.
func (c *Client) AnalyzeFiles(ctx context.Context, changed []models.ChangedFile) ([]models.AnalysisArtifact, error) {
	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}

	payload, err := json.Marshal(analyzeRequest{ChangedFiles: changed})
	if err != nil {
		return nil, fmt.Errorf("encoding analysis request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/analyze-files", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("building analysis request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("calling analysis api: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 10<<20))
	if err != nil {
		return nil, fmt.Errorf("reading analysis response: %w", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: truncateBody(body)}
	}

	var out analyzeResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, &APIError{Body: truncateBody(body)}
	}

	c.log.Info().Str("analysis_id", out.AnalysisID).
		Int("artifacts", len(out.FilesToCreate)).Msg("analysis completed")
	return out.FilesToCreate, nil
}

func truncateBody(b []byte) string {
	const max = 512
	if len(b) <= max {
		return string(b)
	}
	return string(b[:max]) + "..."
}
