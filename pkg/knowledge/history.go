package knowledge

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/rs/zerolog"

	pkgerrors "github.com/TFMV/scout/pkg/errors"
)

// HistoryEntry is one previously answered question.
type HistoryEntry struct {
	RunID      string    `json:"run_id"`
	Question   string    `json:"question"`
	Answer     string    `json:"answer"`
	SQL        string    `json:"sql,omitempty"`
	AnsweredAt time.Time `json:"answered_at"`
}

// HistoryClient looks up and records answered questions. Lookups are
// advisory: callers must treat failures as an empty result, never as a
// reason to abort a run.
type HistoryClient interface {
	Search(ctx context.Context, question string, limit int) ([]HistoryEntry, error)
	Record(ctx context.Context, entry HistoryEntry) error
}

// HTTPHistoryClient talks to the query-history service over HTTP.
type HTTPHistoryClient struct {
	baseURL string
	client  *http.Client
	logger  zerolog.Logger
}

// NewHTTPHistoryClient creates a history client for the given base URL.
func NewHTTPHistoryClient(baseURL string, timeout time.Duration, logger zerolog.Logger) *HTTPHistoryClient {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &HTTPHistoryClient{
		baseURL: baseURL,
		client:  &http.Client{Timeout: timeout},
		logger:  logger,
	}
}

// Search returns past questions similar to the given one.
func (c *HTTPHistoryClient) Search(ctx context.Context, question string, limit int) ([]HistoryEntry, error) {
	if limit <= 0 {
		limit = 5
	}

	endpoint := fmt.Sprintf("%s/v1/history?q=%s&limit=%s",
		c.baseURL, url.QueryEscape(question), strconv.Itoa(limit))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to build history request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Query history service unreachable")
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeServiceUnavailable,
			"query history service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Query history service error")
		return nil, pkgerrors.New(pkgerrors.CodeServiceUnavailable,
			fmt.Sprintf("query history service returned status %d", resp.StatusCode))
	}

	var entries []HistoryEntry
	if err := json.NewDecoder(resp.Body).Decode(&entries); err != nil {
		return nil, pkgerrors.Wrap(err, pkgerrors.CodeServiceUnavailable,
			"failed to decode history response")
	}
	return entries, nil
}

// Record stores a finished run. Failures are logged, not propagated, so
// recording never affects the answer returned to the caller.
func (c *HTTPHistoryClient) Record(ctx context.Context, entry HistoryEntry) error {
	body, err := json.Marshal(entry)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to encode history entry")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		c.baseURL+"/v1/history", bytes.NewReader(body))
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to build history request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		c.logger.Warn().Err(err).Msg("Failed to record run in query history")
		return pkgerrors.Wrap(err, pkgerrors.CodeServiceUnavailable,
			"query history service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode >= 300 {
		c.logger.Warn().Int("status", resp.StatusCode).Msg("Query history rejected run record")
		return pkgerrors.New(pkgerrors.CodeServiceUnavailable,
			fmt.Sprintf("query history service returned status %d", resp.StatusCode))
	}
	return nil
}

// HealthCheck probes the history service. Used at startup to log whether
// the optional capability is live; a failure is not fatal.
func (c *HTTPHistoryClient) HealthCheck(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/healthz", nil)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeInternal, "failed to build history request")
	}

	resp, err := c.client.Do(req)
	if err != nil {
		return pkgerrors.Wrap(err, pkgerrors.CodeServiceUnavailable,
			"query history service unreachable")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return pkgerrors.New(pkgerrors.CodeServiceUnavailable,
			fmt.Sprintf("query history service returned status %d", resp.StatusCode))
	}
	return nil
}

var _ HistoryClient = (*HTTPHistoryClient)(nil)
