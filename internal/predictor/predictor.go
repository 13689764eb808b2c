// Package predictor calls the external sleep quality classification service.
package predictor

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/BTreeMap/SleepAdvisor/internal/models"
)

// DefaultTimeout bounds a single prediction call.
const DefaultTimeout = 10 * time.Second

// maxResponseBytes caps how much of a reply is read.
const maxResponseBytes = 1 << 20

// Opts holds configuration for the predictor client.
type Opts struct {
	URL        string
	Timeout    time.Duration
	HTTPClient *http.Client
}

// Option defines a functional option for configuring the predictor client.
type Option func(*Opts)

// WithTimeout overrides DefaultTimeout.
func WithTimeout(d time.Duration) Option {
	return func(o *Opts) { o.Timeout = d }
}

// WithHTTPClient supplies a custom HTTP client.
func WithHTTPClient(c *http.Client) Option {
	return func(o *Opts) { o.HTTPClient = c }
}

// Client posts feature vectors to the predictor endpoint.
type Client struct {
	url     string
	timeout time.Duration
	http    *http.Client
}

// NewClient creates a predictor client for url.
func NewClient(url string, opts ...Option) (*Client, error) {
	if url == "" {
		return nil, fmt.Errorf("predictor URL is required")
	}
	cfg := Opts{URL: url, Timeout: DefaultTimeout}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.HTTPClient == nil {
		cfg.HTTPClient = &http.Client{}
	}
	return &Client{url: cfg.URL, timeout: cfg.Timeout, http: cfg.HTTPClient}, nil
}

// Predict sends req and returns the validated reply. Failures are classified as
// models.ErrUpstreamTimeout, *models.UpstreamStatusError, models.ErrUpstreamMalformed
// or models.ErrUpstream.
func (c *Client) Predict(ctx context.Context, req models.PredictionRequest) (models.PredictionResponse, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return models.PredictionResponse{}, fmt.Errorf("%w: marshal request: %v", models.ErrUpstream, err)
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	requestID := uuid.NewString()
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, c.url, bytes.NewReader(body))
	if err != nil {
		return models.PredictionResponse{}, fmt.Errorf("%w: create request: %v", models.ErrUpstream, err)
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Accept", "application/json")
	httpReq.Header.Set("X-Request-ID", requestID)

	start := time.Now()
	resp, err := c.http.Do(httpReq)
	if err != nil {
		if isTimeout(ctx, err) {
			slog.Warn("Predictor.Predict: timed out", "request_id", requestID, "timeout", c.timeout)
			return models.PredictionResponse{}, fmt.Errorf("%w after %s", models.ErrUpstreamTimeout, c.timeout)
		}
		slog.Error("Predictor.Predict: request failed", "request_id", requestID, "error", err)
		return models.PredictionResponse{}, fmt.Errorf("%w: %v", models.ErrUpstream, err)
	}
	defer func() { _ = resp.Body.Close() }()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		if isTimeout(ctx, err) {
			return models.PredictionResponse{}, fmt.Errorf("%w while reading body", models.ErrUpstreamTimeout)
		}
		return models.PredictionResponse{}, fmt.Errorf("%w: read response: %v", models.ErrUpstream, err)
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		slog.Warn("Predictor.Predict: non-success status", "request_id", requestID, "status", resp.StatusCode, "body", truncate(respBody, 200))
		return models.PredictionResponse{}, &models.UpstreamStatusError{StatusCode: resp.StatusCode}
	}

	var out models.PredictionResponse
	if err := json.Unmarshal(respBody, &out); err != nil {
		return models.PredictionResponse{}, fmt.Errorf("%w: %v", models.ErrUpstreamMalformed, err)
	}
	if out.Label == nil {
		return models.PredictionResponse{}, fmt.Errorf("%w: missing sleep_quality_label", models.ErrUpstreamMalformed)
	}
	if !models.IsValidLabel(*out.Label) {
		return models.PredictionResponse{}, fmt.Errorf("%w: unknown label %d", models.ErrUpstreamMalformed, *out.Label)
	}

	slog.Debug("Predictor.Predict: prediction received", "request_id", requestID, "label", *out.Label, "duration", time.Since(start))
	return out, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(ctx.Err(), context.DeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}

func truncate(b []byte, n int) string {
	if len(b) <= n {
		return string(b)
	}
	return string(b[:n]) + "..."
}
