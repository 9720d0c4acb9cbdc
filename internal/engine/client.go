// Package engine is the HTTP client for the substitution-resolution engine.
// The engine detects a product series from an MPN and generates substitution
// candidates; this package only moves requests and responses.
package engine

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"mime"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/sydlexius/partsub/internal/part"
)

const (
	pathBatch  = "/api/batch"
	pathExport = "/api/batch/export"
	pathLookup = "/api/generate"
	pathHealth = "/health"

	maxLookupBody = 8 << 20
	maxExportBody = 64 << 20
)

// Config holds the client settings.
type Config struct {
	BaseURL       string
	Timeout       time.Duration
	RatePerSecond float64
}

// BatchRequest is the body of a batch lookup or export.
type BatchRequest struct {
	Brand part.Brand `json:"brand"`
	MPNs  []string   `json:"mpns"`
}

// Export is the payload returned by a batch export. Its content is opaque.
type Export struct {
	Data        []byte
	ContentType string
	// Filename is the server-suggested name from Content-Disposition, if any.
	Filename string
}

// Client talks to the resolution engine over HTTP.
type Client struct {
	client  *http.Client
	limiter *rate.Limiter
	logger  *slog.Logger
	baseURL string
}

// New creates a Client for the engine at cfg.BaseURL.
func New(cfg Config, logger *slog.Logger) *Client {
	limit := rate.Inf
	if cfg.RatePerSecond > 0 {
		limit = rate.Limit(cfg.RatePerSecond)
	}
	return &Client{
		client:  &http.Client{Timeout: cfg.Timeout},
		limiter: rate.NewLimiter(limit, 1),
		logger:  logger.With(slog.String("component", "engine")),
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
	}
}

// BaseURL returns the engine location the client was configured with.
func (c *Client) BaseURL() string { return c.baseURL }

// LookupBatch resolves every MPN in req. The number of results need not
// match the reported total.
func (c *Client) LookupBatch(ctx context.Context, req BatchRequest) (*part.BatchResult, error) {
	resp, err := c.post(ctx, OpLookupBatch, pathBatch, req, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := readBody(resp.Body, OpLookupBatch, maxLookupBody)
	if err != nil {
		return nil, err
	}

	var result part.BatchResult
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, &ErrMalformed{Op: OpLookupBatch, Cause: err}
	}

	c.logger.Debug("batch lookup completed",
		slog.String("brand", string(req.Brand)),
		slog.Int("requested", len(req.MPNs)),
		slog.Int("results", result.Len()),
		slog.Int("undetected", result.Undetected()))

	return &result, nil
}

// ExportBatch requests a spreadsheet for every MPN in req.
func (c *Client) ExportBatch(ctx context.Context, req BatchRequest) (*Export, error) {
	resp, err := c.post(ctx, OpExportBatch, pathExport, req, "*/*")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	data, err := readBody(resp.Body, OpExportBatch, maxExportBody)
	if err != nil {
		return nil, err
	}

	out := &Export{
		Data:        data,
		ContentType: resp.Header.Get("Content-Type"),
		Filename:    dispositionFilename(resp.Header.Get("Content-Disposition")),
	}

	c.logger.Debug("batch export completed",
		slog.String("brand", string(req.Brand)),
		slog.Int("requested", len(req.MPNs)),
		slog.Int("bytes", len(data)),
		slog.String("content_type", out.ContentType))

	return out, nil
}

// singleResponse is the body of the single-MPN lookup endpoint.
type singleResponse struct {
	Brand         string              `json:"brand"`
	MPN           string              `json:"mpn"`
	Series        part.Detection      `json:"series"`
	Substitutions []part.Substitution `json:"substitutions"`
	Error         string              `json:"error,omitempty"`
}

// Lookup resolves a single MPN. An undetected series is a normal result.
func (c *Client) Lookup(ctx context.Context, brand part.Brand, mpn string) (*part.MpnResult, error) {
	params := url.Values{
		"brand": {string(brand)},
		"mpn":   {mpn},
	}
	resp, err := c.do(ctx, OpLookup, http.MethodGet, pathLookup+"?"+params.Encode(), nil, "application/json")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close() //nolint:errcheck

	body, err := readBody(resp.Body, OpLookup, maxLookupBody)
	if err != nil {
		return nil, err
	}

	var sr singleResponse
	if err := json.Unmarshal(body, &sr); err != nil {
		return nil, &ErrMalformed{Op: OpLookup, Cause: err}
	}
	if sr.Error != "" {
		c.logger.Warn("engine reported lookup problem",
			slog.String("brand", string(brand)),
			slog.String("mpn", mpn),
			slog.String("detail", sr.Error))
	}

	result := &part.MpnResult{
		MPN:           mpn,
		Detection:     sr.Series,
		Substitutions: sr.Substitutions,
	}
	if !result.Detection.IsValid() {
		result.Detection = part.Undetected()
	}
	if result.Substitutions == nil {
		result.Substitutions = []part.Substitution{}
	}
	return result, nil
}

// readBody reads at most limit bytes. A longer body is an error rather than
// a silently truncated payload.
func readBody(r io.Reader, op Op, limit int64) ([]byte, error) {
	data, err := io.ReadAll(io.LimitReader(r, limit+1))
	if err != nil {
		return nil, &ErrUnavailable{Op: op, Cause: fmt.Errorf("reading body: %w", err)}
	}
	if int64(len(data)) > limit {
		return nil, &ErrUnavailable{Op: op, Cause: fmt.Errorf("response body exceeds %d bytes", limit)}
	}
	return data, nil
}

// Health checks that the engine is up.
func (c *Client) Health(ctx context.Context) error {
	resp, err := c.do(ctx, OpHealth, http.MethodGet, pathHealth, nil, "application/json")
	if err != nil {
		return err
	}
	defer resp.Body.Close() //nolint:errcheck

	var status struct {
		Status string `json:"status"`
	}
	body, err := io.ReadAll(io.LimitReader(resp.Body, 64<<10))
	if err != nil {
		return &ErrUnavailable{Op: OpHealth, Cause: fmt.Errorf("reading body: %w", err)}
	}
	if err := json.Unmarshal(body, &status); err != nil {
		return &ErrMalformed{Op: OpHealth, Cause: err}
	}
	if !strings.EqualFold(status.Status, "healthy") {
		return &ErrUnavailable{Op: OpHealth, Cause: fmt.Errorf("engine reports status %q", status.Status)}
	}
	return nil
}

func (c *Client) post(ctx context.Context, op Op, path string, req BatchRequest, accept string) (*http.Response, error) {
	payload, err := json.Marshal(req)
	if err != nil {
		return nil, fmt.Errorf("encoding %s request: %w", op, err)
	}
	return c.do(ctx, op, http.MethodPost, path, payload, accept)
}

// do sends one request and returns the response only for 2xx statuses.
// The caller closes the body.
func (c *Client) do(ctx context.Context, op Op, method, path string, payload []byte, accept string) (*http.Response, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &ErrUnavailable{Op: op, Cause: fmt.Errorf("rate limiter: %w", err)}
	}

	var body io.Reader
	if payload != nil {
		body = bytes.NewReader(payload)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, body)
	if err != nil {
		return nil, fmt.Errorf("building %s request: %w", op, err)
	}
	requestID := uuid.NewString()
	req.Header.Set("Accept", accept)
	req.Header.Set("X-Request-ID", requestID)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	start := time.Now()
	resp, err := c.client.Do(req) //nolint:gosec // URL built from configured base URL and fixed paths
	if err != nil {
		return nil, &ErrUnavailable{Op: op, Cause: err}
	}

	c.logger.Debug("engine request",
		slog.String("op", string(op)),
		slog.String("request_id", requestID),
		slog.Int("status", resp.StatusCode),
		slog.Duration("elapsed", time.Since(start)))

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		resp.Body.Close() //nolint:errcheck,gosec
		return nil, &ErrUnavailable{
			Op:         op,
			StatusCode: resp.StatusCode,
			Cause:      fmt.Errorf("unexpected status %d", resp.StatusCode),
		}
	}
	return resp, nil
}

// dispositionFilename extracts the filename parameter of a Content-Disposition header.
func dispositionFilename(header string) string {
	if header == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(header)
	if err != nil {
		return ""
	}
	return params["filename"]
}
