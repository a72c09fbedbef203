// internal/source/http.go - HTTP feature service client
package source

import (
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/paulmach/orb/geojson"
	"golang.org/x/time/rate"

	"github.com/valpere/r4c-viewport/internal"
	"github.com/valpere/r4c-viewport/internal/config"
	"github.com/valpere/r4c-viewport/internal/geo"
	"github.com/valpere/r4c-viewport/internal/query"
)

// HTTPSource implements the Source interface against the WFS or OGC service
type HTTPSource struct {
	client    *http.Client
	builder   *query.Builder
	mode      query.Mode
	limiter   *rate.Limiter
	userAgent string
	headers   map[string]string
}

// NewHTTPSource creates a new HTTP-based feature source
func NewHTTPSource(cfg *config.Config) (*HTTPSource, error) {
	mode, err := cfg.QueryMode()
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeConfig, "invalid source mode", err)
	}

	transport := &http.Transport{
		MaxIdleConns:        cfg.Network.MaxIdleConns,
		IdleConnTimeout:     cfg.Network.IdleConnTimeout,
		DisableKeepAlives:   cfg.Network.DisableKeepAlive,
		TLSHandshakeTimeout: 10 * time.Second,
		MaxConnsPerHost:     cfg.Tiles.MaxConcurrent + cfg.Click.RegionConcurrency,
	}

	// Configure proxy if specified
	if cfg.Network.ProxyURL != "" {
		if proxyURL, err := url.Parse(cfg.Network.ProxyURL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	client := &http.Client{
		Timeout:   cfg.Network.Timeout,
		Transport: transport,
	}

	return &HTTPSource{
		client:    client,
		builder:   cfg.QueryBuilder(),
		mode:      mode,
		limiter:   newLimiter(cfg.Network.RequestsPerSecond, cfg.Network.Burst),
		userAgent: cfg.Network.UserAgent,
		headers:   cfg.Network.Headers,
	}, nil
}

// NewHTTPSourceWithClient creates an unthrottled source around an existing client, for tests
func NewHTTPSourceWithClient(client *http.Client, builder *query.Builder, mode query.Mode) *HTTPSource {
	return &HTTPSource{
		client:    client,
		builder:   builder,
		mode:      mode,
		limiter:   rate.NewLimiter(rate.Inf, 0),
		userAgent: "R4CViewport/1.0",
	}
}

// newLimiter returns a pacing limiter; zero rate disables pacing
func newLimiter(rps float64, burst int) *rate.Limiter {
	if rps <= 0 {
		return rate.NewLimiter(rate.Inf, 0)
	}
	return rate.NewLimiter(rate.Limit(rps), burst)
}

// Mode returns the service the source queries
func (s *HTTPSource) Mode() query.Mode {
	return s.mode
}

// FetchBounds retrieves every feature inside bounds from the configured service
func (s *HTTPSource) FetchBounds(ctx context.Context, bounds geo.Bounds) (*Response, error) {
	rawURL, err := s.builder.BuildBboxURL(bounds, s.mode)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to build bbox query", err)
	}
	return s.FetchURL(ctx, rawURL)
}

// FetchPostalCode retrieves every feature of one postal-code area
func (s *HTTPSource) FetchPostalCode(ctx context.Context, postalCode string) (*Response, error) {
	rawURL, err := s.builder.BuildPostalCodeURL(postalCode, s.mode)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to build postal code query", err)
	}
	return s.FetchURL(ctx, rawURL)
}

// FetchURL performs a GET against a ready-built query URL and decodes the GeoJSON body
func (s *HTTPSource) FetchURL(ctx context.Context, rawURL string) (*Response, error) {
	start := time.Now()

	if err := s.limiter.Wait(ctx); err != nil {
		return nil, classifyTransportError(ctx, err)
	}

	req, err := s.buildHTTPRequest(ctx, rawURL)
	if err != nil {
		return nil, internal.NewError(internal.ErrorCodeValidation, "failed to build HTTP request", err)
	}

	resp, err := s.client.Do(req)
	if err != nil {
		return nil, classifyTransportError(ctx, err)
	}
	defer resp.Body.Close()

	response := &Response{
		URL:        rawURL,
		StatusCode: resp.StatusCode,
	}

	if err := classifyStatus(resp); err != nil {
		response.FetchTime = time.Since(start)
		return response, err
	}

	// Handle compressed responses
	var reader io.Reader = resp.Body
	if strings.Contains(resp.Header.Get("Content-Encoding"), "gzip") {
		gzipReader, err := gzip.NewReader(resp.Body)
		if err != nil {
			return response, internal.NewError(internal.ErrorCodeProcessing, "failed to create gzip reader", err)
		}
		defer gzipReader.Close()
		reader = gzipReader
	}

	data, err := io.ReadAll(reader)
	if err != nil {
		return response, classifyTransportError(ctx, fmt.Errorf("failed to read response body: %w", err))
	}

	fc, err := geojson.UnmarshalFeatureCollection(data)
	if err != nil {
		return response, internal.NewError(internal.ErrorCodeProcessing, "failed to decode feature collection", err)
	}

	response.Features = fc
	response.Size = len(data)
	response.FetchTime = time.Since(start)
	return response, nil
}

// buildHTTPRequest constructs a GET request with the configured headers
func (s *HTTPSource) buildHTTPRequest(ctx context.Context, rawURL string) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create HTTP request: %w", err)
	}

	// Set default headers
	req.Header.Set("Accept", "application/geo+json, application/json")
	req.Header.Set("Accept-Encoding", "gzip")
	req.Header.Set("User-Agent", s.userAgent)

	// Add configured headers
	for key, value := range s.headers {
		req.Header.Set(key, value)
	}

	return req, nil
}

// classifyStatus maps non-200 responses to typed errors: 4xx are permanent, 5xx transient
func classifyStatus(resp *http.Response) error {
	if resp.StatusCode == http.StatusOK {
		return nil
	}

	msg := fmt.Sprintf("HTTP %d: %s", resp.StatusCode, http.StatusText(resp.StatusCode))
	switch {
	case resp.StatusCode == http.StatusRequestTimeout || resp.StatusCode == http.StatusTooManyRequests:
		return internal.NewError(internal.ErrorCodeServer, msg, nil)
	case resp.StatusCode >= 400 && resp.StatusCode < 500:
		return internal.NewError(internal.ErrorCodeClient, msg, nil)
	case resp.StatusCode >= 500:
		return internal.NewError(internal.ErrorCodeServer, msg, nil)
	default:
		return internal.NewError(internal.ErrorCodeProcessing, msg, nil)
	}
}

// classifyTransportError separates caller cancellation from network faults
func classifyTransportError(ctx context.Context, err error) error {
	if ctx.Err() != nil && errors.Is(ctx.Err(), context.Canceled) {
		return internal.NewError(internal.ErrorCodeCanceled, "request canceled", ctx.Err())
	}

	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return internal.NewError(internal.ErrorCodeTimeout, "request timed out", err)
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return internal.NewError(internal.ErrorCodeTimeout, "request timed out", err)
	}

	return internal.NewError(internal.ErrorCodeNetwork, "network request failed", err)
}
