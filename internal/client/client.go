package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math"
	"math/rand"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/kjstillabower/climate-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/climate-dashboard/internal/models"
	"github.com/kjstillabower/climate-dashboard/internal/observability"
	"github.com/kjstillabower/climate-dashboard/internal/reqctx"
)

// ClimateClient fetches the three precomputed datasets from the climate API.
type ClimateClient interface {
	GetAnnual(ctx context.Context) ([]models.AnnualRecord, error)
	GetTrends(ctx context.Context) (models.TrendsSummary, error)
	GetDecades(ctx context.Context) (models.DecadalSummary, error)
}

var (
	ErrUpstreamFailure = errors.New("upstream failure")
	ErrNotFound        = errors.New("endpoint not found")
	ErrRateLimited     = errors.New("rate limited")
	ErrSchemaMismatch  = errors.New("schema mismatch")
)

// maxBodyBytes caps a single payload; the annual series is a few kB.
const maxBodyBytes = 8 << 20

// Endpoints are the paths of the three datasets, relative to the base URL.
type Endpoints struct {
	Annual  string
	Trends  string
	Decades string
}

// Config configures an HTTPClient. Zero retry values take defaults.
type Config struct {
	BaseURL         string
	Endpoints       Endpoints
	Timeout         time.Duration
	RetryAttempts   int
	RetryBaseDelay  time.Duration
	RetryMaxDelay   time.Duration
	CoalesceTimeout time.Duration
}

// HTTPClient implements ClimateClient over HTTP GET with retries, an optional
// circuit breaker and coalescing of identical concurrent fetches.
type HTTPClient struct {
	baseURL        *url.URL
	endpoints      Endpoints
	timeout        time.Duration
	client         *http.Client
	retryAttempts  int
	retryBaseDelay time.Duration
	retryMaxDelay  time.Duration
	breaker        *circuitbreaker.CircuitBreaker

	annual  *group[[]models.AnnualRecord]
	trends  *group[models.TrendsSummary]
	decades *group[models.DecadalSummary]
}

// New returns an HTTPClient for cfg.BaseURL.
func New(cfg Config) (*HTTPClient, error) {
	base, err := url.Parse(strings.TrimRight(cfg.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("invalid base URL: %w", err)
	}
	if base.Scheme != "http" && base.Scheme != "https" {
		return nil, fmt.Errorf("invalid base URL %q: scheme must be http or https", cfg.BaseURL)
	}
	if cfg.Endpoints.Annual == "" || cfg.Endpoints.Trends == "" || cfg.Endpoints.Decades == "" {
		return nil, errors.New("annual, trends and decades endpoints are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 100 * time.Millisecond
	}
	if cfg.RetryMaxDelay <= 0 {
		cfg.RetryMaxDelay = 2 * time.Second
	}
	if cfg.CoalesceTimeout <= 0 {
		cfg.CoalesceTimeout = 10 * time.Second
	}

	return &HTTPClient{
		baseURL:        base,
		endpoints:      cfg.Endpoints,
		timeout:        cfg.Timeout,
		retryAttempts:  cfg.RetryAttempts,
		retryBaseDelay: cfg.RetryBaseDelay,
		retryMaxDelay:  cfg.RetryMaxDelay,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
		annual:  newGroup[[]models.AnnualRecord](cfg.CoalesceTimeout),
		trends:  newGroup[models.TrendsSummary](cfg.CoalesceTimeout),
		decades: newGroup[models.DecadalSummary](cfg.CoalesceTimeout),
	}, nil
}

// SetCircuitBreaker guards every upstream attempt with cb. Call before serving traffic.
func (c *HTTPClient) SetCircuitBreaker(cb *circuitbreaker.CircuitBreaker) {
	c.breaker = cb
}

// GetAnnual fetches and validates the annual anomaly series.
func (c *HTTPClient) GetAnnual(ctx context.Context) ([]models.AnnualRecord, error) {
	return c.annual.Do(ctx, "annual", func(ctx context.Context) ([]models.AnnualRecord, error) {
		var wire []annualRecordWire
		if err := c.fetch(ctx, "annual", c.endpoints.Annual, &wire); err != nil {
			return nil, err
		}
		return decodeAnnual(wire)
	})
}

// GetTrends fetches and validates the trends summary.
func (c *HTTPClient) GetTrends(ctx context.Context) (models.TrendsSummary, error) {
	return c.trends.Do(ctx, "trends", func(ctx context.Context) (models.TrendsSummary, error) {
		var wire trendsWire
		if err := c.fetch(ctx, "trends", c.endpoints.Trends, &wire); err != nil {
			return models.TrendsSummary{}, err
		}
		return decodeTrends(wire)
	})
}

// GetDecades fetches and validates the decadal averages.
func (c *HTTPClient) GetDecades(ctx context.Context) (models.DecadalSummary, error) {
	return c.decades.Do(ctx, "decades", func(ctx context.Context) (models.DecadalSummary, error) {
		var wire decadalWire
		if err := c.fetch(ctx, "decades", c.endpoints.Decades, &wire); err != nil {
			return models.DecadalSummary{}, err
		}
		return decodeDecadal(wire)
	})
}

// fetch GETs path into out, retrying retryable failures with exponential backoff.
func (c *HTTPClient) fetch(ctx context.Context, name, path string, out interface{}) error {
	var lastErr error

	for attempt := 0; attempt < c.retryAttempts; attempt++ {
		if attempt > 0 {
			observability.ClimateAPIRetriesTotal.Inc()
			delay := c.calculateBackoff(attempt)
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		var body []byte
		call := func() error {
			var err error
			body, err = c.callAPI(ctx, name, path)
			return err
		}
		var err error
		if c.breaker != nil {
			err = c.breaker.Call(ctx, call)
		} else {
			err = call()
		}
		if err == nil {
			if err := json.Unmarshal(body, out); err != nil {
				err = fmt.Errorf("%w: %s: parse response: %v", ErrSchemaMismatch, name, err)
				observability.ClimateAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
				return err
			}
			return nil
		}

		lastErr = err
		observability.ClimateAPIErrorsTotal.WithLabelValues(string(CategorizeError(err))).Inc()
		if !c.isRetryable(err) {
			return err
		}
	}

	return fmt.Errorf("exhausted retries: %w", lastErr)
}

func (c *HTTPClient) callAPI(ctx context.Context, name, path string) ([]byte, error) {
	start := time.Now()

	reqCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	req, err := c.buildRequest(reqCtx, path)
	if err != nil {
		observability.ClimateAPICallsTotal.WithLabelValues(name, "error").Inc()
		return nil, fmt.Errorf("build request: %w", err)
	}

	resp, err := c.client.Do(req)
	if err != nil {
		observability.ClimateAPICallsTotal.WithLabelValues(name, "error").Inc()
		observability.ClimateAPIDuration.WithLabelValues(name, "error").Observe(time.Since(start).Seconds())

		if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
			return nil, fmt.Errorf("%s request timeout: %w", name, err)
		}
		return nil, fmt.Errorf("%s http request failed: %w", name, err)
	}
	defer resp.Body.Close()

	status := statusLabel(resp.StatusCode)
	observability.ClimateAPICallsTotal.WithLabelValues(name, status).Inc()
	observability.ClimateAPIDuration.WithLabelValues(name, status).Observe(time.Since(start).Seconds())

	if err := handleErrorResponse(name, resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return nil, fmt.Errorf("%s read response body: %w", name, err)
	}
	return body, nil
}

func (c *HTTPClient) buildRequest(ctx context.Context, path string) (*http.Request, error) {
	ref, err := url.Parse(path)
	if err != nil {
		return nil, fmt.Errorf("invalid endpoint path %q: %w", path, err)
	}
	target := *c.baseURL
	target.Path = strings.TrimRight(c.baseURL.Path, "/") + "/" + strings.TrimLeft(ref.Path, "/")

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.String(), nil)
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if corrID := reqctx.CorrelationID(ctx); corrID != "" {
		req.Header.Set("X-Correlation-ID", corrID)
	}
	return req, nil
}

func (c *HTTPClient) isRetryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrRateLimited) || errors.Is(err, ErrUpstreamFailure) {
		return true
	}
	if errors.Is(err, ErrNotFound) || errors.Is(err, ErrSchemaMismatch) || errors.Is(err, circuitbreaker.ErrOpen) {
		return false
	}
	switch CategorizeError(err) {
	case ErrorCategoryTimeout, ErrorCategoryNetwork:
		return true
	}
	return false
}

func (c *HTTPClient) calculateBackoff(attempt int) time.Duration {
	delay := float64(c.retryBaseDelay) * math.Pow(2, float64(attempt-1))
	if delay > float64(c.retryMaxDelay) {
		delay = float64(c.retryMaxDelay)
	}

	jitter := delay * 0.1 * rand.Float64()
	return time.Duration(delay + jitter)
}

func handleErrorResponse(name string, resp *http.Response) error {
	switch {
	case resp.StatusCode >= 200 && resp.StatusCode < 300:
		return nil
	case resp.StatusCode == http.StatusNotFound:
		return fmt.Errorf("%w: %s", ErrNotFound, name)
	case resp.StatusCode == http.StatusTooManyRequests:
		return fmt.Errorf("%w: %s", ErrRateLimited, name)
	default:
		return fmt.Errorf("%w: %s: HTTP %d", ErrUpstreamFailure, name, resp.StatusCode)
	}
}

func statusLabel(statusCode int) string {
	if statusCode >= 200 && statusCode < 300 {
		return "success"
	}
	if statusCode == http.StatusTooManyRequests {
		return "rate_limited"
	}
	if statusCode >= 400 && statusCode < 500 {
		return "client_error"
	}
	if statusCode >= 500 {
		return "server_error"
	}
	return "error"
}
