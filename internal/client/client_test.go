package client

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/kjstillabower/climate-dashboard/internal/circuitbreaker"
	"github.com/kjstillabower/climate-dashboard/internal/reqctx"
)

const (
	annualJSON = `[
		{"year": 1880, "anomaly": -0.17, "moving_avg_5yr": null},
		{"year": 1881, "anomaly": -0.09, "moving_avg_5yr": null},
		{"year": 1882, "anomaly": -0.11, "moving_avg_5yr": -0.14}
	]`
	trendsJSON = `{
		"data_range": {"start_year": 1880, "end_year": 2022},
		"trend_per_decade": 0.08,
		"warming_since_preindustrial": 1.12,
		"average_anomalies": {"pre_industrial": -0.2, "early_20th_century": -0.25, "late_20th_century": 0.1, "21st_century": 0.7},
		"extremes": {
			"warmest_year": {"year": 2016, "anomaly": 1.01},
			"coldest_year": {"year": 1909, "anomaly": -0.48}
		}
	}`
	decadesJSON = `{"decades": ["1880s", "1890s"], "averages": [-0.2, -0.25]}`
)

var testEndpoints = Endpoints{Annual: "/api/annual", Trends: "/api/trends", Decades: "/api/decades"}

func newTestClient(t *testing.T, url string) *HTTPClient {
	t.Helper()
	c, err := New(Config{
		BaseURL:        url,
		Endpoints:      testEndpoints,
		Timeout:        2 * time.Second,
		RetryAttempts:  3,
		RetryBaseDelay: 5 * time.Millisecond,
		RetryMaxDelay:  20 * time.Millisecond,
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	return c
}

func jsonHandler(body string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(body))
	}
}

func upstream(t *testing.T) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.Handle("/api/annual", jsonHandler(annualJSON))
	mux.Handle("/api/trends", jsonHandler(trendsJSON))
	mux.Handle("/api/decades", jsonHandler(decadesJSON))
	server := httptest.NewServer(mux)
	t.Cleanup(server.Close)
	return server
}

func TestNew_InvalidConfig(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
	}{
		{"missing scheme", Config{BaseURL: "localhost:5000", Endpoints: testEndpoints}},
		{"ftp scheme", Config{BaseURL: "ftp://example.com", Endpoints: testEndpoints}},
		{"missing endpoint", Config{BaseURL: "http://localhost:5000", Endpoints: Endpoints{Annual: "/api/annual"}}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c, err := New(tt.cfg)
			if err == nil {
				t.Fatalf("New() expected error, got client %v", c)
			}
		})
	}
}

func TestHTTPClient_GetAll_Success(t *testing.T) {
	server := upstream(t)
	c := newTestClient(t, server.URL+"/")
	ctx := context.Background()

	annual, err := c.GetAnnual(ctx)
	if err != nil {
		t.Fatalf("GetAnnual() error = %v", err)
	}
	if len(annual) != 3 || annual[0].Year != 1880 || annual[2].Anomaly != -0.11 {
		t.Errorf("GetAnnual() = %+v", annual)
	}
	if annual[0].MovingAvg5yr != nil {
		t.Errorf("null moving average decoded as %v, want nil", *annual[0].MovingAvg5yr)
	}
	if annual[2].MovingAvg5yr == nil || *annual[2].MovingAvg5yr != -0.14 {
		t.Errorf("moving average = %v, want -0.14", annual[2].MovingAvg5yr)
	}

	trends, err := c.GetTrends(ctx)
	if err != nil {
		t.Fatalf("GetTrends() error = %v", err)
	}
	if trends.DataRange.StartYear != 1880 || trends.DataRange.EndYear != 2022 {
		t.Errorf("DataRange = %+v", trends.DataRange)
	}
	if trends.Extremes.WarmestYear.Year != 2016 || trends.Extremes.ColdestYear.Anomaly != -0.48 {
		t.Errorf("Extremes = %+v", trends.Extremes)
	}
	if trends.AverageAnomalies == nil || trends.AverageAnomalies.TwentyFirstCentury != 0.7 {
		t.Errorf("AverageAnomalies = %+v", trends.AverageAnomalies)
	}

	decades, err := c.GetDecades(ctx)
	if err != nil {
		t.Fatalf("GetDecades() error = %v", err)
	}
	if len(decades.Decades) != 2 || decades.Averages[1] != -0.25 {
		t.Errorf("GetDecades() = %+v", decades)
	}
}

func TestHTTPClient_SchemaMismatch(t *testing.T) {
	tests := []struct {
		name  string
		body  string
		fetch func(*HTTPClient) error
	}{
		{"annual empty", `[]`, func(c *HTTPClient) error { _, err := c.GetAnnual(context.Background()); return err }},
		{"annual missing anomaly", `[{"year": 1880}]`, func(c *HTTPClient) error { _, err := c.GetAnnual(context.Background()); return err }},
		{"annual not ascending", `[{"year": 1881, "anomaly": 0.1}, {"year": 1880, "anomaly": 0.2}]`, func(c *HTTPClient) error { _, err := c.GetAnnual(context.Background()); return err }},
		{"annual duplicate year", `[{"year": 1880, "anomaly": 0.1}, {"year": 1880, "anomaly": 0.2}]`, func(c *HTTPClient) error { _, err := c.GetAnnual(context.Background()); return err }},
		{"annual wrong shape", `{"year": 1880}`, func(c *HTTPClient) error { _, err := c.GetAnnual(context.Background()); return err }},
		{"trends missing extremes", `{"data_range": {"start_year": 1880, "end_year": 2022}, "trend_per_decade": 0.08, "warming_since_preindustrial": 1.1}`, func(c *HTTPClient) error { _, err := c.GetTrends(context.Background()); return err }},
		{"trends inverted range", `{"data_range": {"start_year": 2022, "end_year": 1880}, "trend_per_decade": 0.08, "warming_since_preindustrial": 1.1, "extremes": {"warmest_year": {"year": 2016, "anomaly": 1}, "coldest_year": {"year": 1909, "anomaly": -0.5}}}`, func(c *HTTPClient) error { _, err := c.GetTrends(context.Background()); return err }},
		{"decades length mismatch", `{"decades": ["1880s", "1890s"], "averages": [0.1]}`, func(c *HTTPClient) error { _, err := c.GetDecades(context.Background()); return err }},
		{"decades null average", `{"decades": ["1880s"], "averages": [null]}`, func(c *HTTPClient) error { _, err := c.GetDecades(context.Background()); return err }},
		{"decades missing averages", `{"decades": ["1880s"]}`, func(c *HTTPClient) error { _, err := c.GetDecades(context.Background()); return err }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				_, _ = w.Write([]byte(tt.body))
			}))
			defer server.Close()

			err := tt.fetch(newTestClient(t, server.URL))
			if !errors.Is(err, ErrSchemaMismatch) {
				t.Fatalf("error = %v, want ErrSchemaMismatch", err)
			}
			if got := atomic.LoadInt32(&attempts); got != 1 {
				t.Errorf("attempts = %d, want 1 (schema errors are not retried)", got)
			}
		})
	}
}

func TestHTTPClient_ErrorStatus(t *testing.T) {
	tests := []struct {
		name         string
		status       int
		wantErr      error
		wantAttempts int32
	}{
		{"500 retried", http.StatusInternalServerError, ErrUpstreamFailure, 3},
		{"503 retried", http.StatusServiceUnavailable, ErrUpstreamFailure, 3},
		{"429 retried", http.StatusTooManyRequests, ErrRateLimited, 3},
		{"404 not retried", http.StatusNotFound, ErrNotFound, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var attempts int32
			server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
				atomic.AddInt32(&attempts, 1)
				w.WriteHeader(tt.status)
			}))
			defer server.Close()

			_, err := newTestClient(t, server.URL).GetAnnual(context.Background())
			if !errors.Is(err, tt.wantErr) {
				t.Fatalf("GetAnnual() error = %v, want %v", err, tt.wantErr)
			}
			if got := atomic.LoadInt32(&attempts); got != tt.wantAttempts {
				t.Errorf("attempts = %d, want %d", got, tt.wantAttempts)
			}
		})
	}
}

func TestHTTPClient_RetryThenSuccess(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&attempts, 1) < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, _ = w.Write([]byte(decadesJSON))
	}))
	defer server.Close()

	got, err := newTestClient(t, server.URL).GetDecades(context.Background())
	if err != nil {
		t.Fatalf("GetDecades() error = %v", err)
	}
	if len(got.Decades) != 2 {
		t.Errorf("Decades = %v", got.Decades)
	}
	if n := atomic.LoadInt32(&attempts); n != 3 {
		t.Errorf("attempts = %d, want 3", n)
	}
}

func TestHTTPClient_Headers(t *testing.T) {
	var accept, corrID string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		accept = r.Header.Get("Accept")
		corrID = r.Header.Get("X-Correlation-ID")
		_, _ = w.Write([]byte(annualJSON))
	}))
	defer server.Close()

	ctx := reqctx.WithCorrelationID(context.Background(), "corr-123")
	if _, err := newTestClient(t, server.URL).GetAnnual(ctx); err != nil {
		t.Fatalf("GetAnnual() error = %v", err)
	}
	if accept != "application/json" {
		t.Errorf("Accept = %q, want application/json", accept)
	}
	if corrID != "corr-123" {
		t.Errorf("X-Correlation-ID = %q, want corr-123", corrID)
	}
}

func TestHTTPClient_ContextCancellation(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
		_, _ = w.Write([]byte(annualJSON))
	}))
	defer server.Close()
	defer close(release)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := newTestClient(t, server.URL).GetAnnual(ctx)
	if !errors.Is(err, context.Canceled) {
		t.Errorf("GetAnnual() error = %v, want context.Canceled", err)
	}
}

func TestHTTPClient_CoalescesConcurrentFetches(t *testing.T) {
	var attempts int32
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		<-release
		_, _ = w.Write([]byte(annualJSON))
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	const callers = 10
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for i := 0; i < callers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := c.GetAnnual(context.Background())
			errs <- err
		}()
	}

	// Let every caller join before the upstream answers.
	time.Sleep(50 * time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		if err != nil {
			t.Errorf("GetAnnual() error = %v", err)
		}
	}
	if n := atomic.LoadInt32(&attempts); n != 1 {
		t.Errorf("upstream calls = %d, want 1", n)
	}
}

func TestHTTPClient_CircuitBreakerOpens(t *testing.T) {
	var attempts int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&attempts, 1)
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer server.Close()

	c := newTestClient(t, server.URL)
	c.SetCircuitBreaker(circuitbreaker.New(circuitbreaker.Config{
		FailureThreshold: 2,
		SuccessThreshold: 1,
		Timeout:          time.Minute,
		Component:        "climate_api",
		IsFailure:        IsUpstreamFault,
	}))

	_, err := c.GetAnnual(context.Background())
	if !errors.Is(err, circuitbreaker.ErrOpen) {
		t.Fatalf("GetAnnual() error = %v, want ErrOpen after threshold", err)
	}
	if n := atomic.LoadInt32(&attempts); n != 2 {
		t.Errorf("upstream calls = %d, want 2", n)
	}
}

func TestHTTPClient_calculateBackoff(t *testing.T) {
	c := &HTTPClient{
		retryBaseDelay: 100 * time.Millisecond,
		retryMaxDelay:  2 * time.Second,
	}

	tests := []struct {
		attempt int
		wantMin time.Duration
		wantMax time.Duration
	}{
		{1, 100 * time.Millisecond, 110 * time.Millisecond},
		{2, 200 * time.Millisecond, 220 * time.Millisecond},
		{5, 1600 * time.Millisecond, 1760 * time.Millisecond},
		{6, 2 * time.Second, 2200 * time.Millisecond},
	}
	for _, tt := range tests {
		got := c.calculateBackoff(tt.attempt)
		if got < tt.wantMin || got > tt.wantMax {
			t.Errorf("calculateBackoff(%d) = %v, want in [%v, %v]", tt.attempt, got, tt.wantMin, tt.wantMax)
		}
	}
}

func TestStatusLabel(t *testing.T) {
	tests := []struct {
		code int
		want string
	}{
		{200, "success"},
		{429, "rate_limited"},
		{404, "client_error"},
		{503, "server_error"},
		{101, "error"},
	}
	for _, tt := range tests {
		if got := statusLabel(tt.code); got != tt.want {
			t.Errorf("statusLabel(%d) = %q, want %q", tt.code, got, tt.want)
		}
	}
}
