package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

// Config holds dashboard configuration loaded from YAML, .env and env.
type Config struct {
	ServerPort string

	ClimateAPIURL     string
	ClimateAPITimeout time.Duration
	Endpoints         Endpoints

	RequestTimeout time.Duration

	RetryAttempts  int
	RetryBaseDelay time.Duration
	RetryMaxDelay  time.Duration
	RateLimitRPS   int
	RateLimitBurst int

	CircuitBreakerEnabled          bool
	CircuitBreakerFailureThreshold int
	CircuitBreakerSuccessThreshold int
	CircuitBreakerTimeout          time.Duration

	CoalesceTimeout time.Duration

	CacheBackend          string // "in_memory" or "memcached"
	CacheTTL              time.Duration
	CacheMaxEntries       int
	MemcachedAddrs        string
	MemcachedTimeout      time.Duration
	MemcachedMaxIdleConns int

	DefaultRangeYears    int
	SessionMaxAge        time.Duration
	SessionSweepInterval time.Duration
	MaxSessions          int

	Chart ChartOptions

	ShutdownTimeout               time.Duration
	ShutdownInFlightTimeout       time.Duration
	ShutdownInFlightCheckInterval time.Duration

	OverloadWindow       time.Duration
	OverloadThresholdPct int
	DegradedWindow       time.Duration
	DegradedErrorPct     int
}

// Endpoints are the upstream climate API paths, relative to ClimateAPIURL.
// Range is reserved; nothing calls it.
type Endpoints struct {
	Annual  string `yaml:"annual"`
	Trends  string `yaml:"trends"`
	Decades string `yaml:"decades"`
	Range   string `yaml:"range"`
}

// Palette holds CSS-style rgba() colors for each chart element.
type Palette struct {
	Annual            string `yaml:"annual"`
	AnnualBorder      string `yaml:"annual_border"`
	MovingAvg         string `yaml:"moving_avg"`
	TrendLine         string `yaml:"trend_line"`
	Decadal           string `yaml:"decadal"`
	DecadalBorder     string `yaml:"decadal_border"`
	CustomRange       string `yaml:"custom_range"`
	CustomRangeBorder string `yaml:"custom_range_border"`
	ZeroLine          string `yaml:"zero_line"`
	Grid              string `yaml:"grid"`
}

// ChartOptions are the rendering options shared by every chart.
type ChartOptions struct {
	Width         int     `yaml:"width"`
	Height        int     `yaml:"height"`
	TitleFontSize float64 `yaml:"title_font_size"`
	Colors        Palette `yaml:"colors"`
}

type fileConfig struct {
	Server struct {
		Port string `yaml:"port"`
	} `yaml:"server"`

	ClimateAPI struct {
		URL       string    `yaml:"url"`
		Timeout   string    `yaml:"timeout"`
		Endpoints Endpoints `yaml:"endpoints"`
	} `yaml:"climate_api"`

	Request struct {
		Timeout string `yaml:"timeout"`
	} `yaml:"request"`

	Reliability struct {
		RetryMaxAttempts int    `yaml:"retry_max_attempts"`
		RetryBaseDelay   string `yaml:"retry_base_delay"`
		RetryMaxDelay    string `yaml:"retry_max_delay"`
		RateLimitRPS     int    `yaml:"rate_limit_rps"`
		RateLimitBurst   int    `yaml:"rate_limit_burst"`
		CoalesceTimeout  string `yaml:"coalesce_timeout"`
		CircuitBreaker   struct {
			Enabled          *bool  `yaml:"enabled"`
			FailureThreshold int    `yaml:"failure_threshold"`
			SuccessThreshold int    `yaml:"success_threshold"`
			Timeout          string `yaml:"timeout"`
		} `yaml:"circuit_breaker"`
	} `yaml:"reliability"`

	Cache struct {
		Backend    string `yaml:"backend"`
		TTL        string `yaml:"ttl"`
		MaxEntries int    `yaml:"max_entries"`
		Memcached  struct {
			Addrs        string `yaml:"addrs"`
			Timeout      string `yaml:"timeout"`
			MaxIdleConns int    `yaml:"max_idle_conns"`
		} `yaml:"memcached"`
	} `yaml:"cache"`

	Dashboard struct {
		DefaultRangeYears int          `yaml:"default_range_years"`
		SessionMaxAge     string       `yaml:"session_max_age"`
		SweepInterval     string       `yaml:"sweep_interval"`
		MaxSessions       int          `yaml:"max_sessions"`
		Chart             ChartOptions `yaml:"chart"`
	} `yaml:"dashboard"`

	Shutdown struct {
		Timeout               string `yaml:"timeout"`
		InFlightTimeout       string `yaml:"in_flight_timeout"`
		InFlightCheckInterval string `yaml:"in_flight_check_interval"`
	} `yaml:"shutdown"`

	Lifecycle struct {
		OverloadWindow       string `yaml:"overload_window"`
		OverloadThresholdPct int    `yaml:"overload_threshold_pct"`
		DegradedWindow       string `yaml:"degraded_window"`
		DegradedErrorPct     int    `yaml:"degraded_error_pct"`
	} `yaml:"lifecycle"`
}

// DefaultPalette is the chart palette used when the config file sets none.
var DefaultPalette = Palette{
	Annual:            "rgba(54, 162, 235, 0.5)",
	AnnualBorder:      "rgba(54, 162, 235, 1)",
	MovingAvg:         "rgba(255, 99, 132, 1)",
	TrendLine:         "rgba(75, 192, 75, 0.8)",
	Decadal:           "rgba(153, 102, 255, 0.7)",
	DecadalBorder:     "rgba(153, 102, 255, 1)",
	CustomRange:       "rgba(255, 159, 64, 0.7)",
	CustomRangeBorder: "rgba(255, 159, 64, 1)",
	ZeroLine:          "rgba(0, 0, 0, 0.2)",
	Grid:              "rgba(0, 0, 0, 0.1)",
}

// DefaultEndpoints are the upstream paths served by the climate API.
var DefaultEndpoints = Endpoints{
	Annual:  "/api/annual",
	Trends:  "/api/trends",
	Decades: "/api/decades",
	Range:   "/api/range",
}

// Load reads configuration from config/{ENV_NAME}.yaml (default dev). A .env file in the
// working directory is applied to the environment first when present. Call from project root.
func Load() (*Config, error) {
	cwd, err := os.Getwd()
	if err != nil {
		return nil, fmt.Errorf("config: get working directory: %w", err)
	}
	if err := godotenv.Load(filepath.Join(cwd, ".env")); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("load .env: %w", err)
	}

	env := os.Getenv("ENV_NAME")
	if env == "" {
		env = "dev"
	}
	configPath := filepath.Join(cwd, "config", env+".yaml")
	data, err := os.ReadFile(configPath)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, fmt.Errorf("config file not found: %s", configPath)
		}
		return nil, fmt.Errorf("read config file: %w", err)
	}

	var fc fileConfig
	if err := yaml.Unmarshal(data, &fc); err != nil {
		return nil, fmt.Errorf("parse config file: %w", err)
	}

	cfg := &Config{}

	cfg.ServerPort = strings.TrimSpace(os.Getenv("SERVER_PORT"))
	if cfg.ServerPort == "" {
		cfg.ServerPort = fc.Server.Port
	}
	if cfg.ServerPort == "" {
		cfg.ServerPort = "8080"
	}

	cfg.ClimateAPIURL = strings.TrimSpace(os.Getenv("CLIMATE_API_URL"))
	if cfg.ClimateAPIURL == "" {
		cfg.ClimateAPIURL = strings.TrimSpace(fc.ClimateAPI.URL)
	}
	if cfg.ClimateAPIURL == "" {
		cfg.ClimateAPIURL = "http://localhost:5000"
	}
	cfg.ClimateAPIURL = strings.TrimRight(cfg.ClimateAPIURL, "/")
	cfg.ClimateAPITimeout = parseDurationOrZero(fc.ClimateAPI.Timeout, 5*time.Second)
	cfg.Endpoints = withDefaultEndpoints(fc.ClimateAPI.Endpoints)

	cfg.RequestTimeout = parseDuration(fc.Request.Timeout, 15*time.Second)

	cfg.RetryAttempts = fc.Reliability.RetryMaxAttempts
	if cfg.RetryAttempts <= 0 {
		cfg.RetryAttempts = 3
	}
	cfg.RetryBaseDelay = parseDuration(fc.Reliability.RetryBaseDelay, 100*time.Millisecond)
	cfg.RetryMaxDelay = parseDuration(fc.Reliability.RetryMaxDelay, 2*time.Second)
	cfg.RateLimitRPS = fc.Reliability.RateLimitRPS
	if cfg.RateLimitRPS <= 0 {
		cfg.RateLimitRPS = 50
	}
	cfg.RateLimitBurst = fc.Reliability.RateLimitBurst
	if cfg.RateLimitBurst <= 0 {
		cfg.RateLimitBurst = 100
	}
	cfg.CoalesceTimeout = parseDuration(fc.Reliability.CoalesceTimeout, 10*time.Second)

	cb := fc.Reliability.CircuitBreaker
	cfg.CircuitBreakerEnabled = true
	if cb.Enabled != nil {
		cfg.CircuitBreakerEnabled = *cb.Enabled
	}
	cfg.CircuitBreakerFailureThreshold = cb.FailureThreshold
	if cfg.CircuitBreakerFailureThreshold <= 0 {
		cfg.CircuitBreakerFailureThreshold = 5
	}
	cfg.CircuitBreakerSuccessThreshold = cb.SuccessThreshold
	if cfg.CircuitBreakerSuccessThreshold <= 0 {
		cfg.CircuitBreakerSuccessThreshold = 2
	}
	cfg.CircuitBreakerTimeout = parseDuration(cb.Timeout, 30*time.Second)

	cfg.CacheBackend = strings.TrimSpace(strings.ToLower(os.Getenv("CACHE_BACKEND")))
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = strings.TrimSpace(strings.ToLower(fc.Cache.Backend))
	}
	if cfg.CacheBackend == "" {
		cfg.CacheBackend = "in_memory"
	}
	cfg.CacheTTL = parseDuration(fc.Cache.TTL, 10*time.Minute)
	cfg.CacheMaxEntries = fc.Cache.MaxEntries
	if cfg.CacheMaxEntries <= 0 {
		cfg.CacheMaxEntries = 1024
	}
	cfg.MemcachedAddrs = strings.TrimSpace(os.Getenv("MEMCACHED_ADDRS"))
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = strings.TrimSpace(fc.Cache.Memcached.Addrs)
	}
	if cfg.MemcachedAddrs == "" {
		cfg.MemcachedAddrs = "localhost:11211"
	}
	cfg.MemcachedTimeout = parseDuration(fc.Cache.Memcached.Timeout, 500*time.Millisecond)
	cfg.MemcachedMaxIdleConns = fc.Cache.Memcached.MaxIdleConns
	if cfg.MemcachedMaxIdleConns <= 0 {
		cfg.MemcachedMaxIdleConns = 2
	}

	cfg.DefaultRangeYears = fc.Dashboard.DefaultRangeYears
	if cfg.DefaultRangeYears <= 0 {
		cfg.DefaultRangeYears = 30
	}
	cfg.SessionMaxAge = parseDuration(fc.Dashboard.SessionMaxAge, 30*time.Minute)
	cfg.SessionSweepInterval = parseDuration(fc.Dashboard.SweepInterval, time.Minute)
	cfg.MaxSessions = fc.Dashboard.MaxSessions
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	cfg.Chart = withDefaultChartOptions(fc.Dashboard.Chart)

	cfg.ShutdownTimeout = parseDuration(fc.Shutdown.Timeout, 30*time.Second)
	cfg.ShutdownInFlightTimeout = parseDuration(fc.Shutdown.InFlightTimeout, 10*time.Second)
	cfg.ShutdownInFlightCheckInterval = parseDuration(fc.Shutdown.InFlightCheckInterval, 100*time.Millisecond)

	cfg.OverloadWindow = parseDuration(fc.Lifecycle.OverloadWindow, 60*time.Second)
	cfg.OverloadThresholdPct = fc.Lifecycle.OverloadThresholdPct
	if cfg.OverloadThresholdPct <= 0 {
		cfg.OverloadThresholdPct = 80
	}
	cfg.DegradedWindow = parseDuration(fc.Lifecycle.DegradedWindow, 60*time.Second)
	cfg.DegradedErrorPct = fc.Lifecycle.DegradedErrorPct
	if cfg.DegradedErrorPct <= 0 {
		cfg.DegradedErrorPct = 50
	}

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

func withDefaultEndpoints(e Endpoints) Endpoints {
	if strings.TrimSpace(e.Annual) == "" {
		e.Annual = DefaultEndpoints.Annual
	}
	if strings.TrimSpace(e.Trends) == "" {
		e.Trends = DefaultEndpoints.Trends
	}
	if strings.TrimSpace(e.Decades) == "" {
		e.Decades = DefaultEndpoints.Decades
	}
	if strings.TrimSpace(e.Range) == "" {
		e.Range = DefaultEndpoints.Range
	}
	return e
}

func withDefaultChartOptions(o ChartOptions) ChartOptions {
	if o.Width <= 0 {
		o.Width = 960
	}
	if o.Height <= 0 {
		o.Height = 400
	}
	if o.TitleFontSize <= 0 {
		o.TitleFontSize = 16
	}
	p, d := &o.Colors, DefaultPalette
	for _, f := range []struct {
		dst *string
		def string
	}{
		{&p.Annual, d.Annual},
		{&p.AnnualBorder, d.AnnualBorder},
		{&p.MovingAvg, d.MovingAvg},
		{&p.TrendLine, d.TrendLine},
		{&p.Decadal, d.Decadal},
		{&p.DecadalBorder, d.DecadalBorder},
		{&p.CustomRange, d.CustomRange},
		{&p.CustomRangeBorder, d.CustomRangeBorder},
		{&p.ZeroLine, d.ZeroLine},
		{&p.Grid, d.Grid},
	} {
		if strings.TrimSpace(*f.dst) == "" {
			*f.dst = f.def
		}
	}
	return o
}

// parseDuration parses a duration string and returns defaultVal if parsing fails or result is <= 0.
func parseDuration(s string, defaultVal time.Duration) time.Duration {
	d := parseDurationOrZero(s, defaultVal)
	if d <= 0 {
		return defaultVal
	}
	return d
}

// parseDurationOrZero parses a duration string, returning defaultVal on empty string or parse error.
// Returns zero or negative durations as-is (caller should handle fallback).
func parseDurationOrZero(s string, defaultVal time.Duration) time.Duration {
	s = strings.TrimSpace(s)
	if s == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return defaultVal
	}
	return d
}

// validate performs post-load validation of configuration values.
// Ensures ClimateAPITimeout is positive, the base URL is absolute and CacheBackend is known.
// RequestTimeout is raised to cover the three upstream fetches when set too low.
func validate(cfg *Config) error {
	if cfg.ClimateAPITimeout <= 0 {
		return fmt.Errorf("climate_api.timeout must be positive")
	}
	if !strings.HasPrefix(cfg.ClimateAPIURL, "http://") && !strings.HasPrefix(cfg.ClimateAPIURL, "https://") {
		return fmt.Errorf("climate_api.url must be an absolute http(s) URL, got %q", cfg.ClimateAPIURL)
	}
	if cfg.RequestTimeout <= cfg.ClimateAPITimeout {
		cfg.RequestTimeout = cfg.ClimateAPITimeout + time.Second
	}
	switch cfg.CacheBackend {
	case "in_memory", "memcached":
	default:
		return fmt.Errorf("cache.backend must be in_memory or memcached, got %q", cfg.CacheBackend)
	}
	return nil
}
