//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"go.uber.org/zap"

	"github.com/kjstillabower/climate-dashboard/internal/cache"
	"github.com/kjstillabower/climate-dashboard/internal/chart"
	"github.com/kjstillabower/climate-dashboard/internal/client"
	"github.com/kjstillabower/climate-dashboard/internal/config"
	"github.com/kjstillabower/climate-dashboard/internal/dashboard"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	APIURL        string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if CLIMATE_API_URL is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	apiURL := os.Getenv("CLIMATE_API_URL")
	if apiURL == "" {
		t.Skip("CLIMATE_API_URL not set, skipping integration test")
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		APIURL:        apiURL,
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a climate API client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.HTTPClient {
	c, err := client.New(client.Config{
		BaseURL:   cfg.APIURL,
		Endpoints: client.Endpoints{Annual: "/api/annual", Trends: "/api/trends", Decades: "/api/decades"},
		Timeout:   5 * time.Second,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

// SetupIntegrationCache returns the configured render cache and a cleanup
// function. Falls back to in-memory when memcached is unreachable.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig) (cache.Cache, func()) {
	if cfg.CacheBackend == "memcached" {
		mc, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
			return mc, func() { _ = mc.Close() }
		}
		t.Logf("Memcached not available (%v), using in-memory cache", err)
	}
	return cache.NewInMemoryCache(), func() {}
}

// SetupIntegrationRegistry builds a session registry backed by the live API.
func SetupIntegrationRegistry(t *testing.T, cfg IntegrationTestConfig, logger *zap.Logger) (*dashboard.Registry, func()) {
	c := SetupIntegrationClient(t, cfg)
	rc, cleanup := SetupIntegrationCache(t, cfg)
	renderer, err := chart.NewRenderer(config.ChartOptions{Colors: config.DefaultPalette})
	if err != nil {
		t.Fatalf("NewRenderer() error = %v", err)
	}
	reg := dashboard.NewRegistry(func(id string) *dashboard.Session {
		return dashboard.NewSession(id, c, renderer, rc, dashboard.Options{}, logger)
	}, dashboard.RegistryConfig{MaxSessions: 10}, logger)
	return reg, func() {
		reg.Stop()
		cleanup()
	}
}
