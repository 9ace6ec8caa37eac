//go:build integration
// +build integration

package testhelpers

import (
	"os"
	"testing"
	"time"

	"github.com/esignworks/signflow/internal/cache"
	"github.com/esignworks/signflow/internal/client"
	"github.com/esignworks/signflow/internal/service"
)

// IntegrationTestConfig holds configuration for integration tests against a
// real DocuSign demo account.
type IntegrationTestConfig struct {
	RootURL       string
	Username      string
	Password      string
	IntegratorKey string
	CacheBackend  string // "in_memory" or "memcached"
	MemcachedAddr string
}

// GetIntegrationConfig loads integration test configuration from environment.
// Skips test if SIGNFLOW_TEST_USERNAME is not set.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	username := os.Getenv("SIGNFLOW_TEST_USERNAME")
	if username == "" {
		t.Skip("SIGNFLOW_TEST_USERNAME not set, skipping integration test")
	}

	rootURL := os.Getenv("SIGNFLOW_TEST_ROOT_URL")
	if rootURL == "" {
		rootURL = "https://demo.docusign.net/restapi/v2"
	}

	memcachedAddr := os.Getenv("MEMCACHED_ADDRS")
	if memcachedAddr == "" {
		memcachedAddr = "localhost:11211"
	}

	return IntegrationTestConfig{
		RootURL:       rootURL,
		Username:      username,
		Password:      os.Getenv("SIGNFLOW_TEST_PASSWORD"),
		IntegratorKey: os.Getenv("SIGNFLOW_TEST_INTEGRATOR_KEY"),
		CacheBackend:  os.Getenv("INTEGRATION_CACHE_BACKEND"),
		MemcachedAddr: memcachedAddr,
	}
}

// SetupIntegrationClient creates a signing API client for integration tests.
func SetupIntegrationClient(t *testing.T, cfg IntegrationTestConfig) *client.SignClient {
	c, err := client.New(client.Config{
		RootURL:       cfg.RootURL,
		Username:      cfg.Username,
		Password:      cfg.Password,
		IntegratorKey: cfg.IntegratorKey,
		Timeout:       15 * time.Second,
	})
	if err != nil {
		t.Fatalf("client.New() error = %v", err)
	}
	return c
}

// SetupIntegrationService creates a fully configured signing service for
// integration tests. Returns the service, the cache, and a cleanup function.
func SetupIntegrationService(t *testing.T, cfg IntegrationTestConfig) (*service.SigningService, cache.Cache, func()) {
	signClient := SetupIntegrationClient(t, cfg)

	var cacheSvc cache.Cache
	var cleanup func()

	if cfg.CacheBackend == "memcached" {
		memcachedCache, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2)
		if err == nil {
			cacheSvc = memcachedCache
			cleanup = func() { memcachedCache.Close() }
			t.Logf("Using Memcached cache at %s", cfg.MemcachedAddr)
		} else {
			t.Logf("Memcached not available (%v), using in-memory cache", err)
			cacheSvc = cache.NewInMemoryCache()
			cleanup = func() {}
		}
	} else {
		cacheSvc = cache.NewInMemoryCache()
		cleanup = func() {}
	}

	signingService := service.NewSigningService(signClient, cacheSvc, 5*time.Minute, 5*time.Minute)
	return signingService, cacheSvc, cleanup
}
