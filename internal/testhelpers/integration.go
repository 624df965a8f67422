//go:build integration
// +build integration

package testhelpers

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/kjstillabower/smart-farm-service/internal/cache"
	"github.com/kjstillabower/smart-farm-service/internal/session"
	"github.com/kjstillabower/smart-farm-service/internal/store"
)

// IntegrationTestConfig holds configuration for integration tests.
type IntegrationTestConfig struct {
	DBDriver      string // "sqlite" (default), "mysql" or "postgres"
	DBDSN         string
	MemcachedAddr string
	RedisAddr     string
}

// GetIntegrationConfig loads integration test configuration from environment.
func GetIntegrationConfig(t *testing.T) IntegrationTestConfig {
	t.Helper()
	cfg := IntegrationTestConfig{
		DBDriver:      os.Getenv("INTEGRATION_DB_DRIVER"),
		DBDSN:         os.Getenv("INTEGRATION_DB_DSN"),
		MemcachedAddr: os.Getenv("MEMCACHED_ADDRS"),
		RedisAddr:     os.Getenv("REDIS_ADDR"),
	}
	if cfg.DBDriver == "" {
		cfg.DBDriver = "sqlite"
	}
	if cfg.DBDriver != "sqlite" && cfg.DBDSN == "" {
		t.Skipf("INTEGRATION_DB_DSN not set for driver %s, skipping integration test", cfg.DBDriver)
	}
	if cfg.MemcachedAddr == "" {
		cfg.MemcachedAddr = "localhost:11211"
	}
	if cfg.RedisAddr == "" {
		cfg.RedisAddr = "localhost:6379"
	}
	return cfg
}

// SetupIntegrationStore opens the configured store. SQLite uses a temp file.
func SetupIntegrationStore(t *testing.T, cfg IntegrationTestConfig) *store.Store {
	t.Helper()
	dsn := cfg.DBDSN
	if cfg.DBDriver == "sqlite" {
		dsn = filepath.Join(t.TempDir(), "integration.db")
	}
	s, err := store.Open(store.Options{Driver: cfg.DBDriver, DSN: dsn})
	if err != nil {
		t.Skipf("store %s not available: %v", cfg.DBDriver, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}

// SetupIntegrationCache returns a memcached-backed cache, or skips when memcached is down.
func SetupIntegrationCache(t *testing.T, cfg IntegrationTestConfig, capacity int) *cache.MemcachedCache {
	t.Helper()
	c, err := cache.NewMemcachedCache(cfg.MemcachedAddr, 500*time.Millisecond, 2, capacity)
	if err != nil {
		t.Fatalf("NewMemcachedCache() error = %v", err)
	}
	if err := c.Ping(); err != nil {
		_ = c.Close()
		t.Skipf("memcached not reachable at %s: %v", cfg.MemcachedAddr, err)
	}
	t.Cleanup(func() { _ = c.Close() })
	return c
}

// SetupIntegrationSessions returns a redis-backed session store, or skips when redis is down.
func SetupIntegrationSessions(t *testing.T, cfg IntegrationTestConfig) *session.RedisStore {
	t.Helper()
	s := session.NewRedisStore(cfg.RedisAddr, "", 0)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := s.Ping(ctx); err != nil {
		_ = s.Close()
		t.Skipf("redis not reachable at %s: %v", cfg.RedisAddr, err)
	}
	t.Cleanup(func() { _ = s.Close() })
	return s
}
