package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/bradfitz/gomemcache/memcache"

	"github.com/kjstillabower/smart-farm-service/internal/models"
)

const (
	keyPrefix   = "farm:"
	recentKey   = keyPrefix + "recent"
	latestKey   = keyPrefix + "latest"
	maxCASTries = 10
)

// ErrContention is returned when Push loses the compare-and-swap race too often.
var ErrContention = errors.New("cache: too much write contention")

// MemcachedCache implements Cache on memcached so replicas share one window.
// The window is a single JSON item updated with compare-and-swap.
type MemcachedCache struct {
	client   *memcache.Client
	capacity int
}

// NewMemcachedCache creates a MemcachedCache. addrs is a comma-separated list
// (e.g. "localhost:11211" or "host1:11211,host2:11211"). timeout and maxIdleConns
// configure the client; both use package defaults if zero.
func NewMemcachedCache(addrs string, timeout time.Duration, maxIdleConns, capacity int) (*MemcachedCache, error) {
	servers := parseAddrs(addrs)
	if len(servers) == 0 {
		servers = []string{"localhost:11211"}
	}
	client := memcache.New(servers...)
	if timeout > 0 {
		client.Timeout = timeout
	}
	if maxIdleConns > 0 {
		client.MaxIdleConns = maxIdleConns
	}
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &MemcachedCache{client: client, capacity: capacity}, nil
}

func parseAddrs(s string) []string {
	var out []string
	for _, a := range strings.Split(s, ",") {
		a = strings.TrimSpace(a)
		if a != "" {
			out = append(out, a)
		}
	}
	return out
}

// Push prepends s to the shared window, trims it to capacity, and stores s as latest.
func (c *MemcachedCache) Push(ctx context.Context, s models.Snapshot) error {
	for attempt := 0; attempt < maxCASTries; attempt++ {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		item, err := c.client.Get(recentKey)
		if errors.Is(err, memcache.ErrCacheMiss) {
			raw, err := json.Marshal([]models.Snapshot{s})
			if err != nil {
				return err
			}
			err = c.client.Add(&memcache.Item{Key: recentKey, Value: raw})
			if errors.Is(err, memcache.ErrNotStored) {
				continue
			}
			if err != nil {
				return fmt.Errorf("add window: %w", err)
			}
			return c.setLatest(s)
		}
		if err != nil {
			return fmt.Errorf("get window: %w", err)
		}

		var window []models.Snapshot
		if err := json.Unmarshal(item.Value, &window); err != nil {
			return fmt.Errorf("decode window: %w", err)
		}
		window = prepend(window, s, c.capacity)
		item.Value, err = json.Marshal(window)
		if err != nil {
			return err
		}
		err = c.client.CompareAndSwap(item)
		if errors.Is(err, memcache.ErrCASConflict) || errors.Is(err, memcache.ErrNotStored) {
			continue
		}
		if err != nil {
			return fmt.Errorf("swap window: %w", err)
		}
		return c.setLatest(s)
	}
	return ErrContention
}

func (c *MemcachedCache) setLatest(s models.Snapshot) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return err
	}
	return c.client.Set(&memcache.Item{Key: latestKey, Value: raw})
}

// prepend returns window with s at the front, dropping the oldest entries past capacity.
func prepend(window []models.Snapshot, s models.Snapshot, capacity int) []models.Snapshot {
	out := make([]models.Snapshot, 0, capacity)
	out = append(out, s)
	for _, w := range window {
		if len(out) == capacity {
			break
		}
		out = append(out, w)
	}
	return out
}

// Latest implements Cache.Latest. A miss yields EmptySnapshot.
func (c *MemcachedCache) Latest(ctx context.Context) (models.Snapshot, error) {
	if ctx.Err() != nil {
		return models.EmptySnapshot(), ctx.Err()
	}
	item, err := c.client.Get(latestKey)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return models.EmptySnapshot(), nil
	}
	if err != nil {
		return models.EmptySnapshot(), err
	}
	var s models.Snapshot
	if err := json.Unmarshal(item.Value, &s); err != nil {
		return models.EmptySnapshot(), err
	}
	return s, nil
}

// Recent implements Cache.Recent.
func (c *MemcachedCache) Recent(ctx context.Context) ([]models.Snapshot, error) {
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}
	item, err := c.client.Get(recentKey)
	if errors.Is(err, memcache.ErrCacheMiss) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	var window []models.Snapshot
	if err := json.Unmarshal(item.Value, &window); err != nil {
		return nil, err
	}
	return window, nil
}

// Len implements Cache.Len.
func (c *MemcachedCache) Len(ctx context.Context) (int, error) {
	window, err := c.Recent(ctx)
	return len(window), err
}

// Ping checks if memcached is reachable. Used for health checks.
func (c *MemcachedCache) Ping() error {
	return c.client.Ping()
}

// Close closes the memcached client connections. Call during shutdown.
func (c *MemcachedCache) Close() error {
	return c.client.Close()
}
