package cache

import (
	"context"
	"sync"

	"github.com/kjstillabower/smart-farm-service/internal/models"
)

// DefaultCapacity is the rolling window size when none is configured.
const DefaultCapacity = 200

// Cache holds the most recent snapshots, newest first, plus the latest one.
// Push must never grow the window past its capacity; the oldest entry goes first.
type Cache interface {
	Push(ctx context.Context, s models.Snapshot) error
	Latest(ctx context.Context) (models.Snapshot, error)
	Recent(ctx context.Context) ([]models.Snapshot, error)
	Len(ctx context.Context) (int, error)
}

// RingCache implements Cache in process memory using a fixed ring buffer.
// It starts cold on every restart. Safe for concurrent use.
type RingCache struct {
	mu     sync.RWMutex
	buf    []models.Snapshot
	head   int // index where the next push lands
	size   int
	latest models.Snapshot
}

// NewRingCache creates a RingCache holding at most capacity entries.
// A non-positive capacity falls back to DefaultCapacity.
func NewRingCache(capacity int) *RingCache {
	if capacity <= 0 {
		capacity = DefaultCapacity
	}
	return &RingCache{
		buf:    make([]models.Snapshot, capacity),
		latest: models.EmptySnapshot(),
	}
}

// Capacity returns the configured bound.
func (c *RingCache) Capacity() int {
	return len(c.buf)
}

// Push puts s at the front and makes it the latest snapshot.
func (c *RingCache) Push(ctx context.Context, s models.Snapshot) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.buf[c.head] = s
	c.head = (c.head + 1) % len(c.buf)
	if c.size < len(c.buf) {
		c.size++
	}
	c.latest = s
	return nil
}

// Latest returns the most recently pushed snapshot, or EmptySnapshot if none.
func (c *RingCache) Latest(ctx context.Context) (models.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.latest, nil
}

// Recent returns a copy of the window, newest first.
func (c *RingCache) Recent(ctx context.Context) ([]models.Snapshot, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]models.Snapshot, 0, c.size)
	for i := 1; i <= c.size; i++ {
		idx := (c.head - i + len(c.buf)) % len(c.buf)
		out = append(out, c.buf[idx])
	}
	return out, nil
}

// Len returns the number of entries currently held.
func (c *RingCache) Len(ctx context.Context) (int, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.size, nil
}
