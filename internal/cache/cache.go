package cache

import (
	"context"
	"sync"
	"time"

	"kiosco/backend/internal/domain"
)

// ConfigurationCache holds the business configuration singleton between reads.
type ConfigurationCache interface {
	Get(ctx context.Context) (*domain.Configuration, bool, error)
	Set(ctx context.Context, value *domain.Configuration, ttl time.Duration) error
	Invalidate(ctx context.Context) error
}

type NoopConfigurationCache struct{}

func (NoopConfigurationCache) Get(_ context.Context) (*domain.Configuration, bool, error) {
	return nil, false, nil
}

func (NoopConfigurationCache) Set(_ context.Context, _ *domain.Configuration, _ time.Duration) error {
	return nil
}

func (NoopConfigurationCache) Invalidate(_ context.Context) error {
	return nil
}

// MemoryConfigurationCache is the single-process cache used when no Redis
// address is configured.
type MemoryConfigurationCache struct {
	mu        sync.Mutex
	value     *domain.Configuration
	expiresAt time.Time
	now       func() time.Time
}

func NewMemoryConfigurationCache() *MemoryConfigurationCache {
	return &MemoryConfigurationCache{now: time.Now}
}

func (c *MemoryConfigurationCache) Get(_ context.Context) (*domain.Configuration, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.value == nil || (!c.expiresAt.IsZero() && !c.now().Before(c.expiresAt)) {
		return nil, false, nil
	}
	copied := *c.value
	return &copied, true, nil
}

func (c *MemoryConfigurationCache) Set(_ context.Context, value *domain.Configuration, ttl time.Duration) error {
	if value == nil {
		return nil
	}
	c.mu.Lock()
	defer c.mu.Unlock()

	copied := *value
	c.value = &copied
	c.expiresAt = time.Time{}
	if ttl > 0 {
		c.expiresAt = c.now().Add(ttl)
	}
	return nil
}

func (c *MemoryConfigurationCache) Invalidate(_ context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.value = nil
	return nil
}
