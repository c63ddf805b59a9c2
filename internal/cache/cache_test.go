package cache

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kiosco/backend/internal/domain"
)

func TestMemoryConfigurationCacheExpires(t *testing.T) {
	now := time.Date(2026, 10, 1, 10, 0, 0, 0, time.UTC)
	c := NewMemoryConfigurationCache()
	c.now = func() time.Time { return now }

	require.NoError(t, c.Set(context.Background(), &domain.Configuration{BusinessName: "Kiosco Sur"}, time.Minute))

	got, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "Kiosco Sur", got.BusinessName)

	got.BusinessName = "mutated"
	again, _, _ := c.Get(context.Background())
	assert.Equal(t, "Kiosco Sur", again.BusinessName)

	now = now.Add(time.Minute)
	_, ok, err = c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestMemoryConfigurationCacheInvalidate(t *testing.T) {
	c := NewMemoryConfigurationCache()
	require.NoError(t, c.Set(context.Background(), &domain.Configuration{Currency: "ARS"}, 0))
	require.NoError(t, c.Invalidate(context.Background()))

	_, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoopConfigurationCacheNeverHits(t *testing.T) {
	var c ConfigurationCache = NoopConfigurationCache{}
	require.NoError(t, c.Set(context.Background(), &domain.Configuration{}, time.Minute))
	_, ok, err := c.Get(context.Background())
	require.NoError(t, err)
	assert.False(t, ok)
}
