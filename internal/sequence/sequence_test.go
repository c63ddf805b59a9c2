package sequence

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClockGeneratorUsesMillis(t *testing.T) {
	g := NewClockGenerator()
	g.now = func() time.Time { return time.UnixMilli(1700000000123) }

	first, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V-1700000000123", first)

	second, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V-1700000000124", second)
}

func TestClockGeneratorNeverGoesBackwards(t *testing.T) {
	g := NewClockGenerator()
	at := time.UnixMilli(2000)
	g.now = func() time.Time { return at }

	_, err := g.Next(context.Background())
	require.NoError(t, err)
	at = time.UnixMilli(1000)
	next, err := g.Next(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "V-2001", next)
}

func TestClockGeneratorConcurrentUnique(t *testing.T) {
	g := NewClockGenerator()
	const n = 200
	results := make([]string, n)
	var wg sync.WaitGroup
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			results[i], _ = g.Next(context.Background())
		}(i)
	}
	wg.Wait()

	seen := make(map[string]struct{}, n)
	for _, r := range results {
		_, dup := seen[r]
		assert.False(t, dup, "duplicate sale number %s", r)
		seen[r] = struct{}{}
	}
}
