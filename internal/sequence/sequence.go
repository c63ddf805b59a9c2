// Package sequence hands out human-readable sale numbers.
package sequence

import (
	"context"
	"fmt"
	"strconv"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

const Prefix = "V-"

type Generator interface {
	Next(ctx context.Context) (string, error)
}

// ClockGenerator numbers sales by the millisecond they were taken. Two calls
// in the same millisecond still get distinct numbers.
type ClockGenerator struct {
	mu   sync.Mutex
	last int64
	now  func() time.Time
}

func NewClockGenerator() *ClockGenerator {
	return &ClockGenerator{now: time.Now}
}

func (g *ClockGenerator) Next(_ context.Context) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	millis := g.now().UnixMilli()
	if millis <= g.last {
		millis = g.last + 1
	}
	g.last = millis
	return Prefix + strconv.FormatInt(millis, 10), nil
}

// RedisGenerator keeps one counter per local day, so numbers stay short and
// unique across every process sharing the Redis instance.
type RedisGenerator struct {
	client *redis.Client
	key    string
	loc    *time.Location
	now    func() time.Time
}

func NewRedisGenerator(client *redis.Client, key string, loc *time.Location) *RedisGenerator {
	if key == "" {
		key = "kiosco:sale-seq"
	}
	if loc == nil {
		loc = time.UTC
	}
	return &RedisGenerator{client: client, key: key, loc: loc, now: time.Now}
}

func (g *RedisGenerator) Next(ctx context.Context) (string, error) {
	day := g.now().In(g.loc).Format("20060102")
	dayKey := g.key + ":" + day

	pipe := g.client.TxPipeline()
	incr := pipe.Incr(ctx, dayKey)
	pipe.Expire(ctx, dayKey, 48*time.Hour)
	if _, err := pipe.Exec(ctx); err != nil {
		return "", fmt.Errorf("next sale number: %w", err)
	}
	return fmt.Sprintf("%s%s-%04d", Prefix, day, incr.Val()), nil
}
