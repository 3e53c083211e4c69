package redis

import (
	"context"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/kirillkom/civic-records/internal/core/domain"
)

const (
	keyPrefix = "seq:"
	// Counters outlive their day so late retries in another time zone
	// still see the same value.
	keyTTL = 48 * time.Hour
)

// Allocator hands out per-(type, day) sequence numbers with INCR, which is
// atomic across every api instance sharing the Redis server.
type Allocator struct {
	client *redis.Client
}

func NewAllocator(client *redis.Client) *Allocator {
	return &Allocator{client: client}
}

// Connect parses url, builds a client and checks it with PING.
func Connect(ctx context.Context, url string) (*redis.Client, error) {
	opts, err := redis.ParseURL(url)
	if err != nil {
		return nil, fmt.Errorf("parse redis URL: %w", err)
	}
	client := redis.NewClient(opts)
	if err := client.Ping(ctx).Err(); err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("redis ping failed: %w", err)
	}
	return client, nil
}

func (a *Allocator) Next(ctx context.Context, typeCode string, day time.Time) (int64, error) {
	key := sequenceKey(typeCode, day)
	var incr *redis.IntCmd
	_, err := a.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		incr = pipe.Incr(ctx, key)
		pipe.Expire(ctx, key, keyTTL)
		return nil
	})
	if err != nil {
		return 0, domain.WrapError(domain.ErrTemporary, "allocate sequence", err)
	}
	return incr.Val(), nil
}

func sequenceKey(typeCode string, day time.Time) string {
	return keyPrefix + typeCode + ":" + day.Format("20060102")
}
