package query

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/ismaiel54/event-sink/internal/store"
	"github.com/redis/go-redis/v9"
)

const defaultKeyPrefix = "event-sink:recent"

// RecentCache caches ListRecent results in Redis. Entries are keyed by a
// generation counter; Invalidate bumps the generation so every cached page
// becomes unreachable at once.
type RecentCache struct {
	client *redis.Client
	prefix string
	ttl    time.Duration
}

// NewRecentCache creates a cache on client. A zero ttl keeps entries until
// the next invalidation.
func NewRecentCache(client *redis.Client, ttl time.Duration) *RecentCache {
	return &RecentCache{
		client: client,
		prefix: defaultKeyPrefix,
		ttl:    ttl,
	}
}

// NewRedisClient connects to addr and pings it
func NewRedisClient(ctx context.Context, addr string) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{Addr: addr})
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to ping redis: %w", err)
	}
	return client, nil
}

type cachedRecord struct {
	ID            string `json:"id"`
	SchemaVersion int    `json:"schema_version"`
	Value         string `json:"value"`
	CreatedAt     int64  `json:"created_at"`
	Topic         string `json:"topic"`
	Partition     int32  `json:"partition"`
	Offset        int64  `json:"offset"`
}

func (c *RecentCache) genKey() string {
	return c.prefix + ":gen"
}

func (c *RecentCache) pageKey(gen int64, limit int) string {
	return fmt.Sprintf("%s:%d:%d", c.prefix, gen, limit)
}

// Generation returns the current generation
func (c *RecentCache) Generation(ctx context.Context) (int64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Int64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to read cache generation: %w", err)
	}
	return gen, nil
}

// Get returns the cached page for limit in generation gen
func (c *RecentCache) Get(ctx context.Context, gen int64, limit int) ([]store.Record, bool, error) {
	data, err := c.client.Get(ctx, c.pageKey(gen, limit)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to read cache: %w", err)
	}

	var cached []cachedRecord
	if err := json.Unmarshal(data, &cached); err != nil {
		return nil, false, fmt.Errorf("failed to decode cached page: %w", err)
	}

	records := make([]store.Record, 0, len(cached))
	for _, r := range cached {
		records = append(records, store.Record{
			ID:            r.ID,
			SchemaVersion: r.SchemaVersion,
			Value:         r.Value,
			CreatedAt:     time.UnixMilli(r.CreatedAt).UTC(),
			Source:        store.SourceOffset{Topic: r.Topic, Partition: r.Partition, Offset: r.Offset},
		})
	}
	return records, true, nil
}

// Set stores a page read while gen was current
func (c *RecentCache) Set(ctx context.Context, gen int64, limit int, records []store.Record) error {
	cached := make([]cachedRecord, 0, len(records))
	for _, r := range records {
		cached = append(cached, cachedRecord{
			ID:            r.ID,
			SchemaVersion: r.SchemaVersion,
			Value:         r.Value,
			CreatedAt:     r.CreatedAt.UnixMilli(),
			Topic:         r.Source.Topic,
			Partition:     r.Source.Partition,
			Offset:        r.Source.Offset,
		})
	}

	data, err := json.Marshal(cached)
	if err != nil {
		return fmt.Errorf("failed to encode page: %w", err)
	}
	if err := c.client.Set(ctx, c.pageKey(gen, limit), data, c.ttl).Err(); err != nil {
		return fmt.Errorf("failed to write cache: %w", err)
	}
	return nil
}

// Invalidate starts a new generation
func (c *RecentCache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("failed to bump cache generation: %w", err)
	}
	return nil
}
