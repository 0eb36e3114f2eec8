// Package cache implements the hot cache tier on a Redis-protocol
// server. Readings are stored as JSON values under content-derived keys
// with a server-enforced TTL; recency reads enumerate live keys and
// sort in memory, because the cache has no ordering across keys. The
// live-key count is bounded by the retention window times the ingestion
// rate, which keeps the fetch-then-sort cost acceptable.
package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/logging"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

var log = logging.Component("cache")

// Compile-time interface check.
var _ storage.CacheTier = (*Cache)(nil)

// Cache is the Redis-backed CacheTier. The underlying client pools
// connections and is safe for concurrent use.
type Cache struct {
	client    *redis.Client
	prefix    string
	ttl       time.Duration
	scanBatch int
}

// New returns a cache over the configured server. The connection is
// established lazily; call Ping to verify reachability at startup.
func New(cfg config.CacheConfig) *Cache {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr,
		DB:           cfg.DB,
		Password:     cfg.Password,
		DialTimeout:  cfg.DialTimeout.Duration(),
		ReadTimeout:  cfg.OpTimeout.Duration(),
		WriteTimeout: cfg.OpTimeout.Duration(),
	})

	return &Cache{
		client:    client,
		prefix:    cfg.KeyPrefix,
		ttl:       cfg.Retention.Duration(),
		scanBatch: cfg.ScanBatch,
	}
}

// key builds the storage key for a reading. The reading ID keeps two
// readings with the same timestamp from overwriting each other.
func (c *Cache) key(r report.SensorReading) string {
	return fmt.Sprintf("%s%s:%s",
		c.prefix,
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.ReadingID(),
	)
}

// Put stores the reading with the configured TTL. Writing the same
// reading twice refreshes its TTL and nothing else.
func (c *Cache) Put(ctx context.Context, r report.SensorReading) error {
	payload, err := json.Marshal(r)
	if err != nil {
		return fmt.Errorf("encode reading: %w", err)
	}

	if err := c.client.Set(ctx, c.key(r), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("cache set: %w", err)
	}
	return nil
}

// Recent returns live readings sorted newest first, truncated to limit
// (zero means all). Keys are enumerated with SCAN, never KEYS, so the
// server is not blocked; values that expired between the scan and the
// bulk get are skipped, as are values that fail to decode.
func (c *Cache) Recent(ctx context.Context, limit int) ([]report.SensorReading, error) {
	keys, err := c.liveKeys(ctx)
	if err != nil {
		return nil, err
	}

	readings := make([]report.SensorReading, 0, len(keys))
	for start := 0; start < len(keys); start += c.scanBatch {
		end := min(start+c.scanBatch, len(keys))
		vals, err := c.client.MGet(ctx, keys[start:end]...).Result()
		if err != nil {
			return nil, fmt.Errorf("cache bulk get: %w", err)
		}
		readings = append(readings, decodeValues(keys[start:end], vals)...)
	}

	storage.SortNewestFirst(readings)
	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

// liveKeys enumerates all keys under the prefix. SCAN may repeat a key
// across pages, so results are deduplicated.
func (c *Cache) liveKeys(ctx context.Context) ([]string, error) {
	seen := make(map[string]struct{})
	var keys []string

	iter := c.client.Scan(ctx, 0, c.prefix+"*", int64(c.scanBatch)).Iterator()
	for iter.Next(ctx) {
		k := iter.Val()
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		keys = append(keys, k)
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("cache key scan: %w", err)
	}
	return keys, nil
}

// decodeValues turns bulk-get results into readings. Nil values are
// keys that expired after the scan; undecodable values are logged and
// skipped rather than failing the whole read.
func decodeValues(keys []string, vals []interface{}) []report.SensorReading {
	readings := make([]report.SensorReading, 0, len(vals))
	for i, v := range vals {
		if v == nil {
			continue
		}

		s, ok := v.(string)
		if !ok {
			log.Warn("skipping non-string cache value", "key", keys[i])
			continue
		}

		var r report.SensorReading
		if err := json.Unmarshal([]byte(s), &r); err != nil {
			log.Warn("skipping undecodable cache value", "key", keys[i], "error", err)
			continue
		}
		readings = append(readings, r)
	}
	return readings
}

// Ping verifies connectivity.
func (c *Cache) Ping(ctx context.Context) error {
	if err := c.client.Ping(ctx).Err(); err != nil {
		return fmt.Errorf("cache ping: %w", err)
	}
	return nil
}

// Close releases the client's connection pool.
func (c *Cache) Close(ctx context.Context) error {
	return c.client.Close()
}
