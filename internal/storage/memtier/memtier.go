// Package memtier provides in-memory implementations of the storage
// tier interfaces for tests. Both fakes are safe for concurrent use and
// support error injection so failure paths can be driven without a real
// outage.
package memtier

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

// Compile-time interface checks.
var (
	_ storage.CacheTier   = (*MemCache)(nil)
	_ storage.DurableTier = (*MemDurable)(nil)
)

// =============================================================================
// MemCache
// =============================================================================

type cacheEntry struct {
	reading   report.SensorReading
	expiresAt time.Time
}

// MemCache is an in-memory CacheTier with real TTL semantics driven by
// an injectable clock.
type MemCache struct {
	mu      sync.Mutex
	entries map[string]cacheEntry

	ttl time.Duration
	now func() time.Time

	putErr    error
	recentErr error
	pingErr   error
}

// NewMemCache returns a cache fake with the given retention window.
// The wall clock is used unless SetClock installs another.
func NewMemCache(ttl time.Duration) *MemCache {
	return &MemCache{
		entries: make(map[string]cacheEntry),
		ttl:     ttl,
		now:     time.Now,
	}
}

// SetClock replaces the cache's notion of now, letting tests age
// entries past the retention window without sleeping.
func (c *MemCache) SetClock(now func() time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = now
}

// FailPut makes subsequent Put calls return err. Nil restores success.
func (c *MemCache) FailPut(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.putErr = err
}

// FailRecent makes subsequent Recent calls return err.
func (c *MemCache) FailRecent(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.recentErr = err
}

// FailPing makes subsequent Ping calls return err.
func (c *MemCache) FailPing(err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.pingErr = err
}

// Len returns the number of live entries.
func (c *MemCache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()

	now := c.now()
	n := 0
	for _, e := range c.entries {
		if e.expiresAt.After(now) {
			n++
		}
	}
	return n
}

func (c *MemCache) Put(ctx context.Context, r report.SensorReading) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.putErr != nil {
		return c.putErr
	}

	c.entries[r.ReadingID()] = cacheEntry{
		reading:   r,
		expiresAt: c.now().Add(c.ttl),
	}
	return nil
}

func (c *MemCache) Recent(ctx context.Context, limit int) ([]report.SensorReading, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.recentErr != nil {
		return nil, c.recentErr
	}

	now := c.now()
	readings := make([]report.SensorReading, 0, len(c.entries))
	for id, e := range c.entries {
		if !e.expiresAt.After(now) {
			delete(c.entries, id)
			continue
		}
		readings = append(readings, e.reading)
	}

	storage.SortNewestFirst(readings)
	if limit > 0 && len(readings) > limit {
		readings = readings[:limit]
	}
	return readings, nil
}

func (c *MemCache) Ping(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.pingErr
}

func (c *MemCache) Close(ctx context.Context) error { return nil }

// =============================================================================
// MemDurable
// =============================================================================

type storedReading struct {
	id      string
	reading report.SensorReading
}

// MemDurable is an in-memory DurableTier: append-only, deduplicated by
// reading ID, with the same keyset pagination contract as the real
// adapter.
type MemDurable struct {
	mu      sync.Mutex
	records []storedReading
	byID    map[string]struct{}

	putErr   error
	queryErr error
	pingErr  error
}

// NewMemDurable returns an empty durable store fake.
func NewMemDurable() *MemDurable {
	return &MemDurable{byID: make(map[string]struct{})}
}

// FailPut makes subsequent Put calls return err. Nil restores success.
func (d *MemDurable) FailPut(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.putErr = err
}

// FailQuery makes subsequent Query and Batches calls return err.
func (d *MemDurable) FailQuery(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.queryErr = err
}

// FailPing makes subsequent Ping calls return err.
func (d *MemDurable) FailPing(err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.pingErr = err
}

// Len returns the number of stored readings.
func (d *MemDurable) Len() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.records)
}

func (d *MemDurable) Put(ctx context.Context, r report.SensorReading) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.putErr != nil {
		return d.putErr
	}

	id := r.ReadingID()
	if _, ok := d.byID[id]; ok {
		// Duplicate ID: an already-applied write.
		return nil
	}

	d.byID[id] = struct{}{}
	d.records = append(d.records, storedReading{id: id, reading: r})
	return nil
}

func (d *MemDurable) Query(ctx context.Context, q storage.HistoricalQuery) (storage.HistoricalPage, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queryErr != nil {
		return storage.HistoricalPage{}, d.queryErr
	}

	// Filter, then order newest first.
	matched := make([]storedReading, 0, len(d.records))
	for _, rec := range d.records {
		if q.Batch != "" && rec.reading.BatchID != q.Batch {
			continue
		}
		matched = append(matched, rec)
	}
	sort.Slice(matched, func(i, j int) bool {
		ti, tj := matched[i].reading.Timestamp, matched[j].reading.Timestamp
		if !ti.Equal(tj) {
			return ti.After(tj)
		}
		return matched[i].id > matched[j].id
	})

	total := int64(len(matched))

	// Apply the cursor: forward keeps strictly older rows, backward
	// keeps strictly newer rows (still in newest-first order here).
	rows := matched
	if q.Cursor != nil {
		pos := *q.Cursor
		kept := rows[:0:0]
		for _, rec := range rows {
			if q.Direction == storage.DirectionForward {
				if olderThan(rec, pos) {
					kept = append(kept, rec)
				}
			} else {
				if newerThan(rec, pos) {
					kept = append(kept, rec)
				}
			}
		}
		rows = kept
	}

	var page []storedReading
	hasMore := false
	if q.Cursor != nil && q.Direction == storage.DirectionBackward {
		// Backward pages fill from the oldest end of the newer rows.
		if len(rows) > q.PageSize {
			hasMore = true
			page = rows[len(rows)-q.PageSize:]
		} else {
			page = rows
		}
	} else {
		if len(rows) > q.PageSize {
			hasMore = true
			page = rows[:q.PageSize]
		} else {
			page = rows
		}
	}

	result := storage.HistoricalPage{
		Readings: make([]report.SensorReading, len(page)),
		HasMore:  hasMore,
		Total:    total,
	}
	for i, rec := range page {
		result.Readings[i] = rec.reading
	}
	if len(page) > 0 {
		result.First = &storage.Cursor{
			Timestamp: page[0].reading.Timestamp,
			ReadingID: page[0].id,
		}
		result.Last = &storage.Cursor{
			Timestamp: page[len(page)-1].reading.Timestamp,
			ReadingID: page[len(page)-1].id,
		}
	}
	return result, nil
}

func olderThan(rec storedReading, pos storage.Cursor) bool {
	if rec.reading.Timestamp.Before(pos.Timestamp) {
		return true
	}
	return rec.reading.Timestamp.Equal(pos.Timestamp) && rec.id < pos.ReadingID
}

func newerThan(rec storedReading, pos storage.Cursor) bool {
	if rec.reading.Timestamp.After(pos.Timestamp) {
		return true
	}
	return rec.reading.Timestamp.Equal(pos.Timestamp) && rec.id > pos.ReadingID
}

func (d *MemDurable) Batches(ctx context.Context) ([]string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.queryErr != nil {
		return nil, d.queryErr
	}

	seen := make(map[string]struct{})
	var batches []string
	for _, rec := range d.records {
		if _, ok := seen[rec.reading.BatchID]; ok {
			continue
		}
		seen[rec.reading.BatchID] = struct{}{}
		batches = append(batches, rec.reading.BatchID)
	}
	sort.Strings(batches)
	return batches, nil
}

func (d *MemDurable) Ping(ctx context.Context) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.pingErr
}

func (d *MemDurable) Close(ctx context.Context) error { return nil }
