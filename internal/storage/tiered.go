package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/wortwatch/wortwatch/internal/logging"
	"github.com/wortwatch/wortwatch/internal/report"
)

var log = logging.Component("storage")

// Direction selects which way a historical query moves from its cursor.
type Direction int

const (
	// DirectionForward moves toward older readings.
	DirectionForward Direction = iota

	// DirectionBackward moves toward newer readings.
	DirectionBackward
)

// Cursor is a stable position in the durable store's sort order:
// timestamp descending with the reading ID as tiebreak. Cursors are
// minted from stored values, so comparisons always run against what the
// store actually holds.
type Cursor struct {
	Timestamp time.Time
	ReadingID string
}

// HistoricalQuery describes one durable store page read. PageSize must
// already be bounded by the caller; the tier fetches one row beyond it
// to detect a further page.
type HistoricalQuery struct {
	// Batch filters to an exact batch ID, empty for all batches.
	Batch string

	// PageSize is the maximum number of readings to return.
	PageSize int

	// Cursor is the position to continue from, nil for the first page.
	Cursor *Cursor

	// Direction is the way to move from the cursor. Ignored when
	// Cursor is nil.
	Direction Direction
}

// HistoricalPage is one page of durable store results, always ordered
// newest first regardless of query direction.
type HistoricalPage struct {
	// Readings is the page content, timestamp descending.
	Readings []report.SensorReading

	// First and Last are the cursors of the newest and oldest readings
	// in the page, nil when the page is empty.
	First *Cursor
	Last  *Cursor

	// HasMore reports whether further readings exist in the query
	// direction beyond this page.
	HasMore bool

	// Total is the number of readings matching the filter, independent
	// of pagination.
	Total int64
}

// CacheTier is the hot cache consumed by the tiered store: keyed
// storage with per-entry expiry, enumerable for recent reads.
type CacheTier interface {
	// Put stores the reading under its content-derived key with the
	// configured time-to-live.
	Put(ctx context.Context, r report.SensorReading) error

	// Recent returns live readings sorted newest first, truncated to
	// limit. Zero means all live readings.
	Recent(ctx context.Context, limit int) ([]report.SensorReading, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// DurableTier is the persistent store consumed by the tiered store:
// insert-only documents with indexed, paginated reads.
type DurableTier interface {
	// Put inserts the reading. A duplicate reading ID is an
	// already-applied write and not an error.
	Put(ctx context.Context, r report.SensorReading) error

	// Query returns one page of readings per q.
	Query(ctx context.Context, q HistoricalQuery) (HistoricalPage, error)

	// Batches returns the distinct batch IDs present in the store.
	Batches(ctx context.Context) ([]string, error)

	// Ping verifies connectivity.
	Ping(ctx context.Context) error

	// Close releases the connection.
	Close(ctx context.Context) error
}

// TieredStore fans writes out to both tiers and routes reads to the
// tier that serves them. Handles are injected and shared; both drivers
// pool connections, so one store serves all workers and the query
// service concurrently.
type TieredStore struct {
	cache   CacheTier
	durable DurableTier
}

// NewTieredStore returns a store over the given tier handles.
func NewTieredStore(cache CacheTier, durable DurableTier) *TieredStore {
	return &TieredStore{cache: cache, durable: durable}
}

// Put writes the reading to the hot cache, then the durable store. Both
// writes are attempted even if the first fails; any failure is returned
// as *TierWriteError naming the inconsistent tier, and each partial
// failure is logged so an operator can reconcile.
func (s *TieredStore) Put(ctx context.Context, r report.SensorReading) error {
	cacheErr := s.cache.Put(ctx, r)
	if cacheErr != nil {
		log.Error("hot cache write failed",
			"reading_id", r.ReadingID(),
			"timestamp", r.Timestamp,
			"error", cacheErr)
	}

	durableErr := s.durable.Put(ctx, r)
	if durableErr != nil {
		log.Error("durable store write failed",
			"reading_id", r.ReadingID(),
			"timestamp", r.Timestamp,
			"error", durableErr)
	}

	if cacheErr != nil || durableErr != nil {
		return &TierWriteError{CacheErr: cacheErr, DurableErr: durableErr}
	}
	return nil
}

// Recent returns up to limit live cached readings, newest first. An
// empty cache yields an empty slice, not an error.
func (s *TieredStore) Recent(ctx context.Context, limit int) ([]report.SensorReading, error) {
	readings, err := s.cache.Recent(ctx, limit)
	if err != nil {
		return nil, &QueryError{Tier: TierCache, Op: "recent", Err: err}
	}
	return readings, nil
}

// Historical returns one page from the durable store.
func (s *TieredStore) Historical(ctx context.Context, q HistoricalQuery) (HistoricalPage, error) {
	if q.PageSize <= 0 {
		return HistoricalPage{}, &QueryError{
			Tier: TierDurable, Op: "query",
			Err: fmt.Errorf("page size %d must be positive", q.PageSize),
		}
	}

	page, err := s.durable.Query(ctx, q)
	if err != nil {
		return HistoricalPage{}, &QueryError{Tier: TierDurable, Op: "query", Err: err}
	}
	return page, nil
}

// Batches returns the distinct batch IDs in the durable store.
func (s *TieredStore) Batches(ctx context.Context) ([]string, error) {
	batches, err := s.durable.Batches(ctx)
	if err != nil {
		return nil, &QueryError{Tier: TierDurable, Op: "batches", Err: err}
	}
	return batches, nil
}

// Ping verifies both tiers are reachable.
func (s *TieredStore) Ping(ctx context.Context) error {
	if err := s.cache.Ping(ctx); err != nil {
		return &TierUnavailableError{Tier: TierCache, Err: err}
	}
	if err := s.durable.Ping(ctx); err != nil {
		return &TierUnavailableError{Tier: TierDurable, Err: err}
	}
	return nil
}

// Close releases both tier connections.
func (s *TieredStore) Close(ctx context.Context) error {
	var errs []error
	if err := s.cache.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close cache: %w", err))
	}
	if err := s.durable.Close(ctx); err != nil {
		errs = append(errs, fmt.Errorf("close durable: %w", err))
	}
	return errors.Join(errs...)
}
