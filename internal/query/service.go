// Package query serves read traffic over the two storage tiers: recent
// readings from the hot cache and paginated history from the durable
// store, with opaque continuation tokens that stay stable while new
// readings arrive.
package query

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

// HistoricalRequest is one page request against the durable store.
// Zero values select the configured defaults.
type HistoricalRequest struct {
	// Batch filters to an exact batch ID, empty for all batches.
	Batch string

	// PageSize is the requested page size; 0 means the configured
	// default, values above the configured maximum are clamped.
	PageSize int

	// Token continues from a previous page's Next or Previous value.
	// Empty means the first page, newest readings first.
	Token string
}

// HistoricalResult is one page of history. Next and Previous are
// continuation tokens, empty at the respective end of the result set.
type HistoricalResult struct {
	Count    int64
	Next     string
	Previous string
	Readings []report.SensorReading
}

// Service answers read queries. It is safe for concurrent use.
type Service struct {
	cfg   config.QueryConfig
	store *storage.TieredStore

	// Concurrent identical recent fetches collapse into one cache
	// enumeration; collapsed callers share the winner's context.
	recent singleflight.Group
}

// New creates a query service over the tiered store.
func New(cfg config.QueryConfig, store *storage.TieredStore) *Service {
	return &Service{cfg: cfg, store: store}
}

// =============================================================================
// Recent
// =============================================================================

// Recent returns the freshest cached readings, newest first. A limit of
// 0 selects the configured default; limits above the configured maximum
// are clamped. An empty cache yields an empty slice.
func (s *Service) Recent(ctx context.Context, limit int) ([]report.SensorReading, error) {
	if limit <= 0 {
		limit = s.cfg.RecentDefault
	}
	if limit > s.cfg.RecentMax {
		limit = s.cfg.RecentMax
	}

	v, err, _ := s.recent.Do(fmt.Sprintf("recent:%d", limit), func() (interface{}, error) {
		return s.store.Recent(ctx, limit)
	})
	if err != nil {
		return nil, err
	}
	return v.([]report.SensorReading), nil
}

// =============================================================================
// Historical
// =============================================================================

// Historical returns one page of durable history, newest first within
// the page. Continuation tokens stay valid while new readings arrive:
// they pin a position in the timestamp-plus-ID sort order, so a page
// walk never skips or repeats a reading that existed when it started.
func (s *Service) Historical(ctx context.Context, req HistoricalRequest) (HistoricalResult, error) {
	size := req.PageSize
	if size <= 0 {
		size = s.cfg.PageSize
	}
	if size > s.cfg.PageSizeMax {
		size = s.cfg.PageSizeMax
	}

	q := storage.HistoricalQuery{
		Batch:    req.Batch,
		PageSize: size,
	}
	if req.Token != "" {
		cur, dir, err := decodeToken(req.Token, req.Batch)
		if err != nil {
			return HistoricalResult{}, err
		}
		q.Cursor = &cur
		q.Direction = dir
	}

	page, err := s.store.Historical(ctx, q)
	if err != nil {
		return HistoricalResult{}, err
	}

	res := HistoricalResult{
		Count:    page.Total,
		Readings: page.Readings,
	}

	// Next continues toward older readings from the oldest row of this
	// page; Previous continues toward newer readings from the newest
	// row. Whether each exists depends on which way this page was
	// reached: arriving backward means everything older than the page
	// was already seen, so Next always exists; arriving forward via a
	// token means the same for Previous.
	backward := q.Cursor != nil && q.Direction == storage.DirectionBackward

	if len(page.Readings) > 0 {
		if backward || page.HasMore {
			res.Next = encodeToken(*page.Last, storage.DirectionForward, req.Batch)
		}
		if (backward && page.HasMore) || (!backward && q.Cursor != nil) {
			res.Previous = encodeToken(*page.First, storage.DirectionBackward, req.Batch)
		}
		return res, nil
	}

	// Empty page reached through a token: the data shrank or the
	// position sits past an end. Offer the way back from the request's
	// own position so the caller can recover without restarting.
	if q.Cursor != nil {
		if backward {
			res.Next = encodeToken(*q.Cursor, storage.DirectionForward, req.Batch)
		} else {
			res.Previous = encodeToken(*q.Cursor, storage.DirectionBackward, req.Batch)
		}
	}
	return res, nil
}

// Batches returns the distinct batch IDs present in the durable store.
func (s *Service) Batches(ctx context.Context) ([]string, error) {
	return s.store.Batches(ctx)
}
