package durable

import (
	"context"
	"fmt"
	"sort"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

// buildFilter translates a historical query into a find filter. The
// cursor clause keeps strictly older rows for forward queries and
// strictly newer rows for backward ones, with the reading ID breaking
// timestamp ties.
func buildFilter(q storage.HistoricalQuery) bson.D {
	filter := bson.D{}
	if q.Batch != "" {
		filter = append(filter, bson.E{Key: "batch_id", Value: q.Batch})
	}

	if q.Cursor != nil {
		ts := primitive.NewDateTimeFromTime(q.Cursor.Timestamp)
		cmp := "$lt"
		if q.Direction == storage.DirectionBackward {
			cmp = "$gt"
		}
		filter = append(filter, bson.E{Key: "$or", Value: bson.A{
			bson.D{{Key: "timestamp", Value: bson.D{{Key: cmp, Value: ts}}}},
			bson.D{
				{Key: "timestamp", Value: ts},
				{Key: "reading_id", Value: bson.D{{Key: cmp, Value: q.Cursor.ReadingID}}},
			},
		}})
	}

	return filter
}

// buildSort returns the find sort order. Backward pages scan ascending
// from the cursor so the nearest rows come first; the page is reversed
// in memory afterwards so callers always see newest first.
func buildSort(q storage.HistoricalQuery) bson.D {
	if q.Cursor != nil && q.Direction == storage.DirectionBackward {
		return bson.D{{Key: "timestamp", Value: 1}, {Key: "reading_id", Value: 1}}
	}
	return bson.D{{Key: "timestamp", Value: -1}, {Key: "reading_id", Value: -1}}
}

// countFilter is the filter without the cursor clause: the total spans
// the whole result set, not the remainder past the cursor.
func countFilter(q storage.HistoricalQuery) bson.D {
	if q.Batch != "" {
		return bson.D{{Key: "batch_id", Value: q.Batch}}
	}
	return bson.D{}
}

// Query returns one page of readings, fetching one row beyond the page
// size to detect whether a further page exists.
func (s *Store) Query(ctx context.Context, q storage.HistoricalQuery) (storage.HistoricalPage, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	findOpts := options.Find().
		SetSort(buildSort(q)).
		SetLimit(int64(q.PageSize) + 1)

	cur, err := s.collection.Find(ctx, buildFilter(q), findOpts)
	if err != nil {
		return storage.HistoricalPage{}, fmt.Errorf("find readings: %w", err)
	}

	var docs []readingDoc
	if err := cur.All(ctx, &docs); err != nil {
		return storage.HistoricalPage{}, fmt.Errorf("decode readings: %w", err)
	}

	hasMore := false
	if len(docs) > q.PageSize {
		hasMore = true
		docs = docs[:q.PageSize]
	}

	// Backward pages arrive ascending; flip them to newest first.
	if q.Cursor != nil && q.Direction == storage.DirectionBackward {
		for i, j := 0, len(docs)-1; i < j; i, j = i+1, j-1 {
			docs[i], docs[j] = docs[j], docs[i]
		}
	}

	total, err := s.collection.CountDocuments(ctx, countFilter(q))
	if err != nil {
		return storage.HistoricalPage{}, fmt.Errorf("count readings: %w", err)
	}

	page := storage.HistoricalPage{
		Readings: make([]report.SensorReading, len(docs)),
		HasMore:  hasMore,
		Total:    total,
	}
	for i, doc := range docs {
		r, err := fromDoc(doc)
		if err != nil {
			return storage.HistoricalPage{}, err
		}
		page.Readings[i] = r
	}
	if len(docs) > 0 {
		page.First = &storage.Cursor{
			Timestamp: docs[0].Timestamp.UTC(),
			ReadingID: docs[0].ReadingID,
		}
		page.Last = &storage.Cursor{
			Timestamp: docs[len(docs)-1].Timestamp.UTC(),
			ReadingID: docs[len(docs)-1].ReadingID,
		}
	}
	return page, nil
}

// Batches returns the distinct batch IDs in the store, sorted.
func (s *Store) Batches(ctx context.Context) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	values, err := s.collection.Distinct(ctx, "batch_id", bson.D{})
	if err != nil {
		return nil, fmt.Errorf("distinct batches: %w", err)
	}

	batches := make([]string, 0, len(values))
	for _, v := range values {
		if batch, ok := v.(string); ok {
			batches = append(batches, batch)
		}
	}
	sort.Strings(batches)
	return batches, nil
}
