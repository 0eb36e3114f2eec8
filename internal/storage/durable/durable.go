// Package durable implements the durable store tier on MongoDB.
// Readings are insert-only documents deduplicated by a unique reading
// ID index; timestamps carry millisecond precision, the store's native
// datetime resolution. Page cursors are always minted from values read
// back from the store, so cursor comparisons run against exactly what
// is persisted.
package durable

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/shopspring/decimal"

	"github.com/wortwatch/wortwatch/internal/config"
	"github.com/wortwatch/wortwatch/internal/report"
	"github.com/wortwatch/wortwatch/internal/storage"
)

// Compile-time interface check.
var _ storage.DurableTier = (*Store)(nil)

// Store is the MongoDB-backed DurableTier. The underlying client pools
// connections and is safe for concurrent use.
type Store struct {
	client     *mongo.Client
	collection *mongo.Collection
	opTimeout  time.Duration
}

// Connect dials the configured deployment. The caller should Ping to
// verify reachability and EnsureIndexes before serving traffic.
func Connect(ctx context.Context, cfg config.DurableConfig) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connect durable store: %w", err)
	}

	return &Store{
		client:     client,
		collection: client.Database(cfg.Database).Collection(cfg.Collection),
		opTimeout:  cfg.OpTimeout.Duration(),
	}, nil
}

// EnsureIndexes creates the indexes the read and write paths rely on:
// a unique index on reading_id for replay deduplication, a descending
// (timestamp, reading_id) index for recency-ordered reads, and a
// batch-prefixed variant for filtered history.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	models := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "reading_id", Value: 1}},
			Options: options.Index().SetUnique(true).SetName("reading_id_unique"),
		},
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}, {Key: "reading_id", Value: -1}},
			Options: options.Index().SetName("timestamp_desc"),
		},
		{
			Keys:    bson.D{{Key: "batch_id", Value: 1}, {Key: "timestamp", Value: -1}, {Key: "reading_id", Value: -1}},
			Options: options.Index().SetName("batch_timestamp_desc"),
		},
	}

	if _, err := s.collection.Indexes().CreateMany(ctx, models); err != nil {
		return fmt.Errorf("create indexes: %w", err)
	}
	return nil
}

// readingDoc is the persisted document shape. Measures are Decimal128
// so the store keeps the decoder's exact precision.
type readingDoc struct {
	ReadingID   string               `bson:"reading_id"`
	Timestamp   time.Time            `bson:"timestamp"`
	BatchID     string               `bson:"batch_id"`
	Temperature primitive.Decimal128 `bson:"temperature_celsius"`
	Pressure    primitive.Decimal128 `bson:"pressure_psi"`
	CO2         primitive.Decimal128 `bson:"co2_vol"`
}

func toDoc(r report.SensorReading) (readingDoc, error) {
	temperature, err := primitive.ParseDecimal128(r.Temperature.String())
	if err != nil {
		return readingDoc{}, fmt.Errorf("encode temperature: %w", err)
	}
	pressure, err := primitive.ParseDecimal128(r.Pressure.String())
	if err != nil {
		return readingDoc{}, fmt.Errorf("encode pressure: %w", err)
	}
	co2, err := primitive.ParseDecimal128(r.CO2.String())
	if err != nil {
		return readingDoc{}, fmt.Errorf("encode co2: %w", err)
	}

	return readingDoc{
		ReadingID:   r.ReadingID(),
		Timestamp:   r.Timestamp.UTC(),
		BatchID:     r.BatchID,
		Temperature: temperature,
		Pressure:    pressure,
		CO2:         co2,
	}, nil
}

func fromDoc(d readingDoc) (report.SensorReading, error) {
	temperature, err := decimal.NewFromString(d.Temperature.String())
	if err != nil {
		return report.SensorReading{}, fmt.Errorf("decode temperature: %w", err)
	}
	pressure, err := decimal.NewFromString(d.Pressure.String())
	if err != nil {
		return report.SensorReading{}, fmt.Errorf("decode pressure: %w", err)
	}
	co2, err := decimal.NewFromString(d.CO2.String())
	if err != nil {
		return report.SensorReading{}, fmt.Errorf("decode co2: %w", err)
	}

	return report.SensorReading{
		Timestamp:   d.Timestamp.UTC(),
		BatchID:     d.BatchID,
		Temperature: temperature,
		Pressure:    pressure,
		CO2:         co2,
	}, nil
}

// Put inserts the reading. A duplicate reading ID means the reading was
// already applied by an earlier run, so the insert reports success.
func (s *Store) Put(ctx context.Context, r report.SensorReading) error {
	doc, err := toDoc(r)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil
		}
		return fmt.Errorf("insert reading: %w", err)
	}
	return nil
}

// Ping verifies connectivity against the primary.
func (s *Store) Ping(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, s.opTimeout)
	defer cancel()

	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("durable ping: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	if err := s.client.Disconnect(ctx); err != nil {
		return fmt.Errorf("disconnect durable store: %w", err)
	}
	return nil
}
