// Package report defines the sensor reading model and the decoder that
// turns raw report payloads into validated readings.
package report

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

func init() {
	// Measures travel as JSON numbers, matching the report file format.
	decimal.MarshalJSONWithoutQuotes = true
}

// SensorReading is the atomic unit of data. A reading is immutable once
// constructed: it is written once into each storage tier and never
// updated.
type SensorReading struct {
	// Timestamp is the UTC instant the reading was taken. Not unique
	// across readings and not strictly increasing across nodes.
	Timestamp time.Time `json:"timestamp"`

	// BatchID identifies the production batch.
	BatchID string `json:"batch_id"`

	// Temperature is the wort temperature in degrees Celsius.
	Temperature decimal.Decimal `json:"temperature_celsius"`

	// Pressure is the tank pressure in psi.
	Pressure decimal.Decimal `json:"pressure_psi"`

	// CO2 is the dissolved CO2 in volumes.
	CO2 decimal.Decimal `json:"co2_vol"`
}

// ReadingID derives the reading's content hash: the first 16 hex
// characters of SHA-256 over the canonical field string. Distinct
// readings sharing a timestamp get distinct IDs; byte-identical content
// gets the same ID, which makes replayed files deduplicate downstream.
func (r SensorReading) ReadingID() string {
	canonical := fmt.Sprintf("%s|%s|%s|%s|%s",
		r.Timestamp.UTC().Format(time.RFC3339Nano),
		r.BatchID,
		r.Temperature.String(),
		r.Pressure.String(),
		r.CO2.String(),
	)
	sum := sha256.Sum256([]byte(canonical))
	return hex.EncodeToString(sum[:])[:16]
}

// Equal reports whether two readings carry the same instant and values.
// Decimal comparison is by numeric value, not representation.
func (r SensorReading) Equal(o SensorReading) bool {
	return r.Timestamp.Equal(o.Timestamp) &&
		r.BatchID == o.BatchID &&
		r.Temperature.Equal(o.Temperature) &&
		r.Pressure.Equal(o.Pressure) &&
		r.CO2.Equal(o.CO2)
}
