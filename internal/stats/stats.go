// Package stats computes on-demand summary statistics over the hot
// cache window. Summaries describe what the cache currently holds, so
// their horizon is the cache retention period, not full history.
package stats

import (
	"context"
	"fmt"
	"math"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"

	"github.com/wortwatch/wortwatch/internal/storage"
)

// relativeAccuracy is the DDSketch guarantee: a reported quantile is
// within 1% of the true value.
const relativeAccuracy = 0.01

// MeasureSummary aggregates one measure across the window.
type MeasureSummary struct {
	Min  float64 `json:"min"`
	Max  float64 `json:"max"`
	Mean float64 `json:"mean"`
	P50  float64 `json:"p50"`
	P90  float64 `json:"p90"`
	P95  float64 `json:"p95"`
	P99  float64 `json:"p99"`
}

// Summary describes the cached readings of one batch, or of all
// batches when BatchID is empty. A count of zero means the window holds
// nothing for the batch; the other fields are zero values then.
type Summary struct {
	BatchID     string         `json:"batch_id,omitempty"`
	Count       int            `json:"count"`
	WindowFrom  time.Time      `json:"window_from"`
	WindowTo    time.Time      `json:"window_to"`
	Temperature MeasureSummary `json:"temperature_celsius"`
	Pressure    MeasureSummary `json:"pressure_psi"`
	CO2         MeasureSummary `json:"co2_vol"`
}

// Service computes summaries from the tiered store's cache side.
type Service struct {
	store *storage.TieredStore
}

// New creates a stats service over the tiered store.
func New(store *storage.TieredStore) *Service {
	return &Service{store: store}
}

// Summarize aggregates every live cached reading of the given batch,
// or of all batches when batch is empty.
func (s *Service) Summarize(ctx context.Context, batch string) (Summary, error) {
	readings, err := s.store.Recent(ctx, 0)
	if err != nil {
		return Summary{}, err
	}

	temp, err := newMeasureAgg()
	if err != nil {
		return Summary{}, err
	}
	pressure, err := newMeasureAgg()
	if err != nil {
		return Summary{}, err
	}
	co2, err := newMeasureAgg()
	if err != nil {
		return Summary{}, err
	}

	sum := Summary{BatchID: batch}
	for _, r := range readings {
		if batch != "" && r.BatchID != batch {
			continue
		}

		if sum.Count == 0 || r.Timestamp.Before(sum.WindowFrom) {
			sum.WindowFrom = r.Timestamp
		}
		if sum.Count == 0 || r.Timestamp.After(sum.WindowTo) {
			sum.WindowTo = r.Timestamp
		}
		sum.Count++

		temp.add(r.Temperature.InexactFloat64())
		pressure.add(r.Pressure.InexactFloat64())
		co2.add(r.CO2.InexactFloat64())
	}

	if sum.Count > 0 {
		sum.Temperature = temp.summary(sum.Count)
		sum.Pressure = pressure.summary(sum.Count)
		sum.CO2 = co2.summary(sum.Count)
	}
	return sum, nil
}

// measureAgg accumulates one measure: exact min/max/mean, sketched
// percentiles.
type measureAgg struct {
	min    float64
	max    float64
	sum    float64
	sketch *ddsketch.DDSketch
}

func newMeasureAgg() (*measureAgg, error) {
	sketch, err := ddsketch.NewDefaultDDSketch(relativeAccuracy)
	if err != nil {
		return nil, fmt.Errorf("create sketch: %w", err)
	}
	return &measureAgg{
		min:    math.MaxFloat64,
		max:    -math.MaxFloat64,
		sketch: sketch,
	}, nil
}

func (a *measureAgg) add(v float64) {
	a.sum += v
	if v < a.min {
		a.min = v
	}
	if v > a.max {
		a.max = v
	}
	a.sketch.Add(v)
}

func (a *measureAgg) summary(count int) MeasureSummary {
	p50, _ := a.sketch.GetValueAtQuantile(0.50)
	p90, _ := a.sketch.GetValueAtQuantile(0.90)
	p95, _ := a.sketch.GetValueAtQuantile(0.95)
	p99, _ := a.sketch.GetValueAtQuantile(0.99)
	return MeasureSummary{
		Min:  a.min,
		Max:  a.max,
		Mean: a.sum / float64(count),
		P50:  p50,
		P90:  p90,
		P95:  p95,
		P99:  p99,
	}
}
