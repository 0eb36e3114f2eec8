package report

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
)

func testReading(ts time.Time, batch string, temp, pressure, co2 string) SensorReading {
	return SensorReading{
		Timestamp:   ts,
		BatchID:     batch,
		Temperature: decimal.RequireFromString(temp),
		Pressure:    decimal.RequireFromString(pressure),
		CO2:         decimal.RequireFromString(co2),
	}
}

func TestReadingIDDeterministic(t *testing.T) {
	ts := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	a := testReading(ts, "B001-LAGER", "18.25", "12.8", "2.45")
	b := testReading(ts, "B001-LAGER", "18.25", "12.8", "2.45")

	if a.ReadingID() != b.ReadingID() {
		t.Errorf("identical content should share an ID: %s != %s", a.ReadingID(), b.ReadingID())
	}

	if got := len(a.ReadingID()); got != 16 {
		t.Errorf("ID length = %d, want 16", got)
	}
}

func TestReadingIDDistinguishesSameTimestamp(t *testing.T) {
	// Two nodes reporting at the same instant must not collide.
	ts := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	a := testReading(ts, "B001-LAGER", "18.25", "12.8", "2.45")
	b := testReading(ts, "B001-LAGER", "18.30", "12.8", "2.45")

	if a.ReadingID() == b.ReadingID() {
		t.Error("distinct readings sharing a timestamp must get distinct IDs")
	}
}

func TestReadingIDSensitiveToEveryField(t *testing.T) {
	ts := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	base := testReading(ts, "B001", "18.25", "12.8", "2.45")

	variants := []SensorReading{
		testReading(ts.Add(time.Nanosecond), "B001", "18.25", "12.8", "2.45"),
		testReading(ts, "B002", "18.25", "12.8", "2.45"),
		testReading(ts, "B001", "18.26", "12.8", "2.45"),
		testReading(ts, "B001", "18.25", "12.9", "2.45"),
		testReading(ts, "B001", "18.25", "12.8", "2.46"),
	}

	for i, v := range variants {
		if v.ReadingID() == base.ReadingID() {
			t.Errorf("variant %d should change the ID", i)
		}
	}
}

func TestEqual(t *testing.T) {
	ts := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	a := testReading(ts, "B001", "18.25", "12.80", "2.45")
	b := testReading(ts.In(time.FixedZone("CEST", 2*3600)), "B001", "18.25", "12.8", "2.45")

	// Same instant in another zone, same values in another scale.
	if !a.Equal(b) {
		t.Error("readings with equal instants and values should be Equal")
	}

	c := testReading(ts, "B001", "18.26", "12.8", "2.45")
	if a.Equal(c) {
		t.Error("readings with different values should not be Equal")
	}
}
