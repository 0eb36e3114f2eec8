package report

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// MalformedReportError reports a payload that could not be decoded into
// a valid reading. The file that produced it is retained for operator
// inspection, never deleted.
type MalformedReportError struct {
	// Field names the offending field, empty when the whole payload is
	// at fault.
	Field string

	// Reason describes what was wrong.
	Reason string
}

func (e *MalformedReportError) Error() string {
	if e.Field == "" {
		return fmt.Sprintf("malformed report: %s", e.Reason)
	}
	return fmt.Sprintf("malformed report: field %q: %s", e.Field, e.Reason)
}

// Code returns the machine-readable error code.
func (e *MalformedReportError) Code() string { return "malformed_report" }

func malformed(field, reason string) error {
	return &MalformedReportError{Field: field, Reason: reason}
}

// rawReport mirrors the report file format with pointer fields so that
// missing keys are distinguishable from zero values. Measures stay raw
// until their JSON type has been checked: encoding/json would otherwise
// accept a quoted number where the format requires a number.
type rawReport struct {
	Timestamp   *string          `json:"timestamp"`
	BatchID     *string          `json:"batch_id"`
	Temperature *json.RawMessage `json:"temperature_celsius"`
	Pressure    *json.RawMessage `json:"pressure_psi"`
	CO2         *json.RawMessage `json:"co2_vol"`
}

// Decode parses one report payload into a SensorReading. The payload
// must be a single JSON object with exactly the five required fields:
// timestamp (RFC 3339 with explicit offset), batch_id (non-empty
// string) and the three numeric measures. Failures are
// *MalformedReportError. Decode has no side effects.
func Decode(data []byte) (SensorReading, error) {
	var raw rawReport

	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&raw); err != nil {
		return SensorReading{}, decodeError(err)
	}
	if dec.More() {
		return SensorReading{}, malformed("", "trailing data after report object")
	}

	if raw.Timestamp == nil {
		return SensorReading{}, malformed("timestamp", "missing required field")
	}
	if raw.BatchID == nil {
		return SensorReading{}, malformed("batch_id", "missing required field")
	}
	if raw.Temperature == nil {
		return SensorReading{}, malformed("temperature_celsius", "missing required field")
	}
	if raw.Pressure == nil {
		return SensorReading{}, malformed("pressure_psi", "missing required field")
	}
	if raw.CO2 == nil {
		return SensorReading{}, malformed("co2_vol", "missing required field")
	}

	// RFC 3339 requires an explicit offset, so naive timestamps fail
	// here rather than being assumed local.
	ts, err := time.Parse(time.RFC3339, *raw.Timestamp)
	if err != nil {
		return SensorReading{}, malformed("timestamp", fmt.Sprintf("not an RFC 3339 instant: %v", err))
	}

	batch := strings.TrimSpace(*raw.BatchID)
	if batch == "" {
		return SensorReading{}, malformed("batch_id", "must not be empty")
	}

	temperature, err := parseMeasure("temperature_celsius", *raw.Temperature)
	if err != nil {
		return SensorReading{}, err
	}
	pressure, err := parseMeasure("pressure_psi", *raw.Pressure)
	if err != nil {
		return SensorReading{}, err
	}
	co2, err := parseMeasure("co2_vol", *raw.CO2)
	if err != nil {
		return SensorReading{}, err
	}

	return SensorReading{
		Timestamp:   ts.UTC(),
		BatchID:     batch,
		Temperature: temperature,
		Pressure:    pressure,
		CO2:         co2,
	}, nil
}

// parseMeasure converts a raw JSON value into a decimal, requiring a
// JSON number token and preserving the input precision exactly.
func parseMeasure(field string, raw json.RawMessage) (decimal.Decimal, error) {
	v := bytes.TrimSpace(raw)
	if len(v) == 0 || (v[0] != '-' && (v[0] < '0' || v[0] > '9')) {
		return decimal.Decimal{}, malformed(field, "must be a JSON number")
	}

	d, err := decimal.NewFromString(string(v))
	if err != nil {
		return decimal.Decimal{}, malformed(field, fmt.Sprintf("not a finite number: %v", err))
	}
	return d, nil
}

// decodeError translates encoding/json failures into field-level
// malformed errors where the decoder identified the field.
func decodeError(err error) error {
	var typeErr *json.UnmarshalTypeError
	if errors.As(err, &typeErr) {
		if typeErr.Field == "" {
			return malformed("", fmt.Sprintf("expected a JSON object, got %s", typeErr.Value))
		}
		return malformed(typeErr.Field, fmt.Sprintf("expected %s, got %s", typeErr.Type, typeErr.Value))
	}

	// DisallowUnknownFields reports extra fields as a plain error.
	if msg := err.Error(); strings.Contains(msg, "unknown field") {
		return malformed("", msg)
	}

	return malformed("", fmt.Sprintf("invalid JSON: %v", err))
}
