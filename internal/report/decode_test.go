package report

import (
	"errors"
	"strings"
	"testing"
	"time"
)

func TestDecodeValid(t *testing.T) {
	payload := []byte(`{
		"timestamp": "2026-08-20T14:30:05Z",
		"batch_id": "B001-LAGER",
		"temperature_celsius": 18.25,
		"pressure_psi": 12.80,
		"co2_vol": 2.45
	}`)

	r, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode valid report: %v", err)
	}

	want := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	if !r.Timestamp.Equal(want) {
		t.Errorf("timestamp = %v, want %v", r.Timestamp, want)
	}
	if r.BatchID != "B001-LAGER" {
		t.Errorf("batch_id = %q, want B001-LAGER", r.BatchID)
	}
	if r.Temperature.String() != "18.25" {
		t.Errorf("temperature = %s, want 18.25", r.Temperature)
	}
	if r.Pressure.String() != "12.8" {
		t.Errorf("pressure = %s, want 12.8", r.Pressure)
	}
	if r.CO2.String() != "2.45" {
		t.Errorf("co2 = %s, want 2.45", r.CO2)
	}
}

func TestDecodeNormalizesToUTC(t *testing.T) {
	payload := []byte(`{
		"timestamp": "2026-08-20T16:30:05+02:00",
		"batch_id": "B001-LAGER",
		"temperature_celsius": 18.2,
		"pressure_psi": 12.8,
		"co2_vol": 2.4
	}`)

	r, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode offset report: %v", err)
	}

	want := time.Date(2026, 8, 20, 14, 30, 5, 0, time.UTC)
	if !r.Timestamp.Equal(want) || r.Timestamp.Location() != time.UTC {
		t.Errorf("timestamp = %v, want %v in UTC", r.Timestamp, want)
	}
}

func TestDecodeMalformed(t *testing.T) {
	tests := []struct {
		name      string
		payload   string
		wantField string
	}{
		{
			name:      "missing temperature",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","pressure_psi":12.8,"co2_vol":2.4}`,
			wantField: "temperature_celsius",
		},
		{
			name:      "naive timestamp",
			payload:   `{"timestamp":"2026-08-20 14:30:05","batch_id":"B001","temperature_celsius":18.2,"pressure_psi":12.8,"co2_vol":2.4}`,
			wantField: "timestamp",
		},
		{
			name:      "string-typed measure",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":"18.2","pressure_psi":12.8,"co2_vol":2.4}`,
			wantField: "temperature_celsius",
		},
		{
			name:      "null measure",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":18.2,"pressure_psi":null,"co2_vol":2.4}`,
			wantField: "pressure_psi",
		},
		{
			name:      "numeric batch id",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":7,"temperature_celsius":18.2,"pressure_psi":12.8,"co2_vol":2.4}`,
			wantField: "batch_id",
		},
		{
			name:      "empty batch id",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"  ","temperature_celsius":18.2,"pressure_psi":12.8,"co2_vol":2.4}`,
			wantField: "batch_id",
		},
		{
			name:      "unexpected sixth field",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":18.2,"pressure_psi":12.8,"co2_vol":2.4,"operator":"js"}`,
			wantField: "",
		},
		{
			name:      "not json",
			payload:   `temperature: lots`,
			wantField: "",
		},
		{
			name:      "array payload",
			payload:   `[1,2,3]`,
			wantField: "",
		},
		{
			name:      "trailing data",
			payload:   `{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":18.2,"pressure_psi":12.8,"co2_vol":2.4}{}`,
			wantField: "",
		},
		{
			name:      "empty payload",
			payload:   ``,
			wantField: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Decode([]byte(tt.payload))
			if err == nil {
				t.Fatal("expected decode error")
			}

			var malformedErr *MalformedReportError
			if !errors.As(err, &malformedErr) {
				t.Fatalf("expected MalformedReportError, got %T: %v", err, err)
			}
			if malformedErr.Field != tt.wantField {
				t.Errorf("field = %q, want %q (err: %v)", malformedErr.Field, tt.wantField, err)
			}
			if malformedErr.Code() != "malformed_report" {
				t.Errorf("code = %q, want malformed_report", malformedErr.Code())
			}
		})
	}
}

func TestDecodeAcceptsIntegerAndNegativeMeasures(t *testing.T) {
	payload := []byte(`{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":-2,"pressure_psi":13,"co2_vol":2.4}`)

	r, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Temperature.String() != "-2" {
		t.Errorf("temperature = %s, want -2", r.Temperature)
	}
	if r.Pressure.String() != "13" {
		t.Errorf("pressure = %s, want 13", r.Pressure)
	}
}

func TestDecodePreservesPrecision(t *testing.T) {
	payload := []byte(`{"timestamp":"2026-08-20T14:30:05Z","batch_id":"B001","temperature_celsius":18.123456789,"pressure_psi":12.8,"co2_vol":2.4}`)

	r, err := Decode(payload)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if r.Temperature.String() != "18.123456789" {
		t.Errorf("temperature = %s, want 18.123456789", r.Temperature)
	}
}

func TestMalformedReportErrorMessage(t *testing.T) {
	err := &MalformedReportError{Field: "co2_vol", Reason: "must be a JSON number"}
	if !strings.Contains(err.Error(), "co2_vol") {
		t.Errorf("message should name the field: %s", err.Error())
	}

	whole := &MalformedReportError{Reason: "invalid JSON"}
	if strings.Contains(whole.Error(), `""`) {
		t.Errorf("message should not render an empty field: %s", whole.Error())
	}
}
