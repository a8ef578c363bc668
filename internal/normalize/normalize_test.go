package normalize

import (
	"testing"
	"time"

	"streamstat/internal/config"
)

func TestNormalizeValid(t *testing.T) {
	cfg := config.DefaultConfig()
	obs, err := Normalize(ObservationFields{
		Timestamp: "2026-08-21T10:00:00Z",
		EntityID:  "sensor01",
		Metric:    "temperature",
		Value:     "21.5",
	}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.EntityID != "sensor01" || obs.Metric != "temperature" || obs.Value != 21.5 {
		t.Fatalf("observation: %+v", obs)
	}
	want := time.Date(2026, 8, 21, 10, 0, 0, 0, time.UTC)
	if !obs.Timestamp.Equal(want) {
		t.Fatalf("timestamp: %v", obs.Timestamp)
	}
}

func TestNormalizeDefaultEntity(t *testing.T) {
	cfg := config.DefaultConfig()
	obs, err := Normalize(ObservationFields{Metric: "temp", Value: "1"}, cfg)
	if err != nil {
		t.Fatalf("normalize: %v", err)
	}
	if obs.EntityID != cfg.Ingest.Parser.DefaultEntityID {
		t.Fatalf("entity: %s", obs.EntityID)
	}
}

func TestNormalizeRejects(t *testing.T) {
	cfg := config.DefaultConfig()
	cases := []ObservationFields{
		{EntityID: "dev01", Value: "1"},               // no metric
		{EntityID: "dev01", Metric: "temp"},           // no value
		{EntityID: "dev01", Metric: "t", Value: "x"},  // not a number
		{EntityID: "dev01", Metric: "t", Value: "NaN"},
		{EntityID: "dev01", Metric: "t", Value: "+Inf"},
		{EntityID: "dev01", Metric: "t", Value: "1", Timestamp: "not-a-time"},
	}
	for _, c := range cases {
		if _, err := Normalize(c, cfg); err == nil {
			t.Fatalf("expected error for %+v", c)
		}
	}
}

func TestParseUnixTimestamps(t *testing.T) {
	ts, err := ParseTimestamp("1767225600", time.UTC)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if ts.Unix() != 1767225600 {
		t.Fatalf("unix seconds: %v", ts)
	}
	ts, err = ParseTimestamp("1767225600123", time.UTC)
	if err != nil {
		t.Fatalf("parse ms: %v", err)
	}
	if ts.UnixMilli() != 1767225600123 {
		t.Fatalf("unix millis: %v", ts)
	}
}
