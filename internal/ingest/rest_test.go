package ingest

import (
	"testing"

	"streamstat/internal/config"
	"streamstat/internal/model"
)

func TestRESTProcessMap(t *testing.T) {
	out := make(chan model.Observation, 1)
	s := &RESTServer{out: out}
	obj := map[string]interface{}{
		"timestamp": "2026-08-21T12:34:56Z",
		"entity_id": "sensor01",
		"metric":    "temperature",
		"value":     21.5,
	}
	if err := s.processMap(obj, config.DefaultConfig()); err != nil {
		t.Fatalf("process: %v", err)
	}
	obs := <-out
	if obs.EntityID != "sensor01" || obs.Metric != "temperature" || obs.Value != 21.5 {
		t.Fatalf("observation: %+v", obs)
	}
	if obs.Source != "rest" {
		t.Fatalf("source = %q", obs.Source)
	}
	// Raw is reserved for raw input lines; JSON body ingest leaves it empty.
	if obs.Raw != "" {
		t.Fatalf("raw = %q", obs.Raw)
	}
}

func TestRESTProcessMapRejectsInvalid(t *testing.T) {
	out := make(chan model.Observation, 1)
	s := &RESTServer{out: out}
	obj := map[string]interface{}{"entity_id": "sensor01", "metric": "temp", "value": "not-a-number"}
	if err := s.processMap(obj, config.DefaultConfig()); err == nil {
		t.Fatalf("expected error")
	}
	select {
	case obs := <-out:
		t.Fatalf("invalid observation forwarded: %+v", obs)
	default:
	}
}
