package processor

import (
	"errors"
	"math"
	"testing"
	"time"

	"streamstat/internal/anomalies"
	"streamstat/internal/engine"
	"streamstat/internal/model"
	"streamstat/internal/results"
)

func newProcessorForTest(windowSize int) *Processor {
	eng := engine.New(engine.Options{WindowSize: windowSize, ThresholdMultiplier: 2})
	return New(eng, results.NewStore(100), anomalies.NewStore(100), nil, nil, nil)
}

func obs(entity, metric string, value float64) model.Observation {
	return model.Observation{
		Timestamp: time.Now().UTC(),
		EntityID:  entity,
		Metric:    metric,
		Value:     value,
		Source:    "test",
	}
}

func TestProcessUpdatesResultsStore(t *testing.T) {
	p := newProcessorForTest(5)
	res, err := p.Process(obs("dev01", "temp", 20))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.SampleCount != 1 {
		t.Fatalf("sample count = %d", res.SampleCount)
	}
	stats, _, ok := p.results.Get("dev01")
	if !ok {
		t.Fatalf("results store missing entity")
	}
	if stats["temp"] != res {
		t.Fatalf("stored result %+v != returned %+v", stats["temp"], res)
	}
}

func TestProcessInvalidObservation(t *testing.T) {
	p := newProcessorForTest(5)
	if _, err := p.Process(obs("dev01", "temp", math.NaN())); !errors.Is(err, engine.ErrInvalidObservation) {
		t.Fatalf("expected ErrInvalidObservation, got %v", err)
	}
	if _, _, ok := p.results.Get("dev01"); ok {
		t.Fatalf("invalid observation must not reach the results store")
	}
}

func TestProcessRecordsAnomaly(t *testing.T) {
	p := newProcessorForTest(10)
	for i := 0; i < 9; i++ {
		if _, err := p.Process(obs("dev01", "temp", 10)); err != nil {
			t.Fatalf("process: %v", err)
		}
	}
	res, err := p.Process(obs("dev01", "temp", 100))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if !res.IsAnomaly {
		t.Fatalf("expected anomaly")
	}
	list := p.anomalies.List(0)
	if len(list) != 1 {
		t.Fatalf("anomaly store has %d records", len(list))
	}
	rec := list[0]
	if rec.EntityID != "dev01" || rec.Metric != "temp" || rec.Value != 100 {
		t.Fatalf("anomaly record %+v", rec)
	}
	if rec.ZScore <= 2 {
		t.Fatalf("z-score = %v, want > threshold", rec.ZScore)
	}
}

func TestSwapEngineDropsState(t *testing.T) {
	p := newProcessorForTest(5)
	if _, err := p.Process(obs("dev01", "temp", 1)); err != nil {
		t.Fatalf("process: %v", err)
	}
	p.SwapEngine(engine.New(engine.Options{WindowSize: 5, ThresholdMultiplier: 2}))
	res, err := p.Process(obs("dev01", "temp", 2))
	if err != nil {
		t.Fatalf("process: %v", err)
	}
	if res.SampleCount != 1 {
		t.Fatalf("sample count after swap = %d", res.SampleCount)
	}
}
