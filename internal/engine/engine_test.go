package engine

import (
	"errors"
	"fmt"
	"math"
	"sync"
	"testing"
	"time"

	"streamstat/internal/model"
)

func obs(entity, metric string, value float64) model.Observation {
	return model.Observation{
		Timestamp: time.Now().UTC(),
		EntityID:  entity,
		Metric:    metric,
		Value:     value,
	}
}

func TestRecordInvalidObservation(t *testing.T) {
	eng := New(Options{WindowSize: 5, ThresholdMultiplier: 2})
	cases := []model.Observation{
		obs("", "temp", 1),
		obs("dev01", "", 1),
		obs("dev01", "temp", math.NaN()),
		obs("dev01", "temp", math.Inf(1)),
		obs("dev01", "temp", math.Inf(-1)),
	}
	for _, c := range cases {
		if _, err := eng.Record(c); !errors.Is(err, ErrInvalidObservation) {
			t.Fatalf("expected ErrInvalidObservation for %+v, got %v", c, err)
		}
	}
	if eng.TrackedKeys() != 0 {
		t.Fatalf("invalid observations must not create windows")
	}
}

func TestNoAnomalyWhileFilling(t *testing.T) {
	eng := New(Options{WindowSize: 10, ThresholdMultiplier: 2})
	for i := 0; i < 9; i++ {
		v := 10.0
		if i%2 == 1 {
			v = 1000.0
		}
		res, err := eng.Record(obs("dev01", "temp", v))
		if err != nil {
			t.Fatalf("record: %v", err)
		}
		if res.IsAnomaly {
			t.Fatalf("anomaly flagged at sample %d with partial window", i+1)
		}
		if res.SampleCount != i+1 {
			t.Fatalf("sample count = %d, want %d", res.SampleCount, i+1)
		}
	}
}

func TestNoAnomalyOnZeroStdDev(t *testing.T) {
	eng := New(Options{WindowSize: 5, ThresholdMultiplier: 2})
	var res model.StatResult
	for i := 0; i < 8; i++ {
		var err error
		res, err = eng.Record(obs("dev01", "temp", 7))
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if res.IsAnomaly {
		t.Fatalf("identical samples flagged anomalous")
	}
	if res.RollingStdDev != 0 {
		t.Fatalf("stddev = %v, want 0", res.RollingStdDev)
	}
}

func TestSpikeFlagsOnFullWindow(t *testing.T) {
	eng := New(Options{WindowSize: 10, ThresholdMultiplier: 2})
	for i := 0; i < 9; i++ {
		if _, err := eng.Record(obs("dev01", "temp", 10)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	res, err := eng.Record(obs("dev01", "temp", 100))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if !res.IsAnomaly {
		t.Fatalf("expected anomaly on spike")
	}
	if res.RollingAvg != 19.0 {
		t.Fatalf("rolling avg = %v, want 19.0", res.RollingAvg)
	}
	if res.SampleCount != 10 {
		t.Fatalf("sample count = %d", res.SampleCount)
	}
}

func TestSpikeFlagsAtLargeBaseline(t *testing.T) {
	const base = 1e12
	eng := New(Options{WindowSize: 10, ThresholdMultiplier: 2})
	for i := 0; i < 9; i++ {
		if _, err := eng.Record(obs("dev01", "temp", base+10)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	res, err := eng.Record(obs("dev01", "temp", base+100))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if math.Abs(res.RollingStdDev-27) > 1e-6 {
		t.Fatalf("stddev = %v, want 27", res.RollingStdDev)
	}
	if !res.IsAnomaly {
		t.Fatalf("spike at large baseline not flagged")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	eng := New(Options{WindowSize: 3, ThresholdMultiplier: 2})
	for i := 0; i < 5; i++ {
		if _, err := eng.Record(obs("dev01", "temp", float64(i))); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	res, err := eng.Record(obs("dev01", "humidity", 50))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.SampleCount != 1 {
		t.Fatalf("new metric window sample count = %d", res.SampleCount)
	}
	res, err = eng.Record(obs("dev02", "temp", 50))
	if err != nil {
		t.Fatalf("record: %v", err)
	}
	if res.SampleCount != 1 {
		t.Fatalf("new entity window sample count = %d", res.SampleCount)
	}
	if eng.TrackedKeys() != 3 {
		t.Fatalf("tracked keys = %d, want 3", eng.TrackedKeys())
	}
}

func TestPeekIdempotent(t *testing.T) {
	eng := New(Options{WindowSize: 4, ThresholdMultiplier: 2})
	if _, ok := eng.Peek("dev01", "temp"); ok {
		t.Fatalf("peek on unknown key returned ok")
	}
	var last model.StatResult
	for _, v := range []float64{3, 5, 7, 9} {
		var err error
		last, err = eng.Record(obs("dev01", "temp", v))
		if err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	first, ok := eng.Peek("dev01", "temp")
	if !ok {
		t.Fatalf("peek failed")
	}
	second, ok := eng.Peek("dev01", "temp")
	if !ok {
		t.Fatalf("second peek failed")
	}
	if first != second {
		t.Fatalf("peek not idempotent: %+v vs %+v", first, second)
	}
	if first != last {
		t.Fatalf("peek = %+v, record returned %+v", first, last)
	}
}

func TestMaxTrackedKeysEviction(t *testing.T) {
	eng := New(Options{WindowSize: 3, ThresholdMultiplier: 2, Shards: 1, MaxTrackedKeys: 4})
	for i := 0; i < 10; i++ {
		if _, err := eng.Record(obs(fmt.Sprintf("dev%02d", i), "temp", 1)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if got := eng.TrackedKeys(); got > 4 {
		t.Fatalf("tracked keys = %d, want <= 4", got)
	}
	if eng.EvictedKeys() == 0 {
		t.Fatalf("expected key evictions")
	}
}

func TestMaxTrackedKeysBelowShardCount(t *testing.T) {
	eng := New(Options{WindowSize: 3, ThresholdMultiplier: 2, Shards: 16, MaxTrackedKeys: 4})
	for i := 0; i < 20; i++ {
		if _, err := eng.Record(obs(fmt.Sprintf("dev%02d", i), "temp", 1)); err != nil {
			t.Fatalf("record: %v", err)
		}
	}
	if got := eng.TrackedKeys(); got > 4 {
		t.Fatalf("tracked keys = %d, want <= 4", got)
	}
	if eng.EvictedKeys() == 0 {
		t.Fatalf("expected key evictions")
	}
}

func TestReset(t *testing.T) {
	eng := New(Options{WindowSize: 3, ThresholdMultiplier: 2})
	if _, err := eng.Record(obs("dev01", "temp", 1)); err != nil {
		t.Fatalf("record: %v", err)
	}
	eng.Reset()
	if eng.TrackedKeys() != 0 {
		t.Fatalf("tracked keys after reset = %d", eng.TrackedKeys())
	}
}

func TestConcurrentDistinctKeys(t *testing.T) {
	const (
		producers = 8
		perKey    = 1000
		window    = 25
	)
	eng := New(Options{WindowSize: window, ThresholdMultiplier: 2, Shards: 4})
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			entity := fmt.Sprintf("dev%02d", p)
			for i := 0; i < perKey; i++ {
				if _, err := eng.Record(obs(entity, "temp", float64(p*perKey+i))); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	for p := 0; p < producers; p++ {
		entity := fmt.Sprintf("dev%02d", p)
		got := eng.WindowValues(entity, "temp")
		if len(got) != window {
			t.Fatalf("%s window size = %d", entity, len(got))
		}
		// Must equal the last `window` values of that producer's sequence.
		for i, v := range got {
			want := float64(p*perKey + perKey - window + i)
			if v != want {
				t.Fatalf("%s window[%d] = %v, want %v", entity, i, v, want)
			}
		}
	}
}

func TestConcurrentSameKeyNoTornState(t *testing.T) {
	const (
		producers = 6
		perWriter = 500
		window    = 20
	)
	eng := New(Options{WindowSize: window, ThresholdMultiplier: 2})
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func(p int) {
			defer wg.Done()
			for i := 0; i < perWriter; i++ {
				// Encode the writer and sequence in the value so retained
				// samples can be attributed afterwards.
				v := float64(p*10000 + i)
				if _, err := eng.Record(obs("shared", "load", v)); err != nil {
					t.Errorf("record: %v", err)
					return
				}
			}
		}(p)
	}
	wg.Wait()

	got := eng.WindowValues("shared", "load")
	if len(got) != window {
		t.Fatalf("window size = %d, want %d", len(got), window)
	}
	seen := make(map[float64]bool, window)
	lastSeq := make(map[int]int)
	for _, v := range got {
		if seen[v] {
			t.Fatalf("duplicate retained value %v", v)
		}
		seen[v] = true
		writer := int(v) / 10000
		seq := int(v) % 10000
		if writer < 0 || writer >= producers || seq >= perWriter {
			t.Fatalf("torn value %v", v)
		}
		// Per-writer samples must appear in the order they were produced.
		if prev, ok := lastSeq[writer]; ok && seq <= prev {
			t.Fatalf("writer %d out of order: %d after %d", writer, seq, prev)
		}
		lastSeq[writer] = seq
	}
	res, ok := eng.Peek("shared", "load")
	if !ok || res.SampleCount != window {
		t.Fatalf("peek after concurrent writes: %+v, %v", res, ok)
	}
}
