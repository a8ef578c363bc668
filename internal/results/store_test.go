package results

import (
	"fmt"
	"testing"

	"streamstat/internal/model"
)

func TestUpdateAndGet(t *testing.T) {
	s := NewStore(10)
	res := model.StatResult{RollingAvg: 5, RollingStdDev: 1, SampleCount: 3}
	s.Update("dev01", "temp", res)
	got, updated, ok := s.Get("dev01")
	if !ok {
		t.Fatalf("entity missing")
	}
	if got["temp"] != res {
		t.Fatalf("stored %+v", got["temp"])
	}
	if updated.IsZero() {
		t.Fatalf("updated_at not set")
	}
	if _, _, ok := s.Get("dev02"); ok {
		t.Fatalf("unknown entity returned ok")
	}
}

func TestEvictOldestBeyondLimit(t *testing.T) {
	s := NewStore(3)
	for i := 0; i < 6; i++ {
		s.Update(fmt.Sprintf("dev%02d", i), "temp", model.StatResult{SampleCount: i})
	}
	if got := len(s.GetAll()); got > 3 {
		t.Fatalf("store holds %d entities, want <= 3", got)
	}
}

func TestClear(t *testing.T) {
	s := NewStore(10)
	s.Update("dev01", "temp", model.StatResult{})
	s.Clear()
	if len(s.GetAll()) != 0 {
		t.Fatalf("store not cleared")
	}
}
