package ingest

import (
	"context"
	"log/slog"
	"time"

	"streamstat/internal/metrics"
	"streamstat/internal/model"
)

// SendNonBlocking forwards an observation to the processing channel, dropping
// it with a warning when the channel is full. Backpressure on producers is
// out of scope for the ingest layer.
func SendNonBlocking(ctx context.Context, out chan<- model.Observation, obs model.Observation, logger *slog.Logger) bool {
	select {
	case out <- obs:
		return true
	case <-ctx.Done():
		return false
	default:
		metrics.DroppedObservationsTotal.Inc()
		if logger != nil {
			logger.Warn("observation channel full, dropping",
				"entity_id", obs.EntityID,
				"metric", obs.Metric,
			)
		}
		return false
	}
}

func BackoffSleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		d = 200 * time.Millisecond
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return true
	case <-ctx.Done():
		return false
	}
}
