package processor

import (
	"context"
	"errors"
	"log/slog"
	"sync/atomic"
	"time"

	"streamstat/internal/anomalies"
	"streamstat/internal/cache"
	"streamstat/internal/engine"
	"streamstat/internal/metrics"
	"streamstat/internal/model"
	"streamstat/internal/results"
	"streamstat/internal/storage"
)

// Processor drains the ingest channel, feeds the rolling-stats engine and
// fans results out to the stores, persistence, cache and Prometheus. The
// engine itself never does I/O; everything side-effecting lives here.
type Processor struct {
	eng       atomic.Pointer[engine.Engine]
	results   *results.Store
	anomalies *anomalies.Store
	store     storage.Store
	cache     *cache.RedisCache
	logger    *slog.Logger
}

func New(eng *engine.Engine, resultsStore *results.Store, anomaliesStore *anomalies.Store, store storage.Store, redisCache *cache.RedisCache, logger *slog.Logger) *Processor {
	p := &Processor{
		results:   resultsStore,
		anomalies: anomaliesStore,
		store:     store,
		cache:     redisCache,
		logger:    logger,
	}
	p.eng.Store(eng)
	return p
}

func (p *Processor) Engine() *engine.Engine {
	return p.eng.Load()
}

// SwapEngine replaces the engine, e.g. after a config reload changed the
// window size or threshold. Existing window state is discarded.
func (p *Processor) SwapEngine(eng *engine.Engine) {
	if eng != nil {
		p.eng.Store(eng)
	}
}

func (p *Processor) Start(ctx context.Context, in <-chan model.Observation) {
	go func() {
		for {
			select {
			case obs := <-in:
				_, _ = p.Process(obs)
			case <-ctx.Done():
				return
			}
		}
	}()
}

// Process records one observation and publishes its result. Invalid
// observations are counted and the error returned; no window state changes.
func (p *Processor) Process(obs model.Observation) (model.StatResult, error) {
	start := time.Now()
	eng := p.eng.Load()
	res, err := eng.Record(obs)
	if err != nil {
		metrics.InvalidObservationsTotal.Inc()
		if p.logger != nil && errors.Is(err, engine.ErrInvalidObservation) {
			p.logger.Warn("observation rejected",
				"entity_id", obs.EntityID,
				"metric", obs.Metric,
				"err", err,
			)
		}
		return model.StatResult{}, err
	}

	source := obs.Source
	if source == "" {
		source = "direct"
	}
	metrics.ObservationsTotal.WithLabelValues(source).Inc()
	metrics.RollingAverage.WithLabelValues(obs.EntityID, obs.Metric).Set(res.RollingAvg)
	metrics.RollingStdDev.WithLabelValues(obs.EntityID, obs.Metric).Set(res.RollingStdDev)

	p.results.Update(obs.EntityID, obs.Metric, res)

	sample := model.StatSample{
		Timestamp: obs.Timestamp,
		EntityID:  obs.EntityID,
		Metric:    obs.Metric,
		Value:     obs.Value,
		Stats:     res,
	}
	if p.store != nil {
		_ = p.store.SaveStats(context.Background(), []model.StatSample{sample})
	}
	if p.cache != nil {
		_ = p.cache.StoreResult(context.Background(), obs.EntityID, obs.Metric, res)
	}

	if res.IsAnomaly {
		rec := model.AnomalyRecord{
			Timestamp: obs.Timestamp,
			EntityID:  obs.EntityID,
			Metric:    obs.Metric,
			Value:     obs.Value,
			ZScore:    zScore(obs.Value, res),
			Stats:     res,
			Source:    obs.Source,
		}
		p.anomalies.Add(rec)
		metrics.AnomaliesTotal.WithLabelValues(obs.EntityID, obs.Metric).Inc()
		if p.logger != nil {
			p.logger.Warn("anomaly flagged",
				"entity_id", rec.EntityID,
				"metric", rec.Metric,
				"value", rec.Value,
				"z_score", rec.ZScore,
				"rolling_avg", res.RollingAvg,
			)
		}
		if p.store != nil {
			_ = p.store.SaveAnomaly(context.Background(), rec)
		}
		if p.cache != nil {
			_ = p.cache.StoreAnomaly(context.Background(), rec)
		}
	}

	metrics.RecordLatency.Observe(time.Since(start).Seconds())
	return res, nil
}

// Reset drops all engine window state.
func (p *Processor) Reset() {
	p.eng.Load().Reset()
}

func zScore(value float64, res model.StatResult) float64 {
	if res.RollingStdDev == 0 {
		return 0
	}
	return (value - res.RollingAvg) / res.RollingStdDev
}
