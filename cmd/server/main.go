package main

import (
	"context"
	"flag"
	"os"
	"os/signal"
	"syscall"
	"time"

	"streamstat/internal/anomalies"
	"streamstat/internal/api"
	"streamstat/internal/cache"
	"streamstat/internal/config"
	"streamstat/internal/engine"
	"streamstat/internal/ingest"
	"streamstat/internal/logging"
	"streamstat/internal/metrics"
	"streamstat/internal/model"
	"streamstat/internal/processor"
	"streamstat/internal/results"
	"streamstat/internal/storage"
)

const version = "1.0.0"

func main() {
	configPath := flag.String("config", "", "path to YAML or JSON config file")
	flag.Parse()

	var mgr *config.Manager
	var err error
	if *configPath != "" {
		mgr, err = config.NewManager(config.ResolvePath(*configPath))
		if err != nil {
			logging.NewLogger("info").Error("load config failed", "path", *configPath, "err", err)
			os.Exit(1)
		}
	} else {
		mgr = config.NewStaticManager(config.DefaultConfig())
	}
	cfg := mgr.Get()
	logger := logging.NewLogger(cfg.LogLevel)
	logger.Info("starting streamstat", "version", version)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	resultsStore := results.NewStore(cfg.Results.StoreLimit)
	anomaliesStore := anomalies.NewStore(cfg.Anomalies.StoreLimit)

	store, err := storage.NewStore(cfg.Storage)
	if err != nil {
		logger.Error("storage init failed", "err", err)
		os.Exit(1)
	}
	if store != nil {
		if err := store.Init(ctx); err != nil {
			logger.Error("storage schema init failed", "err", err)
			os.Exit(1)
		}
		defer store.Close()
		logger.Info("storage enabled", "driver", cfg.Storage.Driver)
	}

	var redisCache *cache.RedisCache
	if cfg.Cache.Enabled {
		redisCache, err = cache.NewRedisCache(cfg.Cache)
		if err != nil {
			logger.Error("redis connect failed", "err", err)
			os.Exit(1)
		}
		defer redisCache.Close()
		logger.Info("cache enabled", "addr", cfg.Cache.Addr)
	}

	eng := newEngine(cfg)
	proc := processor.New(eng, resultsStore, anomaliesStore, store, redisCache, logger)

	observations := make(chan model.Observation, cfg.Ingest.ChannelBuffer)
	proc.Start(ctx, observations)

	ingest.StartREST(ctx, mgr, observations, logger)
	ingest.StartTCPStream(ctx, mgr, observations, logger)
	ingest.StartFileTail(ctx, mgr, observations, logger)
	ingest.StartKafka(ctx, mgr, observations, logger)

	api.Start(ctx, mgr, resultsStore, anomaliesStore, proc, logger, version)

	go publishEngineGauges(ctx, proc)

	stop := make(chan struct{})
	go mgr.Watch(3*time.Second,
		func(next *config.Config) {
			logger.Info("config reloaded",
				"window_size", next.Detection.WindowSize,
				"threshold_multiplier", next.Detection.ThresholdMultiplier,
			)
			// Detection parameters are constructor-time; a change swaps in a
			// fresh engine and discards window state.
			if next.Detection != cfg.Detection {
				proc.SwapEngine(newEngine(next))
				cfg = next
			}
		},
		func(err error) {
			logger.Warn("config reload failed", "err", err)
		},
		stop,
	)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")
	close(stop)
	cancel()
	time.Sleep(200 * time.Millisecond)
	logger.Info("stopped")
}

func newEngine(cfg *config.Config) *engine.Engine {
	return engine.New(engine.Options{
		WindowSize:          cfg.Detection.WindowSize,
		ThresholdMultiplier: cfg.Detection.ThresholdMultiplier,
		Shards:              cfg.Detection.Shards,
		MaxTrackedKeys:      cfg.Detection.MaxTrackedKeys,
	})
}

func publishEngineGauges(ctx context.Context, proc *processor.Processor) {
	ticker := time.NewTicker(5 * time.Second)
	defer ticker.Stop()
	var lastEvicted uint64
	for {
		select {
		case <-ticker.C:
			eng := proc.Engine()
			metrics.TrackedKeys.Set(float64(eng.TrackedKeys()))
			// The counter advances by the delta since the last tick; an engine
			// swap restarts the per-engine count at zero.
			evicted := eng.EvictedKeys()
			if evicted >= lastEvicted {
				metrics.EvictedKeysTotal.Add(float64(evicted - lastEvicted))
			}
			lastEvicted = evicted
		case <-ctx.Done():
			return
		}
	}
}
