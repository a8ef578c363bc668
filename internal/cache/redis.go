package cache

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"

	"streamstat/internal/config"
	"streamstat/internal/model"
)

// RedisCache publishes the latest per-key statistics and anomaly records to
// Redis so downstream alerting collaborators can read them without touching
// the engine.
type RedisCache struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisCache(cfg config.CacheConfig) (*RedisCache, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	if err := client.Ping(context.Background()).Err(); err != nil {
		return nil, fmt.Errorf("connect to redis: %w", err)
	}
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = time.Hour
	}
	return &RedisCache{client: client, ttl: ttl}, nil
}

// StoreResult overwrites the latest StatResult for the key.
func (r *RedisCache) StoreResult(ctx context.Context, entityID, metric string, res model.StatResult) error {
	data, err := json.Marshal(res)
	if err != nil {
		return fmt.Errorf("marshal result: %w", err)
	}
	key := fmt.Sprintf("result:%s:%s", entityID, metric)
	return r.client.Set(ctx, key, data, r.ttl).Err()
}

// StoreAnomaly writes an anomaly record and indexes it in a per-entity
// sorted set keyed by timestamp.
func (r *RedisCache) StoreAnomaly(ctx context.Context, rec model.AnomalyRecord) error {
	data, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("marshal anomaly: %w", err)
	}
	key := fmt.Sprintf("anomaly:%s:%s:%d", rec.EntityID, rec.Metric, rec.Timestamp.UnixNano())
	listKey := fmt.Sprintf("anomaly_index:%s", rec.EntityID)

	pipe := r.client.Pipeline()
	pipe.Set(ctx, key, data, r.ttl)
	pipe.ZAdd(ctx, listKey, redis.Z{Score: float64(rec.Timestamp.Unix()), Member: key})
	pipe.Expire(ctx, listKey, r.ttl)
	_, err = pipe.Exec(ctx)
	return err
}

// RecentAnomalies returns the newest anomaly keys for an entity.
func (r *RedisCache) RecentAnomalies(ctx context.Context, entityID string, limit int) ([]string, error) {
	listKey := fmt.Sprintf("anomaly_index:%s", entityID)
	keys, err := r.client.ZRevRange(ctx, listKey, 0, int64(limit-1)).Result()
	if err != nil {
		return nil, fmt.Errorf("read anomaly index: %w", err)
	}
	return keys, nil
}

func (r *RedisCache) Ping(ctx context.Context) error {
	return r.client.Ping(ctx).Err()
}

func (r *RedisCache) Close() error {
	return r.client.Close()
}
