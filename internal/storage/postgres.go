package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "github.com/jackc/pgx/v5/stdlib"

	"streamstat/internal/model"
)

type postgresStore struct {
	baseStore
}

func NewPostgres(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "postgres://localhost:5432/streamstat?sslmode=disable"
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	return &postgresStore{baseStore{db: db}}, nil
}

func (s *postgresStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS anomalies (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			entity_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			z_score DOUBLE PRECISION NOT NULL,
			stats_json JSONB NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_ts ON anomalies(ts)`,
		`CREATE TABLE IF NOT EXISTS stat_samples (
			id BIGSERIAL PRIMARY KEY,
			ts TIMESTAMPTZ NOT NULL,
			entity_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value DOUBLE PRECISION NOT NULL,
			rolling_avg DOUBLE PRECISION NOT NULL,
			rolling_stddev DOUBLE PRECISION NOT NULL,
			is_anomaly BOOLEAN NOT NULL,
			sample_count INTEGER NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_stat_samples_key ON stat_samples(entity_id, metric)`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

func (s *postgresStore) SaveAnomaly(ctx context.Context, rec model.AnomalyRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (ts, entity_id, metric, value, z_score, stats_json, source)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rec.Timestamp.UTC(),
		rec.EntityID,
		rec.Metric,
		rec.Value,
		rec.ZScore,
		encodeJSON(rec.Stats),
		rec.Source,
	)
	return err
}

func (s *postgresStore) SaveStats(ctx context.Context, samples []model.StatSample) error {
	if s.db == nil || len(samples) == 0 {
		return nil
	}
	if ctx == nil {
		ctx = context.Background()
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	stmt, err := tx.PrepareContext(ctx,
		`INSERT INTO stat_samples (ts, entity_id, metric, value, rolling_avg, rolling_stddev, is_anomaly, sample_count)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`)
	if err != nil {
		_ = tx.Rollback()
		return err
	}
	defer stmt.Close()
	for _, sm := range samples {
		ts := sm.Timestamp
		if ts.IsZero() {
			ts = nowUTC()
		}
		if _, err := stmt.ExecContext(ctx,
			ts.UTC(),
			sm.EntityID,
			sm.Metric,
			sm.Value,
			sm.Stats.RollingAvg,
			sm.Stats.RollingStdDev,
			sm.Stats.IsAnomaly,
			sm.Stats.SampleCount,
		); err != nil {
			_ = tx.Rollback()
			return err
		}
	}
	return tx.Commit()
}
