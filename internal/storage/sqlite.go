package storage

import (
	"context"
	"database/sql"
	"strings"

	_ "modernc.org/sqlite"

	"streamstat/internal/model"
)

type sqliteStore struct {
	baseStore
}

func NewSQLite(dsn string) (Store, error) {
	if strings.TrimSpace(dsn) == "" {
		dsn = "file:streamstat.db?_pragma=busy_timeout(5000)"
	}
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, err
	}
	return &sqliteStore{baseStore{db: db}}, nil
}

func (s *sqliteStore) Init(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	stmts := []string{
		`CREATE TABLE IF NOT EXISTS anomalies (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			z_score REAL NOT NULL,
			stats_json TEXT NOT NULL,
			source TEXT
		)`,
		`CREATE INDEX IF NOT EXISTS idx_anomalies_ts ON anomalies(ts)`,
		`CREATE TABLE IF NOT EXISTS stat_samples (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			ts TEXT NOT NULL,
			entity_id TEXT NOT NULL,
			metric TEXT NOT NULL,
			value REAL NOT NULL,
			rolling_avg REAL NOT NULL,
			rolling_stddev REAL NOT NULL,
			is_anomaly INTEGER NOT NULL,
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

func (s *sqliteStore) SaveAnomaly(ctx context.Context, rec model.AnomalyRecord) error {
	if s.db == nil {
		return nil
	}
	_, err := s.db.ExecContext(ctx,
		`INSERT INTO anomalies (ts, entity_id, metric, value, z_score, stats_json, source)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
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

func (s *sqliteStore) SaveStats(ctx context.Context, samples []model.StatSample) error {
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
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
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
