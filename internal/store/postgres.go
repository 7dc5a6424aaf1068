// Package store keeps the history of finished runs in PostgreSQL. It never serves
// geocoding lookups: every run resolves its addresses again.
package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"address-distance/internal/models"
	"address-distance/internal/report"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Open creates a small connection pool and verifies it.
func Open(ctx context.Context, databaseURL string) (*pgxpool.Pool, error) {
	poolCfg, err := pgxpool.ParseConfig(databaseURL)
	if err != nil {
		return nil, fmt.Errorf("parse db config: %w", err)
	}

	poolCfg.MaxConns = 4
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConnIdleTime = 30 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, fmt.Errorf("create pool: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := pool.Ping(pingCtx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("ping db: %w", err)
	}

	return pool, nil
}

type RunSummary struct {
	ID         string                  `json:"id"`
	Origin     string                  `json:"origin"`
	OriginLat  float64                 `json:"origin_lat"`
	OriginLon  float64                 `json:"origin_lon"`
	Strategy   models.DistanceStrategy `json:"strategy"`
	Total      int                     `json:"total"`
	Successful int                     `json:"successful"`
	StartedAt  time.Time               `json:"started_at"`
	FinishedAt time.Time               `json:"finished_at"`
}

type PostgresRunStore struct {
	pool *pgxpool.Pool
}

func NewPostgresRunStore(pool *pgxpool.Pool) *PostgresRunStore {
	return &PostgresRunStore{pool: pool}
}

func (s *PostgresRunStore) CreateSchema(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, `
	CREATE TABLE IF NOT EXISTS runs (
		id          TEXT PRIMARY KEY,
		origin      TEXT NOT NULL,
		origin_lat  DOUBLE PRECISION NOT NULL,
		origin_lon  DOUBLE PRECISION NOT NULL,
		strategy    TEXT NOT NULL,
		total       INTEGER NOT NULL,
		successful  INTEGER NOT NULL,
		started_at  TIMESTAMPTZ NOT NULL,
		finished_at TIMESTAMPTZ NOT NULL
	);
	CREATE TABLE IF NOT EXISTS run_results (
		run_id      TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
		position    INTEGER NOT NULL,
		address     TEXT NOT NULL,
		distance_km DOUBLE PRECISION,
		status      TEXT NOT NULL,
		latitude    DOUBLE PRECISION,
		longitude   DOUBLE PRECISION,
		PRIMARY KEY (run_id, position)
	);
	`)
	if err != nil {
		return fmt.Errorf("create schema: %w", err)
	}

	return nil
}

// Record stores a finished run and its records in one transaction.
func (s *PostgresRunStore) Record(ctx context.Context, id string, run *models.Run) error {
	if run == nil {
		return errors.New("record run: run is nil")
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("record run: begin: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	summary := report.Summarize(run.Records)
	_, err = tx.Exec(ctx, `
	INSERT INTO runs (id, origin, origin_lat, origin_lon, strategy, total, successful, started_at, finished_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
	`,
		id,
		run.Origin,
		run.OriginCoord.Lat,
		run.OriginCoord.Lon,
		string(run.Strategy),
		summary.Total,
		summary.Successful,
		run.StartedAt,
		run.FinishedAt,
	)
	if err != nil {
		return fmt.Errorf("record run %s: insert run: %w", id, err)
	}

	_, err = tx.CopyFrom(ctx,
		pgx.Identifier{"run_results"},
		[]string{"run_id", "position", "address", "distance_km", "status", "latitude", "longitude"},
		pgx.CopyFromSlice(len(run.Records), func(i int) ([]any, error) {
			r := run.Records[i]
			return []any{id, int32(i), r.Address, r.DistanceKm, string(r.Status), r.Latitude, r.Longitude}, nil
		}),
	)
	if err != nil {
		return fmt.Errorf("record run %s: copy results: %w", id, err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("record run %s: commit: %w", id, err)
	}

	return nil
}

// Recent lists the latest runs, newest first.
func (s *PostgresRunStore) Recent(ctx context.Context, limit int) ([]RunSummary, error) {
	rows, err := s.pool.Query(ctx, `
	SELECT id, origin, origin_lat, origin_lon, strategy, total, successful, started_at, finished_at
	FROM runs
	ORDER BY finished_at DESC
	LIMIT $1
	`, limit)
	if err != nil {
		return nil, fmt.Errorf("list runs: %w", err)
	}
	defer rows.Close()

	out := make([]RunSummary, 0, limit)
	for rows.Next() {
		var rs RunSummary
		var strategy string
		if err := rows.Scan(&rs.ID, &rs.Origin, &rs.OriginLat, &rs.OriginLon, &strategy, &rs.Total, &rs.Successful, &rs.StartedAt, &rs.FinishedAt); err != nil {
			return nil, fmt.Errorf("list runs: scan: %w", err)
		}
		rs.Strategy = models.DistanceStrategy(strategy)
		out = append(out, rs)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("list runs: row iteration: %w", err)
	}

	return out, nil
}

// Records returns the stored records of one run in submission order.
func (s *PostgresRunStore) Records(ctx context.Context, id string) ([]models.ResultRecord, error) {
	var strategy string
	err := s.pool.QueryRow(ctx, `SELECT strategy FROM runs WHERE id = $1`, id).Scan(&strategy)
	if err != nil {
		return nil, fmt.Errorf("load run %s: %w", id, err)
	}

	rows, err := s.pool.Query(ctx, `
	SELECT address, distance_km, status, latitude, longitude
	FROM run_results
	WHERE run_id = $1
	ORDER BY position
	`, id)
	if err != nil {
		return nil, fmt.Errorf("load run %s results: %w", id, err)
	}
	defer rows.Close()

	var out []models.ResultRecord
	for rows.Next() {
		r := models.ResultRecord{Strategy: models.DistanceStrategy(strategy)}
		var status string
		if err := rows.Scan(&r.Address, &r.DistanceKm, &status, &r.Latitude, &r.Longitude); err != nil {
			return nil, fmt.Errorf("load run %s results: scan: %w", id, err)
		}
		r.Status = models.Status(status)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("load run %s results: row iteration: %w", id, err)
	}

	return out, nil
}
