// Package audit persists per-run prediction records. Auditing is optional
// and fully decoupled from the request path: records arrive through an
// async queue and only aggregates are stored, never claim contents.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"log/slog"
	"strings"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"
	_ "modernc.org/sqlite"

	"github.com/claimlens/claimlens/internal/pipeline"
)

const schema = `
CREATE TABLE IF NOT EXISTS prediction_runs (
	run_id            TEXT PRIMARY KEY,
	created_at        TIMESTAMP NOT NULL,
	incident_type     TEXT NOT NULL,
	prediction        DOUBLE PRECISION NOT NULL,
	confidence        DOUBLE PRECISION NOT NULL,
	extraction_method TEXT NOT NULL,
	damage_images     INTEGER NOT NULL,
	no_damage_images  INTEGER NOT NULL,
	unknown_images    INTEGER NOT NULL,
	degraded_stages   TEXT NOT NULL,
	insight_fallback  BOOLEAN NOT NULL,
	elapsed_ms        INTEGER NOT NULL
)`

// Store is the audit-trail database handle. The driver is selected from the
// DSN: postgres URLs go through pgx, anything else is treated as a SQLite
// path, which covers single-node deployments without a database server.
type Store struct {
	db     *sql.DB
	logger *slog.Logger
}

func driverFor(dsn string) string {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return "pgx"
	}
	return "sqlite"
}

// Open connects, pings, and ensures the schema exists.
func Open(ctx context.Context, dsn string, logger *slog.Logger) (*Store, error) {
	if logger == nil {
		logger = slog.Default()
	}
	driver := driverFor(dsn)

	db, err := sql.Open(driver, dsn)
	if err != nil {
		return nil, fmt.Errorf("open audit db: %w", err)
	}

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping audit db: %w", err)
	}

	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ensure audit schema: %w", err)
	}

	logger.Info("audit.store.open", "driver", driver)
	return &Store{db: db, logger: logger}, nil
}

func (s *Store) Close() error { return s.db.Close() }

// InsertRun stores one completed run. Duplicate run ids are rejected by the
// primary key; runs are never updated after the fact.
func (s *Store) InsertRun(ctx context.Context, rec pipeline.RunRecord) error {
	const q = `
INSERT INTO prediction_runs (
	run_id, created_at, incident_type, prediction, confidence,
	extraction_method, damage_images, no_damage_images, unknown_images,
	degraded_stages, insight_fallback, elapsed_ms
) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12)`

	_, err := s.db.ExecContext(ctx, q,
		rec.RunID,
		rec.CreatedAt.UTC(),
		rec.IncidentType,
		rec.Prediction,
		rec.Confidence,
		rec.ExtractionMethod,
		rec.DamageImages,
		rec.NoDamageImages,
		rec.UnknownImages,
		strings.Join(rec.DegradedStages, ","),
		rec.InsightFallback,
		rec.ElapsedMS,
	)
	if err != nil {
		return fmt.Errorf("insert run %s: %w", rec.RunID, err)
	}
	return nil
}

// ListRuns returns runs inside the optional [from, to] window, newest first.
// A nil bound leaves that side open.
func (s *Store) ListRuns(ctx context.Context, from, to *time.Time) ([]pipeline.RunRecord, error) {
	q := `
SELECT run_id, created_at, incident_type, prediction, confidence,
       extraction_method, damage_images, no_damage_images, unknown_images,
       degraded_stages, insight_fallback, elapsed_ms
FROM prediction_runs`

	var conds []string
	var args []any
	if from != nil {
		args = append(args, from.UTC())
		conds = append(conds, fmt.Sprintf("created_at >= $%d", len(args)))
	}
	if to != nil {
		args = append(args, to.UTC())
		conds = append(conds, fmt.Sprintf("created_at <= $%d", len(args)))
	}
	if len(conds) > 0 {
		q += " WHERE " + strings.Join(conds, " AND ")
	}
	q += " ORDER BY created_at DESC"

	rows, err := s.db.QueryContext(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var out []pipeline.RunRecord
	for rows.Next() {
		var rec pipeline.RunRecord
		var stages string
		if err := rows.Scan(
			&rec.RunID, &rec.CreatedAt, &rec.IncidentType, &rec.Prediction,
			&rec.Confidence, &rec.ExtractionMethod, &rec.DamageImages,
			&rec.NoDamageImages, &rec.UnknownImages, &stages,
			&rec.InsightFallback, &rec.ElapsedMS,
		); err != nil {
			return nil, fmt.Errorf("scan run: %w", err)
		}
		if stages != "" {
			rec.DegradedStages = strings.Split(stages, ",")
		}
		out = append(out, rec)
	}
	return out, rows.Err()
}
