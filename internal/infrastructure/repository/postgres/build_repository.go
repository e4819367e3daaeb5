package postgres

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/mohitrock850/Autonomous-Compliance-Auditor/internal/core/domain"
)

// BuildRepository is the index build ledger.
type BuildRepository struct {
	db  *sql.DB
	now func() time.Time
}

func NewBuildRepository(db *sql.DB) *BuildRepository {
	return &BuildRepository{db: db, now: time.Now}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(4)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *BuildRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across concurrent indexer runs.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, int64(2026101901)); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS index_builds (
	id TEXT PRIMARY KEY,
	generation TEXT,
	status TEXT NOT NULL,
	files_seen INTEGER NOT NULL DEFAULT 0,
	files_indexed INTEGER NOT NULL DEFAULT 0,
	files_skipped JSONB NOT NULL DEFAULT '[]'::jsonb,
	chunks INTEGER NOT NULL DEFAULT 0,
	dimension INTEGER NOT NULL DEFAULT 0,
	duration_ms BIGINT NOT NULL DEFAULT 0,
	error_message TEXT,
	created_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_index_builds_created_at ON index_builds(created_at DESC);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// RecordBuild stores the outcome of one build attempt.
func (r *BuildRepository) RecordBuild(ctx context.Context, report *domain.BuildReport, buildErr error) error {
	if report == nil {
		report = &domain.BuildReport{}
	}
	status := domain.BuildStatusSucceeded
	var errMsg sql.NullString
	if buildErr != nil {
		status = domain.BuildStatusFailed
		errMsg = sql.NullString{String: buildErr.Error(), Valid: true}
	}
	var generation sql.NullString
	if report.Generation != "" {
		generation = sql.NullString{String: report.Generation, Valid: true}
	}

	skipped := report.FilesSkipped
	if skipped == nil {
		skipped = []domain.SkippedFile{}
	}
	skippedJSON, err := json.Marshal(skipped)
	if err != nil {
		return fmt.Errorf("marshal skipped files: %w", err)
	}

	_, err = r.db.ExecContext(ctx, `
INSERT INTO index_builds (
	id, generation, status, files_seen, files_indexed, files_skipped, chunks, dimension, duration_ms, error_message, created_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
`,
		uuid.NewString(), generation, string(status), report.FilesSeen, report.FilesIndexed, skippedJSON,
		report.Chunks, report.Dimension, report.Duration.Milliseconds(), errMsg, r.now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert index build: %w", err)
	}
	return nil
}

// Recent returns the latest build records, newest first.
func (r *BuildRepository) Recent(ctx context.Context, limit int) ([]domain.BuildRecord, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.db.QueryContext(ctx, `
SELECT id, generation, status, files_seen, files_indexed, files_skipped, chunks, dimension, duration_ms, error_message, created_at
FROM index_builds
ORDER BY created_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query index builds: %w", err)
	}
	defer rows.Close()

	var out []domain.BuildRecord
	for rows.Next() {
		var (
			rec         domain.BuildRecord
			generation  sql.NullString
			status      string
			skippedRaw  []byte
			durationMS  int64
			errorString sql.NullString
		)
		if err := rows.Scan(
			&rec.ID, &generation, &status, &rec.FilesSeen, &rec.FilesIndexed, &skippedRaw,
			&rec.Chunks, &rec.Dimension, &durationMS, &errorString, &rec.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("scan index build: %w", err)
		}
		if len(skippedRaw) > 0 {
			if err := json.Unmarshal(skippedRaw, &rec.FilesSkipped); err != nil {
				return nil, fmt.Errorf("decode skipped files: %w", err)
			}
		}
		rec.Generation = generation.String
		rec.Status = domain.BuildStatus(status)
		rec.Duration = time.Duration(durationMS) * time.Millisecond
		rec.Error = errorString.String
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate index builds: %w", err)
	}
	return out, nil
}
