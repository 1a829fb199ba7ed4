package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	_ "github.com/jackc/pgx/v5/stdlib"

	"github.com/dualsaude/docreader/internal/core/domain"
)

const (
	schemaLockID       = int64(2026101501)
	defaultRecentLimit = 20
	maxRecentLimit     = 200
)

// AnalysisRepository persists the outcome of every analysis request.
type AnalysisRepository struct {
	db *sql.DB
}

func NewAnalysisRepository(db *sql.DB) *AnalysisRepository {
	return &AnalysisRepository{db: db}
}

func OpenDB(dsn string) (*sql.DB, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sql open: %w", err)
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(30 * time.Minute)

	if err := db.Ping(); err != nil {
		return nil, fmt.Errorf("db ping: %w", err)
	}
	return db, nil
}

func (r *AnalysisRepository) EnsureSchema(ctx context.Context) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin schema tx: %w", err)
	}
	defer func() {
		_ = tx.Rollback()
	}()

	// Serialize bootstrap DDL across api/worker startups.
	if _, err := tx.ExecContext(ctx, `SELECT pg_advisory_xact_lock($1)`, schemaLockID); err != nil {
		return fmt.Errorf("acquire schema lock: %w", err)
	}

	const query = `
CREATE TABLE IF NOT EXISTS analysis_records (
	id TEXT PRIMARY KEY,
	outcome TEXT NOT NULL,
	content_kind TEXT NOT NULL,
	filename TEXT NOT NULL,
	size_bytes INTEGER NOT NULL DEFAULT 0,
	pages INTEGER,
	source TEXT NOT NULL DEFAULT '',
	document_type TEXT NOT NULL,
	classified_by TEXT NOT NULL DEFAULT '',
	parse_status TEXT NOT NULL DEFAULT '',
	refusal_reason TEXT NOT NULL DEFAULT '',
	archive_key TEXT NOT NULL DEFAULT '',
	summary TEXT NOT NULL DEFAULT '',
	occurred_at TIMESTAMPTZ NOT NULL,
	recorded_at TIMESTAMPTZ NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_analysis_records_occurred_at ON analysis_records(occurred_at DESC);
CREATE INDEX IF NOT EXISTS idx_analysis_records_outcome ON analysis_records(outcome);
`
	if _, err := tx.ExecContext(ctx, query); err != nil {
		return fmt.Errorf("execute schema ddl: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit schema tx: %w", err)
	}
	return nil
}

// Save is idempotent on the event id so redelivered events are harmless.
func (r *AnalysisRepository) Save(ctx context.Context, record domain.AnalysisRecord) error {
	var pages sql.NullInt64
	if record.Pages != nil {
		pages = sql.NullInt64{Int64: int64(*record.Pages), Valid: true}
	}

	_, err := r.db.ExecContext(ctx, `
INSERT INTO analysis_records (
	id, outcome, content_kind, filename, size_bytes, pages, source, document_type, classified_by,
	parse_status, refusal_reason, archive_key, summary, occurred_at, recorded_at
) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)
ON CONFLICT (id) DO NOTHING
`,
		record.ID, string(record.Outcome), string(record.ContentKind), record.Filename, record.SizeBytes, pages,
		record.Source, string(record.DocumentType), string(record.ClassifiedBy), string(record.ParseStatus),
		record.RefusalCause, record.ArchiveKey, record.Summary, record.OccurredAt, record.RecordedAt,
	)
	if err != nil {
		return domain.WrapError(domain.ErrTemporary, "insert analysis record", err)
	}
	return nil
}

func (r *AnalysisRepository) ListRecent(ctx context.Context, limit int) ([]domain.AnalysisRecord, error) {
	limit = clampLimit(limit)

	rows, err := r.db.QueryContext(ctx, `
SELECT id, outcome, content_kind, filename, size_bytes, pages, source, document_type, classified_by,
	parse_status, refusal_reason, archive_key, summary, occurred_at, recorded_at
FROM analysis_records
ORDER BY occurred_at DESC
LIMIT $1
`, limit)
	if err != nil {
		return nil, fmt.Errorf("query analysis records: %w", err)
	}
	defer rows.Close()

	records := make([]domain.AnalysisRecord, 0, limit)
	for rows.Next() {
		var rec domain.AnalysisRecord
		var outcome, kind, docType, classifiedBy, parseStatus string
		var pages sql.NullInt64
		if err := rows.Scan(
			&rec.ID, &outcome, &kind, &rec.Filename, &rec.SizeBytes, &pages, &rec.Source, &docType, &classifiedBy,
			&parseStatus, &rec.RefusalCause, &rec.ArchiveKey, &rec.Summary, &rec.OccurredAt, &rec.RecordedAt,
		); err != nil {
			return nil, fmt.Errorf("scan analysis record: %w", err)
		}
		rec.Outcome = domain.AnalysisOutcome(outcome)
		rec.ContentKind = domain.ContentKind(kind)
		rec.DocumentType = domain.DocumentType(docType)
		rec.ClassifiedBy = domain.ClassificationSource(classifiedBy)
		rec.ParseStatus = domain.ParseStatus(parseStatus)
		if pages.Valid {
			n := int(pages.Int64)
			rec.Pages = &n
		}
		records = append(records, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate analysis records: %w", err)
	}
	return records, nil
}

func clampLimit(limit int) int {
	if limit <= 0 {
		return defaultRecentLimit
	}
	if limit > maxRecentLimit {
		return maxRecentLimit
	}
	return limit
}
