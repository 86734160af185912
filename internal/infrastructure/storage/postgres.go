package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	sq "github.com/Masterminds/squirrel"
	"github.com/lib/pq"

	"ContentCurator/internal/domain"
	"ContentCurator/internal/ports"
)

// PostgresStore persists admitted items, run records, and budget
// counters into Postgres.
type PostgresStore struct {
	db      *sql.DB
	builder sq.StatementBuilderType
}

var _ ports.ArticleStore = (*PostgresStore)(nil)
var _ ports.RunStore = (*PostgresStore)(nil)
var _ ports.BudgetStore = (*PostgresStore)(nil)

// NewPostgresStore wires a sql.DB implementation.
func NewPostgresStore(db *sql.DB) *PostgresStore {
	return &PostgresStore{
		db:      db,
		builder: sq.StatementBuilder.PlaceholderFormat(sq.Dollar),
	}
}

// Open connects to Postgres and verifies the connection.
func Open(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping postgres: %w", err)
	}
	return db, nil
}

const schema = `
CREATE TABLE IF NOT EXISTS admitted_items (
    external_id   TEXT PRIMARY KEY,
    title         TEXT NOT NULL,
    summary       TEXT NOT NULL DEFAULT '',
    url           TEXT NOT NULL DEFAULT '',
    provider      TEXT NOT NULL DEFAULT '',
    topic         TEXT NOT NULL DEFAULT '',
    fingerprint   TEXT NOT NULL,
    score         DOUBLE PRECISION NOT NULL DEFAULT 0,
    quality_pass  BOOLEAN NOT NULL DEFAULT FALSE,
    reason        TEXT NOT NULL DEFAULT '',
    model         TEXT NOT NULL DEFAULT '',
    published_at  TIMESTAMPTZ,
    admitted_at   TIMESTAMPTZ NOT NULL
);
CREATE INDEX IF NOT EXISTS admitted_items_topic_admitted_idx
    ON admitted_items (topic, admitted_at);
CREATE INDEX IF NOT EXISTS admitted_items_fingerprint_idx
    ON admitted_items (fingerprint);

CREATE TABLE IF NOT EXISTS pipeline_runs (
    id                 TEXT PRIMARY KEY,
    started_at         TIMESTAMPTZ NOT NULL,
    finished_at        TIMESTAMPTZ,
    status             TEXT NOT NULL,
    fetched            INT NOT NULL DEFAULT 0,
    provider_failures  INT NOT NULL DEFAULT 0,
    budget_denied      INT NOT NULL DEFAULT 0,
    duplicates         INT NOT NULL DEFAULT 0,
    below_threshold    INT NOT NULL DEFAULT 0,
    quality_rejections INT NOT NULL DEFAULT 0,
    repair_failures    INT NOT NULL DEFAULT 0,
    transport_failures INT NOT NULL DEFAULT 0,
    admitted           INT NOT NULL DEFAULT 0,
    persist_failures   INT NOT NULL DEFAULT 0,
    error              TEXT NOT NULL DEFAULT ''
);
CREATE UNIQUE INDEX IF NOT EXISTS pipeline_runs_one_running
    ON pipeline_runs ((1)) WHERE status = 'running';

CREATE TABLE IF NOT EXISTS budget_ledger (
    provider     TEXT PRIMARY KEY,
    consumed     INT NOT NULL DEFAULT 0,
    window_start TIMESTAMPTZ NOT NULL
);`

// EnsureSchema creates the tables the store relies on.
func (s *PostgresStore) EnsureSchema(ctx context.Context) error {
	if s.db == nil {
		return nil
	}
	if _, err := s.db.ExecContext(ctx, schema); err != nil {
		return fmt.Errorf("ensure schema: %w", err)
	}
	return nil
}

// InsertAdmitted upserts the admitted item; a replayed external id
// updates the existing row instead of duplicating it.
func (s *PostgresStore) InsertAdmitted(ctx context.Context, item domain.AdmittedItem) error {
	if s.db == nil {
		return nil
	}

	query, args, err := s.builder.
		Insert("admitted_items").
		Columns("external_id", "title", "summary", "url", "provider", "topic",
			"fingerprint", "score", "quality_pass", "reason", "model",
			"published_at", "admitted_at").
		Values(item.Candidate.ExternalID, item.Candidate.Title, item.Candidate.Summary,
			item.Candidate.URL, item.Candidate.Provider, item.Topic,
			item.Fingerprint, item.Verdict.Score, item.Verdict.Pass,
			item.Verdict.Reason, item.Verdict.Model,
			nullableTime(item.Candidate.PublishedAt), item.AdmittedAt).
		Suffix(`ON CONFLICT (external_id) DO UPDATE
                SET score = EXCLUDED.score,
                    quality_pass = EXCLUDED.quality_pass,
                    reason = EXCLUDED.reason,
                    model = EXCLUDED.model,
                    admitted_at = EXCLUDED.admitted_at`).
		ToSql()
	if err != nil {
		return fmt.Errorf("build insert admitted: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("upsert admitted: %w", err)
	}
	return nil
}

// ExistsFingerprint reports whether fp was admitted for topic since the
// given time.
func (s *PostgresStore) ExistsFingerprint(ctx context.Context, fingerprint, topic string, since time.Time) (bool, error) {
	if s.db == nil {
		return false, nil
	}

	query, args, err := s.builder.
		Select("1").
		From("admitted_items").
		Where(sq.Eq{"fingerprint": fingerprint, "topic": topic}).
		Where(sq.GtOrEq{"admitted_at": since}).
		Limit(1).
		ToSql()
	if err != nil {
		return false, fmt.Errorf("build exists fingerprint: %w", err)
	}

	var one int
	err = s.db.QueryRowContext(ctx, query, args...).Scan(&one)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query fingerprint: %w", err)
	}
	return true, nil
}

// RecentFingerprints returns all fingerprints admitted for topic within
// the lookback window.
func (s *PostgresStore) RecentFingerprints(ctx context.Context, topic string, since time.Time) (map[string]struct{}, error) {
	if s.db == nil {
		return map[string]struct{}{}, nil
	}

	query, args, err := s.builder.
		Select("fingerprint").
		From("admitted_items").
		Where(sq.Eq{"topic": topic}).
		Where(sq.GtOrEq{"admitted_at": since}).
		ToSql()
	if err != nil {
		return nil, fmt.Errorf("build recent fingerprints: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query recent fingerprints: %w", err)
	}
	defer rows.Close()

	result := make(map[string]struct{})
	for rows.Next() {
		var fp string
		if err := rows.Scan(&fp); err != nil {
			return nil, fmt.Errorf("scan fingerprint: %w", err)
		}
		result[fp] = struct{}{}
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("rows iteration: %w", err)
	}

	return result, nil
}

// Acquire inserts a running record unless an unfinished one exists.
// The guard survives restarts because the state lives in the table, not
// the process. The NOT EXISTS clause alone is not race-free at READ
// COMMITTED, so the partial unique index on status = 'running' is the
// actual arbiter: when two inserts race, one hits a unique violation
// and loses the acquire.
func (s *PostgresStore) Acquire(ctx context.Context, run domain.RunRecord) (bool, error) {
	if s.db == nil {
		return true, nil
	}

	const query = `INSERT INTO pipeline_runs (id, started_at, status)
                   SELECT $1, $2, $3
                   WHERE NOT EXISTS (
                       SELECT 1 FROM pipeline_runs WHERE status = $3
                   )`

	res, err := s.db.ExecContext(ctx, query, run.ID, run.StartedAt, string(domain.RunRunning))
	if isUniqueViolation(err) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("acquire run: %w", err)
	}

	affected, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("acquire run affected: %w", err)
	}
	return affected == 1, nil
}

// isUniqueViolation matches Postgres error class 23505.
func isUniqueViolation(err error) bool {
	var pqErr *pq.Error
	return errors.As(err, &pqErr) && pqErr.Code == "23505"
}

// Finish finalizes the run record with its status and counts.
func (s *PostgresStore) Finish(ctx context.Context, run domain.RunRecord) error {
	if s.db == nil {
		return nil
	}

	query, args, err := s.builder.
		Update("pipeline_runs").
		Set("finished_at", run.FinishedAt).
		Set("status", string(run.Status)).
		Set("fetched", run.Counts.Fetched).
		Set("provider_failures", run.Counts.ProviderFailures).
		Set("budget_denied", run.Counts.BudgetDenied).
		Set("duplicates", run.Counts.Duplicates).
		Set("below_threshold", run.Counts.BelowThreshold).
		Set("quality_rejections", run.Counts.QualityRejections).
		Set("repair_failures", run.Counts.RepairFailures).
		Set("transport_failures", run.Counts.TransportFailures).
		Set("admitted", run.Counts.Admitted).
		Set("persist_failures", run.Counts.PersistFailures).
		Set("error", run.Error).
		Where(sq.Eq{"id": run.ID}).
		ToSql()
	if err != nil {
		return fmt.Errorf("build finish run: %w", err)
	}

	if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
		return fmt.Errorf("finish run: %w", err)
	}
	return nil
}

// LoadBudget restores persisted ledger counters.
func (s *PostgresStore) LoadBudget(ctx context.Context) (map[string]int, time.Time, error) {
	if s.db == nil {
		return map[string]int{}, time.Time{}, nil
	}

	query, args, err := s.builder.
		Select("provider", "consumed", "window_start").
		From("budget_ledger").
		ToSql()
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("build load budget: %w", err)
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, time.Time{}, fmt.Errorf("query budget: %w", err)
	}
	defer rows.Close()

	consumed := make(map[string]int)
	var windowStart time.Time
	for rows.Next() {
		var provider string
		var n int
		var ws time.Time
		if err := rows.Scan(&provider, &n, &ws); err != nil {
			return nil, time.Time{}, fmt.Errorf("scan budget row: %w", err)
		}
		consumed[provider] = n
		if ws.After(windowStart) {
			windowStart = ws
		}
	}
	if err := rows.Err(); err != nil {
		return nil, time.Time{}, fmt.Errorf("budget rows iteration: %w", err)
	}

	return consumed, windowStart, nil
}

// SaveBudget upserts the ledger snapshot per provider.
func (s *PostgresStore) SaveBudget(ctx context.Context, consumed map[string]int, windowStart time.Time) error {
	if s.db == nil || len(consumed) == 0 {
		return nil
	}

	for provider, n := range consumed {
		query, args, err := s.builder.
			Insert("budget_ledger").
			Columns("provider", "consumed", "window_start").
			Values(provider, n, windowStart).
			Suffix(`ON CONFLICT (provider) DO UPDATE
                    SET consumed = EXCLUDED.consumed,
                        window_start = EXCLUDED.window_start`).
			ToSql()
		if err != nil {
			return fmt.Errorf("build save budget: %w", err)
		}
		if _, err := s.db.ExecContext(ctx, query, args...); err != nil {
			return fmt.Errorf("save budget %s: %w", provider, err)
		}
	}
	return nil
}

func nullableTime(t time.Time) any {
	if t.IsZero() {
		return nil
	}
	return t
}
