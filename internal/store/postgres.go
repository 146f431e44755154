package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "github.com/jackc/pgx/v5/stdlib"
)

type Postgres struct {
	db *sql.DB
}

func NewPostgres(dsn string) (*Postgres, error) {
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Postgres{db: db}, nil
}

func (p *Postgres) Close() error { return p.db.Close() }

func (p *Postgres) Ping(ctx context.Context) error { return p.db.PingContext(ctx) }

// MigrateDir applies every *.sql file in dir, in name order, that has not
// been recorded in schema_migrations yet. Each file runs in its own
// transaction.
func (p *Postgres) MigrateDir(dir string) error {
	ctx := context.Background()
	if _, err := p.db.ExecContext(ctx, `CREATE TABLE IF NOT EXISTS schema_migrations (version TEXT PRIMARY KEY, applied_at TIMESTAMPTZ NOT NULL DEFAULT now())`); err != nil {
		return fmt.Errorf("migrate: bootstrap: %w", err)
	}
	files, err := migrationFiles(dir)
	if err != nil {
		return err
	}
	for _, f := range files {
		version := strings.TrimSuffix(filepath.Base(f), ".sql")
		var seen int
		if err := p.db.QueryRowContext(ctx, `SELECT count(*) FROM schema_migrations WHERE version=$1`, version).Scan(&seen); err != nil {
			return fmt.Errorf("migrate: %s: %w", version, err)
		}
		if seen > 0 {
			continue
		}
		body, err := os.ReadFile(f)
		if err != nil {
			return fmt.Errorf("migrate: %s: %w", version, err)
		}
		if err := p.applyMigration(ctx, version, string(body)); err != nil {
			return fmt.Errorf("migrate: %s: %w", version, err)
		}
	}
	return nil
}

func (p *Postgres) applyMigration(ctx context.Context, version, body string) error {
	tx, err := p.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() { _ = tx.Rollback() }()
	if _, err := tx.ExecContext(ctx, body); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `INSERT INTO schema_migrations (version) VALUES ($1)`, version); err != nil {
		return err
	}
	return tx.Commit()
}

func migrationFiles(dir string) ([]string, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("migrate: read %s: %w", dir, err)
	}
	var out []string
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ".sql") {
			continue
		}
		out = append(out, filepath.Join(dir, e.Name()))
	}
	sort.Strings(out)
	return out, nil
}

// SaveRun inserts a new run or replaces the mutable fields of an existing one.
func (p *Postgres) SaveRun(ctx context.Context, run Run) (Run, error) {
	if run.ID == "" {
		run.ID = uuid.New().String()
	}
	if run.CreatedAt.IsZero() {
		run.CreatedAt = time.Now().UTC()
	}
	locs, err := json.Marshal(run.Locations)
	if err != nil {
		return Run{}, err
	}
	summary, err := jsonOrNil(run.Summary)
	if err != nil {
		return Run{}, err
	}
	metrics, err := jsonOrNil(run.Metrics)
	if err != nil {
		return Run{}, err
	}
	res, err := p.db.ExecContext(ctx, `INSERT INTO solve_runs (id, tenant_id, status, created_at, finished_at, locations, vehicles, capacity, summary, metrics, error_kind, error)
        VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
        ON CONFLICT (id) DO UPDATE SET status=$3, finished_at=$5, summary=$9, metrics=$10, error_kind=$11, error=$12
        WHERE solve_runs.tenant_id=$2`,
		run.ID, run.Tenant, run.Status, run.CreatedAt, run.FinishedAt, locs, run.Vehicles, run.Capacity, summary, metrics,
		nullIfEmpty(run.ErrorKind), nullIfEmpty(run.Error))
	if err != nil {
		return Run{}, err
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return Run{}, ErrNotFound
	}
	return run, nil
}

const runColumns = `id::text, tenant_id, status, created_at, finished_at, locations, vehicles, capacity, summary, metrics, COALESCE(error_kind,''), COALESCE(error,'')`

func (p *Postgres) GetRun(ctx context.Context, tenantID, id string) (Run, error) {
	if _, err := uuid.Parse(id); err != nil {
		return Run{}, ErrNotFound
	}
	row := p.db.QueryRowContext(ctx, `SELECT `+runColumns+` FROM solve_runs WHERE tenant_id=$1 AND id=$2`, tenantID, id)
	r, err := scanRun(row)
	if errors.Is(err, sql.ErrNoRows) {
		return Run{}, ErrNotFound
	}
	return r, err
}

// ListRuns pages oldest first; the cursor is the id of the last run returned.
func (p *Postgres) ListRuns(ctx context.Context, tenantID, cursor string, limit int) ([]Run, string, error) {
	limit = clampLimit(limit)
	var rows *sql.Rows
	var err error
	if cursor != "" {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM solve_runs
            WHERE tenant_id=$1 AND (created_at, id) > (SELECT created_at, id FROM solve_runs WHERE id::text=$2)
            ORDER BY created_at, id LIMIT $3`, tenantID, cursor, limit)
	} else {
		rows, err = p.db.QueryContext(ctx, `SELECT `+runColumns+` FROM solve_runs WHERE tenant_id=$1 ORDER BY created_at, id LIMIT $2`, tenantID, limit)
	}
	if err != nil {
		return nil, "", err
	}
	defer rows.Close()
	out := []Run{}
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, "", err
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, "", err
	}
	var next string
	if len(out) == limit {
		next = out[len(out)-1].ID
	}
	return out, next, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(s scanner) (Run, error) {
	var r Run
	var finished sql.NullTime
	var locs, summary, metrics []byte
	if err := s.Scan(&r.ID, &r.Tenant, &r.Status, &r.CreatedAt, &finished, &locs, &r.Vehicles, &r.Capacity, &summary, &metrics, &r.ErrorKind, &r.Error); err != nil {
		return Run{}, err
	}
	if finished.Valid {
		t := finished.Time
		r.FinishedAt = &t
	}
	if err := json.Unmarshal(locs, &r.Locations); err != nil {
		return Run{}, fmt.Errorf("decode locations: %w", err)
	}
	if len(summary) > 0 {
		if err := json.Unmarshal(summary, &r.Summary); err != nil {
			return Run{}, fmt.Errorf("decode summary: %w", err)
		}
	}
	if len(metrics) > 0 {
		if err := json.Unmarshal(metrics, &r.Metrics); err != nil {
			return Run{}, fmt.Errorf("decode metrics: %w", err)
		}
	}
	return r, nil
}

func (p *Postgres) EnqueueCallback(ctx context.Context, tenantID, runID, eventType, url, secret string, payload []byte) (string, error) {
	id := uuid.New().String()
	dk := computeDedupKey(payload)
	err := p.db.QueryRowContext(ctx, `INSERT INTO callback_deliveries (id, tenant_id, run_id, event_type, url, secret, payload, status, attempts, next_attempt_at, dedup_key)
        VALUES ($1,$2,$3,$4,$5,$6,$7,'pending',0,now(),$8)
        ON CONFLICT (tenant_id, event_type, url, dedup_key) DO UPDATE SET dedup_key=EXCLUDED.dedup_key
        RETURNING id::text`, id, tenantID, runID, eventType, url, nullIfEmpty(secret), payload, dk).Scan(&id)
	if err != nil {
		return "", err
	}
	return id, nil
}

const callbackColumns = `id::text, tenant_id, run_id::text, event_type, url, COALESCE(secret,''), payload, status, attempts, next_attempt_at, COALESCE(last_error,''), COALESCE(response_code,0), COALESCE(latency_ms,0), delivered_at`

func (p *Postgres) FetchDueCallbacks(ctx context.Context, limit int) ([]CallbackDelivery, error) {
	rows, err := p.db.QueryContext(ctx, `SELECT `+callbackColumns+`
        FROM callback_deliveries WHERE status IN ('pending','retry') AND next_attempt_at <= now() ORDER BY next_attempt_at ASC LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	return scanCallbacks(rows)
}

func (p *Postgres) ListCallbacks(ctx context.Context, tenantID, runID string) ([]CallbackDelivery, error) {
	q := `SELECT ` + callbackColumns + ` FROM callback_deliveries WHERE tenant_id=$1`
	args := []any{tenantID}
	if runID != "" {
		q += ` AND run_id::text=$2`
		args = append(args, runID)
	}
	rows, err := p.db.QueryContext(ctx, q+` ORDER BY created_at`, args...)
	if err != nil {
		return nil, err
	}
	return scanCallbacks(rows)
}

func scanCallbacks(rows *sql.Rows) ([]CallbackDelivery, error) {
	defer rows.Close()
	out := []CallbackDelivery{}
	for rows.Next() {
		var d CallbackDelivery
		var delivered sql.NullTime
		if err := rows.Scan(&d.ID, &d.TenantID, &d.RunID, &d.EventType, &d.URL, &d.Secret, &d.Payload, &d.Status, &d.Attempts,
			&d.NextAttemptAt, &d.LastError, &d.ResponseCode, &d.LatencyMs, &delivered); err != nil {
			return nil, err
		}
		if delivered.Valid {
			t := delivered.Time
			d.DeliveredAt = &t
		}
		out = append(out, d)
	}
	return out, rows.Err()
}

func (p *Postgres) MarkCallback(ctx context.Context, id string, success bool, nextAttemptAt *time.Time, lastError string, responseCode int, latencyMs int) error {
	if !success {
		if nextAttemptAt == nil {
			t := time.Now().Add(time.Minute)
			nextAttemptAt = &t
		}
		_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='retry', last_error=$2, next_attempt_at=$3, updated_at=now(), response_code=$4, latency_ms=$5 WHERE id=$1`,
			id, nullIfEmpty(lastError), *nextAttemptAt, responseCode, latencyMs)
		return err
	}
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='delivered', delivered_at=now(), updated_at=now(), response_code=$2, latency_ms=$3 WHERE id=$1`, id, responseCode, latencyMs)
	return err
}

func (p *Postgres) FailCallback(ctx context.Context, id string, lastError string, responseCode int, latencyMs int) error {
	_, err := p.db.ExecContext(ctx, `UPDATE callback_deliveries SET attempts=attempts+1, status='failed', last_error=$2, updated_at=now(), response_code=$3, latency_ms=$4 WHERE id=$1`,
		id, nullIfEmpty(lastError), responseCode, latencyMs)
	return err
}

func nullIfEmpty(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// jsonOrNil marshals v, mapping a nil pointer to SQL NULL.
func jsonOrNil[T any](v *T) (any, error) {
	if v == nil {
		return nil, nil
	}
	b, err := json.Marshal(v)
	if err != nil {
		return nil, err
	}
	return b, nil
}
