package workflow

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "github.com/jackc/pgx/v5/stdlib"
)

// PGArchive persists finished runs in Postgres. The full result is kept
// as a jsonb payload; status and timing columns exist for querying.
type PGArchive struct {
	db *sql.DB
}

func NewPGArchive(dsn string) (*PGArchive, error) {
	if dsn == "" {
		return nil, fmt.Errorf("dsn is empty")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, err
	}
	if err := db.Ping(); err != nil {
		return nil, err
	}
	a := &PGArchive{db: db}
	if err := a.migrate(context.Background()); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *PGArchive) migrate(ctx context.Context) error {
	_, err := a.db.ExecContext(ctx, `
create table if not exists seo_runs (
  id text primary key,
  workflow text not null,
  target text not null,
  status text not null,
  composite_score double precision,
  payload jsonb not null,
  started_at timestamptz not null,
  ended_at timestamptz not null
);
create table if not exists seo_run_steps (
  id bigserial primary key,
  run_id text not null references seo_runs(id) on delete cascade,
  name text not null,
  kind text not null,
  status text not null,
  attempts int not null,
  error text,
  finished_at timestamptz not null
);
create index if not exists seo_runs_target_idx on seo_runs (target, ended_at desc);
`)
	return err
}

func (a *PGArchive) SaveResult(ctx context.Context, result Result) error {
	payload, err := json.Marshal(result)
	if err != nil {
		return err
	}
	var composite sql.NullFloat64
	if result.Report != nil {
		composite = sql.NullFloat64{Float64: result.Report.Composite, Valid: true}
	}

	tx, err := a.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `insert into seo_runs (id, workflow, target, status, composite_score, payload, started_at, ended_at)
values ($1,$2,$3,$4,$5,$6,$7,$8)
on conflict (id) do update set status = excluded.status, composite_score = excluded.composite_score, payload = excluded.payload, ended_at = excluded.ended_at`,
		result.RunID, result.Workflow, result.Target, result.Status, composite, payload, result.Started, result.Ended)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `delete from seo_run_steps where run_id=$1`, result.RunID); err != nil {
		return err
	}
	for _, step := range result.Steps {
		_, err = tx.ExecContext(ctx, `insert into seo_run_steps (run_id, name, kind, status, attempts, error, finished_at)
values ($1,$2,$3,$4,$5,$6,$7)`,
			result.RunID, step.Name, step.Kind, step.Status, step.Attempts, step.Error, step.FinishedAt)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// GetResult loads an archived run by id.
func (a *PGArchive) GetResult(ctx context.Context, runID string) (Result, error) {
	var raw []byte
	err := a.db.QueryRowContext(ctx, `select payload from seo_runs where id=$1`, runID).Scan(&raw)
	if err != nil {
		if err == sql.ErrNoRows {
			return Result{}, ErrNotFound
		}
		return Result{}, err
	}
	var result Result
	if err := json.Unmarshal(raw, &result); err != nil {
		return Result{}, err
	}
	return result, nil
}

// ListResults returns the most recent archived runs for a target, newest
// first. An empty target lists across all targets.
func (a *PGArchive) ListResults(ctx context.Context, target string, limit int) ([]Result, error) {
	if limit <= 0 {
		limit = 20
	}
	query := `select payload from seo_runs order by ended_at desc limit $1`
	args := []any{limit}
	if target != "" {
		query = `select payload from seo_runs where target=$1 order by ended_at desc limit $2`
		args = []any{target, limit}
	}
	rows, err := a.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Result
	for rows.Next() {
		var raw []byte
		if err := rows.Scan(&raw); err != nil {
			return nil, err
		}
		var result Result
		if err := json.Unmarshal(raw, &result); err != nil {
			return nil, err
		}
		out = append(out, result)
	}
	return out, rows.Err()
}

func (a *PGArchive) Close() error { return a.db.Close() }

var _ Archive = (*PGArchive)(nil)

// FromArchiveConfig selects the archive backend. No DSN means archiving
// is disabled.
func FromArchiveConfig(dsn string) (Archive, error) {
	if dsn == "" {
		return NopArchive{}, nil
	}
	return NewPGArchive(dsn)
}
