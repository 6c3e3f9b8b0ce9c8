package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/mg-platform/enrich-cli/internal/db"
	"github.com/mg-platform/enrich-cli/internal/model"
)

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    db.Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

// decisionColumns is the column order of decisionRows.
var decisionColumns = []string{
	"run_id", "position", "identifier", "decision", "search_method", "quality_score", "synthetic", "data",
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(5)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                    TEXT PRIMARY KEY,
	session_id            TEXT NOT NULL,
	status                TEXT NOT NULL,
	sample_size           INTEGER NOT NULL,
	processed             INTEGER NOT NULL DEFAULT 0,
	enriched              INTEGER NOT NULL DEFAULT 0,
	failed                INTEGER NOT NULL DEFAULT 0,
	partial_sample        BOOLEAN NOT NULL DEFAULT false,
	cancelled             BOOLEAN NOT NULL DEFAULT false,
	success_rate          DOUBLE PRECISION NOT NULL DEFAULT 0,
	average_quality_score DOUBLE PRECISION NOT NULL DEFAULT 0,
	output_file           TEXT NOT NULL DEFAULT '',
	result                JSONB,
	started_at            TIMESTAMPTZ NOT NULL,
	finished_at           TIMESTAMPTZ NOT NULL
);

CREATE TABLE IF NOT EXISTS run_decisions (
	run_id        TEXT NOT NULL REFERENCES runs(id) ON DELETE CASCADE,
	position      INTEGER NOT NULL,
	identifier    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	search_method TEXT NOT NULL DEFAULT '',
	quality_score INTEGER NOT NULL DEFAULT 0,
	synthetic     BOOLEAN NOT NULL DEFAULT false,
	data          JSONB NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at DESC);
CREATE INDEX IF NOT EXISTS idx_run_decisions_decision ON run_decisions(decision);
`

func (s *PostgresStore) Ping(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, "SELECT 1")
	return eris.Wrap(err, "postgres: ping")
}

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

// SaveRun upserts the run row, then merges its decisions through a COPY
// into a temp table.
func (s *PostgresStore) SaveRun(ctx context.Context, res *model.BatchResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "postgres: marshal result")
	}
	sum := Summarize(res)

	_, err = s.pool.Exec(ctx,
		`INSERT INTO runs (id, session_id, status, sample_size, processed, enriched, failed,
			partial_sample, cancelled, success_rate, average_quality_score, output_file, result, started_at, finished_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15)
		ON CONFLICT (id) DO UPDATE SET
			status = EXCLUDED.status, processed = EXCLUDED.processed, enriched = EXCLUDED.enriched,
			failed = EXCLUDED.failed, partial_sample = EXCLUDED.partial_sample, cancelled = EXCLUDED.cancelled,
			success_rate = EXCLUDED.success_rate, average_quality_score = EXCLUDED.average_quality_score,
			output_file = EXCLUDED.output_file, result = EXCLUDED.result, finished_at = EXCLUDED.finished_at`,
		sum.ID, sum.SessionID, string(sum.Status), sum.SampleSize, sum.Processed, sum.Enriched, sum.Failed,
		sum.PartialSample, sum.Cancelled, sum.SuccessRate, sum.AverageQualityScore, sum.OutputFile,
		resultJSON, sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "postgres: upsert run %s", res.RunID)
	}

	_, err = db.BulkUpsert(ctx, s.pool, db.UpsertConfig{
		Table:        "run_decisions",
		Columns:      decisionColumns,
		ConflictKeys: []string{"run_id", "position"},
	}, decisionRows(res))
	return eris.Wrapf(err, "postgres: save decisions %s", res.RunID)
}

const postgresRunColumns = `id, session_id, status, sample_size, processed, enriched, failed,
	partial_sample, cancelled, success_rate, average_quality_score, output_file, started_at, finished_at`

func (s *PostgresStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	var resultNull *[]byte
	sum, err := scanRun(s.pool.QueryRow(ctx,
		`SELECT `+postgresRunColumns+`, result FROM runs WHERE id = $1`,
		runID,
	), &resultNull)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: get run %s", runID)
	}
	if resultNull != nil {
		sum.Result = &model.BatchResult{}
		if err := json.Unmarshal(*resultNull, sum.Result); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal result")
		}
	}
	return sum, nil
}

func (s *PostgresStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT ` + postgresRunColumns + ` FROM runs WHERE true`
	args := []any{}
	argIdx := 1

	if filter.Status != "" {
		query += fmt.Sprintf(` AND status = $%d`, argIdx)
		args = append(args, string(filter.Status))
		argIdx++
	}
	query += ` ORDER BY started_at DESC, id`

	query += fmt.Sprintf(` LIMIT $%d`, argIdx)
	args = append(args, limitOf(filter))
	argIdx++

	if filter.Offset > 0 {
		query += fmt.Sprintf(` OFFSET $%d`, argIdx)
		args = append(args, filter.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: list runs")
	}
	defer rows.Close()

	var runs []RunSummary
	for rows.Next() {
		sum, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "postgres: scan run")
		}
		runs = append(runs, *sum)
	}
	return runs, eris.Wrap(rows.Err(), "postgres: list runs iterate")
}

func (s *PostgresStore) ListDecisions(ctx context.Context, runID string) ([]model.DecisionLog, error) {
	var one int
	err := s.pool.QueryRow(ctx, `SELECT 1 FROM runs WHERE id = $1`, runID).Scan(&one)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "postgres: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: check run %s", runID)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT data FROM run_decisions WHERE run_id = $1 ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "postgres: list decisions %s", runID)
	}
	defer rows.Close()

	var out []model.DecisionLog
	for rows.Next() {
		var data []byte
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "postgres: scan decision")
		}
		var d model.DecisionLog
		if err := json.Unmarshal(data, &d); err != nil {
			return nil, eris.Wrap(err, "postgres: unmarshal decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "postgres: list decisions iterate")
}
