package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/mg-platform/enrich-cli/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS runs (
	id                    TEXT PRIMARY KEY,
	session_id            TEXT NOT NULL,
	status                TEXT NOT NULL,
	sample_size           INTEGER NOT NULL,
	processed             INTEGER NOT NULL DEFAULT 0,
	enriched              INTEGER NOT NULL DEFAULT 0,
	failed                INTEGER NOT NULL DEFAULT 0,
	partial_sample        INTEGER NOT NULL DEFAULT 0,
	cancelled             INTEGER NOT NULL DEFAULT 0,
	success_rate          REAL NOT NULL DEFAULT 0,
	average_quality_score REAL NOT NULL DEFAULT 0,
	output_file           TEXT NOT NULL DEFAULT '',
	result                TEXT,
	started_at            DATETIME NOT NULL,
	finished_at           DATETIME NOT NULL
);

CREATE TABLE IF NOT EXISTS run_decisions (
	run_id        TEXT NOT NULL REFERENCES runs(id),
	position      INTEGER NOT NULL,
	identifier    TEXT NOT NULL,
	decision      TEXT NOT NULL,
	search_method TEXT NOT NULL DEFAULT '',
	quality_score INTEGER NOT NULL DEFAULT 0,
	synthetic     INTEGER NOT NULL DEFAULT 0,
	data          TEXT NOT NULL,
	PRIMARY KEY (run_id, position)
);

CREATE INDEX IF NOT EXISTS idx_runs_status ON runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON runs(started_at);
CREATE INDEX IF NOT EXISTS idx_run_decisions_decision ON run_decisions(decision);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveRun(ctx context.Context, res *model.BatchResult) error {
	resultJSON, err := json.Marshal(res)
	if err != nil {
		return eris.Wrap(err, "sqlite: marshal result")
	}
	sum := Summarize(res)

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return eris.Wrap(err, "sqlite: begin tx")
	}
	defer tx.Rollback() //nolint:errcheck

	_, err = tx.ExecContext(ctx,
		`INSERT OR REPLACE INTO runs (id, session_id, status, sample_size, processed, enriched, failed,
			partial_sample, cancelled, success_rate, average_quality_score, output_file, result, started_at, finished_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		sum.ID, sum.SessionID, string(sum.Status), sum.SampleSize, sum.Processed, sum.Enriched, sum.Failed,
		sum.PartialSample, sum.Cancelled, sum.SuccessRate, sum.AverageQualityScore, sum.OutputFile,
		string(resultJSON), sum.StartedAt, sum.FinishedAt,
	)
	if err != nil {
		return eris.Wrapf(err, "sqlite: upsert run %s", res.RunID)
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM run_decisions WHERE run_id = ?`, res.RunID); err != nil {
		return eris.Wrapf(err, "sqlite: clear decisions %s", res.RunID)
	}
	for _, row := range decisionRows(res) {
		if _, err := tx.ExecContext(ctx,
			`INSERT INTO run_decisions (run_id, position, identifier, decision, search_method, quality_score, synthetic, data)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			row...,
		); err != nil {
			return eris.Wrapf(err, "sqlite: insert decision %v", row[1])
		}
	}

	return eris.Wrap(tx.Commit(), "sqlite: commit run")
}

const sqliteRunColumns = `id, session_id, status, sample_size, processed, enriched, failed,
	partial_sample, cancelled, success_rate, average_quality_score, output_file, started_at, finished_at`

func (s *SQLiteStore) GetRun(ctx context.Context, runID string) (*RunSummary, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+sqliteRunColumns+`, result FROM runs WHERE id = ?`,
		runID,
	)

	var resultJSON sql.NullString
	sum, err := scanRun(row, &resultJSON)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: get run %s", runID)
	}
	if resultJSON.Valid && resultJSON.String != "" {
		sum.Result = &model.BatchResult{}
		if err := json.Unmarshal([]byte(resultJSON.String), sum.Result); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal result")
		}
	}
	return sum, nil
}

func (s *SQLiteStore) ListRuns(ctx context.Context, filter RunFilter) ([]RunSummary, error) {
	query := `SELECT ` + sqliteRunColumns + ` FROM runs WHERE 1=1`
	var args []any

	if filter.Status != "" {
		query += ` AND status = ?`
		args = append(args, string(filter.Status))
	}
	query += ` ORDER BY started_at DESC, id LIMIT ? OFFSET ?`
	args = append(args, limitOf(filter), max(filter.Offset, 0))

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: list runs")
	}
	defer rows.Close() //nolint:errcheck

	var runs []RunSummary
	for rows.Next() {
		sum, err := scanRun(rows)
		if err != nil {
			return nil, eris.Wrap(err, "sqlite: scan run")
		}
		runs = append(runs, *sum)
	}
	return runs, eris.Wrap(rows.Err(), "sqlite: list runs iterate")
}

func (s *SQLiteStore) ListDecisions(ctx context.Context, runID string) ([]model.DecisionLog, error) {
	var one int
	err := s.db.QueryRowContext(ctx, `SELECT 1 FROM runs WHERE id = ?`, runID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, eris.Wrapf(ErrNotFound, "sqlite: run %s", runID)
	}
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: check run %s", runID)
	}

	rows, err := s.db.QueryContext(ctx,
		`SELECT data FROM run_decisions WHERE run_id = ? ORDER BY position`, runID)
	if err != nil {
		return nil, eris.Wrapf(err, "sqlite: list decisions %s", runID)
	}
	defer rows.Close() //nolint:errcheck

	var out []model.DecisionLog
	for rows.Next() {
		var data string
		if err := rows.Scan(&data); err != nil {
			return nil, eris.Wrap(err, "sqlite: scan decision")
		}
		var d model.DecisionLog
		if err := json.Unmarshal([]byte(data), &d); err != nil {
			return nil, eris.Wrap(err, "sqlite: unmarshal decision")
		}
		out = append(out, d)
	}
	return out, eris.Wrap(rows.Err(), "sqlite: list decisions iterate")
}
