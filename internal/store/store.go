// Package store persists RunRecords to a single SQLite file, the durable
// mirror the Run Manager reads back at startup for orphan reconciliation.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"

	"github.com/oriys/scriptd/internal/runner"
)

// Store wraps a single-file sqlite database holding the runs table.
type Store struct {
	db *sql.DB
}

// Open creates (or reuses) the database at path, applying the runs table
// migration. A single open connection is used so that the driver serializes
// writes; concurrent readers under WAL mode remain unblocked.
func Open(path string) (*Store, error) {
	if path == "" {
		return nil, fmt.Errorf("db path required")
	}
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, err
	}
	db.SetMaxOpenConns(1)
	db.SetConnMaxLifetime(5 * time.Minute)

	s := &Store{db: db}
	if err := s.migrate(context.Background()); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *Store) migrate(ctx context.Context) error {
	stmts := []string{
		`PRAGMA journal_mode=WAL;`,
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			script TEXT NOT NULL,
			argv TEXT NOT NULL,
			status TEXT NOT NULL,
			pid INTEGER,
			return_code INTEGER,
			created_at TEXT NOT NULL,
			started_at TEXT,
			finished_at TEXT,
			stdout_path TEXT,
			stderr_path TEXT,
			error TEXT
		);`,
	}
	for _, stmt := range stmts {
		if _, err := s.db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}

// Upsert persists r with INSERT OR REPLACE semantics, keyed on run_id.
func (s *Store) Upsert(ctx context.Context, r *runner.RunRecord) error {
	argvJSON, err := json.Marshal(r.Argv)
	if err != nil {
		return err
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT OR REPLACE INTO runs
			(run_id, script, argv, status, pid, return_code, created_at, started_at, finished_at, stdout_path, stderr_path, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		r.RunID,
		r.Script,
		string(argvJSON),
		string(r.Status),
		nullableInt(r.PID),
		nullableInt(r.ReturnCode),
		formatTime(&r.CreatedAt),
		formatTime(r.StartedAt),
		formatTime(r.FinishedAt),
		r.StdoutPath,
		r.StderrPath,
		nullableString(r.Error),
	)
	return err
}

// LoadAll reads every row from the runs table, reconstructing RunRecords for
// the Run Manager's startup reconciliation pass. Order is unspecified.
func (s *Store) LoadAll(ctx context.Context) ([]*runner.RunRecord, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT run_id, script, argv, status, pid, return_code, created_at, started_at, finished_at, stdout_path, stderr_path, error
		FROM runs
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*runner.RunRecord
	for rows.Next() {
		r, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanRun(row scanner) (*runner.RunRecord, error) {
	var (
		r               runner.RunRecord
		argvJSON        string
		status          string
		pid, returnCode sql.NullInt64
		createdAt       string
		startedAt       sql.NullString
		finishedAt      sql.NullString
		errStr          sql.NullString
	)

	if err := row.Scan(&r.RunID, &r.Script, &argvJSON, &status, &pid, &returnCode,
		&createdAt, &startedAt, &finishedAt, &r.StdoutPath, &r.StderrPath, &errStr); err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(argvJSON), &r.Argv); err != nil {
		return nil, fmt.Errorf("decode argv for run %s: %w", r.RunID, err)
	}
	r.Status = runner.Status(status)

	if pid.Valid {
		v := int(pid.Int64)
		r.PID = &v
	}
	if returnCode.Valid {
		v := int(returnCode.Int64)
		r.ReturnCode = &v
	}
	if t, err := parseTime(createdAt); err == nil {
		r.CreatedAt = t
	}
	if startedAt.Valid {
		if t, err := parseTime(startedAt.String); err == nil {
			r.StartedAt = &t
		}
	}
	if finishedAt.Valid {
		if t, err := parseTime(finishedAt.String); err == nil {
			r.FinishedAt = &t
		}
	}
	if errStr.Valid {
		v := errStr.String
		r.Error = &v
	}

	return &r, nil
}

func nullableInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullableString(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

func formatTime(t *time.Time) any {
	if t == nil || t.IsZero() {
		return nil
	}
	return t.UTC().Format(time.RFC3339Nano)
}

func parseTime(s string) (time.Time, error) {
	return time.Parse(time.RFC3339Nano, s)
}
