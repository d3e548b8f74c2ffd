package runlog

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite"
)

// Outcome is the terminal state a run reached.
type Outcome string

const (
	OutcomeDone           Outcome = "done"
	OutcomeDryRun         Outcome = "dry-run"
	OutcomeCancelled      Outcome = "cancelled"
	OutcomeNoCandidates   Outcome = "no-candidates"
	OutcomePartialFailure Outcome = "partial-failure"
	OutcomeFailed         Outcome = "failed"
)

// Run is one recorded reconciliation run.
type Run struct {
	ID         int64
	Mode       string
	DryRun     bool
	TestRun    bool
	Candidates int
	Succeeded  int
	Failed     int
	Outcome    Outcome
	AuditFile  string
	StartedAt  time.Time
	FinishedAt time.Time
}

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    id          INTEGER PRIMARY KEY AUTOINCREMENT,
    mode        TEXT NOT NULL,
    dry_run     INTEGER NOT NULL DEFAULT 0,
    test_run    INTEGER NOT NULL DEFAULT 0,
    candidates  INTEGER NOT NULL DEFAULT 0,
    succeeded   INTEGER NOT NULL DEFAULT 0,
    failed      INTEGER NOT NULL DEFAULT 0,
    outcome     TEXT NOT NULL,
    audit_file  TEXT,
    started_at  TEXT NOT NULL,
    finished_at TEXT NOT NULL
);`

// Store persists run history backed by SQLite in the audit output directory.
type Store struct {
	db   *sql.DB
	path string
}

// Open initializes or connects to the run-history database.
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("ensure output directory: %w", err)
	}

	dbPath := filepath.Join(dir, "runs.db")
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("open run-history db: %w", err)
	}

	pragmas := []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout = 5000",
	}
	for _, pragma := range pragmas {
		if _, execErr := db.Exec(pragma); execErr != nil {
			_ = db.Close()
			return nil, fmt.Errorf("apply pragma %q: %w", pragma, execErr)
		}
	}

	if _, err := db.Exec(schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("apply run-history schema: %w", err)
	}

	return &Store{db: db, path: dbPath}, nil
}

// Close closes the underlying database connection.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Record inserts one finished run and returns its identifier.
func (s *Store) Record(ctx context.Context, run Run) (int64, error) {
	if run.Mode == "" {
		return 0, errors.New("run mode is required")
	}
	if run.FinishedAt.IsZero() {
		run.FinishedAt = time.Now().UTC()
	}

	res, err := s.db.ExecContext(
		ctx,
		`INSERT INTO runs (
            mode, dry_run, test_run, candidates, succeeded, failed,
            outcome, audit_file, started_at, finished_at
        ) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		run.Mode,
		boolToInt(run.DryRun),
		boolToInt(run.TestRun),
		run.Candidates,
		run.Succeeded,
		run.Failed,
		string(run.Outcome),
		nullableString(run.AuditFile),
		run.StartedAt.UTC().Format(time.RFC3339Nano),
		run.FinishedAt.UTC().Format(time.RFC3339Nano),
	)
	if err != nil {
		return 0, fmt.Errorf("insert run: %w", err)
	}
	return res.LastInsertId()
}

// Recent returns the most recent runs, newest first.
func (s *Store) Recent(ctx context.Context, limit int) ([]Run, error) {
	if limit <= 0 {
		limit = 20
	}
	rows, err := s.db.QueryContext(
		ctx,
		`SELECT id, mode, dry_run, test_run, candidates, succeeded, failed,
                outcome, audit_file, started_at, finished_at
         FROM runs ORDER BY id DESC LIMIT ?`,
		limit,
	)
	if err != nil {
		return nil, fmt.Errorf("query runs: %w", err)
	}
	defer rows.Close()

	var runs []Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

func scanRun(rows *sql.Rows) (Run, error) {
	var (
		run         Run
		dryRun      int
		testRun     int
		outcome     string
		auditFile   sql.NullString
		startedRaw  string
		finishedRaw string
	)
	if err := rows.Scan(
		&run.ID, &run.Mode, &dryRun, &testRun,
		&run.Candidates, &run.Succeeded, &run.Failed,
		&outcome, &auditFile, &startedRaw, &finishedRaw,
	); err != nil {
		return Run{}, fmt.Errorf("scan run: %w", err)
	}
	run.DryRun = dryRun != 0
	run.TestRun = testRun != 0
	run.Outcome = Outcome(outcome)
	run.AuditFile = auditFile.String
	if started, err := time.Parse(time.RFC3339Nano, startedRaw); err == nil {
		run.StartedAt = started
	}
	if finished, err := time.Parse(time.RFC3339Nano, finishedRaw); err == nil {
		run.FinishedAt = finished
	}
	return run, nil
}

func nullableString(value string) any {
	if value == "" {
		return nil
	}
	return value
}

func boolToInt(value bool) int {
	if value {
		return 1
	}
	return 0
}
