// Package audit keeps a local journal of backup subsystem activity: run
// outcomes and every retention decision, including objects skipped because
// their names carry no parseable timestamp. Journaling is best-effort by
// policy; a journal failure never fails the operation being recorded.
package audit

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	_ "modernc.org/sqlite"
)

// RunKind distinguishes journal entries for backups and restores.
type RunKind string

const (
	// RunBackup marks a backup run.
	RunBackup RunKind = "backup"
	// RunRestore marks a restore run.
	RunRestore RunKind = "restore"
)

// SweepDecision is the outcome recorded for one remote object during a
// retention sweep.
type SweepDecision string

const (
	// DecisionDeleted means the object was older than the cutoff and removed.
	DecisionDeleted SweepDecision = "deleted"
	// DecisionRetained means the object was within the retention window.
	DecisionRetained SweepDecision = "retained"
	// DecisionSkippedUnparseable means the object name carried no parseable
	// timestamp and was left alone.
	DecisionSkippedUnparseable SweepDecision = "skipped_unparseable"
	// DecisionDeleteFailed means deletion was attempted and failed.
	DecisionDeleteFailed SweepDecision = "delete_failed"
)

// Run describes one completed backup or restore run.
type Run struct {
	ID       string
	Kind     RunKind
	Archive  string
	Started  time.Time
	Finished time.Time
	Success  bool
	Warnings int
	Error    string
}

// Journal records activity to a local sqlite database. A nil *Journal is a
// valid disabled journal: every method is a no-op.
type Journal struct {
	db     *sql.DB
	logger zerolog.Logger
}

// Open creates or opens the journal database at path. An empty path
// returns a disabled (nil) journal.
func Open(path string, logger zerolog.Logger) (*Journal, error) {
	if path == "" {
		return nil, nil
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o700); err != nil {
		return nil, fmt.Errorf("create journal directory: %w", err)
	}

	db, err := sql.Open("sqlite", path+"?_journal_mode=WAL&_busy_timeout=5000")
	if err != nil {
		return nil, fmt.Errorf("open journal database: %w", err)
	}

	j := &Journal{
		db:     db,
		logger: logger.With().Str("component", "audit").Logger(),
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate journal database: %w", err)
	}
	return j, nil
}

func (j *Journal) migrate() error {
	schema := `
		CREATE TABLE IF NOT EXISTS runs (
			id TEXT PRIMARY KEY,
			kind TEXT NOT NULL,
			archive TEXT,
			started_at TEXT NOT NULL,
			finished_at TEXT NOT NULL,
			success INTEGER NOT NULL,
			warnings INTEGER NOT NULL DEFAULT 0,
			error TEXT
		);

		CREATE TABLE IF NOT EXISTS sweep_decisions (
			id INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			object_name TEXT NOT NULL,
			decision TEXT NOT NULL,
			detail TEXT,
			decided_at TEXT NOT NULL DEFAULT (datetime('now'))
		);

		CREATE INDEX IF NOT EXISTS idx_sweep_decisions_run ON sweep_decisions(run_id);
		CREATE INDEX IF NOT EXISTS idx_sweep_decisions_decision ON sweep_decisions(decision);
	`
	_, err := j.db.Exec(schema)
	return err
}

// Close releases the database handle.
func (j *Journal) Close() error {
	if j == nil {
		return nil
	}
	return j.db.Close()
}

// RecordRun journals a completed run. Failures are logged and swallowed.
func (j *Journal) RecordRun(ctx context.Context, run Run) {
	if j == nil {
		return
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO runs (id, kind, archive, started_at, finished_at, success, warnings, error)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		run.ID, string(run.Kind), run.Archive,
		run.Started.UTC().Format(time.RFC3339), run.Finished.UTC().Format(time.RFC3339),
		boolToInt(run.Success), run.Warnings, run.Error,
	)
	if err != nil {
		j.logger.Warn().Err(err).Str("run_id", run.ID).Msg("failed to journal run")
	}
}

// RecordSweepDecision journals one retention decision. Failures are logged
// and swallowed.
func (j *Journal) RecordSweepDecision(ctx context.Context, runID, objectName string, decision SweepDecision, detail string) {
	if j == nil {
		return
	}
	_, err := j.db.ExecContext(ctx, `
		INSERT INTO sweep_decisions (run_id, object_name, decision, detail)
		VALUES (?, ?, ?, ?)`,
		runID, objectName, string(decision), detail,
	)
	if err != nil {
		j.logger.Warn().Err(err).Str("object", objectName).Msg("failed to journal sweep decision")
	}
}

// SweepDecisions returns the journaled decisions for a run, oldest first.
func (j *Journal) SweepDecisions(ctx context.Context, runID string) ([]SweepRecord, error) {
	if j == nil {
		return nil, nil
	}
	rows, err := j.db.QueryContext(ctx, `
		SELECT object_name, decision, COALESCE(detail, '')
		FROM sweep_decisions WHERE run_id = ? ORDER BY id`, runID)
	if err != nil {
		return nil, fmt.Errorf("query sweep decisions: %w", err)
	}
	defer rows.Close()

	var records []SweepRecord
	for rows.Next() {
		var r SweepRecord
		var decision string
		if err := rows.Scan(&r.ObjectName, &decision, &r.Detail); err != nil {
			return nil, fmt.Errorf("scan sweep decision: %w", err)
		}
		r.Decision = SweepDecision(decision)
		records = append(records, r)
	}
	return records, rows.Err()
}

// SweepRecord is one journaled retention decision.
type SweepRecord struct {
	ObjectName string
	Decision   SweepDecision
	Detail     string
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
