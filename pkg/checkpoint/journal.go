// Package checkpoint keeps a durable SQLite journal of every state document
// emitted during sync runs, so a run can resume without an external state file.
package checkpoint

import (
	"context"
	"database/sql"
	stderrors "errors"
	"os"
	"path/filepath"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"go.uber.org/zap"
	_ "modernc.org/sqlite"

	"github.com/ajitpratap0/crmtap/pkg/errors"
	"github.com/ajitpratap0/crmtap/pkg/state"
)

// Run status values
const (
	StatusRunning   = "running"
	StatusSucceeded = "succeeded"
	StatusFailed    = "failed"
)

// Journal appends state snapshots to a SQLite database.
type Journal struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

// NewRunID returns a fresh run identifier.
func NewRunID() string {
	return uuid.NewString()
}

// Open opens or creates the journal at path.
func Open(path string, logger *zap.Logger) (*Journal, error) {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to create checkpoint directory")
		}
	}

	db, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)")
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeFile, "failed to open checkpoint journal").
			WithDetail("path", path)
	}
	// single writer
	db.SetMaxOpenConns(1)

	j := &Journal{
		db:     db,
		logger: logger.With(zap.String("component", "checkpoint")),
		now:    time.Now,
	}
	if err := j.migrate(); err != nil {
		db.Close()
		return nil, err
	}
	return j, nil
}

func (j *Journal) migrate() error {
	migrations := []string{
		`CREATE TABLE IF NOT EXISTS runs (
			run_id TEXT PRIMARY KEY,
			started_at TEXT NOT NULL,
			finished_at TEXT,
			status TEXT NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS checkpoints (
			seq INTEGER PRIMARY KEY AUTOINCREMENT,
			run_id TEXT NOT NULL,
			created_at TEXT NOT NULL,
			state_json TEXT NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS idx_checkpoints_run ON checkpoints(run_id)`,
	}
	for _, m := range migrations {
		if _, err := j.db.Exec(m); err != nil {
			return errors.Wrap(err, errors.ErrorTypeFile, "failed to migrate checkpoint journal")
		}
	}
	return nil
}

// StartRun registers a run as running.
func (j *Journal) StartRun(ctx context.Context, runID string) error {
	_, err := j.db.ExecContext(ctx,
		`INSERT INTO runs (run_id, started_at, status) VALUES (?, ?, ?)`,
		runID, j.timestamp(), StatusRunning)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to start run").WithDetail("run_id", runID)
	}
	return nil
}

// FinishRun records the outcome of a run.
func (j *Journal) FinishRun(ctx context.Context, runID, status string) error {
	_, err := j.db.ExecContext(ctx,
		`UPDATE runs SET finished_at = ?, status = ? WHERE run_id = ?`,
		j.timestamp(), status, runID)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to finish run").WithDetail("run_id", runID)
	}
	return nil
}

// Record appends a snapshot of s for runID.
func (j *Journal) Record(ctx context.Context, runID string, s *state.State) error {
	data, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeData, "failed to encode state")
	}
	_, err = j.db.ExecContext(ctx,
		`INSERT INTO checkpoints (run_id, created_at, state_json) VALUES (?, ?, ?)`,
		runID, j.timestamp(), string(data))
	if err != nil {
		return errors.Wrap(err, errors.ErrorTypeFile, "failed to record checkpoint").WithDetail("run_id", runID)
	}
	return nil
}

// Latest returns the most recently recorded state across all runs. ok is
// false when the journal is empty.
func (j *Journal) Latest(ctx context.Context) (s *state.State, runID string, ok bool, err error) {
	var raw string
	row := j.db.QueryRowContext(ctx,
		`SELECT run_id, state_json FROM checkpoints ORDER BY seq DESC LIMIT 1`)
	if err := row.Scan(&runID, &raw); err != nil {
		if stderrors.Is(err, sql.ErrNoRows) {
			return nil, "", false, nil
		}
		return nil, "", false, errors.Wrap(err, errors.ErrorTypeFile, "failed to read checkpoint")
	}

	s = state.New()
	if err := json.Unmarshal([]byte(raw), s); err != nil {
		return nil, "", false, errors.Wrap(err, errors.ErrorTypeData, "failed to decode checkpoint").
			WithDetail("run_id", runID)
	}
	if s.Bookmarks == nil {
		s.Bookmarks = state.Bookmarks{}
	}
	return s, runID, true, nil
}

// Count returns the number of checkpoints recorded for runID.
func (j *Journal) Count(ctx context.Context, runID string) (int, error) {
	var n int
	err := j.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM checkpoints WHERE run_id = ?`, runID).Scan(&n)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeFile, "failed to count checkpoints")
	}
	return n, nil
}

// RunStatus returns the recorded status of runID.
func (j *Journal) RunStatus(ctx context.Context, runID string) (string, error) {
	var status string
	err := j.db.QueryRowContext(ctx, `SELECT status FROM runs WHERE run_id = ?`, runID).Scan(&status)
	if err != nil {
		return "", errors.Wrap(err, errors.ErrorTypeFile, "failed to read run status").WithDetail("run_id", runID)
	}
	return status, nil
}

// Close closes the database connection.
func (j *Journal) Close() error {
	return j.db.Close()
}

func (j *Journal) timestamp() string {
	return j.now().UTC().Format(time.RFC3339Nano)
}
