// Package runstore provides SQLite-backed persistence for run history and
// per-automation scheduler timing.
package runstore

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
	_ "modernc.org/sqlite"
)

// Store provides SQLite-backed run and timing persistence
type Store struct {
	db *sql.DB
}

// New creates a new Store with the given database path
func New(dbPath string) (*Store, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, err
	}

	// A single writer keeps SQLite happy under the orchestrator's
	// mutex-serialized writes.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA foreign_keys = ON"); err != nil {
		return nil, err
	}

	if _, err := db.Exec(schema); err != nil {
		return nil, fmt.Errorf("running migrations: %w", err)
	}

	return &Store{db: db}, nil
}

// Close closes the database connection
func (s *Store) Close() error {
	return s.db.Close()
}

// GetTiming retrieves timing bookkeeping for an automation. An automation
// that has never fired yields a zero-valued Timing, not an error.
func (s *Store) GetTiming(automationID string) (*domain.Timing, error) {
	row := s.db.QueryRow(`
		SELECT automation_id, next_run_at, last_run_at, run_count, consecutive_failures
		FROM automation_timing WHERE automation_id = ?
	`, automationID)

	var t domain.Timing
	var nextRun, lastRun sql.NullTime
	err := row.Scan(&t.AutomationID, &nextRun, &lastRun, &t.RunCount, &t.ConsecutiveFailures)
	if err == sql.ErrNoRows {
		return &domain.Timing{AutomationID: automationID}, nil
	}
	if err != nil {
		return nil, err
	}
	if nextRun.Valid {
		t.NextRunAt = &nextRun.Time
	}
	if lastRun.Valid {
		t.LastRunAt = &lastRun.Time
	}
	return &t, nil
}

// UpsertTiming inserts or replaces an automation's timing row
func (s *Store) UpsertTiming(t *domain.Timing) error {
	_, err := s.db.Exec(`
		INSERT INTO automation_timing (automation_id, next_run_at, last_run_at, run_count, consecutive_failures)
		VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(automation_id) DO UPDATE SET
			next_run_at = excluded.next_run_at,
			last_run_at = excluded.last_run_at,
			run_count = excluded.run_count,
			consecutive_failures = excluded.consecutive_failures
	`,
		t.AutomationID,
		nullTime(t.NextRunAt),
		nullTime(t.LastRunAt),
		t.RunCount,
		t.ConsecutiveFailures,
	)
	return err
}

// SetNextRun updates only the persisted next-fire mirror. nil clears it,
// meaning no timer is armed.
func (s *Store) SetNextRun(automationID string, at *time.Time) error {
	_, err := s.db.Exec(`
		INSERT INTO automation_timing (automation_id, next_run_at) VALUES (?, ?)
		ON CONFLICT(automation_id) DO UPDATE SET next_run_at = excluded.next_run_at
	`, automationID, nullTime(at))
	return err
}

// DeleteAutomation removes an automation's timing row and all of its runs
func (s *Store) DeleteAutomation(automationID string) error {
	tx, err := s.db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	if _, err := tx.Exec(`DELETE FROM automation_runs WHERE automation_id = ?`, automationID); err != nil {
		return err
	}
	if _, err := tx.Exec(`DELETE FROM automation_timing WHERE automation_id = ?`, automationID); err != nil {
		return err
	}
	return tx.Commit()
}

const runColumns = `id, automation_id, workspace, status, attempt, session_id, worktree_path,
	started_at, completed_at, timeout_at,
	result_title, result_summary, result_has_actionable, result_branch, result_pr_url,
	error_message, archived_reason, archived_assistant_message, read_at`

// InsertRun persists a new run row
func (s *Store) InsertRun(run *domain.Run) error {
	_, err := s.db.Exec(`
		INSERT INTO automation_runs (`+runColumns+`)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`,
		run.ID,
		run.AutomationID,
		run.Workspace,
		string(run.Status),
		run.Attempt,
		run.SessionID,
		run.WorktreePath,
		run.StartedAt,
		nullTime(run.CompletedAt),
		run.TimeoutAt,
		run.ResultTitle,
		run.ResultSummary,
		run.ResultHasActionable,
		run.ResultBranch,
		run.ResultPRURL,
		run.ErrorMessage,
		string(run.ArchivedReason),
		run.ArchivedAssistantMessage,
		nullTime(run.ReadAt),
	)
	return err
}

// UpdateRun rewrites every mutable field of an existing run row. Retries
// mutate the same row in place, so this is the workhorse write.
func (s *Store) UpdateRun(run *domain.Run) error {
	res, err := s.db.Exec(`
		UPDATE automation_runs SET
			status = ?, attempt = ?, session_id = ?, worktree_path = ?,
			completed_at = ?, timeout_at = ?,
			result_title = ?, result_summary = ?, result_has_actionable = ?,
			result_branch = ?, result_pr_url = ?,
			error_message = ?, archived_reason = ?, archived_assistant_message = ?,
			read_at = ?
		WHERE id = ?
	`,
		string(run.Status),
		run.Attempt,
		run.SessionID,
		run.WorktreePath,
		nullTime(run.CompletedAt),
		run.TimeoutAt,
		run.ResultTitle,
		run.ResultSummary,
		run.ResultHasActionable,
		run.ResultBranch,
		run.ResultPRURL,
		run.ErrorMessage,
		string(run.ArchivedReason),
		run.ArchivedAssistantMessage,
		nullTime(run.ReadAt),
		run.ID,
	)
	if err != nil {
		return err
	}
	n, err := res.RowsAffected()
	if err == nil && n == 0 {
		return fmt.Errorf("run %s: not found", run.ID)
	}
	return err
}

// MarkRunRead stamps the human-viewed timestamp without touching the rest of
// the row
func (s *Store) MarkRunRead(runID string, at time.Time) error {
	_, err := s.db.Exec(`UPDATE automation_runs SET read_at = ? WHERE id = ?`, at, runID)
	return err
}

// GetRun retrieves a run by ID
func (s *Store) GetRun(runID string) (*domain.Run, error) {
	row := s.db.QueryRow(`SELECT `+runColumns+` FROM automation_runs WHERE id = ?`, runID)
	return scanRun(row)
}

// ListRunOptions specifies filters for listing runs
type ListRunOptions struct {
	AutomationID string
	Workspace    string
	Status       domain.RunStatus
	UnreadOnly   bool
	Limit        int // 0 means DefaultListLimit
}

// DefaultListLimit bounds unqualified run listings
const DefaultListLimit = 50

// ListRuns returns runs matching the given options, newest first
func (s *Store) ListRuns(opts ListRunOptions) ([]*domain.Run, error) {
	query := `SELECT ` + runColumns + ` FROM automation_runs WHERE 1=1`
	var args []interface{}

	if opts.AutomationID != "" {
		query += " AND automation_id = ?"
		args = append(args, opts.AutomationID)
	}
	if opts.Workspace != "" {
		query += " AND workspace = ?"
		args = append(args, opts.Workspace)
	}
	if opts.Status != "" {
		query += " AND status = ?"
		args = append(args, string(opts.Status))
	}
	if opts.UnreadOnly {
		query += " AND read_at IS NULL"
	}

	limit := opts.Limit
	if limit <= 0 {
		limit = DefaultListLimit
	}
	query += " ORDER BY started_at DESC LIMIT ?"
	args = append(args, limit)

	rows, err := s.db.Query(query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var runs []*domain.Run
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, err
		}
		runs = append(runs, run)
	}
	return runs, rows.Err()
}

// CountByStatus returns the number of runs per status, for dashboards
func (s *Store) CountByStatus() (map[domain.RunStatus]int, error) {
	rows, err := s.db.Query(`SELECT status, COUNT(*) FROM automation_runs GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[domain.RunStatus]int)
	for rows.Next() {
		var status string
		var n int
		if err := rows.Scan(&status, &n); err != nil {
			return nil, err
		}
		counts[domain.RunStatus(status)] = n
	}
	return counts, rows.Err()
}

// scanner covers both *sql.Row and *sql.Rows
type scanner interface {
	Scan(dest ...interface{}) error
}

func scanRun(row scanner) (*domain.Run, error) {
	var run domain.Run
	var status, archivedReason string
	var completedAt, readAt sql.NullTime
	var sessionID, worktreePath sql.NullString
	var title, summary, branch, prURL, errMsg, archivedMsg sql.NullString

	err := row.Scan(
		&run.ID, &run.AutomationID, &run.Workspace, &status, &run.Attempt,
		&sessionID, &worktreePath,
		&run.StartedAt, &completedAt, &run.TimeoutAt,
		&title, &summary, &run.ResultHasActionable, &branch, &prURL,
		&errMsg, &archivedReason, &archivedMsg, &readAt,
	)
	if err != nil {
		return nil, err
	}

	run.Status = domain.RunStatus(status)
	run.ArchivedReason = domain.ArchivedReason(archivedReason)
	run.SessionID = sessionID.String
	run.WorktreePath = worktreePath.String
	run.ResultTitle = title.String
	run.ResultSummary = summary.String
	run.ResultBranch = branch.String
	run.ResultPRURL = prURL.String
	run.ErrorMessage = errMsg.String
	run.ArchivedAssistantMessage = archivedMsg.String
	if completedAt.Valid {
		run.CompletedAt = &completedAt.Time
	}
	if readAt.Valid {
		run.ReadAt = &readAt.Time
	}
	return &run, nil
}

func nullTime(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return *t
}
