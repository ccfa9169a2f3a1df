package runstore

const schema = `
CREATE TABLE IF NOT EXISTS automation_timing (
    automation_id TEXT PRIMARY KEY,
    next_run_at TIMESTAMP,
    last_run_at TIMESTAMP,
    run_count INTEGER NOT NULL DEFAULT 0,
    consecutive_failures INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS automation_runs (
    id TEXT PRIMARY KEY,
    automation_id TEXT NOT NULL,
    workspace TEXT NOT NULL,
    status TEXT NOT NULL,
    attempt INTEGER NOT NULL DEFAULT 1,
    session_id TEXT,
    worktree_path TEXT,
    started_at TIMESTAMP NOT NULL,
    completed_at TIMESTAMP,
    timeout_at TIMESTAMP,
    result_title TEXT,
    result_summary TEXT,
    result_has_actionable BOOLEAN DEFAULT FALSE,
    result_branch TEXT,
    result_pr_url TEXT,
    error_message TEXT,
    archived_reason TEXT,
    archived_assistant_message TEXT,
    read_at TIMESTAMP
);

CREATE INDEX IF NOT EXISTS idx_runs_automation_id ON automation_runs(automation_id);
CREATE INDEX IF NOT EXISTS idx_runs_status ON automation_runs(status);
CREATE INDEX IF NOT EXISTS idx_runs_started_at ON automation_runs(started_at);
`
