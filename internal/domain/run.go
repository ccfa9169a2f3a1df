package domain

import "time"

// Run represents one (automation, workspace, invocation). A run row is
// created when the workspace iteration starts and mutated in place through
// the state machine; retries bump Attempt on the same row rather than
// creating new rows.
type Run struct {
	ID           string
	AutomationID string
	Workspace    string
	Status       RunStatus
	Attempt      int // 1-based

	// Populated as soon as known, possibly before the run completes, so
	// observers can show live progress.
	SessionID    string
	WorktreePath string

	StartedAt   time.Time
	CompletedAt *time.Time
	TimeoutAt   time.Time // StartedAt + policy timeout, set once at run start

	// Result fields, populated only on non-failed completion
	ResultTitle         string
	ResultSummary       string
	ResultHasActionable bool
	ResultBranch        string
	ResultPRURL         string

	ErrorMessage string // populated only on failure

	ArchivedReason           ArchivedReason
	ArchivedAssistantMessage string

	ReadAt *time.Time // set when a human views the run, independent of status
}

// MarkCompleted stamps the completion time if not already set
func (r *Run) MarkCompleted(at time.Time) {
	if r.CompletedAt == nil {
		t := at
		r.CompletedAt = &t
	}
}
