package domain

// AutomationStatus represents the lifecycle state of an automation
type AutomationStatus string

const (
	AutomationActive   AutomationStatus = "active"
	AutomationPaused   AutomationStatus = "paused"
	AutomationArchived AutomationStatus = "archived"
)

// RunStatus represents the execution state of an automation run
type RunStatus string

const (
	RunQueued        RunStatus = "queued"
	RunRunning       RunStatus = "running"
	RunPendingReview RunStatus = "pending_review"
	RunAccepted      RunStatus = "accepted"
	RunArchived      RunStatus = "archived"
	RunFailed        RunStatus = "failed"
)

// CanTransitionTo reports whether the run state machine allows moving from s to t.
// Runs are created in "running" (queued exists for rows persisted before the
// workspace loop picks them up), complete into pending_review, archived or
// failed, and are then resolved by a human into accepted or archived.
func (s RunStatus) CanTransitionTo(t RunStatus) bool {
	switch s {
	case RunQueued:
		return t == RunRunning
	case RunRunning:
		return t == RunPendingReview || t == RunArchived || t == RunFailed
	case RunPendingReview:
		return t == RunAccepted || t == RunArchived
	case RunFailed:
		// Manual override: a human may accept a failed run's outcome anyway.
		return t == RunAccepted
	default:
		return false
	}
}

// IsTerminal reports whether no further automatic transitions occur from s.
func (s RunStatus) IsTerminal() bool {
	switch s {
	case RunPendingReview, RunAccepted, RunArchived, RunFailed:
		return true
	}
	return false
}

// ArchivedReason distinguishes agent-initiated archival from a human decision
type ArchivedReason string

const (
	ArchivedAuto   ArchivedReason = "auto"
	ArchivedManual ArchivedReason = "manual"
)

// PermissionPreset selects the capability ruleset applied to a session
type PermissionPreset string

const (
	PresetDefault  PermissionPreset = "default"
	PresetAllowAll PermissionPreset = "allow-all"
	PresetReadOnly PermissionPreset = "read-only"
)
