package domain

import "time"

// Schedule describes when an automation fires. Exactly one of RRule or Cron
// is set; RRule is an iCalendar recurrence rule, Cron a standard 5-field
// cron expression. Timezone is an IANA zone name; empty means UTC.
type Schedule struct {
	RRule    string `yaml:"rrule,omitempty" json:"rrule,omitempty"`
	Cron     string `yaml:"cron,omitempty" json:"cron,omitempty"`
	Timezone string `yaml:"timezone,omitempty" json:"timezone,omitempty"`
}

// ExecutionPolicy controls how a single automation run executes
type ExecutionPolicy struct {
	Model              string           `yaml:"model,omitempty" json:"model,omitempty"` // "providerID/modelID"
	Effort             string           `yaml:"effort,omitempty" json:"effort,omitempty"`
	TimeoutSeconds     int              `yaml:"timeout,omitempty" json:"timeout,omitempty"`
	Retries            int              `yaml:"retries,omitempty" json:"retries,omitempty"`
	RetryDelaySeconds  int              `yaml:"retry_delay,omitempty" json:"retryDelay,omitempty"`
	ParallelWorkspaces bool             `yaml:"parallel_workspaces,omitempty" json:"parallelWorkspaces,omitempty"` // advisory; workspaces run sequentially
	ApprovalPolicy     string           `yaml:"approval_policy,omitempty" json:"approvalPolicy,omitempty"`
	UseWorktree        bool             `yaml:"use_worktree,omitempty" json:"useWorktree,omitempty"`
	PermissionPreset   PermissionPreset `yaml:"permission_preset,omitempty" json:"permissionPreset,omitempty"`
}

const (
	// DefaultTimeoutSeconds bounds a run when the policy leaves timeout unset
	DefaultTimeoutSeconds = 1800
)

// Timeout returns the overall run timeout as a duration
func (p ExecutionPolicy) Timeout() time.Duration {
	secs := p.TimeoutSeconds
	if secs <= 0 {
		secs = DefaultTimeoutSeconds
	}
	return time.Duration(secs) * time.Second
}

// RetryDelay returns the fixed inter-attempt delay
func (p ExecutionPolicy) RetryDelay() time.Duration {
	if p.RetryDelaySeconds <= 0 {
		return 0
	}
	return time.Duration(p.RetryDelaySeconds) * time.Second
}

// MaxAttempts returns the total attempt budget: 1 plus the retry count,
// never less than 1
func (p ExecutionPolicy) MaxAttempts() int {
	if p.Retries < 0 {
		return 1
	}
	return p.Retries + 1
}

// Automation is the configured unit of recurring unattended work
type Automation struct {
	ID         string
	Name       string
	Prompt     string
	Status     AutomationStatus
	Schedule   Schedule
	Workspaces []string
	Policy     ExecutionPolicy
	CreatedAt  time.Time
	UpdatedAt  time.Time
}

// Timing is the scheduler-owned bookkeeping persisted alongside an automation.
// It is written only by the orchestrator; NextRunAt mirrors the scheduler's
// live computed value (nil when no timer is armed).
type Timing struct {
	AutomationID        string
	NextRunAt           *time.Time
	LastRunAt           *time.Time
	RunCount            int
	ConsecutiveFailures int
}
