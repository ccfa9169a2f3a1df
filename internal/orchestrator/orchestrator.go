// Package orchestrator coordinates the scheduler, admission gate, executor
// and persistence: it owns every write to timing and run-history rows.
package orchestrator

import (
	"context"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/executor"
	"github.com/agentdeck/autopilot/internal/gate"
	"github.com/agentdeck/autopilot/internal/notify"
	"github.com/agentdeck/autopilot/internal/registry"
	"github.com/agentdeck/autopilot/internal/runstore"
	"github.com/agentdeck/autopilot/internal/scheduler"
)

// Executor abstracts the run executor so tests can stub attempts
type Executor interface {
	ExecuteRun(ctx context.Context, auto *domain.Automation, workspace string, onSessionCreated func(executor.SessionInfo)) executor.Result
}

// Orchestrator is the top-level coordinator. The scheduler fires into it,
// it fans out over workspaces through the admission gate, and it alone
// persists run rows and timing state (single-writer rule).
type Orchestrator struct {
	registry *registry.Registry
	store    *runstore.Store
	sched    *scheduler.Scheduler
	gate     *gate.Gate
	exec     Executor
	hub      *notify.Hub
	notifier notify.Notifier

	now   func() time.Time
	sleep func(time.Duration)

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// New wires an orchestrator. notifier may be nil; the hub must not be.
func New(reg *registry.Registry, store *runstore.Store, sched *scheduler.Scheduler, g *gate.Gate, exec Executor, hub *notify.Hub, notifier notify.Notifier) *Orchestrator {
	if notifier == nil {
		notifier = notify.NoopNotifier{}
	}
	o := &Orchestrator{
		registry: reg,
		store:    store,
		sched:    sched,
		gate:     g,
		exec:     exec,
		hub:      hub,
		notifier: notifier,
		now:      time.Now,
		sleep:    time.Sleep,
	}
	o.ctx, o.cancel = context.WithCancel(context.Background())

	// Keep the persisted nextRunAt mirror consistent with the live timer
	// after every re-arm.
	sched.SetOnRearm(func(id string, next *time.Time) {
		if err := store.SetNextRun(id, next); err != nil {
			log.Printf("orchestrator: %s: persisting next run: %v", id, err)
		}
		hub.Changed()
	})
	return o
}

// Start arms timers for every active automation in the registry
func (o *Orchestrator) Start() error {
	autos, err := o.registry.List()
	if err != nil {
		return fmt.Errorf("listing automations: %w", err)
	}
	for _, auto := range autos {
		o.syncTimer(auto)
	}
	return nil
}

// Stop cancels timers and waits for in-flight manual fires
func (o *Orchestrator) Stop() {
	o.sched.StopAll()
	o.cancel()
	o.wg.Wait()
}

// syncTimer reconciles one automation's timer with its current status
func (o *Orchestrator) syncTimer(auto *domain.Automation) {
	switch auto.Status {
	case domain.AutomationActive:
		next := o.sched.Add(auto.ID, auto.Schedule, o.fireScheduled)
		if err := o.store.SetNextRun(auto.ID, next); err != nil {
			log.Printf("orchestrator: %s: persisting next run: %v", auto.ID, err)
		}
	default:
		o.sched.Remove(auto.ID)
		if err := o.store.SetNextRun(auto.ID, nil); err != nil {
			log.Printf("orchestrator: %s: clearing next run: %v", auto.ID, err)
		}
	}
	o.hub.Changed()
}

func (o *Orchestrator) fireScheduled(id string) {
	o.fire(id, false)
}

// fire runs one automation invocation end to end. manual fires bypass the
// active-status check so paused automations can still run on demand.
func (o *Orchestrator) fire(id string, manual bool) {
	// Always re-read config: it may have changed since the timer was armed.
	auto, err := o.registry.Get(id)
	if err != nil {
		log.Printf("orchestrator: %s: reading config: %v", id, err)
		return
	}
	if !manual && auto.Status != domain.AutomationActive {
		log.Printf("orchestrator: %s: skipping scheduled fire, status %s", id, auto.Status)
		return
	}

	release, err := o.gate.Acquire(o.ctx)
	if err != nil {
		log.Printf("orchestrator: %s: acquiring admission permit: %v", id, err)
		return
	}
	defer release()

	workspaces := auto.Workspaces
	if len(workspaces) == 0 {
		// Run once with no workspace context.
		workspaces = []string{""}
	}

	anyFailed := false
	for _, ws := range workspaces {
		if o.runWorkspace(auto, ws) {
			anyFailed = true
		}
	}

	o.recordFire(id, anyFailed)
}

// recordFire updates the automation's timing counters after a full fan-out
func (o *Orchestrator) recordFire(id string, failed bool) {
	timing, err := o.store.GetTiming(id)
	if err != nil {
		log.Printf("orchestrator: %s: reading timing: %v", id, err)
		timing = &domain.Timing{AutomationID: id}
	}
	timing.RunCount++
	if failed {
		timing.ConsecutiveFailures++
	} else {
		timing.ConsecutiveFailures = 0
	}
	now := o.now()
	timing.LastRunAt = &now
	timing.NextRunAt = o.sched.NextRunTime(id)

	if err := o.store.UpsertTiming(timing); err != nil {
		log.Printf("orchestrator: %s: persisting timing: %v", id, err)
	}
	o.hub.Changed()
}

// runWorkspace creates the run row for one (automation, workspace) pair and
// drives the retry loop. Reports whether the run ended failed. Nothing may
// escape this function: a panic here becomes a failed run, and the next
// workspace still executes.
func (o *Orchestrator) runWorkspace(auto *domain.Automation, workspace string) (failed bool) {
	started := o.now()
	run := &domain.Run{
		ID:           uuid.NewString(),
		AutomationID: auto.ID,
		Workspace:    workspace,
		Status:       domain.RunRunning,
		Attempt:      1,
		StartedAt:    started,
		TimeoutAt:    started.Add(auto.Policy.Timeout()),
	}

	defer func() {
		if r := recover(); r != nil {
			run.Status = domain.RunFailed
			run.ErrorMessage = fmt.Sprintf("unexpected failure: %v", r)
			run.MarkCompleted(o.now())
			o.persistRun(run)
			failed = true
		}
	}()

	if err := o.store.InsertRun(run); err != nil {
		log.Printf("orchestrator: %s: inserting run: %v", auto.ID, err)
		return true
	}
	o.hub.Changed()

	// Retries mutate the same row; the last attempt's result wins outright,
	// partial text from earlier attempts is not merged.
	maxAttempts := auto.Policy.MaxAttempts()
	var res executor.Result
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if attempt > 1 {
			run.Attempt = attempt
			o.persistRun(run)
			o.sleep(auto.Policy.RetryDelay())
		}

		res = o.exec.ExecuteRun(o.ctx, auto, workspace, func(info executor.SessionInfo) {
			run.SessionID = info.SessionID
			run.WorktreePath = info.WorktreePath
			o.persistRun(run)
		})
		if res.Error == "" {
			break
		}
		if attempt < maxAttempts {
			log.Printf("orchestrator: %s: attempt %d/%d failed: %s", auto.ID, attempt, maxAttempts, res.Error)
		}
	}

	o.classify(run, res)
	run.MarkCompleted(o.now())
	o.persistRun(run)

	if run.Status == domain.RunFailed {
		o.alertFailure(auto, run)
		return true
	}
	return false
}

// classify maps the final attempt's result onto the run's terminal status
func (o *Orchestrator) classify(run *domain.Run, res executor.Result) {
	if res.SessionID != "" {
		run.SessionID = res.SessionID
	}
	if res.WorktreePath != "" {
		run.WorktreePath = res.WorktreePath
	}

	switch {
	case res.Error != "":
		run.Status = domain.RunFailed
		run.ErrorMessage = res.Error
		run.ResultSummary = res.Summary
		run.ResultHasActionable = true

	case !res.HasActionable:
		// The agent reported nothing for a human to act on.
		run.Status = domain.RunArchived
		run.ArchivedReason = domain.ArchivedAuto
		run.ArchivedAssistantMessage = res.Summary
		run.ResultTitle = res.Title
		run.ResultSummary = res.Summary
		run.ResultBranch = res.Branch

	default:
		run.Status = domain.RunPendingReview
		run.ResultTitle = res.Title
		run.ResultSummary = res.Summary
		run.ResultHasActionable = true
		run.ResultBranch = res.Branch
	}
}

func (o *Orchestrator) persistRun(run *domain.Run) {
	if err := o.store.UpdateRun(run); err != nil {
		log.Printf("orchestrator: %s: persisting run %s: %v", run.AutomationID, run.ID, err)
	}
	o.hub.Changed()
}

func (o *Orchestrator) alertFailure(auto *domain.Automation, run *domain.Run) {
	err := o.notifier.Send(notify.Notification{
		Title:        fmt.Sprintf("Automation failed: %s", auto.Name),
		Message:      run.ErrorMessage,
		Type:         notify.NotifyError,
		AutomationID: auto.ID,
		RunID:        run.ID,
	})
	if err != nil {
		log.Printf("orchestrator: %s: sending failure alert: %v", auto.ID, err)
	}
}

// RunNow triggers an automation immediately, bypassing the paused check.
// It reports whether the trigger was accepted; execution proceeds in the
// background and failures surface only through run history.
func (o *Orchestrator) RunNow(id string) bool {
	if _, err := o.registry.Get(id); err != nil {
		return false
	}
	o.wg.Add(1)
	go func() {
		defer o.wg.Done()
		o.fire(id, true)
	}()
	return true
}

// AcceptRun resolves a reviewed (or failed, as a manual override) run
func (o *Orchestrator) AcceptRun(runID string) error {
	return o.resolveRun(runID, domain.RunAccepted, "")
}

// ArchiveRun archives a pending-review run by human decision
func (o *Orchestrator) ArchiveRun(runID string) error {
	return o.resolveRun(runID, domain.RunArchived, domain.ArchivedManual)
}

func (o *Orchestrator) resolveRun(runID string, to domain.RunStatus, reason domain.ArchivedReason) error {
	run, err := o.store.GetRun(runID)
	if err != nil {
		return err
	}
	if !run.Status.CanTransitionTo(to) {
		return fmt.Errorf("run %s: cannot move from %s to %s", runID, run.Status, to)
	}
	run.Status = to
	if reason != "" {
		run.ArchivedReason = reason
	}
	o.persistRun(run)
	return nil
}

// MarkRunRead stamps a run as viewed by a human
func (o *Orchestrator) MarkRunRead(runID string) error {
	if err := o.store.MarkRunRead(runID, o.now()); err != nil {
		return err
	}
	o.hub.Changed()
	return nil
}

// CreateAutomation persists a new automation and arms its timer
func (o *Orchestrator) CreateAutomation(auto *domain.Automation) error {
	if err := o.registry.Create(auto); err != nil {
		return err
	}
	o.syncTimer(auto)
	return nil
}

// UpdateAutomation rewrites an automation's config and re-arms its timer
// from the fresh schedule
func (o *Orchestrator) UpdateAutomation(auto *domain.Automation) error {
	if err := o.registry.Update(auto); err != nil {
		return err
	}
	o.syncTimer(auto)
	return nil
}

// DeleteAutomation removes the config, its timer, and cascades over run
// history
func (o *Orchestrator) DeleteAutomation(id string) error {
	if err := o.registry.Delete(id); err != nil {
		return err
	}
	o.sched.Remove(id)
	if err := o.store.DeleteAutomation(id); err != nil {
		return err
	}
	o.hub.Changed()
	return nil
}

// PauseAutomation stops scheduled fires; manual triggers keep working
func (o *Orchestrator) PauseAutomation(id string) error {
	if err := o.registry.SetStatus(id, domain.AutomationPaused); err != nil {
		return err
	}
	o.sched.Pause(id)
	if err := o.store.SetNextRun(id, nil); err != nil {
		return err
	}
	o.hub.Changed()
	return nil
}

// ResumeAutomation reactivates an automation and re-arms its timer
func (o *Orchestrator) ResumeAutomation(id string) error {
	if err := o.registry.SetStatus(id, domain.AutomationActive); err != nil {
		return err
	}
	auto, err := o.registry.Get(id)
	if err != nil {
		return err
	}
	o.syncTimer(auto)
	return nil
}

// ArchiveAutomation retires an automation; its timer is removed and its run
// history is kept
func (o *Orchestrator) ArchiveAutomation(id string) error {
	if err := o.registry.SetStatus(id, domain.AutomationArchived); err != nil {
		return err
	}
	auto := &domain.Automation{ID: id, Status: domain.AutomationArchived}
	o.syncTimer(auto)
	return nil
}

// SyncChanged reconciles timers for automations whose files changed on disk.
// Called by the registry watcher; a deleted file just disarms the timer, run
// history is kept until an explicit delete.
func (o *Orchestrator) SyncChanged(ids []string) {
	for _, id := range ids {
		auto, err := o.registry.Get(id)
		if err != nil {
			o.sched.Remove(id)
			if err := o.store.SetNextRun(id, nil); err != nil {
				log.Printf("orchestrator: %s: clearing next run: %v", id, err)
			}
			o.hub.Changed()
			continue
		}
		o.syncTimer(auto)
	}
}
