// Package scheduler owns one in-memory timer per active automation and
// re-arms it after every fire.
package scheduler

import (
	"log"
	"sync"
	"time"

	"github.com/agentdeck/autopilot/internal/domain"
	"github.com/agentdeck/autopilot/internal/recurrence"
)

// FireFunc is the caller-supplied callback invoked when an automation's
// timer fires. It runs on the timer goroutine; the scheduler re-arms the
// next occurrence only after it returns.
type FireFunc func(id string)

// RearmFunc is invoked after a fire has completed and the next timer (if
// any) has been armed. next is nil when the schedule has no future
// occurrence. The orchestrator uses this to persist nextRunAt so the stored
// value always matches the live timer.
type RearmFunc func(id string, next *time.Time)

type task struct {
	id         string
	schedule   domain.Schedule
	callback   FireFunc
	generation uint64
	timer      *time.Timer
	nextRun    *time.Time
	paused     bool
	running    bool
}

// Scheduler maps automation ids to single-shot timers. A timer exists for an
// id if and only if the automation is active; pause cancels the timer but
// keeps the entry.
type Scheduler struct {
	engine *recurrence.Engine
	now    func() time.Time

	mu      sync.Mutex
	tasks   map[string]*task
	nextGen uint64
	onRearm RearmFunc
	stopped bool
}

// New creates a scheduler backed by the given recurrence engine
func New(engine *recurrence.Engine) *Scheduler {
	return &Scheduler{
		engine: engine,
		now:    time.Now,
		tasks:  make(map[string]*task),
	}
}

// SetOnRearm sets the hook invoked after each fire's re-arm step
func (s *Scheduler) SetOnRearm(fn RearmFunc) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.onRearm = fn
}

// Add registers (or replaces) the task for id and arms a timer for its next
// occurrence. Returns the computed next fire time, or nil when the schedule
// has no future occurrence or fails to parse; in both cases the task stays
// registered but un-armed rather than failing the operation.
func (s *Scheduler) Add(id string, schedule domain.Schedule, callback FireFunc) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.tasks[id]; ok && existing.timer != nil {
		existing.timer.Stop()
	}

	// Generations are global across the scheduler so a stale timer can never
	// collide with a later registration of the same id.
	s.nextGen++
	generation := s.nextGen

	t := &task{
		id:         id,
		schedule:   schedule,
		callback:   callback,
		generation: generation,
	}
	s.tasks[id] = t
	s.armLocked(t)
	if t.nextRun == nil {
		return nil
	}
	next := *t.nextRun
	return &next
}

// Remove cancels the timer for id, if any, and forgets the task. Unknown ids
// are a no-op.
func (s *Scheduler) Remove(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
	}
	delete(s.tasks, id)
}

// Pause cancels the timer but keeps the task registered; NextRunTime becomes
// nil until Resume
func (s *Scheduler) Pause(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return
	}
	if t.timer != nil {
		t.timer.Stop()
		t.timer = nil
	}
	t.paused = true
	t.nextRun = nil
}

// Resume clears the paused flag and re-arms using the same computation as Add
func (s *Scheduler) Resume(id string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok {
		return nil
	}
	t.paused = false
	s.armLocked(t)
	if t.nextRun == nil {
		return nil
	}
	next := *t.nextRun
	return &next
}

// IsRunning reports whether id's fire callback is currently executing
func (s *Scheduler) IsRunning(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	return ok && t.running
}

// NextRunTime returns the last computed fire time for id, or nil
func (s *Scheduler) NextRunTime(id string) *time.Time {
	s.mu.Lock()
	defer s.mu.Unlock()

	t, ok := s.tasks[id]
	if !ok || t.nextRun == nil {
		return nil
	}
	next := *t.nextRun
	return &next
}

// StopAll cancels every timer; used at process shutdown. The scheduler
// accepts no new fires afterwards.
func (s *Scheduler) StopAll() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.stopped = true
	for _, t := range s.tasks {
		if t.timer != nil {
			t.timer.Stop()
			t.timer = nil
		}
		t.nextRun = nil
	}
}

// Preview returns up to count future occurrences of the schedule with no
// side effects. Malformed input yields an empty slice, never an error.
func (s *Scheduler) Preview(schedule domain.Schedule, count int) []time.Time {
	return s.engine.Preview(schedule, count)
}

// armLocked computes the next occurrence for t and arms a single-shot timer.
// Recurrence failures and exhausted rules leave the task un-armed. Caller
// holds s.mu.
func (s *Scheduler) armLocked(t *task) {
	t.timer = nil
	t.nextRun = nil

	if s.stopped || t.paused {
		return
	}

	now := s.now()
	next, ok, err := s.engine.Next(t.schedule, now)
	if err != nil {
		log.Printf("scheduler: %s: computing next occurrence: %v", t.id, err)
		return
	}
	if !ok {
		return
	}

	// Clamp to zero if the occurrence slipped into the past while computing.
	delay := next.Sub(now)
	if delay < 0 {
		delay = 0
	}

	nextCopy := next
	t.nextRun = &nextCopy

	generation := t.generation
	id := t.id
	t.timer = time.AfterFunc(delay, func() {
		s.fire(id, generation)
	})
}

// fire runs when a timer elapses. The generation check drops stale timers
// whose task was removed-and-readded while the timer was pending; the
// running check drops fires overlapping a still-executing callback. Re-arm
// always happens after the callback, and neither a panic nor a recompute
// failure may break the recurrence chain.
func (s *Scheduler) fire(id string, generation uint64) {
	s.mu.Lock()
	t, ok := s.tasks[id]
	if !ok || t.generation != generation || t.running || t.paused || s.stopped {
		s.mu.Unlock()
		return
	}
	t.running = true
	callback := t.callback
	s.mu.Unlock()

	defer func() {
		if r := recover(); r != nil {
			log.Printf("scheduler: %s: fire callback panicked: %v", id, r)
		}

		s.mu.Lock()
		t, ok := s.tasks[id]
		if !ok || t.generation != generation {
			s.mu.Unlock()
			return
		}
		t.running = false
		s.armLocked(t)
		var next *time.Time
		if t.nextRun != nil {
			n := *t.nextRun
			next = &n
		}
		onRearm := s.onRearm
		s.mu.Unlock()

		if onRearm != nil {
			onRearm(id, next)
		}
	}()

	if callback != nil {
		callback(id)
	}
}
