// Package recurrence computes automation fire times from iCalendar RRULE
// strings or cron expressions. All lookups are strictly-after-exclusive:
// the boundary instant itself is never returned.
package recurrence

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/teambition/rrule-go"

	"github.com/agentdeck/autopilot/internal/domain"
)

// Engine turns a schedule plus a reference instant into the next occurrence
type Engine struct {
	parser cron.Parser
}

// New creates a recurrence engine
func New() *Engine {
	return &Engine{
		parser: cron.NewParser(cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow),
	}
}

// Next returns the first occurrence of the schedule strictly after the given
// instant. ok is false when the schedule has no future occurrence (e.g. a
// COUNT-limited rule confined to the past).
func (e *Engine) Next(s domain.Schedule, after time.Time) (time.Time, bool, error) {
	loc, err := loadLocation(s.Timezone)
	if err != nil {
		return time.Time{}, false, err
	}
	after = after.In(loc)

	switch {
	case s.RRule != "":
		rule, err := parseRRule(s.RRule, loc)
		if err != nil {
			return time.Time{}, false, err
		}
		next := rule.After(after, false)
		if next.IsZero() {
			return time.Time{}, false, nil
		}
		return next, true, nil

	case s.Cron != "":
		sched, err := e.parser.Parse(s.Cron)
		if err != nil {
			return time.Time{}, false, fmt.Errorf("parsing cron %q: %w", s.Cron, err)
		}
		// cron's Next is already exclusive of the reference instant
		next := sched.Next(after)
		if next.IsZero() {
			return time.Time{}, false, nil
		}
		return next, true, nil

	default:
		return time.Time{}, false, fmt.Errorf("schedule has neither rrule nor cron")
	}
}

// Preview returns up to count future occurrences starting from now. It never
// returns an error: malformed schedules yield an empty slice, and rules that
// run out of occurrences stop early.
func (e *Engine) Preview(s domain.Schedule, count int) []time.Time {
	occurrences := make([]time.Time, 0, count)
	after := time.Now()
	for len(occurrences) < count {
		next, ok, err := e.Next(s, after)
		if err != nil || !ok {
			break
		}
		occurrences = append(occurrences, next)
		after = next
	}
	return occurrences
}

// Validate reports whether the schedule parses. Used by the registry before
// accepting a config write.
func (e *Engine) Validate(s domain.Schedule) error {
	loc, err := loadLocation(s.Timezone)
	if err != nil {
		return err
	}
	switch {
	case s.RRule != "" && s.Cron != "":
		return fmt.Errorf("schedule must set rrule or cron, not both")
	case s.RRule != "":
		_, err := parseRRule(s.RRule, loc)
		return err
	case s.Cron != "":
		_, err := e.parser.Parse(s.Cron)
		if err != nil {
			return fmt.Errorf("parsing cron %q: %w", s.Cron, err)
		}
		return nil
	default:
		return fmt.Errorf("schedule has neither rrule nor cron")
	}
}

// afterer is satisfied by both rrule.RRule and rrule.Set
type afterer interface {
	After(dt time.Time, inc bool) time.Time
}

// parseRRule accepts both bare property strings ("FREQ=DAILY;COUNT=1") and
// full iCalendar fragments with DTSTART/RRULE lines.
func parseRRule(s string, loc *time.Location) (afterer, error) {
	if strings.Contains(s, "\n") || strings.HasPrefix(strings.ToUpper(strings.TrimSpace(s)), "DTSTART") {
		set, err := rrule.StrSliceToRRuleSetInLoc(strings.Split(strings.TrimSpace(s), "\n"), loc)
		if err != nil {
			return nil, fmt.Errorf("parsing rrule %q: %w", s, err)
		}
		return set, nil
	}
	opt, err := rrule.StrToROptionInLocation(s, loc)
	if err != nil {
		return nil, fmt.Errorf("parsing rrule %q: %w", s, err)
	}
	rule, err := rrule.NewRRule(*opt)
	if err != nil {
		return nil, fmt.Errorf("building rrule %q: %w", s, err)
	}
	return rule, nil
}

func loadLocation(tz string) (*time.Location, error) {
	if tz == "" {
		return time.UTC, nil
	}
	loc, err := time.LoadLocation(tz)
	if err != nil {
		return nil, fmt.Errorf("loading timezone %q: %w", tz, err)
	}
	return loc, nil
}
