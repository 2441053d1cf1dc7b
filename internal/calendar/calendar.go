// Package calendar turns weekly schedules and polling intervals into
// per-tick "is this job due" decisions.
package calendar

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pders01/fwrdpost/internal/model"
)

// FeedPollInterval is the extra polling cadence of non-random feed jobs.
const FeedPollInterval = 4 * time.Hour

var specParser = cron.NewParser(cron.Second | cron.Minute | cron.Hour | cron.Dom | cron.Month | cron.Dow)

// Weekly returns one cron schedule per enabled weekday of s, each firing once
// a week at s.At() in loc. A paused schedule yields no entries.
func Weekly(s model.Schedule, loc *time.Location) ([]cron.Schedule, error) {
	if loc == nil {
		loc = time.Local
	}
	at := s.At()

	var out []cron.Schedule
	for _, day := range s.Weekdays() {
		spec := fmt.Sprintf("CRON_TZ=%s %d %d %d * * %d", loc.String(), at.Second, at.Minute, at.Hour, int(day))
		sched, err := specParser.Parse(spec)
		if err != nil {
			return nil, fmt.Errorf("building weekly schedule %q: %w", spec, err)
		}
		out = append(out, sched)
	}
	return out, nil
}

// Every returns a schedule firing every d, counted from when it is armed.
func Every(d time.Duration) cron.Schedule {
	return cron.Every(d)
}

type entry struct {
	sched cron.Schedule
	next  time.Time
}

// Trigger combines several schedules into one job trigger. A firing happens
// when any entry is due; coinciding entries produce a single firing.
// Trigger is not safe for concurrent use; each job host owns its triggers.
type Trigger struct {
	entries []entry
}

// New arms every schedule relative to now.
func New(now time.Time, schedules ...cron.Schedule) *Trigger {
	t := &Trigger{entries: make([]entry, 0, len(schedules))}
	for _, s := range schedules {
		t.entries = append(t.entries, entry{sched: s, next: s.Next(now)})
	}
	return t
}

// Due reports whether the trigger fires at now and re-arms every due entry
// from now, so a stalled tick never produces a burst of catch-up firings.
func (t *Trigger) Due(now time.Time) bool {
	fired := false
	for i := range t.entries {
		e := &t.entries[i]
		if e.next.IsZero() || now.Before(e.next) {
			continue
		}
		fired = true
		e.next = e.sched.Next(now)
	}
	return fired
}

// Next returns the earliest pending fire time, or the zero time when the
// trigger can never fire.
func (t *Trigger) Next() time.Time {
	var earliest time.Time
	for _, e := range t.entries {
		if e.next.IsZero() {
			continue
		}
		if earliest.IsZero() || e.next.Before(earliest) {
			earliest = e.next
		}
	}
	return earliest
}

// Len returns the number of armed entries.
func (t *Trigger) Len() int { return len(t.entries) }
