package host

import (
	"fmt"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/pders01/fwrdpost/internal/calendar"
	"github.com/pders01/fwrdpost/internal/model"
)

type Kind int

const (
	KindFixed Kind = iota
	KindFeed
)

func (k Kind) String() string {
	switch k {
	case KindFixed:
		return "fixed"
	case KindFeed:
		return "feed"
	default:
		return "unknown"
	}
}

// Job is one scheduled task of a host. Exactly one of Fixed and Feed is
// meaningful, selected by Kind.
type Job struct {
	Kind  Kind
	Fixed model.FixedTask
	Feed  model.FeedTask

	schedules []cron.Schedule
	trigger   *calendar.Trigger
}

func (j *Job) ID() string {
	if j.Kind == KindFeed {
		return j.Feed.ID.String()
	}
	return j.Fixed.ID.String()
}

func (j *Job) Schedule() model.Schedule {
	if j.Kind == KindFeed {
		return j.Feed.Schedule
	}
	return j.Fixed.Schedule
}

// NextFiring is the next instant the job is due, zero if never or not armed.
func (j *Job) NextFiring() time.Time {
	if j.trigger == nil {
		return time.Time{}
	}
	return j.trigger.Next()
}

// jobsFor builds the job list of u in execution order: fixed tasks first,
// then feed tasks, each in list order. The tasks are copied so the host
// never shares message slices with the caller.
func jobsFor(u model.ActiveUser, loc *time.Location) ([]Job, error) {
	jobs := make([]Job, 0, len(u.FixedTasks)+len(u.FeedTasks))

	for _, t := range u.FixedTasks {
		weekly, err := calendar.Weekly(t.Schedule, loc)
		if err != nil {
			return nil, fmt.Errorf("fixed task %s: %w", t.ID, err)
		}
		jobs = append(jobs, Job{Kind: KindFixed, Fixed: t.Clone(), schedules: weekly})
	}

	for _, t := range u.FeedTasks {
		weekly, err := calendar.Weekly(t.Schedule, loc)
		if err != nil {
			return nil, fmt.Errorf("feed task %s: %w", t.ID, err)
		}
		// A paused schedule silences the poll interval too.
		if !t.Random && !t.Schedule.Paused() {
			weekly = append(weekly, calendar.Every(calendar.FeedPollInterval))
		}
		jobs = append(jobs, Job{Kind: KindFeed, Feed: t, schedules: weekly})
	}

	return jobs, nil
}
