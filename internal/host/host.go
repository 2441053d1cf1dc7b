// Package host runs one user's scheduled jobs.
package host

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/pders01/fwrdpost/internal/calendar"
	"github.com/pders01/fwrdpost/internal/content"
	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/metrics"
	"github.com/pders01/fwrdpost/internal/model"
)

const (
	DefaultTick = time.Second
	// watermarkTimeout bounds the watermark write, which outlives an abort.
	watermarkTimeout = 10 * time.Second
)

type SessionGate interface {
	EnsureValid(ctx context.Context, userID string) (model.Token, error)
}

type FeedFetcher interface {
	Fetch(ctx context.Context, url string) (model.FeedSnapshot, error)
}

type WatermarkStore interface {
	UpdateFeedWatermark(ctx context.Context, taskID uuid.UUID, at time.Time) error
}

type Poster interface {
	Post(ctx context.Context, tok model.Token, p model.Post) (string, error)
}

type MediaResolver interface {
	Resolve(ctx context.Context, tok model.Token, userID string, mediaID uuid.UUID) (string, error)
}

// Deps are the collaborators shared by all hosts. Media and Metrics may be nil.
type Deps struct {
	Gate       SessionGate
	Feeds      FeedFetcher
	Watermarks WatermarkStore
	Poster     Poster
	Media      MediaResolver
	Metrics    *metrics.Metrics
	Rand       content.Rand
}

type Options struct {
	Tick     time.Duration
	Location *time.Location
	Now      func() time.Time
}

// Host owns one user's jobs and their triggers.
type Host struct {
	userID string
	jobs   []Job
	deps   Deps
	tick   time.Duration
	now    func() time.Time
	log    *debuglog.FieldLogger
}

func New(u model.ActiveUser, deps Deps, opts Options) (*Host, error) {
	if opts.Tick <= 0 {
		opts.Tick = DefaultTick
	}
	if opts.Location == nil {
		opts.Location = time.Local
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	jobs, err := jobsFor(u, opts.Location)
	if err != nil {
		return nil, fmt.Errorf("user %s: %w", u.UserID, err)
	}

	return &Host{
		userID: u.UserID,
		jobs:   jobs,
		deps:   deps,
		tick:   opts.Tick,
		now:    opts.Now,
		log:    debuglog.WithFields(map[string]interface{}{"user": u.UserID}),
	}, nil
}

func (h *Host) UserID() string { return h.userID }

// Jobs returns the host's jobs in execution order.
func (h *Host) Jobs() []Job { return h.jobs }

// Arm (re)creates every job's trigger relative to now. Any previous trigger
// state is discarded.
func (h *Host) Arm(now time.Time) {
	for i := range h.jobs {
		h.jobs[i].trigger = calendar.New(now, h.jobs[i].schedules...)
	}
}

// Run arms the triggers and executes due jobs once per tick until ctx is
// canceled.
func (h *Host) Run(ctx context.Context) error {
	h.Arm(h.now())
	h.log.Infof("host running with %d jobs", len(h.jobs))

	ticker := time.NewTicker(h.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			h.log.Debugf("host stopped: %v", ctx.Err())
			return ctx.Err()
		case <-ticker.C:
			h.Tick(ctx, h.now())
		}
	}
}

// Tick runs, in order, every job due at now and returns how many fired.
func (h *Host) Tick(ctx context.Context, now time.Time) int {
	fired := 0
	for i := range h.jobs {
		if ctx.Err() != nil {
			return fired
		}
		job := &h.jobs[i]
		if job.trigger == nil || !job.trigger.Due(now) {
			continue
		}
		fired++
		h.fire(ctx, job)
	}
	return fired
}

func (h *Host) fire(ctx context.Context, job *Job) {
	start := time.Now()
	var err error

	switch job.Kind {
	case KindFixed:
		err = h.fireFixed(ctx, job.Fixed.Clone())
	case KindFeed:
		var wm *time.Time
		wm, err = h.fireFeed(ctx, job.Feed)
		if err == nil && wm != nil {
			job.Feed.Watermark = wm
		}
	}

	h.report(ctx, job, err, time.Since(start))
}

func (h *Host) fireFixed(ctx context.Context, task model.FixedTask) error {
	msg, err := content.PickMessage(task.Messages, task.Random, h.deps.Rand)
	if err != nil {
		return err
	}

	tok, err := h.deps.Gate.EnsureValid(ctx, h.userID)
	if err != nil {
		return err
	}

	post := model.Post{Text: msg.Text}
	if msg.MediaID != nil {
		if h.deps.Media == nil {
			return fmt.Errorf("%w: message %s has media but no resolver is configured", model.ErrMediaUnavailable, msg.ID)
		}
		handle, err := h.deps.Media.Resolve(ctx, tok, h.userID, *msg.MediaID)
		if err != nil {
			return fmt.Errorf("resolving media of message %s: %w", msg.ID, err)
		}
		post.MediaIDs = []string{handle}
	}

	id, err := h.deps.Poster.Post(ctx, tok, post)
	if err != nil {
		return fmt.Errorf("posting message %s: %w", msg.ID, err)
	}
	h.log.With("task", task.ID.String()).Infof("posted message %s as %s", msg.ID, id)
	return nil
}

// fireFeed returns the advanced watermark after a successful post.
func (h *Host) fireFeed(ctx context.Context, task model.FeedTask) (*time.Time, error) {
	snap, err := h.deps.Feeds.Fetch(ctx, task.URL)
	if err != nil {
		return nil, err
	}

	item, err := content.PickItem(snap, task.Random, task.Watermark, h.deps.Rand)
	if err != nil {
		return nil, err
	}

	tok, err := h.deps.Gate.EnsureValid(ctx, h.userID)
	if err != nil {
		return nil, err
	}

	id, err := h.deps.Poster.Post(ctx, tok, model.Post{Text: content.Render(item, task.Template)})
	if err != nil {
		return nil, fmt.Errorf("posting feed item %s: %w", item.Link, err)
	}

	next := content.AdvanceWatermark(task.Watermark, snap, item)
	log := h.log.With("task", task.ID.String())
	log.Infof("posted feed item %s as %s", item.Link, id)

	// The post happened; record it even if the host is being aborted.
	wctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), watermarkTimeout)
	defer cancel()
	werr := h.deps.Watermarks.UpdateFeedWatermark(wctx, task.ID, next)
	h.deps.Metrics.WatermarkUpdated(werr)
	if werr != nil {
		log.Warnf("persisting watermark %s failed: %v", next.Format(time.RFC3339), werr)
	}
	return &next, nil
}

func (h *Host) report(ctx context.Context, job *Job, err error, d time.Duration) {
	log := h.log.With("task", job.ID()).With("kind", job.Kind.String())

	outcome := metrics.OutcomePosted
	switch {
	case err == nil:
	case ctx.Err() != nil && errors.Is(err, ctx.Err()):
		log.Debugf("firing aborted: %v", err)
		return
	case errors.Is(err, model.ErrNoEligibleContent):
		outcome = metrics.OutcomeSkipped
		log.Infof("nothing to post: %v", err)
	case errors.Is(err, model.ErrFeedUnavailable), errors.Is(err, model.ErrFeedParse):
		outcome = metrics.OutcomeFeed
		log.Warnf("feed skipped: %v", err)
	default:
		outcome = metrics.OutcomeFailed
		log.Errorf("firing failed: %v", err)
	}
	h.deps.Metrics.ObserveFiring(job.Kind.String(), outcome, d)
}
