// Package supervisor owns the set of running job hosts and serializes every
// change to it through a single mailbox.
package supervisor

import (
	"context"
	"errors"
	"sort"
	"time"

	"github.com/pders01/fwrdpost/internal/debuglog"
	"github.com/pders01/fwrdpost/internal/host"
	"github.com/pders01/fwrdpost/internal/metrics"
	"github.com/pders01/fwrdpost/internal/model"
)

const DefaultMailboxSize = 8

// ErrStopped is returned for commands submitted after Run has returned.
var ErrStopped = errors.New("supervisor stopped")

// TaskSource loads the active task set. ListActiveUsers may include users
// without tasks; ActiveUser returns model.ErrNotFound for unknown or
// inactive users.
type TaskSource interface {
	ListActiveUsers(ctx context.Context) ([]model.ActiveUser, error)
	ActiveUser(ctx context.Context, userID string) (model.ActiveUser, error)
}

// Spawner builds and starts the host of one user. The host must stop when
// ctx is canceled.
type Spawner func(ctx context.Context, u model.ActiveUser) (*host.Handle, error)

// HostSpawner spawns real job hosts sharing deps and opts.
func HostSpawner(deps host.Deps, opts host.Options) Spawner {
	return func(ctx context.Context, u model.ActiveUser) (*host.Handle, error) {
		h, err := host.New(u, deps, opts)
		if err != nil {
			return nil, err
		}
		return host.Start(ctx, h), nil
	}
}

type commandKind int

const (
	cmdStartAll commandKind = iota
	cmdRestartUser
	cmdStatus
)

func (k commandKind) String() string {
	switch k {
	case cmdStartAll:
		return "start_all"
	case cmdRestartUser:
		return "restart_user"
	case cmdStatus:
		return "status"
	default:
		return "unknown"
	}
}

type command struct {
	kind   commandKind
	userID string
	reply  chan []HostStatus
}

// HostStatus describes one registry entry.
type HostStatus struct {
	UserID    string    `json:"user_id"`
	Running   bool      `json:"running"`
	Jobs      int       `json:"jobs"`
	StartedAt time.Time `json:"started_at,omitempty"`
}

type entry struct {
	handle    *host.Handle
	startedAt time.Time
}

type Options struct {
	MailboxSize int
	Metrics     *metrics.Metrics
}

type Supervisor struct {
	source  TaskSource
	spawn   Spawner
	mailbox chan command
	stopped chan struct{}
	metrics *metrics.Metrics
	log     *debuglog.FieldLogger

	// registry is only touched by the Run goroutine. A nil entry means the
	// user is known but has no running host.
	registry map[string]*entry
}

func New(source TaskSource, spawn Spawner, opts Options) *Supervisor {
	if opts.MailboxSize <= 0 {
		opts.MailboxSize = DefaultMailboxSize
	}
	return &Supervisor{
		source:   source,
		spawn:    spawn,
		mailbox:  make(chan command, opts.MailboxSize),
		stopped:  make(chan struct{}),
		metrics:  opts.Metrics,
		log:      debuglog.WithFields(map[string]interface{}{"component": "supervisor"}),
		registry: make(map[string]*entry),
	}
}

// Run starts every active user's host and then processes commands until ctx
// is canceled. All hosts are aborted before Run returns.
func (s *Supervisor) Run(ctx context.Context) error {
	defer close(s.stopped)
	defer s.abortAll()

	s.startAll(ctx)

	for {
		select {
		case <-ctx.Done():
			s.log.Infof("supervisor stopping: %v", ctx.Err())
			return ctx.Err()
		case cmd := <-s.mailbox:
			s.process(ctx, cmd)
		}
	}
}

// StartAll queues a full rebuild of the host set. It returns once the
// command is accepted, not when it has been applied.
func (s *Supervisor) StartAll(ctx context.Context) error {
	return s.submit(ctx, command{kind: cmdStartAll})
}

// RestartUser queues a restart of one user's host with freshly loaded tasks.
func (s *Supervisor) RestartUser(ctx context.Context, userID string) error {
	return s.submit(ctx, command{kind: cmdRestartUser, userID: userID})
}

// Status returns the registry as seen by the supervisor after every command
// queued before it has been applied.
func (s *Supervisor) Status(ctx context.Context) ([]HostStatus, error) {
	reply := make(chan []HostStatus, 1)
	if err := s.submit(ctx, command{kind: cmdStatus, reply: reply}); err != nil {
		return nil, err
	}
	select {
	case st := <-reply:
		return st, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	case <-s.stopped:
		return nil, ErrStopped
	}
}

func (s *Supervisor) submit(ctx context.Context, cmd command) error {
	select {
	case <-s.stopped:
		return ErrStopped
	default:
	}

	select {
	case s.mailbox <- cmd:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	case <-s.stopped:
		return ErrStopped
	}
}

func (s *Supervisor) process(ctx context.Context, cmd command) {
	switch cmd.kind {
	case cmdStartAll:
		s.startAll(ctx)
	case cmdRestartUser:
		s.restartUser(ctx, cmd.userID)
	case cmdStatus:
		cmd.reply <- s.status()
	}
	s.metrics.CommandProcessed(cmd.kind.String(), len(s.mailbox))
}

func (s *Supervisor) startAll(ctx context.Context) {
	s.abortAll()

	users, err := s.source.ListActiveUsers(ctx)
	if err != nil {
		s.log.Errorf("loading active users failed: %v", err)
		return
	}

	started := 0
	for _, u := range users {
		if !u.HasTasks() {
			continue
		}
		s.registry[u.UserID] = s.start(ctx, u)
		if s.registry[u.UserID] != nil {
			started++
		}
	}
	s.log.Infof("started %d of %d active users", started, len(users))
}

func (s *Supervisor) restartUser(ctx context.Context, userID string) {
	log := s.log.With("user", userID)
	s.abort(userID)

	u, err := s.source.ActiveUser(ctx, userID)
	switch {
	case errors.Is(err, model.ErrNotFound):
		log.Infof("user is not active, no host started")
		return
	case err != nil:
		log.Errorf("loading tasks failed: %v", err)
		return
	case !u.HasTasks():
		log.Infof("user has no tasks, no host started")
		return
	}

	s.registry[userID] = s.start(ctx, u)
	if s.registry[userID] != nil {
		log.Infof("host restarted")
	}
}

// start spawns a host for u and returns nil when spawning fails.
func (s *Supervisor) start(ctx context.Context, u model.ActiveUser) *entry {
	hd, err := s.spawn(ctx, u)
	if err != nil {
		s.log.With("user", u.UserID).Errorf("starting host failed: %v", err)
		return nil
	}
	s.metrics.HostStarted()
	return &entry{handle: hd, startedAt: time.Now()}
}

// abort cancels the user's host, if any, and leaves a nil registry entry.
func (s *Supervisor) abort(userID string) {
	if e := s.registry[userID]; e != nil {
		e.handle.Abort()
		s.metrics.HostStopped()
	}
	s.registry[userID] = nil
}

func (s *Supervisor) abortAll() {
	for userID := range s.registry {
		s.abort(userID)
	}
	clear(s.registry)
}

func (s *Supervisor) status() []HostStatus {
	out := make([]HostStatus, 0, len(s.registry))
	for userID, e := range s.registry {
		st := HostStatus{UserID: userID}
		if e != nil {
			st.Running = e.handle.Running()
			st.Jobs = e.handle.Jobs()
			st.StartedAt = e.startedAt
		}
		out = append(out, st)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UserID < out[j].UserID })
	return out
}
