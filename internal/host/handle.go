package host

import (
	"context"

	"github.com/pders01/fwrdpost/internal/debuglog"
)

// Handle controls a running host.
type Handle struct {
	userID string
	jobs   int
	cancel context.CancelFunc
	done   chan struct{}
}

// Start runs h in its own goroutine under a child context of parent.
func Start(parent context.Context, h *Host) *Handle {
	ctx, cancel := context.WithCancel(parent)
	hd := &Handle{userID: h.userID, jobs: len(h.jobs), cancel: cancel, done: make(chan struct{})}

	go func() {
		defer close(hd.done)
		defer func() {
			if r := recover(); r != nil {
				debuglog.Errorf("host for user %s crashed: %v", h.userID, r)
			}
		}()
		_ = h.Run(ctx)
	}()

	return hd
}

func (hd *Handle) UserID() string { return hd.userID }

// Jobs is the number of jobs the host was started with.
func (hd *Handle) Jobs() int { return hd.jobs }

// Abort cancels the host without waiting for it to exit. In-flight requests
// are torn down through their context.
func (hd *Handle) Abort() {
	hd.cancel()
}

// Done is closed once the host goroutine has exited.
func (hd *Handle) Done() <-chan struct{} {
	return hd.done
}

// Running reports whether the host goroutine is still alive.
func (hd *Handle) Running() bool {
	select {
	case <-hd.done:
		return false
	default:
		return true
	}
}
