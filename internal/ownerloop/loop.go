// Package ownerloop provides an owner goroutine that drains a FIFO execution
// queue. It is the default host for an affinity.Dispatcher.
//
// The goroutine that calls Run becomes the owner. With WithLockOSThread it is
// also pinned to its OS thread for the lifetime of Run, which is what
// thread-affine C libraries (GUI toolkits, GL contexts) require.
//
// Work posted from any goroutine runs on the owner in the order it was
// posted. Errors returned by work and panics raised by it are reported to the
// loop's error handler; the poster never sees them.
package ownerloop

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"runtime"
	"runtime/debug"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/goid"
	"github.com/mattjoyce/affinity/internal/log"
)

var (
	ErrAlreadyRunning = errors.New("ownerloop: loop already running")
	ErrLoopClosed     = errors.New("ownerloop: loop closed")
	ErrNotOwner       = errors.New("ownerloop: calling goroutine is not running an owner loop")
	ErrWorkPanicked   = errors.New("ownerloop: work panicked")
)

// owners maps the goroutine ID of every running loop to the loop.
var owners sync.Map

// Loop is a single-goroutine FIFO executor.
type Loop struct {
	name       string
	lockThread bool
	onError    func(error)
	logger     *slog.Logger

	mu      sync.Mutex
	ingress []affinity.Work
	running bool
	closed  bool

	wake  chan struct{}
	ready chan struct{}
	owner atomic.Uint64

	posted    atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	panicked  atomic.Uint64
}

// Option configures a Loop.
type Option func(*Loop)

// WithName names the loop in logs.
func WithName(name string) Option {
	return func(l *Loop) {
		if name != "" {
			l.name = name
		}
	}
}

// WithLockOSThread pins the owner goroutine to its OS thread while Run executes.
func WithLockOSThread(lock bool) Option {
	return func(l *Loop) {
		l.lockThread = lock
	}
}

// WithErrorHandler sets the callback receiving errors and panics from work.
// It runs on the owner goroutine.
func WithErrorHandler(fn func(error)) Option {
	return func(l *Loop) {
		l.onError = fn
	}
}

// WithLogger sets the loop logger.
func WithLogger(logger *slog.Logger) Option {
	return func(l *Loop) {
		if logger != nil {
			l.logger = logger
		}
	}
}

// New creates a loop. Work may be posted before Run; it executes once Run starts.
func New(opts ...Option) *Loop {
	l := &Loop{
		name:  "owner",
		wake:  make(chan struct{}, 1),
		ready: make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}
	if l.logger == nil {
		l.logger = log.WithLoop(l.name)
	}
	return l
}

// Run makes the calling goroutine the owner and executes posted work until
// ctx is cancelled. On cancellation it stops accepting work, drains what was
// already posted, and returns ctx.Err(). A loop runs at most once.
func (l *Loop) Run(ctx context.Context) error {
	l.mu.Lock()
	switch {
	case l.closed:
		l.mu.Unlock()
		return ErrLoopClosed
	case l.running:
		l.mu.Unlock()
		return ErrAlreadyRunning
	}
	l.running = true
	l.mu.Unlock()

	if l.lockThread {
		runtime.LockOSThread()
		defer runtime.UnlockOSThread()
	}

	id := goid.Current()
	l.owner.Store(id)
	owners.Store(id, l)
	defer func() {
		owners.Delete(id)
		l.owner.Store(0)
	}()
	close(l.ready)

	l.logger.Info("owner loop started", "locked_os_thread", l.lockThread)
	defer l.logger.Info("owner loop stopped")

	for {
		l.drain()

		select {
		case <-ctx.Done():
			l.mu.Lock()
			l.closed = true
			l.mu.Unlock()
			// Everything posted before close still runs.
			l.drain()
			return ctx.Err()
		case <-l.wake:
		}
	}
}

// Ready is closed once the owner goroutine has been registered by Run.
func (l *Loop) Ready() <-chan struct{} {
	return l.ready
}

// Post enqueues work for execution on the owner. It never waits for the work.
func (l *Loop) Post(work affinity.Work) error {
	if work == nil {
		return fmt.Errorf("ownerloop: nil work")
	}

	l.mu.Lock()
	if l.closed {
		l.mu.Unlock()
		return ErrLoopClosed
	}
	l.ingress = append(l.ingress, work)
	l.mu.Unlock()

	l.posted.Add(1)

	select {
	case l.wake <- struct{}{}:
	default:
		// A wake-up is already pending.
	}
	return nil
}

// IsOwner reports whether the calling goroutine is running this loop.
func (l *Loop) IsOwner() bool {
	owner := l.owner.Load()
	return owner != 0 && owner == goid.Current()
}

// Stats is a snapshot of loop counters.
type Stats struct {
	Name      string `json:"name"`
	Running   bool   `json:"running"`
	Posted    uint64 `json:"posted"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Panicked  uint64 `json:"panicked"`
	Depth     int    `json:"depth"`
}

// Stats returns loop counters.
func (l *Loop) Stats() Stats {
	l.mu.Lock()
	depth := len(l.ingress)
	running := l.running && !l.closed
	l.mu.Unlock()

	return Stats{
		Name:      l.name,
		Running:   running,
		Posted:    l.posted.Load(),
		Processed: l.processed.Load(),
		Failed:    l.failed.Load(),
		Panicked:  l.panicked.Load(),
		Depth:     depth,
	}
}

// drain executes the current ingress batch. Work posted meanwhile waits for
// the next batch, which keeps FIFO order.
func (l *Loop) drain() {
	for {
		l.mu.Lock()
		batch := l.ingress
		l.ingress = nil
		l.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, work := range batch {
			l.execute(work)
		}
	}
}

func (l *Loop) execute(work affinity.Work) {
	defer func() {
		if r := recover(); r != nil {
			l.panicked.Add(1)
			l.report(fmt.Errorf("%w: %v\n%s", ErrWorkPanicked, r, debug.Stack()))
		}
	}()

	l.processed.Add(1)
	if err := work(); err != nil {
		l.failed.Add(1)
		l.report(err)
	}
}

func (l *Loop) report(err error) {
	l.logger.Error("posted work failed", "error", err)
	if l.onError == nil {
		return
	}
	// A faulty handler must not take the loop down.
	defer func() {
		if r := recover(); r != nil {
			l.logger.Error("error handler panicked", "panic", r)
		}
	}()
	l.onError(err)
}

// Current returns the loop whose Run is executing on the calling goroutine.
func Current() (*Loop, error) {
	if v, ok := owners.Load(goid.Current()); ok {
		return v.(*Loop), nil
	}
	return nil, ErrNotOwner
}

// Host resolves the owner queue as the loop running on the calling goroutine.
type Host struct {
	// DesignModeEnabled puts dispatchers using this host in no-op mode.
	DesignModeEnabled bool
}

func (h Host) DesignMode() bool {
	return h.DesignModeEnabled
}

func (Host) ResolveOwner() (affinity.Queue, error) {
	l, err := Current()
	if err != nil {
		return nil, err
	}
	return l, nil
}
