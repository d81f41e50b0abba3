package affinity

import (
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/mattjoyce/affinity/internal/log"
)

// design mode is tri-state until the host has been asked once.
type designFlag int8

const (
	designUnknown designFlag = iota
	designOn
	designOff
)

// Dispatcher routes Work to the owner goroutine of a single Queue.
type Dispatcher struct {
	host     Host
	logger   *slog.Logger
	observer Observer

	// mu serializes resolution and binding. queue and design are written
	// under mu before state publishes a terminal value.
	mu     sync.Mutex
	state  atomic.Int32
	queue  Queue
	design designFlag

	resolutions        atomic.Uint64
	resolutionFailures atomic.Uint64
	syncRuns           atomic.Uint64
	posted             atomic.Uint64
}

// Option configures a Dispatcher.
type Option func(*Dispatcher)

// WithLogger sets the dispatcher logger.
func WithLogger(l *slog.Logger) Option {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// WithObserver registers an observer for lifecycle notifications.
func WithObserver(o Observer) Option {
	return func(d *Dispatcher) {
		if o != nil {
			d.observer = o
		}
	}
}

// New creates an unbound Dispatcher backed by host. host may be nil when the
// dispatcher will only ever be bound with InitializeWith.
func New(host Host, opts ...Option) *Dispatcher {
	d := &Dispatcher{
		host:     host,
		logger:   log.WithComponent("affinity"),
		observer: nopObserver{},
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// State returns the current binding state.
func (d *Dispatcher) State() State {
	return State(d.state.Load())
}

// Stats returns a snapshot of the dispatcher counters.
func (d *Dispatcher) Stats() Stats {
	return Stats{
		State:              d.State(),
		Resolutions:        d.resolutions.Load(),
		ResolutionFailures: d.resolutionFailures.Load(),
		SyncRuns:           d.syncRuns.Load(),
		Posted:             d.posted.Load(),
	}
}

// Initialize resolves the owner queue through the host if the dispatcher is
// still unbound. It is idempotent: once bound (or in no-op mode) it does nothing.
func (d *Dispatcher) Initialize() error {
	_, err := d.ensure()
	return err
}

// InitializeWith binds q as the owner queue, bypassing host resolution.
// Design mode is still detected if unknown. q is stored either way, but in
// design mode work keeps running in place.
func (d *Dispatcher) InitializeWith(q Queue) error {
	if q == nil {
		return fmt.Errorf("%w: queue is nil", ErrInvalidArgument)
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	if d.State().terminal() {
		return fmt.Errorf("%w (state %s)", ErrAlreadyBound, d.State())
	}

	d.detectDesignModeLocked()
	d.queue = q
	d.state.Store(int32(StateBound))

	d.logger.Info("owner queue bound", "explicit", true, "design_mode", d.design == designOn)
	d.observer.OnBound(true)
	return nil
}

// IsOwnerThread reports whether the caller is the owner goroutine. In no-op
// or design mode every caller counts as the owner. The first call may trigger resolution
// and therefore return the resolution error.
func (d *Dispatcher) IsOwnerThread() (bool, error) {
	s, err := d.ensure()
	if err != nil {
		return false, err
	}
	return d.inPlace(s), nil
}

// inPlace reports whether work for a dispatcher in terminal state s runs on
// the calling goroutine. d.design is settled before any terminal state is
// stored, so it is safe to read here without d.mu.
func (d *Dispatcher) inPlace(s State) bool {
	return s == StateNoOp || d.design == designOn || d.queue.IsOwner()
}

// CheckAccess is IsOwnerThread under its public name.
func (d *Dispatcher) CheckAccess() (bool, error) {
	return d.IsOwnerThread()
}

// Dispatch runs w on the owner goroutine.
//
// On the owner (or in no-op mode) w runs before Dispatch returns and its error
// is returned unchanged. Elsewhere w is posted to the owner queue and Dispatch
// returns without waiting; errors from w are then only visible through the
// queue's error channel. A non-nil error on that path means the post itself
// failed.
func (d *Dispatcher) Dispatch(w Work) error {
	if w == nil {
		return fmt.Errorf("%w: work is nil", ErrInvalidArgument)
	}

	s, err := d.ensure()
	if err != nil {
		return err
	}

	if d.inPlace(s) {
		d.syncRuns.Add(1)
		d.observer.OnDispatch(ModeSync)
		return w()
	}

	if err := d.queue.Post(w); err != nil {
		return fmt.Errorf("affinity: post to owner queue: %w", err)
	}
	d.posted.Add(1)
	d.observer.OnDispatch(ModePosted)
	return nil
}

// ensure returns a terminal state, resolving the owner queue if needed.
func (d *Dispatcher) ensure() (State, error) {
	if s := d.State(); s.terminal() {
		return s, nil
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	// Another caller may have finished resolution while we waited.
	if s := d.State(); s.terminal() {
		return s, nil
	}
	return d.resolveOwnerLocked()
}

// resolveOwnerLocked performs one resolution attempt. Caller holds d.mu.
func (d *Dispatcher) resolveOwnerLocked() (State, error) {
	d.state.Store(int32(StateResolving))
	d.resolutions.Add(1)

	if d.detectDesignModeLocked() {
		d.state.Store(int32(StateNoOp))
		d.logger.Info("design mode detected, dispatching in place")
		d.observer.OnNoOp()
		return StateNoOp, nil
	}

	if d.host == nil {
		return d.failLocked(fmt.Errorf("%w: no host configured", ErrNotOnOwnerThread))
	}

	q, err := d.host.ResolveOwner()
	if err != nil {
		return d.failLocked(fmt.Errorf("%w: %w", ErrNotOnOwnerThread, err))
	}
	if q == nil {
		return d.failLocked(ErrNoOwnerHandle)
	}

	d.queue = q
	d.state.Store(int32(StateBound))
	d.logger.Info("owner queue bound", "explicit", false)
	d.observer.OnBound(false)
	return StateBound, nil
}

func (d *Dispatcher) failLocked(err error) (State, error) {
	d.state.Store(int32(StateUnbound))
	d.resolutionFailures.Add(1)
	d.logger.Warn("owner resolution failed", "error", err)
	return StateUnbound, err
}

// detectDesignModeLocked asks the host once and caches the answer.
func (d *Dispatcher) detectDesignModeLocked() bool {
	if d.design == designUnknown {
		d.design = designOff
		if d.host != nil && d.host.DesignMode() {
			d.design = designOn
		}
	}
	return d.design == designOn
}
