// Package tui adapts the Bubble Tea event loop as an owner host for an
// affinity.Dispatcher and provides a monitor model for the demo.
//
// Bubble Tea calls Update on a single goroutine for the lifetime of a
// program. Host records that goroutine on the first Update it sees through a
// model returned by Wrap, and runs posted work there when a drain message
// arrives.
package tui

import (
	"errors"
	"fmt"
	"log/slog"
	"runtime/debug"
	"sync"
	"sync/atomic"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/goid"
	"github.com/mattjoyce/affinity/internal/log"
)

var (
	ErrNotOwner     = errors.New("tui: calling goroutine is not the Bubble Tea event loop")
	ErrWorkPanicked = errors.New("tui: work panicked")
)

// drainMsg asks the owner model to run pending work.
type drainMsg struct{}

// Host is both the affinity.Host and the owner queue for a Bubble Tea program.
type Host struct {
	design  bool
	onError func(error)
	logger  *slog.Logger

	mu      sync.Mutex
	pending []affinity.Work
	program *tea.Program

	owner atomic.Uint64

	posted    atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
}

var (
	_ affinity.Host  = (*Host)(nil)
	_ affinity.Queue = (*Host)(nil)
)

// HostOption configures a Host.
type HostOption func(*Host)

// WithDesignMode makes dispatchers using the host run everything in place.
func WithDesignMode(design bool) HostOption {
	return func(h *Host) {
		h.design = design
	}
}

// WithErrorHandler receives errors and panics from posted work, on the
// event loop goroutine.
func WithErrorHandler(fn func(error)) HostOption {
	return func(h *Host) {
		h.onError = fn
	}
}

func NewHost(opts ...HostOption) *Host {
	h := &Host{logger: log.WithComponent("tui")}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

// Attach connects the program that runs the wrapped model. Work posted
// before Attach runs when the program starts.
func (h *Host) Attach(p *tea.Program) {
	h.mu.Lock()
	h.program = p
	h.mu.Unlock()
}

// Wrap returns a model that makes the event loop goroutine the owner and
// forwards every other message to m.
func (h *Host) Wrap(m tea.Model) tea.Model {
	return ownerModel{host: h, inner: m}
}

func (h *Host) DesignMode() bool {
	return h.design
}

// ResolveOwner succeeds only on the event loop goroutine, i.e. from Update
// or from work already running on the owner.
func (h *Host) ResolveOwner() (affinity.Queue, error) {
	if !h.IsOwner() {
		return nil, ErrNotOwner
	}
	return h, nil
}

func (h *Host) IsOwner() bool {
	owner := h.owner.Load()
	return owner != 0 && owner == goid.Current()
}

// Post appends work to the FIFO and wakes the program. Program.Send blocks
// until the event loop reads the message, so it is sent from a separate
// goroutine.
func (h *Host) Post(work affinity.Work) error {
	if work == nil {
		return fmt.Errorf("tui: nil work")
	}

	h.mu.Lock()
	h.pending = append(h.pending, work)
	p := h.program
	h.mu.Unlock()
	h.posted.Add(1)

	if p != nil {
		go p.Send(drainMsg{})
	}
	return nil
}

// HostStats is a snapshot of host counters.
type HostStats struct {
	Bound     bool   `json:"bound"`
	Posted    uint64 `json:"posted"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Depth     int    `json:"depth"`
}

func (h *Host) Stats() HostStats {
	h.mu.Lock()
	depth := len(h.pending)
	h.mu.Unlock()

	return HostStats{
		Bound:     h.owner.Load() != 0,
		Posted:    h.posted.Load(),
		Processed: h.processed.Load(),
		Failed:    h.failed.Load(),
		Depth:     depth,
	}
}

// drain runs everything pending, including work posted by drained work.
func (h *Host) drain() {
	for {
		h.mu.Lock()
		batch := h.pending
		h.pending = nil
		h.mu.Unlock()

		if len(batch) == 0 {
			return
		}
		for _, work := range batch {
			h.execute(work)
		}
	}
}

func (h *Host) execute(work affinity.Work) {
	defer func() {
		if r := recover(); r != nil {
			h.failed.Add(1)
			h.report(fmt.Errorf("%w: %v\n%s", ErrWorkPanicked, r, debug.Stack()))
		}
	}()

	h.processed.Add(1)
	if err := work(); err != nil {
		h.failed.Add(1)
		h.report(err)
	}
}

func (h *Host) report(err error) {
	h.logger.Error("posted work failed", "error", err)
	if h.onError == nil {
		return
	}
	// A panicking handler must not take the event loop down.
	defer func() {
		if r := recover(); r != nil {
			h.logger.Error("error handler panicked", "panic", r)
		}
	}()
	h.onError(err)
}

type ownerModel struct {
	host  *Host
	inner tea.Model
}

func (m ownerModel) Init() tea.Cmd {
	// Flush anything posted before the program started.
	return tea.Batch(m.inner.Init(), func() tea.Msg { return drainMsg{} })
}

func (m ownerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	m.host.owner.CompareAndSwap(0, goid.Current())

	if _, ok := msg.(drainMsg); ok {
		m.host.drain()
		return m, nil
	}

	var cmd tea.Cmd
	m.inner, cmd = m.inner.Update(msg)
	return m, cmd
}

func (m ownerModel) View() string {
	return m.inner.View()
}
