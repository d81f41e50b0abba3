package affinity

// Work is a unit of work routed to the owner goroutine.
type Work func() error

//go:generate mockgen -destination=mocks/mock_affinity.go -package=mocks github.com/mattjoyce/affinity/internal/affinity Queue,Host

// Queue is the owner goroutine's execution queue.
type Queue interface {
	// Post enqueues work for asynchronous FIFO execution on the owner. It must
	// not wait for the work to run.
	Post(work Work) error
	// IsOwner reports whether the calling goroutine is the owner.
	IsOwner() bool
}

// Host supplies the environment-specific capabilities the dispatcher relies on.
type Host interface {
	// DesignMode reports a non-interactive authoring context with no real owner.
	DesignMode() bool
	// ResolveOwner returns the owner's queue. It is expected to fail when
	// called from any goroutine other than the owner.
	ResolveOwner() (Queue, error)
}

// HostFuncs adapts a pair of functions to the Host interface.
// A nil DesignModeFunc reports false.
type HostFuncs struct {
	DesignModeFunc   func() bool
	ResolveOwnerFunc func() (Queue, error)
}

func (h HostFuncs) DesignMode() bool {
	if h.DesignModeFunc == nil {
		return false
	}
	return h.DesignModeFunc()
}

func (h HostFuncs) ResolveOwner() (Queue, error) {
	if h.ResolveOwnerFunc == nil {
		return nil, nil
	}
	return h.ResolveOwnerFunc()
}

type State int32

const (
	StateUnbound State = iota
	StateResolving
	StateBound
	StateNoOp
)

func (s State) String() string {
	switch s {
	case StateUnbound:
		return "unbound"
	case StateResolving:
		return "resolving"
	case StateBound:
		return "bound"
	case StateNoOp:
		return "noop"
	default:
		return "unknown"
	}
}

// MarshalText renders the state by name in JSON and logs.
func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s State) terminal() bool {
	return s == StateBound || s == StateNoOp
}

// Mode describes how a dispatched work item was executed.
type Mode string

const (
	ModeSync   Mode = "sync"
	ModePosted Mode = "posted"
)

// Observer receives dispatcher lifecycle notifications. Implementations must
// be cheap and must not call back into the dispatcher.
type Observer interface {
	OnBound(explicit bool)
	OnNoOp()
	OnDispatch(mode Mode)
}

type nopObserver struct{}

func (nopObserver) OnBound(bool) {}
func (nopObserver) OnNoOp() {}
func (nopObserver) OnDispatch(Mode) {}

// Stats is a snapshot of dispatcher counters.
type Stats struct {
	State              State
	Resolutions        uint64
	ResolutionFailures uint64
	SyncRuns           uint64
	Posted             uint64
}
