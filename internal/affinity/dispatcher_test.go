package affinity_test

import (
	"errors"
	"os"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/affinity/mocks"
	"github.com/mattjoyce/affinity/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

// fakeQueue collects posted work and reports a fixed ownership answer.
type fakeQueue struct {
	mu      sync.Mutex
	owner   bool
	pending []affinity.Work
	postErr error
}

func (q *fakeQueue) Post(w affinity.Work) error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if q.postErr != nil {
		return q.postErr
	}
	q.pending = append(q.pending, w)
	return nil
}

func (q *fakeQueue) IsOwner() bool {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.owner
}

func (q *fakeQueue) drain() []error {
	q.mu.Lock()
	work := q.pending
	q.pending = nil
	q.mu.Unlock()

	var errs []error
	for _, w := range work {
		errs = append(errs, w())
	}
	return errs
}

func hostFor(q affinity.Queue) affinity.Host {
	return affinity.HostFuncs{
		ResolveOwnerFunc: func() (affinity.Queue, error) { return q, nil },
	}
}

func TestDispatch_OnOwnerRunsInPlace(t *testing.T) {
	q := &fakeQueue{owner: true}
	d := affinity.New(hostFor(q))

	boom := errors.New("boom")
	ran := false
	err := d.Dispatch(func() error {
		ran = true
		return boom
	})

	assert.True(t, ran, "work must run before Dispatch returns")
	assert.Same(t, boom, err)
	assert.Empty(t, q.pending)
	assert.Equal(t, uint64(1), d.Stats().SyncRuns)
}

func TestDispatch_OnOwnerPanicPropagates(t *testing.T) {
	d := affinity.New(hostFor(&fakeQueue{owner: true}))

	assert.PanicsWithValue(t, "kaboom", func() {
		_ = d.Dispatch(func() error { panic("kaboom") })
	})
}

func TestDispatch_OffOwnerPosts(t *testing.T) {
	q := &fakeQueue{owner: false}
	d := affinity.New(hostFor(q))

	var ran atomic.Bool
	err := d.Dispatch(func() error {
		ran.Store(true)
		return errors.New("failure not visible to caller")
	})

	require.NoError(t, err)
	assert.False(t, ran.Load(), "work must not run before the owner drains it")

	errs := q.drain()
	assert.True(t, ran.Load())
	require.Len(t, errs, 1)
	assert.Error(t, errs[0])
	assert.Equal(t, uint64(1), d.Stats().Posted)
}

func TestDispatch_PostFailureIsReturned(t *testing.T) {
	closed := errors.New("queue closed")
	q := &fakeQueue{postErr: closed}
	d := affinity.New(hostFor(q))

	err := d.Dispatch(func() error { return nil })
	assert.ErrorIs(t, err, closed)
}

func TestDispatch_NilWork(t *testing.T) {
	d := affinity.New(hostFor(&fakeQueue{owner: true}))

	err := d.Dispatch(nil)
	assert.ErrorIs(t, err, affinity.ErrInvalidArgument)
	assert.Equal(t, affinity.StateUnbound, d.State(), "argument errors must not trigger resolution")
}

func TestDispatch_PostsKeepOrder(t *testing.T) {
	q := &fakeQueue{}
	d := affinity.New(hostFor(q))

	var got []int
	for i := range 5 {
		require.NoError(t, d.Dispatch(func() error {
			got = append(got, i)
			return nil
		}))
	}
	q.drain()
	assert.Equal(t, []int{0, 1, 2, 3, 4}, got)
}

func TestIsOwnerThread(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	host := mocks.NewMockHost(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	host.EXPECT().DesignMode().Return(false).Times(1)
	host.EXPECT().ResolveOwner().Return(queue, nil).Times(1)

	d := affinity.New(host)

	queue.EXPECT().IsOwner().Return(true)
	ok, err := d.IsOwnerThread()
	require.NoError(t, err)
	assert.True(t, ok)

	queue.EXPECT().IsOwner().Return(false)
	ok, err = d.CheckAccess()
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestNoOpMode(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	// ResolveOwner is not expected: no-op mode never asks for a queue.
	host := mocks.NewMockHost(ctrl)
	host.EXPECT().DesignMode().Return(true).Times(1)

	d := affinity.New(host)

	ok, err := d.IsOwnerThread()
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, affinity.StateNoOp, d.State())

	done := make(chan struct{})
	go func() {
		defer close(done)
		ran := false
		err := d.Dispatch(func() error {
			ran = true
			return nil
		})
		assert.NoError(t, err)
		assert.True(t, ran, "no-op mode runs in place from any goroutine")
	}()
	<-done
}

func TestInitialize_ResolvesOnce(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	host := mocks.NewMockHost(ctrl)
	queue := mocks.NewMockQueue(ctrl)
	host.EXPECT().DesignMode().Return(false).Times(1)
	host.EXPECT().ResolveOwner().Return(queue, nil).Times(1)

	d := affinity.New(host)
	require.NoError(t, d.Initialize())
	require.NoError(t, d.Initialize())

	assert.Equal(t, affinity.StateBound, d.State())
	assert.Equal(t, uint64(1), d.Stats().Resolutions)
}

func TestInitializeWith_Nil(t *testing.T) {
	d := affinity.New(nil)

	err := d.InitializeWith(nil)
	assert.ErrorIs(t, err, affinity.ErrInvalidArgument)
	assert.Equal(t, affinity.StateUnbound, d.State())
}

func TestInitializeWith_BypassesResolution(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	host := mocks.NewMockHost(ctrl)
	host.EXPECT().DesignMode().Return(false).Times(1)
	queue := mocks.NewMockQueue(ctrl)

	d := affinity.New(host)
	require.NoError(t, d.InitializeWith(queue))
	assert.Equal(t, affinity.StateBound, d.State())

	// Initialize after an explicit bind is a no-op.
	require.NoError(t, d.Initialize())
	assert.Zero(t, d.Stats().Resolutions)
}

func TestInitializeWith_RebindFails(t *testing.T) {
	first := &fakeQueue{owner: true}
	d := affinity.New(nil)
	require.NoError(t, d.InitializeWith(first))

	err := d.InitializeWith(&fakeQueue{})
	assert.ErrorIs(t, err, affinity.ErrAlreadyBound)
	assert.ErrorIs(t, err, affinity.ErrInvalidOperation)

	ok, err := d.IsOwnerThread()
	require.NoError(t, err)
	assert.True(t, ok, "the first queue stays authoritative")
}

func TestInitializeWith_AfterNoOpFails(t *testing.T) {
	d := affinity.New(affinity.HostFuncs{DesignModeFunc: func() bool { return true }})
	require.NoError(t, d.Initialize())

	err := d.InitializeWith(&fakeQueue{})
	assert.ErrorIs(t, err, affinity.ErrAlreadyBound)
	assert.Equal(t, affinity.StateNoOp, d.State())
}

func TestInitializeWith_DesignModeStillRunsInPlace(t *testing.T) {
	q := &fakeQueue{owner: false}
	d := affinity.New(affinity.HostFuncs{DesignModeFunc: func() bool { return true }})
	require.NoError(t, d.InitializeWith(q))
	assert.Equal(t, affinity.StateBound, d.State())

	ok, err := d.IsOwnerThread()
	require.NoError(t, err)
	assert.True(t, ok, "design mode makes every caller the owner")

	ran := false
	require.NoError(t, d.Dispatch(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Empty(t, q.pending)
	assert.Equal(t, uint64(1), d.Stats().SyncRuns)
	assert.Equal(t, uint64(0), d.Stats().Posted)
}

func TestResolution_HostErrorIsRetryable(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	hostErr := errors.New("no window yet")
	host := mocks.NewMockHost(ctrl)
	queue := mocks.NewMockQueue(ctrl)

	// Design mode is asked only once even though the first resolution fails.
	host.EXPECT().DesignMode().Return(false).Times(1)
	gomock.InOrder(
		host.EXPECT().ResolveOwner().Return(nil, hostErr),
		host.EXPECT().ResolveOwner().Return(queue, nil),
	)

	d := affinity.New(host)

	err := d.Dispatch(func() error {
		t.Fatal("work must not run when resolution fails")
		return nil
	})
	assert.ErrorIs(t, err, affinity.ErrNotOnOwnerThread)
	assert.ErrorIs(t, err, affinity.ErrInvalidOperation)
	assert.ErrorIs(t, err, hostErr)
	assert.Equal(t, affinity.StateUnbound, d.State())

	queue.EXPECT().IsOwner().Return(true)
	ran := false
	require.NoError(t, d.Dispatch(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, affinity.StateBound, d.State())

	stats := d.Stats()
	assert.Equal(t, uint64(2), stats.Resolutions)
	assert.Equal(t, uint64(1), stats.ResolutionFailures)
}

func TestResolution_NoHandle(t *testing.T) {
	d := affinity.New(affinity.HostFuncs{
		ResolveOwnerFunc: func() (affinity.Queue, error) { return nil, nil },
	})

	err := d.Initialize()
	assert.ErrorIs(t, err, affinity.ErrNoOwnerHandle)
	assert.Equal(t, affinity.StateUnbound, d.State())
}

func TestCheckAccess_CanFail(t *testing.T) {
	d := affinity.New(affinity.HostFuncs{
		ResolveOwnerFunc: func() (affinity.Queue, error) { return nil, errors.New("wrong goroutine") },
	})

	ok, err := d.CheckAccess()
	assert.False(t, ok)
	assert.ErrorIs(t, err, affinity.ErrNotOnOwnerThread)
}

func TestResolution_NoHost(t *testing.T) {
	d := affinity.New(nil)

	err := d.Initialize()
	assert.ErrorIs(t, err, affinity.ErrNotOnOwnerThread)
}

func TestResolution_ConcurrentFirstCall(t *testing.T) {
	q := &fakeQueue{owner: false}

	var calls atomic.Int32
	release := make(chan struct{})
	host := affinity.HostFuncs{
		ResolveOwnerFunc: func() (affinity.Queue, error) {
			calls.Add(1)
			<-release
			return q, nil
		},
	}
	d := affinity.New(host)

	const callers = 32
	var wg sync.WaitGroup
	errs := make(chan error, callers)
	for range callers {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- d.Dispatch(func() error { return nil })
		}()
	}

	// Let at least one caller enter resolution before releasing it.
	require.Eventually(t, func() bool { return d.State() == affinity.StateResolving }, time.Second, time.Millisecond)
	close(release)
	wg.Wait()
	close(errs)

	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, int32(1), calls.Load(), "exactly one caller resolves")
	assert.Equal(t, affinity.StateBound, d.State())
	assert.Len(t, q.pending, callers)
}

type recordingObserver struct {
	mu     sync.Mutex
	events []string
}

func (o *recordingObserver) add(s string) {
	o.mu.Lock()
	o.events = append(o.events, s)
	o.mu.Unlock()
}

func (o *recordingObserver) OnBound(explicit bool) {
	if explicit {
		o.add("bound:explicit")
		return
	}
	o.add("bound:auto")
}

func (o *recordingObserver) OnNoOp() { o.add("noop") }

func (o *recordingObserver) OnDispatch(m affinity.Mode) { o.add("dispatch:" + string(m)) }

func TestObserver(t *testing.T) {
	q := &fakeQueue{owner: true}
	obs := &recordingObserver{}
	d := affinity.New(hostFor(q), affinity.WithObserver(obs))

	require.NoError(t, d.Dispatch(func() error { return nil }))
	q.owner = false
	require.NoError(t, d.Dispatch(func() error { return nil }))

	assert.Equal(t, []string{"bound:auto", "dispatch:sync", "dispatch:posted"}, obs.events)
}

func TestStateString(t *testing.T) {
	assert.Equal(t, "unbound", affinity.StateUnbound.String())
	assert.Equal(t, "resolving", affinity.StateResolving.String())
	assert.Equal(t, "bound", affinity.StateBound.String())
	assert.Equal(t, "noop", affinity.StateNoOp.String())
	assert.Equal(t, "unknown", affinity.State(42).String())
}
