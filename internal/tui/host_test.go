package tui

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/affinity/internal/affinity"
	"github.com/mattjoyce/affinity/internal/goid"
	"github.com/mattjoyce/affinity/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json") // Suppress logs in tests
	os.Exit(m.Run())
}

type stubModel struct {
	updates int
}

func (s stubModel) Init() tea.Cmd { return nil }

func (s stubModel) Update(tea.Msg) (tea.Model, tea.Cmd) {
	s.updates++
	return s, nil
}

func (s stubModel) View() string { return "stub" }

// bindHere makes the calling goroutine the owner of h.
func bindHere(t *testing.T, h *Host) tea.Model {
	t.Helper()
	m, _ := h.Wrap(stubModel{}).Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	require.True(t, h.IsOwner())
	return m
}

func TestHost_ResolveOwnerOnlyOnEventLoop(t *testing.T) {
	h := NewHost()

	_, err := h.ResolveOwner()
	assert.ErrorIs(t, err, ErrNotOwner)

	bindHere(t, h)
	q, err := h.ResolveOwner()
	require.NoError(t, err)
	assert.Same(t, h, q)

	done := make(chan error, 1)
	go func() {
		_, err := h.ResolveOwner()
		done <- err
	}()
	assert.ErrorIs(t, <-done, ErrNotOwner)
}

func TestHost_ForwardsMessagesToInnerModel(t *testing.T) {
	h := NewHost()
	m := h.Wrap(stubModel{})

	m, _ = m.Update(tea.WindowSizeMsg{})
	m, _ = m.Update(tea.WindowSizeMsg{})
	m, _ = m.Update(drainMsg{})

	assert.Equal(t, 2, m.(ownerModel).inner.(stubModel).updates)
	assert.Equal(t, "stub", m.View())
}

func TestHost_DrainRunsPostedWorkInOrder(t *testing.T) {
	h := NewHost()
	m := bindHere(t, h)

	var order []int
	for i := range 3 {
		require.NoError(t, h.Post(func() error {
			assert.True(t, h.IsOwner())
			order = append(order, i)
			return nil
		}))
	}
	assert.Equal(t, 3, h.Stats().Depth)
	assert.Empty(t, order, "nothing runs before the drain message")

	m.Update(drainMsg{})
	assert.Equal(t, []int{0, 1, 2}, order)

	stats := h.Stats()
	assert.Zero(t, stats.Depth)
	assert.Equal(t, uint64(3), stats.Posted)
	assert.Equal(t, uint64(3), stats.Processed)
	assert.True(t, stats.Bound)
}

func TestHost_ReportsErrorsAndPanics(t *testing.T) {
	var reported []error
	h := NewHost(WithErrorHandler(func(err error) { reported = append(reported, err) }))
	m := bindHere(t, h)

	boom := errors.New("boom")
	require.NoError(t, h.Post(func() error { return boom }))
	require.NoError(t, h.Post(func() error { panic("kaboom") }))
	require.NoError(t, h.Post(func() error { return nil }))
	m.Update(drainMsg{})

	require.Len(t, reported, 2)
	assert.ErrorIs(t, reported[0], boom)
	assert.ErrorIs(t, reported[1], ErrWorkPanicked)
	assert.Equal(t, uint64(2), h.Stats().Failed)
	assert.Equal(t, uint64(3), h.Stats().Processed)
}

func TestHost_HandlerPanicDoesNotEscape(t *testing.T) {
	calls := 0
	h := NewHost(WithErrorHandler(func(error) {
		calls++
		panic("handler bug")
	}))
	m := bindHere(t, h)

	require.NoError(t, h.Post(func() error { return errors.New("x") }))
	ran := false
	require.NoError(t, h.Post(func() error {
		ran = true
		return nil
	}))

	assert.NotPanics(t, func() { m.Update(drainMsg{}) })
	assert.True(t, ran, "work after a failing handler still runs")
	assert.Equal(t, 1, calls)
	assert.Equal(t, uint64(1), h.Stats().Failed)
}

func TestHost_PostNil(t *testing.T) {
	assert.Error(t, NewHost().Post(nil))
}

func TestHost_DispatcherBindsFromUpdate(t *testing.T) {
	h := NewHost()
	d := affinity.New(h)

	// Off the event loop, resolution fails.
	err := d.Initialize()
	assert.ErrorIs(t, err, affinity.ErrNotOnOwnerThread)
	assert.ErrorIs(t, err, ErrNotOwner)

	m := bindHere(t, h)
	require.NoError(t, d.Initialize())
	assert.Equal(t, affinity.StateBound, d.State())

	ran := false
	require.NoError(t, d.Dispatch(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran, "the owner runs in place")

	done := make(chan error, 1)
	go func() {
		done <- d.Dispatch(func() error {
			ran = false
			return nil
		})
	}()
	require.NoError(t, <-done)
	assert.True(t, ran, "posted work waits for the drain")

	m.Update(drainMsg{})
	assert.False(t, ran)
}

func TestHost_DesignMode(t *testing.T) {
	d := affinity.New(NewHost(WithDesignMode(true)))

	ran := false
	require.NoError(t, d.Dispatch(func() error {
		ran = true
		return nil
	}))
	assert.True(t, ran)
	assert.Equal(t, affinity.StateNoOp, d.State())
}

func TestHost_WithProgram(t *testing.T) {
	h := NewHost()

	// Posted before the program exists; flushed by Init.
	early := make(chan uint64, 1)
	require.NoError(t, h.Post(func() error {
		early <- goid.Current()
		return nil
	}))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	p := tea.NewProgram(h.Wrap(stubModel{}),
		tea.WithContext(ctx),
		tea.WithInput(nil),
		tea.WithOutput(io.Discard),
		tea.WithoutRenderer(),
		tea.WithoutSignalHandler(),
	)
	h.Attach(p)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		_, _ = p.Run()
	}()

	var ownerID uint64
	select {
	case ownerID = <-early:
	case <-time.After(2 * time.Second):
		t.Fatal("work posted before Run never executed")
	}
	assert.NotEqual(t, goid.Current(), ownerID)

	late := make(chan bool, 1)
	require.NoError(t, h.Post(func() error {
		late <- h.IsOwner() && goid.Current() == ownerID
		return nil
	}))
	select {
	case onOwner := <-late:
		assert.True(t, onOwner)
	case <-time.After(2 * time.Second):
		t.Fatal("work posted while running never executed")
	}

	p.Quit()
	wg.Wait()
}
