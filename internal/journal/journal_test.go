package journal

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mattjoyce/affinity/internal/events"
	"github.com/mattjoyce/affinity/internal/log"
)

func TestMain(m *testing.M) {
	log.Setup("ERROR", "json")
	os.Exit(m.Run())
}

func openTemp(t *testing.T) *Journal {
	t.Helper()
	j, err := Open(context.Background(), filepath.Join(t.TempDir(), "nested", "journal.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestOpen_BootstrapsTable(t *testing.T) {
	j := openTemp(t)

	var name string
	err := j.db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name='work_failures';").Scan(&name)
	require.NoError(t, err)
	assert.Equal(t, "work_failures", name)
}

func TestOpen_EmptyPath(t *testing.T) {
	_, err := Open(context.Background(), "")
	assert.Error(t, err)
}

func TestRecord_AssignsIDAndTime(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	e, err := j.Record(ctx, Entry{Loop: "main", Error: "boom"})
	require.NoError(t, err)
	_, err = uuid.Parse(e.ID)
	assert.NoError(t, err)
	assert.False(t, e.At.IsZero())

	got, err := j.Recent(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, e.ID, got[0].ID)
	assert.Equal(t, "boom", got[0].Error)
	assert.Zero(t, got[0].EventID)
	assert.True(t, e.At.Equal(got[0].At))
}

func TestRecord_DuplicateID(t *testing.T) {
	j := openTemp(t)
	ctx := context.Background()

	_, err := j.Record(ctx, Entry{ID: "t-1", Loop: "main", Error: "a"})
	require.NoError(t, err)
	_, err = j.Record(ctx, Entry{ID: "t-1", Loop: "main", Error: "b"})
	assert.Error(t, err)
}

func TestRecent_NewestFirstWithLimit(t *testing.T) {
	j, err := Open(context.Background(), ":memory:")
	require.NoError(t, err)
	defer j.Close()
	ctx := context.Background()

	base := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	for i, msg := range []string{"first", "second", "third"} {
		_, err := j.Record(ctx, Entry{Loop: "main", Error: msg, At: base.Add(time.Duration(i) * 100 * time.Millisecond)})
		require.NoError(t, err)
	}

	got, err := j.Recent(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "third", got[0].Error)
	assert.Equal(t, "second", got[1].Error)
}

func TestFollow_RecordsWorkFailures(t *testing.T) {
	j := openTemp(t)
	hub := events.NewHub(16)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		j.Follow(ctx, hub)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})

	// Wait until Follow has subscribed; events before that are not replayed.
	report := events.FailureReporter(hub, "main")
	require.Eventually(t, func() bool {
		hub.Publish(events.TypeOwnerNoOp, nil)
		report(assert.AnError)
		got, err := j.Recent(context.Background(), 10)
		return err == nil && len(got) > 0
	}, 2*time.Second, 20*time.Millisecond)

	got, err := j.Recent(context.Background(), 1)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "main", got[0].Loop)
	assert.Equal(t, assert.AnError.Error(), got[0].Error)
	assert.NotZero(t, got[0].EventID)
	_, err = uuid.Parse(got[0].ID)
	assert.NoError(t, err)
}
