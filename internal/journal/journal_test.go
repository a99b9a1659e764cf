package journal

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/jonboulle/clockwork"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func openTest(t *testing.T, clock clockwork.Clock) *Journal {
	t.Helper()
	j, err := Open(t.Context(), filepath.Join(t.TempDir(), "state", "journal.db"), WithClock(clock))
	require.NoError(t, err)
	t.Cleanup(func() { _ = j.Close() })
	return j
}

func TestRecordAndGet(t *testing.T) {
	clock := clockwork.NewFakeClockAt(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	j := openTest(t, clock)

	d := Delivery{ID: "d-1", Event: "pull_request", Action: "opened", Repository: "acme/widgets", PR: 12, Outcome: "ok"}
	require.NoError(t, j.Record(t.Context(), d))

	got, ok, err := j.Get(t.Context(), "d-1")
	require.NoError(t, err)
	require.True(t, ok)

	d.ReceivedAt = clock.Now()
	if diff := cmp.Diff(d, got); diff != "" {
		t.Errorf("delivery mismatch (-want +got):\n%s", diff)
	}

	_, ok, err = j.Get(t.Context(), "missing")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRecord_UpdatesOutcome(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := openTest(t, clock)

	require.NoError(t, j.Record(t.Context(), Delivery{ID: "d-1", Event: "pull_request", Action: "closed", Outcome: "scheduled"}))
	clock.Advance(time.Minute)
	require.NoError(t, j.Record(t.Context(), Delivery{ID: "d-1", Event: "pull_request", Outcome: "failed", Error: "500"}))

	got, ok, err := j.Get(t.Context(), "d-1")
	require.NoError(t, err)
	require.True(t, ok)
	assert.Equal(t, "failed", got.Outcome)
	assert.Equal(t, "500", got.Error)
	assert.Equal(t, "closed", got.Action, "original fields kept")
}

func TestRecord_SkipsEmptyID(t *testing.T) {
	j := openTest(t, clockwork.NewFakeClock())
	require.NoError(t, j.Record(t.Context(), Delivery{Event: "ping", Outcome: "ignored"}))

	recent, err := j.Recent(t.Context(), 10)
	require.NoError(t, err)
	assert.Empty(t, recent)
}

func TestHandled(t *testing.T) {
	j := openTest(t, clockwork.NewFakeClock())
	for id, outcome := range map[string]string{
		"ok": "ok", "scheduled": "scheduled", "failed": "failed", "invalid": "invalid", "ignored": "ignored",
	} {
		require.NoError(t, j.Record(t.Context(), Delivery{ID: id, Event: "pull_request", Outcome: outcome}))
	}

	tests := map[string]bool{"ok": true, "scheduled": true, "failed": false, "invalid": false, "ignored": false, "unknown": false, "": false}
	for id, want := range tests {
		got, err := j.Handled(t.Context(), id)
		require.NoError(t, err)
		assert.Equal(t, want, got, id)
	}
}

func TestRecent(t *testing.T) {
	clock := clockwork.NewFakeClock()
	j := openTest(t, clock)

	for _, id := range []string{"a", "b", "c"} {
		require.NoError(t, j.Record(t.Context(), Delivery{ID: id, Event: "pull_request", Outcome: "ok"}))
		clock.Advance(time.Second)
	}

	recent, err := j.Recent(t.Context(), 2)
	require.NoError(t, err)
	require.Len(t, recent, 2)
	assert.Equal(t, "c", recent[0].ID)
	assert.Equal(t, "b", recent[1].ID)
}

func TestOpen_Reopen(t *testing.T) {
	path := filepath.Join(t.TempDir(), "journal.db")
	j, err := Open(t.Context(), path)
	require.NoError(t, err)
	require.NoError(t, j.Record(t.Context(), Delivery{ID: "d-1", Event: "pull_request", Outcome: "ok"}))
	require.NoError(t, j.Close())

	j, err = Open(t.Context(), path)
	require.NoError(t, err)
	defer j.Close()

	handled, err := j.Handled(t.Context(), "d-1")
	require.NoError(t, err)
	assert.True(t, handled)
}
