package timetracker

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeClock returns a controllable now func.
func fakeClock(start time.Time) (func() time.Time, func(time.Duration)) {
	now := start
	return func() time.Time { return now }, func(d time.Duration) { now = now.Add(d) }
}

func TestMarkStartedOnce(t *testing.T) {
	tr := New()
	now, advance := fakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	tr.now = now

	assert.True(t, tr.MarkStarted("task-1"))
	first, ok := tr.Times("task-1")
	require.True(t, ok)

	advance(time.Minute)
	assert.False(t, tr.MarkStarted("task-1"), "second start must be ignored")

	again, _ := tr.Times("task-1")
	assert.Equal(t, *first.StartedAt, *again.StartedAt)
	assert.Nil(t, again.CompletedAt)
}

func TestMarkCompletedRequiresStart(t *testing.T) {
	tr := New()
	assert.False(t, tr.MarkCompleted("never-started"))

	_, ok := tr.Times("never-started")
	assert.False(t, ok)
}

func TestMarkCompletedOnceAndAfterStart(t *testing.T) {
	tr := New()
	now, advance := fakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	tr.now = now

	require.True(t, tr.MarkStarted("task-1"))
	advance(1500 * time.Millisecond)
	require.True(t, tr.MarkCompleted("task-1"))

	advance(time.Hour)
	assert.False(t, tr.MarkCompleted("task-1"), "second completion must be ignored")

	rec, ok := tr.Times("task-1")
	require.True(t, ok)
	require.NotNil(t, rec.CompletedAt)
	assert.True(t, rec.CompletedAt.After(*rec.StartedAt))
	assert.Equal(t, 1500*time.Millisecond, rec.CompletedAt.Sub(*rec.StartedAt))
}

func TestCompletedStrictlyAfterStartedOnCoarseClock(t *testing.T) {
	tr := New()
	fixed := time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)
	tr.now = func() time.Time { return fixed }

	require.True(t, tr.MarkStarted("task-1"))
	require.True(t, tr.MarkCompleted("task-1"))

	rec, _ := tr.Times("task-1")
	assert.True(t, rec.CompletedAt.After(*rec.StartedAt))
}

func TestInfo(t *testing.T) {
	tr := New()
	now, advance := fakeClock(time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC))
	tr.now = now

	empty := tr.Info("unknown")
	assert.Nil(t, empty.StartedAt)
	assert.Nil(t, empty.ElapsedSeconds)

	tr.MarkStarted("task-1")
	advance(2 * time.Second)

	running := tr.Info("task-1")
	require.NotNil(t, running.ElapsedSeconds)
	assert.InDelta(t, 2.0, *running.ElapsedSeconds, 1e-9)
	assert.Nil(t, running.CompletedAt)

	tr.MarkCompleted("task-1")
	advance(10 * time.Second)

	done := tr.Info("task-1")
	require.NotNil(t, done.CompletedAt)
	assert.InDelta(t, 2.0, *done.ElapsedSeconds, 1e-9, "elapsed stops at completion")

	d, ok := tr.Elapsed("task-1")
	assert.True(t, ok)
	assert.Equal(t, 2*time.Second, d)
}

func TestResetAllowsNewAttempt(t *testing.T) {
	tr := New()
	tr.MarkStarted("task-1")
	tr.MarkCompleted("task-1")

	tr.Reset("task-1")
	_, ok := tr.Times("task-1")
	assert.False(t, ok)

	assert.True(t, tr.MarkStarted("task-1"))
}

func TestTimesReturnsCopy(t *testing.T) {
	tr := New()
	tr.MarkStarted("task-1")

	rec, _ := tr.Times("task-1")
	*rec.StartedAt = time.Time{}

	again, _ := tr.Times("task-1")
	assert.False(t, again.StartedAt.IsZero())
}
