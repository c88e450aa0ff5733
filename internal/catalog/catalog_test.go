package catalog

import (
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUpsertKeepsMapsDisjoint(t *testing.T) {
	c := New(zerolog.Nop())

	require.NoError(t, c.UpsertInterval("h1", "p", 60, "q1", -1, 100))
	_, ok := c.Interval("h1")
	assert.True(t, ok)

	// Switching cadence moves the hash atomically.
	require.NoError(t, c.UpsertCron("h1", "p", "* * * * *", "q1", 1000))
	_, ok = c.Interval("h1")
	assert.False(t, ok)
	_, ok = c.Cron("h1")
	assert.True(t, ok)

	require.NoError(t, c.UpsertInterval("h1", "p", 30, "q1", 5, 200))
	_, ok = c.Cron("h1")
	assert.False(t, ok)
	entry, ok := c.Interval("h1")
	require.True(t, ok)
	assert.Equal(t, 5, entry.RunCount)

	ni, nc := c.Sizes()
	assert.Equal(t, 1, ni+nc)
}

func TestUpsertIntervalRejectsNonPositive(t *testing.T) {
	c := New(zerolog.Nop())
	assert.Error(t, c.UpsertInterval("h1", "p", 0, "q1", -1, 100))
	assert.Error(t, c.UpsertInterval("h1", "p", -5, "q1", -1, 100))
	ni, nc := c.Sizes()
	assert.Zero(t, ni+nc)
}

func TestUpsertCronRejectsBadExpression(t *testing.T) {
	c := New(zerolog.Nop())
	assert.Error(t, c.UpsertCron("h1", "p", "not a cron", "q1", 1000))
	assert.Error(t, c.UpsertCron("h1", "p", "", "q1", 1000))
	ni, nc := c.Sizes()
	assert.Zero(t, ni+nc)
}

func TestIntervalDeadlineProgression(t *testing.T) {
	c := New(zerolog.Nop())
	require.NoError(t, c.UpsertInterval("h1", "p", 60, "q1", -1, 100))

	entry, _ := c.Interval("h1")
	assert.Equal(t, 160.0, entry.NextFireMono)

	assert.Empty(t, c.DueInterval(159.9))
	assert.Equal(t, []string{"h1"}, c.DueInterval(160))

	c.AdvanceInterval("h1")
	assert.Equal(t, 220.0, entry.NextFireMono)

	// Anchored progression: advancing twice more lands on 340
	// regardless of when the dispatches actually happened.
	c.AdvanceInterval("h1")
	c.AdvanceInterval("h1")
	assert.Equal(t, 340.0, entry.NextFireMono)
}

func TestCronSkipPastRule(t *testing.T) {
	c := New(zerolog.Nop())

	// 1020 is a whole minute; a schedule installed exactly then must
	// not fire until the following minute.
	require.NoError(t, c.UpsertCron("h1", "p", "* * * * *", "q1", 1020))
	entry, _ := c.Cron("h1")
	assert.Equal(t, int64(1080), entry.NextFireWall)

	// Off-boundary install keeps the next activation.
	require.NoError(t, c.UpsertCron("h2", "p", "* * * * *", "q1", 1000))
	entry2, _ := c.Cron("h2")
	assert.Equal(t, int64(1020), entry2.NextFireWall)
}

func TestCronAdvanceWritesBack(t *testing.T) {
	c := New(zerolog.Nop())
	require.NoError(t, c.UpsertCron("h1", "p", "* * * * *", "q1", 1000))

	entry, _ := c.Cron("h1")
	first := entry.NextFireWall
	assert.Equal(t, []string{"h1"}, c.DueCron(first))

	c.AdvanceCron("h1")
	assert.Greater(t, entry.NextFireWall, first)
	assert.Empty(t, c.DueCron(first))
}

func TestRemove(t *testing.T) {
	c := New(zerolog.Nop())
	require.NoError(t, c.UpsertInterval("h1", "p", 60, "q1", -1, 0))
	require.NoError(t, c.UpsertCron("h2", "p", "* * * * *", "q1", 1000))

	assert.Equal(t, RemovedInterval, c.Remove("h1"))
	assert.Equal(t, RemovedCron, c.Remove("h2"))
	assert.Equal(t, RemovedNone, c.Remove("h1"))
	assert.Equal(t, RemovedNone, c.Remove("unknown"))
}

func TestSnapshotLayout(t *testing.T) {
	c := New(zerolog.Nop())
	require.NoError(t, c.UpsertInterval("h1", "p1", 60, "q1", 3, 100))
	require.NoError(t, c.UpsertCron("h2", "p2", "*/5 * * * *", "q2", 1000))

	snap := c.Snapshot("scheduler-test")
	assert.Equal(t, "scheduler-test", snap["name"])

	intervalJobs := snap["interval_jobs"].(map[string]any)
	row := intervalJobs["h1"].([]any)
	require.Len(t, row, 5)
	assert.Equal(t, 160.0, row[0])
	assert.Equal(t, "p1", row[1])
	assert.Equal(t, "q1", row[3])
	assert.Equal(t, 3, row[4])

	cronJobs := snap["cron_jobs"].(map[string]any)
	cronRow := cronJobs["h2"].([]any)
	require.Len(t, cronRow, 4)
	assert.Equal(t, "p2", cronRow[1])
	assert.Equal(t, "q2", cronRow[3])

	// The interval-only view carries no wrapper and no cron entries.
	intervalOnly := c.IntervalSnapshot()
	require.Len(t, intervalOnly, 1)
	assert.Contains(t, intervalOnly, "h1")
	assert.NotContains(t, intervalOnly, "h2")
}
