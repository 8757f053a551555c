package source

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
)

func seedAnnouncements(mem *Memory, n int) {
	for i := 0; i < n; i++ {
		id := string(rune('a'+i%26)) + "-ann"
		mem.Seed(models.EntityAnnouncements, id, map[string]any{
			"id":         id,
			"title":      "announcement",
			"content":    "body",
			"priority":   "normal",
			"is_active":  true,
			"start_date": "2026-08-01T00:00:00Z",
		})
	}
}

func TestMemoryWatchSnapshotThenEmit(t *testing.T) {
	mem := NewMemory()
	mem.Seed(models.EntityWorkLogs, "wl-1", map[string]any{
		"id": "wl-1", "staff_id": "staff-1", "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})
	mem.Seed(models.EntityWorkLogs, "wl-2", map[string]any{
		"id": "wl-2", "staff_id": "staff-2", "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})

	sub, err := mem.Watch(context.Background(), models.EntityWorkLogs,
		Scope{Equals: map[string]string{"staff_id": "staff-1"}})
	require.NoError(t, err)
	defer sub.Close()

	ev := <-sub.Events()
	assert.Equal(t, models.OpAdd, ev.Op)
	assert.Equal(t, "wl-1", ev.ID)
	wl, ok := ev.Record.(models.WorkLog)
	require.True(t, ok)
	assert.Equal(t, "staff-1", wl.StaffID)

	// The snapshot marker separates seeded rows from live deltas.
	ev = <-sub.Events()
	assert.Equal(t, models.OpSnapshot, ev.Op)

	mem.Emit(models.EntityWorkLogs, models.OpRemove, "wl-1", nil)
	ev = <-sub.Events()
	assert.Equal(t, models.OpRemove, ev.Op)
	assert.Equal(t, uint64(3), ev.Seq)
}

func TestMemoryFailWatch(t *testing.T) {
	mem := NewMemory()
	mem.FailWatch(models.EntityStaff, assert.AnError)

	_, err := mem.Watch(context.Background(), models.EntityStaff, Scope{})
	require.ErrorIs(t, err, assert.AnError)

	// Failure is one-shot; the retry succeeds.
	sub, err := mem.Watch(context.Background(), models.EntityStaff, Scope{})
	require.NoError(t, err)
	sub.Close()
}

func TestMemoryFailStreamClosesWithError(t *testing.T) {
	mem := NewMemory()
	sub, err := mem.Watch(context.Background(), models.EntityApplications, Scope{})
	require.NoError(t, err)
	ev := <-sub.Events()
	require.Equal(t, models.OpSnapshot, ev.Op)

	mem.FailStream(models.EntityApplications, assert.AnError)

	select {
	case _, open := <-sub.Events():
		assert.False(t, open)
	case <-time.After(time.Second):
		t.Fatal("stream did not close")
	}
	require.ErrorIs(t, sub.Err(), assert.AnError)
}

func TestMemoryFetchPageWalksForward(t *testing.T) {
	mem := NewMemory()
	seedAnnouncements(mem, 5)

	q := PageQuery{Entity: models.EntityAnnouncements, Limit: 2}
	first, err := mem.FetchPage(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, first.Records, 2)
	assert.True(t, first.HasMore)

	q.After = first.Next
	second, err := mem.FetchPage(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, second.Records, 2)
	assert.True(t, second.HasMore)

	q.After = second.Next
	third, err := mem.FetchPage(context.Background(), q)
	require.NoError(t, err)
	require.Len(t, third.Records, 1)
	assert.False(t, third.HasMore)

	count, err := mem.Count(context.Background(), CountQuery{Entity: models.EntityAnnouncements})
	require.NoError(t, err)
	assert.Equal(t, 5, count)
}

func TestMemoryWriterEmitsToWatch(t *testing.T) {
	mem := NewMemory()
	sub, err := mem.Watch(context.Background(), models.EntityAnnouncements, Scope{})
	require.NoError(t, err)
	defer sub.Close()
	ev := <-sub.Events()
	require.Equal(t, models.OpSnapshot, ev.Op)

	doc := map[string]any{
		"id": "ann-1", "title": "t", "content": "c", "priority": "high",
		"is_active": true, "start_date": "2026-08-01T00:00:00Z",
	}
	require.NoError(t, mem.Put(context.Background(), models.EntityAnnouncements, "ann-1", doc))
	ev = <-sub.Events()
	assert.Equal(t, models.OpAdd, ev.Op)

	require.NoError(t, mem.Patch(context.Background(), models.EntityAnnouncements, "ann-1", map[string]any{"is_active": false}))
	ev = <-sub.Events()
	assert.Equal(t, models.OpModify, ev.Op)
	ann, ok := ev.Record.(models.SystemAnnouncement)
	require.True(t, ok)
	assert.False(t, ann.IsActive)

	require.NoError(t, mem.Delete(context.Background(), models.EntityAnnouncements, "ann-1"))
	ev = <-sub.Events()
	assert.Equal(t, models.OpRemove, ev.Op)
}
