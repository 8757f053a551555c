package sync

import (
	"context"
	"strconv"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	"github.com/uniqn-app/staffsync/internal/store"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition not met in time")
}

func seedWorkLog(mem *source.Memory, id, staffID string) {
	mem.Seed(models.EntityWorkLogs, id, map[string]any{
		"id": id, "staff_id": staffID, "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})
}

func TestSubscribeAllRequiresIdentity(t *testing.T) {
	m := NewManager(source.NewMemory(), store.New(nil, nil), Config{}, nil, nil)
	err := m.SubscribeAll(context.Background(), Identity{})
	require.ErrorIs(t, err, apperrors.ErrIdentityRequired)
}

func TestSubscribeAllSnapshotsScopedRows(t *testing.T) {
	mem := source.NewMemory()
	seedWorkLog(mem, "wl-1", "staff-1")
	seedWorkLog(mem, "wl-2", "staff-2")

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "staff-1", Role: models.RoleStaff}))

	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 1 })
	_, ok := st.Get(models.EntityWorkLogs, "wl-1")
	assert.True(t, ok)
	_, ok = st.Get(models.EntityWorkLogs, "wl-2")
	assert.False(t, ok)

	id := m.Identity()
	require.NotNil(t, id)
	assert.Equal(t, "staff-1", id.ActorID)
}

func TestAdminSeesEverything(t *testing.T) {
	mem := source.NewMemory()
	seedWorkLog(mem, "wl-1", "staff-1")
	seedWorkLog(mem, "wl-2", "staff-2")

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))
	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 2 })
}

func TestLiveDeltasFlowIntoStore(t *testing.T) {
	mem := source.NewMemory()
	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))

	mem.Emit(models.EntityWorkLogs, models.OpAdd, "wl-1", models.WorkLog{ID: "wl-1", StaffID: "staff-1", EventID: "ev-1", Date: "2026-08-29"})
	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 1 })

	mem.Emit(models.EntityWorkLogs, models.OpRemove, "wl-1", nil)
	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 0 })
}

func TestWatchFailureIsIsolatedPerEntity(t *testing.T) {
	mem := source.NewMemory()
	seedWorkLog(mem, "wl-1", "staff-1")
	mem.FailWatch(models.EntityApplications, assert.AnError)

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))

	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 1 })
	require.NotNil(t, st.Err(models.EntityApplications))
	assert.Nil(t, st.Err(models.EntityWorkLogs))

	// Untouched streams keep delivering after the failure.
	mem.Emit(models.EntityStaff, models.OpAdd, "staff-9", models.Staff{ID: "staff-9"})
	waitFor(t, func() bool { return st.Len(models.EntityStaff) == 1 })
}

func TestStreamFailureSetsErrorSlot(t *testing.T) {
	mem := source.NewMemory()
	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))
	mem.FailStream(models.EntityWorkLogs, assert.AnError)

	waitFor(t, func() bool { return st.Err(models.EntityWorkLogs) != nil })
}

func TestStreamFailureResubscribesAfterBackoff(t *testing.T) {
	mem := source.NewMemory()
	seedWorkLog(mem, "wl-1", "staff-1")

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{ResubscribeBackoff: 10 * time.Millisecond}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))
	require.Equal(t, 1, st.Len(models.EntityWorkLogs))

	// Only a fresh snapshot can surface wl-2: Seed never emits a delta.
	seedWorkLog(mem, "wl-2", "staff-1")
	mem.FailStream(models.EntityWorkLogs, assert.AnError)

	waitFor(t, func() bool {
		_, ok := st.Get(models.EntityWorkLogs, "wl-2")
		return ok && st.Err(models.EntityWorkLogs) == nil
	})

	// The replacement stream delivers live deltas too.
	mem.Emit(models.EntityWorkLogs, models.OpAdd, "wl-3", models.WorkLog{ID: "wl-3", StaffID: "staff-1", EventID: "ev-1", Date: "2026-08-29"})
	waitFor(t, func() bool { return st.Len(models.EntityWorkLogs) == 3 })
}

func TestSubscribeAllReturnsWithSnapshotApplied(t *testing.T) {
	mem := source.NewMemory()
	for i := 0; i < 50; i++ {
		seedWorkLog(mem, "wl-"+strconv.Itoa(i), "staff-1")
	}

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "staff-1", Role: models.RoleStaff}))

	// No polling: every seeded row must already be queryable.
	assert.Equal(t, 50, st.Len(models.EntityWorkLogs))
}

func TestResubscribeClearsPreviousIdentity(t *testing.T) {
	mem := source.NewMemory()
	seedWorkLog(mem, "wl-1", "staff-1")
	seedWorkLog(mem, "wl-2", "staff-2")

	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)
	defer m.Dispose()

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "staff-1", Role: models.RoleStaff}))
	waitFor(t, func() bool {
		_, ok := st.Get(models.EntityWorkLogs, "wl-1")
		return ok
	})

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "staff-2", Role: models.RoleStaff}))
	waitFor(t, func() bool {
		_, ok := st.Get(models.EntityWorkLogs, "wl-2")
		return ok
	})
	_, ok := st.Get(models.EntityWorkLogs, "wl-1")
	assert.False(t, ok)
}

func TestUnsubscribeAllIsIdempotent(t *testing.T) {
	mem := source.NewMemory()
	st := store.New(nil, nil)
	m := NewManager(mem, st, Config{}, nil, nil)

	m.UnsubscribeAll()
	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin}))
	m.UnsubscribeAll()
	m.UnsubscribeAll()
	assert.Nil(t, m.Identity())
}

func TestDisposeRejectsFurtherSubscribes(t *testing.T) {
	mem := source.NewMemory()
	m := NewManager(mem, store.New(nil, nil), Config{}, nil, nil)
	m.Dispose()

	err := m.SubscribeAll(context.Background(), Identity{ActorID: "admin-1", Role: models.RoleAdmin})
	require.ErrorIs(t, err, apperrors.ErrSubscriptionClosed)
}

// pinnedWatcher hands out subscriptions whose Close only flags intent,
// letting the test deliver events during teardown before releasing the
// pump. Exercises the stale-generation guard.
type pinnedWatcher struct {
	mu   sync.Mutex
	subs []*pinnedSub
}

type pinnedSub struct {
	events      chan models.ChangeEvent
	closeCalled chan struct{}
	once        sync.Once
}

func (w *pinnedWatcher) Watch(ctx context.Context, entity models.EntityType, scope source.Scope) (source.Subscription, error) {
	sub := &pinnedSub{
		events:      make(chan models.ChangeEvent, 16),
		closeCalled: make(chan struct{}),
	}
	sub.events <- models.ChangeEvent{Op: models.OpSnapshot, Entity: entity}
	w.mu.Lock()
	w.subs = append(w.subs, sub)
	w.mu.Unlock()
	return sub, nil
}

func (s *pinnedSub) Events() <-chan models.ChangeEvent { return s.events }
func (s *pinnedSub) Err() error                        { return nil }
func (s *pinnedSub) Close() {
	s.once.Do(func() { close(s.closeCalled) })
}

func (s *pinnedSub) release() { close(s.events) }

func TestStaleGenerationEventsAreDropped(t *testing.T) {
	w := &pinnedWatcher{}
	st := store.New(nil, nil)
	m := NewManager(w, st, Config{}, nil, nil)

	require.NoError(t, m.SubscribeAll(context.Background(), Identity{ActorID: "staff-1", Role: models.RoleStaff}))
	w.mu.Lock()
	firstGen := append([]*pinnedSub(nil), w.subs...)
	w.mu.Unlock()

	done := make(chan struct{})
	go func() {
		m.UnsubscribeAll()
		close(done)
	}()

	// Teardown has signalled Close but the pumps are still draining.
	for _, sub := range firstGen {
		<-sub.closeCalled
	}
	firstGen[0].events <- models.ChangeEvent{
		Op:     models.OpAdd,
		Entity: models.EntityStaff,
		ID:     "stale-row",
		Record: models.Staff{ID: "stale-row"},
	}
	for _, sub := range firstGen {
		sub.release()
	}
	<-done

	_, ok := st.Get(models.EntityStaff, "stale-row")
	assert.False(t, ok)
}
