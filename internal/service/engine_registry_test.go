package service

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	syncengine "github.com/uniqn-app/staffsync/internal/sync"
)

func newRegistryFixture(ctx context.Context, maxSessions int) (*EngineRegistry, *source.Memory) {
	mem := source.NewMemory()
	factory := func() *EngineService {
		return NewEngineService(mem, syncengine.Config{}, nil, nil)
	}
	return NewEngineRegistry(ctx, factory, maxSessions, nil), mem
}

func TestRegistryReusesSessionPerSubject(t *testing.T) {
	reg, _ := newRegistryFixture(context.Background(), 4)
	defer reg.Close()
	identity := syncengine.Identity{ActorID: "staff-1", Role: models.RoleStaff}

	first, err := reg.Acquire(identity)
	require.NoError(t, err)
	second, err := reg.Acquire(identity)
	require.NoError(t, err)
	assert.Same(t, first, second)
	assert.Equal(t, 1, reg.Sessions())
}

func TestRegistryRestartsOnRoleChange(t *testing.T) {
	reg, mem := newRegistryFixture(context.Background(), 4)
	defer reg.Close()

	mem.Seed(models.EntityWorkLogs, "wl-1", map[string]any{
		"id": "wl-1", "staff_id": "staff-1", "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})
	mem.Seed(models.EntityWorkLogs, "wl-2", map[string]any{
		"id": "wl-2", "staff_id": "staff-2", "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})

	engine, err := reg.Acquire(syncengine.Identity{ActorID: "staff-1", Role: models.RoleStaff})
	require.NoError(t, err)
	waitCondition(t, func() bool { return engine.Store().Len(models.EntityWorkLogs) == 1 })

	// Promotion to admin widens the scope; the session resubscribes.
	engine2, err := reg.Acquire(syncengine.Identity{ActorID: "staff-1", Role: models.RoleAdmin})
	require.NoError(t, err)
	assert.Same(t, engine, engine2)
	waitCondition(t, func() bool { return engine2.Store().Len(models.EntityWorkLogs) == 2 })
	assert.Equal(t, 1, reg.Sessions())
}

func TestRegistryEvictsOldestSession(t *testing.T) {
	reg, _ := newRegistryFixture(context.Background(), 2)
	defer reg.Close()

	_, err := reg.Acquire(syncengine.Identity{ActorID: "a", Role: models.RoleStaff})
	require.NoError(t, err)
	_, err = reg.Acquire(syncengine.Identity{ActorID: "b", Role: models.RoleStaff})
	require.NoError(t, err)
	_, err = reg.Acquire(syncengine.Identity{ActorID: "c", Role: models.RoleStaff})
	require.NoError(t, err)

	assert.Equal(t, 2, reg.Sessions())
}

func TestRegistryDrop(t *testing.T) {
	reg, _ := newRegistryFixture(context.Background(), 4)
	defer reg.Close()

	_, err := reg.Acquire(syncengine.Identity{ActorID: "a", Role: models.RoleStaff})
	require.NoError(t, err)
	reg.Drop("a")
	assert.Equal(t, 0, reg.Sessions())
	reg.Drop("a")
}

// ctxWatcher hands out subscriptions bound to the watch context, the way
// the real LISTEN streams are: cancelling it closes the stream with the
// context's error.
type ctxWatcher struct{}

type ctxSub struct {
	events chan models.ChangeEvent
	once   sync.Once

	mu  sync.Mutex
	err error
}

func (w *ctxWatcher) Watch(ctx context.Context, entity models.EntityType, scope source.Scope) (source.Subscription, error) {
	sub := &ctxSub{events: make(chan models.ChangeEvent, 4)}
	sub.events <- models.ChangeEvent{Op: models.OpSnapshot, Entity: entity}
	go func() {
		<-ctx.Done()
		sub.mu.Lock()
		sub.err = ctx.Err()
		sub.mu.Unlock()
		sub.once.Do(func() { close(sub.events) })
	}()
	return sub, nil
}

func (s *ctxSub) Events() <-chan models.ChangeEvent { return s.events }

func (s *ctxSub) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

func (s *ctxSub) Close() {
	s.once.Do(func() { close(s.events) })
}

// Sessions outlive the requests that open them: their streams hang off
// the registry's context, so they stay healthy between requests and die
// only when the registry's context does.
func TestRegistryStreamsFollowRegistryContext(t *testing.T) {
	baseCtx, cancelBase := context.WithCancel(context.Background())
	defer cancelBase()

	factory := func() *EngineService {
		return NewEngineService(&ctxWatcher{}, syncengine.Config{}, nil, nil)
	}
	reg := NewEngineRegistry(baseCtx, factory, 4, nil)
	defer reg.Close()

	engine, err := reg.Acquire(syncengine.Identity{ActorID: "staff-1", Role: models.RoleStaff})
	require.NoError(t, err)
	for _, entity := range models.EntityTypes {
		assert.Nil(t, engine.Store().Err(entity))
	}

	cancelBase()
	waitCondition(t, func() bool {
		appErr := engine.Store().Err(models.EntityWorkLogs)
		return appErr != nil && errors.Is(appErr, context.Canceled)
	})
}
