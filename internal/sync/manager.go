// Package sync owns the live subscriptions that keep the normalized store
// mirroring the backing document store for one identity at a time.
package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	"github.com/uniqn-app/staffsync/internal/store"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

// Identity scopes a subscription session. ActorID is the authenticated
// subject; Role decides how much of each collection the session sees.
type Identity struct {
	ActorID string
	Role    models.UserRole
}

// Watcher is the slice of the source the manager needs.
type Watcher interface {
	Watch(ctx context.Context, entity models.EntityType, scope source.Scope) (source.Subscription, error)
}

// MetricsRecorder receives sync-level observations; nil disables recording.
type MetricsRecorder interface {
	ObserveSyncEvent(entity string, op string)
	ObserveSyncFailure(entity string)
}

// Config tunes the manager. A zero ResubscribeBackoff disables automatic
// re-subscription of failed streams.
type Config struct {
	ResubscribeBackoff time.Duration
}

// Manager opens one watch per entity type for the current identity and
// pumps change events into the store. Each entity stream is independent:
// one stream failing never stops the others.
type Manager struct {
	source  Watcher
	store   *store.Store
	cfg     Config
	logger  *zap.Logger
	metrics MetricsRecorder

	// generation stamps every pump; events from a stale generation are
	// dropped so a slow teardown can never repopulate the store with a
	// previous identity's rows.
	generation atomic.Uint64

	// lifecycle serializes SubscribeAll/UnsubscribeAll/Dispose. It is
	// never held while waiting on pumps under mu, so a resubscribing pump
	// can always register its new stream.
	lifecycle sync.Mutex
	disposed  bool

	mu       sync.Mutex
	subs     map[models.EntityType]source.Subscription
	cancel   context.CancelFunc
	wg       sync.WaitGroup
	identity *Identity
}

// NewManager wires the manager. logger and metrics may be nil.
func NewManager(src Watcher, st *store.Store, cfg Config, logger *zap.Logger, metrics MetricsRecorder) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{
		source:  src,
		store:   st,
		cfg:     cfg,
		logger:  logger,
		metrics: metrics,
		subs:    make(map[models.EntityType]source.Subscription),
	}
}

// scopeFor maps an identity to the per-entity scope filter. Staff see only
// their own rows; admins and employers see everything.
func scopeFor(identity Identity, entity models.EntityType) source.Scope {
	if identity.Role != models.RoleStaff {
		return source.Scope{}
	}
	switch entity {
	case models.EntityWorkLogs, models.EntityAttendanceRecords:
		return source.Scope{Equals: map[string]string{"staff_id": identity.ActorID}}
	case models.EntityApplications:
		return source.Scope{Equals: map[string]string{"applicant_id": identity.ActorID}}
	case models.EntityStaff:
		return source.Scope{Equals: map[string]string{"id": identity.ActorID}}
	default:
		return source.Scope{}
	}
}

// SubscribeAll tears down any previous session, clears the store, and
// opens one watch per entity type for the given identity. A watch that
// fails to open is recorded in its entity's error slot; the rest proceed.
// It returns only after every opened stream has drained its initial
// snapshot into the store, so the first read after a subscribe never sees
// a table that is still mid-snapshot.
func (m *Manager) SubscribeAll(ctx context.Context, identity Identity) error {
	if identity.ActorID == "" {
		return apperrors.ErrIdentityRequired
	}

	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	if m.disposed {
		return apperrors.ErrSubscriptionClosed
	}

	// Subscribing over a live session is absorbed, not rejected: the old
	// session is torn down first so rows can never cross identities.
	m.teardown()

	m.mu.Lock()
	m.store.Clear()
	generation := m.generation.Add(1)
	watchCtx, cancel := context.WithCancel(ctx)
	m.cancel = cancel
	id := identity
	m.identity = &id

	readiness := make([]chan struct{}, 0, len(models.EntityTypes))
	for _, entity := range models.EntityTypes {
		scope := scopeFor(identity, entity)
		sub, err := m.source.Watch(watchCtx, entity, scope)
		if err != nil {
			m.store.SetErr(entity, err)
			if m.metrics != nil {
				m.metrics.ObserveSyncFailure(string(entity))
			}
			m.logger.Error("failed to open watch",
				zap.String("entity", string(entity)),
				zap.String("actor_id", identity.ActorID),
				zap.Error(err))
			continue
		}
		ready := make(chan struct{})
		readiness = append(readiness, ready)
		m.subs[entity] = sub
		m.wg.Add(1)
		go m.pump(watchCtx, entity, scope, sub, generation, ready)
	}
	m.mu.Unlock()

	// Every pump signals ready once its snapshot marker is applied, or on
	// exit if the stream dies first.
	for _, ready := range readiness {
		select {
		case <-ctx.Done():
			return apperrors.Wrap(ctx.Err(), "WATCH_FAILED", 503, "interrupted before initial snapshot")
		case <-ready:
		}
	}
	return nil
}

// pump drains one entity stream into the store, preserving delivery order
// within the stream. No ordering is assumed across streams. When the
// stream fails and ResubscribeBackoff is set, the pump keeps re-opening
// the watch for its scope until it succeeds, the session ends, or a newer
// generation takes over.
func (m *Manager) pump(ctx context.Context, entity models.EntityType, scope source.Scope, sub source.Subscription, generation uint64, ready chan struct{}) {
	defer m.wg.Done()
	var once sync.Once
	signalReady := func() { once.Do(func() { close(ready) }) }
	defer signalReady()

	for {
		for ev := range sub.Events() {
			if m.generation.Load() != generation {
				// Stale generation: a newer identity owns the store now.
				continue
			}
			if ev.Op == models.OpSnapshot {
				signalReady()
				continue
			}
			m.apply(entity, ev)
		}
		err := sub.Err()
		if err == nil || m.generation.Load() != generation {
			return
		}
		m.store.SetErr(entity, err)
		if m.metrics != nil {
			m.metrics.ObserveSyncFailure(string(entity))
		}
		m.logger.Error("entity stream failed",
			zap.String("entity", string(entity)),
			zap.Error(err))
		if m.cfg.ResubscribeBackoff <= 0 {
			return
		}

		next := m.reopen(ctx, entity, scope, generation)
		if next == nil {
			return
		}
		m.store.SetErr(entity, nil)
		m.logger.Info("entity stream resubscribed",
			zap.String("entity", string(entity)))
		sub = next
	}
}

// reopen retries the watch after ResubscribeBackoff until it succeeds and
// is registered, or the session is over. Returns nil when the pump should
// give up.
func (m *Manager) reopen(ctx context.Context, entity models.EntityType, scope source.Scope, generation uint64) source.Subscription {
	for {
		select {
		case <-ctx.Done():
			return nil
		case <-time.After(m.cfg.ResubscribeBackoff):
		}
		if m.generation.Load() != generation {
			return nil
		}
		sub, err := m.source.Watch(ctx, entity, scope)
		if err != nil {
			m.logger.Warn("resubscribe attempt failed",
				zap.String("entity", string(entity)),
				zap.Error(err))
			continue
		}
		m.mu.Lock()
		if m.generation.Load() != generation {
			m.mu.Unlock()
			sub.Close()
			return nil
		}
		m.subs[entity] = sub
		m.mu.Unlock()
		return sub
	}
}

func (m *Manager) apply(entity models.EntityType, ev models.ChangeEvent) {
	switch ev.Op {
	case models.OpAdd, models.OpModify:
		if ev.Record == nil {
			m.logger.Warn("dropping change event without record",
				zap.String("entity", string(entity)),
				zap.String("id", ev.ID))
			return
		}
		m.store.Set(entity, ev.ID, ev.Record)
	case models.OpRemove:
		m.store.Remove(entity, ev.ID)
	default:
		m.logger.Warn("dropping change event with unknown op",
			zap.String("entity", string(entity)),
			zap.String("op", string(ev.Op)))
		return
	}
	if m.metrics != nil {
		m.metrics.ObserveSyncEvent(string(entity), string(ev.Op))
	}
}

// UnsubscribeAll closes every subscription and waits for the pumps to
// exit. Idempotent; safe before any subscribe.
func (m *Manager) UnsubscribeAll() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.teardown()
}

// teardown stops the live session. Callers hold lifecycle; mu is released
// before waiting on pumps so a resubscribing pump can finish registering
// and observe the stale generation.
func (m *Manager) teardown() {
	// Advance the generation first so in-flight events are dropped even
	// before the streams finish closing.
	m.generation.Add(1)
	m.mu.Lock()
	for entity, sub := range m.subs {
		sub.Close()
		delete(m.subs, entity)
	}
	if m.cancel != nil {
		m.cancel()
		m.cancel = nil
	}
	m.identity = nil
	m.mu.Unlock()
	m.wg.Wait()
}

// Identity returns the identity of the live session, if any.
func (m *Manager) Identity() *Identity {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.identity == nil {
		return nil
	}
	id := *m.identity
	return &id
}

// Dispose is terminal teardown: unsubscribes and rejects any further
// SubscribeAll.
func (m *Manager) Dispose() {
	m.lifecycle.Lock()
	defer m.lifecycle.Unlock()
	m.teardown()
	m.disposed = true
}
