package service

import (
	"container/list"
	"context"
	"sync"

	"go.uber.org/zap"

	syncengine "github.com/uniqn-app/staffsync/internal/sync"
)

// EngineRegistry keys one engine session per authenticated subject. A
// request from a subject with no live session opens one; a subject whose
// role changed gets the old session torn down and a fresh subscribe, so
// rows scoped to the previous role can never linger.
type EngineRegistry struct {
	// baseCtx bounds every session's watch streams. Sessions outlive the
	// requests that open them, so streams hang off the registry's
	// lifetime, never a request context.
	baseCtx     context.Context
	factory     func() *EngineService
	maxSessions int
	logger      *zap.Logger

	mu      sync.Mutex
	engines map[string]*engineEntry
	order   *list.List // actor ids, least recently used at the front
}

type engineEntry struct {
	engine   *EngineService
	identity syncengine.Identity
	elem     *list.Element
}

// NewEngineRegistry constructs the registry. ctx is the application
// lifetime context sessions are started under; factory builds a fresh,
// unstarted engine per session.
func NewEngineRegistry(ctx context.Context, factory func() *EngineService, maxSessions int, logger *zap.Logger) *EngineRegistry {
	if ctx == nil {
		ctx = context.Background()
	}
	if maxSessions <= 0 {
		maxSessions = 64
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EngineRegistry{
		baseCtx:     ctx,
		factory:     factory,
		maxSessions: maxSessions,
		logger:      logger,
		engines:     make(map[string]*engineEntry),
		order:       list.New(),
	}
}

// Acquire returns the subject's live engine, starting one when needed.
func (r *EngineRegistry) Acquire(identity syncengine.Identity) (*EngineService, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if entry, ok := r.engines[identity.ActorID]; ok {
		if entry.identity == identity {
			r.order.MoveToBack(entry.elem)
			return entry.engine, nil
		}
		// Same subject, different role: tear down and resubscribe.
		r.logger.Info("identity changed, restarting session",
			zap.String("actor_id", identity.ActorID),
			zap.String("old_role", string(entry.identity.Role)),
			zap.String("new_role", string(identity.Role)))
		if err := entry.engine.Start(r.baseCtx, identity); err != nil {
			return nil, err
		}
		entry.identity = identity
		r.order.MoveToBack(entry.elem)
		return entry.engine, nil
	}

	r.evictLocked()

	engine := r.factory()
	if err := engine.Start(r.baseCtx, identity); err != nil {
		engine.Dispose()
		return nil, err
	}
	entry := &engineEntry{
		engine:   engine,
		identity: identity,
		elem:     r.order.PushBack(identity.ActorID),
	}
	r.engines[identity.ActorID] = entry
	return engine, nil
}

// evictLocked disposes the least recently used session once the registry
// is full. Caller holds the lock.
func (r *EngineRegistry) evictLocked() {
	for len(r.engines) >= r.maxSessions {
		front := r.order.Front()
		if front == nil {
			return
		}
		actorID := front.Value.(string)
		if entry, ok := r.engines[actorID]; ok {
			entry.engine.Dispose()
			delete(r.engines, actorID)
		}
		r.order.Remove(front)
		r.logger.Info("evicted idle engine session", zap.String("actor_id", actorID))
	}
}

// Drop tears down one subject's session, e.g. on logout.
func (r *EngineRegistry) Drop(actorID string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	entry, ok := r.engines[actorID]
	if !ok {
		return
	}
	entry.engine.Dispose()
	r.order.Remove(entry.elem)
	delete(r.engines, actorID)
}

// Sessions returns the number of live sessions.
func (r *EngineRegistry) Sessions() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.engines)
}

// Close disposes every session.
func (r *EngineRegistry) Close() {
	r.mu.Lock()
	defer r.mu.Unlock()
	for actorID, entry := range r.engines {
		entry.engine.Dispose()
		delete(r.engines, actorID)
	}
	r.order.Init()
}
