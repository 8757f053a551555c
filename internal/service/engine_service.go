package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/schedule"
	"github.com/uniqn-app/staffsync/internal/store"
	syncengine "github.com/uniqn-app/staffsync/internal/sync"
)

// EngineService owns one identity's sync session: the normalized store,
// the subscription manager keeping it fresh, and the projector deriving
// views from it.
type EngineService struct {
	store     *store.Store
	manager   *syncengine.Manager
	projector *schedule.Projector
	logger    *zap.Logger
}

// EntityStatus is one table's health snapshot.
type EntityStatus struct {
	Count       int        `json:"count"`
	Revision    uint64     `json:"revision"`
	LastUpdated *time.Time `json:"last_updated,omitempty"`
	Error       string     `json:"error,omitempty"`
}

// EngineStatus is the whole engine's health snapshot.
type EngineStatus struct {
	ActorID  string                  `json:"actor_id,omitempty"`
	Role     models.UserRole         `json:"role,omitempty"`
	Running  bool                    `json:"running"`
	Entities map[string]EntityStatus `json:"entities"`
}

// NewEngineService assembles the engine for one watcher. metrics may be
// nil; the same MetricsService feeds the store, manager and projector.
func NewEngineService(watcher syncengine.Watcher, cfg syncengine.Config, logger *zap.Logger, metrics *MetricsService) *EngineService {
	if logger == nil {
		logger = zap.NewNop()
	}

	var storeMetrics store.MetricsRecorder
	var syncMetrics syncengine.MetricsRecorder
	var scheduleMetrics schedule.MetricsRecorder
	if metrics != nil {
		storeMetrics = metrics
		syncMetrics = metrics
		scheduleMetrics = metrics
	}

	st := store.New(logger, storeMetrics)
	return &EngineService{
		store:     st,
		manager:   syncengine.NewManager(watcher, st, cfg, logger, syncMetrics),
		projector: schedule.NewProjector(st, logger, scheduleMetrics),
		logger:    logger,
	}
}

// Start opens the session for an identity, replacing any previous one.
// Projection state is reset alongside the store so the new identity never
// inherits the previous session's supersession history.
func (s *EngineService) Start(ctx context.Context, identity syncengine.Identity) error {
	s.projector.Reset()
	if err := s.manager.SubscribeAll(ctx, identity); err != nil {
		return err
	}
	s.logger.Info("engine session started",
		zap.String("actor_id", identity.ActorID),
		zap.String("role", string(identity.Role)))
	return nil
}

// Stop tears the session down but keeps the engine usable.
func (s *EngineService) Stop() {
	s.manager.UnsubscribeAll()
	s.logger.Info("engine session stopped")
}

// Dispose is terminal teardown.
func (s *EngineService) Dispose() {
	s.manager.Dispose()
}

// Store exposes the normalized store for selector consumers.
func (s *EngineService) Store() *store.Store { return s.store }

// Projector exposes the schedule projector.
func (s *EngineService) Projector() *schedule.Projector { return s.projector }

// Status snapshots per-entity health for the gateway.
func (s *EngineService) Status() EngineStatus {
	status := EngineStatus{Entities: make(map[string]EntityStatus, len(models.EntityTypes))}
	if identity := s.manager.Identity(); identity != nil {
		status.Running = true
		status.ActorID = identity.ActorID
		status.Role = identity.Role
	}
	for _, entity := range models.EntityTypes {
		es := EntityStatus{
			Count:    s.store.Len(entity),
			Revision: s.store.Revision(entity),
		}
		if t := s.store.LastUpdated(entity); !t.IsZero() {
			updated := t
			es.LastUpdated = &updated
		}
		if err := s.store.Err(entity); err != nil {
			es.Error = err.Message
		}
		status.Entities[string(entity)] = es
	}
	return status
}
