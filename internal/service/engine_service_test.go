package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/source"
	syncengine "github.com/uniqn-app/staffsync/internal/sync"
)

func waitCondition(t *testing.T, cond func() bool) {
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

func TestEngineLifecycle(t *testing.T) {
	mem := source.NewMemory()
	mem.Seed(models.EntityWorkLogs, "wl-1", map[string]any{
		"id": "wl-1", "staff_id": "staff-1", "event_id": "ev-1", "date": "2026-08-29", "status": "scheduled",
	})

	engine := NewEngineService(mem, syncengine.Config{}, nil, nil)
	defer engine.Dispose()

	status := engine.Status()
	assert.False(t, status.Running)

	require.NoError(t, engine.Start(context.Background(), syncengine.Identity{ActorID: "staff-1", Role: models.RoleStaff}))
	waitCondition(t, func() bool { return engine.Store().Len(models.EntityWorkLogs) == 1 })

	status = engine.Status()
	assert.True(t, status.Running)
	assert.Equal(t, "staff-1", status.ActorID)
	assert.Equal(t, 1, status.Entities[string(models.EntityWorkLogs)].Count)
	assert.NotNil(t, status.Entities[string(models.EntityWorkLogs)].LastUpdated)

	events := engine.Projector().Project("staff-1", models.ScheduleFilters{})
	require.Len(t, events, 1)

	engine.Stop()
	assert.False(t, engine.Status().Running)
}

func TestEngineStatusSurfacesStreamErrors(t *testing.T) {
	mem := source.NewMemory()
	mem.FailWatch(models.EntityApplications, assert.AnError)

	engine := NewEngineService(mem, syncengine.Config{}, nil, nil)
	defer engine.Dispose()

	require.NoError(t, engine.Start(context.Background(), syncengine.Identity{ActorID: "admin-1", Role: models.RoleAdmin}))
	waitCondition(t, func() bool {
		return engine.Status().Entities[string(models.EntityApplications)].Error != ""
	})
	assert.Empty(t, engine.Status().Entities[string(models.EntityWorkLogs)].Error)
}
