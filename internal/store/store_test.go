package store

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
	apperrors "github.com/uniqn-app/staffsync/pkg/errors"
)

func workLog(id, staffID, eventID, date string) models.WorkLog {
	return models.WorkLog{
		ID:      id,
		StaffID: staffID,
		EventID: eventID,
		Date:    date,
		Status:  models.WorkLogScheduled,
	}
}

func TestStoreSetGetRemove(t *testing.T) {
	s := New(nil, nil)

	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))
	got, ok := s.Get(models.EntityWorkLogs, "wl-1")
	require.True(t, ok)
	assert.Equal(t, "staff-1", got.(models.WorkLog).StaffID)
	assert.Equal(t, 1, s.Len(models.EntityWorkLogs))

	s.Remove(models.EntityWorkLogs, "wl-1")
	_, ok = s.Get(models.EntityWorkLogs, "wl-1")
	assert.False(t, ok)
	assert.Equal(t, 0, s.Len(models.EntityWorkLogs))
}

func TestStoreRejectsEmptyID(t *testing.T) {
	s := New(nil, nil)
	before := s.Revision(models.EntityWorkLogs)

	s.Set(models.EntityWorkLogs, "", workLog("", "staff-1", "ev-1", "2026-08-29"))

	assert.Equal(t, 0, s.Len(models.EntityWorkLogs))
	assert.Equal(t, before, s.Revision(models.EntityWorkLogs))
}

func TestStoreRevisionBumpsPerMutation(t *testing.T) {
	s := New(nil, nil)
	r0 := s.Revision(models.EntityWorkLogs)

	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))
	r1 := s.Revision(models.EntityWorkLogs)
	assert.Greater(t, r1, r0)

	// Redelivering the same record is idempotent for contents but still
	// bumps the revision.
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))
	assert.Equal(t, 1, s.Len(models.EntityWorkLogs))
	assert.Greater(t, s.Revision(models.EntityWorkLogs), r1)

	// Other tables are untouched.
	assert.Equal(t, r0, s.Revision(models.EntityApplications))
}

func TestByForeignKeyUsesIndex(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityWorkLogs, "wl-2", workLog("wl-2", "staff-1", "ev-2", "2026-08-30"))
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))
	s.Set(models.EntityWorkLogs, "wl-3", workLog("wl-3", "staff-2", "ev-1", "2026-08-29"))

	byStaff := s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1")
	require.Len(t, byStaff, 2)
	assert.Equal(t, "wl-1", byStaff[0].(models.WorkLog).ID)
	assert.Equal(t, "wl-2", byStaff[1].(models.WorkLog).ID)

	byEvent := s.ByForeignKey(models.EntityWorkLogs, "event_id", "ev-1")
	require.Len(t, byEvent, 2)
}

func TestByForeignKeyReferenceStability(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))

	first := s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1")
	second := s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1")
	require.Len(t, first, 1)
	// Same slice header while nothing changed.
	assert.Same(t, &first[0], &second[0])

	// A mutation to another staff member's row still invalidates the
	// entity's memo: revision is per entity, not per key.
	s.Set(models.EntityWorkLogs, "wl-9", workLog("wl-9", "staff-2", "ev-1", "2026-08-29"))
	third := s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1")
	require.Len(t, third, 1)
	assert.Equal(t, "wl-1", third[0].(models.WorkLog).ID)
}

func TestIndexFollowsForeignKeyChange(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))

	// Reassigning the shift moves the row between index buckets.
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-2", "ev-1", "2026-08-29"))

	assert.Empty(t, s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1"))
	require.Len(t, s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-2"), 1)

	s.Remove(models.EntityWorkLogs, "wl-1")
	assert.Empty(t, s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-2"))
}

func TestReplaceAllSwapsSnapshot(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityStaff, "staff-1", models.Staff{ID: "staff-1", PostingID: "post-1"})
	before := s.Revision(models.EntityStaff)

	s.ReplaceAll(models.EntityStaff, map[string]any{
		"staff-2": models.Staff{ID: "staff-2", PostingID: "post-1"},
		"staff-3": models.Staff{ID: "staff-3", PostingID: "post-2"},
	})

	assert.Equal(t, 2, s.Len(models.EntityStaff))
	_, ok := s.Get(models.EntityStaff, "staff-1")
	assert.False(t, ok)
	assert.Greater(t, s.Revision(models.EntityStaff), before)
	require.Len(t, s.ByForeignKey(models.EntityStaff, "posting_id", "post-1"), 1)
}

func TestErrSlotIsPerEntity(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))

	s.SetErr(models.EntityApplications, apperrors.ErrSubscriptionClosed)

	require.NotNil(t, s.Err(models.EntityApplications))
	assert.Nil(t, s.Err(models.EntityWorkLogs))
	// Records survive an error: stale data plus an error beats no data.
	assert.Equal(t, 1, s.Len(models.EntityWorkLogs))

	s.SetErr(models.EntityApplications, nil)
	assert.Nil(t, s.Err(models.EntityApplications))
}

func TestClearEmptiesEverythingButKeepsCounting(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityWorkLogs, "wl-1", workLog("wl-1", "staff-1", "ev-1", "2026-08-29"))
	s.SetErr(models.EntityStaff, apperrors.ErrSubscriptionClosed)
	before := s.Revision(models.EntityWorkLogs)

	s.Clear()

	assert.Equal(t, 0, s.Len(models.EntityWorkLogs))
	assert.Nil(t, s.Err(models.EntityStaff))
	assert.Greater(t, s.Revision(models.EntityWorkLogs), before)
	assert.Empty(t, s.ByForeignKey(models.EntityWorkLogs, "staff_id", "staff-1"))
}

func TestFilterSortsById(t *testing.T) {
	s := New(nil, nil)
	s.Set(models.EntityApplications, "app-2", models.Application{ID: "app-2", ApplicantID: "staff-1", Status: models.ApplicationPending})
	s.Set(models.EntityApplications, "app-1", models.Application{ID: "app-1", ApplicantID: "staff-1", Status: models.ApplicationConfirmed})

	pending := s.Filter(models.EntityApplications, func(r any) bool {
		return r.(models.Application).Status == models.ApplicationPending
	})
	require.Len(t, pending, 1)
	assert.Equal(t, "app-2", pending[0].(models.Application).ID)

	all := s.All(models.EntityApplications)
	require.Len(t, all, 2)
	assert.Equal(t, "app-1", all[0].(models.Application).ID)
}
