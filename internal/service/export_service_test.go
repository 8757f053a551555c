package service

import (
	"io"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/uniqn-app/staffsync/internal/models"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/storage"
)

type fakeExportStore struct {
	dir   string
	saved []string
}

func newFakeExportStore(t *testing.T) *fakeExportStore {
	return &fakeExportStore{dir: t.TempDir()}
}

func (s *fakeExportStore) Save(relPath string, data []byte) error {
	path := filepath.Join(s.dir, relPath)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return err
	}
	s.saved = append(s.saved, relPath)
	return nil
}

func (s *fakeExportStore) Open(relPath string) (*os.File, error) {
	return os.Open(filepath.Join(s.dir, relPath))
}

func exportEvents() []models.ScheduleEvent {
	return []models.ScheduleEvent{
		{
			ID:        "wl:log-1",
			Type:      models.ScheduleConfirmed,
			Date:      "2026-09-01",
			StartTime: "09:00",
			EndTime:   "17:00",
			EventID:   "event-1",
			EventName: "Summer Festival",
			Location:  "Main Hall",
			Role:      "server",
			Status:    models.AttendanceCheckedIn,
		},
		{
			ID:      "app:app-1",
			Type:    models.ScheduleApplied,
			Date:    "2026-09-03",
			EventID: "event-2",
			Status:  models.AttendanceNotStarted,
		},
	}
}

func TestExportScheduleCSVRoundTrip(t *testing.T) {
	store := newFakeExportStore(t)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, nil)

	result, err := svc.ExportSchedule("staff-1", exportEvents(), ExportCSV)
	require.NoError(t, err)
	require.Len(t, store.saved, 1)
	assert.True(t, strings.HasPrefix(result.Path, "schedules/staff-1/"))
	assert.True(t, strings.HasSuffix(result.Path, ".csv"))
	assert.True(t, result.ExpiresAt.After(time.Now()))

	download, err := svc.OpenDownload(result.Token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "text/csv", download.ContentType)
	raw, err := io.ReadAll(download.File)
	require.NoError(t, err)
	body := string(raw)
	assert.Contains(t, body, "Date,Start,End,Event,Location,Role,Type,Status")
	assert.Contains(t, body, "2026-09-01,09:00,17:00,Summer Festival,Main Hall,server,confirmed,checked_in")
	assert.Contains(t, body, "2026-09-03,,,,,,applied,not_started")
}

func TestExportSchedulePDF(t *testing.T) {
	store := newFakeExportStore(t)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, nil)

	result, err := svc.ExportSchedule("staff-1", exportEvents(), ExportPDF)
	require.NoError(t, err)
	assert.True(t, strings.HasSuffix(result.Path, ".pdf"))

	download, err := svc.OpenDownload(result.Token)
	require.NoError(t, err)
	defer download.File.Close()

	assert.Equal(t, "application/pdf", download.ContentType)
	header := make([]byte, 5)
	_, err = io.ReadFull(download.File, header)
	require.NoError(t, err)
	assert.Equal(t, "%PDF-", string(header))
}

func TestExportScheduleRejectsBadInput(t *testing.T) {
	store := newFakeExportStore(t)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, nil)

	_, err := svc.ExportSchedule("", exportEvents(), ExportCSV)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)

	_, err = svc.ExportSchedule("staff-1", exportEvents(), ExportFormat("xlsx"))
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Empty(t, store.saved)
}

func TestOpenDownloadRejectsBadTokens(t *testing.T) {
	store := newFakeExportStore(t)
	signer := storage.NewSignedURLSigner("secret", time.Hour)
	svc := NewExportService(store, signer, nil)

	_, err := svc.OpenDownload("not-a-token")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)

	result, err := svc.ExportSchedule("staff-1", exportEvents(), ExportCSV)
	require.NoError(t, err)

	other := storage.NewSignedURLSigner("other-secret", time.Hour)
	otherSvc := NewExportService(store, other, nil)
	_, err = otherSvc.OpenDownload(result.Token)
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrUnauthorized.Code, appErrors.FromError(err).Code)
}
