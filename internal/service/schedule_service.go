package service

import (
	"time"

	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
)

type scheduleProjector interface {
	Project(subjectID string, filters models.ScheduleFilters) []models.ScheduleEvent
	Stats(subjectID string, filters models.ScheduleFilters) models.ScheduleStats
}

// ScheduleService is thin orchestration over the projector: named views
// (today, upcoming) and stats for the gateway.
type ScheduleService struct {
	projector scheduleProjector
	logger    *zap.Logger
	now       func() time.Time
}

// NewScheduleService constructs the service.
func NewScheduleService(projector scheduleProjector, logger *zap.Logger) *ScheduleService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleService{projector: projector, logger: logger, now: time.Now}
}

const dateLayout = "2006-01-02"

// List returns the subject's schedule with arbitrary filters.
func (s *ScheduleService) List(subjectID string, filters models.ScheduleFilters) []models.ScheduleEvent {
	return s.projector.Project(subjectID, filters)
}

// ByDate returns the subject's events on one date.
func (s *ScheduleService) ByDate(subjectID, date string) []models.ScheduleEvent {
	return s.projector.Project(subjectID, models.ScheduleFilters{
		DateRange: models.DateRange{Start: date, End: date},
	})
}

// Today returns the subject's events for the current date.
func (s *ScheduleService) Today(subjectID string) []models.ScheduleEvent {
	return s.ByDate(subjectID, s.now().UTC().Format(dateLayout))
}

// Upcoming returns the subject's events for the next `days` days,
// today included.
func (s *ScheduleService) Upcoming(subjectID string, days int) []models.ScheduleEvent {
	if days <= 0 {
		days = 7
	}
	start := s.now().UTC()
	end := start.AddDate(0, 0, days)
	return s.projector.Project(subjectID, models.ScheduleFilters{
		DateRange: models.DateRange{
			Start: start.Format(dateLayout),
			End:   end.Format(dateLayout),
		},
	})
}

// Stats summarizes the subject's filtered schedule.
func (s *ScheduleService) Stats(subjectID string, filters models.ScheduleFilters) models.ScheduleStats {
	return s.projector.Stats(subjectID, filters)
}
