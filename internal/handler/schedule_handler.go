package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/service"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/response"
)

// ScheduleHandler serves the derived schedule views.
type ScheduleHandler struct {
	registry *service.EngineRegistry
	logger   *zap.Logger
}

// NewScheduleHandler constructs the handler.
func NewScheduleHandler(registry *service.EngineRegistry, logger *zap.Logger) *ScheduleHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ScheduleHandler{registry: registry, logger: logger}
}

func (h *ScheduleHandler) scheduleService(c *gin.Context) (*service.ScheduleService, string, error) {
	claims := claimsFromContext(c)
	if claims == nil {
		return nil, "", appErrors.ErrUnauthorized
	}
	engine, err := h.registry.Acquire(identityFromClaims(claims))
	if err != nil {
		return nil, "", err
	}
	return service.NewScheduleService(engine.Projector(), h.logger), subjectID(c, claims), nil
}

func scheduleFiltersFromQuery(c *gin.Context) models.ScheduleFilters {
	filters := models.ScheduleFilters{
		DateRange: models.DateRange{
			Start: c.Query("start"),
			End:   c.Query("end"),
		},
		SearchTerm: c.Query("q"),
		EventID:    c.Query("event_id"),
	}
	if t := c.Query("type"); t != "" {
		eventType := models.ScheduleEventType(t)
		filters.Type = &eventType
	}
	return filters
}

// List returns the subject's schedule with query filters applied.
func (h *ScheduleHandler) List(c *gin.Context) {
	svc, subject, err := h.scheduleService(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	events := svc.List(subject, scheduleFiltersFromQuery(c))
	response.JSON(c, http.StatusOK, events, nil)
}

// Today returns the subject's events for the current date.
func (h *ScheduleHandler) Today(c *gin.Context) {
	svc, subject, err := h.scheduleService(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc.Today(subject), nil)
}

// Upcoming returns the subject's events for the coming days.
func (h *ScheduleHandler) Upcoming(c *gin.Context) {
	svc, subject, err := h.scheduleService(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	days := 7
	if parsed, err := strconv.Atoi(c.DefaultQuery("days", "7")); err == nil {
		days = parsed
	}
	response.JSON(c, http.StatusOK, svc.Upcoming(subject, days), nil)
}

// Stats summarizes the subject's filtered schedule.
func (h *ScheduleHandler) Stats(c *gin.Context) {
	svc, subject, err := h.scheduleService(c)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, svc.Stats(subject, scheduleFiltersFromQuery(c)), nil)
}
