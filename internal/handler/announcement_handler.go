package handler

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/service"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/response"
)

// AnnouncementHandler serves the announcement feed and its admin
// workflows.
type AnnouncementHandler struct {
	service *service.AnnouncementService
}

// NewAnnouncementHandler constructs the handler.
func NewAnnouncementHandler(svc *service.AnnouncementService) *AnnouncementHandler {
	return &AnnouncementHandler{service: svc}
}

// List returns one page of the feed. Walking past the known cursor window
// returns the page-unavailable error; clients restart from page one.
func (h *AnnouncementHandler) List(c *gin.Context) {
	page := 1
	if parsed, err := strconv.Atoi(c.DefaultQuery("page", "1")); err == nil {
		page = parsed
	}
	filters := models.AnnouncementFilters{
		ActiveOnly: c.DefaultQuery("active", "true") != "false",
	}
	if p := c.Query("priority"); p != "" {
		priority := models.AnnouncementPriority(p)
		filters.Priority = &priority
	}

	result, err := h.service.Page(c.Request.Context(), page, filters)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusOK, result.Items, &result.Pagination, map[string]interface{}{
		"has_more": result.HasMore,
	})
}

// View bumps the announcement's read counter. Always succeeds from the
// client's point of view.
func (h *AnnouncementHandler) View(c *gin.Context) {
	h.service.IncrementViewCount(c.Request.Context(), c.Param("id"))
	response.NoContent(c)
}

// Create publishes a new announcement.
func (h *AnnouncementHandler) Create(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}

	var req service.CreateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	req.CreatedBy = claims.UserID
	req.CreatorName = claims.FullName

	created, err := h.service.Create(c.Request.Context(), req)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.Created(c, created)
}

// Update edits an announcement.
func (h *AnnouncementHandler) Update(c *gin.Context) {
	var req service.UpdateAnnouncementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "invalid request body"))
		return
	}
	if err := h.service.Update(c.Request.Context(), c.Param("id"), req); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}

// Delete removes an announcement.
func (h *AnnouncementHandler) Delete(c *gin.Context) {
	if err := h.service.Delete(c.Request.Context(), c.Param("id")); err != nil {
		response.Error(c, err)
		return
	}
	response.NoContent(c)
}
