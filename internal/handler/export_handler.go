package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/uniqn-app/staffsync/internal/service"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/response"
)

// ExportHandler renders schedule exports and serves their downloads.
type ExportHandler struct {
	registry *service.EngineRegistry
	exports  *service.ExportService
	logger   *zap.Logger
}

// NewExportHandler constructs the handler.
func NewExportHandler(registry *service.EngineRegistry, exports *service.ExportService, logger *zap.Logger) *ExportHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ExportHandler{registry: registry, exports: exports, logger: logger}
}

// Export renders the subject's filtered schedule as CSV or PDF and
// returns a signed download token.
func (h *ExportHandler) Export(c *gin.Context) {
	claims := claimsFromContext(c)
	if claims == nil {
		response.Error(c, appErrors.ErrUnauthorized)
		return
	}
	engine, err := h.registry.Acquire(identityFromClaims(claims))
	if err != nil {
		response.Error(c, err)
		return
	}
	subject := subjectID(c, claims)
	svc := service.NewScheduleService(engine.Projector(), h.logger)
	events := svc.List(subject, scheduleFiltersFromQuery(c))

	format := service.ExportFormat(c.DefaultQuery("format", "csv"))
	result, err := h.exports.ExportSchedule(subject, events, format)
	if err != nil {
		response.Error(c, err)
		return
	}
	response.JSON(c, http.StatusCreated, result, nil, map[string]interface{}{
		"download_url": "/downloads?token=" + result.Token,
	})
}

// Download streams a previously exported file. Access is granted by the
// signed token alone; no session is required.
func (h *ExportHandler) Download(c *gin.Context) {
	token := c.Query("token")
	if token == "" {
		response.Error(c, appErrors.Clone(appErrors.ErrValidation, "token is required"))
		return
	}
	download, err := h.exports.OpenDownload(token)
	if err != nil {
		response.Error(c, err)
		return
	}
	defer download.File.Close() //nolint:errcheck

	info, err := download.File.Stat()
	if err != nil {
		response.Error(c, appErrors.Wrap(err, "EXPORT_READ_FAILED", 500, "failed to read export"))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="`+download.Filename+`"`)
	c.DataFromReader(http.StatusOK, info.Size(), download.ContentType, download.File, nil)
}
