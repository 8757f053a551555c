package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/uniqn-app/staffsync/internal/service"
	appErrors "github.com/uniqn-app/staffsync/pkg/errors"
	"github.com/uniqn-app/staffsync/pkg/response"
)

// EngineHandler exposes engine health for the authenticated subject.
type EngineHandler struct {
	registry *service.EngineRegistry
	ready    func() error
}

// NewEngineHandler constructs the handler. ready probes the backing
// dependencies for the readiness endpoint.
func NewEngineHandler(registry *service.EngineRegistry, ready func() error) *EngineHandler {
	return &EngineHandler{registry: registry, ready: ready}
}

// Status returns the per-entity snapshot of the caller's engine session.
func (h *EngineHandler) Status(c *gin.Context) {
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
	response.JSON(c, http.StatusOK, engine.Status(), nil)
}

// Health is a liveness probe.
func (h *EngineHandler) Health(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{"status": "ok"})
}

// Ready is a readiness probe covering the backing dependencies.
func (h *EngineHandler) Ready(c *gin.Context) {
	if h.ready != nil {
		if err := h.ready(); err != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "unavailable", "error": err.Error()})
			return
		}
	}
	c.JSON(http.StatusOK, gin.H{"status": "ready", "sessions": h.registry.Sessions()})
}
