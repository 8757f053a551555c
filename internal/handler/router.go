package handler

import (
	"github.com/gin-gonic/gin"

	"github.com/uniqn-app/staffsync/internal/middleware"
	"github.com/uniqn-app/staffsync/internal/models"
	"github.com/uniqn-app/staffsync/internal/service"
	"github.com/uniqn-app/staffsync/pkg/config"
)

// Deps bundles what the router needs.
type Deps struct {
	Config        *config.Config
	Registry      *service.EngineRegistry
	Announcements *service.AnnouncementService
	Exports       *service.ExportService
	Metrics       *service.MetricsService
	Ready         func() error
}

// RegisterRoutes wires every endpoint under the configured API prefix.
func RegisterRoutes(r *gin.Engine, deps Deps) {
	engineHandler := NewEngineHandler(deps.Registry, deps.Ready)
	r.GET("/health", engineHandler.Health)
	r.GET("/ready", engineHandler.Ready)
	if deps.Metrics != nil {
		r.GET("/metrics", gin.WrapH(deps.Metrics.Handler()))
	}

	api := r.Group(deps.Config.APIPrefix)
	api.Use(middleware.JWT(deps.Config.JWT.Secret))

	scheduleHandler := NewScheduleHandler(deps.Registry, nil)
	schedules := api.Group("/schedules")
	schedules.GET("", scheduleHandler.List)
	schedules.GET("/today", scheduleHandler.Today)
	schedules.GET("/upcoming", scheduleHandler.Upcoming)
	schedules.GET("/stats", scheduleHandler.Stats)

	if deps.Exports != nil {
		exportHandler := NewExportHandler(deps.Registry, deps.Exports, nil)
		schedules.POST("/export", exportHandler.Export)
		r.GET("/downloads", exportHandler.Download)
	}

	announcementHandler := NewAnnouncementHandler(deps.Announcements)
	announcements := api.Group("/announcements")
	announcements.GET("", announcementHandler.List)
	announcements.POST("/:id/view", announcementHandler.View)

	adminOnly := middleware.RequireRoles(models.RoleAdmin)
	announcements.POST("", adminOnly, announcementHandler.Create)
	announcements.PUT("/:id", adminOnly, announcementHandler.Update)
	announcements.DELETE("/:id", adminOnly, announcementHandler.Delete)

	api.GET("/engine/status", engineHandler.Status)
}
