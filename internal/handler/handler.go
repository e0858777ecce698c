// Package handler implements the versioned JSON API over the audit
// engine, registry, and action manager.
package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/actions"
	"github.com/jonesrussell/linkhealth/internal/audit"
	"github.com/jonesrussell/linkhealth/internal/logger"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

// Handler holds the dependencies shared by all endpoints.
type Handler struct {
	engine  *audit.Engine
	store   *storage.Store
	actions *actions.Manager
	rates   *storage.RateCache
	logger  logger.Logger
}

// New creates the API handler.
func New(
	engine *audit.Engine,
	store *storage.Store,
	manager *actions.Manager,
	rates *storage.RateCache,
	log logger.Logger,
) *Handler {
	return &Handler{
		engine:  engine,
		store:   store,
		actions: manager,
		rates:   rates,
		logger:  log,
	}
}

// Register mounts all /api/v1 routes. auditLimiter guards the audit
// trigger endpoint.
func (h *Handler) Register(router *gin.Engine, auditLimiter gin.HandlerFunc) {
	v1 := router.Group("/api/v1")

	audits := v1.Group("/audits")
	if auditLimiter != nil {
		audits.POST("", auditLimiter, h.triggerAudit)
	} else {
		audits.POST("", h.triggerAudit)
	}
	audits.GET("", h.listAudits)
	audits.GET("/:id", h.getAudit)

	v1.POST("/links", h.createLink)
	v1.GET("/links", h.listLinks)
	v1.GET("/links/:id/traces", h.listLinkTraces)

	v1.GET("/issues", h.listIssues)
	v1.PATCH("/issues/:id", h.updateIssue)

	v1.GET("/score", h.getScore)
	v1.GET("/score/history", h.getScoreHistory)

	v1.GET("/opportunities", h.listOpportunities)

	v1.GET("/recommendations", h.listRecommendations)
	v1.POST("/recommendations/:id/save", h.saveRecommendation)
	v1.POST("/recommendations/:id/apply", h.applyRecommendation)
	v1.POST("/recommendations/:id/dismiss", h.dismissRecommendation)

	v1.GET("/rates", h.listRates)
	v1.POST("/rates/refresh", h.refreshRates)
}

// requireOwner extracts the owner_id query parameter or writes a 400.
func requireOwner(c *gin.Context) (string, bool) {
	ownerID := c.Query("owner_id")
	if ownerID == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return "", false
	}
	return ownerID, true
}
