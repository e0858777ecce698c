package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/audit"
	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

const defaultRunListLimit = 20

type triggerAuditRequest struct {
	OwnerID string `binding:"required" json:"owner_id"`
	Type    string `json:"type"`
	Force   bool   `json:"force"`
}

// triggerAudit starts an audit run. The response is immediate; the run
// executes in the background.
func (h *Handler) triggerAudit(c *gin.Context) {
	var req triggerAuditRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id is required"})
		return
	}

	runType := domain.RunType(req.Type)
	if req.Type == "" {
		runType = domain.RunFull
	}

	run, started, err := h.engine.Start(c.Request.Context(), req.OwnerID, runType, req.Force)
	switch {
	case errors.Is(err, audit.ErrInvalidRunType):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	case errors.Is(err, audit.ErrRunActive):
		c.JSON(http.StatusConflict, gin.H{"error": "an audit is already running for this owner"})
		return
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to start audit"})
		return
	}

	if !started {
		// Still inside the minimum interval; the previous run stands.
		c.JSON(http.StatusOK, gin.H{"run": run, "started": false})
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"run": run, "started": true})
}

func (h *Handler) getAudit(c *gin.Context) {
	run, err := h.store.GetRun(c.Request.Context(), c.Param("id"))
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "audit run not found"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load audit run"})
		return
	}
	c.JSON(http.StatusOK, run)
}

func (h *Handler) listAudits(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultRunListLimit)))
	if err != nil || limit < 1 {
		limit = defaultRunListLimit
	}

	runs, err := h.store.ListRunsByOwner(c.Request.Context(), ownerID, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list audit runs"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"runs": runs})
}
