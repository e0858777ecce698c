package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

func (h *Handler) listIssues(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	filter := storage.IssueFilter{
		Severity: domain.Severity(c.Query("severity")),
		Status:   domain.IssueStatus(c.Query("status")),
		SortBy:   c.Query("sort"),
	}

	issues, err := h.store.ListIssues(c.Request.Context(), ownerID, filter)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list issues"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"issues": issues})
}

type updateIssueRequest struct {
	Status string `binding:"required" json:"status"`
}

func (h *Handler) updateIssue(c *gin.Context) {
	var req updateIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "status is required"})
		return
	}

	issue, err := h.store.UpdateIssueStatus(c.Request.Context(), c.Param("id"), domain.IssueStatus(req.Status))
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "issue not found"})
		return
	case errors.Is(err, storage.ErrInvalidTransition):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
		return
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update issue"})
		return
	}
	c.JSON(http.StatusOK, issue)
}
