package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/actions"
	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

func (h *Handler) listRecommendations(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	recs, err := h.actions.List(c.Request.Context(), ownerID, domain.ActionStatus(c.Query("status")))
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list recommendations"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"recommendations": recs})
}

func (h *Handler) saveRecommendation(c *gin.Context) {
	rec, err := h.actions.Save(c.Request.Context(), c.Param("id"))
	h.respondDisposition(c, rec, err)
}

type applyRecommendationRequest struct {
	SwitchedTo string `json:"switched_to"`
}

func (h *Handler) applyRecommendation(c *gin.Context) {
	var req applyRecommendationRequest
	// Body is optional; apply without it falls back to the suggestion.
	_ = c.ShouldBindJSON(&req)

	rec, err := h.actions.Apply(c.Request.Context(), c.Param("id"), req.SwitchedTo)
	h.respondDisposition(c, rec, err)
}

func (h *Handler) dismissRecommendation(c *gin.Context) {
	rec, err := h.actions.Dismiss(c.Request.Context(), c.Param("id"))
	h.respondDisposition(c, rec, err)
}

func (h *Handler) respondDisposition(c *gin.Context, rec *domain.Recommendation, err error) {
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": "recommendation not found"})
	case errors.Is(err, actions.ErrConflict):
		c.JSON(http.StatusConflict, gin.H{"error": err.Error()})
	case err != nil:
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to update recommendation"})
	default:
		c.JSON(http.StatusOK, rec)
	}
}
