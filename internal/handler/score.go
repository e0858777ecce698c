package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/scorer"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

const defaultHistoryLimit = 30

func (h *Handler) getScore(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	snap, err := h.store.LatestSnapshot(c.Request.Context(), ownerID)
	if errors.Is(err, storage.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "no audit has produced a score yet"})
		return
	}
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load score"})
		return
	}
	c.JSON(http.StatusOK, snap)
}

func (h *Handler) getScoreHistory(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultHistoryLimit)))
	if err != nil || limit < 1 {
		limit = defaultHistoryLimit
	}

	history, err := h.store.SnapshotHistory(c.Request.Context(), ownerID, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load score history"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"history":  history,
		"forecast": scorer.Forecast(history),
	})
}
