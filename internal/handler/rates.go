package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/logger"
)

func (h *Handler) listRates(c *gin.Context) {
	rates, err := h.store.ListRates(c.Request.Context())
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list rates"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"rates": rates})
}

type refreshRatesRequest struct {
	Rates []domain.RetailerRate `json:"rates"`
}

// refreshRates replaces the rate table when a payload is supplied and
// always drops the cache so the next audit reads fresh rates.
func (h *Handler) refreshRates(c *gin.Context) {
	var req refreshRatesRequest
	if err := c.ShouldBindJSON(&req); err != nil && c.Request.ContentLength > 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "malformed rate table"})
		return
	}

	if len(req.Rates) > 0 {
		if err := h.store.ReplaceRates(c.Request.Context(), req.Rates); err != nil {
			c.Error(err)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to replace rates"})
			return
		}
	}

	if err := h.rates.Invalidate(c.Request.Context()); err != nil {
		h.logger.Warn("rate cache invalidation failed", logger.Error(err))
	}

	c.JSON(http.StatusOK, gin.H{"replaced": len(req.Rates)})
}
