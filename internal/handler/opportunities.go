package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func (h *Handler) listOpportunities(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	opps, err := h.store.ListActiveOpportunities(c.Request.Context(), ownerID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list opportunities"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"opportunities": opps})
}
