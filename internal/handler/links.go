package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jonesrussell/linkhealth/internal/domain"
	"github.com/jonesrussell/linkhealth/internal/storage"
)

const defaultTraceListLimit = 10

type createLinkRequest struct {
	OwnerID         string  `binding:"required" json:"owner_id"`
	URL             string  `binding:"required" json:"url"`
	ProductName     string  `json:"product_name"`
	Retailer        string  `json:"retailer"`
	Network         string  `json:"network"`
	ExpectedHost    string  `json:"expected_host"`
	Monetized       bool    `json:"monetized"`
	CommissionPct   float64 `json:"commission_pct"`
	MonthlyClicks   int     `json:"monthly_clicks"`
	DeclaredInStock *bool   `json:"declared_in_stock"`
	Price           float64 `json:"price"`
}

func (h *Handler) createLink(c *gin.Context) {
	var req createLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "owner_id and url are required"})
		return
	}

	link := &domain.TrackedLink{
		OwnerID:         req.OwnerID,
		OriginalURL:     req.URL,
		ProductName:     req.ProductName,
		Retailer:        req.Retailer,
		Network:         req.Network,
		ExpectedHost:    req.ExpectedHost,
		Monetized:       req.Monetized,
		CommissionPct:   req.CommissionPct,
		MonthlyClicks:   req.MonthlyClicks,
		DeclaredInStock: req.DeclaredInStock,
		Price:           req.Price,
	}
	if err := h.store.CreateLink(c.Request.Context(), link); err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to create link"})
		return
	}
	c.JSON(http.StatusCreated, link)
}

// linkView is a tracked link enriched with its latest trace.
type linkView struct {
	domain.TrackedLink
	LatestTrace *domain.Trace `json:"latest_trace,omitempty"`
}

func (h *Handler) listLinks(c *gin.Context) {
	ownerID, ok := requireOwner(c)
	if !ok {
		return
	}

	links, err := h.store.ListLinksByOwner(c.Request.Context(), ownerID)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list links"})
		return
	}

	views := make([]linkView, 0, len(links))
	for _, link := range links {
		view := linkView{TrackedLink: link}

		trace, traceErr := h.store.LatestTrace(c.Request.Context(), link.ID)
		if traceErr != nil && !errors.Is(traceErr, storage.ErrNotFound) {
			c.Error(traceErr)
			c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load traces"})
			return
		}
		view.LatestTrace = trace
		views = append(views, view)
	}
	c.JSON(http.StatusOK, gin.H{"links": views})
}

func (h *Handler) listLinkTraces(c *gin.Context) {
	limit, err := strconv.Atoi(c.DefaultQuery("limit", strconv.Itoa(defaultTraceListLimit)))
	if err != nil || limit < 1 {
		limit = defaultTraceListLimit
	}

	linkID := c.Param("id")
	if _, err = h.store.GetLink(c.Request.Context(), linkID); err != nil {
		if errors.Is(err, storage.ErrNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "link not found"})
			return
		}
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to load link"})
		return
	}

	traces, err := h.store.ListTraces(c.Request.Context(), linkID, limit)
	if err != nil {
		c.Error(err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to list traces"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"traces": traces})
}
