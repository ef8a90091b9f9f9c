package handler

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/ledger"
	"github.com/andresvega/loaderd/internal/pipeline"
	"github.com/andresvega/loaderd/internal/repository"
)

// HistoryHandler exposes the load ledger and rollback.
type HistoryHandler struct {
	records *repository.LoadRecordRepository
	pipe    *pipeline.Pipeline
}

// NewHistoryHandler creates a new history handler.
// Parameters:
//   - records: ledger repository for reads.
//   - pipe: pipeline executing rollbacks.
// Returns:
//   - *HistoryHandler: initialized handler.
func NewHistoryHandler(records *repository.LoadRecordRepository, pipe *pipeline.Pipeline) *HistoryHandler {
	return &HistoryHandler{records: records, pipe: pipe}
}

// List handles GET /api/v1/history. Supports ?limit, ?table and
// ?failed=true filters.
func (h *HistoryHandler) List(c *gin.Context) {
	ctx := c.Request.Context()

	var (
		recs []domain.LoadRecord
		err  error
	)
	switch {
	case c.Query("failed") == "true":
		recs, err = h.records.Failed(ctx)
	case c.Query("table") != "":
		recs, err = h.records.ByTable(ctx, c.Query("table"))
	default:
		limit := 50
		if l, convErr := strconv.Atoi(c.DefaultQuery("limit", "50")); convErr == nil && l > 0 && l <= 500 {
			limit = l
		}
		recs, err = h.records.Recent(ctx, limit)
	}
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list history: " + err.Error(),
		})
		return
	}

	summaries := make([]*domain.Summary, 0, len(recs))
	for i := range recs {
		summaries = append(summaries, recs[i].Summary())
	}
	c.JSON(http.StatusOK, gin.H{
		"history": summaries,
		"total":   len(summaries),
	})
}

// Get handles GET /api/v1/history/:id.
func (h *HistoryHandler) Get(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid history id"})
		return
	}
	rec, err := h.records.GetByID(c.Request.Context(), uint(id))
	if err != nil {
		if errors.Is(err, repository.ErrRecordNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Load record not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get load record: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, rec.Summary())
}

// Stats handles GET /api/v1/history/stats?days=30.
func (h *HistoryHandler) Stats(c *gin.Context) {
	days := 30
	if d, err := strconv.Atoi(c.DefaultQuery("days", "30")); err == nil && d > 0 && d <= 365 {
		days = d
	}
	stats, err := h.records.Statistics(c.Request.Context(), days)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to compute statistics: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

// rollbackRequest is the optional body of a rollback call.
type rollbackRequest struct {
	RequestedBy string `json:"requested_by"`
}

// Rollback handles POST /api/v1/history/:id/rollback.
func (h *HistoryHandler) Rollback(c *gin.Context) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 32)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid history id"})
		return
	}

	var req rollbackRequest
	_ = c.ShouldBindJSON(&req)

	reversal, err := h.pipe.Rollback(c.Request.Context(), uint(id), req.RequestedBy)
	if err != nil {
		switch {
		case errors.Is(err, repository.ErrRecordNotFound):
			c.JSON(http.StatusNotFound, gin.H{"error": "Load record not found"})
		case errors.Is(err, ledger.ErrNotRollbackable):
			c.JSON(http.StatusConflict, gin.H{
				"error": "Only completed insert loads with rollback data can be rolled back",
			})
		default:
			c.JSON(http.StatusInternalServerError, gin.H{
				"error": "Rollback failed: " + err.Error(),
			})
		}
		return
	}
	c.JSON(http.StatusOK, reversal.Summary())
}
