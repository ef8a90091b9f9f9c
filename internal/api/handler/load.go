package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresvega/loaderd/internal/pipeline"
	"github.com/andresvega/loaderd/internal/repository"
	"github.com/andresvega/loaderd/internal/scheduler"
	"github.com/andresvega/loaderd/internal/session"
)

// LoadRequest is the submission body of POST /api/v1/loads.
type LoadRequest struct {
	pipeline.LoadParams
	// Priority orders the queue; lower numbers run first.
	Priority int `json:"priority"`
}

// LoadHandler accepts load submissions and exposes job state.
type LoadHandler struct {
	sched    *scheduler.Scheduler
	sessions *session.Store
}

// NewLoadHandler creates a new load handler.
// Parameters:
//   - sched: scheduler receiving load jobs.
//   - sessions: session store used to verify submissions up front.
// Returns:
//   - *LoadHandler: initialized handler.
func NewLoadHandler(sched *scheduler.Scheduler, sessions *session.Store) *LoadHandler {
	return &LoadHandler{sched: sched, sessions: sessions}
}

// Submit handles POST /api/v1/loads. Validation failures are rejected
// here; a job only exists once the submission is well-formed.
func (h *LoadHandler) Submit(c *gin.Context) {
	var req LoadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if err := req.LoadParams.Validate(); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": err.Error(),
		})
		return
	}
	if _, err := h.sessions.Get(req.SessionID); err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Unknown or expired upload session",
		})
		return
	}

	job, err := h.sched.Submit(c.Request.Context(), pipeline.JobKindLoad, req.LoadParams, req.Priority)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to submit load: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusAccepted, job.View())
}

// Status handles GET /api/v1/jobs/:id.
func (h *LoadHandler) Status(c *gin.Context) {
	view, err := h.sched.Status(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get job: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, view)
}

// Cancel handles DELETE /api/v1/jobs/:id. Only pending jobs can be
// cancelled; a running or finished job returns 409.
func (h *LoadHandler) Cancel(c *gin.Context) {
	cancelled, err := h.sched.Cancel(c.Request.Context(), c.Param("id"))
	if err != nil {
		if errors.Is(err, repository.ErrJobNotFound) {
			c.JSON(http.StatusNotFound, gin.H{"error": "Job not found"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to cancel job: " + err.Error(),
		})
		return
	}
	if !cancelled {
		c.JSON(http.StatusConflict, gin.H{
			"error": "Job is no longer pending and cannot be cancelled",
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"cancelled": true})
}

// Queue handles GET /api/v1/queue.
func (h *LoadHandler) Queue(c *gin.Context) {
	status, err := h.sched.Queue(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to get queue status: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, status)
}
