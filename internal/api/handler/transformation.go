package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/andresvega/loaderd/internal/transform"
)

// TransformationHandler manages the custom transformation registry.
type TransformationHandler struct {
	registry *transform.Registry
}

// NewTransformationHandler creates a new transformation handler.
func NewTransformationHandler(registry *transform.Registry) *TransformationHandler {
	return &TransformationHandler{registry: registry}
}

// registerRequest is the body of POST /api/v1/transformations.
type registerRequest struct {
	Name        string         `json:"name" binding:"required"`
	Description string         `json:"description"`
	Expression  string         `json:"expression" binding:"required"`
	Parameters  map[string]any `json:"parameters"`
	CreatedBy   string         `json:"created_by"`
}

// Register handles POST /api/v1/transformations. The expression is
// validated before anything is stored; re-registering a name replaces it.
func (h *TransformationHandler) Register(c *gin.Context) {
	var req registerRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}

	err := h.registry.Register(c.Request.Context(), req.Name, req.Description, req.Expression, req.Parameters, req.CreatedBy)
	if err != nil {
		c.JSON(http.StatusUnprocessableEntity, gin.H{
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusCreated, gin.H{
		"name":       req.Name,
		"registered": true,
	})
}

// List handles GET /api/v1/transformations.
func (h *TransformationHandler) List(c *gin.Context) {
	transformations, err := h.registry.List(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to list transformations: " + err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"transformations": transformations,
		"total":           len(transformations),
	})
}

// validateRequest is the body of POST /api/v1/transformations/validate.
type validateRequest struct {
	Expression string `json:"expression" binding:"required"`
}

// Validate handles POST /api/v1/transformations/validate: checks an
// expression without storing anything.
func (h *TransformationHandler) Validate(c *gin.Context) {
	var req validateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid request: " + err.Error(),
		})
		return
	}
	if err := transform.ValidateExpression(req.Expression); err != nil {
		c.JSON(http.StatusOK, gin.H{
			"valid": false,
			"error": err.Error(),
		})
		return
	}
	c.JSON(http.StatusOK, gin.H{"valid": true})
}
