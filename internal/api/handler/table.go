package handler

import (
	"net/http"
	"regexp"

	"github.com/gin-gonic/gin"

	"github.com/andresvega/loaderd/internal/schema"
)

// tableNameRe bounds what we pass into schema discovery queries.
var tableNameRe = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// TableHandler exposes target table metadata.
type TableHandler struct {
	schemas *schema.Provider
}

// NewTableHandler creates a new table handler.
func NewTableHandler(schemas *schema.Provider) *TableHandler {
	return &TableHandler{schemas: schemas}
}

// Columns handles GET /api/v1/tables/:table/columns.
func (h *TableHandler) Columns(c *gin.Context) {
	table := c.Param("table")
	if !tableNameRe.MatchString(table) {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Invalid table name",
		})
		return
	}

	s, err := h.schemas.Describe(c.Request.Context(), table)
	if err != nil {
		c.JSON(http.StatusNotFound, gin.H{
			"error": "Failed to describe table: " + err.Error(),
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"table":   s.Table,
		"columns": s.Columns,
		"keys":    s.KeyColumns(),
	})
}
