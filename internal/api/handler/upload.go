package handler

import (
	"fmt"
	"net/http"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/andresvega/loaderd/internal/api/middleware"
	"github.com/andresvega/loaderd/internal/domain"
	"github.com/andresvega/loaderd/internal/session"
	"github.com/andresvega/loaderd/internal/source"
	"github.com/andresvega/loaderd/internal/storage"
)

// sampleRows is how many data rows the upload response previews.
const sampleRows = 5

// UploadHandler handles source file uploads.
type UploadHandler struct {
	store    storage.ObjectStore
	sessions *session.Store
}

// NewUploadHandler creates a new upload handler.
// Parameters:
//   - store: object store receiving the uploaded files.
//   - sessions: session store tracking uploads until they are loaded.
// Returns:
//   - *UploadHandler: initialized handler.
func NewUploadHandler(store storage.ObjectStore, sessions *session.Store) *UploadHandler {
	return &UploadHandler{store: store, sessions: sessions}
}

// Upload handles POST /api/v1/uploads. The file is stored, its header
// and a short row sample are read back, and a session referencing the
// stored object is returned.
func (h *UploadHandler) Upload(c *gin.Context) {
	fileHeader, err := c.FormFile("file")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Multipart field 'file' is required: " + err.Error(),
		})
		return
	}

	ext := strings.ToLower(filepath.Ext(fileHeader.Filename))
	if ext != ".csv" && ext != ".tsv" {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": fmt.Sprintf("Unsupported file type %q, expected .csv or .tsv", ext),
		})
		return
	}

	f, err := fileHeader.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Cannot open uploaded file: " + err.Error(),
		})
		return
	}
	defer f.Close()

	ctx := c.Request.Context()
	key := "uploads/" + uuid.New().String() + ext
	if err := h.store.Upload(ctx, key, f, fileHeader.Size, "text/csv"); err != nil {
		middleware.GetLogger(c).WithError(err).Error("storing upload")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to store file: " + err.Error(),
		})
		return
	}

	// Read the header and sample back from the stored copy, so what the
	// caller previews is exactly what the load will read.
	stream, err := h.store.Download(ctx, key)
	if err != nil {
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": "Failed to read back stored file: " + err.Error(),
		})
		return
	}
	reader, err := source.Open(stream, fileHeader.Filename, sampleRows)
	if err != nil {
		stream.Close()
		_ = h.store.Delete(ctx, key)
		c.JSON(http.StatusBadRequest, gin.H{
			"error": "Cannot parse file: " + err.Error(),
		})
		return
	}
	defer reader.Close()

	var sample []domain.Row
	if chunk, err := reader.Next(ctx); err == nil {
		sample = chunk.Rows
	}

	sess := h.sessions.Create(fileHeader.Filename, key, reader.Columns(), sample)
	c.JSON(http.StatusCreated, gin.H{
		"session_id": sess.ID,
		"file_name":  sess.FileName,
		"columns":    sess.Columns,
		"sample":     sess.RowsSample,
	})
}
