package routes

import (
	"errors"
	"fmt"
	"net/http"
	"os"
	"path/filepath"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"sql-rag-platform/internal/queue"
	"sql-rag-platform/internal/rag"
	"sql-rag-platform/middleware"
	"sql-rag-platform/models"
	"sql-rag-platform/services"
	"sql-rag-platform/utils"
)

type DocumentHandler struct {
	documents *services.DocumentService
	store     *models.DocumentStore
	tasks     *asynq.Client // nil disables async upload
}

func NewDocumentHandler(documents *services.DocumentService, store *models.DocumentStore, tasks *asynq.Client) *DocumentHandler {
	return &DocumentHandler{documents: documents, store: store, tasks: tasks}
}

func (h *DocumentHandler) Register(rg *gin.RouterGroup, auth *middleware.AuthMiddleware, roles *middleware.RoleMiddleware) {
	docs := rg.Group("/documents", auth.RequireAuth())
	docs.GET("", h.List)
	docs.POST("/upload", roles.AdminGuard(), h.Upload)
	docs.POST("/upload-async", roles.AdminGuard(), h.UploadAsync)
	docs.POST("/upload-folder", roles.AdminGuard(), h.UploadFolder)
	docs.DELETE("/:filename", roles.AdminGuard(), h.Delete)
}

// saveIncoming persists multipart files to a scratch dir so the service
// layer only ever deals with local paths.
func (h *DocumentHandler) saveIncoming(c *gin.Context) ([]services.UploadedFile, error) {
	form, err := c.MultipartForm()
	if err != nil {
		return nil, fmt.Errorf("invalid multipart form: %w", err)
	}
	headers := form.File["files"]
	if len(headers) == 0 {
		return nil, fmt.Errorf("no files in upload")
	}

	tempDir := filepath.Join(os.TempDir(), "uploads")
	if err := os.MkdirAll(tempDir, 0o755); err != nil {
		return nil, err
	}

	files := make([]services.UploadedFile, 0, len(headers))
	for _, header := range headers {
		tempPath := filepath.Join(tempDir, uuid.NewString()+filepath.Ext(header.Filename))
		if err := c.SaveUploadedFile(header, tempPath); err != nil {
			for _, f := range files {
				os.Remove(f.TempPath)
			}
			return nil, fmt.Errorf("saving %s: %w", header.Filename, err)
		}
		files = append(files, services.UploadedFile{
			Filename: header.Filename,
			TempPath: tempPath,
			Size:     header.Size,
		})
	}
	return files, nil
}

func (h *DocumentHandler) Upload(c *gin.Context) {
	files, err := h.saveIncoming(c)
	if err != nil {
		utils.RespondWithBadRequest(c, err.Error(), nil)
		return
	}

	report, err := h.documents.Upload(c.Request.Context(), middleware.GetUsername(c), files)
	switch {
	case errors.Is(err, rag.ErrValidation):
		utils.RespondWithBadRequest(c, err.Error(), nil)
	case err != nil:
		utils.RespondWithInternalError(c, "Upload failed", err.Error())
	default:
		c.JSON(http.StatusOK, report)
	}
}

type folderUploadRequest struct {
	Path      string `json:"path" binding:"required"`
	Recursive bool   `json:"recursive"`
}

// UploadFolder ingests documents from a folder already present on the
// server, optionally descending into subdirectories.
func (h *DocumentHandler) UploadFolder(c *gin.Context) {
	var req folderUploadRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid folder upload request", err.Error())
		return
	}

	report, err := h.documents.UploadFolder(c.Request.Context(), middleware.GetUsername(c), req.Path, req.Recursive)
	switch {
	case errors.Is(err, rag.ErrValidation):
		utils.RespondWithBadRequest(c, err.Error(), nil)
	case err != nil:
		utils.RespondWithInternalError(c, "Folder upload failed", err.Error())
	default:
		c.JSON(http.StatusOK, report)
	}
}

// UploadAsync queues each file for background ingestion and returns
// immediately.
func (h *DocumentHandler) UploadAsync(c *gin.Context) {
	if h.tasks == nil {
		utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
			"Background processing is not configured", nil)
		return
	}

	files, err := h.saveIncoming(c)
	if err != nil {
		utils.RespondWithBadRequest(c, err.Error(), nil)
		return
	}

	username := middleware.GetUsername(c)
	queued := make([]string, 0, len(files))
	for _, file := range files {
		task, err := queue.NewIndexDocumentTask(username, file.Filename, file.TempPath, file.Size)
		if err != nil {
			os.Remove(file.TempPath)
			continue
		}
		if _, err := h.tasks.EnqueueContext(c.Request.Context(), task); err != nil {
			os.Remove(file.TempPath)
			continue
		}
		queued = append(queued, file.Filename)
	}

	c.JSON(http.StatusAccepted, gin.H{
		"queued":  queued,
		"message": fmt.Sprintf("%d file(s) queued for indexing", len(queued)),
	})
}

func (h *DocumentHandler) List(c *gin.Context) {
	records, err := h.store.List(c.Request.Context(), false, 500)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list documents", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"documents": records, "count": len(records)})
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	err := h.documents.Remove(c.Request.Context(), middleware.GetUsername(c), c.Param("filename"))
	switch {
	case errors.Is(err, rag.ErrValidation):
		utils.RespondWithNotFound(c, err.Error())
	case err != nil:
		utils.RespondWithInternalError(c, "Failed to delete document", err.Error())
	default:
		c.JSON(http.StatusOK, gin.H{"message": "document removed"})
	}
}
