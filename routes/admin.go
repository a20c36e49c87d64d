package routes

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/hibiken/asynq"

	"sql-rag-platform/internal/queue"
	"sql-rag-platform/middleware"
	"sql-rag-platform/models"
	"sql-rag-platform/services"
	"sql-rag-platform/utils"
)

type AdminHandler struct {
	sync       *services.SyncService
	source     services.SyncSource
	export     *services.ExportService
	llmConfigs *models.LLMConfigStore
	logs       *models.QueryLogStore
	audit      *models.AuditLogger
	tasks      *asynq.Client // nil disables async sync
}

func NewAdminHandler(sync *services.SyncService, source services.SyncSource, export *services.ExportService, llmConfigs *models.LLMConfigStore, logs *models.QueryLogStore, audit *models.AuditLogger, tasks *asynq.Client) *AdminHandler {
	return &AdminHandler{
		sync:       sync,
		source:     source,
		export:     export,
		llmConfigs: llmConfigs,
		logs:       logs,
		audit:      audit,
		tasks:      tasks,
	}
}

func (h *AdminHandler) Register(rg *gin.RouterGroup, auth *middleware.AuthMiddleware, roles *middleware.RoleMiddleware) {
	admin := rg.Group("/admin", auth.RequireAuth(), roles.AdminGuard())
	admin.POST("/sync", h.Sync)
	admin.POST("/sync-async", h.SyncAsync)
	admin.GET("/connection-test", h.ConnectionTest)
	admin.GET("/query-logs", h.QueryLogs)
	admin.GET("/query-logs/export", h.ExportQueryLogs)
	admin.GET("/llm-configs", h.ListLLMConfigs)
	admin.POST("/llm-configs", h.UpsertLLMConfig)
	admin.GET("/audit", h.AuditTrail)
	admin.GET("/audit/verify", h.VerifyAudit)
}

// Sync runs a full relational re-sync inline and reports its progress.
// An optional batch_size query parameter overrides the configured page size.
func (h *AdminHandler) Sync(c *gin.Context) {
	batchSize, _ := strconv.Atoi(c.Query("batch_size"))
	progress, err := h.sync.Sync(c.Request.Context(), h.source, batchSize)
	if err != nil {
		c.JSON(http.StatusBadGateway, progress)
		return
	}

	h.audit.Log(c.Request.Context(), middleware.GetUsername(c), "sync", "sql", map[string]any{
		"status":    string(progress.Status),
		"processed": progress.ProcessedRecords,
		"chunks":    progress.IndexedChunks,
	})
	c.JSON(http.StatusOK, progress)
}

func (h *AdminHandler) SyncAsync(c *gin.Context) {
	if h.tasks == nil {
		utils.RespondWithError(c, http.StatusServiceUnavailable, "queue_unavailable",
			"Background processing is not configured", nil)
		return
	}
	task, err := queue.NewSyncDatabaseTask(middleware.GetUsername(c))
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to build sync task", nil)
		return
	}
	if _, err := h.tasks.EnqueueContext(c.Request.Context(), task); err != nil {
		utils.RespondWithInternalError(c, "Failed to queue sync", err.Error())
		return
	}
	c.JSON(http.StatusAccepted, gin.H{"message": "sync queued"})
}

// ConnectionTest verifies the relational source is reachable and, when it
// is, kicks off a sync so a freshly connected database is indexed at once.
func (h *AdminHandler) ConnectionTest(c *gin.Context) {
	tables, err := h.source.Tables(c.Request.Context())
	if err != nil {
		c.JSON(http.StatusBadGateway, gin.H{
			"connected": false,
			"error":     err.Error(),
		})
		return
	}

	response := gin.H{"connected": true, "tables": tables}
	if h.tasks != nil {
		if task, err := queue.NewSyncDatabaseTask(middleware.GetUsername(c)); err == nil {
			if _, err := h.tasks.EnqueueContext(c.Request.Context(), task); err == nil {
				response["sync"] = "queued"
			}
		}
	}
	c.JSON(http.StatusOK, response)
}

func (h *AdminHandler) QueryLogs(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}
	entries, err := h.logs.List(c.Request.Context(), limit)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to fetch query logs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"logs": entries, "count": len(entries)})
}

func (h *AdminHandler) ExportQueryLogs(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "1000"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 1000
	}

	username := middleware.GetUsername(c)
	switch c.DefaultQuery("format", "csv") {
	case "csv":
		data, err := h.export.ExportCSV(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Export failed", err.Error())
			return
		}
		h.audit.Log(c.Request.Context(), username, "export", "queries", map[string]any{"format": "csv"})
		c.Header("Content-Disposition", "attachment; filename=query_logs.csv")
		c.Data(http.StatusOK, "text/csv", data)
	case "excel":
		data, err := h.export.ExportExcel(c.Request.Context(), limit)
		if err != nil {
			utils.RespondWithInternalError(c, "Export failed", err.Error())
			return
		}
		h.audit.Log(c.Request.Context(), username, "export", "queries", map[string]any{"format": "excel"})
		c.Header("Content-Disposition", "attachment; filename=query_logs.xlsx")
		c.Data(http.StatusOK, "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", data)
	default:
		utils.RespondWithBadRequest(c, "format must be csv or excel", nil)
	}
}

func (h *AdminHandler) ListLLMConfigs(c *gin.Context) {
	configs, err := h.llmConfigs.List(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to list configs", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"configs": configs})
}

func (h *AdminHandler) UpsertLLMConfig(c *gin.Context) {
	var cfg models.LLMConfig
	if err := c.ShouldBindJSON(&cfg); err != nil {
		utils.RespondWithBadRequest(c, "Invalid config payload", err.Error())
		return
	}
	if err := h.llmConfigs.Upsert(c.Request.Context(), &cfg); err != nil {
		utils.RespondWithInternalError(c, "Failed to save config", err.Error())
		return
	}
	h.audit.Log(c.Request.Context(), middleware.GetUsername(c), "create", "llm_configs",
		map[string]any{"name": cfg.Name, "model": cfg.ModelName})
	c.JSON(http.StatusOK, cfg)
}

func (h *AdminHandler) AuditTrail(c *gin.Context) {
	limit, err := strconv.ParseInt(c.DefaultQuery("limit", "100"), 10, 64)
	if err != nil || limit <= 0 {
		limit = 100
	}
	events, err := h.audit.Recent(c.Request.Context(), limit)
	if err != nil {
		utils.RespondWithInternalError(c, "Failed to fetch audit trail", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"events": events, "count": len(events)})
}

func (h *AdminHandler) VerifyAudit(c *gin.Context) {
	ok, err := h.audit.VerifyChain(c.Request.Context())
	if err != nil {
		utils.RespondWithInternalError(c, "Verification failed", err.Error())
		return
	}
	c.JSON(http.StatusOK, gin.H{"intact": ok})
}
