package routes

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"sql-rag-platform/internal/rag"
	"sql-rag-platform/internal/telemetry"
	"sql-rag-platform/middleware"
	"sql-rag-platform/services"
	"sql-rag-platform/utils"
)

type QueryHandler struct {
	queries *services.QueryService
	metrics *telemetry.Metrics
}

func NewQueryHandler(queries *services.QueryService, metrics *telemetry.Metrics) *QueryHandler {
	return &QueryHandler{queries: queries, metrics: metrics}
}

func (h *QueryHandler) Register(rg *gin.RouterGroup, auth *middleware.AuthMiddleware) {
	rg.POST("/query", auth.RequireAuth(), h.Query)
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req services.QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		utils.RespondWithBadRequest(c, "Invalid query request", err.Error())
		return
	}
	req.UserID = middleware.GetUserID(c)

	resp, err := h.queries.Answer(c.Request.Context(), req)
	if h.metrics != nil && resp != nil {
		h.metrics.RecordQuery(resp.Status)
	}
	switch {
	case errors.Is(err, rag.ErrValidation):
		utils.RespondWithBadRequest(c, err.Error(), nil)
	case err != nil:
		// The orchestrator still returns the partial response on a
		// fully failed run; surface it with the error status.
		c.JSON(http.StatusBadGateway, resp)
	default:
		c.JSON(http.StatusOK, resp)
	}
}
