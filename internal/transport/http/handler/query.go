package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"docrag/internal/app"
	"docrag/internal/transport/http/response"
)

type QueryService interface {
	Query(ctx context.Context, text string, topK int) (*app.QueryResult, error)
	ListHistory(ctx context.Context, page, size int) (*app.HistoryPage, error)
}

type QueryHandler struct {
	queries QueryService
}

type QueryRequest struct {
	Query string `json:"query" binding:"required"`
	TopK  int    `json:"top_k" binding:"omitempty,min=1,max=50"`
}

func NewQueryHandler(queries QueryService) *QueryHandler {
	return &QueryHandler{queries: queries}
}

func (h *QueryHandler) Query(c *gin.Context) {
	var req QueryRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid request payload")
		return
	}
	if strings.TrimSpace(req.Query) == "" {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "query must not be blank")
		return
	}

	result, err := h.queries.Query(c.Request.Context(), req.Query, req.TopK)
	if err != nil {
		response.FromError(c, err, "query failed")
		return
	}
	response.OK(c, result)
}

func (h *QueryHandler) History(c *gin.Context) {
	page, size := parsePaging(c)
	result, err := h.queries.ListHistory(c.Request.Context(), page, size)
	if err != nil {
		response.FromError(c, err, "list query history failed")
		return
	}
	response.OK(c, result)
}
