package handler

import (
	"context"
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"docrag/internal/app"
	"docrag/internal/model"
	"docrag/internal/transport/http/response"
)

type DocumentService interface {
	Upload(ctx context.Context, in app.UploadInput) (*model.Document, error)
	List(ctx context.Context, page, size int) (*app.DocumentPage, error)
	Get(ctx context.Context, id uint) (*app.DocumentDetail, error)
	Delete(ctx context.Context, id uint) error
}

type DocumentHandler struct {
	documents DocumentService
}

func NewDocumentHandler(documents DocumentService) *DocumentHandler {
	return &DocumentHandler{documents: documents}
}

// Upload accepts a multipart form with a "file" field and answers once the
// document is stored and queued for ingestion.
func (h *DocumentHandler) Upload(c *gin.Context) {
	file, err := c.FormFile("file")
	if err != nil {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "missing file")
		return
	}

	f, err := file.Open()
	if err != nil {
		response.Error(c, http.StatusInternalServerError, response.CodeInternalServer, "failed to read file")
		return
	}
	defer f.Close()

	doc, err := h.documents.Upload(c.Request.Context(), app.UploadInput{
		FileName: file.Filename,
		Size:     file.Size,
		Content:  f,
	})
	if err != nil {
		response.FromError(c, err, "upload document failed")
		return
	}
	response.OK(c, doc)
}

func (h *DocumentHandler) List(c *gin.Context) {
	page, size := parsePaging(c)
	result, err := h.documents.List(c.Request.Context(), page, size)
	if err != nil {
		response.FromError(c, err, "list documents failed")
		return
	}
	response.OK(c, result)
}

func (h *DocumentHandler) Get(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	detail, err := h.documents.Get(c.Request.Context(), id)
	if err != nil {
		response.FromError(c, err, "get document failed")
		return
	}
	response.OK(c, detail)
}

func (h *DocumentHandler) Delete(c *gin.Context) {
	id, ok := documentID(c)
	if !ok {
		return
	}
	if err := h.documents.Delete(c.Request.Context(), id); err != nil {
		response.FromError(c, err, "delete document failed")
		return
	}
	response.OK(c, gin.H{"deleted_document_id": id})
}

func documentID(c *gin.Context) (uint, bool) {
	id, err := strconv.ParseUint(c.Param("id"), 10, 64)
	if err != nil || id == 0 {
		response.Error(c, http.StatusBadRequest, response.CodeBadRequest, "invalid document id")
		return 0, false
	}
	return uint(id), true
}

// parsePaging reads page and size query parameters; bad values fall back to
// the service defaults.
func parsePaging(c *gin.Context) (int, int) {
	page, _ := strconv.Atoi(c.DefaultQuery("page", "1"))
	size, _ := strconv.Atoi(c.DefaultQuery("size", "10"))
	return page, size
}
