package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"docrag/internal/app"
	"docrag/internal/pkg/apperr"
)

const (
	CodeOK              = 0
	CodeBadRequest      = 40000
	CodeNotFound        = 40400
	CodePayloadTooLarge = 41300
	CodeInternalServer  = 50000
	CodeBadGateway      = 50200
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func OK(c *gin.Context, data interface{}) {
	c.JSON(http.StatusOK, APIResponse{
		Code:    CodeOK,
		Message: "ok",
		Data:    data,
	})
}

func Error(c *gin.Context, httpStatus, code int, message string) {
	c.JSON(httpStatus, APIResponse{
		Code:    code,
		Message: message,
	})
}

// FromError maps an application error onto a status and envelope. Details of
// internal and provider failures stay in the log.
func FromError(c *gin.Context, err error, fallback string) {
	switch apperr.KindOf(err) {
	case apperr.KindInvalidArgument:
		if errors.Is(err, app.ErrFileTooLarge) {
			Error(c, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, apperr.Message(err))
			return
		}
		Error(c, http.StatusBadRequest, CodeBadRequest, apperr.Message(err))
	case apperr.KindNotFound:
		Error(c, http.StatusNotFound, CodeNotFound, apperr.Message(err))
	case apperr.KindExternalService:
		_ = c.Error(err)
		Error(c, http.StatusBadGateway, CodeBadGateway, "upstream service unavailable, please retry later")
	default:
		_ = c.Error(err)
		Error(c, http.StatusInternalServerError, CodeInternalServer, fallback)
	}
}
