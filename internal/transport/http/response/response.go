package response

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"pagewise/internal/pkg/apperr"
)

const (
	CodeOK                 = 0
	CodeBadRequest         = 40000
	CodeUsernameExists     = 40001
	CodeEmailExists        = 40002
	CodeMissingInput       = 40010
	CodeUnauthorized       = 40100
	CodeInvalidCredentials = 40101
	CodeNotAuthorized      = 40300
	CodeNotFound           = 40400
	CodeSessionNotFound    = 40401
	CodeNameCollision      = 40900
	CodeMissingGrounding   = 40901
	CodeInvalidInputKind   = 42200
	CodeInternalServer     = 50000
	CodeUpstreamFailed     = 50200
	CodeStorageUnavailable = 50300
)

type APIResponse struct {
	Code    int         `json:"code"`
	Message string      `json:"message"`
	Kind    string      `json:"kind,omitempty"`
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

type kindMapping struct {
	status int
	code   int
}

var kinds = map[apperr.Kind]kindMapping{
	apperr.KindMissingInput:             {http.StatusBadRequest, CodeMissingInput},
	apperr.KindInvalidInputKind:         {http.StatusUnprocessableEntity, CodeInvalidInputKind},
	apperr.KindNotAuthorized:            {http.StatusForbidden, CodeNotAuthorized},
	apperr.KindNotFound:                 {http.StatusNotFound, CodeNotFound},
	apperr.KindNameCollision:            {http.StatusConflict, CodeNameCollision},
	apperr.KindMissingGroundingDocument: {http.StatusConflict, CodeMissingGrounding},
	apperr.KindStorageUnavailable:       {http.StatusServiceUnavailable, CodeStorageUnavailable},
	apperr.KindCompletionService:        {http.StatusBadGateway, CodeUpstreamFailed},
	apperr.KindDeserialization:          {http.StatusBadGateway, CodeUpstreamFailed},
	apperr.KindExtraction:               {http.StatusBadGateway, CodeUpstreamFailed},
}

// Status returns the HTTP status and response code for err's kind.
func Status(err error) (int, int, apperr.Kind) {
	kind := apperr.KindOf(err)
	if m, ok := kinds[kind]; ok {
		return m.status, m.code, kind
	}
	return http.StatusInternalServerError, CodeInternalServer, apperr.KindInternal
}

// Fail writes err using its kind. Internal failures hide their message.
func Fail(c *gin.Context, err error, fallback string) {
	status, code, kind := Status(err)
	message := fallback
	if kind != apperr.KindInternal {
		var e *apperr.Error
		message = err.Error()
		if errors.As(err, &e) {
			message = e.Message
		}
	}
	_ = c.Error(err)
	c.JSON(status, APIResponse{
		Code:    code,
		Message: message,
		Kind:    string(kind),
	})
}
