// Package handlers implements the gin handlers of the lupa HTTP API.
package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/turtacn/lupa/internal/interfaces/http/middleware"
	"github.com/turtacn/lupa/pkg/errors"
)

// ErrorResponse is the body of every non-2xx response.
type ErrorResponse struct {
	Code      string `json:"code"`
	Message   string `json:"message"`
	Detail    string `json:"detail,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// writeError renders err with the status its code maps to. Server-side
// failures are masked; the full error goes to the request log through
// c.Error.
func writeError(c *gin.Context, err error) {
	_ = c.Error(err)
	status := errors.HTTPStatus(err)
	resp := ErrorResponse{
		Code:      errors.GetCode(err).String(),
		Message:   err.Error(),
		RequestID: middleware.GetRequestID(c),
	}
	if ae, ok := err.(*errors.AppError); ok {
		resp.Message = ae.Message
		resp.Detail = ae.Detail
	}
	if status >= http.StatusInternalServerError && status != http.StatusServiceUnavailable {
		resp.Code = errors.ErrCodeInternal.String()
		resp.Message = "internal server error"
		resp.Detail = ""
	}
	c.AbortWithStatusJSON(status, resp)
}

func badRequest(c *gin.Context, err error) {
	writeError(c, errors.Wrap(err, errors.ErrCodeBadRequest, "malformed request body"))
}
