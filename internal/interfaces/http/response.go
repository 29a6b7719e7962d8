package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/garyjia/expense-approval/internal/application/service"
	"github.com/garyjia/expense-approval/internal/domain/approval"
)

// Response represents a standard JSON response
type Response struct {
	Success bool        `json:"success"`
	Data    interface{} `json:"data,omitempty"`
	Error   string      `json:"error,omitempty"`
}

func respondOK(c *gin.Context, status int, data interface{}) {
	c.JSON(status, Response{Success: true, Data: data})
}

func abortWithError(c *gin.Context, status int, msg string) {
	c.AbortWithStatusJSON(status, Response{Success: false, Error: msg})
}

// statusFor maps service and domain errors onto HTTP status codes
func statusFor(err error) int {
	switch {
	case errors.Is(err, service.ErrClaimNotFound),
		errors.Is(err, service.ErrUserNotFound),
		errors.Is(err, service.ErrCompanyNotFound):
		return http.StatusNotFound
	case errors.Is(err, service.ErrForbidden):
		return http.StatusForbidden
	case errors.Is(err, approval.ErrClaimAlreadyTerminal),
		errors.Is(err, approval.ErrOutOfSequence),
		errors.Is(err, approval.ErrAlreadyVoted),
		errors.Is(err, approval.ErrReviewerNotInChain),
		errors.Is(err, service.ErrEmailTaken):
		return http.StatusConflict
	case errors.Is(err, approval.ErrInvalidRuleConfiguration),
		errors.Is(err, approval.ErrInvalidDecision),
		errors.Is(err, service.ErrInvalidInput):
		return http.StatusUnprocessableEntity
	default:
		return http.StatusInternalServerError
	}
}

// respondError writes err with its mapped status. Internal errors are logged
// and replaced by a generic message.
func (h *Handlers) respondError(c *gin.Context, op string, err error) {
	status := statusFor(err)
	if status == http.StatusInternalServerError {
		h.logger.Error("Request failed", "operation", op, "error", err, "request_id", c.GetString(ctxKeyRequestID))
		abortWithError(c, status, op+" failed")
		return
	}
	abortWithError(c, status, err.Error())
}
