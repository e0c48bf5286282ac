// Package handlers serves the requester API and the WhatsApp webhook.
//
// Every error leaves through fail or failService as an ErrorResponse with a
// stable code from errors.go. Server errors are logged with the request
// logger; client errors are not.
//
//	HTTP/1.1 400 Bad Request
//	{
//	  "request_id": "123e4567-e89b-12d3-a456-426614174000",
//	  "code": "invalid_code",
//	  "message": "invalid code",
//	  "details": {"remaining_attempts": 2}
//	}
package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/tbourn/go-approval-gateway/internal/http/middleware"
	"github.com/tbourn/go-approval-gateway/internal/services"
)

// ErrorResponse is the error envelope of every endpoint.
type ErrorResponse struct {
	// Echo of X-Request-ID
	RequestID string `json:"request_id,omitempty" example:"123e4567-e89b-12d3-a456-426614174000"`
	// Stable, machine-readable code
	Code string `json:"code" example:"not_found"`
	// Human-readable message, safe to show
	Message string `json:"message" example:"approval request not found"`
	// Structured extras, e.g. remaining_attempts for invalid_code
	Details map[string]any `json:"details,omitempty" swaggertype:"object"`
}

// serviceError maps a service sentinel to its HTTP answer. An empty message
// passes the wrapped error text through.
type serviceError struct {
	target error
	status int
	code   string
	msg    string
}

var serviceErrors = []serviceError{
	{services.ErrInvalidRequest, http.StatusBadRequest, ErrCodeValidation, ""},
	{services.ErrApprovalNotFound, http.StatusNotFound, ErrCodeNotFound, "approval request not found"},
	{services.ErrForbiddenApprover, http.StatusBadRequest, ErrCodeForbiddenApprover, "phone is not an approver for this request"},
	{services.ErrNoActiveChallenge, http.StatusBadRequest, ErrCodeNoActiveChallenge, "no active challenge for this phone"},
	{services.ErrChallengeExpired, http.StatusGone, ErrCodeChallengeExpired, "challenge expired, a new code can be requested"},
	{services.ErrAttemptsExceeded, http.StatusForbidden, ErrCodeAttemptsExceeded, "too many invalid attempts, a new code can be requested"},
	{services.ErrProvider, http.StatusBadGateway, ErrCodeProvider, "upstream provider unavailable"},
	{services.ErrConflict, http.StatusConflict, ErrCodeConflict, "concurrent update, retry the request"},
}

// failService answers err with the mapping of the first matching sentinel,
// or 500 with fallbackCode.
func failService(c *gin.Context, err error, fallbackCode string) {
	for _, m := range serviceErrors {
		if !errors.Is(err, m.target) {
			continue
		}
		msg := m.msg
		if msg == "" {
			msg = err.Error()
		}
		if m.status >= http.StatusInternalServerError {
			// the client sees the generic text; keep the cause in the log
			middleware.LoggerFrom(c).Error().Err(err).Str("route", c.FullPath()).Msg("upstream failure")
			c.AbortWithStatusJSON(m.status, errorBody(c, m.code, msg, nil))
			return
		}
		fail(c, m.status, m.code, msg)
		return
	}
	fail(c, http.StatusInternalServerError, fallbackCode, err.Error())
}

func fail(c *gin.Context, status int, code, msg string) {
	failDetails(c, status, code, msg, nil)
}

func failDetails(c *gin.Context, status int, code, msg string, details map[string]any) {
	if status >= http.StatusInternalServerError {
		middleware.LoggerFrom(c).Error().
			Int("status", status).
			Str("code", code).
			Str("route", c.FullPath()).
			Str("message", msg).
			Msg("api error")
	}
	c.AbortWithStatusJSON(status, errorBody(c, code, msg, details))
}

func errorBody(c *gin.Context, code, msg string, details map[string]any) ErrorResponse {
	return ErrorResponse{
		RequestID: c.Writer.Header().Get("X-Request-ID"),
		Code:      code,
		Message:   msg,
		Details:   details,
	}
}

// Fail writes the standard error envelope from outside the package, e.g. the
// router's NoRoute handler.
func Fail(c *gin.Context, status int, code, msg string) { fail(c, status, code, msg) }

func ok(c *gin.Context, status int, body any) { c.JSON(status, body) }

func noContent(c *gin.Context) { c.Status(http.StatusNoContent) }
