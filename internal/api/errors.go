package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"hourlog/internal/attendance"
	"hourlog/internal/auth"
)

// statusFor maps a service error to an HTTP status.
func statusFor(err error) int {
	switch {
	case errors.Is(err, auth.ErrBadCredentials):
		return http.StatusUnauthorized
	case errors.Is(err, attendance.ErrSubjectNotFound):
		return http.StatusNotFound
	case errors.Is(err, attendance.ErrDuplicateDailyEntry),
		errors.Is(err, attendance.ErrAlreadyClosed),
		errors.Is(err, attendance.ErrNoOpenEntry),
		errors.Is(err, attendance.ErrDuplicateAccountNumber),
		errors.Is(err, attendance.ErrSubjectInactive):
		return http.StatusConflict
	case errors.Is(err, attendance.ErrValidation),
		errors.Is(err, attendance.ErrInvalidTimeFormat),
		errors.Is(err, attendance.ErrIncompleteManualEntry):
		return http.StatusBadRequest
	case errors.Is(err, attendance.ErrStorageIO):
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

// fail writes the error response. Infrastructure errors are logged and their
// detail is not sent to the caller.
func (h *Handler) fail(c *gin.Context, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		_ = c.Error(err)
		msg := "internal error"
		if status == http.StatusServiceUnavailable {
			msg = "storage unavailable"
		}
		c.JSON(status, gin.H{"error": msg, "reason": attendance.Reason(err)})
		return
	}
	c.JSON(status, gin.H{"error": err.Error(), "reason": attendance.Reason(err)})
}
