package handler

import (
	"errors"
	"net/http"

	"github.com/AnTengye/leaseflow/lifecycle"
	"github.com/AnTengye/leaseflow/pkg/logger"
	"github.com/AnTengye/leaseflow/service"
	"github.com/gin-gonic/gin"
)

// ErrorResponse is the body of every failed API call.
type ErrorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
	Guard string `json:"guard,omitempty"`
}

// errorStatus maps domain errors to an HTTP status and a stable code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, lifecycle.ErrNotFound):
		return http.StatusNotFound, "not_found"
	case errors.Is(err, lifecycle.ErrBusy):
		return http.StatusConflict, "busy"
	case errors.Is(err, lifecycle.ErrInvalidTransition):
		return http.StatusConflict, "invalid_transition"
	case errors.Is(err, lifecycle.ErrGuardViolation):
		return http.StatusUnprocessableEntity, "guard_violation"
	case errors.Is(err, lifecycle.ErrConfirmationRequired):
		return http.StatusPreconditionRequired, "confirmation_required"
	case errors.Is(err, lifecycle.ErrPersistenceUnavailable):
		return http.StatusServiceUnavailable, "persistence_unavailable"
	case errors.Is(err, service.ErrInvalidSignature):
		return http.StatusBadRequest, "invalid_signature"
	case errors.Is(err, service.ErrSignatureUnavailable):
		return http.StatusBadGateway, "signature_unavailable"
	case errors.Is(err, service.ErrInvalidDraft):
		return http.StatusBadRequest, "invalid_draft"
	case errors.Is(err, service.ErrAlreadyExists):
		return http.StatusConflict, "already_exists"
	default:
		return http.StatusInternalServerError, "internal"
	}
}

func respondError(c *gin.Context, err error) {
	status, code := errorStatus(err)
	c.Error(err)

	resp := ErrorResponse{Error: err.Error(), Code: code}
	if guard, ok := lifecycle.FailedGuard(err); ok {
		resp.Guard = string(guard)
	}
	if status == http.StatusNotFound {
		resp.Error = "Contract not found"
	}
	if status == http.StatusInternalServerError {
		logger.Error(c.Request.Context(), "request failed", "error", err)
		resp.Error = "Internal server error"
	}
	c.JSON(status, resp)
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, ErrorResponse{Error: msg, Code: "bad_request"})
}
