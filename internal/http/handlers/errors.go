package handlers

import (
	"errors"
	"net/http"

	"rentals/internal/domain"
	"rentals/internal/http/middleware"
	"rentals/internal/utils"

	"github.com/gin-gonic/gin"
)

// ErrorResponse standardizes error payloads.
type ErrorResponse struct {
	Error     string `json:"error"`
	Code      string `json:"code,omitempty"`
	Details   any    `json:"details,omitempty"`
	RequestID string `json:"request_id,omitempty"`
	Message   string `json:"message"`
}

func respondError(c *gin.Context, status int, code, message string, details any) {
	if code == "" {
		code = http.StatusText(status)
	}
	c.JSON(status, ErrorResponse{
		Error:     message,
		Code:      code,
		Details:   details,
		RequestID: middleware.GetRequestID(c),
		Message:   message,
	})
}

// RespondDomainError maps domain errors to HTTP responses.
func RespondDomainError(c *gin.Context, err error) {
	var notMet domain.RequirementsNotMetError
	switch {
	case domain.IsValidation(err):
		respondError(c, http.StatusBadRequest, "validation_error", err.Error(), nil)
	case domain.IsUnauthorized(err):
		respondError(c, http.StatusForbidden, "forbidden", err.Error(), nil)
	case domain.IsNotFound(err):
		respondError(c, http.StatusNotFound, "not_found", err.Error(), nil)
	case errors.As(err, &notMet):
		respondError(c, http.StatusUnprocessableEntity, "requirements_not_met", err.Error(), gin.H{"unmet": notMet.Unmet})
	case domain.IsAlreadyTerminal(err):
		respondError(c, http.StatusConflict, "already_terminal", err.Error(), nil)
	case domain.IsNoVehicleBound(err):
		respondError(c, http.StatusConflict, "no_vehicle_bound", err.Error(), nil)
	case domain.IsInvalidState(err):
		respondError(c, http.StatusConflict, "invalid_state", err.Error(), nil)
	case domain.IsConflict(err):
		respondError(c, http.StatusConflict, "conflict", err.Error(), nil)
	default:
		utils.LogWarn(c.Request.Context(), "http", c.FullPath(), "unhandled error", err)
		respondError(c, http.StatusInternalServerError, "internal_error", "internal server error", nil)
	}
}
