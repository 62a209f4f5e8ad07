package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"velora-system/internal/fault"
)

type APIResponse struct {
	Success bool        `json:"success"`
	Message string      `json:"message"`
	Data    interface{} `json:"data,omitempty"`
}

func successResponse(message string, data interface{}) APIResponse {
	return APIResponse{
		Success: true,
		Message: message,
		Data:    data,
	}
}

func errorResponse(message string) APIResponse {
	return APIResponse{
		Success: false,
		Message: message,
	}
}

// respondError maps the service error taxonomy onto HTTP statuses.
// Permission failures stay generic; validation failures carry the specific
// constraint so the caller can correct the request.
func respondError(c *gin.Context, err error) {
	switch {
	case errors.Is(err, fault.ErrUnauthorized):
		c.JSON(http.StatusForbidden, errorResponse("not authorized"))
	case errors.Is(err, fault.ErrInvalidAmount),
		errors.Is(err, fault.ErrInvalidMethod),
		errors.Is(err, fault.ErrInvalidDate),
		errors.Is(err, fault.ErrNotApplicable),
		errors.Is(err, fault.ErrAlreadyCollected):
		c.JSON(http.StatusBadRequest, errorResponse(err.Error()))
	case errors.Is(err, fault.ErrOrderNotFound),
		errors.Is(err, fault.ErrAccountNotFound),
		errors.Is(err, fault.ErrReminderNotFound):
		c.JSON(http.StatusNotFound, errorResponse(err.Error()))
	case errors.Is(err, fault.ErrAtomicityFailure):
		c.JSON(http.StatusConflict, errorResponse("operation was not applied, retry"))
	case errors.Is(err, fault.ErrAccountUnavailable):
		c.JSON(http.StatusServiceUnavailable, errorResponse("account store unavailable"))
	default:
		c.JSON(http.StatusInternalServerError, errorResponse("internal error"))
	}
}
