package utils

import (
	"errors"
	"net/http"

	"agent-tracking/internal/models"

	"github.com/labstack/echo/v4"
)

// RespondWithJSON writes a JSON response with the given status code.
func RespondWithJSON(c echo.Context, code int, payload interface{}) error {
	return c.JSON(code, payload)
}

// RespondWithError writes a JSON error body with the given status code.
func RespondWithError(c echo.Context, code int, message string) error {
	return c.JSON(code, models.ErrorResponse{Message: message})
}

// HandleServiceError maps service-layer errors onto HTTP status codes so every
// handler reports failures the same way.
func HandleServiceError(c echo.Context, err error) error {
	switch {
	case errors.Is(err, models.ErrNotFound):
		return RespondWithError(c, http.StatusNotFound, err.Error())
	case errors.Is(err, models.ErrLatitudeOutOfRange),
		errors.Is(err, models.ErrLongitudeOutOfRange),
		errors.Is(err, models.ErrNegativeAccuracy),
		errors.Is(err, models.ErrNegativeSpeed),
		errors.Is(err, models.ErrBearingOutOfRange),
		errors.Is(err, models.ErrEmptyBatch):
		return RespondWithError(c, http.StatusBadRequest, err.Error())
	case errors.Is(err, models.ErrSessionNotActive):
		return RespondWithError(c, http.StatusConflict, err.Error())
	case errors.Is(err, models.ErrStoreUnavailable):
		return RespondWithError(c, http.StatusServiceUnavailable, "temporary storage failure, please retry")
	default:
		return RespondWithError(c, http.StatusInternalServerError, "an unexpected error occurred")
	}
}
