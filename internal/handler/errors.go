package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/seat-booking/internal/logger"
	"github.com/iliyamo/seat-booking/internal/service"
)

// writeServiceError maps coordinator errors to HTTP responses.  Unexpected
// errors are logged and answered with a generic 500.
func writeServiceError(c echo.Context, log *zap.Logger, err error) error {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid input"})
	case errors.Is(err, service.ErrInsufficientCapacity):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "not enough seats available"})
	case errors.Is(err, service.ErrEventNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "event not found"})
	case errors.Is(err, service.ErrBookingNotFound):
		return c.JSON(http.StatusNotFound, echo.Map{"error": "booking not found or already cancelled"})
	case errors.Is(err, service.ErrTransactionFailure):
		return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "booking could not be completed, please retry"})
	default:
		logger.Error(c.Request().Context(), log, "request failed", zap.String("path", c.Path()), zap.Error(err))
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
	}
}
