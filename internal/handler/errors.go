package handler

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
	"go.uber.org/zap"

	"github.com/iliyamo/tourism-reservation/internal/model"
	"github.com/iliyamo/tourism-reservation/internal/repository"
)

// writeError maps domain errors to HTTP responses.  Unknown errors are
// logged and answered with a generic 500 so storage details never leak.
func writeError(c echo.Context, log *zap.Logger, err error) error {
	var (
		verr *model.ValidationError
		aerr *model.AvailabilityError
		terr *model.TransitionError
		nerr *model.NotFoundError
	)
	switch {
	case errors.As(err, &verr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "validation failed", "fields": verr.Fields})
	case errors.As(err, &aerr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": aerr.Reason})
	case errors.As(err, &terr):
		return c.JSON(http.StatusBadRequest, echo.Map{"error": terr.Error()})
	case errors.As(err, &nerr):
		return c.JSON(http.StatusNotFound, echo.Map{"error": nerr.Error()})
	case errors.Is(err, repository.ErrConflict):
		log.Warn("reservation write conflicted", zap.Error(err))
		return c.JSON(http.StatusConflict, echo.Map{"error": "conflicting concurrent update, please retry"})
	}
	log.Error("request failed", zap.String("path", c.Path()), zap.Error(err))
	return c.JSON(http.StatusInternalServerError, echo.Map{"error": "internal error"})
}
