package httpserver

import (
	"errors"
	"net/http"

	"github.com/and161185/taskpulse/internal/errs"
	"github.com/labstack/echo/v4"
	"go.uber.org/zap"
)

// ErrorResponse is the body of every failed request.
type ErrorResponse struct {
	Error string `json:"error"`
}

// statusOf maps domain errors to HTTP status codes and client-facing messages.
// Internal errors never leak their text.
func statusOf(err error) (int, string) {
	var he *echo.HTTPError
	switch {
	case errors.As(err, &he):
		if msg, ok := he.Message.(string); ok {
			return he.Code, msg
		}
		return he.Code, http.StatusText(he.Code)
	case errors.Is(err, errs.ErrUnauthorized), errors.Is(err, errs.ErrInvalidCredential):
		return http.StatusUnauthorized, err.Error()
	case errors.Is(err, errs.ErrNotFound):
		return http.StatusNotFound, err.Error()
	case errors.Is(err, errs.ErrInvalidMapping):
		return http.StatusUnprocessableEntity, err.Error()
	case errors.Is(err, errs.ErrMissingMapping), errors.Is(err, errs.ErrValidation):
		return http.StatusBadRequest, err.Error()
	case errors.Is(err, errs.ErrRateLimited):
		return http.StatusTooManyRequests, err.Error()
	case errors.Is(err, errs.ErrSyncInProgress), errors.Is(err, errs.ErrAlreadyExists):
		return http.StatusConflict, err.Error()
	}
	return http.StatusInternalServerError, "internal error"
}

func errorHandler(log *zap.Logger) echo.HTTPErrorHandler {
	return func(err error, c echo.Context) {
		if c.Response().Committed {
			return
		}
		code, msg := statusOf(err)
		if code >= http.StatusInternalServerError {
			log.Error("request failed",
				zap.String("method", c.Request().Method),
				zap.String("path", c.Path()),
				zap.Error(err),
			)
		}
		if c.Request().Method == http.MethodHead {
			err = c.NoContent(code)
		} else {
			err = c.JSON(code, ErrorResponse{Error: msg})
		}
		if err != nil {
			log.Warn("write error response", zap.Error(err))
		}
	}
}
