package handlers

import (
	"errors"
	"fmt"
	"net/http"

	"zkteco-hub/handlers/base"
	"zkteco-hub/utils"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

var errorLogger = zerolog.Nop()

// SetErrorLogger sets the logger for error handling.
func SetErrorLogger(logger zerolog.Logger) {
	errorLogger = logger.With().Str("component", "error_handler").Logger()
}

// CustomHTTPErrorHandler is the central error handler for the Echo application.
func CustomHTTPErrorHandler(err error, c echo.Context) {
	if c.Response().Committed {
		return
	}

	// Errors raised by echo itself (routing, binding, middleware).
	var httpErr *echo.HTTPError
	if errors.As(err, &httpErr) {
		message := fmt.Sprint(httpErr.Message)
		if httpErr.Code >= http.StatusInternalServerError {
			errorLogger.Error().Err(err).Int("status_code", httpErr.Code).Msg("HTTP error")
		}
		respond(c, httpErr.Code, message)
		return
	}

	appErr := base.ToAppError(err)
	if internalErr := appErr.Unwrap(); internalErr != nil {
		event := errorLogger.Info()
		if appErr.Code >= http.StatusInternalServerError {
			event = errorLogger.Error()
		}
		event.
			Int("status_code", appErr.Code).
			Str("error_type", fmt.Sprintf("%T", internalErr)).
			Str("method", c.Request().Method).
			Str("path", c.Path()).
			Err(internalErr).
			Msg(appErr.Message)
	}

	respond(c, appErr.Code, appErr.Message)
}

func respond(c echo.Context, code int, message string) {
	var err error
	if c.Request().Method == http.MethodHead {
		err = c.NoContent(code)
	} else {
		err = c.JSON(code, utils.ErrorResponse(message))
	}
	if err != nil {
		errorLogger.Error().Err(err).Msg("Failed to write error response")
	}
}
