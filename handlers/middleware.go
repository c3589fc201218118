package handlers

import (
	"strings"
	"time"

	"zkteco-hub/metrics"
	"zkteco-hub/utils"

	"github.com/labstack/echo/v4"
	"github.com/rs/zerolog"
)

// RequestLogger tags every request with an X-Request-ID, logs it once it
// has been answered and records API metrics. Terminal traffic is logged at
// debug level since devices poll every few seconds.
func RequestLogger(logger zerolog.Logger) echo.MiddlewareFunc {
	logger = logger.With().Str("component", "http").Logger()

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			req := c.Request()

			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = utils.GenerateRequestID()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			err := next(c)
			if err != nil {
				// Let the error handler write the response so the status is known.
				c.Error(err)
			}

			duration := time.Since(start)
			status := c.Response().Status
			route := c.Path()
			device := strings.HasPrefix(req.URL.Path, "/iclock/")

			event := logger.Info()
			switch {
			case status >= 500:
				event = logger.Error()
			case device:
				event = logger.Debug()
			}
			event.
				Str("request_id", requestID).
				Str("method", req.Method).
				Str("path", req.URL.Path).
				Str("remote_ip", c.RealIP()).
				Int("status", status).
				Dur("duration", duration).
				Int64("bytes_out", c.Response().Size).
				Msg("Request handled")

			if !device && route != "" {
				metrics.RecordAPIRequest(req.Method, route, status, duration)
			}
			return nil
		}
	}
}
