package api

import (
	"log/slog"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// requestLogger logs one line per request through slog.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RequestLoggerWithConfig(middleware.RequestLoggerConfig{
		LogMethod:    true,
		LogURI:       true,
		LogStatus:    true,
		LogLatency:   true,
		LogRequestID: true,
		LogError:     true,
		HandleError:  true,
		LogValuesFunc: func(c echo.Context, v middleware.RequestLoggerValues) error {
			attrs := []any{
				"method", v.Method,
				"uri", v.URI,
				"status", v.Status,
				"durationMs", v.Latency.Milliseconds(),
				"requestID", v.RequestID,
			}
			if v.Error != nil {
				logger.Warn("HTTP request failed", append(attrs, "error", v.Error.Error())...)
				return nil
			}
			logger.Debug("HTTP request", attrs...)
			return nil
		},
	})
}
