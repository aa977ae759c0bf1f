package httpapi

import (
	"log/slog"
	"time"

	"github.com/labstack/echo/v4"
)

// requestLogger logs each request's method, path, status and latency at
// request-scoped granularity, mirroring the teacher's
// logger.InfoContext(ctx, ...) pattern.
func requestLogger(logger *slog.Logger) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			start := time.Now()
			err := next(c)
			logger.Info("http request",
				"method", c.Request().Method,
				"path", c.Path(),
				"status", c.Response().Status,
				"request_id", c.Response().Header().Get(echo.HeaderXRequestID),
				"elapsed", time.Since(start))
			return err
		}
	}
}
