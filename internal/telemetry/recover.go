package telemetry

import (
	"log/slog"
	"runtime/debug"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
)

// RecoverMiddleware logs a panic with its stack trace and maps it to a 500,
// matching the Unknown error kind's handling in the error design: logged
// with stack trace, never propagated past the facade.
func RecoverMiddleware(logger *slog.Logger) echo.MiddlewareFunc {
	return middleware.RecoverWithConfig(middleware.RecoverConfig{
		LogErrorFunc: func(c echo.Context, err error, stack []byte) error {
			logger.Error("panic recovered",
				"error", err,
				"path", c.Request().URL.Path,
				"stack", string(stack))
			return err
		},
	})
}

// StackString is a small helper for non-echo goroutines that want the same
// stack-capturing behavior. Nothing in this repository calls it.
func StackString() string {
	return string(debug.Stack())
}
