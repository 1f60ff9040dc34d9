package middleware

import (
	"log/slog"

	"github.com/labstack/echo/v4"

	"github.com/hrygo/callsight/server/internal/observability"
)

// RequestContext attaches an observability.RequestContext to every request,
// echoes the request id in X-Request-ID and logs and counts the request
// once it completes. Handler errors are rendered here so the logged status
// is the one the client saw.
func RequestContext(logger *slog.Logger, metrics *observability.Metrics) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			req := c.Request()
			requestID := req.Header.Get(echo.HeaderXRequestID)
			if requestID == "" {
				requestID = observability.NewRequestID()
			}
			c.Response().Header().Set(echo.HeaderXRequestID, requestID)

			reqCtx := observability.NewRequestContextWithID(logger, requestID, c.Path())
			c.SetRequest(req.WithContext(observability.WithRequestContext(req.Context(), reqCtx)))

			err := next(c)
			if err != nil {
				c.Error(err)
			}

			status := c.Response().Status
			if metrics != nil {
				metrics.RecordRequest(c.Path(), status, reqCtx.Duration())
			}
			attrs := []slog.Attr{
				slog.String("method", req.Method),
				slog.Int(observability.LogFieldStatus, status),
				slog.Int64(observability.LogFieldDuration, reqCtx.DurationMs()),
			}
			if status >= 500 {
				reqCtx.Error("request failed", err, attrs...)
			} else {
				reqCtx.Debug("request completed", attrs...)
			}
			return nil
		}
	}
}
