package logger

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/smallbiznis/accessd/internal/reqcontext"
	"go.uber.org/zap"
)

// RequestIDHeader carries the request id in and out of the service.
const RequestIDHeader = "X-Request-Id"

// MiddlewareConfig controls request logging behavior.
type MiddlewareConfig struct {
	Debug bool
	// ErrorClassifier maps a handler error to its wire code for the access log.
	ErrorClassifier func(err error) string
}

// GinMiddleware logs each request and seeds the request context with the
// request id and client details used by audit entries.
func GinMiddleware(base *zap.Logger, cfg MiddlewareConfig) gin.HandlerFunc {
	if base == nil {
		base = zap.NewNop()
	}
	base = base.Named("http")
	return func(c *gin.Context) {
		start := time.Now()
		requestID := ensureRequestID(c)

		ctx := c.Request.Context()
		ctx = reqcontext.WithRequestID(ctx, requestID)
		ctx = reqcontext.WithClient(ctx, reqcontext.Client{
			IPAddress: c.ClientIP(),
			UserAgent: c.Request.UserAgent(),
		})
		c.Request = c.Request.WithContext(ctx)

		c.Next()

		status := c.Writer.Status()
		route := c.FullPath()
		if strings.TrimSpace(route) == "" {
			route = "unknown"
		}
		fields := []zap.Field{
			zap.String("method", c.Request.Method),
			zap.String("route", route),
			zap.Int("status", status),
			zap.Int64("duration_ms", time.Since(start).Milliseconds()),
			zap.Int("bytes_out", normalizeSize(c.Writer.Size())),
		}

		if lastErr := c.Errors.Last(); lastErr != nil {
			code := "internal_error"
			if cfg.ErrorClassifier != nil {
				code = cfg.ErrorClassifier(lastErr.Err)
			}
			fields = append(fields, zap.String("error_code", code))
			if cfg.Debug {
				fields = append(fields, zap.Error(lastErr.Err))
			}
		}

		logRequest(WithContext(c.Request.Context(), base), route, status, fields)
	}
}

func ensureRequestID(c *gin.Context) string {
	requestID := strings.TrimSpace(c.GetHeader(RequestIDHeader))
	if requestID == "" || len(requestID) > 128 {
		requestID = uuid.NewString()
	}
	c.Set("request_id", requestID)
	c.Header(RequestIDHeader, requestID)
	return requestID
}

func logRequest(log *zap.Logger, route string, status int, fields []zap.Field) {
	switch {
	case isQuiet(route):
		log.Debug("http_request", fields...)
	case status >= http.StatusInternalServerError:
		log.Error("http_request", fields...)
	default:
		log.Info("http_request", fields...)
	}
}

func isQuiet(route string) bool {
	return route == "/metrics" || route == "/health"
}

func normalizeSize(value int) int {
	if value < 0 {
		return 0
	}
	return value
}
