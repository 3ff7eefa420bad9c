package logger

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/smallbiznis/accessd/internal/reqcontext"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

func TestWithContextAddsRequestFields(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	ctx := reqcontext.WithRequestID(context.Background(), "req-1")
	ctx = reqcontext.WithActorID(ctx, snowflake.ID(42))

	WithContext(ctx, zap.New(core)).Info("hello")

	entries := logs.All()
	require.Len(t, entries, 1)
	fields := entries[0].ContextMap()
	require.Equal(t, "req-1", fields["request_id"])
	require.Equal(t, "42", fields["actor_id"])
	require.NotContains(t, fields, "contract_id")
}

func TestGinMiddlewarePropagatesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	core, logs := observer.New(zapcore.InfoLevel)

	var seen string
	var client reqcontext.Client
	r := gin.New()
	r.Use(GinMiddleware(zap.New(core), MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) {
		seen = reqcontext.RequestIDFromContext(c.Request.Context())
		client = reqcontext.ClientFromContext(c.Request.Context())
		c.Status(http.StatusNoContent)
	})

	req := httptest.NewRequest(http.MethodGet, "/ping", nil)
	req.Header.Set(RequestIDHeader, "abc")
	req.Header.Set("User-Agent", "accessd-test/1.0")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", w.Header().Get(RequestIDHeader))
	require.Equal(t, "accessd-test/1.0", client.UserAgent)
	require.Len(t, logs.FilterMessage("http_request").All(), 1)
}

func TestGinMiddlewareGeneratesRequestID(t *testing.T) {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(GinMiddleware(zap.NewNop(), MiddlewareConfig{}))
	r.GET("/ping", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/ping", nil))
	require.NotEmpty(t, w.Header().Get(RequestIDHeader))
}

func TestOperationFromSQL(t *testing.T) {
	require.Equal(t, "SELECT", operationFromSQL("WITH x AS (SELECT 1) SELECT * FROM x"))
	require.Equal(t, "UPDATE", operationFromSQL(" update contract_seats set status = ?"))
	require.Equal(t, "UNKNOWN", operationFromSQL(""))
}
