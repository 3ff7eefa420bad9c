package logger

import (
	"context"

	"github.com/smallbiznis/accessd/internal/reqcontext"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

// FromContext returns the global logger enriched with request-scoped fields.
func FromContext(ctx context.Context) *zap.Logger {
	return WithContext(ctx, zap.L())
}

// WithContext enriches base with request id, actor, contract, and trace fields.
func WithContext(ctx context.Context, base *zap.Logger) *zap.Logger {
	if base == nil {
		base = zap.L()
	}
	if ctx == nil {
		return base
	}

	fields := make([]zap.Field, 0, 5)
	if requestID := reqcontext.RequestIDFromContext(ctx); requestID != "" {
		fields = append(fields, zap.String("request_id", requestID))
	}
	if actorID, ok := reqcontext.ActorIDFromContext(ctx); ok {
		fields = append(fields, zap.String("actor_id", actorID.String()))
	}
	if contractID, ok := reqcontext.ContractIDFromContext(ctx); ok {
		fields = append(fields, zap.String("contract_id", contractID.String()))
	}
	if sc := trace.SpanFromContext(ctx).SpanContext(); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}
