package telemetry

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/smallbiznis/accessd/internal/config"
	"github.com/smallbiznis/accessd/internal/reqcontext"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	"go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Module wires telemetry components via Fx.
var Module = fx.Options(
	fx.Provide(NewTracerProvider),
	fx.Provide(NewHTTPMetrics),
)

// NewTracerProvider configures the OTLP exporter and tracer provider.
// When tracing is disabled spans are still created so request ids propagate, but nothing is exported.
func NewTracerProvider(lc fx.Lifecycle, cfg config.Config, logger *zap.Logger) (*trace.TracerProvider, error) {
	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			attribute.String("service.name", cfg.AppName),
			attribute.String("service.version", cfg.AppVersion),
			attribute.String("deployment.environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, err
	}

	opts := []trace.TracerProviderOption{
		trace.WithResource(res),
		trace.WithSpanProcessor(&requestSpanProcessor{}),
	}
	if cfg.OtelEnabled {
		exporter, err := newTraceExporter(cfg.OTLPProtocol, cfg.OTLPEndpoint)
		if err != nil {
			return nil, err
		}
		opts = append(opts, trace.WithBatcher(exporter))
	}

	tp := trace.NewTracerProvider(opts...)
	otel.SetTracerProvider(tp)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	lc.Append(fx.Hook{
		OnStop: func(ctx context.Context) error {
			logger.Info("shutting down tracer provider")
			return tp.Shutdown(ctx)
		},
	})

	logger.Info("telemetry initialized",
		zap.Bool("export", cfg.OtelEnabled),
		zap.String("endpoint", cfg.OTLPEndpoint),
		zap.String("protocol", cfg.OTLPProtocol),
	)
	return tp, nil
}

func newTraceExporter(protocol, endpoint string) (trace.SpanExporter, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	switch strings.ToLower(strings.TrimSpace(protocol)) {
	case "http", "http/protobuf":
		opts := []otlptracehttp.Option{otlptracehttp.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracehttp.WithEndpoint(endpoint))
		}
		return otlptracehttp.New(ctx, opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlptracegrpc.Option{otlptracegrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlptracegrpc.WithEndpoint(endpoint))
		}
		return otlptracegrpc.New(ctx, opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

// requestSpanProcessor stamps every span with the inbound request id.
type requestSpanProcessor struct{}

func (p *requestSpanProcessor) OnStart(ctx context.Context, s trace.ReadWriteSpan) {
	if id := reqcontext.RequestIDFromContext(ctx); id != "" {
		s.SetAttributes(attribute.String("request_id", id))
	}
}

func (p *requestSpanProcessor) OnEnd(trace.ReadOnlySpan) {}

func (p *requestSpanProcessor) Shutdown(context.Context) error { return nil }

func (p *requestSpanProcessor) ForceFlush(context.Context) error { return nil }
