package metrics

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetricgrpc"
	"go.opentelemetry.io/otel/exporters/otlp/otlpmetric/otlpmetrichttp"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

// Config configures the metrics provider.
type Config struct {
	Enabled          bool
	ExporterEndpoint string
	ExporterProtocol string
	ServiceName      string
	Environment      string
}

// Metrics exposes application-level instruments.
type Metrics struct {
	accessResolutions metric.Int64Counter
	invitationEvents  metric.Int64Counter
	seatTransitions   metric.Int64Counter
	rateLimitDenied   metric.Int64Counter
}

// NewProvider configures and registers the meter provider.
func NewProvider(lc fx.Lifecycle, cfg Config, log *zap.Logger) (metric.MeterProvider, error) {
	if !cfg.Enabled {
		provider := noop.NewMeterProvider()
		otel.SetMeterProvider(provider)
		return provider, nil
	}

	exporter, err := newExporter(cfg.ExporterProtocol, cfg.ExporterEndpoint)
	if err != nil {
		return nil, err
	}

	reader := sdkmetric.NewPeriodicReader(exporter, sdkmetric.WithInterval(10*time.Second))
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	otel.SetMeterProvider(provider)

	if lc != nil {
		lc.Append(fx.Hook{
			OnStop: func(ctx context.Context) error {
				if log != nil {
					log.Info("shutting down meter provider")
				}
				return provider.Shutdown(ctx)
			},
		})
	}

	if log != nil {
		log.Info("metrics initialized",
			zap.String("endpoint", cfg.ExporterEndpoint),
			zap.String("protocol", cfg.ExporterProtocol),
		)
	}

	return provider, nil
}

// New configures the domain metrics instruments.
func New(cfg Config, provider metric.MeterProvider) (*Metrics, error) {
	name := strings.TrimSpace(cfg.ServiceName)
	if name == "" {
		name = "accessd"
	}
	meter := provider.Meter(name)

	accessResolutions, err := meter.Int64Counter("accessd_access_resolutions_total")
	if err != nil {
		return nil, err
	}
	invitationEvents, err := meter.Int64Counter("accessd_invitation_events_total")
	if err != nil {
		return nil, err
	}
	seatTransitions, err := meter.Int64Counter("accessd_seat_transitions_total")
	if err != nil {
		return nil, err
	}
	rateLimitDenied, err := meter.Int64Counter("accessd_rate_limit_denied_total")
	if err != nil {
		return nil, err
	}

	return &Metrics{
		accessResolutions: accessResolutions,
		invitationEvents:  invitationEvents,
		seatTransitions:   seatTransitions,
		rateLimitDenied:   rateLimitDenied,
	}, nil
}

// RecordAccessResolution counts resolver calls by purpose and outcome (hit, miss, error).
func (m *Metrics) RecordAccessResolution(ctx context.Context, purpose, outcome string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("purpose", strings.TrimSpace(purpose)),
		attribute.String("outcome", strings.TrimSpace(outcome)),
	)
	m.accessResolutions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordInvitationEvent counts invitation lifecycle events (created, resent, accepted, rejected).
func (m *Metrics) RecordInvitationEvent(ctx context.Context, event string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("event", strings.TrimSpace(event)))
	m.invitationEvents.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordSeatTransition counts seat status changes by target status.
func (m *Metrics) RecordSeatTransition(ctx context.Context, to string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(attribute.String("to", strings.TrimSpace(to)))
	m.seatTransitions.Add(ctx, 1, metric.WithAttributes(attrs...))
}

// RecordRateLimitDenied increments rate limit deny counts.
func (m *Metrics) RecordRateLimitDenied(ctx context.Context, endpoint, reason string) {
	if m == nil {
		return
	}
	attrs := FilterAttributes(
		attribute.String("endpoint", strings.TrimSpace(endpoint)),
		attribute.String("reason", strings.TrimSpace(reason)),
	)
	m.rateLimitDenied.Add(ctx, 1, metric.WithAttributes(attrs...))
}

func newExporter(protocol, endpoint string) (sdkmetric.Exporter, error) {
	protocol = strings.ToLower(strings.TrimSpace(protocol))
	switch protocol {
	case "http", "http/protobuf":
		opts := []otlpmetrichttp.Option{}
		if endpoint != "" {
			opts = append(opts, otlpmetrichttp.WithEndpoint(endpoint))
		}
		return otlpmetrichttp.New(context.Background(), opts...)
	case "grpc", "grpc/protobuf", "":
		opts := []otlpmetricgrpc.Option{otlpmetricgrpc.WithInsecure()}
		if endpoint != "" {
			opts = append(opts, otlpmetricgrpc.WithEndpoint(endpoint))
		}
		return otlpmetricgrpc.New(context.Background(), opts...)
	default:
		return nil, fmt.Errorf("unsupported OTLP protocol %q", protocol)
	}
}

var allowedLabelKeys = map[attribute.Key]struct{}{
	"purpose":     {},
	"outcome":     {},
	"event":       {},
	"to":          {},
	"endpoint":    {},
	"status_code": {},
	"reason":      {},
}

// FilterAttributes strips disallowed labels to keep metrics low-cardinality.
func FilterAttributes(attrs ...attribute.KeyValue) []attribute.KeyValue {
	filtered := make([]attribute.KeyValue, 0, len(attrs))
	for _, attr := range attrs {
		if _, ok := allowedLabelKeys[attr.Key]; !ok {
			continue
		}
		filtered = append(filtered, attr)
	}
	return filtered
}
