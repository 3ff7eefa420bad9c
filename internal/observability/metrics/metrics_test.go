package metrics

import (
	"context"
	"testing"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric/noop"
)

func TestFilterAttributesDropsForbiddenLabels(t *testing.T) {
	attrs := FilterAttributes(
		attribute.String("outcome", "hit"),
		attribute.String("user_id", "456"),
		attribute.String("purpose", "analytics"),
	)
	if len(attrs) != 2 {
		t.Fatalf("expected 2 attributes, got %d", len(attrs))
	}
	if attrs[0].Key != "outcome" && attrs[1].Key != "outcome" {
		t.Fatalf("expected outcome to be retained")
	}
	if attrs[0].Key != "purpose" && attrs[1].Key != "purpose" {
		t.Fatalf("expected purpose to be retained")
	}
}

func TestNilMetricsIsSafe(t *testing.T) {
	var m *Metrics
	ctx := context.Background()
	m.RecordAccessResolution(ctx, "any", "hit")
	m.RecordInvitationEvent(ctx, "accepted")
	m.RecordSeatTransition(ctx, "SUSPENDED")
	m.RecordRateLimitDenied(ctx, "/invitations", "exhausted")
}

func TestNewWithNoopProvider(t *testing.T) {
	m, err := New(Config{}, noop.NewMeterProvider())
	if err != nil {
		t.Fatalf("new metrics: %v", err)
	}
	m.RecordSeatTransition(context.Background(), "ACTIVE")
}
