package tracing

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
)

func TestSafeAttributesDropsBlockedAndEmpty(t *testing.T) {
	attrs := SafeAttributes(
		attribute.String("http.route", "/v1/invitations/accept"),
		attribute.String("invitation.token", "secret"),
		attribute.String("request_id", ""),
		attribute.Int("http.status_code", 200),
	)
	require.Len(t, attrs, 2)
	require.Equal(t, attribute.Key("http.route"), attrs[0].Key)
	require.Equal(t, attribute.Key("http.status_code"), attrs[1].Key)
}

func TestSafeErrorKeepsTopLevelMessage(t *testing.T) {
	err := fmt.Errorf("create seat: %w", errors.New("duplicate key value violates unique constraint"))
	require.EqualError(t, SafeError(err), "create seat")
	require.Nil(t, SafeError(nil))
}
