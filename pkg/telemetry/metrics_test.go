package telemetry

import (
	"net/http"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/require"
)

func TestObserveAPIRequestCountsByRouteAndStatus(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry(reg)

	m.ObserveAPIRequest(http.MethodGet, "/v1/access/stores", http.StatusOK, 10*time.Millisecond)
	m.ObserveAPIRequest(http.MethodGet, "/v1/access/stores", http.StatusOK, 5*time.Millisecond)
	m.ObserveAPIRequest(http.MethodGet, "", http.StatusNotFound, time.Millisecond)

	require.Equal(t, 2.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "/v1/access/stores", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.apiRequests.WithLabelValues("GET", "unknown", "404")))
}

func TestObserveAPIRequestRecordsLatency(t *testing.T) {
	reg := prometheus.NewRegistry()
	m := NewHTTPMetricsWithRegistry(reg)

	m.ObserveAPIRequest(http.MethodPost, "/v1/invitations/accept", http.StatusConflict, 20*time.Millisecond)
	m.ObserveAPIRequest(http.MethodPost, "/v1/invitations/accept", http.StatusOK, 30*time.Millisecond)

	families, err := reg.Gather()
	require.NoError(t, err)
	family := findFamily(families, "accessd_api_duration_seconds")
	require.NotNil(t, family)
	require.Equal(t, dto.MetricType_HISTOGRAM, family.GetType())
	require.Len(t, family.GetMetric(), 1)
	require.Equal(t, uint64(2), family.GetMetric()[0].GetHistogram().GetSampleCount())
	require.InDelta(t, 0.05, family.GetMetric()[0].GetHistogram().GetSampleSum(), 1e-9)
}

func findFamily(families []*dto.MetricFamily, name string) *dto.MetricFamily {
	for _, family := range families {
		if family.GetName() == name {
			return family
		}
	}
	return nil
}

func TestNilHTTPMetricsIsSafe(t *testing.T) {
	var m *HTTPMetrics
	m.ObserveAPIRequest(http.MethodGet, "/health", http.StatusOK, time.Millisecond)
}
