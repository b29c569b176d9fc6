package metrics

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	dto "github.com/prometheus/client_model/go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	loreerr "github.com/hyperjump/lore/pkg/errors"
)

func gather(t *testing.T, m *Metrics, name string) *dto.MetricFamily {
	t.Helper()
	families, err := m.Registry().Gather()
	require.NoError(t, err)
	for _, f := range families {
		if f.GetName() == name {
			return f
		}
	}
	return nil
}

func TestObserveOperation(t *testing.T) {
	m := New()
	m.ObserveOperation("publish", 3*time.Millisecond, nil)
	m.ObserveOperation("publish", time.Millisecond, loreerr.New(loreerr.CodeValidationInvalidInput, "bad"))
	m.ObserveOperation("query", time.Millisecond, errors.New("plain"))

	errs := gather(t, m, "lore_operation_errors_total")
	require.NotNil(t, errs)
	got := map[string]float64{}
	for _, metric := range errs.GetMetric() {
		labels := map[string]string{}
		for _, l := range metric.GetLabel() {
			labels[l.GetName()] = l.GetValue()
		}
		got[labels["operation"]+"/"+labels["code"]] = metric.GetCounter().GetValue()
	}
	assert.Equal(t, map[string]float64{
		"publish/" + string(loreerr.CodeValidationInvalidInput): 1,
		"query/unknown": 1,
	}, got)

	durations := gather(t, m, "lore_operation_duration_seconds")
	require.NotNil(t, durations)
	assert.Len(t, durations.GetMetric(), 3)
}

func TestObserveQueryResults(t *testing.T) {
	m := New()
	m.ObserveQueryResults(3)
	m.ObserveQueryResults(0)
	f := gather(t, m, "lore_query_results")
	require.NotNil(t, f)
	require.Len(t, f.GetMetric(), 1)
	assert.Equal(t, uint64(2), f.GetMetric()[0].GetHistogram().GetSampleCount())
	assert.Equal(t, 3.0, f.GetMetric()[0].GetHistogram().GetSampleSum())
}

func TestHandler(t *testing.T) {
	m := New()
	m.ObserveOperation("get", time.Millisecond, nil)
	m.HTTPRequests.WithLabelValues("GET", "/health", "200").Inc()

	w := httptest.NewRecorder()
	m.Handler().ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, w.Code)
	body := w.Body.String()
	assert.True(t, strings.Contains(body, "lore_operation_duration_seconds_bucket"))
	assert.True(t, strings.Contains(body, `lore_http_requests_total{method="GET",route="/health",status="200"} 1`))
	assert.True(t, strings.Contains(body, "go_goroutines"))
}

func TestNew_IndependentRegistries(t *testing.T) {
	a, b := New(), New()
	a.ObserveQueryResults(1)
	assert.NotSame(t, a.Registry(), b.Registry())
	f := gather(t, b, "lore_query_results")
	require.NotNil(t, f)
	assert.Equal(t, uint64(0), f.GetMetric()[0].GetHistogram().GetSampleCount())
}
