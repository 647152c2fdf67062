package metrics_test

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/circulation-service/cmd/api/circulation"
	"github.com/circulation-service/cmd/api/metrics"
	"github.com/matryer/is"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/shopspring/decimal"
)

var _ circulation.MetricsRecorder = (*metrics.Metrics)(nil)

func TestCounters(t *testing.T) {

	t.Run("counts borrows by outcome", func(t *testing.T) {
		is := is.New(t)

		registry := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(registry)
		m.ObserveBorrow("success")
		m.ObserveBorrow("success")
		m.ObserveBorrow("conflict")

		expected := `
# HELP circulation_borrows_total Borrow attempts by outcome.
# TYPE circulation_borrows_total counter
circulation_borrows_total{outcome="conflict"} 1
circulation_borrows_total{outcome="success"} 2
`
		is.NoErr(testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_borrows_total"))
	})

	t.Run("adds fines of successful returns only", func(t *testing.T) {
		is := is.New(t)

		registry := prometheus.NewRegistry()
		m := metrics.NewWithRegistry(registry)
		m.ObserveReturn("success", decimal.RequireFromString("3.00"))
		m.ObserveReturn("success", decimal.Zero)
		m.ObserveReturn("conflict", decimal.RequireFromString("9.00"))

		expected := `
# HELP circulation_fines_assessed_total Sum of the fines fixed on returned books.
# TYPE circulation_fines_assessed_total counter
circulation_fines_assessed_total 3
`
		is.NoErr(testutil.GatherAndCompare(registry, strings.NewReader(expected), "circulation_fines_assessed_total"))
	})

	t.Run("counts retries per operation", func(t *testing.T) {
		is := is.New(t)

		m := metrics.New()
		m.ObserveRetry("borrow")
		m.ObserveRetry("borrow")
		m.ObserveRetry("return")

		response := httptest.NewRecorder()
		m.Handler().ServeHTTP(response, httptest.NewRequest(http.MethodGet, "/metrics", nil))
		body, _ := io.ReadAll(response.Result().Body)

		is.Equal(response.Result().StatusCode, http.StatusOK)
		is.True(strings.Contains(string(body), `circulation_busy_retries_total{operation="borrow"} 2`))
		is.True(strings.Contains(string(body), `circulation_busy_retries_total{operation="return"} 1`))
	})
}
