package metrics

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestNilMetricsIsNoop(t *testing.T) {
	var m *Metrics
	m.ObserveAudit("encounter", "CREATE")
	m.ObserveAuditDegraded()
	m.ObserveTransition("REGISTERED", "TRIAGED")
	m.ObserveAssignment("bed", "assigned")
	m.ObserveTempMRN("M")
	m.ObserveIdempotency("replay")
	m.ObserveRegistration("unknown")
	if m.Registry() != nil {
		t.Error("expected nil registry")
	}
}

func TestCounters(t *testing.T) {
	m := New("ed_test")
	m.ObserveAudit("encounter", "CREATE")
	m.ObserveAudit("encounter", "CREATE")
	m.ObserveAuditDegraded()

	if got := testutil.ToFloat64(m.AuditEntries.WithLabelValues("encounter", "CREATE")); got != 2 {
		t.Errorf("expected 2 audit entries, got %v", got)
	}
	if got := testutil.ToFloat64(m.AuditDegraded); got != 1 {
		t.Errorf("expected 1 degraded, got %v", got)
	}
}

func TestMiddlewareAndHandler(t *testing.T) {
	m := New("ed_test")
	e := echo.New()
	e.Use(m.Middleware())
	e.GET("/board", func(c echo.Context) error { return c.NoContent(http.StatusOK) })
	e.GET("/metrics", m.Handler())

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/board", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", rec.Code)
	}

	rec = httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	if !strings.Contains(rec.Body.String(), `ed_test_http_requests_total{method="GET",route="/board",status="2xx"} 1`) {
		t.Errorf("expected board request counter in exposition, got:\n%s", rec.Body.String())
	}
}
