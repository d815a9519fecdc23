package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestMetricsRecordsTemplatedRoute(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/api/v1/events/:id", func(c echo.Context) error {
		return c.String(http.StatusOK, "ok")
	})

	counter := httpRequestsTotal.WithLabelValues("/api/v1/events/:id", http.MethodGet, "200")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/api/v1/events/abc", nil))
	if rec.Code != http.StatusOK {
		t.Fatalf("unexpected status %d", rec.Code)
	}

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected 1 request recorded under the route template, got %v", got)
	}
	if got := testutil.ToFloat64(httpInFlight.WithLabelValues("/api/v1/events/:id", http.MethodGet)); got != 0 {
		t.Fatalf("in-flight gauge should drain, got %v", got)
	}
}

func TestMetricsStatusFromHandlerError(t *testing.T) {
	e := echo.New()
	e.Use(Metrics())
	e.GET("/upstream", func(c echo.Context) error {
		return echo.NewHTTPError(http.StatusBadGateway, "upstream down")
	})

	counter := httpRequestsTotal.WithLabelValues("/upstream", http.MethodGet, "502")
	before := testutil.ToFloat64(counter)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/upstream", nil))

	if got := testutil.ToFloat64(counter) - before; got != 1 {
		t.Fatalf("expected the handler error status on the counter, got %v", got)
	}
}
