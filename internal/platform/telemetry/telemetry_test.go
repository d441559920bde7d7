package telemetry

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func newTestProvider(t *testing.T) *TelemetryProvider {
	t.Helper()
	p, err := NewTelemetryProvider(TelemetryConfig{})
	if err != nil {
		t.Fatalf("NewTelemetryProvider: %v", err)
	}
	t.Cleanup(func() { _ = p.Shutdown(context.Background()) })
	return p
}

func TestTelemetryConfig_Defaults(t *testing.T) {
	cfg := TelemetryConfig{SampleRate: 7}
	cfg.applyDefaults()

	if cfg.ServiceName != "emsops-server" {
		t.Fatalf("expected default ServiceName='emsops-server', got %q", cfg.ServiceName)
	}
	if cfg.Environment != "development" {
		t.Fatalf("expected default Environment='development', got %q", cfg.Environment)
	}
	if cfg.SampleRate != 1.0 {
		t.Fatalf("expected out-of-range SampleRate to reset to 1.0, got %f", cfg.SampleRate)
	}
}

func TestStartSpan_ProducesTraceID(t *testing.T) {
	newTestProvider(t)

	ctx, span := StartSpan(context.Background(), "test.span")
	defer span.End()

	if id := TraceID(ctx); len(id) != 32 {
		t.Fatalf("expected 32-char trace id, got %q", id)
	}
}

func TestTraceID_EmptyWithoutSpan(t *testing.T) {
	if id := TraceID(context.Background()); id != "" {
		t.Fatalf("expected empty trace id, got %q", id)
	}
}

func TestMetricsMiddleware_RecordsRoutePattern(t *testing.T) {
	p := newTestProvider(t)

	e := echo.New()
	e.Use(p.MetricsMiddleware())
	e.GET("/api/v1/ambulances/:id", func(c echo.Context) error {
		return c.NoContent(http.StatusNoContent)
	})
	e.GET("/metrics", p.PrometheusHandler())

	req := httptest.NewRequest(http.MethodGet, "/api/v1/ambulances/abc", nil)
	e.ServeHTTP(httptest.NewRecorder(), req)

	rec := httptest.NewRecorder()
	e.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/metrics", nil))

	body := rec.Body.String()
	if !strings.Contains(body, `emsops_http_server_requests_total{method="GET",route="/api/v1/ambulances/:id",status="204"} 1`) {
		t.Fatalf("expected request counter for route pattern, got:\n%s", body)
	}
	if strings.Contains(body, "/api/v1/ambulances/abc") {
		t.Fatal("raw path must not be used as a label")
	}
}
