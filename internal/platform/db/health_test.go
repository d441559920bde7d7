package db

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/labstack/echo/v4"
)

func okCheck(name string) Checker {
	return CheckFunc{Label: name, Fn: func(context.Context) error { return nil }}
}

func TestHealthHandler_AllHealthy(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	if err := HealthHandler(okCheck("postgres"), okCheck("redis"))(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
	if !strings.Contains(rec.Body.String(), `"status":"healthy"`) {
		t.Errorf("expected healthy status, got %s", rec.Body.String())
	}
}

func TestHealthHandler_OneUnhealthy(t *testing.T) {
	e := echo.New()
	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/health", nil), rec)

	failing := CheckFunc{Label: "redis", Fn: func(context.Context) error { return errors.New("dial tcp: refused") }}
	if err := HealthHandler(okCheck("postgres"), failing)(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusServiceUnavailable {
		t.Errorf("expected 503, got %d", rec.Code)
	}
	body := rec.Body.String()
	if !strings.Contains(body, `"status":"unhealthy"`) || !strings.Contains(body, "dial tcp: refused") {
		t.Errorf("expected unhealthy redis component, got %s", body)
	}
}

func TestCheckFunc_Name(t *testing.T) {
	if okCheck("kafka").Name() != "kafka" {
		t.Error("expected name kafka")
	}
}
