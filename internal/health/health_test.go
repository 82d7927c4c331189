package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
)

func TestRegistry_AllChecksPass(t *testing.T) {
	registry := NewRegistry("v1.2.3")
	registry.Register("postgres", func(context.Context) error { return nil })
	registry.Register("kafka", func(context.Context) error { return nil })

	report := registry.Run(context.Background())

	if report.Status != StatusUp {
		t.Fatalf("unexpected status: got=%s want=%s", report.Status, StatusUp)
	}
	if report.Version != "v1.2.3" {
		t.Fatalf("unexpected version: got=%s", report.Version)
	}
	if len(report.Checks) != 2 {
		t.Fatalf("unexpected check count: got=%d want=2", len(report.Checks))
	}
	// Сортировка по имени: kafka раньше postgres.
	if report.Checks[0].Name != "kafka" || report.Checks[1].Name != "postgres" {
		t.Fatalf("checks are not sorted: %+v", report.Checks)
	}
}

func TestRegistry_FailedCheckMarksServiceDown(t *testing.T) {
	registry := NewRegistry("dev")
	registry.Register("postgres", func(context.Context) error { return nil })
	registry.Register("kafka", func(context.Context) error { return errors.New("broker unreachable") })

	report := registry.Run(context.Background())

	if report.Status != StatusDown {
		t.Fatalf("unexpected status: got=%s want=%s", report.Status, StatusDown)
	}

	var kafkaCheck CheckResult
	for _, check := range report.Checks {
		if check.Name == "kafka" {
			kafkaCheck = check
		}
	}
	if kafkaCheck.Status != StatusDown {
		t.Fatalf("kafka check not marked down: %+v", kafkaCheck)
	}
	if kafkaCheck.Error != "broker unreachable" {
		t.Fatalf("unexpected check error: got=%q", kafkaCheck.Error)
	}
}

func TestRegistry_CheckTimeout(t *testing.T) {
	registry := NewRegistry("dev")
	registry.Register("slow", func(ctx context.Context) error {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(10 * time.Second):
			return nil
		}
	})

	start := time.Now()
	report := registry.Run(context.Background())
	elapsed := time.Since(start)

	if report.Status != StatusDown {
		t.Fatalf("unexpected status: got=%s want=%s", report.Status, StatusDown)
	}
	if elapsed > 5*time.Second {
		t.Fatalf("check was not bounded by timeout: elapsed=%v", elapsed)
	}
}

func TestRegistry_HTTPHandler(t *testing.T) {
	registry := NewRegistry("v1.0.0")
	registry.Register("postgres", func(context.Context) error { return nil })

	recorder := httptest.NewRecorder()
	registry.HTTPHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("ready service: status=%d want=200", recorder.Code)
	}

	var report Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusUp || len(report.Checks) != 1 {
		t.Fatalf("unexpected report: %+v", report)
	}

	registry.Register("postgres", func(context.Context) error { return errors.New("connection refused") })

	recorder = httptest.NewRecorder()
	registry.HTTPHandler()(recorder, httptest.NewRequest(http.MethodGet, "/readyz", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("unready service: status=%d want=503", recorder.Code)
	}
}

func TestRegistry_GinHandler(t *testing.T) {
	gin.SetMode(gin.TestMode)

	registry := NewRegistry("v1.0.0")
	registry.Register("postgres", func(context.Context) error { return nil })

	router := gin.New()
	router.GET("/health", registry.GinHandler())

	recorder := httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusOK {
		t.Fatalf("healthy service: status=%d want=200", recorder.Code)
	}

	var report Report
	if err := json.Unmarshal(recorder.Body.Bytes(), &report); err != nil {
		t.Fatalf("decode report: %v", err)
	}
	if report.Status != StatusUp {
		t.Fatalf("unexpected report status: %s", report.Status)
	}

	registry.Register("kafka", func(context.Context) error { return errors.New("down") })

	recorder = httptest.NewRecorder()
	router.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/health", nil))

	if recorder.Code != http.StatusServiceUnavailable {
		t.Fatalf("unhealthy service: status=%d want=503", recorder.Code)
	}
}
