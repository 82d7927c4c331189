package main

import (
	"encoding/json"
	"math"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestPercentile(t *testing.T) {
	sorted := []float64{10, 20, 30, 40, 50}

	if got := percentile(sorted, 50); got != 30 {
		t.Fatalf("p50: expected 30, got %v", got)
	}
	if got := percentile(sorted, 100); got != 50 {
		t.Fatalf("p100: expected 50, got %v", got)
	}
	// p95 интерполируется между 40 и 50.
	if got := percentile(sorted, 95); math.Abs(got-48) > 0.0001 {
		t.Fatalf("p95: expected 48, got %v", got)
	}
	if got := percentile([]float64{7}, 99); got != 7 {
		t.Fatalf("single value: expected 7, got %v", got)
	}
	if got := percentile(nil, 50); got != 0 {
		t.Fatalf("empty: expected 0, got %v", got)
	}
}

func TestBuildLatencySummary(t *testing.T) {
	summary := buildLatencySummary([]float64{5, 1, 3})

	if summary.Min != 1 || summary.Max != 5 {
		t.Fatalf("unexpected min/max: %+v", summary)
	}
	if math.Abs(summary.Avg-3) > 0.0001 {
		t.Fatalf("expected avg 3, got %v", summary.Avg)
	}
	if summary.P50 != 3 {
		t.Fatalf("expected p50 3, got %v", summary.P50)
	}

	empty := buildLatencySummary(nil)
	if empty != (latencySummary{}) {
		t.Fatalf("expected zero summary for empty input, got %+v", empty)
	}
}

func TestRatio(t *testing.T) {
	if got := ratio(0, 0); got != 0 {
		t.Fatalf("expected 0 for empty total, got %v", got)
	}
	if got := ratio(1, 4); math.Abs(got-0.25) > 0.0001 {
		t.Fatalf("expected 0.25, got %v", got)
	}
}

func TestCollectorBuildReport(t *testing.T) {
	col := newCollector()
	col.record("scenario", 10*time.Millisecond, 0, true)
	col.record("scenario", 20*time.Millisecond, 0, false)
	col.record("CreateOrder", 5*time.Millisecond, http.StatusCreated, true)
	col.record("CreateOrder", 5*time.Millisecond, 0, false)

	result := col.buildReport(time.Now(), 2*time.Second)

	if result.TotalScenarios != 2 || result.SuccessScenarios != 1 || result.FailedScenarios != 1 {
		t.Fatalf("unexpected scenario counters: %+v", result)
	}
	if math.Abs(result.RPS-1) > 0.0001 {
		t.Fatalf("expected rps 1, got %v", result.RPS)
	}

	create, exists := result.Operations["CreateOrder"]
	if !exists {
		t.Fatal("expected CreateOrder operation in report")
	}
	if create.Statuses["201"] != 1 || create.Statuses["network_error"] != 1 {
		t.Fatalf("unexpected statuses: %+v", create.Statuses)
	}
}

func TestDispatchJobsCountMode(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{total: 5})

	var got []int
	for id := range jobs {
		got = append(got, id)
	}
	if len(got) != 5 || got[0] != 0 || got[4] != 4 {
		t.Fatalf("unexpected job ids: %v", got)
	}
}

func TestDispatchJobsDurationModeRespectsTotalCap(t *testing.T) {
	jobs := make(chan int, 16)
	dispatchJobs(jobs, config{duration: time.Second, total: 3, totalSet: true})

	count := 0
	for range jobs {
		count++
	}
	if count != 3 {
		t.Fatalf("expected 3 jobs, got %d", count)
	}
}

func TestParseConfig(t *testing.T) {
	cfg, err := parseConfig([]string{
		"-url", "http://orders.local:8080/",
		"-mode", "process",
		"-total", "10",
		"-concurrency", "2",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.baseURL != "http://orders.local:8080" {
		t.Fatalf("expected trimmed base url, got %q", cfg.baseURL)
	}
	if cfg.mode != modeProcess || !cfg.totalSet {
		t.Fatalf("unexpected config: %+v", cfg)
	}

	invalid := [][]string{
		{"-mode", "bulk"},
		{"-total", "0"},
		{"-concurrency", "0"},
		{"-timeout", "0s"},
		{"-price-minor", "-1"},
		{"-address", " "},
	}
	for _, args := range invalid {
		if _, err := parseConfig(args); err == nil {
			t.Fatalf("expected error for args %v", args)
		}
	}
}

func TestRunScenarioCRUD(t *testing.T) {
	var mu sync.Mutex
	requests := make([]string, 0, 4)

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		mu.Lock()
		requests = append(requests, r.Method+" "+r.URL.Path)
		mu.Unlock()

		if !strings.HasPrefix(r.Header.Get("Authorization"), "Bearer ") {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}

		switch {
		case r.Method == http.MethodPost && r.URL.Path == "/orders":
			w.WriteHeader(http.StatusCreated)
			_ = json.NewEncoder(w).Encode(map[string]string{"id": "order-42"})
		default:
			_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
		}
	}))
	defer server.Close()

	cfg := config{
		baseURL:    server.URL,
		token:      "test-token",
		mode:       modeCRUD,
		productID:  "product-load",
		priceMinor: 1000,
		address:    "Lenina 1, Moscow",
	}
	col := newCollector()

	if err := runScenario(server.Client(), cfg, 0, "run-1", col); err != nil {
		t.Fatalf("unexpected scenario error: %v", err)
	}

	expected := []string{
		"POST /orders",
		"GET /orders/myorders/order-42",
		"PATCH /orders/order-42",
		"DELETE /orders/order-42",
	}
	mu.Lock()
	defer mu.Unlock()
	if len(requests) != len(expected) {
		t.Fatalf("expected %d requests, got %v", len(expected), requests)
	}
	for i, want := range expected {
		if requests[i] != want {
			t.Fatalf("request %d: expected %q, got %q", i, want, requests[i])
		}
	}

	result := col.buildReport(time.Now(), time.Second)
	if result.SuccessScenarios != 1 || result.FailedScenarios != 0 {
		t.Fatalf("unexpected report: %+v", result)
	}
}

func TestProcessOrderSendsIdempotencyKey(t *testing.T) {
	var key string
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key = r.Header.Get(idempotencyHeader)
		_ = json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	}))
	defer server.Close()

	cfg := config{
		baseURL: server.URL,
		token:   "test-token",
		mode:    modeProcess,
		address: "Lenina 1, Moscow",
	}

	if err := processOrder(server.Client(), cfg, 7, "run-9", newCollector()); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if key != "lt-run-9-7" {
		t.Fatalf("unexpected idempotency key: %q", key)
	}
}

func TestFetchToken(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/orders/generate-token" {
			w.WriteHeader(http.StatusNotFound)
			return
		}
		_ = json.NewEncoder(w).Encode(map[string]string{"token": "signed-token"})
	}))
	defer server.Close()

	token, err := fetchToken(server.Client(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if token != "signed-token" {
		t.Fatalf("unexpected token: %q", token)
	}
}
