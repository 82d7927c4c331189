package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const idempotencyHeader = "Idempotency-Key"

type loadMode string

const (
	// modeCreate — только POST /orders.
	modeCreate loadMode = "create"
	// modeCRUD — create → get → patch → delete.
	modeCRUD loadMode = "crud"
	// modeProcess — POST /orders/process-order с idempotency-key.
	modeProcess loadMode = "process"
)

type config struct {
	baseURL     string
	token       string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	productID   string
	priceMinor  int64
	address     string
	outputPath  string
}

type latencySummary struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
	Avg float64 `json:"avg"`
	P50 float64 `json:"p50"`
	P95 float64 `json:"p95"`
	P99 float64 `json:"p99"`
}

type operationReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt         time.Time                  `json:"started_at"`
	DurationSeconds   float64                    `json:"duration_seconds"`
	TotalScenarios    int64                      `json:"total_scenarios"`
	SuccessScenarios  int64                      `json:"success_scenarios"`
	FailedScenarios   int64                      `json:"failed_scenarios"`
	ErrorRate         float64                    `json:"error_rate"`
	RPS               float64                    `json:"rps"`
	ScenarioLatencyMs latencySummary             `json:"scenario_latency_ms"`
	Operations        map[string]operationReport `json:"operations"`
}

type operationStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu         sync.Mutex
	operations map[string]*operationStats
}

func newCollector() *collector {
	return &collector{operations: make(map[string]*operationStats)}
}

// record фиксирует вызов; status <= 0 означает сетевую ошибку.
func (c *collector) record(operation string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, exists := c.operations[operation]
	if !exists {
		stats = &operationStats{statuses: make(map[string]int64)}
		c.operations[operation] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}

	label := "network_error"
	if status > 0 {
		label = fmt.Sprintf("%d", status)
	}
	stats.statuses[label]++
	stats.latencies = append(stats.latencies, float64(latency.Microseconds())/1000.0)
}

func (c *collector) buildReport(startedAt time.Time, duration time.Duration) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	result := report{
		StartedAt:       startedAt.UTC(),
		DurationSeconds: duration.Seconds(),
		Operations:      make(map[string]operationReport, len(c.operations)),
	}

	if scenario := c.operations["scenario"]; scenario != nil {
		result.TotalScenarios = scenario.calls
		result.SuccessScenarios = scenario.success
		result.FailedScenarios = scenario.failed
		result.ErrorRate = ratio(scenario.failed, scenario.calls)
		result.ScenarioLatencyMs = buildLatencySummary(scenario.latencies)
	}
	if duration > 0 {
		result.RPS = float64(result.TotalScenarios) / duration.Seconds()
	}

	for name, stats := range c.operations {
		statuses := make(map[string]int64, len(stats.statuses))
		for status, count := range stats.statuses {
			statuses[status] = count
		}
		result.Operations[name] = operationReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: ratio(stats.failed, stats.calls),
			Statuses:  statuses,
			LatencyMs: buildLatencySummary(stats.latencies),
		}
	}

	return result
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue, durationValue, timeoutValue string

	flags := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	flags.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "orders service base URL")
	flags.StringVar(&cfg.token, "token", "", "bearer token; fetched from /orders/generate-token when empty")
	flags.IntVar(&cfg.total, "total", 400, "total scenarios in count mode")
	flags.StringVar(&durationValue, "duration", "0s", "optional time-based run duration (e.g. 5m)")
	flags.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	flags.StringVar(&timeoutValue, "timeout", "5s", "per-request timeout")
	flags.StringVar(&modeValue, "mode", string(modeCRUD), "load mode: create | crud | process")
	flags.StringVar(&cfg.productID, "product", "product-load", "product id for created orders")
	flags.Int64Var(&cfg.priceMinor, "price-minor", 1000, "item price in minor units")
	flags.StringVar(&cfg.address, "address", "Lenina 1, Moscow", "delivery address")
	flags.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := flags.Parse(args); err != nil {
		return cfg, err
	}

	var err error
	if cfg.timeout, err = time.ParseDuration(strings.TrimSpace(timeoutValue)); err != nil {
		return cfg, fmt.Errorf("parse timeout: %w", err)
	}
	if cfg.duration, err = time.ParseDuration(strings.TrimSpace(durationValue)); err != nil {
		return cfg, fmt.Errorf("parse duration: %w", err)
	}
	flags.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	switch loadMode(strings.TrimSpace(modeValue)) {
	case modeCreate, modeCRUD, modeProcess:
		cfg.mode = loadMode(strings.TrimSpace(modeValue))
	default:
		return cfg, fmt.Errorf("unsupported mode: %s", modeValue)
	}

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return cfg, errors.New("url is required")
	}
	if cfg.duration < 0 {
		return cfg, errors.New("duration must be >= 0")
	}
	if cfg.duration == 0 && cfg.total <= 0 {
		return cfg, errors.New("total must be > 0 when duration is not set")
	}
	if cfg.concurrency <= 0 {
		return cfg, errors.New("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return cfg, errors.New("timeout must be > 0")
	}
	if cfg.priceMinor <= 0 {
		return cfg, errors.New("price-minor must be > 0")
	}
	if strings.TrimSpace(cfg.productID) == "" {
		return cfg, errors.New("product is required")
	}
	if strings.TrimSpace(cfg.address) == "" {
		return cfg, errors.New("address is required")
	}

	return cfg, nil
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	client := &http.Client{Timeout: cfg.timeout}

	if cfg.token == "" {
		token, err := fetchToken(client, cfg.baseURL)
		if err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to obtain token: %v\n", err)
			os.Exit(1)
		}
		cfg.token = token
	}

	startedAt := time.Now()
	runID := fmt.Sprintf("%d-%d", startedAt.UnixNano(), os.Getpid())
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup

	for workerID := 0; workerID < cfg.concurrency; workerID++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for id := range jobs {
				_ = runScenario(client, cfg, id, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	duration := time.Since(startedAt)
	result := col.buildReport(startedAt, duration)

	printReport(result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 {
		os.Exit(1)
	}
}

func dispatchJobs(jobs chan<- int, cfg config) {
	defer close(jobs)

	if cfg.duration <= 0 {
		for i := 0; i < cfg.total; i++ {
			jobs <- i
		}
		return
	}

	timer := time.NewTimer(cfg.duration)
	defer timer.Stop()

	for i := 0; ; i++ {
		if cfg.totalSet && i >= cfg.total {
			return
		}
		select {
		case <-timer.C:
			return
		case jobs <- i:
		}
	}
}

func runScenario(client *http.Client, cfg config, index int, runID string, col *collector) error {
	scenarioStart := time.Now()
	scenarioOK := false
	defer func() {
		col.record("scenario", time.Since(scenarioStart), 0, scenarioOK)
	}()

	var err error
	switch cfg.mode {
	case modeCreate:
		_, err = createOrder(client, cfg, index, col)
	case modeCRUD:
		err = runCRUDScenario(client, cfg, index, col)
	case modeProcess:
		err = processOrder(client, cfg, index, runID, col)
	}

	scenarioOK = err == nil
	return err
}

func runCRUDScenario(client *http.Client, cfg config, index int, col *collector) error {
	orderID, err := createOrder(client, cfg, index, col)
	if err != nil {
		return err
	}
	if err := getOrder(client, cfg, orderID, col); err != nil {
		return err
	}
	if err := patchOrder(client, cfg, orderID, index, col); err != nil {
		return err
	}
	return deleteOrder(client, cfg, orderID, col)
}

func createOrder(client *http.Client, cfg config, index int, col *collector) (string, error) {
	body := map[string]any{
		"address": cfg.address,
		"products": []map[string]any{
			{"product_id": fmt.Sprintf("%s-%d", cfg.productID, index%10), "qty": 1, "price_minor": cfg.priceMinor},
		},
	}

	status, response, err := call(client, cfg, http.MethodPost, "/orders", body, nil, "CreateOrder", col)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", fmt.Errorf("create order status %d", status)
	}

	var created struct {
		ID string `json:"id"`
	}
	if err := json.Unmarshal(response, &created); err != nil || created.ID == "" {
		return "", errors.New("create response returned no order id")
	}
	return created.ID, nil
}

func getOrder(client *http.Client, cfg config, orderID string, col *collector) error {
	status, _, err := call(client, cfg, http.MethodGet, "/orders/myorders/"+orderID, nil, nil, "GetOrder", col)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("get order status %d", status)
	}
	return nil
}

func patchOrder(client *http.Client, cfg config, orderID string, index int, col *collector) error {
	body := map[string]any{"address": fmt.Sprintf("%s, entrance %d", cfg.address, index%5)}
	status, _, err := call(client, cfg, http.MethodPatch, "/orders/"+orderID, body, nil, "PatchOrder", col)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("patch order status %d", status)
	}
	return nil
}

func deleteOrder(client *http.Client, cfg config, orderID string, col *collector) error {
	status, _, err := call(client, cfg, http.MethodDelete, "/orders/"+orderID, nil, nil, "DeleteOrder", col)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("delete order status %d", status)
	}
	return nil
}

func processOrder(client *http.Client, cfg config, index int, runID string, col *collector) error {
	headers := map[string]string{
		idempotencyHeader: fmt.Sprintf("lt-%s-%d", runID, index),
	}
	status, _, err := call(client, cfg, http.MethodPost, "/orders/process-order",
		map[string]any{"address": cfg.address}, headers, "ProcessOrder", col)
	if err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("process order status %d", status)
	}
	return nil
}

func call(
	client *http.Client,
	cfg config,
	method, path string,
	body any,
	headers map[string]string,
	operation string,
	col *collector,
) (int, []byte, error) {
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, cfg.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+cfg.token)
	for key, value := range headers {
		req.Header.Set(key, value)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		col.record(operation, time.Since(start), 0, false)
		return 0, nil, err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	responseBody, err := io.ReadAll(resp.Body)
	ok := err == nil && resp.StatusCode < http.StatusBadRequest
	col.record(operation, time.Since(start), resp.StatusCode, ok)
	return resp.StatusCode, responseBody, err
}

func fetchToken(client *http.Client, baseURL string) (string, error) {
	resp, err := client.Get(baseURL + "/orders/generate-token")
	if err != nil {
		return "", err
	}
	defer func() {
		_ = resp.Body.Close()
	}()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate-token status %d", resp.StatusCode)
	}

	var payload struct {
		Token string `json:"token"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", err
	}
	if payload.Token == "" {
		return "", errors.New("generate-token returned empty token")
	}
	return payload.Token, nil
}

func writeJSONReport(path string, result report) error {
	cleanPath := filepath.Clean(path)
	if cleanPath == "." || cleanPath == string(filepath.Separator) {
		return errors.New("output path must point to a file")
	}
	if cleanPath == ".." || strings.HasPrefix(cleanPath, ".."+string(filepath.Separator)) {
		return fmt.Errorf("output path must be inside current directory: %s", path)
	}

	// #nosec G304 -- path is an explicit CLI output parameter for local load-test reports.
	file, err := os.Create(cleanPath)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "  ")
	return encoder.Encode(result)
}

func printReport(result report, cfg config) {
	fmt.Println("Load test summary")
	fmt.Printf("mode=%s target=%s total=%d success=%d failed=%d error_rate=%.4f\n",
		cfg.mode,
		runTarget(cfg),
		result.TotalScenarios,
		result.SuccessScenarios,
		result.FailedScenarios,
		result.ErrorRate,
	)
	fmt.Printf("duration=%.2fs rps=%.2f\n", result.DurationSeconds, result.RPS)
	fmt.Printf("scenario latency ms: min=%.2f avg=%.2f p50=%.2f p95=%.2f p99=%.2f max=%.2f\n",
		result.ScenarioLatencyMs.Min,
		result.ScenarioLatencyMs.Avg,
		result.ScenarioLatencyMs.P50,
		result.ScenarioLatencyMs.P95,
		result.ScenarioLatencyMs.P99,
		result.ScenarioLatencyMs.Max,
	)

	names := make([]string, 0, len(result.Operations))
	for name := range result.Operations {
		if name == "scenario" {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		stats := result.Operations[name]
		fmt.Printf("%s: calls=%d success=%d failed=%d error_rate=%.4f p95=%.2fms\n",
			name, stats.Calls, stats.Success, stats.Failed, stats.ErrorRate, stats.LatencyMs.P95)
	}
}

func runTarget(cfg config) string {
	if cfg.duration <= 0 {
		return fmt.Sprintf("count:%d", cfg.total)
	}
	if cfg.totalSet {
		return fmt.Sprintf("duration:%s,max-total:%d", cfg.duration, cfg.total)
	}
	return fmt.Sprintf("duration:%s", cfg.duration)
}

func buildLatencySummary(values []float64) latencySummary {
	if len(values) == 0 {
		return latencySummary{}
	}

	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	var sum float64
	for _, value := range sorted {
		sum += value
	}

	return latencySummary{
		Min: sorted[0],
		Max: sorted[len(sorted)-1],
		Avg: sum / float64(len(sorted)),
		P50: percentile(sorted, 50),
		P95: percentile(sorted, 95),
		P99: percentile(sorted, 99),
	}
}

func percentile(sorted []float64, p float64) float64 {
	if len(sorted) == 0 {
		return 0
	}
	if len(sorted) == 1 {
		return sorted[0]
	}

	rank := (p / 100.0) * float64(len(sorted)-1)
	lower := int(math.Floor(rank))
	upper := int(math.Ceil(rank))
	if lower == upper {
		return sorted[lower]
	}

	weight := rank - float64(lower)
	return sorted[lower] + (sorted[upper]-sorted[lower])*weight
}

func ratio(failed, total int64) float64 {
	if total <= 0 {
		return 0
	}
	return float64(failed) / float64(total)
}
