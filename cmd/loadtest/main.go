package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"math"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

const (
	headerUserID    = "X-User-Id"
	headerCompanyID = "X-Company-Id"

	defaultProductID  = int64(100)
	defaultPriceMinor = int64(10000)
	defaultQty        = int32(1)
)

type loadMode string

const (
	modeCreate        loadMode = "create"
	modeCreateConfirm loadMode = "create-confirm"
	modeCreateReject  loadMode = "create-reject"
)

type config struct {
	baseURL     string
	total       int
	concurrency int
	timeout     time.Duration
	mode        loadMode
	customerID  int64
	supplierID  int64
	productID   int64
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

type endpointReport struct {
	Calls     int64            `json:"calls"`
	Success   int64            `json:"success"`
	Failed    int64            `json:"failed"`
	ErrorRate float64          `json:"error_rate"`
	Statuses  map[string]int64 `json:"statuses"`
	LatencyMs latencySummary   `json:"latency_ms"`
}

type report struct {
	StartedAt        time.Time                 `json:"started_at"`
	DurationSeconds  float64                   `json:"duration_seconds"`
	TotalScenarios   int64                     `json:"total_scenarios"`
	SuccessScenarios int64                     `json:"success_scenarios"`
	FailedScenarios  int64                     `json:"failed_scenarios"`
	ErrorRate        float64                   `json:"error_rate"`
	RPS              float64                   `json:"rps"`
	Endpoints        map[string]endpointReport `json:"endpoints"`
}

type endpointStats struct {
	calls     int64
	success   int64
	failed    int64
	statuses  map[string]int64
	latencies []float64
}

type collector struct {
	mu        sync.Mutex
	endpoints map[string]*endpointStats
}

func newCollector() *collector {
	return &collector{endpoints: make(map[string]*endpointStats)}
}

func (c *collector) record(endpoint string, latency time.Duration, status int, ok bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	stats, found := c.endpoints[endpoint]
	if !found {
		stats = &endpointStats{statuses: make(map[string]int64)}
		c.endpoints[endpoint] = stats
	}

	stats.calls++
	if ok {
		stats.success++
	} else {
		stats.failed++
	}
	stats.statuses[fmt.Sprintf("%d", status)]++
	stats.latencies = append(stats.latencies, float64(latency.Milliseconds()))
}

func (c *collector) buildReport(startedAt time.Time, elapsed time.Duration, total, success, failed int64) report {
	c.mu.Lock()
	defer c.mu.Unlock()

	endpoints := make(map[string]endpointReport, len(c.endpoints))
	for name, stats := range c.endpoints {
		errorRate := 0.0
		if stats.calls > 0 {
			errorRate = float64(stats.failed) / float64(stats.calls)
		}
		endpoints[name] = endpointReport{
			Calls:     stats.calls,
			Success:   stats.success,
			Failed:    stats.failed,
			ErrorRate: errorRate,
			Statuses:  stats.statuses,
			LatencyMs: summarize(stats.latencies),
		}
	}

	errorRate := 0.0
	if total > 0 {
		errorRate = float64(failed) / float64(total)
	}
	rps := 0.0
	if elapsed > 0 {
		rps = float64(total) / elapsed.Seconds()
	}

	return report{
		StartedAt:        startedAt,
		DurationSeconds:  elapsed.Seconds(),
		TotalScenarios:   total,
		SuccessScenarios: success,
		FailedScenarios:  failed,
		ErrorRate:        errorRate,
		RPS:              rps,
		Endpoints:        endpoints,
	}
}

func summarize(latencies []float64) latencySummary {
	if len(latencies) == 0 {
		return latencySummary{}
	}

	sorted := append([]float64(nil), latencies...)
	sort.Float64s(sorted)

	var sum float64
	for _, v := range sorted {
		sum += v
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
	rank := int(math.Ceil(p/100*float64(len(sorted)))) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(sorted) {
		rank = len(sorted) - 1
	}
	return sorted[rank]
}

type client struct {
	http    *http.Client
	baseURL string
	stats   *collector
}

func (c *client) do(ctx context.Context, name, method, path string, companyID int64, body any) (int, []byte, error) {
	var reader *bytes.Reader
	if body != nil {
		encoded, err := json.Marshal(body)
		if err != nil {
			return 0, nil, err
		}
		reader = bytes.NewReader(encoded)
	} else {
		reader = bytes.NewReader(nil)
	}

	req, err := http.NewRequestWithContext(ctx, method, c.baseURL+path, reader)
	if err != nil {
		return 0, nil, err
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set(headerUserID, fmt.Sprintf("%d", companyID*10))
	req.Header.Set(headerCompanyID, fmt.Sprintf("%d", companyID))

	start := time.Now()
	resp, err := c.http.Do(req)
	latency := time.Since(start)
	if err != nil {
		c.stats.record(name, latency, 0, false)
		return 0, nil, err
	}
	defer func() { _ = resp.Body.Close() }()

	var buf bytes.Buffer
	_, _ = buf.ReadFrom(resp.Body)

	ok := resp.StatusCode >= 200 && resp.StatusCode < 300
	c.stats.record(name, latency, resp.StatusCode, ok)
	if !ok {
		return resp.StatusCode, buf.Bytes(), fmt.Errorf("%s returned %d: %s", name, resp.StatusCode, strings.TrimSpace(buf.String()))
	}
	return resp.StatusCode, buf.Bytes(), nil
}

type createdOrder struct {
	ID int64 `json:"id"`
}

func (c *client) createOrder(ctx context.Context, cfg config) (int64, error) {
	body := map[string]any{
		"supplier_id":      cfg.supplierID,
		"delivery_address": "Load test warehouse, dock 1",
		"items": []map[string]any{
			{"product_id": cfg.productID, "qty": defaultQty, "price_minor": defaultPriceMinor},
		},
	}

	_, payload, err := c.do(ctx, "CreateOrder", http.MethodPost, "/api/v1/orders", cfg.customerID, body)
	if err != nil {
		return 0, err
	}

	var order createdOrder
	if err := json.Unmarshal(payload, &order); err != nil {
		return 0, fmt.Errorf("decode create order response: %w", err)
	}
	if order.ID == 0 {
		return 0, errors.New("create order response without id")
	}
	return order.ID, nil
}

func (c *client) runScenario(ctx context.Context, cfg config) error {
	orderID, err := c.createOrder(ctx, cfg)
	if err != nil {
		return err
	}

	switch cfg.mode {
	case modeCreate:
		return nil
	case modeCreateConfirm:
		path := fmt.Sprintf("/api/v1/orders/%d/confirm", orderID)
		_, _, err := c.do(ctx, "ConfirmOrder", http.MethodPost, path, cfg.supplierID, nil)
		return err
	case modeCreateReject:
		path := fmt.Sprintf("/api/v1/orders/%d/reject", orderID)
		body := map[string]any{"reason": "load test rejection"}
		_, _, err := c.do(ctx, "RejectOrder", http.MethodPost, path, cfg.supplierID, body)
		return err
	default:
		return fmt.Errorf("unsupported mode: %s", cfg.mode)
	}
}

func main() {
	cfg, err := readConfig()
	if err != nil {
		fail("%v", err)
	}

	if err := run(context.Background(), cfg); err != nil {
		fail("load test failed: %v", err)
	}
}

func readConfig() (config, error) {
	var (
		cfg     config
		modeRaw string
	)

	flag.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the order service")
	flag.IntVar(&cfg.total, "total", 100, "total number of scenarios to run")
	flag.IntVar(&cfg.concurrency, "concurrency", 4, "number of concurrent workers")
	flag.DurationVar(&cfg.timeout, "timeout", 10*time.Second, "per-request timeout")
	flag.StringVar(&modeRaw, "mode", string(modeCreate), "scenario: create|create-confirm|create-reject")
	flag.Int64Var(&cfg.customerID, "customer-id", 1, "customer company id")
	flag.Int64Var(&cfg.supplierID, "supplier-id", 2, "supplier company id")
	flag.Int64Var(&cfg.productID, "product-id", defaultProductID, "product id used in order lines")
	flag.StringVar(&cfg.outputPath, "output", "", "optional path to write JSON report")
	flag.Parse()

	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")
	if cfg.baseURL == "" {
		return config{}, fmt.Errorf("url is required")
	}
	if cfg.total <= 0 {
		return config{}, fmt.Errorf("total must be > 0")
	}
	if cfg.concurrency <= 0 {
		return config{}, fmt.Errorf("concurrency must be > 0")
	}
	if cfg.timeout <= 0 {
		return config{}, fmt.Errorf("timeout must be > 0")
	}

	cfg.mode = loadMode(strings.ToLower(strings.TrimSpace(modeRaw)))
	switch cfg.mode {
	case modeCreate, modeCreateConfirm, modeCreateReject:
	default:
		return config{}, fmt.Errorf("unsupported mode: %s", modeRaw)
	}

	return cfg, nil
}

func run(ctx context.Context, cfg config) error {
	stats := newCollector()
	loadClient := &client{
		http:    &http.Client{Timeout: cfg.timeout},
		baseURL: cfg.baseURL,
		stats:   stats,
	}

	jobs := make(chan struct{})
	var (
		wg      sync.WaitGroup
		mu      sync.Mutex
		success int64
		failed  int64
	)

	startedAt := time.Now()
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for range jobs {
				err := loadClient.runScenario(ctx, cfg)
				mu.Lock()
				if err != nil {
					failed++
				} else {
					success++
				}
				mu.Unlock()
			}
		}()
	}

	for i := 0; i < cfg.total; i++ {
		select {
		case <-ctx.Done():
			close(jobs)
			wg.Wait()
			return ctx.Err()
		case jobs <- struct{}{}:
		}
	}
	close(jobs)
	wg.Wait()

	elapsed := time.Since(startedAt)
	result := stats.buildReport(startedAt, elapsed, int64(cfg.total), success, failed)

	encoded, err := json.MarshalIndent(result, "", "  ")
	if err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	fmt.Println(string(encoded))

	if cfg.outputPath != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.outputPath), 0o755); err != nil {
			return fmt.Errorf("create report directory: %w", err)
		}
		if err := os.WriteFile(cfg.outputPath, encoded, 0o644); err != nil {
			return fmt.Errorf("write report: %w", err)
		}
	}

	return nil
}

func fail(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
