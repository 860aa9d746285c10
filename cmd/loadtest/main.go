// Command loadtest нагружает HTTP API клиентов и печатает отчёт по задержкам.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

const (
	scenarioName   = "scenario"
	endpointCreate = "POST /clients/{id}/commandes"
	endpointList   = "GET /clients/{id}/commandes"
	endpointPage   = "GET /clients/{id}/commandes/page"
)

type loadMode string

const (
	// modeCreate создаёт клиента с заказами на уникальный телефон.
	modeCreate loadMode = "create"
	// modeCreateList после создания читает сводку и страницу заказов.
	modeCreateList loadMode = "create-list"
	// modeDuplicate отправляет несколько конкурентных созданий на один телефон.
	modeDuplicate loadMode = "duplicate"
)

type config struct {
	baseURL     string
	total       int
	totalSet    bool
	duration    time.Duration
	concurrency int
	timeout     time.Duration
	mode        loadMode
	orders      int
	dupFactor   int
	phoneTag    string
	outputPath  string
}

func parseConfig(args []string) (config, error) {
	var cfg config
	var modeValue string

	fs := flag.NewFlagSet("loadtest", flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	fs.StringVar(&cfg.baseURL, "url", "http://localhost:8080", "base URL of the commandes API")
	fs.IntVar(&cfg.total, "total", 400, "total scenarios to execute in count mode; in duration mode only used when explicitly set")
	fs.DurationVar(&cfg.duration, "duration", 0, "optional time-based run duration (e.g. 10m, 15m)")
	fs.IntVar(&cfg.concurrency, "concurrency", 40, "number of concurrent workers")
	fs.DurationVar(&cfg.timeout, "timeout", 5*time.Second, "per-request timeout")
	fs.StringVar(&modeValue, "mode", string(modeCreate), "load mode: create | create-list | duplicate")
	fs.IntVar(&cfg.orders, "orders", 3, "orders per created client")
	fs.IntVar(&cfg.dupFactor, "dup-factor", 4, "concurrent creations per phone in duplicate mode")
	fs.StringVar(&cfg.phoneTag, "phone-tag", "+221", "phone number prefix")
	fs.StringVar(&cfg.outputPath, "output", "", "optional JSON report output file path")
	if err := fs.Parse(args); err != nil {
		return cfg, err
	}

	fs.Visit(func(f *flag.Flag) {
		if f.Name == "total" {
			cfg.totalSet = true
		}
	})

	mode, err := parseMode(modeValue)
	if err != nil {
		return cfg, err
	}
	cfg.mode = mode
	cfg.baseURL = strings.TrimRight(strings.TrimSpace(cfg.baseURL), "/")

	switch {
	case cfg.baseURL == "":
		return cfg, errors.New("url is required")
	case cfg.duration < 0:
		return cfg, errors.New("duration must be >= 0")
	case cfg.duration == 0 && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when duration is not set")
	case cfg.duration > 0 && cfg.totalSet && cfg.total <= 0:
		return cfg, errors.New("total must be > 0 when explicitly set with duration")
	case cfg.concurrency <= 0:
		return cfg, errors.New("concurrency must be > 0")
	case cfg.timeout <= 0:
		return cfg, errors.New("timeout must be > 0")
	case cfg.orders <= 0:
		return cfg, errors.New("orders must be > 0")
	case cfg.mode == modeDuplicate && cfg.dupFactor < 2:
		return cfg, errors.New("dup-factor must be >= 2 in duplicate mode")
	}

	return cfg, nil
}

func parseMode(value string) (loadMode, error) {
	switch loadMode(strings.TrimSpace(value)) {
	case modeCreate:
		return modeCreate, nil
	case modeCreateList:
		return modeCreateList, nil
	case modeDuplicate:
		return modeDuplicate, nil
	default:
		return "", fmt.Errorf("unsupported mode: %s", value)
	}
}

func main() {
	cfg, err := parseConfig(os.Args[1:])
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "invalid config: %v\n", err)
		os.Exit(1)
	}

	result := runLoad(context.Background(), cfg, &http.Client{Timeout: cfg.timeout})

	printReport(os.Stdout, result, cfg)
	if cfg.outputPath != "" {
		if err := writeJSONReport(cfg.outputPath, result); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "failed to write report: %v\n", err)
			os.Exit(1)
		}
	}

	if result.FailedScenarios > 0 || result.UniquenessViolations > 0 {
		os.Exit(1)
	}
}

// runLoad раздаёт сценарии воркерам и собирает отчёт.
func runLoad(ctx context.Context, cfg config, client *http.Client) report {
	startedAt := time.Now()
	runID := uuid.NewString()[:8]
	col := newCollector()

	jobs := make(chan int, cfg.concurrency*2)
	var wg sync.WaitGroup
	for i := 0; i < cfg.concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				_ = runScenario(ctx, client, cfg, index, runID, col)
			}
		}()
	}

	dispatchJobs(jobs, cfg)
	wg.Wait()

	return col.buildReport(startedAt, time.Since(startedAt))
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

type createRequest struct {
	FullName  string          `json:"nomComplet"`
	Telephone string          `json:"telephone"`
	Commandes []createCommand `json:"commandes"`
}

type createCommand struct {
	Date    string `json:"date"`
	Montant string `json:"montant"`
}

type createResponse struct {
	ID int64 `json:"id"`
}

// phoneFor возвращает телефон сценария; в duplicate-режиме dupFactor сценариев делят один номер.
func phoneFor(cfg config, runID string, index int) string {
	group := index
	if cfg.mode == modeDuplicate {
		group = index / cfg.dupFactor
	}
	return fmt.Sprintf("%s-%s-%d", cfg.phoneTag, runID, group)
}

func buildCreateRequest(cfg config, runID string, index int) createRequest {
	req := createRequest{
		FullName:  fmt.Sprintf("Load Client %d", index),
		Telephone: phoneFor(cfg, runID, index),
		Commandes: make([]createCommand, 0, cfg.orders),
	}
	day := time.Date(2024, time.January, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < cfg.orders; i++ {
		req.Commandes = append(req.Commandes, createCommand{
			Date:    day.AddDate(0, 0, i).Format("2006-01-02"),
			Montant: fmt.Sprintf("%d.50", 100+i),
		})
	}
	return req
}

func runScenario(ctx context.Context, client *http.Client, cfg config, index int, runID string, col *collector) (err error) {
	scenarioStart := time.Now()
	status := 0
	defer func() {
		col.record(scenarioName, time.Since(scenarioStart), status, err == nil)
	}()

	req := buildCreateRequest(cfg, runID, index)
	payload, err := json.Marshal(req)
	if err != nil {
		return err
	}

	var created createResponse
	status, err = call(ctx, client, col, endpointCreate, http.MethodPost,
		fmt.Sprintf("%s/clients/0/commandes", cfg.baseURL), payload, &created)

	switch {
	case err != nil:
		return err
	case status == http.StatusOK:
		col.recordCreated(req.Telephone)
	case status == http.StatusConflict && cfg.mode == modeDuplicate:
		return nil
	default:
		return fmt.Errorf("create returned status %d", status)
	}

	if cfg.mode != modeCreateList {
		return nil
	}

	listURL := fmt.Sprintf("%s/clients/%d/commandes", cfg.baseURL, created.ID)
	if status, err = call(ctx, client, col, endpointList, http.MethodGet, listURL, nil, nil); err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("list returned status %d", status)
	}

	if status, err = call(ctx, client, col, endpointPage, http.MethodGet, listURL+"/page?page=0&size=10", nil, nil); err != nil {
		return err
	}
	if status != http.StatusOK {
		return fmt.Errorf("page returned status %d", status)
	}
	return nil
}

// call выполняет запрос и учитывает его; out декодируется только для 2xx.
func call(ctx context.Context, client *http.Client, col *collector, endpoint, method, url string, body []byte, out any) (int, error) {
	start := time.Now()

	req, err := http.NewRequestWithContext(ctx, method, url, bytes.NewReader(body))
	if err != nil {
		return 0, err
	}
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := client.Do(req)
	if err != nil {
		col.record(endpoint, time.Since(start), 0, false)
		return 0, err
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	ok := err == nil && (resp.StatusCode < 300 || (resp.StatusCode == http.StatusConflict && endpoint == endpointCreate))
	col.record(endpoint, time.Since(start), resp.StatusCode, ok)
	if err != nil {
		return resp.StatusCode, err
	}

	if out != nil && resp.StatusCode < 300 {
		if err := json.Unmarshal(data, out); err != nil {
			return resp.StatusCode, fmt.Errorf("decode %s response: %w", endpoint, err)
		}
	}
	return resp.StatusCode, nil
}
