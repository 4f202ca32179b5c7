package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"io"
	"log"
	"math"
	"net/http"
	"net/http/httptest"
	"os"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/iago/socialdesk-back/internal/analysis"
	"github.com/iago/socialdesk-back/internal/batch"
	"github.com/iago/socialdesk-back/internal/cache"
	"github.com/iago/socialdesk-back/internal/domain"
	httpserver "github.com/iago/socialdesk-back/internal/http"
	"github.com/iago/socialdesk-back/internal/http/handlers"
	"github.com/iago/socialdesk-back/internal/queue"
	"github.com/iago/socialdesk-back/internal/report"
	"github.com/iago/socialdesk-back/internal/repository"
	"github.com/iago/socialdesk-back/internal/schedule"
	"github.com/iago/socialdesk-back/internal/service"
	"github.com/iago/socialdesk-back/internal/storage"
	"github.com/iago/socialdesk-back/internal/worker"
)

const (
	loadOwner     = "load-owner"
	loadMessages  = 400
	platformCount = 3
)

var platforms = [platformCount]string{"instagram", "facebook", "tiktok"}

type scenarioResult struct {
	Name          string   `json:"name"`
	Total         int      `json:"total"`
	Success       int      `json:"success"`
	Errors        int      `json:"errors"`
	P50MS         float64  `json:"p50_ms"`
	P95MS         float64  `json:"p95_ms"`
	P99MS         float64  `json:"p99_ms"`
	MaxMS         float64  `json:"max_ms"`
	ThroughputRPS float64  `json:"throughput_rps"`
	ErrorSamples  []string `json:"error_samples,omitempty"`
}

type scheduleResult struct {
	Schedules  int     `json:"schedules"`
	Dispatched int     `json:"dispatched"`
	Done       int     `json:"done"`
	Failed     int     `json:"failed"`
	ElapsedMS  float64 `json:"elapsed_ms"`
}

type runResult struct {
	GeneratedAtUTC string           `json:"generated_at_utc"`
	Environment    string           `json:"environment"`
	Results        []scenarioResult `json:"results"`
	ScheduledRuns  scheduleResult   `json:"scheduled_runs"`
	SLOEvaluation  map[string]bool  `json:"slo_evaluation"`
}

type benchmarkEnv struct {
	server    *httptest.Server
	cancel    context.CancelFunc
	schedules *repository.MemoryScheduleRepository
	runs      *repository.MemoryRunRepository
	runner    *schedule.Runner
}

type client struct {
	http    *http.Client
	baseURL string
	token   string
}

func main() {
	bulkTotal := flag.Int("bulk-total", 120, "total bulk-process requests")
	bulkConcurrency := flag.Int("bulk-concurrency", 12, "concurrency for bulk-process requests")
	bulkSize := flag.Int("bulk-size", 25, "message ids per bulk-process request")
	analyzeTotal := flag.Int("analyze-total", 240, "total analyze requests")
	analyzeConcurrency := flag.Int("analyze-concurrency", 24, "concurrency for analyze requests")
	reportsTotal := flag.Int("reports-total", 160, "total report generation requests")
	reportsConcurrency := flag.Int("reports-concurrency", 16, "concurrency for report generation requests")
	scheduleCount := flag.Int("schedules", 60, "due schedules dispatched through the runner")
	outputPath := flag.String("output", "", "optional path to persist benchmark results JSON")
	flag.Parse()

	secret := "loadtest-secret"
	env := startBenchmarkEnvironment(secret)
	defer env.cancel()
	defer env.server.Close()

	token, err := signToken(secret, loadOwner)
	if err != nil {
		log.Fatalf("failed to sign token: %v", err)
	}
	c := client{http: &http.Client{Timeout: 30 * time.Second}, baseURL: env.server.URL, token: token}

	bulkScenario := runScenario("bulk_process", *bulkTotal, *bulkConcurrency, func(index int) error {
		ids := make([]string, 0, *bulkSize)
		for offset := 0; offset < *bulkSize; offset++ {
			ids = append(ids, messageID((index*(*bulkSize)+offset)%loadMessages))
		}
		actions := []string{"analyze", "categorize", "auto-reply"}
		return c.post("/messages/bulk-process", map[string]any{
			"messageIds": ids,
			"action":     actions[index%len(actions)],
			"batchSize":  10,
		}, http.StatusOK)
	})

	analyzeScenario := runScenario("ai_analyze", *analyzeTotal, *analyzeConcurrency, func(index int) error {
		return c.post("/messages/ai/analyze", map[string]any{
			"messageContent": sampleContent(index),
			"platform":       platforms[index%platformCount],
			"messageType":    "comment",
		}, http.StatusOK)
	})

	reportTypes := []string{"campaign", "posts", "audience", "engagement", "messages"}
	formats := []string{"json", "csv", "pdf"}
	reportsScenario := runScenario("reports_generate", *reportsTotal, *reportsConcurrency, func(index int) error {
		return c.post("/analytics/reports", map[string]any{
			"reportType": reportTypes[index%len(reportTypes)],
			"format":     formats[(index/len(reportTypes))%len(formats)],
			"dateFrom":   "2026-01-01",
		}, http.StatusOK)
	})

	scheduled := runScheduledScenario(env, *scheduleCount)

	results := []scenarioResult{bulkScenario, analyzeScenario, reportsScenario}
	slo := map[string]bool{
		"bulk_process_p95_le_5000ms":     bulkScenario.P95MS <= 5000,
		"analyze_p95_le_2000ms":          analyzeScenario.P95MS <= 2000,
		"reports_generate_p95_le_2000ms": reportsScenario.P95MS <= 2000,
		"scheduled_runs_all_done":        scheduled.Done == scheduled.Schedules,
	}

	summary := runResult{
		GeneratedAtUTC: time.Now().UTC().Format(time.RFC3339Nano),
		Environment:    "local-httptest",
		Results:        results,
		ScheduledRuns:  scheduled,
		SLOEvaluation:  slo,
	}

	encoded, err := json.MarshalIndent(summary, "", "  ")
	if err != nil {
		log.Fatalf("failed to marshal benchmark report: %v", err)
	}
	if *outputPath != "" {
		if err := os.WriteFile(*outputPath, encoded, 0o644); err != nil {
			log.Fatalf("failed to write output file: %v", err)
		}
	}
	_, _ = fmt.Fprintln(os.Stdout, string(encoded))
}

func startBenchmarkEnvironment(secret string) *benchmarkEnv {
	ctx, cancel := context.WithCancel(context.Background())
	logger := log.New(io.Discard, "", 0)

	messages := repository.NewMemoryMessageRepository()
	reports := repository.NewMemoryReportStore(messages)
	seedData(ctx, messages, reports)

	schedules := repository.NewMemoryScheduleRepository()
	runs := repository.NewMemoryRunRepository()
	artifacts := storage.NewMemory()

	analyzer := analysis.NewAnalyzer(analysis.Dependencies{Logger: logger})
	resultCache := cache.NewMemory(cache.Config{TTL: 10 * time.Minute, MaxEntries: 4000})
	processor := batch.NewProcessor(messages, analyzer, resultCache, batch.Config{}, logger)
	aggregator := report.NewAggregator(reports)
	exporter := report.NewExporter(logger)

	api := handlers.NewAPI(
		service.NewMessageService(messages, analyzer, processor),
		service.NewReportService(aggregator, exporter, artifacts, logger),
		schedule.NewService(schedules, runs),
		logger,
	)
	router := httpserver.NewRouter(ctx, httpserver.RouterDependencies{
		API:            api,
		Logger:         logger,
		JWTSecret:      secret,
		RateLimitRPS:   20000,
		RateLimitBurst: 20000,
	})

	localQueue := queue.NewLocalQueue(4096, 3, logger)
	producer := queue.NewBatchingProducer(ctx, localQueue, queue.BatchingConfig{})
	runProcessor := worker.NewProcessor(worker.Dependencies{
		Consumer:  localQueue,
		Runs:      runs,
		Schedules: schedules,
		Generator: aggregator,
		Exporter:  exporter,
		Artifacts: artifacts,
		Logger:    logger,
	})
	go runProcessor.Start(ctx)

	return &benchmarkEnv{
		server:    httptest.NewServer(router),
		cancel:    cancel,
		schedules: schedules,
		runs:      runs,
		runner:    schedule.NewRunner(schedules, runs, producer, schedule.RunnerConfig{}, logger),
	}
}

func seedData(ctx context.Context, messages *repository.MemoryMessageRepository, reports *repository.MemoryReportStore) {
	base := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	for index := 0; index < loadMessages; index++ {
		_ = messages.Create(ctx, &domain.Message{
			ID:         messageID(index),
			OwnerID:    loadOwner,
			Platform:   platforms[index%platformCount],
			Type:       "comment",
			Content:    sampleContent(index),
			SenderName: fmt.Sprintf("follower-%d", index%50),
			CreatedAt:  base.Add(time.Duration(index) * time.Hour),
		})
	}
	for index := 0; index < 200; index++ {
		platform := platforms[index%platformCount]
		created := base.Add(time.Duration(index) * 3 * time.Hour)
		reports.Add(repository.SourcePosts, repository.Record{
			"id": fmt.Sprintf("post-%d", index), "owner_id": loadOwner, "title": fmt.Sprintf("Post %d", index),
			"platform": platform, "status": "published", "likes": int64(index * 7 % 300),
			"comments": int64(index % 40), "shares": int64(index % 15), "created_at": created,
		})
		if index%10 == 0 {
			reports.Add(repository.SourceCampaigns, repository.Record{
				"id": fmt.Sprintf("campaign-%d", index), "owner_id": loadOwner, "name": fmt.Sprintf("Campaign %d", index),
				"status": "active", "objective": "reach", "platform": platform, "budget": int64(1000 + index), "created_at": created,
			})
		}
	}
	for index, platform := range platforms {
		reports.Add(repository.SourceAccounts, repository.Record{
			"id": "account-" + platform, "owner_id": loadOwner, "platform": platform, "handle": "@socialdesk",
			"followers": int64(5000 * (index + 1)), "created_at": base,
		})
	}
}

// runScheduledScenario inserts due schedules, dispatches them with one
// runner tick and waits for the worker to finish every run.
func runScheduledScenario(env *benchmarkEnv, count int) scheduleResult {
	if count <= 0 {
		return scheduleResult{}
	}
	ctx := context.Background()
	now := time.Now().UTC()
	for index := 0; index < count; index++ {
		_ = env.schedules.Create(ctx, &domain.ScheduledReport{
			ID:         uuid.NewString(),
			OwnerID:    loadOwner,
			Name:       fmt.Sprintf("load schedule %d", index),
			ReportType: []domain.ReportType{domain.ReportPosts, domain.ReportMessages, domain.ReportEngagement}[index%3],
			Format:     []domain.ReportFormat{domain.FormatCSV, domain.FormatPDF, domain.FormatJSON}[index%3],
			Frequency:  domain.FrequencyDaily,
			TimeOfDay:  "09:00",
			IsActive:   true,
			NextRunAt:  now.Add(-time.Minute),
			CreatedAt:  now,
			UpdatedAt:  now,
		})
	}

	startedAt := time.Now()
	dispatched, err := env.runner.Tick(ctx)
	if err != nil {
		log.Printf("scheduler tick failed: %v", err)
	}

	result := scheduleResult{Schedules: count, Dispatched: dispatched}
	deadline := time.Now().Add(30 * time.Second)
	for time.Now().Before(deadline) {
		runs, _, err := env.runs.ListRuns(ctx, domain.RunListFilter{OwnerID: loadOwner, Page: 1, PageSize: count})
		if err != nil {
			break
		}
		result.Done, result.Failed = 0, 0
		for _, run := range runs {
			switch run.Status {
			case domain.RunStatusDone:
				result.Done++
			case domain.RunStatusFailed:
				result.Failed++
			}
		}
		if result.Done+result.Failed >= dispatched {
			break
		}
		time.Sleep(20 * time.Millisecond)
	}
	result.ElapsedMS = round2(float64(time.Since(startedAt).Microseconds()) / 1000.0)
	return result
}

func runScenario(
	name string,
	total int,
	concurrency int,
	requestFn func(index int) error,
) scenarioResult {
	if total <= 0 {
		return scenarioResult{Name: name}
	}
	if concurrency <= 0 {
		concurrency = 1
	}

	startedAt := time.Now()
	type sample struct {
		durationMS float64
		err        string
	}

	jobs := make(chan int, total)
	results := make(chan sample, total)
	for i := 0; i < total; i++ {
		jobs <- i
	}
	close(jobs)

	var wg sync.WaitGroup
	for i := 0; i < concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for index := range jobs {
				requestStart := time.Now()
				err := requestFn(index)
				s := sample{durationMS: float64(time.Since(requestStart).Microseconds()) / 1000.0}
				if err != nil {
					s.err = err.Error()
				}
				results <- s
			}
		}()
	}
	wg.Wait()
	close(results)

	durations := make([]float64, 0, total)
	errorSamples := make([]string, 0, 5)
	success := 0
	errorsCount := 0
	for item := range results {
		durations = append(durations, item.durationMS)
		if item.err == "" {
			success++
			continue
		}
		errorsCount++
		if len(errorSamples) < 5 {
			errorSamples = append(errorSamples, item.err)
		}
	}

	sort.Float64s(durations)
	elapsedSeconds := time.Since(startedAt).Seconds()
	throughput := 0.0
	if elapsedSeconds > 0 {
		throughput = float64(total) / elapsedSeconds
	}

	return scenarioResult{
		Name:          name,
		Total:         total,
		Success:       success,
		Errors:        errorsCount,
		P50MS:         percentile(durations, 0.50),
		P95MS:         percentile(durations, 0.95),
		P99MS:         percentile(durations, 0.99),
		MaxMS:         percentile(durations, 1.00),
		ThroughputRPS: round2(throughput),
		ErrorSamples:  errorSamples,
	}
}

func (c client) post(path string, payload any, expectedStatus int) error {
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	request, err := http.NewRequest(http.MethodPost, c.baseURL+path, bytes.NewReader(encoded))
	if err != nil {
		return fmt.Errorf("new request: %w", err)
	}
	request.Header.Set("Content-Type", "application/json")
	request.Header.Set("Authorization", "Bearer "+c.token)

	response, err := c.http.Do(request)
	if err != nil {
		return err
	}
	defer response.Body.Close()

	if response.StatusCode != expectedStatus {
		body, _ := io.ReadAll(io.LimitReader(response.Body, 1024))
		return fmt.Errorf("unexpected status %d (expected %d): %s", response.StatusCode, expectedStatus, string(body))
	}
	_, _ = io.Copy(io.Discard, response.Body)
	return nil
}

func signToken(secret, owner string) (string, error) {
	return jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
		"sub": owner,
		"exp": time.Now().Add(time.Hour).Unix(),
	}).SignedString([]byte(secret))
}

func messageID(index int) string {
	return fmt.Sprintf("msg-%04d", index)
}

// sampleContent repeats every 16 messages so bulk runs hit the result cache.
func sampleContent(index int) string {
	subjects := []string{
		"When does the new collection drop?",
		"My order arrived damaged, I need help",
		"Love the latest post!",
		"Do you ship to Portugal?",
	}
	return strings.TrimSpace(fmt.Sprintf("%s (ref %d)", subjects[index%len(subjects)], index%16))
}

func percentile(values []float64, p float64) float64 {
	if len(values) == 0 {
		return 0
	}
	if p <= 0 {
		return round2(values[0])
	}
	if p >= 1 {
		return round2(values[len(values)-1])
	}
	rank := int(math.Ceil(float64(len(values))*p)) - 1
	if rank < 0 {
		rank = 0
	}
	if rank >= len(values) {
		rank = len(values) - 1
	}
	return round2(values[rank])
}

func round2(value float64) float64 {
	return math.Round(value*100) / 100
}
