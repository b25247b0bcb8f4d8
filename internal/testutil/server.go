package testutil

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"os"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/uptrace/bun"

	"github.com/repolens/repolens/domain/embcache"
	"github.com/repolens/repolens/domain/health"
	"github.com/repolens/repolens/domain/indexer"
	"github.com/repolens/repolens/domain/indexjobs"
	"github.com/repolens/repolens/domain/monitoring"
	"github.com/repolens/repolens/domain/scheduler"
	"github.com/repolens/repolens/domain/search"
	"github.com/repolens/repolens/internal/config"
	"github.com/repolens/repolens/pkg/apperror"
	"github.com/repolens/repolens/pkg/embeddings"
	"github.com/repolens/repolens/pkg/memwatch"
	"github.com/repolens/repolens/pkg/parsers"
)

// TestServer wraps an Echo instance with the full indexing stack wired by
// hand: job store, dispatch queue, orchestrator, per-file pipeline with noop
// embeddings, cold-tier-only cache, and the health/admin surfaces. The queue
// worker is constructed but not started; call StartWorker for lifecycle
// tests that need jobs to actually run.
type TestServer struct {
	Echo    *echo.Echo
	TestDB  *TestDB
	DB      bun.IDB
	Config  *config.Config
	Log     *slog.Logger
	Jobs    *indexjobs.Service
	JobRepo *indexjobs.Repository

	worker *indexjobs.RunWorker
}

// NewTestServer creates a test server with all routes registered.
func NewTestServer(testDB *TestDB) *TestServer {
	return newTestServerWithDB(testDB, testDB.GetDB())
}

// newTestServerWithDB creates a test server with a specific DB connection
func newTestServerWithDB(testDB *TestDB, db bun.IDB) *TestServer {
	log := slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelWarn}))

	// Copy the config so per-server tweaks don't leak between tests. The
	// fast poll keeps lifecycle tests from waiting out the 5s default.
	cfg := *testDB.Config
	cfg.Worker.PollInterval = 100 * time.Millisecond
	cfg.Redis.Addr = "" // cold-tier only; the hot tier has its own tests

	e := echo.New()
	e.HideBanner = true
	e.HidePort = true
	e.HTTPErrorHandler = apperror.HTTPErrorHandler(log)

	// Embedding cache: cold tier over the test database, no Redis.
	cacheRepo := embcache.NewRepository(db, log)
	cache := embcache.NewCache(cacheRepo, nil, embcache.Options{
		ModelID:    cfg.Embeddings.Model,
		Dimensions: cfg.Embeddings.Dimensions,
		HotTTL:     cfg.Cache.TTL(),
	}, log)

	// Noop provider: documents index without vectors, deterministically.
	embedder := embeddings.NewNoopService(log)

	// Per-file pipeline and orchestration.
	reg := parsers.NewRegistry()
	writer := search.NewWriter(db, log)
	jobRepo := indexjobs.NewRepository(db, log)
	queue := indexjobs.NewIndexQueue(db, &cfg, log)
	jobsSvc := indexjobs.NewService(jobRepo, queue, log)
	fileIndexer := indexer.NewIndexer(jobRepo, embedder, writer, reg, cfg.Indexing, log)
	orch := indexjobs.NewOrchestrator(jobRepo, fileIndexer, reg, cfg.Indexing, log)

	// Disabled scaler: static concurrency, monitor never consulted.
	monitor := memwatch.NewMonitor(nil, log)
	scaler := memwatch.NewConcurrencyScaler(monitor, "index-jobs", false, 1, cfg.Worker.Concurrency)
	worker := indexjobs.NewRunWorker(queue, orch, jobsSvc, scaler, &cfg, log)

	jobsHandler := indexjobs.NewHandler(jobsSvc, log)
	indexjobs.RegisterRoutes(e, jobsHandler)

	// Health and metrics. The metrics handler reads the base DB directly;
	// inside a test transaction it sees only committed rows.
	sched := scheduler.NewScheduler(log)
	healthHandler := health.NewHandler(testDB.Pool, cache, &cfg)
	metricsHandler := health.NewMetricsHandler(testDB.DB, sched)
	health.RegisterRoutes(e, healthHandler, metricsHandler)

	// Admin surface.
	monRepo := monitoring.NewRepository(db, log)
	monHandler := monitoring.NewHandler(jobsSvc, monRepo, cache, cacheRepo, embedder, &cfg)
	monitoring.RegisterRoutes(e, monHandler)

	return &TestServer{
		Echo:    e,
		TestDB:  testDB,
		DB:      db,
		Config:  &cfg,
		Log:     log,
		Jobs:    jobsSvc,
		JobRepo: jobRepo,
		worker:  worker,
	}
}

// StartWorker begins queue polling so submitted jobs actually run. Only
// usable on servers built over the base DB: the worker commits its own
// claims and cannot share a test transaction.
func (s *TestServer) StartWorker(ctx context.Context) error {
	return s.worker.Start(ctx)
}

// StopWorker stops queue polling and waits for in-flight jobs.
func (s *TestServer) StopWorker(ctx context.Context) error {
	return s.worker.Stop(ctx)
}

// Request performs an HTTP request against the test server
func (s *TestServer) Request(method, path string, opts ...RequestOption) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	for _, opt := range opts {
		opt(req)
	}

	rec := httptest.NewRecorder()
	s.Echo.ServeHTTP(rec, req)
	return rec
}

// GET performs a GET request
func (s *TestServer) GET(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodGet, path, opts...)
}

// POST performs a POST request
func (s *TestServer) POST(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodPost, path, opts...)
}

// PUT performs a PUT request
func (s *TestServer) PUT(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodPut, path, opts...)
}

// DELETE performs a DELETE request
func (s *TestServer) DELETE(path string, opts ...RequestOption) *httptest.ResponseRecorder {
	return s.Request(http.MethodDelete, path, opts...)
}

// RequestOption modifies an HTTP request
type RequestOption func(*http.Request)

// WithHeader adds a header to the request
func WithHeader(key, value string) RequestOption {
	return func(r *http.Request) {
		r.Header.Set(key, value)
	}
}

// WithJSON adds Content-Type: application/json header
func WithJSON() RequestOption {
	return WithHeader("Content-Type", "application/json")
}

// WithBody adds a request body
func WithBody(body string) RequestOption {
	return func(r *http.Request) {
		r.Body = io.NopCloser(strings.NewReader(body))
		r.ContentLength = int64(len(body))
	}
}

// WithJSONBody sets Content-Type to application/json and marshals the body to JSON
func WithJSONBody(body any) RequestOption {
	return func(r *http.Request) {
		data, err := json.Marshal(body)
		if err != nil {
			panic(err)
		}
		r.Header.Set("Content-Type", "application/json")
		r.Body = io.NopCloser(strings.NewReader(string(data)))
		r.ContentLength = int64(len(data))
	}
}
