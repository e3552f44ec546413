// Package http exposes the ledger engine as a JSON API.
package http

import (
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"

	"cuentas/internal/aggregator"
	"cuentas/internal/batch"
	"cuentas/internal/deposits"
	"cuentas/internal/ledger"
	applog "cuentas/internal/log"
	"cuentas/internal/middleware/ratelimit"
	"cuentas/internal/middleware/security"
	"cuentas/internal/middleware/trace"
	"cuentas/internal/storage"
)

// Deps are the engine components served by the API.
type Deps struct {
	Repo       *storage.SQLiteRepository
	Ledger     *ledger.Ledger
	Aggregator *aggregator.Aggregator
	Batches    *batch.Processor
	Deposits   *deposits.Service
	Logger     *applog.Logger

	// Write requests allowed per client and minute; zero uses the default.
	RateLimitPerMinute int
	// Extra proxy CIDRs allowed to set X-Forwarded-For.
	TrustedProxies []string
}

type Server struct {
	*http.Server

	deps       Deps
	validate   *validator.Validate
	logger     *applog.Logger
	structured *applog.StructuredLogger
	limiter    *ratelimit.Limiter
	detector   *security.Detector
	tracer     *trace.Middleware
	started    time.Time
}

// NewServer wires routes and the middleware chain. Requests pass through
// tracing, logger injection, security headers, scanner detection and the
// write rate limiter before reaching a handler.
func NewServer(addr string, deps Deps) *Server {
	logger := deps.Logger
	if logger == nil {
		logger = applog.New(applog.DefaultConfig())
	}
	httpLogger := logger.WithComponent(applog.ComponentHTTP)

	s := &Server{
		deps:       deps,
		validate:   newValidator(),
		logger:     httpLogger,
		structured: applog.NewStructuredLogger(logger),
		limiter:    ratelimit.NewLimiter(ratelimit.Config{RequestsPerMinute: deps.RateLimitPerMinute}),
		detector:   security.NewDetector(),
		started:    time.Now(),
	}
	for _, cidr := range deps.TrustedProxies {
		if err := s.detector.AddTrustedProxy(cidr); err != nil {
			httpLogger.Warn("Ignoring trusted proxy", "cidr", cidr, "error", err)
		}
	}
	s.tracer = trace.NewMiddleware(logger, s.detector.ExtractClientIP)

	mux := http.NewServeMux()
	mux.HandleFunc("GET /healthz", s.handleHealth)
	mux.HandleFunc("GET /readyz", s.handleReady)
	mux.HandleFunc("GET /metrics", s.handleMetrics)

	mux.HandleFunc("GET /api/accounts", s.handleListAccounts)
	mux.HandleFunc("POST /api/accounts", s.handleCreateAccount)
	mux.HandleFunc("GET /api/accounts/{id}", s.handleGetAccount)
	mux.HandleFunc("GET /api/accounts/{id}/movements", s.handleListMovements)
	mux.HandleFunc("POST /api/accounts/{id}/movements", s.handleAppendMovement)
	mux.HandleFunc("POST /api/accounts/{id}/import", s.handleImportMovements)
	mux.HandleFunc("PATCH /api/movements/{id}", s.handleEditMovement)
	mux.HandleFunc("DELETE /api/movements/{id}", s.handleDeleteMovement)

	mux.HandleFunc("POST /api/batches", s.handleSubmitBatch)

	mux.HandleFunc("POST /api/posnet/import", s.handleImportPosnet)
	mux.HandleFunc("GET /api/posnet/daily", s.handleListDailyPosnet)
	mux.HandleFunc("GET /api/posnet/monthly", s.handleListMonthlyPosnet)

	mux.HandleFunc("GET /api/buckets", s.handleListBuckets)
	mux.HandleFunc("POST /api/buckets/{id}/paid", s.handleMarkPaid)
	mux.HandleFunc("DELETE /api/buckets/{id}/paid", s.handleUnmarkPaid)

	mux.HandleFunc("POST /api/deposits", s.handleCreateDeposit)
	mux.HandleFunc("POST /api/deposits/{id}/account", s.handleAssignDeposit)
	mux.HandleFunc("POST /api/deposits/sync", s.handleSyncDeposits)

	var handler http.Handler = mux
	handler = s.limiter.Middleware(s.detector.ExtractClientIP, func(w http.ResponseWriter, r *http.Request) {
		ErrorResponse(http.StatusTooManyRequests, "rate limit exceeded").Write(w)
	})(handler)
	handler = s.detector.Middleware(handler)
	handler = security.NewHeadersMiddleware(security.DefaultHeadersConfig()).Middleware(handler)
	handler = applog.RequestIDMiddleware(func(r *http.Request) string {
		return trace.GetRequestID(r.Context())
	})(handler)
	handler = applog.Middleware(httpLogger)(handler)
	handler = s.tracer.Middleware(handler)

	s.Server = &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      60 * time.Second,
		IdleTimeout:       120 * time.Second,
	}
	return s
}

// Shutdown stops accepting requests and releases the rate limiter.
func (s *Server) Shutdown(ctx context.Context) error {
	s.limiter.Stop()
	return s.Server.Shutdown(ctx)
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	NewJSONResponse().Body(map[string]any{
		"status": "ok",
		"uptime": time.Since(s.started).Round(time.Second).String(),
	}).Write(w)
}

// handleReady reports 503 until the database answers.
func (s *Server) handleReady(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	checks := map[string]string{"database": "ok"}
	status := http.StatusOK
	if err := s.deps.Repo.Ping(ctx); err != nil {
		checks["database"] = err.Error()
		status = http.StatusServiceUnavailable
		s.logger.WarnContext(ctx, "Readiness check failed", "error", err)
	}
	state := "ready"
	if status != http.StatusOK {
		state = "not ready"
	}
	NewJSONResponse().Status(status).Body(map[string]any{"status": state, "checks": checks}).Write(w)
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	rl := s.limiter.GetMetrics()
	tm := s.tracer.GetMetrics()
	dm := s.detector.GetMetrics()

	var b strings.Builder
	fmt.Fprintf(&b, "# HELP cuentas_http_requests_total Total HTTP requests served\n")
	fmt.Fprintf(&b, "# TYPE cuentas_http_requests_total counter\n")
	fmt.Fprintf(&b, "cuentas_http_requests_total %d\n", tm.TotalRequests)
	fmt.Fprintf(&b, "# HELP cuentas_http_response_time_avg_microseconds Average response time\n")
	fmt.Fprintf(&b, "# TYPE cuentas_http_response_time_avg_microseconds gauge\n")
	fmt.Fprintf(&b, "cuentas_http_response_time_avg_microseconds %d\n", tm.AverageResponseTime)
	fmt.Fprintf(&b, "# HELP cuentas_rate_limit_hits_total Write requests rejected by the rate limiter\n")
	fmt.Fprintf(&b, "# TYPE cuentas_rate_limit_hits_total counter\n")
	fmt.Fprintf(&b, "cuentas_rate_limit_hits_total %d\n", rl.TotalHits)
	fmt.Fprintf(&b, "# HELP cuentas_rate_limit_clients Clients tracked by the rate limiter\n")
	fmt.Fprintf(&b, "# TYPE cuentas_rate_limit_clients gauge\n")
	fmt.Fprintf(&b, "cuentas_rate_limit_clients %d\n", rl.ClientCount)
	fmt.Fprintf(&b, "# HELP cuentas_suspicious_requests_total Requests flagged by the detector\n")
	fmt.Fprintf(&b, "# TYPE cuentas_suspicious_requests_total counter\n")
	fmt.Fprintf(&b, "cuentas_suspicious_requests_total %d\n", dm.SuspiciousRequests)

	w.Header().Set("Content-Type", "text/plain; version=0.0.4; charset=utf-8")
	_, _ = w.Write([]byte(b.String()))
}
