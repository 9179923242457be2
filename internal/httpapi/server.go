// Package httpapi exposes the ledger engine over HTTP. Every response
// is a JSON envelope: {"ok":true,"data":...} on success, or
// {"ok":false,"error":{code,message,details}} with the matching status
// code on failure.
package httpapi

import (
	"context"
	"net/http"
	"sync"
	"time"

	"billbook/internal/advisor"
	"billbook/internal/engine"
	"billbook/internal/log"
)

type Server struct {
	http.Server
	engine      *engine.Engine
	advisor     *advisor.Client
	logger      *log.Logger
	structured  *log.StructuredLogger
	rateLimiter *rateLimiter

	shutdownOnce sync.Once
}

// Simple in-memory rate limiter
type rateLimiter struct {
	mu           sync.Mutex
	clients      map[string]*clientInfo
	stopCleanup  chan struct{}
	shutdownOnce sync.Once
}

type clientInfo struct {
	lastRequest time.Time
	requests    int
}

func newRateLimiter() *rateLimiter {
	rl := &rateLimiter{
		clients:     make(map[string]*clientInfo),
		stopCleanup: make(chan struct{}),
	}
	go rl.startCleanup()
	return rl
}

// startCleanup runs periodic cleanup to remove stale client entries
func (rl *rateLimiter) startCleanup() {
	ticker := time.NewTicker(5 * time.Minute)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			rl.cleanupStaleEntries()
		case <-rl.stopCleanup:
			return
		}
	}
}

// cleanupStaleEntries removes client entries older than 10 minutes
func (rl *rateLimiter) cleanupStaleEntries() {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	cutoff := time.Now().Add(-10 * time.Minute)
	for ip, client := range rl.clients {
		if client.lastRequest.Before(cutoff) {
			delete(rl.clients, ip)
		}
	}
}

func (rl *rateLimiter) stop() {
	rl.shutdownOnce.Do(func() {
		if rl.stopCleanup != nil {
			close(rl.stopCleanup)
		}
	})
}

func (rl *rateLimiter) allow(clientIP string) bool {
	rl.mu.Lock()
	defer rl.mu.Unlock()

	now := time.Now()
	client, exists := rl.clients[clientIP]

	if !exists {
		rl.clients[clientIP] = &clientInfo{
			lastRequest: now,
			requests:    1,
		}
		return true
	}

	// Reset counter if more than 1 minute has passed
	if now.Sub(client.lastRequest) > time.Minute {
		client.requests = 1
		client.lastRequest = now
		return true
	}

	// Allow up to 120 requests per minute
	client.requests++
	client.lastRequest = now

	return client.requests <= 120
}

// NewServer configures all routes and returns a ready-to-run server.
func NewServer(addr string, eng *engine.Engine, adv *advisor.Client, logger *log.Logger) *Server {
	if logger == nil {
		logger = log.New(log.DefaultConfig())
	}
	httpLogger := logger.WithComponent(log.ComponentHTTP)

	s := &Server{
		engine:      eng,
		advisor:     adv,
		logger:      httpLogger,
		structured:  log.NewStructuredLogger(httpLogger),
		rateLimiter: newRateLimiter(),
	}

	mux := http.NewServeMux()

	mux.HandleFunc("GET /healthz", s.handleHealthz)

	mux.HandleFunc("GET /templates", s.handleListTemplates)
	mux.HandleFunc("POST /templates", s.handleCreateTemplate)
	mux.HandleFunc("PUT /templates/{id}", s.handleUpdateTemplate)
	mux.HandleFunc("DELETE /templates/{id}", s.handleDeleteTemplate)

	mux.HandleFunc("GET /instances", s.handleListInstances)
	mux.HandleFunc("PATCH /instances/{id}", s.handlePatchInstance)
	mux.HandleFunc("POST /instances/{id}/payments", s.handleAddPayment)
	mux.HandleFunc("POST /instances/{id}/undo-paid", s.handleUndoPaid)
	mux.HandleFunc("GET /instances/{id}/events", s.handleInstanceEvents)

	mux.HandleFunc("GET /payments", s.handleListPayments)
	mux.HandleFunc("DELETE /payments/{id}", s.handleDeletePayment)

	mux.HandleFunc("GET /sinking-funds", s.handleListFunds)

	mux.HandleFunc("GET /v1/summary", s.handleSummary)
	mux.HandleFunc("GET /v1/month", s.handleMonth)
	mux.HandleFunc("GET /v1/templates", s.handleListTemplates)
	mux.HandleFunc("POST /v1/actions", s.handleAction)

	mux.HandleFunc("GET /settings", s.handleGetSettings)
	mux.HandleFunc("PUT /settings", s.handlePutSettings)

	mux.HandleFunc("GET /export/backup.json", s.handleExportBackup)
	mux.HandleFunc("POST /import/backup", s.handleImportBackup)
	mux.HandleFunc("GET /export/month.csv", s.handleExportCSV)

	mux.HandleFunc("POST /advisor/ask", s.handleAdvisorAsk)

	s.Server = http.Server{
		Addr:              addr,
		Handler:           s.middleware(mux),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler exposes the fully-wrapped handler. Test hook.
func (s *Server) Handler() http.Handler { return s.Server.Handler }

// middleware wraps the mux with request logging, security headers and
// the per-client rate limit.
func (s *Server) middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ip := clientIP(r)

		if !s.rateLimiter.allow(ip) {
			writeError(w, http.StatusTooManyRequests, "rate_limited", "too many requests", nil)
			return
		}

		w.Header().Set("X-Content-Type-Options", "nosniff")
		w.Header().Set("X-Frame-Options", "DENY")

		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)

		s.structured.LogHTTPEnd(r.Context(), r, rec.status, time.Since(start).Milliseconds(), ip)
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Shutdown gracefully shuts down the server and cleanup routines.
func (s *Server) Shutdown(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		s.rateLimiter.stop()
		shutdownErr = s.Server.Shutdown(ctx)
	})
	return shutdownErr
}

func (s *Server) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeData(w, http.StatusOK, map[string]string{"status": "ok"})
}
