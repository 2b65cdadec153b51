// Package httpserver serves the health and Prometheus endpoints.
package httpserver

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"tarotbot/pkg/logx"
	"tarotbot/pkg/readinglog"
	"tarotbot/pkg/version"
)

// ReadingStats reports reading-log totals for /healthz.
type ReadingStats interface {
	Stats() (readinglog.Stats, error)
}

// Health is the /healthz response body.
type Health struct {
	Readings      *readinglog.Stats `json:"readings,omitempty"`
	Status        string            `json:"status"`
	Version       string            `json:"version"`
	Commit        string            `json:"commit"`
	Error         string            `json:"error,omitempty"`
	UptimeSeconds float64           `json:"uptime_seconds"`
}

// Server exposes GET /healthz and GET /metrics.
type Server struct {
	stats    ReadingStats
	gatherer prometheus.Gatherer
	started  time.Time
	now      func() time.Time
	logger   *logx.Logger
	srv      *http.Server
}

// New creates a server. stats may be nil; a nil gatherer means the default registry.
func New(addr string, stats ReadingStats, gatherer prometheus.Gatherer) *Server {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	s := &Server{
		stats:    stats,
		gatherer: gatherer,
		now:      time.Now,
		logger:   logx.NewLogger("http"),
	}
	s.started = s.now()
	s.srv = &http.Server{
		Addr:              addr,
		Handler:           s.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}
	return s
}

// Handler returns the route mux.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", s.handleHealth)
	mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	return mux
}

// Start binds the listen address and serves in the background.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.srv.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.srv.Addr, err)
	}
	s.logger.Info("Serving /healthz and /metrics on %s", ln.Addr())
	go func() {
		if err := s.srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("HTTP server stopped: %v", err)
		}
	}()
	return nil
}

// Shutdown stops the server gracefully.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}

// handleHealth implements GET /healthz.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := Health{
		Status:        "ok",
		Version:       version.Version,
		Commit:        version.Commit,
		UptimeSeconds: s.now().Sub(s.started).Seconds(),
	}
	code := http.StatusOK
	if s.stats != nil {
		stats, err := s.stats.Stats()
		if err != nil {
			response.Status = "degraded"
			response.Error = err.Error()
			code = http.StatusServiceUnavailable
		} else {
			response.Readings = &stats
		}
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(response); err != nil {
		s.logger.Error("Failed to encode health response: %v", err)
	}
}
