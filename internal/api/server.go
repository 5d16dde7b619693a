// Package api serves the observability HTTP endpoint: Prometheus metrics,
// liveness, readiness and a status summary. It is optional and disabled
// unless a metrics port is configured.
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"runtime"
	"time"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"

	"github.com/ybrs/postgres-protocol-debug-tools/internal/config"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/health"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/logging"
	"github.com/ybrs/postgres-protocol-debug-tools/internal/metrics"
)

// Server is the metrics/health HTTP server.
type Server struct {
	cfg        *config.Config
	metrics    *metrics.Collector
	health     *health.Checker
	httpServer *http.Server
	startTime  time.Time
	log        *logrus.Entry
}

// NewServer creates the HTTP server; Start binds it.
func NewServer(cfg *config.Config, m *metrics.Collector, hc *health.Checker) *Server {
	return &Server{
		cfg:       cfg,
		metrics:   m,
		health:    hc,
		startTime: time.Now(),
		log:       logging.Target("proxy::api"),
	}
}

func (s *Server) routes() http.Handler {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(s.metrics.Registry, promhttp.HandlerOpts{})).Methods("GET")
	r.HandleFunc("/healthz", s.healthzHandler).Methods("GET")
	r.HandleFunc("/ready", s.readyHandler).Methods("GET")
	r.HandleFunc("/status", s.statusHandler).Methods("GET")
	return r
}

// Start binds the HTTP listener and serves in the background.
func (s *Server) Start(port int) error {
	addr := fmt.Sprintf("%s:%d", s.cfg.Listen, port)
	s.httpServer = &http.Server{
		Addr:         addr,
		Handler:      s.routes(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("binding metrics endpoint: %w", err)
	}
	s.log.Infof("Metrics endpoint listening on %s", addr)

	go func() {
		if err := s.httpServer.Serve(ln); err != nil && err != http.ErrServerClosed {
			s.log.Errorf("Metrics endpoint error: %v", err)
		}
	}()
	return nil
}

func (s *Server) healthzHandler(w http.ResponseWriter, _ *http.Request) {
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ok")
}

func (s *Server) readyHandler(w http.ResponseWriter, _ *http.Request) {
	if s.health != nil && !s.health.IsHealthy() {
		http.Error(w, "upstream unreachable", http.StatusServiceUnavailable)
		return
	}
	w.WriteHeader(http.StatusOK)
	fmt.Fprintln(w, "ready")
}

func (s *Server) statusHandler(w http.ResponseWriter, _ *http.Request) {
	status := map[string]any{
		"uptime_seconds": int(time.Since(s.startTime).Seconds()),
		"goroutines":     runtime.NumGoroutine(),
		"listen":         s.cfg.ListenAddr(),
		"upstream":       s.cfg.UpstreamAddr(),
		"ssl_enabled":    s.cfg.SSLEnabled(),
		"table_mode":     s.cfg.Table,
		"hex_dump":       s.cfg.HexDump,
	}
	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(status)
}

// Stop shuts the HTTP server down gracefully.
func (s *Server) Stop() {
	if s.httpServer == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	s.httpServer.Shutdown(ctx)
}
