package api

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog/log"

	"kernel-sentinel/internal/bus"
	"kernel-sentinel/internal/config"
	"kernel-sentinel/internal/kernel"
	"kernel-sentinel/internal/monitor"
	"kernel-sentinel/internal/storage"
	"kernel-sentinel/internal/timeout"
	"kernel-sentinel/internal/track"
)

// Server is the HTTP surface of the sentinel: the hook transport the
// execution host delivers lifecycle callbacks to, plus the observation
// endpoints (history, live events, health, metrics).
type Server struct {
	httpServer *http.Server
	handlers   *Handlers
	cfg        *config.Config
	startTime  time.Time
}

// NewServer creates and configures the HTTP server with all routes and middleware.
func NewServer(cfg *config.Config, hooks *kernel.Hooks, tracker *track.Tracker, mon *timeout.Monitor, db *storage.DB, events *bus.Bus, metrics *monitor.Metrics) *Server {
	handlers := NewHandlers(hooks, tracker, mon, db, events)

	s := &Server{
		handlers:  handlers,
		cfg:       cfg,
		startTime: time.Now(),
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /hooks/pre-execute", handlers.HandlePreExecute)
	mux.HandleFunc("POST /hooks/post-execute", handlers.HandlePostExecute)
	mux.HandleFunc("GET /executions", handlers.HandleListExecutions)
	mux.HandleFunc("GET /executions/{seq}", handlers.HandleGetExecution)
	mux.HandleFunc("GET /events", handlers.HandleEvents)
	mux.HandleFunc("GET /health", s.handleHealth(db))
	if cfg.Metrics.Enabled {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.HandlerFor(metrics.Registry, promhttp.HandlerOpts{}))
	}

	// Apply middleware chain (outermost first)
	var handler http.Handler = mux
	handler = MetricsMiddleware(metrics)(handler)
	handler = MaxBodyMiddleware(cfg.Server.MaxRequestBody)(handler)
	handler = LoggingMiddleware(handler)
	handler = RequestIDMiddleware(handler)
	handler = RecoveryMiddleware(handler)

	s.httpServer = &http.Server{
		Addr:        cfg.Address(),
		Handler:     handler,
		ReadTimeout: cfg.Server.ReadTimeout,
		// No WriteTimeout: /events holds its response open indefinitely.
		IdleTimeout: 120 * time.Second,
	}

	return s
}

// Start begins listening for requests.
func (s *Server) Start() error {
	log.Info().
		Str("addr", s.httpServer.Addr).
		Msg("starting HTTP server")
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	log.Info().Msg("shutting down HTTP server")
	return s.httpServer.Shutdown(ctx)
}

func (s *Server) handleHealth(db *storage.DB) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		dbOK := db == nil || db.Healthy(r.Context())

		resp := HealthResponse{
			Status:         "ok",
			Database:       dbOK,
			MonitorEnabled: s.handlers.mon.Enabled(),
			ExecutionCount: s.handlers.tracker.Count(),
			Uptime:         time.Since(s.startTime).Round(time.Second).String(),
		}

		if !dbOK {
			resp.Status = "degraded"
		}

		status := http.StatusOK
		if resp.Status != "ok" {
			status = http.StatusServiceUnavailable
		}

		writeJSON(w, status, resp)
	}
}
