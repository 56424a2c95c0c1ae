// Package server provides the HTTP server for the fall detector.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/ayusman/fallguard/internal/detector"
	"github.com/ayusman/fallguard/internal/metrics"
	"github.com/ayusman/fallguard/internal/monitoring"
	"github.com/ayusman/fallguard/internal/server/api"
	"github.com/ayusman/fallguard/internal/status"
	"github.com/ayusman/fallguard/internal/store"
)

// Monitor is the part of the detector exposed over HTTP.
type Monitor interface {
	api.Reconfigurer
	Pause()
	Resume()
	Paused() bool
	Stats() detector.Stats
}

// Config holds the server configuration. Routes are registered only for
// the dependencies that are set.
type Config struct {
	StaticDir string
	Store     *store.Store
	Detector  Monitor
	Board     *status.Board
}

// Server represents the HTTP server for the fall detector.
type Server struct {
	config Config
	router *mux.Router
	start  time.Time
}

// New creates a new Server with the given configuration.
func New(config Config) *Server {
	s := &Server{
		config: config,
		router: mux.NewRouter(),
		start:  time.Now(),
	}
	s.setupRoutes()
	return s
}

// setupRoutes configures all HTTP routes for the server.
func (s *Server) setupRoutes() {
	s.router.Use(instrument)

	s.router.HandleFunc("/api/health", s.handleHealth).Methods(http.MethodGet)
	s.router.Handle("/metrics", metrics.Handler()).Methods(http.MethodGet)

	if s.config.Board != nil {
		s.router.HandleFunc("/api/status", s.handleStatus).Methods(http.MethodGet)
		s.router.Handle("/api/stream", NewStatusStream(s.config.Board)).Methods(http.MethodGet)
	}

	if s.config.Detector != nil {
		api.NewSettingsHandler(s.config.Detector, s.config.Store).Register(s.router)
		s.router.HandleFunc("/api/monitoring/pause", s.handlePause).Methods(http.MethodPost)
		s.router.HandleFunc("/api/monitoring/resume", s.handleResume).Methods(http.MethodPost)
	}

	if s.config.Store != nil {
		api.NewFallHandler(s.config.Store).Register(s.router)
	}

	// Serve static files if StaticDir is configured
	if s.config.StaticDir != "" {
		s.router.PathPrefix("/").Handler(http.FileServer(http.Dir(s.config.StaticDir)))
	}
}

// ServeHTTP implements the http.Handler interface.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(data); err != nil {
		monitoring.Logf("Failed to encode response: %v", err)
	}
}

// handleHealth handles GET requests to /api/health.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]interface{}{
		"status": "ok",
		"uptime": time.Since(s.start).String(),
	})
}

type statusResponse struct {
	status.Snapshot
	Stats *detector.Stats `json:"stats,omitempty"`
}

// handleStatus handles GET /api/status.
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	resp := statusResponse{Snapshot: s.config.Board.Snapshot()}
	if s.config.Detector != nil {
		stats := s.config.Detector.Stats()
		resp.Stats = &stats
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.config.Detector.Pause()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.config.Detector.Paused()})
}

func (s *Server) handleResume(w http.ResponseWriter, r *http.Request) {
	s.config.Detector.Resume()
	writeJSON(w, http.StatusOK, map[string]bool{"paused": s.config.Detector.Paused()})
}

// Run serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		monitoring.Logf("HTTP server listening on %s", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
