// Package api exposes the scheduler over HTTP and WebSocket: REST entry
// points for admitting jobs and managing servers, and a WebSocket stream
// that mirrors the scheduler's event bus (spec.md §4, §6).
package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/nuulab/dicomflow/pkg/scheduler"
)

// Server is the DICOM scheduler API server.
type Server struct {
	sch        *scheduler.Scheduler
	settings   *Settings
	httpServer *http.Server
}

// Settings holds configurable server settings.
type Settings struct {
	mu             sync.RWMutex
	RequestTimeout time.Duration
	AllowedOrigins []string
}

// DefaultSettings returns default server settings.
func DefaultSettings() *Settings {
	return &Settings{
		RequestTimeout: 30 * time.Second,
		AllowedOrigins: []string{"*"},
	}
}

// Config holds server configuration.
type Config struct {
	Scheduler *scheduler.Scheduler
	Settings  *Settings
}

// NewServer creates a new API server fronting sch.
func NewServer(cfg Config) *Server {
	if cfg.Settings == nil {
		cfg.Settings = DefaultSettings()
	}
	return &Server{sch: cfg.Scheduler, settings: cfg.Settings}
}

// Start starts the HTTP server on port, blocking until it stops.
func (s *Server) Start(port int) error {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/servers", s.corsMiddleware(s.handleServers))
	mux.HandleFunc("/api/servers/", s.corsMiddleware(s.handleServer))
	mux.HandleFunc("/api/jobs", s.corsMiddleware(s.handleJobs))
	mux.HandleFunc("/api/jobs/", s.corsMiddleware(s.handleJob))
	mux.HandleFunc("/api/listener", s.corsMiddleware(s.handleListener))
	mux.HandleFunc("/api/dlq", s.corsMiddleware(s.handleDLQ))

	mux.HandleFunc("/ws", s.handleWebSocket)

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(map[string]string{"status": "ok"})
	})

	s.httpServer = &http.Server{
		Addr:    fmt.Sprintf(":%d", port),
		Handler: mux,
	}

	fmt.Printf("dicomflow API server starting on http://localhost:%d\n", port)
	return s.httpServer.ListenAndServe()
}

// Stop gracefully stops the server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// corsMiddleware adds CORS headers, honoring s.settings.AllowedOrigins.
func (s *Server) corsMiddleware(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.settings.mu.RLock()
		origins := s.settings.AllowedOrigins
		s.settings.mu.RUnlock()

		origin := r.Header.Get("Origin")
		allowed := false
		for _, o := range origins {
			if o == "*" || o == origin {
				allowed = true
				break
			}
		}

		if allowed {
			w.Header().Set("Access-Control-Allow-Origin", origin)
		}
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization")
		w.Header().Set("Content-Type", "application/json")

		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}

		next(w, r)
	}
}

// writeJSON writes a JSON response.
func writeJSON(w http.ResponseWriter, status int, data any) {
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(data)
}

// writeError writes an error response.
func writeError(w http.ResponseWriter, status int, message string) {
	writeJSON(w, status, map[string]string{"error": message})
}
