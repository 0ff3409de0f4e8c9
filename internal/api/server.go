// Package api provides the redline REST API server: synchronous and
// asynchronous comparison endpoints plus a WebSocket progress feed.
package api

import (
	"fmt"
	"net/http"

	"github.com/openagreements/redline/internal/journal"
	"github.com/openagreements/redline/internal/logging"
)

// Server bundles the API's shared state.
type Server struct {
	cfg     Config
	hub     *Hub
	jobs    *JobStore
	journal *journal.Journal
}

// NewServer builds a server from the configuration. The journal is opened
// lazily here so a bad path fails at startup, not mid-request.
func NewServer(cfg Config) (*Server, error) {
	if cfg.MaxUploadBytes <= 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	s := &Server{
		cfg:  cfg,
		hub:  NewHub(),
		jobs: NewJobStore(),
	}
	if cfg.JournalPath != "" {
		j, err := journal.Open(cfg.JournalPath)
		if err != nil {
			return nil, fmt.Errorf("open journal: %w", err)
		}
		s.journal = j
	}
	return s, nil
}

// Start runs the HTTP server. It blocks until the listener fails.
func Start(cfg Config) error {
	s, err := NewServer(cfg)
	if err != nil {
		return err
	}
	go s.hub.Run()

	handler := corsMiddleware(cfg.AllowedOrigins, s.Routes())
	handler = logging.CombinedMiddleware(handler)

	addr := fmt.Sprintf(":%d", cfg.Port)
	logging.Info("api server starting", "addr", addr,
		"journal", cfg.JournalPath != "")
	return http.ListenAndServe(addr, handler)
}

// Routes configures all HTTP routes.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/api/v1/health", s.handleHealth)
	mux.HandleFunc("/api/v1/compare", s.handleCompare)
	mux.HandleFunc("/api/v1/jobs", s.handleJobs)
	mux.HandleFunc("/api/v1/jobs/", s.handleJobByID)
	mux.HandleFunc("/api/v1/ws", s.handleWebSocket)
	return mux
}

// corsMiddleware applies origin checks. An empty allow list permits all
// origins.
func corsMiddleware(allowed []string, next http.Handler) http.Handler {
	allowedSet := make(map[string]bool, len(allowed))
	for _, o := range allowed {
		allowedSet[o] = true
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		origin := r.Header.Get("Origin")
		if origin != "" {
			if len(allowedSet) == 0 || allowedSet[origin] {
				w.Header().Set("Access-Control-Allow-Origin", origin)
				w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
				w.Header().Set("Access-Control-Allow-Headers", "Content-Type, X-Request-ID")
			}
		}
		if r.Method == http.MethodOptions {
			w.WriteHeader(http.StatusNoContent)
			return
		}
		next.ServeHTTP(w, r)
	})
}
