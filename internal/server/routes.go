package server

import (
	"net/http"
)

// setupRoutes configures all HTTP routes
func (s *Server) setupRoutes() *http.ServeMux {
	mux := http.NewServeMux()

	// Live protocol (one websocket per user)
	mux.HandleFunc("/ws/session", s.app.LiveHandler.HandleSession)

	// API routes - Sessions (REST mirror of the live protocol plus outbox drain)
	mux.HandleFunc("/api/sessions/", s.app.SessionHandler.HandleSessionRoutes)

	// API routes - Per-user data
	mux.HandleFunc("/api/profiles/", s.app.AccountHandler.HandleProfileRoutes)
	mux.HandleFunc("/api/credentials/", s.app.AccountHandler.HandleCredentialRoutes)

	// API routes - Scheduler
	mux.HandleFunc("/api/scheduler/jobs", func(w http.ResponseWriter, r *http.Request) {
		RouteByMethod(w, r, MethodRouter{http.MethodGet: s.app.SchedulerHandler.ListJobsHandler})
	})
	mux.HandleFunc("/api/scheduler/jobs/", s.app.SchedulerHandler.JobRoutesHandler)

	// API routes - System
	mux.HandleFunc("/api/version", s.app.APIHandler.VersionHandler)
	mux.HandleFunc("/api/health", s.app.APIHandler.HealthHandler)
	mux.HandleFunc("/api/shutdown", s.ShutdownHandler) // Graceful shutdown endpoint (dev mode)

	// Prometheus scrape endpoint
	mux.Handle("/metrics", s.app.Metrics.Handler())

	// 404 handler for unmatched API routes
	mux.HandleFunc("/api/", s.app.APIHandler.NotFoundHandler)

	return mux
}

// ShutdownHandler requests a graceful shutdown; only enabled outside production
func (s *Server) ShutdownHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}
	if s.app.Config.IsProduction() || s.shutdownChan == nil {
		http.Error(w, "Shutdown endpoint disabled", http.StatusForbidden)
		return
	}

	s.app.Logger.Info().Str("remote", r.RemoteAddr).Msg("Shutdown requested via HTTP")
	w.WriteHeader(http.StatusAccepted)

	s.shutdownOnce.Do(func() { close(s.shutdownChan) })
}
