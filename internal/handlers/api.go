package handlers

import (
	"net/http"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
)

type APIHandler struct {
	logger         arbor.ILogger
	activeSessions func() int
}

// NewAPIHandler creates the system endpoints; activeSessions may be nil
func NewAPIHandler(logger arbor.ILogger, activeSessions func() int) *APIHandler {
	return &APIHandler{
		logger:         logger,
		activeSessions: activeSessions,
	}
}

// VersionHandler returns version information
func (h *APIHandler) VersionHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	WriteJSON(w, http.StatusOK, map[string]string{
		"version":    common.GetVersion(),
		"build":      common.Build,
		"git_commit": common.GitCommit,
	})
}

// HealthHandler returns health check status
func (h *APIHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, "GET") {
		return
	}

	body := map[string]interface{}{
		"status":     "ok",
		"goroutines": common.GetGoroutineCount(),
	}
	if h.activeSessions != nil {
		body["active_sessions"] = h.activeSessions()
	}
	WriteJSON(w, http.StatusOK, body)
}

// NotFoundHandler handles 404 errors with JSON response
func (h *APIHandler) NotFoundHandler(w http.ResponseWriter, r *http.Request) {
	WriteJSON(w, http.StatusNotFound, map[string]interface{}{
		"error":   "Not Found",
		"path":    r.URL.Path,
		"message": "The requested endpoint does not exist",
	})
}
