package handlers

import (
	"net/http"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/credentials"
	"github.com/ternarybob/jobpilot/internal/services/profiles"
)

var (
	_ ProfileManager    = (*profiles.Service)(nil)
	_ CredentialManager = (*credentials.Store)(nil)
)

// credentialsRequest is the write-only credential body; passwords are never echoed
type credentialsRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required"`
}

// AccountHandler manages the per-user data a session reads: profile and site credentials
type AccountHandler struct {
	profiles    ProfileManager
	credentials CredentialManager
	logger      arbor.ILogger
}

// NewAccountHandler creates an account handler
func NewAccountHandler(profiles ProfileManager, credentials CredentialManager, logger arbor.ILogger) *AccountHandler {
	return &AccountHandler{
		profiles:    profiles,
		credentials: credentials,
		logger:      logger,
	}
}

// HandleProfileRoutes serves GET/PUT /api/profiles/{user} and
// DELETE /api/profiles/{user}/answers?question=...
func (h *AccountHandler) HandleProfileRoutes(w http.ResponseWriter, r *http.Request) {
	userID, action, ok := splitUserPath(r.URL.Path, "/api/profiles/")
	if !ok {
		WriteError(w, http.StatusBadRequest, "user id is required")
		return
	}

	switch {
	case action == "" && r.Method == http.MethodGet:
		profile, err := h.profiles.GetProfile(r.Context(), userID)
		if err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, profile)

	case action == "" && r.Method == http.MethodPut:
		var profile models.Profile
		if err := DecodeJSON(r, &profile); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		profile.UserID = userID
		if err := h.profiles.SaveProfile(r.Context(), &profile); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"missing": profile.MissingFields(),
		})

	case action == "answers" && r.Method == http.MethodDelete:
		question := strings.TrimSpace(r.URL.Query().Get("question"))
		if question == "" {
			WriteError(w, http.StatusBadRequest, "question query parameter is required")
			return
		}
		if err := h.profiles.ForgetAnswer(r.Context(), userID, question); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteSuccess(w, "answer forgotten")

	case action == "" || action == "answers":
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)

	default:
		WriteError(w, http.StatusNotFound, "unknown profile action: "+action)
	}
}

// HandleCredentialRoutes serves PUT/DELETE /api/credentials/{user}
func (h *AccountHandler) HandleCredentialRoutes(w http.ResponseWriter, r *http.Request) {
	userID, action, ok := splitUserPath(r.URL.Path, "/api/credentials/")
	if !ok || action != "" {
		WriteError(w, http.StatusBadRequest, "expected /api/credentials/{user}")
		return
	}

	switch r.Method {
	case http.MethodPut:
		var req credentialsRequest
		if err := DecodeJSON(r, &req); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error())
			return
		}
		creds := &models.Credentials{Email: req.Email, Password: req.Password}
		if err := h.credentials.SaveCredentials(r.Context(), userID, creds); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteJSON(w, http.StatusOK, map[string]interface{}{
			"status":  "success",
			"version": h.credentials.Version(),
		})

	case http.MethodDelete:
		if err := h.credentials.DeleteCredentials(r.Context(), userID); err != nil {
			WriteError(w, http.StatusInternalServerError, err.Error())
			return
		}
		WriteSuccess(w, "credentials deleted")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}
