package handlers

import (
	"errors"
	"net/http"
	"net/url"
	"strings"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/models"
	"github.com/ternarybob/jobpilot/internal/services/session"
)

const (
	defaultDrainMax = 100
	maxDrainMax     = 500
)

// SessionHandler is the REST mirror of the live protocol under /api/sessions/{user}/...
type SessionHandler struct {
	sessions SessionController
	tracker  PaginationReporter
	quota    QuotaReporter
	swipes   interfaces.SwipeStorage
	logger   arbor.ILogger
}

// NewSessionHandler creates a session handler; quota may be nil
func NewSessionHandler(
	sessions SessionController,
	tracker PaginationReporter,
	quota QuotaReporter,
	swipes interfaces.SwipeStorage,
	logger arbor.ILogger,
) *SessionHandler {
	return &SessionHandler{
		sessions: sessions,
		tracker:  tracker,
		quota:    quota,
		swipes:   swipes,
		logger:   logger,
	}
}

// splitUserPath parses "{prefix}{user}[/{action}]" into its parts
func splitUserPath(path, prefix string) (userID, action string, ok bool) {
	rest := strings.Trim(strings.TrimPrefix(path, prefix), "/")
	if rest == "" {
		return "", "", false
	}
	parts := strings.SplitN(rest, "/", 2)
	userID, err := url.PathUnescape(parts[0])
	if err != nil || strings.TrimSpace(userID) == "" {
		return "", "", false
	}
	if len(parts) == 2 {
		action = parts[1]
	}
	return userID, action, true
}

// HandleSessionRoutes routes /api/sessions/{user}/{action}
func (h *SessionHandler) HandleSessionRoutes(w http.ResponseWriter, r *http.Request) {
	userID, action, ok := splitUserPath(r.URL.Path, "/api/sessions/")
	if !ok {
		WriteError(w, http.StatusBadRequest, "user id is required")
		return
	}

	switch action {
	case "", "status":
		h.status(w, r, userID)
	case "start":
		h.start(w, r, userID)
	case "stop":
		h.stop(w, r, userID)
	case "apply":
		h.apply(w, r, userID)
	case "fetch":
		h.fetch(w, r, userID)
	case "answer":
		h.answer(w, r, userID)
	case "skip":
		h.simple(w, r, userID, h.sessions.SkipQuestion)
	case "cancel":
		h.simple(w, r, userID, h.sessions.CancelApplication)
	case "checkpoint":
		h.checkpoint(w, r, userID)
	case "outbox":
		h.outbox(w, r, userID)
	case "jobs":
		h.jobs(w, r, userID)
	case "pagination":
		h.pagination(w, r, userID)
	case "swipes":
		if r.Method == http.MethodPost {
			h.swipe(w, r, userID)
			return
		}
		h.listSwipes(w, r, userID)
	case "quota":
		h.usage(w, r, userID)
	default:
		WriteError(w, http.StatusNotFound, "unknown session action: "+action)
	}
}

// writeSessionError maps rejections to 409 and everything else to 500
func (h *SessionHandler) writeSessionError(w http.ResponseWriter, userID string, err error) {
	var bad *invalidMessage
	if errors.As(err, &bad) {
		WriteRejection(w, http.StatusBadRequest, bad.reason, err.Error())
		return
	}
	if session.IsRejection(err) {
		WriteRejection(w, http.StatusConflict, session.Reason(err), err.Error())
		return
	}
	h.logger.Error().Err(err).Str("user_id", userID).Msg("Session request failed")
	WriteRejection(w, http.StatusInternalServerError, "internal_error", err.Error())
}

func (h *SessionHandler) decode(r *http.Request, dst interface{}) error {
	if err := DecodeJSON(r, dst); err != nil {
		return invalid(err)
	}
	return nil
}

func (h *SessionHandler) status(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	WriteJSON(w, http.StatusOK, h.sessions.GetStatus(userID))
}

func (h *SessionHandler) start(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	result, err := h.sessions.StartSession(r.Context(), userID)
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	code := http.StatusAccepted
	if result.AlreadyActive {
		code = http.StatusOK
	}
	WriteJSON(w, code, result)
}

func (h *SessionHandler) stop(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := h.sessions.StopSession(r.Context(), userID); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteJSON(w, http.StatusOK, h.sessions.GetStatus(userID))
}

func (h *SessionHandler) apply(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var payload models.ApplyPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	if err := h.sessions.SubmitApply(r.Context(), userID, payload.JobID); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteStarted(w, "application started for "+payload.JobID)
}

func (h *SessionHandler) fetch(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var payload models.FetchJobsPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	added, err := h.sessions.FetchJobs(r.Context(), userID, payload.Max)
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteJSON(w, http.StatusOK, map[string]int{"new": added})
}

func (h *SessionHandler) answer(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var payload models.AnswerPayload
	if err := h.decode(r, &payload); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	if err := h.sessions.Answer(userID, payload.QuestionID, payload.Text); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteSuccess(w, "answer accepted")
}

func (h *SessionHandler) simple(w http.ResponseWriter, r *http.Request, userID string, op func(string) error) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	if err := op(userID); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteSuccess(w, "accepted")
}

func (h *SessionHandler) checkpoint(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}
	var action models.CheckpointAction
	if err := h.decode(r, &action); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	if err := h.sessions.CheckpointAction(userID, action); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteSuccess(w, "action queued")
}

// outbox drains queued messages for clients that poll instead of holding a websocket
func (h *SessionHandler) outbox(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	max := QueryInt(r, "max", defaultDrainMax)
	if max == 0 || max > maxDrainMax {
		max = maxDrainMax
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"messages": h.sessions.Drain(userID, max),
	})
}

func (h *SessionHandler) jobs(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	jobs, err := h.tracker.Unseen(r.Context(), userID, QueryInt(r, "limit", 0))
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	if jobs == nil {
		jobs = []*models.JobRecord{}
	}
	WriteJSON(w, http.StatusOK, map[string]interface{}{"jobs": jobs})
}

// pagination reports the user's pagination state; DELETE clears the view log
func (h *SessionHandler) pagination(w http.ResponseWriter, r *http.Request, userID string) {
	switch r.Method {
	case http.MethodGet:
		state, err := h.tracker.GetState(r.Context(), userID)
		if err != nil {
			h.writeSessionError(w, userID, err)
			return
		}
		WriteJSON(w, http.StatusOK, state)
	case http.MethodDelete:
		cleared, err := h.tracker.Reset(r.Context(), userID)
		if err != nil {
			h.writeSessionError(w, userID, err)
			return
		}
		WriteJSON(w, http.StatusOK, map[string]int{"cleared": cleared})
	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

func (h *SessionHandler) swipe(w http.ResponseWriter, r *http.Request, userID string) {
	var payload models.SwipePayload
	if err := h.decode(r, &payload); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	if err := h.sessions.Swipe(r.Context(), userID, payload.JobID, payload.Direction); err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	state, err := h.tracker.GetState(r.Context(), userID)
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteJSON(w, http.StatusOK, state)
}

func (h *SessionHandler) listSwipes(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	swipes, err := h.swipes.ListSwipesByUser(r.Context(), userID)
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	page, pageSize := GetPaginationParams(r)
	items, pagination := Paginate(swipes, page, pageSize)
	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"swipes":     items,
		"pagination": pagination,
	})
}

func (h *SessionHandler) usage(w http.ResponseWriter, r *http.Request, userID string) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}
	if h.quota == nil {
		WriteError(w, http.StatusNotFound, "daily quota is not configured")
		return
	}
	usage, err := h.quota.Usage(r.Context(), userID)
	if err != nil {
		h.writeSessionError(w, userID, err)
		return
	}
	WriteJSON(w, http.StatusOK, usage)
}
