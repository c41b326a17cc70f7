package handlers

import (
	"net/http"
	"sort"
	"strings"

	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// SchedulerHandler exposes the maintenance job schedule
type SchedulerHandler struct {
	schedulerService interfaces.SchedulerService
}

// NewSchedulerHandler creates a new scheduler handler
func NewSchedulerHandler(schedulerService interfaces.SchedulerService) *SchedulerHandler {
	return &SchedulerHandler{
		schedulerService: schedulerService,
	}
}

// ListJobsHandler handles GET /api/scheduler/jobs
func (h *SchedulerHandler) ListJobsHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodGet) {
		return
	}

	statuses := h.schedulerService.GetAllJobStatuses()
	jobs := make([]*interfaces.JobStatus, 0, len(statuses))
	for _, status := range statuses {
		jobs = append(jobs, status)
	}
	sort.Slice(jobs, func(i, j int) bool { return jobs[i].Name < jobs[j].Name })

	WriteJSON(w, http.StatusOK, map[string]interface{}{
		"running": h.schedulerService.IsRunning(),
		"jobs":    jobs,
	})
}

// JobRoutesHandler handles POST /api/scheduler/jobs/{name}/{trigger|enable|disable}
func (h *SchedulerHandler) JobRoutesHandler(w http.ResponseWriter, r *http.Request) {
	if !RequireMethod(w, r, http.MethodPost) {
		return
	}

	parts := strings.Split(strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/scheduler/jobs/"), "/"), "/")
	if len(parts) != 2 || parts[0] == "" {
		WriteError(w, http.StatusBadRequest, "expected /api/scheduler/jobs/{name}/{action}")
		return
	}
	name, action := parts[0], parts[1]

	var err error
	switch action {
	case "trigger":
		err = h.schedulerService.TriggerJob(name)
	case "enable":
		err = h.schedulerService.EnableJob(name)
	case "disable":
		err = h.schedulerService.DisableJob(name)
	default:
		WriteError(w, http.StatusNotFound, "unknown scheduler action: "+action)
		return
	}
	if err != nil {
		WriteError(w, http.StatusConflict, err.Error())
		return
	}

	status, err := h.schedulerService.GetJobStatus(name)
	if err != nil {
		WriteError(w, http.StatusNotFound, err.Error())
		return
	}
	WriteJSON(w, http.StatusOK, status)
}
