package interfaces

import "time"

// JobStatus represents the current status of a scheduled maintenance job
type JobStatus struct {
	Name        string     `json:"name"`
	Enabled     bool       `json:"enabled"`
	Schedule    string     `json:"schedule"`
	Description string     `json:"description"`
	LastRun     *time.Time `json:"last_run,omitempty"`
	NextRun     *time.Time `json:"next_run,omitempty"`
	IsRunning   bool       `json:"is_running"`
	LastError   string     `json:"last_error,omitempty"`
}

// SchedulerService runs periodic maintenance jobs on cron schedules
type SchedulerService interface {
	Start() error
	Stop() error
	IsRunning() bool

	// RegisterJob adds a job; schedule accepts standard cron or descriptors such as "@every 30s"
	RegisterJob(name, schedule, description string, handler func() error) error
	EnableJob(name string) error
	DisableJob(name string) error
	TriggerJob(name string) error

	GetJobStatus(name string) (*JobStatus, error)
	GetAllJobStatuses() map[string]*JobStatus
}
