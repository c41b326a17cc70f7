package models

import "time"

// JobRecordDraft is extraction output before an ID and owner are assigned
type JobRecordDraft struct {
	Title       string `json:"title"`
	Company     string `json:"company"`
	Location    string `json:"location"`
	Salary      string `json:"salary"`
	Description string `json:"description"`
	URL         string `json:"url"`
	QuickApply  bool   `json:"quick_apply"`
}

// JobRecord is a deduplicated, immutable listing discovered for a user
type JobRecord struct {
	ID           string    `json:"id" badgerhold:"key"`
	UserID       string    `json:"user_id" badgerhold:"index"`
	Title        string    `json:"title"`
	Company      string    `json:"company"`
	Location     string    `json:"location"`
	Salary       string    `json:"salary,omitempty"`
	Description  string    `json:"description,omitempty"`
	URL          string    `json:"url"`
	QuickApply   bool      `json:"quick_apply"`
	DiscoveredAt time.Time `json:"discovered_at"`
}

// SwipeDirection is the user's decision about, or exposure to, a job
type SwipeDirection string

const (
	SwipeApplied  SwipeDirection = "applied"
	SwipeRejected SwipeDirection = "rejected"
	SwipeSaved    SwipeDirection = "saved"
	SwipeViewed   SwipeDirection = "viewed"
)

// Valid reports whether the direction is a known value
func (d SwipeDirection) Valid() bool {
	switch d {
	case SwipeApplied, SwipeRejected, SwipeSaved, SwipeViewed:
		return true
	}
	return false
}

// SwipeEvent is keyed by (user, job); rewrites are last-write-wins on direction
type SwipeEvent struct {
	ID        string         `json:"id" badgerhold:"key"`
	UserID    string         `json:"user_id" badgerhold:"index"`
	JobID     string         `json:"job_id"`
	Direction SwipeDirection `json:"direction"`
	Timestamp time.Time      `json:"timestamp"`
}

// SwipeKey builds the (user, job) upsert key
func SwipeKey(userID, jobID string) string {
	return userID + ":" + jobID
}

// ApplicationRecord is one submitted application. The log is append-only and
// is not touched by pagination resets or later swipes on the same job.
type ApplicationRecord struct {
	ID        string    `json:"id" badgerhold:"key"`
	UserID    string    `json:"user_id" badgerhold:"index"`
	JobID     string    `json:"job_id"`
	Title     string    `json:"title"`
	Company   string    `json:"company"`
	AppliedAt time.Time `json:"applied_at"`
}

// ApplicationStatus is the terminal status of one apply attempt
type ApplicationStatus string

const (
	ApplicationCompleted ApplicationStatus = "completed"
	ApplicationError     ApplicationStatus = "error"
	ApplicationJobClosed ApplicationStatus = "job_closed"
)
