package models

import "time"

// SessionState is the per-user session state machine value
type SessionState string

const (
	SessionIdle           SessionState = "idle"
	SessionStarting       SessionState = "starting"
	SessionLoggedIn       SessionState = "logged_in"
	SessionApplying       SessionState = "applying"
	SessionAwaitingAnswer SessionState = "awaiting_answer"
	SessionCheckpoint     SessionState = "checkpoint"
	SessionStopping       SessionState = "stopping"
	SessionClosed         SessionState = "closed"
)

// IsTerminal reports whether the state ends the session lifecycle
func (s SessionState) IsTerminal() bool {
	return s == SessionClosed
}

// HasJob reports whether a current job must be set in this state
func (s SessionState) HasJob() bool {
	return s == SessionApplying || s == SessionAwaitingAnswer
}

// SessionSnapshot is an immutable copy of a session's observable state.
// Snapshots are published atomically; readers never block on browser I/O.
type SessionSnapshot struct {
	UserID          string           `json:"user_id"`
	State           SessionState     `json:"state"`
	CreatedAt       time.Time        `json:"created_at"`
	LastActivity    time.Time        `json:"last_activity"`
	CurrentJobID    string           `json:"current_job_id,omitempty"`
	PendingQuestion *PendingQuestion `json:"pending_question,omitempty"`
	CheckpointSince *time.Time       `json:"checkpoint_since,omitempty"`
	Error           string           `json:"error,omitempty"`
}

// QuestionKind is the input kind of a pending question
type QuestionKind string

const (
	QuestionFreeText     QuestionKind = "free_text"
	QuestionNumeric      QuestionKind = "numeric"
	QuestionSingleChoice QuestionKind = "single_choice"
)

// PendingQuestion is a form question the walker could not answer itself
type PendingQuestion struct {
	QuestionID string       `json:"question_id"`
	Text       string       `json:"text"`
	Kind       QuestionKind `json:"kind"`
	Options    []string     `json:"options,omitempty"`
}

// CheckpointActionKind enumerates relay inputs
type CheckpointActionKind string

const (
	ActionClick    CheckpointActionKind = "click"
	ActionType     CheckpointActionKind = "type"
	ActionKey      CheckpointActionKind = "key"
	ActionWait     CheckpointActionKind = "wait"
	ActionComplete CheckpointActionKind = "complete"
)

// CheckpointAction is transient relay traffic; never persisted.
// X and Y are relative to the last delivered frame's pixel dimensions.
type CheckpointAction struct {
	Kind       CheckpointActionKind `json:"kind" validate:"required,oneof=click type key wait complete"`
	X          float64              `json:"x" validate:"min=0"`
	Y          float64              `json:"y" validate:"min=0"`
	Text       string               `json:"text,omitempty" validate:"required_if=Kind type"`
	Key        string               `json:"key,omitempty" validate:"required_if=Kind key"`
	DurationMS int                  `json:"duration_ms,omitempty" validate:"min=0,max=10000"`
}
