package models

// Server -> client message types
const (
	MsgProgress             = "progress"
	MsgQuestion             = "question"
	MsgApplicationCompleted = "application_completed"
	MsgCheckpointFrame      = "checkpoint_frame"
	MsgState                = "state"
	MsgError                = "error"
)

// Client -> server message types
const (
	MsgAnswer            = "answer"
	MsgSkipQuestion      = "skip_question"
	MsgCheckpointAction  = "checkpoint_action"
	MsgCancelApplication = "cancel_application"
	MsgStartSession      = "start_session"
	MsgStopSession       = "stop_session"
	MsgApply             = "apply"
	MsgFetchJobs         = "fetch_jobs"
	MsgSwipe             = "swipe"
)

// ServerMessage is one ordered entry in a session's outbox.
// JobID scopes progress/question/application_completed to an apply attempt.
type ServerMessage struct {
	Seq     uint64      `json:"seq"`
	Type    string      `json:"type"`
	JobID   string      `json:"job_id,omitempty"`
	Payload interface{} `json:"payload"`
}

type ProgressPayload struct {
	Text string `json:"text"`
}

type CompletedPayload struct {
	JobID   string            `json:"job_id"`
	Status  ApplicationStatus `json:"status"`
	Message string            `json:"message,omitempty"`
}

// FramePayload carries a JPEG screenshot; Image is base64 encoded by encoding/json
type FramePayload struct {
	Image  []byte `json:"image"`
	Width  int    `json:"width"`
	Height int    `json:"height"`
	Seq    uint64 `json:"seq"`
}

type ErrorPayload struct {
	Reason  string `json:"reason"`
	Message string `json:"message,omitempty"`
}

// Client payloads

type AnswerPayload struct {
	QuestionID string `json:"question_id"`
	Text       string `json:"text" validate:"max=4000"`
}

type ApplyPayload struct {
	JobID string `json:"job_id" validate:"required"`
}

type FetchJobsPayload struct {
	Max int `json:"max" validate:"min=0,max=200"`
}

// SwipePayload records the user's decision about a shown job
type SwipePayload struct {
	JobID     string         `json:"job_id" validate:"required"`
	Direction SwipeDirection `json:"direction" validate:"required,oneof=applied rejected saved viewed"`
}
