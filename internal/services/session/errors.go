package session

import "errors"

// Protocol rejections. Each leaves the session state unchanged.
var (
	ErrNoSession         = errors.New("no active session")
	ErrNotLoggedIn       = errors.New("session is not logged in")
	ErrQuotaExceeded     = errors.New("daily limit reached")
	ErrAlreadyApplying   = errors.New("another application is in progress")
	ErrJobNotFound       = errors.New("job not found")
	ErrInvalidDirection  = errors.New("invalid swipe direction")
	ErrNoPendingQuestion = errors.New("no pending question")
	ErrNotApplying       = errors.New("no application in progress")
	ErrNotInCheckpoint   = errors.New("session is not in a checkpoint")
	ErrBusy              = errors.New("session is busy")
	ErrManagerClosed     = errors.New("session manager is shut down")
)

// errSessionLost marks failures that end the session
var errSessionLost = errors.New("session lost")

// Reason returns the protocol reason code for a rejection
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrNoSession):
		return "no_session"
	case errors.Is(err, ErrNotLoggedIn):
		return "not_logged_in"
	case errors.Is(err, ErrQuotaExceeded):
		return "quota_exceeded"
	case errors.Is(err, ErrAlreadyApplying):
		return "already_applying"
	case errors.Is(err, ErrJobNotFound):
		return "job_not_found"
	case errors.Is(err, ErrInvalidDirection):
		return "invalid_direction"
	case errors.Is(err, ErrNoPendingQuestion):
		return "no_pending_question"
	case errors.Is(err, ErrNotApplying):
		return "not_applying"
	case errors.Is(err, ErrNotInCheckpoint):
		return "not_in_checkpoint"
	case errors.Is(err, ErrBusy):
		return "busy"
	case errors.Is(err, ErrManagerClosed):
		return "shutting_down"
	}
	return "internal_error"
}

// IsRejection reports whether err is a protocol rejection rather than a failure
func IsRejection(err error) bool {
	return Reason(err) != "internal_error"
}
