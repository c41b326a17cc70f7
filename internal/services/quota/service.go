package quota

import (
	"context"
	"fmt"
	"time"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Usage is a user's application count for the current local day
type Usage struct {
	Applied   int       `json:"applied"`
	Limit     int       `json:"limit"`
	Remaining int       `json:"remaining"`
	Since     time.Time `json:"since"`
}

// Service counts today's submitted applications against the daily limit.
// It reads the application log, so pagination resets and re-swipes leave it alone.
type Service struct {
	applications interfaces.ApplicationStorage
	limit        int
	now          func() time.Time
	logger       arbor.ILogger
}

var _ interfaces.QuotaService = (*Service)(nil)

// NewService creates a quota service; a limit of 0 disables the check
func NewService(applications interfaces.ApplicationStorage, dailyLimit int, logger arbor.ILogger) *Service {
	return &Service{
		applications: applications,
		limit:        dailyLimit,
		now:          time.Now,
		logger:       logger,
	}
}

// StartOfDay returns local midnight of t
func StartOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// Usage reports today's count for userID
func (s *Service) Usage(ctx context.Context, userID string) (Usage, error) {
	since := StartOfDay(s.now())
	applied, err := s.applications.CountApplicationsSince(ctx, userID, since)
	if err != nil {
		return Usage{}, fmt.Errorf("count applications: %w", err)
	}

	usage := Usage{Applied: applied, Limit: s.limit, Since: since}
	if s.limit > 0 {
		usage.Remaining = s.limit - applied
		if usage.Remaining < 0 {
			usage.Remaining = 0
		}
	}
	return usage, nil
}

// Exceeded reports whether userID reached today's limit
func (s *Service) Exceeded(ctx context.Context, userID string) (bool, error) {
	if s.limit <= 0 {
		return false, nil
	}
	usage, err := s.Usage(ctx, userID)
	if err != nil {
		return false, err
	}
	if usage.Applied >= s.limit {
		s.logger.Info().
			Str("user_id", userID).
			Int("applied", usage.Applied).
			Int("limit", s.limit).
			Msg("Daily application limit reached")
		return true, nil
	}
	return false, nil
}
