package postgres

import (
	"context"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Manager implements the StorageManager interface for Postgres
type Manager struct {
	db          *DB
	job         interfaces.JobStorage
	swipe       interfaces.SwipeStorage
	application interfaces.ApplicationStorage
	profile     interfaces.ProfileStorage
	credential  interfaces.CredentialStorage
}

// NewManager creates a new Postgres storage manager
func NewManager(ctx context.Context, logger arbor.ILogger, config *common.PostgresConfig) (interfaces.StorageManager, error) {
	db, err := Open(ctx, logger, config)
	if err != nil {
		return nil, err
	}

	logger.Info().Msg("Postgres storage manager initialized")

	return &Manager{
		db:          db,
		job:         &JobStorage{db: db},
		swipe:       &SwipeStorage{db: db},
		application: &ApplicationStorage{db: db},
		profile:     &ProfileStorage{db: db},
		credential:  &CredentialStorage{db: db},
	}, nil
}

func (m *Manager) JobStorage() interfaces.JobStorage                 { return m.job }
func (m *Manager) SwipeStorage() interfaces.SwipeStorage             { return m.swipe }
func (m *Manager) ApplicationStorage() interfaces.ApplicationStorage { return m.application }
func (m *Manager) ProfileStorage() interfaces.ProfileStorage         { return m.profile }
func (m *Manager) CredentialStorage() interfaces.CredentialStorage   { return m.credential }

// DB returns the underlying *sql.DB
func (m *Manager) DB() interface{} {
	return m.db.DB
}

// Close closes the connection pool
func (m *Manager) Close() error {
	return m.db.Close()
}
