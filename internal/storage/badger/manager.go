package badger

import (
	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
)

// Manager implements the StorageManager interface for Badger
type Manager struct {
	db          *BadgerDB
	job         interfaces.JobStorage
	swipe       interfaces.SwipeStorage
	application interfaces.ApplicationStorage
	profile     interfaces.ProfileStorage
	credential  interfaces.CredentialStorage
	logger      arbor.ILogger
}

// NewManager creates a new Badger storage manager
func NewManager(logger arbor.ILogger, config *common.BadgerConfig) (interfaces.StorageManager, error) {
	db, err := NewBadgerDB(logger, config)
	if err != nil {
		return nil, err
	}

	manager := newManager(db, logger)

	logger.Info().Str("path", config.Path).Msg("Badger storage manager initialized")

	return manager, nil
}

func newManager(db *BadgerDB, logger arbor.ILogger) *Manager {
	return &Manager{
		db:          db,
		job:         NewJobStorage(db, logger),
		swipe:       NewSwipeStorage(db, logger),
		application: NewApplicationStorage(db, logger),
		profile:     NewProfileStorage(db, logger),
		credential:  NewCredentialStorage(db, logger),
		logger:      logger,
	}
}

// JobStorage returns the Job storage interface
func (m *Manager) JobStorage() interfaces.JobStorage {
	return m.job
}

// SwipeStorage returns the Swipe storage interface
func (m *Manager) SwipeStorage() interfaces.SwipeStorage {
	return m.swipe
}

// ApplicationStorage returns the application log
func (m *Manager) ApplicationStorage() interfaces.ApplicationStorage {
	return m.application
}

// ProfileStorage returns the Profile storage interface
func (m *Manager) ProfileStorage() interfaces.ProfileStorage {
	return m.profile
}

// CredentialStorage returns the Credential storage interface
func (m *Manager) CredentialStorage() interfaces.CredentialStorage {
	return m.credential
}

// DB returns the underlying database connection
func (m *Manager) DB() interface{} {
	if m.db != nil {
		return m.db.Store()
	}
	return nil
}

// Close closes the database connection
func (m *Manager) Close() error {
	if m.db != nil {
		return m.db.Close()
	}
	return nil
}
