package storage

import (
	"context"
	"fmt"

	"github.com/ternarybob/arbor"
	"github.com/ternarybob/jobpilot/internal/common"
	"github.com/ternarybob/jobpilot/internal/interfaces"
	"github.com/ternarybob/jobpilot/internal/storage/badger"
	"github.com/ternarybob/jobpilot/internal/storage/postgres"
)

// NewStorageManager creates a new storage manager based on config
func NewStorageManager(ctx context.Context, logger arbor.ILogger, config *common.Config) (interfaces.StorageManager, error) {
	switch config.Storage.Type {
	case "", "badger":
		return badger.NewManager(logger, &config.Storage.Badger)
	case "postgres":
		if config.Storage.Postgres.DSN == "" {
			return nil, fmt.Errorf("storage type postgres requires storage.postgres.dsn")
		}
		return postgres.NewManager(ctx, logger, &config.Storage.Postgres)
	default:
		return nil, fmt.Errorf("unsupported storage type: %s (expected 'badger' or 'postgres')", config.Storage.Type)
	}
}
