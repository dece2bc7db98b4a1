package storage

import (
	"fmt"

	"github.com/ternarybob/arbor"

	"github.com/ternarybob/deepstock/internal/common"
	"github.com/ternarybob/deepstock/internal/interfaces"
	"github.com/ternarybob/deepstock/internal/storage/badger"
	"github.com/ternarybob/deepstock/internal/storage/memory"
)

// NewAlertedStorage returns the durable Badger store when enabled, otherwise the
// in-memory set
func NewAlertedStorage(logger arbor.ILogger, config *common.Config) (interfaces.AlertedStorage, error) {
	if !config.Storage.Badger.Enabled {
		logger.Debug().Msg("Alerted keys kept in memory")
		return memory.NewAlertedStorage(), nil
	}

	db, err := badger.NewBadgerDB(logger, &config.Storage.Badger)
	if err != nil {
		return nil, fmt.Errorf("failed to open alerted store: %w", err)
	}

	logger.Info().Str("path", config.Storage.Badger.Path).Msg("Alerted keys persisted to Badger")
	return badger.NewAlertedStorage(db, logger), nil
}
