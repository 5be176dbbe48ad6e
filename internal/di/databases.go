// Package di provides dependency injection for database connections.
package di

import (
	"fmt"

	"github.com/aristath/lpsentinel/internal/config"
	"github.com/aristath/lpsentinel/internal/database"
	"github.com/rs/zerolog"
)

// InitializeDatabases opens both databases and applies their schemas
func InitializeDatabases(cfg *config.Config, log zerolog.Logger) (*Container, error) {
	container := &Container{}

	// 1. positions.db - stored position snapshots and analytics
	positionsDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("positions"),
		Profile: database.ProfileStandard,
		Name:    "positions",
	})
	if err != nil {
		return nil, fmt.Errorf("failed to initialize positions database: %w", err)
	}
	container.PositionsDB = positionsDB

	// 2. history.db - token price history, rebuildable from the indexer
	historyDB, err := database.New(database.Config{
		Path:    cfg.DatabasePath("history"),
		Profile: database.ProfileCache,
		Name:    "history",
	})
	if err != nil {
		positionsDB.Close()
		return nil, fmt.Errorf("failed to initialize history database: %w", err)
	}
	container.HistoryDB = historyDB

	// Apply schemas to all databases
	for _, db := range []*database.DB{positionsDB, historyDB} {
		if err := db.Migrate(); err != nil {
			container.Close()
			return nil, fmt.Errorf("failed to apply schema to %s: %w", db.Name(), err)
		}
	}

	log.Info().Str("data_dir", cfg.DataDir).Msg("All databases initialized and schemas applied")

	return container, nil
}
