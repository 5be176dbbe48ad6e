// Package di provides dependency injection wiring and initialization.
package di

import (
	"fmt"

	"github.com/aristath/lpsentinel/internal/config"
	"github.com/rs/zerolog"
)

// Wire initializes all dependencies and returns a fully configured container.
// Order of operations:
// 1. Initialize databases
// 2. Initialize services (repositories, adapters, caches, engines)
// 3. Register jobs
// 4. Start monitoring the configured owner, if any
// Housekeeping jobs run once the caller starts the scheduler.
func Wire(cfg *config.Config, log zerolog.Logger) (*Container, *JobInstances, error) {
	// Step 1: Initialize databases
	container, err := InitializeDatabases(cfg, log)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to initialize databases: %w", err)
	}

	// Step 2: Initialize services
	if err := InitializeServices(container, cfg, log); err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to initialize services: %w", err)
	}

	// Step 3: Register jobs
	jobs, err := RegisterJobs(container, cfg, log)
	if err != nil {
		container.Close()
		return nil, nil, fmt.Errorf("failed to register jobs: %w", err)
	}

	// Step 4: Monitoring on boot
	if owner := cfg.Monitor.OwnerKey; owner != "" {
		if err := container.Monitor.StartMonitoring(owner, cfg.Monitor.ConfigIDs, cfg.Monitor.IntervalMinutes); err != nil {
			container.Close()
			return nil, nil, fmt.Errorf("failed to start monitoring %s: %w", owner, err)
		}
	}

	log.Info().Msg("Dependency injection wiring completed successfully")

	return container, jobs, nil
}
