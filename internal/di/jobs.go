// Package di provides dependency injection for scheduler jobs.
package di

import (
	"fmt"

	"github.com/aristath/lpsentinel/internal/cache"
	"github.com/aristath/lpsentinel/internal/config"
	"github.com/aristath/lpsentinel/internal/scheduler"
	"github.com/rs/zerolog"
)

const (
	checkDatabasesSchedule = "0 0 * * * *" // hourly, on the hour
	prunePricesSchedule    = "0 30 3 * * *"
	vacuumSchedule         = "0 0 4 * * 0" // Sunday, after pruning
)

// RegisterJobs registers the housekeeping jobs with the scheduler.
// The monitoring cycle is scheduled by the monitor itself when monitoring starts.
func RegisterJobs(container *Container, cfg *config.Config, log zerolog.Logger) (*JobInstances, error) {
	if container == nil {
		return nil, fmt.Errorf("container cannot be nil")
	}

	instances := &JobInstances{
		CacheCleanup:   cache.NewCleanupJob(container.Caches, log),
		CheckDatabases: scheduler.NewCheckDatabasesJob(log, container.PositionsDB, container.HistoryDB),
		PrunePrices:    scheduler.NewPrunePricesJob(container.PriceRepo, cfg.Monitor.PriceRetention, log),
		Vacuum:         scheduler.NewVacuumDatabasesJob(log, container.PositionsDB, container.HistoryDB),
	}

	for _, reg := range []struct {
		schedule string
		job      scheduler.Job
	}{
		{cfg.Cache.CleanupSchedule, instances.CacheCleanup},
		{checkDatabasesSchedule, instances.CheckDatabases},
		{prunePricesSchedule, instances.PrunePrices},
		{vacuumSchedule, instances.Vacuum},
	} {
		if _, err := container.Scheduler.AddJob(reg.schedule, reg.job); err != nil {
			return nil, err
		}
	}

	log.Info().Int("jobs", container.Scheduler.Entries()).Msg("Jobs registered")

	return instances, nil
}
