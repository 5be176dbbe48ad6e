package scheduler

import (
	"fmt"
	"time"

	"github.com/aristath/lpsentinel/internal/database"
	"github.com/rs/zerolog"
)

// VacuumDatabasesJob reclaims the space freed by snapshot replacement and price pruning
type VacuumDatabasesJob struct {
	log       zerolog.Logger
	databases []*database.DB
}

// NewVacuumDatabasesJob creates a new VacuumDatabasesJob. Nil databases are skipped.
func NewVacuumDatabasesJob(log zerolog.Logger, databases ...*database.DB) *VacuumDatabasesJob {
	return &VacuumDatabasesJob{
		log:       log.With().Str("job", "vacuum_databases").Logger(),
		databases: databases,
	}
}

// Name returns the job name
func (j *VacuumDatabasesJob) Name() string {
	return "vacuum_databases"
}

// Run vacuums every database. A failure is logged and the remaining databases still run;
// the first error is returned.
func (j *VacuumDatabasesJob) Run() error {
	startTime := time.Now()
	var firstErr error

	for _, db := range j.databases {
		if db == nil {
			continue
		}
		if err := j.vacuumDatabase(db); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			if firstErr == nil {
				firstErr = err
			}
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(startTime)).Msg("Vacuum completed")
	return firstErr
}

func (j *VacuumDatabasesJob) vacuumDatabase(db *database.DB) error {
	sizeBefore := databaseSizeMB(db)

	if _, err := db.Conn().Exec("VACUUM"); err != nil {
		return fmt.Errorf("failed to vacuum %s: %w", db.Name(), err)
	}

	sizeAfter := databaseSizeMB(db)
	j.log.Info().
		Str("database", db.Name()).
		Float64("size_before_mb", sizeBefore).
		Float64("size_after_mb", sizeAfter).
		Float64("space_reclaimed_mb", sizeBefore-sizeAfter).
		Msg("VACUUM completed")
	return nil
}

// databaseSizeMB returns page_count * page_size in megabytes, 0 when unavailable
func databaseSizeMB(db *database.DB) float64 {
	var pageCount, pageSize int64
	if err := db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount); err != nil {
		return 0
	}
	if err := db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize); err != nil {
		return 0
	}
	return float64(pageCount*pageSize) / 1024 / 1024
}
