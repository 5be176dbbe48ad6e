package scheduler

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

// PricePruner deletes price history older than a cutoff
type PricePruner interface {
	Prune(ctx context.Context, before time.Time) (int64, error)
}

// PrunePricesJob enforces the token price retention window
type PrunePricesJob struct {
	pruner    PricePruner
	retention time.Duration
	now       func() time.Time
	log       zerolog.Logger
}

// NewPrunePricesJob creates a job keeping retentionDays of history
func NewPrunePricesJob(pruner PricePruner, retentionDays int, log zerolog.Logger) *PrunePricesJob {
	if retentionDays <= 0 {
		retentionDays = 365
	}
	return &PrunePricesJob{
		pruner:    pruner,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		now:       time.Now,
		log:       log.With().Str("job", "prune_token_prices").Logger(),
	}
}

// Name returns the job name
func (j *PrunePricesJob) Name() string {
	return "prune_token_prices"
}

// Run deletes prices outside the retention window
func (j *PrunePricesJob) Run() error {
	cutoff := j.now().Add(-j.retention)
	removed, err := j.pruner.Prune(context.Background(), cutoff)
	if err != nil {
		return fmt.Errorf("failed to prune token prices: %w", err)
	}

	j.log.Info().
		Int64("removed", removed).
		Time("cutoff", cutoff).
		Msg("Token prices pruned")
	return nil
}
