package marketdata

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/aristath/lpsentinel/internal/database"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// PricePoint is one observed token price
type PricePoint struct {
	Time   time.Time `json:"time"`
	Symbol string    `json:"symbol" validate:"required"`
	Price  float64   `json:"price" validate:"gt=0"`
}

// PriceRepository stores token prices in the history database
type PriceRepository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewPriceRepository creates a new price repository
func NewPriceRepository(db *sql.DB, log zerolog.Logger) *PriceRepository {
	return &PriceRepository{
		db:  db,
		log: log.With().Str("repo", "token_prices").Logger(),
	}
}

// Record upserts a batch of prices in one transaction
func (r *PriceRepository) Record(ctx context.Context, points ...PricePoint) error {
	for _, p := range points {
		if err := domain.ValidateStruct(p); err != nil {
			return err
		}
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO token_prices (symbol, ts, price) VALUES (?, ?, ?)
			ON CONFLICT(symbol, ts) DO UPDATE SET price = excluded.price`)
		if err != nil {
			return fmt.Errorf("failed to prepare insert: %w", err)
		}
		defer stmt.Close()

		for _, p := range points {
			if _, err := stmt.ExecContext(ctx, strings.ToUpper(p.Symbol), p.Time.Unix(), p.Price); err != nil {
				return fmt.Errorf("failed to insert price for %s: %w", p.Symbol, err)
			}
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record prices: %w", err)
	}

	r.log.Debug().Int("points", len(points)).Msg("Recorded prices")
	return nil
}

// Series returns a symbol's prices since the given time, oldest first
func (r *PriceRepository) Series(ctx context.Context, symbol string, since time.Time) ([]PricePoint, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT ts, price FROM token_prices
		WHERE symbol = ? AND ts >= ?
		ORDER BY ts ASC`, strings.ToUpper(symbol), since.Unix())
	if err != nil {
		return nil, fmt.Errorf("failed to query prices: %w", err)
	}
	defer rows.Close()

	var points []PricePoint
	for rows.Next() {
		var ts int64
		p := PricePoint{Symbol: strings.ToUpper(symbol)}
		if err := rows.Scan(&ts, &p.Price); err != nil {
			return nil, fmt.Errorf("failed to scan price: %w", err)
		}
		p.Time = time.Unix(ts, 0).UTC()
		points = append(points, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating prices: %w", err)
	}
	return points, nil
}

// Latest returns the most recent price of a symbol
func (r *PriceRepository) Latest(ctx context.Context, symbol string) (PricePoint, error) {
	var ts int64
	p := PricePoint{Symbol: strings.ToUpper(symbol)}
	err := r.db.QueryRowContext(ctx, `
		SELECT ts, price FROM token_prices
		WHERE symbol = ?
		ORDER BY ts DESC LIMIT 1`, p.Symbol).Scan(&ts, &p.Price)
	if errors.Is(err, sql.ErrNoRows) {
		return p, &domain.NotFoundError{Kind: "token price", ID: p.Symbol}
	}
	if err != nil {
		return p, fmt.Errorf("failed to query latest price: %w", err)
	}
	p.Time = time.Unix(ts, 0).UTC()
	return p, nil
}

// Prune deletes prices older than before and returns the number removed
func (r *PriceRepository) Prune(ctx context.Context, before time.Time) (int64, error) {
	res, err := r.db.ExecContext(ctx, `DELETE FROM token_prices WHERE ts < ?`, before.Unix())
	if err != nil {
		return 0, fmt.Errorf("failed to prune prices: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to count pruned prices: %w", err)
	}
	return n, nil
}
