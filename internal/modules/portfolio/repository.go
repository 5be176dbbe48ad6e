// Package portfolio stores position snapshots and serves them to the analytical engines.
package portfolio

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/aristath/lpsentinel/internal/database"
	"github.com/aristath/lpsentinel/internal/domain"
	"github.com/rs/zerolog"
)

// Repository persists snapshots in the positions database.
// It implements domain.PositionSource.
type Repository struct {
	db  *sql.DB
	log zerolog.Logger
}

// NewRepository creates a new position repository
func NewRepository(db *sql.DB, log zerolog.Logger) *Repository {
	return &Repository{
		db:  db,
		log: log.With().Str("repo", "position").Logger(),
	}
}

// SaveSnapshot replaces every stored position of the snapshot's owner
func (r *Repository) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.OwnerKey == "" {
		return domain.NewValidationError("owner_key", "owner key is required")
	}

	err := database.WithTransaction(r.db, func(tx *sql.Tx) error {
		// 1. Drop the previous snapshot
		if _, err := tx.ExecContext(ctx, `DELETE FROM position_analytics WHERE owner_key = ?`, snap.OwnerKey); err != nil {
			return fmt.Errorf("failed to delete analytics: %w", err)
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM positions WHERE owner_key = ?`, snap.OwnerKey); err != nil {
			return fmt.Errorf("failed to delete positions: %w", err)
		}

		// 2. Insert positions in slot order, analytics alongside
		for i, p := range snap.Positions {
			if err := insertPosition(ctx, tx, snap.OwnerKey, i, p); err != nil {
				return err
			}
			if err := insertAnalytics(ctx, tx, snap.OwnerKey, p.ID, snap.Analytics[i]); err != nil {
				return err
			}
		}

		// 3. Record the snapshot time
		asOf := snap.AsOf
		if asOf.IsZero() {
			asOf = time.Now()
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO snapshots (owner_key, as_of) VALUES (?, ?)
			ON CONFLICT(owner_key) DO UPDATE SET as_of = excluded.as_of`,
			snap.OwnerKey, asOf.Unix())
		if err != nil {
			return fmt.Errorf("failed to record snapshot: %w", err)
		}
		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to save snapshot for %s: %w", snap.OwnerKey, err)
	}

	r.log.Debug().
		Str("owner", snap.OwnerKey).
		Int("positions", snap.Len()).
		Msg("Saved snapshot")
	return nil
}

func insertPosition(ctx context.Context, tx *sql.Tx, owner string, slot int, p domain.Position) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO positions (
			owner_key, id, pool_id,
			token_x_symbol, token_x_decimals, token_x_price,
			token_y_symbol, token_y_decimals, token_y_price,
			liquidity_amount, fees_x, fees_y, is_active, slot,
			created_at, last_updated
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, p.ID, p.PoolID,
		p.TokenX.Symbol, p.TokenX.Decimals, p.TokenX.PriceUSD,
		p.TokenY.Symbol, p.TokenY.Decimals, p.TokenY.PriceUSD,
		p.LiquidityAmount, p.FeesEarned.X, p.FeesEarned.Y, boolToInt(p.IsActive), slot,
		p.CreatedAt.Unix(), p.LastUpdated.Unix(),
	)
	if err != nil {
		return fmt.Errorf("failed to insert position %s: %w", p.ID, err)
	}
	return nil
}

func insertAnalytics(ctx context.Context, tx *sql.Tx, owner, positionID string, a domain.PositionAnalytics) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO position_analytics (
			owner_key, position_id, total_value, pnl_amount, pnl_percent,
			fees_earned_usd, il_amount, il_percent, apr, duration_seconds
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		owner, positionID, a.TotalValue, a.PnL.Amount, a.PnL.Percent,
		a.FeesEarnedUSD, a.ImpermanentLoss.Amount, a.ImpermanentLoss.Percent, a.APR,
		int64(a.Duration/time.Second),
	)
	if err != nil {
		return fmt.Errorf("failed to insert analytics for %s: %w", positionID, err)
	}
	return nil
}

// Snapshot loads the stored snapshot for an owner. Unknown owners yield a NotFoundError.
func (r *Repository) Snapshot(ctx context.Context, ownerKey string) (*domain.Snapshot, error) {
	var asOf int64
	err := r.db.QueryRowContext(ctx, `SELECT as_of FROM snapshots WHERE owner_key = ?`, ownerKey).Scan(&asOf)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, &domain.NotFoundError{Kind: "snapshot", ID: ownerKey}
	}
	if err != nil {
		return nil, fmt.Errorf("failed to query snapshot: %w", err)
	}

	rows, err := r.db.QueryContext(ctx, `
		SELECT p.id, p.pool_id,
			p.token_x_symbol, p.token_x_decimals, p.token_x_price,
			p.token_y_symbol, p.token_y_decimals, p.token_y_price,
			p.liquidity_amount, p.fees_x, p.fees_y, p.is_active,
			p.created_at, p.last_updated,
			COALESCE(a.total_value, 0), COALESCE(a.pnl_amount, 0), COALESCE(a.pnl_percent, 0),
			COALESCE(a.fees_earned_usd, 0), COALESCE(a.il_amount, 0), COALESCE(a.il_percent, 0),
			COALESCE(a.apr, 0), COALESCE(a.duration_seconds, 0)
		FROM positions p
		LEFT JOIN position_analytics a ON a.owner_key = p.owner_key AND a.position_id = p.id
		WHERE p.owner_key = ?
		ORDER BY p.slot`, ownerKey)
	if err != nil {
		return nil, fmt.Errorf("failed to query positions: %w", err)
	}
	defer rows.Close()

	snap := &domain.Snapshot{
		OwnerKey:  ownerKey,
		AsOf:      time.Unix(asOf, 0).UTC(),
		Positions: []domain.Position{},
		Analytics: []domain.PositionAnalytics{},
	}
	for rows.Next() {
		p, a, err := scanRow(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan position: %w", err)
		}
		snap.Positions = append(snap.Positions, p)
		snap.Analytics = append(snap.Analytics, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating positions: %w", err)
	}
	return snap, nil
}

func scanRow(rows *sql.Rows) (domain.Position, domain.PositionAnalytics, error) {
	var (
		p                    domain.Position
		a                    domain.PositionAnalytics
		isActive             int
		createdAt, updatedAt int64
		durationSeconds      int64
	)
	err := rows.Scan(
		&p.ID, &p.PoolID,
		&p.TokenX.Symbol, &p.TokenX.Decimals, &p.TokenX.PriceUSD,
		&p.TokenY.Symbol, &p.TokenY.Decimals, &p.TokenY.PriceUSD,
		&p.LiquidityAmount, &p.FeesEarned.X, &p.FeesEarned.Y, &isActive,
		&createdAt, &updatedAt,
		&a.TotalValue, &a.PnL.Amount, &a.PnL.Percent,
		&a.FeesEarnedUSD, &a.ImpermanentLoss.Amount, &a.ImpermanentLoss.Percent,
		&a.APR, &durationSeconds,
	)
	if err != nil {
		return p, a, err
	}
	p.IsActive = isActive != 0
	p.CreatedAt = time.Unix(createdAt, 0).UTC()
	p.LastUpdated = time.Unix(updatedAt, 0).UTC()
	a.Duration = time.Duration(durationSeconds) * time.Second
	return p, a, nil
}

// Owners lists every owner with a stored snapshot
func (r *Repository) Owners(ctx context.Context) ([]string, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT owner_key FROM snapshots ORDER BY owner_key`)
	if err != nil {
		return nil, fmt.Errorf("failed to query owners: %w", err)
	}
	defer rows.Close()

	var owners []string
	for rows.Next() {
		var owner string
		if err := rows.Scan(&owner); err != nil {
			return nil, fmt.Errorf("failed to scan owner: %w", err)
		}
		owners = append(owners, owner)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating owners: %w", err)
	}
	return owners, nil
}

// DeleteSnapshot removes an owner's snapshot
func (r *Repository) DeleteSnapshot(ctx context.Context, ownerKey string) error {
	return database.WithTransaction(r.db, func(tx *sql.Tx) error {
		for _, q := range []string{
			`DELETE FROM position_analytics WHERE owner_key = ?`,
			`DELETE FROM positions WHERE owner_key = ?`,
			`DELETE FROM snapshots WHERE owner_key = ?`,
		} {
			if _, err := tx.ExecContext(ctx, q, ownerKey); err != nil {
				return fmt.Errorf("failed to delete snapshot: %w", err)
			}
		}
		return nil
	})
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
