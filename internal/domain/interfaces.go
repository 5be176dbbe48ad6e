package domain

import "context"

// PositionSource loads the positions and analytics owned by a key.
// Implementations live at the system edge (wallet indexers, databases, fixtures).
type PositionSource interface {
	Snapshot(ctx context.Context, ownerKey string) (*Snapshot, error)
}

// MarketDataProvider supplies per-position statistics and pairwise correlations.
// The analytical core is deterministic given the provider's output.
type MarketDataProvider interface {
	MarketData(ctx context.Context, snapshot *Snapshot) (*MarketData, error)
}
