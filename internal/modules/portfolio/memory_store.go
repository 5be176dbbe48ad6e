package portfolio

import (
	"context"
	"sort"
	"sync"

	"github.com/aristath/lpsentinel/internal/domain"
)

// MemoryStore keeps snapshots in process memory
type MemoryStore struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot
}

// NewMemoryStore creates an empty store
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{snapshots: make(map[string]*domain.Snapshot)}
}

// SaveSnapshot stores a copy of the snapshot
func (s *MemoryStore) SaveSnapshot(_ context.Context, snap *domain.Snapshot) error {
	if err := snap.Validate(); err != nil {
		return err
	}
	if snap.OwnerKey == "" {
		return domain.NewValidationError("owner_key", "owner key is required")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.snapshots[snap.OwnerKey] = clone(snap)
	return nil
}

// Snapshot returns a copy of the stored snapshot
func (s *MemoryStore) Snapshot(_ context.Context, ownerKey string) (*domain.Snapshot, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap, ok := s.snapshots[ownerKey]
	if !ok {
		return nil, &domain.NotFoundError{Kind: "snapshot", ID: ownerKey}
	}
	return clone(snap), nil
}

// Owners lists the stored owners in sorted order
func (s *MemoryStore) Owners(_ context.Context) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	owners := make([]string, 0, len(s.snapshots))
	for owner := range s.snapshots {
		owners = append(owners, owner)
	}
	sort.Strings(owners)
	return owners, nil
}

// DeleteSnapshot removes an owner's snapshot
func (s *MemoryStore) DeleteSnapshot(_ context.Context, ownerKey string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.snapshots, ownerKey)
	return nil
}

func clone(snap *domain.Snapshot) *domain.Snapshot {
	out := *snap
	out.Positions = append([]domain.Position(nil), snap.Positions...)
	out.Analytics = append([]domain.PositionAnalytics(nil), snap.Analytics...)
	return &out
}
