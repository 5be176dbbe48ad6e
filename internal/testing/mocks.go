package testing

import (
	"context"
	"sync"

	"github.com/aristath/lpsentinel/internal/domain"
)

// MockPositionSource returns a configurable snapshot per owner
type MockPositionSource struct {
	mu        sync.RWMutex
	snapshots map[string]*domain.Snapshot
	err       error
	calls     int
}

// NewMockPositionSource creates a source that serves snapshot for every owner
func NewMockPositionSource(snapshot *domain.Snapshot) *MockPositionSource {
	m := &MockPositionSource{snapshots: make(map[string]*domain.Snapshot)}
	if snapshot != nil {
		m.snapshots[snapshot.OwnerKey] = snapshot
	}
	return m
}

// SetSnapshot replaces the snapshot served for its owner
func (m *MockPositionSource) SetSnapshot(snapshot *domain.Snapshot) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.snapshots[snapshot.OwnerKey] = snapshot
}

// SetError sets the error to return
func (m *MockPositionSource) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of Snapshot invocations
func (m *MockPositionSource) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// Snapshot implements domain.PositionSource
func (m *MockPositionSource) Snapshot(_ context.Context, ownerKey string) (*domain.Snapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	s, ok := m.snapshots[ownerKey]
	if !ok {
		return &domain.Snapshot{OwnerKey: ownerKey}, nil
	}
	return s, nil
}

// MockMarketDataProvider returns fixed market data
type MockMarketDataProvider struct {
	mu    sync.RWMutex
	data  *domain.MarketData
	err   error
	calls int
}

// NewMockMarketDataProvider creates a provider returning data
func NewMockMarketDataProvider(data *domain.MarketData) *MockMarketDataProvider {
	return &MockMarketDataProvider{data: data}
}

// SetData replaces the returned market data
func (m *MockMarketDataProvider) SetData(data *domain.MarketData) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.data = data
}

// SetError sets the error to return
func (m *MockMarketDataProvider) SetError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.err = err
}

// Calls returns the number of MarketData invocations
func (m *MockMarketDataProvider) Calls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls
}

// MarketData implements domain.MarketDataProvider
func (m *MockMarketDataProvider) MarketData(_ context.Context, _ *domain.Snapshot) (*domain.MarketData, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	if m.data == nil {
		return domain.NewMarketData(), nil
	}
	return m.data, nil
}
