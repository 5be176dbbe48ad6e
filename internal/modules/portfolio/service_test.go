package portfolio

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/aristath/lpsentinel/internal/domain"
	testutil "github.com/aristath/lpsentinel/internal/testing"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockStore is a mock snapshot store for testing
type MockStore struct {
	mock.Mock
}

func (m *MockStore) Snapshot(ctx context.Context, ownerKey string) (*domain.Snapshot, error) {
	args := m.Called(ctx, ownerKey)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Snapshot), args.Error(1)
}

func (m *MockStore) SaveSnapshot(ctx context.Context, snap *domain.Snapshot) error {
	args := m.Called(ctx, snap)
	return args.Error(0)
}

func (m *MockStore) DeleteSnapshot(ctx context.Context, ownerKey string) error {
	args := m.Called(ctx, ownerKey)
	return args.Error(0)
}

func (m *MockStore) Owners(ctx context.Context) ([]string, error) {
	args := m.Called(ctx)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]string), args.Error(1)
}

func TestService_SaveSnapshotFillsOwnerAndTime(t *testing.T) {
	store := new(MockStore)
	service := NewService(store, zerolog.Nop())
	service.SetClock(func() time.Time { return testutil.FixtureTime })

	snap := testutil.NewSnapshotFixture()
	snap.OwnerKey = ""
	snap.AsOf = time.Time{}

	store.On("SaveSnapshot", mock.Anything, mock.MatchedBy(func(s *domain.Snapshot) bool {
		return s.OwnerKey == "owner-9" && s.AsOf.Equal(testutil.FixtureTime)
	})).Return(nil)

	require.NoError(t, service.SaveSnapshot(context.Background(), "owner-9", snap))
	store.AssertExpectations(t)
}

func TestService_SaveSnapshotRejectsOwnerMismatch(t *testing.T) {
	store := new(MockStore)
	service := NewService(store, zerolog.Nop())

	err := service.SaveSnapshot(context.Background(), "someone-else", testutil.NewSnapshotFixture())
	require.Error(t, err)
	assert.True(t, domain.IsValidation(err))

	err = service.SaveSnapshot(context.Background(), "", testutil.NewSnapshotFixture())
	assert.True(t, domain.IsValidation(err))

	err = service.SaveSnapshot(context.Background(), "owner-1", nil)
	assert.True(t, domain.IsValidation(err))

	store.AssertNotCalled(t, "SaveSnapshot", mock.Anything, mock.Anything)
}

func TestService_SaveSnapshotWrapsStoreErrors(t *testing.T) {
	store := new(MockStore)
	service := NewService(store, zerolog.Nop())
	store.On("SaveSnapshot", mock.Anything, mock.Anything).Return(errors.New("disk full"))

	err := service.SaveSnapshot(context.Background(), "owner-1", testutil.NewSnapshotFixture())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to store snapshot")
	assert.Contains(t, err.Error(), "disk full")
}

func TestService_GetSummary(t *testing.T) {
	store := new(MockStore)
	service := NewService(store, zerolog.Nop())
	store.On("Snapshot", mock.Anything, "owner-1").Return(testutil.NewSnapshotFixture(), nil)

	summary, err := service.GetSummary(context.Background(), "owner-1")
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Positions)
	assert.Equal(t, 3, summary.ActiveCount)
	assert.InDelta(t, 10000, summary.TotalValue, 1e-9)
	assert.InDelta(t, 500+150-80, summary.TotalPnL, 1e-9)
	assert.InDelta(t, 100, summary.TotalFees, 1e-9)
	assert.InDelta(t, 0.5*40+0.3*25+0.2*15, summary.WeightedAPR, 1e-9)

	assert.InDelta(t, 0.4, summary.TokenExposure["SOL"], 1e-9)
	assert.InDelta(t, 0.25, summary.TokenExposure["USDC"], 1e-9)
	assert.InDelta(t, 0.1, summary.TokenExposure["WBTC"], 1e-9)

	require.Len(t, summary.Holdings, 3)
	assert.Equal(t, "sol-usdc", summary.Holdings[0].PositionID)
	assert.Equal(t, "SOL/USDC", summary.Holdings[0].Pair)
	assert.Equal(t, "eth-wbtc", summary.Holdings[2].PositionID)
}

func TestService_GetSummaryNotFound(t *testing.T) {
	store := new(MockStore)
	service := NewService(store, zerolog.Nop())
	store.On("Snapshot", mock.Anything, "ghost").Return(nil, &domain.NotFoundError{Kind: "snapshot", ID: "ghost"})

	_, err := service.GetSummary(context.Background(), "ghost")
	assert.True(t, domain.IsNotFound(err))
}

func TestSummarize_EmptyPortfolio(t *testing.T) {
	summary := Summarize(&domain.Snapshot{OwnerKey: "empty"})
	assert.Equal(t, 0, summary.Positions)
	assert.Zero(t, summary.TotalValue)
	assert.Empty(t, summary.Holdings)
	assert.Empty(t, summary.TokenExposure)
}
