package service

import (
	"context"
	"log/slog"
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// --- Mock Repositories ---

type mockStockRepository struct {
	mock.Mock
}

func (m *mockStockRepository) Create(ctx context.Context, stock *domain.StockItem) (*domain.StockItem, error) {
	args := m.Called(ctx, stock)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockItem), args.Error(1)
}

func (m *mockStockRepository) GetByProductID(ctx context.Context, productID string) (*domain.StockItem, error) {
	args := m.Called(ctx, productID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockItem), args.Error(1)
}

func (m *mockStockRepository) ListLowStock(ctx context.Context, limit, offset int) ([]domain.StockItem, int, error) {
	args := m.Called(ctx, limit, offset)
	if args.Get(0) == nil {
		return nil, args.Int(1), args.Error(2)
	}
	return args.Get(0).([]domain.StockItem), args.Int(1), args.Error(2)
}

func (m *mockStockRepository) Adjust(ctx context.Context, productID string, delta int, adj *domain.StockAdjustment) (*domain.StockItem, error) {
	args := m.Called(ctx, productID, delta, adj)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.StockItem), args.Error(1)
}

type mockReservationRepository struct {
	mock.Mock
}

func (m *mockReservationRepository) Reserve(ctx context.Context, orderID, customerID string, items []domain.ReservationRequest, expiresAt time.Time) ([]domain.Reservation, error) {
	args := m.Called(ctx, orderID, customerID, items, expiresAt)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) ListByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	args := m.Called(ctx, orderID)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) Cancel(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) Expire(ctx context.Context, id string) (*domain.Reservation, error) {
	args := m.Called(ctx, id)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).(*domain.Reservation), args.Error(1)
}

func (m *mockReservationRepository) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	args := m.Called(ctx, now, limit)
	if args.Get(0) == nil {
		return nil, args.Error(1)
	}
	return args.Get(0).([]domain.Reservation), args.Error(1)
}

// --- Mock Publisher ---

type mockPublisher struct {
	mock.Mock
}

func (m *mockPublisher) PublishStockCreated(ctx context.Context, stock *domain.StockItem) error {
	return m.Called(ctx, stock).Error(0)
}

func (m *mockPublisher) PublishStockUpdated(ctx context.Context, stock *domain.StockItem) error {
	return m.Called(ctx, stock).Error(0)
}

func (m *mockPublisher) PublishStockAdjusted(ctx context.Context, stock *domain.StockItem, delta int, reason string) error {
	return m.Called(ctx, stock, delta, reason).Error(0)
}

func (m *mockPublisher) PublishLowStock(ctx context.Context, stock *domain.StockItem) error {
	return m.Called(ctx, stock).Error(0)
}

func (m *mockPublisher) PublishStockReserved(ctx context.Context, reservation *domain.Reservation) error {
	return m.Called(ctx, reservation).Error(0)
}

func (m *mockPublisher) PublishReservationReleased(ctx context.Context, reservation *domain.Reservation) error {
	return m.Called(ctx, reservation).Error(0)
}

func (m *mockPublisher) PublishReservationExpired(ctx context.Context, reservation *domain.Reservation) error {
	return m.Called(ctx, reservation).Error(0)
}

// --- Test Helpers ---

func newTestLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelError}))
}

type testDeps struct {
	stockRepo       *mockStockRepository
	reservationRepo *mockReservationRepository
	publisher       *mockPublisher
}

func newTestService() (*InventoryService, *testDeps) {
	deps := &testDeps{
		stockRepo:       &mockStockRepository{},
		reservationRepo: &mockReservationRepository{},
		publisher:       &mockPublisher{},
	}
	svc := NewInventoryService(deps.stockRepo, deps.reservationRepo, deps.publisher,
		newTestLogger(), 15*time.Minute, 100)
	return svc, deps
}

func healthyStock() *domain.StockItem {
	return &domain.StockItem{
		ID:           "stock-1",
		ProductID:    "prod-1",
		SKU:          "SKU-001",
		OnHand:       50,
		Reserved:     5,
		ReorderLevel: 3,
	}
}

func pendingReservation() *domain.Reservation {
	return &domain.Reservation{
		ID:        "res-1",
		OrderID:   "order-1",
		ProductID: "prod-1",
		Quantity:  2,
		Status:    domain.ReservationStatusPending,
		ExpiresAt: time.Now().UTC().Add(15 * time.Minute),
	}
}

// --- CreateStock ---

func TestCreateStock_Success(t *testing.T) {
	svc, deps := newTestService()

	stock := &domain.StockItem{ProductID: "prod-1", SKU: "SKU-001", OnHand: 20, ReorderLevel: 3}
	deps.stockRepo.On("Create", mock.Anything, stock).Return(stock, nil)
	deps.publisher.On("PublishStockCreated", mock.Anything, stock).Return(nil)

	result, err := svc.CreateStock(context.Background(), stock)
	require.NoError(t, err)
	assert.NotEmpty(t, result.ID)
	assert.Equal(t, 0, result.Reserved)
	deps.stockRepo.AssertExpectations(t)
	deps.publisher.AssertExpectations(t)
}

func TestCreateStock_Validation(t *testing.T) {
	svc, _ := newTestService()

	_, err := svc.CreateStock(context.Background(), &domain.StockItem{OnHand: 5})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.CreateStock(context.Background(), &domain.StockItem{ProductID: "p", OnHand: -1})
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)
}

func TestCreateStock_PublishFailureDoesNotFailCall(t *testing.T) {
	svc, deps := newTestService()

	stock := &domain.StockItem{ProductID: "prod-1", OnHand: 20}
	deps.stockRepo.On("Create", mock.Anything, stock).Return(stock, nil)
	deps.publisher.On("PublishStockCreated", mock.Anything, stock).Return(assert.AnError)

	_, err := svc.CreateStock(context.Background(), stock)
	assert.NoError(t, err)
}

// --- Reserve ---

func TestReserve_Success(t *testing.T) {
	svc, deps := newTestService()

	items := []domain.ReservationRequest{{ProductID: "prod-1", Quantity: 2}}
	created := []domain.Reservation{*pendingReservation()}

	deps.reservationRepo.On("Reserve", mock.Anything, "order-1", "cust-1", items, mock.Anything).
		Return(created, nil)
	deps.publisher.On("PublishStockReserved", mock.Anything, mock.Anything).Return(nil)
	deps.stockRepo.On("GetByProductID", mock.Anything, "prod-1").Return(healthyStock(), nil)

	result, err := svc.Reserve(context.Background(), "order-1", "cust-1", items, 0)
	require.NoError(t, err)
	require.Len(t, result, 1)
	assert.Equal(t, domain.ReservationStatusPending, result[0].Status)
	deps.reservationRepo.AssertExpectations(t)
	deps.publisher.AssertExpectations(t)
}

func TestReserve_DefaultTTLApplied(t *testing.T) {
	svc, deps := newTestService()

	items := []domain.ReservationRequest{{ProductID: "prod-1", Quantity: 2}}
	var capturedExpiry time.Time
	deps.reservationRepo.On("Reserve", mock.Anything, "order-1", "cust-1", items, mock.MatchedBy(func(expiresAt time.Time) bool {
		capturedExpiry = expiresAt
		return true
	})).Return([]domain.Reservation{}, nil)

	before := time.Now().UTC()
	_, err := svc.Reserve(context.Background(), "order-1", "cust-1", items, 0)
	require.NoError(t, err)

	ttl := capturedExpiry.Sub(before)
	assert.InDelta(t, (15 * time.Minute).Seconds(), ttl.Seconds(), 5)
}

func TestReserve_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Reserve(ctx, "", "cust-1", []domain.ReservationRequest{{ProductID: "p", Quantity: 1}}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Reserve(ctx, "order-1", "cust-1", nil, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.Reserve(ctx, "order-1", "cust-1", []domain.ReservationRequest{{ProductID: "p", Quantity: 0}}, 0)
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
}

func TestReserve_InsufficientStockPropagates(t *testing.T) {
	svc, deps := newTestService()

	items := []domain.ReservationRequest{{ProductID: "prod-1", Quantity: 99}}
	deps.reservationRepo.On("Reserve", mock.Anything, "order-1", "cust-1", items, mock.Anything).
		Return(nil, apperrors.InsufficientStock("prod-1", 99, 5))

	_, err := svc.Reserve(context.Background(), "order-1", "cust-1", items, 0)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	deps.publisher.AssertNotCalled(t, "PublishStockReserved", mock.Anything, mock.Anything)
}

// --- ConfirmByOrder / ReleaseByOrder ---

func TestConfirmByOrder_ConfirmsPendingSkipsTerminal(t *testing.T) {
	svc, deps := newTestService()

	pending := *pendingReservation()
	settled := *pendingReservation()
	settled.ID = "res-2"
	settled.Status = domain.ReservationStatusCancelled

	confirmed := pending
	confirmed.Status = domain.ReservationStatusConfirmed

	deps.reservationRepo.On("ListByOrderID", mock.Anything, "order-1").
		Return([]domain.Reservation{pending, settled}, nil)
	deps.reservationRepo.On("Confirm", mock.Anything, "res-1").Return(&confirmed, nil)
	deps.stockRepo.On("GetByProductID", mock.Anything, "prod-1").Return(healthyStock(), nil)
	deps.publisher.On("PublishStockUpdated", mock.Anything, mock.Anything).Return(nil)

	err := svc.ConfirmByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	deps.reservationRepo.AssertNotCalled(t, "Confirm", mock.Anything, "res-2")
}

func TestConfirmByOrder_NoReservations(t *testing.T) {
	svc, deps := newTestService()

	deps.reservationRepo.On("ListByOrderID", mock.Anything, "order-x").
		Return([]domain.Reservation{}, nil)

	err := svc.ConfirmByOrder(context.Background(), "order-x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestConfirmByOrder_RaceWithSweeperIsIdempotent(t *testing.T) {
	svc, deps := newTestService()

	pending := *pendingReservation()
	deps.reservationRepo.On("ListByOrderID", mock.Anything, "order-1").
		Return([]domain.Reservation{pending}, nil)
	deps.reservationRepo.On("Confirm", mock.Anything, "res-1").
		Return(nil, apperrors.AlreadyTerminal("reservation", "res-1", "expired"))

	err := svc.ConfirmByOrder(context.Background(), "order-1")
	assert.NoError(t, err)
}

func TestReleaseByOrder_ReleasesPending(t *testing.T) {
	svc, deps := newTestService()

	pending := *pendingReservation()
	cancelled := pending
	cancelled.Status = domain.ReservationStatusCancelled

	deps.reservationRepo.On("ListByOrderID", mock.Anything, "order-1").
		Return([]domain.Reservation{pending}, nil)
	deps.reservationRepo.On("Cancel", mock.Anything, "res-1").Return(&cancelled, nil)
	deps.publisher.On("PublishReservationReleased", mock.Anything, &cancelled).Return(nil)

	err := svc.ReleaseByOrder(context.Background(), "order-1")
	require.NoError(t, err)
	deps.publisher.AssertExpectations(t)
}

// --- AdjustStock / AddStock ---

func TestAdjustStock_Success(t *testing.T) {
	svc, deps := newTestService()

	updated := healthyStock()
	updated.OnHand = 60
	deps.stockRepo.On("Adjust", mock.Anything, "prod-1", 10, mock.MatchedBy(func(adj *domain.StockAdjustment) bool {
		return adj.Reason == domain.AdjustmentReasonRestock && adj.Actor == "ops"
	})).Return(updated, nil)
	deps.publisher.On("PublishStockAdjusted", mock.Anything, updated, 10, domain.AdjustmentReasonRestock).Return(nil)

	result, err := svc.AddStock(context.Background(), "prod-1", 10, "ops")
	require.NoError(t, err)
	assert.Equal(t, 60, result.OnHand)
	deps.publisher.AssertExpectations(t)
}

func TestAdjustStock_LowStockTriggersNotification(t *testing.T) {
	svc, deps := newTestService()

	updated := healthyStock()
	updated.OnHand = 7
	updated.Reserved = 5 // available 2 <= level 3
	deps.stockRepo.On("Adjust", mock.Anything, "prod-1", -43, mock.Anything).Return(updated, nil)
	deps.publisher.On("PublishStockAdjusted", mock.Anything, updated, -43, domain.AdjustmentReasonDamage).Return(nil)
	deps.publisher.On("PublishLowStock", mock.Anything, updated).Return(nil)

	_, err := svc.AdjustStock(context.Background(), "prod-1", -43, domain.AdjustmentReasonDamage, "ops")
	require.NoError(t, err)
	deps.publisher.AssertExpectations(t)
}

func TestAdjustStock_Validation(t *testing.T) {
	svc, _ := newTestService()
	ctx := context.Background()

	_, err := svc.AdjustStock(ctx, "", 5, domain.AdjustmentReasonRestock, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AdjustStock(ctx, "prod-1", 0, domain.AdjustmentReasonRestock, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AdjustStock(ctx, "prod-1", 5, "bogus", "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidInput)

	_, err = svc.AddStock(ctx, "prod-1", -5, "")
	assert.ErrorIs(t, err, apperrors.ErrInvalidQuantity)
}

// --- SweepExpired ---

func TestSweepExpired_SettlesAndNotifies(t *testing.T) {
	svc, deps := newTestService()

	lapsed := *pendingReservation()
	lapsed.ExpiresAt = time.Now().UTC().Add(-time.Minute)
	expired := lapsed
	expired.Status = domain.ReservationStatusExpired

	deps.reservationRepo.On("ListExpired", mock.Anything, mock.Anything, 100).
		Return([]domain.Reservation{lapsed}, nil)
	deps.reservationRepo.On("Expire", mock.Anything, "res-1").Return(&expired, nil)
	deps.publisher.On("PublishReservationExpired", mock.Anything, &expired).Return(nil)
	deps.publisher.On("PublishReservationReleased", mock.Anything, &expired).Return(nil)

	swept, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
	deps.publisher.AssertExpectations(t)
}

func TestSweepExpired_SkipsReservationsSettledMeanwhile(t *testing.T) {
	svc, deps := newTestService()

	lapsed := *pendingReservation()
	deps.reservationRepo.On("ListExpired", mock.Anything, mock.Anything, 100).
		Return([]domain.Reservation{lapsed}, nil)
	deps.reservationRepo.On("Expire", mock.Anything, "res-1").
		Return(nil, apperrors.AlreadyTerminal("reservation", "res-1", "confirmed"))

	swept, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 0, swept)
	deps.publisher.AssertNotCalled(t, "PublishReservationExpired", mock.Anything, mock.Anything)
}

func TestSweepExpired_OneFailureDoesNotStallBatch(t *testing.T) {
	svc, deps := newTestService()

	first := *pendingReservation()
	second := *pendingReservation()
	second.ID = "res-2"
	secondExpired := second
	secondExpired.Status = domain.ReservationStatusExpired

	deps.reservationRepo.On("ListExpired", mock.Anything, mock.Anything, 100).
		Return([]domain.Reservation{first, second}, nil)
	deps.reservationRepo.On("Expire", mock.Anything, "res-1").Return(nil, assert.AnError)
	deps.reservationRepo.On("Expire", mock.Anything, "res-2").Return(&secondExpired, nil)
	deps.publisher.On("PublishReservationExpired", mock.Anything, &secondExpired).Return(nil)
	deps.publisher.On("PublishReservationReleased", mock.Anything, &secondExpired).Return(nil)

	swept, err := svc.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, swept)
}

// --- Release / GetStock ---

func TestRelease_Success(t *testing.T) {
	svc, deps := newTestService()

	cancelled := pendingReservation()
	cancelled.Status = domain.ReservationStatusCancelled
	deps.reservationRepo.On("Cancel", mock.Anything, "res-1").Return(cancelled, nil)
	deps.publisher.On("PublishReservationReleased", mock.Anything, cancelled).Return(nil)

	result, err := svc.Release(context.Background(), "res-1")
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, result.Status)
}

func TestRelease_AlreadyTerminal(t *testing.T) {
	svc, deps := newTestService()

	deps.reservationRepo.On("Cancel", mock.Anything, "res-1").
		Return(nil, apperrors.AlreadyTerminal("reservation", "res-1", "confirmed"))

	_, err := svc.Release(context.Background(), "res-1")
	assert.ErrorIs(t, err, apperrors.ErrAlreadyTerminal)
}

func TestGetStock_NotFound(t *testing.T) {
	svc, deps := newTestService()

	deps.stockRepo.On("GetByProductID", mock.Anything, "prod-x").
		Return(nil, apperrors.NotFound("stock", "prod-x"))

	_, err := svc.GetStock(context.Background(), "prod-x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}
