package postgres

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	pgxmock "github.com/pashagolub/pgxmock/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupStockRepo(t *testing.T) (*StockRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewStockRepo(mock)
	return repo, mock
}

var stockCols = []string{
	"id", "product_id", "sku", "on_hand", "reserved", "reorder_level", "updated_at",
}

func sampleStock() domain.StockItem {
	return domain.StockItem{
		ID:           "stock-1",
		ProductID:    "prod-1",
		SKU:          "SKU-001",
		OnHand:       100,
		Reserved:     10,
		ReorderLevel: 5,
		UpdatedAt:    time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
}

func stockRow(s domain.StockItem) *pgxmock.Rows {
	return pgxmock.NewRows(stockCols).
		AddRow(s.ID, s.ProductID, s.SKU, s.OnHand, s.Reserved, s.ReorderLevel, s.UpdatedAt)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestStockRepo_Create_Success(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	mock.ExpectQuery("INSERT INTO stock").
		WithArgs(s.ID, s.ProductID, s.SKU, s.OnHand, s.Reserved, s.ReorderLevel, s.UpdatedAt).
		WillReturnRows(stockRow(s))

	result, err := repo.Create(context.Background(), &s)
	require.NoError(t, err)
	assert.Equal(t, s.ID, result.ID)
	assert.Equal(t, s.ProductID, result.ProductID)
	assert.Equal(t, s.OnHand, result.OnHand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_Create_DuplicateProduct(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	mock.ExpectQuery("INSERT INTO stock").
		WithArgs(s.ID, s.ProductID, s.SKU, s.OnHand, s.Reserved, s.ReorderLevel, s.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})

	result, err := repo.Create(context.Background(), &s)
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByProductID
// ---------------------------------------------------------------------------

func TestStockRepo_GetByProductID_Success(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	mock.ExpectQuery("SELECT .+ FROM stock WHERE product_id").
		WithArgs(s.ProductID).
		WillReturnRows(stockRow(s))

	result, err := repo.GetByProductID(context.Background(), s.ProductID)
	require.NoError(t, err)
	assert.Equal(t, s.ID, result.ID)
	assert.Equal(t, s.Reserved, result.Reserved)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_GetByProductID_NotFound(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM stock WHERE product_id").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByProductID(context.Background(), "prod-x")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// ListLowStock
// ---------------------------------------------------------------------------

func TestStockRepo_ListLowStock_Success(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	s.OnHand = 6
	s.Reserved = 2 // available 4, level 5

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(1))
	mock.ExpectQuery("SELECT .+ FROM stock WHERE on_hand - reserved").
		WithArgs(20, 0).
		WillReturnRows(stockRow(s))

	items, total, err := repo.ListLowStock(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, s.ProductID, items[0].ProductID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_ListLowStock_Empty(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT COUNT").
		WillReturnRows(pgxmock.NewRows([]string{"count"}).AddRow(0))
	mock.ExpectQuery("SELECT .+ FROM stock WHERE on_hand - reserved").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(stockCols))

	items, total, err := repo.ListLowStock(context.Background(), 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, []domain.StockItem{}, items)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// Adjust
// ---------------------------------------------------------------------------

func TestStockRepo_Adjust_Success(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	s.OnHand = 120
	adj := &domain.StockAdjustment{Reason: domain.AdjustmentReasonRestock, Actor: "ops"}

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT on_hand, reserved FROM stock").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"on_hand", "reserved"}).AddRow(100, 10))
	mock.ExpectQuery("UPDATE stock").
		WithArgs(120, "prod-1").
		WillReturnRows(stockRow(s))
	mock.ExpectExec("INSERT INTO stock_adjustments").
		WithArgs(pgxmock.AnyArg(), "prod-1", 20, adj.Reason, adj.Actor, adj.ReferenceID, pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	result, err := repo.Adjust(context.Background(), "prod-1", 20, adj)
	require.NoError(t, err)
	assert.Equal(t, 120, result.OnHand)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_Adjust_NotFound(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT on_hand, reserved FROM stock").
		WithArgs("prod-x").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	result, err := repo.Adjust(context.Background(), "prod-x", 5, &domain.StockAdjustment{Reason: domain.AdjustmentReasonRestock})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_Adjust_CannotDropBelowReserved(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT on_hand, reserved FROM stock").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"on_hand", "reserved"}).AddRow(10, 8))
	mock.ExpectRollback()

	// removing 5 would leave on_hand=5 below reserved=8
	result, err := repo.Adjust(context.Background(), "prod-1", -5, &domain.StockAdjustment{Reason: domain.AdjustmentReasonDamage})
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_Adjust_BeginError(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	mock.ExpectBegin().WillReturnError(errors.New("begin failed"))

	result, err := repo.Adjust(context.Background(), "prod-1", 5, &domain.StockAdjustment{Reason: domain.AdjustmentReasonRestock})
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "begin adjust transaction")
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestStockRepo_Adjust_AuditInsertError(t *testing.T) {
	repo, mock := setupStockRepo(t)
	defer mock.Close()

	s := sampleStock()
	s.OnHand = 105

	mock.ExpectBegin()
	mock.ExpectQuery("SELECT on_hand, reserved FROM stock").
		WithArgs("prod-1").
		WillReturnRows(pgxmock.NewRows([]string{"on_hand", "reserved"}).AddRow(100, 10))
	mock.ExpectQuery("UPDATE stock").
		WithArgs(105, "prod-1").
		WillReturnRows(stockRow(s))
	mock.ExpectExec("INSERT INTO stock_adjustments").
		WithArgs(pgxmock.AnyArg(), "prod-1", 5, domain.AdjustmentReasonRestock, "", "", pgxmock.AnyArg()).
		WillReturnError(errors.New("audit insert failed"))
	mock.ExpectRollback()

	result, err := repo.Adjust(context.Background(), "prod-1", 5, &domain.StockAdjustment{Reason: domain.AdjustmentReasonRestock})
	assert.Nil(t, result)
	assert.Error(t, err)
	assert.Contains(t, err.Error(), "insert stock adjustment")
	assert.NoError(t, mock.ExpectationsWereMet())
}
