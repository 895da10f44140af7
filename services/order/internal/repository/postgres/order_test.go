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
	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/order/internal/repository"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

func setupOrderRepo(t *testing.T) (*OrderRepo, pgxmock.PgxPoolIface) {
	t.Helper()
	mock, err := database.NewMockPool()
	require.NoError(t, err)
	repo := NewOrderRepo(mock)
	return repo, mock
}

var orderCols = []string{
	"id", "user_id", "status", "subtotal_amount", "total_amount", "currency",
	"payment_method", "payment_tx_id", "failure_reason", "created_at", "updated_at",
}

var itemCols = []string{"id", "order_id", "product_id", "sku", "name", "unit_price", "quantity"}

var historyCols = []string{"id", "order_id", "status", "actor", "reason", "created_at"}

func sampleOrder() domain.Order {
	now := time.Date(2026, 2, 1, 12, 0, 0, 0, time.UTC)
	return domain.Order{
		ID:     "order-1",
		UserID: "user-1",
		Status: domain.OrderStatusPending,
		Items: []domain.OrderItem{
			{ID: "item-1", OrderID: "order-1", ProductID: "prod-1", SKU: "SKU-001", Name: "Widget", UnitPrice: 1999, Quantity: 2},
		},
		SubtotalAmount: 3998,
		TotalAmount:    3998,
		Currency:       "USD",
		PaymentMethod:  "card",
		StatusHistory: []domain.StatusChange{
			{ID: "hist-1", OrderID: "order-1", Status: domain.OrderStatusPending, Actor: "customer", CreatedAt: now},
		},
		CreatedAt: now,
		UpdatedAt: now,
	}
}

func orderRow(o domain.Order) *pgxmock.Rows {
	return pgxmock.NewRows(orderCols).AddRow(
		o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
		o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt,
	)
}

// ---------------------------------------------------------------------------
// Create
// ---------------------------------------------------------------------------

func TestOrderRepo_Create_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
			o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("item-1", o.ID, "prod-1", "SKU-001", "Widget", int64(1999), 2).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs("hist-1", o.ID, domain.OrderStatusPending, "customer", "", o.CreatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.Create(context.Background(), &o)
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Create_DuplicateID(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
			o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt).
		WillReturnError(&pgconn.PgError{Code: uniqueViolationCode})
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &o)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_Create_ItemInsertFails(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()

	mock.ExpectBegin()
	mock.ExpectExec("INSERT INTO orders").
		WithArgs(o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
			o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectExec("INSERT INTO order_items").
		WithArgs("item-1", o.ID, "prod-1", "SKU-001", "Widget", int64(1999), 2).
		WillReturnError(errors.New("connection reset"))
	mock.ExpectRollback()

	err := repo.Create(context.Background(), &o)
	assert.Error(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// GetByID
// ---------------------------------------------------------------------------

func TestOrderRepo_GetByID_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()
	now := o.CreatedAt

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs(o.ID).
		WillReturnRows(orderRow(o))
	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(itemCols).
			AddRow("item-1", o.ID, "prod-1", "SKU-001", "Widget", int64(1999), 2))
	mock.ExpectQuery("SELECT .+ FROM order_status_history").
		WithArgs(o.ID).
		WillReturnRows(pgxmock.NewRows(historyCols).
			AddRow("hist-1", o.ID, domain.OrderStatusPending, "customer", "", now))

	result, err := repo.GetByID(context.Background(), o.ID)
	require.NoError(t, err)
	assert.Equal(t, o.ID, result.ID)
	require.Len(t, result.Items, 1)
	assert.Equal(t, int64(1999), result.Items[0].UnitPrice)
	require.Len(t, result.StatusHistory, 1)
	assert.Equal(t, domain.OrderStatusPending, result.StatusHistory[0].Status)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_GetByID_NotFound(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectQuery("SELECT .+ FROM orders WHERE id").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)

	result, err := repo.GetByID(context.Background(), "missing")
	assert.Nil(t, result)
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// List
// ---------------------------------------------------------------------------

func TestOrderRepo_List_FilterByStatus(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	o := sampleOrder()
	status := domain.OrderStatusPending

	listCols := append(append([]string{}, orderCols...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(status, 20, 0).
		WillReturnRows(pgxmock.NewRows(listCols).AddRow(
			o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
			o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt, 1,
		))
	mock.ExpectQuery("SELECT .+ FROM order_items").
		WithArgs([]string{o.ID}).
		WillReturnRows(pgxmock.NewRows(itemCols).
			AddRow("item-1", o.ID, "prod-1", "SKU-001", "Widget", int64(1999), 2))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{Status: &status, Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, orders, 1)
	require.Len(t, orders[0].Items, 1)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_List_Empty(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	listCols := append(append([]string{}, orderCols...), "total_count")
	mock.ExpectQuery("SELECT .+ FROM orders").
		WithArgs(20, 0).
		WillReturnRows(pgxmock.NewRows(listCols))

	orders, total, err := repo.List(context.Background(), repository.OrderFilter{Page: 1, PerPage: 20})
	require.NoError(t, err)
	assert.Equal(t, 0, total)
	assert.Equal(t, []domain.Order{}, orders)
	assert.NoError(t, mock.ExpectationsWereMet())
}

// ---------------------------------------------------------------------------
// UpdateStatus
// ---------------------------------------------------------------------------

func TestOrderRepo_UpdateStatus_Success(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusPaymentPending, "", "", pgxmock.AnyArg(), "order-1").
		WillReturnResult(pgxmock.NewResult("UPDATE", 1))
	mock.ExpectExec("INSERT INTO order_status_history").
		WithArgs(pgxmock.AnyArg(), "order-1", domain.OrderStatusPaymentPending, "system", "", pgxmock.AnyArg()).
		WillReturnResult(pgxmock.NewResult("INSERT", 1))
	mock.ExpectCommit()

	err := repo.UpdateStatus(context.Background(), "order-1", repository.StatusUpdate{
		Status: domain.OrderStatusPaymentPending,
		Actor:  "system",
	})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_UpdateStatus_GuardMiss(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	expected := []string{domain.OrderStatusPaymentPending}

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusConfirmed, "", "tx-9", pgxmock.AnyArg(), "order-1", expected).
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("order-1").
		WillReturnRows(pgxmock.NewRows([]string{"status"}).AddRow(domain.OrderStatusPaymentFailed))
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), "order-1", repository.StatusUpdate{
		Status:           domain.OrderStatusConfirmed,
		PaymentTxID:      "tx-9",
		ExpectedStatuses: expected,
	})
	assert.ErrorIs(t, err, apperrors.ErrConflict)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestOrderRepo_UpdateStatus_NotFound(t *testing.T) {
	repo, mock := setupOrderRepo(t)
	defer mock.Close()

	mock.ExpectBegin()
	mock.ExpectExec("UPDATE orders").
		WithArgs(domain.OrderStatusCancelled, "changed my mind", "", pgxmock.AnyArg(), "missing").
		WillReturnResult(pgxmock.NewResult("UPDATE", 0))
	mock.ExpectQuery("SELECT status FROM orders").
		WithArgs("missing").
		WillReturnError(pgx.ErrNoRows)
	mock.ExpectRollback()

	err := repo.UpdateStatus(context.Background(), "missing", repository.StatusUpdate{
		Status: domain.OrderStatusCancelled,
		Reason: "changed my mind",
	})
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
	assert.NoError(t, mock.ExpectationsWereMet())
}
