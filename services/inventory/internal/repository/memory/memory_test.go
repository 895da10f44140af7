package memory

import (
	"context"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

func seedStock(t *testing.T, store *Store, productID string, onHand, reorderLevel int) {
	t.Helper()
	_, err := store.Create(context.Background(), &domain.StockItem{
		ID:           "stock-" + productID,
		ProductID:    productID,
		SKU:          "SKU-" + productID,
		OnHand:       onHand,
		ReorderLevel: reorderLevel,
		UpdatedAt:    time.Now().UTC(),
	})
	require.NoError(t, err)
}

func TestStore_CreateAndGet(t *testing.T) {
	store := NewStore()
	ctx := context.Background()

	seedStock(t, store, "prod-1", 10, 3)

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock.OnHand)
	assert.Equal(t, 0, stock.Reserved)

	_, err = store.Create(ctx, &domain.StockItem{ProductID: "prod-1"})
	assert.ErrorIs(t, err, apperrors.ErrAlreadyExists)

	_, err = store.GetByProductID(ctx, "prod-x")
	assert.ErrorIs(t, err, apperrors.ErrNotFound)
}

func TestStore_ReserveLifecycle(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)

	expiresAt := time.Now().UTC().Add(15 * time.Minute)
	reservations, err := store.Reserve(ctx, "order-1", "cust-1",
		[]domain.ReservationRequest{{ProductID: "prod-1", Quantity: 4}}, expiresAt)
	require.NoError(t, err)
	require.Len(t, reservations, 1)

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 4, stock.Reserved)
	assert.Equal(t, 6, stock.Available())

	confirmed, err := store.Confirm(ctx, reservations[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusConfirmed, confirmed.Status)

	stock, err = store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 6, stock.OnHand)
	assert.Equal(t, 0, stock.Reserved)

	// confirm wrote the deduction to the audit trail
	adjustments := store.Adjustments()
	require.Len(t, adjustments, 1)
	assert.Equal(t, -4, adjustments[0].Delta)
	assert.Equal(t, domain.AdjustmentReasonOrder, adjustments[0].Reason)
	assert.Equal(t, "order-1", adjustments[0].ReferenceID)

	// settling twice fails
	_, err = store.Confirm(ctx, reservations[0].ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyTerminal)
	_, err = store.Cancel(ctx, reservations[0].ID)
	assert.ErrorIs(t, err, apperrors.ErrAlreadyTerminal)
}

func TestStore_ReserveRetryDoesNotDoubleHolds(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)

	expiresAt := time.Now().UTC().Add(15 * time.Minute)
	items := []domain.ReservationRequest{{ProductID: "prod-1", Quantity: 3}}

	first, err := store.Reserve(ctx, "order-1", "cust-1", items, expiresAt)
	require.NoError(t, err)
	require.Len(t, first, 1)

	// A redelivered reserve for the same order returns the original hold.
	second, err := store.Reserve(ctx, "order-1", "cust-1", items, expiresAt)
	require.NoError(t, err)
	require.Len(t, second, 1)
	assert.Equal(t, first[0].ID, second[0].ID)

	held, err := store.ListByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Len(t, held, 1)

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 3, stock.Reserved)
}

func TestStore_CancelRestoresCounter(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)

	reservations, err := store.Reserve(ctx, "order-1", "cust-1",
		[]domain.ReservationRequest{{ProductID: "prod-1", Quantity: 4}}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	cancelled, err := store.Cancel(ctx, reservations[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusCancelled, cancelled.Status)

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 10, stock.OnHand)
	assert.Equal(t, 0, stock.Reserved)
}

func TestStore_ReserveAllOrNothing(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)
	seedStock(t, store, "prod-2", 2, 1)

	_, err := store.Reserve(ctx, "order-1", "cust-1", []domain.ReservationRequest{
		{ProductID: "prod-1", Quantity: 4},
		{ProductID: "prod-2", Quantity: 5}, // only 2 available
	}, time.Now().Add(time.Minute))
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	// the first line was not held
	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Reserved)

	held, err := store.ListByOrderID(ctx, "order-1")
	require.NoError(t, err)
	assert.Empty(t, held)
}

func TestStore_ConcurrentReservesNeverOversell(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	const onHand = 50
	seedStock(t, store, "prod-1", onHand, 3)

	const workers = 100
	var wg sync.WaitGroup
	succeeded := make(chan struct{}, workers)

	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			_, err := store.Reserve(ctx, fmt.Sprintf("order-%d", n), "cust-1",
				[]domain.ReservationRequest{{ProductID: "prod-1", Quantity: 1}},
				time.Now().Add(time.Minute))
			if err == nil {
				succeeded <- struct{}{}
			}
		}(i)
	}
	wg.Wait()
	close(succeeded)

	wins := 0
	for range succeeded {
		wins++
	}
	assert.Equal(t, onHand, wins, "exactly the available quantity should be reservable")

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, onHand, stock.Reserved)
	assert.Equal(t, 0, stock.Available())
}

func TestStore_ExpirySweep(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)

	past := time.Now().UTC().Add(-time.Minute)
	reservations, err := store.Reserve(ctx, "order-1", "cust-1",
		[]domain.ReservationRequest{{ProductID: "prod-1", Quantity: 4}}, past)
	require.NoError(t, err)

	expired, err := store.ListExpired(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	require.Len(t, expired, 1)
	assert.Equal(t, reservations[0].ID, expired[0].ID)

	settled, err := store.Expire(ctx, expired[0].ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ReservationStatusExpired, settled.Status)

	stock, err := store.GetByProductID(ctx, "prod-1")
	require.NoError(t, err)
	assert.Equal(t, 0, stock.Reserved)

	// second sweep finds nothing
	expired, err = store.ListExpired(ctx, time.Now().UTC(), 100)
	require.NoError(t, err)
	assert.Empty(t, expired)
}

func TestStore_AdjustBoundedByReserved(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 10, 3)

	_, err := store.Reserve(ctx, "order-1", "cust-1",
		[]domain.ReservationRequest{{ProductID: "prod-1", Quantity: 8}}, time.Now().Add(time.Minute))
	require.NoError(t, err)

	_, err = store.Adjust(ctx, "prod-1", -5, &domain.StockAdjustment{Reason: domain.AdjustmentReasonDamage})
	assert.ErrorIs(t, err, apperrors.ErrInsufficientStock)

	updated, err := store.Adjust(ctx, "prod-1", -2, &domain.StockAdjustment{Reason: domain.AdjustmentReasonDamage})
	require.NoError(t, err)
	assert.Equal(t, 8, updated.OnHand)
}

func TestStore_ListLowStock(t *testing.T) {
	store := NewStore()
	ctx := context.Background()
	seedStock(t, store, "prod-1", 2, 3)  // available 2 <= 3
	seedStock(t, store, "prod-2", 10, 3) // fine
	seedStock(t, store, "prod-3", 1, 3)  // available 1 <= 3

	items, total, err := store.ListLowStock(ctx, 20, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 2)
	assert.Equal(t, "prod-3", items[0].ProductID, "lowest availability first")
	assert.Equal(t, "prod-1", items[1].ProductID)

	items, total, err = store.ListLowStock(ctx, 1, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, items, 1)
	assert.Equal(t, "prod-1", items[0].ProductID)
}
