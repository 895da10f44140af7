package postgres

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/order/internal/repository"
)

const uniqueViolationCode = "23505"

// OrderRepo is the PostgreSQL order store.
type OrderRepo struct {
	db database.DBTX
}

// NewOrderRepo creates an order repository backed by the given pool.
func NewOrderRepo(db database.DBTX) *OrderRepo {
	return &OrderRepo{db: db}
}

const orderColumns = "id, user_id, status, subtotal_amount, total_amount, currency, payment_method, payment_tx_id, failure_reason, created_at, updated_at"

func scanOrder(row pgx.Row) (*domain.Order, error) {
	var o domain.Order
	err := row.Scan(
		&o.ID, &o.UserID, &o.Status, &o.SubtotalAmount, &o.TotalAmount, &o.Currency,
		&o.PaymentMethod, &o.PaymentTxID, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
	)
	if err != nil {
		return nil, err
	}
	return &o, nil
}

// Create inserts the order, its item snapshot, and any seeded status history
// rows in one transaction. A duplicate order ID maps to an already-exists
// error so the saga can replay idempotently.
func (r *OrderRepo) Create(ctx context.Context, o *domain.Order) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin create transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	orderQuery := `
		INSERT INTO orders (` + orderColumns + `)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`

	_, err = tx.Exec(ctx, orderQuery,
		o.ID, o.UserID, o.Status, o.SubtotalAmount, o.TotalAmount, o.Currency,
		o.PaymentMethod, o.PaymentTxID, o.FailureReason, o.CreatedAt, o.UpdatedAt,
	)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return apperrors.AlreadyExists("order", "id", o.ID)
		}
		return fmt.Errorf("insert order: %w", err)
	}

	itemQuery := `
		INSERT INTO order_items (id, order_id, product_id, sku, name, unit_price, quantity)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	for _, item := range o.Items {
		_, err = tx.Exec(ctx, itemQuery,
			item.ID, item.OrderID, item.ProductID, item.SKU, item.Name, item.UnitPrice, item.Quantity,
		)
		if err != nil {
			return fmt.Errorf("insert order item: %w", err)
		}
	}

	historyQuery := `
		INSERT INTO order_status_history (id, order_id, status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	for _, h := range o.StatusHistory {
		_, err = tx.Exec(ctx, historyQuery,
			h.ID, h.OrderID, h.Status, h.Actor, h.Reason, h.CreatedAt,
		)
		if err != nil {
			return fmt.Errorf("insert order status history: %w", err)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit create transaction: %w", err)
	}

	return nil
}

// GetByID retrieves an order with its items and full status history.
func (r *OrderRepo) GetByID(ctx context.Context, id string) (*domain.Order, error) {
	query := `SELECT ` + orderColumns + ` FROM orders WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetOrder", query)
	o, err := scanOrder(r.db.QueryRow(ctx, query, id))
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("order", id)
		}
		return nil, fmt.Errorf("get order: %w", err)
	}

	o.Items, err = r.loadItems(ctx, id)
	if err != nil {
		return nil, err
	}

	o.StatusHistory, err = r.loadHistory(ctx, id)
	if err != nil {
		return nil, err
	}

	return o, nil
}

// List returns orders matching the filter with the total count. Items are
// batch-loaded; status history is only loaded by GetByID.
func (r *OrderRepo) List(ctx context.Context, filter repository.OrderFilter) ([]domain.Order, int, error) {
	var (
		conditions []string
		args       []any
		argIndex   = 1
	)

	if filter.UserID != nil {
		conditions = append(conditions, fmt.Sprintf("user_id = $%d", argIndex))
		args = append(args, *filter.UserID)
		argIndex++
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", argIndex))
		args = append(args, *filter.Status)
		argIndex++
	}

	whereClause := ""
	if len(conditions) > 0 {
		whereClause = "WHERE " + strings.Join(conditions, " AND ")
	}

	// count(*) OVER() folds the total into the page query.
	query := fmt.Sprintf(`
		SELECT `+orderColumns+`,
			   count(*) OVER() AS total_count
		FROM orders
		%s
		ORDER BY created_at DESC
		LIMIT $%d OFFSET $%d`,
		whereClause, argIndex, argIndex+1,
	)

	limit := filter.PerPage
	if limit <= 0 {
		limit = 20
	}
	offset := 0
	if filter.Page > 1 {
		offset = (filter.Page - 1) * limit
	}
	args = append(args, limit, offset)

	ctx, end := database.TraceQuery(ctx, "ListOrders", query)
	rows, err := r.db.Query(ctx, query, args...)
	end(err)
	if err != nil {
		return nil, 0, fmt.Errorf("list orders: %w", err)
	}
	defer rows.Close()

	var totalCount int
	orders := []domain.Order{}

	for rows.Next() {
		var o domain.Order
		if err := rows.Scan(
			&o.ID, &o.UserID, &o.Status, &o.SubtotalAmount, &o.TotalAmount, &o.Currency,
			&o.PaymentMethod, &o.PaymentTxID, &o.FailureReason, &o.CreatedAt, &o.UpdatedAt,
			&totalCount,
		); err != nil {
			return nil, 0, fmt.Errorf("scan order row: %w", err)
		}
		orders = append(orders, o)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate order rows: %w", err)
	}

	// Batch-load items for the page in one query to avoid N+1.
	if len(orders) > 0 {
		orderIDs := make([]string, len(orders))
		for i := range orders {
			orderIDs[i] = orders[i].ID
		}

		itemsQuery := `
			SELECT id, order_id, product_id, sku, name, unit_price, quantity
			FROM order_items
			WHERE order_id = ANY($1)
			ORDER BY id`

		itemRows, err := r.db.Query(ctx, itemsQuery, orderIDs)
		if err != nil {
			return nil, 0, fmt.Errorf("batch load order items: %w", err)
		}
		defer itemRows.Close()

		itemsByOrderID := make(map[string][]domain.OrderItem, len(orders))
		for itemRows.Next() {
			var item domain.OrderItem
			if err := itemRows.Scan(
				&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.Name, &item.UnitPrice, &item.Quantity,
			); err != nil {
				return nil, 0, fmt.Errorf("scan order item: %w", err)
			}
			itemsByOrderID[item.OrderID] = append(itemsByOrderID[item.OrderID], item)
		}
		if err := itemRows.Err(); err != nil {
			return nil, 0, fmt.Errorf("iterate order item rows: %w", err)
		}

		for i := range orders {
			if items, ok := itemsByOrderID[orders[i].ID]; ok {
				orders[i].Items = items
			} else {
				orders[i].Items = []domain.OrderItem{}
			}
		}
	}

	return orders, totalCount, nil
}

// UpdateStatus applies a guarded status transition and appends the history
// row in the same transaction. A guard miss surfaces as a conflict so a saga
// step cannot overwrite a transition that happened concurrently.
func (r *OrderRepo) UpdateStatus(ctx context.Context, id string, upd repository.StatusUpdate) error {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return fmt.Errorf("begin status transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	query := `
		UPDATE orders
		SET status = $1,
			failure_reason = CASE WHEN $2 = '' THEN failure_reason ELSE $2 END,
			payment_tx_id = CASE WHEN $3 = '' THEN payment_tx_id ELSE $3 END,
			updated_at = $4
		WHERE id = $5`
	args := []any{upd.Status, upd.Reason, upd.PaymentTxID, time.Now().UTC(), id}

	if len(upd.ExpectedStatuses) > 0 {
		query += ` AND status = ANY($6)`
		args = append(args, upd.ExpectedStatuses)
	}

	ct, err := tx.Exec(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("update order status: %w", err)
	}

	if ct.RowsAffected() == 0 {
		var current string
		err := tx.QueryRow(ctx, `SELECT status FROM orders WHERE id = $1`, id).Scan(&current)
		if errors.Is(err, pgx.ErrNoRows) {
			return apperrors.NotFound("order", id)
		}
		if err != nil {
			return fmt.Errorf("check order status: %w", err)
		}
		return apperrors.Conflict(fmt.Sprintf("order %s is %s, cannot move to %s", id, current, upd.Status))
	}

	historyQuery := `
		INSERT INTO order_status_history (id, order_id, status, actor, reason, created_at)
		VALUES ($1, $2, $3, $4, $5, $6)`

	_, err = tx.Exec(ctx, historyQuery,
		uuid.New().String(), id, upd.Status, upd.Actor, upd.Reason, time.Now().UTC(),
	)
	if err != nil {
		return fmt.Errorf("insert order status history: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit status transaction: %w", err)
	}

	return nil
}

func (r *OrderRepo) loadItems(ctx context.Context, orderID string) ([]domain.OrderItem, error) {
	query := `
		SELECT id, order_id, product_id, sku, name, unit_price, quantity
		FROM order_items
		WHERE order_id = $1
		ORDER BY id`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order items: %w", err)
	}
	defer rows.Close()

	items := []domain.OrderItem{}
	for rows.Next() {
		var item domain.OrderItem
		if err := rows.Scan(
			&item.ID, &item.OrderID, &item.ProductID, &item.SKU, &item.Name, &item.UnitPrice, &item.Quantity,
		); err != nil {
			return nil, fmt.Errorf("scan order item: %w", err)
		}
		items = append(items, item)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order item rows: %w", err)
	}

	return items, nil
}

func (r *OrderRepo) loadHistory(ctx context.Context, orderID string) ([]domain.StatusChange, error) {
	query := `
		SELECT id, order_id, status, actor, reason, created_at
		FROM order_status_history
		WHERE order_id = $1
		ORDER BY created_at, id`

	rows, err := r.db.Query(ctx, query, orderID)
	if err != nil {
		return nil, fmt.Errorf("query order status history: %w", err)
	}
	defer rows.Close()

	history := []domain.StatusChange{}
	for rows.Next() {
		var h domain.StatusChange
		if err := rows.Scan(&h.ID, &h.OrderID, &h.Status, &h.Actor, &h.Reason, &h.CreatedAt); err != nil {
			return nil, fmt.Errorf("scan order status history row: %w", err)
		}
		history = append(history, h)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate order status history rows: %w", err)
	}

	return history, nil
}
