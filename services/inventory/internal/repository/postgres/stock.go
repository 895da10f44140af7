package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

const uniqueViolationCode = "23505"

// StockRepo is the PostgreSQL stock ledger.
type StockRepo struct {
	db database.DBTX
}

// NewStockRepo creates a stock repository backed by the given pool.
func NewStockRepo(db database.DBTX) *StockRepo {
	return &StockRepo{db: db}
}

const stockColumns = "id, product_id, sku, on_hand, reserved, reorder_level, updated_at"

func scanStock(row pgx.Row) (*domain.StockItem, error) {
	var s domain.StockItem
	err := row.Scan(&s.ID, &s.ProductID, &s.SKU, &s.OnHand, &s.Reserved, &s.ReorderLevel, &s.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &s, nil
}

// Create inserts a new ledger row.
func (r *StockRepo) Create(ctx context.Context, stock *domain.StockItem) (*domain.StockItem, error) {
	query := `
		INSERT INTO stock (id, product_id, sku, on_hand, reserved, reorder_level, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
		RETURNING ` + stockColumns

	ctx, end := database.TraceQuery(ctx, "CreateStock", query)
	created, err := scanStock(r.db.QueryRow(ctx, query,
		stock.ID, stock.ProductID, stock.SKU, stock.OnHand, stock.Reserved, stock.ReorderLevel, stock.UpdatedAt,
	))
	end(err)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == uniqueViolationCode {
			return nil, apperrors.AlreadyExists("stock", "product_id", stock.ProductID)
		}
		return nil, fmt.Errorf("insert stock: %w", err)
	}
	return created, nil
}

// GetByProductID returns the ledger row for a product.
func (r *StockRepo) GetByProductID(ctx context.Context, productID string) (*domain.StockItem, error) {
	query := `SELECT ` + stockColumns + ` FROM stock WHERE product_id = $1`

	ctx, end := database.TraceQuery(ctx, "GetStock", query)
	stock, err := scanStock(r.db.QueryRow(ctx, query, productID))
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock", productID)
		}
		return nil, fmt.Errorf("get stock: %w", err)
	}
	return stock, nil
}

// ListLowStock returns items at or below their reorder level.
func (r *StockRepo) ListLowStock(ctx context.Context, limit, offset int) ([]domain.StockItem, int, error) {
	countQuery := `SELECT COUNT(*) FROM stock WHERE on_hand - reserved <= reorder_level`

	var total int
	if err := r.db.QueryRow(ctx, countQuery).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count low stock: %w", err)
	}

	query := `
		SELECT ` + stockColumns + `
		FROM stock
		WHERE on_hand - reserved <= reorder_level
		ORDER BY on_hand - reserved ASC, product_id
		LIMIT $1 OFFSET $2`

	ctx, end := database.TraceQuery(ctx, "ListLowStock", query)
	rows, err := r.db.Query(ctx, query, limit, offset)
	end(err)
	if err != nil {
		return nil, 0, fmt.Errorf("list low stock: %w", err)
	}
	defer rows.Close()

	items := []domain.StockItem{}
	for rows.Next() {
		var s domain.StockItem
		if err := rows.Scan(&s.ID, &s.ProductID, &s.SKU, &s.OnHand, &s.Reserved, &s.ReorderLevel, &s.UpdatedAt); err != nil {
			return nil, 0, fmt.Errorf("scan low stock row: %w", err)
		}
		items = append(items, s)
	}
	if err := rows.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate low stock rows: %w", err)
	}

	return items, total, nil
}

// Adjust applies a signed on-hand delta under a row lock and records the
// audit entry in the same transaction. The resulting on-hand may not drop
// below the reserved counter: held stock cannot be adjusted away.
func (r *StockRepo) Adjust(ctx context.Context, productID string, delta int, adj *domain.StockAdjustment) (*domain.StockItem, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin adjust transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `SELECT on_hand, reserved FROM stock WHERE product_id = $1 FOR UPDATE`

	var onHand, reserved int
	if err := tx.QueryRow(ctx, lockQuery, productID).Scan(&onHand, &reserved); err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("stock", productID)
		}
		return nil, fmt.Errorf("lock stock for adjust: %w", err)
	}

	newOnHand := onHand + delta
	if newOnHand < reserved {
		return nil, apperrors.InsufficientStock(productID, -delta, onHand-reserved)
	}

	updateQuery := `
		UPDATE stock
		SET on_hand = $1, updated_at = NOW()
		WHERE product_id = $2
		RETURNING ` + stockColumns

	updated, err := scanStock(tx.QueryRow(ctx, updateQuery, newOnHand, productID))
	if err != nil {
		return nil, fmt.Errorf("apply stock adjustment: %w", err)
	}

	auditQuery := `
		INSERT INTO stock_adjustments (id, product_id, delta, reason, actor, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`

	_, err = tx.Exec(ctx, auditQuery,
		uuid.New().String(), productID, delta, adj.Reason, adj.Actor, adj.ReferenceID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert stock adjustment: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit adjust transaction: %w", err)
	}

	return updated, nil
}
