package postgres

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"

	"github.com/utafrali/FulfillmentGo/pkg/database"
	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// ReservationRepo persists stock holds. Every status change moves the
// matching ledger counters inside the same transaction.
type ReservationRepo struct {
	db database.DBTX
}

// NewReservationRepo creates a reservation repository backed by the given pool.
func NewReservationRepo(db database.DBTX) *ReservationRepo {
	return &ReservationRepo{db: db}
}

const reservationColumns = "id, order_id, product_id, customer_id, quantity, status, expires_at, created_at, updated_at"

func scanReservation(row pgx.Row) (*domain.Reservation, error) {
	var res domain.Reservation
	err := row.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.CustomerID, &res.Quantity,
		&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt)
	if err != nil {
		return nil, err
	}
	return &res, nil
}

func collectReservations(rows pgx.Rows) ([]domain.Reservation, error) {
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.CustomerID, &res.Quantity,
			&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, err
		}
		reservations = append(reservations, res)
	}
	return reservations, rows.Err()
}

// Reserve takes holds for every item of an order in one transaction. The
// order ID is the natural idempotency key: a retried reserve finds the
// order's active holds and returns them unchanged instead of doubling the
// reserved counters. Stock rows are locked in product order so concurrent
// reserves cannot deadlock.
func (r *ReservationRepo) Reserve(ctx context.Context, orderID, customerID string, items []domain.ReservationRequest, expiresAt time.Time) ([]domain.Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin reserve transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	existingQuery := `
		SELECT ` + reservationColumns + `
		FROM stock_reservations
		WHERE order_id = $1 AND status = $2
		ORDER BY created_at, id`

	rows, err := tx.Query(ctx, existingQuery, orderID, domain.ReservationStatusPending)
	if err != nil {
		return nil, fmt.Errorf("load existing holds: %w", err)
	}
	existing, err := collectReservations(rows)
	if err != nil {
		return nil, fmt.Errorf("scan existing holds: %w", err)
	}
	if len(existing) > 0 {
		if err := tx.Commit(ctx); err != nil {
			return nil, fmt.Errorf("commit reserve transaction: %w", err)
		}
		return existing, nil
	}

	lockQuery := `SELECT on_hand, reserved FROM stock WHERE product_id = $1 FOR UPDATE`
	bumpQuery := `UPDATE stock SET reserved = reserved + $1, updated_at = NOW() WHERE product_id = $2`
	insertQuery := `
		INSERT INTO stock_reservations (id, order_id, product_id, customer_id, quantity, status, expires_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)
		RETURNING ` + reservationColumns

	// Lock stock rows in ascending product order; two concurrent multi-item
	// reserves then acquire row locks in the same sequence and cannot wait
	// on each other in a cycle.
	sorted := make([]domain.ReservationRequest, len(items))
	copy(sorted, items)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].ProductID < sorted[j].ProductID })

	now := time.Now().UTC()
	reservations := make([]domain.Reservation, 0, len(sorted))

	for _, item := range sorted {
		var onHand, reserved int
		if err := tx.QueryRow(ctx, lockQuery, item.ProductID).Scan(&onHand, &reserved); err != nil {
			if errors.Is(err, pgx.ErrNoRows) {
				return nil, apperrors.NotFound("stock", item.ProductID)
			}
			return nil, fmt.Errorf("lock stock for reserve: %w", err)
		}

		available := onHand - reserved
		if item.Quantity > available {
			return nil, apperrors.InsufficientStock(item.ProductID, item.Quantity, available)
		}

		if _, err := tx.Exec(ctx, bumpQuery, item.Quantity, item.ProductID); err != nil {
			return nil, fmt.Errorf("increment reserved counter: %w", err)
		}

		res, err := scanReservation(tx.QueryRow(ctx, insertQuery,
			uuid.New().String(), orderID, item.ProductID, customerID, item.Quantity,
			domain.ReservationStatusPending, expiresAt, now, now,
		))
		if err != nil {
			var pgErr *pgconn.PgError
			if errors.As(err, &pgErr) && pgErr.Code == "23505" {
				// A concurrent reserve for the same order slipped in between
				// the existence check and this insert. The loser rolls back
				// and the caller retries against the winner's holds.
				return nil, apperrors.Conflict(fmt.Sprintf("order %s already holds stock for product %s", orderID, item.ProductID))
			}
			return nil, fmt.Errorf("insert reservation: %w", err)
		}
		reservations = append(reservations, *res)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit reserve transaction: %w", err)
	}

	return reservations, nil
}

// GetByID returns a single reservation.
func (r *ReservationRepo) GetByID(ctx context.Context, id string) (*domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1`

	ctx, end := database.TraceQuery(ctx, "GetReservation", query)
	res, err := scanReservation(r.db.QueryRow(ctx, query, id))
	end(err)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", id)
		}
		return nil, fmt.Errorf("get reservation: %w", err)
	}
	return res, nil
}

// ListByOrderID returns all reservations belonging to an order.
func (r *ReservationRepo) ListByOrderID(ctx context.Context, orderID string) ([]domain.Reservation, error) {
	query := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE order_id = $1 ORDER BY created_at`

	ctx, end := database.TraceQuery(ctx, "ListReservationsByOrder", query)
	rows, err := r.db.Query(ctx, query, orderID)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("list reservations: %w", err)
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.CustomerID, &res.Quantity,
			&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan reservation row: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate reservation rows: %w", err)
	}

	return reservations, nil
}

// Cancel releases a pending hold and restores the reserved counter.
func (r *ReservationRepo) Cancel(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.settle(ctx, id, domain.ReservationStatusCancelled)
}

// Expire marks a pending hold expired and restores the reserved counter.
func (r *ReservationRepo) Expire(ctx context.Context, id string) (*domain.Reservation, error) {
	return r.settle(ctx, id, domain.ReservationStatusExpired)
}

// settle moves a pending reservation to a released terminal state. The
// reservation row is locked first so a concurrent confirm, cancel, or sweep
// of the same hold settles exactly once.
func (r *ReservationRepo) settle(ctx context.Context, id string, to domain.ReservationStatus) (*domain.Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin settle transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(tx.QueryRow(ctx, lockQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", id)
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	if res.IsTerminal() {
		return nil, apperrors.AlreadyTerminal("reservation", id, string(res.Status))
	}

	releaseQuery := `UPDATE stock SET reserved = reserved - $1, updated_at = NOW() WHERE product_id = $2`
	if _, err := tx.Exec(ctx, releaseQuery, res.Quantity, res.ProductID); err != nil {
		return nil, fmt.Errorf("restore reserved counter: %w", err)
	}

	updateQuery := `
		UPDATE stock_reservations SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + reservationColumns

	updated, err := scanReservation(tx.QueryRow(ctx, updateQuery, to, id))
	if err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit settle transaction: %w", err)
	}

	return updated, nil
}

// Confirm finalizes a pending hold. On-hand and reserved both drop by the
// held quantity and an order-reason audit row records the deduction.
func (r *ReservationRepo) Confirm(ctx context.Context, id string) (*domain.Reservation, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("begin confirm transaction: %w", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	lockQuery := `SELECT ` + reservationColumns + ` FROM stock_reservations WHERE id = $1 FOR UPDATE`

	res, err := scanReservation(tx.QueryRow(ctx, lockQuery, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, apperrors.NotFound("reservation", id)
		}
		return nil, fmt.Errorf("lock reservation: %w", err)
	}
	if res.IsTerminal() {
		return nil, apperrors.AlreadyTerminal("reservation", id, string(res.Status))
	}

	deductQuery := `
		UPDATE stock SET on_hand = on_hand - $1, reserved = reserved - $1, updated_at = NOW()
		WHERE product_id = $2`
	if _, err := tx.Exec(ctx, deductQuery, res.Quantity, res.ProductID); err != nil {
		return nil, fmt.Errorf("deduct stock: %w", err)
	}

	auditQuery := `
		INSERT INTO stock_adjustments (id, product_id, delta, reason, actor, reference_id, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`
	_, err = tx.Exec(ctx, auditQuery,
		uuid.New().String(), res.ProductID, -res.Quantity, domain.AdjustmentReasonOrder, "", res.OrderID, time.Now().UTC(),
	)
	if err != nil {
		return nil, fmt.Errorf("insert deduction audit row: %w", err)
	}

	updateQuery := `
		UPDATE stock_reservations SET status = $1, updated_at = NOW()
		WHERE id = $2
		RETURNING ` + reservationColumns

	updated, err := scanReservation(tx.QueryRow(ctx, updateQuery, domain.ReservationStatusConfirmed, id))
	if err != nil {
		return nil, fmt.Errorf("update reservation status: %w", err)
	}

	if err := tx.Commit(ctx); err != nil {
		return nil, fmt.Errorf("commit confirm transaction: %w", err)
	}

	return updated, nil
}

// ListExpired returns pending reservations whose TTL elapsed before now,
// oldest first. The scan is bounded so the sweeper can page through a large
// backlog without holding long transactions.
func (r *ReservationRepo) ListExpired(ctx context.Context, now time.Time, limit int) ([]domain.Reservation, error) {
	query := `
		SELECT ` + reservationColumns + `
		FROM stock_reservations
		WHERE status = $1 AND expires_at < $2
		ORDER BY expires_at
		LIMIT $3`

	ctx, end := database.TraceQuery(ctx, "ListExpiredReservations", query)
	rows, err := r.db.Query(ctx, query, domain.ReservationStatusPending, now, limit)
	end(err)
	if err != nil {
		return nil, fmt.Errorf("list expired reservations: %w", err)
	}
	defer rows.Close()

	reservations := []domain.Reservation{}
	for rows.Next() {
		var res domain.Reservation
		if err := rows.Scan(&res.ID, &res.OrderID, &res.ProductID, &res.CustomerID, &res.Quantity,
			&res.Status, &res.ExpiresAt, &res.CreatedAt, &res.UpdatedAt); err != nil {
			return nil, fmt.Errorf("scan expired reservation row: %w", err)
		}
		reservations = append(reservations, res)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate expired reservation rows: %w", err)
	}

	return reservations, nil
}
