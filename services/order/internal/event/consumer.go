package event

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	pkgkafka "github.com/utafrali/FulfillmentGo/pkg/kafka"
)

// Kafka topics consumed by the order service.
const TopicReservationExpired = "fulfillment.reservation.expired"

// OrderService defines the interface required by the event consumer.
type OrderService interface {
	FailForExpiredReservation(ctx context.Context, orderID, reason string) error
}

// ReservationExpiredData is the expected payload of a reservation.expired
// event.
type ReservationExpiredData struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
}

// Consumer processes incoming Kafka events for the order service.
type Consumer struct {
	logger  *slog.Logger
	service OrderService
}

// NewConsumer creates a new event consumer for the order service.
func NewConsumer(service OrderService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleReservationExpired processes reservation.expired events. An order
// still waiting on payment when its hold lapses moves to payment_failed; an
// order that already settled is left alone.
func (c *Consumer) HandleReservationExpired(ctx context.Context, event *pkgkafka.Event) error {
	var data ReservationExpiredData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal reservation.expired data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing reservation.expired event",
		slog.String("order_id", data.OrderID),
		slog.String("reservation_id", data.ReservationID),
	)

	if err := c.service.FailForExpiredReservation(ctx, data.OrderID, "reservation expired"); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// The hold belonged to an order this service never recorded, for
			// example a reservation placed directly against inventory.
			c.logger.WarnContext(ctx, "expired reservation for unknown order",
				slog.String("order_id", data.OrderID),
			)
			return nil
		}
		return fmt.Errorf("fail order %s for expired reservation: %w", data.OrderID, err)
	}

	return nil
}
