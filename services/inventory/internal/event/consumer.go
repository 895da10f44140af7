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

// Kafka topics consumed by the inventory service.
const (
	TopicOrderConfirmed = "fulfillment.order.confirmed"
	TopicOrderCancelled = "fulfillment.order.cancelled"
)

// InventoryService defines the interface required by the event consumer.
type InventoryService interface {
	ConfirmByOrder(ctx context.Context, orderID string) error
	ReleaseByOrder(ctx context.Context, orderID string) error
}

// OrderConfirmedData is the expected payload of an order.confirmed event.
type OrderConfirmedData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
}

// OrderCancelledData is the expected payload of an order.cancelled event.
type OrderCancelledData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

// Consumer processes incoming Kafka events for the inventory service.
type Consumer struct {
	logger  *slog.Logger
	service InventoryService
}

// NewConsumer creates a new event consumer for the inventory service.
func NewConsumer(service InventoryService, logger *slog.Logger) *Consumer {
	return &Consumer{
		service: service,
		logger:  logger,
	}
}

// HandleOrderConfirmed processes order.confirmed events by finalizing the
// order's holds. A redelivered event finds the holds already settled and
// succeeds without touching counters again.
func (c *Consumer) HandleOrderConfirmed(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderConfirmedData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.confirmed data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.confirmed event",
		slog.String("order_id", data.OrderID),
	)

	if err := c.service.ConfirmByOrder(ctx, data.OrderID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Nothing to confirm: the holds were never taken or already
			// swept. Consuming the event is the right outcome.
			c.logger.WarnContext(ctx, "no reservations found for confirmed order",
				slog.String("order_id", data.OrderID),
			)
			return nil
		}
		return fmt.Errorf("confirm reservations for order %s: %w", data.OrderID, err)
	}

	return nil
}

// HandleOrderCancelled processes order.cancelled events by releasing the
// order's remaining holds.
func (c *Consumer) HandleOrderCancelled(ctx context.Context, event *pkgkafka.Event) error {
	var data OrderCancelledData
	if err := json.Unmarshal(event.Data, &data); err != nil {
		return fmt.Errorf("unmarshal order.cancelled data: %w", err)
	}

	c.logger.InfoContext(ctx, "processing order.cancelled event",
		slog.String("order_id", data.OrderID),
		slog.String("reason", data.Reason),
	)

	if err := c.service.ReleaseByOrder(ctx, data.OrderID); err != nil {
		if errors.Is(err, apperrors.ErrNotFound) {
			// Orders cancelled before reservation, or whose holds were
			// already swept, have nothing to release.
			c.logger.WarnContext(ctx, "no reservations found for cancelled order",
				slog.String("order_id", data.OrderID),
			)
			return nil
		}
		return fmt.Errorf("release reservations for order %s: %w", data.OrderID, err)
	}

	return nil
}
