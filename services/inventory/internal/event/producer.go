package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/FulfillmentGo/pkg/kafka"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
)

// Kafka topics for inventory domain events.
const (
	TopicStockCreated        = "fulfillment.inventory.created"
	TopicStockUpdated        = "fulfillment.inventory.updated"
	TopicStockAdjusted       = "fulfillment.inventory.adjusted"
	TopicStockLowStock       = "fulfillment.inventory.low_stock"
	TopicStockReserved       = "fulfillment.inventory.reserved"
	TopicReservationReleased = "fulfillment.inventory.reservation_released"
	TopicReservationExpired  = "fulfillment.reservation.expired"
)

// Aggregate type constant.
const AggregateTypeStock = "stock"

// Source identifier for events originating from the inventory service.
const SourceInventoryService = "inventory-service"

// StockData is the payload for inventory.created and inventory.updated events.
type StockData struct {
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	OnHand    int    `json:"on_hand"`
	Reserved  int    `json:"reserved"`
	Available int    `json:"available"`
	Status    string `json:"status"`
}

// StockAdjustedData is the payload for an inventory.adjusted event.
type StockAdjustedData struct {
	ProductID string `json:"product_id"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason"`
	OnHand    int    `json:"on_hand"`
	Available int    `json:"available"`
}

// LowStockData is the payload for an inventory.low_stock event.
type LowStockData struct {
	ProductID    string `json:"product_id"`
	SKU          string `json:"sku"`
	Available    int    `json:"available"`
	ReorderLevel int    `json:"reorder_level"`
}

// StockReservedData is the payload for an inventory.reserved event.
type StockReservedData struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	ExpiresAt     string `json:"expires_at"`
}

// ReservationReleasedData is the payload for an
// inventory.reservation_released event.
type ReservationReleasedData struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
	Status        string `json:"status"`
}

// ReservationExpiredData is the payload for a reservation.expired event. The
// order service consumes it to fail orders whose holds lapsed.
type ReservationExpiredData struct {
	ReservationID string `json:"reservation_id"`
	OrderID       string `json:"order_id"`
	ProductID     string `json:"product_id"`
	Quantity      int    `json:"quantity"`
}

// Producer publishes inventory domain events to Kafka.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the inventory service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publishStock(ctx context.Context, topic string, stock *domain.StockItem) error {
	data := StockData{
		ProductID: stock.ProductID,
		SKU:       stock.SKU,
		OnHand:    stock.OnHand,
		Reserved:  stock.Reserved,
		Available: stock.Available(),
		Status:    string(stock.Status()),
	}

	event, err := pkgkafka.NewEvent(topic, stock.ProductID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}
	return nil
}

// PublishStockCreated publishes an inventory.created event.
func (p *Producer) PublishStockCreated(ctx context.Context, stock *domain.StockItem) error {
	return p.publishStock(ctx, TopicStockCreated, stock)
}

// PublishStockUpdated publishes an inventory.updated event.
func (p *Producer) PublishStockUpdated(ctx context.Context, stock *domain.StockItem) error {
	return p.publishStock(ctx, TopicStockUpdated, stock)
}

// PublishStockAdjusted publishes an inventory.adjusted event.
func (p *Producer) PublishStockAdjusted(ctx context.Context, stock *domain.StockItem, delta int, reason string) error {
	data := StockAdjustedData{
		ProductID: stock.ProductID,
		Delta:     delta,
		Reason:    reason,
		OnHand:    stock.OnHand,
		Available: stock.Available(),
	}

	event, err := pkgkafka.NewEvent(TopicStockAdjusted, stock.ProductID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create inventory.adjusted event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicStockAdjusted, event); err != nil {
		return fmt.Errorf("publish inventory.adjusted event: %w", err)
	}

	p.logger.DebugContext(ctx, "published inventory.adjusted event",
		slog.String("product_id", stock.ProductID),
		slog.Int("delta", delta),
		slog.String("reason", reason),
	)

	return nil
}

// PublishLowStock publishes an inventory.low_stock event.
func (p *Producer) PublishLowStock(ctx context.Context, stock *domain.StockItem) error {
	data := LowStockData{
		ProductID:    stock.ProductID,
		SKU:          stock.SKU,
		Available:    stock.Available(),
		ReorderLevel: stock.ReorderLevel,
	}

	event, err := pkgkafka.NewEvent(TopicStockLowStock, stock.ProductID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create inventory.low_stock event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicStockLowStock, event); err != nil {
		return fmt.Errorf("publish inventory.low_stock event: %w", err)
	}

	p.logger.DebugContext(ctx, "published inventory.low_stock event",
		slog.String("product_id", stock.ProductID),
		slog.Int("available", stock.Available()),
	)

	return nil
}

// PublishStockReserved publishes an inventory.reserved event.
func (p *Producer) PublishStockReserved(ctx context.Context, reservation *domain.Reservation) error {
	data := StockReservedData{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		ProductID:     reservation.ProductID,
		Quantity:      reservation.Quantity,
		ExpiresAt:     reservation.ExpiresAt.UTC().Format("2006-01-02T15:04:05Z07:00"),
	}

	event, err := pkgkafka.NewEvent(TopicStockReserved, reservation.OrderID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create inventory.reserved event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicStockReserved, event); err != nil {
		return fmt.Errorf("publish inventory.reserved event: %w", err)
	}

	p.logger.DebugContext(ctx, "published inventory.reserved event",
		slog.String("reservation_id", reservation.ID),
		slog.String("order_id", reservation.OrderID),
	)

	return nil
}

// PublishReservationReleased publishes an inventory.reservation_released
// event for a cancelled or expired hold.
func (p *Producer) PublishReservationReleased(ctx context.Context, reservation *domain.Reservation) error {
	data := ReservationReleasedData{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		ProductID:     reservation.ProductID,
		Quantity:      reservation.Quantity,
		Status:        string(reservation.Status),
	}

	event, err := pkgkafka.NewEvent(TopicReservationReleased, reservation.OrderID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create inventory.reservation_released event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicReservationReleased, event); err != nil {
		return fmt.Errorf("publish inventory.reservation_released event: %w", err)
	}

	p.logger.DebugContext(ctx, "published inventory.reservation_released event",
		slog.String("reservation_id", reservation.ID),
		slog.String("status", string(reservation.Status)),
	)

	return nil
}

// PublishReservationExpired publishes a reservation.expired event, keyed by
// order ID so the order service sees expiries for one order in sequence.
func (p *Producer) PublishReservationExpired(ctx context.Context, reservation *domain.Reservation) error {
	data := ReservationExpiredData{
		ReservationID: reservation.ID,
		OrderID:       reservation.OrderID,
		ProductID:     reservation.ProductID,
		Quantity:      reservation.Quantity,
	}

	event, err := pkgkafka.NewEvent(TopicReservationExpired, reservation.OrderID, AggregateTypeStock, SourceInventoryService, data)
	if err != nil {
		return fmt.Errorf("create reservation.expired event: %w", err)
	}
	if err := p.kafka.Publish(ctx, TopicReservationExpired, event); err != nil {
		return fmt.Errorf("publish reservation.expired event: %w", err)
	}

	p.logger.InfoContext(ctx, "published reservation.expired event",
		slog.String("reservation_id", reservation.ID),
		slog.String("order_id", reservation.OrderID),
	)

	return nil
}
