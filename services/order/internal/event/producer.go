package event

import (
	"context"
	"fmt"
	"log/slog"

	pkgkafka "github.com/utafrali/FulfillmentGo/pkg/kafka"
	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
)

// Kafka topics for order and payment domain events.
const (
	TopicOrderCreated       = "fulfillment.order.created"
	TopicOrderStatusChanged = "fulfillment.order.status_changed"
	TopicOrderConfirmed     = "fulfillment.order.confirmed"
	TopicOrderPaymentFailed = "fulfillment.order.payment_failed"
	TopicOrderCancelled     = "fulfillment.order.cancelled"
	TopicPaymentSucceeded   = "fulfillment.payment.successful"
	TopicPaymentFailed      = "fulfillment.payment.failed"
	TopicPaymentRefunded    = "fulfillment.payment.refunded"
)

// Aggregate type constant.
const AggregateTypeOrder = "order"

// Source identifier for events originating from the order service.
const SourceOrderService = "order-service"

// OrderItemData is the event payload for an order item.
type OrderItemData struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
}

// OrderCreatedData is the payload for an order.created event (full order
// snapshot).
type OrderCreatedData struct {
	ID             string          `json:"id"`
	UserID         string          `json:"user_id"`
	Status         string          `json:"status"`
	Items          []OrderItemData `json:"items"`
	SubtotalAmount int64           `json:"subtotal_amount"`
	TotalAmount    int64           `json:"total_amount"`
	Currency       string          `json:"currency"`
}

// OrderStatusChangedData is the payload for an order.status_changed event.
type OrderStatusChangedData struct {
	OrderID   string `json:"order_id"`
	OldStatus string `json:"old_status"`
	NewStatus string `json:"new_status"`
}

// OrderConfirmedData is the payload for an order.confirmed event. The
// inventory service consumes it to settle the order's holds.
type OrderConfirmedData struct {
	OrderID     string `json:"order_id"`
	CustomerID  string `json:"customer_id"`
	PaymentTxID string `json:"payment_tx_id"`
	TotalAmount int64  `json:"total_amount"`
	Currency    string `json:"currency"`
}

// OrderPaymentFailedData is the payload for an order.payment_failed event.
type OrderPaymentFailedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// OrderCancelledData is the payload for an order.cancelled event. The
// inventory service consumes it to release the order's remaining holds.
type OrderCancelledData struct {
	OrderID    string `json:"order_id"`
	CustomerID string `json:"customer_id"`
	Reason     string `json:"reason,omitempty"`
}

// PaymentData is the payload for payment.successful and payment.refunded
// events.
type PaymentData struct {
	OrderID       string `json:"order_id"`
	TransactionID string `json:"transaction_id"`
	Amount        int64  `json:"amount"`
	Currency      string `json:"currency"`
}

// PaymentFailedData is the payload for a payment.failed event.
type PaymentFailedData struct {
	OrderID string `json:"order_id"`
	Reason  string `json:"reason"`
}

// Producer publishes order domain events to Kafka. All events are keyed by
// order ID so consumers see one order's events in sequence.
type Producer struct {
	kafka  *pkgkafka.Producer
	logger *slog.Logger
}

// NewProducer creates a new event producer for the order service.
func NewProducer(kafka *pkgkafka.Producer, logger *slog.Logger) *Producer {
	return &Producer{
		kafka:  kafka,
		logger: logger,
	}
}

func (p *Producer) publish(ctx context.Context, topic, orderID string, data any) error {
	event, err := pkgkafka.NewEvent(topic, orderID, AggregateTypeOrder, SourceOrderService, data)
	if err != nil {
		return fmt.Errorf("create %s event: %w", topic, err)
	}
	if err := p.kafka.Publish(ctx, topic, event); err != nil {
		return fmt.Errorf("publish %s event: %w", topic, err)
	}

	p.logger.DebugContext(ctx, "published event",
		slog.String("topic", topic),
		slog.String("order_id", orderID),
	)
	return nil
}

// PublishOrderCreated publishes an order.created event with the full order
// snapshot.
func (p *Producer) PublishOrderCreated(ctx context.Context, order *domain.Order) error {
	items := make([]OrderItemData, len(order.Items))
	for i, item := range order.Items {
		items[i] = OrderItemData{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}

	return p.publish(ctx, TopicOrderCreated, order.ID, OrderCreatedData{
		ID:             order.ID,
		UserID:         order.UserID,
		Status:         order.Status,
		Items:          items,
		SubtotalAmount: order.SubtotalAmount,
		TotalAmount:    order.TotalAmount,
		Currency:       order.Currency,
	})
}

// PublishOrderStatusChanged publishes an order.status_changed event.
func (p *Producer) PublishOrderStatusChanged(ctx context.Context, orderID, oldStatus, newStatus string) error {
	return p.publish(ctx, TopicOrderStatusChanged, orderID, OrderStatusChangedData{
		OrderID:   orderID,
		OldStatus: oldStatus,
		NewStatus: newStatus,
	})
}

// PublishOrderConfirmed publishes an order.confirmed event.
func (p *Producer) PublishOrderConfirmed(ctx context.Context, order *domain.Order) error {
	return p.publish(ctx, TopicOrderConfirmed, order.ID, OrderConfirmedData{
		OrderID:     order.ID,
		CustomerID:  order.UserID,
		PaymentTxID: order.PaymentTxID,
		TotalAmount: order.TotalAmount,
		Currency:    order.Currency,
	})
}

// PublishOrderPaymentFailed publishes an order.payment_failed event.
func (p *Producer) PublishOrderPaymentFailed(ctx context.Context, orderID, reason string) error {
	return p.publish(ctx, TopicOrderPaymentFailed, orderID, OrderPaymentFailedData{
		OrderID: orderID,
		Reason:  reason,
	})
}

// PublishOrderCancelled publishes an order.cancelled event.
func (p *Producer) PublishOrderCancelled(ctx context.Context, orderID, customerID, reason string) error {
	return p.publish(ctx, TopicOrderCancelled, orderID, OrderCancelledData{
		OrderID:    orderID,
		CustomerID: customerID,
		Reason:     reason,
	})
}

// PublishPaymentSucceeded publishes a payment.successful event.
func (p *Producer) PublishPaymentSucceeded(ctx context.Context, orderID, transactionID string, amount int64, currency string) error {
	return p.publish(ctx, TopicPaymentSucceeded, orderID, PaymentData{
		OrderID:       orderID,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      currency,
	})
}

// PublishPaymentFailed publishes a payment.failed event.
func (p *Producer) PublishPaymentFailed(ctx context.Context, orderID, reason string) error {
	return p.publish(ctx, TopicPaymentFailed, orderID, PaymentFailedData{
		OrderID: orderID,
		Reason:  reason,
	})
}

// PublishPaymentRefunded publishes a payment.refunded event.
func (p *Producer) PublishPaymentRefunded(ctx context.Context, orderID, transactionID string, amount int64, currency string) error {
	return p.publish(ctx, TopicPaymentRefunded, orderID, PaymentData{
		OrderID:       orderID,
		TransactionID: transactionID,
		Amount:        amount,
		Currency:      currency,
	})
}
