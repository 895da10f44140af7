package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/utafrali/FulfillmentGo/pkg/httpclient"
)

// ReserveItem is one line of a reservation request sent to the inventory
// service.
type ReserveItem struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

// InventoryClient talks to the inventory service over HTTP through the
// circuit breaker.
type InventoryClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewInventoryClient creates an inventory service client.
func NewInventoryClient(baseURL string, http *httpclient.CircuitBreakerClient, logger *slog.Logger) *InventoryClient {
	return &InventoryClient{
		http:    http,
		baseURL: baseURL,
		logger:  logger,
	}
}

type stockView struct {
	Data struct {
		ProductID string `json:"product_id"`
		Available int    `json:"available"`
		Status    string `json:"status"`
	} `json:"data"`
}

// CheckAvailability returns the available (unreserved) quantity for a
// product. The reservation itself re-checks under a row lock; this is the
// cheap early rejection before any order row is written.
func (c *InventoryClient) CheckAvailability(ctx context.Context, productID string) (int, error) {
	resp, err := c.http.Get(ctx, fmt.Sprintf("%s/api/v1/stock/%s", c.baseURL, productID))
	if err != nil {
		return 0, fmt.Errorf("inventory availability request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		return 0, httpclient.ParseResponseError(resp, "inventory-service")
	}
	defer func() { _ = resp.Body.Close() }()

	var view stockView
	if err := json.NewDecoder(resp.Body).Decode(&view); err != nil {
		return 0, fmt.Errorf("decode stock response: %w", err)
	}
	return view.Data.Available, nil
}

type reserveRequest struct {
	OrderID    string        `json:"order_id"`
	CustomerID string        `json:"customer_id,omitempty"`
	Items      []ReserveItem `json:"items"`
}

// Reserve places an all-or-nothing hold on every line of the order. The
// inventory service either reserves every item or none.
func (c *InventoryClient) Reserve(ctx context.Context, orderID, customerID string, items []ReserveItem) error {
	body, err := json.Marshal(reserveRequest{OrderID: orderID, CustomerID: customerID, Items: items})
	if err != nil {
		return fmt.Errorf("marshal reserve request: %w", err)
	}

	resp, err := c.http.Post(ctx, c.baseURL+"/api/v1/reservations", "application/json", bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("inventory reserve request: %w", err)
	}
	if resp.StatusCode != http.StatusCreated {
		return httpclient.ParseResponseError(resp, "inventory-service")
	}
	drainBody(resp)

	c.logger.DebugContext(ctx, "stock reserved",
		slog.String("order_id", orderID),
		slog.Int("lines", len(items)),
	)
	return nil
}

// ConfirmOrder finalizes the order's holds, deducting stock.
func (c *InventoryClient) ConfirmOrder(ctx context.Context, orderID string) error {
	return c.postOrderAction(ctx, orderID, "confirm")
}

// ReleaseOrder releases the order's remaining active holds.
func (c *InventoryClient) ReleaseOrder(ctx context.Context, orderID string) error {
	return c.postOrderAction(ctx, orderID, "release")
}

func (c *InventoryClient) postOrderAction(ctx context.Context, orderID, action string) error {
	url := fmt.Sprintf("%s/api/v1/orders/%s/%s", c.baseURL, orderID, action)
	resp, err := c.http.Post(ctx, url, "application/json", http.NoBody)
	if err != nil {
		return fmt.Errorf("inventory %s request: %w", action, err)
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "inventory-service")
	}
	drainBody(resp)
	return nil
}

// drainBody consumes and closes a response body so the underlying connection
// can be reused.
func drainBody(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	_ = resp.Body.Close()
}
