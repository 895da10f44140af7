package client

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/utafrali/FulfillmentGo/pkg/httpclient"
)

// CartClient talks to the cart service over HTTP through the circuit
// breaker. Cart cleanup is best-effort; a stale cart is an annoyance, not a
// consistency problem.
type CartClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	logger  *slog.Logger
}

// NewCartClient creates a cart service client.
func NewCartClient(baseURL string, http *httpclient.CircuitBreakerClient, logger *slog.Logger) *CartClient {
	return &CartClient{
		http:    http,
		baseURL: baseURL,
		logger:  logger,
	}
}

// Clear empties the user's cart after a successful order.
func (c *CartClient) Clear(ctx context.Context, userID string) error {
	url := fmt.Sprintf("%s/api/v1/carts/%s/clear", c.baseURL, userID)
	resp, err := c.http.Post(ctx, url, "application/json", http.NoBody)
	if err != nil {
		return fmt.Errorf("cart clear request: %w", err)
	}
	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusNoContent {
		return httpclient.ParseResponseError(resp, "cart-service")
	}
	drainBody(resp)
	return nil
}
