package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
	"github.com/utafrali/FulfillmentGo/pkg/httpclient"
)

// PaymentClient talks to the payment provider facade over HTTP through the
// circuit breaker. Every call runs under the client's own timeout so a slow
// gateway cannot hold the saga for the whole reservation TTL.
type PaymentClient struct {
	http    *httpclient.CircuitBreakerClient
	baseURL string
	timeout time.Duration
	logger  *slog.Logger
}

// NewPaymentClient creates a payment service client with a bounded per-call
// timeout.
func NewPaymentClient(baseURL string, http *httpclient.CircuitBreakerClient, timeout time.Duration, logger *slog.Logger) *PaymentClient {
	return &PaymentClient{
		http:    http,
		baseURL: baseURL,
		timeout: timeout,
		logger:  logger,
	}
}

type chargeRequest struct {
	OrderID  string `json:"order_id"`
	Amount   int64  `json:"amount"`
	Currency string `json:"currency"`
	Method   string `json:"method"`
}

type chargeResponse struct {
	Data struct {
		TransactionID string `json:"transaction_id"`
		Status        string `json:"status"`
	} `json:"data"`
}

// AuthorizeAndCapture charges the order total in one step and returns the
// provider transaction ID. Declines map to ErrPaymentDeclined and provider
// outages to ErrGatewayError, so the saga can tell a hard no from a retry
// that ran out.
func (c *PaymentClient) AuthorizeAndCapture(ctx context.Context, orderID string, amount int64, currency, method string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(chargeRequest{OrderID: orderID, Amount: amount, Currency: currency, Method: method})
	if err != nil {
		return "", fmt.Errorf("marshal charge request: %w", err)
	}

	// Transport failures, exhausted 5xx retries, and an open breaker all mean
	// the gateway could not give an answer, which is not a decline.
	resp, err := c.http.Post(ctx, c.baseURL+"/api/v1/payments", "application/json", bytes.NewReader(body))
	if err != nil {
		return "", apperrors.GatewayError(fmt.Sprintf("charge order %s: %v", orderID, err))
	}
	if resp.StatusCode != http.StatusCreated && resp.StatusCode != http.StatusOK {
		return "", httpclient.ParseResponseError(resp, "payment-service")
	}
	defer func() { _ = resp.Body.Close() }()

	var charge chargeResponse
	if err := json.NewDecoder(resp.Body).Decode(&charge); err != nil {
		return "", fmt.Errorf("decode charge response: %w", err)
	}
	if charge.Data.TransactionID == "" {
		return "", fmt.Errorf("payment-service returned no transaction id for order %s", orderID)
	}

	c.logger.InfoContext(ctx, "payment captured",
		slog.String("order_id", orderID),
		slog.String("transaction_id", charge.Data.TransactionID),
		slog.Int64("amount", amount),
	)
	return charge.Data.TransactionID, nil
}

type refundRequest struct {
	Amount int64 `json:"amount"`
}

// Refund returns a captured amount to the customer.
func (c *PaymentClient) Refund(ctx context.Context, transactionID string, amount int64) error {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	body, err := json.Marshal(refundRequest{Amount: amount})
	if err != nil {
		return fmt.Errorf("marshal refund request: %w", err)
	}

	url := fmt.Sprintf("%s/api/v1/payments/%s/refund", c.baseURL, transactionID)
	resp, err := c.http.Post(ctx, url, "application/json", bytes.NewReader(body))
	if err != nil {
		return apperrors.GatewayError(fmt.Sprintf("refund transaction %s: %v", transactionID, err))
	}
	if resp.StatusCode != http.StatusOK {
		return httpclient.ParseResponseError(resp, "payment-service")
	}
	drainBody(resp)

	c.logger.InfoContext(ctx, "payment refunded",
		slog.String("transaction_id", transactionID),
		slog.Int64("amount", amount),
	)
	return nil
}
