package httpclient

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	apperrors "github.com/utafrali/FulfillmentGo/pkg/errors"
)

// DownstreamErrorResponse mirrors the httputil.ErrorResponse envelope returned
// by fulfillment services, used to parse structured error bodies from
// downstream HTTP calls.
type DownstreamErrorResponse struct {
	Error *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

// ParseResponseError reads the body of a non-2xx response and translates it
// into an AppError preserving the downstream code where possible. The body is
// fully consumed and closed.
func ParseResponseError(resp *http.Response, serviceName string) error {
	defer func() { _ = resp.Body.Close() }()

	bodyBytes, err := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	if err != nil {
		return fmt.Errorf("%s returned status %d (failed to read body: %w)", serviceName, resp.StatusCode, err)
	}

	var downstream DownstreamErrorResponse
	if json.Unmarshal(bodyBytes, &downstream) == nil && downstream.Error != nil {
		return mapDownstreamError(resp.StatusCode, downstream.Error.Code, downstream.Error.Message, serviceName)
	}

	return fmt.Errorf("%s returned status %d: %s", serviceName, resp.StatusCode, string(bodyBytes))
}

// mapDownstreamError translates a downstream status and error code into an
// AppError so callers can classify with errors.Is across service boundaries.
func mapDownstreamError(status int, code, message, serviceName string) error {
	qualifiedMsg := fmt.Sprintf("%s: %s", serviceName, message)

	// Domain codes carry more information than the bare status.
	switch code {
	case "INSUFFICIENT_STOCK":
		return &apperrors.AppError{
			Code: code, Message: qualifiedMsg,
			Status: status, Err: apperrors.ErrInsufficientStock,
		}
	case "OVER_RELEASE":
		return &apperrors.AppError{
			Code: code, Message: qualifiedMsg,
			Status: status, Err: apperrors.ErrOverRelease,
		}
	case "ALREADY_TERMINAL":
		return &apperrors.AppError{
			Code: code, Message: qualifiedMsg,
			Status: status, Err: apperrors.ErrAlreadyTerminal,
		}
	case "PAYMENT_DECLINED":
		return apperrors.PaymentDeclined(qualifiedMsg)
	case "GATEWAY_ERROR":
		return apperrors.GatewayError(qualifiedMsg)
	}

	switch {
	case status == http.StatusNotFound:
		return apperrors.NotFound(serviceName, message)
	case status == http.StatusBadRequest:
		return apperrors.InvalidInput(qualifiedMsg)
	case status == http.StatusConflict:
		return apperrors.Conflict(qualifiedMsg)
	case status == http.StatusUnprocessableEntity:
		return apperrors.PaymentDeclined(qualifiedMsg)
	case status == http.StatusBadGateway:
		return apperrors.GatewayError(qualifiedMsg)
	case status == http.StatusServiceUnavailable:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  http.StatusServiceUnavailable,
			Err:     apperrors.ErrServiceUnavail,
		}
	case status >= 500:
		return fmt.Errorf("%s server error (%d/%s): %s", serviceName, status, code, message)
	default:
		return &apperrors.AppError{
			Code:    code,
			Message: qualifiedMsg,
			Status:  status,
		}
	}
}

// IsClientError reports whether the status is a 4xx client error. Saga
// compensation treats client errors differently: the request itself was
// invalid, so retrying the step cannot help.
func IsClientError(status int) bool {
	return status >= 400 && status < 500
}
