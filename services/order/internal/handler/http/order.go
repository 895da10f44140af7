package http

import (
	"encoding/json"
	"net/http"
	"time"

	"log/slog"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/FulfillmentGo/pkg/httputil"
	"github.com/utafrali/FulfillmentGo/pkg/pagination"
	"github.com/utafrali/FulfillmentGo/pkg/validator"
	"github.com/utafrali/FulfillmentGo/services/order/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/order/internal/repository"
	"github.com/utafrali/FulfillmentGo/services/order/internal/service"
)

// OrderHandler handles HTTP requests for order endpoints.
type OrderHandler struct {
	service *service.OrderService
	logger  *slog.Logger
}

// NewOrderHandler creates a new order HTTP handler.
func NewOrderHandler(svc *service.OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateOrderItemRequest is one line of an order placement request.
type CreateOrderItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	SKU       string `json:"sku" validate:"omitempty,max=64"`
	Name      string `json:"name" validate:"required,max=256"`
	UnitPrice int64  `json:"unit_price" validate:"gte=0"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// CreateOrderRequest is the JSON request body for placing an order. OrderID is
// the client's idempotency key; retries with the same ID return the stored
// outcome.
type CreateOrderRequest struct {
	OrderID       string                   `json:"order_id" validate:"omitempty,uuid"`
	UserID        string                   `json:"user_id" validate:"required,uuid"`
	Currency      string                   `json:"currency" validate:"required,len=3"`
	PaymentMethod string                   `json:"payment_method" validate:"required,max=64"`
	Items         []CreateOrderItemRequest `json:"items" validate:"required,min=1,dive"`
}

// UpdateStatusRequest is the JSON request body for moving an order forward
// through fulfillment. Cancellation has its own endpoint.
type UpdateStatusRequest struct {
	Status string `json:"status" validate:"required,oneof=processing shipped delivered"`
	Actor  string `json:"actor" validate:"omitempty,max=128"`
	Reason string `json:"reason" validate:"omitempty,max=512"`
}

// CancelOrderRequest is the JSON request body for cancelling an order.
type CancelOrderRequest struct {
	Reason string `json:"reason" validate:"omitempty,max=512"`
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, 1<<20)
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
			Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "invalid request body: " + err.Error()},
		})
		return false
	}
	return true
}

// --- Handlers ---

// CreateOrder handles POST /api/v1/orders
func (h *OrderHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	items := make([]service.PlaceOrderItemInput, len(req.Items))
	for i, item := range req.Items {
		items[i] = service.PlaceOrderItemInput{
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
		}
	}

	order, err := h.service.PlaceOrder(r.Context(), service.PlaceOrderInput{
		OrderID:       req.OrderID,
		UserID:        req.UserID,
		Currency:      req.Currency,
		PaymentMethod: req.PaymentMethod,
		Items:         items,
	})
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	// The order always exists at this point; a failed payment is reported
	// through the status code so clients need not inspect the body.
	status := http.StatusCreated
	if order.Status == domain.OrderStatusPaymentFailed {
		status = http.StatusPaymentRequired
	}
	httputil.WriteJSON(w, status, httputil.Response{Data: orderView(order)})
}

// GetOrder handles GET /api/v1/orders/{orderID}
func (h *OrderHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	order, err := h.service.GetOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: orderView(order)})
}

// ListOrders handles GET /api/v1/orders
func (h *OrderHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	filter := repository.OrderFilter{Page: params.Page, PerPage: params.PerPage}
	if userID := r.URL.Query().Get("user_id"); userID != "" {
		filter.UserID = &userID
	}
	if status := r.URL.Query().Get("status"); status != "" {
		if !domain.IsValidStatus(status) {
			httputil.WriteJSON(w, http.StatusBadRequest, httputil.Response{
				Error: &httputil.ErrorResponse{Code: "INVALID_INPUT", Message: "unknown status filter: " + status},
			})
			return
		}
		filter.Status = &status
	}

	orders, total, err := h.service.ListOrders(r.Context(), filter)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	views := make([]OrderView, 0, len(orders))
	for i := range orders {
		views = append(views, orderView(&orders[i]))
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(views, total, params))
}

// UpdateStatus handles POST /api/v1/orders/{orderID}/status
func (h *OrderHandler) UpdateStatus(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	var req UpdateStatusRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	actor := req.Actor
	if actor == "" {
		actor = service.ActorSystem
	}

	order, err := h.service.UpdateStatus(r.Context(), orderID.String(), req.Status, actor, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: orderView(order)})
}

// CancelOrder handles POST /api/v1/orders/{orderID}/cancel
func (h *OrderHandler) CancelOrder(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	var req CancelOrderRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	order, err := h.service.CancelOrder(r.Context(), orderID.String(), service.ActorCustomer, req.Reason)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: orderView(order)})
}

// --- Views ---

// OrderItemView is the API representation of an order line.
type OrderItemView struct {
	ID        string `json:"id"`
	ProductID string `json:"product_id"`
	SKU       string `json:"sku"`
	Name      string `json:"name"`
	UnitPrice int64  `json:"unit_price"`
	Quantity  int    `json:"quantity"`
	LineTotal int64  `json:"line_total"`
}

// StatusChangeView is the API representation of one status history entry.
type StatusChangeView struct {
	Status    string    `json:"status"`
	Actor     string    `json:"actor"`
	Reason    string    `json:"reason,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// OrderView is the API representation of an order. Amounts are in the
// currency's minor unit.
type OrderView struct {
	ID             string             `json:"id"`
	UserID         string             `json:"user_id"`
	Status         string             `json:"status"`
	Items          []OrderItemView    `json:"items,omitempty"`
	SubtotalAmount int64              `json:"subtotal_amount"`
	TotalAmount    int64              `json:"total_amount"`
	Currency       string             `json:"currency"`
	PaymentMethod  string             `json:"payment_method,omitempty"`
	PaymentTxID    string             `json:"payment_tx_id,omitempty"`
	FailureReason  string             `json:"failure_reason,omitempty"`
	StatusHistory  []StatusChangeView `json:"status_history,omitempty"`
	CreatedAt      time.Time          `json:"created_at"`
	UpdatedAt      time.Time          `json:"updated_at"`
}

func orderView(o *domain.Order) OrderView {
	items := make([]OrderItemView, len(o.Items))
	for i, item := range o.Items {
		items[i] = OrderItemView{
			ID:        item.ID,
			ProductID: item.ProductID,
			SKU:       item.SKU,
			Name:      item.Name,
			UnitPrice: item.UnitPrice,
			Quantity:  item.Quantity,
			LineTotal: item.LineTotal(),
		}
	}

	history := make([]StatusChangeView, len(o.StatusHistory))
	for i, change := range o.StatusHistory {
		history[i] = StatusChangeView{
			Status:    change.Status,
			Actor:     change.Actor,
			Reason:    change.Reason,
			CreatedAt: change.CreatedAt,
		}
	}

	return OrderView{
		ID:             o.ID,
		UserID:         o.UserID,
		Status:         o.Status,
		Items:          items,
		SubtotalAmount: o.SubtotalAmount,
		TotalAmount:    o.TotalAmount,
		Currency:       o.Currency,
		PaymentMethod:  o.PaymentMethod,
		PaymentTxID:    o.PaymentTxID,
		FailureReason:  o.FailureReason,
		StatusHistory:  history,
		CreatedAt:      o.CreatedAt,
		UpdatedAt:      o.UpdatedAt,
	}
}
