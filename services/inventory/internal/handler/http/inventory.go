package http

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/utafrali/FulfillmentGo/pkg/httputil"
	"github.com/utafrali/FulfillmentGo/pkg/pagination"
	"github.com/utafrali/FulfillmentGo/pkg/validator"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/domain"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/service"
)

// InventoryHandler handles HTTP requests for stock and reservation endpoints.
type InventoryHandler struct {
	service *service.InventoryService
	logger  *slog.Logger
}

// NewInventoryHandler creates a new inventory HTTP handler.
func NewInventoryHandler(svc *service.InventoryService, logger *slog.Logger) *InventoryHandler {
	return &InventoryHandler{
		service: svc,
		logger:  logger,
	}
}

// --- Request DTOs ---

// CreateStockRequest is the JSON request body for seeding a ledger row.
type CreateStockRequest struct {
	ProductID    string `json:"product_id" validate:"required"`
	SKU          string `json:"sku" validate:"required"`
	OnHand       int    `json:"on_hand" validate:"gte=0"`
	ReorderLevel int    `json:"reorder_level" validate:"omitempty,gte=0"`
}

// AdjustStockRequest is the JSON request body for adjusting on-hand stock.
type AdjustStockRequest struct {
	Delta  int    `json:"delta" validate:"required"`
	Reason string `json:"reason" validate:"required,oneof=restock correction damage order"`
	Actor  string `json:"actor" validate:"omitempty,max=128"`
}

// RestockRequest is the JSON request body for receiving a shipment.
type RestockRequest struct {
	Quantity int    `json:"quantity" validate:"required,gte=1"`
	Actor    string `json:"actor" validate:"omitempty,max=128"`
}

// ReserveItemRequest is one line of a reservation request.
type ReserveItemRequest struct {
	ProductID string `json:"product_id" validate:"required"`
	Quantity  int    `json:"quantity" validate:"required,gte=1"`
}

// ReserveStockRequest is the JSON request body for placing holds.
type ReserveStockRequest struct {
	OrderID    string               `json:"order_id" validate:"required,uuid"`
	CustomerID string               `json:"customer_id" validate:"omitempty,uuid"`
	Items      []ReserveItemRequest `json:"items" validate:"required,min=1,dive"`
	TTLSeconds int                  `json:"ttl_seconds" validate:"omitempty,gte=1"`
}

// --- Stock handlers ---

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

// CreateStock handles POST /api/v1/stock
func (h *InventoryHandler) CreateStock(w http.ResponseWriter, r *http.Request) {
	var req CreateStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	stock := &domain.StockItem{
		ProductID:    req.ProductID,
		SKU:          req.SKU,
		OnHand:       req.OnHand,
		ReorderLevel: req.ReorderLevel,
	}

	result, err := h.service.CreateStock(r.Context(), stock)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: stockView(result)})
}

// GetStock handles GET /api/v1/stock/{productID}
func (h *InventoryHandler) GetStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	stock, err := h.service.GetStock(r.Context(), productID)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stockView(stock)})
}

// AdjustStock handles POST /api/v1/stock/{productID}/adjust
func (h *InventoryHandler) AdjustStock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var req AdjustStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	stock, err := h.service.AdjustStock(r.Context(), productID, req.Delta, req.Reason, req.Actor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stockView(stock)})
}

// Restock handles POST /api/v1/stock/{productID}/restock
func (h *InventoryHandler) Restock(w http.ResponseWriter, r *http.Request) {
	productID := chi.URLParam(r, "productID")

	var req RestockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	stock, err := h.service.AddStock(r.Context(), productID, req.Quantity, req.Actor)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: stockView(stock)})
}

// ListLowStock handles GET /api/v1/stock/low-stock
func (h *InventoryHandler) ListLowStock(w http.ResponseWriter, r *http.Request) {
	params := pagination.FromRequest(r)

	items, total, err := h.service.ListLowStock(r.Context(), params.PerPage, params.Offset)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	views := make([]StockView, 0, len(items))
	for i := range items {
		views = append(views, stockView(&items[i]))
	}

	httputil.WriteJSON(w, http.StatusOK, pagination.NewResult(views, total, params))
}

// --- Reservation handlers ---

// ReserveStock handles POST /api/v1/reservations
func (h *InventoryHandler) ReserveStock(w http.ResponseWriter, r *http.Request) {
	var req ReserveStockRequest
	if !decodeBody(w, r, &req) {
		return
	}
	if err := validator.Validate(req); err != nil {
		httputil.WriteValidationError(w, err)
		return
	}

	items := make([]domain.ReservationRequest, len(req.Items))
	for i, item := range req.Items {
		items[i] = domain.ReservationRequest{
			ProductID: item.ProductID,
			Quantity:  item.Quantity,
		}
	}

	ttl := time.Duration(req.TTLSeconds) * time.Second
	reservations, err := h.service.Reserve(r.Context(), req.OrderID, req.CustomerID, items, ttl)
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusCreated, httputil.Response{Data: map[string]any{
		"order_id":     req.OrderID,
		"reservations": reservations,
	}})
}

// GetReservation handles GET /api/v1/reservations/{reservationID}
func (h *InventoryHandler) GetReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := httputil.ParseUUID(w, chi.URLParam(r, "reservationID"))
	if !ok {
		return
	}

	reservation, err := h.service.GetReservation(r.Context(), reservationID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservation})
}

// ReleaseReservation handles DELETE /api/v1/reservations/{reservationID}
func (h *InventoryHandler) ReleaseReservation(w http.ResponseWriter, r *http.Request) {
	reservationID, ok := httputil.ParseUUID(w, chi.URLParam(r, "reservationID"))
	if !ok {
		return
	}

	reservation, err := h.service.Release(r.Context(), reservationID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservation})
}

// ListOrderReservations handles GET /api/v1/orders/{orderID}/reservations
func (h *InventoryHandler) ListOrderReservations(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	reservations, err := h.service.ListReservationsByOrder(r.Context(), orderID.String())
	if err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: reservations})
}

// ConfirmOrderReservations handles POST /api/v1/orders/{orderID}/confirm
func (h *InventoryHandler) ConfirmOrderReservations(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	if err := h.service.ConfirmByOrder(r.Context(), orderID.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"order_id": orderID.String(),
		"status":   "confirmed",
	}})
}

// ReleaseOrderReservations handles POST /api/v1/orders/{orderID}/release
func (h *InventoryHandler) ReleaseOrderReservations(w http.ResponseWriter, r *http.Request) {
	orderID, ok := httputil.ParseUUID(w, chi.URLParam(r, "orderID"))
	if !ok {
		return
	}

	if err := h.service.ReleaseByOrder(r.Context(), orderID.String()); err != nil {
		httputil.WriteError(w, r, err, h.logger)
		return
	}

	httputil.WriteJSON(w, http.StatusOK, httputil.Response{Data: map[string]string{
		"order_id": orderID.String(),
		"status":   "released",
	}})
}

// --- Views ---

// StockView is the API representation of a ledger row with its derived
// fields included.
type StockView struct {
	ID           string    `json:"id"`
	ProductID    string    `json:"product_id"`
	SKU          string    `json:"sku"`
	OnHand       int       `json:"on_hand"`
	Reserved     int       `json:"reserved"`
	Available    int       `json:"available"`
	ReorderLevel int       `json:"reorder_level"`
	Status       string    `json:"status"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func stockView(s *domain.StockItem) StockView {
	return StockView{
		ID:           s.ID,
		ProductID:    s.ProductID,
		SKU:          s.SKU,
		OnHand:       s.OnHand,
		Reserved:     s.Reserved,
		Available:    s.Available(),
		ReorderLevel: s.ReorderLevel,
		Status:       string(s.Status()),
		UpdatedAt:    s.UpdatedAt,
	}
}
