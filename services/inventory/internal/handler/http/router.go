package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/FulfillmentGo/pkg/health"
	"github.com/utafrali/FulfillmentGo/pkg/middleware"
	"github.com/utafrali/FulfillmentGo/services/inventory/internal/service"
)

// NewRouter creates a chi router with all inventory service routes registered.
func NewRouter(
	inventoryService *service.InventoryService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("inventory"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("inventory"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	handler := NewInventoryHandler(inventoryService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/stock", func(r chi.Router) {
			r.Post("/", handler.CreateStock)
			r.Get("/low-stock", handler.ListLowStock)
			r.Get("/{productID}", handler.GetStock)
			r.Post("/{productID}/adjust", handler.AdjustStock)
			r.Post("/{productID}/restock", handler.Restock)
		})

		r.Route("/reservations", func(r chi.Router) {
			r.Post("/", handler.ReserveStock)
			r.Get("/{reservationID}", handler.GetReservation)
			r.Delete("/{reservationID}", handler.ReleaseReservation)
			r.Post("/{reservationID}/release", handler.ReleaseReservation)
		})

		r.Route("/orders/{orderID}", func(r chi.Router) {
			r.Get("/reservations", handler.ListOrderReservations)
			r.Post("/confirm", handler.ConfirmOrderReservations)
			r.Post("/release", handler.ReleaseOrderReservations)
		})
	})

	return r
}
