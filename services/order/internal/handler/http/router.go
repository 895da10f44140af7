package http

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/utafrali/FulfillmentGo/pkg/health"
	"github.com/utafrali/FulfillmentGo/pkg/middleware"
	"github.com/utafrali/FulfillmentGo/services/order/internal/service"
)

// NewRouter creates a chi router with all order service routes registered.
func NewRouter(
	orderService *service.OrderService,
	healthHandler *health.Handler,
	logger *slog.Logger,
) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(middleware.Recovery(logger))
	r.Use(middleware.RequestLogging(logger))
	r.Use(middleware.Tracing("order"))
	r.Use(middleware.RequestLogger(logger))
	r.Use(middleware.PrometheusMetrics("order"))

	// Health check endpoints
	r.Get("/health/live", healthHandler.LivenessHandler())
	r.Get("/health/ready", healthHandler.ReadinessHandler())
	r.Get("/metrics", func(w http.ResponseWriter, r *http.Request) {
		promhttp.Handler().ServeHTTP(w, r)
	})

	handler := NewOrderHandler(orderService, logger)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(ContentTypeJSON)

		r.Route("/orders", func(r chi.Router) {
			r.Post("/", handler.CreateOrder)
			r.Get("/", handler.ListOrders)
			r.Get("/{orderID}", handler.GetOrder)
			r.Post("/{orderID}/status", handler.UpdateStatus)
			r.Post("/{orderID}/cancel", handler.CancelOrder)
		})
	})

	return r
}
