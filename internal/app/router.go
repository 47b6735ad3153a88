package app

import (
	"github.com/avc/storefront-orders/internal/handlers"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

const placeOrderRateScope = "place-order"

// setupRouter создает и настраивает роутер
func setupRouter(deps *dependencies, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()

	// Глобальные middleware
	setupMiddleware(r, logger)

	// Маршруты
	setupRoutes(r, deps, logger)

	return r
}

// setupMiddleware настраивает middleware для роутера
func setupMiddleware(r *chi.Mux, logger *zap.Logger) {
	r.Use(handlers.RequestIDMiddleware())
	r.Use(handlers.LoggingMiddleware(logger))
	r.Use(handlers.RecoveryMiddleware(logger))
	r.Use(middleware.Compress(5))
}

// setupRoutes настраивает маршруты приложения
func setupRoutes(r *chi.Mux, deps *dependencies, logger *zap.Logger) {
	// Health check эндпоинты
	r.Get("/health", deps.handlers.health.Health)
	r.Get("/ready", deps.handlers.health.Ready)

	// Подпись проверяется в хендлере
	r.Post("/api/webhooks/stripe", deps.handlers.webhook.Stripe)

	// Защищенные эндпоинты
	r.Route("/api/orders", func(r chi.Router) {
		r.Use(handlers.AuthMiddleware(deps.jwtManager, logger))

		r.With(
			handlers.RateLimitMiddleware(deps.rateLimiter, placeOrderRateScope, logger),
			handlers.IdempotencyMiddleware(deps.idempotency, logger),
		).Post("/place-order", deps.handlers.orders.PlaceOrder)
		r.Post("/verify-payment", deps.handlers.orders.VerifyPayment)
		r.Get("/{trackingID}", deps.handlers.orders.GetOrder)
	})
}
