package rest

import (
	"database/sql"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi"
	chiMiddleware "github.com/go-chi/chi/middleware"

	"github.com/frahmantamala/payment-lifecycle/internal/payment"
	"github.com/frahmantamala/payment-lifecycle/internal/transport/middleware"
	"github.com/frahmantamala/payment-lifecycle/internal/transport/swagger"
)

func RegisterAllRoutes(router *chi.Mux, db *sql.DB, paymentHandler *payment.Handler, webhookHandler *payment.WebhookHandler, logger *slog.Logger) {
	healthHandler := NewHealthHandler(db)

	// Apply global middleware
	router.Use(chiMiddleware.RequestID)
	router.Use(middleware.RequestID)
	router.Use(middleware.RecoveryMiddleware(logger))

	// Serve OpenAPI spec at root (outside API prefix)
	router.Get("/openapi.yml", func(w http.ResponseWriter, r *http.Request) {
		http.ServeFile(w, r, "./api/openapi.yml")
	})
	// Swagger UI route at root
	router.Handle("/swagger/*", swagger.Handler())

	// Mount API under /api/v1 to match OpenAPI basePath
	router.Route("/api/v1", func(r chi.Router) {
		// Health check route
		r.Get("/health", healthHandler.healthCheckHandler)
		r.Get("/ping", healthHandler.pingHandler)

		r.Route("/payments", func(pr chi.Router) {
			// Gateway callback route stays outside the body-logging
			// middleware so raw signed payloads never reach the log
			if webhookHandler != nil {
				pr.Post("/callback/{tenantToken}", webhookHandler.HandleCallback)
			}

			if paymentHandler != nil {
				pr.Group(func(cr chi.Router) {
					cr.Use(middleware.LoggingMiddleware(logger))

					cr.Post("/link", paymentHandler.CreateLink)         // POST /payments/link
					cr.Post("/waive", paymentHandler.Waive)             // POST /payments/waive
					cr.Post("/refund", paymentHandler.Refund)           // POST /payments/refund
					cr.Get("/{subjectID}", paymentHandler.GetBySubject) // GET /payments/:subjectID
				})
			}
		})
	})
}
