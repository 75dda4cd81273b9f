package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"

	"github.com/kreativelabske/lipia-backend/internal/api/handlers"
	"github.com/kreativelabske/lipia-backend/internal/auth"
	"github.com/kreativelabske/lipia-backend/internal/config"
	"github.com/kreativelabske/lipia-backend/internal/metrics"
	"github.com/kreativelabske/lipia-backend/internal/middleware"
	"github.com/kreativelabske/lipia-backend/internal/services"
)

func NewRouter(cfg config.Config, svc *services.PaymentService, verifier *auth.Verifier) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID, middleware.Recover, middleware.RateLimit(cfg.RateRPS), middleware.HTTPMetrics)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"*"},
	}))

	// health & metrics
	r.Get("/health", func(w http.ResponseWriter, r *http.Request) { _, _ = w.Write([]byte("ok")) })
	r.Handle("/metrics", metrics.Handler())

	h := handlers.NewPaymentsHandler(svc)
	authmw := middleware.NewAuthMiddleware(verifier, cfg.Env)

	r.Route("/api/v1", func(r chi.Router) {
		// inbound from the payment provider; no bearer token
		r.Post("/payments/callback", h.Callback)

		r.Group(func(r chi.Router) {
			r.Use(authmw.Auth)
			r.Post("/payments", h.Create)
			r.Get("/payments", h.List)
			r.Get("/payments/status/{checkout_id}", h.Status)
			r.Post("/payments/cancel/{checkout_id}", h.Cancel)
		})
	})

	return r
}
