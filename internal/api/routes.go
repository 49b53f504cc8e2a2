package api

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// SetupRoutes configures all API routes.
func SetupRoutes(h *Handlers, allowedOrigins []string) *chi.Mux {
	r := chi.NewRouter()

	// Middleware
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RealIP)
	r.Use(middleware.RequestID)

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "PUT", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-Actor"},
		ExposedHeaders:   []string{"Link"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Operational endpoints (no tenant scope)
	r.Get("/health", h.HealthCheck)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Route("/restaurants/{restaurantID}", func(r chi.Router) {
			r.Route("/campaigns", func(r chi.Router) {
				r.Get("/", h.ListCampaigns)
				r.Post("/", h.CreateCampaign)

				r.Route("/{campaignID}", func(r chi.Router) {
					r.Get("/", h.GetCampaign)
					r.Put("/", h.UpdateCampaign)
					r.Post("/schedule", h.ScheduleCampaign)
					r.Post("/dispatch", h.DispatchCampaign)
					r.Post("/cancel", h.CancelCampaign)
					r.Post("/pause", h.PauseCampaign)
					r.Post("/resume", h.ResumeCampaign)
					r.Get("/metrics", h.GetCampaignMetrics)
					r.Get("/sends", h.ListCampaignSends)
					r.Get("/audit", h.ListCampaignAudit)
				})
			})

			r.Route("/promo-codes", func(r chi.Router) {
				r.Get("/", h.ListPromoCodes)
				r.Post("/", h.CreatePromoCode)
				r.Post("/validate", h.ValidatePromoCode)
				r.Get("/{promoID}", h.GetPromoCode)
				r.Post("/{promoID}/redeem", h.RedeemPromoCode)
			})

			r.Post("/audience/preview", h.PreviewAudience)
		})

		// Delivery collaborator surface; sends are keyed globally.
		r.Post("/sends/{sendID}/status", h.UpdateSendStatus)
	})

	return r
}
