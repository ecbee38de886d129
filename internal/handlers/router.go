package handlers

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/Rorqualx/crawlpool/internal/config"
	"github.com/Rorqualx/crawlpool/internal/middleware"
)

// NewRouter builds the API routes behind the middleware stack. limiter may
// be nil when rate limiting is disabled; the caller owns it and closes it
// on shutdown.
func NewRouter(h *Handler, cfg *config.Config, limiter *middleware.RateLimiter) http.Handler {
	r := chi.NewRouter()

	r.Use(chimw.RequestID)
	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.CORS(cfg.CORSAllowedOrigins))
	r.Use(middleware.APIKey(cfg))
	if limiter != nil {
		r.Use(limiter.Handler)
	}

	r.NotFound(h.HandleNotFound)
	r.MethodNotAllowed(h.HandleMethodNotAllowed)

	r.Get("/health", h.HandleHealth)

	r.Route("/v1", func(r chi.Router) {
		r.Post("/crawl", h.HandleCrawl)
		r.Post("/search", h.HandleSearch)
		r.Get("/status", h.HandleStatus)
	})

	return r
}
