package api

import (
	"strings"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
)

// RouterConfig holds settings for the API router.
// Passed from main.go so the router can configure CORS and auth from env vars.
type RouterConfig struct {
	// BackendAPIKey is the key that must be provided in X-API-Key or Authorization: Bearer <key>.
	// If empty, auth middleware is skipped (development mode).
	BackendAPIKey string

	// CorsAllowedOrigins is a comma-separated list of allowed origins.
	// If empty, defaults to "*" (development mode).
	CorsAllowedOrigins string
}

func NewRouter(h *Handler, cfg RouterConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)

	// CORS: restrict origins when configured, otherwise allow all (dev mode)
	allowedOrigins := []string{"*"}
	if cfg.CorsAllowedOrigins != "" {
		origins := strings.Split(cfg.CorsAllowedOrigins, ",")
		trimmed := make([]string, 0, len(origins))
		for _, o := range origins {
			if s := strings.TrimSpace(o); s != "" {
				trimmed = append(trimmed, s)
			}
		}
		if len(trimmed) > 0 {
			allowedOrigins = trimmed
		}
	}

	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   allowedOrigins,
		AllowedMethods:   []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-API-Key"},
		AllowCredentials: true,
		MaxAge:           300,
	}))

	// Health check — public, no auth required
	r.Get("/health", h.Health)

	r.Route("/v1", func(r chi.Router) {
		if cfg.BackendAPIKey != "" {
			r.Use(APIKeyAuth(cfg.BackendAPIKey))
		}

		// Videos
		r.Post("/videos", h.CreateVideo)
		r.Get("/videos/{id}", h.GetVideo)
		r.Get("/videos/{id}/download", h.DownloadVideo)
		r.Delete("/videos/{id}", h.CancelVideo)

		// Voice samples for narration cloning
		r.Post("/voices", h.UploadVoice)

		// Article extraction preview
		r.Post("/articles/preview", h.PreviewArticle)
	})

	return r
}
