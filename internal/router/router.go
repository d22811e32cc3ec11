package router

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/cors"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"dzchess-analyzer/internal/handler"
	"dzchess-analyzer/internal/middleware"
	"dzchess-analyzer/pkg/apierror"
	"dzchess-analyzer/pkg/response"
)

// Config holds the configuration for creating a router.
type Config struct {
	Handler        *handler.Handler
	JobHandler     *handler.JobHandler
	PlayerHandler  *handler.PlayerHandler
	AdminHandler   *handler.AdminHandler
	AuthMiddleware func(http.Handler) http.Handler
	// SubmitRateLimit caps job submissions per client IP per minute. Zero
	// disables the limit.
	SubmitRateLimit int
	// Metrics serves /metrics. Defaults to the Prometheus default registry.
	Metrics http.Handler
}

// New creates and configures the HTTP router.
func New(cfg Config) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.RequestID)
	r.Use(middleware.Logging)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: []string{"*"},
		AllowedMethods: []string{"GET", "POST", "DELETE", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Authorization", "Content-Type", "X-Request-ID", "X-API-Key"},
		ExposedHeaders: []string{"X-Request-ID", "Location"},
		MaxAge:         300,
	}))

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		response.Error(w, apierror.NotFound(""))
	})

	// public
	if cfg.Handler != nil {
		r.Get("/api/status", cfg.Handler.Status)
	}
	metricsHandler := cfg.Metrics
	if metricsHandler == nil {
		metricsHandler = promhttp.Handler()
	}
	r.Handle("/metrics", metricsHandler)

	r.Group(func(r chi.Router) {
		if cfg.AuthMiddleware != nil {
			r.Use(cfg.AuthMiddleware)
		}

		r.Route("/api/v1", func(r chi.Router) {
			if cfg.Handler != nil {
				r.Get("/health", cfg.Handler.Health)
				r.Get("/ready", cfg.Handler.Ready)
			}

			if cfg.JobHandler != nil {
				r.Route("/jobs", func(r chi.Router) {
					r.With(submitLimit(cfg.SubmitRateLimit)).Post("/", cfg.JobHandler.Submit)
					r.Get("/{id}", cfg.JobHandler.Get)
					r.Delete("/{id}", cfg.JobHandler.Cancel)
				})
			}

			if cfg.PlayerHandler != nil {
				r.Route("/players", func(r chi.Router) {
					r.Get("/", cfg.PlayerHandler.List)
					r.Route("/{username}", func(r chi.Router) {
						r.Get("/", cfg.PlayerHandler.Get)
						r.Get("/openings", cfg.PlayerHandler.Openings)
						r.Get("/matches", cfg.PlayerHandler.Matches)
						r.Get("/recommendations", cfg.PlayerHandler.Recommendations)
					})
				})
			}

			if cfg.AdminHandler != nil {
				r.Route("/admin", func(r chi.Router) {
					r.Get("/stats", cfg.AdminHandler.GetStats)
					r.Post("/sweep", cfg.AdminHandler.Sweep)
				})
			}
		})
	})

	return r
}

func submitLimit(perMinute int) func(http.Handler) http.Handler {
	if perMinute <= 0 {
		return func(next http.Handler) http.Handler { return next }
	}
	return httprate.Limit(perMinute, time.Minute,
		httprate.WithKeyFuncs(httprate.KeyByIP),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			response.Error(w, apierror.TooManyRequests("too many job submissions, retry later"))
		}),
	)
}
