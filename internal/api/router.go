package api

import (
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/cburnette/deaddrop/internal/api/middleware"
	"github.com/cburnette/deaddrop/internal/auth"
	"github.com/cburnette/deaddrop/internal/config"
	"github.com/cburnette/deaddrop/internal/directory"
	"github.com/cburnette/deaddrop/internal/handlers"
	"github.com/cburnette/deaddrop/internal/mailbox"
	"github.com/cburnette/deaddrop/internal/ratelimit"
	"github.com/cburnette/deaddrop/internal/registry"
	"github.com/cburnette/deaddrop/internal/stats"
	"github.com/cburnette/deaddrop/internal/store"
)

// maxBodyBytes fits a maximal message body of multi-byte characters
// plus JSON escaping.
const maxBodyBytes = 256 * 1024

// NewRouter creates and configures the HTTP router.
func NewRouter(logger zerolog.Logger, cfg *config.Config, redisStore *store.RedisStore, index directory.Index) *chi.Mux {
	r := chi.NewRouter()

	// Metrics middleware (first to capture all requests)
	r.Use(middleware.Metrics)

	// Security middleware (order matters!)
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.MaxBodySize(maxBodyBytes))
	r.Use(middleware.ValidateRequest)

	// Standard middleware
	r.Use(chimw.RequestID)
	r.Use(chimw.RealIP)
	r.Use(middleware.Logger(logger))
	r.Use(chimw.Recoverer)

	limiter := ratelimit.New(redisStore)

	// Per-IP limits on the unauthenticated write and query routes
	ipLimiter := middleware.NewRateLimiter(limiter, logger, middleware.RateLimiterConfig{
		Limits: map[string]middleware.RateLimit{
			"POST /agent/register": {Requests: cfg.RegisterRateLimit, Window: time.Hour},
			"POST /agents/search":  {Requests: cfg.SearchRateLimit, Window: time.Minute},
		},
		Whitelist: cfg.RateLimitWhitelist,
	})
	r.Use(ipLimiter.Middleware)

	// CORS - allow all origins (agents call from anywhere)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "PUT", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type"},
		ExposedHeaders:   []string{"X-RateLimit-Limit", "X-RateLimit-Remaining", "X-RateLimit-Reset", "Retry-After"},
		AllowCredentials: false,
		MaxAge:           300,
	}))

	reg := registry.New(redisStore, logger)
	h := handlers.NewHandler(handlers.Services{
		Store:     redisStore,
		Registry:  reg,
		Mailbox:   mailbox.New(redisStore, ratelimit.NewSenderLimiter(limiter, cfg.SendRateLimit), logger),
		Directory: directory.New(index, cfg.SearchNudgeThreshold, logger),
		Stats:     stats.New(redisStore, index, logger),
	}, logger)
	authMW := middleware.NewAuthMiddleware(auth.NewAuthenticator(redisStore), auth.NewAdminGuard(cfg.AdminSecret), logger)

	// Metrics endpoint (for Prometheus scraping)
	r.Handle("/metrics", promhttp.Handler())

	// Public routes (no auth required)
	r.Get("/", h.Root)
	r.Get("/health", h.Health)
	r.Post("/agent/register", h.Register)
	r.Get("/agent/{id}", h.GetAgent)
	r.Get("/agents", h.ListAgents)
	r.Post("/agents/search", h.Search)

	// Agent routes (require bearer API key)
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAuth)

		r.Post("/agent/activate", h.Activate)
		r.Post("/agent/deactivate", h.Deactivate)
		r.Put("/agent/profile", h.UpdateProfile)
		r.Post("/messages/send", h.Send)
		r.Get("/messages", h.Poll)
	})

	// Operator routes (require admin secret)
	r.Group(func(r chi.Router) {
		r.Use(authMW.RequireAdmin)

		r.Get("/admin/stats", h.AdminStats)
	})

	return r
}
