package routes

import (
	"log/slog"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/velmarket/gateway/internal/config"
	"github.com/velmarket/gateway/internal/gateway"
	"github.com/velmarket/gateway/internal/handlers"
	"github.com/velmarket/gateway/internal/middleware"
	pkghttp "github.com/velmarket/gateway/pkg/http"
)

// Handlers bundles the HTTP handlers wired into the router.
type Handlers struct {
	Auth   *handlers.AuthHandler
	Admin  *handlers.AdminHandler
	Health *handlers.HealthHandler
}

// New builds the service router. Every /admin route sits behind full
// admission; /auth/login sits behind rate limiting only.
func New(cfg *config.Config, admission *gateway.Admission, h Handlers, logger *slog.Logger) chi.Router {
	r := chi.NewRouter()

	// RemoteAddr is never rewritten from forwardable headers; every consumer
	// resolves the client through the trusted-proxy-aware extractor instead,
	// so an untrusted peer cannot rotate its rate-limit or lockout buckets.
	ipConfig := &pkghttp.IPConfig{TrustedProxies: cfg.Server.TrustedProxies}

	r.Use(chimiddleware.RequestID)
	r.Use(middleware.SecureLogger(logger))
	r.Use(chimiddleware.Recoverer)
	r.Use(chimiddleware.Timeout(30 * time.Second))
	r.Use(middleware.SecurityHeaders(middleware.SecurityHeadersConfig{Env: cfg.Server.Env}))

	corsConfig := middleware.DefaultCORSConfig()
	corsConfig.AllowedOrigins = cfg.Server.AllowedOrigins
	r.Use(middleware.CORS(corsConfig))

	// Coarse per-IP burst guard across everything; the policy limiter inside
	// admission tracks its own windows and block durations
	r.Use(middleware.GlobalRateLimit(300, 1*time.Minute, ipConfig))

	r.Get("/health", h.Health.Health)
	r.Get("/health/ready", h.Health.Ready)
	r.Handle("/metrics", promhttp.Handler())

	r.Route("/auth", func(r chi.Router) {
		r.With(admission.RateLimitOnly).Post("/login", h.Auth.Login)

		r.Group(func(r chi.Router) {
			r.Use(admission.Middleware)
			r.Post("/logout", h.Auth.Logout)
			r.Post("/refresh", h.Auth.Refresh)
			r.Get("/me", h.Auth.Me)
		})
	})

	r.Route("/admin", func(r chi.Router) {
		r.Use(admission.Middleware)
		r.Use(admission.RequireAdmin)

		r.Get("/security-events", h.Admin.ListSecurityEvents)
		r.Post("/accounts/{accountID}/revoke-sessions", h.Admin.RevokeAccountSessions)
		r.Post("/clients/{clientIP}/unblock", h.Admin.UnblockClient)
		r.Post("/listings/{listingID}/{verdict}", h.Admin.ModerateListing)
	})

	return r
}
