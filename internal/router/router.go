package router

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"lodge-api/internal/config"
	"lodge-api/internal/handler"
	"lodge-api/internal/middleware"
)

// New assembles the HTTP surface. Middleware order matters: recovery is
// outermost so panics anywhere below still produce a response, and
// logging wraps everything it should observe.
func New(cfg *config.Config, auth *handler.AuthHandler, health *handler.HealthHandler, authMW *middleware.AuthMiddleware) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.Recovery)
	r.Use(middleware.Logging)
	r.Use(middleware.CORS(cfg.CORSOrigins))
	r.Use(middleware.SecurityHeaders)
	r.Use(middleware.Metrics)

	r.Get("/healthz", health.Liveness)
	r.Get("/readyz", health.Readiness)
	r.Handle("/metrics", promhttp.Handler())

	rateLimit := middleware.NewRateLimitMiddleware(cfg.RateLimitRPM, cfg.AuthRateLimitRPM)

	r.Route("/api", func(api chi.Router) {
		api.Use(middleware.Timeout(cfg.RequestTimeout))
		api.Use(rateLimit.Handler)

		api.Route("/auth", func(a chi.Router) {
			a.Post("/authenticate", auth.Authenticate)
			a.Post("/refresh", auth.Refresh)
			a.Post("/reset-password", auth.ResetPassword)
			a.Post("/set-password", auth.SetPassword)

			a.With(authMW.RequireAuth).Get("/user", auth.GetUser)
			a.With(authMW.RequireAuth).Post("/logout", auth.Logout)
		})
	})

	return r
}
