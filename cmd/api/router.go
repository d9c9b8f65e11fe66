package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/FACorreiaa/store-usage/pkg/interceptors"
)

// NewRouter assembles the middleware chain and mounts every route.
func NewRouter(d *Dependencies) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(interceptors.RequestLogger(d.Logger, d.Metrics))
	r.Use(middleware.Recoverer)
	r.Use(interceptors.CORS(d.Config.Server.CORSOrigins))

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		if err := d.DB.Pool.Ping(r.Context()); err != nil {
			http.Error(w, "database unavailable", http.StatusServiceUnavailable)
			return
		}
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})

	if d.Config.Observability.MetricsEnabled {
		r.Handle("/metrics", promhttp.HandlerFor(d.Registry, promhttp.HandlerOpts{}))
	}

	r.Group(func(r chi.Router) {
		r.Use(interceptors.RateLimit(d.Config.Server.RateLimitPerSecond, d.Config.Server.RateLimitBurst))
		r.Use(d.Authenticator.Middleware)
		d.UsageHandler.Routes(r)
	})

	return r
}
