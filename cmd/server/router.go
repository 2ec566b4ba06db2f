package main

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/sitegen-api/internal/api"
	apiMiddleware "github.com/phrazzld/sitegen-api/internal/api/middleware"
	"github.com/phrazzld/sitegen-api/internal/service"
	"github.com/phrazzld/sitegen-api/internal/service/auth"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// routerDeps are the collaborators the HTTP surface needs. A nil JobService
// produces an operational router with only /health and /metrics.
type routerDeps struct {
	logger     *slog.Logger
	gatherer   prometheus.Gatherer
	jwtService auth.JWTService
	jobService service.JobService
}

// newRouter creates the router with the standard middleware and all routes.
func newRouter(deps routerDeps) http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(deps.logger))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			deps.logger.Error("failed to write health check response", "error", err)
		}
	})
	if deps.gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(deps.gatherer, promhttp.HandlerOpts{}))
	}

	if deps.jobService != nil {
		authMiddleware := apiMiddleware.NewAuthMiddleware(deps.jwtService)
		jobHandler := api.NewJobHandler(deps.jobService)

		r.Group(func(r chi.Router) {
			r.Use(authMiddleware.Authenticate)
			jobHandler.Routes(r, apiMiddleware.RequireAdmin)
		})
	}

	return r
}
