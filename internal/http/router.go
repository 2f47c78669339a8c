// Package httpapi assembles the public router: shared middleware, health and
// metrics endpoints, the public routes and the admin group.
package httpapi

import (
	"context"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"simkyc/internal/platform/metrics"
	platformmw "simkyc/internal/platform/middleware"
	"simkyc/pkg/platform/httputil"
	"simkyc/pkg/platform/middleware/admin"
	"simkyc/pkg/platform/middleware/metadata"
	"simkyc/pkg/platform/middleware/request"
	"simkyc/pkg/platform/middleware/requesttime"
	"simkyc/pkg/requestcontext"
)

// Registrar mounts a group of routes.
type Registrar interface {
	Register(r chi.Router)
}

// HealthCheck reports whether a backing dependency is reachable.
type HealthCheck func(ctx context.Context) error

type Deps struct {
	Logger     *slog.Logger
	Metrics    *metrics.Metrics
	AdminToken string
	Public     []Registrar
	Admin      []Registrar
	Health     map[string]HealthCheck
}

// NewRouter wires the middleware chain and mounts every route group.
func NewRouter(d Deps) http.Handler {
	r := chi.NewRouter()
	r.Use(request.RequestID)
	r.Use(request.Recovery(d.Logger))
	r.Use(request.Logger(d.Logger))
	r.Use(requesttime.Middleware)
	r.Use(metadata.ClientMetadata)
	if d.Metrics != nil {
		r.Use(platformmw.Instrument(d.Metrics))
	}

	r.Get("/health", healthHandler(d.Health, d.Logger))
	r.Handle("/metrics", promhttp.Handler())

	for _, reg := range d.Public {
		reg.Register(r)
	}
	r.Group(func(r chi.Router) {
		r.Use(admin.RequireAdminToken(d.AdminToken, d.Logger))
		for _, reg := range d.Admin {
			reg.Register(r)
		}
	})
	return r
}

type healthResponse struct {
	httputil.Envelope
	Status string            `json:"status"`
	Checks map[string]string `json:"checks,omitempty"`
}

// healthHandler reports each check as "ok" or "unavailable". Check errors
// can carry hosts or DSNs, so they go to the log only.
func healthHandler(checks map[string]HealthCheck, logger *slog.Logger) http.HandlerFunc {
	if logger == nil {
		logger = slog.Default()
	}
	return func(w http.ResponseWriter, r *http.Request) {
		status := http.StatusOK
		resp := healthResponse{Envelope: httputil.OK(), Status: "ok"}
		if len(checks) > 0 {
			resp.Checks = make(map[string]string, len(checks))
		}
		for name, check := range checks {
			if err := check(r.Context()); err != nil {
				logger.WarnContext(r.Context(), "health check failed",
					"request_id", requestcontext.RequestID(r.Context()),
					"check", name,
					"error", err,
				)
				resp.Checks[name] = "unavailable"
				resp.Status = "degraded"
				resp.Success = false
				status = http.StatusServiceUnavailable
				continue
			}
			resp.Checks[name] = "ok"
		}
		httputil.WriteJSON(w, status, resp)
	}
}
