package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/packhouse-erp/packhouse/internal/auth"
	"github.com/packhouse-erp/packhouse/internal/cartons"
	"github.com/packhouse-erp/packhouse/internal/observability"
	"github.com/packhouse-erp/packhouse/internal/orgs"
	"github.com/packhouse-erp/packhouse/internal/packaging"
	"github.com/packhouse-erp/packhouse/internal/receipts"
	"github.com/packhouse-erp/packhouse/internal/shared"
	"github.com/packhouse-erp/packhouse/internal/shipments"
	"github.com/packhouse-erp/packhouse/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger           *slog.Logger
	Config           *Config
	SessionManager   *shared.SessionManager
	CSRFManager      *shared.CSRFManager
	AuthHandler      *auth.Handler
	OrgsHandler      *orgs.Handler
	PackagingHandler *packaging.Handler
	ReceiptsHandler  *receipts.Handler
	ShipmentsHandler *shipments.Handler
	CartonsHandler   *cartons.Handler
	JobsHandler      *jobs.Handler
	Metrics          *observability.Metrics
}

// NewRouter constructs the chi.Router with Packhouse defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:         params.Logger,
		Config:         params.Config,
		SessionManager: params.SessionManager,
		CSRFManager:    params.CSRFManager,
		Metrics:        params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte(`{"status":"ok"}`))
	})

	r.Route("/auth", params.AuthHandler.MountRoutes)

	r.Route("/orgs/{orgID}", func(r chi.Router) {
		if params.OrgsHandler != nil {
			params.OrgsHandler.Routes(r)
		}
		if params.PackagingHandler != nil {
			params.PackagingHandler.Routes(r)
		}
		if params.ReceiptsHandler != nil {
			params.ReceiptsHandler.Routes(r)
		}
		if params.ShipmentsHandler != nil {
			params.ShipmentsHandler.Routes(r)
		}
		if params.CartonsHandler != nil {
			params.CartonsHandler.Routes(r)
		}
	})

	if params.JobsHandler != nil {
		r.Route("/jobs", params.JobsHandler.MountRoutes)
	}

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}

	return r
}
