package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/notifyhub/whatsapp-dispatcher/internal/api/handler"
	apimw "github.com/notifyhub/whatsapp-dispatcher/internal/api/middleware"
	"github.com/notifyhub/whatsapp-dispatcher/internal/service"
)

// NewRouter wires the chi router, attaches all middleware, and registers
// every route. It is the single source of truth for the HTTP surface area.
// tmpl is the message template used for previews; empty means the built-in one.
func NewRouter(
	svc *service.DispatchService,
	tmpl string,
	reg prometheus.Gatherer,
	logger *zap.Logger,
) http.Handler {
	r := chi.NewRouter()

	// --- global middleware (applied to every route) ---
	r.Use(chimw.Recoverer)
	r.Use(chimw.RealIP)
	r.Use(chimw.RequestSize(handler.MaxUploadBytes + 1<<20)) // spreadsheet plus form overhead
	r.Use(apimw.CorrelationID)
	r.Use(apimw.RequestLogger(logger))

	// --- handler instances ---
	rh := handler.NewRunHandler(svc, logger)
	ph := handler.NewPreviewHandler(tmpl, nil)
	mh := handler.NewMetricsHandler(svc)
	hh := handler.NewHealthHandler(svc)

	// --- routes ---
	r.Get("/health", hh.Health)

	// Raw Prometheus scrape endpoint
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/runs", rh.Create)
		r.Get("/runs", rh.List)
		r.Get("/runs/{id}", rh.GetByID)
		r.Delete("/runs/{id}", rh.Cancel)
		r.Get("/runs/{id}/events", rh.Events)

		r.Post("/preview", ph.Preview)

		// JSON progress snapshot of the active run
		r.Get("/metrics", mh.GetMetrics)
	})

	return r
}
