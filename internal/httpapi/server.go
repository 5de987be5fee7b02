// Package httpapi exposes model lifecycle and inference over HTTP.
package httpapi

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"modelcore/internal/dispatcher"
	"modelcore/internal/registry"
	"modelcore/pkg/types"
)

// Service defines the methods required by the HTTP API layer.
type Service interface {
	ListModels() []types.ModelStatus
	Model(id string) (types.ModelStatus, bool)
	Catalog() []types.ModelDescriptor
	Known(id string) bool
	Load(ctx context.Context, desc types.ModelDescriptor) (types.LoadResponse, error)
	Unload(ctx context.Context, id string, force bool) bool
	Infer(ctx context.Context, req dispatcher.Request) (any, error)
	InferBatch(ctx context.Context, reqs []dispatcher.Request) dispatcher.BatchResult[any]
	Stats() types.StatsResponse
	Subscribe(buffer int) (<-chan registry.Event, func())
	Ready() bool
}

type api struct {
	svc Service
}

// NewMux builds the router for svc.
func NewMux(svc Service) http.Handler {
	a := &api{svc: svc}
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(MetricsMiddleware)
	r.Use(middleware.Compress(5))
	r.Use(func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.Header().Set("X-Content-Type-Options", "nosniff")
			next.ServeHTTP(w, r)
		})
	})
	if corsEnabled {
		r.Use(cors.Handler(cors.Options{
			AllowedOrigins: orDefault(corsAllowedOrigins, []string{"*"}),
			AllowedMethods: orDefault(corsAllowedMethods, []string{"GET", "POST", "DELETE", "OPTIONS"}),
			AllowedHeaders: orDefault(corsAllowedHeaders, []string{"Content-Type", "X-Log-Level", "X-Request-Id"}),
			MaxAge:         300,
		}))
	}

	r.Get("/models", a.listModels)
	r.Post("/models", a.loadModel)
	r.Get("/models/{id}", a.getModel)
	r.Delete("/models/{id}", a.unloadModel)
	r.Get("/catalog", a.catalog)

	r.Post("/infer", a.infer)
	r.Post("/infer/batch", a.inferBatch)

	r.Get("/stats", a.stats)
	r.Get("/events", a.events)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Get("/readyz", func(w http.ResponseWriter, r *http.Request) {
		if svc.Ready() {
			w.WriteHeader(http.StatusOK)
			_, _ = w.Write([]byte("ready"))
			return
		}
		w.WriteHeader(http.StatusServiceUnavailable)
		_, _ = w.Write([]byte("loading"))
	})

	// Stats gauges live in a per-mux registry so several muxes can coexist.
	stats := prometheus.NewRegistry()
	stats.MustRegister(NewStatsCollector(svc))
	r.Get("/metrics", promhttp.HandlerFor(
		prometheus.Gatherers{prometheus.DefaultGatherer, stats},
		promhttp.HandlerOpts{},
	).ServeHTTP)

	MountSwagger(r)
	return r
}

func orDefault(v, def []string) []string {
	if len(v) == 0 {
		return def
	}
	return v
}
