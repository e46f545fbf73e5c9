package main

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/phrazzld/annotator-api/internal/api"
	apiMiddleware "github.com/phrazzld/annotator-api/internal/api/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// setupRouter creates and configures the application router with all routes
// and middleware.
func (app *application) setupRouter() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Recoverer)
	r.Use(apiMiddleware.NewTraceMiddleware(app.logger))

	batchHandler := api.NewBatchHandler(app.batchService, app.logger)
	segmentHandler := api.NewSegmentHandler(app.segments, app.fetcher, app.analyzer, app.logger)

	r.Route("/api", func(r chi.Router) {
		r.Route("/batch", func(r chi.Router) {
			r.Post("/", batchHandler.CreateBatch)
			r.Get("/", batchHandler.ListBatches)
			r.Get("/{id}", batchHandler.GetBatch)
			r.Patch("/{id}", batchHandler.CompleteBatch)
			r.Post("/{id}/resume", batchHandler.ResumeBatch)
			r.Post("/{id}/retry", batchHandler.RetryItem)
			r.Post("/{id}/answer", batchHandler.RecordAnswer)
		})

		r.Get("/segments", segmentHandler.ListSegments)
		r.Get("/audio", segmentHandler.GetAudio)
		r.Post("/analyze", segmentHandler.Analyze)
	})

	r.Handle("/metrics", promhttp.HandlerFor(app.registry, promhttp.HandlerOpts{}))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		if _, err := w.Write([]byte("OK")); err != nil {
			app.logger.Error("Failed to write health check response", "error", err)
		}
	})

	return r
}
