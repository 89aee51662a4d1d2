package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"go.uber.org/zap"
)

// NewRouter builds the HTTP routing table. All API routes live under the
// /api/incubadora prefix the dashboard expects.
func NewRouter(h *Handler, logger *zap.Logger) *chi.Mux {
	r := chi.NewRouter()
	r.Use(middleware.Recoverer)
	r.Use(requestLogger(logger))

	r.Get("/healthz", h.HandleHealthz)

	r.Route("/api/incubadora", func(r chi.Router) {
		r.Post("/ingest", h.requireAPIKey(h.HandleIngest))
		r.Get("/stream", h.HandleStream)
		r.Get("/ws", h.HandleWS)

		r.Get("/query/devices", h.HandleDevices)
		r.Get("/query/latest", h.HandleLatest)
		r.Get("/query/series", h.HandleSeries)

		r.Get("/alerts", h.HandleAlerts)

		r.Get("/models", h.HandleModelStatus)
		r.Post("/models/retrain", h.HandleRetrain)

		r.Get("/collector/status", h.HandleCollectorStatus)
	})

	return r
}

// requestLogger logs one line per completed request. The stream endpoints
// log on disconnect, which is when their handler returns.
func requestLogger(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
			)
		})
	}
}
