package adapter

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/rogersnm/skillmap/internal/metrics"
	"github.com/rogersnm/skillmap/internal/model"
	"github.com/rogersnm/skillmap/internal/notify"
	"go.uber.org/zap"
)

// SummaryLister serves the cached tree listing.
type SummaryLister interface {
	Summaries(ctx context.Context) []model.SkillTreeSummary
}

type HTTPOptions struct {
	AllowedOrigins []string
	Metrics        *metrics.Collector
	Summaries      SummaryLister
	// Events, when set, is streamed to clients of GET /events.
	Events notify.Subscriber
}

// NewHTTPHandler exposes the adapter over HTTP: POST /rpc takes one Request
// and answers one Response.
func NewHTTPHandler(a *Adapter, opts HTTPOptions) http.Handler {
	router := chi.NewRouter()
	router.Use(chimiddleware.RequestID)
	router.Use(chimiddleware.Recoverer)
	router.Use(requestLogger(a.logger))

	origins := opts.AllowedOrigins
	if len(origins) == 0 {
		origins = []string{"http://localhost:*", "http://127.0.0.1:*"}
	}
	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: origins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Request-ID"},
		ExposedHeaders: []string{"X-Request-ID"},
		MaxAge:         300,
	}))

	router.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	router.Post("/rpc", a.serveRPC)
	if opts.Summaries != nil {
		router.Get("/trees", func(w http.ResponseWriter, r *http.Request) {
			items := opts.Summaries.Summaries(r.Context())
			if items == nil {
				items = []model.SkillTreeSummary{}
			}
			writeJSON(w, http.StatusOK, items)
		})
	}
	if opts.Events != nil {
		router.Get("/events", serveEvents(opts.Events, a.logger))
	}
	if opts.Metrics != nil {
		router.Handle("/metrics", opts.Metrics.Handler())
	}
	return router
}

func (a *Adapter) serveRPC(w http.ResponseWriter, r *http.Request) {
	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxLineSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, protocolError("", err))
		return
	}
	resp := a.Handle(r.Context(), req)
	writeJSON(w, http.StatusOK, resp)
}

// serveEvents streams change events as server-sent events until the client
// goes away.
func serveEvents(events notify.Subscriber, logger *zap.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		flusher, ok := w.(http.Flusher)
		if !ok {
			http.Error(w, "streaming unsupported", http.StatusInternalServerError)
			return
		}
		ch, err := events.Subscribe(r.Context())
		if err != nil {
			http.Error(w, err.Error(), http.StatusServiceUnavailable)
			return
		}

		w.Header().Set("Content-Type", "text/event-stream")
		w.Header().Set("Cache-Control", "no-cache")
		w.Header().Set("Connection", "keep-alive")
		w.WriteHeader(http.StatusOK)
		flusher.Flush()

		for ev := range ch {
			data, err := json.Marshal(ev)
			if err != nil {
				logger.Warn("encoding event", zap.Error(err))
				continue
			}
			if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Type, data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func requestLogger(logger *zap.Logger) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := chimiddleware.NewWrapResponseWriter(w, r.ProtoMajor)
			next.ServeHTTP(ww, r)
			logger.Debug("http request",
				zap.String("method", r.Method),
				zap.String("path", r.URL.Path),
				zap.Int("status", ww.Status()),
				zap.Duration("duration", time.Since(start)),
				zap.String("request_id", chimiddleware.GetReqID(r.Context())),
			)
		})
	}
}
