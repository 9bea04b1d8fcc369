package web

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"support-chat-router/internal/config"
	"support-chat-router/internal/infra/logging"
)

// Server hosts the websocket endpoint, the REST surface and the
// operational endpoints on one port.
type Server struct {
	http *http.Server
	log  *zerolog.Logger
}

func NewServer(cfg config.ServerConfig, h *Handler, logger *zerolog.Logger) *Server {
	r := chi.NewRouter()
	r.Use(traceID, requestLog(logger))

	r.Get("/healthz", func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.Handle("/metrics", promhttp.Handler())
	r.Get("/ws", h.serveWS)

	r.Route("/api/v1", func(r chi.Router) {
		r.Post("/chat/ticket", h.issueTicket)
		r.Get("/history", h.latestHistory)
		r.Get("/support-queue", h.supportQueue)
		r.Get("/sessions/{id}", h.getSession)
		r.Post("/sessions/{id}/close", h.closeSession)
	})

	return &Server{
		http: &http.Server{
			Addr:              fmt.Sprintf(":%d", cfg.Port),
			Handler:           r,
			ReadHeaderTimeout: 10 * time.Second,
		},
		log: logger,
	}
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server listening")
	if err := s.http.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return err
	}
	return nil
}

func (s *Server) Shutdown(ctx context.Context) error {
	return s.http.Shutdown(ctx)
}

func traceID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := r.Header.Get("X-Trace-Id")
		if id == "" {
			id = uuid.NewString()
		}
		w.Header().Set("X-Trace-Id", id)
		next.ServeHTTP(w, r.WithContext(logging.WithTraceID(r.Context(), id)))
	})
}

func requestLog(logger *zerolog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			next.ServeHTTP(w, r)
			logging.With(r.Context(), logger).Debug().
				Str("method", r.Method).
				Str("path", r.URL.Path).
				Dur("took", time.Since(start)).
				Msg("request")
		})
	}
}
