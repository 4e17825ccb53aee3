package api

import (
	"context"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/snarg/callscribe/internal/config"
	"github.com/snarg/callscribe/internal/metrics"
)

// ServerOptions wires the watch-mode HTTP surface. Nil sources are reported
// as not configured.
type ServerOptions struct {
	Config      *config.Config
	Transcripts TranscriptSource
	Database    HealthChecker
	MQTT        ConnChecker
	Queue       QueueSource
	Watcher     WatcherSource
	Events      EventSource
	Version     string
	StartTime   time.Time
	Log         zerolog.Logger
}

type Server struct {
	http *http.Server
	log  zerolog.Logger
}

func NewServer(opts ServerOptions) *Server {
	cfg := opts.Config
	return &Server{
		http: &http.Server{
			Addr:         cfg.HTTPAddr,
			Handler:      NewRouter(opts),
			ReadTimeout:  cfg.ReadTimeout,
			WriteTimeout: cfg.WriteTimeout,
			IdleTimeout:  cfg.IdleTimeout,
		},
		log: opts.Log,
	}
}

// NewRouter builds the route tree. Split from NewServer so tests can drive
// it with httptest.
func NewRouter(opts ServerOptions) http.Handler {
	r := chi.NewRouter()

	// Global middleware
	r.Use(RequestID)
	r.Use(Recoverer)
	r.Use(Logger(opts.Log))
	r.Use(metrics.InstrumentHandler)

	// Health and metrics: no auth
	health := NewHealthHandler(opts.Database, opts.MQTT, opts.Queue, opts.Watcher, opts.Version, opts.StartTime)
	r.Get("/api/v1/health", health.ServeHTTP)
	r.Handle("/metrics", promhttp.Handler())

	r.Group(func(r chi.Router) {
		r.Use(BearerAuth(opts.Config.AuthToken))
		NewQueueHandler(opts.Queue, opts.Watcher).Routes(r)
		NewTranscriptsHandler(opts.Transcripts).Routes(r)
		NewEventsHandler(opts.Events).Routes(r)
	})

	return r
}

func (s *Server) Start() error {
	s.log.Info().Str("addr", s.http.Addr).Msg("http server starting")
	err := s.http.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}

func (s *Server) Shutdown(ctx context.Context) error {
	s.log.Info().Msg("http server shutting down")
	return s.http.Shutdown(ctx)
}
