package http

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/couchcryptid/occupancy-service/internal/domain"
	"github.com/couchcryptid/occupancy-service/internal/engine"
	"github.com/couchcryptid/occupancy-service/internal/observability"
	sharedobs "github.com/couchcryptid/storm-data-shared/observability"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// OccupancyView is the read side served by the API.
type OccupancyView interface {
	sharedobs.ReadinessChecker
	Snapshot(focus domain.FloorID) (domain.ViewModel, engine.State, bool)
	Building() domain.Building
}

// Sink accepts stamped readings from manual submissions and returns the id
// they were recorded under.
type Sink interface {
	Submit(ctx context.Context, raw domain.RawReading) (string, error)
}

// Options configures the API server.
type Options struct {
	Addr           string
	AllowedOrigins []string
	View           OccupancyView
	Sink           Sink
	// Queued is true when the sink acknowledges before the reading reaches
	// the feed; submissions then answer 202 instead of 201.
	Queued  bool
	Metrics *observability.Metrics
}

// Server exposes the occupancy API alongside health, readiness, and metrics
// endpoints.
type Server struct {
	httpServer *http.Server
	view       OccupancyView
	sink       Sink
	queued     bool
	metrics    *observability.Metrics
	logger     *slog.Logger
}

// NewServer creates an HTTP server with /healthz, /readyz, /metrics and the
// /api routes.
func NewServer(opts Options, logger *slog.Logger) *Server {
	r := chi.NewRouter()

	s := &Server{
		httpServer: &http.Server{
			Addr:         opts.Addr,
			Handler:      r,
			ReadTimeout:  10 * time.Second,
			WriteTimeout: 10 * time.Second,
			IdleTimeout:  60 * time.Second,
		},
		view:    opts.View,
		sink:    opts.Sink,
		queued:  opts.Queued,
		metrics: opts.Metrics,
		logger:  logger,
	}

	r.Use(middleware.Recoverer)
	r.Use(cors.Handler(cors.Options{
		AllowedOrigins: opts.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Content-Type"},
		MaxAge:         300,
	}))

	r.Get("/healthz", sharedobs.LivenessHandler())
	r.Get("/readyz", sharedobs.ReadinessHandler(opts.View))
	r.Method(http.MethodGet, "/metrics", promhttp.Handler())

	r.Route("/api", func(r chi.Router) {
		r.Get("/occupancy", s.handleOccupancy)
		r.Get("/floors", s.handleFloors)
		r.Post("/readings", s.handleSubmit)
	})

	return s
}

// Start begins listening. Returns http.ErrServerClosed on graceful shutdown.
func (s *Server) Start() error {
	s.logger.Info("http server starting", "addr", s.httpServer.Addr)
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully drains connections within the given context deadline.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}

// ServeHTTP delegates to the underlying handler, useful for testing.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.httpServer.Handler.ServeHTTP(w, r)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	sharedobs.WriteJSON(w, status, map[string]string{"error": msg})
}
