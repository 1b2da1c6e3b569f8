// Package api provides the HTTP service implementation for Tripwire.
//
// Thin orchestration layer: handlers decode and validate requests, then
// delegate to the stores, the schedule coordinator, and the dispatch
// engine. All domain decisions live in those packages; the API owns only
// the wire contract and the error-to-status mapping.
package api

import (
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/tripwirehq/tripwire/internal/core/store"
	"github.com/tripwirehq/tripwire/internal/dispatch"
	"github.com/tripwirehq/tripwire/internal/metrics"
	"github.com/tripwirehq/tripwire/internal/schedule"
)

// Service implements the HTTP API.
type Service struct {
	stores      *store.Stores
	coordinator *schedule.Coordinator
	engine      *dispatch.Engine
	metrics     *metrics.Metrics
	log         zerolog.Logger

	requestTimeout time.Duration
}

// NewService creates the service instance with its dependencies.
func NewService(stores *store.Stores, coordinator *schedule.Coordinator, engine *dispatch.Engine, m *metrics.Metrics, logger zerolog.Logger, requestTimeout time.Duration) (*Service, error) {
	if stores == nil {
		return nil, fmt.Errorf("stores cannot be nil")
	}
	if coordinator == nil {
		return nil, fmt.Errorf("coordinator cannot be nil")
	}
	if engine == nil {
		return nil, fmt.Errorf("engine cannot be nil")
	}
	if m == nil {
		return nil, fmt.Errorf("metrics cannot be nil")
	}
	if requestTimeout <= 0 {
		requestTimeout = 60 * time.Second
	}

	return &Service{
		stores:         stores,
		coordinator:    coordinator,
		engine:         engine,
		metrics:        m,
		log:            logger.With().Str("component", "api").Logger(),
		requestTimeout: requestTimeout,
	}, nil
}

// Router builds the HTTP routing table.
func (s *Service) Router() http.Handler {
	r := chi.NewRouter()

	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(s.requestLogger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(s.requestTimeout))

	r.Get("/health", s.handleHealth)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(s.metrics.Registry(), promhttp.HandlerOpts{}))

	r.Route("/api/v1", func(r chi.Router) {
		r.Get("/health", s.handleHealth)
		r.Post("/events", s.handleIngestEvent)

		r.Route("/event-types", func(r chi.Router) {
			r.Get("/", s.handleListEventTypes)
			r.Post("/", s.handleCreateEventType)
			r.Get("/{id}", s.handleGetEventType)
			r.Delete("/{id}", s.handleDeleteEventType)
		})

		r.Route("/targets", func(r chi.Router) {
			r.Get("/", s.handleListTargets)
			r.Post("/", s.handleCreateTarget)
			r.Get("/{id}", s.handleGetTarget)
			r.Delete("/{id}", s.handleDeleteTarget)
		})

		r.Route("/rules", func(r chi.Router) {
			r.Get("/", s.handleListRules)
			r.Post("/", s.handleCreateRule)
			r.Get("/{id}", s.handleGetRule)
			r.Put("/{id}", s.handleUpdateRule)
			r.Delete("/{id}", s.handleDeleteRule)
			r.Get("/{id}/executions", s.handleListRuleExecutions)
		})
	})

	return r
}

// handleHealth reports liveness, including database reachability.
func (s *Service) handleHealth(w http.ResponseWriter, r *http.Request) {
	if err := s.stores.Ping(r.Context()); err != nil {
		s.log.Error().Err(err).Msg("health check failed")
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// requestLogger emits one structured log line per request.
func (s *Service) requestLogger(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		s.log.Info().
			Str("method", r.Method).
			Str("path", r.URL.Path).
			Str("request_id", middleware.GetReqID(r.Context())).
			Int("status", ww.Status()).
			Dur("duration", time.Since(start)).
			Msg("request")
	})
}
