package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"equiprent/internal/auth"
	"equiprent/internal/config"
	"equiprent/internal/repository"
	"equiprent/internal/service"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

// IdempotencyStore keeps replayable responses of booking requests.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string, ttl time.Duration) (*repository.StoredResponse, bool, error)
	Complete(ctx context.Context, key string, resp repository.StoredResponse, ttl time.Duration) error
	Abort(ctx context.Context, key string) error
}

// HealthCheck reports whether a dependency is usable.
type HealthCheck func(ctx context.Context) error

// HTTPServer is the JSON API in front of the booking service.
type HTTPServer struct {
	cfg         config.APIConfig
	svc         *service.BookingService
	equipment   *service.EquipmentService
	resolver    auth.Resolver
	idempotency IdempotencyStore
	logger      *zerolog.Logger
	checks      map[string]HealthCheck

	router chi.Router
	server *http.Server
}

func NewHTTPServer(
	cfg config.APIConfig,
	svc *service.BookingService,
	equipment *service.EquipmentService,
	resolver auth.Resolver,
	idempotency IdempotencyStore,
	logger *zerolog.Logger,
) *HTTPServer {
	srv := &HTTPServer{
		cfg:         cfg,
		svc:         svc,
		equipment:   equipment,
		resolver:    resolver,
		idempotency: idempotency,
		logger:      logger,
		checks:      make(map[string]HealthCheck),
	}
	srv.router = srv.routes()
	srv.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.HTTP.Port),
		Handler:           srv.router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       cfg.HTTP.ReadTimeout,
		WriteTimeout:      cfg.HTTP.WriteTimeout,
	}
	return srv
}

// AddHealthCheck registers a dependency reported by /readyz.
func (s *HTTPServer) AddHealthCheck(name string, check HealthCheck) {
	s.checks[name] = check
}

func (s *HTTPServer) Handler() http.Handler {
	return s.router
}

func (s *HTTPServer) routes() chi.Router {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(accessLog(s.logger))
	r.Use(tracing)

	r.Get("/healthz", s.handleHealthz)
	r.Get("/readyz", s.handleReadyz)

	r.Route("/api/v1", func(r chi.Router) {
		r.Use(newClientAuth(s.cfg).Wrap)
		r.Use(s.requireActor)

		r.Post("/bookings", s.handleCreateBooking)
		r.Get("/bookings/{id}", s.handleGetBooking)
		r.Post("/bookings/{id}/transition", s.handleTransition)
		r.Post("/bookings/{id}/accept", s.handleAccept)
		r.Post("/bookings/{id}/reject", s.handleReject)

		r.Get("/equipment/{id}", s.handleGetEquipment)
		r.Get("/equipment/{id}/active", s.handleListActive)
		r.Post("/equipment/{id}/active", s.handleSetActive)
		r.Put("/equipment/{id}/rates", s.handleUpdateRates)
		r.Get("/equipment/{id}/availability", s.handleAvailability)

		r.Get("/me/bookings", s.handleMyBookings)
		r.Get("/me/bookings/export.xlsx", s.handleExport)
		r.Get("/me/overview", s.handleOverview)

		r.Get("/admin/bookings", s.handleAdminBookings)
	})

	return r
}

func (s *HTTPServer) Start() error {
	if s.server == nil {
		return fmt.Errorf("http server is not initialized")
	}
	s.logger.Info().Str("addr", s.server.Addr).Msg("HTTP API listening")
	if err := s.server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *HTTPServer) Shutdown(ctx context.Context) error {
	if s.server == nil {
		return nil
	}
	return s.server.Shutdown(ctx)
}

func (s *HTTPServer) handleHealthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *HTTPServer) handleReadyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()

	status := http.StatusOK
	report := make(map[string]string, len(s.checks))
	for name, check := range s.checks {
		if err := check(ctx); err != nil {
			status = http.StatusServiceUnavailable
			report[name] = err.Error()
			continue
		}
		report[name] = "ok"
	}
	writeJSON(w, status, map[string]any{"checks": report})
}
