// Package server provides HTTP server wiring and lifecycle management.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/sharemeal/sharemeal-go/internal/booking"
	"github.com/sharemeal/sharemeal-go/internal/cache"
	"github.com/sharemeal/sharemeal-go/internal/config"
	"github.com/sharemeal/sharemeal-go/internal/disclosure"
	"github.com/sharemeal/sharemeal-go/internal/events"
	"github.com/sharemeal/sharemeal-go/internal/food"
	"github.com/sharemeal/sharemeal-go/internal/identity"
	"github.com/sharemeal/sharemeal-go/internal/ratelimit"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

var ErrMissingDep = errors.New("missing required dependency")

// Deps holds all server dependencies.
type Deps struct {
	// Required: persistence
	Store store.Store

	// Required: auth primitives
	UserAuth *identity.UserAuth
	Tokens   *identity.TokenManager

	// Required: lifecycle event sink
	Emitter events.Emitter

	// Optional: cache for user lookups and rate limiting. Nil disables
	// both; every request then hits the store.
	Cache cache.CacheWithCounter
}

// Server wraps the HTTP server and its dependencies.
type Server struct {
	cfg        *config.Config
	httpServer *http.Server
	logger     *slog.Logger
	deps       *Deps

	identityHandler *identity.Handler
	foodHandler     *food.Handler
	bookingHandler  *booking.Handler
	authLimiter     *ratelimit.Limiter
}

// New creates a new Server with the given configuration.
// Returns an error if required dependencies are missing.
func New(cfg *config.Config, logger *slog.Logger, deps *Deps) (*Server, error) {
	// Fail fast: validate required dependencies
	if err := validateDeps(deps); err != nil {
		return nil, err
	}

	identityHandler := identity.NewHandler(deps.Store, deps.UserAuth, deps.Tokens, deps.Cache, logger)

	foodSvc := food.NewService(deps.Store, deps.Store, logger)
	foodHandler := food.NewHandler(foodSvc, disclosure.NewGate(deps.Store), deps.Store)

	bookingMgr := booking.NewManager(deps.Store, deps.Store, deps.Emitter, logger)
	bookingHandler := booking.NewHandler(bookingMgr, deps.Store)

	s := &Server{
		cfg:             cfg,
		logger:          logger,
		deps:            deps,
		identityHandler: identityHandler,
		foodHandler:     foodHandler,
		bookingHandler:  bookingHandler,
	}

	// Credential endpoints are the brute-force surface; everything else
	// rides without a limiter.
	if deps.Cache != nil {
		s.authLimiter = ratelimit.New(deps.Cache, &ratelimit.Config{
			RequestsPerWindow: 10,
			Window:            time.Minute,
			KeyPrefix:         "ratelimit:auth:",
		})
	}

	router := s.setupRoutes()

	s.httpServer = &http.Server{
		Addr:         cfg.ListenAddr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the configured router, for tests that drive the server
// through httptest.
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start starts the HTTP server. It blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("starting server", "addr", s.cfg.ListenAddr, "store", s.deps.Store.Name())
	return s.httpServer.ListenAndServe()
}

// Shutdown gracefully shuts down the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down server")
	return s.httpServer.Shutdown(ctx)
}

// validateDeps checks that all required dependencies are provided.
func validateDeps(deps *Deps) error {
	if deps == nil {
		return errors.New("deps is nil")
	}
	if deps.Store == nil {
		return fmt.Errorf("%w: Store", ErrMissingDep)
	}
	if deps.UserAuth == nil {
		return fmt.Errorf("%w: UserAuth", ErrMissingDep)
	}
	if deps.Tokens == nil {
		return fmt.Errorf("%w: Tokens", ErrMissingDep)
	}
	if deps.Emitter == nil {
		return fmt.Errorf("%w: Emitter", ErrMissingDep)
	}
	// Cache is optional
	return nil
}
