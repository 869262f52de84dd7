package server

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"

	"github.com/sharemeal/sharemeal-go/internal/api"
)

// RouteGroup defines an endpoint group with its auth requirements.
type RouteGroup struct {
	Name         string
	PathPrefix   string
	RequiresAuth bool
}

// routeGroups defines all endpoint groups and their auth requirements.
// This table is the single source of truth for gating decisions.
var routeGroups = []RouteGroup{
	{Name: "health", PathPrefix: "/health", RequiresAuth: false},
	{Name: "auth", PathPrefix: "/auth", RequiresAuth: false},
	{Name: "food", PathPrefix: "/food", RequiresAuth: true},
	{Name: "requests", PathPrefix: "/requests", RequiresAuth: true},
	{Name: "user", PathPrefix: "/user", RequiresAuth: true},
}

// GetRouteGroups returns the route group definitions for testing.
func GetRouteGroups() []RouteGroup {
	return routeGroups
}

// IsAuthRequired checks if a given path requires authentication.
// This is used by the auth middleware to make gating decisions.
func IsAuthRequired(path string) bool {
	for _, rg := range routeGroups {
		if pathMatchesPrefix(path, rg.PathPrefix) {
			return rg.RequiresAuth
		}
	}
	// Default: require auth for unknown paths
	return true
}

// pathMatchesPrefix checks if path equals or is a subpath of prefix.
func pathMatchesPrefix(path, prefix string) bool {
	if path == prefix {
		return true
	}
	if len(path) > len(prefix) && path[:len(prefix)] == prefix {
		// Check for path separator
		if path[len(prefix)] == '/' {
			return true
		}
	}
	return false
}

// setupRoutes creates the chi router with all route groups mounted.
func (s *Server) setupRoutes() chi.Router {
	r := chi.NewRouter()

	// Global middleware stack (order matters for correct logging)
	// RequestID must come first so GetReqID works in loggingMiddleware.
	// loggingMiddleware wraps the response, Recoverer writes through the
	// wrapper, so the access log captures the status of panics too.
	r.Use(middleware.RequestID)
	r.Use(s.loggingMiddleware)
	r.Use(middleware.Recoverer)
	r.Use(s.authMiddleware)

	r.Get("/health", api.HealthHandler)

	r.Route("/auth", func(r chi.Router) {
		if s.authLimiter != nil {
			r.Use(s.authLimiter.Middleware)
		}
		r.Post("/register", s.identityHandler.Register)
		r.Post("/login", s.identityHandler.Login)
	})

	r.Route("/user", func(r chi.Router) {
		r.Get("/", s.identityHandler.Profile)
		r.Post("/fcm-token", s.identityHandler.UpdateFCMToken)
		r.Post("/change-password", s.identityHandler.ChangePassword)
	})

	r.Route("/food", func(r chi.Router) {
		r.Post("/", s.foodHandler.Create)
		r.Get("/", s.foodHandler.List)
		r.Get("/{id}", s.foodHandler.Get)
		r.Patch("/{id}", s.foodHandler.Update)
		r.Delete("/{id}", s.foodHandler.Delete)
		r.Post("/{id}/request", s.bookingHandler.Create)
	})

	r.Route("/requests", func(r chi.Router) {
		r.Get("/", s.bookingHandler.List)
		r.Get("/{id}", s.bookingHandler.Get)
		r.Patch("/{id}", s.bookingHandler.Decide)
		r.Delete("/{id}", s.bookingHandler.Cancel)
	})

	return r
}
