package server

import (
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5/middleware"

	"github.com/sharemeal/sharemeal-go/internal/api"
	"github.com/sharemeal/sharemeal-go/internal/cache"
	"github.com/sharemeal/sharemeal-go/internal/identity"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

// loggingMiddleware logs request information using slog.
func (s *Server) loggingMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)

		defer func() {
			s.logger.Info("request",
				"method", r.Method,
				"path", r.URL.Path,
				"status", ww.Status(),
				"bytes", ww.BytesWritten(),
				"duration_ms", time.Since(start).Milliseconds(),
				"request_id", middleware.GetReqID(r.Context()),
			)
		}()

		next.ServeHTTP(ww, r)
	})
}

// authMiddleware enforces bearer-token authentication.
// Public endpoints (health, register, login) bypass auth.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if !IsAuthRequired(r.URL.Path) {
			next.ServeHTTP(w, r)
			return
		}

		token := extractBearerToken(r)
		if token == "" {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
			return
		}

		userID, err := s.deps.Tokens.Verify(token)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "invalid or expired token")
			return
		}

		user, err := s.resolveUser(r, userID)
		if err != nil {
			api.WriteUnauthorized(w, api.ReasonUnauthenticated, "account no longer exists")
			return
		}

		next.ServeHTTP(w, r.WithContext(identity.WithUser(r.Context(), user)))
	})
}

// cachedUser is the cache representation of an authenticated-user
// lookup. The hash is carried in a dedicated field because User strips
// it from JSON; caching the bare struct would hand handlers a user
// record with an empty hash.
type cachedUser struct {
	User         store.User `json:"user"`
	PasswordHash string     `json:"password_hash"`
}

// resolveUser loads the token subject, through the cache when one is
// configured. A short TTL bounds how long a stale profile is served.
func (s *Server) resolveUser(r *http.Request, userID string) (*store.User, error) {
	ctx := r.Context()
	key := identity.UserCacheKey(userID)

	if s.deps.Cache != nil {
		if raw, err := s.deps.Cache.Get(ctx, key); err == nil {
			var cached cachedUser
			if err := json.Unmarshal(raw, &cached); err == nil {
				user := cached.User
				user.PasswordHash = cached.PasswordHash
				return &user, nil
			}
		}
	}

	user, err := s.deps.Store.GetUser(ctx, userID)
	if err != nil {
		return nil, err
	}

	if s.deps.Cache != nil {
		if raw, err := json.Marshal(cachedUser{User: *user, PasswordHash: user.PasswordHash}); err == nil {
			s.deps.Cache.Set(ctx, key, raw, cache.TTLUserLookup)
		}
	}
	return user, nil
}

// extractBearerToken gets the access token from the Authorization header.
func extractBearerToken(r *http.Request) string {
	auth := r.Header.Get("Authorization")
	if strings.HasPrefix(auth, "Bearer ") {
		return strings.TrimPrefix(auth, "Bearer ")
	}
	return ""
}
