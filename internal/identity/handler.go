package identity

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/sharemeal/sharemeal-go/internal/api"
	"github.com/sharemeal/sharemeal-go/internal/cache"
	"github.com/sharemeal/sharemeal-go/internal/errs"
	"github.com/sharemeal/sharemeal-go/internal/store"
)

// UserCacheKey is the cache key under which the auth middleware stores
// an authenticated-user lookup.
func UserCacheKey(userID string) string {
	return "user:" + userID
}

// Handler handles authentication and profile endpoints.
type Handler struct {
	users  store.UserStore
	auth   *UserAuth
	tokens *TokenManager
	cache  cache.Cache
	logger *slog.Logger
}

// NewHandler creates a new identity handler. The cache may be nil; when
// set, profile mutations invalidate the auth middleware's user lookup.
func NewHandler(users store.UserStore, auth *UserAuth, tokens *TokenManager, c cache.Cache, logger *slog.Logger) *Handler {
	return &Handler{
		users:  users,
		auth:   auth,
		tokens: tokens,
		cache:  c,
		logger: logger,
	}
}

// invalidate drops the cached auth lookup so the next request reads the
// updated profile from the store.
func (h *Handler) invalidate(ctx context.Context, userID string) {
	if h.cache != nil {
		h.cache.Delete(ctx, UserCacheKey(userID))
	}
}

// UserView is the outward representation of the caller's own account.
// Phone and push token are the caller's own data; contact disclosure for
// other parties goes through the disclosure package.
type UserView struct {
	ID          string `json:"id"`
	Email       string `json:"email"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
	FCMToken    string `json:"fcm_token,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func viewOf(user *store.User) UserView {
	return UserView{
		ID:          user.ID,
		Email:       user.Email,
		DisplayName: user.DisplayName,
		Phone:       user.Phone,
		FCMToken:    user.FCMToken,
		CreatedAt:   time.Unix(user.CreatedAt, 0).UTC().Format(time.RFC3339),
	}
}

// RegisterRequest is the request body for POST /auth/register.
type RegisterRequest struct {
	Email       string `json:"email"`
	Password    string `json:"password"`
	DisplayName string `json:"display_name"`
	Phone       string `json:"phone,omitempty"`
}

// AuthResponse is the response for register and login.
type AuthResponse struct {
	AccessToken string   `json:"access_token"`
	TokenType   string   `json:"token_type"`
	ExpiresAt   string   `json:"expires_at"`
	User        UserView `json:"user"`
}

// Register handles POST /auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req RegisterRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	req.Email = strings.TrimSpace(strings.ToLower(req.Email))
	if _, err := mail.ParseAddress(req.Email); err != nil {
		api.WriteBadRequest(w, api.ReasonInvalidField, "invalid email address")
		return
	}
	if strings.TrimSpace(req.DisplayName) == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "display_name is required")
		return
	}
	if err := ValidatePassword(req.Password); err != nil {
		api.WriteDomainError(w, err)
		return
	}

	hash, err := h.auth.HashPassword(req.Password)
	if err != nil {
		api.WriteInternalError(w, "failed to hash password")
		return
	}

	now := time.Now().Unix()
	user := &store.User{
		ID:           uuid.NewString(),
		Email:        req.Email,
		DisplayName:  strings.TrimSpace(req.DisplayName),
		Phone:        strings.TrimSpace(req.Phone),
		PasswordHash: hash,
		CreatedAt:    now,
		UpdatedAt:    now,
	}

	if err := h.users.CreateUser(r.Context(), user); err != nil {
		if errors.Is(err, store.ErrAlreadyExists) {
			api.WriteConflict(w, errs.ReasonEmailTaken, "email already registered")
			return
		}
		api.WriteDomainError(w, errs.Unavailable(err))
		return
	}

	h.logger.Info("user registered", "user_id", user.ID)
	h.writeAuthResponse(w, http.StatusCreated, user)
}

// LoginRequest is the request body for POST /auth/login.
type LoginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Login handles POST /auth/login.
func (h *Handler) Login(w http.ResponseWriter, r *http.Request) {
	var req LoginRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if req.Email == "" || req.Password == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "email and password required")
		return
	}

	email := strings.TrimSpace(strings.ToLower(req.Email))
	user, err := h.users.GetUserByEmail(r.Context(), email)
	if err != nil {
		// Do not reveal whether the account exists.
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid email or password")
		return
	}
	if err := h.auth.VerifyPassword(user.PasswordHash, req.Password); err != nil {
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "invalid email or password")
		return
	}

	h.logger.Info("user logged in", "user_id", user.ID)
	h.writeAuthResponse(w, http.StatusOK, user)
}

func (h *Handler) writeAuthResponse(w http.ResponseWriter, status int, user *store.User) {
	token, exp, err := h.tokens.Issue(user.ID)
	if err != nil {
		api.WriteInternalError(w, "failed to issue token")
		return
	}
	api.WriteJSON(w, status, AuthResponse{
		AccessToken: token,
		TokenType:   "bearer",
		ExpiresAt:   exp.UTC().Format(time.RFC3339),
		User:        viewOf(user),
	})
}

// Profile handles GET /user.
func (h *Handler) Profile(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}
	api.WriteJSON(w, http.StatusOK, viewOf(user))
}

// FCMTokenRequest is the request body for POST /user/fcm-token.
type FCMTokenRequest struct {
	FCMToken string `json:"fcm_token"`
}

// UpdateFCMToken handles POST /user/fcm-token. The token is opaque to the
// core; it is stored for the external notification dispatcher.
func (h *Handler) UpdateFCMToken(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req FCMTokenRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}
	if strings.TrimSpace(req.FCMToken) == "" {
		api.WriteBadRequest(w, api.ReasonMissingField, "fcm_token is required")
		return
	}

	// Mutations write the stored record, never the context copy: the
	// context user may come from the auth cache, which does not carry
	// the password hash.
	fresh, err := h.users.GetUser(r.Context(), user.ID)
	if err != nil {
		api.WriteDomainError(w, errs.Unavailable(err))
		return
	}
	fresh.FCMToken = req.FCMToken
	fresh.UpdatedAt = time.Now().Unix()
	if err := h.users.UpdateUser(r.Context(), fresh); err != nil {
		api.WriteDomainError(w, errs.Unavailable(err))
		return
	}
	h.invalidate(r.Context(), user.ID)

	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "fcm_token_updated"})
}

// ChangePasswordRequest is the request body for POST /user/change-password.
type ChangePasswordRequest struct {
	OldPassword string `json:"old_password"`
	NewPassword string `json:"new_password"`
}

// ChangePassword handles POST /user/change-password.
func (h *Handler) ChangePassword(w http.ResponseWriter, r *http.Request) {
	user := UserFromContext(r.Context())
	if user == nil {
		api.WriteUnauthorized(w, api.ReasonUnauthenticated, "authentication required")
		return
	}

	var req ChangePasswordRequest
	if err := api.DecodeJSON(r, &req); err != nil {
		api.WriteBadRequest(w, api.ReasonBadRequest, "invalid JSON body")
		return
	}

	// The stored record is the authority on the current hash; the
	// context user may be a cache round-trip without one.
	fresh, err := h.users.GetUser(r.Context(), user.ID)
	if err != nil {
		api.WriteDomainError(w, errs.Unavailable(err))
		return
	}

	if err := h.auth.VerifyPassword(fresh.PasswordHash, req.OldPassword); err != nil {
		api.WriteUnauthorized(w, api.ReasonInvalidCredentials, "current password is incorrect")
		return
	}
	if req.OldPassword == req.NewPassword {
		api.WriteBadRequest(w, api.ReasonInvalidField, "new password must be different from current password")
		return
	}
	if err := ValidatePassword(req.NewPassword); err != nil {
		api.WriteDomainError(w, err)
		return
	}

	hash, err := h.auth.HashPassword(req.NewPassword)
	if err != nil {
		api.WriteInternalError(w, "failed to hash password")
		return
	}

	fresh.PasswordHash = hash
	fresh.UpdatedAt = time.Now().Unix()
	if err := h.users.UpdateUser(r.Context(), fresh); err != nil {
		api.WriteDomainError(w, errs.Unavailable(err))
		return
	}
	h.invalidate(r.Context(), user.ID)

	h.logger.Info("password changed", "user_id", user.ID)
	api.WriteJSON(w, http.StatusOK, map[string]string{"status": "password_changed"})
}
