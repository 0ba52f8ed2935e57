package handlers

import (
	"context"
	"net/http"

	"direct-chat-backend/internal/middleware"
	"direct-chat-backend/internal/models"
	"direct-chat-backend/internal/services"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
)

// Accounts is the user service as seen by the HTTP layer
type Accounts interface {
	Signup(ctx context.Context, req services.SignupRequest) (*services.AuthResponse, error)
	Login(ctx context.Context, req services.LoginRequest) (*services.AuthResponse, error)
	GetUser(ctx context.Context, userID string) (*models.User, error)
	UpdateProfile(ctx context.Context, userID string, req services.UpdateProfileRequest) (*models.User, error)
	UpdatePushToken(ctx context.Context, userID, pushToken string) error
}

// UserHandler handles authentication and profile requests
type UserHandler struct {
	accounts Accounts
}

// NewUserHandler creates a new user handler
func NewUserHandler(accounts Accounts) *UserHandler {
	return &UserHandler{
		accounts: accounts,
	}
}

// PublicRoutes mounts the endpoints that need no token
func (h *UserHandler) PublicRoutes(r chi.Router) {
	r.Post("/signup", h.Signup)
	r.Post("/login", h.Login)
}

// ProtectedRoutes mounts the endpoints that need a token
func (h *UserHandler) ProtectedRoutes(r chi.Router) {
	r.Get("/check", h.Check)
	r.Put("/update-profile", h.UpdateProfile)
	r.Put("/push-token", h.UpdatePushToken)
}

// Signup handles POST /api/v1/auth/signup
func (h *UserHandler) Signup(w http.ResponseWriter, r *http.Request) {
	var req services.SignupRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.accounts.Signup(r.Context(), req)
	if err != nil {
		log.Error().Err(err).Str("email", req.Email).Msg("Failed to sign up")
		respondServiceError(w, err)
		return
	}

	log.Info().Str("user_id", resp.ID).Msg("User created")
	respondJSON(w, http.StatusCreated, resp)
}

// Login handles POST /api/v1/auth/login
func (h *UserHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req services.LoginRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.accounts.Login(r.Context(), req)
	if err != nil {
		log.Warn().Err(err).Str("email", req.Email).Msg("Failed login")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, resp)
}

// Check handles GET /api/v1/auth/check
func (h *UserHandler) Check(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, err := h.accounts.GetUser(ctx, middleware.GetUserID(ctx))
	if err != nil {
		respondServiceError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, user)
}

// UpdateProfile handles PUT /api/v1/auth/update-profile
func (h *UserHandler) UpdateProfile(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req services.UpdateProfileRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	user, err := h.accounts.UpdateProfile(ctx, userID, req)
	if err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update profile")
		respondServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}

// PushTokenRequest carries an APNs device token; empty clears it
type PushTokenRequest struct {
	PushToken string `json:"pushToken"`
}

// UpdatePushToken handles PUT /api/v1/auth/push-token
func (h *UserHandler) UpdatePushToken(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	userID := middleware.GetUserID(ctx)

	var req PushTokenRequest
	if err := decodeJSON(w, r, &req); err != nil {
		respondError(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	if err := h.accounts.UpdatePushToken(ctx, userID, req.PushToken); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to update push token")
		respondServiceError(w, err)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}
