package handlers

import (
	"net/http"

	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/services"

	"github.com/rs/zerolog/log"
)

// UserHandler handles user-related HTTP requests
type UserHandler struct {
	userService *services.UserService
}

// NewUserHandler creates a new user handler
func NewUserHandler(userService *services.UserService) *UserHandler {
	return &UserHandler{
		userService: userService,
	}
}

// CreateUserResponse carries the new user and its bearer token
type CreateUserResponse struct {
	User  *models.User `json:"user"`
	Token string       `json:"token"`
}

// CreateUser handles POST /api/v1/users
func (h *UserHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	user, token, err := h.userService.CreateUser(r.Context())
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	log.Info().Str("user_id", user.ID).Msg("User created")

	respondJSON(w, http.StatusCreated, CreateUserResponse{User: user, Token: token})
}

// GetMe handles GET /api/v1/users/me
func (h *UserHandler) GetMe(w http.ResponseWriter, r *http.Request) {
	user, err := h.userService.GetUser(r.Context(), middleware.GetUserID(r.Context()))
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusOK, user)
}
