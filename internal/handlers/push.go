package handlers

import (
	"net/http"

	"lovetrack-backend/internal/middleware"
	"lovetrack-backend/internal/services"
)

// PushHandler handles device registration for reminders
type PushHandler struct {
	userService    *services.UserService
	vapidPublicKey string
}

// NewPushHandler creates a new push handler. An empty VAPID key means web
// push is not configured.
func NewPushHandler(userService *services.UserService, vapidPublicKey string) *PushHandler {
	return &PushHandler{
		userService:    userService,
		vapidPublicKey: vapidPublicKey,
	}
}

// RegisterToken handles POST /api/v1/push/tokens
func (h *PushHandler) RegisterToken(w http.ResponseWriter, r *http.Request) {
	var req services.RegisterPushTokenRequest
	if err := decodeJSON(r, &req); err != nil {
		respondServiceError(w, r, err)
		return
	}

	token, err := h.userService.RegisterPushToken(r.Context(), middleware.GetUserID(r.Context()), req)
	if err != nil {
		respondServiceError(w, r, err)
		return
	}

	respondJSON(w, http.StatusCreated, map[string]string{
		"platform": token.Platform,
		"status":   "registered",
	})
}

// VAPIDKey handles GET /api/v1/push/vapid-key
func (h *PushHandler) VAPIDKey(w http.ResponseWriter, r *http.Request) {
	if h.vapidPublicKey == "" {
		respondError(w, "Web push is not configured", http.StatusNotFound)
		return
	}
	respondJSON(w, http.StatusOK, map[string]string{"publicKey": h.vapidPublicKey})
}
