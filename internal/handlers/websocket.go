package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"lovetrack-backend/internal/services"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

const maxMessageBytes = 4096

// WebSocketHandler handles WebSocket connections
type WebSocketHandler struct {
	hub         *services.WSHub
	userService *services.UserService
	upgrader    websocket.Upgrader
}

// NewWebSocketHandler creates a new WebSocket handler. allowedOrigins of
// ["*"] accepts any origin.
func NewWebSocketHandler(hub *services.WSHub, userService *services.UserService, allowedOrigins []string) *WebSocketHandler {
	allowAll := len(allowedOrigins) == 0
	allowed := make(map[string]bool, len(allowedOrigins))
	for _, o := range allowedOrigins {
		if o == "*" {
			allowAll = true
		}
		allowed[o] = true
	}

	return &WebSocketHandler{
		hub:         hub,
		userService: userService,
		upgrader: websocket.Upgrader{
			CheckOrigin: func(r *http.Request) bool {
				origin := r.Header.Get("Origin")
				return allowAll || origin == "" || allowed[origin]
			},
		},
	}
}

// HandleWebSocket handles GET /ws?token=
func (h *WebSocketHandler) HandleWebSocket(w http.ResponseWriter, r *http.Request) {
	token := r.URL.Query().Get("token")
	if token == "" {
		respondError(w, "token required", http.StatusUnauthorized)
		return
	}

	userID, err := h.userService.ValidateJWT(token)
	if err != nil {
		respondError(w, "invalid token", http.StatusUnauthorized)
		return
	}

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		log.Error().Err(err).Msg("Failed to upgrade WebSocket connection")
		return
	}
	conn.SetReadLimit(maxMessageBytes)

	h.hub.Register(userID, conn)

	// hijacked connections outlive request cancellation
	ctx := context.WithoutCancel(r.Context())
	status, partnerID := h.hub.CoupleStatus(ctx, userID)
	if err := h.hub.SendToUser(userID, status); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send couple_status message")
	}
	h.hub.NotifyPartnerStatus(partnerID, true)

	log.Info().Str("user_id", userID).Msg("WebSocket connection established")

	defer func() {
		if h.hub.Unregister(userID, conn) {
			// partner may have changed while connected
			_, partnerID := h.hub.CoupleStatus(ctx, userID)
			h.hub.NotifyPartnerStatus(partnerID, false)
		}
	}()

	for {
		_, messageBytes, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				log.Error().Err(err).Str("user_id", userID).Msg("WebSocket error")
			}
			return
		}

		var msg services.WSMessage
		if err := json.Unmarshal(messageBytes, &msg); err != nil {
			h.sendError(userID, "Invalid message format")
			continue
		}

		switch msg.Type {
		case services.MsgPing:
			if err := h.hub.SendToUser(userID, services.WSMessage{Type: services.MsgPong, Timestamp: time.Now().UnixMilli()}); err != nil {
				log.Error().Err(err).Str("user_id", userID).Msg("Failed to send pong")
			}
		default:
			h.sendError(userID, "Unknown message type")
		}
	}
}

// sendError sends an error message to a user
func (h *WebSocketHandler) sendError(userID, message string) {
	msg := services.WSMessage{
		Type:    services.MsgError,
		Message: message,
	}
	if err := h.hub.SendToUser(userID, msg); err != nil {
		log.Error().Err(err).Str("user_id", userID).Msg("Failed to send error message")
	}
}
