package services

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"lovetrack-backend/internal/common"

	"github.com/gorilla/websocket"
	"github.com/rs/zerolog/log"
)

// WebSocket message types
const (
	MsgCoupleStatus  = "couple_status"
	MsgPartnerStatus = "partner_status"
	MsgCoupleJoined  = "couple_joined"
	MsgEventsChanged = "events_changed"
	MsgFieldChanged  = "field_changed"
	MsgPing          = "ping"
	MsgPong          = "pong"
	MsgError         = "error"
)

const writeWait = 10 * time.Second

// WSMessage represents a WebSocket message. Change notifications carry no
// couple data; clients refetch.
type WSMessage struct {
	Type          string `json:"type"`
	Timestamp     int64  `json:"timestamp,omitempty"`
	CoupleID      string `json:"coupleId,omitempty"`
	Paired        *bool  `json:"paired,omitempty"`
	PartnerOnline *bool  `json:"partnerOnline,omitempty"`
	Online        *bool  `json:"online,omitempty"`
	Field         string `json:"field,omitempty"`
	Message       string `json:"message,omitempty"`
}

// Notifier pushes a message to the online members of a couple
type Notifier interface {
	NotifyCouple(ctx context.Context, coupleID string, message WSMessage)
}

type nopNotifier struct{}

func (nopNotifier) NotifyCouple(context.Context, string, WSMessage) {}

// wsClient serializes writes; gorilla allows one concurrent writer per conn
type wsClient struct {
	conn *websocket.Conn
	mu   sync.Mutex
}

func (c *wsClient) write(data []byte) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	_ = c.conn.SetWriteDeadline(time.Now().Add(writeWait))
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// WSHub manages WebSocket connections, one per user
type WSHub struct {
	mu            sync.RWMutex
	connections   map[string]*wsClient
	coupleService *CoupleService
}

// NewWSHub creates a new WebSocket hub
func NewWSHub(coupleService *CoupleService) *WSHub {
	return &WSHub{
		connections:   make(map[string]*wsClient),
		coupleService: coupleService,
	}
}

// Register registers a new WebSocket connection for a user, replacing and
// closing an older one
func (h *WSHub) Register(userID string, conn *websocket.Conn) {
	h.mu.Lock()
	if existing, exists := h.connections[userID]; exists {
		existing.conn.Close()
	}
	h.connections[userID] = &wsClient{conn: conn}
	h.mu.Unlock()

	log.Info().Str("user_id", userID).Msg("WebSocket connection registered")
}

// Unregister removes the user's connection if it is still conn. A newer
// connection registered in the meantime is left alone.
func (h *WSHub) Unregister(userID string, conn *websocket.Conn) bool {
	h.mu.Lock()
	defer h.mu.Unlock()

	client, exists := h.connections[userID]
	if !exists || client.conn != conn {
		return false
	}
	client.conn.Close()
	delete(h.connections, userID)
	log.Info().Str("user_id", userID).Msg("WebSocket connection unregistered")
	return true
}

// SendToUser sends a message to a specific user
func (h *WSHub) SendToUser(userID string, message WSMessage) error {
	h.mu.RLock()
	client, exists := h.connections[userID]
	h.mu.RUnlock()

	if !exists {
		return fmt.Errorf("user %s is not connected", userID)
	}

	if message.Timestamp == 0 {
		message.Timestamp = time.Now().UnixMilli()
	}
	data, err := json.Marshal(message)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}

	if err := client.write(data); err != nil {
		h.Unregister(userID, client.conn)
		return fmt.Errorf("failed to send message: %w", err)
	}

	return nil
}

// IsOnline checks if a user is online
func (h *WSHub) IsOnline(userID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, exists := h.connections[userID]
	return exists
}

// NotifyCouple sends message to every online member of the couple
func (h *WSHub) NotifyCouple(ctx context.Context, coupleID string, message WSMessage) {
	couple, err := h.coupleService.GetCouple(ctx, coupleID)
	if err != nil {
		log.Error().Err(err).Str("couple_ref", common.Ref(coupleID)).Msg("Failed to resolve couple for notification")
		return
	}
	message.CoupleID = coupleID
	for _, member := range couple.Members {
		if !h.IsOnline(member) {
			continue
		}
		if err := h.SendToUser(member, message); err != nil {
			log.Error().Err(err).Str("user_id", member).Str("type", message.Type).Msg("Failed to notify member")
		}
	}
}

// NotifyPartnerStatus notifies partner about online/offline status
func (h *WSHub) NotifyPartnerStatus(partnerID string, online bool) {
	if partnerID == "" || !h.IsOnline(partnerID) {
		return
	}

	message := WSMessage{
		Type:   MsgPartnerStatus,
		Online: &online,
	}

	if err := h.SendToUser(partnerID, message); err != nil {
		log.Error().
			Err(err).
			Str("user_id", partnerID).
			Msg("Failed to notify partner status")
	}
}

// CoupleStatus builds the status message sent to a user on connect
func (h *WSHub) CoupleStatus(ctx context.Context, userID string) (WSMessage, string) {
	paired := false
	partnerOnline := false
	msg := WSMessage{Type: MsgCoupleStatus, Paired: &paired, PartnerOnline: &partnerOnline}

	couple, err := h.coupleService.CoupleOfUser(ctx, userID)
	if err != nil {
		return msg, ""
	}
	partnerID := couple.PartnerOf(userID)
	paired = partnerID != ""
	partnerOnline = paired && h.IsOnline(partnerID)
	msg.CoupleID = couple.ID
	return msg, partnerID
}

// Close closes every connection
func (h *WSHub) Close() {
	h.mu.Lock()
	defer h.mu.Unlock()
	for userID, client := range h.connections {
		client.conn.Close()
		delete(h.connections, userID)
	}
}
