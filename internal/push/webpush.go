package push

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"lovetrack-backend/internal/models"

	webpush "github.com/SherClockHolmes/webpush-go"
)

// WebPushConfig holds the VAPID key pair and contact
type WebPushConfig struct {
	VAPIDPublicKey  string
	VAPIDPrivateKey string
	Subscriber      string
	TTL             int
}

// WebPushSender sends reminders to browser subscriptions
type WebPushSender struct {
	cfg        WebPushConfig
	httpClient webpush.HTTPClient
}

// NewWebPushSender creates a Web Push sender
func NewWebPushSender(cfg WebPushConfig) *WebPushSender {
	if cfg.TTL <= 0 {
		cfg.TTL = 86400
	}
	if cfg.Subscriber == "" {
		cfg.Subscriber = "mailto:noreply@lovetrack.app"
	}
	return &WebPushSender{cfg: cfg}
}

// VAPIDPublicKey returns the VAPID public key for client-side subscription
func (s *WebPushSender) VAPIDPublicKey() string {
	return s.cfg.VAPIDPublicKey
}

// Send posts the payload to the subscription endpoint. The token is the
// subscription JSON the browser produced.
func (s *WebPushSender) Send(ctx context.Context, t *models.PushToken, p Payload) error {
	var sub webpush.Subscription
	if err := json.Unmarshal([]byte(t.Token), &sub); err != nil {
		return fmt.Errorf("decode subscription: %w", err)
	}

	data, err := json.Marshal(p)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	resp, err := webpush.SendNotificationWithContext(ctx, data, &sub, &webpush.Options{
		HTTPClient:      s.httpClient,
		VAPIDPublicKey:  s.cfg.VAPIDPublicKey,
		VAPIDPrivateKey: s.cfg.VAPIDPrivateKey,
		Subscriber:      s.cfg.Subscriber,
		TTL:             s.cfg.TTL,
	})
	if err != nil {
		return fmt.Errorf("send push: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusGone || resp.StatusCode == http.StatusNotFound {
		return ErrTokenExpired
	}
	if resp.StatusCode >= 400 {
		return fmt.Errorf("push service returned %d", resp.StatusCode)
	}

	return nil
}

// GenerateVAPIDKeys generates a new VAPID key pair
func GenerateVAPIDKeys() (publicKey, privateKey string, err error) {
	privateKey, publicKey, err = webpush.GenerateVAPIDKeys()
	if err != nil {
		return "", "", fmt.Errorf("generate VAPID keys: %w", err)
	}
	return publicKey, privateKey, nil
}
