package push

import (
	"context"
	"fmt"

	"lovetrack-backend/internal/models"

	"github.com/sideshow/apns2"
	"github.com/sideshow/apns2/payload"
	"github.com/sideshow/apns2/token"
)

// APNsConfig holds the token-based (.p8) credentials of the app
type APNsConfig struct {
	KeyPath    string
	KeyID      string
	TeamID     string
	Topic      string
	Production bool
}

// pusher is the part of apns2.Client the sender uses
type pusher interface {
	PushWithContext(ctx apns2.Context, n *apns2.Notification) (*apns2.Response, error)
}

// APNsSender sends reminders to iOS devices
type APNsSender struct {
	client pusher
	topic  string
}

// NewAPNsSender builds a token-authenticated APNs client
func NewAPNsSender(cfg APNsConfig) (*APNsSender, error) {
	authKey, err := token.AuthKeyFromFile(cfg.KeyPath)
	if err != nil {
		return nil, fmt.Errorf("load apns auth key: %w", err)
	}
	client := apns2.NewTokenClient(&token.Token{
		AuthKey: authKey,
		KeyID:   cfg.KeyID,
		TeamID:  cfg.TeamID,
	})
	if cfg.Production {
		client = client.Production()
	} else {
		client = client.Development()
	}
	return &APNsSender{client: client, topic: cfg.Topic}, nil
}

// Send pushes an alert to the device
func (s *APNsSender) Send(ctx context.Context, t *models.PushToken, p Payload) error {
	body := payload.NewPayload().
		AlertTitle(p.Title).
		AlertBody(p.Body).
		Sound("default").
		ThreadID(p.Tag).
		Custom("eventId", p.EventID)

	res, err := s.client.PushWithContext(ctx, &apns2.Notification{
		DeviceToken: t.Token,
		Topic:       s.topic,
		Payload:     body,
	})
	if err != nil {
		return fmt.Errorf("send apns: %w", err)
	}
	if res.Sent() {
		return nil
	}

	switch res.Reason {
	case apns2.ReasonBadDeviceToken, apns2.ReasonUnregistered, apns2.ReasonDeviceTokenNotForTopic:
		return ErrTokenExpired
	}
	return fmt.Errorf("apns returned %d: %s", res.StatusCode, res.Reason)
}
