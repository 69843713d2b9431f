// Package push delivers event reminders to iOS devices through APNs and to
// browsers through Web Push, and runs the scheduler that finds due reminders.
package push

import (
	"context"
	"errors"
	"fmt"

	"lovetrack-backend/internal/models"
)

// ErrTokenExpired is returned when the provider reports the device token or
// subscription as no longer valid. The token should be deleted.
var ErrTokenExpired = errors.New("push token expired")

// Payload is what a reminder says
type Payload struct {
	Title   string `json:"title"`
	Body    string `json:"body"`
	EventID string `json:"eventId,omitempty"`
	Tag     string `json:"tag,omitempty"`
}

// Sender delivers one payload to one device
type Sender interface {
	Send(ctx context.Context, token *models.PushToken, payload Payload) error
}

// Dispatcher routes a payload to the sender of the token's platform
type Dispatcher struct {
	senders map[string]Sender
}

// NewDispatcher creates a dispatcher. Nil senders leave their platform unsupported.
func NewDispatcher(apns, web Sender) *Dispatcher {
	d := &Dispatcher{senders: make(map[string]Sender)}
	if apns != nil {
		d.senders[models.PlatformIOS] = apns
	}
	if web != nil {
		d.senders[models.PlatformWeb] = web
	}
	return d
}

// Send delivers payload through the platform's sender
func (d *Dispatcher) Send(ctx context.Context, token *models.PushToken, payload Payload) error {
	sender, ok := d.senders[token.Platform]
	if !ok {
		return fmt.Errorf("no sender configured for platform %q", token.Platform)
	}
	return sender.Send(ctx, token, payload)
}
