package push

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/rs/zerolog/log"
)

const (
	DefaultInterval = time.Minute
	DefaultWindow   = 15 * time.Minute
)

// ReminderSource finds due reminders and records them as sent
type ReminderSource interface {
	FindDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]*models.Event, error)
	MarkSent(ctx context.Context, eventID string) error
}

// CoupleLookup resolves a couple's members
type CoupleLookup interface {
	GetCouple(ctx context.Context, coupleID string) (*models.Couple, error)
}

// Scheduler periodically sends due event reminders to both members of a couple.
type Scheduler struct {
	mu        sync.RWMutex
	reminders ReminderSource
	couples   CoupleLookup
	tokens    repository.PushTokenRepository
	sender    Sender
	interval  time.Duration
	window    time.Duration
	now       func() time.Time
	cancel    context.CancelFunc
	done      chan struct{}
}

// NewScheduler creates a reminder scheduler. Zero interval or window use the
// defaults.
func NewScheduler(reminders ReminderSource, couples CoupleLookup, tokens repository.PushTokenRepository, sender Sender, interval, window time.Duration) *Scheduler {
	if interval <= 0 {
		interval = DefaultInterval
	}
	if window <= 0 {
		window = DefaultWindow
	}
	return &Scheduler{
		reminders: reminders,
		couples:   couples,
		tokens:    tokens,
		sender:    sender,
		interval:  interval,
		window:    window,
		now:       time.Now,
	}
}

// Start begins the scheduler loop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	ctx, s.cancel = context.WithCancel(ctx)
	s.done = make(chan struct{})
	s.mu.Unlock()

	go func() {
		defer close(s.done)
		ticker := time.NewTicker(s.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if _, err := s.Tick(ctx); err != nil {
					log.Error().Err(err).Msg("Reminder tick failed")
				}
			}
		}
	}()

	log.Info().Dur("interval", s.interval).Dur("window", s.window).Msg("Reminder scheduler started")
}

// Stop gracefully stops the scheduler.
func (s *Scheduler) Stop() {
	s.mu.RLock()
	cancel := s.cancel
	done := s.done
	s.mu.RUnlock()

	if cancel != nil {
		cancel()
	}
	if done != nil {
		<-done
	}
}

// Tick sends every reminder due in [now, now+window] and returns how many
// events were handled.
func (s *Scheduler) Tick(ctx context.Context) (int, error) {
	events, err := s.reminders.FindDueReminders(ctx, s.now().UTC(), s.window)
	if err != nil {
		return 0, fmt.Errorf("find due reminders: %w", err)
	}

	handled := 0
	for _, event := range events {
		if ctx.Err() != nil {
			return handled, ctx.Err()
		}
		if err := s.remind(ctx, event); err != nil {
			log.Error().
				Err(err).
				Str("couple_ref", common.Ref(event.CoupleID)).
				Str("event_id", event.ID).
				Msg("Reminder not dispatched")
			continue
		}
		handled++
	}
	return handled, nil
}

// remind dispatches one event to every token of the couple's members. A failed
// token does not stop the others; the event is marked once dispatch ran.
func (s *Scheduler) remind(ctx context.Context, event *models.Event) error {
	couple, err := s.couples.GetCouple(ctx, event.CoupleID)
	if err != nil {
		return fmt.Errorf("resolve couple: %w", err)
	}
	tokens, err := s.tokens.ListByUsers(ctx, couple.Members)
	if err != nil {
		return fmt.Errorf("resolve tokens: %w", err)
	}

	payload := reminderPayload(event)
	sent := 0
	for _, t := range tokens {
		err := s.sender.Send(ctx, t, payload)
		switch {
		case err == nil:
			sent++
		case errors.Is(err, ErrTokenExpired):
			if err := s.tokens.Delete(ctx, t.Token); err != nil {
				log.Error().Err(err).Str("user_id", t.UserID).Msg("Failed to delete expired push token")
			}
		default:
			log.Warn().Err(err).Str("user_id", t.UserID).Str("platform", t.Platform).Msg("Push send failed")
		}
	}

	if err := s.reminders.MarkSent(ctx, event.ID); err != nil {
		return fmt.Errorf("mark sent: %w", err)
	}

	log.Info().
		Str("couple_ref", common.Ref(event.CoupleID)).
		Str("event_id", event.ID).
		Int("tokens", len(tokens)).
		Int("sent", sent).
		Msg("Reminder dispatched")
	return nil
}

func reminderPayload(event *models.Event) Payload {
	body := event.Date.Format("Mon, Jan 2 15:04")
	if event.Location != nil && *event.Location != "" {
		body += " at " + *event.Location
	}
	return Payload{
		Title:   event.Title,
		Body:    body,
		EventID: event.ID,
		Tag:     "event-" + event.ID,
	}
}
