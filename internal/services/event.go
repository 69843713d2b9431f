package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/cryptox"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

// PlaceholderTitle replaces a title that cannot be decrypted
const PlaceholderTitle = "Untitled Event"

// EventRequest carries the fields of an event create or update. On update a
// nil field is left untouched and an empty description, location or
// reminderTime clears it.
type EventRequest struct {
	CoupleID     string  `json:"coupleId"`
	Title        *string `json:"title"`
	Description  *string `json:"description"`
	Date         *string `json:"date"`
	Location     *string `json:"location"`
	ReminderTime *string `json:"reminderTime"`
}

// EventService handles the couple calendar. Titles and descriptions are
// encrypted under the couple key before they reach the repository.
type EventService struct {
	events   repository.EventRepository
	deriver  cryptox.KeyDeriver
	notifier Notifier
	now      func() time.Time
}

// NewEventService creates a new event service
func NewEventService(events repository.EventRepository, deriver cryptox.KeyDeriver) *EventService {
	return &EventService{
		events:   events,
		deriver:  deriver,
		notifier: nopNotifier{},
		now:      time.Now,
	}
}

// SetNotifier wires realtime notifications in after construction
func (s *EventService) SetNotifier(n Notifier) {
	s.notifier = n
}

// CreateEvent creates an event; title and date are required
func (s *EventService) CreateEvent(ctx context.Context, req EventRequest) (*models.Event, error) {
	if req.CoupleID == "" {
		return nil, fmt.Errorf("%w: coupleId is required", common.ErrValidation)
	}
	if req.Title == nil || strings.TrimSpace(*req.Title) == "" {
		return nil, fmt.Errorf("%w: title is required", common.ErrValidation)
	}
	if req.Date == nil {
		return nil, fmt.Errorf("%w: date is required", common.ErrValidation)
	}
	date, err := ParseDate(*req.Date)
	if err != nil {
		return nil, err
	}

	key, err := s.deriver.DeriveKey(req.CoupleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}
	title, err := cryptox.Encrypt([]byte(*req.Title), key)
	if err != nil {
		return nil, fmt.Errorf("failed to encrypt title: %w", err)
	}

	now := s.now().UTC()
	rec := &models.EventRecord{
		ID:             uuid.New().String(),
		CoupleID:       req.CoupleID,
		EncryptedTitle: title,
		Date:           date,
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if req.Description != nil && *req.Description != "" {
		desc, err := cryptox.Encrypt([]byte(*req.Description), key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt description: %w", err)
		}
		rec.EncryptedDescription = &desc
	}
	if req.Location != nil && *req.Location != "" {
		loc := *req.Location
		rec.Location = &loc
	}
	if req.ReminderTime != nil && *req.ReminderTime != "" {
		reminder, err := parseTimestamp("reminderTime", *req.ReminderTime)
		if err != nil {
			return nil, err
		}
		rec.ReminderTime = &reminder
	}

	if err := s.events.Create(ctx, rec); err != nil {
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	log.Info().Str("couple_ref", common.Ref(req.CoupleID)).Str("event_id", rec.ID).Msg("Event created")
	s.notifier.NotifyCouple(ctx, req.CoupleID, WSMessage{Type: MsgEventsChanged})

	return s.decrypt(rec, key), nil
}

// GetEvent retrieves one event of the couple
func (s *EventService) GetEvent(ctx context.Context, coupleID, id string) (*models.Event, error) {
	rec, err := s.events.GetByID(ctx, coupleID, id)
	if err != nil {
		return nil, err
	}
	return s.decryptOne(rec), nil
}

// UpdateEvent applies a partial update. Only title and description are
// re-encrypted; changing date or reminderTime re-arms the reminder.
func (s *EventService) UpdateEvent(ctx context.Context, coupleID, id string, req EventRequest) (*models.Event, error) {
	key, err := s.deriver.DeriveKey(coupleID)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrValidation, err)
	}

	patch := models.EventRecordPatch{UpdatedAt: s.now().UTC()}
	if req.Title != nil {
		if strings.TrimSpace(*req.Title) == "" {
			return nil, fmt.Errorf("%w: title cannot be empty", common.ErrValidation)
		}
		title, err := cryptox.Encrypt([]byte(*req.Title), key)
		if err != nil {
			return nil, fmt.Errorf("failed to encrypt title: %w", err)
		}
		patch.EncryptedTitle = &title
	}
	if req.Description != nil {
		desc := ""
		if *req.Description != "" {
			desc, err = cryptox.Encrypt([]byte(*req.Description), key)
			if err != nil {
				return nil, fmt.Errorf("failed to encrypt description: %w", err)
			}
		}
		patch.EncryptedDescription = &desc
	}
	if req.Date != nil {
		date, err := ParseDate(*req.Date)
		if err != nil {
			return nil, err
		}
		patch.Date = &date
	}
	if req.Location != nil {
		loc := *req.Location
		patch.Location = &loc
	}
	if req.ReminderTime != nil {
		if *req.ReminderTime == "" {
			patch.ClearReminder = true
		} else {
			reminder, err := parseTimestamp("reminderTime", *req.ReminderTime)
			if err != nil {
				return nil, err
			}
			patch.ReminderTime = &reminder
		}
	}
	if patch.Empty() {
		return nil, fmt.Errorf("%w: no fields to update", common.ErrValidation)
	}

	rec, err := s.events.Update(ctx, coupleID, id, patch)
	if err != nil {
		return nil, err
	}

	log.Info().
		Str("couple_ref", common.Ref(coupleID)).
		Str("event_id", id).
		Bool("reminder_reset", patch.ResetsReminder()).
		Msg("Event updated")
	s.notifier.NotifyCouple(ctx, coupleID, WSMessage{Type: MsgEventsChanged})

	return s.decrypt(rec, key), nil
}

// DeleteEvent hard-deletes an event of the couple
func (s *EventService) DeleteEvent(ctx context.Context, coupleID, id string) error {
	if err := s.events.Delete(ctx, coupleID, id); err != nil {
		return err
	}
	log.Info().Str("couple_ref", common.Ref(coupleID)).Str("event_id", id).Msg("Event deleted")
	s.notifier.NotifyCouple(ctx, coupleID, WSMessage{Type: MsgEventsChanged})
	return nil
}

// ListByCouple returns the couple's events by date ascending. Records that
// cannot be decrypted are returned with placeholder text.
func (s *EventService) ListByCouple(ctx context.Context, coupleID string) ([]*models.Event, error) {
	if coupleID == "" {
		return nil, fmt.Errorf("%w: couple_id is required", common.ErrValidation)
	}
	recs, err := s.events.ListByCouple(ctx, coupleID)
	if err != nil {
		return nil, err
	}

	key, keyErr := s.deriver.DeriveKey(coupleID)
	events := make([]*models.Event, 0, len(recs))
	for _, rec := range recs {
		if keyErr != nil {
			events = append(events, s.placeholder(rec, keyErr))
			continue
		}
		events = append(events, s.decrypt(rec, key))
	}
	return events, nil
}

// FindDueReminders returns decrypted events whose unsent reminder falls in
// [now, now+window]
func (s *EventService) FindDueReminders(ctx context.Context, now time.Time, window time.Duration) ([]*models.Event, error) {
	recs, err := s.events.ListDueReminders(ctx, now, now.Add(window))
	if err != nil {
		return nil, err
	}
	events := make([]*models.Event, 0, len(recs))
	for _, rec := range recs {
		events = append(events, s.decryptOne(rec))
	}
	return events, nil
}

// MarkSent flags the event's reminder as delivered. Marking twice is fine.
func (s *EventService) MarkSent(ctx context.Context, eventID string) error {
	return s.events.MarkReminderSent(ctx, eventID)
}

// RawEvents returns the stored, still encrypted records of a couple
func (s *EventService) RawEvents(ctx context.Context, coupleID string) ([]*models.EventRecord, error) {
	return s.events.ListByCouple(ctx, coupleID)
}

func (s *EventService) decryptOne(rec *models.EventRecord) *models.Event {
	key, err := s.deriver.DeriveKey(rec.CoupleID)
	if err != nil {
		return s.placeholder(rec, err)
	}
	return s.decrypt(rec, key)
}

// decrypt degrades to placeholder text instead of failing
func (s *EventService) decrypt(rec *models.EventRecord, key []byte) *models.Event {
	title, err := cryptox.Decrypt(rec.EncryptedTitle, key)
	if err != nil {
		return s.placeholder(rec, err)
	}
	ev := view(rec)
	ev.Title = string(title)
	if rec.EncryptedDescription != nil {
		desc, err := cryptox.Decrypt(*rec.EncryptedDescription, key)
		if err != nil {
			return s.placeholder(rec, err)
		}
		ev.Description = string(desc)
	}
	return ev
}

func (s *EventService) placeholder(rec *models.EventRecord, cause error) *models.Event {
	log.Warn().
		Err(cause).
		Str("couple_ref", common.Ref(rec.CoupleID)).
		Str("event_id", rec.ID).
		Msg("Event unreadable")

	ev := view(rec)
	ev.Title = PlaceholderTitle
	ev.Unreadable = true
	return ev
}

func view(rec *models.EventRecord) *models.Event {
	r := rec.Clone()
	return &models.Event{
		ID:           r.ID,
		CoupleID:     r.CoupleID,
		Date:         r.Date,
		Location:     r.Location,
		ReminderTime: r.ReminderTime,
		ReminderSent: r.ReminderSent,
		CreatedAt:    r.CreatedAt,
		UpdatedAt:    r.UpdatedAt,
	}
}

func parseTimestamp(field, s string) (time.Time, error) {
	t, err := time.Parse(time.RFC3339, strings.TrimSpace(s))
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: %s must be an RFC 3339 timestamp", common.ErrValidation, field)
	}
	return t.UTC(), nil
}
