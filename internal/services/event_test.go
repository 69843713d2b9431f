package services

import (
	"context"
	"testing"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/cryptox"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func ptr[T any](v T) *T { return &v }

func newEventService(t *testing.T) (*EventService, *memory.EventRepository) {
	t.Helper()
	events := memory.NewEventRepository()
	s := NewEventService(events, cryptox.SHA256Deriver{})
	s.now = func() time.Time { return testNow }
	return s, events
}

func TestCreateEvent(t *testing.T) {
	s, repo := newEventService(t)
	n := &recordingNotifier{}
	s.SetNotifier(n)
	ctx := context.Background()

	ev, err := s.CreateEvent(ctx, EventRequest{
		CoupleID:     "c1",
		Title:        ptr("Anniversary dinner"),
		Description:  ptr("Table by the window"),
		Date:         ptr("2026-03-01T19:00:00Z"),
		Location:     ptr("Pier 39"),
		ReminderTime: ptr("2026-03-01T18:00:00Z"),
	})
	require.NoError(t, err)

	assert.Equal(t, "Anniversary dinner", ev.Title)
	assert.Equal(t, "Table by the window", ev.Description)
	assert.Equal(t, time.Date(2026, 3, 1, 19, 0, 0, 0, time.UTC), ev.Date)
	assert.Equal(t, "Pier 39", *ev.Location)
	assert.Equal(t, time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC), *ev.ReminderTime)
	assert.False(t, ev.Unreadable)
	assert.Equal(t, []string{MsgEventsChanged}, n.types())

	rec, err := repo.GetByID(ctx, "c1", ev.ID)
	require.NoError(t, err)
	assert.NotContains(t, rec.EncryptedTitle, "Anniversary")
	require.NotNil(t, rec.EncryptedDescription)
	assert.NotContains(t, *rec.EncryptedDescription, "window")
}

func TestCreateEventValidation(t *testing.T) {
	s, _ := newEventService(t)
	ctx := context.Background()

	tests := []struct {
		name string
		req  EventRequest
	}{
		{"missing couple", EventRequest{Title: ptr("t"), Date: ptr("2026-03-01")}},
		{"missing title", EventRequest{CoupleID: "c1", Date: ptr("2026-03-01")}},
		{"blank title", EventRequest{CoupleID: "c1", Title: ptr("  "), Date: ptr("2026-03-01")}},
		{"missing date", EventRequest{CoupleID: "c1", Title: ptr("t")}},
		{"bad date", EventRequest{CoupleID: "c1", Title: ptr("t"), Date: ptr("soon")}},
		{"bad reminder", EventRequest{CoupleID: "c1", Title: ptr("t"), Date: ptr("2026-03-01"), ReminderTime: ptr("2026-03-01")}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := s.CreateEvent(ctx, tt.req)
			assert.ErrorIs(t, err, common.ErrValidation)
		})
	}
}

func TestUpdateEvent(t *testing.T) {
	s, repo := newEventService(t)
	ctx := context.Background()

	ev, err := s.CreateEvent(ctx, EventRequest{
		CoupleID:     "c1",
		Title:        ptr("Dinner"),
		Description:  ptr("secret"),
		Date:         ptr("2026-03-01"),
		Location:     ptr("Home"),
		ReminderTime: ptr("2026-02-28T18:00:00Z"),
	})
	require.NoError(t, err)
	require.NoError(t, repo.MarkReminderSent(ctx, ev.ID))

	t.Run("title only keeps the rest", func(t *testing.T) {
		got, err := s.UpdateEvent(ctx, "c1", ev.ID, EventRequest{Title: ptr("Brunch")})
		require.NoError(t, err)
		assert.Equal(t, "Brunch", got.Title)
		assert.Equal(t, "secret", got.Description)
		assert.Equal(t, "Home", *got.Location)
		assert.True(t, got.ReminderSent)
	})

	t.Run("new reminder re-arms", func(t *testing.T) {
		got, err := s.UpdateEvent(ctx, "c1", ev.ID, EventRequest{ReminderTime: ptr("2026-02-28T20:00:00Z")})
		require.NoError(t, err)
		assert.False(t, got.ReminderSent)
		assert.Equal(t, time.Date(2026, 2, 28, 20, 0, 0, 0, time.UTC), *got.ReminderTime)
	})

	t.Run("empty strings clear", func(t *testing.T) {
		got, err := s.UpdateEvent(ctx, "c1", ev.ID, EventRequest{
			Description:  ptr(""),
			Location:     ptr(""),
			ReminderTime: ptr(""),
		})
		require.NoError(t, err)
		assert.Empty(t, got.Description)
		assert.Nil(t, got.Location)
		assert.Nil(t, got.ReminderTime)
	})

	t.Run("errors", func(t *testing.T) {
		_, err := s.UpdateEvent(ctx, "c1", ev.ID, EventRequest{})
		assert.ErrorIs(t, err, common.ErrValidation)

		_, err = s.UpdateEvent(ctx, "c1", ev.ID, EventRequest{Title: ptr("")})
		assert.ErrorIs(t, err, common.ErrValidation)

		_, err = s.UpdateEvent(ctx, "c2", ev.ID, EventRequest{Title: ptr("x")})
		assert.ErrorIs(t, err, common.ErrNotFound)
	})
}

func TestDeleteEvent(t *testing.T) {
	s, _ := newEventService(t)
	ctx := context.Background()

	ev, err := s.CreateEvent(ctx, EventRequest{CoupleID: "c1", Title: ptr("x"), Date: ptr("2026-03-01")})
	require.NoError(t, err)

	assert.ErrorIs(t, s.DeleteEvent(ctx, "c2", ev.ID), common.ErrNotFound)
	require.NoError(t, s.DeleteEvent(ctx, "c1", ev.ID))

	_, err = s.GetEvent(ctx, "c1", ev.ID)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestListByCoupleSortedWithPlaceholders(t *testing.T) {
	s, repo := newEventService(t)
	ctx := context.Background()

	for _, in := range []struct{ title, date string }{
		{"third", "2026-05-01"},
		{"first", "2026-01-01"},
		{"second", "2026-03-01"},
	} {
		_, err := s.CreateEvent(ctx, EventRequest{CoupleID: "c1", Title: ptr(in.title), Date: ptr(in.date)})
		require.NoError(t, err)
	}
	_, err := s.CreateEvent(ctx, EventRequest{CoupleID: "c2", Title: ptr("other couple"), Date: ptr("2026-02-01")})
	require.NoError(t, err)

	require.NoError(t, repo.Create(ctx, &models.EventRecord{
		ID:             "broken",
		CoupleID:       "c1",
		EncryptedTitle: "AAAA",
		Date:           time.Date(2026, 4, 1, 0, 0, 0, 0, time.UTC),
	}))

	events, err := s.ListByCouple(ctx, "c1")
	require.NoError(t, err)

	var titles []string
	for _, ev := range events {
		titles = append(titles, ev.Title)
	}
	assert.Equal(t, []string{"first", "second", PlaceholderTitle, "third"}, titles)
	assert.True(t, events[2].Unreadable)

	_, err = s.ListByCouple(ctx, "")
	assert.ErrorIs(t, err, common.ErrValidation)

	empty, err := s.ListByCouple(ctx, "c9")
	require.NoError(t, err)
	assert.Empty(t, empty)
}

func TestFindDueReminders(t *testing.T) {
	s, _ := newEventService(t)
	ctx := context.Background()

	due, err := s.CreateEvent(ctx, EventRequest{
		CoupleID: "c1", Title: ptr("due"), Date: ptr("2026-02-14"),
		ReminderTime: ptr(testNow.Add(10 * time.Minute).Format(time.RFC3339)),
	})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventRequest{
		CoupleID: "c1", Title: ptr("later"), Date: ptr("2026-02-15"),
		ReminderTime: ptr(testNow.Add(time.Hour).Format(time.RFC3339)),
	})
	require.NoError(t, err)
	_, err = s.CreateEvent(ctx, EventRequest{CoupleID: "c1", Title: ptr("no reminder"), Date: ptr("2026-02-14")})
	require.NoError(t, err)

	events, err := s.FindDueReminders(ctx, testNow, 15*time.Minute)
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, due.ID, events[0].ID)
	assert.Equal(t, "due", events[0].Title)

	require.NoError(t, s.MarkSent(ctx, due.ID))
	require.NoError(t, s.MarkSent(ctx, due.ID))

	events, err = s.FindDueReminders(ctx, testNow, 15*time.Minute)
	require.NoError(t, err)
	assert.Empty(t, events)
}
