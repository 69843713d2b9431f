package push

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository/memory"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeReminders struct {
	mu     sync.Mutex
	events []*models.Event
	marked []string
	gotNow time.Time
	gotWin time.Duration
}

func (f *fakeReminders) FindDueReminders(_ context.Context, now time.Time, window time.Duration) ([]*models.Event, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.gotNow, f.gotWin = now, window

	var due []*models.Event
	for _, e := range f.events {
		if e.ReminderSent {
			continue
		}
		due = append(due, e)
	}
	return due, nil
}

func (f *fakeReminders) MarkSent(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.marked = append(f.marked, id)
	for _, e := range f.events {
		if e.ID == id {
			e.ReminderSent = true
		}
	}
	return nil
}

type fakeCouples map[string]*models.Couple

func (f fakeCouples) GetCouple(_ context.Context, id string) (*models.Couple, error) {
	c, ok := f[id]
	if !ok {
		return nil, common.ErrNotFound
	}
	return c, nil
}

type recordingSender struct {
	mu    sync.Mutex
	sent  []string
	fails map[string]error
}

func (r *recordingSender) Send(_ context.Context, t *models.PushToken, p Payload) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err := r.fails[t.Token]; err != nil {
		return err
	}
	r.sent = append(r.sent, t.Token+":"+p.Title)
	return nil
}

var now = time.Date(2026, 2, 14, 18, 0, 0, 0, time.UTC)

func setupScheduler(t *testing.T, sender Sender) (*Scheduler, *fakeReminders, *memory.PushTokenRepository) {
	t.Helper()
	ctx := context.Background()

	tokens := memory.NewPushTokenRepository()
	require.NoError(t, tokens.Upsert(ctx, &models.PushToken{Token: "ios-a", UserID: "u1", Platform: models.PlatformIOS}))
	require.NoError(t, tokens.Upsert(ctx, &models.PushToken{Token: "web-b", UserID: "u2", Platform: models.PlatformWeb}))
	require.NoError(t, tokens.Upsert(ctx, &models.PushToken{Token: "ios-x", UserID: "stranger", Platform: models.PlatformIOS}))

	reminders := &fakeReminders{events: []*models.Event{
		{ID: "e1", CoupleID: "c1", Title: "Anniversary dinner", Date: now.Add(time.Hour)},
	}}
	couples := fakeCouples{"c1": {ID: "c1", Members: []string{"u1", "u2"}}}

	s := NewScheduler(reminders, couples, tokens, sender, time.Minute, 15*time.Minute)
	s.now = func() time.Time { return now }
	return s, reminders, tokens
}

func TestTickSendsToBothMembers(t *testing.T) {
	sender := &recordingSender{}
	s, reminders, _ := setupScheduler(t, sender)

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	assert.ElementsMatch(t, []string{"ios-a:Anniversary dinner", "web-b:Anniversary dinner"}, sender.sent)
	assert.Equal(t, []string{"e1"}, reminders.marked)
	assert.True(t, now.Equal(reminders.gotNow))
	assert.Equal(t, 15*time.Minute, reminders.gotWin)
}

func TestTickDoesNotResend(t *testing.T) {
	sender := &recordingSender{}
	s, _, _ := setupScheduler(t, sender)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)
	n, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Zero(t, n)
	assert.Len(t, sender.sent, 2)
}

func TestTickDeletesExpiredTokens(t *testing.T) {
	sender := &recordingSender{fails: map[string]error{"web-b": ErrTokenExpired}}
	s, reminders, tokens := setupScheduler(t, sender)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)

	left, err := tokens.ListByUsers(context.Background(), []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, left, 1)
	assert.Equal(t, "ios-a", left[0].Token)
	assert.Equal(t, []string{"e1"}, reminders.marked)
}

func TestTickContinuesPastFailedSend(t *testing.T) {
	sender := &recordingSender{fails: map[string]error{"ios-a": errors.New("apns returned 500")}}
	s, reminders, tokens := setupScheduler(t, sender)

	_, err := s.Tick(context.Background())
	require.NoError(t, err)

	assert.Equal(t, []string{"web-b:Anniversary dinner"}, sender.sent)
	assert.Equal(t, []string{"e1"}, reminders.marked, "dispatch was attempted")

	left, err := tokens.ListByUsers(context.Background(), []string{"u1"})
	require.NoError(t, err)
	assert.Len(t, left, 1, "transient failures keep the token")
}

func TestTickSkipsUnknownCouple(t *testing.T) {
	sender := &recordingSender{}
	s, reminders, _ := setupScheduler(t, sender)
	reminders.events = append(reminders.events, &models.Event{ID: "e2", CoupleID: "gone", Title: "x", Date: now})

	n, err := s.Tick(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, []string{"e1"}, reminders.marked, "unresolvable events stay due")
}

func TestStartStop(t *testing.T) {
	s, _, _ := setupScheduler(t, &recordingSender{})
	s.Start(context.Background())
	s.Stop()
	// stopping twice must not block
	s.Stop()
}

func TestDispatcherRoutesByPlatform(t *testing.T) {
	ios := &recordingSender{}
	web := &recordingSender{}
	d := NewDispatcher(ios, web)
	ctx := context.Background()

	require.NoError(t, d.Send(ctx, &models.PushToken{Token: "a", Platform: models.PlatformIOS}, Payload{Title: "t"}))
	require.NoError(t, d.Send(ctx, &models.PushToken{Token: "b", Platform: models.PlatformWeb}, Payload{Title: "t"}))
	assert.Equal(t, []string{"a:t"}, ios.sent)
	assert.Equal(t, []string{"b:t"}, web.sent)

	onlyWeb := NewDispatcher(nil, web)
	assert.Error(t, onlyWeb.Send(ctx, &models.PushToken{Token: "c", Platform: models.PlatformIOS}, Payload{}))
}

func TestReminderPayload(t *testing.T) {
	loc := "Pier 39"
	p := reminderPayload(&models.Event{ID: "e1", Title: "Dinner", Date: now, Location: &loc})
	assert.Equal(t, "Dinner", p.Title)
	assert.Equal(t, "Sat, Feb 14 18:00 at Pier 39", p.Body)
	assert.Equal(t, "e1", p.EventID)
}
