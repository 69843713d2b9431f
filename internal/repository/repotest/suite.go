// Package repotest is the behavioural contract every repository driver must
// satisfy. Driver packages call Run from their tests.
package repotest

import (
	"context"
	"sync"
	"testing"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Factory returns a fresh, empty store for one test.
type Factory func(t *testing.T) *repository.Store

// Run executes the whole contract against stores built by newStore.
func Run(t *testing.T, newStore Factory) {
	t.Run("Couples", func(t *testing.T) { runCouples(t, newStore) })
	t.Run("Events", func(t *testing.T) { runEvents(t, newStore) })
	t.Run("Users", func(t *testing.T) { runUsers(t, newStore) })
	t.Run("PushTokens", func(t *testing.T) { runPushTokens(t, newStore) })
}

var base = time.Date(2026, 2, 14, 18, 0, 0, 0, time.UTC)

func ptr[T any](v T) *T { return &v }

func newCouple(code string) *models.Couple {
	c := &models.Couple{
		ID:        uuid.NewString(),
		CreatedAt: base,
		CreatedBy: "u1",
		Members:   []string{"u1"},
		StartDate: time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	if code != "" {
		c.PairingCode = ptr(code)
		c.PairingExpiresAt = ptr(base.Add(24 * time.Hour))
	}
	return c
}

func runCouples(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("123456")
		require.NoError(t, s.Couples.Create(ctx, c))

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, c.ID, got.ID)
		assert.Equal(t, []string{"u1"}, got.Members)
		assert.Equal(t, "u1", got.CreatedBy)
		require.NotNil(t, got.PairingCode)
		assert.Equal(t, "123456", *got.PairingCode)
		assert.True(t, c.StartDate.Equal(got.StartDate))

		byCode, err := s.Couples.GetByPairingCode(ctx, "123456")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byCode.ID)

		exists, err := s.Couples.PairingCodeExists(ctx, "123456")
		require.NoError(t, err)
		assert.True(t, exists)
	})

	t.Run("not found", func(t *testing.T) {
		s := newStore(t)
		_, err := s.Couples.GetByID(ctx, uuid.NewString())
		assert.ErrorIs(t, err, common.ErrNotFound)

		_, err = s.Couples.GetByPairingCode(ctx, "000000")
		assert.ErrorIs(t, err, common.ErrNotFound)

		exists, err := s.Couples.PairingCodeExists(ctx, "000000")
		require.NoError(t, err)
		assert.False(t, exists)
	})

	t.Run("outstanding code collision", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Couples.Create(ctx, newCouple("111111")))

		err := s.Couples.Create(ctx, newCouple("111111"))
		assert.ErrorIs(t, err, common.ErrConflict)
	})

	t.Run("consume code", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("222222")
		require.NoError(t, s.Couples.Create(ctx, c))

		ok, err := s.Couples.ConsumePairingCode(ctx, c.ID, "222222", "u2")
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.ElementsMatch(t, []string{"u1", "u2"}, got.Members)
		assert.Nil(t, got.PairingCode)
		assert.Nil(t, got.PairingExpiresAt)
		require.NotNil(t, got.ConsumedCode)
		assert.Equal(t, "222222", *got.ConsumedCode)

		_, err = s.Couples.GetByPairingCode(ctx, "222222")
		assert.ErrorIs(t, err, common.ErrNotFound)

		// the code is gone, so it can be handed out again
		require.NoError(t, s.Couples.Create(ctx, newCouple("222222")))
	})

	t.Run("consume is conditional", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("333333")
		require.NoError(t, s.Couples.Create(ctx, c))

		ok, err := s.Couples.ConsumePairingCode(ctx, c.ID, "999999", "u2")
		require.NoError(t, err)
		assert.False(t, ok, "wrong code must not swap")

		ok, err = s.Couples.ConsumePairingCode(ctx, c.ID, "333333", "u1")
		require.NoError(t, err)
		assert.False(t, ok, "existing member must not be added twice")

		ok, err = s.Couples.ConsumePairingCode(ctx, c.ID, "333333", "u2")
		require.NoError(t, err)
		assert.True(t, ok)

		ok, err = s.Couples.ConsumePairingCode(ctx, c.ID, "333333", "u3")
		require.NoError(t, err)
		assert.False(t, ok, "consumed code must not swap again")

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.Members, 2)
	})

	t.Run("concurrent consume has one winner", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("444444")
		require.NoError(t, s.Couples.Create(ctx, c))

		const joiners = 8
		var wg sync.WaitGroup
		results := make([]bool, joiners)
		errs := make([]error, joiners)
		for i := range joiners {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = s.Couples.ConsumePairingCode(ctx, c.ID, "444444", uuid.NewString())
			}()
		}
		wg.Wait()

		wins := 0
		for i := range joiners {
			require.NoError(t, errs[i])
			if results[i] {
				wins++
			}
		}
		assert.Equal(t, 1, wins)

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Len(t, got.Members, 2)
	})

	t.Run("replace code", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("555555")
		require.NoError(t, s.Couples.Create(ctx, c))
		expires := base.Add(48 * time.Hour)

		ok, err := s.Couples.ReplacePairingCode(ctx, c.ID, ptr("000000"), ptr("565656"), &expires)
		require.NoError(t, err)
		assert.False(t, ok, "stale old code must not swap")

		ok, err = s.Couples.ReplacePairingCode(ctx, c.ID, ptr("555555"), ptr("565656"), &expires)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		require.NotNil(t, got.PairingCode)
		assert.Equal(t, "565656", *got.PairingCode)
		require.NotNil(t, got.PairingExpiresAt)
		assert.True(t, expires.Equal(*got.PairingExpiresAt))

		_, err = s.Couples.GetByPairingCode(ctx, "555555")
		assert.ErrorIs(t, err, common.ErrNotFound)
		byCode, err := s.Couples.GetByPairingCode(ctx, "565656")
		require.NoError(t, err)
		assert.Equal(t, c.ID, byCode.ID)
	})

	t.Run("withdraw code frees it", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("575757")
		require.NoError(t, s.Couples.Create(ctx, c))

		ok, err := s.Couples.ReplacePairingCode(ctx, c.ID, ptr("575757"), nil, nil)
		require.NoError(t, err)
		assert.True(t, ok)

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Nil(t, got.PairingCode)
		assert.Nil(t, got.PairingExpiresAt)
		assert.Equal(t, []string{"u1"}, got.Members)

		exists, err := s.Couples.PairingCodeExists(ctx, "575757")
		require.NoError(t, err)
		assert.False(t, exists)
		require.NoError(t, s.Couples.Create(ctx, newCouple("575757")))

		ok, err = s.Couples.ReplacePairingCode(ctx, c.ID, nil, ptr("585858"), ptr(base.Add(time.Hour)))
		require.NoError(t, err)
		assert.True(t, ok, "a couple without a code can get a new one")
	})

	t.Run("replace code rejects outstanding and paired", func(t *testing.T) {
		s := newStore(t)
		require.NoError(t, s.Couples.Create(ctx, newCouple("595959")))
		c := newCouple("606060")
		require.NoError(t, s.Couples.Create(ctx, c))

		_, err := s.Couples.ReplacePairingCode(ctx, c.ID, ptr("606060"), ptr("595959"), ptr(base))
		assert.ErrorIs(t, err, common.ErrConflict)

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, "606060", *got.PairingCode)

		ok, err := s.Couples.ConsumePairingCode(ctx, c.ID, "606060", "u2")
		require.NoError(t, err)
		require.True(t, ok)
		ok, err = s.Couples.ReplacePairingCode(ctx, c.ID, nil, ptr("616161"), ptr(base))
		require.NoError(t, err)
		assert.False(t, ok, "a paired couple gets no new code")

		ok, err = s.Couples.ReplacePairingCode(ctx, uuid.NewString(), nil, ptr("616161"), ptr(base))
		require.NoError(t, err)
		assert.False(t, ok)
	})

	t.Run("fields merge", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("")
		require.NoError(t, s.Couples.Create(ctx, c))

		require.NoError(t, s.Couples.SetField(ctx, c.ID, "note", "blob-1"))
		require.NoError(t, s.Couples.SetField(ctx, c.ID, "song", "blob-2"))
		require.NoError(t, s.Couples.SetField(ctx, c.ID, "note", "blob-3"))

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"note": "blob-3", "song": "blob-2"}, got.Fields)

		require.NoError(t, s.Couples.DeleteField(ctx, c.ID, "note"))
		require.NoError(t, s.Couples.DeleteField(ctx, c.ID, "missing"))

		got, err = s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		assert.Equal(t, map[string]string{"song": "blob-2"}, got.Fields)

		err = s.Couples.SetField(ctx, uuid.NewString(), "note", "x")
		assert.ErrorIs(t, err, common.ErrNotFound)
	})

	t.Run("concurrent fields do not clobber", func(t *testing.T) {
		s := newStore(t)
		c := newCouple("")
		require.NoError(t, s.Couples.Create(ctx, c))

		names := []string{"a", "b", "c", "d", "e", "f"}
		var wg sync.WaitGroup
		for _, n := range names {
			wg.Add(1)
			go func() {
				defer wg.Done()
				assert.NoError(t, s.Couples.SetField(ctx, c.ID, n, "v-"+n))
			}()
		}
		wg.Wait()

		got, err := s.Couples.GetByID(ctx, c.ID)
		require.NoError(t, err)
		for _, n := range names {
			assert.Equal(t, "v-"+n, got.Fields[n])
		}
	})
}

func newEvent(coupleID string, date time.Time) *models.EventRecord {
	return &models.EventRecord{
		ID:             uuid.NewString(),
		CoupleID:       coupleID,
		EncryptedTitle: "enc-title",
		Date:           date,
		CreatedAt:      base,
		UpdatedAt:      base,
	}
}

func runEvents(t *testing.T, newStore Factory) {
	ctx := context.Background()

	t.Run("crud", func(t *testing.T) {
		s := newStore(t)
		e := newEvent("c1", base)
		e.EncryptedDescription = ptr("enc-desc")
		e.Location = ptr("Pier 39")
		require.NoError(t, s.Events.Create(ctx, e))

		got, err := s.Events.GetByID(ctx, "c1", e.ID)
		require.NoError(t, err)
		assert.Equal(t, "enc-title", got.EncryptedTitle)
		require.NotNil(t, got.EncryptedDescription)
		assert.Equal(t, "enc-desc", *got.EncryptedDescription)
		require.NotNil(t, got.Location)
		assert.Equal(t, "Pier 39", *got.Location)
		assert.Nil(t, got.ReminderTime)

		later := base.Add(time.Hour)
		updated, err := s.Events.Update(ctx, "c1", e.ID, models.EventRecordPatch{
			EncryptedTitle: ptr("enc-title-2"),
			Location:       ptr(""),
			UpdatedAt:      later,
		})
		require.NoError(t, err)
		assert.Equal(t, "enc-title-2", updated.EncryptedTitle)
		assert.Nil(t, updated.Location)
		require.NotNil(t, updated.EncryptedDescription, "untouched fields survive")
		assert.True(t, base.Equal(updated.Date))
		assert.True(t, later.Equal(updated.UpdatedAt))

		require.NoError(t, s.Events.Delete(ctx, "c1", e.ID))
		_, err = s.Events.GetByID(ctx, "c1", e.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)
		assert.ErrorIs(t, s.Events.Delete(ctx, "c1", e.ID), common.ErrNotFound)
	})

	t.Run("scoped by couple", func(t *testing.T) {
		s := newStore(t)
		e := newEvent("c1", base)
		require.NoError(t, s.Events.Create(ctx, e))

		_, err := s.Events.GetByID(ctx, "c2", e.ID)
		assert.ErrorIs(t, err, common.ErrNotFound)

		_, err = s.Events.Update(ctx, "c2", e.ID, models.EventRecordPatch{EncryptedTitle: ptr("x"), UpdatedAt: base})
		assert.ErrorIs(t, err, common.ErrNotFound)

		assert.ErrorIs(t, s.Events.Delete(ctx, "c2", e.ID), common.ErrNotFound)

		got, err := s.Events.GetByID(ctx, "c1", e.ID)
		require.NoError(t, err)
		assert.Equal(t, "enc-title", got.EncryptedTitle)
	})

	t.Run("list ordered by date", func(t *testing.T) {
		s := newStore(t)
		third := newEvent("c1", base.Add(48*time.Hour))
		first := newEvent("c1", base)
		second := newEvent("c1", base.Add(24*time.Hour))
		for _, e := range []*models.EventRecord{third, first, second, newEvent("c2", base)} {
			require.NoError(t, s.Events.Create(ctx, e))
		}

		got, err := s.Events.ListByCouple(ctx, "c1")
		require.NoError(t, err)
		require.Len(t, got, 3)
		assert.Equal(t, first.ID, got[0].ID)
		assert.Equal(t, second.ID, got[1].ID)
		assert.Equal(t, third.ID, got[2].ID)

		empty, err := s.Events.ListByCouple(ctx, "nobody")
		require.NoError(t, err)
		assert.Empty(t, empty)
	})

	t.Run("due reminders", func(t *testing.T) {
		s := newStore(t)
		now := base

		inWindow := newEvent("c1", now.Add(time.Hour))
		inWindow.ReminderTime = ptr(now.Add(5 * time.Minute))
		atEdge := newEvent("c2", now.Add(time.Hour))
		atEdge.ReminderTime = ptr(now.Add(15 * time.Minute))
		tooLate := newEvent("c1", now.Add(time.Hour))
		tooLate.ReminderTime = ptr(now.Add(16 * time.Minute))
		past := newEvent("c1", now)
		past.ReminderTime = ptr(now.Add(-time.Minute))
		sent := newEvent("c1", now.Add(time.Hour))
		sent.ReminderTime = ptr(now.Add(time.Minute))
		sent.ReminderSent = true
		none := newEvent("c1", now.Add(time.Hour))

		for _, e := range []*models.EventRecord{inWindow, atEdge, tooLate, past, sent, none} {
			require.NoError(t, s.Events.Create(ctx, e))
		}

		due, err := s.Events.ListDueReminders(ctx, now, now.Add(15*time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 2)
		assert.Equal(t, inWindow.ID, due[0].ID)
		assert.Equal(t, atEdge.ID, due[1].ID)

		require.NoError(t, s.Events.MarkReminderSent(ctx, inWindow.ID))
		require.NoError(t, s.Events.MarkReminderSent(ctx, inWindow.ID), "marking twice is fine")

		due, err = s.Events.ListDueReminders(ctx, now, now.Add(15*time.Minute))
		require.NoError(t, err)
		require.Len(t, due, 1)
		assert.Equal(t, atEdge.ID, due[0].ID)

		// rescheduling re-arms the reminder
		_, err = s.Events.Update(ctx, "c1", inWindow.ID, models.EventRecordPatch{
			ReminderTime: ptr(now.Add(10 * time.Minute)),
			UpdatedAt:    now,
		})
		require.NoError(t, err)
		due, err = s.Events.ListDueReminders(ctx, now, now.Add(15*time.Minute))
		require.NoError(t, err)
		assert.Len(t, due, 2)

		assert.ErrorIs(t, s.Events.MarkReminderSent(ctx, uuid.NewString()), common.ErrNotFound)
	})
}

func runUsers(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	u := &models.User{ID: uuid.NewString(), CreatedAt: base}
	require.NoError(t, s.Users.Create(ctx, u))

	got, err := s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoupleID)

	ok, err := s.Users.CompareAndSetCoupleID(ctx, u.ID, nil, ptr("c1"))
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	require.NotNil(t, got.CoupleID)
	assert.Equal(t, "c1", *got.CoupleID)

	ok, err = s.Users.CompareAndSetCoupleID(ctx, u.ID, nil, ptr("c2"))
	require.NoError(t, err)
	assert.False(t, ok, "a linked user must not be relinked from a stale read")

	ok, err = s.Users.CompareAndSetCoupleID(ctx, u.ID, ptr("c1"), nil)
	require.NoError(t, err)
	assert.True(t, ok)
	got, err = s.Users.GetByID(ctx, u.ID)
	require.NoError(t, err)
	assert.Nil(t, got.CoupleID)

	_, err = s.Users.GetByID(ctx, uuid.NewString())
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, err = s.Users.CompareAndSetCoupleID(ctx, uuid.NewString(), nil, ptr("c1"))
	assert.ErrorIs(t, err, common.ErrNotFound)

	t.Run("concurrent links have one winner", func(t *testing.T) {
		v := &models.User{ID: uuid.NewString(), CreatedAt: base}
		require.NoError(t, s.Users.Create(ctx, v))

		const racers = 8
		results := make([]bool, racers)
		errs := make([]error, racers)
		var wg sync.WaitGroup
		for i := range racers {
			wg.Add(1)
			go func() {
				defer wg.Done()
				results[i], errs[i] = s.Users.CompareAndSetCoupleID(ctx, v.ID, nil, ptr(uuid.NewString()))
			}()
		}
		wg.Wait()

		wins := 0
		for i := range racers {
			require.NoError(t, errs[i])
			if results[i] {
				wins++
			}
		}
		assert.Equal(t, 1, wins)
	})
}

func runPushTokens(t *testing.T, newStore Factory) {
	ctx := context.Background()
	s := newStore(t)

	require.NoError(t, s.PushTokens.Upsert(ctx, &models.PushToken{Token: "tok-a", UserID: "u1", Platform: models.PlatformIOS, CreatedAt: base}))
	require.NoError(t, s.PushTokens.Upsert(ctx, &models.PushToken{Token: "tok-b", UserID: "u2", Platform: models.PlatformWeb, CreatedAt: base}))
	require.NoError(t, s.PushTokens.Upsert(ctx, &models.PushToken{Token: "tok-c", UserID: "u3", Platform: models.PlatformIOS, CreatedAt: base}))

	got, err := s.PushTokens.ListByUsers(ctx, []string{"u1", "u2"})
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, "tok-a", got[0].Token)
	assert.Equal(t, "tok-b", got[1].Token)
	assert.Equal(t, models.PlatformWeb, got[1].Platform)

	// the device moved to another user
	require.NoError(t, s.PushTokens.Upsert(ctx, &models.PushToken{Token: "tok-a", UserID: "u3", Platform: models.PlatformIOS, CreatedAt: base}))
	got, err = s.PushTokens.ListByUsers(ctx, []string{"u1"})
	require.NoError(t, err)
	assert.Empty(t, got)

	require.NoError(t, s.PushTokens.Delete(ctx, "tok-c"))
	require.NoError(t, s.PushTokens.Delete(ctx, "tok-c"))
	got, err = s.PushTokens.ListByUsers(ctx, []string{"u3"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "tok-a", got[0].Token)

	got, err = s.PushTokens.ListByUsers(ctx, nil)
	require.NoError(t, err)
	assert.Empty(t, got)
}
