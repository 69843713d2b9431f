package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func strPtr(s string) *string { return &s }

func TestEventRecordPatchApply(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	reminder := time.Date(2026, 3, 1, 18, 0, 0, 0, time.UTC)
	updated := created.Add(time.Hour)

	base := func() *EventRecord {
		r := reminder
		return &EventRecord{
			ID:                   "e1",
			EncryptedTitle:       "t",
			EncryptedDescription: strPtr("d"),
			Date:                 reminder.Add(time.Hour),
			Location:             strPtr("Home"),
			ReminderTime:         &r,
			ReminderSent:         true,
			CreatedAt:            created,
		}
	}

	t.Run("title keeps reminder state", func(t *testing.T) {
		rec := base()
		p := EventRecordPatch{EncryptedTitle: strPtr("t2"), UpdatedAt: updated}
		p.Apply(rec)
		assert.Equal(t, "t2", rec.EncryptedTitle)
		assert.True(t, rec.ReminderSent)
		assert.Equal(t, updated, rec.UpdatedAt)
		assert.False(t, p.ResetsReminder())
	})

	t.Run("date re-arms", func(t *testing.T) {
		rec := base()
		d := reminder.Add(24 * time.Hour)
		p := EventRecordPatch{Date: &d}
		p.Apply(rec)
		assert.False(t, rec.ReminderSent)
		assert.True(t, p.ResetsReminder())
	})

	t.Run("empty strings clear", func(t *testing.T) {
		rec := base()
		EventRecordPatch{EncryptedDescription: strPtr(""), Location: strPtr("")}.Apply(rec)
		assert.Nil(t, rec.EncryptedDescription)
		assert.Nil(t, rec.Location)
	})

	t.Run("clear reminder", func(t *testing.T) {
		rec := base()
		p := EventRecordPatch{ClearReminder: true}
		p.Apply(rec)
		assert.Nil(t, rec.ReminderTime)
		assert.False(t, rec.ReminderSent)
		assert.True(t, p.ResetsReminder())
	})

	t.Run("new reminder wins over clear", func(t *testing.T) {
		rec := base()
		r := reminder.Add(time.Minute)
		EventRecordPatch{ReminderTime: &r, ClearReminder: true}.Apply(rec)
		assert.Equal(t, r, *rec.ReminderTime)
	})
}

func TestEventRecordPatchEmpty(t *testing.T) {
	assert.True(t, EventRecordPatch{UpdatedAt: time.Now()}.Empty())
	assert.False(t, EventRecordPatch{Location: strPtr("")}.Empty())
	assert.False(t, EventRecordPatch{ClearReminder: true}.Empty())
}

func TestCoupleHelpers(t *testing.T) {
	code := "123456"
	c := &Couple{ID: "c1", Members: []string{"alice"}, PairingCode: &code, Fields: map[string]string{"a": "x"}}

	assert.True(t, c.HasMember("alice"))
	assert.False(t, c.Full())
	assert.Empty(t, c.PartnerOf("alice"))

	clone := c.Clone()
	clone.Members = append(clone.Members, "bob")
	clone.Fields["a"] = "y"
	*clone.PairingCode = "000000"

	assert.Equal(t, []string{"alice"}, c.Members)
	assert.Equal(t, "x", c.Fields["a"])
	assert.Equal(t, "123456", *c.PairingCode)

	assert.True(t, clone.Full())
	assert.Equal(t, "bob", clone.PartnerOf("alice"))
	assert.Equal(t, "alice", clone.PartnerOf("bob"))
	assert.Nil(t, (*Couple)(nil).Clone())
}
