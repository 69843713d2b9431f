package models

import (
	"maps"
	"slices"
	"time"
)

// MaxMembers is the capacity of a couple.
const MaxMembers = 2

// User represents an anonymous user of the app
type User struct {
	ID        string    `json:"id"`
	CoupleID  *string   `json:"coupleId,omitempty"`
	CreatedAt time.Time `json:"createdAt"`
}

// Couple is the shared identity of two paired users.
//
// Fields maps a field name to its encrypted blob; values are never plaintext.
type Couple struct {
	ID               string     `json:"id"`
	CreatedAt        time.Time  `json:"createdAt"`
	CreatedBy        string     `json:"createdBy"`
	Members          []string   `json:"members"`
	StartDate        time.Time  `json:"startDate"`
	PairingCode      *string    `json:"pairingCode,omitempty"`
	PairingExpiresAt *time.Time `json:"pairingExpiresAt,omitempty"`
	// ConsumedCode is the code the second member joined with
	ConsumedCode *string           `json:"consumedCode,omitempty"`
	Fields       map[string]string `json:"fields,omitempty"`
}

// HasMember reports whether userID belongs to the couple
func (c *Couple) HasMember(userID string) bool {
	return slices.Contains(c.Members, userID)
}

// Full reports whether the couple reached capacity
func (c *Couple) Full() bool {
	return len(c.Members) >= MaxMembers
}

// PartnerOf returns the other member, or "" if there is none yet
func (c *Couple) PartnerOf(userID string) string {
	for _, m := range c.Members {
		if m != userID {
			return m
		}
	}
	return ""
}

// Clone returns a deep copy
func (c *Couple) Clone() *Couple {
	if c == nil {
		return nil
	}
	out := *c
	out.Members = slices.Clone(c.Members)
	out.Fields = maps.Clone(c.Fields)
	if c.PairingCode != nil {
		code := *c.PairingCode
		out.PairingCode = &code
	}
	if c.PairingExpiresAt != nil {
		exp := *c.PairingExpiresAt
		out.PairingExpiresAt = &exp
	}
	if c.ConsumedCode != nil {
		consumed := *c.ConsumedCode
		out.ConsumedCode = &consumed
	}
	return &out
}

// EventRecord is a calendar event as persisted. Title and description are
// encrypted blobs; date, location and reminder time stay in clear for querying.
type EventRecord struct {
	ID                   string     `json:"id"`
	CoupleID             string     `json:"coupleId"`
	EncryptedTitle       string     `json:"encryptedTitle"`
	EncryptedDescription *string    `json:"encryptedDescription,omitempty"`
	Date                 time.Time  `json:"date"`
	Location             *string    `json:"location,omitempty"`
	ReminderTime         *time.Time `json:"reminderTime,omitempty"`
	ReminderSent         bool       `json:"reminderSent"`
	CreatedAt            time.Time  `json:"createdAt"`
	UpdatedAt            time.Time  `json:"updatedAt"`
}

// Clone returns a deep copy
func (e *EventRecord) Clone() *EventRecord {
	if e == nil {
		return nil
	}
	out := *e
	if e.EncryptedDescription != nil {
		d := *e.EncryptedDescription
		out.EncryptedDescription = &d
	}
	if e.Location != nil {
		l := *e.Location
		out.Location = &l
	}
	if e.ReminderTime != nil {
		r := *e.ReminderTime
		out.ReminderTime = &r
	}
	return &out
}

// EventRecordPatch is a partial update of an EventRecord. Nil pointers leave
// the stored value untouched; an empty string clears an optional text field.
type EventRecordPatch struct {
	EncryptedTitle       *string
	EncryptedDescription *string
	Date                 *time.Time
	Location             *string
	ReminderTime         *time.Time
	ClearReminder        bool
	UpdatedAt            time.Time
}

// Apply applies the patch to rec in place
func (p EventRecordPatch) Apply(rec *EventRecord) {
	if p.EncryptedTitle != nil {
		rec.EncryptedTitle = *p.EncryptedTitle
	}
	if p.EncryptedDescription != nil {
		rec.EncryptedDescription = nilIfEmpty(*p.EncryptedDescription)
	}
	if p.Date != nil {
		rec.Date = *p.Date
		rec.ReminderSent = false
	}
	if p.Location != nil {
		rec.Location = nilIfEmpty(*p.Location)
	}
	if p.ReminderTime != nil {
		r := *p.ReminderTime
		rec.ReminderTime = &r
		rec.ReminderSent = false
	} else if p.ClearReminder {
		rec.ReminderTime = nil
		rec.ReminderSent = false
	}
	rec.UpdatedAt = p.UpdatedAt
}

// ResetsReminder reports whether applying the patch re-arms the reminder
func (p EventRecordPatch) ResetsReminder() bool {
	return p.Date != nil || p.ReminderTime != nil || p.ClearReminder
}

// Empty reports whether the patch changes nothing besides the update time
func (p EventRecordPatch) Empty() bool {
	return p.EncryptedTitle == nil && p.EncryptedDescription == nil && p.Date == nil &&
		p.Location == nil && p.ReminderTime == nil && !p.ClearReminder
}

func nilIfEmpty(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

// Event is the decrypted view of an EventRecord returned to members.
type Event struct {
	ID           string     `json:"id"`
	CoupleID     string     `json:"coupleId"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Date         time.Time  `json:"date"`
	Location     *string    `json:"location,omitempty"`
	ReminderTime *time.Time `json:"reminderTime,omitempty"`
	ReminderSent bool       `json:"reminderSent"`
	// Unreadable is set when the encrypted text could not be decrypted and
	// Title/Description hold placeholders.
	Unreadable bool      `json:"unreadable,omitempty"`
	CreatedAt  time.Time `json:"createdAt"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// Push platforms
const (
	PlatformIOS = "ios"
	PlatformWeb = "web"
)

// PushToken is a device registration for reminder delivery
type PushToken struct {
	Token     string    `json:"token"`
	UserID    string    `json:"userId"`
	Platform  string    `json:"platform"`
	CreatedAt time.Time `json:"createdAt"`
}
