// Package repository defines the document store contracts the services depend
// on. Drivers live in subpackages: postgres (pgxpool), badgerstore (embedded)
// and memory (process local, used by tests and development).
//
// Every driver reports a missing record as common.ErrNotFound and a storage
// failure as common.ErrTransport.
package repository

import (
	"cmp"
	"context"
	"io"
	"slices"
	"time"

	"lovetrack-backend/internal/models"
)

// CoupleRepository persists couples.
type CoupleRepository interface {
	// Create inserts a new couple. It fails with common.ErrConflict when the
	// couple's pairing code is already outstanding on another couple.
	Create(ctx context.Context, couple *models.Couple) error

	GetByID(ctx context.Context, id string) (*models.Couple, error)

	// GetByPairingCode resolves an outstanding code to its couple.
	GetByPairingCode(ctx context.Context, code string) (*models.Couple, error)

	PairingCodeExists(ctx context.Context, code string) (bool, error)

	// ConsumePairingCode is the compare-and-swap join: it appends memberID and
	// clears the pairing code in one atomic step, but only if the stored code
	// still equals code, memberID is not yet a member and the couple has room.
	// It reports whether the swap happened.
	ConsumePairingCode(ctx context.Context, coupleID, code, memberID string) (bool, error)

	// ReplacePairingCode sets the outstanding code of a couple that still has
	// room, but only if the stored code equals old (nil: no code). A nil code
	// withdraws it. It fails with common.ErrConflict when code is outstanding
	// on another couple.
	ReplacePairingCode(ctx context.Context, coupleID string, old, code *string, expiresAt *time.Time) (bool, error)

	// SetField merges one encrypted field into the couple without touching
	// the others. Last writer wins per field.
	SetField(ctx context.Context, coupleID, name, blob string) error

	DeleteField(ctx context.Context, coupleID, name string) error
}

// EventRepository persists calendar events. Every read and write except the
// reminder queries is scoped by couple id.
type EventRepository interface {
	Create(ctx context.Context, event *models.EventRecord) error
	GetByID(ctx context.Context, coupleID, id string) (*models.EventRecord, error)
	Update(ctx context.Context, coupleID, id string, patch models.EventRecordPatch) (*models.EventRecord, error)
	Delete(ctx context.Context, coupleID, id string) error

	// ListByCouple returns the couple's events ordered by date ascending.
	ListByCouple(ctx context.Context, coupleID string) ([]*models.EventRecord, error)

	// ListDueReminders returns unsent reminders with from <= reminderTime <= to,
	// ordered by reminder time.
	ListDueReminders(ctx context.Context, from, to time.Time) ([]*models.EventRecord, error)

	// MarkReminderSent sets the reminder marker. Marking twice is not an error.
	MarkReminderSent(ctx context.Context, id string) error
}

// UserRepository persists anonymous users.
type UserRepository interface {
	Create(ctx context.Context, user *models.User) error
	GetByID(ctx context.Context, id string) (*models.User, error)

	// CompareAndSetCoupleID links the user to coupleID (nil unlinks) only if
	// the stored link still equals old. Unknown users fail with
	// common.ErrNotFound.
	CompareAndSetCoupleID(ctx context.Context, userID string, old, coupleID *string) (bool, error)
}

// PushTokenRepository persists device tokens for reminder delivery.
type PushTokenRepository interface {
	// Upsert registers the token, moving it to token.UserID if it was
	// registered by someone else before.
	Upsert(ctx context.Context, token *models.PushToken) error
	ListByUsers(ctx context.Context, userIDs []string) ([]*models.PushToken, error)
	Delete(ctx context.Context, token string) error
}

// Store bundles the repositories of one driver.
type Store struct {
	Couples    CoupleRepository
	Events     EventRepository
	Users      UserRepository
	PushTokens PushTokenRepository

	closer io.Closer
}

// NewStore bundles repositories; closer may be nil.
func NewStore(couples CoupleRepository, events EventRepository, users UserRepository, tokens PushTokenRepository, closer io.Closer) *Store {
	return &Store{
		Couples:    couples,
		Events:     events,
		Users:      users,
		PushTokens: tokens,
		closer:     closer,
	}
}

// Close releases the driver's resources
func (s *Store) Close() error {
	if s.closer == nil {
		return nil
	}
	return s.closer.Close()
}

// EqualRef reports whether two optional strings hold the same value.
func EqualRef(a, b *string) bool {
	if a == nil || b == nil {
		return a == b
	}
	return *a == *b
}

// SortByDate orders events the way ListByCouple returns them: by date, then
// creation time, then id.
func SortByDate(events []*models.EventRecord) {
	slices.SortFunc(events, func(a, b *models.EventRecord) int {
		return cmp.Or(
			a.Date.Compare(b.Date),
			a.CreatedAt.Compare(b.CreatedAt),
			cmp.Compare(a.ID, b.ID),
		)
	})
}
