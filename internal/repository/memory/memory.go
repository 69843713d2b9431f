// Package memory is a process-local document store. It backs the development
// driver and the service tests; all reads return copies.
package memory

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"
)

// NewStore returns a Store backed by fresh in-memory repositories.
func NewStore() *repository.Store {
	return repository.NewStore(NewCoupleRepository(), NewEventRepository(), NewUserRepository(), NewPushTokenRepository(), nil)
}

// CoupleRepository is an in-memory repository.CoupleRepository.
type CoupleRepository struct {
	mu      sync.RWMutex
	couples map[string]*models.Couple
	codes   map[string]string // outstanding pairing code -> couple id
}

func NewCoupleRepository() *CoupleRepository {
	return &CoupleRepository{
		couples: make(map[string]*models.Couple),
		codes:   make(map[string]string),
	}
}

func (r *CoupleRepository) Create(_ context.Context, couple *models.Couple) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.couples[couple.ID]; exists {
		return fmt.Errorf("%w: couple %s already exists", common.ErrConflict, couple.ID)
	}
	if couple.PairingCode != nil {
		if _, taken := r.codes[*couple.PairingCode]; taken {
			return fmt.Errorf("%w: pairing code already outstanding", common.ErrConflict)
		}
		r.codes[*couple.PairingCode] = couple.ID
	}
	r.couples[couple.ID] = couple.Clone()
	return nil
}

func (r *CoupleRepository) GetByID(_ context.Context, id string) (*models.Couple, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	c, ok := r.couples[id]
	if !ok {
		return nil, fmt.Errorf("couple %w", common.ErrNotFound)
	}
	return c.Clone(), nil
}

func (r *CoupleRepository) GetByPairingCode(_ context.Context, code string) (*models.Couple, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	id, ok := r.codes[code]
	if !ok {
		return nil, fmt.Errorf("pairing code %w", common.ErrNotFound)
	}
	return r.couples[id].Clone(), nil
}

func (r *CoupleRepository) PairingCodeExists(_ context.Context, code string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	_, ok := r.codes[code]
	return ok, nil
}

func (r *CoupleRepository) ConsumePairingCode(_ context.Context, coupleID, code, memberID string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.couples[coupleID]
	if !ok {
		return false, nil
	}
	if c.PairingCode == nil || *c.PairingCode != code || c.HasMember(memberID) || c.Full() {
		return false, nil
	}

	c.Members = append(c.Members, memberID)
	c.PairingCode = nil
	c.PairingExpiresAt = nil
	c.ConsumedCode = &code
	delete(r.codes, code)
	return true, nil
}

func (r *CoupleRepository) ReplacePairingCode(_ context.Context, coupleID string, old, code *string, expiresAt *time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.couples[coupleID]
	if !ok || c.Full() || !repository.EqualRef(c.PairingCode, old) {
		return false, nil
	}
	if code != nil {
		if owner, taken := r.codes[*code]; taken && owner != coupleID {
			return false, fmt.Errorf("%w: pairing code already outstanding", common.ErrConflict)
		}
	}

	if c.PairingCode != nil {
		delete(r.codes, *c.PairingCode)
	}
	c.PairingCode = nil
	c.PairingExpiresAt = nil
	if code != nil {
		next := *code
		c.PairingCode = &next
		r.codes[next] = coupleID
	}
	if expiresAt != nil {
		exp := *expiresAt
		c.PairingExpiresAt = &exp
	}
	return true, nil
}

func (r *CoupleRepository) SetField(_ context.Context, coupleID, name, blob string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.couples[coupleID]
	if !ok {
		return fmt.Errorf("couple %w", common.ErrNotFound)
	}
	if c.Fields == nil {
		c.Fields = make(map[string]string)
	}
	c.Fields[name] = blob
	return nil
}

func (r *CoupleRepository) DeleteField(_ context.Context, coupleID, name string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	c, ok := r.couples[coupleID]
	if !ok {
		return fmt.Errorf("couple %w", common.ErrNotFound)
	}
	delete(c.Fields, name)
	return nil
}

// EventRepository is an in-memory repository.EventRepository.
type EventRepository struct {
	mu     sync.RWMutex
	events map[string]*models.EventRecord
}

func NewEventRepository() *EventRepository {
	return &EventRepository{events: make(map[string]*models.EventRecord)}
}

func (r *EventRepository) Create(_ context.Context, event *models.EventRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.events[event.ID]; exists {
		return fmt.Errorf("%w: event %s already exists", common.ErrConflict, event.ID)
	}
	r.events[event.ID] = event.Clone()
	return nil
}

// scoped returns the event only if it belongs to coupleID. Caller holds the lock.
func (r *EventRepository) scoped(coupleID, id string) (*models.EventRecord, error) {
	e, ok := r.events[id]
	if !ok || e.CoupleID != coupleID {
		return nil, fmt.Errorf("event %w", common.ErrNotFound)
	}
	return e, nil
}

func (r *EventRepository) GetByID(_ context.Context, coupleID, id string) (*models.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	e, err := r.scoped(coupleID, id)
	if err != nil {
		return nil, err
	}
	return e.Clone(), nil
}

func (r *EventRepository) Update(_ context.Context, coupleID, id string, patch models.EventRecordPatch) (*models.EventRecord, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, err := r.scoped(coupleID, id)
	if err != nil {
		return nil, err
	}
	patch.Apply(e)
	return e.Clone(), nil
}

func (r *EventRepository) Delete(_ context.Context, coupleID, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, err := r.scoped(coupleID, id); err != nil {
		return err
	}
	delete(r.events, id)
	return nil
}

func (r *EventRepository) ListByCouple(_ context.Context, coupleID string) ([]*models.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range r.events {
		if e.CoupleID == coupleID {
			out = append(out, e.Clone())
		}
	}
	repository.SortByDate(out)
	return out, nil
}

func (r *EventRepository) ListDueReminders(_ context.Context, from, to time.Time) ([]*models.EventRecord, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.EventRecord
	for _, e := range r.events {
		if e.ReminderSent || e.ReminderTime == nil {
			continue
		}
		if e.ReminderTime.Before(from) || e.ReminderTime.After(to) {
			continue
		}
		out = append(out, e.Clone())
	}
	slices.SortFunc(out, func(a, b *models.EventRecord) int {
		return cmp.Or(a.ReminderTime.Compare(*b.ReminderTime), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *EventRepository) MarkReminderSent(_ context.Context, id string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	e, ok := r.events[id]
	if !ok {
		return fmt.Errorf("event %w", common.ErrNotFound)
	}
	e.ReminderSent = true
	return nil
}

// UserRepository is an in-memory repository.UserRepository.
type UserRepository struct {
	mu    sync.RWMutex
	users map[string]*models.User
}

func NewUserRepository() *UserRepository {
	return &UserRepository{users: make(map[string]*models.User)}
}

func (r *UserRepository) Create(_ context.Context, user *models.User) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.users[user.ID]; exists {
		return fmt.Errorf("%w: user %s already exists", common.ErrConflict, user.ID)
	}
	u := *user
	r.users[user.ID] = &u
	return nil
}

func (r *UserRepository) GetByID(_ context.Context, id string) (*models.User, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	u, ok := r.users[id]
	if !ok {
		return nil, fmt.Errorf("user %w", common.ErrNotFound)
	}
	out := *u
	if u.CoupleID != nil {
		cid := *u.CoupleID
		out.CoupleID = &cid
	}
	return &out, nil
}

func (r *UserRepository) CompareAndSetCoupleID(_ context.Context, userID string, old, coupleID *string) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	u, ok := r.users[userID]
	if !ok {
		return false, fmt.Errorf("user %w", common.ErrNotFound)
	}
	if !repository.EqualRef(u.CoupleID, old) {
		return false, nil
	}
	u.CoupleID = nil
	if coupleID != nil {
		cid := *coupleID
		u.CoupleID = &cid
	}
	return true, nil
}

// PushTokenRepository is an in-memory repository.PushTokenRepository.
type PushTokenRepository struct {
	mu     sync.RWMutex
	tokens map[string]*models.PushToken
}

func NewPushTokenRepository() *PushTokenRepository {
	return &PushTokenRepository{tokens: make(map[string]*models.PushToken)}
}

func (r *PushTokenRepository) Upsert(_ context.Context, token *models.PushToken) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	t := *token
	if prev, ok := r.tokens[token.Token]; ok {
		t.CreatedAt = prev.CreatedAt
	}
	r.tokens[token.Token] = &t
	return nil
}

func (r *PushTokenRepository) ListByUsers(_ context.Context, userIDs []string) ([]*models.PushToken, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	var out []*models.PushToken
	for _, t := range r.tokens {
		if slices.Contains(userIDs, t.UserID) {
			c := *t
			out = append(out, &c)
		}
	}
	slices.SortFunc(out, func(a, b *models.PushToken) int { return cmp.Compare(a.Token, b.Token) })
	return out, nil
}

func (r *PushTokenRepository) Delete(_ context.Context, token string) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	delete(r.tokens, token)
	return nil
}
