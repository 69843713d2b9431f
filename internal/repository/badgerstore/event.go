package badgerstore

import (
	"cmp"
	"context"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/dgraph-io/badger/v4"
)

const eventPrefix = "event/"

func eventKey(id string) []byte { return []byte(eventPrefix + id) }

// coupleEventKey indexes an event under its couple.
func coupleEventKey(coupleID, id string) []byte {
	return []byte("coupleevent/" + coupleID + "/" + id)
}

type EventRepository struct {
	kv *kv
}

func (r *EventRepository) Create(ctx context.Context, event *models.EventRecord) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		taken, err := exists(txn, eventKey(event.ID))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: event %s already exists", common.ErrConflict, event.ID)
		}
		if err := setJSON(txn, eventKey(event.ID), event); err != nil {
			return err
		}
		return txn.Set(coupleEventKey(event.CoupleID, event.ID), nil)
	})
}

func scopedEvent(txn *badger.Txn, coupleID, id string) (*models.EventRecord, error) {
	var e models.EventRecord
	if err := getJSON(txn, eventKey(id), "event", &e); err != nil {
		return nil, err
	}
	if e.CoupleID != coupleID {
		return nil, fmt.Errorf("event %w", common.ErrNotFound)
	}
	return &e, nil
}

func (r *EventRepository) GetByID(ctx context.Context, coupleID, id string) (*models.EventRecord, error) {
	var out *models.EventRecord
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		e, err := scopedEvent(txn, coupleID, id)
		out = e
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventRepository) Update(ctx context.Context, coupleID, id string, patch models.EventRecordPatch) (*models.EventRecord, error) {
	var out *models.EventRecord
	err := r.kv.update(ctx, func(txn *badger.Txn) error {
		e, err := scopedEvent(txn, coupleID, id)
		if err != nil {
			return err
		}
		patch.Apply(e)
		out = e
		return setJSON(txn, eventKey(id), e)
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *EventRepository) Delete(ctx context.Context, coupleID, id string) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		if _, err := scopedEvent(txn, coupleID, id); err != nil {
			return err
		}
		if err := txn.Delete(eventKey(id)); err != nil {
			return err
		}
		return txn.Delete(coupleEventKey(coupleID, id))
	})
}

func (r *EventRepository) ListByCouple(ctx context.Context, coupleID string) ([]*models.EventRecord, error) {
	var out []*models.EventRecord
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		out = nil
		prefix := []byte("coupleevent/" + coupleID + "/")
		var ids []string
		err := scanPrefix(txn, prefix, func(id, _ []byte) error {
			ids = append(ids, string(id))
			return nil
		})
		if err != nil {
			return err
		}
		for _, id := range ids {
			var e models.EventRecord
			if err := getJSON(txn, eventKey(id), "event", &e); err != nil {
				return err
			}
			out = append(out, &e)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	repository.SortByDate(out)
	return out, nil
}

func (r *EventRepository) ListDueReminders(ctx context.Context, from, to time.Time) ([]*models.EventRecord, error) {
	var out []*models.EventRecord
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		out = nil
		return scanPrefix(txn, []byte(eventPrefix), func(_, val []byte) error {
			var e models.EventRecord
			if err := json.Unmarshal(val, &e); err != nil {
				return err
			}
			if e.ReminderSent || e.ReminderTime == nil {
				return nil
			}
			if e.ReminderTime.Before(from) || e.ReminderTime.After(to) {
				return nil
			}
			out = append(out, &e)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *models.EventRecord) int {
		return cmp.Or(a.ReminderTime.Compare(*b.ReminderTime), cmp.Compare(a.ID, b.ID))
	})
	return out, nil
}

func (r *EventRepository) MarkReminderSent(ctx context.Context, id string) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		var e models.EventRecord
		if err := getJSON(txn, eventKey(id), "event", &e); err != nil {
			return err
		}
		if e.ReminderSent {
			return nil
		}
		e.ReminderSent = true
		return setJSON(txn, eventKey(id), &e)
	})
}
