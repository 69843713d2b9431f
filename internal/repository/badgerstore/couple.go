package badgerstore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/dgraph-io/badger/v4"
)

func coupleKey(id string) []byte { return []byte("couple/" + id) }
func codeKey(code string) []byte { return []byte("code/" + code) }
func fieldPrefix(coupleID string) []byte {
	return []byte("couplefield/" + coupleID + "/")
}
func fieldKey(coupleID, name string) []byte {
	return append(fieldPrefix(coupleID), name...)
}

type CoupleRepository struct {
	kv *kv
}

func (r *CoupleRepository) Create(ctx context.Context, couple *models.Couple) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		taken, err := exists(txn, coupleKey(couple.ID))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: couple %s already exists", common.ErrConflict, couple.ID)
		}

		if couple.PairingCode != nil {
			taken, err := exists(txn, codeKey(*couple.PairingCode))
			if err != nil {
				return err
			}
			if taken {
				return fmt.Errorf("%w: pairing code already outstanding", common.ErrConflict)
			}
			if err := txn.Set(codeKey(*couple.PairingCode), []byte(couple.ID)); err != nil {
				return err
			}
		}

		doc := couple.Clone()
		doc.Fields = nil
		if err := setJSON(txn, coupleKey(couple.ID), doc); err != nil {
			return err
		}
		for name, blob := range couple.Fields {
			if err := txn.Set(fieldKey(couple.ID, name), []byte(blob)); err != nil {
				return err
			}
		}
		return nil
	})
}

// load reads the couple document together with its fields.
func (r *CoupleRepository) load(txn *badger.Txn, id string) (*models.Couple, error) {
	var c models.Couple
	if err := getJSON(txn, coupleKey(id), "couple", &c); err != nil {
		return nil, err
	}
	fields := make(map[string]string)
	err := scanPrefix(txn, fieldPrefix(id), func(name, val []byte) error {
		fields[string(name)] = string(val)
		return nil
	})
	if err != nil {
		return nil, err
	}
	if len(fields) > 0 {
		c.Fields = fields
	}
	return &c, nil
}

func (r *CoupleRepository) GetByID(ctx context.Context, id string) (*models.Couple, error) {
	var out *models.Couple
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		c, err := r.load(txn, id)
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CoupleRepository) GetByPairingCode(ctx context.Context, code string) (*models.Couple, error) {
	var out *models.Couple
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		item, err := txn.Get(codeKey(code))
		if errors.Is(err, badger.ErrKeyNotFound) {
			return fmt.Errorf("pairing code %w", common.ErrNotFound)
		}
		if err != nil {
			return err
		}
		id, err := item.ValueCopy(nil)
		if err != nil {
			return err
		}
		c, err := r.load(txn, string(id))
		out = c
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (r *CoupleRepository) PairingCodeExists(ctx context.Context, code string) (bool, error) {
	var found bool
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, codeKey(code))
		return err
	})
	return found, err
}

func (r *CoupleRepository) ConsumePairingCode(ctx context.Context, coupleID, code, memberID string) (bool, error) {
	var swapped bool
	err := r.kv.update(ctx, func(txn *badger.Txn) error {
		swapped = false

		var c models.Couple
		err := getJSON(txn, coupleKey(coupleID), "couple", &c)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.PairingCode == nil || *c.PairingCode != code || c.HasMember(memberID) || c.Full() {
			return nil
		}

		c.Members = append(c.Members, memberID)
		c.PairingCode = nil
		c.PairingExpiresAt = nil
		c.ConsumedCode = &code
		if err := setJSON(txn, coupleKey(coupleID), &c); err != nil {
			return err
		}
		if err := txn.Delete(codeKey(code)); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *CoupleRepository) ReplacePairingCode(ctx context.Context, coupleID string, old, code *string, expiresAt *time.Time) (bool, error) {
	var swapped bool
	err := r.kv.update(ctx, func(txn *badger.Txn) error {
		swapped = false

		var c models.Couple
		err := getJSON(txn, coupleKey(coupleID), "couple", &c)
		if errors.Is(err, common.ErrNotFound) {
			return nil
		}
		if err != nil {
			return err
		}
		if c.Full() || !repository.EqualRef(c.PairingCode, old) {
			return nil
		}

		if code != nil {
			item, err := txn.Get(codeKey(*code))
			switch {
			case err == nil:
				owner, err := item.ValueCopy(nil)
				if err != nil {
					return err
				}
				if string(owner) != coupleID {
					return fmt.Errorf("%w: pairing code already outstanding", common.ErrConflict)
				}
			case !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
		}

		if c.PairingCode != nil {
			if err := txn.Delete(codeKey(*c.PairingCode)); err != nil {
				return err
			}
		}
		if code != nil {
			if err := txn.Set(codeKey(*code), []byte(coupleID)); err != nil {
				return err
			}
		}
		c.PairingCode = code
		c.PairingExpiresAt = expiresAt
		if err := setJSON(txn, coupleKey(coupleID), &c); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

func (r *CoupleRepository) SetField(ctx context.Context, coupleID, name, blob string) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, coupleKey(coupleID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("couple %w", common.ErrNotFound)
		}
		return txn.Set(fieldKey(coupleID, name), []byte(blob))
	})
}

func (r *CoupleRepository) DeleteField(ctx context.Context, coupleID, name string) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		ok, err := exists(txn, coupleKey(coupleID))
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("couple %w", common.ErrNotFound)
		}
		return txn.Delete(fieldKey(coupleID, name))
	})
}
