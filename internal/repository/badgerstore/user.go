package badgerstore

import (
	"cmp"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/models"
	"lovetrack-backend/internal/repository"

	"github.com/dgraph-io/badger/v4"
)

func userKey(id string) []byte { return []byte("user/" + id) }

type UserRepository struct {
	kv *kv
}

func (r *UserRepository) Create(ctx context.Context, user *models.User) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		taken, err := exists(txn, userKey(user.ID))
		if err != nil {
			return err
		}
		if taken {
			return fmt.Errorf("%w: user %s already exists", common.ErrConflict, user.ID)
		}
		return setJSON(txn, userKey(user.ID), user)
	})
}

func (r *UserRepository) GetByID(ctx context.Context, id string) (*models.User, error) {
	var u models.User
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), "user", &u)
	})
	if err != nil {
		return nil, err
	}
	return &u, nil
}

func (r *UserRepository) CompareAndSetCoupleID(ctx context.Context, userID string, old, coupleID *string) (bool, error) {
	var swapped bool
	err := r.kv.update(ctx, func(txn *badger.Txn) error {
		swapped = false

		var u models.User
		if err := getJSON(txn, userKey(userID), "user", &u); err != nil {
			return err
		}
		if !repository.EqualRef(u.CoupleID, old) {
			return nil
		}
		u.CoupleID = coupleID
		if err := setJSON(txn, userKey(userID), &u); err != nil {
			return err
		}
		swapped = true
		return nil
	})
	return swapped, err
}

func tokenKey(token string) []byte { return []byte("token/" + token) }

type PushTokenRepository struct {
	kv *kv
}

func (r *PushTokenRepository) Upsert(ctx context.Context, token *models.PushToken) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		t := *token
		var prev models.PushToken
		err := getJSON(txn, tokenKey(token.Token), "push token", &prev)
		switch {
		case err == nil:
			t.CreatedAt = prev.CreatedAt
		case !errors.Is(err, common.ErrNotFound):
			return err
		}
		return setJSON(txn, tokenKey(token.Token), &t)
	})
}

func (r *PushTokenRepository) ListByUsers(ctx context.Context, userIDs []string) ([]*models.PushToken, error) {
	var out []*models.PushToken
	if len(userIDs) == 0 {
		return out, nil
	}
	err := r.kv.view(ctx, func(txn *badger.Txn) error {
		out = nil
		return scanPrefix(txn, []byte("token/"), func(_, val []byte) error {
			var t models.PushToken
			if err := json.Unmarshal(val, &t); err != nil {
				return err
			}
			if slices.Contains(userIDs, t.UserID) {
				out = append(out, &t)
			}
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.SortFunc(out, func(a, b *models.PushToken) int { return cmp.Compare(a.Token, b.Token) })
	return out, nil
}

func (r *PushTokenRepository) Delete(ctx context.Context, token string) error {
	return r.kv.update(ctx, func(txn *badger.Txn) error {
		return txn.Delete(tokenKey(token))
	})
}
