// Package badgerstore is the embedded document store driver. Documents are
// JSON values under prefixed keys; couple fields get a key each so that writes
// to different fields never conflict with each other.
package badgerstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"lovetrack-backend/internal/common"
	"lovetrack-backend/internal/repository"

	"github.com/dgraph-io/badger/v4"
	"github.com/rs/zerolog"
)

// maxTxnRetries bounds how often an optimistic transaction is replayed after
// badger reports a read/write conflict.
const maxTxnRetries = 16

// Open opens (or creates) the database at dir. An empty dir opens an in-memory
// database.
func Open(dir string, logger zerolog.Logger) (*repository.Store, error) {
	opts := badger.DefaultOptions(dir).WithLogger(badgerLogger{logger.With().Str("component", "badger").Logger()})
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	return New(db), nil
}

// New wraps an already opened database. Closing the returned store closes db.
func New(db *badger.DB) *repository.Store {
	kv := &kv{db: db}
	return repository.NewStore(
		&CoupleRepository{kv: kv},
		&EventRepository{kv: kv},
		&UserRepository{kv: kv},
		&PushTokenRepository{kv: kv},
		db,
	)
}

type kv struct {
	db *badger.DB
}

// update runs fn in a read-write transaction, replaying it on conflict.
// fn must assign its results from scratch on every run.
func (s *kv) update(ctx context.Context, fn func(txn *badger.Txn) error) error {
	for attempt := 0; ; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}
		err := s.db.Update(fn)
		if errors.Is(err, badger.ErrConflict) && attempt < maxTxnRetries {
			continue
		}
		return wrap(err)
	}
}

func (s *kv) view(ctx context.Context, fn func(txn *badger.Txn) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return wrap(s.db.View(fn))
}

// wrap passes domain errors through and marks everything else as a storage
// failure.
func wrap(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound),
		errors.Is(err, common.ErrConflict),
		errors.Is(err, context.Canceled),
		errors.Is(err, context.DeadlineExceeded):
		return err
	default:
		return fmt.Errorf("%w: %v", common.ErrTransport, err)
	}
}

// getJSON decodes the value at key into v. A missing key is reported as
// common.ErrNotFound prefixed with what.
func getJSON(txn *badger.Txn, key []byte, what string, v any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return fmt.Errorf("%s %w", what, common.ErrNotFound)
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, v)
	})
}

func setJSON(txn *badger.Txn, key []byte, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return txn.Set(key, data)
}

func exists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	return err == nil, err
}

// scanPrefix calls fn with the key suffix and value of every key under prefix.
func scanPrefix(txn *badger.Txn, prefix []byte, fn func(suffix, val []byte) error) error {
	opts := badger.DefaultIteratorOptions
	opts.Prefix = prefix
	it := txn.NewIterator(opts)
	defer it.Close()

	for it.Rewind(); it.ValidForPrefix(prefix); it.Next() {
		item := it.Item()
		suffix := item.KeyCopy(nil)[len(prefix):]
		if err := item.Value(func(val []byte) error { return fn(suffix, val) }); err != nil {
			return err
		}
	}
	return nil
}

// badgerLogger routes badger's internal logging through zerolog.
type badgerLogger struct {
	zerolog.Logger
}

func (l badgerLogger) Errorf(f string, v ...interface{})   { l.Error().Msgf(f, v...) }
func (l badgerLogger) Warningf(f string, v ...interface{}) { l.Warn().Msgf(f, v...) }
func (l badgerLogger) Infof(f string, v ...interface{})    { l.Debug().Msgf(f, v...) }
func (l badgerLogger) Debugf(f string, v ...interface{})   { l.Trace().Msgf(f, v...) }
