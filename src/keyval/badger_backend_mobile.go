// +build mobile

package keyval

/*

This file is a duplicate of badger_backend.go but imports a fork of badger db.
This fork does not attempt to acquire a directory lock as this is likely to
fail in Android 6 and below due to a bug in SELinux.

*/

import (
	"strconv"
	"time"

	"github.com/jonknight73/badger"
	badger_options "github.com/jonknight73/badger/options"
	"github.com/sirupsen/logrus"

	cm "github.com/pythagoras-dev/pythagoras/src/common"
)

const tsPrefix = "_ts_"

// BadgerBackend implements the Backend interface on top of a Badger database.
// Badger's serializable transactions provide the per-key atomicity that the
// stores above rely on; conflicting writers are retried here so callers never
// see ErrConflict.
type BadgerBackend struct {
	db   *badger.DB
	path string
}

// NewBadgerBackend opens an existing database or creates a new one if nothing
// is found in path.
func NewBadgerBackend(path string, logger *logrus.Entry) (*BadgerBackend, error) {
	opts := badger.DefaultOptions(path).
		WithSyncWrites(false).
		WithTruncate(true).
		WithTableLoadingMode(badger_options.FileIO).
		WithValueLogLoadingMode(badger_options.FileIO)

	if logger != nil {
		sub := logger.WithFields(logrus.Fields{"ns": "badger"})
		opts = opts.WithLogger(sub)
	}

	handle, err := badger.Open(opts)
	if err != nil {
		return nil, err
	}

	return &BadgerBackend{
		db:   handle,
		path: path,
	}, nil
}

func tsKey(key string) []byte {
	return []byte(tsPrefix + key)
}

func tsBytes(t time.Time) []byte {
	return []byte(strconv.FormatInt(t.UnixNano(), 10))
}

// update retries a read-write transaction while it conflicts with concurrent
// writers.
func (b *BadgerBackend) update(fn func(txn *badger.Txn) error) error {
	for {
		err := b.db.Update(fn)
		if err != badger.ErrConflict {
			return err
		}
	}
}

// Get implements the Backend interface.
func (b *BadgerBackend) Get(key string) ([]byte, error) {
	var val []byte
	err := b.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get([]byte(key))
		if err != nil {
			return err
		}
		val, err = item.ValueCopy(nil)
		return err
	})

	return val, mapError(err, "BadgerBackend", key)
}

// Set implements the Backend interface.
func (b *BadgerBackend) Set(key string, value []byte) error {
	return b.update(func(txn *badger.Txn) error {
		if err := txn.Set([]byte(key), value); err != nil {
			return err
		}
		return txn.Set(tsKey(key), tsBytes(time.Now()))
	})
}

// SetIfAbsent implements the Backend interface.
func (b *BadgerBackend) SetIfAbsent(key string, value []byte) (bool, error) {
	written := false
	err := b.update(func(txn *badger.Txn) error {
		written = false
		_, err := txn.Get([]byte(key))
		if err == nil {
			return nil
		}
		if err != badger.ErrKeyNotFound {
			return err
		}
		if err := txn.Set([]byte(key), value); err != nil {
			return err
		}
		if err := txn.Set(tsKey(key), tsBytes(time.Now())); err != nil {
			return err
		}
		written = true
		return nil
	})

	return written, err
}

// Contains implements the Backend interface.
func (b *BadgerBackend) Contains(key string) (bool, error) {
	err := b.db.View(func(txn *badger.Txn) error {
		_, err := txn.Get([]byte(key))
		return err
	})

	if err == badger.ErrKeyNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}

	return true, nil
}

// Delete implements the Backend interface.
func (b *BadgerBackend) Delete(key string) error {
	return b.update(func(txn *badger.Txn) error {
		if err := txn.Delete([]byte(key)); err != nil {
			return err
		}
		return txn.Delete(tsKey(key))
	})
}

// Keys implements the Backend interface.
func (b *BadgerBackend) Keys(prefix string) ([]string, error) {
	res := []string{}
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.PrefetchValues = false
		it := txn.NewIterator(opts)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			res = append(res, string(it.Item().KeyCopy(nil)))
		}

		return nil
	})

	return res, err
}

// Timestamp implements the Backend interface.
func (b *BadgerBackend) Timestamp(key string) (time.Time, error) {
	val, err := b.Get(string(tsKey(key)))
	if err != nil {
		return time.Time{}, mapError(err, "BadgerBackend", key)
	}

	ns, err := strconv.ParseInt(string(val), 10, 64)
	if err != nil {
		return time.Time{}, err
	}

	return time.Unix(0, ns), nil
}

// Close implements the Backend interface.
func (b *BadgerBackend) Close() error {
	return b.db.Close()
}

// Path implements the Backend interface.
func (b *BadgerBackend) Path() string {
	return b.path
}

func isDBKeyNotFound(err error) bool {
	return err == badger.ErrKeyNotFound
}

func mapError(err error, name, key string) error {
	if err != nil && isDBKeyNotFound(err) {
		return cm.NewErr(name, cm.NotFound, key)
	}
	return err
}
