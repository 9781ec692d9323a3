// Package storage holds the ordered key-value engines the record store runs
// on and the record store itself: records, value index entries and
// aggregate index entries laid out as tuple-encoded keys.
package storage

import (
	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

var (
	// ErrConflict is returned by Commit when a concurrent transaction wrote
	// first. It is retryable.
	ErrConflict = cascades.MarkRetryable(errors.New("transaction conflict"))

	// ErrClosed is returned by operations on a closed store or a finished
	// transaction.
	ErrClosed = errors.New("store closed")
)

// Store is an ordered key-value engine.
type Store interface {
	// Scan returns an iterator over the keys in [start, end). A nil end is
	// unbounded. Reverse scans visit the same keys from the last one down.
	Scan(start, end []byte, reverse bool) (Iterator, error)

	// Get returns the value of key, or false when it is absent.
	Get(key []byte) ([]byte, bool, error)

	// BeginTx starts a read-write transaction.
	BeginTx() (Tx, error)

	Close() error
}

// Iterator provides sequential access to a key range.
type Iterator interface {
	Next() bool
	Key() []byte
	Value() ([]byte, error)
	Close() error
}

// Tx is a read-write transaction. Reads observe the transaction's own
// writes.
type Tx interface {
	Get(key []byte) ([]byte, bool, error)
	Scan(start, end []byte, reverse bool) (Iterator, error)
	Set(key, value []byte) error
	Delete(key []byte) error
	Commit() error
	Rollback() error
}

// Update runs fn in a transaction and commits it. The transaction is rolled
// back when fn fails.
func Update(s Store, fn func(tx Tx) error) error {
	tx, err := s.BeginTx()
	if err != nil {
		return err
	}
	if err := fn(tx); err != nil {
		_ = tx.Rollback()
		return err
	}
	return tx.Commit()
}

// UpdateWithRetry runs Update until it succeeds, fails with an error that is
// not retryable, or attempts are exhausted.
func UpdateWithRetry(s Store, attempts int, fn func(tx Tx) error) error {
	var err error
	for i := 0; i < max(attempts, 1); i++ {
		if err = Update(s, fn); err == nil || !cascades.IsRetryable(err) {
			return err
		}
	}
	return errors.Wrapf(err, "giving up after %d attempts", attempts)
}

// inRange reports whether key lies in [start, end).
func inRange(key, start, end []byte) bool {
	if start != nil && string(key) < string(start) {
		return false
	}
	return end == nil || string(key) < string(end)
}
