package storage

import (
	"bytes"

	"github.com/cockroachdb/errors"
	"github.com/dgraph-io/badger/v4"
	"github.com/wbrown/janus-cascades/cascades"
)

// BadgerStore implements Store using BadgerDB
type BadgerStore struct {
	db *badger.DB
}

// NewBadgerStore opens a BadgerDB-backed store at path. An empty path opens
// an in-memory database.
func NewBadgerStore(path string) (*BadgerStore, error) {
	opts := badger.DefaultOptions(path)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = nil

	opts.MemTableSize = 64 << 20
	opts.BlockCacheSize = 128 << 20
	opts.IndexCacheSize = 64 << 20
	opts.NumCompactors = 4
	opts.ValueThreshold = 1 << 10 // keep small values in the LSM tree

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrap(err, "failed to open badger")
	}
	return &BadgerStore{db: db}, nil
}

// Scan returns an iterator for a range of keys
func (s *BadgerStore) Scan(start, end []byte, reverse bool) (Iterator, error) {
	txn := s.db.NewTransaction(false)
	return newBadgerIterator(txn, start, end, reverse, true), nil
}

// Get retrieves a single value by key
func (s *BadgerStore) Get(key []byte) ([]byte, bool, error) {
	var out []byte
	err := s.db.View(func(txn *badger.Txn) error {
		var err error
		out, err = badgerGet(txn, key)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	return out, err == nil, err
}

func badgerGet(txn *badger.Txn, key []byte) ([]byte, error) {
	item, err := txn.Get(key)
	if err != nil {
		return nil, err
	}
	return item.ValueCopy(nil)
}

// BeginTx starts a new transaction
func (s *BadgerStore) BeginTx() (Tx, error) {
	return &BadgerTx{txn: s.db.NewTransaction(true)}, nil
}

// Close closes the store
func (s *BadgerStore) Close() error {
	return s.db.Close()
}

// BadgerIterator implements Iterator for BadgerDB
type BadgerIterator struct {
	txn     *badger.Txn
	it      *badger.Iterator
	start   []byte
	end     []byte
	reverse bool
	ownsTxn bool
	valid   bool
}

func newBadgerIterator(txn *badger.Txn, start, end []byte, reverse, ownsTxn bool) *BadgerIterator {
	opts := badger.DefaultIteratorOptions
	opts.PrefetchSize = 100
	opts.Reverse = reverse
	return &BadgerIterator{
		txn:     txn,
		it:      txn.NewIterator(opts),
		start:   start,
		end:     end,
		reverse: reverse,
		ownsTxn: ownsTxn,
	}
}

// Next advances the iterator
func (i *BadgerIterator) Next() bool {
	if !i.valid {
		// First call - seek to the first key of the range
		i.seek()
		i.valid = true
	} else {
		i.it.Next()
	}

	if !i.it.Valid() {
		return false
	}

	key := i.it.Item().Key()
	if i.reverse {
		return i.start == nil || bytes.Compare(key, i.start) >= 0
	}
	return i.end == nil || bytes.Compare(key, i.end) < 0
}

// seek positions the iterator. Reverse iterators seek to the largest key
// at or below end, so a key equal to the exclusive end is skipped.
func (i *BadgerIterator) seek() {
	if !i.reverse {
		i.it.Seek(i.start)
		return
	}
	if i.end == nil {
		i.it.Rewind()
		return
	}
	i.it.Seek(i.end)
	if i.it.Valid() && bytes.Equal(i.it.Item().Key(), i.end) {
		i.it.Next()
	}
}

// Key returns a copy of the current key
func (i *BadgerIterator) Key() []byte {
	return i.it.Item().KeyCopy(nil)
}

// Value returns a copy of the current value
func (i *BadgerIterator) Value() ([]byte, error) {
	return i.it.Item().ValueCopy(nil)
}

// Close closes the iterator
func (i *BadgerIterator) Close() error {
	i.it.Close()
	if i.ownsTxn {
		i.txn.Discard()
	}
	return nil
}

// BadgerTx implements Tx for BadgerDB
type BadgerTx struct {
	txn *badger.Txn
}

func (t *BadgerTx) Get(key []byte) ([]byte, bool, error) {
	out, err := badgerGet(t.txn, key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, false, nil
	}
	return out, err == nil, err
}

// Scan iterates within the transaction. Badger allows one open iterator
// per read-write transaction; callers close each scan before the next.
func (t *BadgerTx) Scan(start, end []byte, reverse bool) (Iterator, error) {
	return newBadgerIterator(t.txn, start, end, reverse, false), nil
}

func (t *BadgerTx) Set(key, value []byte) error {
	return t.txn.Set(key, value)
}

func (t *BadgerTx) Delete(key []byte) error {
	return t.txn.Delete(key)
}

// Commit commits the transaction
func (t *BadgerTx) Commit() error {
	err := t.txn.Commit()
	if errors.Is(err, badger.ErrConflict) {
		return cascades.MarkRetryable(errors.Mark(err, ErrConflict))
	}
	return err
}

// Rollback rolls back the transaction
func (t *BadgerTx) Rollback() error {
	t.txn.Discard()
	return nil
}

var _ Store = (*BadgerStore)(nil)
