package storage

import (
	"bytes"
	"sync"

	"github.com/google/btree"
)

const memStoreDegree = 32

type kv struct {
	key   []byte
	value []byte
}

// Less implements the btree.Item interface.
func (a *kv) Less(b btree.Item) bool {
	return bytes.Compare(a.key, b.(*kv).key) < 0
}

// MemStore is an in-memory Store over a copy-on-write B-tree. Transactions
// work on a clone of the tree and commit optimistically: a transaction that
// began before another one committed fails with ErrConflict.
type MemStore struct {
	mu      sync.RWMutex
	tree    *btree.BTree
	version uint64
	closed  bool
}

// NewMemStore returns an empty store.
func NewMemStore() *MemStore {
	return &MemStore{tree: btree.New(memStoreDegree)}
}

func (s *MemStore) snapshot() (*btree.BTree, uint64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, 0, ErrClosed
	}
	return s.tree.Clone(), s.version, nil
}

func (s *MemStore) Scan(start, end []byte, reverse bool) (Iterator, error) {
	t, _, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return scanTree(t, start, end, reverse), nil
}

func (s *MemStore) Get(key []byte) ([]byte, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.closed {
		return nil, false, ErrClosed
	}
	return getTree(s.tree, key)
}

func (s *MemStore) BeginTx() (Tx, error) {
	t, v, err := s.snapshot()
	if err != nil {
		return nil, err
	}
	return &memTx{store: s, tree: t, version: v}, nil
}

func (s *MemStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed = true
	s.tree = btree.New(memStoreDegree)
	return nil
}

func getTree(t *btree.BTree, key []byte) ([]byte, bool, error) {
	item := t.Get(&kv{key: key})
	if item == nil {
		return nil, false, nil
	}
	return append([]byte(nil), item.(*kv).value...), true, nil
}

// scanTree collects the range eagerly; t is a private clone so later
// writes cannot disturb the iteration.
func scanTree(t *btree.BTree, start, end []byte, reverse bool) *memIterator {
	var items []*kv
	visit := func(i btree.Item) bool {
		e := i.(*kv)
		if !inRange(e.key, start, end) {
			return !reverse || start == nil || bytes.Compare(e.key, start) >= 0
		}
		items = append(items, e)
		return true
	}
	switch {
	case !reverse && end == nil:
		t.AscendGreaterOrEqual(&kv{key: start}, visit)
	case !reverse:
		t.AscendRange(&kv{key: start}, &kv{key: end}, visit)
	case end == nil:
		t.Descend(visit)
	default:
		t.DescendLessOrEqual(&kv{key: end}, visit)
	}
	return &memIterator{items: items, pos: -1}
}

type memIterator struct {
	items []*kv
	pos   int
}

func (i *memIterator) Next() bool {
	if i.pos < len(i.items) {
		i.pos++
	}
	return i.pos < len(i.items)
}

func (i *memIterator) Key() []byte { return append([]byte(nil), i.items[i.pos].key...) }

func (i *memIterator) Value() ([]byte, error) {
	return append([]byte(nil), i.items[i.pos].value...), nil
}

func (i *memIterator) Close() error {
	i.items = nil
	return nil
}

type memTx struct {
	store   *MemStore
	tree    *btree.BTree
	version uint64
	dirty   bool
	done    bool
}

func (t *memTx) Get(key []byte) ([]byte, bool, error) {
	if t.done {
		return nil, false, ErrClosed
	}
	return getTree(t.tree, key)
}

func (t *memTx) Scan(start, end []byte, reverse bool) (Iterator, error) {
	if t.done {
		return nil, ErrClosed
	}
	return scanTree(t.tree.Clone(), start, end, reverse), nil
}

func (t *memTx) Set(key, value []byte) error {
	if t.done {
		return ErrClosed
	}
	t.tree.ReplaceOrInsert(&kv{
		key:   append([]byte(nil), key...),
		value: append([]byte(nil), value...),
	})
	t.dirty = true
	return nil
}

func (t *memTx) Delete(key []byte) error {
	if t.done {
		return ErrClosed
	}
	t.tree.Delete(&kv{key: key})
	t.dirty = true
	return nil
}

func (t *memTx) Commit() error {
	if t.done {
		return ErrClosed
	}
	t.done = true
	if !t.dirty {
		return nil
	}
	s := t.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return ErrClosed
	}
	if s.version != t.version {
		return ErrConflict
	}
	s.tree = t.tree
	s.version++
	return nil
}

func (t *memTx) Rollback() error {
	t.done = true
	return nil
}

var _ Store = (*MemStore)(nil)
