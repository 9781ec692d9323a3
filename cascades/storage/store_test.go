package storage

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/wbrown/janus-cascades/cascades"
)

func engines(t *testing.T) map[string]func() Store {
	return map[string]func() Store{
		"Mem": func() Store { return NewMemStore() },
		"Badger": func() Store {
			s, err := NewBadgerStore(t.TempDir())
			require.NoError(t, err)
			return s
		},
		"BadgerInMemory": func() Store {
			s, err := NewBadgerStore("")
			require.NoError(t, err)
			return s
		},
	}
}

func keys(t *testing.T, it Iterator) []string {
	t.Helper()
	var out []string
	for it.Next() {
		out = append(out, string(it.Key()))
	}
	require.NoError(t, it.Close())
	return out
}

func TestEngines(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			require.NoError(t, Update(s, func(tx Tx) error {
				for _, k := range []string{"a", "b", "c", "d"} {
					if err := tx.Set([]byte(k), []byte("v"+k)); err != nil {
						return err
					}
				}
				return nil
			}))

			v, ok, err := s.Get([]byte("b"))
			require.NoError(t, err)
			assert.True(t, ok)
			assert.Equal(t, "vb", string(v))

			_, ok, err = s.Get([]byte("zz"))
			require.NoError(t, err)
			assert.False(t, ok)

			it, err := s.Scan([]byte("b"), []byte("d"), false)
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "c"}, keys(t, it))

			it, err = s.Scan([]byte("b"), []byte("d"), true)
			require.NoError(t, err)
			assert.Equal(t, []string{"c", "b"}, keys(t, it))

			it, err = s.Scan(nil, nil, true)
			require.NoError(t, err)
			assert.Equal(t, []string{"d", "c", "b", "a"}, keys(t, it))

			it, err = s.Scan([]byte("b"), nil, false)
			require.NoError(t, err)
			assert.Equal(t, []string{"b", "c", "d"}, keys(t, it))
		})
	}
}

func TestTransactions(t *testing.T) {
	for name, open := range engines(t) {
		t.Run(name, func(t *testing.T) {
			s := open()
			defer s.Close()

			t.Run("ReadsOwnWrites", func(t *testing.T) {
				tx, err := s.BeginTx()
				require.NoError(t, err)
				require.NoError(t, tx.Set([]byte("k1"), []byte("1")))
				v, ok, err := tx.Get([]byte("k1"))
				require.NoError(t, err)
				assert.True(t, ok)
				assert.Equal(t, "1", string(v))

				it, err := tx.Scan([]byte("k"), []byte("l"), false)
				require.NoError(t, err)
				assert.Equal(t, []string{"k1"}, keys(t, it))
				require.NoError(t, tx.Commit())
			})

			t.Run("RollbackDiscards", func(t *testing.T) {
				err := Update(s, func(tx Tx) error {
					if err := tx.Set([]byte("k2"), []byte("2")); err != nil {
						return err
					}
					return cascades.ErrUnsupported
				})
				assert.ErrorIs(t, err, cascades.ErrUnsupported)
				_, ok, err := s.Get([]byte("k2"))
				require.NoError(t, err)
				assert.False(t, ok)
			})

			t.Run("Delete", func(t *testing.T) {
				require.NoError(t, Update(s, func(tx Tx) error { return tx.Delete([]byte("k1")) }))
				_, ok, err := s.Get([]byte("k1"))
				require.NoError(t, err)
				assert.False(t, ok)
			})
		})
	}
}

func TestMemStoreConflict(t *testing.T) {
	s := NewMemStore()
	first, err := s.BeginTx()
	require.NoError(t, err)
	second, err := s.BeginTx()
	require.NoError(t, err)

	require.NoError(t, first.Set([]byte("k"), []byte("first")))
	require.NoError(t, second.Set([]byte("k"), []byte("second")))
	require.NoError(t, first.Commit())

	err = second.Commit()
	assert.ErrorIs(t, err, ErrConflict)
	assert.True(t, cascades.IsRetryable(err))

	v, _, err := s.Get([]byte("k"))
	require.NoError(t, err)
	assert.Equal(t, "first", string(v))
}

func TestMemStoreScanIsSnapshot(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, Update(s, func(tx Tx) error { return tx.Set([]byte("a"), nil) }))

	it, err := s.Scan(nil, nil, false)
	require.NoError(t, err)
	require.NoError(t, Update(s, func(tx Tx) error { return tx.Set([]byte("b"), nil) }))
	assert.Equal(t, []string{"a"}, keys(t, it))
}

func TestUpdateWithRetry(t *testing.T) {
	s := NewMemStore()
	attempts := 0
	err := UpdateWithRetry(s, 3, func(tx Tx) error {
		attempts++
		if attempts < 3 {
			return ErrConflict
		}
		return tx.Set([]byte("k"), []byte("v"))
	})
	require.NoError(t, err)
	assert.Equal(t, 3, attempts)

	attempts = 0
	err = UpdateWithRetry(s, 3, func(Tx) error {
		attempts++
		return cascades.ErrUnsupported
	})
	assert.ErrorIs(t, err, cascades.ErrUnsupported)
	assert.Equal(t, 1, attempts)
}

func TestClosedMemStore(t *testing.T) {
	s := NewMemStore()
	require.NoError(t, s.Close())
	_, err := s.BeginTx()
	assert.ErrorIs(t, err, ErrClosed)
}
