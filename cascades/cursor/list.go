package cursor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// ListCursor returns the elements of a slice. Its continuations are
// positions in the slice.
type ListCursor[T any] struct {
	items []T
	next  int
	term  terminal[T]
}

// NewListCursor returns a cursor over items resuming at c.
func NewListCursor[T any](items []T, c Continuation) (*ListCursor[T], error) {
	l := &ListCursor[T]{items: items}
	switch {
	case c.IsStart():
	case c.IsEnd():
		l.next = len(items)
	default:
		t, err := decodeParts(c, 1)
		if err != nil {
			return nil, err
		}
		pos, ok := t[0].(int64)
		if !ok || pos < 0 || int(pos) > len(items) {
			return nil, errors.Newf("list continuation %v out of range", t[0])
		}
		l.next = int(pos)
	}
	return l, nil
}

func (l *ListCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if l.term.done {
		return l.term.result, nil
	}
	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}
	if l.next >= len(l.items) {
		return l.term.latch(Exhausted[T]()), nil
	}
	v := l.items[l.next]
	l.next++
	c, err := encodeParts(int64(l.next))
	if err != nil {
		return Result[T]{}, err
	}
	return WithNextValue(v, c), nil
}

func (l *ListCursor[T]) Close() error { return nil }

// KeyValueScanner is a storage range scan: storage.Scanner satisfies it.
type KeyValueScanner[T any] interface {
	Next() bool
	Item() T
	Key() []byte
	Err() error
	Close() error
}

// KeyValueCursor adapts a storage range scan. Its continuation is the key
// of the last entry returned; the scan is resumed by reopening the range
// after that key.
type KeyValueCursor[T any] struct {
	scan KeyValueScanner[T]
	term terminal[T]
}

// NewKeyValueCursor wraps scan.
func NewKeyValueCursor[T any](scan KeyValueScanner[T]) *KeyValueCursor[T] {
	return &KeyValueCursor[T]{scan: scan}
}

func (k *KeyValueCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if k.term.done {
		return k.term.result, nil
	}
	if err := ctx.Err(); err != nil {
		return Result[T]{}, err
	}
	if !k.scan.Next() {
		if err := k.scan.Err(); err != nil {
			return Result[T]{}, err
		}
		return k.term.latch(Exhausted[T]()), nil
	}
	return WithNextValue(k.scan.Item(), At(k.scan.Key())), nil
}

func (k *KeyValueCursor[T]) Close() error { return k.scan.Close() }

// ScanStart returns the storage continuation a KeyValueCursor resumes
// from: nil to scan from the start.
func ScanStart(c Continuation) ([]byte, bool, error) {
	if c.IsEnd() {
		return nil, true, nil
	}
	b, err := c.Bytes()
	return b, false, err
}

// empty is a cursor with no values.
type empty[T any] struct{}

// Empty returns an exhausted cursor.
func Empty[T any]() Cursor[T] { return empty[T]{} }

func (empty[T]) OnNext(context.Context) (Result[T], error) { return Exhausted[T](), nil }
func (empty[T]) Close() error                              { return nil }

var _ Cursor[cascades.Value] = (*ListCursor[cascades.Value])(nil)
