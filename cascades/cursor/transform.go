package cursor

import (
	"context"
)

// MapCursor applies fn to every value. Continuations pass through.
type MapCursor[T, U any] struct {
	inner Cursor[T]
	fn    func(T) (U, error)
	term  terminal[U]
}

// Map returns a cursor over fn of inner's values.
func Map[T, U any](inner Cursor[T], fn func(T) (U, error)) *MapCursor[T, U] {
	return &MapCursor[T, U]{inner: inner, fn: fn}
}

func (m *MapCursor[T, U]) OnNext(ctx context.Context) (Result[U], error) {
	if m.term.done {
		return m.term.result, nil
	}
	r, err := m.inner.OnNext(ctx)
	if err != nil {
		return Result[U]{}, err
	}
	if !r.HasNext() {
		return m.term.latch(Result[U]{continuation: r.continuation, reason: r.reason}), nil
	}
	v, err := m.fn(r.Value())
	if err != nil {
		return Result[U]{}, err
	}
	return WithNextValue(v, r.Continuation()), nil
}

func (m *MapCursor[T, U]) Close() error { return m.inner.Close() }

// FilterCursor skips values keep rejects.
type FilterCursor[T any] struct {
	inner Cursor[T]
	keep  func(T) (bool, error)
	term  terminal[T]
}

// Filter returns the values of inner that keep accepts.
func Filter[T any](inner Cursor[T], keep func(T) (bool, error)) *FilterCursor[T] {
	return &FilterCursor[T]{inner: inner, keep: keep}
}

func (f *FilterCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if f.term.done {
		return f.term.result, nil
	}
	for {
		r, err := f.inner.OnNext(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		if !r.HasNext() {
			return f.term.latch(r), nil
		}
		ok, err := f.keep(r.Value())
		if err != nil {
			return Result[T]{}, err
		}
		if ok {
			return r, nil
		}
	}
}

func (f *FilterCursor[T]) Close() error { return f.inner.Close() }

// LimitCursor stops after a number of values. Its terminal result resumes
// after the last value it returned.
type LimitCursor[T any] struct {
	inner     Cursor[T]
	remaining int
	last      Continuation
	term      terminal[T]
}

// Limit returns at most n values of inner.
func Limit[T any](inner Cursor[T], n int) *LimitCursor[T] {
	return &LimitCursor[T]{inner: inner, remaining: n}
}

func (l *LimitCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if l.term.done {
		return l.term.result, nil
	}
	if l.remaining <= 0 {
		return l.term.latch(LimitReached[T](l.last)), nil
	}
	r, err := l.inner.OnNext(ctx)
	if err != nil {
		return Result[T]{}, err
	}
	if !r.HasNext() {
		return l.term.latch(r), nil
	}
	l.remaining--
	l.last = r.Continuation()
	return r, nil
}

func (l *LimitCursor[T]) Close() error { return l.inner.Close() }

// DistinctCursor drops values whose key it has already returned. The set
// of seen keys is not part of the continuation: a resumed cursor only
// removes duplicates among the values after the resume point.
type DistinctCursor[T any] struct {
	inner Cursor[T]
	key   func(T) (string, error)
	seen  map[string]struct{}
	term  terminal[T]
}

// Distinct returns the values of inner with distinct keys.
func Distinct[T any](inner Cursor[T], key func(T) (string, error)) *DistinctCursor[T] {
	return &DistinctCursor[T]{inner: inner, key: key, seen: make(map[string]struct{})}
}

func (d *DistinctCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if d.term.done {
		return d.term.result, nil
	}
	for {
		r, err := d.inner.OnNext(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		if !r.HasNext() {
			return d.term.latch(r), nil
		}
		k, err := d.key(r.Value())
		if err != nil {
			return Result[T]{}, err
		}
		if _, dup := d.seen[k]; dup {
			continue
		}
		d.seen[k] = struct{}{}
		return r, nil
	}
}

func (d *DistinctCursor[T]) Close() error { return d.inner.Close() }
