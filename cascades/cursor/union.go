package cursor

import (
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// Opener opens a cursor resuming at a continuation.
type Opener[T any] func(ctx context.Context, c Continuation) (Cursor[T], error)

// ConcatCursor returns the values of its inputs one input after the other.
// Its continuation carries the index of the current input and that input's
// continuation.
type ConcatCursor[T any] struct {
	inputs  []Opener[T]
	index   int
	current Cursor[T]
	resume  Continuation
	term    terminal[T]
}

// Concat returns a cursor over the inputs resuming at c.
func Concat[T any](inputs []Opener[T], c Continuation) (*ConcatCursor[T], error) {
	u := &ConcatCursor[T]{inputs: inputs}
	switch {
	case c.IsStart():
	case c.IsEnd():
		u.index = len(inputs)
	default:
		t, err := decodeParts(c, 2)
		if err != nil {
			return nil, err
		}
		i, ok := t[0].(int64)
		if !ok || i < 0 || int(i) >= len(inputs) {
			return nil, errors.Newf("union continuation names input %v of %d", t[0], len(inputs))
		}
		u.index, u.resume = int(i), FromBytes(partBytes(t[1]))
	}
	return u, nil
}

func (u *ConcatCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if u.term.done {
		return u.term.result, nil
	}
	for u.index < len(u.inputs) {
		if u.current == nil {
			c, err := u.inputs[u.index](ctx, u.resume)
			if err != nil {
				return Result[T]{}, errors.Wrapf(err, "opening union input %d", u.index)
			}
			u.current, u.resume = c, Start()
		}
		r, err := u.current.OnNext(ctx)
		if err != nil {
			return Result[T]{}, err
		}
		if r.HasNext() {
			part, err := partOf(r.Continuation())
			if err != nil {
				return Result[T]{}, err
			}
			c, err := encodeParts(int64(u.index), part)
			if err != nil {
				return Result[T]{}, err
			}
			return WithNextValue(r.Value(), c), nil
		}
		if r.NoNextReason() == ReturnLimitReached {
			return u.term.latch(r), nil
		}
		if err := u.current.Close(); err != nil {
			return Result[T]{}, err
		}
		u.current = nil
		u.index++
	}
	return u.term.latch(Exhausted[T]()), nil
}

func (u *ConcatCursor[T]) Close() error {
	if u.current == nil {
		return nil
	}
	err := u.current.Close()
	u.current = nil
	return err
}

// MergeCursor merges inputs that are each ordered by compare into one
// ordered stream. Its continuation holds, per input, the continuation of
// the last value of that input it returned.
type MergeCursor[T any] struct {
	inputs  []Cursor[T]
	compare func(a, b T) int
	heads   []*Result[T]
	emitted []Continuation
	term    terminal[T]
}

// Merge opens every input at its part of c.
func Merge[T any](ctx context.Context, inputs []Opener[T], compare func(a, b T) int, c Continuation) (*MergeCursor[T], error) {
	resume := make([]Continuation, len(inputs))
	switch {
	case c.IsStart():
	case c.IsEnd():
		for i := range resume {
			resume[i] = End()
		}
	default:
		t, err := decodeParts(c, len(inputs))
		if err != nil {
			return nil, err
		}
		for i := range resume {
			resume[i] = FromBytes(partBytes(t[i]))
		}
	}
	m := &MergeCursor[T]{
		compare: compare,
		heads:   make([]*Result[T], len(inputs)),
		emitted: resume,
	}
	for i, open := range inputs {
		cur, err := open(ctx, resume[i])
		if err != nil {
			_ = closeAll(toClosers(m.inputs)...)
			return nil, errors.Wrapf(err, "opening merge input %d", i)
		}
		m.inputs = append(m.inputs, cur)
	}
	return m, nil
}

func toClosers[T any](cs []Cursor[T]) []interface{ Close() error } {
	out := make([]interface{ Close() error }, len(cs))
	for i, c := range cs {
		out[i] = c
	}
	return out
}

func (m *MergeCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if m.term.done {
		return m.term.result, nil
	}
	best := -1
	for i, in := range m.inputs {
		if m.heads[i] == nil {
			r, err := in.OnNext(ctx)
			if err != nil {
				return Result[T]{}, err
			}
			m.heads[i] = &r
		}
		if !m.heads[i].HasNext() {
			continue
		}
		if best < 0 || m.compare(m.heads[i].Value(), m.heads[best].Value()) < 0 {
			best = i
		}
	}
	if best < 0 {
		return m.term.latch(Exhausted[T]()), nil
	}
	head := m.heads[best]
	m.heads[best] = nil
	m.emitted[best] = head.Continuation()

	parts := make([]cascades.Value, len(m.emitted))
	for i, c := range m.emitted {
		p, err := partOf(c)
		if err != nil {
			return Result[T]{}, err
		}
		parts[i] = p
	}
	c, err := encodeParts(parts...)
	if err != nil {
		return Result[T]{}, err
	}
	return WithNextValue(head.Value(), c), nil
}

func (m *MergeCursor[T]) Close() error { return closeAll(toClosers(m.inputs)...) }
