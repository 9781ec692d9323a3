package cursor

import (
	"context"

	"github.com/cockroachdb/errors"
)

// FlatMapCursor opens an inner cursor for every outer value and returns
// the inner values. It is the nested loop of a join. Its continuation
// pairs the outer continuation before the current outer value with the
// inner continuation.
type FlatMapCursor[T, U any] struct {
	outer      Cursor[T]
	open       func(ctx context.Context, outer T, c Continuation) (Cursor[U], error)
	inner      Cursor[U]
	outerPrev  Continuation
	outerCur   Continuation
	innerStart Continuation
	term       terminal[U]
}

// FlatMap resumes a nested loop at c. openOuter opens the outer input at a
// continuation; openInner opens the inner input for one outer value.
func FlatMap[T, U any](ctx context.Context, openOuter Opener[T], openInner func(ctx context.Context, outer T, c Continuation) (Cursor[U], error), c Continuation) (*FlatMapCursor[T, U], error) {
	f := &FlatMapCursor[T, U]{open: openInner, outerPrev: Start(), innerStart: Start()}
	outerStart := Start()
	switch {
	case c.IsStart():
	case c.IsEnd():
		outerStart = End()
	default:
		t, err := decodeParts(c, 2)
		if err != nil {
			return nil, err
		}
		outerStart = FromBytes(partBytes(t[0]))
		f.outerPrev, f.innerStart = outerStart, FromBytes(partBytes(t[1]))
	}
	outer, err := openOuter(ctx, outerStart)
	if err != nil {
		return nil, errors.Wrap(err, "opening outer input")
	}
	f.outer = outer
	return f, nil
}

func (f *FlatMapCursor[T, U]) OnNext(ctx context.Context) (Result[U], error) {
	if f.term.done {
		return f.term.result, nil
	}
	for {
		if f.inner == nil {
			r, err := f.outer.OnNext(ctx)
			if err != nil {
				return Result[U]{}, err
			}
			if !r.HasNext() {
				return f.term.latch(Result[U]{continuation: r.continuation, reason: r.reason}), nil
			}
			inner, err := f.open(ctx, r.Value(), f.innerStart)
			if err != nil {
				return Result[U]{}, errors.Wrap(err, "opening inner input")
			}
			f.inner, f.outerCur, f.innerStart = inner, r.Continuation(), Start()
		}
		r, err := f.inner.OnNext(ctx)
		if err != nil {
			return Result[U]{}, err
		}
		if r.HasNext() {
			outerPart, err := partOf(f.outerPrev)
			if err != nil {
				return Result[U]{}, err
			}
			innerPart, err := partOf(r.Continuation())
			if err != nil {
				return Result[U]{}, err
			}
			c, err := encodeParts(outerPart, innerPart)
			if err != nil {
				return Result[U]{}, err
			}
			return WithNextValue(r.Value(), c), nil
		}
		if err := f.inner.Close(); err != nil {
			return Result[U]{}, err
		}
		f.inner, f.outerPrev = nil, f.outerCur
	}
}

func (f *FlatMapCursor[T, U]) Close() error {
	err := closeAll(f.inner, f.outer)
	f.inner = nil
	return err
}
