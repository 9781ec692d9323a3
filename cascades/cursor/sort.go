package cursor

import (
	"context"
	"sort"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// SortCursor reads its whole input and returns it ordered by compare. It
// cannot be resumed: its results carry Unresumable continuations.
type SortCursor[T any] struct {
	inner   Cursor[T]
	compare func(a, b T) int
	sorted  []T
	loaded  bool
	next    int
	term    terminal[T]
}

// Sort returns a cursor over inner ordered by compare. Only the start
// continuation is accepted.
func Sort[T any](inner Cursor[T], compare func(a, b T) int, c Continuation) (*SortCursor[T], error) {
	if !c.IsStart() {
		_ = inner.Close()
		return nil, errors.Wrap(cascades.ErrUnsupported, "sort cannot resume from a continuation")
	}
	return &SortCursor[T]{inner: inner, compare: compare}, nil
}

func (s *SortCursor[T]) OnNext(ctx context.Context) (Result[T], error) {
	if s.term.done {
		return s.term.result, nil
	}
	if !s.loaded {
		for {
			r, err := s.inner.OnNext(ctx)
			if err != nil {
				return Result[T]{}, err
			}
			if !r.HasNext() {
				break
			}
			s.sorted = append(s.sorted, r.Value())
		}
		sort.SliceStable(s.sorted, func(i, j int) bool {
			return s.compare(s.sorted[i], s.sorted[j]) < 0
		})
		s.loaded = true
	}
	if s.next >= len(s.sorted) {
		return s.term.latch(Exhausted[T]()), nil
	}
	v := s.sorted[s.next]
	s.next++
	return WithNextValue(v, Unresumable()), nil
}

func (s *SortCursor[T]) Close() error { return s.inner.Close() }
