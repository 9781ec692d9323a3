// Package cursor implements the pull-based, resumable iterators a selected
// plan executes as. Every result carries a continuation that a new cursor
// over the same input can resume from. Once a cursor has returned a
// terminal result it returns that same result on every later call.
package cursor

import (
	"bytes"
	"context"

	"github.com/cockroachdb/errors"
	"github.com/wbrown/janus-cascades/cascades"
)

// NoNextReason explains a terminal result.
type NoNextReason int

const (
	// SourceExhausted means the input has no more values.
	SourceExhausted NoNextReason = iota
	// ReturnLimitReached means a limit stopped the cursor; the
	// continuation resumes after the last returned value.
	ReturnLimitReached
)

func (r NoNextReason) String() string {
	if r == ReturnLimitReached {
		return "return-limit-reached"
	}
	return "source-exhausted"
}

type continuationKind uint8

const (
	startKind continuationKind = iota
	positionKind
	endKind
	unresumableKind
)

// endMarker is the serialized end continuation. No tuple encoding starts
// with 0xff.
var endMarker = []byte{0xff}

// Continuation is an opaque resume token.
type Continuation struct {
	kind continuationKind
	b    []byte
}

// Start is the continuation of a cursor that has not produced anything.
func Start() Continuation { return Continuation{} }

// End is the continuation of an exhausted cursor.
func End() Continuation { return Continuation{kind: endKind} }

// Unresumable is carried by results that cannot be resumed from.
func Unresumable() Continuation { return Continuation{kind: unresumableKind} }

// At returns the continuation positioned after the value b names.
func At(b []byte) Continuation {
	return Continuation{kind: positionKind, b: append([]byte(nil), b...)}
}

// FromBytes parses a serialized continuation. Nil is Start.
func FromBytes(b []byte) Continuation {
	switch {
	case b == nil:
		return Start()
	case bytes.Equal(b, endMarker):
		return End()
	}
	return At(b)
}

// IsStart reports whether c is the start continuation.
func (c Continuation) IsStart() bool { return c.kind == startKind }

// IsEnd reports whether c is the end continuation.
func (c Continuation) IsEnd() bool { return c.kind == endKind }

// Bytes serializes c. Start serializes to nil.
func (c Continuation) Bytes() ([]byte, error) {
	switch c.kind {
	case startKind:
		return nil, nil
	case endKind:
		return endMarker, nil
	case unresumableKind:
		return nil, errors.Wrap(cascades.ErrUnsupported, "continuation cannot be resumed from")
	}
	return c.b, nil
}

// Equal reports whether both continuations resume at the same place.
func (c Continuation) Equal(other Continuation) bool {
	return c.kind == other.kind && bytes.Equal(c.b, other.b)
}

func (c Continuation) String() string {
	switch c.kind {
	case startKind:
		return "start"
	case endKind:
		return "end"
	case unresumableKind:
		return "unresumable"
	}
	return cascades.FormatValue(c.b)
}

// Result is one step of a cursor: a value with the continuation after it,
// or a terminal result.
type Result[T any] struct {
	value        T
	hasNext      bool
	continuation Continuation
	reason       NoNextReason
}

// WithNextValue returns a result carrying v.
func WithNextValue[T any](v T, c Continuation) Result[T] {
	return Result[T]{value: v, hasNext: true, continuation: c}
}

// Exhausted returns the terminal result of a drained input.
func Exhausted[T any]() Result[T] {
	return Result[T]{continuation: End(), reason: SourceExhausted}
}

// LimitReached returns the terminal result of a limited cursor.
func LimitReached[T any](c Continuation) Result[T] {
	return Result[T]{continuation: c, reason: ReturnLimitReached}
}

// Value returns the value of a non-terminal result.
func (r Result[T]) Value() T { return r.value }

// HasNext reports whether the result carries a value.
func (r Result[T]) HasNext() bool { return r.hasNext }

// Continuation returns the position after this result.
func (r Result[T]) Continuation() Continuation { return r.continuation }

// NoNextReason explains a terminal result.
func (r Result[T]) NoNextReason() NoNextReason { return r.reason }

// Cursor is a pull-based iterator.
type Cursor[T any] interface {
	// OnNext returns the next result. After a terminal result every call
	// returns the same terminal result.
	OnNext(ctx context.Context) (Result[T], error)

	// Close releases the cursor and every cursor below it.
	Close() error
}

// terminal latches the first terminal result of a cursor.
type terminal[T any] struct {
	done   bool
	result Result[T]
}

func (t *terminal[T]) latch(r Result[T]) Result[T] {
	if !r.hasNext && !t.done {
		t.done, t.result = true, r
	}
	return r
}

// Drain reads c until it terminates and closes it. It returns the values and
// the terminal result.
func Drain[T any](ctx context.Context, c Cursor[T]) ([]T, Result[T], error) {
	defer c.Close()
	var out []T
	for {
		r, err := c.OnNext(ctx)
		if err != nil {
			return out, r, err
		}
		if !r.HasNext() {
			return out, r, nil
		}
		out = append(out, r.Value())
	}
}

// closeAll closes every cursor and returns the first error.
func closeAll(closers ...interface{ Close() error }) error {
	var first error
	for _, c := range closers {
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// encodeParts serializes the continuations of nested cursors as a tuple.
func encodeParts(parts ...cascades.Value) (Continuation, error) {
	b, err := cascades.EncodeTuple(cascades.Tuple(parts))
	if err != nil {
		return Continuation{}, err
	}
	return At(b), nil
}

// decodeParts reverses encodeParts.
func decodeParts(c Continuation, n int) (cascades.Tuple, error) {
	b, err := c.Bytes()
	if err != nil {
		return nil, err
	}
	t, err := cascades.DecodeTuple(b)
	if err != nil {
		return nil, errors.Wrap(err, "malformed continuation")
	}
	if len(t) != n {
		return nil, errors.Newf("malformed continuation of %d parts", len(t))
	}
	return t, nil
}

// partBytes extracts a nested continuation stored by encodeParts.
func partBytes(v cascades.Value) []byte {
	b, _ := v.([]byte)
	return b
}

// partOf converts a nested continuation to a tuple element. Start becomes
// nil so it decodes back to Start.
func partOf(c Continuation) (cascades.Value, error) {
	b, err := c.Bytes()
	if err != nil || b == nil {
		return nil, err
	}
	return b, nil
}
