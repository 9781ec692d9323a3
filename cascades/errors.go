package cascades

import (
	"github.com/cockroachdb/errors"
)

var (
	// ErrUnsupported marks operations that are deliberately not supported,
	// such as evaluating a candidate placeholder or resuming a sort.
	ErrUnsupported = errors.New("unsupported operation")

	// errRetryable is the mark carried by transient engine failures.
	errRetryable = errors.New("retryable")
)

// MarkRetryable marks err as a transient failure that a transaction retry
// loop may retry.
func MarkRetryable(err error) error {
	if err == nil {
		return nil
	}
	return errors.Mark(err, errRetryable)
}

// IsRetryable reports whether err was marked with MarkRetryable.
func IsRetryable(err error) bool {
	return errors.Is(err, errRetryable)
}
