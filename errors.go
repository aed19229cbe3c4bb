package cachew

import (
	"errors"
	"fmt"

	"github.com/swipswaps/cachew/integrity"
)

// ErrNotFound is returned when a key or content blob is absent from the cache.
var ErrNotFound = errors.New("cachew: entry not found")

// IntegrityMismatchError is returned at commit when the declared integrity
// does not match the computed one, or on read when stored content fails
// verification.
type IntegrityMismatchError struct {
	Expected integrity.Integrity
	Actual   integrity.Integrity
}

func (e *IntegrityMismatchError) Error() string {
	return fmt.Sprintf("cachew: integrity mismatch: expected %s, got %s", e.Expected, e.Actual)
}

// SizeMismatchError is returned at commit when the declared size does not
// match the number of bytes written.
type SizeMismatchError struct {
	Expected int64
	Actual   int64
}

func (e *SizeMismatchError) Error() string {
	return fmt.Sprintf("cachew: size mismatch: expected %d bytes, got %d", e.Expected, e.Actual)
}

// EntrySizeError is returned by WriteEntries when an input entry's Size
// accessor fails. Size failures are fatal to the whole build.
type EntrySizeError struct {
	Path string
	Err  error
}

func (e *EntrySizeError) Error() string {
	return fmt.Sprintf("cachew: size unavailable for pack entry %q: %v", e.Path, e.Err)
}

func (e *EntrySizeError) Unwrap() error { return e.Err }
