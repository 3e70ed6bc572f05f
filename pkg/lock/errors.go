package lock

import (
	"errors"
	"fmt"
)

// ErrNotAcquired is matched by every AcquisitionError.
var ErrNotAcquired = errors.New("lock not acquired")

// AcquisitionError is returned by the WithLock helpers when the lock was
// held by someone else for the whole allowed wait.
type AcquisitionError struct {
	Key string
}

func (e *AcquisitionError) Error() string {
	return fmt.Sprintf("lock not acquired: %s", e.Key)
}

func (e *AcquisitionError) Unwrap() error {
	return ErrNotAcquired
}
