package services

import (
	"context"
	"errors"
	"fmt"
	"math/rand/v2"
	"time"

	"github.com/google/uuid"
)

// ErrVersionConflictExhausted is matched by every VersionConflictError.
var ErrVersionConflictExhausted = errors.New("version conflict retries exhausted")

// errVersionConflict marks a conditional write that changed no rows. It
// never leaves this package.
var errVersionConflict = errors.New("version conflict")

// VersionConflictError is returned when every attempt lost the version race.
// Callers usually surface it as "please retry".
type VersionConflictError struct {
	StockID  uuid.UUID
	Attempts int
}

func (e *VersionConflictError) Error() string {
	return fmt.Sprintf("stock %s: version conflict after %d attempts", e.StockID, e.Attempts)
}

func (e *VersionConflictError) Unwrap() error {
	return ErrVersionConflictExhausted
}

// RetryPolicy bounds optimistic retries. MaxRetries counts retries after the
// first attempt. The delay before retry k is BaseDelay*2^(k-1), capped at
// MaxDelay when set, plus up to half that again when Jitter is set.
type RetryPolicy struct {
	MaxRetries int
	BaseDelay  time.Duration
	MaxDelay   time.Duration
	Jitter     bool
}

// DefaultRetryPolicy waits roughly 50ms, 100ms and 200ms between four
// attempts, jittered so colliding writers spread out.
func DefaultRetryPolicy() RetryPolicy {
	return RetryPolicy{MaxRetries: 3, BaseDelay: 50 * time.Millisecond, MaxDelay: time.Second, Jitter: true}
}

func (p RetryPolicy) Delay(retry int) time.Duration {
	if retry < 1 {
		return 0
	}
	d := p.BaseDelay
	for i := 1; i < retry; i++ {
		d *= 2
		if p.MaxDelay > 0 && d >= p.MaxDelay {
			break
		}
	}
	if p.MaxDelay > 0 && d > p.MaxDelay {
		d = p.MaxDelay
	}
	if p.Jitter && d > 0 {
		d += rand.N(d/2 + 1)
	}
	return d
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
