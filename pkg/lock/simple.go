package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const releaseTimeout = 5 * time.Second

// SimpleLock grants a key to at most one holder at a time. Acquire never
// waits: a held key is reported as not acquired immediately.
type SimpleLock struct {
	store  KeyStore
	logger *zap.Logger
}

func NewSimpleLock(store KeyStore, logger *zap.Logger) *SimpleLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SimpleLock{store: store, logger: logger}
}

// Acquire makes a single set-if-absent attempt.
func (l *SimpleLock) Acquire(ctx context.Context, key string, ttl time.Duration) (Lease, bool, error) {
	if ttl <= 0 {
		return Lease{}, false, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	token := uuid.NewString()
	ok, err := l.store.SetNX(ctx, key, token, ttl)
	if err != nil {
		return Lease{}, false, err
	}
	if !ok {
		return Lease{}, false, nil
	}
	return Lease{Key: key, Token: token, TTL: ttl, AcquiredAt: time.Now()}, true, nil
}

// Release deletes key if it is still held by token. A false result means the
// lease expired and possibly went to another holder.
func (l *SimpleLock) Release(ctx context.Context, key, token string) (bool, error) {
	return l.store.CompareAndDelete(ctx, key, token)
}

// WithLock runs fn while holding key and releases it on every exit path.
func (l *SimpleLock) WithLock(ctx context.Context, key string, ttl time.Duration, fn func(ctx context.Context) error) error {
	lease, ok, err := l.Acquire(ctx, key, ttl)
	if err != nil {
		return err
	}
	if !ok {
		return &AcquisitionError{Key: key}
	}
	defer l.release(ctx, lease)
	return fn(ctx)
}

func (l *SimpleLock) release(ctx context.Context, lease Lease) {
	rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
	defer cancel()
	released, err := l.Release(rctx, lease.Key, lease.Token)
	logRelease(l.logger, lease, released, err)
}

func logRelease(logger *zap.Logger, lease Lease, released bool, err error) {
	switch {
	case err != nil && !errors.Is(err, context.Canceled):
		logger.Error("lock release failed", zap.String("key", lease.Key), zap.Error(err))
	case err == nil && !released:
		logger.Warn("lock lease expired before release",
			zap.String("key", lease.Key),
			zap.Duration("held", time.Since(lease.AcquiredAt)),
			zap.Duration("ttl", lease.TTL),
		)
	}
}
