package lock

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const defaultRecheckInterval = 500 * time.Millisecond

// AcquireOptions controls a PubSubLock acquisition.
type AcquireOptions struct {
	TTL time.Duration
	// WaitTimeout bounds how long a held key is waited for. Zero or
	// negative means a single attempt.
	WaitTimeout time.Duration
	// AutoExtend keeps renewing the lease until it is released.
	AutoExtend bool
}

type PubSubOption func(*PubSubLock)

// WithRecheckInterval sets how often a waiter retries without a release
// notification. This covers holders whose lease expired without releasing.
func WithRecheckInterval(d time.Duration) PubSubOption {
	return func(l *PubSubLock) {
		if d > 0 {
			l.recheckInterval = d
		}
	}
}

// PubSubLock is a lock whose waiters sleep until the holder publishes a
// release on the key's channel. Every wake-up makes one atomic attempt, so
// at most one waiter wins per release.
//
// The lock is not reentrant.
type PubSubLock struct {
	store           KeyStore
	logger          *zap.Logger
	recheckInterval time.Duration

	mu        sync.Mutex
	watchdogs map[string]context.CancelFunc
}

func NewPubSubLock(store KeyStore, logger *zap.Logger, opts ...PubSubOption) *PubSubLock {
	if logger == nil {
		logger = zap.NewNop()
	}
	l := &PubSubLock{
		store:           store,
		logger:          logger,
		recheckInterval: defaultRecheckInterval,
		watchdogs:       make(map[string]context.CancelFunc),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// AcquireExtended tries to take key, waiting up to opts.WaitTimeout for the
// current holder to let go. It returns (_, false, nil) when the wait runs out
// and ctx.Err() when ctx is cancelled first.
func (l *PubSubLock) AcquireExtended(ctx context.Context, key string, opts AcquireOptions) (Lease, bool, error) {
	if opts.TTL <= 0 {
		return Lease{}, false, fmt.Errorf("lock %s: ttl must be positive", key)
	}
	token := uuid.NewString()

	ok, err := l.store.SetNX(ctx, key, token, opts.TTL)
	if err != nil {
		return Lease{}, false, err
	}
	if ok {
		return l.grant(ctx, key, token, opts), true, nil
	}
	if opts.WaitTimeout <= 0 {
		return Lease{}, false, nil
	}

	deadline := time.Now().Add(opts.WaitTimeout)
	sub, err := l.store.Subscribe(ctx, releaseChannel(key))
	if err != nil {
		return Lease{}, false, err
	}
	defer sub.Close()
	messages := sub.Messages()

	for {
		// The first pass runs after subscribing, so a release that landed
		// between the initial attempt and Subscribe is not missed.
		ok, err := l.store.SetNX(ctx, key, token, opts.TTL)
		if err != nil {
			return Lease{}, false, err
		}
		if ok {
			return l.grant(ctx, key, token, opts), true, nil
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return Lease{}, false, nil
		}
		timer := time.NewTimer(min(l.recheckInterval, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return Lease{}, false, ctx.Err()
		case _, open := <-messages:
			if !open {
				messages = nil
			}
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (l *PubSubLock) grant(ctx context.Context, key, token string, opts AcquireOptions) Lease {
	lease := Lease{Key: key, Token: token, TTL: opts.TTL, AcquiredAt: time.Now()}
	if opts.AutoExtend {
		l.startWatchdog(ctx, lease)
	}
	return lease
}

func (l *PubSubLock) startWatchdog(ctx context.Context, lease Lease) {
	wctx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	l.mu.Lock()
	l.watchdogs[lease.Token] = cancel
	l.mu.Unlock()

	interval := lease.TTL / 3
	if interval <= 0 {
		interval = time.Millisecond
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-wctx.Done():
				return
			case <-ticker.C:
				ok, err := l.store.CompareAndExpire(wctx, lease.Key, lease.Token, lease.TTL)
				if err != nil {
					if wctx.Err() != nil {
						return
					}
					l.logger.Warn("lock renewal failed", zap.String("key", lease.Key), zap.Error(err))
					continue
				}
				if !ok {
					l.logger.Warn("lock lease lost, stopping renewal", zap.String("key", lease.Key))
					l.stopWatchdog(lease.Token)
					return
				}
			}
		}
	}()
}

func (l *PubSubLock) stopWatchdog(token string) {
	l.mu.Lock()
	cancel, ok := l.watchdogs[token]
	delete(l.watchdogs, token)
	l.mu.Unlock()
	if ok {
		cancel()
	}
}

// Release stops any renewal, deletes key if token still owns it and then
// notifies waiters.
func (l *PubSubLock) Release(ctx context.Context, key, token string) (bool, error) {
	l.stopWatchdog(token)
	released, err := l.store.CompareAndDelete(ctx, key, token)
	if err != nil || !released {
		return released, err
	}
	if err := l.store.Publish(ctx, releaseChannel(key), token); err != nil {
		// The key is gone; waiters still find it on their next recheck.
		l.logger.Warn("lock release notification failed", zap.String("key", key), zap.Error(err))
	}
	return true, nil
}

// WithLockExtended runs fn while holding key. The lock is released on every
// exit path and fn's error is returned as is.
func (l *PubSubLock) WithLockExtended(ctx context.Context, key string, opts AcquireOptions, fn func(ctx context.Context) error) error {
	lease, ok, err := l.AcquireExtended(ctx, key, opts)
	if err != nil {
		return err
	}
	if !ok {
		return &AcquisitionError{Key: key}
	}
	defer func() {
		rctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), releaseTimeout)
		defer cancel()
		released, err := l.Release(rctx, lease.Key, lease.Token)
		logRelease(l.logger, lease, released, err)
	}()
	return fn(ctx)
}
