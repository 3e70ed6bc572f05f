// Package lock provides mutual exclusion over a shared key-value store.
//
// Two lock flavours are offered. SimpleLock is a single set-if-absent per
// acquire with no waiting. PubSubLock adds bounded waiting driven by release
// notifications and an optional lease watchdog for long critical sections.
package lock

import (
	"context"
	"time"
)

// KeyStore is the subset of a key-value store the lock services need.
// Every method must be atomic with respect to other callers on the same key.
type KeyStore interface {
	// SetNX stores value under key with ttl only if key is absent.
	SetNX(ctx context.Context, key, value string, ttl time.Duration) (bool, error)
	// CompareAndDelete deletes key only if it currently holds expected.
	CompareAndDelete(ctx context.Context, key, expected string) (bool, error)
	// CompareAndExpire resets the ttl of key only if it currently holds expected.
	CompareAndExpire(ctx context.Context, key, expected string, ttl time.Duration) (bool, error)
	Publish(ctx context.Context, channel, message string) error
	// Subscribe returns once the subscription is active, so any message
	// published after it returns is delivered.
	Subscribe(ctx context.Context, channel string) (Subscription, error)
}

// Subscription delivers messages published on one channel.
type Subscription interface {
	Messages() <-chan string
	Close() error
}

// Lease identifies a granted lock. Token is the only proof of ownership.
type Lease struct {
	Key        string
	Token      string
	TTL        time.Duration
	AcquiredAt time.Time
}

func releaseChannel(key string) string {
	return "lock:release:" + key
}
