package lock

import (
	"context"
	"sync"
	"time"
)

type memoryEntry struct {
	value     string
	expiresAt time.Time
}

// MemoryKeyStore is a single-process KeyStore. Expired keys are dropped
// lazily on access.
type MemoryKeyStore struct {
	mu          sync.Mutex
	entries     map[string]memoryEntry
	subscribers map[string]map[*memorySubscription]struct{}
	now         func() time.Time
}

func NewMemoryKeyStore() *MemoryKeyStore {
	return &MemoryKeyStore{
		entries:     make(map[string]memoryEntry),
		subscribers: make(map[string]map[*memorySubscription]struct{}),
		now:         time.Now,
	}
}

// live returns the entry for key if it has not expired. Callers hold mu.
func (s *MemoryKeyStore) live(key string) (memoryEntry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return memoryEntry{}, false
	}
	if !s.now().Before(e.expiresAt) {
		delete(s.entries, key)
		return memoryEntry{}, false
	}
	return e, true
}

func (s *MemoryKeyStore) SetNX(_ context.Context, key, value string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.live(key); ok {
		return false, nil
	}
	s.entries[key] = memoryEntry{value: value, expiresAt: s.now().Add(ttl)}
	return true, nil
}

func (s *MemoryKeyStore) CompareAndDelete(_ context.Context, key, expected string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.value != expected {
		return false, nil
	}
	delete(s.entries, key)
	return true, nil
}

func (s *MemoryKeyStore) CompareAndExpire(_ context.Context, key, expected string, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	if !ok || e.value != expected {
		return false, nil
	}
	e.expiresAt = s.now().Add(ttl)
	s.entries[key] = e
	return true, nil
}

// Get reports the current holder of key. Used by tests and diagnostics.
func (s *MemoryKeyStore) Get(key string) (string, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	e, ok := s.live(key)
	return e.value, ok
}

func (s *MemoryKeyStore) Publish(_ context.Context, channel, message string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for sub := range s.subscribers[channel] {
		select {
		case sub.out <- message:
		default:
		}
	}
	return nil
}

func (s *MemoryKeyStore) Subscribe(_ context.Context, channel string) (Subscription, error) {
	sub := &memorySubscription{store: s, channel: channel, out: make(chan string, 1)}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.subscribers[channel] == nil {
		s.subscribers[channel] = make(map[*memorySubscription]struct{})
	}
	s.subscribers[channel][sub] = struct{}{}
	return sub, nil
}

type memorySubscription struct {
	store   *MemoryKeyStore
	channel string
	out     chan string
	closed  bool
}

func (m *memorySubscription) Messages() <-chan string {
	return m.out
}

func (m *memorySubscription) Close() error {
	s := m.store
	s.mu.Lock()
	defer s.mu.Unlock()
	if m.closed {
		return nil
	}
	m.closed = true
	delete(s.subscribers[m.channel], m)
	if len(s.subscribers[m.channel]) == 0 {
		delete(s.subscribers, m.channel)
	}
	close(m.out)
	return nil
}
