package session

import (
	"context"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/amoylab/redsess/internal/common/config"
)

const memoryPurgeInterval = time.Minute

// MemoryStore implements Store in process memory. Changes are only visible to
// subscribers of the same store.
type MemoryStore struct {
	*sessionStore

	backend *memoryBackend
	stop    chan struct{}
	wg      sync.WaitGroup
	once    sync.Once
}

var _ Store = (*MemoryStore)(nil)

// NewMemoryStore creates a new in-memory session store
func NewMemoryStore(logger *zap.Logger, cfg config.SessionConfig, opts ...Option) *MemoryStore {
	o := newOptions(opts)
	logger = logger.Named("session.store.memory")
	events := newLifecycle(logger, o.metrics)

	prefix := cfg.KeyPrefix()

	backend := newMemoryBackend()
	store := &MemoryStore{
		sessionStore: newSessionStore(backend, nopSubscriber{}, events, prefix, cfg.TTL, logger, o),
		backend:      backend,
		stop:         make(chan struct{}),
	}
	backend.sink = store.registry.dispatch

	store.wg.Add(1)
	go store.purgeLoop()

	events.emit(EventConnect)
	return store
}

func (s *MemoryStore) purgeLoop() {
	defer s.wg.Done()
	ticker := time.NewTicker(memoryPurgeInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			if n := s.backend.purge(); n > 0 {
				s.logger.Debug("purged expired sessions", zap.Int("count", n))
			}
		case <-s.stop:
			return
		}
	}
}

// Close implements Store.Close
func (s *MemoryStore) Close() error {
	var err error
	s.once.Do(func() {
		close(s.stop)
		s.wg.Wait()
		err = s.shutdown()
	})
	return err
}

type memoryItem struct {
	data      []byte
	expiresAt time.Time
}

type memoryBackend struct {
	mu    sync.Mutex
	items map[string]memoryItem
	now   func() time.Time
	sink  func(channel string, payload []byte)
}

var _ Backend = (*memoryBackend)(nil)

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		items: make(map[string]memoryItem),
		now:   time.Now,
	}
}

func (b *memoryBackend) Get(_ context.Context, key string) ([]byte, bool, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	item, ok := b.items[key]
	if !ok {
		return nil, false, nil
	}
	if !b.now().Before(item.expiresAt) {
		delete(b.items, key)
		return nil, false, nil
	}
	return append([]byte(nil), item.data...), true, nil
}

func (b *memoryBackend) SetEX(_ context.Context, key string, data []byte, ttl time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.items[key] = memoryItem{
		data:      append([]byte(nil), data...),
		expiresAt: b.now().Add(ttl),
	}
	return nil
}

func (b *memoryBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()

	delete(b.items, key)
	return nil
}

func (b *memoryBackend) Publish(_ context.Context, channel string, payload []byte) error {
	if b.sink != nil {
		b.sink(channel, append([]byte(nil), payload...))
	}
	return nil
}

// purge drops expired items and returns how many were removed
func (b *memoryBackend) purge() int {
	b.mu.Lock()
	defer b.mu.Unlock()

	now := b.now()
	n := 0
	for key, item := range b.items {
		if !now.Before(item.expiresAt) {
			delete(b.items, key)
			n++
		}
	}
	return n
}

// nopSubscriber backs the registry of a memory store, which needs no transport
type nopSubscriber struct{}

func (nopSubscriber) Subscribe(context.Context, ...string) error   { return nil }
func (nopSubscriber) Unsubscribe(context.Context, ...string) error { return nil }
