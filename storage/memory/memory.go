package memory

import (
	"context"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// DefaultCleanupInterval is how often expired entries are swept.
const DefaultCleanupInterval = time.Minute

type entry struct {
	value     []byte
	expiresAt time.Time // zero means no expiry
}

func (e entry) expired(now time.Time) bool {
	return !e.expiresAt.IsZero() && now.After(e.expiresAt)
}

// Store is an in-memory implementation of storage.KV.
type Store struct {
	mu      sync.Mutex
	entries map[string]entry

	// size mirrors len(entries) so metric collection never takes the lock
	size atomic.Int64

	now             func() time.Time
	cleanupInterval time.Duration
	stopCleanup     chan struct{}
	stopOnce        sync.Once
	logger          *slog.Logger
}

var _ storage.KV = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithClock replaces the clock used for expiry.
func WithClock(now func() time.Time) Option {
	return func(s *Store) {
		if now != nil {
			s.now = now
		}
	}
}

// WithCleanupInterval sets the sweep interval. Values <= 0 keep the default.
func WithCleanupInterval(d time.Duration) Option {
	return func(s *Store) {
		if d > 0 {
			s.cleanupInterval = d
		}
	}
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// New creates a store and starts its cleanup goroutine. Call Stop when done.
func New(opts ...Option) *Store {
	s := &Store{
		entries:         make(map[string]entry),
		now:             time.Now,
		cleanupInterval: DefaultCleanupInterval,
		stopCleanup:     make(chan struct{}),
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}

	go s.cleanupLoop()
	return s
}

// SetInstrumentation reports the entry count as the storage.entries gauge.
func (s *Store) SetInstrumentation(inst *instrumentation.Instrumentation) {
	if inst == nil {
		return
	}
	if err := inst.RegisterStorageSizeCallback("memory", s.size.Load); err != nil {
		s.logger.Warn("Failed to register storage size callback", "error", err)
	}
}

// Stop stops the cleanup goroutine. It is safe to call more than once.
func (s *Store) Stop() {
	s.stopOnce.Do(func() { close(s.stopCleanup) })
}

// Put stores value under key. A ttl <= 0 stores without expiry.
func (s *Store) Put(_ context.Context, key string, value []byte, ttl time.Duration) error {
	e := entry{value: append([]byte(nil), value...)}
	if ttl > 0 {
		e.expiresAt = s.now().Add(ttl)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.entries[key] = e
	s.size.Store(int64(len(s.entries)))
	return nil
}

// Get returns the value under key, or storage.ErrNotFound.
func (s *Store) Get(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	return append([]byte(nil), e.value...), nil
}

// Delete removes key.
func (s *Store) Delete(_ context.Context, key string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	delete(s.entries, key)
	s.size.Store(int64(len(s.entries)))
	return nil
}

// Take returns and removes the value under key in one critical section.
func (s *Store) Take(_ context.Context, key string) ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	e, ok := s.lookup(key)
	if !ok {
		return nil, storage.ErrNotFound
	}
	delete(s.entries, key)
	s.size.Store(int64(len(s.entries)))
	return e.value, nil
}

// Len returns the number of entries, including expired ones not yet swept.
func (s *Store) Len() int {
	return int(s.size.Load())
}

// lookup returns a live entry, evicting it if it has expired. Caller holds mu.
func (s *Store) lookup(key string) (entry, bool) {
	e, ok := s.entries[key]
	if !ok {
		return entry{}, false
	}
	if e.expired(s.now()) {
		delete(s.entries, key)
		s.size.Store(int64(len(s.entries)))
		return entry{}, false
	}
	return e, true
}

// ============================================================
// Cleanup
// ============================================================

func (s *Store) cleanupLoop() {
	ticker := time.NewTicker(s.cleanupInterval)
	defer ticker.Stop()

	for {
		select {
		case <-s.stopCleanup:
			return
		case <-ticker.C:
			s.cleanup()
		}
	}
}

func (s *Store) cleanup() int {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	cleaned := 0
	for key, e := range s.entries {
		if e.expired(now) {
			delete(s.entries, key)
			cleaned++
		}
	}
	s.size.Store(int64(len(s.entries)))

	if cleaned > 0 {
		s.logger.Debug("Cleaned up expired entries", "count", cleaned, "remaining", len(s.entries))
	}
	return cleaned
}
