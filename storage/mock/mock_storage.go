// Package mock provides a storage.KV whose behaviour can be overridden per
// operation, for injecting backend failures in tests.
package mock

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

// KV is an in-map storage.KV with overridable operations. TTLs are recorded
// but not enforced.
type KV struct {
	mu     sync.Mutex
	values map[string][]byte
	ttls   map[string]time.Duration
	counts map[string]int

	PutFunc    func(ctx context.Context, key string, value []byte, ttl time.Duration) error
	GetFunc    func(ctx context.Context, key string) ([]byte, error)
	DeleteFunc func(ctx context.Context, key string) error
	TakeFunc   func(ctx context.Context, key string) ([]byte, error)
}

var _ storage.KV = (*KV)(nil)

// NewKV creates a mock KV with working default implementations.
func NewKV() *KV {
	m := &KV{
		values: make(map[string][]byte),
		ttls:   make(map[string]time.Duration),
		counts: make(map[string]int),
	}

	m.PutFunc = func(_ context.Context, key string, value []byte, ttl time.Duration) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		m.values[key] = append([]byte(nil), value...)
		m.ttls[key] = ttl
		return nil
	}

	m.GetFunc = func(_ context.Context, key string) ([]byte, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		v, ok := m.values[key]
		if !ok {
			return nil, storage.ErrNotFound
		}
		return v, nil
	}

	m.DeleteFunc = func(_ context.Context, key string) error {
		m.mu.Lock()
		defer m.mu.Unlock()
		delete(m.values, key)
		delete(m.ttls, key)
		return nil
	}

	m.TakeFunc = func(_ context.Context, key string) ([]byte, error) {
		m.mu.Lock()
		defer m.mu.Unlock()
		v, ok := m.values[key]
		if !ok {
			return nil, storage.ErrNotFound
		}
		delete(m.values, key)
		delete(m.ttls, key)
		return v, nil
	}

	return m
}

// FailPutsWithPrefix makes Put return err for every key starting with prefix
// and delegates the rest to the current PutFunc.
func (m *KV) FailPutsWithPrefix(prefix string, err error) {
	next := m.PutFunc
	m.PutFunc = func(ctx context.Context, key string, value []byte, ttl time.Duration) error {
		if strings.HasPrefix(key, prefix) {
			return err
		}
		return next(ctx, key, value, ttl)
	}
}

// Put implements storage.KV.
func (m *KV) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	m.count("Put")
	return m.PutFunc(ctx, key, value, ttl)
}

// Get implements storage.KV.
func (m *KV) Get(ctx context.Context, key string) ([]byte, error) {
	m.count("Get")
	return m.GetFunc(ctx, key)
}

// Delete implements storage.KV.
func (m *KV) Delete(ctx context.Context, key string) error {
	m.count("Delete")
	return m.DeleteFunc(ctx, key)
}

// Take implements storage.KV.
func (m *KV) Take(ctx context.Context, key string) ([]byte, error) {
	m.count("Take")
	return m.TakeFunc(ctx, key)
}

// TTL returns the TTL recorded by the default Put for key.
func (m *KV) TTL(key string) (time.Duration, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	ttl, ok := m.ttls[key]
	return ttl, ok
}

// Has reports whether key is currently stored.
func (m *KV) Has(key string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.values[key]
	return ok
}

// CallCount returns how many times the named operation was invoked.
func (m *KV) CallCount(op string) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.counts[op]
}

func (m *KV) count(op string) {
	m.mu.Lock()
	m.counts[op]++
	m.mu.Unlock()
}
