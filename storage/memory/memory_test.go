package memory

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/lsendel/llmrank-mcp-gateway/instrumentation"
	"github.com/lsendel/llmrank-mcp-gateway/internal/testutil"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

func newTestStore(t *testing.T) (*Store, *testutil.MockTime) {
	t.Helper()
	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s := New(WithClock(clock.Now))
	t.Cleanup(s.Stop)
	return s, clock
}

func TestStore_PutGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	if err := s.Put(ctx, "oauth:client:abc", []byte(`{"client_id":"abc"}`), 0); err != nil {
		t.Fatalf("Put() error = %v", err)
	}

	got, err := s.Get(ctx, "oauth:client:abc")
	if err != nil {
		t.Fatalf("Get() error = %v", err)
	}
	if string(got) != `{"client_id":"abc"}` {
		t.Errorf("Get() = %q", got)
	}
}

func TestStore_Get_Missing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "oauth:code:missing")
	if !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Put_CopiesValue(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	value := []byte("original")
	_ = s.Put(ctx, "k", value, 0)
	value[0] = 'X'

	got, _ := s.Get(ctx, "k")
	if string(got) != "original" {
		t.Errorf("stored value changed through caller slice: %q", got)
	}
}

func TestStore_TTL(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "oauth:access:t", []byte("v"), time.Minute)

	clock.Advance(59 * time.Second)
	if _, err := s.Get(ctx, "oauth:access:t"); err != nil {
		t.Fatalf("Get() before expiry error = %v", err)
	}

	clock.Advance(2 * time.Second)
	if _, err := s.Get(ctx, "oauth:access:t"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after expiry error = %v, want ErrNotFound", err)
	}
	if s.Len() != 0 {
		t.Errorf("Len() = %d after lazy eviction, want 0", s.Len())
	}
}

func TestStore_NoTTL(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "oauth:client:c", []byte("v"), 0)
	clock.Advance(365 * 24 * time.Hour)

	if _, err := s.Get(ctx, "oauth:client:c"); err != nil {
		t.Errorf("entry without TTL expired: %v", err)
	}
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "k", []byte("v"), 0)
	if err := s.Delete(ctx, "k"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	if _, err := s.Get(ctx, "k"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Get() after Delete() error = %v, want ErrNotFound", err)
	}
	if err := s.Delete(ctx, "k"); err != nil {
		t.Errorf("Delete() of missing key error = %v", err)
	}
}

func TestStore_Take(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "oauth:code:c", []byte("payload"), time.Minute)

	got, err := s.Take(ctx, "oauth:code:c")
	if err != nil {
		t.Fatalf("Take() error = %v", err)
	}
	if string(got) != "payload" {
		t.Errorf("Take() = %q, want payload", got)
	}

	if _, err := s.Take(ctx, "oauth:code:c"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("second Take() error = %v, want ErrNotFound", err)
	}
}

func TestStore_Take_Expired(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "oauth:code:c", []byte("payload"), time.Minute)
	clock.Advance(2 * time.Minute)

	if _, err := s.Take(ctx, "oauth:code:c"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("Take() of expired entry error = %v, want ErrNotFound", err)
	}
}

func TestStore_Take_Concurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "oauth:code:race", []byte("payload"), time.Minute)

	const workers = 50
	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "oauth:code:race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	if wins.Load() != 1 {
		t.Errorf("Take() succeeded %d times, want exactly 1", wins.Load())
	}
}

func TestStore_Cleanup(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	_ = s.Put(ctx, "short", []byte("v"), time.Minute)
	_ = s.Put(ctx, "long", []byte("v"), time.Hour)
	_ = s.Put(ctx, "forever", []byte("v"), 0)

	clock.Advance(5 * time.Minute)
	if cleaned := s.cleanup(); cleaned != 1 {
		t.Errorf("cleanup() removed %d, want 1", cleaned)
	}
	if s.Len() != 2 {
		t.Errorf("Len() = %d, want 2", s.Len())
	}
}

func TestStore_SetInstrumentation(t *testing.T) {
	s, _ := newTestStore(t)

	inst, err := instrumentation.New(instrumentation.Config{Enabled: true, MetricsExporter: instrumentation.ExporterPrometheus})
	if err != nil {
		t.Fatalf("instrumentation.New() error = %v", err)
	}
	defer func() { _ = inst.Shutdown(context.Background()) }()

	s.SetInstrumentation(inst)
	s.SetInstrumentation(nil)
}

func TestStore_Stop_Idempotent(t *testing.T) {
	s := New(WithCleanupInterval(10 * time.Millisecond))
	s.Stop()
	s.Stop()
}
