package database

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/lsendel/llmrank-mcp-gateway/internal/testutil"
	"github.com/lsendel/llmrank-mcp-gateway/storage"
)

func newTestStore(t *testing.T) (*Store, *testutil.MockTime) {
	t.Helper()

	name := strings.NewReplacer("/", "_", " ", "_").Replace(t.Name())
	s, err := Open(Config{
		Driver: "sqlite",
		DSN:    fmt.Sprintf("file:%s?mode=memory&cache=shared", name),
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })

	clock := testutil.NewMockTime(time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	s.SetClock(clock.Now)
	return s, clock
}

func TestOpen_Validation(t *testing.T) {
	_, err := Open(Config{Driver: "mysql", DSN: "x"})
	assert.ErrorContains(t, err, "unsupported database driver")

	_, err = Open(Config{Driver: "sqlite"})
	assert.Error(t, err)
}

func TestStore_PutGet(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "oauth:client:c", []byte("v1"), 0))
	got, err := s.Get(ctx, "oauth:client:c")
	require.NoError(t, err)
	assert.Equal(t, []byte("v1"), got)

	// Upsert replaces the value.
	require.NoError(t, s.Put(ctx, "oauth:client:c", []byte("v2"), 0))
	got, err = s.Get(ctx, "oauth:client:c")
	require.NoError(t, err)
	assert.Equal(t, []byte("v2"), got)
}

func TestStore_Get_Missing(t *testing.T) {
	s, _ := newTestStore(t)

	_, err := s.Get(context.Background(), "oauth:code:none")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Get(context.Background(), "")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Expiry(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "oauth:access:t", []byte("v"), time.Minute))

	clock.Advance(30 * time.Second)
	_, err := s.Get(ctx, "oauth:access:t")
	require.NoError(t, err)

	clock.Advance(time.Minute)
	_, err = s.Get(ctx, "oauth:access:t")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	_, err = s.Take(ctx, "oauth:access:t")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Delete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", []byte("v"), 0))
	require.NoError(t, s.Delete(ctx, "k"))
	_, err := s.Get(ctx, "k")
	assert.ErrorIs(t, err, storage.ErrNotFound)

	assert.NoError(t, s.Delete(ctx, "k"))
}

func TestStore_Take(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "oauth:code:c", []byte("payload"), time.Minute))

	got, err := s.Take(ctx, "oauth:code:c")
	require.NoError(t, err)
	assert.Equal(t, []byte("payload"), got)

	_, err = s.Take(ctx, "oauth:code:c")
	assert.ErrorIs(t, err, storage.ErrNotFound)
}

func TestStore_Take_Concurrent(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "oauth:refresh:race", []byte("payload"), time.Minute))

	var wins atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := s.Take(ctx, "oauth:refresh:race"); err == nil {
				wins.Add(1)
			}
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), wins.Load())
}

func TestStore_PurgeExpired(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "short", []byte("v"), time.Minute))
	require.NoError(t, s.Put(ctx, "long", []byte("v"), time.Hour))
	require.NoError(t, s.Put(ctx, "forever", []byte("v"), 0))

	clock.Advance(10 * time.Minute)
	n, err := s.PurgeExpired(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	_, err = s.Get(ctx, "long")
	assert.NoError(t, err)
	_, err = s.Get(ctx, "forever")
	assert.NoError(t, err)
}

func TestStore_WithCredentialStore(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	creds := storage.NewCredentialStore(s, storage.WithClock(clock.Now))

	client := testutil.GenerateTestClient()
	require.NoError(t, creds.SaveClient(ctx, client))

	got, err := creds.GetClient(ctx, client.ClientID)
	require.NoError(t, err)
	assert.Equal(t, client.RedirectURIs, got.RedirectURIs)
	assert.Equal(t, client.ClientIDIssuedAt, got.ClientIDIssuedAt)
}

func TestStore_RefreshTokenRotation(t *testing.T) {
	s, clock := newTestStore(t)
	ctx := context.Background()
	creds := storage.NewCredentialStore(s, storage.WithClock(clock.Now))

	token := testutil.GenerateTestToken(time.Hour)
	require.NoError(t, creds.SaveRefreshToken(ctx, token))

	got, err := creds.TakeRefreshToken(ctx, token.Token)
	require.NoError(t, err)
	assert.Equal(t, token.UserID, got.UserID)
	assert.Equal(t, token.Scopes, got.Scopes)

	_, err = creds.TakeRefreshToken(ctx, token.Token)
	assert.ErrorIs(t, err, storage.ErrTokenNotFound)
}
