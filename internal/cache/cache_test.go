package cache

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemoryIdempotencyStoreReserve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour, time.Minute)

	existing, claimed, err := store.Reserve(ctx, "k", "hash-a")
	require.NoError(t, err)
	assert.True(t, claimed)
	assert.Nil(t, existing)

	existing, claimed, err = store.Reserve(ctx, "k", "hash-b")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.NotNil(t, existing)
	assert.Equal(t, "hash-a", existing.RequestHash)
	assert.True(t, existing.InProgress())

	body := []byte(`{"id":1}`)
	require.NoError(t, store.Complete(ctx, "k", IdempotencyRecord{
		RequestHash: "hash-a",
		Response:    &StoredResponse{Status: 201, ContentType: "application/json", Body: body},
	}))
	body[0] = 'X'

	existing, claimed, err = store.Reserve(ctx, "k", "hash-a")
	require.NoError(t, err)
	assert.False(t, claimed)
	require.False(t, existing.InProgress())
	assert.Equal(t, 201, existing.Response.Status)
	assert.JSONEq(t, `{"id":1}`, string(existing.Response.Body))

	require.NoError(t, store.Release(ctx, "k"))
	_, claimed, err = store.Reserve(ctx, "k", "hash-c")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestMemoryIdempotencyStoreConcurrentReserve(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(time.Hour, time.Minute)

	var wg sync.WaitGroup
	var winners atomic.Int32
	for i := 0; i < 32; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, claimed, err := store.Reserve(ctx, "k", "hash")
			if err == nil && claimed {
				winners.Add(1)
			}
		}()
	}
	wg.Wait()
	assert.Equal(t, int32(1), winners.Load())
}

func TestMemoryIdempotencyStoreSweepsExpiredKeys(t *testing.T) {
	ctx := context.Background()
	store := NewMemoryIdempotencyStore(20*time.Millisecond, 10*time.Millisecond)

	for i := 0; i < 1000; i++ {
		_, claimed, err := store.Reserve(ctx, fmt.Sprintf("k%d", i), "hash")
		require.NoError(t, err)
		require.True(t, claimed)
	}
	require.Equal(t, 1000, store.Len())

	assert.Eventually(t, func() bool { return store.Len() == 0 }, 2*time.Second, 10*time.Millisecond)

	_, claimed, err := store.Reserve(ctx, "k1", "other")
	require.NoError(t, err)
	assert.True(t, claimed)
}

func TestConnect(t *testing.T) {
	client, err := Connect(context.Background(), "redis://:pw@localhost:6380/2")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6380", client.Options().Addr)
	assert.Equal(t, 2, client.Options().DB)
	require.NoError(t, client.Close())

	client, err = Connect(context.Background(), "localhost:6379")
	require.NoError(t, err)
	assert.Equal(t, "localhost:6379", client.Options().Addr)
	require.NoError(t, client.Close())

	_, err = Connect(context.Background(), "redis://localhost:6379/notadb")
	require.Error(t, err)
}
