package kv

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestStore(t *testing.T) (*Store, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	return NewStoreFromClient(client), mr
}

func TestStore_PutGetDelete(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	type payload struct {
		Name  string `json:"name"`
		Count int    `json:"count"`
	}

	require.NoError(t, s.Put(ctx, "user:u1:thing", payload{Name: "goblin", Count: 3}, 0))

	var got payload
	found, err := s.Get(ctx, "user:u1:thing", &got)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, payload{Name: "goblin", Count: 3}, got)

	require.NoError(t, s.Delete(ctx, "user:u1:thing"))
	found, err = s.Get(ctx, "user:u1:thing", &got)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_GetMissingKey(t *testing.T) {
	s, _ := newTestStore(t)

	var dest map[string]any
	found, err := s.Get(context.Background(), "nope", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_TTLExpiry(t *testing.T) {
	s, mr := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "k", "v", time.Minute))
	mr.FastForward(2 * time.Minute)

	var dest string
	found, err := s.Get(ctx, "k", &dest)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_GetDelIsSingleUse(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "token:abc", "u1", time.Minute))

	var userID string
	found, err := s.GetDel(ctx, "token:abc", &userID)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "u1", userID)

	found, err = s.GetDel(ctx, "token:abc", &userID)
	require.NoError(t, err)
	assert.False(t, found)
}

func TestStore_ListKeysScopedByPrefix(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.Put(ctx, "user:u1:queued_notification:1:a", 1, 0))
	require.NoError(t, s.Put(ctx, "user:u1:queued_notification:2:b", 2, 0))
	require.NoError(t, s.Put(ctx, "user:u2:queued_notification:3:c", 3, 0))

	keys, err := s.ListKeys(ctx, "user:u1:queued_notification:")
	require.NoError(t, err)
	assert.Len(t, keys, 2)
	for _, k := range keys {
		assert.Contains(t, k, "user:u1:")
	}
}

func TestStore_FloatCounter(t *testing.T) {
	s, _ := newTestStore(t)
	ctx := context.Background()

	v, err := s.IncrByFloat(ctx, "campaign:c1:impact", 1.2)
	require.NoError(t, err)
	assert.InDelta(t, 1.2, v, 1e-9)

	v, err = s.IncrByFloat(ctx, "campaign:c1:impact", 3.0)
	require.NoError(t, err)
	assert.InDelta(t, 4.2, v, 1e-9)

	require.NoError(t, s.SetFloat(ctx, "campaign:c1:impact", 0))
	v, err = s.GetFloat(ctx, "campaign:c1:impact")
	require.NoError(t, err)
	assert.Zero(t, v)
}
