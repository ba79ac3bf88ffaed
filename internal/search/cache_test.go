package search

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/romlind/issuescout/internal/db"
)

func setupStore(t *testing.T) *db.DB {
	t.Helper()

	store, err := db.New(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = store.Close()
	})
	require.NoError(t, store.Initialize())

	return store
}

func TestCacheRoundTrip(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(setupStore(t), zerolog.Nop())

	ids := []int64{42, 7, 13}
	cache.Put(ctx, "typescript error", ids, time.Minute)

	got, ok := cache.Get(ctx, "typescript error")
	assert.True(t, ok)
	assert.Equal(t, ids, got)
}

func TestCacheMiss(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(setupStore(t), zerolog.Nop())

	_, ok := cache.Get(ctx, "never stored")
	assert.False(t, ok)
}

func TestCacheExactMatchOnly(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(setupStore(t), zerolog.Nop())

	cache.Put(ctx, "typescript error", []int64{1}, time.Minute)

	_, ok := cache.Get(ctx, "typescript")
	assert.False(t, ok, "no partial-key lookups")
	_, ok = cache.Get(ctx, "Typescript error")
	assert.False(t, ok, "keys are literal, not normalized")
}

func TestCacheExpiry(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(setupStore(t), zerolog.Nop())

	current := time.Now()
	cache.now = func() time.Time { return current }

	cache.Put(ctx, "q", []int64{1, 2}, 30*time.Minute)

	current = current.Add(29 * time.Minute)
	_, ok := cache.Get(ctx, "q")
	assert.True(t, ok, "entry still inside its TTL")

	current = current.Add(2 * time.Minute)
	_, ok = cache.Get(ctx, "q")
	assert.False(t, ok, "expired entries are treated as absent")
}

func TestCachePutOverwrites(t *testing.T) {
	ctx := context.Background()
	cache := NewCache(setupStore(t), zerolog.Nop())

	cache.Put(ctx, "q", []int64{1}, time.Minute)
	cache.Put(ctx, "q", []int64{9, 8}, time.Minute)

	got, ok := cache.Get(ctx, "q")
	assert.True(t, ok)
	assert.Equal(t, []int64{9, 8}, got)
}

func TestCacheSurvivesFrontEviction(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	cache := NewCache(store, zerolog.Nop())

	cache.Put(ctx, "q", []int64{5}, time.Minute)
	cache.Clear() // wipes only the in-memory front

	got, ok := cache.Get(ctx, "q")
	assert.True(t, ok, "persisted entry backs the front")
	assert.Equal(t, []int64{5}, got)
}

func TestCacheStorageErrorIsMiss(t *testing.T) {
	ctx := context.Background()
	store := setupStore(t)
	cache := NewCache(store, zerolog.Nop())

	require.NoError(t, store.Close())

	// writes and reads against a closed store degrade, never panic or
	// propagate
	cache.Put(ctx, "q", []int64{1}, time.Minute)
	got, ok := cache.Get(ctx, "q")
	assert.True(t, ok, "the in-memory front still serves the entry")
	assert.Equal(t, []int64{1}, got)

	cache.Clear()
	_, ok = cache.Get(ctx, "q")
	assert.False(t, ok, "with the front gone a storage error is a miss")
}
