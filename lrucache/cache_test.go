/*
Copyright © 2024 Acronis International GmbH.

Released under MIT license.
*/

package lrucache

import (
	"context"
	"strings"
	"testing"
	"time"

	promtestutil "github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLRUCache(t *testing.T) {
	users := map[string]string{
		"user:1":   "Bob",
		"user:42":  "John",
		"user:777": "Ivan",
	}
	posts := map[string]string{
		"post:101": "My first post.",
		"post:777": "My second post.",
	}

	fillCache := func(cache *LRUCache[string, string]) {
		for _, key := range []string{"user:1", "user:42", "user:777"} {
			cache.Add(key, users[key])
		}
		for _, key := range []string{"post:101", "post:777"} {
			cache.Add(key, posts[key])
		}
	}

	tests := []struct {
		name        string
		maxEntries  int
		fn          func(t *testing.T, cache *LRUCache[string, string])
		wantMetrics testMetrics
	}{
		{
			name:       "attempt to get not existing keys",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				for key := range users {
					_, found := cache.Get(key)
					require.False(t, found)
				}
				for key := range posts {
					_, found := cache.Get(key)
					require.False(t, found)
				}
			},
			wantMetrics: testMetrics{Misses: len(users) + len(posts)},
		},
		{
			name:       "add entries and get them",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache)

				for key, wantUser := range users {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantUser, val)
				}
				for key, wantPost := range posts {
					val, found := cache.Get(key)
					require.True(t, found)
					require.Equal(t, wantPost, val)
				}
			},
			wantMetrics: testMetrics{
				Amount: len(users) + len(posts),
				Hits:   len(users) + len(posts),
			},
		},
		{
			name:       "add entries with evictions",
			maxEntries: len(users) + len(posts) - 1,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache) // "user:1" key will be evicted.

				_, found := cache.Get("user:1")
				require.False(t, found)
				for _, key := range []string{"user:42", "user:777", "post:101", "post:777"} {
					_, found = cache.Get(key)
					require.True(t, found)
				}
			},
			wantMetrics: testMetrics{
				Amount:    len(users) + len(posts) - 1,
				Hits:      len(users) + len(posts) - 1,
				Misses:    1,
				Evictions: 1,
			},
		},
		{
			name:       "remove entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache)

				require.False(t, cache.Remove("user:100500"))
				require.True(t, cache.Remove("user:42"))
				require.True(t, cache.Remove("post:101"))
				require.Equal(t, 3, cache.Len())
			},
			wantMetrics: testMetrics{Amount: 3},
		},
		{
			name:       "remove matching entries",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache)

				removed := cache.RemoveMatching(func(key string, _ string) bool {
					return strings.HasPrefix(key, "post:")
				})
				require.Equal(t, len(posts), removed)
				require.Equal(t, len(users), cache.Len())

				_, found := cache.Get("post:101")
				require.False(t, found)
			},
			wantMetrics: testMetrics{Amount: len(users), Misses: 1},
		},
		{
			name:       "purge",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache)
				cache.Purge()
				require.Equal(t, 0, cache.Len())
			},
			wantMetrics: testMetrics{},
		},
		{
			name:       "resize with evictions",
			maxEntries: 100,
			fn: func(t *testing.T, cache *LRUCache[string, string]) {
				fillCache(cache)
				_, found := cache.Get("user:42")
				require.True(t, found)
				_, found = cache.Get("user:777")
				require.True(t, found)
				_, found = cache.Get("post:777")
				require.True(t, found)

				cache.Resize(2)

				_, found = cache.Get("user:42")
				require.False(t, found)
				_, found = cache.Get("user:777")
				require.True(t, found)
				_, found = cache.Get("post:777")
				require.True(t, found)
			},
			wantMetrics: testMetrics{
				Amount:    2,
				Hits:      5,
				Misses:    1,
				Evictions: 3,
			},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache, metricsCollector := makeCache(t, tt.maxEntries)
			tt.fn(t, cache)
			assertCacheMetrics(t, tt.wantMetrics, metricsCollector)
		})
	}
}

func TestNewLRUCacheError(t *testing.T) {
	_, err := New[string, string](0, nil)
	require.EqualError(t, err, "maxEntries must be greater than 0")

	_, err = NewWithOpts[string, string](10, nil, Options{DefaultTTL: -time.Second})
	require.EqualError(t, err, "defaultTTL must be greater or equal to 0 (no expiration)")
}

func TestLRUCacheGetOrAdd(t *testing.T) {
	cache, err := New[string, int](10, nil)
	require.NoError(t, err)

	calls := 0
	provider := func() int {
		calls++
		return 42
	}

	value, exists := cache.GetOrAdd("answer", provider)
	require.False(t, exists)
	require.Equal(t, 42, value)
	require.Equal(t, 1, calls)

	value, exists = cache.GetOrAdd("answer", provider)
	require.True(t, exists)
	require.Equal(t, 42, value)
	require.Equal(t, 1, calls)
}

func TestLRUCacheTTL(t *testing.T) {
	cache, err := NewWithOpts[string, string](10, nil, Options{DefaultTTL: time.Millisecond * 50})
	require.NoError(t, err)

	cache.Add("short-lived", "a")
	cache.AddWithTTL("long-lived", "b", time.Minute)
	cache.AddWithTTL("no-expiration", "c", 0)

	_, found := cache.Get("short-lived")
	require.True(t, found)

	time.Sleep(time.Millisecond * 100)

	_, found = cache.Get("short-lived")
	require.False(t, found)
	_, found = cache.Get("long-lived")
	require.True(t, found)
	_, found = cache.Get("no-expiration")
	require.True(t, found)
}

func TestLRUCacheRunPeriodicCleanup(t *testing.T) {
	cache, err := New[string, string](10, nil)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	cleanupDone := make(chan struct{})
	go func() {
		defer close(cleanupDone)
		cache.RunPeriodicCleanup(ctx, time.Millisecond*20)
	}()

	cache.AddWithTTL("expiring-1", "a", time.Millisecond*30)
	cache.AddWithTTL("expiring-2", "b", time.Millisecond*30)
	cache.Add("persistent", "c")

	require.Eventually(t, func() bool { return cache.Len() == 1 }, time.Second*3, time.Millisecond*10)

	cancel()
	<-cleanupDone

	_, found := cache.Get("persistent")
	require.True(t, found)
}

func TestLRUCacheRemoveMatching(t *testing.T) {
	cache, err := New[string, int](10, nil)
	require.NoError(t, err)

	for i, key := range []string{"user:1", "user:2", "session:1", "session:2", "session:3"} {
		cache.Add(key, i)
	}

	removed := cache.RemoveMatching(func(key string, _ int) bool {
		return strings.HasPrefix(key, "session:")
	})
	require.Equal(t, 3, removed)
	require.Equal(t, 2, cache.Len())

	_, found := cache.Get("user:1")
	require.True(t, found)
	_, found = cache.Get("session:1")
	require.False(t, found)

	require.Equal(t, 0, cache.RemoveMatching(func(string, int) bool { return false }))
	require.Equal(t, 2, cache.Len())
}

type testMetrics struct {
	Amount    int
	Hits      int
	Misses    int
	Evictions int
}

func assertCacheMetrics(t *testing.T, want testMetrics, mc *PrometheusMetrics) {
	t.Helper()
	assert.Equal(t, want.Amount, int(promtestutil.ToFloat64(mc.EntriesAmount.With(nil))))
	assert.Equal(t, want.Hits, int(promtestutil.ToFloat64(mc.HitsTotal.With(nil))))
	assert.Equal(t, want.Misses, int(promtestutil.ToFloat64(mc.MissesTotal.With(nil))))
	assert.Equal(t, want.Evictions, int(promtestutil.ToFloat64(mc.EvictionsTotal.With(nil))))
}

func makeCache(t *testing.T, maxEntries int) (*LRUCache[string, string], *PrometheusMetrics) {
	t.Helper()
	mc := NewPrometheusMetrics()
	cache, err := New[string, string](maxEntries, mc)
	require.NoError(t, err)
	return cache, mc
}
