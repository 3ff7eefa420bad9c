package cache

import (
	"context"
	"testing"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTTLCacheExpires(t *testing.T) {
	now := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	c := newTTLCache[string, int](func() time.Time { return now })

	c.Set("a", 1, time.Minute)
	got, ok := c.Get("a")
	require.True(t, ok)
	assert.Equal(t, 1, got)

	now = now.Add(time.Minute)
	_, ok = c.Get("a")
	assert.False(t, ok)
	assert.Equal(t, 0, c.Len())
}

func TestTTLCacheIgnoresNonPositiveTTL(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, 0)
	_, ok := c.Get("a")
	assert.False(t, ok)
}

func TestMemoryAccessCacheInvalidateUser(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAccessCache(time.Minute)
	alice, bob := snowflake.ID(1), snowflake.ID(2)
	stores := []accessdomain.AccessibleStore{{StoreID: 10}}

	_, aliceVersion, _ := c.Get(ctx, alice, "any")
	_, bobVersion, _ := c.Get(ctx, bob, "any")
	c.Set(ctx, alice, "any", aliceVersion, stores)
	c.Set(ctx, bob, "any", bobVersion, stores)

	c.InvalidateUser(ctx, alice)

	_, _, ok := c.Get(ctx, alice, "any")
	assert.False(t, ok)
	got, _, ok := c.Get(ctx, bob, "any")
	require.True(t, ok)
	assert.Equal(t, stores, got)
}

func TestMemoryAccessCacheInvalidateAll(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAccessCache(time.Minute)

	c.Set(ctx, 1, "any", Version{}, []accessdomain.AccessibleStore{{StoreID: 10}})
	c.Set(ctx, 2, "analytics", Version{}, nil)

	c.InvalidateAll(ctx)

	_, _, ok := c.Get(ctx, 1, "any")
	assert.False(t, ok)
	_, _, ok = c.Get(ctx, 2, "analytics")
	assert.False(t, ok)
}

func TestMemoryAccessCacheDropsSupersededWrite(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAccessCache(time.Minute)
	user := snowflake.ID(1)

	_, version, ok := c.Get(ctx, user, "any")
	require.False(t, ok)
	c.InvalidateUser(ctx, user)
	c.Set(ctx, user, "any", version, []accessdomain.AccessibleStore{{StoreID: 10}})

	_, _, ok = c.Get(ctx, user, "any")
	assert.False(t, ok)

	_, version, _ = c.Get(ctx, user, "any")
	c.InvalidateAll(ctx)
	c.Set(ctx, user, "any", version, []accessdomain.AccessibleStore{{StoreID: 10}})

	_, _, ok = c.Get(ctx, user, "any")
	assert.False(t, ok)

	_, version, _ = c.Get(ctx, user, "any")
	c.Set(ctx, user, "any", version, []accessdomain.AccessibleStore{{StoreID: 10}})
	got, _, ok := c.Get(ctx, user, "any")
	require.True(t, ok)
	assert.Len(t, got, 1)
}

func TestMemoryAccessCacheEvictsOnInvalidation(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAccessCache(time.Minute).(*memoryAccessCache)
	stores := []accessdomain.AccessibleStore{{StoreID: 10}}

	for i := 0; i < 1000; i++ {
		_, version, _ := c.Get(ctx, 1, "any")
		c.Set(ctx, 1, "any", version, stores)
		c.InvalidateAll(ctx)
	}
	assert.Equal(t, 0, c.entries.Len())

	for i := 0; i < 1000; i++ {
		user := snowflake.ID(i)
		for _, purpose := range []string{"any", "analytics"} {
			_, version, _ := c.Get(ctx, user, purpose)
			c.Set(ctx, user, purpose, version, stores)
		}
		c.InvalidateUser(ctx, user)
	}
	assert.Equal(t, 0, c.entries.Len())
	assert.Empty(t, c.purposes)
}

func TestMemoryAccessCacheCopiesSlices(t *testing.T) {
	ctx := context.Background()
	c := NewMemoryAccessCache(time.Minute)
	stores := []accessdomain.AccessibleStore{{StoreID: 10}}
	c.Set(ctx, 1, "any", Version{}, stores)

	stores[0].StoreID = 99
	got, _, ok := c.Get(ctx, 1, "ANY")
	require.True(t, ok)
	assert.Equal(t, snowflake.ID(10), got[0].StoreID)
}

func TestTTLCacheClear(t *testing.T) {
	c := NewTTLCache[string, int]()
	c.Set("a", 1, time.Minute)
	c.Set("b", 2, time.Minute)
	c.Clear()
	assert.Equal(t, 0, c.Len())
}
