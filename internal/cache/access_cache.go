package cache

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/bwmarrin/snowflake"
	accessdomain "github.com/smallbiznis/accessd/internal/access/domain"
)

const defaultAccessTTL = 30 * time.Second

// Version identifies the invalidation state a cache read observed. A Set
// carrying a Version that an invalidation has since superseded is dropped.
type Version struct {
	Global uint64
	User   uint64
}

// AccessCache holds resolved store lists per user and purpose.
// Seat, role and store mutations must invalidate it.
//
// Get returns the Version current at read time, hit or miss; callers that
// fill on a miss pass that Version back to Set.
type AccessCache interface {
	Get(ctx context.Context, userID snowflake.ID, purpose string) ([]accessdomain.AccessibleStore, Version, bool)
	Set(ctx context.Context, userID snowflake.ID, purpose string, version Version, stores []accessdomain.AccessibleStore)
	InvalidateUser(ctx context.Context, userID snowflake.ID)
	InvalidateAll(ctx context.Context)
}

type accessKey struct {
	userID  snowflake.ID
	purpose string
}

type accessEntry struct {
	version Version
	stores  []accessdomain.AccessibleStore
}

type memoryAccessCache struct {
	entries Cache[accessKey, accessEntry]
	ttl     time.Duration

	mu         sync.Mutex
	generation uint64
	userGens   map[snowflake.ID]uint64
	purposes   map[snowflake.ID]map[string]struct{}
}

// NewMemoryAccessCache returns an in-process AccessCache. Invalidation bumps
// generation counters and evicts the affected entries.
func NewMemoryAccessCache(ttl time.Duration) AccessCache {
	if ttl <= 0 {
		ttl = defaultAccessTTL
	}
	return &memoryAccessCache{
		entries:  NewTTLCache[accessKey, accessEntry](),
		ttl:      ttl,
		userGens: make(map[snowflake.ID]uint64),
		purposes: make(map[snowflake.ID]map[string]struct{}),
	}
}

// current must be called with mu held.
func (c *memoryAccessCache) current(userID snowflake.ID) Version {
	return Version{Global: c.generation, User: c.userGens[userID]}
}

func (c *memoryAccessCache) Get(_ context.Context, userID snowflake.ID, purpose string) ([]accessdomain.AccessibleStore, Version, bool) {
	c.mu.Lock()
	version := c.current(userID)
	c.mu.Unlock()

	entry, ok := c.entries.Get(accessKey{userID: userID, purpose: normalizePurpose(purpose)})
	if !ok || entry.version != version {
		return nil, version, false
	}
	return append([]accessdomain.AccessibleStore(nil), entry.stores...), version, true
}

func (c *memoryAccessCache) Set(_ context.Context, userID snowflake.ID, purpose string, version Version, stores []accessdomain.AccessibleStore) {
	purpose = normalizePurpose(purpose)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.current(userID) != version {
		return
	}
	c.entries.Set(accessKey{userID: userID, purpose: purpose}, accessEntry{
		version: version,
		stores:  append([]accessdomain.AccessibleStore(nil), stores...),
	}, c.ttl)

	known, ok := c.purposes[userID]
	if !ok {
		known = make(map[string]struct{})
		c.purposes[userID] = known
	}
	known[purpose] = struct{}{}
}

func (c *memoryAccessCache) InvalidateUser(_ context.Context, userID snowflake.ID) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.userGens[userID]++
	for purpose := range c.purposes[userID] {
		c.entries.Delete(accessKey{userID: userID, purpose: purpose})
	}
	delete(c.purposes, userID)
}

func (c *memoryAccessCache) InvalidateAll(_ context.Context) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.generation++
	c.entries.Clear()
	clear(c.purposes)
}

func normalizePurpose(purpose string) string {
	return strings.ToLower(strings.TrimSpace(purpose))
}
