package cache

import (
	"context"
	"sync"

	"github.com/freewilll/splitledger/ledger"
)

// InMemoryCache implements the Cache interface for an in memory cache
type InMemoryCache struct {
	mu      sync.Mutex
	entries map[int]map[string]ledger.Summary
	gens    map[int]int64
}

// NewInMemoryCache creates an instance of InMemoryCache
func NewInMemoryCache() *InMemoryCache {
	return &InMemoryCache{
		entries: make(map[int]map[string]ledger.Summary),
		gens:    make(map[int]int64),
	}
}

// GetSummary gets the cached summary of userID in a scope
func (c *InMemoryCache) GetSummary(_ context.Context, userID int, group *ledger.Group) (ledger.Summary, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.entries[userID][scopeKey(group)]
	return s, ok, nil
}

// Generation returns how many times userID has been invalidated
func (c *InMemoryCache) Generation(_ context.Context, userID int) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.gens[userID], nil
}

// SetSummary sets the summary of userID in a scope, unless userID has been
// invalidated since gen was read
func (c *InMemoryCache) SetSummary(_ context.Context, userID int, group *ledger.Group, gen int64, summary ledger.Summary) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[userID] != gen {
		return nil
	}
	if c.entries[userID] == nil {
		c.entries[userID] = make(map[string]ledger.Summary)
	}
	c.entries[userID][scopeKey(group)] = summary
	return nil
}

// Invalidate drops every cached summary of the users
func (c *InMemoryCache) Invalidate(_ context.Context, userIDs ...int) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for _, id := range userIDs {
		c.gens[id]++
		delete(c.entries, id)
	}
	return nil
}
