package auth

import (
	"sync"
	"time"
)

// SessionCache keeps resolved sessions by token hash so that every request
// does not hit Postgres.
type SessionCache struct {
	mu      sync.RWMutex
	entries map[string]cachedSession
	ttl     time.Duration
	maxSize int
	now     func() time.Time
}

type cachedSession struct {
	data     *SessionData
	cachedAt time.Time
}

func NewSessionCache(ttl time.Duration, maxSize int) *SessionCache {
	if ttl <= 0 {
		ttl = 5 * time.Minute
	}
	if maxSize <= 0 {
		maxSize = 500
	}
	return &SessionCache{
		entries: make(map[string]cachedSession),
		ttl:     ttl,
		maxSize: maxSize,
		now:     time.Now,
	}
}

func (c *SessionCache) Get(tokenHash string) (*SessionData, bool) {
	c.mu.RLock()
	e, ok := c.entries[tokenHash]
	c.mu.RUnlock()
	if !ok {
		return nil, false
	}

	now := c.now()
	if now.Sub(e.cachedAt) > c.ttl || now.After(e.data.Session.ExpiresAt) {
		c.Delete(tokenHash)
		return nil, false
	}
	return e.data, true
}

func (c *SessionCache) Set(tokenHash string, data *SessionData) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.entries[tokenHash]; !exists && len(c.entries) >= c.maxSize {
		c.evictOldestLocked()
	}
	c.entries[tokenHash] = cachedSession{data: data, cachedAt: c.now()}
}

func (c *SessionCache) Delete(tokenHash string) {
	c.mu.Lock()
	delete(c.entries, tokenHash)
	c.mu.Unlock()
}

// DeleteUser drops every cached session of userID.
func (c *SessionCache) DeleteUser(userID string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for k, e := range c.entries {
		if e.data.User.ID == userID {
			delete(c.entries, k)
		}
	}
}

func (c *SessionCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}

func (c *SessionCache) evictOldestLocked() {
	var oldestKey string
	var oldest time.Time
	for k, e := range c.entries {
		if oldestKey == "" || e.cachedAt.Before(oldest) {
			oldestKey, oldest = k, e.cachedAt
		}
	}
	delete(c.entries, oldestKey)
}
