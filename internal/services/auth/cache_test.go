package auth

import (
	"testing"
	"time"

	"debtster_portal/internal/models"
)

func cachedData(userID string, expires time.Time) *SessionData {
	return &SessionData{
		User:    &models.User{ID: userID},
		Session: &models.Session{UserID: userID, ExpiresAt: expires},
	}
}

func TestSessionCache_TTL(t *testing.T) {
	now := time.Now()
	c := NewSessionCache(time.Minute, 10)
	c.now = func() time.Time { return now }

	c.Set("h1", cachedData("u1", now.Add(time.Hour)))
	if _, ok := c.Get("h1"); !ok {
		t.Fatalf("expected hit")
	}

	now = now.Add(2 * time.Minute)
	if _, ok := c.Get("h1"); ok {
		t.Fatalf("expected miss after ttl")
	}
	if c.Len() != 0 {
		t.Fatalf("stale entry must be removed")
	}
}

func TestSessionCache_EvictsOldest(t *testing.T) {
	now := time.Now()
	c := NewSessionCache(time.Hour, 2)
	c.now = func() time.Time { return now }

	c.Set("a", cachedData("u1", now.Add(time.Hour)))
	now = now.Add(time.Second)
	c.Set("b", cachedData("u2", now.Add(time.Hour)))
	now = now.Add(time.Second)
	c.Set("c", cachedData("u3", now.Add(time.Hour)))

	if _, ok := c.Get("a"); ok {
		t.Fatalf("oldest entry must be evicted")
	}
	if c.Len() != 2 {
		t.Fatalf("expected 2 entries, got %d", c.Len())
	}
}

func TestSessionCache_DeleteUser(t *testing.T) {
	c := NewSessionCache(time.Hour, 10)
	exp := time.Now().Add(time.Hour)
	c.Set("a", cachedData("u1", exp))
	c.Set("b", cachedData("u1", exp))
	c.Set("c", cachedData("u2", exp))

	c.DeleteUser("u1")
	if c.Len() != 1 {
		t.Fatalf("expected 1 entry left, got %d", c.Len())
	}
}
