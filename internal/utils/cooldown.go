package utils

import (
	"sync"
	"time"
)

// Cooldowns remembers the last accepted action per guild member.
type Cooldowns struct {
	mu     sync.Mutex
	window time.Duration
	last   map[string]time.Time
}

func NewCooldowns(window time.Duration) *Cooldowns {
	return &Cooldowns{window: window, last: make(map[string]time.Time)}
}

func MemberKey(guildID, userID string) string {
	return guildID + ":" + userID
}

// Allow reports whether the member is outside the window and, if so, stamps now.
// Rejected attempts do not extend the window.
func (c *Cooldowns) Allow(guildID, userID string, now time.Time) bool {
	if c.window <= 0 {
		return true
	}
	key := MemberKey(guildID, userID)

	c.mu.Lock()
	defer c.mu.Unlock()

	if last, ok := c.last[key]; ok && now.Sub(last) < c.window {
		return false
	}
	c.last[key] = now
	return true
}

func (c *Cooldowns) Forget(guildID, userID string) {
	c.mu.Lock()
	delete(c.last, MemberKey(guildID, userID))
	c.mu.Unlock()
}

// Prune drops entries whose window has passed and returns how many were removed.
func (c *Cooldowns) Prune(now time.Time) int {
	c.mu.Lock()
	defer c.mu.Unlock()

	removed := 0
	for key, last := range c.last {
		if now.Sub(last) >= c.window {
			delete(c.last, key)
			removed++
		}
	}
	return removed
}

func (c *Cooldowns) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.last)
}
