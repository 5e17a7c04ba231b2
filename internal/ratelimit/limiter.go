package ratelimit

import (
	"sync"
	"time"
)

// DefaultCooldown is how long a conversation thread stays muted after a
// response is admitted.
const DefaultCooldown = 2 * time.Second

// Limiter admits at most one response per cooldown window per thread key.
// A denied message is simply dropped; nothing is queued or retried.
type Limiter struct {
	cooldown time.Duration
	now      func() time.Time

	mu   sync.Mutex
	last map[string]time.Time
}

func NewLimiter(cooldown time.Duration) *Limiter {
	return &Limiter{
		cooldown: cooldown,
		now:      time.Now,
		last:     make(map[string]time.Time),
	}
}

// Allow reports whether the key may respond now. An admitted call starts the
// key's cooldown window; a denied call leaves the window untouched.
func (l *Limiter) Allow(key string) bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	if last, ok := l.last[key]; ok && now.Sub(last) < l.cooldown {
		return false
	}
	l.last[key] = now
	return true
}
