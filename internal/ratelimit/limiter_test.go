package ratelimit

import (
	"testing"
	"time"
)

func newTestLimiter(cooldown time.Duration) (*Limiter, *time.Time) {
	l := NewLimiter(cooldown)
	clock := time.Date(2024, 1, 1, 12, 0, 0, 0, time.UTC)
	l.now = func() time.Time { return clock }
	return l, &clock
}

func TestAllowFirstMessage(t *testing.T) {
	l, _ := newTestLimiter(2 * time.Second)

	if !l.Allow("telegram:1") {
		t.Error("Allow() = false for first message, want true")
	}
}

func TestAllowWithinCooldown(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	l.Allow("telegram:1")

	*clock = clock.Add(500 * time.Millisecond)
	if l.Allow("telegram:1") {
		t.Error("Allow() = true inside cooldown, want false")
	}

	// A denied call must not extend the window.
	*clock = clock.Add(1600 * time.Millisecond)
	if !l.Allow("telegram:1") {
		t.Error("Allow() = false after cooldown elapsed, want true")
	}
}

func TestAllowAfterCooldown(t *testing.T) {
	l, clock := newTestLimiter(2 * time.Second)

	l.Allow("telegram:1")
	*clock = clock.Add(2 * time.Second)

	if !l.Allow("telegram:1") {
		t.Error("Allow() = false exactly at cooldown boundary, want true")
	}
}

func TestAllowKeysIndependent(t *testing.T) {
	l, _ := newTestLimiter(2 * time.Second)

	if !l.Allow("telegram:1") {
		t.Error("Allow() = false for first key")
	}
	if !l.Allow("telegram:2") {
		t.Error("Allow() = false for second key, want independent windows")
	}
	if !l.Allow("telegram:1:77") {
		t.Error("Allow() = false for thread key, want independent windows")
	}
}
