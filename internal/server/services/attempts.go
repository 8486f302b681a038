package services

import (
	"sync"
	"time"
)

// signInLimiter locks an email out after max failed sign-ins within the
// lockout window. State is per process.
type signInLimiter struct {
	mu        sync.Mutex
	max       int
	lockout   time.Duration
	now       func() time.Time
	entries   map[string]*signInAttempts
	lastPrune time.Time
}

type signInAttempts struct {
	failures     int
	firstFailure time.Time
	lockedUntil  time.Time
}

// expired reports whether e no longer affects anything at now.
func (e *signInAttempts) expired(now time.Time, window time.Duration) bool {
	if !e.lockedUntil.IsZero() {
		return !now.Before(e.lockedUntil)
	}
	return now.Sub(e.firstFailure) >= window
}

func newSignInLimiter(max int, lockout time.Duration) *signInLimiter {
	return &signInLimiter{
		max:     max,
		lockout: lockout,
		now:     time.Now,
		entries: make(map[string]*signInAttempts),
	}
}

// Allow reports whether key may attempt a sign-in now. A non-positive max
// disables the limiter.
func (l *signInLimiter) Allow(key string) bool {
	if l.max <= 0 {
		return true
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	e, ok := l.entries[key]
	if !ok {
		return true
	}
	if e.expired(now, l.lockout) {
		delete(l.entries, key)
		return true
	}
	return e.lockedUntil.IsZero()
}

// Fail records a failed attempt and starts a lockout once max failures fall
// within one window.
func (l *signInLimiter) Fail(key string) {
	if l.max <= 0 {
		return
	}
	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.now()
	l.pruneLocked(now)

	e, ok := l.entries[key]
	if !ok || e.expired(now, l.lockout) {
		e = &signInAttempts{firstFailure: now}
		l.entries[key] = e
	}
	e.failures++
	if e.failures >= l.max {
		e.lockedUntil = now.Add(l.lockout)
	}
}

// Reset forgets key after a successful sign-in.
func (l *signInLimiter) Reset(key string) {
	l.mu.Lock()
	delete(l.entries, key)
	l.mu.Unlock()
}

// pruneLocked drops expired entries, at most once per window.
func (l *signInLimiter) pruneLocked(now time.Time) {
	if now.Sub(l.lastPrune) < l.lockout {
		return
	}
	l.lastPrune = now
	for k, e := range l.entries {
		if e.expired(now, l.lockout) {
			delete(l.entries, k)
		}
	}
}
