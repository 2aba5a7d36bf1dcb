package access

import (
	"sync"
	"time"

	"golang.org/x/time/rate"
)

// idleAfter is how long a user's bucket survives without traffic.
const idleAfter = 10 * time.Minute

// RateLimiter caps how many messages each user may send per minute. Every
// user gets a token bucket refilled at perMinute tokens a minute and holding
// up to burst tokens. A nil *RateLimiter allows everything.
type RateLimiter struct {
	mu        sync.Mutex
	every     rate.Limit
	burst     int
	now       func() time.Time
	users     map[string]*bucket
	lastPrune time.Time
}

type bucket struct {
	lim  *rate.Limiter
	seen time.Time
}

// NewRateLimiter returns nil when perMinute is not positive. burst defaults
// to perMinute.
func NewRateLimiter(perMinute, burst int, now func() time.Time) *RateLimiter {
	if perMinute <= 0 {
		return nil
	}
	if burst <= 0 {
		burst = perMinute
	}
	if now == nil {
		now = time.Now
	}
	return &RateLimiter{
		every: rate.Every(time.Minute / time.Duration(perMinute)),
		burst: burst,
		now:   now,
		users: make(map[string]*bucket),
	}
}

// Allow spends one token of userID's bucket and reports whether there was
// one.
func (r *RateLimiter) Allow(userID string) bool {
	if r == nil {
		return true
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now()
	r.prune(now)

	b, ok := r.users[userID]
	if !ok {
		b = &bucket{lim: rate.NewLimiter(r.every, r.burst)}
		r.users[userID] = b
	}
	b.seen = now
	return b.lim.AllowN(now, 1)
}

// prune drops idle buckets, at most once a minute. A dropped bucket would
// have refilled completely anyway.
func (r *RateLimiter) prune(now time.Time) {
	if now.Sub(r.lastPrune) < time.Minute {
		return
	}
	r.lastPrune = now
	for id, b := range r.users {
		if now.Sub(b.seen) > idleAfter {
			delete(r.users, id)
		}
	}
}

// Len returns the number of tracked users.
func (r *RateLimiter) Len() int {
	if r == nil {
		return 0
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.users)
}
