package gateway

import (
	"fmt"
	"sync"
	"time"
)

// Policy is one action's sliding-window + cooldown rate-limit rule.
type Policy struct {
	Window   time.Duration
	Max      int
	Cooldown time.Duration
	Message  string
}

// Policies is the per-action policy table from the Rate Limiter contract.
var Policies = map[string]Policy{
	"login":                {10 * time.Minute, 10, 5 * time.Minute, "too many login attempts, try again later"},
	"settings_get":         {60 * time.Second, 60, 10 * time.Second, "too many settings reads"},
	"settings_save":        {60 * time.Second, 6, 20 * time.Second, "too many settings saves"},
	"session_request_code": {10 * time.Minute, 2, 15 * time.Minute, "too many login-code requests"},
	"session_complete":     {5 * time.Minute, 8, 60 * time.Second, "too many sign-in attempts"},
	"chat_sync":            {2 * time.Minute, 2, 90 * time.Second, "chat sync requested too often"},
	"engine_control":       {60 * time.Second, 6, 30 * time.Second, "too many start/stop requests"},
	"engine_test":          {60 * time.Second, 8, 30 * time.Second, "too many test runs"},
	"status":               {60 * time.Second, 180, 10 * time.Second, "too many status requests"},
	"messages":             {60 * time.Second, 180, 10 * time.Second, "too many message reads"},
	"stats":                {60 * time.Second, 180, 10 * time.Second, "too many stats reads"},
}

type rateLimitEntry struct {
	windowStart  time.Time
	count        int
	blockedUntil time.Time
	lastAccess   time.Time
}

// Decision is the outcome of one Consume call.
type Decision struct {
	Allowed      bool
	RetryAfterMs int64
}

// RateLimiter is the sliding-window + cooldown gate keyed by action × actor.
type RateLimiter struct {
	mu      sync.Mutex
	entries map[string]*rateLimitEntry
	now     func() time.Time
}

// NewRateLimiter returns an empty RateLimiter.
func NewRateLimiter() *RateLimiter {
	return &RateLimiter{entries: make(map[string]*rateLimitEntry), now: time.Now}
}

// ActorKey builds the actor portion of the rate-limit key.
func ActorKey(username, sessionID, remoteAddress string) string {
	if username == "" && sessionID == "" {
		return "anonymous"
	}
	return fmt.Sprintf("%s|%s|%s", username, sessionID, remoteAddress)
}

// Consume applies action's policy to actorKey and returns whether the call
// is allowed.
func (rl *RateLimiter) Consume(action, actorKey string) Decision {
	policy, ok := Policies[action]
	if !ok {
		return Decision{Allowed: true}
	}

	key := action + "|" + actorKey
	now := rl.now()

	rl.mu.Lock()
	defer rl.mu.Unlock()

	e, ok := rl.entries[key]
	if !ok {
		rl.entries[key] = &rateLimitEntry{windowStart: now, count: 1, lastAccess: now}
		return Decision{Allowed: true}
	}
	e.lastAccess = now

	if e.blockedUntil.After(now) {
		return Decision{Allowed: false, RetryAfterMs: e.blockedUntil.Sub(now).Milliseconds()}
	}

	if now.Sub(e.windowStart) >= policy.Window {
		e.windowStart = now
		e.count = 1
		return Decision{Allowed: true}
	}

	if e.count >= policy.Max {
		e.blockedUntil = now.Add(policy.Cooldown)
		return Decision{Allowed: false, RetryAfterMs: policy.Cooldown.Milliseconds()}
	}

	e.count++
	return Decision{Allowed: true}
}

// Evict removes entries untouched for longer than staleAfter, bounding the
// map's growth. Growth bounds are not a specified concern, but lazy GC on a
// sweep interval is a cheap way to avoid unbounded memory in a long-lived
// process.
func (rl *RateLimiter) Evict(staleAfter time.Duration) {
	cutoff := rl.now().Add(-staleAfter)
	rl.mu.Lock()
	defer rl.mu.Unlock()
	for key, e := range rl.entries {
		if e.lastAccess.Before(cutoff) {
			delete(rl.entries, key)
		}
	}
}

// Count returns the number of tracked entries, for tests and diagnostics.
func (rl *RateLimiter) Count() int {
	rl.mu.Lock()
	defer rl.mu.Unlock()
	return len(rl.entries)
}
