package gateway

import (
	"testing"
	"time"
)

func TestRateLimiter_AllowsUpToMax(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	for i := 0; i < 10; i++ {
		d := rl.Consume("login", "admin||1.2.3.4")
		if !d.Allowed {
			t.Fatalf("call %d: expected allowed, got denied", i)
		}
	}

	d := rl.Consume("login", "admin||1.2.3.4")
	if d.Allowed {
		t.Fatal("expected the 11th login within the window to be denied")
	}
	if d.RetryAfterMs < (5 * time.Minute).Milliseconds() {
		t.Fatalf("expected retryAfterMs >= 5m, got %d", d.RetryAfterMs)
	}
}

func TestRateLimiter_CooldownBlocksUntilExpiry(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	for i := 0; i < 6; i++ {
		rl.Consume("settings_save", "admin||1.2.3.4")
	}
	d := rl.Consume("settings_save", "admin||1.2.3.4")
	if d.Allowed {
		t.Fatal("expected denial once max is reached")
	}

	clock = clock.Add(10 * time.Second)
	d2 := rl.Consume("settings_save", "admin||1.2.3.4")
	if d2.Allowed {
		t.Fatal("expected continued denial during cooldown")
	}

	clock = clock.Add(15 * time.Second)
	d3 := rl.Consume("settings_save", "admin||1.2.3.4")
	if !d3.Allowed {
		t.Fatal("expected a fresh window to allow after cooldown expires")
	}
}

func TestRateLimiter_WindowResetsAfterExpiry(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	for i := 0; i < 180; i++ {
		if !rl.Consume("status", "viewer||5.6.7.8").Allowed {
			t.Fatalf("call %d should be allowed within max", i)
		}
	}
	if rl.Consume("status", "viewer||5.6.7.8").Allowed {
		t.Fatal("expected denial at the cap")
	}

	clock = clock.Add(61 * time.Second)
	if !rl.Consume("status", "viewer||5.6.7.8").Allowed {
		t.Fatal("expected a fresh window after windowMs elapses")
	}
}

func TestRateLimiter_UnknownActionAlwaysAllowed(t *testing.T) {
	rl := NewRateLimiter()
	if !rl.Consume("not_a_real_action", "x").Allowed {
		t.Fatal("expected unknown actions to pass through")
	}
}

func TestActorKey_Anonymous(t *testing.T) {
	if ActorKey("", "", "1.2.3.4") != "anonymous" {
		t.Fatal("expected anonymous key for unauthenticated caller")
	}
}

func TestRateLimiter_Evict(t *testing.T) {
	rl := NewRateLimiter()
	clock := time.Now()
	rl.now = func() time.Time { return clock }

	rl.Consume("status", "a")
	rl.Consume("status", "b")
	if rl.Count() != 2 {
		t.Fatalf("expected 2 entries, got %d", rl.Count())
	}

	clock = clock.Add(time.Hour)
	rl.Evict(time.Minute)
	if rl.Count() != 0 {
		t.Fatalf("expected stale entries evicted, got %d remaining", rl.Count())
	}
}
