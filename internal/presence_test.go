package internal

import (
	"testing"
	"time"
)

func TestPresenceMultiDevice(t *testing.T) {
	presence := NewPresenceTracker()
	if presence.Online("u1") {
		t.Fatalf("u1 should start offline")
	}
	presence.Increment("u1")
	presence.Increment("u1")
	presence.Decrement("u1")
	if !presence.Online("u1") {
		t.Fatalf("u1 should stay online while one device remains")
	}
	presence.Decrement("u1")
	if presence.Online("u1") {
		t.Fatalf("u1 should be offline after last device leaves")
	}
	if presence.ActiveCount() != 0 {
		t.Fatalf("active count = %d, want 0", presence.ActiveCount())
	}
}

func TestPresenceDecrementWithoutIncrement(t *testing.T) {
	presence := NewPresenceTracker()
	if got := presence.Decrement("ghost"); got != 0 {
		t.Fatalf("decrement of unknown user = %d, want 0", got)
	}
}

func TestRateLimiterEnforcesWindow(t *testing.T) {
	limiter := NewRateLimiter(3, time.Minute)
	for i := 0; i < 3; i++ {
		if !limiter.Allow("1.2.3.4") {
			t.Fatalf("hit %d should be allowed", i+1)
		}
	}
	if limiter.Allow("1.2.3.4") {
		t.Fatalf("fourth hit within window should be refused")
	}
	// other keys are tracked independently
	if !limiter.Allow("5.6.7.8") {
		t.Fatalf("a different key must not be throttled")
	}
}
