package app

import (
	"testing"
	"time"
)

func TestInviteLimiterWindow(t *testing.T) {
	t.Parallel()
	rl := NewInviteLimiter(3, 50*time.Millisecond)

	for i := 0; i < 3; i++ {
		if !rl.Allow(caller) {
			t.Fatalf("attempt %d should be allowed", i)
		}
	}
	if rl.Allow(caller) {
		t.Error("fourth attempt inside the window should be blocked")
	}
	// Another identity is unaffected.
	if !rl.Allow(callee) {
		t.Error("limiter must be per identity")
	}

	time.Sleep(60 * time.Millisecond)
	if !rl.Allow(caller) {
		t.Error("attempt after the window should be allowed again")
	}
}
