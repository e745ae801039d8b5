package ratelimit

import (
	"testing"
	"time"
)

func TestAllowWithinLimit(t *testing.T) {
	l := NewMemoryLimiter()

	for i := 0; i < 5; i++ {
		if !l.Allow("relayer", 5, time.Minute) {
			t.Fatalf("call %d should be allowed", i)
		}
	}
	if l.Allow("relayer", 5, time.Minute) {
		t.Error("sixth call should be rejected")
	}
}

func TestKeysAreIndependent(t *testing.T) {
	l := NewMemoryLimiter()

	if !l.Allow("a", 1, time.Minute) {
		t.Fatal("first call on key a should be allowed")
	}
	if l.Allow("a", 1, time.Minute) {
		t.Error("second call on key a should be rejected")
	}
	if !l.Allow("b", 1, time.Minute) {
		t.Error("key b should have its own window")
	}
}

func TestWindowReset(t *testing.T) {
	l := NewMemoryLimiter()

	if !l.Allow("k", 1, 10*time.Millisecond) {
		t.Fatal("first call should be allowed")
	}
	if l.Allow("k", 1, 10*time.Millisecond) {
		t.Fatal("second call inside window should be rejected")
	}

	time.Sleep(15 * time.Millisecond)

	if !l.Allow("k", 1, 10*time.Millisecond) {
		t.Error("call after window reset should be allowed")
	}
}

func TestRetryAfter(t *testing.T) {
	l := NewMemoryLimiter()

	if got := l.RetryAfter("missing", time.Minute); got != 0 {
		t.Errorf("unknown key retry-after = %v, want 0", got)
	}

	l.Allow("k", 1, time.Minute)
	got := l.RetryAfter("k", time.Minute)
	if got <= 0 || got > time.Minute {
		t.Errorf("retry-after = %v, want within (0, 1m]", got)
	}
}
