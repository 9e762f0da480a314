package app

import (
	"testing"
	"time"
)

func TestRateLimiterAdmitDeniesPastBurst(t *testing.T) {
	limiter := NewRateLimiter(0.001, 3, 10)

	for i := 0; i < 3; i++ {
		if !limiter.Admit("10.0.0.1") {
			t.Fatalf("expected admission %d within burst", i)
		}
	}
	if limiter.Admit("10.0.0.1") {
		t.Fatalf("expected denial past burst")
	}
	// A different address holds its own bucket.
	if !limiter.Admit("10.0.0.2") {
		t.Fatalf("expected fresh address to be admitted")
	}
}

func TestRateLimiterConnectionCap(t *testing.T) {
	limiter := NewRateLimiter(100, 100, 2)

	if !limiter.Acquire("10.0.0.1") || !limiter.Acquire("10.0.0.1") {
		t.Fatalf("expected two connections to fit")
	}
	if limiter.Acquire("10.0.0.1") {
		t.Fatalf("expected third connection to be rejected")
	}
	limiter.Release("10.0.0.1")
	if !limiter.Acquire("10.0.0.1") {
		t.Fatalf("expected connection to fit after release")
	}
	if got := limiter.Connections("10.0.0.1"); got != 2 {
		t.Fatalf("expected 2 live connections, got %d", got)
	}
}

func TestRateLimiterPrune(t *testing.T) {
	limiter := NewRateLimiter(100, 100, 2)
	limiter.Admit("10.0.0.1")
	limiter.Acquire("10.0.0.2")

	time.Sleep(10 * time.Millisecond)
	removed := limiter.Prune(time.Nanosecond)
	if removed != 1 {
		t.Fatalf("expected only the idle address pruned, got %d", removed)
	}
	// The address with a live connection must survive pruning.
	if got := limiter.Connections("10.0.0.2"); got != 1 {
		t.Fatalf("expected live connection to survive prune, got %d", got)
	}
}
