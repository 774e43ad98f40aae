package ratelimit

import (
	"testing"
	"time"
)

// fakeClock returns a controllable time source starting at a fixed instant.
func fakeClock() (func() time.Time, func(d time.Duration)) {
	current := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	now := func() time.Time { return current }
	advance := func(d time.Duration) { current = current.Add(d) }
	return now, advance
}

func TestCanRequestWindow(t *testing.T) {
	l := New(3, 10*time.Second)
	now, advance := fakeClock()
	l.SetClock(now)

	// Exactly max admissions within the window.
	for i := 0; i < 3; i++ {
		if !l.CanRequest("/orders") {
			t.Fatalf("request %d denied, want admitted", i+1)
		}
	}
	if l.CanRequest("/orders") {
		t.Fatal("request 4 admitted, want denied")
	}

	// Denials are not recorded: still denied, but no penalty extension.
	advance(9 * time.Second)
	if l.CanRequest("/orders") {
		t.Fatal("request inside window admitted, want denied")
	}

	// Window slides past the first admission.
	advance(2 * time.Second)
	if !l.CanRequest("/orders") {
		t.Fatal("request after window slide denied, want admitted")
	}
}

func TestKeysIndependent(t *testing.T) {
	l := New(1, time.Minute)
	now, _ := fakeClock()
	l.SetClock(now)

	if !l.CanRequest("/a") {
		t.Fatal("first /a denied")
	}
	if !l.CanRequest("/b") {
		t.Fatal("first /b denied; keys must not share windows")
	}
	if l.CanRequest("/a") {
		t.Fatal("second /a admitted")
	}
}

func TestDisabled(t *testing.T) {
	l := New(0, time.Second)
	for i := 0; i < 100; i++ {
		if !l.CanRequest("k") {
			t.Fatal("disabled limiter denied a request")
		}
	}
}

func TestCleanup(t *testing.T) {
	l := New(5, 10*time.Second)
	now, advance := fakeClock()
	l.SetClock(now)

	l.CanRequest("/a")
	l.CanRequest("/b")
	advance(5 * time.Second)
	l.CanRequest("/c")

	advance(6 * time.Second) // /a and /b stale, /c still live
	l.Cleanup()
	if got := l.Keys(); got != 1 {
		t.Errorf("Keys() after cleanup = %d, want 1", got)
	}

	advance(10 * time.Second)
	l.Cleanup()
	if got := l.Keys(); got != 0 {
		t.Errorf("Keys() after full expiry = %d, want 0", got)
	}
}

func TestSlidingBoundary(t *testing.T) {
	l := New(2, 10*time.Second)
	now, advance := fakeClock()
	l.SetClock(now)

	l.CanRequest("k")
	advance(4 * time.Second)
	l.CanRequest("k")

	// First admission slides out at t=10; second at t=14.
	advance(7 * time.Second) // t=11
	if !l.CanRequest("k") {
		t.Fatal("t=11: want admitted (first hit expired)")
	}
	if l.CanRequest("k") {
		t.Fatal("t=11: window full again, want denied")
	}
}
