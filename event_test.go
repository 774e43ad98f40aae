package livefrag

import (
	"testing"
)

func TestEmitterDelivery(t *testing.T) {
	e := NewEmitter(nil)

	var got []string
	e.On(EventLoaded, func(ev Event) { got = append(got, "a:"+ev.URL) })
	e.On(EventLoaded, func(ev Event) { got = append(got, "b:"+ev.URL) })
	e.On(EventLoadError, func(ev Event) { got = append(got, "err") })

	e.Emit(Event{Type: EventLoaded, URL: "/orders"})
	if len(got) != 2 {
		t.Fatalf("delivered to %d handlers, want 2", len(got))
	}
	for _, g := range got {
		if g != "a:/orders" && g != "b:/orders" {
			t.Errorf("unexpected delivery %q", g)
		}
	}
}

func TestEmitterFaultIsolation(t *testing.T) {
	e := NewEmitter(nil)

	var survived int
	e.On(EventLoaded, func(Event) { panic("boom") })
	e.On(EventLoaded, func(Event) { survived++ })
	e.On(EventLoaded, func(Event) { panic("boom again") })

	// Must not panic through Emit, and the healthy handler must run.
	e.Emit(Event{Type: EventLoaded})
	if survived != 1 {
		t.Errorf("healthy handler ran %d times, want 1", survived)
	}
}

func TestEmitterUnsubscribe(t *testing.T) {
	e := NewEmitter(nil)

	var calls int
	off := e.On(EventLoaded, func(Event) { calls++ })
	e.Emit(Event{Type: EventLoaded})
	off()
	off() // double unsubscribe is a no-op
	e.Emit(Event{Type: EventLoaded})

	if calls != 1 {
		t.Errorf("calls = %d, want 1", calls)
	}
}
