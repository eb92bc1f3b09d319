package ingest

import "testing"

func TestClock_BurstWindow(t *testing.T) {
	c := NewClock(2)
	if !c.InBurstWindow() {
		t.Fatalf("expected burst before any time")
	}

	c.Observe(100)
	if !c.InBurstWindow() {
		t.Fatalf("expected burst at delta 0")
	}
	c.Observe(101)
	if !c.InBurstWindow() {
		t.Fatalf("expected burst at delta 1")
	}
	c.Observe(102)
	if c.InBurstWindow() {
		t.Fatalf("expected streaming at delta 2")
	}

	start, ok := c.Start()
	if !ok || start != 100 {
		t.Fatalf("start=%d ok=%v want 100", start, ok)
	}
	if c.Current() != 102 {
		t.Fatalf("current=%d want 102", c.Current())
	}
}

func TestClock_StartNeverMoves(t *testing.T) {
	c := NewClock(2)
	c.Observe(0)
	c.Observe(5)
	c.Observe(1)
	start, _ := c.Start()
	if start != 0 {
		t.Fatalf("start=%d want 0", start)
	}
	// Server time going backwards re-enters the window.
	if !c.InBurstWindow() {
		t.Fatalf("expected burst after time went backwards")
	}
}

func TestClock_ZeroWindow(t *testing.T) {
	c := NewClock(0)
	if !c.InBurstWindow() {
		t.Fatalf("expected burst before any time")
	}
	c.Observe(50)
	if c.InBurstWindow() {
		t.Fatalf("expected no burst with zero window")
	}
}

func TestPosition_UnsetUntilUpdate(t *testing.T) {
	var p Position
	if _, ok := p.Current(); ok {
		t.Fatalf("expected unset")
	}

	p.Update(Fix{Lat: 0, Lon: 0, Fix: "0"})
	f, ok := p.Current()
	if !ok {
		t.Fatalf("expected set")
	}
	if f.Lat != 0 || f.Lon != 0 {
		t.Fatalf("fix=%+v", f)
	}

	p.Update(Fix{Lat: 1, Lon: 2, Fix: "3"})
	f, _ = p.Current()
	if f != (Fix{Lat: 1, Lon: 2, Fix: "3"}) {
		t.Fatalf("fix=%+v", f)
	}
}
