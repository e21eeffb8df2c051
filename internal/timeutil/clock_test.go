package timeutil

import (
	"testing"
	"time"
)

func TestRealClock_Now(t *testing.T) {
	before := time.Now()
	got := RealClock{}.Now()
	after := time.Now()
	if got.Before(before) || got.After(after) {
		t.Errorf("RealClock.Now() = %v, want between %v and %v", got, before, after)
	}
}

func TestMockClock(t *testing.T) {
	start := time.Date(2025, time.June, 23, 23, 3, 46, 0, time.UTC)
	c := NewMockClock(start)

	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now() = %v, want %v", got, start)
	}

	c.Advance(30 * time.Second)
	if got := c.Now(); !got.Equal(start.Add(30 * time.Second)) {
		t.Errorf("after Advance, Now() = %v", got)
	}

	later := start.Add(time.Hour)
	c.Set(later)
	if got := c.Now(); !got.Equal(later) {
		t.Errorf("after Set, Now() = %v, want %v", got, later)
	}
}

func TestMockClock_Step(t *testing.T) {
	start := time.Date(2025, time.June, 23, 0, 0, 0, 0, time.UTC)
	c := NewMockClock(start)
	c.SetStep(time.Second)

	first := c.Now()
	second := c.Now()
	if !first.Equal(start) {
		t.Errorf("first Now() = %v, want %v", first, start)
	}
	if got := second.Sub(first); got != time.Second {
		t.Errorf("step between calls = %v, want 1s", got)
	}
}

func TestFormatFileStamp(t *testing.T) {
	ts := time.Date(2025, time.June, 23, 23, 3, 46, 31000000, time.UTC)
	if got, want := FormatFileStamp(ts), "20250623_230346.031"; got != want {
		t.Errorf("FormatFileStamp() = %q, want %q", got, want)
	}
}
