package sim

import (
	"testing"
	"time"
)

func TestManualClockAdvance(t *testing.T) {
	start := time.Date(1200, 3, 1, 6, 0, 0, 0, time.UTC)
	c := NewManualClock(start)
	if !c.Now().Equal(start) {
		t.Fatalf("Now = %v, want %v", c.Now(), start)
	}
	got := c.Advance(90 * time.Minute)
	if h := HoursBetween(start, got); h != 1.5 {
		t.Errorf("HoursBetween = %v, want 1.5", h)
	}
}

func TestHoursBetweenNeverNegative(t *testing.T) {
	now := time.Now()
	if h := HoursBetween(now, now.Add(-time.Hour)); h != 0 {
		t.Errorf("got %v, want 0", h)
	}
}

func TestSequenceSourceWraps(t *testing.T) {
	s := NewSequence(0.1, 0.9)
	want := []float64{0.1, 0.9, 0.1}
	for i, w := range want {
		if got := s.Float64(); got != w {
			t.Errorf("draw %d = %v, want %v", i, got, w)
		}
	}
	if s.Draws() != 3 {
		t.Errorf("Draws = %d, want 3", s.Draws())
	}
}

func TestSequenceSourceIntn(t *testing.T) {
	s := NewSequence(0.0, 0.5, 0.99)
	if got := s.Intn(4); got != 0 {
		t.Errorf("Intn = %d, want 0", got)
	}
	if got := s.Intn(4); got != 2 {
		t.Errorf("Intn = %d, want 2", got)
	}
	if got := s.Intn(4); got != 3 {
		t.Errorf("Intn = %d, want 3", got)
	}
}

func TestSeededIsReproducible(t *testing.T) {
	a, b := NewSeeded(42), NewSeeded(42)
	for i := 0; i < 16; i++ {
		if a.Float64() != b.Float64() {
			t.Fatalf("draw %d diverged", i)
		}
	}
	for i := 0; i < 100; i++ {
		if n := a.Intn(7); n < 0 || n >= 7 {
			t.Fatalf("Intn out of range: %d", n)
		}
	}
}
