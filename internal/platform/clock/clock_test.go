package clock

import (
	"testing"
	"time"
)

func TestManagedClock_WarpForward(t *testing.T) {
	start := time.Date(2024, 6, 14, 9, 0, 0, 0, time.UTC)
	c := NewManaged(start)

	if !c.Now().Equal(start) {
		t.Fatalf("expected frozen start, got %s", c.Now())
	}
	if got := c.WarpForward(90 * time.Second); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("unexpected warped time %s", got)
	}
	if got := c.Since(start); got != 90*time.Second {
		t.Errorf("expected 90s since start, got %s", got)
	}
}

func TestManagedClock_FiresTimers(t *testing.T) {
	c := NewManaged(time.Unix(0, 0))
	timer := c.NewTimer(time.Minute)

	c.WarpForward(59 * time.Second)
	select {
	case <-timer.Chan():
		t.Fatal("timer fired early")
	default:
	}

	c.WarpForward(time.Second)
	select {
	case <-timer.Chan():
	case <-time.After(time.Second):
		t.Fatal("timer did not fire")
	}
}

func TestNew_IsWallClock(t *testing.T) {
	before := time.Now()
	got := New().Now()
	if got.Before(before) || got.Sub(before) > time.Minute {
		t.Errorf("expected wall-clock time near %s, got %s", before, got)
	}
}
