package clock

import (
	"testing"
	"time"
)

func TestWallIsNaive(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*3600)
	now := NewWall(loc).Now()

	if now.Location() != time.UTC {
		t.Fatalf("location = %v, want UTC-tagged naive time", now.Location())
	}
	if now.Nanosecond() != 0 {
		t.Errorf("expected truncation to seconds, got %d ns", now.Nanosecond())
	}

	// The naive value is three hours ahead of the real UTC instant.
	diff := now.Sub(time.Now().UTC())
	if diff < 3*time.Hour-time.Minute || diff > 3*time.Hour+time.Minute {
		t.Errorf("offset = %v, want about 3h", diff)
	}
}

func TestFixedAdvance(t *testing.T) {
	start := time.Date(2024, 1, 1, 10, 0, 0, 0, time.UTC)
	c := NewFixed(start)
	c.Advance(90 * time.Second)

	if got := c.Now(); !got.Equal(start.Add(90 * time.Second)) {
		t.Errorf("Now = %v", got)
	}
	c.Set(start)
	if got := c.Now(); !got.Equal(start) {
		t.Errorf("Now after Set = %v", got)
	}
}
