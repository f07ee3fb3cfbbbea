package download_test

import (
	"math"
	"sync"
	"testing"
	"time"

	"shuttle/internal/download"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{now: time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestSpeedTrackerWindowAverage(t *testing.T) {
	clock := newFakeClock()
	tracker := download.NewSpeedTracker(time.Second, 2, clock.Now)

	tracker.Add(500)
	if snap := tracker.Snapshot(); snap.Average != 0 || snap.Bytes != 500 {
		t.Fatalf("sampled before interval: %+v", snap)
	}

	clock.Advance(time.Second)
	tracker.Add(500) // 1000 bytes over 1s
	clock.Advance(time.Second)
	tracker.Add(3000) // 3000 bytes over 1s
	snap := tracker.Snapshot()
	if snap.Current != 3000 {
		t.Fatalf("Current = %v, want 3000", snap.Current)
	}
	if snap.Average != 2000 {
		t.Fatalf("Average = %v, want 2000", snap.Average)
	}

	clock.Advance(time.Second)
	tracker.Add(5000) // window drops the 1000 sample
	snap = tracker.Snapshot()
	if snap.Average != 4000 {
		t.Fatalf("Average after slide = %v, want 4000", snap.Average)
	}
	if snap.Bytes != 9000 {
		t.Fatalf("Bytes = %d, want 9000", snap.Bytes)
	}
}

func TestSpeedTrackerRestore(t *testing.T) {
	clock := newFakeClock()
	tracker := download.NewSpeedTracker(time.Second, 3, clock.Now)
	start := clock.Now().Add(-time.Hour)

	tracker.Restore(10_000, start)
	clock.Advance(2 * time.Second)
	tracker.Add(2000)

	snap := tracker.Snapshot()
	if snap.Bytes != 12_000 {
		t.Fatalf("Bytes = %d", snap.Bytes)
	}
	if !snap.Start.Equal(start) {
		t.Fatalf("Start = %s, want %s", snap.Start, start)
	}
	if math.Abs(snap.Current-1000) > 1e-9 {
		t.Fatalf("restored bytes counted as speed: %v", snap.Current)
	}
}

func TestFormatHelpers(t *testing.T) {
	tests := []struct {
		seconds float64
		want    string
	}{
		{0, "00:00:00.00"},
		{6, "00:00:06.00"},
		{3723.456, "01:02:03.46"},
		{-1, "00:00:00.00"},
	}
	for _, tt := range tests {
		if got := download.FormatTimemark(tt.seconds); got != tt.want {
			t.Fatalf("FormatTimemark(%v) = %q, want %q", tt.seconds, got, tt.want)
		}
	}
	if got := download.FormatSpeed(0); got != "0 B/s" {
		t.Fatalf("FormatSpeed(0) = %q", got)
	}
	if got := download.FormatSpeed(1500); got != "1.5 kB/s" {
		t.Fatalf("FormatSpeed(1500) = %q", got)
	}
}
