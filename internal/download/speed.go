package download

import (
	"fmt"
	"sync"
	"time"

	"github.com/dustin/go-humanize"
)

// SpeedTracker accumulates downloaded bytes and reports a sliding window
// average of per-interval rates.
type SpeedTracker struct {
	interval time.Duration
	window   int
	now      func() time.Time

	mu         sync.Mutex
	start      time.Time
	lastSample time.Time
	lastBytes  int64
	total      int64
	samples    []float64
	current    float64
}

// SpeedSnapshot is a point-in-time view of a tracker.
type SpeedSnapshot struct {
	Bytes      int64
	Current    float64
	Average    float64
	Start      time.Time
	LastSample time.Time
	LastBytes  int64
}

// NewSpeedTracker returns a tracker sampling every interval over window samples.
// A nil clock uses time.Now.
func NewSpeedTracker(interval time.Duration, window int, now func() time.Time) *SpeedTracker {
	if now == nil {
		now = time.Now
	}
	if window <= 0 {
		window = 1
	}
	started := now()
	return &SpeedTracker{
		interval:   interval,
		window:     window,
		now:        now,
		start:      started,
		lastSample: started,
	}
}

// Add records n downloaded bytes and samples when the interval has elapsed.
func (s *SpeedTracker) Add(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total += n

	now := s.now()
	elapsed := now.Sub(s.lastSample)
	if elapsed < s.interval || elapsed <= 0 {
		return
	}
	rate := float64(s.total-s.lastBytes) / elapsed.Seconds()
	s.current = rate
	s.samples = append(s.samples, rate)
	if over := len(s.samples) - s.window; over > 0 {
		s.samples = s.samples[over:]
	}
	s.lastSample = now
	s.lastBytes = s.total
}

// Discard removes n bytes that belonged to a failed attempt without
// disturbing the sampled rate.
func (s *SpeedTracker) Discard(n int64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total -= n
	s.lastBytes -= n
	if s.total < 0 {
		s.total = 0
	}
	if s.lastBytes < 0 {
		s.lastBytes = 0
	}
}

// Restore seeds the tracker from a checkpoint so totals survive a restart.
func (s *SpeedTracker) Restore(bytes int64, start time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.total = bytes
	s.lastBytes = bytes
	if !start.IsZero() {
		s.start = start
	}
	s.lastSample = s.now()
}

// Snapshot returns the current totals and rates.
func (s *SpeedTracker) Snapshot() SpeedSnapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return SpeedSnapshot{
		Bytes:      s.total,
		Current:    s.current,
		Average:    s.average(),
		Start:      s.start,
		LastSample: s.lastSample,
		LastBytes:  s.lastBytes,
	}
}

func (s *SpeedTracker) average() float64 {
	if len(s.samples) == 0 {
		return 0
	}
	var sum float64
	for _, v := range s.samples {
		sum += v
	}
	return sum / float64(len(s.samples))
}

// FormatSpeed renders bytes per second for display, for example "1.2 MB/s".
func FormatSpeed(bytesPerSecond float64) string {
	if bytesPerSecond <= 0 {
		return "0 B/s"
	}
	return humanize.Bytes(uint64(bytesPerSecond)) + "/s"
}

// FormatTimemark renders seconds as HH:MM:SS.cc.
func FormatTimemark(seconds float64) string {
	if seconds < 0 {
		seconds = 0
	}
	centis := int64(seconds*100 + 0.5)
	h := centis / 360000
	m := (centis / 6000) % 60
	sec := (centis / 100) % 60
	cs := centis % 100
	return fmt.Sprintf("%02d:%02d:%02d.%02d", h, m, sec, cs)
}
