package logging

import "testing"

func TestNewProgressSamplerDefaults(t *testing.T) {
	tests := []struct {
		name       string
		bucketSize int
		wantSize   int
	}{
		{"zero", 0, 5},
		{"negative", -1, 5},
		{"custom", 10, 10},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := NewProgressSampler(tt.bucketSize)
			if s.bucketSize != tt.wantSize {
				t.Errorf("bucketSize = %d, want %d", s.bucketSize, tt.wantSize)
			}
			if s.lastBucket != -1 {
				t.Errorf("lastBucket = %d, want -1", s.lastBucket)
			}
		})
	}
}

func TestProgressSamplerBuckets(t *testing.T) {
	s := NewProgressSampler(5)
	if !s.ShouldLog(0, "downloading") {
		t.Fatal("first tick should log")
	}
	if s.ShouldLog(3, "downloading") {
		t.Fatal("same bucket should not log")
	}
	if !s.ShouldLog(5, "downloading") {
		t.Fatal("new bucket should log")
	}
	if s.ShouldLog(4, "downloading") {
		t.Fatal("lower bucket should not log")
	}
	if !s.ShouldLog(4, "stopped") {
		t.Fatal("status change should log")
	}
	if !s.ShouldLog(150, "stopped") {
		t.Fatal("clamped 100 should log once")
	}
	if s.ShouldLog(100, "stopped") {
		t.Fatal("repeated 100 should not log")
	}
}

func TestProgressSamplerNilAndReset(t *testing.T) {
	var nilSampler *ProgressSampler
	if !nilSampler.ShouldLog(10, "x") {
		t.Fatal("nil sampler should always log")
	}
	nilSampler.Reset()

	s := NewProgressSampler(10)
	s.ShouldLog(50, "downloading")
	s.Reset()
	if !s.ShouldLog(50, "downloading") {
		t.Fatal("reset sampler should log again")
	}
}
