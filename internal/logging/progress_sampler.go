package logging

import "strings"

// ProgressSampler suppresses repetitive progress logs while preserving signal
// when the status or the percentage bucket changes.
type ProgressSampler struct {
	bucketSize int
	lastStatus string
	lastBucket int
}

// NewProgressSampler constructs a sampler that emits when percent crosses a
// bucket boundary (default 5%) or when the status changes.
func NewProgressSampler(bucketSize int) *ProgressSampler {
	if bucketSize <= 0 {
		bucketSize = 5
	}
	return &ProgressSampler{bucketSize: bucketSize, lastBucket: -1}
}

// ShouldLog reports whether a progress tick should be logged. A negative
// percent means unknown and only status changes are considered.
func (s *ProgressSampler) ShouldLog(percent int, status string) bool {
	if s == nil {
		return true
	}
	status = strings.TrimSpace(status)
	emit := false
	if status != "" && status != s.lastStatus {
		s.lastStatus = status
		s.lastBucket = -1
		emit = true
	}
	if percent >= 0 {
		if percent > 100 {
			percent = 100
		}
		bucket := percent / s.bucketSize
		if bucket > s.lastBucket {
			s.lastBucket = bucket
			emit = true
		}
	}
	return emit
}

// Reset clears the sampler state, e.g. when a mission restarts.
func (s *ProgressSampler) Reset() {
	if s == nil {
		return
	}
	s.lastStatus = ""
	s.lastBucket = -1
}
