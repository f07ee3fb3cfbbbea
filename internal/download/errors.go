package download

import (
	"fmt"

	"shuttle/internal/services"
)

// SegmentFetchError is one failed attempt at a segment.
type SegmentFetchError struct {
	Index      int
	URI        string
	StatusCode int
	Err        error
}

func (e *SegmentFetchError) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("segment %d: %s returned status %d", e.Index, e.URI, e.StatusCode)
	}
	return fmt.Sprintf("segment %d: %s: %v", e.Index, e.URI, e.Err)
}

func (e *SegmentFetchError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrSegmentFetch}
	}
	return []error{services.ErrSegmentFetch, e.Err}
}

// SegmentExhaustedError reports a segment that failed every retry burst.
type SegmentExhaustedError struct {
	Index    int
	URI      string
	Attempts int
	Err      error
}

func (e *SegmentExhaustedError) Error() string {
	return fmt.Sprintf("segment %d exhausted after %d bursts: %s: %v", e.Index, e.Attempts, e.URI, e.Err)
}

func (e *SegmentExhaustedError) Unwrap() []error {
	if e.Err == nil {
		return []error{services.ErrSegmentExhausted}
	}
	return []error{services.ErrSegmentExhausted, e.Err}
}
