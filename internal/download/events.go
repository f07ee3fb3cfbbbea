package download

import "time"

// Event is delivered to an Observer. The concrete types are the full set.
type Event interface {
	event()
}

// Progress is the telemetry carried by progress-bearing events.
type Progress struct {
	Percent    int
	Speed      string
	Rate       float64
	Bytes      int64
	Timemark   string
	Total      int
	Downloaded int
	Skipped    int
	Failed     int
	Retries    int
}

// ProgressEvent reports an in-flight tick.
type ProgressEvent struct {
	Progress
}

// SkipEvent reports a segment replaced by an empty placeholder.
type SkipEvent struct {
	Index int
	URI   string
	Err   error
}

// PausedEvent confirms a pause request: workers drained and no new fetches start.
type PausedEvent struct {
	Progress
}

// ResumedEvent confirms a resume request.
type ResumedEvent struct{}

// StoppedEvent reports termination after a stop request or cancellation.
type StoppedEvent struct {
	Progress
}

// CompleteEvent reports a successful assembly.
type CompleteEvent struct {
	Progress
	OutputPath string
	SizeBytes  int64
	Skipped    []int
	Elapsed    time.Duration
}

// ErrorEvent reports a terminal failure.
type ErrorEvent struct {
	Progress
	Err error
}

func (ProgressEvent) event() {}
func (SkipEvent) event()     {}
func (PausedEvent) event()   {}
func (ResumedEvent) event()  {}
func (StoppedEvent) event()  {}
func (CompleteEvent) event() {}
func (ErrorEvent) event()    {}

// Observer receives engine events. Calls are serialized per engine.
type Observer interface {
	OnEvent(Event)
}

// ObserverFunc adapts a function to Observer.
type ObserverFunc func(Event)

// OnEvent calls f(ev).
func (f ObserverFunc) OnEvent(ev Event) { f(ev) }
