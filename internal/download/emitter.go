package download

import "sync"

// emitter delivers events to an observer from a single goroutine, in the
// order they were emitted. done closes after the last event is delivered.
type emitter struct {
	observer Observer
	done     chan struct{}

	mu      sync.Mutex
	pending []Event
	closed  bool
	wake    chan struct{}
}

func newEmitter(observer Observer, done chan struct{}) *emitter {
	if observer == nil {
		observer = ObserverFunc(func(Event) {})
	}
	m := &emitter{
		observer: observer,
		done:     done,
		wake:     make(chan struct{}, 1),
	}
	go m.loop()
	return m
}

func (m *emitter) emit(ev Event) {
	m.mu.Lock()
	if m.closed {
		m.mu.Unlock()
		return
	}
	m.pending = append(m.pending, ev)
	m.mu.Unlock()
	m.signal()
}

func (m *emitter) close() {
	m.mu.Lock()
	m.closed = true
	m.mu.Unlock()
	m.signal()
}

func (m *emitter) signal() {
	select {
	case m.wake <- struct{}{}:
	default:
	}
}

func (m *emitter) loop() {
	for {
		m.mu.Lock()
		batch := m.pending
		m.pending = nil
		closed := m.closed
		m.mu.Unlock()

		for _, ev := range batch {
			m.observer.OnEvent(ev)
		}
		if len(batch) > 0 {
			continue
		}
		if closed {
			close(m.done)
			return
		}
		<-m.wake
	}
}
