package alert

import (
	"context"
	"sync"
)

// Recorder is a Sink that remembers every alert. Useful for testing.
type Recorder struct {
	mu     sync.Mutex
	events []Event
	err    error
	ch     chan Event
}

// NewRecorder creates a Recorder. C delivers up to 64 undrained alerts.
func NewRecorder() *Recorder {
	return &Recorder{ch: make(chan Event, 64)}
}

func (*Recorder) Name() string { return "recorder" }

func (r *Recorder) Alert(_ context.Context, ev Event) error {
	r.mu.Lock()
	r.events = append(r.events, ev)
	err := r.err
	r.mu.Unlock()

	select {
	case r.ch <- ev:
	default:
	}
	return err
}

// SetError makes subsequent alerts fail with err after being recorded.
func (r *Recorder) SetError(err error) {
	r.mu.Lock()
	r.err = err
	r.mu.Unlock()
}

// Events returns a copy of the recorded alerts.
func (r *Recorder) Events() []Event {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]Event, len(r.events))
	copy(out, r.events)
	return out
}

// Count returns the number of recorded alerts.
func (r *Recorder) Count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.events)
}

// C delivers alerts as they are recorded.
func (r *Recorder) C() <-chan Event {
	return r.ch
}
