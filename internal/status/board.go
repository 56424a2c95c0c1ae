// Package status holds the live detector status shown by the presentation
// layer (HTTP, websocket, tray) and fans updates out to subscribers.
package status

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/ayusman/fallguard/internal/config"
	"github.com/ayusman/fallguard/internal/sensor"
)

// Snapshot is the status at one point in time.
type Snapshot struct {
	State         string           `json:"state"`
	Probability   float32          `json:"probability"`
	HasPrediction bool             `json:"has_prediction"`
	FallDetected  bool             `json:"fall_detected"`
	Message       string           `json:"message"`
	Backend       string           `json:"backend,omitempty"`
	Telemetry     string           `json:"telemetry"`
	Paused        bool             `json:"paused"`
	Config        config.Detection `json:"config"`
	Sample        *sensor.Sample   `json:"sample,omitempty"`
	LastFall      *time.Time       `json:"last_fall,omitempty"`
	UpdatedAt     time.Time        `json:"updated_at"`
}

// subscriberBuffer is how many unread snapshots a subscriber may lag behind
// before updates to it are skipped.
const subscriberBuffer = 16

// Board is the shared status. Updates never block on slow subscribers.
type Board struct {
	mu          sync.Mutex
	snap        Snapshot
	subscribers map[string]chan Snapshot
	closed      bool
}

// NewBoard creates a board with the default detection config and no prediction.
func NewBoard() *Board {
	return &Board{
		snap: Snapshot{
			State:     "idle",
			Telemetry: "disconnected",
			Config:    config.DefaultDetection(),
			UpdatedAt: time.Now(),
		},
		subscribers: make(map[string]chan Snapshot),
	}
}

// Snapshot returns a copy of the current status.
func (b *Board) Snapshot() Snapshot {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.snap
}

// Update applies fn to the status and publishes the result.
func (b *Board) Update(fn func(*Snapshot)) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}

	fn(&b.snap)
	b.snap.UpdatedAt = time.Now()
	snap := b.snap
	for _, ch := range b.subscribers {
		select {
		case ch <- snap:
		default:
			// subscriber is behind; skip rather than block the pipeline
		}
	}
}

// SetMessage replaces the human-readable status message.
func (b *Board) SetMessage(msg string) {
	b.Update(func(s *Snapshot) { s.Message = msg })
}

// Message returns the current status message.
func (b *Board) Message() string {
	return b.Snapshot().Message
}

// Subscribe registers a subscriber and returns its id and update channel.
func (b *Board) Subscribe() (string, <-chan Snapshot) {
	id := uuid.NewString()
	ch := make(chan Snapshot, subscriberBuffer)

	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		close(ch)
		return id, ch
	}
	b.subscribers[id] = ch
	return id, ch
}

// Unsubscribe removes a subscriber and closes its channel.
func (b *Board) Unsubscribe(id string) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if ch, ok := b.subscribers[id]; ok {
		close(ch)
		delete(b.subscribers, id)
	}
}

// Subscribers returns the number of registered subscribers.
func (b *Board) Subscribers() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.subscribers)
}

// Close closes every subscriber channel. Later updates are ignored.
func (b *Board) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return
	}
	b.closed = true
	for id, ch := range b.subscribers {
		close(ch)
		delete(b.subscribers, id)
	}
}
