// Package window implements the fixed-length sliding window of accelerometer
// samples fed to the fall classifier.
package window

import (
	"sync"

	"github.com/ayusman/fallguard/internal/sensor"
)

// Status is the result of a Push.
// While filling, Ready is false and Count is the number of buffered samples.
// Once full, Ready is true and Snapshot holds a copy of the window, oldest first.
type Status struct {
	Count    int
	Ready    bool
	Snapshot []sensor.Sample
}

// Buffer is a fixed-capacity ring buffer of samples. It fills until it holds
// capacity samples and then slides, evicting the oldest sample on each push.
// All methods are safe for concurrent use.
type Buffer struct {
	mu   sync.Mutex
	data []sensor.Sample
	pos  int
	full bool
}

// New creates a Buffer with the given capacity.
func New(capacity int) *Buffer {
	if capacity < 1 {
		capacity = 1
	}
	return &Buffer{
		data: make([]sensor.Sample, capacity),
	}
}

// Push adds a sample. When the window is full the returned Status carries a
// snapshot taken under the same lock as the push.
func (b *Buffer) Push(s sensor.Sample) Status {
	b.mu.Lock()
	defer b.mu.Unlock()

	b.data[b.pos] = s
	b.pos++
	if b.pos >= len(b.data) {
		b.pos = 0
		b.full = true
	}

	if !b.full {
		return Status{Count: b.pos}
	}
	return Status{
		Count:    len(b.data),
		Ready:    true,
		Snapshot: b.sliceLocked(),
	}
}

// Snapshot returns a copy of the buffered samples in arrival order.
func (b *Buffer) Snapshot() []sensor.Sample {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.sliceLocked()
}

func (b *Buffer) sliceLocked() []sensor.Sample {
	n := b.lenLocked()
	out := make([]sensor.Sample, n)
	if b.full {
		copy(out, b.data[b.pos:])
		copy(out[len(b.data)-b.pos:], b.data[:b.pos])
	} else {
		copy(out, b.data[:b.pos])
	}
	return out
}

// Len returns the number of buffered samples.
func (b *Buffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.lenLocked()
}

func (b *Buffer) lenLocked() int {
	if b.full {
		return len(b.data)
	}
	return b.pos
}

// Cap returns the window length.
func (b *Buffer) Cap() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Full reports whether the buffer has reached slide mode.
func (b *Buffer) Full() bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.full
}

// Reset discards all samples and returns to fill mode.
func (b *Buffer) Reset() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.resetLocked()
}

// Reconfigure discards all samples and changes the window length.
// Partial data is never carried over into the new window.
func (b *Buffer) Reconfigure(capacity int) {
	if capacity < 1 {
		capacity = 1
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	if capacity != len(b.data) {
		b.data = make([]sensor.Sample, capacity)
	}
	b.resetLocked()
}

func (b *Buffer) resetLocked() {
	clear(b.data)
	b.pos = 0
	b.full = false
}
