package sensor

import (
	"sync"
	"time"
)

// MockSource lets tests deliver samples synchronously through Emit.
type MockSource struct {
	mu       sync.RWMutex
	handler  Handler
	period   time.Duration
	running  bool
	startErr error
	onErr    ErrorHandler
	starts   int
	stops    int
}

// NewMockSource creates a new MockSource instance.
func NewMockSource() *MockSource {
	return &MockSource{}
}

// SetStartError makes subsequent Start calls fail with err.
func (m *MockSource) SetStartError(err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.startErr = err
}

func (m *MockSource) Start(period time.Duration, h Handler) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.startErr != nil {
		return &RegistrationError{Source: "mock", Err: m.startErr}
	}

	m.handler = h
	m.period = period
	m.running = true
	m.starts++
	return nil
}

func (m *MockSource) Stop() error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if m.running {
		m.stops++
	}
	m.running = false
	m.handler = nil
	return nil
}

func (m *MockSource) OnError(fn ErrorHandler) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.onErr = fn
}

// Fail ends delivery as a failing device would: the source stops running and
// err is passed to the OnError handler.
func (m *MockSource) Fail(err error) error {
	m.mu.Lock()
	if !m.running {
		m.mu.Unlock()
		return ErrSourceNotRunning
	}
	m.running = false
	m.handler = nil
	onErr := m.onErr
	m.mu.Unlock()

	if onErr != nil {
		onErr(err)
	}
	return nil
}

func (m *MockSource) IsRunning() bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.running
}

// Emit delivers a sample to the registered handler on the caller's goroutine.
// A zero timestamp is replaced by the monotonic clock.
func (m *MockSource) Emit(s Sample) error {
	m.mu.RLock()
	defer m.mu.RUnlock()

	if !m.running || m.handler == nil {
		return ErrSourceNotRunning
	}
	if s.Timestamp == 0 {
		s.Timestamp = NowMillis()
	}
	m.handler(s)
	return nil
}

// Period returns the period requested by the last Start call.
func (m *MockSource) Period() time.Duration {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.period
}

// Starts returns how many times the source was started.
func (m *MockSource) Starts() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.starts
}

// Stops returns how many running sessions were stopped.
func (m *MockSource) Stops() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.stops
}
